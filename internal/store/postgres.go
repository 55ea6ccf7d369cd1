package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/postwing/postwing/internal/models"
)

// ErrAccountNotFound reports a lookup for an account id that has no row.
var ErrAccountNotFound = errors.New("account not found")

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect builds a pool for the given connection string and verifies it.
func Connect(ctx context.Context, connString string) (*Postgres, error) {
	if connString == "" {
		return nil, fmt.Errorf("database.url not configured")
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

// Migrate creates the schema. Statements are idempotent so the setup command
// can run repeatedly.
func (s *Postgres) Migrate(ctx context.Context) error {
	migrationSQL := `
		CREATE TABLE IF NOT EXISTS accounts (
		    id UUID PRIMARY KEY,
		    email VARCHAR(255) NOT NULL,
		    name VARCHAR(255),
		    access_token TEXT NOT NULL,
		    next_delta_token TEXT
		);

		CREATE TABLE IF NOT EXISTS email_addresses (
		    id UUID PRIMARY KEY,
		    account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		    address VARCHAR(320) NOT NULL,
		    name VARCHAR(255),
		    raw TEXT,
		    UNIQUE (account_id, address)
		);

		CREATE TABLE IF NOT EXISTS threads (
		    id VARCHAR(255) PRIMARY KEY,
		    account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		    subject TEXT,
		    last_message_date TIMESTAMP WITH TIME ZONE NOT NULL,
		    participant_ids TEXT[] NOT NULL DEFAULT '{}',
		    done BOOLEAN NOT NULL DEFAULT FALSE,
		    inbox_status BOOLEAN NOT NULL DEFAULT FALSE,
		    draft_status BOOLEAN NOT NULL DEFAULT FALSE,
		    sent_status BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE INDEX IF NOT EXISTS idx_threads_account_last_message
		    ON threads(account_id, last_message_date DESC);

		CREATE TABLE IF NOT EXISTS emails (
		    id VARCHAR(255) PRIMARY KEY,
		    thread_id VARCHAR(255) NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
		    created_time TIMESTAMP WITH TIME ZONE NOT NULL,
		    last_modified_time TIMESTAMP WITH TIME ZONE NOT NULL,
		    sent_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    received_at TIMESTAMP WITH TIME ZONE NOT NULL,
		    internet_message_id TEXT,
		    subject TEXT,
		    sys_labels TEXT[] NOT NULL DEFAULT '{}',
		    keywords TEXT[] NOT NULL DEFAULT '{}',
		    sys_classifications TEXT[] NOT NULL DEFAULT '{}',
		    sensitivity VARCHAR(32),
		    meeting_message_method VARCHAR(32),
		    from_id UUID NOT NULL REFERENCES email_addresses(id),
		    has_attachments BOOLEAN NOT NULL DEFAULT FALSE,
		    body TEXT,
		    body_snippet TEXT,
		    in_reply_to TEXT,
		    "references" TEXT,
		    thread_index TEXT,
		    internet_headers JSONB,
		    native_properties JSONB,
		    folder_id TEXT,
		    omitted TEXT[] NOT NULL DEFAULT '{}',
		    email_label VARCHAR(16) NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_emails_thread_sent_at ON emails(thread_id, sent_at DESC);

		CREATE TABLE IF NOT EXISTS email_recipients (
		    email_id VARCHAR(255) NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
		    address_id UUID NOT NULL REFERENCES email_addresses(id),
		    kind VARCHAR(16) NOT NULL,
		    PRIMARY KEY (email_id, address_id, kind)
		);

		CREATE INDEX IF NOT EXISTS idx_email_recipients_email_id ON email_recipients(email_id);

		CREATE TABLE IF NOT EXISTS email_attachments (
		    id VARCHAR(255) PRIMARY KEY,
		    email_id VARCHAR(255) NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
		    name TEXT,
		    mime_type VARCHAR(255),
		    size BIGINT NOT NULL DEFAULT 0,
		    inline BOOLEAN NOT NULL DEFAULT FALSE,
		    content_id TEXT,
		    content TEXT,
		    content_location TEXT
		);
	`
	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Postgres) CreateAccount(ctx context.Context, account models.Account) error {
	query := `
		INSERT INTO accounts (id, email, name, access_token, next_delta_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			access_token = EXCLUDED.access_token
	`
	_, err := s.pool.Exec(ctx, query,
		account.ID, account.Email, account.Name, account.AccessToken, account.NextDeltaToken)
	return err
}

func (s *Postgres) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	query := `SELECT id, email, name, access_token, next_delta_token FROM accounts WHERE id = $1`

	var account models.Account
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.AccessToken,
		&account.NextDeltaToken,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, ErrAccountNotFound
	}
	return account, err
}

func (s *Postgres) SetDeltaToken(ctx context.Context, accountID uuid.UUID, token string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE accounts SET next_delta_token = $1 WHERE id = $2`,
		token, accountID,
	)
	return err
}

// UpsertEmailAddress is a single atomic resolve-or-create on the
// (account_id, address) unique constraint. The display name follows the
// latest sighting.
func (s *Postgres) UpsertEmailAddress(ctx context.Context, accountID uuid.UUID, address, name, raw string) (models.EmailAddress, error) {
	query := `
		INSERT INTO email_addresses (id, account_id, address, name, raw)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, address)
		DO UPDATE SET name = EXCLUDED.name, raw = EXCLUDED.raw
		RETURNING id, account_id, address, name, raw
	`
	var out models.EmailAddress
	err := s.pool.QueryRow(ctx, query, uuid.New(), accountID, address, name, raw).Scan(
		&out.ID, &out.AccountID, &out.Address, &out.Name, &out.Raw,
	)
	return out, err
}

func (s *Postgres) UpsertThread(ctx context.Context, thread models.Thread) error {
	// done and the status flags stick on update: done is user state, the
	// flags are rewritten by UpdateThreadState after reconciliation.
	query := `
		INSERT INTO threads (id, account_id, subject, last_message_date, participant_ids,
			done, inbox_status, draft_status, sent_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			last_message_date = EXCLUDED.last_message_date,
			participant_ids = EXCLUDED.participant_ids
	`
	_, err := s.pool.Exec(ctx, query,
		thread.ID, thread.AccountID, thread.Subject, thread.LastMessageDate,
		uuidStrings(thread.ParticipantIDs),
		thread.Done, thread.InboxStatus, thread.DraftStatus, thread.SentStatus,
	)
	return err
}

func (s *Postgres) UpsertEmail(ctx context.Context, email models.Email, recipients map[models.RecipientKind][]uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO emails (id, thread_id, created_time, last_modified_time, sent_at, received_at,
			internet_message_id, subject, sys_labels, keywords, sys_classifications,
			sensitivity, meeting_message_method, from_id, has_attachments, body, body_snippet,
			in_reply_to, "references", thread_index, internet_headers, native_properties,
			folder_id, omitted, email_label)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25)
		ON CONFLICT (id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			created_time = EXCLUDED.created_time,
			last_modified_time = EXCLUDED.last_modified_time,
			sent_at = EXCLUDED.sent_at,
			received_at = EXCLUDED.received_at,
			internet_message_id = EXCLUDED.internet_message_id,
			subject = EXCLUDED.subject,
			sys_labels = EXCLUDED.sys_labels,
			keywords = EXCLUDED.keywords,
			sys_classifications = EXCLUDED.sys_classifications,
			sensitivity = EXCLUDED.sensitivity,
			meeting_message_method = EXCLUDED.meeting_message_method,
			from_id = EXCLUDED.from_id,
			has_attachments = EXCLUDED.has_attachments,
			body = EXCLUDED.body,
			body_snippet = EXCLUDED.body_snippet,
			in_reply_to = EXCLUDED.in_reply_to,
			"references" = EXCLUDED."references",
			thread_index = EXCLUDED.thread_index,
			internet_headers = EXCLUDED.internet_headers,
			native_properties = EXCLUDED.native_properties,
			folder_id = EXCLUDED.folder_id,
			omitted = EXCLUDED.omitted,
			email_label = EXCLUDED.email_label
	`
	_, err = tx.Exec(ctx, query,
		email.ID, email.ThreadID, email.CreatedTime, email.LastModifiedTime,
		email.SentAt, email.ReceivedAt, email.InternetMessageID, email.Subject,
		email.SysLabels, email.Keywords, email.SysClassifications,
		email.Sensitivity, email.MeetingMessageMethod, email.FromID,
		email.HasAttachments, email.Body, email.BodySnippet, email.InReplyTo,
		email.References, email.ThreadIndex, email.InternetHeaders,
		email.NativeProperties, email.FolderID, email.Omitted, email.EmailLabel,
	)
	if err != nil {
		return fmt.Errorf("upsert email: %w", err)
	}

	// Recipient sets are replaced wholesale to match the provider's current
	// view, never merged.
	if _, err := tx.Exec(ctx, `DELETE FROM email_recipients WHERE email_id = $1`, email.ID); err != nil {
		return fmt.Errorf("clear recipients: %w", err)
	}
	for kind, ids := range recipients {
		for _, id := range ids {
			_, err := tx.Exec(ctx,
				`INSERT INTO email_recipients (email_id, address_id, kind)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (email_id, address_id, kind) DO NOTHING`,
				email.ID, id, string(kind),
			)
			if err != nil {
				return fmt.Errorf("insert recipient: %w", err)
			}
		}
	}

	return tx.Commit(ctx)
}

func (s *Postgres) UpsertAttachment(ctx context.Context, attachment models.EmailAttachment) error {
	query := `
		INSERT INTO email_attachments (id, email_id, name, mime_type, size, inline,
			content_id, content, content_location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			mime_type = EXCLUDED.mime_type,
			size = EXCLUDED.size,
			inline = EXCLUDED.inline,
			content_id = EXCLUDED.content_id,
			content = EXCLUDED.content,
			content_location = EXCLUDED.content_location
	`
	_, err := s.pool.Exec(ctx, query,
		attachment.ID, attachment.EmailID, attachment.Name, attachment.MimeType,
		attachment.Size, attachment.Inline, attachment.ContentID,
		attachment.Content, attachment.ContentLocation,
	)
	return err
}

func (s *Postgres) ThreadMessages(ctx context.Context, threadID string) ([]ThreadMessage, error) {
	query := `SELECT id, sent_at, email_label FROM emails WHERE thread_id = $1 ORDER BY sent_at ASC`

	rows, err := s.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ThreadMessage
	for rows.Next() {
		var m ThreadMessage
		var label string
		if err := rows.Scan(&m.ID, &m.SentAt, &label); err != nil {
			return nil, err
		}
		m.Label = models.EmailLabel(label)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Postgres) ThreadParticipantIDs(ctx context.Context, threadID string) ([]uuid.UUID, error) {
	// Union of senders and to/cc/bcc recipients across the thread's current
	// member emails. Reply-to addresses are not participants.
	query := `
		SELECT DISTINCT address_id FROM (
			SELECT from_id AS address_id FROM emails WHERE thread_id = $1
			UNION
			SELECT r.address_id FROM email_recipients r
			JOIN emails e ON e.id = r.email_id
			WHERE e.thread_id = $1 AND r.kind <> 'reply_to'
		) participants
	`
	rows, err := s.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateThreadState(ctx context.Context, state ThreadState) error {
	query := `
		UPDATE threads SET
			participant_ids = $1,
			last_message_date = $2,
			inbox_status = $3,
			draft_status = $4,
			sent_status = $5
		WHERE id = $6
	`
	_, err := s.pool.Exec(ctx, query,
		uuidStrings(state.ParticipantIDs), state.LastMessageDate,
		state.InboxStatus, state.DraftStatus, state.SentStatus, state.ThreadID,
	)
	return err
}

func (s *Postgres) ListThreads(ctx context.Context, accountID uuid.UUID, folder models.EmailLabel, done bool) ([]models.Thread, error) {
	var flag string
	switch folder {
	case models.LabelDraft:
		flag = "draft_status"
	case models.LabelSent:
		flag = "sent_status"
	default:
		flag = "inbox_status"
	}

	query := fmt.Sprintf(`
		SELECT id, account_id, subject, last_message_date, participant_ids,
			done, inbox_status, draft_status, sent_status
		FROM threads
		WHERE account_id = $1 AND done = $2 AND %s = TRUE
		ORDER BY last_message_date DESC
	`, flag)

	rows, err := s.pool.Query(ctx, query, accountID, done)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Thread
	for rows.Next() {
		var t models.Thread
		var participants []string
		if err := rows.Scan(
			&t.ID, &t.AccountID, &t.Subject, &t.LastMessageDate, &participants,
			&t.Done, &t.InboxStatus, &t.DraftStatus, &t.SentStatus,
		); err != nil {
			return nil, err
		}
		t.ParticipantIDs, err = parseUUIDs(participants)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid participant id %q: %w", s, err)
		}
		out[i] = id
	}
	return out, nil
}
