package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/postwing/postwing/internal/models"
	"github.com/postwing/postwing/internal/store"
)

// memStore is an in-memory store.Store for pipeline tests. It mirrors the
// Postgres implementation's semantics: atomic address upsert on
// (account, address), sticky done/status flags on thread update, wholesale
// recipient replacement.
type memStore struct {
	mu          stdsync.Mutex
	accounts    map[uuid.UUID]models.Account
	addresses   map[string]models.EmailAddress
	threads     map[string]models.Thread
	emails      map[string]models.Email
	recipients  map[string]map[models.RecipientKind][]uuid.UUID
	attachments map[string]models.EmailAttachment
	tokenWrites []string
}

func newMemStore() *memStore {
	return &memStore{
		accounts:    make(map[uuid.UUID]models.Account),
		addresses:   make(map[string]models.EmailAddress),
		threads:     make(map[string]models.Thread),
		emails:      make(map[string]models.Email),
		recipients:  make(map[string]map[models.RecipientKind][]uuid.UUID),
		attachments: make(map[string]models.EmailAttachment),
	}
}

func addressKey(accountID uuid.UUID, address string) string {
	return accountID.String() + "|" + address
}

func (m *memStore) CreateAccount(ctx context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return nil
}

func (m *memStore) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return models.Account{}, store.ErrAccountNotFound
	}
	return account, nil
}

func (m *memStore) SetDeltaToken(ctx context.Context, accountID uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := m.accounts[accountID]
	account.ID = accountID
	account.NextDeltaToken = &token
	m.accounts[accountID] = account
	m.tokenWrites = append(m.tokenWrites, token)
	return nil
}

func (m *memStore) UpsertEmailAddress(ctx context.Context, accountID uuid.UUID, address, name, raw string) (models.EmailAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := addressKey(accountID, address)
	if existing, ok := m.addresses[key]; ok {
		existing.Name = name
		existing.Raw = raw
		m.addresses[key] = existing
		return existing, nil
	}
	row := models.EmailAddress{
		ID:        uuid.New(),
		AccountID: accountID,
		Address:   address,
		Name:      name,
		Raw:       raw,
	}
	m.addresses[key] = row
	return row, nil
}

func (m *memStore) UpsertThread(ctx context.Context, thread models.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.threads[thread.ID]; ok {
		existing.Subject = thread.Subject
		existing.LastMessageDate = thread.LastMessageDate
		existing.ParticipantIDs = thread.ParticipantIDs
		m.threads[thread.ID] = existing
		return nil
	}
	m.threads[thread.ID] = thread
	return nil
}

func (m *memStore) UpsertEmail(ctx context.Context, email models.Email, recipients map[models.RecipientKind][]uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails[email.ID] = email
	replaced := make(map[models.RecipientKind][]uuid.UUID, len(recipients))
	for kind, ids := range recipients {
		replaced[kind] = append([]uuid.UUID(nil), ids...)
	}
	m.recipients[email.ID] = replaced
	return nil
}

func (m *memStore) UpsertAttachment(ctx context.Context, attachment models.EmailAttachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[attachment.ID] = attachment
	return nil
}

func (m *memStore) ThreadMessages(ctx context.Context, threadID string) ([]store.ThreadMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.ThreadMessage
	for _, email := range m.emails {
		if email.ThreadID == threadID {
			out = append(out, store.ThreadMessage{
				ID:     email.ID,
				SentAt: email.SentAt,
				Label:  email.EmailLabel,
			})
		}
	}
	return out, nil
}

func (m *memStore) ThreadParticipantIDs(ctx context.Context, threadID string) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, email := range m.emails {
		if email.ThreadID != threadID {
			continue
		}
		add(email.FromID)
		for kind, ids := range m.recipients[email.ID] {
			if kind == models.RecipientReplyTo {
				continue
			}
			for _, id := range ids {
				add(id)
			}
		}
	}
	return out, nil
}

func (m *memStore) UpdateThreadState(ctx context.Context, state store.ThreadState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread, ok := m.threads[state.ThreadID]
	if !ok {
		return nil
	}
	thread.ParticipantIDs = state.ParticipantIDs
	thread.LastMessageDate = state.LastMessageDate
	thread.InboxStatus = state.InboxStatus
	thread.DraftStatus = state.DraftStatus
	thread.SentStatus = state.SentStatus
	m.threads[state.ThreadID] = thread
	return nil
}

func (m *memStore) ListThreads(ctx context.Context, accountID uuid.UUID, folder models.EmailLabel, done bool) ([]models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Thread
	for _, t := range m.threads {
		if t.AccountID != accountID || t.Done != done {
			continue
		}
		switch folder {
		case models.LabelDraft:
			if !t.DraftStatus {
				continue
			}
		case models.LabelSent:
			if !t.SentStatus {
				continue
			}
		default:
			if !t.InboxStatus {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// addressRowCount reports how many address rows exist for an account.
func (m *memStore) addressRowCount(accountID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.addresses {
		if a.AccountID == accountID {
			count++
		}
	}
	return count
}

func (m *memStore) thread(id string) (models.Thread, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	return t, ok
}

func (m *memStore) email(id string) (models.Email, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[id]
	return e, ok
}

func (m *memStore) persistedToken(accountID uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := m.accounts[accountID]
	if account.NextDeltaToken == nil {
		return ""
	}
	return *account.NextDeltaToken
}

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
