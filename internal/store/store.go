package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/postwing/postwing/internal/models"
)

// ThreadMessage is the slice of an email row the reconciler needs: enough to
// find the newest member by SentAt and its label.
type ThreadMessage struct {
	ID     string
	SentAt time.Time
	Label  models.EmailLabel
}

// ThreadState is the derived thread state written back after reconciliation.
type ThreadState struct {
	ThreadID        string
	ParticipantIDs  []uuid.UUID
	LastMessageDate time.Time
	InboxStatus     bool
	DraftStatus     bool
	SentStatus      bool
}

// Store is the persistence surface of the sync pipeline. Implementations
// must make UpsertEmailAddress a single atomic resolve-or-create keyed by
// the (account_id, address) unique constraint.
type Store interface {
	CreateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	SetDeltaToken(ctx context.Context, accountID uuid.UUID, token string) error

	UpsertEmailAddress(ctx context.Context, accountID uuid.UUID, address, name, raw string) (models.EmailAddress, error)
	UpsertThread(ctx context.Context, thread models.Thread) error
	UpsertEmail(ctx context.Context, email models.Email, recipients map[models.RecipientKind][]uuid.UUID) error
	UpsertAttachment(ctx context.Context, attachment models.EmailAttachment) error

	ThreadMessages(ctx context.Context, threadID string) ([]ThreadMessage, error)
	ThreadParticipantIDs(ctx context.Context, threadID string) ([]uuid.UUID, error)
	UpdateThreadState(ctx context.Context, state ThreadState) error

	ListThreads(ctx context.Context, accountID uuid.UUID, folder models.EmailLabel, done bool) ([]models.Thread, error)
}
