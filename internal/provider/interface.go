package provider

import (
	"context"

	"github.com/postwing/postwing/internal/models"
)

// StartSyncResponse is the result of a start-sync call. When the provider is
// still building its change stream Ready is false and the call should be
// repeated after a delay; SyncUpdatedToken is the bookmark delta token once
// Ready is true.
type StartSyncResponse struct {
	Ready            bool   `json:"ready"`
	SyncUpdatedToken string `json:"syncUpdatedToken"`
}

// FetchParams selects what a fetch-updated call returns. Exactly one of
// DeltaToken or PageToken is set: a delta token opens a new result set, a
// page token continues one.
type FetchParams struct {
	DeltaToken string
	PageToken  string
}

// UpdatedPage is one page of changed messages. NextPageToken is empty on the
// final page; NextDeltaToken, when present, supersedes any earlier one.
type UpdatedPage struct {
	Records        []models.Message `json:"records"`
	NextDeltaToken string           `json:"nextDeltaToken,omitempty"`
	NextPageToken  string           `json:"nextPageToken,omitempty"`
}

// OutgoingMessage is a message to send through the provider.
type OutgoingMessage struct {
	From       models.MessageAddress   `json:"from"`
	Subject    string                  `json:"subject"`
	Body       string                  `json:"body"`
	To         []models.MessageAddress `json:"to"`
	Cc         []models.MessageAddress `json:"cc,omitempty"`
	Bcc        []models.MessageAddress `json:"bcc,omitempty"`
	ReplyTo    []models.MessageAddress `json:"replyTo,omitempty"`
	InReplyTo  string                  `json:"inReplyTo,omitempty"`
	References string                  `json:"references,omitempty"`
	ThreadID   string                  `json:"threadId,omitempty"`
}

// SendResult identifies a sent message.
type SendResult struct {
	ID string `json:"id"`
}

// Client is the typed surface of the remote mail API. All calls authenticate
// with the bearer credential stored on the account.
type Client interface {
	// StartSync asks the provider to (re)build the mailbox change stream.
	StartSync(ctx context.Context, account models.Account) (StartSyncResponse, error)

	// FetchUpdated returns one page of messages changed since the given
	// delta token, or the next page of an open result set.
	FetchUpdated(ctx context.Context, account models.Account, params FetchParams) (UpdatedPage, error)

	// SendMessage submits an outgoing message.
	SendMessage(ctx context.Context, account models.Account, msg OutgoingMessage) (SendResult, error)
}
