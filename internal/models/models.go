package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailLabel is the derived classification of a message, computed once at
// upsert time from the provider's system labels.
type EmailLabel string

const (
	LabelInbox EmailLabel = "inbox"
	LabelSent  EmailLabel = "sent"
	LabelDraft EmailLabel = "draft"
)

// Account is one linked mailbox. NextDeltaToken is nil until the first full
// sync has completed; it is only ever written after a page has been fully
// processed.
type Account struct {
	ID             uuid.UUID `db:"id"`
	Email          string    `db:"email"`
	Name           string    `db:"name"`
	AccessToken    string    `db:"access_token"`
	NextDeltaToken *string   `db:"next_delta_token"`
}

// EmailAddress is one participant identity, unique per (account, address).
// Created on first sighting and never deleted; the display name follows the
// most recent sighting.
type EmailAddress struct {
	ID        uuid.UUID `db:"id"`
	AccountID uuid.UUID `db:"account_id"`
	Address   string    `db:"address"`
	Name      string    `db:"name"`
	Raw       string    `db:"raw"`
}

// Thread groups related messages under the provider-assigned thread id.
// The status flags and participant set are owned by the sync pipeline and
// always reflect the newest member email by SentAt. Done is user state and
// is never touched after creation.
type Thread struct {
	ID              string      `db:"id"`
	AccountID       uuid.UUID   `db:"account_id"`
	Subject         string      `db:"subject"`
	LastMessageDate time.Time   `db:"last_message_date"`
	ParticipantIDs  []uuid.UUID `db:"participant_ids"`
	Done            bool        `db:"done"`
	InboxStatus     bool        `db:"inbox_status"`
	DraftStatus     bool        `db:"draft_status"`
	SentStatus      bool        `db:"sent_status"`
}

// Email is the canonical message row, keyed by the provider message id.
type Email struct {
	ID                   string     `db:"id"`
	ThreadID             string     `db:"thread_id"`
	CreatedTime          time.Time  `db:"created_time"`
	LastModifiedTime     time.Time  `db:"last_modified_time"`
	SentAt               time.Time  `db:"sent_at"`
	ReceivedAt           time.Time  `db:"received_at"`
	InternetMessageID    string     `db:"internet_message_id"`
	Subject              string     `db:"subject"`
	SysLabels            []string   `db:"sys_labels"`
	Keywords             []string   `db:"keywords"`
	SysClassifications   []string   `db:"sys_classifications"`
	Sensitivity          string     `db:"sensitivity"`
	MeetingMessageMethod string     `db:"meeting_message_method"`
	FromID               uuid.UUID  `db:"from_id"`
	HasAttachments       bool       `db:"has_attachments"`
	Body                 string     `db:"body"`
	BodySnippet          string     `db:"body_snippet"`
	InReplyTo            string     `db:"in_reply_to"`
	References           string     `db:"references"`
	ThreadIndex          string     `db:"thread_index"`
	InternetHeaders      []byte     `db:"internet_headers"`
	NativeProperties     []byte     `db:"native_properties"`
	FolderID             string     `db:"folder_id"`
	Omitted              []string   `db:"omitted"`
	EmailLabel           EmailLabel `db:"email_label"`
}

// RecipientKind distinguishes the recipient sets attached to an email.
type RecipientKind string

const (
	RecipientTo      RecipientKind = "to"
	RecipientCc      RecipientKind = "cc"
	RecipientBcc     RecipientKind = "bcc"
	RecipientReplyTo RecipientKind = "reply_to"
)

// EmailAttachment belongs to exactly one email, keyed by the provider
// attachment id. Content carries inline bytes (base64 from the provider) or
// ContentLocation points at the remote copy.
type EmailAttachment struct {
	ID              string `db:"id"`
	EmailID         string `db:"email_id"`
	Name            string `db:"name"`
	MimeType        string `db:"mime_type"`
	Size            int64  `db:"size"`
	Inline          bool   `db:"inline"`
	ContentID       string `db:"content_id"`
	Content         string `db:"content"`
	ContentLocation string `db:"content_location"`
}
