package models

import (
	"encoding/json"
	"time"
)

// MessageAddress is a participant as the provider reports it. Address may be
// empty for malformed senders; the upsert engine skips such messages.
type MessageAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Raw     string `json:"raw,omitempty"`
}

// MessageHeader is one raw internet header, carried opaquely.
type MessageHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MessageAttachment is an attachment as delivered by the provider.
type MessageAttachment struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	MimeType        string `json:"mimeType"`
	Size            int64  `json:"size"`
	Inline          bool   `json:"inline"`
	ContentID       string `json:"contentId,omitempty"`
	Content         string `json:"content,omitempty"`
	ContentLocation string `json:"contentLocation,omitempty"`
}

// Message is one raw provider message as returned by the updated-since-token
// fetch. It is the input to the upsert engine and the indexer; everything the
// relational model does not interpret is carried through opaquely.
type Message struct {
	ID                   string              `json:"id"`
	ThreadID             string              `json:"threadId"`
	CreatedTime          time.Time           `json:"createdTime"`
	ReceivedAt           time.Time           `json:"receivedAt"`
	SentAt               time.Time           `json:"sentAt"`
	InternetMessageID    string              `json:"internetMessageId"`
	Subject              string              `json:"subject"`
	SysLabels            []string            `json:"sysLabels"`
	Keywords             []string            `json:"keywords"`
	SysClassifications   []string            `json:"sysClassifications"`
	Sensitivity          string              `json:"sensitivity"`
	MeetingMessageMethod string              `json:"meetingMessageMethod,omitempty"`
	From                 MessageAddress      `json:"from"`
	To                   []MessageAddress    `json:"to"`
	Cc                   []MessageAddress    `json:"cc"`
	Bcc                  []MessageAddress    `json:"bcc"`
	ReplyTo              []MessageAddress    `json:"replyTo"`
	HasAttachments       bool                `json:"hasAttachments"`
	Body                 string              `json:"body"`
	BodySnippet          string              `json:"bodySnippet"`
	InReplyTo            string              `json:"inReplyTo,omitempty"`
	References           string              `json:"references,omitempty"`
	ThreadIndex          string              `json:"threadIndex,omitempty"`
	InternetHeaders      []MessageHeader     `json:"internetHeaders,omitempty"`
	NativeProperties     json.RawMessage     `json:"nativeProperties,omitempty"`
	FolderID             string              `json:"folderId,omitempty"`
	Omitted              []string            `json:"omitted,omitempty"`
	Attachments          []MessageAttachment `json:"attachments,omitempty"`
}

// Classify derives the email label from the provider system labels with the
// precedence draft > sent > inbox. "important" counts as inbox; anything
// unrecognized defaults to inbox.
func (m Message) Classify() EmailLabel {
	has := func(label string) bool {
		for _, l := range m.SysLabels {
			if l == label {
				return true
			}
		}
		return false
	}
	switch {
	case has("draft"):
		return LabelDraft
	case has("sent"):
		return LabelSent
	default:
		return LabelInbox
	}
}
