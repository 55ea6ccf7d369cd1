package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/postwing/postwing/internal/models"
	"github.com/postwing/postwing/internal/store"
)

// UpsertEngine normalizes one raw provider message into the relational
// model. Re-upserting the identical message any number of times yields the
// same final row state.
type UpsertEngine struct {
	store      store.Store
	reconciler *ThreadReconciler
	log        *slog.Logger
}

func NewUpsertEngine(s store.Store, log *slog.Logger) *UpsertEngine {
	return &UpsertEngine{
		store:      s,
		reconciler: NewThreadReconciler(s),
		log:        log,
	}
}

// NormalizeAddress canonicalizes an address string for the
// (account, address) unique key.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Upsert stores one message: resolves all referenced addresses, upserts the
// owning thread and the email row, replaces the recipient sets wholesale,
// upserts attachments, then reconciles the thread. A *MissingSenderError is
// returned when the sender cannot be resolved; the caller skips the message.
func (e *UpsertEngine) Upsert(ctx context.Context, accountID uuid.UUID, msg models.Message) error {
	label := msg.Classify()

	// Resolve every distinct address the message references. Duplicates
	// within one message collapse onto the same row; the latest sighting
	// wins the display name.
	distinct := make(map[string]models.MessageAddress)
	for _, addr := range gatherAddresses(msg) {
		key := NormalizeAddress(addr.Address)
		if key == "" {
			continue
		}
		distinct[key] = addr
	}

	resolved := make(map[string]models.EmailAddress, len(distinct))
	for key, addr := range distinct {
		row, err := e.store.UpsertEmailAddress(ctx, accountID, key, addr.Name, addr.Raw)
		if err != nil {
			return fmt.Errorf("resolve address %q: %w", key, err)
		}
		resolved[key] = row
	}

	from, ok := resolved[NormalizeAddress(msg.From.Address)]
	if !ok {
		return &MissingSenderError{MessageID: msg.ID}
	}

	toIDs := resolveSet(resolved, msg.To)
	ccIDs := resolveSet(resolved, msg.Cc)
	bccIDs := resolveSet(resolved, msg.Bcc)
	replyToIDs := resolveSet(resolved, msg.ReplyTo)

	thread := models.Thread{
		ID:              msg.ThreadID,
		AccountID:       accountID,
		Subject:         msg.Subject,
		LastMessageDate: msg.SentAt,
		ParticipantIDs:  unionIDs(from.ID, toIDs, ccIDs, bccIDs),
		Done:            false,
		InboxStatus:     label == models.LabelInbox,
		DraftStatus:     label == models.LabelDraft,
		SentStatus:      label == models.LabelSent,
	}
	if err := e.store.UpsertThread(ctx, thread); err != nil {
		return fmt.Errorf("upsert thread %s: %w", msg.ThreadID, err)
	}

	email := models.Email{
		ID:                   msg.ID,
		ThreadID:             msg.ThreadID,
		CreatedTime:          msg.CreatedTime,
		LastModifiedTime:     time.Now().UTC(),
		SentAt:               msg.SentAt,
		ReceivedAt:           msg.ReceivedAt,
		InternetMessageID:    msg.InternetMessageID,
		Subject:              msg.Subject,
		SysLabels:            msg.SysLabels,
		Keywords:             msg.Keywords,
		SysClassifications:   msg.SysClassifications,
		Sensitivity:          msg.Sensitivity,
		MeetingMessageMethod: msg.MeetingMessageMethod,
		FromID:               from.ID,
		HasAttachments:       msg.HasAttachments,
		Body:                 msg.Body,
		BodySnippet:          msg.BodySnippet,
		InReplyTo:            msg.InReplyTo,
		References:           msg.References,
		ThreadIndex:          msg.ThreadIndex,
		InternetHeaders:      marshalHeaders(msg.InternetHeaders),
		NativeProperties:     []byte(msg.NativeProperties),
		FolderID:             msg.FolderID,
		Omitted:              msg.Omitted,
		EmailLabel:           label,
	}
	recipients := map[models.RecipientKind][]uuid.UUID{
		models.RecipientTo:      toIDs,
		models.RecipientCc:      ccIDs,
		models.RecipientBcc:     bccIDs,
		models.RecipientReplyTo: replyToIDs,
	}
	if err := e.store.UpsertEmail(ctx, email, recipients); err != nil {
		return fmt.Errorf("upsert email %s: %w", msg.ID, err)
	}

	for _, att := range msg.Attachments {
		if att.ID == "" {
			continue
		}
		attachment := models.EmailAttachment{
			ID:              att.ID,
			EmailID:         msg.ID,
			Name:            att.Name,
			MimeType:        att.MimeType,
			Size:            att.Size,
			Inline:          att.Inline,
			ContentID:       att.ContentID,
			Content:         att.Content,
			ContentLocation: att.ContentLocation,
		}
		if err := e.store.UpsertAttachment(ctx, attachment); err != nil {
			e.log.Warn("failed to upsert attachment",
				"email_id", msg.ID, "attachment_id", att.ID, "err", err)
		}
	}

	if err := e.reconciler.Reconcile(ctx, msg.ThreadID); err != nil {
		return fmt.Errorf("reconcile thread %s: %w", msg.ThreadID, err)
	}
	return nil
}

func gatherAddresses(msg models.Message) []models.MessageAddress {
	out := make([]models.MessageAddress, 0, 1+len(msg.To)+len(msg.Cc)+len(msg.Bcc)+len(msg.ReplyTo))
	out = append(out, msg.From)
	out = append(out, msg.To...)
	out = append(out, msg.Cc...)
	out = append(out, msg.Bcc...)
	out = append(out, msg.ReplyTo...)
	return out
}

func resolveSet(resolved map[string]models.EmailAddress, addrs []models.MessageAddress) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(addrs))
	out := make([]uuid.UUID, 0, len(addrs))
	for _, a := range addrs {
		row, ok := resolved[NormalizeAddress(a.Address)]
		if !ok || seen[row.ID] {
			continue
		}
		seen[row.ID] = true
		out = append(out, row.ID)
	}
	return out
}

func unionIDs(from uuid.UUID, sets ...[]uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]bool{from: true}
	out := []uuid.UUID{from}
	for _, set := range sets {
		for _, id := range set {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func marshalHeaders(headers []models.MessageHeader) []byte {
	if len(headers) == 0 {
		return nil
	}
	raw, err := json.Marshal(headers)
	if err != nil {
		return nil
	}
	return raw
}
