package sync

import (
	"errors"
	"fmt"
)

// ErrNotReady reports an incremental sync attempted before the account's
// initial sync has persisted a delta token.
var ErrNotReady = errors.New("account has no delta token; initial sync required")

// ErrSyncNotReady reports that the provider never reported the change stream
// ready within the retry budget. Safe to retry the whole run later.
var ErrSyncNotReady = errors.New("provider sync not ready within retry budget")

// MissingSenderError reports a message whose from-address could not be
// resolved. The message is skipped; the page continues.
type MissingSenderError struct {
	MessageID string
}

func (e *MissingSenderError) Error() string {
	return fmt.Sprintf("message %s: sender address missing or unresolvable", e.MessageID)
}
