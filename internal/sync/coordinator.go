package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/postwing/postwing/internal/models"
	"github.com/postwing/postwing/internal/provider"
	"github.com/postwing/postwing/internal/store"
)

// MessageIndexer writes one message's search document. Failures are per
// message: they are counted and skipped, never fatal to the page.
type MessageIndexer interface {
	Index(ctx context.Context, accountID uuid.UUID, msg models.Message) error
}

// Config holds the coordinator knobs.
type Config struct {
	// NotReadyMaxAttempts bounds the start-sync "not ready" polling loop.
	NotReadyMaxAttempts int
	// NotReadyDelay is the fixed delay between start-sync attempts.
	NotReadyDelay time.Duration
	// IndexWorkers bounds concurrent embedding/index calls per page.
	IndexWorkers int
}

func (c Config) withDefaults() Config {
	if c.NotReadyMaxAttempts <= 0 {
		c.NotReadyMaxAttempts = 60
	}
	if c.NotReadyDelay <= 0 {
		c.NotReadyDelay = 2 * time.Second
	}
	if c.IndexWorkers <= 0 {
		c.IndexWorkers = 5
	}
	return c
}

// RunResult summarizes one sync run.
type RunResult struct {
	Processed     int
	Skipped       int
	IndexFailures int
	DeltaToken    string
}

// Coordinator drives full and incremental syncs for accounts. Runs for the
// same account are serialized; different accounts sync independently.
type Coordinator struct {
	store    store.Store
	provider provider.Client
	indexer  MessageIndexer
	engine   *UpsertEngine
	cfg      Config
	log      *slog.Logger

	mu    stdsync.Mutex
	locks map[uuid.UUID]*stdsync.Mutex
}

func NewCoordinator(s store.Store, p provider.Client, ix MessageIndexer, cfg Config, log *slog.Logger) *Coordinator {
	return &Coordinator{
		store:    s,
		provider: p,
		indexer:  ix,
		engine:   NewUpsertEngine(s, log),
		cfg:      cfg.withDefaults(),
		log:      log,
		locks:    make(map[uuid.UUID]*stdsync.Mutex),
	}
}

// accountLock returns the mutex serializing sync runs for one account. The
// delta token is the only mutable state shared across runs of an account
// and is protected here, not by database locking.
func (c *Coordinator) accountLock(id uuid.UUID) *stdsync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[id]
	if !ok {
		lock = &stdsync.Mutex{}
		c.locks[id] = lock
	}
	return lock
}

// SyncAccount runs an initial sync if the account has no delta token yet,
// an incremental sync otherwise.
func (c *Coordinator) SyncAccount(ctx context.Context, account models.Account) (RunResult, error) {
	if account.NextDeltaToken == nil || *account.NextDeltaToken == "" {
		return c.InitialSync(ctx, account)
	}
	return c.IncrementalSync(ctx, account)
}

// InitialSync performs the first full sync: polls start-sync until the
// provider reports ready, takes the bookmark delta token, then drains all
// pages.
func (c *Coordinator) InitialSync(ctx context.Context, account models.Account) (RunResult, error) {
	lock := c.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	log := c.log.With("account_id", account.ID.String())
	log.Info("starting initial sync")

	start, err := c.waitUntilReady(ctx, account, log)
	if err != nil {
		return RunResult{}, err
	}

	result, err := c.drainPages(ctx, account, start.SyncUpdatedToken, log)
	if err != nil {
		return result, err
	}
	log.Info("initial sync complete",
		"processed", result.Processed, "skipped", result.Skipped,
		"index_failures", result.IndexFailures)
	return result, nil
}

// IncrementalSync fetches everything changed since the account's persisted
// delta token. Fails fast with ErrNotReady when no token exists yet.
func (c *Coordinator) IncrementalSync(ctx context.Context, account models.Account) (RunResult, error) {
	if account.NextDeltaToken == nil || *account.NextDeltaToken == "" {
		return RunResult{}, ErrNotReady
	}

	lock := c.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	log := c.log.With("account_id", account.ID.String())
	log.Info("starting incremental sync", "delta_token", *account.NextDeltaToken)

	result, err := c.drainPages(ctx, account, *account.NextDeltaToken, log)
	if err != nil {
		return result, err
	}
	log.Info("incremental sync complete",
		"processed", result.Processed, "skipped", result.Skipped,
		"index_failures", result.IndexFailures)
	return result, nil
}

// waitUntilReady repeats start-sync on a fixed delay while the provider
// reports not ready. The original protocol has no ceiling; one is imposed
// here so a run cannot block forever.
func (c *Coordinator) waitUntilReady(ctx context.Context, account models.Account, log *slog.Logger) (provider.StartSyncResponse, error) {
	for attempt := 1; attempt <= c.cfg.NotReadyMaxAttempts; attempt++ {
		resp, err := c.provider.StartSync(ctx, account)
		if err != nil {
			return provider.StartSyncResponse{}, err
		}
		if resp.Ready {
			return resp, nil
		}
		log.Info("sync not ready, waiting", "attempt", attempt)

		select {
		case <-ctx.Done():
			return provider.StartSyncResponse{}, ctx.Err()
		case <-time.After(c.cfg.NotReadyDelay):
		}
	}
	return provider.StartSyncResponse{}, ErrSyncNotReady
}

// drainPages streams all pages of a result set through the upsert engine and
// the indexer. The delta token is persisted only after a page's messages are
// durably processed; a later page's token supersedes an earlier one. A fetch
// failure abandons the remaining pages without advancing past the last
// committed token.
func (c *Coordinator) drainPages(ctx context.Context, account models.Account, deltaToken string, log *slog.Logger) (RunResult, error) {
	result := RunResult{DeltaToken: deltaToken}
	params := provider.FetchParams{DeltaToken: deltaToken}

	for {
		page, err := c.provider.FetchUpdated(ctx, account, params)
		if err != nil {
			return result, err
		}

		processed, skipped, indexFailures := c.processPage(ctx, account, page.Records, log)
		result.Processed += processed
		result.Skipped += skipped
		result.IndexFailures += indexFailures

		if page.NextDeltaToken != "" {
			result.DeltaToken = page.NextDeltaToken
		}
		if err := c.store.SetDeltaToken(ctx, account.ID, result.DeltaToken); err != nil {
			return result, fmt.Errorf("persist delta token: %w", err)
		}

		if page.NextPageToken == "" {
			return result, nil
		}
		log.Info("fetching next page", "fetched", result.Processed+result.Skipped)
		params = provider.FetchParams{PageToken: page.NextPageToken}
	}
}

// processPage upserts a page's messages sequentially, then indexes the
// successfully upserted ones with a bounded worker pool. Per-message
// failures are counted, never propagated.
func (c *Coordinator) processPage(ctx context.Context, account models.Account, msgs []models.Message, log *slog.Logger) (processed, skipped, indexFailures int) {
	indexable := make([]models.Message, 0, len(msgs))
	for _, msg := range msgs {
		err := c.engine.Upsert(ctx, account.ID, msg)
		var missing *MissingSenderError
		switch {
		case err == nil:
			processed++
			indexable = append(indexable, msg)
		case errors.As(err, &missing):
			skipped++
			log.Warn("skipping message without resolvable sender", "message_id", msg.ID)
		default:
			skipped++
			log.Error("failed to upsert message", "message_id", msg.ID, "err", err)
		}
	}

	var failures atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.IndexWorkers)
	for _, msg := range indexable {
		msg := msg
		g.Go(func() error {
			if err := c.indexer.Index(gctx, account.ID, msg); err != nil {
				failures.Add(1)
				log.Warn("failed to index message", "message_id", msg.ID, "err", err)
			}
			return nil
		})
	}
	g.Wait()

	return processed, skipped, int(failures.Load())
}
