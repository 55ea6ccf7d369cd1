package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postwing/postwing/internal/models"
	"github.com/postwing/postwing/internal/provider"
)

type fakeProvider struct {
	mu         stdsync.Mutex
	startQueue []provider.StartSyncResponse
	pages      map[string]provider.UpdatedPage
	failKeys   map[string]error
	startCalls int
	fetchCalls []provider.FetchParams
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		pages:    make(map[string]provider.UpdatedPage),
		failKeys: make(map[string]error),
	}
}

func deltaKey(token string) string { return "delta:" + token }
func pageKey(token string) string  { return "page:" + token }

func (f *fakeProvider) StartSync(ctx context.Context, account models.Account) (provider.StartSyncResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if len(f.startQueue) == 0 {
		return provider.StartSyncResponse{}, nil
	}
	resp := f.startQueue[0]
	if len(f.startQueue) > 1 {
		f.startQueue = f.startQueue[1:]
	}
	return resp, nil
}

func (f *fakeProvider) FetchUpdated(ctx context.Context, account models.Account, params provider.FetchParams) (provider.UpdatedPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, params)

	key := deltaKey(params.DeltaToken)
	if params.PageToken != "" {
		key = pageKey(params.PageToken)
	}
	if err, ok := f.failKeys[key]; ok {
		return provider.UpdatedPage{}, err
	}
	page, ok := f.pages[key]
	if !ok {
		return provider.UpdatedPage{}, fmt.Errorf("no page for %s", key)
	}
	return page, nil
}

func (f *fakeProvider) SendMessage(ctx context.Context, account models.Account, msg provider.OutgoingMessage) (provider.SendResult, error) {
	return provider.SendResult{ID: "sent-1"}, nil
}

type fakeIndexer struct {
	mu      stdsync.Mutex
	indexed []string
	failIDs map[string]bool
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{failIDs: make(map[string]bool)}
}

func (f *fakeIndexer) Index(ctx context.Context, accountID uuid.UUID, msg models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[msg.ID] {
		return fmt.Errorf("embedding backend unavailable")
	}
	f.indexed = append(f.indexed, msg.ID)
	return nil
}

func testCoordinator(st *memStore, p provider.Client, ix MessageIndexer) *Coordinator {
	return NewCoordinator(st, p, ix, Config{
		NotReadyMaxAttempts: 5,
		NotReadyDelay:       time.Millisecond,
		IndexWorkers:        3,
	}, testLogger())
}

func testAccount(st *memStore, token string) models.Account {
	account := models.Account{
		ID:          uuid.New(),
		Email:       "ada@example.com",
		AccessToken: "tok",
	}
	if token != "" {
		account.NextDeltaToken = &token
	}
	st.accounts[account.ID] = account
	return account
}

func TestInitialSyncDrainsAllPages(t *testing.T) {
	st := newMemStore()
	p := newFakeProvider()
	ix := newFakeIndexer()

	p.startQueue = []provider.StartSyncResponse{
		{Ready: false},
		{Ready: false},
		{Ready: true, SyncUpdatedToken: "bookmark"},
	}
	p.pages[deltaKey("bookmark")] = provider.UpdatedPage{
		Records: []models.Message{
			message("m1", "t1", testEpoch, []string{"inbox"}, addr("Ada", "ada@example.com"), addr("Grace", "grace@example.com")),
			message("m2", "t1", testEpoch.Add(time.Hour), []string{"inbox"}, addr("Grace", "grace@example.com"), addr("Ada", "ada@example.com")),
		},
		NextPageToken: "p2",
	}
	p.pages[pageKey("p2")] = provider.UpdatedPage{
		Records: []models.Message{
			message("m3", "t2", testEpoch.Add(2*time.Hour), []string{"sent"}, addr("Ada", "ada@example.com"), addr("Alan", "alan@example.com")),
		},
		NextDeltaToken: "delta-final",
	}

	c := testCoordinator(st, p, ix)
	account := testAccount(st, "")

	result, err := c.InitialSync(context.Background(), account)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, "delta-final", result.DeltaToken)
	assert.Equal(t, "delta-final", st.persistedToken(account.ID))
	assert.Equal(t, 3, p.startCalls)
	assert.ElementsMatch(t, []string{"m1", "m2", "m3"}, ix.indexed)

	_, ok := st.email("m3")
	assert.True(t, ok)
}

func TestInitialSyncNotReadyBudgetExhausted(t *testing.T) {
	st := newMemStore()
	p := newFakeProvider()
	p.startQueue = []provider.StartSyncResponse{{Ready: false}}

	c := NewCoordinator(st, p, newFakeIndexer(), Config{
		NotReadyMaxAttempts: 3,
		NotReadyDelay:       time.Millisecond,
	}, testLogger())
	account := testAccount(st, "")

	_, err := c.InitialSync(context.Background(), account)
	require.ErrorIs(t, err, ErrSyncNotReady)
	assert.Equal(t, 3, p.startCalls)
	assert.Empty(t, st.tokenWrites)
}

func TestIncrementalRequiresDeltaToken(t *testing.T) {
	st := newMemStore()
	p := newFakeProvider()
	c := testCoordinator(st, p, newFakeIndexer())
	account := testAccount(st, "")

	_, err := c.IncrementalSync(context.Background(), account)
	require.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, p.fetchCalls)
	assert.Empty(t, st.tokenWrites)
}

func TestDeltaTokenKeptWhenNoneReturned(t *testing.T) {
	st := newMemStore()
	p := newFakeProvider()
	p.pages[deltaKey("prior")] = provider.UpdatedPage{
		Records: []models.Message{
			message("m1", "t1", testEpoch, []string{"inbox"}, addr("Ada", "ada@example.com"), addr("Grace", "grace@example.com")),
		},
	}

	c := testCoordinator(st, p, newFakeIndexer())
	account := testAccount(st, "prior")

	result, err := c.IncrementalSync(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "prior", result.DeltaToken)
	assert.Equal(t, "prior", st.persistedToken(account.ID))
}

func TestIndexFailureDoesNotBlockPage(t *testing.T) {
	st := newMemStore()
	p := newFakeProvider()
	ix := newFakeIndexer()
	ix.failIDs["m2"] = true

	p.pages[deltaKey("prior")] = provider.UpdatedPage{
		Records: []models.Message{
			message("m1", "t1", testEpoch, []string{"inbox"}, addr("Ada", "ada@example.com"), addr("Grace", "grace@example.com")),
			message("m2", "t1", testEpoch.Add(time.Hour), []string{"inbox"}, addr("Grace", "grace@example.com"), addr("Ada", "ada@example.com")),
		},
		NextDeltaToken: "next",
	}

	c := testCoordinator(st, p, ix)
	account := testAccount(st, "prior")

	result, err := c.IncrementalSync(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.IndexFailures)
	assert.Equal(t, "next", st.persistedToken(account.ID))

	// relational state stands even though indexing failed
	_, ok := st.email("m2")
	assert.True(t, ok)
}

func TestSkippedMessageDoesNotAbortPage(t *testing.T) {
	st := newMemStore()
	p := newFakeProvider()
	ix := newFakeIndexer()

	broken := message("m1", "t1", testEpoch, []string{"inbox"},
		models.MessageAddress{}, addr("Grace", "grace@example.com"))
	p.pages[deltaKey("prior")] = provider.UpdatedPage{
		Records: []models.Message{
			broken,
			message("m2", "t1", testEpoch.Add(time.Hour), []string{"inbox"}, addr("Grace", "grace@example.com"), addr("Ada", "ada@example.com")),
		},
		NextDeltaToken: "next",
	}

	c := testCoordinator(st, p, ix)
	account := testAccount(st, "prior")

	result, err := c.IncrementalSync(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "next", st.persistedToken(account.ID))
	assert.Equal(t, []string{"m2"}, ix.indexed)
}

func TestFetchFailureKeepsCommittedToken(t *testing.T) {
	st := newMemStore()
	p := newFakeProvider()
	p.pages[deltaKey("prior")] = provider.UpdatedPage{
		Records: []models.Message{
			message("m1", "t1", testEpoch, []string{"inbox"}, addr("Ada", "ada@example.com"), addr("Grace", "grace@example.com")),
		},
		NextDeltaToken: "d1",
		NextPageToken:  "p2",
	}
	p.failKeys[pageKey("p2")] = &provider.TransientError{Op: "GET", Err: errors.New("503")}

	c := testCoordinator(st, p, newFakeIndexer())
	account := testAccount(st, "prior")

	_, err := c.IncrementalSync(context.Background(), account)
	var transient *provider.TransientError
	require.ErrorAs(t, err, &transient)

	// first page was committed before the failure
	assert.Equal(t, "d1", st.persistedToken(account.ID))
	_, ok := st.email("m1")
	assert.True(t, ok)
}
