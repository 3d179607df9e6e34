package medals

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"medalchain/internal/accounts"
	"medalchain/internal/chain"
)

type syncRecorder struct {
	mu      sync.Mutex
	synced  []int
	failed  []int
	elapsed []time.Duration
}

func (r *syncRecorder) ObserveSync(synced, failed int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced = append(r.synced, synced)
	r.failed = append(r.failed, failed)
	r.elapsed = append(r.elapsed, elapsed)
}

func (r *syncRecorder) runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.synced)
}

func newSyncFixture(t *testing.T) (*chain.FakeNode, *accounts.MemoryStore, *Reader) {
	t.Helper()
	node := chain.NewFakeNode(testCodec(t))
	node.Handle("getUserMedals", func(args []interface{}) ([]interface{}, error) {
		if args[0].(common.Address) == bob.Common() {
			return nil, assert.AnError
		}
		return []interface{}{big.NewInt(4), big.NewInt(0), big.NewInt(1), big.NewInt(5)}, nil
	})
	store := accounts.NewMemoryStore()
	require.NoError(t, store.Register(context.Background(), alice, "Alice"))
	require.NoError(t, store.Register(context.Background(), bob, "Bob"))

	r, err := NewReader(node, medalContract, zaptest.NewLogger(t))
	require.NoError(t, err)
	return node, store, r
}

func TestSyncOnceSkipsFailingAccounts(t *testing.T) {
	node, store, reader := newSyncFixture(t)
	rec := &syncRecorder{}
	mock := clock.NewMock()
	s := NewScheduler(reader, store, SchedulerConfig{Clock: mock, Observer: rec}, zaptest.NewLogger(t))

	report := s.SyncOnce(context.Background())
	assert.Equal(t, SyncReport{Synced: 1, Failed: 1}, report)

	got, err := store.Get(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, accounts.MedalCounts{Gold: 4, Bronze: 1, Total: 5}, got.Medals)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.True(t, got.SyncedAt.Equal(mock.Now()))

	got, err = store.Get(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, accounts.MedalCounts{}, got.Medals)

	assert.Equal(t, 2, node.Calls("getUserMedals"))
	assert.Zero(t, node.Calls("eth_sendTransaction"))
	assert.Equal(t, []int{1}, rec.synced)
	assert.Equal(t, []int{1}, rec.failed)
}

func TestSchedulerRunTicks(t *testing.T) {
	node, store, reader := newSyncFixture(t)
	rec := &syncRecorder{}
	mock := clock.NewMock()
	s := NewScheduler(reader, store, SchedulerConfig{Interval: time.Minute, Clock: mock, Observer: rec}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		mock.Add(time.Minute)
		return rec.runs() >= 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, node.Calls("getUserMedals"), 4)
}

func TestSyncWaitsForDistributionGuard(t *testing.T) {
	_, store, reader := newSyncFixture(t)
	guard := chain.NewKeyedMutex()
	s := NewScheduler(reader, store, SchedulerConfig{Guard: guard, Clock: clock.NewMock()}, nil)

	unlock := guard.Lock(alice)
	done := make(chan SyncReport, 1)
	go func() { done <- s.SyncOnce(context.Background()) }()

	assert.Never(t, func() bool {
		acct, err := store.Get(context.Background(), alice)
		return err == nil && acct.Medals.Total > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
	unlock()

	select {
	case report := <-done:
		assert.Equal(t, SyncReport{Synced: 1, Failed: 1}, report)
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not resume after the guard was released")
	}
}

func TestSyncPicksUpDistributedRecipients(t *testing.T) {
	node := chain.NewFakeNode(testCodec(t))
	node.Returns("distributors", true)
	node.LogsFor = medalsLogs(t)
	node.Returns("getUserMedals", big.NewInt(2), big.NewInt(1), big.NewInt(0), big.NewInt(3))

	store := accounts.NewMemoryStore()
	guard := chain.NewKeyedMutex()
	d, err := NewDistributor(node, newTestTransactor(t, node), DistributorConfig{
		Contract: medalContract,
		Guard:    guard,
		Accounts: store,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	reader, err := NewReader(node, medalContract, zaptest.NewLogger(t))
	require.NoError(t, err)
	s := NewScheduler(reader, store, SchedulerConfig{Guard: guard, Clock: clock.NewMock()}, zaptest.NewLogger(t))

	assert.Equal(t, SyncReport{}, s.SyncOnce(context.Background()), "nothing to sync before any distribution")

	_, err = d.Distribute(context.Background(), alice, Award{Gold: 2, Silver: 1})
	require.NoError(t, err)

	assert.Equal(t, SyncReport{Synced: 1}, s.SyncOnce(context.Background()))
	got, err := store.Get(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, accounts.MedalCounts{Gold: 2, Silver: 1, Total: 3}, got.Medals)
	assert.Equal(t, accounts.UnknownName, accounts.DisplayName(context.Background(), store, alice))
}

func TestFailedDistributionRecordsNoRecipient(t *testing.T) {
	node := chain.NewFakeNode(testCodec(t))
	node.Returns("distributors", true)
	node.Revert = true
	store := accounts.NewMemoryStore()
	d, err := NewDistributor(node, newTestTransactor(t, node), DistributorConfig{
		Contract: medalContract,
		Accounts: store,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = d.Distribute(context.Background(), alice, Award{Gold: 1})
	require.Error(t, err)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
