package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	testSender   = MustNormalize("0x36e4418dafb9d1e5fff7408f5a57981e240c8f8e")
	testContract = MustNormalize("0x59be1932048f76f9b0e8e5f6accf5fd8d53136dd")
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) ObserveSubmission(kind, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, kind+":"+outcome)
}

func newTestTransactor(t *testing.T, node *FakeNode, obs Observer) *Transactor {
	t.Helper()
	log := zaptest.NewLogger(t)
	tx, err := NewTransactor(node, TransactorConfig{
		From:     testSender,
		Poller:   NewPoller(node, PollerConfig{Interval: time.Millisecond, MaxAttempts: 5}, log),
		Observer: obs,
	}, log)
	require.NoError(t, err)
	return tx
}

func TestTransactorExecuteAssemblesRequest(t *testing.T) {
	node := NewFakeNode()
	node.SetNonce(testSender, 7)
	node.GasPriceWei = big.NewInt(42)
	obs := &recordingObserver{}
	tx := newTestTransactor(t, node, obs)

	receipt, err := tx.Execute(context.Background(), Call{
		Kind:     "distribute",
		To:       testContract,
		Data:     []byte{0xde, 0xad},
		Value:    big.NewInt(5),
		GasLimit: 300_000,
	})
	require.NoError(t, err)
	require.True(t, receipt.OK)

	sent := node.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testSender, sent[0].From)
	assert.Equal(t, testContract, sent[0].To)
	assert.Equal(t, uint64(7), sent[0].Nonce)
	assert.Equal(t, uint64(300_000), sent[0].GasLimit)
	assert.Equal(t, int64(42), sent[0].GasPrice.Int64())
	assert.Equal(t, int64(5), sent[0].Value.Int64())
	assert.Equal(t, []string{"distribute:confirmed"}, obs.outcomes)
}

func TestTransactorFetchesNonceAndGasPriceEachTime(t *testing.T) {
	node := NewFakeNode()
	tx := newTestTransactor(t, node, nil)

	for i := 0; i < 3; i++ {
		_, err := tx.Submit(context.Background(), Call{Kind: "k", To: testContract, GasLimit: 21_000})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, node.Calls("eth_getTransactionCount"))
	assert.Equal(t, 3, node.Calls("eth_gasPrice"))

	sent := node.Sent()
	require.Len(t, sent, 3)
	for i, req := range sent {
		assert.Equal(t, uint64(i), req.Nonce)
	}
}

func TestTransactorConcurrentSubmissionsGetDistinctNonces(t *testing.T) {
	node := NewFakeNode()
	tx := newTestTransactor(t, node, nil)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tx.Submit(context.Background(), Call{Kind: "k", To: testContract, GasLimit: 21_000})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, req := range node.Sent() {
		assert.False(t, seen[req.Nonce], "nonce %d reused", req.Nonce)
		seen[req.Nonce] = true
	}
	assert.Len(t, seen, n)
}

func TestTransactorDoesNotRetry(t *testing.T) {
	node := NewFakeNode()
	node.Revert = true
	obs := &recordingObserver{}
	tx := newTestTransactor(t, node, obs)

	receipt, err := tx.Execute(context.Background(), Call{Kind: "mint", To: testContract, GasLimit: 21_000})
	assert.ErrorIs(t, err, ErrContractRevert)
	require.NotNil(t, receipt)
	assert.Equal(t, 1, node.Calls("eth_sendTransaction"))
	assert.Equal(t, []string{"mint:reverted"}, obs.outcomes)
}

func TestTransactorTimeoutIsSurfaced(t *testing.T) {
	node := NewFakeNode()
	node.NeverMine = true
	tx := newTestTransactor(t, node, nil)

	_, err := tx.Execute(context.Background(), Call{Kind: "mint", To: testContract, GasLimit: 21_000})
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Equal(t, 1, node.Calls("eth_sendTransaction"))
}

func TestTransactorSubmitFailure(t *testing.T) {
	node := NewFakeNode()
	node.SendErr = errors.New("wallet locked")
	obs := &recordingObserver{}
	tx := newTestTransactor(t, node, obs)

	_, err := tx.Execute(context.Background(), Call{Kind: "mint", To: testContract, GasLimit: 21_000})
	require.Error(t, err)
	_, resolved := OutcomeOf(err)
	assert.False(t, resolved)
	assert.Equal(t, []string{"mint:failed"}, obs.outcomes)

	node.SendErr = nil
	_, err = tx.Submit(context.Background(), Call{Kind: "mint", To: testContract, GasLimit: 21_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), node.Sent()[0].Nonce, "a failed submission must not burn a nonce")
}

func TestTransactorValidatesCall(t *testing.T) {
	node := NewFakeNode()
	tx := newTestTransactor(t, node, nil)

	_, err := tx.Submit(context.Background(), Call{Kind: "k", GasLimit: 1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = tx.Submit(context.Background(), Call{Kind: "k", To: testContract})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, node.Calls("eth_sendTransaction"))

	_, err = NewTransactor(node, TransactorConfig{}, nil)
	assert.ErrorIs(t, err, ErrValidation)
}
