package medals

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"medalchain/internal/chain"
)

func newTestDistributor(t *testing.T, node *chain.FakeNode, guard *chain.KeyedMutex) *Distributor {
	t.Helper()
	d, err := NewDistributor(node, newTestTransactor(t, node), DistributorConfig{
		Contract: medalContract,
		Guard:    guard,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return d
}

func TestDistributeZeroAwardConfirms(t *testing.T) {
	node := chain.NewFakeNode(testCodec(t))
	node.Returns("distributors", true)
	node.LogsFor = medalsLogs(t)
	d := newTestDistributor(t, node, nil)

	res, err := d.Distribute(context.Background(), alice, Award{})
	require.NoError(t, err)
	require.NotNil(t, res.Event)
	assert.Equal(t, Distributed{User: alice}, *res.Event)
	assert.NotEqual(t, common.Hash{}, res.TxHash)

	sent := node.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, medalContract, sent[0].To)
	assert.Equal(t, distributor, sent[0].From)
	assert.Equal(t, DefaultGasLimit, sent[0].GasLimit)
}

func TestDistributeEncodesCall(t *testing.T) {
	node := chain.NewFakeNode(testCodec(t))
	node.Returns("distributors", true)
	node.LogsFor = medalsLogs(t)
	d := newTestDistributor(t, node, nil)

	res, err := d.Distribute(context.Background(), "0x70997970C51812DC3A010C7D01B50E0D17DC79C8", Award{Gold: 1, Silver: 2, Bronze: 3})
	require.NoError(t, err)
	assert.Equal(t, Distributed{User: alice, Gold: 1, Silver: 2, Bronze: 3}, *res.Event)

	m, err := testCodec(t).MethodByID(node.Sent()[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "distributeMedals", m.Name)
	args, err := m.Inputs.Unpack(node.Sent()[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, alice.Common(), args[0])
	assert.Equal(t, int64(3), args[3].(*big.Int).Int64())
}

func TestDistributeRepeatedCallsAreNotDeduplicated(t *testing.T) {
	node := chain.NewFakeNode(testCodec(t))
	node.Returns("distributors", true)
	d := newTestDistributor(t, node, nil)

	for i := 0; i < 2; i++ {
		_, err := d.Distribute(context.Background(), alice, Award{Gold: 1})
		require.NoError(t, err)
	}
	sent := node.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0].Nonce+1, sent[1].Nonce)
}

func TestDistributePermissionDenied(t *testing.T) {
	for name, setup := range map[string]func(*chain.FakeNode){
		"false":  func(n *chain.FakeNode) { n.Returns("distributors", false) },
		"revert": func(n *chain.FakeNode) { n.Reverts("distributors") },
		"empty":  func(n *chain.FakeNode) {},
	} {
		t.Run(name, func(t *testing.T) {
			node := chain.NewFakeNode(testCodec(t))
			setup(node)
			d := newTestDistributor(t, node, nil)

			_, err := d.Distribute(context.Background(), alice, Award{Gold: 1})
			assert.ErrorIs(t, err, chain.ErrPermissionDenied)
			assert.Zero(t, node.Calls("eth_sendTransaction"))
			assert.Zero(t, node.Calls("eth_gasPrice"))
			assert.Zero(t, node.Calls("eth_getTransactionCount"))
		})
	}
}

func TestDistributeRevertSurfacesTxError(t *testing.T) {
	node := chain.NewFakeNode(testCodec(t))
	node.Returns("distributors", true)
	node.Revert = true
	d := newTestDistributor(t, node, nil)

	_, err := d.Distribute(context.Background(), alice, Award{Bronze: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrContractRevert)

	var txErr *chain.TxError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, chain.Reverted, txErr.Outcome)
	assert.Equal(t, 1, node.Calls("eth_sendTransaction"))
}

func TestDistributeValidation(t *testing.T) {
	node := chain.NewFakeNode(testCodec(t))
	node.Returns("distributors", true)
	d := newTestDistributor(t, node, nil)

	for _, to := range []chain.Address{"", "0xnope", "0x0000000000000000000000000000000000000000"} {
		_, err := d.Distribute(context.Background(), to, Award{Gold: 1})
		assert.ErrorIs(t, err, chain.ErrValidation, "to=%q", to)
	}
	assert.Zero(t, node.Calls("eth_call"))
}

func TestDistributeWaitsForRecipientGuard(t *testing.T) {
	node := chain.NewFakeNode(testCodec(t))
	node.Returns("distributors", true)
	guard := chain.NewKeyedMutex()
	d := newTestDistributor(t, node, guard)

	unlock := guard.Lock(alice)
	done := make(chan error, 1)
	go func() {
		_, err := d.Distribute(context.Background(), alice, Award{Gold: 1})
		done <- err
	}()

	assert.Never(t, func() bool { return node.Calls("eth_sendTransaction") > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	unlock()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("distribution did not resume after the guard was released")
	}
	assert.Equal(t, 1, node.Calls("eth_sendTransaction"))
}
