package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// CallHandler answers an eth_call with decoded arguments and Go-typed return values.
type CallHandler func(args []interface{}) ([]interface{}, error)

// FakeNode is an in-memory Node for tests and local runs without a chain. eth_call is dispatched through
// the registered codecs to per-function handlers; sent transactions become receipts after PendingPolls
// "not found" responses.
type FakeNode struct {
	mu sync.Mutex

	codecs   []*Codec
	handlers map[string]CallHandler
	raw      map[string][]byte
	calls    map[string]int

	sent     []TxRequest
	nonces   map[Address]uint64
	receipts map[common.Hash]*fakeReceipt

	// PendingPolls is how many receipt lookups return not-found before a sent transaction is mined.
	PendingPolls int
	// Revert makes every mined transaction carry a failed status.
	Revert bool
	// NeverMine keeps every sent transaction pending forever.
	NeverMine bool
	// LogsFor attaches logs to the receipt of a sent transaction.
	LogsFor func(req TxRequest) []*types.Log
	// SendErr fails every eth_sendTransaction.
	SendErr error

	GasPriceWei *big.Int
	BalanceWei  *big.Int
	Block       uint64
	Version     string
}

type fakeReceipt struct {
	polls   int
	receipt *types.Receipt
}

func NewFakeNode(codecs ...*Codec) *FakeNode {
	return &FakeNode{
		codecs:      codecs,
		handlers:    make(map[string]CallHandler),
		raw:         make(map[string][]byte),
		calls:       make(map[string]int),
		nonces:      make(map[Address]uint64),
		receipts:    make(map[common.Hash]*fakeReceipt),
		GasPriceWei: big.NewInt(1_000_000_000),
		BalanceWei:  big.NewInt(0),
		Block:       1,
		Version:     "fake/v0.0.0",
	}
}

// Handle registers the handler for a contract function.
func (f *FakeNode) Handle(fn string, h CallHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[fn] = h
}

// Returns makes fn always return values.
func (f *FakeNode) Returns(fn string, values ...interface{}) {
	f.Handle(fn, func([]interface{}) ([]interface{}, error) { return values, nil })
}

// ReturnsRaw makes fn return ret verbatim, bypassing output encoding.
func (f *FakeNode) ReturnsRaw(fn string, ret []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw[fn] = ret
}

// Reverts makes fn fail as an execution revert.
func (f *FakeNode) Reverts(fn string) {
	f.Handle(fn, func([]interface{}) ([]interface{}, error) {
		return nil, fmt.Errorf("execution reverted")
	})
}

// Calls reports how many times an RPC method (e.g. "eth_sendTransaction") or a contract function
// (e.g. "ownerOf") was invoked.
func (f *FakeNode) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// Sent returns the transactions handed to eth_sendTransaction, in order.
func (f *FakeNode) Sent() []TxRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TxRequest, len(f.sent))
	copy(out, f.sent)
	return out
}

// SetNonce sets the pending transaction count reported for account.
func (f *FakeNode) SetNonce(account Address, nonce uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[account] = nonce
}

func (f *FakeNode) Call(_ context.Context, _, _ Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls["eth_call"]++
	var (
		codec  *Codec
		method string
	)
	for _, c := range f.codecs {
		if m, err := c.MethodByID(data); err == nil {
			codec, method = c, m.Name
			break
		}
	}
	if codec == nil {
		f.mu.Unlock()
		return nil, nil
	}
	f.calls[method]++
	raw, hasRaw := f.raw[method]
	h := f.handlers[method]
	f.mu.Unlock()

	if hasRaw {
		return raw, nil
	}
	if h == nil {
		return nil, nil
	}
	m, _ := codec.MethodByID(data)
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: fake node: unpack %s args: %v", ErrRPC, method, err)
	}
	values, err := h(args)
	if err != nil {
		return nil, fmt.Errorf("%w: eth_call: %v", ErrContractRevert, err)
	}
	out, err := codec.EncodeOutput(method, values...)
	if err != nil {
		return nil, fmt.Errorf("%w: fake node: pack %s output: %v", ErrRPC, method, err)
	}
	return out, nil
}

func (f *FakeNode) SendTransaction(_ context.Context, req TxRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["eth_sendTransaction"]++
	if f.SendErr != nil {
		return common.Hash{}, f.SendErr
	}

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], req.Nonce)
	hash := crypto.Keccak256Hash(req.From.Common().Bytes(), nonce[:], req.Data)

	f.sent = append(f.sent, req)
	if req.Nonce+1 > f.nonces[req.From] {
		f.nonces[req.From] = req.Nonce + 1
	}

	status := types.ReceiptStatusSuccessful
	if f.Revert {
		status = types.ReceiptStatusFailed
	}
	var logs []*types.Log
	if f.LogsFor != nil {
		logs = f.LogsFor(req)
	}
	for i, lg := range logs {
		lg.TxHash = hash
		lg.Index = uint(i)
	}
	f.Block++
	f.receipts[hash] = &fakeReceipt{
		receipt: &types.Receipt{
			Status:      status,
			TxHash:      hash,
			Logs:        logs,
			GasUsed:     req.GasLimit / 2,
			BlockNumber: new(big.Int).SetUint64(f.Block),
		},
	}
	return hash, nil
}

func (f *FakeNode) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["eth_getTransactionReceipt"]++
	r, ok := f.receipts[hash]
	if !ok || f.NeverMine {
		return nil, ethereum.NotFound
	}
	if r.polls < f.PendingPolls {
		r.polls++
		return nil, ethereum.NotFound
	}
	return r.receipt, nil
}

func (f *FakeNode) PendingNonce(_ context.Context, account Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["eth_getTransactionCount"]++
	return f.nonces[account], nil
}

func (f *FakeNode) GasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["eth_gasPrice"]++
	return new(big.Int).Set(f.GasPriceWei), nil
}

func (f *FakeNode) Balance(context.Context, Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["eth_getBalance"]++
	return new(big.Int).Set(f.BalanceWei), nil
}

func (f *FakeNode) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["eth_blockNumber"]++
	return f.Block, nil
}

func (f *FakeNode) ClientVersion(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["web3_clientVersion"]++
	return f.Version, nil
}

var _ Node = (*FakeNode)(nil)
