package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Node is the JSON-RPC surface consumed from an Ethereum-compatible node. Signing is delegated to the
// node's wallet agent through eth_sendTransaction.
type Node interface {
	// Call runs eth_call against the latest block.
	Call(ctx context.Context, from, to Address, data []byte) ([]byte, error)
	// SendTransaction runs eth_sendTransaction; the node signs and broadcasts.
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	// TransactionReceipt returns ethereum.NotFound while the transaction is unmined.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	// PendingNonce runs eth_getTransactionCount with the "pending" tag.
	PendingNonce(ctx context.Context, account Address) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	Balance(ctx context.Context, account Address) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ClientVersion(ctx context.Context) (string, error)
}

// TxRequest is an assembled transaction. It is immutable once handed to SendTransaction.
type TxRequest struct {
	From     Address
	To       Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Nonce    uint64
}

type sendTxArgs struct {
	From     common.Address `json:"from"`
	To       common.Address `json:"to"`
	Data     hexutil.Bytes  `json:"data"`
	Value    *hexutil.Big   `json:"value"`
	Gas      hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big   `json:"gasPrice"`
	Nonce    hexutil.Uint64 `json:"nonce"`
}

func (r TxRequest) args() sendTxArgs {
	value := r.Value
	if value == nil {
		value = new(big.Int)
	}
	gasPrice := r.GasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	return sendTxArgs{
		From:     r.From.Common(),
		To:       r.To.Common(),
		Data:     r.Data,
		Value:    (*hexutil.Big)(value),
		Gas:      hexutil.Uint64(r.GasLimit),
		GasPrice: (*hexutil.Big)(gasPrice),
		Nonce:    hexutil.Uint64(r.Nonce),
	}
}

// RPCNode implements Node over go-ethereum's rpc and ethclient packages.
type RPCNode struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	timeout time.Duration
}

type RPCNodeConfig struct {
	RPCURL  string
	Timeout time.Duration
}

func DialNode(ctx context.Context, cfg RPCNodeConfig) (*RPCNode, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	cli, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial rpc: %v", ErrRPC, err)
	}
	return &RPCNode{
		rpc:     cli,
		eth:     ethclient.NewClient(cli),
		timeout: cfg.Timeout,
	}, nil
}

func (n *RPCNode) Close() {
	n.rpc.Close()
}

func (n *RPCNode) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if n.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, n.timeout)
}

func (n *RPCNode) Call(ctx context.Context, from, to Address, data []byte) ([]byte, error) {
	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	msg := ethereum.CallMsg{To: ptrTo(to.Common()), Data: data}
	if from != "" {
		msg.From = from.Common()
	}
	out, err := n.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, classifyCallError("eth_call", err)
	}
	return out, nil
}

func (n *RPCNode) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	var hash common.Hash
	if err := n.rpc.CallContext(ctx, &hash, "eth_sendTransaction", req.args()); err != nil {
		return common.Hash{}, classifyCallError("eth_sendTransaction", err)
	}
	return hash, nil
}

func (n *RPCNode) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	receipt, err := n.eth.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ethereum.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: eth_getTransactionReceipt: %v", ErrRPC, err)
	}
	return receipt, nil
}

func (n *RPCNode) PendingNonce(ctx context.Context, account Address) (uint64, error) {
	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	nonce, err := n.eth.PendingNonceAt(ctx, account.Common())
	if err != nil {
		return 0, fmt.Errorf("%w: eth_getTransactionCount: %v", ErrRPC, err)
	}
	return nonce, nil
}

func (n *RPCNode) GasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	price, err := n.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: eth_gasPrice: %v", ErrRPC, err)
	}
	return price, nil
}

func (n *RPCNode) Balance(ctx context.Context, account Address) (*big.Int, error) {
	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	bal, err := n.eth.BalanceAt(ctx, account.Common(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: eth_getBalance: %v", ErrRPC, err)
	}
	return bal, nil
}

func (n *RPCNode) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	num, err := n.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: eth_blockNumber: %v", ErrRPC, err)
	}
	return num, nil
}

func (n *RPCNode) ClientVersion(ctx context.Context) (string, error) {
	ctx, cancel := n.withTimeout(ctx)
	defer cancel()

	var version string
	if err := n.rpc.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		return "", fmt.Errorf("%w: web3_clientVersion: %v", ErrRPC, err)
	}
	return version, nil
}

// classifyCallError separates execution reverts, which the node reports as JSON-RPC errors carrying
// revert data or an "execution reverted" message, from transport failures.
func classifyCallError(method string, err error) error {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return fmt.Errorf("%w: %s: %v", ErrContractRevert, method, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "revert") {
		return fmt.Errorf("%w: %s: %v", ErrContractRevert, method, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrRPC, method, err)
}

func ptrTo[T any](v T) *T {
	return &v
}

var _ Node = (*RPCNode)(nil)
