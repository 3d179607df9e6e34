package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Call is a state-changing contract invocation. GasLimit is a fixed per-call-type constant; it is never
// estimated.
type Call struct {
	Kind     string
	To       Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// Observer receives one notification per submission attempt.
type Observer interface {
	ObserveSubmission(kind, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveSubmission(string, string, time.Duration) {}

// Transactor assembles, submits and confirms transactions from one sending account. Nothing is retried:
// a reverted or timed-out transaction is reported and the caller decides whether to invoke again.
type Transactor struct {
	node     Node
	from     Address
	nonces   *NonceManager
	poller   *Poller
	observer Observer
	log      *zap.Logger
}

type TransactorConfig struct {
	From     Address
	Nonces   *NonceManager
	Poller   *Poller
	Observer Observer
}

func NewTransactor(node Node, cfg TransactorConfig, log *zap.Logger) (*Transactor, error) {
	if cfg.From.IsZero() {
		return nil, validationErrorf("sending account is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Nonces == nil {
		cfg.Nonces = NewNonceManager(node)
	}
	if cfg.Poller == nil {
		cfg.Poller = NewPoller(node, PollerConfig{}, log)
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Transactor{
		node:     node,
		from:     cfg.From,
		nonces:   cfg.Nonces,
		poller:   cfg.Poller,
		observer: cfg.Observer,
		log:      log,
	}, nil
}

func (t *Transactor) From() Address {
	return t.from
}

// Submit fetches a fresh nonce and the live gas price, then hands the transaction to the node.
func (t *Transactor) Submit(ctx context.Context, call Call) (common.Hash, error) {
	if call.To.IsZero() {
		return common.Hash{}, validationErrorf("%s: target contract is required", call.Kind)
	}
	if call.GasLimit == 0 {
		return common.Hash{}, validationErrorf("%s: gas limit is required", call.Kind)
	}

	var hash common.Hash
	err := t.nonces.WithNonce(ctx, t.from, func(nonce uint64) error {
		gasPrice, err := t.node.GasPrice(ctx)
		if err != nil {
			return err
		}
		req := TxRequest{
			From:     t.from,
			To:       call.To,
			Data:     call.Data,
			Value:    call.Value,
			GasLimit: call.GasLimit,
			GasPrice: gasPrice,
			Nonce:    nonce,
		}
		hash, err = t.node.SendTransaction(ctx, req)
		if err != nil {
			return err
		}
		t.log.Info("transaction submitted",
			zap.String("kind", call.Kind),
			zap.Stringer("tx", hash),
			zap.Stringer("from", t.from),
			zap.Uint64("nonce", nonce),
			zap.Stringer("gasPrice", gasPrice),
		)
		return nil
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("submit %s: %w", call.Kind, err)
	}
	return hash, nil
}

// Execute submits call and waits for its outcome.
func (t *Transactor) Execute(ctx context.Context, call Call) (*Receipt, error) {
	start := time.Now()
	hash, err := t.Submit(ctx, call)
	if err != nil {
		t.observer.ObserveSubmission(call.Kind, "failed", time.Since(start))
		return nil, err
	}

	receipt, err := t.poller.Wait(ctx, hash)
	outcome, _ := OutcomeOf(err)
	t.observer.ObserveSubmission(call.Kind, outcome.String(), time.Since(start))
	if err != nil {
		t.log.Warn("transaction not confirmed",
			zap.String("kind", call.Kind),
			zap.Stringer("tx", hash),
			zap.Stringer("outcome", outcome),
			zap.Error(err),
		)
		return receipt, err
	}
	return receipt, nil
}
