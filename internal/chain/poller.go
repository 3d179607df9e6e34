package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 30
)

// Outcome is the terminal state of a submitted transaction.
type Outcome int

const (
	Confirmed Outcome = iota
	Reverted
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Reverted:
		return "reverted"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// OutcomeOf maps the error returned by Poller.Wait or Transactor.Execute back to an Outcome.
// Errors raised before submission are reported as ok=false.
func OutcomeOf(err error) (outcome Outcome, ok bool) {
	if err == nil {
		return Confirmed, true
	}
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.Outcome, true
	}
	return 0, false
}

// Receipt is the node-reported result of a mined transaction.
type Receipt struct {
	Hash        common.Hash
	OK          bool
	BlockNumber uint64
	GasUsed     uint64
	Logs        []*types.Log
}

func newReceipt(r *types.Receipt) *Receipt {
	out := &Receipt{
		Hash:    r.TxHash,
		OK:      r.Status == types.ReceiptStatusSuccessful,
		GasUsed: r.GasUsed,
		Logs:    r.Logs,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out
}

// Poller waits for a receipt with a fixed interval and a bounded number of attempts.
type Poller struct {
	node        Node
	interval    time.Duration
	maxAttempts int
	clock       clock.Clock
	log         *zap.Logger
}

type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
	Clock       clock.Clock
}

func NewPoller(node Node, cfg PollerConfig, log *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		node:        node,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		clock:       cfg.Clock,
		log:         log,
	}
}

// Timeout is the longest Wait can take, not counting time spent inside RPC calls.
func (p *Poller) Timeout() time.Duration {
	return time.Duration(p.maxAttempts-1) * p.interval
}

// Wait always resolves: a successful receipt returns (receipt, nil), a failed-status receipt returns the
// receipt with a Reverted TxError, and an exhausted budget or cancelled ctx returns a TimedOut TxError.
func (p *Poller) Wait(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		r, err := p.node.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && r != nil:
			receipt := newReceipt(r)
			if !receipt.OK {
				p.log.Warn("transaction reverted",
					zap.Stringer("tx", hash),
					zap.Uint64("block", receipt.BlockNumber),
				)
				return receipt, &TxError{Hash: hash, Outcome: Reverted, Err: ErrContractRevert}
			}
			p.log.Debug("transaction confirmed",
				zap.Stringer("tx", hash),
				zap.Uint64("block", receipt.BlockNumber),
				zap.Int("attempts", attempt),
			)
			return receipt, nil
		case err == nil, errors.Is(err, ethereum.NotFound):
		default:
			lastErr = err
			p.log.Debug("receipt poll failed", zap.Stringer("tx", hash), zap.Int("attempt", attempt), zap.Error(err))
		}

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, &TxError{Hash: hash, Outcome: TimedOut, Err: fmt.Errorf("%w: %w", ErrConfirmationTimeout, ctx.Err())}
		case <-p.clock.After(p.interval):
		}
	}

	err := fmt.Errorf("%w: no receipt after %d attempts", ErrConfirmationTimeout, p.maxAttempts)
	if lastErr != nil {
		err = fmt.Errorf("%w: no receipt after %d attempts (last error: %v)", ErrConfirmationTimeout, p.maxAttempts, lastErr)
	}
	return nil, &TxError{Hash: hash, Outcome: TimedOut, Err: err}
}
