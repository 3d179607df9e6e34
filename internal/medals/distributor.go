package medals

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"medalchain/internal/accounts"
	"medalchain/internal/chain"
)

// DefaultGasLimit is the fixed gas budget of one distributeMedals transaction.
const DefaultGasLimit uint64 = 300_000

// Award is the number of medals of each grade to add to a recipient. Zero is valid for every grade.
type Award struct {
	Gold   uint64 `json:"gold"`
	Silver uint64 `json:"silver"`
	Bronze uint64 `json:"bronze"`
}

// Distribution is the confirmed result of a distributeMedals transaction.
type Distribution struct {
	TxHash      common.Hash  `json:"txHash"`
	BlockNumber uint64       `json:"blockNumber"`
	GasUsed     uint64       `json:"gasUsed"`
	Event       *Distributed `json:"event,omitempty"`
}

// Distributor awards medals from the transactor's account. Calls are additive on-chain and are not
// deduplicated here; callers that need at-most-once semantics must key their own requests.
type Distributor struct {
	tx         *chain.Transactor
	permission *chain.PermissionChecker
	codec      *chain.Codec
	contract   chain.Address
	guard      *chain.KeyedMutex
	accounts   accounts.Store
	gasLimit   uint64
	log        *zap.Logger
}

type DistributorConfig struct {
	Contract chain.Address
	GasLimit uint64
	// Guard serializes work per recipient with the sync scheduler. Optional.
	Guard *chain.KeyedMutex
	// Accounts records every confirmed recipient so the sync scheduler picks it up. Optional.
	Accounts accounts.Store
}

func NewDistributor(node chain.Node, tx *chain.Transactor, cfg DistributorConfig, log *zap.Logger) (*Distributor, error) {
	if cfg.Contract.IsZero() {
		return nil, fmt.Errorf("%w: medal contract address is required", chain.ErrValidation)
	}
	c, err := Codec()
	if err != nil {
		return nil, fmt.Errorf("medal abi: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.Guard == nil {
		cfg.Guard = chain.NewKeyedMutex()
	}
	return &Distributor{
		tx:         tx,
		permission: chain.NewPermissionChecker(node, c, cfg.Contract, "distributors", log),
		codec:      c,
		contract:   cfg.Contract,
		guard:      cfg.Guard,
		accounts:   cfg.Accounts,
		gasLimit:   cfg.GasLimit,
		log:        log,
	}, nil
}

// Distribute checks the distributor permission, then submits distributeMedals(to, gold, silver, bronze)
// and waits for confirmation. Reverted and timed-out transactions surface as *chain.TxError.
func (d *Distributor) Distribute(ctx context.Context, to chain.Address, award Award) (*Distribution, error) {
	to, err := chain.Normalize(string(to))
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		return nil, fmt.Errorf("%w: recipient is the zero address", chain.ErrValidation)
	}

	allowed, err := d.permission.Allowed(ctx, d.tx.From())
	if err != nil {
		return nil, fmt.Errorf("check distributor permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s is not a medal distributor", chain.ErrPermissionDenied, d.tx.From())
	}

	data, err := d.codec.Encode("distributeMedals", to.Common(),
		new(big.Int).SetUint64(award.Gold),
		new(big.Int).SetUint64(award.Silver),
		new(big.Int).SetUint64(award.Bronze),
	)
	if err != nil {
		return nil, err
	}

	unlock := d.guard.Lock(to)
	defer unlock()

	receipt, err := d.tx.Execute(ctx, chain.Call{
		Kind:     "distribute",
		To:       d.contract,
		Data:     data,
		GasLimit: d.gasLimit,
	})
	if err != nil {
		return nil, err
	}

	out := &Distribution{
		TxHash:      receipt.Hash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
	}
	ev, err := FindDistributed(d.codec, d.contract, receipt.Logs)
	if err != nil {
		d.log.Warn("undecodable MedalsDistributed event", zap.Stringer("tx", receipt.Hash), zap.Error(err))
	}
	out.Event = ev

	if d.accounts != nil {
		// Confirmed on-chain already; store errors are logged only.
		if err := d.accounts.Ensure(ctx, to); err != nil {
			d.log.Warn("record medal recipient", zap.Stringer("to", to), zap.Error(err))
		}
	}

	d.log.Info("medals distributed",
		zap.Stringer("to", to),
		zap.Uint64("gold", award.Gold),
		zap.Uint64("silver", award.Silver),
		zap.Uint64("bronze", award.Bronze),
		zap.Stringer("tx", receipt.Hash),
	)
	return out, nil
}
