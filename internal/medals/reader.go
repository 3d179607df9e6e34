package medals

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"medalchain/internal/accounts"
	"medalchain/internal/chain"
)

// Stats is the contract-wide medal tally.
type Stats struct {
	Gold   uint64 `json:"gold"`
	Silver uint64 `json:"silver"`
	Bronze uint64 `json:"bronze"`
}

// Reader runs read-only queries against the medal contract.
type Reader struct {
	node     chain.Node
	codec    *chain.Codec
	contract chain.Address
	log      *zap.Logger
}

func NewReader(node chain.Node, contract chain.Address, log *zap.Logger) (*Reader, error) {
	if contract.IsZero() {
		return nil, fmt.Errorf("%w: medal contract address is required", chain.ErrValidation)
	}
	c, err := Codec()
	if err != nil {
		return nil, fmt.Errorf("medal abi: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{
		node:     node,
		codec:    c,
		contract: contract,
		log:      log,
	}, nil
}

// UserMedals returns the on-chain counts for user. Total is taken from the contract as-is.
func (r *Reader) UserMedals(ctx context.Context, user chain.Address) (accounts.MedalCounts, error) {
	user, err := chain.Normalize(string(user))
	if err != nil {
		return accounts.MedalCounts{}, err
	}
	values, err := r.call(ctx, "getUserMedals", user.Common())
	if err != nil {
		return accounts.MedalCounts{}, err
	}
	n, err := uint64s(values, 4)
	if err != nil {
		return accounts.MedalCounts{}, fmt.Errorf("getUserMedals: %w", err)
	}
	return accounts.MedalCounts{Gold: n[0], Silver: n[1], Bronze: n[2], Total: n[3]}, nil
}

func (r *Reader) GlobalStats(ctx context.Context) (Stats, error) {
	values, err := r.call(ctx, "getGlobalStats")
	if err != nil {
		return Stats{}, err
	}
	n, err := uint64s(values, 3)
	if err != nil {
		return Stats{}, fmt.Errorf("getGlobalStats: %w", err)
	}
	return Stats{Gold: n[0], Silver: n[1], Bronze: n[2]}, nil
}

func (r *Reader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.codec.Encode(method, args...)
	if err != nil {
		return nil, err
	}
	ret, err := r.node.Call(ctx, "", r.contract, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	values, err := r.codec.Decode(method, ret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return values, nil
}

func uint64s(values []interface{}, want int) ([]uint64, error) {
	if len(values) != want {
		return nil, fmt.Errorf("%w: got %d values, want %d", chain.ErrContractRevert, len(values), want)
	}
	out := make([]uint64, want)
	for i, v := range values {
		n, err := chain.Uint64Value(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
