package chain

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// PermissionChecker runs a read-only contract query of shape f(address) -> (bool).
type PermissionChecker struct {
	node     Node
	codec    *Codec
	contract Address
	method   string
	log      *zap.Logger
}

func NewPermissionChecker(node Node, codec *Codec, contract Address, method string, log *zap.Logger) *PermissionChecker {
	if log == nil {
		log = zap.NewNop()
	}
	return &PermissionChecker{
		node:     node,
		codec:    codec,
		contract: contract,
		method:   method,
		log:      log,
	}
}

// Allowed reports whether account holds the permission. A revert or a malformed or empty response
// counts as no permission. Only transport failures are returned as errors.
func (p *PermissionChecker) Allowed(ctx context.Context, account Address) (bool, error) {
	data, err := p.codec.Encode(p.method, account.Common())
	if err != nil {
		return false, err
	}
	ret, err := p.node.Call(ctx, "", p.contract, data)
	if err != nil {
		if errors.Is(err, ErrRPC) {
			return false, err
		}
		p.log.Debug("permission query reverted", zap.String("method", p.method), zap.Stringer("account", account), zap.Error(err))
		return false, nil
	}
	values, err := p.codec.Decode(p.method, ret)
	if err != nil {
		p.log.Debug("permission query undecodable", zap.String("method", p.method), zap.Stringer("account", account), zap.Error(err))
		return false, nil
	}
	allowed, err := BoolValue(values[0])
	if err != nil {
		return false, nil
	}
	return allowed, nil
}
