package medals

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"medalchain/internal/chain"
)

const eventMedalsDistributed = "MedalsDistributed"

// Distributed is the MedalsDistributed event emitted by a confirmed distribution.
type Distributed struct {
	User   chain.Address `json:"user"`
	Gold   uint64        `json:"gold"`
	Silver uint64        `json:"silver"`
	Bronze uint64        `json:"bronze"`
}

// FindDistributed returns the first MedalsDistributed event emitted by contract, or nil if none is present.
func FindDistributed(codec *chain.Codec, contract chain.Address, logs []*types.Log) (*Distributed, error) {
	for _, lg := range logs {
		if lg == nil || lg.Address != contract.Common() {
			continue
		}
		name, fields, err := codec.UnpackLog(lg)
		if errors.Is(err, chain.ErrUnknownEvent) || name != eventMedalsDistributed {
			continue
		}
		if err != nil {
			return nil, err
		}
		return decodeDistributed(fields)
	}
	return nil, nil
}

func decodeDistributed(fields map[string]interface{}) (*Distributed, error) {
	user, err := chain.AddressValue(fields["user"])
	if err != nil {
		return nil, fmt.Errorf("medals distributed user: %w", err)
	}
	var counts [3]uint64
	for i, key := range []string{"gold", "silver", "bronze"} {
		if counts[i], err = chain.Uint64Value(fields[key]); err != nil {
			return nil, fmt.Errorf("medals distributed %s: %w", key, err)
		}
	}
	return &Distributed{User: user, Gold: counts[0], Silver: counts[1], Bronze: counts[2]}, nil
}
