package chain

import (
	"context"
	"math/big"
)

// Status is a snapshot of the node as seen from one account.
type Status struct {
	ClientVersion string   `json:"clientVersion"`
	BlockNumber   uint64   `json:"blockNumber"`
	Account       Address  `json:"account"`
	Balance       *big.Int `json:"balanceWei"`
}

// Probe reads web3_clientVersion, eth_blockNumber and eth_getBalance for account.
func Probe(ctx context.Context, node Node, account Address) (Status, error) {
	version, err := node.ClientVersion(ctx)
	if err != nil {
		return Status{}, err
	}
	block, err := node.BlockNumber(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{ClientVersion: version, BlockNumber: block, Account: account}
	if account.IsZero() {
		return st, nil
	}
	bal, err := node.Balance(ctx, account)
	if err != nil {
		return Status{}, err
	}
	st.Balance = bal
	return st, nil
}
