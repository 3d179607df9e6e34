package nft

import (
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"medalchain/internal/chain"
)

const (
	eventNftMinted = "NftMinted"
	eventTransfer  = "Transfer"
)

// Minted is the collection's NftMinted event.
type Minted struct {
	TokenID *big.Int
	Owner   chain.Address
	Minter  chain.Address
}

// Transferred is the ERC-721 Transfer event. A mint is a transfer from the zero address.
type Transferred struct {
	From    chain.Address
	To      chain.Address
	TokenID *big.Int
}

func (t Transferred) IsMint() bool {
	return t.From.IsZero()
}

// Event is one of Minted or Transferred.
type Event interface {
	isEvent()
}

func (Minted) isEvent()      {}
func (Transferred) isEvent() {}

// DecodeEvent turns a collection log into a typed event, dispatching on the signature topic.
// Logs of other events return chain.ErrUnknownEvent.
func DecodeEvent(codec *chain.Codec, lg *types.Log) (Event, error) {
	name, fields, err := codec.UnpackLog(lg)
	if err != nil {
		return nil, err
	}
	switch name {
	case eventNftMinted:
		var ev Minted
		if ev.TokenID, err = chain.BigValue(fields["tokenId"]); err != nil {
			return nil, err
		}
		if ev.Owner, err = chain.AddressValue(fields["owner"]); err != nil {
			return nil, err
		}
		if ev.Minter, err = chain.AddressValue(fields["minter"]); err != nil {
			return nil, err
		}
		return ev, nil
	case eventTransfer:
		var ev Transferred
		if ev.From, err = chain.AddressValue(fields["from"]); err != nil {
			return nil, err
		}
		if ev.To, err = chain.AddressValue(fields["to"]); err != nil {
			return nil, err
		}
		if ev.TokenID, err = chain.BigValue(fields["tokenId"]); err != nil {
			return nil, err
		}
		return ev, nil
	}
	return nil, chain.ErrUnknownEvent
}

// MintedTokenID scans receipt logs emitted by contract for the minted token id. NftMinted wins over a
// Transfer from the zero address. ok is false if neither is present.
func MintedTokenID(codec *chain.Codec, contract chain.Address, logs []*types.Log) (id *big.Int, ok bool) {
	var fromTransfer *big.Int
	for _, lg := range logs {
		if lg == nil || lg.Address != contract.Common() {
			continue
		}
		ev, err := DecodeEvent(codec, lg)
		if err != nil {
			continue
		}
		switch ev := ev.(type) {
		case Minted:
			return ev.TokenID, true
		case Transferred:
			if ev.IsMint() && fromTransfer == nil {
				fromTransfer = ev.TokenID
			}
		}
	}
	return fromTransfer, fromTransfer != nil
}
