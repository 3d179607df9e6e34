package nft

import (
	_ "embed"
	"sync"

	"medalchain/internal/chain"
)

//go:embed nft_abi.json
var nftABIJSON []byte

var (
	codec     *chain.Codec
	codecOnce sync.Once
	errCodec  error
)

// Codec returns the NFT contract codec, parsed once from the embedded ABI.
func Codec() (*chain.Codec, error) {
	codecOnce.Do(func() {
		codec, errCodec = chain.NewCodec("NftCollection", nftABIJSON)
	})
	return codec, errCodec
}
