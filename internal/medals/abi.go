package medals

import (
	_ "embed"
	"sync"

	"medalchain/internal/chain"
)

//go:embed medal_abi.json
var medalABIJSON []byte

var (
	codec     *chain.Codec
	codecOnce sync.Once
	errCodec  error
)

// Codec returns the medal contract codec, parsed once from the embedded ABI.
func Codec() (*chain.Codec, error) {
	codecOnce.Do(func() {
		codec, errCodec = chain.NewCodec("MedalSystem", medalABIJSON)
	})
	return codec, errCodec
}
