package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testABI = `[
  {"type":"function","name":"hasMintPermission","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getUserMedals","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"gold","type":"uint256"},{"name":"silver","type":"uint256"},
              {"name":"bronze","type":"uint256"},{"name":"total","type":"uint256"}]},
  {"type":"function","name":"getNftMetadata","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"name","type":"string"},{"name":"description","type":"string"},
              {"name":"imageData","type":"string"},{"name":"attributes","type":"string"},
              {"name":"mintTime","type":"uint256"},{"name":"minter","type":"address"},
              {"name":"creator","type":"address"}]},
  {"type":"function","name":"distributeMedals","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"gold","type":"uint256"},
             {"name":"silver","type":"uint256"},{"name":"bronze","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"NftMinted","anonymous":false,
   "inputs":[{"name":"tokenId","type":"uint256","indexed":true},
             {"name":"owner","type":"address","indexed":true},
             {"name":"minter","type":"address","indexed":true}]},
  {"type":"event","name":"MedalsDistributed","anonymous":false,
   "inputs":[{"name":"user","type":"address","indexed":true},{"name":"gold","type":"uint256","indexed":false},
             {"name":"silver","type":"uint256","indexed":false},{"name":"bronze","type":"uint256","indexed":false}]}
]`

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("test", []byte(testABI))
	require.NoError(t, err)
	return c
}
