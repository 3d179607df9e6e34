package nft

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"medalchain/internal/chain"
)

var (
	nftContract = chain.MustNormalize("0xe7f1725e7734ce288f8367e1bb143e90bb3f0512")
	minterAcct  = chain.MustNormalize("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	alice       = chain.MustNormalize("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	bob         = chain.MustNormalize("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc")
)

const testPointer = `{"storageType":"backend-server","path":"/nft-images/a.png","type":"image/png","serverUrl":"http://h"}`

func testCodec(t *testing.T) *chain.Codec {
	t.Helper()
	c, err := Codec()
	require.NoError(t, err)
	return c
}

func topicOf(v *big.Int) common.Hash {
	return common.BigToHash(v)
}

func addrTopic(a chain.Address) common.Hash {
	return common.BytesToHash(a.Common().Bytes())
}

func mintedLog(t *testing.T, contract chain.Address, tokenID int64, owner, minter chain.Address) *types.Log {
	return &types.Log{
		Address: contract.Common(),
		Topics: []common.Hash{
			testCodec(t).EventID(eventNftMinted),
			topicOf(big.NewInt(tokenID)),
			addrTopic(owner),
			addrTopic(minter),
		},
	}
}

func transferLog(t *testing.T, contract chain.Address, from, to chain.Address, tokenID int64) *types.Log {
	return &types.Log{
		Address: contract.Common(),
		Topics: []common.Hash{
			testCodec(t).EventID(eventTransfer),
			addrTopic(from),
			addrTopic(to),
			topicOf(big.NewInt(tokenID)),
		},
	}
}
