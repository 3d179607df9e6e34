package medals

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"medalchain/internal/chain"
)

var (
	medalContract = chain.MustNormalize("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	distributor   = chain.MustNormalize("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	alice         = chain.MustNormalize("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	bob           = chain.MustNormalize("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc")
)

func testCodec(t *testing.T) *chain.Codec {
	t.Helper()
	c, err := Codec()
	require.NoError(t, err)
	return c
}

func newTestTransactor(t *testing.T, node chain.Node) *chain.Transactor {
	t.Helper()
	tx, err := chain.NewTransactor(node, chain.TransactorConfig{From: distributor}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return tx
}

func distributedLog(t *testing.T, contract, user chain.Address, gold, silver, bronze int64) *types.Log {
	t.Helper()
	var data []byte
	for _, v := range []int64{gold, silver, bronze} {
		data = append(data, common.LeftPadBytes(big.NewInt(v).Bytes(), 32)...)
	}
	return &types.Log{
		Address: contract.Common(),
		Topics:  []common.Hash{testCodec(t).EventID(eventMedalsDistributed), common.BytesToHash(user.Common().Bytes())},
		Data:    data,
	}
}

// medalsLogs echoes the distributeMedals arguments back as a MedalsDistributed event.
func medalsLogs(t *testing.T) func(chain.TxRequest) []*types.Log {
	return func(req chain.TxRequest) []*types.Log {
		m, err := testCodec(t).MethodByID(req.Data)
		if err != nil || m.Name != "distributeMedals" {
			return nil
		}
		args, err := m.Inputs.Unpack(req.Data[4:])
		if err != nil {
			return nil
		}
		return []*types.Log{distributedLog(t, req.To, chain.FromCommon(args[0].(common.Address)),
			args[1].(*big.Int).Int64(), args[2].(*big.Int).Int64(), args[3].(*big.Int).Int64())}
	}
}
