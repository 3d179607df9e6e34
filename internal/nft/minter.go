package nft

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"medalchain/internal/accounts"
	"medalchain/internal/chain"
)

// DefaultGasLimit covers a mint carrying a small pointer document, not raw image bytes.
const DefaultGasLimit uint64 = 3_000_000

type MintRequest struct {
	Owner       chain.Address
	Name        string
	Description string
	// ImageMetadata is the backend-server pointer JSON stored on-chain.
	ImageMetadata string
	// Attributes is a JSON document; empty means "[]".
	Attributes string
}

type MintResult struct {
	TokenID     string      `json:"tokenId"`
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	Fee         *big.Int    `json:"fee"`
}

// Minter mints collection tokens from the transactor's account.
type Minter struct {
	node       chain.Node
	tx         *chain.Transactor
	permission *chain.PermissionChecker
	codec      *chain.Codec
	contract   chain.Address
	accounts   accounts.Store
	gasLimit   uint64
	log        *zap.Logger
}

type MinterConfig struct {
	Contract chain.Address
	GasLimit uint64
	// Accounts records the owner of every confirmed mint. Optional.
	Accounts accounts.Store
}

func NewMinter(node chain.Node, tx *chain.Transactor, cfg MinterConfig, log *zap.Logger) (*Minter, error) {
	if cfg.Contract.IsZero() {
		return nil, fmt.Errorf("%w: nft contract address is required", chain.ErrValidation)
	}
	c, err := Codec()
	if err != nil {
		return nil, fmt.Errorf("nft abi: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	return &Minter{
		node:       node,
		tx:         tx,
		permission: chain.NewPermissionChecker(node, c, cfg.Contract, "hasMintPermission", log),
		codec:      c,
		contract:   cfg.Contract,
		accounts:   cfg.Accounts,
		gasLimit:   cfg.GasLimit,
		log:        log,
	}, nil
}

// MintFee reads the current fee the contract charges per mint.
func (m *Minter) MintFee(ctx context.Context) (*big.Int, error) {
	values, err := readCall(ctx, m.node, m.codec, m.contract, "mintFee")
	if err != nil {
		return nil, err
	}
	return chain.BigValue(values[0])
}

// Mint checks the mint permission, pays the current fee and waits for the mint to confirm. The token id
// comes from the receipt's mint event; without one it falls back to totalSupply, which is only reliable
// when no other mint confirmed in between.
func (m *Minter) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	owner, err := validateMint(&req)
	if err != nil {
		return nil, err
	}

	allowed, err := m.permission.Allowed(ctx, m.tx.From())
	if err != nil {
		return nil, fmt.Errorf("check mint permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s may not mint", chain.ErrPermissionDenied, m.tx.From())
	}

	fee, err := m.MintFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("read mint fee: %w", err)
	}

	data, err := m.codec.Encode("mintNftWithMetadata", owner.Common(), req.Name, req.Description, req.ImageMetadata, req.Attributes)
	if err != nil {
		return nil, err
	}

	receipt, err := m.tx.Execute(ctx, chain.Call{
		Kind:     "mint",
		To:       m.contract,
		Data:     data,
		Value:    fee,
		GasLimit: m.gasLimit,
	})
	if err != nil {
		return nil, err
	}

	res := &MintResult{
		TxHash:      receipt.Hash,
		BlockNumber: receipt.BlockNumber,
		Fee:         fee,
	}
	if id, ok := MintedTokenID(m.codec, m.contract, receipt.Logs); ok {
		res.TokenID = id.String()
	} else {
		m.log.Warn("no mint event in receipt, falling back to totalSupply", zap.Stringer("tx", receipt.Hash))
		supply, err := m.totalSupply(ctx)
		if err != nil {
			// The mint is confirmed; report it without an id rather than invite a retry.
			m.log.Error("read totalSupply after mint", zap.Stringer("tx", receipt.Hash), zap.Error(err))
		} else {
			res.TokenID = supply.String()
		}
	}

	if m.accounts != nil {
		if err := m.accounts.Ensure(ctx, owner); err != nil {
			m.log.Warn("record nft owner", zap.Stringer("owner", owner), zap.Error(err))
		}
	}

	m.log.Info("nft minted",
		zap.Stringer("owner", owner),
		zap.String("tokenId", res.TokenID),
		zap.Stringer("fee", fee),
		zap.Stringer("tx", receipt.Hash),
	)
	return res, nil
}

func (m *Minter) totalSupply(ctx context.Context) (*big.Int, error) {
	values, err := readCall(ctx, m.node, m.codec, m.contract, "totalSupply")
	if err != nil {
		return nil, err
	}
	return chain.BigValue(values[0])
}

func validateMint(req *MintRequest) (chain.Address, error) {
	owner, err := chain.Normalize(string(req.Owner))
	if err != nil {
		return "", err
	}
	if owner.IsZero() {
		return "", fmt.Errorf("%w: owner is the zero address", chain.ErrValidation)
	}
	if strings.TrimSpace(req.Name) == "" {
		return "", fmt.Errorf("%w: name is required", chain.ErrValidation)
	}
	if _, err := ParsePointer(req.ImageMetadata); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Attributes) == "" {
		req.Attributes = "[]"
	}
	if !json.Valid([]byte(req.Attributes)) {
		return "", fmt.Errorf("%w: attributes must be JSON", chain.ErrValidation)
	}
	return owner, nil
}

func readCall(ctx context.Context, node chain.Node, codec *chain.Codec, contract chain.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := codec.Encode(method, args...)
	if err != nil {
		return nil, err
	}
	ret, err := node.Call(ctx, "", contract, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	values, err := codec.Decode(method, ret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return values, nil
}
