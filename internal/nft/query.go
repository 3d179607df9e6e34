package nft

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"medalchain/internal/accounts"
	"medalchain/internal/chain"
)

// Record is one minted token as presented to clients.
type Record struct {
	TokenID     string        `json:"tokenId"`
	Owner       chain.Address `json:"owner"`
	OwnerName   string        `json:"ownerName"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	StorageType string        `json:"storageType"`
	ImageURL    string        `json:"imageUrl"`
	Attributes  string        `json:"attributes"`
	MintTime    uint64        `json:"mintTime"`
	Minter      chain.Address `json:"minter"`
	MinterName  string        `json:"minterName"`
	Creator     chain.Address `json:"creator"`

	Pointer Pointer `json:"-"`
}

// Page is one slice of the enumerated collection. TotalCount counts every token that could be read.
type Page struct {
	Items      []Record `json:"items"`
	TotalCount int      `json:"totalCount"`
	Page       int      `json:"page"`
	Size       int      `json:"size"`
}

// DefaultMaxSupply bounds how many tokens QueryAll will enumerate.
const DefaultMaxSupply = 10_000

// QueryEngine enumerates the collection. Every token costs two eth_calls; nothing is batched or cached.
type QueryEngine struct {
	node        chain.Node
	codec       *chain.Codec
	contract    chain.Address
	store       accounts.Store
	imageServer string
	maxSupply   uint64
	log         *zap.Logger
}

type QueryConfig struct {
	Contract chain.Address
	// ImageServerURL resolves backend-server pointers written without a serverUrl.
	ImageServerURL string
	// MaxSupply caps enumeration; zero means DefaultMaxSupply.
	MaxSupply uint64
}

func NewQueryEngine(node chain.Node, store accounts.Store, cfg QueryConfig, log *zap.Logger) (*QueryEngine, error) {
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
	if cfg.MaxSupply == 0 {
		cfg.MaxSupply = DefaultMaxSupply
	}
	return &QueryEngine{
		node:        node,
		codec:       c,
		contract:    cfg.Contract,
		store:       store,
		imageServer: cfg.ImageServerURL,
		maxSupply:   cfg.MaxSupply,
		log:         log,
	}, nil
}

func (q *QueryEngine) TotalSupply(ctx context.Context) (uint64, error) {
	values, err := readCall(ctx, q.node, q.codec, q.contract, "totalSupply")
	if err != nil {
		return 0, err
	}
	return chain.Uint64Value(values[0])
}

// QueryAll reads tokens 1..totalSupply and returns the requested 0-based page. Tokens whose reads revert
// are skipped; a transport failure aborts the query. A supply above the configured cap is rejected.
func (q *QueryEngine) QueryAll(ctx context.Context, page, size int) (*Page, error) {
	if page < 0 {
		return nil, fmt.Errorf("%w: page must be >= 0", chain.ErrValidation)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be > 0", chain.ErrValidation)
	}

	supply, err := q.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}
	out := &Page{Items: []Record{}, Page: page, Size: size}
	if supply == 0 {
		return out, nil
	}
	if supply > q.maxSupply {
		return nil, fmt.Errorf("%w: totalSupply %d exceeds enumeration limit %d", chain.ErrContractRevert, supply, q.maxSupply)
	}

	var all []Record
	for id := uint64(1); id <= supply; id++ {
		rec, err := q.Get(ctx, id)
		if err != nil {
			if errors.Is(err, chain.ErrRPC) || ctx.Err() != nil {
				return nil, err
			}
			q.log.Warn("skipping unreadable token", zap.Uint64("tokenId", id), zap.Error(err))
			continue
		}
		all = append(all, *rec)
	}

	out.TotalCount = len(all)
	start := page * size
	if start/size != page || start >= len(all) {
		return out, nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	out.Items = all[start:end]
	return out, nil
}

// Get reads one token's metadata and owner.
func (q *QueryEngine) Get(ctx context.Context, tokenID uint64) (*Record, error) {
	id := new(big.Int).SetUint64(tokenID)
	meta, err := readCall(ctx, q.node, q.codec, q.contract, "getNftMetadata", id)
	if err != nil {
		return nil, err
	}
	ownerValues, err := readCall(ctx, q.node, q.codec, q.contract, "ownerOf", id)
	if err != nil {
		return nil, err
	}

	rec := Record{TokenID: id.String()}
	if rec.Owner, err = chain.AddressValue(ownerValues[0]); err != nil {
		return nil, err
	}
	imageData, err := decodeMetadata(meta, &rec)
	if err != nil {
		return nil, fmt.Errorf("getNftMetadata(%d): %w", tokenID, err)
	}

	ptr := DecodePointer(imageData)
	if bs, ok := ptr.(BackendServer); ok && bs.ServerURL == "" {
		bs.ServerURL = q.imageServer
		ptr = bs
	}
	rec.Pointer = ptr
	rec.StorageType = ptr.Kind()
	rec.ImageURL = ptr.URL()

	rec.OwnerName = accounts.DisplayName(ctx, q.store, rec.Owner)
	rec.MinterName = accounts.DisplayName(ctx, q.store, rec.Minter)
	return &rec, nil
}

// decodeMetadata fills rec from the getNftMetadata tuple and returns the raw imageData pointer string.
func decodeMetadata(values []interface{}, rec *Record) (string, error) {
	if len(values) != 7 {
		return "", fmt.Errorf("%w: got %d values, want 7", chain.ErrContractRevert, len(values))
	}
	var (
		imageData string
		err       error
	)
	if rec.Name, err = chain.StringValue(values[0]); err != nil {
		return "", err
	}
	if rec.Description, err = chain.StringValue(values[1]); err != nil {
		return "", err
	}
	if imageData, err = chain.StringValue(values[2]); err != nil {
		return "", err
	}
	if rec.Attributes, err = chain.StringValue(values[3]); err != nil {
		return "", err
	}
	if rec.MintTime, err = chain.Uint64Value(values[4]); err != nil {
		return "", err
	}
	if rec.Minter, err = chain.AddressValue(values[5]); err != nil {
		return "", err
	}
	if rec.Creator, err = chain.AddressValue(values[6]); err != nil {
		return "", err
	}
	return imageData, nil
}
