package accounts

import (
	"context"
	"errors"
	"sort"
	"time"

	"medalchain/internal/chain"
	"medalchain/internal/jsonfile"
)

// UnknownName is shown wherever an account has no resolvable display name.
const UnknownName = "Unknown"

var ErrNotFound = errors.New("account not found")

// MedalCounts mirrors the contract's per-user medal tally. Total is reported by the contract, not summed here.
type MedalCounts struct {
	Gold   uint64 `json:"gold"`
	Silver uint64 `json:"silver"`
	Bronze uint64 `json:"bronze"`
	Total  uint64 `json:"total"`
}

// Account is the local record kept per normalized address.
type Account struct {
	Address     chain.Address `json:"address"`
	DisplayName string        `json:"displayName"`
	Medals      MedalCounts   `json:"medals"`
	SyncedAt    time.Time     `json:"syncedAt"`
}

// Store is the account persistence boundary. Every method expects normalized addresses.
type Store interface {
	Get(ctx context.Context, addr chain.Address) (*Account, error)
	// Ensure creates an empty account for addr if none exists; an existing account is left unchanged.
	Ensure(ctx context.Context, addr chain.Address) error
	// Register creates the account or updates its display name; medal counts are left untouched.
	Register(ctx context.Context, addr chain.Address, displayName string) error
	// SetMedals overwrites the mirrored counts, creating the account if needed.
	SetMedals(ctx context.Context, addr chain.Address, counts MedalCounts, syncedAt time.Time) error
	List(ctx context.Context) ([]chain.Address, error)
}

// DisplayName resolves addr to a display name, degrading to UnknownName on any failure.
func DisplayName(ctx context.Context, s Store, addr chain.Address) string {
	if s == nil || addr == "" {
		return UnknownName
	}
	acct, err := s.Get(ctx, addr)
	if err != nil || acct.DisplayName == "" {
		return UnknownName
	}
	return acct.DisplayName
}

// tableStore backs both the memory and file stores.
type tableStore struct {
	rows *jsonfile.Table[chain.Address, Account]
}

func (s *tableStore) Get(_ context.Context, addr chain.Address) (*Account, error) {
	acct, ok := s.rows.Get(addr)
	if !ok {
		return nil, ErrNotFound
	}
	return &acct, nil
}

func (s *tableStore) Ensure(_ context.Context, addr chain.Address) error {
	return s.rows.Update(func(rows map[chain.Address]Account) bool {
		if _, ok := rows[addr]; ok {
			return false
		}
		rows[addr] = Account{Address: addr}
		return true
	})
}

func (s *tableStore) Register(_ context.Context, addr chain.Address, displayName string) error {
	return s.rows.Update(func(rows map[chain.Address]Account) bool {
		acct := rows[addr]
		acct.Address = addr
		acct.DisplayName = displayName
		rows[addr] = acct
		return true
	})
}

func (s *tableStore) SetMedals(_ context.Context, addr chain.Address, counts MedalCounts, syncedAt time.Time) error {
	return s.rows.Update(func(rows map[chain.Address]Account) bool {
		acct := rows[addr]
		acct.Address = addr
		acct.Medals = counts
		acct.SyncedAt = syncedAt
		rows[addr] = acct
		return true
	})
}

func (s *tableStore) List(_ context.Context) ([]chain.Address, error) {
	keys := s.rows.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	tableStore
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tableStore{rows: jsonfile.InMemory[chain.Address, Account]()}}
}

// FileStore persists accounts to a JSON file. Suitable for local dev.
type FileStore struct {
	tableStore
}

func NewFileStore(path string) (*FileStore, error) {
	rows, err := jsonfile.Open[chain.Address, Account](path)
	if err != nil {
		return nil, err
	}
	return &FileStore{tableStore{rows: rows}}, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
)
