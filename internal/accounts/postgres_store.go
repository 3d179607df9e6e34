package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medalchain/internal/chain"
)

// PostgresStore persists accounts in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS accounts (
    address TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    gold BIGINT NOT NULL DEFAULT 0,
    silver BIGINT NOT NULL DEFAULT 0,
    bronze BIGINT NOT NULL DEFAULT 0,
    total BIGINT NOT NULL DEFAULT 0,
    synced_at TIMESTAMPTZ
);
`

// NewPostgresStore ensures the accounts table exists on pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("postgres pool is nil")
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("create accounts table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, addr chain.Address) (*Account, error) {
	row := p.pool.QueryRow(ctx, `
SELECT address, display_name, gold, silver, bronze, total, synced_at
FROM accounts
WHERE address = $1
`, string(addr))

	var (
		acct     Account
		address  string
		gold     int64
		silver   int64
		bronze   int64
		total    int64
		syncedAt *time.Time
	)
	if err := row.Scan(&address, &acct.DisplayName, &gold, &silver, &bronze, &total, &syncedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	acct.Address = chain.Address(address)
	acct.Medals = MedalCounts{Gold: uint64(gold), Silver: uint64(silver), Bronze: uint64(bronze), Total: uint64(total)}
	if syncedAt != nil {
		acct.SyncedAt = *syncedAt
	}
	return &acct, nil
}

func (p *PostgresStore) Ensure(ctx context.Context, addr chain.Address) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO accounts (address)
VALUES ($1)
ON CONFLICT (address) DO NOTHING
`, string(addr))
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

func (p *PostgresStore) Register(ctx context.Context, addr chain.Address, displayName string) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO accounts (address, display_name)
VALUES ($1, $2)
ON CONFLICT (address) DO UPDATE
SET display_name = EXCLUDED.display_name
`, string(addr), displayName)
	if err != nil {
		return fmt.Errorf("register account: %w", err)
	}
	return nil
}

func (p *PostgresStore) SetMedals(ctx context.Context, addr chain.Address, counts MedalCounts, syncedAt time.Time) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO accounts (address, gold, silver, bronze, total, synced_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (address) DO UPDATE
SET gold = EXCLUDED.gold,
    silver = EXCLUDED.silver,
    bronze = EXCLUDED.bronze,
    total = EXCLUDED.total,
    synced_at = EXCLUDED.synced_at
`, string(addr), int64(counts.Gold), int64(counts.Silver), int64(counts.Bronze), int64(counts.Total), syncedAt)
	if err != nil {
		return fmt.Errorf("set medals: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context) ([]chain.Address, error) {
	rows, err := p.pool.Query(ctx, `SELECT address FROM accounts ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	addrs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (chain.Address, error) {
		var s string
		err := row.Scan(&s)
		return chain.Address(s), err
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return addrs, nil
}

var _ Store = (*PostgresStore)(nil)
