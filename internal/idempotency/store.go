package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/benbjohnson/clock"

	"medalchain/internal/jsonfile"
)

// Record is the stored outcome of a privileged request. RequestHash fingerprints the body so a key cannot
// be replayed against a different payload.
type Record struct {
	StatusCode  int       `json:"statusCode"`
	Response    []byte    `json:"response"`
	RequestHash string    `json:"requestHash"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Fingerprint hashes a request body for Record.RequestHash.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Store abstracts idempotency persistence. Get returns nil for missing and expired keys.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Save(ctx context.Context, key string, record Record) error
}

// Option configures a store.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock sets the clock used to decide expiry.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) expired(rec Record) bool {
	return o.clock.Now().After(rec.ExpiresAt)
}

// tableStore backs both the memory and file stores. Expired records are dropped on read.
type tableStore struct {
	rows *jsonfile.Table[string, Record]
	opts options
}

func (s *tableStore) Get(_ context.Context, key string) (*Record, error) {
	rec, ok := s.rows.Get(key)
	if !ok {
		return nil, nil
	}
	if s.opts.expired(rec) {
		err := s.rows.Update(func(rows map[string]Record) bool {
			if cur, ok := rows[key]; ok && s.opts.expired(cur) {
				delete(rows, key)
				return true
			}
			return false
		})
		return nil, err
	}
	return &rec, nil
}

func (s *tableStore) Save(_ context.Context, key string, record Record) error {
	return s.rows.Update(func(rows map[string]Record) bool {
		rows[key] = record
		return true
	})
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	tableStore
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{tableStore{rows: jsonfile.InMemory[string, Record](), opts: buildOptions(opts)}}
}

// FileStore persists records to a JSON file. Suitable for local dev.
type FileStore struct {
	tableStore
}

func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	rows, err := jsonfile.Open[string, Record](path)
	if err != nil {
		return nil, err
	}
	return &FileStore{tableStore{rows: rows, opts: buildOptions(opts)}}, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
)
