package chain

import (
	"context"
	"sync"
)

// KeyedMutex hands out one mutex per address. Entries are reference counted and dropped once unused.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[Address]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[Address]*keyedEntry)}
}

// Lock blocks until the mutex for key is held and returns the function releasing it.
func (k *KeyedMutex) Lock(key Address) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// NonceManager serializes fetch -> build -> submit per sending account so two submissions from the same
// account never observe the same pending nonce.
type NonceManager struct {
	node  Node
	locks *KeyedMutex

	mu   sync.Mutex
	next map[Address]uint64
}

func NewNonceManager(node Node) *NonceManager {
	return &NonceManager{
		node:  node,
		locks: NewKeyedMutex(),
		next:  make(map[Address]uint64),
	}
}

// WithNonce fetches a fresh nonce for account and runs submit while holding the account's lock.
// The nonce is marked used only if submit succeeds. If the node reports a pending count that is behind
// a nonce this manager already handed out, the higher value wins.
func (m *NonceManager) WithNonce(ctx context.Context, account Address, submit func(nonce uint64) error) error {
	unlock := m.locks.Lock(account)
	defer unlock()

	fetched, err := m.node.PendingNonce(ctx, account)
	if err != nil {
		return err
	}

	m.mu.Lock()
	nonce := fetched
	if next, ok := m.next[account]; ok && next > nonce {
		nonce = next
	}
	m.mu.Unlock()

	if err := submit(nonce); err != nil {
		return err
	}

	m.mu.Lock()
	m.next[account] = nonce + 1
	m.mu.Unlock()
	return nil
}
