package chain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	a := MustNormalize("0x36e4418dafb9d1e5fff7408f5a57981e240c8f8e")

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(a)
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, k.locks, "released entries must be dropped")
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock(MustNormalize("0x36e4418dafb9d1e5fff7408f5a57981e240c8f8e"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock(MustNormalize("0x59be1932048f76f9b0e8e5f6accf5fd8d53136dd"))
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestNonceManagerNeverReissuesWhenNodeLags(t *testing.T) {
	node := NewFakeNode()
	m := NewNonceManager(node)
	ctx := context.Background()

	var got []uint64
	record := func(n uint64) error {
		got = append(got, n)
		return nil
	}

	require.NoError(t, m.WithNonce(ctx, testSender, record))
	// The node has not seen anything: its pending count still reads 0.
	require.NoError(t, m.WithNonce(ctx, testSender, record))

	node.SetNonce(testSender, 10)
	require.NoError(t, m.WithNonce(ctx, testSender, record))

	assert.Equal(t, []uint64{0, 1, 10}, got)
}

func TestNonceManagerFailedSubmitKeepsNonce(t *testing.T) {
	node := NewFakeNode()
	m := NewNonceManager(node)
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.WithNonce(ctx, testSender, func(uint64) error { return boom })
	assert.ErrorIs(t, err, boom)

	var got uint64 = 99
	require.NoError(t, m.WithNonce(ctx, testSender, func(n uint64) error {
		got = n
		return nil
	}))
	assert.Equal(t, uint64(0), got)
}
