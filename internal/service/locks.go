package service

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 64

// stripedLock serializes work per key without one mutex per device.
// Unrelated keys may share a stripe; that only costs throughput.
type stripedLock struct {
	stripes []sync.Mutex
}

func newStripedLock(n int) *stripedLock {
	if n <= 0 {
		n = defaultStripes
	}
	return &stripedLock{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock func.
func (l *stripedLock) Lock(key string) func() {
	mu := &l.stripes[xxhash.Sum64String(key)%uint64(len(l.stripes))]
	mu.Lock()
	return mu.Unlock
}
