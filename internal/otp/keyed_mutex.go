package otp

import (
	"hash/fnv"
	"sync"
)

// keyedMutex serializes work per key using a fixed set of striped locks.
// Distinct keys may share a stripe, which only costs contention.
type keyedMutex struct {
	stripes []sync.Mutex
}

func newKeyedMutex(n int) *keyedMutex {
	if n <= 0 {
		n = 64
	}
	return &keyedMutex{stripes: make([]sync.Mutex, n)}
}

func (k *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	m.Lock()
	return m.Unlock
}
