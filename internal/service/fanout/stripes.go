package fanout

import (
	"hash/fnv"
	"sync"
)

// Stripes is a fixed set of mutexes selected by key hash. Writers hold the
// stripe of a document from transaction start until the resulting events are
// published, so subscribers observe events in commit order.
type Stripes struct {
	locks []sync.Mutex
}

// NewStripes creates n stripes (minimum 1)
func NewStripes(n int) *Stripes {
	if n <= 0 {
		n = 1
	}
	return &Stripes{locks: make([]sync.Mutex, n)}
}

// Lock locks the stripe for key and returns its unlock func
func (s *Stripes) Lock(key string) func() {
	m := &s.locks[stripeIndex(key, len(s.locks))]
	m.Lock()
	return m.Unlock
}

func stripeIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
