package wsfe

import (
	"fmt"
	"sync"
)

// sequenceGuard hands out one mutex per (CUIT, point of sale, invoice type)
// tuple so that number assignment and submission happen atomically per
// sequence within this process. Cross-process serialization is the caller's
// responsibility.
type sequenceGuard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSequenceGuard() *sequenceGuard {
	return &sequenceGuard{locks: make(map[string]*sync.Mutex)}
}

// get returns the mutex for the given tuple, creating it on first use.
func (g *sequenceGuard) get(cuit string, ptoVta, cbteTipo int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d/%d", cuit, ptoVta, cbteTipo)

	g.mu.Lock()
	defer g.mu.Unlock()

	lock, ok := g.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[key] = lock
	}
	return lock
}
