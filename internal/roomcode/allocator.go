// internal/roomcode/allocator.go
package roomcode

import (
	"math/rand"
	"sync"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeLength   = 4
)

// Allocator issues short room codes that are unique among currently-active
// lobbies. Codes may be reused after Release.
type Allocator struct {
	mu     sync.Mutex
	active map[string]struct{}
	rand   *rand.Rand
}

// NewAllocator returns an empty allocator using the given random source.
// Pass nil to use a shared, time-seeded source.
func NewAllocator(r *rand.Rand) *Allocator {
	return &Allocator{
		active: make(map[string]struct{}),
		rand:   r,
	}
}

// Allocate generates a fresh code, registers it as active, and returns it.
// It retries on collision until an unused code is found.
func (a *Allocator) Allocate() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		code := a.randomCode()
		if _, taken := a.active[code]; taken {
			continue
		}
		a.active[code] = struct{}{}
		return code
	}
}

// Release removes a code from the active set. No-op if the code is not active.
func (a *Allocator) Release(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, code)
}

// Active reports whether a code is currently issued.
func (a *Allocator) Active(code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.active[code]
	return ok
}

func (a *Allocator) randomCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		if a.rand != nil {
			buf[i] = codeAlphabet[a.rand.Intn(len(codeAlphabet))]
		} else {
			buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
	}
	return string(buf)
}
