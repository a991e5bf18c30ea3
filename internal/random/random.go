// Package random provides the injectable random source used for cosmetic
// values such as flashcard difficulty tags and opponent behaviour.
package random

import (
	"math/rand"
	"sync"
	"time"
)

type Source interface {
	Intn(n int) int
	Float64() float64
}

type lockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a goroutine-safe source seeded with seed.
func New(seed int64) Source {
	return &lockedSource{rnd: rand.New(rand.NewSource(seed))}
}

// NewTimeSeeded returns a source seeded from the wall clock.
func NewTimeSeeded() Source {
	return New(time.Now().UnixNano())
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

// Pick returns a uniformly chosen element of items.
func Pick[T any](src Source, items []T) T {
	return items[src.Intn(len(items))]
}
