// Package scheduler wraps repeating and one-shot timers behind cancellable
// handles so every timer started by a feature has an owner that stops it.
package scheduler

import (
	"sync"
	"time"
)

// Handle cancels a scheduled task. Stop is safe to call more than once.
type Handle interface {
	Stop()
}

type Scheduler interface {
	Every(interval time.Duration, fn func()) Handle
	After(delay time.Duration, fn func()) Handle
}

type Real struct{}

func New() *Real {
	return &Real{}
}

type tickerHandle struct {
	once sync.Once
	stop chan struct{}
}

func (h *tickerHandle) Stop() {
	h.once.Do(func() { close(h.stop) })
}

func (s *Real) Every(interval time.Duration, fn func()) Handle {
	h := &tickerHandle{stop: make(chan struct{})}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				select {
				case <-h.stop:
					return
				default:
				}
				fn()
			}
		}
	}()

	return h
}

type timerHandle struct {
	timer *time.Timer
}

func (h *timerHandle) Stop() {
	h.timer.Stop()
}

func (s *Real) After(delay time.Duration, fn func()) Handle {
	return &timerHandle{timer: time.AfterFunc(delay, fn)}
}

// Group stops a set of handles together.
type Group struct {
	mu      sync.Mutex
	handles []Handle
}

func (g *Group) Add(h Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handles = append(g.handles, h)
}

func (g *Group) Stop() {
	g.mu.Lock()
	handles := g.handles
	g.handles = nil
	g.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}
