package scheduler

import (
	"sync"
	"time"
)

// Fake is a manually advanced Scheduler for tests. Tasks run synchronously
// inside Advance, in due-time order.
type Fake struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*fakeTask
}

type fakeTask struct {
	fake     *Fake
	seq      int
	next     time.Duration
	interval time.Duration
	fn       func()
	stopped  bool
}

func (t *fakeTask) Stop() {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	t.stopped = true
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) schedule(delay, interval time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTask{fake: f, seq: f.seq, next: f.now + delay, interval: interval, fn: fn}
	f.tasks = append(f.tasks, t)
	return t
}

func (f *Fake) Every(interval time.Duration, fn func()) Handle {
	return f.schedule(interval, interval, fn)
}

func (f *Fake) After(delay time.Duration, fn func()) Handle {
	return f.schedule(delay, 0, fn)
}

// Advance moves the fake clock forward by d, firing every task that
// becomes due on the way.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now + d
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var due *fakeTask
		for _, t := range f.tasks {
			if t.stopped || t.next > target {
				continue
			}
			if due == nil || t.next < due.next || (t.next == due.next && t.seq < due.seq) {
				due = t
			}
		}
		if due == nil {
			f.now = target
			f.compact()
			f.mu.Unlock()
			return
		}
		f.now = due.next
		if due.interval > 0 {
			due.next += due.interval
		} else {
			due.stopped = true
		}
		fn := due.fn
		f.mu.Unlock()

		fn()
	}
}

// Pending returns the number of live tasks.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (f *Fake) compact() {
	live := f.tasks[:0]
	for _, t := range f.tasks {
		if !t.stopped {
			live = append(live, t)
		}
	}
	f.tasks = live
}
