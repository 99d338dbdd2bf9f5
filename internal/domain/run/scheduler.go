package run

import (
	"sort"
	"sync"
	"time"
)

// Scheduler is the single-threaded cooperative tick source behind every
// in-run timer (countdown ticks, cast duration, cooldowns). Modeling it
// explicitly lets tests drive the machine with synthetic timestamps.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time

	// After schedules fn to run once after d. The returned handle cancels
	// just that timer.
	After(d time.Duration, fn func()) Timer

	// CancelAll cancels every pending timer. Phase switches call this so
	// a stale timer from a previous run can never fire into a new one.
	CancelAll()
}

// Timer is a cancelable pending callback.
type Timer interface {
	Cancel()
}

// wallScheduler runs timers on real wall time.
type wallScheduler struct {
	mu      sync.Mutex
	pending map[int]*time.Timer
	nextID  int
}

// NewWallScheduler creates a Scheduler backed by real timers.
func NewWallScheduler() Scheduler {
	return &wallScheduler{pending: make(map[int]*time.Timer)}
}

func (w *wallScheduler) Now() time.Time {
	return time.Now()
}

func (w *wallScheduler) After(d time.Duration, fn func()) Timer {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	t := time.AfterFunc(d, func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
		fn()
	})
	w.pending[id] = t
	return &wallTimer{sched: w, id: id}
}

func (w *wallScheduler) CancelAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
}

type wallTimer struct {
	sched *wallScheduler
	id    int
}

func (t *wallTimer) Cancel() {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if timer, ok := t.sched.pending[t.id]; ok {
		timer.Stop()
		delete(t.sched.pending, t.id)
	}
}

// ManualScheduler drives timers with synthetic time. Advance fires due
// callbacks in deadline order on the calling goroutine, matching the
// production model where callbacks never run concurrently.
type ManualScheduler struct {
	now     time.Time
	pending []*manualTimer
	nextID  int
}

// NewManualScheduler creates a ManualScheduler starting at now.
func NewManualScheduler(now time.Time) *ManualScheduler {
	return &ManualScheduler{now: now}
}

func (m *ManualScheduler) Now() time.Time {
	return m.now
}

func (m *ManualScheduler) After(d time.Duration, fn func()) Timer {
	t := &manualTimer{sched: m, id: m.nextID, due: m.now.Add(d), fn: fn}
	m.nextID++
	m.pending = append(m.pending, t)
	return t
}

func (m *ManualScheduler) CancelAll() {
	m.pending = nil
}

// Advance moves synthetic time forward, firing due callbacks in order.
// Callbacks may schedule further timers; those fire too if they fall
// within the advanced span.
func (m *ManualScheduler) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		next := m.earliestDue(target)
		if next == nil {
			break
		}
		m.now = next.due
		m.remove(next)
		next.fn()
	}
	m.now = target
}

func (m *ManualScheduler) earliestDue(target time.Time) *manualTimer {
	var due []*manualTimer
	for _, t := range m.pending {
		if !t.due.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})
	return due[0]
}

func (m *ManualScheduler) remove(t *manualTimer) {
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

type manualTimer struct {
	sched *ManualScheduler
	id    int
	due   time.Time
	fn    func()
}

func (t *manualTimer) Cancel() {
	t.sched.remove(t)
}
