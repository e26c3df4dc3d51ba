package course

import (
	"sync/atomic"
	"time"
)

// Timer handle tri-state. Transitions are one-way and settled by CAS,
// so a fire and a cancel racing each other resolve to exactly one winner.
const (
	timerRunning int32 = iota
	timerCancelled
	timerFired
)

const reminderTag = 0

// timerHandle owns one scheduled task: a per-lesson advance timer or the
// completion reminder.
type timerHandle struct {
	lesson int
	state  atomic.Int32
	timer  *time.Timer
}

func newTimerHandle(lesson int, d time.Duration, fire func(h *timerHandle)) *timerHandle {
	h := &timerHandle{lesson: lesson}
	h.timer = time.AfterFunc(d, func() {
		if h.markFired() {
			fire(h)
		}
	})
	return h
}

func (h *timerHandle) running() bool {
	return h != nil && h.state.Load() == timerRunning
}

// markFired settles the handle as fired. Returns false when the handle
// was cancelled first.
func (h *timerHandle) markFired() bool {
	return h.state.CompareAndSwap(timerRunning, timerFired)
}

// cancel settles the handle as cancelled and stops the underlying timer.
// Returns false when the handle already fired.
func (h *timerHandle) cancel() bool {
	if h == nil {
		return false
	}
	if !h.state.CompareAndSwap(timerRunning, timerCancelled) {
		return false
	}
	h.timer.Stop()
	return true
}

// Session is the per-user progression record. All mutation goes through
// the Store under its lock; handlers and timer goroutines never touch a
// Session directly.
type Session struct {
	UserID        int64
	ChatID        int64
	StartedAt     time.Time
	CurrentLesson int

	Completed           bool
	CleanupPending      bool
	ReminderScheduledAt time.Time

	// epoch distinguishes this session from any earlier one of the same
	// user, so timers armed against a replaced session cannot advance
	// its successor.
	epoch uint64

	advanceTimers map[int]*timerHandle
	reminderTimer *timerHandle
	prompts       map[int]MessageRef
}

func (s *Session) runningTimers() int {
	n := 0
	for _, h := range s.advanceTimers {
		if h.running() {
			n++
		}
	}
	if s.reminderTimer.running() {
		n++
	}
	return n
}

// cancelAdvanceTimers stops every lesson timer. The reminder timer is
// deliberately left alone: it outlives lesson progression.
func (s *Session) cancelAdvanceTimers() {
	for _, h := range s.advanceTimers {
		h.cancel()
	}
}

// Snapshot is a read-only copy of session state safe to hand out of the store.
type Snapshot struct {
	UserID              int64
	ChatID              int64
	Epoch               uint64
	CurrentLesson       int
	StartedAt           time.Time
	Completed           bool
	CleanupPending      bool
	ReminderScheduledAt time.Time
	RunningTimers       int
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		UserID:              s.UserID,
		ChatID:              s.ChatID,
		Epoch:               s.epoch,
		CurrentLesson:       s.CurrentLesson,
		StartedAt:           s.StartedAt,
		Completed:           s.Completed,
		CleanupPending:      s.CleanupPending,
		ReminderScheduledAt: s.ReminderScheduledAt,
		RunningTimers:       s.runningTimers(),
	}
}
