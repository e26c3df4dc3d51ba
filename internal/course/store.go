package course

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dkurbatov/coursebot/core/logger"
)

// Store is the in-memory session registry. It is internally synchronized:
// telebot handlers and timer goroutines mutate sessions concurrently, and
// the confirmation-vs-timeout race is settled by check-and-advance under
// the store lock.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	epochSeq uint64

	sweepInterval time.Duration
	cleanupGrace  time.Duration
}

// NewStore builds an empty store using the sweep timing from cfg.
func NewStore(cfg *Config) *Store {
	return &Store{
		sessions:      make(map[int64]*Session),
		sweepInterval: cfg.SweepInterval(),
		cleanupGrace:  cfg.CleanupGrace(),
	}
}

// Create registers a fresh session for the user, reclaiming any prior one.
// The previous session's advance timers are cancelled so they can never
// move the new session's cursor; a running reminder keeps its captured
// chat and is left untouched.
func (st *Store) Create(userID, chatID int64) Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()

	if old, ok := st.sessions[userID]; ok {
		old.cancelAdvanceTimers()
		logger.Debug(context.Background(), "course.store", "session.replaced",
			slog.Int64("user_id", userID),
			slog.Int("lesson", old.CurrentLesson),
		)
	}

	st.epochSeq++
	s := &Session{
		UserID:        userID,
		ChatID:        chatID,
		StartedAt:     time.Now(),
		CurrentLesson: 1,
		epoch:         st.epochSeq,
		advanceTimers: make(map[int]*timerHandle),
		prompts:       make(map[int]MessageRef),
	}
	st.sessions[userID] = s

	logger.Info(context.Background(), "course.store", "session.created",
		slog.Int64("user_id", userID),
		slog.Int64("chat_id", chatID),
	)
	return s.snapshot()
}

// Get returns a read-only snapshot of the user's session.
func (st *Store) Get(userID int64) (Snapshot, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[userID]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// Len reports how many sessions are registered.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Snapshots returns all sessions ordered by user id, for diagnostics.
func (st *Store) Snapshots() []Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Snapshot, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// ArmAdvanceTimer schedules the auto-advance for the given lesson,
// cancelling any earlier timer armed for the same lesson. The fire
// callback runs on its own goroutine only if the handle wins its CAS
// against cancellation.
func (st *Store) ArmAdvanceTimer(userID int64, epoch uint64, lesson int, d time.Duration, fire func()) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok || s.epoch != epoch || s.CurrentLesson != lesson {
		return false
	}
	if prev := s.advanceTimers[lesson]; prev != nil {
		prev.cancel()
	}
	s.advanceTimers[lesson] = newTimerHandle(lesson, d, func(*timerHandle) { fire() })

	logger.Debug(context.Background(), "course.store", "timer.armed",
		slog.Int64("user_id", userID),
		slog.Int("lesson", lesson),
		slog.Duration("timer", d),
	)
	return true
}

// SetPrompt records the confirmation-request message for a lesson.
func (st *Store) SetPrompt(userID int64, epoch uint64, lesson int, ref MessageRef) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[userID]
	if !ok || s.epoch != epoch {
		return false
	}
	s.prompts[lesson] = ref
	return true
}

// PromptFor returns the recorded confirmation-request message for a lesson.
func (st *Store) PromptFor(userID int64, lesson int) (MessageRef, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[userID]
	if !ok {
		return MessageRef{}, false
	}
	ref, ok := s.prompts[lesson]
	return ref, ok && !ref.Zero()
}

// AdvanceOnConfirm moves the cursor past the given lesson on explicit user
// confirmation. It cancels the lesson's advance timer; if the timer already
// fired, its goroutine will observe the moved cursor and back off.
func (st *Store) AdvanceOnConfirm(userID int64, lesson int) (Snapshot, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok || s.CurrentLesson != lesson {
		return Snapshot{}, false
	}
	if h := s.advanceTimers[lesson]; h != nil {
		if h.cancel() {
			logger.Debug(context.Background(), "course.store", "timer.cancelled",
				slog.Int64("user_id", userID),
				slog.Int("lesson", lesson),
			)
		}
		delete(s.advanceTimers, lesson)
	}
	s.CurrentLesson = lesson + 1
	return s.snapshot(), true
}

// AdvanceIfCurrent moves the cursor past the given lesson on timer expiry.
// The epoch guard keeps timers of a replaced session away from its
// successor; the lesson check makes a lost race a no-op.
func (st *Store) AdvanceIfCurrent(userID int64, epoch uint64, lesson int) (Snapshot, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok || s.epoch != epoch || s.CurrentLesson != lesson {
		return Snapshot{}, false
	}
	delete(s.advanceTimers, lesson)
	s.CurrentLesson = lesson + 1
	return s.snapshot(), true
}

// MarkCompleted flags the session as having exhausted the lesson sequence.
func (st *Store) MarkCompleted(userID int64, epoch uint64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[userID]
	if !ok || s.epoch != epoch {
		return false
	}
	s.Completed = true
	return true
}

// ScheduleReminder arms the one long-delayed follow-up, exactly once per
// session. The chat id is captured here, so the fire callback never needs
// to look the session back up. Returns the scheduled wall-clock time.
func (st *Store) ScheduleReminder(userID int64, delay time.Duration, fire func(chatID int64)) (time.Time, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok {
		return time.Time{}, false
	}
	if s.reminderTimer != nil {
		return s.ReminderScheduledAt, false
	}
	chatID := s.ChatID
	s.reminderTimer = newTimerHandle(reminderTag, delay, func(*timerHandle) { fire(chatID) })
	s.ReminderScheduledAt = time.Now().Add(delay)

	logger.Info(context.Background(), "course.reminder", "reminder.scheduled",
		slog.Int64("user_id", userID),
		slog.Int64("chat_id", chatID),
		slog.Time("reminder_at", s.ReminderScheduledAt),
	)
	return s.ReminderScheduledAt, true
}

// Reclaim removes the session when no timers are running; otherwise the
// session is retained with cleanup pending until the sweeper catches it.
func (st *Store) Reclaim(userID int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok {
		return false
	}
	if s.runningTimers() > 0 {
		s.CleanupPending = true
		logger.Debug(context.Background(), "course.store", "reclaim.deferred",
			slog.Int64("user_id", userID),
			slog.Int("sessions", len(st.sessions)),
		)
		return false
	}
	delete(st.sessions, userID)
	logger.Info(context.Background(), "course.store", "session.removed",
		slog.Int64("user_id", userID),
	)
	return true
}

// CancelAllTimers stops every outstanding timer. Used during graceful
// shutdown so no task dangles past the run loop.
func (st *Store) CancelAllTimers() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, s := range st.sessions {
		s.cancelAdvanceTimers()
		s.reminderTimer.cancel()
	}
}

// RunSweeper periodically removes sessions that finished their lifecycle.
// It blocks until ctx is cancelled.
func (st *Store) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(st.sweepInterval)
	defer ticker.Stop()

	logger.Info(ctx, "course.sweep", "sweep.start",
		slog.Duration("timer", st.sweepInterval),
	)
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "course.sweep", "sweep.stop")
			return
		case now := <-ticker.C:
			removed := st.sweepOnce(now)
			if removed > 0 {
				logger.Info(ctx, "course.sweep", "sweep.done",
					slog.Int("removed", removed),
					slog.Int("sessions", st.Len()),
				)
			}
		}
	}
}

// sweepOnce removes sessions eligible for reclamation: zero running timers
// and either an explicit pending cleanup or a completed course past the
// reminder grace window.
func (st *Store) sweepOnce(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		if s.runningTimers() > 0 {
			continue
		}
		switch {
		case s.CleanupPending:
		case s.Completed && !s.ReminderScheduledAt.IsZero() &&
			now.After(s.ReminderScheduledAt.Add(st.cleanupGrace)):
		default:
			continue
		}
		delete(st.sessions, id)
		removed++
	}
	return removed
}
