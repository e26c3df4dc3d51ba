package course

import (
	"context"
	"testing"
	"time"
)

func testStoreConfig() *Config {
	return &Config{
		AdvanceTimeoutSeconds: 3600,
		SweepIntervalSeconds:  1,
		CleanupGraceMinutes:   60,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestCreateAndGet(t *testing.T) {
	st := NewStore(testStoreConfig())

	snap := st.Create(42, 4242)
	if snap.CurrentLesson != 1 {
		t.Fatalf("new session lesson = %d, want 1", snap.CurrentLesson)
	}
	if snap.ChatID != 4242 {
		t.Fatalf("chat id = %d, want 4242", snap.ChatID)
	}

	got, ok := st.Get(42)
	if !ok {
		t.Fatal("session not found after create")
	}
	if got.Epoch != snap.Epoch {
		t.Fatalf("epoch mismatch: %d vs %d", got.Epoch, snap.Epoch)
	}
	if _, ok := st.Get(7); ok {
		t.Fatal("unexpected session for unknown user")
	}
}

func TestCreateCancelsOldAdvanceTimers(t *testing.T) {
	st := NewStore(testStoreConfig())

	snap := st.Create(1, 100)
	fired := make(chan struct{}, 1)
	if !st.ArmAdvanceTimer(1, snap.Epoch, 1, 30*time.Millisecond, func() { fired <- struct{}{} }) {
		t.Fatal("arm failed")
	}

	// A restarted session must not inherit the old timer.
	st.Create(1, 100)

	select {
	case <-fired:
		t.Fatal("timer of replaced session fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRearmCancelsPreviousTimer(t *testing.T) {
	st := NewStore(testStoreConfig())
	snap := st.Create(1, 100)

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	st.ArmAdvanceTimer(1, snap.Epoch, 1, 20*time.Millisecond, func() { first <- struct{}{} })
	st.ArmAdvanceTimer(1, snap.Epoch, 1, 20*time.Millisecond, func() { second <- struct{}{} })

	select {
	case <-second:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("second timer never fired")
	}
	select {
	case <-first:
		t.Fatal("first timer fired despite re-arm")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConfirmWinsOverTimer(t *testing.T) {
	st := NewStore(testStoreConfig())
	snap := st.Create(1, 100)
	st.ArmAdvanceTimer(1, snap.Epoch, 1, time.Hour, func() {})

	if _, ok := st.AdvanceOnConfirm(1, 1); !ok {
		t.Fatal("confirm advance rejected")
	}
	// The timer path must observe the moved cursor and back off.
	if _, ok := st.AdvanceIfCurrent(1, snap.Epoch, 1); ok {
		t.Fatal("timer advanced after confirmation")
	}
	got, _ := st.Get(1)
	if got.CurrentLesson != 2 {
		t.Fatalf("lesson = %d, want 2", got.CurrentLesson)
	}
	if got.RunningTimers != 0 {
		t.Fatalf("running timers = %d, want 0", got.RunningTimers)
	}
}

func TestTimerWinsOverLateConfirm(t *testing.T) {
	st := NewStore(testStoreConfig())
	snap := st.Create(1, 100)

	if _, ok := st.AdvanceIfCurrent(1, snap.Epoch, 1); !ok {
		t.Fatal("timer advance rejected")
	}
	if _, ok := st.AdvanceOnConfirm(1, 1); ok {
		t.Fatal("confirmation advanced after timer")
	}
	got, _ := st.Get(1)
	if got.CurrentLesson != 2 {
		t.Fatalf("lesson = %d, want 2", got.CurrentLesson)
	}
}

func TestAdvanceIgnoresStaleEpoch(t *testing.T) {
	st := NewStore(testStoreConfig())
	old := st.Create(1, 100)
	st.Create(1, 100)

	if _, ok := st.AdvanceIfCurrent(1, old.Epoch, 1); ok {
		t.Fatal("timer of replaced session advanced the new one")
	}
	got, _ := st.Get(1)
	if got.CurrentLesson != 1 {
		t.Fatalf("lesson = %d, want 1", got.CurrentLesson)
	}
}

func TestScheduleReminderIdempotent(t *testing.T) {
	st := NewStore(testStoreConfig())
	st.Create(1, 100)

	at, ok := st.ScheduleReminder(1, time.Hour, func(int64) {})
	if !ok {
		t.Fatal("first schedule rejected")
	}
	again, ok := st.ScheduleReminder(1, time.Hour, func(int64) {})
	if ok {
		t.Fatal("reminder scheduled twice")
	}
	if !again.Equal(at) {
		t.Fatalf("second call returned %v, want original %v", again, at)
	}
	got, _ := st.Get(1)
	if got.RunningTimers != 1 {
		t.Fatalf("running timers = %d, want 1", got.RunningTimers)
	}
}

func TestReclaimDefersWhileTimersRun(t *testing.T) {
	st := NewStore(testStoreConfig())
	st.Create(1, 100)
	st.ScheduleReminder(1, time.Hour, func(int64) {})

	if removed := st.Reclaim(1); removed {
		t.Fatal("session with running reminder removed")
	}
	got, ok := st.Get(1)
	if !ok || !got.CleanupPending {
		t.Fatal("deferred reclaim did not mark cleanup pending")
	}

	st.CancelAllTimers()
	if removed := st.Reclaim(1); !removed {
		t.Fatal("session with no timers not removed")
	}
	if st.Len() != 0 {
		t.Fatalf("store size = %d, want 0", st.Len())
	}
}

func TestSweepRemovesCompletedPastGrace(t *testing.T) {
	cfg := testStoreConfig()
	st := NewStore(cfg)
	snap := st.Create(1, 100)
	st.MarkCompleted(1, snap.Epoch)

	done := make(chan struct{})
	st.ScheduleReminder(1, 10*time.Millisecond, func(int64) { close(done) })
	<-done

	// Still inside the grace window: retained.
	if removed := st.sweepOnce(time.Now()); removed != 0 {
		t.Fatalf("sweep removed %d sessions inside grace window", removed)
	}
	// Past the grace window and no running timers: removed.
	past := time.Now().Add(cfg.CleanupGrace() + time.Hour)
	if removed := st.sweepOnce(past); removed != 1 {
		t.Fatalf("sweep removed %d sessions, want 1", removed)
	}
	if st.Len() != 0 {
		t.Fatalf("store size = %d, want 0", st.Len())
	}
}

func TestSweepRemovesCleanupPending(t *testing.T) {
	st := NewStore(testStoreConfig())
	st.Create(1, 100)
	st.ScheduleReminder(1, 10*time.Millisecond, func(int64) {})
	st.Reclaim(1)

	waitFor(t, time.Second, func() bool {
		s, ok := st.Get(1)
		return ok && s.RunningTimers == 0
	})
	if removed := st.sweepOnce(time.Now()); removed != 1 {
		t.Fatalf("sweep removed %d sessions, want 1", removed)
	}
}

func TestSweeperExitsOnCancel(t *testing.T) {
	st := NewStore(testStoreConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		st.RunSweeper(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not exit on context cancellation")
	}
}
