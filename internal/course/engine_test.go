package course

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeDelivery records outbound calls as "kind:detail" strings and can be
// scripted to fail specific operations.
type fakeDelivery struct {
	mu        sync.Mutex
	calls     []string
	nextMsgID int

	failVideo     bool
	failVideoNote bool
}

func (f *fakeDelivery) log(s string) MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	f.nextMsgID++
	return MessageRef{ChatID: 1, MessageID: f.nextMsgID}
}

func (f *fakeDelivery) SendText(_ context.Context, _ int64, text string, _ TextOptions) (MessageRef, error) {
	return f.log("text:" + text), nil
}

func (f *fakeDelivery) SendVideo(_ context.Context, _ int64, file string) (MessageRef, error) {
	if f.failVideo {
		return MessageRef{}, errors.New("no such file")
	}
	return f.log("video:" + file), nil
}

func (f *fakeDelivery) SendVideoNote(_ context.Context, _ int64, file string) (MessageRef, error) {
	if f.failVideoNote {
		return MessageRef{}, errors.New("note rejected")
	}
	return f.log("note:" + file), nil
}

func (f *fakeDelivery) SendPrompt(_ context.Context, _ int64, text string, lesson int) (MessageRef, error) {
	return f.log(fmt.Sprintf("prompt:%d:%s", lesson, text)), nil
}

func (f *fakeDelivery) EditText(_ context.Context, ref MessageRef, text string) error {
	f.log(fmt.Sprintf("edit:%d:%s", ref.MessageID, text))
	return nil
}

func (f *fakeDelivery) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeDelivery) count(prefix string) int {
	n := 0
	for _, c := range f.snapshot() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeDelivery) contains(sub string) bool {
	for _, c := range f.snapshot() {
		if strings.Contains(c, sub) {
			return true
		}
	}
	return false
}

// testConfig keeps pauses at zero and the advance window long so tests
// control timing explicitly.
func testConfig() *Config {
	return &Config{
		Lessons: []Lesson{
			{Preamble: "lesson one intro", VideoFile: "one.mp4", FallbackURL: "https://example.com/1", Conclusion: "one done"},
			{Preamble: "lesson two intro", VideoFile: "two.mp4", FallbackURL: "https://example.com/2", Conclusion: "two done"},
			{Preamble: "lesson three intro", VideoFile: "three.mp4", FallbackURL: "https://example.com/3", Conclusion: "all done"},
		},
		Greeting:          "welcome",
		PromptText:        "press when watched",
		ButtonLabelFormat: "watched %d",
		ConfirmAck:        "confirmed!",
		AutoAdvanceNotice: "auto-advancing...",
		FallbackFormat:    "watch here: %s",
		Completion:        "course complete",
		Upsell:            "buy the full course",
		ReminderBody:      "discount ends soon",
		FinalVideo:        FinalVideo{File: "final.mp4", URL: "https://example.com/final"},

		AdvanceTimeoutSeconds: 3600,
		ReminderDelayMinutes:  60,
		SweepIntervalSeconds:  300,
		CleanupGraceMinutes:   60,
	}
}

func newTestEngine(cfg *Config) (*Engine, *Store, *fakeDelivery) {
	st := NewStore(cfg)
	out := &fakeDelivery{}
	eng := NewEngine(cfg, st, out, nil)
	return eng, st, out
}

func TestStartDeliversFirstLesson(t *testing.T) {
	eng, st, out := newTestEngine(testConfig())

	eng.Start(context.Background(), 1, 100)

	want := []string{
		"text:welcome",
		"video:one.mp4",
		"text:lesson one intro",
		"prompt:1:press when watched",
	}
	got := out.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}

	snap, ok := st.Get(1)
	if !ok || snap.CurrentLesson != 1 {
		t.Fatalf("session lesson = %d, want 1", snap.CurrentLesson)
	}
	if snap.RunningTimers != 1 {
		t.Fatalf("running timers = %d, want 1", snap.RunningTimers)
	}
}

func TestVideoFailureFallsBackToLink(t *testing.T) {
	eng, _, out := newTestEngine(testConfig())
	out.failVideo = true

	eng.Start(context.Background(), 1, 100)

	got := out.snapshot()
	want := []string{
		"text:welcome",
		"text:watch here: https://example.com/1",
		"text:lesson one intro",
		"prompt:1:press when watched",
	}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConfirmAdvancesAndCancelsTimer(t *testing.T) {
	eng, st, out := newTestEngine(testConfig())
	ctx := context.Background()

	eng.Start(ctx, 1, 100)
	eng.Confirm(ctx, 1, 1)

	snap, _ := st.Get(1)
	if snap.CurrentLesson != 2 {
		t.Fatalf("lesson = %d, want 2", snap.CurrentLesson)
	}
	// Lesson 1 timer cancelled, lesson 2 timer armed.
	if snap.RunningTimers != 1 {
		t.Fatalf("running timers = %d, want 1", snap.RunningTimers)
	}
	if !out.contains("edit:") || !out.contains("confirmed!") {
		t.Fatal("prompt was not edited to the acknowledgement")
	}
	if !out.contains("text:one done") {
		t.Fatal("lesson conclusion missing")
	}
	if out.count("video:two.mp4") != 1 {
		t.Fatal("lesson 2 video not sent")
	}
}

func TestDuplicateConfirmIsNoop(t *testing.T) {
	eng, st, out := newTestEngine(testConfig())
	ctx := context.Background()

	eng.Start(ctx, 1, 100)
	eng.Confirm(ctx, 1, 1)
	before := len(out.snapshot())

	eng.Confirm(ctx, 1, 1)

	if got := len(out.snapshot()); got != before {
		t.Fatalf("duplicate confirm produced %d extra calls", got-before)
	}
	snap, _ := st.Get(1)
	if snap.CurrentLesson != 2 {
		t.Fatalf("lesson = %d, want 2", snap.CurrentLesson)
	}
}

func TestConfirmWithoutSessionIsNoop(t *testing.T) {
	eng, _, out := newTestEngine(testConfig())

	eng.Confirm(context.Background(), 99, 1)

	if len(out.snapshot()) != 0 {
		t.Fatalf("stale confirm sent %v", out.snapshot())
	}
}

func TestTimerExpiryAutoAdvances(t *testing.T) {
	cfg := testConfig()
	cfg.AdvanceTimeoutSeconds = 1
	eng, st, out := newTestEngine(cfg)

	eng.Start(context.Background(), 1, 100)

	waitFor(t, 3*time.Second, func() bool {
		snap, ok := st.Get(1)
		return ok && snap.CurrentLesson == 2
	})
	waitFor(t, time.Second, func() bool {
		return out.count("video:two.mp4") == 1
	})

	if !out.contains("auto-advancing...") {
		t.Fatal("prompt not edited with the auto-advance notice")
	}
	if !out.contains("text:one done") {
		t.Fatal("lesson conclusion missing on auto-advance")
	}
}

func TestLastLessonFinalizesOnce(t *testing.T) {
	eng, st, out := newTestEngine(testConfig())
	ctx := context.Background()

	eng.Start(ctx, 1, 100)
	eng.Confirm(ctx, 1, 1)
	eng.Confirm(ctx, 1, 2)

	// Last lesson carries no confirmation prompt.
	if out.count("prompt:3") != 0 {
		t.Fatal("final lesson must not post a confirmation prompt")
	}
	if out.count("text:course complete") != 1 {
		t.Fatal("completion announcement missing")
	}
	if out.count("note:final.mp4") != 1 {
		t.Fatal("final video note not sent")
	}
	if out.count("text:buy the full course") != 1 {
		t.Fatal("upsell missing")
	}

	snap, _ := st.Get(1)
	if !snap.Completed {
		t.Fatal("session not marked completed")
	}
	if snap.ReminderScheduledAt.IsZero() {
		t.Fatal("reminder not scheduled")
	}
	wantAt := time.Now().Add(time.Hour)
	if d := snap.ReminderScheduledAt.Sub(wantAt); d < -time.Minute || d > time.Minute {
		t.Fatalf("reminder scheduled at %v, want ~%v", snap.ReminderScheduledAt, wantAt)
	}
	// Only the reminder remains running.
	if snap.RunningTimers != 1 {
		t.Fatalf("running timers = %d, want 1", snap.RunningTimers)
	}
}

func TestFinalMediaFallbackChain(t *testing.T) {
	eng, _, out := newTestEngine(testConfig())
	out.failVideoNote = true
	out.failVideo = true
	ctx := context.Background()

	eng.Start(ctx, 1, 100)
	eng.Confirm(ctx, 1, 1)
	eng.Confirm(ctx, 1, 2)

	if !out.contains("text:https://example.com/final") {
		t.Fatal("final media did not fall back to the plain link")
	}
}

func TestReminderAfterReclaimStaysSilent(t *testing.T) {
	eng, st, out := newTestEngine(testConfig())

	st.Create(1, 100)
	st.CancelAllTimers()
	st.Reclaim(1)

	eng.fireReminder(1, 100)

	if out.contains("discount ends soon") {
		t.Fatal("reminder sent for reclaimed session")
	}
}

func TestReminderSendsWhileSessionLives(t *testing.T) {
	eng, st, out := newTestEngine(testConfig())

	st.Create(1, 100)
	eng.fireReminder(1, 100)

	if _, ok := st.Get(1); !ok {
		t.Fatal("session unexpectedly missing")
	}
	if !out.contains("text:discount ends soon") {
		t.Fatal("reminder not delivered")
	}
}

func TestShutdownMakesActionsNoops(t *testing.T) {
	eng, st, out := newTestEngine(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	eng.Bind(ctx)
	cancel()

	eng.Start(context.Background(), 1, 100)
	eng.Confirm(context.Background(), 1, 1)
	eng.fireReminder(1, 100)

	if len(out.snapshot()) != 0 {
		t.Fatalf("engine acted during shutdown: %v", out.snapshot())
	}
	if st.Len() != 0 {
		t.Fatalf("store size = %d, want 0", st.Len())
	}
}
