package course

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LastLesson() != 3 {
		t.Fatalf("lessons = %d, want 3", cfg.LastLesson())
	}
	if cfg.AdvanceTimeout() != 600*time.Second {
		t.Fatalf("advance timeout = %v, want 10m", cfg.AdvanceTimeout())
	}
	if cfg.ReminderDelay() != 21*time.Hour {
		t.Fatalf("reminder delay = %v, want 21h", cfg.ReminderDelay())
	}
	if cfg.CleanupGrace() != time.Hour {
		t.Fatalf("cleanup grace = %v, want 1h", cfg.CleanupGrace())
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := &Config{AdvanceTimeoutSeconds: 30}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AdvanceTimeout() != 30*time.Second {
		t.Fatalf("advance timeout = %v, want 30s", cfg.AdvanceTimeout())
	}
}

func TestNormalizeRejectsBrokenLessons(t *testing.T) {
	cfg := &Config{Lessons: []Lesson{{Title: "empty"}}}
	if err := cfg.Normalize(); err == nil {
		t.Fatal("expected error for lesson without preamble")
	}

	cfg = &Config{Lessons: []Lesson{{Preamble: "text"}}}
	if err := cfg.Normalize(); err == nil {
		t.Fatal("expected error for lesson without video or link")
	}
}

func TestLessonAccessorBounds(t *testing.T) {
	cfg := DefaultConfig()
	if _, ok := cfg.Lesson(0); ok {
		t.Fatal("lesson 0 must not exist")
	}
	if _, ok := cfg.Lesson(4); ok {
		t.Fatal("lesson past the table must not exist")
	}
	l, ok := cfg.Lesson(2)
	if !ok || !strings.Contains(l.Preamble, "урок 2") {
		t.Fatalf("lesson 2 lookup broken: %+v", l)
	}
}

func TestButtonLabel(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ButtonLabel(2); !strings.Contains(got, "2") {
		t.Fatalf("button label %q does not mention the lesson", got)
	}
}
