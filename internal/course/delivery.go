package course

import (
	"context"
	"time"
)

// MessageRef points at a previously sent message so it can be edited in place.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Zero reports whether the reference does not identify any message.
func (r MessageRef) Zero() bool {
	return r.ChatID == 0 && r.MessageID == 0
}

// TextOptions tunes outbound text delivery.
type TextOptions struct {
	HTML           bool
	WebPagePreview bool
}

// Delivery is the outbound messaging surface consumed by the engine.
// Every call is independently failable; the engine treats failures as
// recoverable and never aborts progression because of one.
type Delivery interface {
	SendText(ctx context.Context, chatID int64, text string, opts TextOptions) (MessageRef, error)
	SendVideo(ctx context.Context, chatID int64, file string) (MessageRef, error)
	SendVideoNote(ctx context.Context, chatID int64, file string) (MessageRef, error)
	// SendPrompt posts the confirmation request with the inline
	// "I watched it" control for the given lesson.
	SendPrompt(ctx context.Context, chatID int64, text string, lesson int) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string) error
}

// Event kinds written to the optional delivery journal.
const (
	EventSessionStarted    = "session.started"
	EventLessonSent        = "lesson.sent"
	EventConfirmed         = "lesson.confirmed"
	EventAutoAdvanced      = "lesson.auto_advanced"
	EventCompleted         = "course.completed"
	EventReminderScheduled = "reminder.scheduled"
	EventReminderSent      = "reminder.sent"
)

// Event describes a single progression fact worth journaling.
type Event struct {
	UserID int64
	ChatID int64
	Kind   string
	Lesson int
	Detail string
	At     time.Time
}

// Recorder receives progression events. Implementations must never block
// the engine; failures are their own concern.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// NopRecorder discards all events. Used when no journal is configured.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Event) {}
