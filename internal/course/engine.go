package course

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dkurbatov/coursebot/core/logger"
)

// Engine drives the send-lesson / await-confirmation / advance cycle.
// It owns no state of its own beyond configuration; all session state
// lives in the Store, all I/O goes through Delivery. Outbound failures
// are logged and progression continues regardless.
type Engine struct {
	cfg   *Config
	store *Store
	out   Delivery
	rec   Recorder

	mu        sync.RWMutex
	lifecycle context.Context
}

// NewEngine wires the progression engine. A nil recorder disables journaling.
func NewEngine(cfg *Config, store *Store, out Delivery, rec Recorder) *Engine {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		out:       out,
		rec:       rec,
		lifecycle: context.Background(),
	}
}

// Bind attaches the process lifecycle context. Once it is cancelled every
// engine action, including in-flight timers, degrades to a no-op.
func (e *Engine) Bind(ctx context.Context) {
	if ctx == nil {
		return
	}
	e.mu.Lock()
	e.lifecycle = ctx
	e.mu.Unlock()
}

func (e *Engine) root() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lifecycle
}

func (e *Engine) closing() bool {
	return e.root().Err() != nil
}

// Start opens a fresh session for the user: greeting, pause, first lesson.
// Any prior session of the same user is superseded.
func (e *Engine) Start(ctx context.Context, userID, chatID int64) {
	if e.closing() {
		return
	}
	snap := e.store.Create(userID, chatID)
	e.record(ctx, Event{UserID: userID, ChatID: chatID, Kind: EventSessionStarted})

	e.sendText(ctx, chatID, e.cfg.Greeting, TextOptions{HTML: true})
	e.pause(e.cfg.SendPause())
	e.sendLesson(ctx, userID, chatID, snap.Epoch, 1)
}

// Confirm handles the user pressing the "I watched it" control for a
// lesson. Stale presses (wrong lesson, gone session) are silent no-ops.
func (e *Engine) Confirm(ctx context.Context, userID int64, lesson int) {
	if e.closing() {
		return
	}
	snap, ok := e.store.AdvanceOnConfirm(userID, lesson)
	if !ok {
		logger.Debug(ctx, "course", "confirm.stale",
			slog.Int64("user_id", userID),
			slog.Int("lesson", lesson),
		)
		return
	}

	if ref, ok := e.store.PromptFor(userID, lesson); ok {
		if err := e.out.EditText(ctx, ref, e.cfg.ConfirmAck); err != nil {
			logger.Warn(ctx, "course", "prompt.edit.fail",
				slog.Int64("user_id", userID),
				slog.Int("lesson", lesson),
				slog.String("err", err.Error()),
			)
		}
	}
	if l, ok := e.cfg.Lesson(lesson); ok {
		e.sendText(ctx, snap.ChatID, l.Conclusion, TextOptions{HTML: true})
	}
	e.record(ctx, Event{UserID: userID, ChatID: snap.ChatID, Kind: EventConfirmed, Lesson: lesson})
	logger.Info(ctx, "course", "lesson.confirmed",
		slog.Int64("user_id", userID),
		slog.Int("lesson", lesson),
	)

	e.pause(e.cfg.SendPause())
	e.sendLesson(ctx, userID, snap.ChatID, snap.Epoch, lesson+1)
}

// sendLesson delivers lesson n: video with link fallback, preamble, and
// either the confirmation prompt plus advance timer or, for the last
// lesson, a short pause into finalization.
func (e *Engine) sendLesson(ctx context.Context, userID, chatID int64, epoch uint64, n int) {
	if e.closing() {
		return
	}
	lesson, ok := e.cfg.Lesson(n)
	if !ok {
		return
	}
	if snap, ok := e.store.Get(userID); !ok || snap.Epoch != epoch {
		return
	}

	if _, err := e.out.SendVideo(ctx, chatID, lesson.VideoFile); err != nil {
		logger.Warn(ctx, "course", "lesson.video.fallback",
			slog.Int64("user_id", userID),
			slog.Int("lesson", n),
			slog.String("err", err.Error()),
		)
		e.sendText(ctx, chatID, e.cfg.FallbackMessage(lesson.FallbackURL),
			TextOptions{HTML: true, WebPagePreview: true})
	}
	e.sendText(ctx, chatID, lesson.Preamble, TextOptions{HTML: true})

	e.record(ctx, Event{UserID: userID, ChatID: chatID, Kind: EventLessonSent, Lesson: n})
	logger.Info(ctx, "course", "lesson.sent",
		slog.Int64("user_id", userID),
		slog.Int("lesson", n),
	)

	if n < e.cfg.LastLesson() {
		ref, err := e.out.SendPrompt(ctx, chatID, e.cfg.PromptText, n)
		if err != nil {
			logger.Warn(ctx, "course", "prompt.send.fail",
				slog.Int64("user_id", userID),
				slog.Int("lesson", n),
				slog.String("err", err.Error()),
			)
		} else {
			e.store.SetPrompt(userID, epoch, n, ref)
		}
		e.store.ArmAdvanceTimer(userID, epoch, n, e.cfg.AdvanceTimeout(), func() {
			e.autoAdvance(userID, chatID, epoch, n)
		})
		return
	}

	e.pause(e.cfg.FinalPause())
	e.finalize(ctx, userID, chatID, epoch)
}

// autoAdvance is the timer-expiry path. It loses to a confirmation that
// moved the cursor first, and to sessions replaced since arming.
func (e *Engine) autoAdvance(userID, chatID int64, epoch uint64, lesson int) {
	ctx := e.timerCtx(userID, chatID)
	if e.closing() {
		logger.Info(ctx, "course", "timer.shutdown_noop",
			slog.Int64("user_id", userID),
			slog.Int("lesson", lesson),
		)
		return
	}
	if _, ok := e.store.AdvanceIfCurrent(userID, epoch, lesson); !ok {
		logger.Debug(ctx, "course", "timer.stale",
			slog.Int64("user_id", userID),
			slog.Int("lesson", lesson),
		)
		return
	}

	if ref, ok := e.store.PromptFor(userID, lesson); ok {
		// Best effort: a failed edit must not block the advance.
		if err := e.out.EditText(ctx, ref, e.cfg.AutoAdvanceNotice); err != nil {
			logger.Warn(ctx, "course", "prompt.edit.fail",
				slog.Int64("user_id", userID),
				slog.Int("lesson", lesson),
				slog.String("err", err.Error()),
			)
		}
	}
	if l, ok := e.cfg.Lesson(lesson); ok {
		e.sendText(ctx, chatID, l.Conclusion, TextOptions{HTML: true})
	}
	e.record(ctx, Event{UserID: userID, ChatID: chatID, Kind: EventAutoAdvanced, Lesson: lesson})
	logger.Info(ctx, "course", "lesson.auto_advanced",
		slog.Int64("user_id", userID),
		slog.Int("lesson", lesson),
	)

	e.pause(e.cfg.SendPause())
	e.sendLesson(ctx, userID, chatID, epoch, lesson+1)
}

// finalize closes the course: announcement, final media with its fallback
// chain, upsell, completion flag, and exactly one scheduled reminder.
func (e *Engine) finalize(ctx context.Context, userID, chatID int64, epoch uint64) {
	if e.closing() {
		return
	}
	if snap, ok := e.store.Get(userID); !ok || snap.Epoch != epoch {
		return
	}

	e.sendText(ctx, chatID, e.cfg.Completion, TextOptions{HTML: true})
	e.sendFinalMedia(ctx, chatID)
	e.pause(e.cfg.UpsellPause())
	e.sendText(ctx, chatID, e.cfg.Upsell, TextOptions{HTML: true})

	e.store.MarkCompleted(userID, epoch)
	e.record(ctx, Event{UserID: userID, ChatID: chatID, Kind: EventCompleted})

	at, scheduled := e.store.ScheduleReminder(userID, e.cfg.ReminderDelay(), func(chat int64) {
		e.fireReminder(userID, chat)
	})
	if scheduled {
		e.record(ctx, Event{UserID: userID, ChatID: chatID, Kind: EventReminderScheduled, Detail: at.Format(time.RFC3339)})
	}
	logger.Info(ctx, "course", "course.completed",
		slog.Int64("user_id", userID),
		slog.Time("reminder_at", at),
	)
}

// sendFinalMedia tries the compact video note first, then a regular video,
// then falls back to a plain link.
func (e *Engine) sendFinalMedia(ctx context.Context, chatID int64) {
	fv := e.cfg.FinalVideo
	_, err := e.out.SendVideoNote(ctx, chatID, fv.File)
	if err == nil {
		return
	}
	logger.Warn(ctx, "course", "final.video_note.fail",
		slog.Int64("chat_id", chatID),
		slog.String("err", err.Error()),
	)

	_, err = e.out.SendVideo(ctx, chatID, fv.File)
	if err == nil {
		return
	}
	logger.Warn(ctx, "course", "final.video.fail",
		slog.Int64("chat_id", chatID),
		slog.String("err", err.Error()),
	)

	e.sendText(ctx, chatID, fv.URL, TextOptions{WebPagePreview: true})
}

// fireReminder runs when the long delay elapses. The chat id was captured
// at scheduling; a reclaimed session means we stay silent.
func (e *Engine) fireReminder(userID, chatID int64) {
	ctx := e.timerCtx(userID, chatID)
	if e.closing() {
		logger.Info(ctx, "course.reminder", "reminder.shutdown_noop",
			slog.Int64("user_id", userID),
		)
		return
	}
	if _, ok := e.store.Get(userID); !ok {
		logger.Debug(ctx, "course.reminder", "reminder.orphaned",
			slog.Int64("user_id", userID),
		)
		return
	}

	e.sendText(ctx, chatID, e.cfg.ReminderBody, TextOptions{HTML: true})
	e.record(ctx, Event{UserID: userID, ChatID: chatID, Kind: EventReminderSent})
	logger.Info(ctx, "course.reminder", "reminder.sent",
		slog.Int64("user_id", userID),
		slog.Int64("chat_id", chatID),
	)
}

func (e *Engine) sendText(ctx context.Context, chatID int64, text string, opts TextOptions) {
	if text == "" {
		return
	}
	if _, err := e.out.SendText(ctx, chatID, text, opts); err != nil {
		logger.Warn(ctx, "course", "text.send.fail",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
}

func (e *Engine) record(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	e.rec.Record(ctx, ev)
}

// pause sleeps for d unless the process is shutting down.
func (e *Engine) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-e.root().Done():
	}
}

// timerCtx builds a logging context for work that originates from a timer
// rather than an inbound update.
func (e *Engine) timerCtx(userID, chatID int64) context.Context {
	ctx := logger.WithUpdateMeta(e.root(), 0, userID, chatID)
	return logger.WithLogger(ctx, logger.Component("course"))
}
