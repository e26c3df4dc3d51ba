package bot

import (
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/dkurbatov/coursebot/core/logger"
	"github.com/dkurbatov/coursebot/core/telegram/callbacks"
	tghelpers "github.com/dkurbatov/coursebot/core/telegram/helpers"
)

// callbackLessonWatched is the unique key carried by the confirmation button.
const callbackLessonWatched = "lesson_watched"

const helpText = "ℹ️ <b>Помощь:</b>\n\n" +
	"/start - Начать обучение\n" +
	"/help - Эта справка\n\n" +
	"📥 Бот отправляет видео для обучения\n" +
	"⏳ На каждое видео даётся 10 минут\n" +
	"✅ Нажмите кнопку после просмотра"

const noSessionReply = "Пожалуйста, начните с команды /start"

// handleStart opens a fresh course session. The lesson flow includes
// deliberate pauses, so it runs off the handler goroutine to keep the
// poller responsive.
func (a *App) handleStart(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "start")
	user := c.Sender()
	chat := c.Chat()
	if user == nil || chat == nil {
		return nil
	}
	go a.engine.Start(ctx, user.ID, chat.ID)
	return nil
}

func (a *App) handleHelp(c tele.Context) error {
	return tghelpers.SendHTML(c, helpText)
}

// handleWatched processes the confirmation button. Presses without a
// live session point the user back to /start; everything else is the
// engine's race to settle.
func (a *App) handleWatched(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "lesson_watched")
	user := c.Sender()
	if user == nil {
		return nil
	}

	lesson, err := callbacks.PayloadInt(c)
	if err != nil {
		logger.Warn(ctx, "tg", "callback.payload.invalid",
			slog.String("payload", logger.SanitizeLimit(callbacks.CallbackPayload(c), 64)),
		)
		return nil
	}

	if _, ok := a.store.Get(user.ID); !ok {
		return tghelpers.SendText(c, noSessionReply)
	}

	go a.engine.Confirm(ctx, user.ID, lesson)
	return nil
}

// handleDebug dumps live session state. Admin-only via registry metadata.
func (a *App) handleDebug(c tele.Context) error {
	snaps := a.store.Snapshots()

	var b strings.Builder
	fmt.Fprintf(&b, "📊 sessions: %d\n", len(snaps))
	for _, s := range snaps {
		fmt.Fprintf(&b, "\nuser=%d chat=%d lesson=%d timers=%d completed=%t cleanup_pending=%t",
			s.UserID, s.ChatID, s.CurrentLesson, s.RunningTimers, s.Completed, s.CleanupPending)
		if !s.ReminderScheduledAt.IsZero() {
			fmt.Fprintf(&b, " reminder_at=%s", s.ReminderScheduledAt.Format("2006-01-02 15:04:05"))
		}
	}
	return tghelpers.SendText(c, b.String())
}
