// Package journal appends progression events to Postgres so the marketing
// side can query funnel drop-off. It is write-only and optional: session
// state never depends on it, and the bot runs with it disabled.
package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dkurbatov/coursebot/core/logger"
	"github.com/dkurbatov/coursebot/internal/course"
)

const insertEvent = `
	INSERT INTO journal_events (user_id, chat_id, kind, lesson, detail, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

const writeTimeout = 3 * time.Second

// Journal implements course.Recorder over a Postgres table.
type Journal struct {
	db *sqlx.DB
	wg sync.WaitGroup
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Journal {
	return &Journal{db: db}
}

// Record writes the event asynchronously. The engine must never wait on
// the journal; a failed insert is logged and dropped.
func (j *Journal) Record(ctx context.Context, ev course.Event) {
	if j == nil || j.db == nil {
		return
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		_, err := j.db.ExecContext(writeCtx, insertEvent,
			ev.UserID, ev.ChatID, ev.Kind, ev.Lesson, ev.Detail, ev.At,
		)
		if err != nil {
			logger.Error(ctx, "journal", "event.write.fail",
				slog.String("action", ev.Kind),
				slog.Int64("user_id", ev.UserID),
				slog.String("err", err.Error()),
			)
			return
		}
		logger.Debug(ctx, "journal", "event.written",
			slog.String("action", ev.Kind),
			slog.Int64("user_id", ev.UserID),
			slog.Int("lesson", ev.Lesson),
		)
	}()
}

// Close waits for in-flight writes and closes the database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	j.wg.Wait()
	return j.db.Close()
}
