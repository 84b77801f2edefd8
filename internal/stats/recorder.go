// Package stats records user actions for later analysis. Recording is
// best-effort: failures are logged and never surface to the user flow.
package stats

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"merchbot/core/logger"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Recorder writes action rows into the stats table.
type Recorder struct {
	db execer
	wg sync.WaitGroup
}

// NewRecorder builds a recorder over the shared database handle.
// A nil db disables recording entirely.
func NewRecorder(db *sqlx.DB) *Recorder {
	if db == nil {
		return &Recorder{}
	}
	return &Recorder{db: db}
}

// RecordAction queues one action row and returns immediately. The insert
// runs in the background; errors are logged, never returned. A stats outage
// must not slow down or break the conversation.
func (r *Recorder) RecordAction(ctx context.Context, userID int64, action, detail string) {
	if r == nil || r.db == nil {
		return
	}

	const q = `INSERT INTO stats (user_id, action, detail, created_at) VALUES ($1, $2, $3, $4)`

	now := time.Now().UTC()
	insertCtx := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		execCtx, cancel := context.WithTimeout(insertCtx, 5*time.Second)
		defer cancel()

		if _, err := r.db.ExecContext(execCtx, q, userID, action, detail, now); err != nil {
			logger.Warn(insertCtx, "stats", "action.record",
				slog.String("status", logger.Status(err)),
				slog.String("action", action),
				slog.String("err", err.Error()),
			)
		}
	}()
}

// Wait blocks until all queued inserts have finished, used on shutdown.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}
