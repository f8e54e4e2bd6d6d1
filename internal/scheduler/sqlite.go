package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SQLiteScheduler stores tasks in SQLite and runs a poll loop that claims
// due tasks and dispatches them to registered handlers. Claiming is a
// conditional update on the pending status, so two loops over the same
// database never run the same task twice.
type SQLiteScheduler struct {
	db       *sql.DB
	pollRate time.Duration
	workers  int
	log      zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewSQLite(path string, pollRate time.Duration, workers int, log zerolog.Logger) (*SQLiteScheduler, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if pollRate <= 0 {
		pollRate = time.Second
	}
	if workers <= 0 {
		workers = 1
	}

	return &SQLiteScheduler{
		db:       db,
		pollRate: pollRate,
		workers:  workers,
		log:      log,
		handlers: make(map[string]HandlerFunc),
		stop:     make(chan struct{}),
	}, nil
}

func (s *SQLiteScheduler) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			run_at DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, run_at) WHERE status = 'pending'`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteScheduler) Close() error {
	return s.db.Close()
}

func (s *SQLiteScheduler) Schedule(ctx context.Context, at time.Time, taskID string, payload []byte) error {
	t := newTask(taskID, payload, at)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, task_id, payload, run_at, status) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.TaskID, string(t.Payload), t.RunAt, t.Status,
	)
	if err != nil {
		return fmt.Errorf("schedule task %s: %w", taskID, err)
	}
	s.log.Debug().Str("task", taskID).Time("run_at", t.RunAt).Msg("task scheduled")
	return nil
}

func (s *SQLiteScheduler) Register(taskID string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskID] = h
}

func (s *SQLiteScheduler) handler(taskID string) (HandlerFunc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[taskID]
	return h, ok
}

func (s *SQLiteScheduler) Start(ctx context.Context) {
	s.log.Info().Int("workers", s.workers).Dur("poll_rate", s.pollRate).Msg("starting task scheduler")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()
}

func (s *SQLiteScheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.log.Info().Msg("task scheduler stopped")
}

func (s *SQLiteScheduler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollRate)
	defer ticker.Stop()

	sem := make(chan struct{}, s.workers)

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			tasks, err := s.claimDue(ctx, s.workers)
			if err != nil {
				s.log.Error().Err(err).Msg("failed to claim due tasks")
				continue
			}

			for _, t := range tasks {
				t := t
				sem <- struct{}{}
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					defer func() { <-sem }()
					s.dispatch(ctx, t)
				}()
			}
		}
	}
}

// claimDue selects pending tasks whose run_at has passed and flips each to
// running with a conditional update. Tasks that lose the race are skipped.
func (s *SQLiteScheduler) claimDue(ctx context.Context, limit int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, payload, run_at, status FROM tasks
		 WHERE status = 'pending' AND run_at <= ?
		 ORDER BY run_at ASC LIMIT ?`,
		time.Now().UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var claimed []Task
	for _, t := range candidates {
		res, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`,
			time.Now().UTC(), t.ID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			t.Status = TaskRunning
			claimed = append(claimed, t)
		}
	}
	return claimed, nil
}

func (s *SQLiteScheduler) dispatch(ctx context.Context, t Task) {
	h, ok := s.handler(t.TaskID)
	if !ok {
		s.log.Error().Str("task", t.TaskID).Str("id", t.ID).Msg("no handler registered for task")
		s.finish(ctx, t.ID, TaskDead)
		return
	}

	if err := h(ctx, t.Payload); err != nil {
		s.log.Error().Err(err).Str("task", t.TaskID).Str("id", t.ID).Msg("task handler failed")
		s.finish(ctx, t.ID, TaskDead)
		return
	}
	s.finish(ctx, t.ID, TaskDone)
}

func (s *SQLiteScheduler) finish(ctx context.Context, id string, status TaskStatus) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id); err != nil {
		s.log.Error().Err(err).Str("id", id).Msg("failed to finish task")
	}
}
