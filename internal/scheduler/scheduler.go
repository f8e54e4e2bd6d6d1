// Package scheduler is the durable task queue behind future retries. Tasks
// are rows in SQLite, executed by a poll loop; nothing about a scheduled
// retry lives in process memory, so a restart between scheduling and firing
// loses no work. The only timing guarantee is "not before run_at".
package scheduler

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/renewhq/renewd/internal/models"
)

type HandlerFunc func(ctx context.Context, payload []byte) error

// Scheduler is the port the retry manager depends on.
type Scheduler interface {
	Schedule(ctx context.Context, at time.Time, taskID string, payload []byte) error
	Register(taskID string, h HandlerFunc)
}

type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskDead    TaskStatus = "dead"
)

type Task struct {
	ID      string
	TaskID  string
	Payload []byte
	RunAt   time.Time
	Status  TaskStatus
}

func newTask(taskID string, payload []byte, at time.Time) *Task {
	return &Task{
		ID:      models.NewID("tsk"),
		TaskID:  taskID,
		Payload: payload,
		RunAt:   at.UTC(),
		Status:  TaskPending,
	}
}

// rowScanner matches both *sql.Row and *sql.Rows.
type rowScanner interface{ Scan(...interface{}) error }

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var payload string
	if err := row.Scan(&t.ID, &t.TaskID, &payload, &t.RunAt, &t.Status); err != nil {
		return nil, err
	}
	t.Payload = []byte(payload)
	return &t, nil
}

var _ rowScanner = (*sql.Row)(nil)
