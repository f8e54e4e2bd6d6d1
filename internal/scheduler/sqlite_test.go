package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *SQLiteScheduler {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "tasks.db"), 10*time.Millisecond, 2, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func (s *SQLiteScheduler) taskStatus(t *testing.T, id string) TaskStatus {
	t.Helper()
	var status TaskStatus
	err := s.db.QueryRow(`SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
	require.NoError(t, err)
	return status
}

func TestScheduleAndClaim(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, time.Now().UTC().Add(-time.Second), "test.task", []byte(`{"k":"v"}`)))
	require.NoError(t, s.Schedule(ctx, time.Now().UTC().Add(time.Hour), "test.task", []byte(`{}`)))

	claimed, err := s.claimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1, "future tasks must not fire early")
	assert.Equal(t, "test.task", claimed[0].TaskID)
	assert.Equal(t, []byte(`{"k":"v"}`), claimed[0].Payload)

	// Already claimed; a second poll finds nothing.
	claimed, err = s.claimDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestDispatchRunsHandler(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	var got []byte
	s.Register("test.task", func(ctx context.Context, payload []byte) error {
		got = payload
		return nil
	})

	require.NoError(t, s.Schedule(ctx, time.Now().UTC().Add(-time.Second), "test.task", []byte(`{"retry_id":"ret_1"}`)))

	claimed, err := s.claimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	s.dispatch(ctx, claimed[0])
	assert.Equal(t, []byte(`{"retry_id":"ret_1"}`), got)
	assert.Equal(t, TaskDone, s.taskStatus(t, claimed[0].ID))
}

func TestDispatchHandlerError(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	s.Register("test.task", func(ctx context.Context, payload []byte) error {
		return errors.New("boom")
	})

	require.NoError(t, s.Schedule(ctx, time.Now().UTC().Add(-time.Second), "test.task", []byte(`{}`)))
	claimed, err := s.claimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	s.dispatch(ctx, claimed[0])
	assert.Equal(t, TaskDead, s.taskStatus(t, claimed[0].ID))
}

func TestDispatchNoHandler(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, time.Now().UTC().Add(-time.Second), "nobody.home", []byte(`{}`)))
	claimed, err := s.claimDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	s.dispatch(ctx, claimed[0])
	assert.Equal(t, TaskDead, s.taskStatus(t, claimed[0].ID))
}

func TestPollLoopEndToEnd(t *testing.T) {
	s := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan []byte, 1)
	s.Register("test.task", func(ctx context.Context, payload []byte) error {
		done <- payload
		return nil
	})

	require.NoError(t, s.Schedule(ctx, time.Now().UTC(), "test.task", []byte(`{"n":1}`)))

	s.Start(ctx)
	defer s.Stop()

	select {
	case payload := <-done:
		assert.Equal(t, []byte(`{"n":1}`), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled task never fired")
	}
}
