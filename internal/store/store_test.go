package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewhq/renewd/internal/models"
)

// Both backends must satisfy the same contract, so every test here runs
// against each of them.
func testStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	table, err := NewSQLite(filepath.Join(t.TempDir(), "table.db"))
	require.NoError(t, err)
	require.NoError(t, table.Migrate(ctx))
	t.Cleanup(func() { table.Close() })

	records, err := NewRecords(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	require.NoError(t, records.Migrate(ctx))
	t.Cleanup(func() { records.Close() })

	return map[string]Store{"table": table, "records": records}
}

func testRule(delay time.Duration) models.RetryRule {
	return models.RetryRule{
		RetryAfter:         delay,
		OrderStatus:        models.OrderPending,
		SubscriptionStatus: models.SubscriptionOnHold,
		EmailAdmin:         "admin_payment_retry",
	}
}

func saveRetry(t *testing.T, s Store, orderID string, delay time.Duration) *models.Retry {
	t.Helper()
	r := models.NewRetry(orderID, testRule(delay), time.Now().UTC())
	id, err := s.Save(context.Background(), r)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return r
}

func TestSaveAndGet(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := saveRetry(t, s, "ord_a", time.Hour)

			got, err := s.Get(ctx, r.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, r.ID, got.ID)
			assert.Equal(t, "ord_a", got.OrderID)
			assert.Equal(t, models.RetryPending, got.Status)
			assert.Equal(t, testRule(time.Hour), got.Rule, "rule snapshot survives the round trip")
			assert.WithinDuration(t, r.ScheduledAt, got.ScheduledAt, time.Second)
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Get(context.Background(), "ret_nope")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestSaveIdempotent(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := saveRetry(t, s, "ord_a", time.Hour)

			r.Status = models.RetryProcessing
			id2, err := s.Save(ctx, r)
			require.NoError(t, err)
			assert.Equal(t, r.ID, id2)

			// Exactly one record, reflecting the latest status.
			count, err := s.CountForOrder(ctx, "ord_a")
			require.NoError(t, err)
			assert.Equal(t, 1, count)

			got, err := s.Get(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, models.RetryProcessing, got.Status)
		})
	}
}

func TestCountMonotonic(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for k := 1; k <= 4; k++ {
				saveRetry(t, s, "ord_a", time.Hour)
				count, err := s.CountForOrder(ctx, "ord_a")
				require.NoError(t, err)
				assert.Equal(t, k, count)
			}
		})
	}
}

func TestOrderIndependence(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := saveRetry(t, s, "ord_a", time.Hour)
			saveRetry(t, s, "ord_b", time.Hour)

			ids, err := s.IDsForOrder(ctx, "ord_a")
			require.NoError(t, err)
			assert.Equal(t, []string{a.ID}, ids)

			count, err := s.CountForOrder(ctx, "ord_b")
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestIDsForOrderAscending(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var want []string
			for i := 0; i < 3; i++ {
				r := saveRetry(t, s, "ord_a", time.Hour)
				want = append(want, r.ID)
				time.Sleep(2 * time.Millisecond)
			}

			ids, err := s.IDsForOrder(ctx, "ord_a")
			require.NoError(t, err)
			assert.Equal(t, want, ids, "creation order must be preserved")

			last, err := s.LastForOrder(ctx, "ord_a")
			require.NoError(t, err)
			require.NotNil(t, last)
			assert.Equal(t, want[2], last.ID)
		})
	}
}

func TestLastForOrderEmpty(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			last, err := s.LastForOrder(context.Background(), "ord_none")
			require.NoError(t, err)
			assert.Nil(t, last)
		})
	}
}

func TestTransition(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := saveRetry(t, s, "ord_a", time.Hour)

			ok, err := s.Transition(ctx, r.ID, models.RetryPending, models.RetryProcessing)
			require.NoError(t, err)
			assert.True(t, ok)

			// A second claim on the same pending state loses.
			ok, err = s.Transition(ctx, r.ID, models.RetryPending, models.RetryProcessing)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = s.Transition(ctx, r.ID, models.RetryProcessing, models.RetryComplete)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := s.Get(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, models.RetryComplete, got.Status)
		})
	}
}

func TestNoRegressionFromTerminal(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := saveRetry(t, s, "ord_a", time.Hour)

			ok, err := s.Transition(ctx, r.ID, models.RetryPending, models.RetryCancelled)
			require.NoError(t, err)
			require.True(t, ok)

			// Illegal moves are rejected outright.
			_, err = s.Transition(ctx, r.ID, models.RetryCancelled, models.RetryPending)
			assert.Error(t, err)

			// A stale claim from a concurrent execution finds no pending row.
			ok, err = s.Transition(ctx, r.ID, models.RetryPending, models.RetryProcessing)
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := s.Get(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, models.RetryCancelled, got.Status)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := saveRetry(t, s, "ord_a", time.Hour)

			ok, err := s.Delete(ctx, r.ID)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := s.Get(ctx, r.ID)
			require.NoError(t, err)
			assert.Nil(t, got)

			ok, err = s.Delete(ctx, r.ID)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestListFilters(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			short := saveRetry(t, s, "ord_a", time.Hour)
			long := saveRetry(t, s, "ord_a", 72*time.Hour)
			other := saveRetry(t, s, "ord_b", time.Hour)

			_, err := s.Transition(ctx, other.ID, models.RetryPending, models.RetryCancelled)
			require.NoError(t, err)

			t.Run("by order", func(t *testing.T) {
				got, err := s.List(ctx, Filter{OrderID: "ord_a"})
				require.NoError(t, err)
				assert.Len(t, got, 2)
			})

			t.Run("by status", func(t *testing.T) {
				got, err := s.List(ctx, Filter{Status: models.RetryCancelled})
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, other.ID, got[0].ID)
			})

			t.Run("date range", func(t *testing.T) {
				cut := time.Now().UTC().Add(24 * time.Hour)
				got, err := s.List(ctx, Filter{OrderID: "ord_a", To: cut})
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, short.ID, got[0].ID)

				got, err = s.List(ctx, Filter{OrderID: "ord_a", From: cut})
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, long.ID, got[0].ID)
			})

			t.Run("default ordering is descending", func(t *testing.T) {
				got, err := s.List(ctx, Filter{OrderID: "ord_a"})
				require.NoError(t, err)
				require.Len(t, got, 2)
				assert.Equal(t, long.ID, got[0].ID, "latest scheduled first")
			})

			t.Run("ascending with limit", func(t *testing.T) {
				got, err := s.List(ctx, Filter{OrderID: "ord_a", Ascending: true, Limit: 1})
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, short.ID, got[0].ID)
			})
		})
	}
}

func TestStats(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			saveRetry(t, s, "ord_a", time.Hour)
			r := saveRetry(t, s, "ord_b", time.Hour)
			_, err := s.Transition(ctx, r.ID, models.RetryPending, models.RetryCancelled)
			require.NoError(t, err)

			stats, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), stats.Total)
			assert.Equal(t, int64(1), stats.Pending)
			assert.Equal(t, int64(1), stats.Cancelled)
		})
	}
}
