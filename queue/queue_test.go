package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financify/remote"
	"financify/storage"
)

type fakeConn struct{ online atomic.Bool }

func (c *fakeConn) Online() bool { return c.online.Load() }

func newTestQueue(t *testing.T, online bool) (*Queue, *fakeConn, *time.Time) {
	t.Helper()
	conn := &fakeConn{}
	conn.online.Store(online)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	q := New(storage.NewMemoryStore(), conn, Options{Now: func() time.Time { return now }})
	return q, conn, &now
}

func okApplier() ApplierFunc {
	return func(ctx context.Context, op Operation) (string, error) { return "", nil }
}

func TestEnqueue_OfflineStats(t *testing.T) {
	q, _, _ := newTestQueue(t, false)

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(OpCreate, "transactions", map[string]any{"id": "offline_" + string(rune('a'+i)), "amount": 10})
		require.NoError(t, err)
	}

	stats := q.GetQueueStats()
	assert.Equal(t, Stats{Total: 3, Pending: 3}, stats)

	ops := q.GetPendingOperations()
	require.Len(t, ops, 3)
	assert.Equal(t, "offline_a", ops[0].EntityID)
	assert.Equal(t, DefaultMaxRetries, ops[0].MaxRetries)
	assert.Equal(t, 0, ops[0].RetryCount)
}

func TestProcessQueue_DrainsInOrder(t *testing.T) {
	q, conn, _ := newTestQueue(t, false)

	var mu sync.Mutex
	var seen []string
	q.Register("transactions", ApplierFunc(func(ctx context.Context, op Operation) (string, error) {
		mu.Lock()
		seen = append(seen, op.EntityID)
		mu.Unlock()
		return "", nil
	}))

	for _, id := range []string{"1", "2", "3"} {
		_, err := q.Enqueue(OpUpdate, "transactions", map[string]any{"id": id})
		require.NoError(t, err)
	}

	conn.online.Store(true)
	res, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, []string{"1", "2", "3"}, seen)
	assert.Equal(t, Stats{Total: 3, Completed: 3}, q.GetQueueStats())
	for _, op := range q.GetOperations() {
		assert.NotNil(t, op.CompletedAt)
	}
}

func TestProcessQueue_OfflineIsNoop(t *testing.T) {
	q, _, _ := newTestQueue(t, false)
	q.Register("goals", okApplier())
	_, err := q.Enqueue(OpCreate, "goals", map[string]any{"id": "g1"})
	require.NoError(t, err)

	res, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Equal(t, 1, q.GetQueueStats().Pending)
}

func TestProcessQueue_RetryThenFail(t *testing.T) {
	q, conn, _ := newTestQueue(t, false)

	calls := 0
	q.Register("budgets", ApplierFunc(func(ctx context.Context, op Operation) (string, error) {
		calls++
		return "", errors.New("connection reset")
	}))
	_, err := q.Enqueue(OpCreate, "budgets", map[string]any{"id": "b1"})
	require.NoError(t, err)
	conn.online.Store(true)

	for i := 1; i <= 2; i++ {
		res, err := q.ProcessQueue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Retried)
		ops := q.GetPendingOperations()
		require.Len(t, ops, 1)
		assert.Equal(t, i, ops[0].RetryCount)
	}

	res, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	failed := q.GetFailedOperations()
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].RetryCount)
	assert.Equal(t, "connection reset", failed[0].LastError)
	assert.Equal(t, 3, calls)

	// 失败操作不会被自动重试
	_, err = q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	require.NoError(t, q.RetryOperation(failed[0].ID))
	pending := q.GetPendingOperations()
	require.Len(t, pending, 1)
	assert.Equal(t, 0, pending[0].RetryCount)
	assert.Empty(t, pending[0].LastError)
}

func TestProcessQueue_PermanentErrorFailsImmediately(t *testing.T) {
	q, conn, _ := newTestQueue(t, false)

	q.Register("accounts", ApplierFunc(func(ctx context.Context, op Operation) (string, error) {
		return "", &remote.RemoteError{Code: "23505", Message: "duplicate key"}
	}))
	_, err := q.Enqueue(OpCreate, "accounts", map[string]any{"id": "a1"})
	require.NoError(t, err)

	conn.online.Store(true)
	res, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	failed := q.GetFailedOperations()
	require.Len(t, failed, 1)
	assert.Equal(t, 0, failed[0].RetryCount)
	assert.Contains(t, failed[0].LastError, "duplicate key")
}

func TestProcessQueue_MissingApplier(t *testing.T) {
	q, conn, _ := newTestQueue(t, false)
	_, err := q.Enqueue(OpDelete, "unknown", map[string]any{"id": "x"})
	require.NoError(t, err)

	conn.online.Store(true)
	res, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, q.GetFailedOperations()[0].LastError, "no applier")
}

func TestProcessQueue_SingleFlight(t *testing.T) {
	q, conn, _ := newTestQueue(t, false)

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	q.Register("goals", ApplierFunc(func(ctx context.Context, op Operation) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "", nil
	}))
	_, err := q.Enqueue(OpCreate, "goals", map[string]any{"id": "g1"})
	require.NoError(t, err)
	conn.online.Store(true)

	done := make(chan Result)
	go func() {
		res, _ := q.ProcessQueue(context.Background())
		done <- res
	}()
	<-started

	second, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, 1, q.GetQueueStats().Processing)

	close(release)
	first := <-done
	assert.Equal(t, 1, first.Succeeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestProcessQueue_DefersLaterOpsOfSameEntity(t *testing.T) {
	q, conn, _ := newTestQueue(t, false)

	var order []string
	q.Register("goals", ApplierFunc(func(ctx context.Context, op Operation) (string, error) {
		order = append(order, string(op.Type)+":"+op.EntityID)
		if op.Type == OpCreate && op.EntityID == "offline_1" {
			return "", errors.New("timeout")
		}
		return "", nil
	}))
	_, err := q.Enqueue(OpCreate, "goals", map[string]any{"id": "offline_1"})
	require.NoError(t, err)
	_, err = q.Enqueue(OpUpdate, "goals", map[string]any{"id": "offline_1", "name": "x"})
	require.NoError(t, err)
	_, err = q.Enqueue(OpUpdate, "goals", map[string]any{"id": "g2"})
	require.NoError(t, err)

	conn.online.Store(true)
	res, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"create:offline_1", "update:g2"}, order)
	assert.Equal(t, 1, res.Deferred)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, 1, res.Succeeded)
}

func TestProcessQueue_FailedPredecessorFailsFollowers(t *testing.T) {
	q, conn, _ := newTestQueue(t, false)

	var conflict atomic.Bool
	conflict.Store(true)
	var calls atomic.Int32
	q.Register("goals", ApplierFunc(func(ctx context.Context, op Operation) (string, error) {
		calls.Add(1)
		if op.Type == OpCreate && conflict.Load() {
			return "", &remote.RemoteError{Code: "23505", Message: "duplicate key"}
		}
		return "", nil
	}))
	createID, err := q.Enqueue(OpCreate, "goals", map[string]any{"id": "g1"})
	require.NoError(t, err)
	updateID, err := q.Enqueue(OpUpdate, "goals", map[string]any{"id": "g1", "name": "x"})
	require.NoError(t, err)

	conn.online.Store(true)
	res, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 0, res.Deferred)
	assert.Equal(t, Stats{Total: 2, Failed: 2}, q.GetQueueStats())
	assert.Equal(t, int32(1), calls.Load())

	failed := q.GetFailedOperations()
	require.Len(t, failed, 2)
	assert.Equal(t, updateID, failed[1].ID)
	assert.Equal(t, createID, failed[1].BlockedBy)
	assert.Contains(t, failed[1].LastError, createID)

	// 后续新入队的同实体操作同样指向最初失败的操作
	lateID, err := q.Enqueue(OpUpdate, "goals", map[string]any{"id": "g1", "name": "y"})
	require.NoError(t, err)
	q.Wait()
	var late Operation
	for _, op := range q.GetOperations() {
		if op.ID == lateID {
			late = op
		}
	}
	assert.Equal(t, StatusFailed, late.Status)
	assert.Equal(t, createID, late.BlockedBy)

	conflict.Store(false)
	require.NoError(t, q.RetryOperation(createID))
	assert.Equal(t, Stats{Total: 3, Pending: 3}, q.GetQueueStats())
	for _, op := range q.GetOperations() {
		assert.Empty(t, op.BlockedBy)
		assert.Empty(t, op.LastError)
	}

	res, err = q.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, Stats{Total: 3, Completed: 3}, q.GetQueueStats())
}

func TestOwnerScopedOperations(t *testing.T) {
	q, _, _ := newTestQueue(t, false)
	aliceOp, err := q.Enqueue(OpCreate, "transactions", map[string]any{"id": "offline_a", "user_id": 1})
	require.NoError(t, err)
	bobOp, err := q.Enqueue(OpCreate, "transactions", map[string]any{"id": "offline_b", "user_id": 2})
	require.NoError(t, err)
	_, err = q.Enqueue(OpDelete, "transactions", map[string]any{"id": "legacy"})
	require.NoError(t, err)

	alice := q.OperationsOf(1, "")
	require.Len(t, alice, 1)
	assert.Equal(t, aliceOp, alice[0].ID)
	assert.Equal(t, uint(1), alice[0].OwnerID)
	assert.Empty(t, q.OperationsOf(0, ""))
	assert.Equal(t, Stats{Total: 1, Pending: 1}, q.StatsOf(2))

	assert.ErrorIs(t, q.RemoveOwned(2, aliceOp), ErrOperationNotFound)
	assert.ErrorIs(t, q.RetryOwned(2, aliceOp), ErrOperationNotFound)
	assert.ErrorIs(t, q.RetryOwned(2, bobOp), ErrNotRetryable)
	require.NoError(t, q.RemoveOwned(2, bobOp))
	assert.Equal(t, 2, q.GetQueueStats().Total)
}

func TestProcessQueue_RemapsTempIDs(t *testing.T) {
	q, conn, _ := newTestQueue(t, false)

	var updated Operation
	q.Register("accounts", ApplierFunc(func(ctx context.Context, op Operation) (string, error) {
		if op.Type == OpCreate {
			return "srv-9", nil
		}
		return "", nil
	}))
	q.Register("transactions", ApplierFunc(func(ctx context.Context, op Operation) (string, error) {
		updated = op
		return "", nil
	}))
	var hookCalls [][2]string
	q.OnRemap(func(tempID, serverID string) {
		hookCalls = append(hookCalls, [2]string{tempID, serverID})
	})

	_, err := q.Enqueue(OpCreate, "accounts", map[string]any{"id": "offline_acc"})
	require.NoError(t, err)
	_, err = q.Enqueue(OpCreate, "transactions", map[string]any{"id": "offline_tx", "account_id": "offline_acc"})
	require.NoError(t, err)

	conn.online.Store(true)
	_, err = q.ProcessQueue(context.Background())
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(updated.Payload, &payload))
	assert.Equal(t, "srv-9", payload["account_id"])
	assert.Equal(t, [][2]string{{"offline_acc", "srv-9"}}, hookCalls)
	assert.Equal(t, "srv-9", q.GetOperations()[0].ServerID)
}

func TestPurge_OnlyOldCompleted(t *testing.T) {
	q, conn, now := newTestQueue(t, false)
	q.Register("transactions", okApplier())
	q.Register("goals", ApplierFunc(func(ctx context.Context, op Operation) (string, error) {
		return "", &remote.RemoteError{Code: "42501", Message: "permission denied"}
	}))

	_, err := q.Enqueue(OpCreate, "transactions", map[string]any{"id": "old"})
	require.NoError(t, err)
	_, err = q.Enqueue(OpCreate, "goals", map[string]any{"id": "old-failed"})
	require.NoError(t, err)
	conn.online.Store(true)
	_, err = q.ProcessQueue(context.Background())
	require.NoError(t, err)
	conn.online.Store(false)

	// 8 天后再入队一条
	*now = now.Add(8 * 24 * time.Hour)
	_, err = q.Enqueue(OpCreate, "transactions", map[string]any{"id": "recent"})
	require.NoError(t, err)

	n, err := q.Purge(*now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var ids []string
	for _, op := range q.GetOperations() {
		ids = append(ids, op.EntityID)
	}
	assert.Equal(t, []string{"old-failed", "recent"}, ids)
}

func TestEnqueue_OnlineTriggersDrain(t *testing.T) {
	q, _, _ := newTestQueue(t, true)
	q.Register("transactions", okApplier())

	_, err := q.Enqueue(OpCreate, "transactions", map[string]any{"id": "t1"})
	require.NoError(t, err)
	q.Wait()

	assert.Equal(t, 1, q.GetQueueStats().Completed)
}

func TestQueue_PersistsAcrossInstances(t *testing.T) {
	store := storage.NewMemoryStore()
	conn := &fakeConn{}
	q1 := New(store, conn, Options{})
	_, err := q1.Enqueue(OpUpdate, "budgets", map[string]any{"id": "b1", "limit": 100.5})
	require.NoError(t, err)

	q2 := New(store, conn, Options{})
	ops := q2.GetPendingOperations()
	require.Len(t, ops, 1)
	assert.Equal(t, OpUpdate, ops[0].Type)
	assert.Equal(t, "budgets", ops[0].EntityKind)
	assert.JSONEq(t, `{"id":"b1","limit":100.5}`, string(ops[0].Payload))
}

func TestRetryAndRemove_Errors(t *testing.T) {
	q, _, _ := newTestQueue(t, false)
	id, err := q.Enqueue(OpCreate, "goals", map[string]any{"id": "g"})
	require.NoError(t, err)

	assert.ErrorIs(t, q.RetryOperation("missing"), ErrOperationNotFound)
	assert.ErrorIs(t, q.RetryOperation(id), ErrNotRetryable)
	assert.ErrorIs(t, q.RemoveOperation("missing"), ErrOperationNotFound)
	require.NoError(t, q.RemoveOperation(id))
	assert.Equal(t, 0, q.GetQueueStats().Total)
}

func TestCoalesceAndCancel(t *testing.T) {
	q, _, _ := newTestQueue(t, false)
	_, err := q.Enqueue(OpCreate, "goals", map[string]any{"id": "offline_g", "name": "old"})
	require.NoError(t, err)

	hit, err := q.CoalesceCreate("goals", "offline_g", map[string]any{"id": "offline_g", "name": "new"})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, `{"id":"offline_g","name":"new"}`, string(q.GetPendingOperations()[0].Payload))
	assert.Equal(t, map[string]OperationType{"offline_g": OpCreate}, q.PendingRefs("goals"))
	assert.True(t, q.HasUnsynced("goals", "offline_g"))

	cancelled, err := q.CancelEntity("goals", "offline_g")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, 0, q.GetQueueStats().Total)
}

func TestRecoverAndImport(t *testing.T) {
	q, _, _ := newTestQueue(t, false)
	require.NoError(t, q.Import([]Operation{
		{Type: OpCreate, EntityKind: "transactions", Payload: json.RawMessage(`{"id":"legacy"}`), Status: StatusProcessing},
	}))

	ops := q.GetPendingOperations()
	require.Len(t, ops, 1)
	assert.Equal(t, "legacy", ops[0].EntityID)
	assert.NotEmpty(t, ops[0].ID)

	n, err := q.Recover()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
