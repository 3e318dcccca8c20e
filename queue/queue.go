// Package queue 离线操作队列：无法立即写入远端的创建、更新、删除操作持久化到本地存储，
// 网络恢复后按入队顺序回放，临时失败自动重试，超过重试上限后标记为失败等待人工处理。
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"financify/remote"
	"financify/storage"
)

var (
	// ErrOperationNotFound 操作不存在
	ErrOperationNotFound = errors.New("queue: operation not found")
	// ErrNotRetryable 只有失败的操作可以重试
	ErrNotRetryable = errors.New("queue: operation is not in failed state")
	// ErrNoApplier 实体类型没有注册处理器
	ErrNoApplier = errors.New("queue: no applier registered for entity kind")
)

// Applier 将一条操作写入远端。创建操作返回服务端分配的 ID
type Applier interface {
	Apply(ctx context.Context, op Operation) (serverID string, err error)
}

// ApplierFunc 函数适配器
type ApplierFunc func(ctx context.Context, op Operation) (string, error)

func (f ApplierFunc) Apply(ctx context.Context, op Operation) (string, error) {
	return f(ctx, op)
}

// Connectivity 网络状态
type Connectivity interface {
	Online() bool
}

// RemapHook 创建操作成功后临时 ID 被替换为服务端 ID 时回调
type RemapHook func(tempID, serverID string)

// Options 队列参数
type Options struct {
	MaxRetries int
	Retention  time.Duration
	Now        func() time.Time
}

// Queue 离线操作队列
type Queue struct {
	store      storage.Store
	conn       Connectivity
	maxRetries int
	retention  time.Duration
	now        func() time.Time

	mu         sync.Mutex
	appliers   map[string]Applier
	hooks      []RemapHook
	processing atomic.Bool
	drains     sync.WaitGroup
}

// New 创建队列
func New(store storage.Store, conn Connectivity, opts Options) *Queue {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		store:      store,
		conn:       conn,
		maxRetries: opts.MaxRetries,
		retention:  opts.Retention,
		now:        opts.Now,
		appliers:   make(map[string]Applier),
	}
}

// Register 注册实体类型的处理器
func (q *Queue) Register(kind string, a Applier) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.appliers[kind] = a
}

// OnRemap 注册 ID 替换回调
func (q *Queue) OnRemap(h RemapHook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hooks = append(q.hooks, h)
}

func (q *Queue) load() []Operation {
	var ops []Operation
	if !storage.GetJSON(q.store, storage.OfflineQueueKey, &ops) {
		return []Operation{}
	}
	return ops
}

func (q *Queue) save(ops []Operation) error {
	return storage.SetJSON(q.store, storage.OfflineQueueKey, ops)
}

func indexOf(ops []Operation, id string) int {
	for i := range ops {
		if ops[i].ID == id {
			return i
		}
	}
	return -1
}

// Enqueue 追加一条操作，在线时立即触发一次后台处理
func (q *Queue) Enqueue(typ OperationType, kind string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("序列化操作数据失败: %w", err)
	}
	entityID, owner := payloadRef(data)
	op := Operation{
		ID:         uuid.NewString(),
		Type:       typ,
		EntityKind: kind,
		EntityID:   entityID,
		OwnerID:    owner,
		Payload:    data,
		Timestamp:  q.now(),
		MaxRetries: q.maxRetries,
		Status:     StatusPending,
	}

	q.mu.Lock()
	ops := q.load()
	ops = append(ops, op)
	err = q.save(ops)
	q.mu.Unlock()
	if err != nil {
		return "", err
	}

	record(opsEnqueued, kind)
	log.Printf("离线队列新增操作: %s %s id=%s", typ, kind, op.EntityID)

	if q.conn.Online() {
		q.drains.Add(1)
		go func() {
			defer q.drains.Done()
			if _, err := q.ProcessQueue(context.Background()); err != nil {
				log.Printf("后台处理离线队列失败: %v", err)
			}
		}()
	}
	return op.ID, nil
}

// Wait 等待由 Enqueue 触发的后台处理结束
func (q *Queue) Wait() {
	q.drains.Wait()
}

// ProcessQueue 按入队顺序处理全部待处理操作。
// 同一时间只允许一次处理，重复调用直接返回 Skipped；离线时不做任何事
func (q *Queue) ProcessQueue(ctx context.Context) (Result, error) {
	if !q.processing.CompareAndSwap(false, true) {
		return Result{Skipped: true}, nil
	}
	defer q.processing.Store(false)

	if !q.conn.Online() {
		return Result{Skipped: true, Offline: true}, nil
	}

	start := time.Now()
	var res Result

	q.mu.Lock()
	ops := q.load()
	// 同一实体存在未完成的前序操作时，后续操作留待下一轮；前序操作已失败时后续操作一并标记失败
	blockers := make(map[string]blocker)
	var ids []string
	for i := range ops {
		switch ops[i].Status {
		case StatusFailed:
			if ops[i].EntityID != "" && !blockers[ops[i].entityRef()].failed {
				blockers[ops[i].entityRef()] = blocker{opID: ops[i].ID, failed: true}
			}
		case StatusProcessing:
			if ops[i].EntityID != "" {
				if _, ok := blockers[ops[i].entityRef()]; !ok {
					blockers[ops[i].entityRef()] = blocker{opID: ops[i].ID}
				}
			}
		case StatusPending:
			ids = append(ids, ops[i].ID)
		}
	}
	q.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		op, state, err := q.begin(id, blockers)
		if err != nil {
			return res, err
		}
		switch state {
		case beginSkipped:
			continue
		case beginDeferred:
			res.Deferred++
			continue
		case beginBlocked:
			res.Failed++
			continue
		}

		res.Processed++
		serverID, applyErr := q.apply(ctx, op)
		outcome, err := q.finish(ctx, op, serverID, applyErr)
		if err != nil {
			return res, err
		}
		switch outcome {
		case StatusCompleted:
			res.Succeeded++
		case StatusFailed:
			res.Failed++
			if op.EntityID != "" {
				blockers[op.entityRef()] = blocker{opID: op.ID, failed: true}
			}
		case StatusPending:
			if ctx.Err() != nil {
				res.Processed--
				break
			}
			res.Retried++
			if op.EntityID != "" {
				blockers[op.entityRef()] = blocker{opID: op.ID}
			}
		}
	}

	purged, err := q.Purge(q.now())
	if err != nil {
		return res, err
	}
	res.Purged = purged

	drainDuration.Record(context.Background(), time.Since(start).Seconds())
	if res.Processed > 0 || res.Purged > 0 || res.Failed > 0 {
		log.Printf("离线队列处理完成: 处理 %d, 成功 %d, 重试 %d, 失败 %d, 延后 %d, 清理 %d",
			res.Processed, res.Succeeded, res.Retried, res.Failed, res.Deferred, res.Purged)
	}
	return res, ctx.Err()
}

// blocker 同一实体上尚未完成的前序操作
type blocker struct {
	opID   string
	failed bool
}

type beginState int

const (
	beginStarted beginState = iota
	beginSkipped
	beginDeferred
	beginBlocked
)

// begin 将操作标记为 processing。前序操作仍在重试时延后；前序操作已失败时直接标记失败并记录 BlockedBy
func (q *Queue) begin(id string, blockers map[string]blocker) (Operation, beginState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := q.load()
	i := indexOf(ops, id)
	if i < 0 || ops[i].Status != StatusPending {
		return Operation{}, beginSkipped, nil
	}
	cur := &ops[i]
	if b, ok := blockers[cur.entityRef()]; ok && cur.EntityID != "" {
		if !b.failed {
			return *cur, beginDeferred, nil
		}
		cur.Status = StatusFailed
		cur.BlockedBy = b.opID
		cur.LastError = fmt.Sprintf("前序操作 %s 失败，未执行", b.opID)
		if err := q.save(ops); err != nil {
			return Operation{}, beginSkipped, err
		}
		record(opsFailed, cur.EntityKind)
		log.Printf("离线操作因前序操作 %s 失败而未执行: %s %s id=%s", b.opID, cur.Type, cur.EntityKind, cur.EntityID)
		return *cur, beginBlocked, nil
	}
	cur.Status = StatusProcessing
	if err := q.save(ops); err != nil {
		return Operation{}, beginSkipped, err
	}
	return *cur, beginStarted, nil
}

func (q *Queue) apply(ctx context.Context, op Operation) (string, error) {
	q.mu.Lock()
	a, ok := q.appliers[op.EntityKind]
	q.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoApplier, op.EntityKind)
	}
	return a.Apply(ctx, op)
}

// finish 根据处理结果更新操作状态，返回最终状态
func (q *Queue) finish(ctx context.Context, op Operation, serverID string, applyErr error) (Status, error) {
	q.mu.Lock()

	ops := q.load()
	i := indexOf(ops, op.ID)
	if i < 0 {
		// 处理期间被删除
		q.mu.Unlock()
		return "", nil
	}
	cur := &ops[i]

	var remapped bool
	switch {
	case applyErr == nil:
		now := q.now()
		cur.Status = StatusCompleted
		cur.CompletedAt = &now
		cur.LastError = ""
		if cur.Type == OpCreate && serverID != "" && cur.EntityID != "" && serverID != cur.EntityID {
			cur.ServerID = serverID
			remapOps(ops, cur.EntityID, serverID)
			remapped = true
		}
		record(opsCompleted, cur.EntityKind)
	case ctx.Err() != nil && errors.Is(applyErr, ctx.Err()):
		cur.Status = StatusPending
	case errors.Is(applyErr, ErrNoApplier) || remote.IsPermanent(applyErr):
		cur.Status = StatusFailed
		cur.LastError = applyErr.Error()
		record(opsFailed, cur.EntityKind)
		log.Printf("离线操作不可重试，标记失败: %s %s id=%s: %v", cur.Type, cur.EntityKind, cur.EntityID, applyErr)
	default:
		cur.RetryCount++
		cur.LastError = applyErr.Error()
		if cur.RetryCount >= cur.MaxRetries {
			cur.Status = StatusFailed
			record(opsFailed, cur.EntityKind)
			log.Printf("离线操作超过最大重试次数 %d，标记失败: %s %s id=%s: %v",
				cur.MaxRetries, cur.Type, cur.EntityKind, cur.EntityID, applyErr)
		} else {
			cur.Status = StatusPending
			record(opsRetried, cur.EntityKind)
		}
	}
	status := cur.Status
	if err := q.save(ops); err != nil {
		q.mu.Unlock()
		return status, err
	}
	hooks := append([]RemapHook(nil), q.hooks...)
	q.mu.Unlock()

	if remapped {
		for _, h := range hooks {
			h(op.EntityID, serverID)
		}
	}
	return status, nil
}

// remapOps 将尚未完成的操作中引用 oldID 的地方替换为 newID
func remapOps(ops []Operation, oldID, newID string) int {
	n := 0
	for i := range ops {
		if ops[i].Status == StatusCompleted {
			continue
		}
		changed := false
		if ops[i].EntityID == oldID {
			ops[i].EntityID = newID
			changed = true
		}
		if p, ok := remapPayload(ops[i].Payload, oldID, newID); ok {
			ops[i].Payload = p
			changed = true
		}
		if changed {
			n++
		}
	}
	return n
}

// RemapID 替换队列中对临时 ID 的引用，返回受影响的操作数
func (q *Queue) RemapID(oldID, newID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := q.load()
	n := remapOps(ops, oldID, newID)
	if n == 0 {
		return 0, nil
	}
	return n, q.save(ops)
}

// GetQueueStats 各状态计数
func (q *Queue) GetQueueStats() Stats {
	q.mu.Lock()
	ops := q.load()
	q.mu.Unlock()
	return countStats(ops)
}

// StatsOf 指定用户的操作计数
func (q *Queue) StatsOf(owner uint) Stats {
	return countStats(q.OperationsOf(owner, ""))
}

func countStats(ops []Operation) Stats {
	s := Stats{Total: len(ops)}
	for _, op := range ops {
		switch op.Status {
		case StatusPending:
			s.Pending++
		case StatusProcessing:
			s.Processing++
		case StatusFailed:
			s.Failed++
		case StatusCompleted:
			s.Completed++
		}
	}
	return s
}

func (q *Queue) filter(status Status) []Operation {
	q.mu.Lock()
	ops := q.load()
	q.mu.Unlock()

	out := make([]Operation, 0)
	for _, op := range ops {
		if op.Status == status {
			out = append(out, op)
		}
	}
	return out
}

// GetOperations 全部操作，按入队顺序
func (q *Queue) GetOperations() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// GetPendingOperations 待处理操作
func (q *Queue) GetPendingOperations() []Operation {
	return q.filter(StatusPending)
}

// GetFailedOperations 失败操作
func (q *Queue) GetFailedOperations() []Operation {
	return q.filter(StatusFailed)
}

// OperationsOf 指定用户的操作，status 为空时不按状态过滤。无归属的操作不会返回
func (q *Queue) OperationsOf(owner uint, status Status) []Operation {
	q.mu.Lock()
	ops := q.load()
	q.mu.Unlock()

	out := make([]Operation, 0)
	for _, op := range ops {
		if op.OwnerID != owner || owner == 0 {
			continue
		}
		if status != "" && op.Status != status {
			continue
		}
		out = append(out, op)
	}
	return out
}

// RetryOperation 将失败操作重置为待处理并清零重试次数，因它失败而未执行的后续操作一并重置
func (q *Queue) RetryOperation(id string) error {
	return q.retry(id, func(*Operation) bool { return true })
}

// RetryOwned 同 RetryOperation，操作不属于 owner 时视为不存在
func (q *Queue) RetryOwned(owner uint, id string) error {
	return q.retry(id, ownedBy(owner))
}

func ownedBy(owner uint) func(*Operation) bool {
	return func(op *Operation) bool { return owner != 0 && op.OwnerID == owner }
}

func (q *Queue) retry(id string, visible func(*Operation) bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := q.load()
	i := indexOf(ops, id)
	if i < 0 || !visible(&ops[i]) {
		return ErrOperationNotFound
	}
	if ops[i].Status != StatusFailed {
		return ErrNotRetryable
	}
	reset := func(op *Operation) {
		op.Status = StatusPending
		op.RetryCount = 0
		op.LastError = ""
		op.BlockedBy = ""
	}
	released := map[string]bool{id: true}
	reset(&ops[i])
	for changed := true; changed; {
		changed = false
		for j := range ops {
			if ops[j].Status == StatusFailed && released[ops[j].BlockedBy] {
				released[ops[j].ID] = true
				reset(&ops[j])
				changed = true
			}
		}
	}
	return q.save(ops)
}

// RemoveOperation 删除指定操作
func (q *Queue) RemoveOperation(id string) error {
	return q.remove(id, func(*Operation) bool { return true })
}

// RemoveOwned 同 RemoveOperation，操作不属于 owner 时视为不存在
func (q *Queue) RemoveOwned(owner uint, id string) error {
	return q.remove(id, ownedBy(owner))
}

func (q *Queue) remove(id string, visible func(*Operation) bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := q.load()
	i := indexOf(ops, id)
	if i < 0 || !visible(&ops[i]) {
		return ErrOperationNotFound
	}
	ops = append(ops[:i], ops[i+1:]...)
	return q.save(ops)
}

// ClearCompleted 删除全部已完成操作
func (q *Queue) ClearCompleted() (int, error) {
	return q.clearCompleted(func(*Operation) bool { return true })
}

// ClearCompletedOf 删除指定用户已完成的操作
func (q *Queue) ClearCompletedOf(owner uint) (int, error) {
	return q.clearCompleted(ownedBy(owner))
}

func (q *Queue) clearCompleted(visible func(*Operation) bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := q.load()
	kept := ops[:0]
	for i := range ops {
		if ops[i].Status != StatusCompleted || !visible(&ops[i]) {
			kept = append(kept, ops[i])
		}
	}
	n := len(ops) - len(kept)
	if n == 0 {
		return 0, nil
	}
	return n, q.save(kept)
}

// Purge 删除入队时间早于 now-retention 的已完成操作，其余状态一律保留
func (q *Queue) Purge(now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := now.Add(-q.retention)
	ops := q.load()
	kept := ops[:0]
	for _, op := range ops {
		if op.Status == StatusCompleted && op.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, op)
	}
	n := len(ops) - len(kept)
	if n == 0 {
		return 0, nil
	}
	return n, q.save(kept)
}

// HasUnsynced 实体是否存在尚未完成的操作
func (q *Queue) HasUnsynced(kind, entityID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.load() {
		if op.EntityKind == kind && op.EntityID == entityID && op.Status != StatusCompleted {
			return true
		}
	}
	return false
}

// PendingRefs 某类实体中尚未完成的操作，值为该实体最后一条操作的类型
func (q *Queue) PendingRefs(kind string) map[string]OperationType {
	q.mu.Lock()
	defer q.mu.Unlock()
	refs := make(map[string]OperationType)
	for _, op := range q.load() {
		if op.EntityKind == kind && op.EntityID != "" && op.Status != StatusCompleted {
			refs[op.EntityID] = op.Type
		}
	}
	return refs
}

// CoalesceCreate 尚未处理的创建操作直接替换为最新数据，返回是否命中
func (q *Queue) CoalesceCreate(kind, entityID string, payload any) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("序列化操作数据失败: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := q.load()
	for i := range ops {
		op := &ops[i]
		if op.EntityKind == kind && op.EntityID == entityID && op.Type == OpCreate && op.Status == StatusPending {
			op.Payload = data
			return true, q.save(ops)
		}
	}
	return false, nil
}

// CancelEntity 删除实体尚未处理的操作。若其中包含创建操作，返回 true，
// 表示该实体从未到达远端，无需再入队删除
func (q *Queue) CancelEntity(kind, entityID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := q.load()
	kept := ops[:0]
	cancelledCreate := false
	for _, op := range ops {
		if op.EntityKind == kind && op.EntityID == entityID &&
			(op.Status == StatusPending || op.Status == StatusFailed) {
			if op.Type == OpCreate {
				cancelledCreate = true
			}
			continue
		}
		kept = append(kept, op)
	}
	if len(kept) == len(ops) {
		return false, nil
	}
	return cancelledCreate, q.save(kept)
}

// Import 追加外部来源的操作，如旧版按实体划分的同步队列
func (q *Queue) Import(ops []Operation) error {
	if len(ops) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	cur := q.load()
	for _, op := range ops {
		if op.ID == "" {
			op.ID = uuid.NewString()
		}
		id, owner := payloadRef(op.Payload)
		if op.EntityID == "" {
			op.EntityID = id
		}
		if op.OwnerID == 0 {
			op.OwnerID = owner
		}
		if op.MaxRetries <= 0 {
			op.MaxRetries = q.maxRetries
		}
		if op.Status == "" || op.Status == StatusProcessing {
			op.Status = StatusPending
		}
		if op.Timestamp.IsZero() {
			op.Timestamp = q.now()
		}
		cur = append(cur, op)
	}
	return q.save(cur)
}

// Recover 启动时将上次异常退出遗留的 processing 操作恢复为 pending
func (q *Queue) Recover() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := q.load()
	n := 0
	for i := range ops {
		if ops[i].Status == StatusProcessing {
			ops[i].Status = StatusPending
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, q.save(ops)
}

// Run 周期性处理队列，直到 ctx 结束
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !q.conn.Online() || q.GetQueueStats().Pending == 0 {
				continue
			}
			if _, err := q.ProcessQueue(ctx); err != nil && ctx.Err() == nil {
				log.Printf("定时处理离线队列失败: %v", err)
			}
		}
	}
}
