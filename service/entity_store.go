package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"financify/models"
	"financify/queue"
	"financify/remote"
	"financify/resilient"
	"financify/storage"
)

// entity 实体指针类型约束
type entity[T any] interface {
	*T
	EntityID() string
	SetEntityID(id string)
	OwnerID() uint
}

// entityStore 单个实体类型的本地镜像与远端读写
type entityStore[T any, P entity[T]] struct {
	kind string
	deps Deps
	mu   sync.Mutex
}

func newEntityStore[T any, P entity[T]](kind string, deps Deps) *entityStore[T, P] {
	s := &entityStore[T, P]{kind: kind, deps: deps}
	deps.Queue.Register(kind, s)
	deps.Queue.OnRemap(s.remapID)
	s.migrateLegacy()
	return s
}

func (s *entityStore[T, P]) loadLocked() []T {
	var items []T
	if !storage.GetJSON(s.deps.Store, storage.EntityKey(s.kind), &items) {
		return []T{}
	}
	return items
}

func (s *entityStore[T, P]) saveLocked(items []T) error {
	return storage.SetJSON(s.deps.Store, storage.EntityKey(s.kind), items)
}

// local 本地镜像中属于 userID 的记录
func (s *entityStore[T, P]) local(userID uint) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, 0)
	for _, item := range s.loadLocked() {
		if P(&item).OwnerID() == userID {
			out = append(out, item)
		}
	}
	return out
}

func (s *entityStore[T, P]) putLocal(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.loadLocked()
	id := P(&item).EntityID()
	for i := range items {
		if P(&items[i]).EntityID() == id {
			items[i] = item
			return s.saveLocked(items)
		}
	}
	return s.saveLocked(append(items, item))
}

func (s *entityStore[T, P]) dropLocal(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.loadLocked()
	kept := items[:0]
	for i := range items {
		if P(&items[i]).EntityID() != id {
			kept = append(kept, items[i])
		}
	}
	return s.saveLocked(kept)
}

// refresh 用远端数据替换该用户的本地镜像，尚未同步的本地变更保留
func (s *entityStore[T, P]) refresh(userID uint, fresh []T) error {
	refs := s.deps.Queue.PendingRefs(s.kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.loadLocked()
	localByID := make(map[string]T)
	next := make([]T, 0, len(current)+len(fresh))
	for _, item := range current {
		p := P(&item)
		if p.OwnerID() != userID {
			next = append(next, item)
			continue
		}
		localByID[p.EntityID()] = item
	}

	seen := make(map[string]bool)
	for _, item := range fresh {
		id := P(&item).EntityID()
		seen[id] = true
		switch refs[id] {
		case queue.OpDelete:
			continue
		case queue.OpUpdate, queue.OpCreate:
			if l, ok := localByID[id]; ok {
				next = append(next, l)
				continue
			}
		}
		next = append(next, item)
	}
	for id, item := range localByID {
		if seen[id] {
			continue
		}
		if _, unsynced := refs[id]; unsynced || models.IsTempID(id) {
			next = append(next, item)
		}
	}
	return s.saveLocked(next)
}

// list 在线时先用远端数据刷新镜像，远端不可用时直接返回本地镜像
func (s *entityStore[T, P]) list(ctx context.Context, userID uint) []T {
	w := s.deps.Wrapper
	if w.Online() {
		rows, err := resilient.Call(ctx, w, func(ctx context.Context) ([]remote.Row, error) {
			return w.Backend().Select(ctx, s.kind, remote.Filters{remote.Eq("user_id", userID)})
		})
		if err != nil {
			log.Printf("读取远端 %s 失败，使用本地数据: %v", s.kind, err)
		} else if fresh, err := remote.DecodeRows[T](rows); err != nil {
			log.Printf("解析远端 %s 失败，使用本地数据: %v", s.kind, err)
		} else if err := s.refresh(userID, fresh); err != nil {
			log.Printf("刷新本地 %s 失败: %v", s.kind, err)
		}
	}
	return s.local(userID)
}

func (s *entityStore[T, P]) get(ctx context.Context, userID uint, id string) (P, error) {
	for _, item := range s.list(ctx, userID) {
		if P(&item).EntityID() == id {
			return P(&item), nil
		}
	}
	return nil, ErrNotFound
}

// findLocal 仅查本地镜像
func (s *entityStore[T, P]) findLocal(userID uint, id string) (P, bool) {
	for _, item := range s.local(userID) {
		if P(&item).EntityID() == id {
			return P(&item), true
		}
	}
	return nil, false
}

func (s *entityStore[T, P]) unsynced(id string) bool {
	return models.IsTempID(id) || s.deps.Queue.HasUnsynced(s.kind, id)
}

func (s *entityStore[T, P]) create(ctx context.Context, item P) (P, error) {
	w := s.deps.Wrapper
	if w.Online() {
		row, err := remote.ToRow(item)
		if err != nil {
			return nil, err
		}
		delete(row, "id")
		created, err := resilient.Call(ctx, w, func(ctx context.Context) (remote.Row, error) {
			return w.Backend().Insert(ctx, s.kind, row)
		})
		if err == nil {
			var out T
			if err := remote.Decode(created, &out); err != nil {
				return nil, err
			}
			if err := s.putLocal(out); err != nil {
				log.Printf("写入本地 %s 失败: %v", s.kind, err)
			}
			return P(&out), nil
		}
		if remote.IsPermanent(err) {
			return nil, fmt.Errorf("保存失败: %w", err)
		}
		log.Printf("远端创建 %s 失败，转为离线保存: %v", s.kind, err)
	}

	if !models.IsTempID(item.EntityID()) {
		item.SetEntityID(models.NewTempID())
	}
	if err := s.putLocal(*item); err != nil {
		return nil, err
	}
	if _, err := s.deps.Queue.Enqueue(queue.OpCreate, s.kind, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *entityStore[T, P]) update(ctx context.Context, item P) (P, error) {
	id := item.EntityID()
	if s.unsynced(id) {
		hit, err := s.deps.Queue.CoalesceCreate(s.kind, id, item)
		if err != nil {
			return nil, err
		}
		if !hit {
			if _, err := s.deps.Queue.Enqueue(queue.OpUpdate, s.kind, item); err != nil {
				return nil, err
			}
		}
		return item, s.putLocal(*item)
	}

	w := s.deps.Wrapper
	if w.Online() {
		row, err := remote.ToRow(item)
		if err != nil {
			return nil, err
		}
		rows, err := resilient.Call(ctx, w, func(ctx context.Context) ([]remote.Row, error) {
			return w.Backend().Update(ctx, s.kind, remote.Filters{remote.Eq("id", id)}, row)
		})
		if err == nil {
			if len(rows) == 0 {
				if err := s.dropLocal(id); err != nil {
					log.Printf("远端已不存在 %s id=%s，删除本地缓存失败: %v", s.kind, id, err)
				}
				return nil, ErrNotFound
			}
			var out T
			if err := remote.Decode(rows[0], &out); err != nil {
				return nil, err
			}
			return P(&out), s.putLocal(out)
		}
		if remote.IsPermanent(err) {
			return nil, fmt.Errorf("更新失败: %w", err)
		}
		log.Printf("远端更新 %s 失败，转为离线保存: %v", s.kind, err)
	}

	if err := s.putLocal(*item); err != nil {
		return nil, err
	}
	if _, err := s.deps.Queue.Enqueue(queue.OpUpdate, s.kind, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *entityStore[T, P]) remove(ctx context.Context, userID uint, id string) error {
	tombstone := map[string]any{"id": id, "user_id": userID}
	if s.unsynced(id) {
		cancelledCreate, err := s.deps.Queue.CancelEntity(s.kind, id)
		if err != nil {
			return err
		}
		if !cancelledCreate {
			if _, err := s.deps.Queue.Enqueue(queue.OpDelete, s.kind, tombstone); err != nil {
				return err
			}
		}
		return s.dropLocal(id)
	}

	w := s.deps.Wrapper
	if w.Online() {
		err := w.Do(ctx, func(ctx context.Context) error {
			return w.Backend().Delete(ctx, s.kind, remote.Filters{remote.Eq("id", id)})
		})
		if err == nil {
			return s.dropLocal(id)
		}
		if remote.IsPermanent(err) {
			return fmt.Errorf("删除失败: %w", err)
		}
		log.Printf("远端删除 %s 失败，转为离线处理: %v", s.kind, err)
	}

	if _, err := s.deps.Queue.Enqueue(queue.OpDelete, s.kind, tombstone); err != nil {
		return err
	}
	return s.dropLocal(id)
}

// Apply 实现 queue.Applier，将离线操作写入远端
func (s *entityStore[T, P]) Apply(ctx context.Context, op queue.Operation) (string, error) {
	w := s.deps.Wrapper
	backend := w.Backend()
	filters := remote.Filters{remote.Eq("id", op.EntityID)}

	switch op.Type {
	case queue.OpCreate:
		var row remote.Row
		if err := json.Unmarshal(op.Payload, &row); err != nil {
			return "", &remote.RemoteError{Code: "invalid_payload", Message: err.Error()}
		}
		if models.IsTempID(row.ID()) {
			delete(row, "id")
		}
		created, err := resilient.Once(ctx, w, func(ctx context.Context) (remote.Row, error) {
			return backend.Insert(ctx, s.kind, row)
		})
		if err != nil {
			return "", err
		}
		return created.ID(), nil
	case queue.OpUpdate:
		var row remote.Row
		if err := json.Unmarshal(op.Payload, &row); err != nil {
			return "", &remote.RemoteError{Code: "invalid_payload", Message: err.Error()}
		}
		_, err := resilient.Once(ctx, w, func(ctx context.Context) ([]remote.Row, error) {
			return backend.Update(ctx, s.kind, filters, row)
		})
		return "", err
	case queue.OpDelete:
		_, err := resilient.Once(ctx, w, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, backend.Delete(ctx, s.kind, filters)
		})
		return "", err
	}
	return "", &remote.RemoteError{Code: "invalid_op", Message: "unknown operation type " + string(op.Type)}
}

// remapID 将镜像中等于临时 ID 的字段替换为服务端 ID，包括其他实体的引用字段
func (s *entityStore[T, P]) remapID(tempID, serverID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []map[string]any
	if !storage.GetJSON(s.deps.Store, storage.EntityKey(s.kind), &items) {
		return
	}
	changed := false
	for _, item := range items {
		for k, v := range item {
			if str, ok := v.(string); ok && str == tempID {
				item[k] = serverID
				changed = true
			}
		}
	}
	if !changed {
		return
	}
	// 刷新与回放交错时同一记录可能同时以临时 ID 和服务端 ID 存在
	seen := make(map[string]bool)
	kept := items[:0]
	for _, item := range items {
		id, _ := item["id"].(string)
		if id != "" && seen[id] {
			continue
		}
		seen[id] = true
		kept = append(kept, item)
	}
	if err := storage.SetJSON(s.deps.Store, storage.EntityKey(s.kind), kept); err != nil {
		log.Printf("更新本地 %s 的 ID 失败: %v", s.kind, err)
	}
}

// legacySyncItem 旧版按实体划分的同步队列条目
type legacySyncItem struct {
	Action     string          `json:"action"`
	Data       json.RawMessage `json:"data"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}

// migrateLegacy 将旧版同步队列迁移到通用离线队列，成功后删除旧键
func (s *entityStore[T, P]) migrateLegacy() {
	key := storage.SyncQueueKey(s.kind)
	var legacy []legacySyncItem
	if !storage.GetJSON(s.deps.Store, key, &legacy) {
		return
	}
	ops := make([]queue.Operation, 0, len(legacy))
	for _, item := range legacy {
		typ := queue.OperationType(item.Action)
		if typ != queue.OpCreate && typ != queue.OpUpdate && typ != queue.OpDelete {
			log.Printf("忽略无法识别的旧版同步操作 %s: %s", s.kind, item.Action)
			continue
		}
		ops = append(ops, queue.Operation{
			Type:       typ,
			EntityKind: s.kind,
			Payload:    item.Data,
			Timestamp:  item.Timestamp,
			RetryCount: item.RetryCount,
		})
	}
	if err := s.deps.Queue.Import(ops); err != nil {
		log.Printf("迁移旧版同步队列失败 %s: %v", s.kind, err)
		return
	}
	if err := s.deps.Store.Remove(key); err != nil {
		log.Printf("删除旧版同步队列失败 %s: %v", s.kind, err)
		return
	}
	log.Printf("已迁移旧版同步队列 %s: %d 条", s.kind, len(ops))
}
