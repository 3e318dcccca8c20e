package resilient

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"financify/models"
	"financify/remote"
	"financify/storage"
)

// 暂存写入的操作类型
const (
	WriteInsert = "insert"
	WriteUpdate = "update"
	WriteDelete = "delete"
)

// PendingWrite 远端写入失败后暂存在本地、等待回放的写操作
type PendingWrite struct {
	Key       string         `json:"-"`
	OwnerID   uint           `json:"owner_id,omitempty"`
	Op        string         `json:"op"`
	Table     string         `json:"table"`
	Filters   remote.Filters `json:"filters,omitempty"`
	Row       remote.Row     `json:"row,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Failed    bool           `json:"failed"`
	LastError string         `json:"last_error,omitempty"`
}

// WriteResult 写入结果。Pending 为 true 表示写入已暂存在本地，Rows 为尽力而为的本地结果
type WriteResult struct {
	Rows       []remote.Row
	Pending    bool
	PendingKey string
}

// Row 第一行，没有时返回 nil
func (r WriteResult) Row() remote.Row {
	if len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// ReplayResult 回放结果
type ReplayResult struct {
	Skipped   bool `json:"skipped"`
	Replayed  int  `json:"replayed"`
	Failed    int  `json:"failed"`
	Remaining int  `json:"remaining"`
}

// Insert 在线时写入远端；离线或临时失败时暂存，返回带临时 ID 的行。永久错误直接返回
func (w *Wrapper) Insert(ctx context.Context, table string, row remote.Row) (WriteResult, error) {
	if w.conn.Online() {
		send := row.Clone()
		if models.IsTempID(send.ID()) {
			delete(send, "id")
		}
		created, err := Call(ctx, w, func(ctx context.Context) (remote.Row, error) {
			return w.backend.Insert(ctx, table, send)
		})
		if err == nil {
			return WriteResult{Rows: []remote.Row{created}}, nil
		}
		if remote.IsPermanent(err) {
			return WriteResult{}, err
		}
		log.Printf("远端写入失败，暂存本地 table=%s: %v", table, err)
	}

	local := row.Clone()
	if local.ID() == "" {
		local["id"] = models.NewTempID()
	}
	key, err := w.stash(PendingWrite{Op: WriteInsert, Table: table, Row: local})
	if err != nil {
		return WriteResult{}, err
	}
	w.patchCache(table, func(filters remote.Filters, rows []remote.Row) []remote.Row {
		if filters.Match(local) {
			rows = append(rows, local)
		}
		return rows
	})
	return WriteResult{Rows: []remote.Row{local}, Pending: true, PendingKey: key}, nil
}

// Update 在线时更新远端；离线或临时失败时暂存
func (w *Wrapper) Update(ctx context.Context, table string, filters remote.Filters, row remote.Row) (WriteResult, error) {
	if w.conn.Online() {
		rows, err := Call(ctx, w, func(ctx context.Context) ([]remote.Row, error) {
			return w.backend.Update(ctx, table, filters, row)
		})
		if err == nil {
			return WriteResult{Rows: rows}, nil
		}
		if remote.IsPermanent(err) {
			return WriteResult{}, err
		}
		log.Printf("远端更新失败，暂存本地 table=%s: %v", table, err)
	}

	key, err := w.stash(PendingWrite{Op: WriteUpdate, Table: table, Filters: filters, Row: row.Clone()})
	if err != nil {
		return WriteResult{}, err
	}
	var patched []remote.Row
	w.patchCache(table, func(_ remote.Filters, rows []remote.Row) []remote.Row {
		for i, r := range rows {
			if !filters.Match(r) {
				continue
			}
			merged := r.Clone()
			for k, v := range row {
				merged[k] = v
			}
			rows[i] = merged
			if patched == nil {
				patched = append(patched, merged)
			}
		}
		return rows
	})
	if patched == nil {
		patched = []remote.Row{row.Clone()}
	}
	return WriteResult{Rows: patched, Pending: true, PendingKey: key}, nil
}

// Delete 在线时删除远端；离线或临时失败时暂存
func (w *Wrapper) Delete(ctx context.Context, table string, filters remote.Filters) (WriteResult, error) {
	if w.conn.Online() {
		err := w.Do(ctx, func(ctx context.Context) error {
			return w.backend.Delete(ctx, table, filters)
		})
		if err == nil {
			return WriteResult{}, nil
		}
		if remote.IsPermanent(err) {
			return WriteResult{}, err
		}
		log.Printf("远端删除失败，暂存本地 table=%s: %v", table, err)
	}

	key, err := w.stash(PendingWrite{Op: WriteDelete, Table: table, Filters: filters})
	if err != nil {
		return WriteResult{}, err
	}
	w.patchCache(table, func(_ remote.Filters, rows []remote.Row) []remote.Row {
		kept := rows[:0]
		for _, r := range rows {
			if !filters.Match(r) {
				kept = append(kept, r)
			}
		}
		return kept
	})
	return WriteResult{Pending: true, PendingKey: key}, nil
}

// stash 以 pending_<table>_<纳秒时间戳> 为键保存，时间戳冲突时顺延
func (w *Wrapper) stash(p PendingWrite) (string, error) {
	p.CreatedAt = w.now()
	p.OwnerID = writeOwner(p)
	ts := p.CreatedAt.UnixNano()
	for {
		key := storage.PendingKey(p.Table, ts)
		if _, exists, err := w.store.Get(key); err != nil {
			return "", fmt.Errorf("读取暂存写入失败: %w", err)
		} else if !exists {
			if err := storage.SetJSON(w.store, key, p); err != nil {
				return "", err
			}
			return key, nil
		}
		ts++
	}
}

// writeOwner 从 user_id 过滤条件或行数据中取出写入所属用户，取不到时为 0
func writeOwner(p PendingWrite) uint {
	raw := ""
	for _, f := range p.Filters {
		if f.Column == "user_id" {
			raw = f.Value
		}
	}
	if raw == "" {
		switch v := p.Row["user_id"].(type) {
		case float64:
			if v > 0 {
				return uint(v)
			}
		case uint:
			return v
		case nil:
		default:
			raw = fmt.Sprint(v)
		}
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

// PendingWrites 全部暂存写入，按创建时间排序
func (w *Wrapper) PendingWrites() ([]PendingWrite, error) {
	keys, err := w.store.Keys(storage.PendingPrefix)
	if err != nil {
		return nil, fmt.Errorf("读取暂存写入失败: %w", err)
	}
	out := make([]PendingWrite, 0, len(keys))
	for _, key := range keys {
		var p PendingWrite
		if !storage.GetJSON(w.store, key, &p) {
			continue
		}
		p.Key = key
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// PendingWritesOf 指定用户的暂存写入
func (w *Wrapper) PendingWritesOf(owner uint) ([]PendingWrite, error) {
	all, err := w.PendingWrites()
	if err != nil {
		return nil, err
	}
	out := make([]PendingWrite, 0, len(all))
	for _, p := range all {
		if owner != 0 && p.OwnerID == owner {
			out = append(out, p)
		}
	}
	return out, nil
}

// DiscardPendingOf 丢弃指定用户的一条暂存写入，不存在或不属于该用户时返回 ErrPendingNotFound
func (w *Wrapper) DiscardPendingOf(owner uint, key string) error {
	var p PendingWrite
	if !strings.HasPrefix(key, storage.PendingPrefix) || !storage.GetJSON(w.store, key, &p) ||
		owner == 0 || p.OwnerID != owner {
		return ErrPendingNotFound
	}
	return w.store.Remove(key)
}

// ReplayPending 按时间顺序回放暂存写入。成功的删除暂存；永久错误标记失败后跳过；
// 遇到临时错误或离线立即停止，剩余写入留待下次
func (w *Wrapper) ReplayPending(ctx context.Context) (ReplayResult, error) {
	if !w.replaying.CompareAndSwap(false, true) {
		return ReplayResult{Skipped: true}, nil
	}
	defer w.replaying.Store(false)

	writes, err := w.PendingWrites()
	if err != nil {
		return ReplayResult{}, err
	}

	var res ReplayResult
	for i := range writes {
		p := writes[i]
		if p.Failed {
			continue
		}
		if !w.conn.Online() || ctx.Err() != nil {
			break
		}

		serverID, err := w.replayOne(ctx, p)
		if err == nil {
			if err := w.store.Remove(p.Key); err != nil {
				return res, fmt.Errorf("删除暂存写入失败: %w", err)
			}
			res.Replayed++
			if tempID := p.Row.ID(); p.Op == WriteInsert && models.IsTempID(tempID) && serverID != "" {
				w.remapPending(writes[i+1:], tempID, serverID)
			}
			continue
		}
		if remote.IsPermanent(err) {
			p.Failed = true
			p.LastError = err.Error()
			if err := storage.SetJSON(w.store, p.Key, p); err != nil {
				return res, err
			}
			res.Failed++
			log.Printf("暂存写入回放失败，不再重试 key=%s: %v", p.Key, err)
			continue
		}
		log.Printf("暂存写入回放中断 key=%s: %v", p.Key, err)
		break
	}

	remaining, err := w.PendingWrites()
	if err == nil {
		for _, p := range remaining {
			if !p.Failed {
				res.Remaining++
			}
		}
	}
	if res.Replayed > 0 || res.Failed > 0 {
		log.Printf("暂存写入回放完成: 成功 %d, 失败 %d, 剩余 %d", res.Replayed, res.Failed, res.Remaining)
	}
	return res, nil
}

func (w *Wrapper) replayOne(ctx context.Context, p PendingWrite) (string, error) {
	switch p.Op {
	case WriteInsert:
		send := p.Row.Clone()
		if models.IsTempID(send.ID()) {
			delete(send, "id")
		}
		created, err := Call(ctx, w, func(ctx context.Context) (remote.Row, error) {
			return w.backend.Insert(ctx, p.Table, send)
		})
		if err != nil {
			return "", err
		}
		return created.ID(), nil
	case WriteUpdate:
		return "", w.Do(ctx, func(ctx context.Context) error {
			_, err := w.backend.Update(ctx, p.Table, p.Filters, p.Row)
			return err
		})
	case WriteDelete:
		return "", w.Do(ctx, func(ctx context.Context) error {
			return w.backend.Delete(ctx, p.Table, p.Filters)
		})
	}
	return "", &remote.RemoteError{Code: "invalid_op", Message: "unknown pending op " + p.Op}
}

// remapPending 将后续暂存写入中的临时 ID 替换为服务端 ID
func (w *Wrapper) remapPending(rest []PendingWrite, tempID, serverID string) {
	for i := range rest {
		p := &rest[i]
		changed := false
		for j := range p.Filters {
			if p.Filters[j].Value == tempID {
				p.Filters[j].Value = serverID
				changed = true
			}
		}
		for k, v := range p.Row {
			if s, ok := v.(string); ok && s == tempID {
				p.Row[k] = serverID
				changed = true
			}
		}
		if changed {
			if err := storage.SetJSON(w.store, p.Key, p); err != nil {
				log.Printf("更新暂存写入失败 key=%s: %v", p.Key, err)
			}
		}
	}
}
