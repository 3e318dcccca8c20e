// Package remotetest 提供内存版 remote.Backend，用于测试
package remotetest

import (
	"context"
	"fmt"
	"sync"

	"financify/remote"
)

// FakeBackend 内存后端，可注入失败
type FakeBackend struct {
	mu     sync.Mutex
	tables map[string][]remote.Row
	seq    int
	// 接下来 failures 次调用返回 failErr
	failures int
	failErr  error
	// 按表注入的永久失败
	tableErr map[string]error
	calls    map[string]int
	probeErr error
}

// New 创建空后端
func New() *FakeBackend {
	return &FakeBackend{
		tables:   make(map[string][]remote.Row),
		tableErr: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// FailNext 接下来 n 次调用返回 err
func (f *FakeBackend) FailNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
	f.failErr = err
}

// FailTable 对某表的所有调用返回 err，传 nil 取消
func (f *FakeBackend) FailTable(table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.tableErr, table)
		return
	}
	f.tableErr[table] = err
}

// SetProbeError 设置探测结果
func (f *FakeBackend) SetProbeError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeErr = err
}

// Calls 某方法的调用次数，如 "insert:goals"
func (f *FakeBackend) Calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

// Rows 返回某表当前数据副本
func (f *FakeBackend) Rows(table string) []remote.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Row, 0, len(f.tables[table]))
	for _, r := range f.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// Seed 直接写入数据
func (f *FakeBackend) Seed(table string, rows ...remote.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.tables[table] = append(f.tables[table], copyRow(r))
	}
}

func (f *FakeBackend) check(op, table string) error {
	f.calls[op+":"+table]++
	if f.failures > 0 {
		f.failures--
		return f.failErr
	}
	if err := f.tableErr[table]; err != nil {
		return err
	}
	return nil
}

func (f *FakeBackend) Select(ctx context.Context, table string, filters remote.Filters) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("select", table); err != nil {
		return nil, err
	}
	out := make([]remote.Row, 0)
	for _, r := range f.tables[table] {
		if filters.Match(r) {
			out = append(out, copyRow(r))
		}
	}
	return out, nil
}

func (f *FakeBackend) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("insert", table); err != nil {
		return nil, err
	}
	r := copyRow(row)
	if id, _ := r["id"].(string); id == "" {
		f.seq++
		r["id"] = fmt.Sprintf("srv-%d", f.seq)
	}
	f.tables[table] = append(f.tables[table], r)
	return copyRow(r), nil
}

func (f *FakeBackend) Update(ctx context.Context, table string, filters remote.Filters, row remote.Row) ([]remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("update", table); err != nil {
		return nil, err
	}
	out := make([]remote.Row, 0)
	for i, r := range f.tables[table] {
		if !filters.Match(r) {
			continue
		}
		for k, v := range row {
			r[k] = v
		}
		f.tables[table][i] = r
		out = append(out, copyRow(r))
	}
	return out, nil
}

func (f *FakeBackend) Delete(ctx context.Context, table string, filters remote.Filters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("delete", table); err != nil {
		return err
	}
	kept := f.tables[table][:0]
	for _, r := range f.tables[table] {
		if !filters.Match(r) {
			kept = append(kept, r)
		}
	}
	f.tables[table] = kept
	return nil
}

func (f *FakeBackend) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeErr
}

func copyRow(r remote.Row) remote.Row {
	out := make(remote.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
