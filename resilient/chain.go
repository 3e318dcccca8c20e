package resilient

import (
	"context"
	"errors"
	"log"

	"financify/remote"
)

// 数据来源
const (
	SourceRemote = "remote"
	SourceCache  = "cache"
	SourceEmpty  = "empty"
)

// ErrCacheMiss 本地没有缓存
var ErrCacheMiss = errors.New("resilient: cache miss")

// Source 回退链中的一个数据源
type Source struct {
	Name  string
	Fetch func(ctx context.Context) ([]remote.Row, error)
}

// Chain 依次尝试的数据源
type Chain []Source

// Result 读取结果。Err 记录第一个失败数据源的错误，回退成功时仍然保留
type Result struct {
	Rows   []remote.Row
	Source string
	Err    error
}

// FromCache 数据是否来自本地缓存
func (r Result) FromCache() bool {
	return r.Source == SourceCache
}

// Run 返回第一个成功数据源的结果；全部失败时 Rows 为空切片
func (c Chain) Run(ctx context.Context) Result {
	var first error
	for _, src := range c {
		rows, err := src.Fetch(ctx)
		if err == nil {
			if rows == nil {
				rows = []remote.Row{}
			}
			return Result{Rows: rows, Source: src.Name, Err: first}
		}
		if first == nil {
			first = err
		}
		if !errors.Is(err, ErrCacheMiss) && !errors.Is(err, remote.ErrOffline) {
			log.Printf("数据源 %s 读取失败，尝试下一个: %v", src.Name, err)
		}
	}
	return Result{Rows: []remote.Row{}, Source: SourceEmpty, Err: first}
}

// Fetch 在线时读取远端并写入缓存，失败或离线时回退到缓存，再回退到空列表
func (w *Wrapper) Fetch(ctx context.Context, table string, filters remote.Filters) Result {
	chain := Chain{
		{Name: SourceRemote, Fetch: func(ctx context.Context) ([]remote.Row, error) {
			if !w.conn.Online() {
				return nil, remote.ErrOffline
			}
			rows, err := Call(ctx, w, func(ctx context.Context) ([]remote.Row, error) {
				return w.backend.Select(ctx, table, filters)
			})
			if err != nil {
				return nil, err
			}
			w.saveCache(table, filters, rows)
			return rows, nil
		}},
		{Name: SourceCache, Fetch: func(ctx context.Context) ([]remote.Row, error) {
			return w.loadCache(table, filters)
		}},
		{Name: SourceEmpty, Fetch: func(ctx context.Context) ([]remote.Row, error) {
			return []remote.Row{}, nil
		}},
	}
	return chain.Run(ctx)
}
