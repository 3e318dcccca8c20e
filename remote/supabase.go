package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// SupabaseBackend 基于 supabase-go 的后端实现
type SupabaseBackend struct {
	client     *supabase.Client
	probeTable string
}

// NewSupabaseBackend 创建 Supabase 后端
func NewSupabaseBackend(url, key, probeTable string) (*SupabaseBackend, error) {
	if url == "" || key == "" {
		return nil, ErrNotConfigured
	}
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("创建 supabase 客户端失败: %w", err)
	}
	return &SupabaseBackend{client: client, probeTable: probeTable}, nil
}

// postgrest-go 不接受 context，调用方通过超时竞争处理取消
func (b *SupabaseBackend) Select(ctx context.Context, table string, filters Filters) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := b.client.From(table).Select("*", "", false)
	for _, f := range filters {
		query = query.Eq(f.Column, f.Value)
	}
	data, _, err := query.Execute()
	if err != nil {
		return nil, WrapError(err)
	}
	return decodeRows(data)
}

func (b *SupabaseBackend) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := b.client.From(table).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		return nil, WrapError(err)
	}
	rows, err := decodeRows(data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return row, nil
	}
	return rows[0], nil
}

func (b *SupabaseBackend) Update(ctx context.Context, table string, filters Filters, row Row) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := b.client.From(table).Update(row, "representation", "")
	for _, f := range filters {
		query = query.Eq(f.Column, f.Value)
	}
	data, _, err := query.Execute()
	if err != nil {
		return nil, WrapError(err)
	}
	return decodeRows(data)
}

func (b *SupabaseBackend) Delete(ctx context.Context, table string, filters Filters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	query := b.client.From(table).Delete("minimal", "")
	for _, f := range filters {
		query = query.Eq(f.Column, f.Value)
	}
	if _, _, err := query.Execute(); err != nil {
		return WrapError(err)
	}
	return nil
}

// Probe 读取探测表的一行，仅确认后端可达
func (b *SupabaseBackend) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := b.client.From(b.probeTable).Select("id", "", false).Limit(1, "").Execute()
	return WrapError(err)
}

func decodeRows(data []byte) ([]Row, error) {
	if len(data) == 0 {
		return []Row{}, nil
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("解析远端响应失败: %w", err)
	}
	return rows, nil
}
