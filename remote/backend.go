// Package remote 封装托管后端（Supabase / PostgREST）的表级查询接口。
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Row 一行数据，键为实体字段名
type Row map[string]any

// Filter 等值过滤
type Filter struct {
	Column string
	Value  string
}

// Filters 有序的等值过滤集合
type Filters []Filter

// Eq 构造等值过滤
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: fmt.Sprint(value)}
}

// Key 过滤条件的稳定字符串表示，用于缓存键
func (f Filters) Key() string {
	parts := make([]string, 0, len(f))
	for _, item := range f {
		parts = append(parts, item.Column+"="+url.QueryEscape(item.Value))
	}
	return strings.Join(parts, "&")
}

// Match 判断一行是否满足全部过滤条件
func (f Filters) Match(row Row) bool {
	for _, item := range f {
		if fmt.Sprint(row[item.Column]) != item.Value {
			return false
		}
	}
	return true
}

// Backend 表级增删改查客户端
type Backend interface {
	Select(ctx context.Context, table string, filters Filters) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, filters Filters, row Row) ([]Row, error)
	Delete(ctx context.Context, table string, filters Filters) error
	// Probe 轻量连通性探测
	Probe(ctx context.Context) error
}

// ErrOffline 当前离线，未发起远端调用
var ErrOffline = errors.New("remote: offline")

// ErrNotConfigured 未配置远端地址
var ErrNotConfigured = errors.New("remote: backend not configured")

// Unavailable 未配置远端时使用，所有调用返回 ErrNotConfigured，写入因此进入离线队列
type Unavailable struct{}

func (Unavailable) Select(context.Context, string, Filters) ([]Row, error) {
	return nil, ErrNotConfigured
}

func (Unavailable) Insert(context.Context, string, Row) (Row, error) {
	return nil, ErrNotConfigured
}

func (Unavailable) Update(context.Context, string, Filters, Row) ([]Row, error) {
	return nil, ErrNotConfigured
}

func (Unavailable) Delete(context.Context, string, Filters) error {
	return ErrNotConfigured
}

func (Unavailable) Probe(context.Context) error {
	return ErrNotConfigured
}
