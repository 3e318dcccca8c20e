// Package storage 提供本地持久化键值存储，语义等同于浏览器 localStorage：
// 字符串键对应 JSON 序列化后的值，读写均为单次同步调用。
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// 键前缀
const (
	KeyPrefix     = "financify_"
	PendingPrefix = "pending_"
	CachePrefix   = "cache_"

	// OfflineQueueKey 通用离线操作队列
	OfflineQueueKey = KeyPrefix + "offline_queue"
)

// ErrNotFound 键不存在
var ErrNotFound = errors.New("storage: key not found")

// Store 本地键值存储
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	// Keys 返回以 prefix 开头的全部键，按字典序排列
	Keys(prefix string) ([]string, error)
}

// EntityKey 实体本地镜像键，如 financify_transactions
func EntityKey(kind string) string {
	return KeyPrefix + kind
}

// SyncQueueKey 旧版按实体划分的同步队列键
func SyncQueueKey(kind string) string {
	return KeyPrefix + kind + "_sync_queue"
}

// PendingKey 容错写入失败后的待重放键
func PendingKey(table string, ts int64) string {
	return fmt.Sprintf("%s%s_%d", PendingPrefix, table, ts)
}

// CacheKey 远端读取结果缓存键
func CacheKey(table, filter string) string {
	if filter == "" {
		return CachePrefix + table
	}
	return CachePrefix + table + "_" + filter
}

// GetJSON 读取并反序列化。存储异常或解析失败均记录日志并视为无数据
func GetJSON(s Store, key string, v any) bool {
	raw, ok, err := s.Get(key)
	if err != nil {
		log.Printf("读取本地存储失败 key=%s: %v", key, err)
		return false
	}
	if !ok || raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		log.Printf("解析本地存储失败 key=%s: %v", key, err)
		return false
	}
	return true
}

// SetJSON 序列化后写入
func SetJSON(s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化失败 key=%s: %w", key, err)
	}
	if err := s.Set(key, string(data)); err != nil {
		return fmt.Errorf("写入本地存储失败 key=%s: %w", key, err)
	}
	return nil
}

// MemoryStore 内存实现，用于测试及无数据库文件运行
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
