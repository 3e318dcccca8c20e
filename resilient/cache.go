package resilient

import (
	"log"
	"strings"
	"time"

	"financify/remote"
	"financify/storage"
)

type cacheEntry struct {
	Filters   remote.Filters `json:"filters"`
	Rows      []remote.Row   `json:"rows"`
	FetchedAt time.Time      `json:"fetched_at"`
}

func (w *Wrapper) saveCache(table string, filters remote.Filters, rows []remote.Row) {
	entry := cacheEntry{Filters: filters, Rows: rows, FetchedAt: w.now()}
	if err := storage.SetJSON(w.store, storage.CacheKey(table, filters.Key()), entry); err != nil {
		log.Printf("写入缓存失败 table=%s: %v", table, err)
	}
}

func (w *Wrapper) loadCache(table string, filters remote.Filters) ([]remote.Row, error) {
	var entry cacheEntry
	if !storage.GetJSON(w.store, storage.CacheKey(table, filters.Key()), &entry) {
		return nil, ErrCacheMiss
	}
	return entry.Rows, nil
}

// patchCache 离线写入后同步修改该表的全部缓存，使后续回退读取能看到本地变更
func (w *Wrapper) patchCache(table string, patch func(filters remote.Filters, rows []remote.Row) []remote.Row) {
	base := storage.CacheKey(table, "")
	keys, err := w.store.Keys(base)
	if err != nil {
		log.Printf("读取缓存键失败 table=%s: %v", table, err)
		return
	}
	for _, key := range keys {
		if key != base && !strings.HasPrefix(key, base+"_") {
			continue
		}
		var entry cacheEntry
		if !storage.GetJSON(w.store, key, &entry) {
			continue
		}
		entry.Rows = patch(entry.Filters, entry.Rows)
		if err := storage.SetJSON(w.store, key, entry); err != nil {
			log.Printf("更新缓存失败 key=%s: %v", key, err)
		}
	}
}
