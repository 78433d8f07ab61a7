package intel

import (
	"sync"
	"time"

	"github.com/apk-analysis/apk-verdict-go/internal/domain"
)

// Cache 情报查询结果的 TTL 缓存。键为 服务名+摘要，
// 值是不可变快照，并发写入采用 last-writer-wins。
// 缓存只是降低外部调用量，缺失不影响正确性。
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	report  domain.ServiceReport
	expires time.Time
}

// NewCache 创建缓存，ttl <= 0 时返回 nil（禁用）
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		return nil
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func cacheKey(service string, digest domain.ContentDigest) string {
	return service + ":" + string(digest)
}

// Get 取未过期的缓存报告副本
func (c *Cache) Get(service string, digest domain.ContentDigest) (*domain.ServiceReport, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(service, digest)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	report := entry.report
	return &report, true
}

// Put 写入缓存
func (c *Cache) Put(service string, digest domain.ContentDigest, report *domain.ServiceReport) {
	if c == nil || report == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(service, digest)] = cacheEntry{
		report:  *report,
		expires: c.now().Add(c.ttl),
	}
}
