/*
 * @module service/history/cache
 * @description 依赖键聚合缓存：按(实体,指标)版本号失效，而非按墙钟时间
 * @architecture 服务层 - 缓存
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 聚合查询 -> 版本化键命中缓存 -> 新历史写入使版本递增、旧键随TTL淘汰
 * @rules 仅新的历史记录写入会使对应(实体,指标)的聚合失效；这是依赖键缓存而非通用缓存
 * @dependencies github.com/patrickmn/go-cache
 * @refs service/history/aggregation_service.go
 */

package history

import (
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"vms-quality-service/service/models"
)

// AggregationCache 聚合结果缓存
type AggregationCache struct {
	cache    *gocache.Cache
	mu       sync.Mutex
	versions map[string]uint64 // (entity:metric) -> 写入版本号
}

// NewAggregationCache 创建聚合缓存
// TTL仅用于淘汰失效版本的残留条目，逻辑失效完全靠版本号
func NewAggregationCache() *AggregationCache {
	return &AggregationCache{
		cache:    gocache.New(30*time.Minute, 10*time.Minute),
		versions: make(map[string]uint64),
	}
}

// versionKey 依赖维度键
func versionKey(entity models.EntityType, metric string) string {
	return fmt.Sprintf("%s:%s", entity, metric)
}

// Invalidate 新历史记录写入后递增版本，使既有聚合键全部失效
func (c *AggregationCache) Invalidate(entity models.EntityType, metric string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[versionKey(entity, metric)]++
}

// buildKey 构造包含版本号的缓存键
func (c *AggregationCache) buildKey(entity models.EntityType, metric, query string) string {
	c.mu.Lock()
	version := c.versions[versionKey(entity, metric)]
	c.mu.Unlock()
	return fmt.Sprintf("%s:%s:v%d:%s", entity, metric, version, query)
}

// Get 读取聚合缓存
func (c *AggregationCache) Get(entity models.EntityType, metric, query string) (interface{}, bool) {
	return c.cache.Get(c.buildKey(entity, metric, query))
}

// Set 写入聚合缓存
func (c *AggregationCache) Set(entity models.EntityType, metric, query string, value interface{}) {
	c.cache.Set(c.buildKey(entity, metric, query), value, gocache.DefaultExpiration)
}
