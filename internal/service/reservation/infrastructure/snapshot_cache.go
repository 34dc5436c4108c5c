// internal/service/reservation/infrastructure/snapshot_cache.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taller/internal/pkg/logger"
	"taller/internal/pkg/redis"
	"taller/internal/service/reservation/domain"
)

// RedisSnapshotCache 是物料快照的 read-through 缓存
// Builder 的提前校验走这里，短暂的陈旧是可接受的：
// 权威校验永远发生在引擎的提交事务内
type RedisSnapshotCache struct {
	client    *redis.Client
	materials domain.MaterialRepository
	ttl       time.Duration
}

// NewRedisSnapshotCache 创建快照缓存实例
func NewRedisSnapshotCache(client *redis.Client, materials domain.MaterialRepository, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, materials: materials, ttl: ttl}
}

func snapshotKey(materialID string) string {
	return fmt.Sprintf("material:snapshot:{%s}", materialID)
}

// Snapshot 实现 domain.SnapshotReader
// 缓存未命中或不可用时回源到物料仓储，缓存故障不阻塞业务
func (c *RedisSnapshotCache) Snapshot(ctx context.Context, materialID string) (*domain.Material, error) {
	val, ok, err := c.client.Get(ctx, snapshotKey(materialID))
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("snapshot cache read failed, falling back to store")
	} else if ok {
		var material domain.Material
		if err := json.Unmarshal([]byte(val), &material); err == nil {
			return &material, nil
		}
		// 损坏的缓存条目直接当作未命中
	}

	material, err := c.materials.FindByID(ctx, materialID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(material); err == nil {
		if err := c.client.Set(ctx, snapshotKey(materialID), string(data), c.ttl); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("snapshot cache write failed")
		}
	}
	return material, nil
}

// Invalidate 实现 domain.SnapshotInvalidator
// 在扣减或补货后删除对应的快照，失败只记日志（TTL 会兜底）
func (c *RedisSnapshotCache) Invalidate(ctx context.Context, materialIDs ...string) {
	if len(materialIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(materialIDs))
	for _, id := range materialIDs {
		keys = append(keys, snapshotKey(id))
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("snapshot cache invalidation failed")
	}
}

// RepositorySnapshotReader 在没有配置 redis 时直接读仓储
type RepositorySnapshotReader struct {
	materials domain.MaterialRepository
}

func NewRepositorySnapshotReader(materials domain.MaterialRepository) *RepositorySnapshotReader {
	return &RepositorySnapshotReader{materials: materials}
}

func (r *RepositorySnapshotReader) Snapshot(ctx context.Context, materialID string) (*domain.Material, error) {
	return r.materials.FindByID(ctx, materialID)
}
