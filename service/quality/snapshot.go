/*
 * @module service/quality/snapshot
 * @description 实体快照与外部数据提供方契约：本地记录快照提供方和权威系统计数提供方
 * @architecture 服务层 - 外部协作方接口
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 快照获取 -> 各校验器共享只读快照 -> 产出Finding
 * @rules 快照在一次运行内只读共享；核心不依赖具体存储引擎，只依赖提供方接口
 * @dependencies context, service/models
 * @refs service/quality/engine.go
 */

package quality

import (
	"context"
	"time"

	"vms-quality-service/service/models"

	"github.com/spf13/cast"
)

// EntitySnapshot 某实体类型当前本地记录集的只读快照
type EntitySnapshot struct {
	Entity  models.EntityType        `json:"entity"`
	Records []map[string]interface{} `json:"records"`
	TakenAt time.Time                `json:"taken_at"`
}

// Count 快照记录数
func (s *EntitySnapshot) Count() int64 {
	if s == nil {
		return 0
	}
	return int64(len(s.Records))
}

// KeySet 收集某字段的非空取值集合，用于引用解析
func (s *EntitySnapshot) KeySet(field string) map[string]struct{} {
	keys := make(map[string]struct{})
	if s == nil {
		return keys
	}
	for _, record := range s.Records {
		if v, ok := record[field]; ok && v != nil {
			str := cast.ToString(v)
			if str != "" {
				keys[str] = struct{}{}
			}
		}
	}
	return keys
}

// SnapshotProvider 本地记录快照提供方（记录检索层，核心只消费不实现）
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context, entity models.EntityType) (*EntitySnapshot, error)
}

// ReferenceCountProvider 权威系统计数提供方，仅供数量比对校验器使用
type ReferenceCountProvider interface {
	GetReferenceCount(ctx context.Context, entity models.EntityType, filters map[string]interface{}) (int64, error)
}
