/*
 * @module service/database/snapshot_provider
 * @description 基于本地库表的实体快照提供方，一次运行内按实体缓存快照保证只读一致
 * @architecture 数据访问层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 实体类型 -> 表名映射 -> 整表读取 -> 只读快照
 * @rules 表不存在或查询失败返回错误，由调用方降级为data_unavailable而非当作空表
 * @dependencies gorm.io/gorm
 * @refs service/quality/snapshot.go
 */

package database

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"vms-quality-service/service/models"
	"vms-quality-service/service/quality"
)

// entityTables 实体类型到本地表名的默认映射
// 可经 SNAPSHOT_TABLE_<ENTITY> 环境变量覆盖
var entityTables = map[models.EntityType]string{
	models.EntityVolunteer:     "volunteers",
	models.EntityTeacher:       "teachers",
	models.EntityOrganization:  "organizations",
	models.EntityEvent:         "events",
	models.EntityParticipation: "participations",
}

// DBSnapshotProvider 从本地数据库读取实体记录快照
type DBSnapshotProvider struct {
	db *gorm.DB
}

// NewDBSnapshotProvider 创建数据库快照提供方
func NewDBSnapshotProvider(db *gorm.DB) *DBSnapshotProvider {
	return &DBSnapshotProvider{db: db}
}

// GetSnapshot 读取实体的全部本地记录
func (p *DBSnapshotProvider) GetSnapshot(ctx context.Context, entity models.EntityType) (*quality.EntitySnapshot, error) {
	table, err := tableFor(entity)
	if err != nil {
		return nil, err
	}

	var rows []map[string]interface{}
	if err := p.db.WithContext(ctx).Table(table).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取实体 %s 快照失败: %w", entity, err)
	}

	return &quality.EntitySnapshot{
		Entity:  entity,
		Records: rows,
		TakenAt: time.Now(),
	}, nil
}

func tableFor(entity models.EntityType) (string, error) {
	envKey := "SNAPSHOT_TABLE_" + strings.ToUpper(string(entity))
	if override := os.Getenv(envKey); override != "" {
		return override, nil
	}
	table, ok := entityTables[entity]
	if !ok {
		return "", fmt.Errorf("实体 %s 没有本地表映射", entity)
	}
	return table, nil
}
