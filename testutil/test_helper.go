/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, time
 * @refs service/models
 */

package testutil

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vms-quality-service/service/models"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建内存测试数据库
// BusinessRuleDef使用text[]列，sqlite不支持，规则相关测试直接用配置中的规则对象
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	err = db.AutoMigrate(
		&models.ValidationRun{},
		&models.QualityFinding{},
		&models.DimensionScore{},
		&models.QualityScore{},
		&models.QualityHistoryRecord{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	tables := []string{
		"validation_runs",
		"quality_findings",
		"dimension_scores",
		"quality_scores",
		"quality_history_records",
	}
	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if sqlDB, err := tdb.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// DefaultTestConfig 测试用的质量配置
func DefaultTestConfig() *models.QualityConfig {
	return &models.QualityConfig{
		Version: "test",
		SeverityWeights: models.SeverityWeights{
			Critical: 1.0,
			Error:    0.8,
			Warning:  0.5,
			Info:     0.2,
		},
		PenaltyMultipliers: map[models.ValidationType]float64{
			models.ValidationCount:        15,
			models.ValidationCompleteness: 10,
			models.ValidationDataType:     10,
			models.ValidationRelationship: 12,
			models.ValidationBusinessRule: 8,
		},
		DefaultWeights: models.DimensionWeights{
			models.ValidationCount:        0.15,
			models.ValidationCompleteness: 0.25,
			models.ValidationDataType:     0.20,
			models.ValidationRelationship: 0.25,
			models.ValidationBusinessRule: 0.15,
		},
		DefaultThresholds: models.ThresholdConfig{
			Info:     100,
			Warning:  85,
			Error:    60,
			Critical: 30,
		},
		Completeness: models.CompletenessConfig{
			FloorPercent: 95,
			WarningGap:   5,
			ErrorGap:     15,
		},
		Trend: models.TrendConfig{
			WindowDays:    30,
			MinPoints:     3,
			SlopeDeadZone: 0.05,
		},
		Anomaly: models.AnomalyConfig{
			WindowSize:     20,
			SigmaThreshold: 2.5,
		},
		MaxParallel:        3,
		ValidatorTimeoutMS: 5000,
	}
}

// CreateTestRun 创建测试运行记录
func (tdb *TestDB) CreateTestRun(status models.RunStatus) *models.ValidationRun {
	run := &models.ValidationRun{
		StartedAt:   time.Now(),
		EntityScope: "all",
		Status:      status,
	}
	if status != models.RunStatusRunning {
		now := time.Now()
		run.FinishedAt = &now
	}
	if err := tdb.DB.Create(run).Error; err != nil {
		panic(fmt.Sprintf("failed to create test run: %v", err))
	}
	return run
}

// CreateHistoryRecord 创建历史记录
func (tdb *TestDB) CreateHistoryRecord(entity models.EntityType, metric string,
	value float64, recordedAt time.Time) *models.QualityHistoryRecord {

	record := &models.QualityHistoryRecord{
		RunID:      "test-run",
		EntityType: entity,
		MetricName: metric,
		Value:      value,
		RecordedAt: recordedAt,
	}
	if err := tdb.DB.Create(record).Error; err != nil {
		panic(fmt.Sprintf("failed to create history record: %v", err))
	}
	return record
}

// VolunteerRecord 构造一条志愿者测试记录
func VolunteerRecord(id, name, email string) map[string]interface{} {
	return map[string]interface{}{
		"id":    id,
		"name":  name,
		"email": email,
	}
}
