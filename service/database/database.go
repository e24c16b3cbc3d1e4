/*
 * @module service/database/database
 * @description 数据库连接初始化与自动迁移，内置业务规则在迁移后播种
 * @architecture 数据访问层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 读取环境变量 -> 建立Postgres连接 -> 自动迁移 -> 播种内置规则
 * @rules 内置规则播种幂等：已存在的规则不覆盖，管理员的启停与调参得以保留
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs service/init.go
 */

package database

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vms-quality-service/service/models"
)

// InitDB 初始化数据库连接
func InitDB() (*gorm.DB, error) {
	host := getEnvWithDefault("DB_HOST", "localhost")
	port := getEnvWithDefault("DB_PORT", "5432")
	user := getEnvWithDefault("DB_USER", "postgres")
	password := getEnvWithDefault("DB_PASSWORD", "")
	dbname := getEnvWithDefault("DB_NAME", "vms_quality")
	sslmode := getEnvWithDefault("DB_SSLMODE", "disable")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	slog.Info("数据库连接成功", "host", host, "database", dbname)
	return db, nil
}

// AutoMigrate 迁移全部模型并播种内置业务规则
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.ValidationRun{},
		&models.QualityFinding{},
		&models.DimensionScore{},
		&models.QualityScore{},
		&models.QualityHistoryRecord{},
		&models.BusinessRuleDef{},
	)
	if err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return seedBuiltinRules(db)
}

// seedBuiltinRules 播种内置业务规则，按ID幂等
func seedBuiltinRules(db *gorm.DB) error {
	for _, rule := range builtinRules() {
		var count int64
		if err := db.Model(&models.BusinessRuleDef{}).Where("id = ?", rule.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&rule).Error; err != nil {
			return fmt.Errorf("播种内置规则 %s 失败: %w", rule.ID, err)
		}
		slog.Info("播种内置业务规则", "rule_id", rule.ID, "name", rule.Name)
	}
	return nil
}

// builtinRules 内置业务规则定义
func builtinRules() []models.BusinessRuleDef {
	return []models.BusinessRuleDef{
		{
			ID:               "builtin-volunteer-email-format",
			Name:             "志愿者邮箱格式",
			Kind:             "field_format",
			ApplicableEntity: []string{string(models.EntityVolunteer)},
			Field:            "email",
			Severity:         models.SeverityError,
			Message:          "志愿者邮箱不符合格式要求",
			Params: models.JSONB{
				"pattern": `^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`,
			},
			IsBuiltIn: true,
			IsEnabled: true,
		},
		{
			ID:               "builtin-event-date-order",
			Name:             "活动起止时间顺序",
			Kind:             "cross_field",
			ApplicableEntity: []string{string(models.EntityEvent)},
			Severity:         models.SeverityError,
			Message:          "活动开始时间必须不晚于结束时间",
			Params: models.JSONB{
				"left_field":  "start_date",
				"operator":    "not_after",
				"right_field": "end_date",
			},
			IsBuiltIn: true,
			IsEnabled: true,
		},
		{
			ID:               "builtin-event-status-transition",
			Name:             "活动状态流转",
			Kind:             "state_transition",
			ApplicableEntity: []string{string(models.EntityEvent)},
			Field:            "status",
			Severity:         models.SeverityWarning,
			Message:          "活动状态不在允许的流转路径上",
			IsBuiltIn:        true,
			IsEnabled:        true,
		},
		{
			ID:               "builtin-participation-hours-range",
			Name:             "参与时长取值范围",
			Kind:             "expression",
			ApplicableEntity: []string{string(models.EntityParticipation)},
			Severity:         models.SeverityWarning,
			Message:          "单次参与时长超出合理范围",
			Params: models.JSONB{
				"source": `package rules

func Check(record map[string]interface{}) bool {
	v, ok := record["hours"]
	if !ok || v == nil {
		return true
	}
	h, ok := v.(float64)
	if !ok {
		return true
	}
	return h >= 0 && h <= 24
}`,
			},
			IsBuiltIn: true,
			IsEnabled: true,
		},
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
