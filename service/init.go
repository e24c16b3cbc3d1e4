/*
 * @module service/init
 * @description 服务全局初始化：数据库、配置、分布式锁、告警发布与校验引擎的装配
 * @architecture 服务层 - 组合根
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 进程启动 -> 依赖初始化 -> 全局服务就绪 -> 控制器按需取用
 * @rules Redis与Kafka为可选依赖，缺失时分别退化为进程内互斥与空发布器，不阻断启动
 * @dependencies gorm.io/gorm, service/database, service/config, service/quality
 * @refs main.go, api/routes.go
 */

package service

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"gorm.io/gorm"

	"vms-quality-service/client"
	"vms-quality-service/service/alerting"
	"vms-quality-service/service/config"
	"vms-quality-service/service/database"
	"vms-quality-service/service/distributed_lock"
	"vms-quality-service/service/history"
	"vms-quality-service/service/models"
	"vms-quality-service/service/quality"
)

// 全局服务实例
var (
	DB             *gorm.DB
	ConfigProvider *config.Provider
	RuleRepo       *database.RuleRepository
	History        *history.HistoryService
	Aggregation    *history.AggregationService
	Engine         *quality.ValidationEngine
	Alerts         alerting.AlertPublisher

	rulesMu sync.RWMutex
	dbRules []models.BusinessRule
)

func init() {
	if os.Getenv("SKIP_SERVICE_INIT") != "" {
		return
	}

	var err error
	DB, err = database.InitDB()
	if err != nil {
		slog.Error("数据库初始化失败", "error", err)
		panic(err)
	}
	if err := database.AutoMigrate(DB); err != nil {
		slog.Error("数据库迁移失败", "error", err)
		panic(err)
	}

	ConfigProvider, err = config.NewProvider()
	if err != nil {
		slog.Error("配置加载失败", "error", err)
		panic(err)
	}

	RuleRepo = database.NewRuleRepository(DB)
	if err := ReloadRules(context.Background()); err != nil {
		slog.Error("业务规则加载失败", "error", err)
		panic(err)
	}

	var lock distributed_lock.DistributedLock
	if redisLock, err := distributed_lock.NewRedisLock(); err != nil {
		slog.Warn("Redis不可用，按实体的运行串行化退化为进程内互斥", "error", err)
	} else {
		lock = redisLock
	}

	if os.Getenv("KAFKA_BROKERS") != "" {
		Alerts = alerting.NewKafkaPublisher()
	} else {
		slog.Info("未配置Kafka，告警发布使用空实现")
		Alerts = alerting.NopPublisher{}
	}

	cache := history.NewAggregationCache()
	History = history.NewHistoryService(DB, cache)
	Aggregation = history.NewAggregationService(History, cache)

	Engine = quality.NewValidationEngine(
		DB,
		database.NewDBSnapshotProvider(DB),
		client.NewRegistryClientFromEnv(),
		History,
		Alerts,
		lock,
		EffectiveConfig,
	)

	slog.Info("质量服务初始化完成")
}

// EffectiveConfig 当前生效配置：文件/缺省配置叠加数据库中启用的业务规则
func EffectiveConfig() *models.QualityConfig {
	base := ConfigProvider.Current()

	rulesMu.RLock()
	defer rulesMu.RUnlock()
	if len(dbRules) == 0 {
		return base
	}

	merged := *base
	merged.Rules = make([]models.BusinessRule, 0, len(base.Rules)+len(dbRules))
	merged.Rules = append(merged.Rules, base.Rules...)
	merged.Rules = append(merged.Rules, dbRules...)
	return &merged
}

// ReloadRules 重新加载数据库中启用的业务规则
func ReloadRules(ctx context.Context) error {
	rules, err := RuleRepo.LoadEnabledRules(ctx)
	if err != nil {
		return err
	}
	rulesMu.Lock()
	dbRules = rules
	rulesMu.Unlock()
	slog.Info("业务规则已加载", "count", len(rules))
	return nil
}
