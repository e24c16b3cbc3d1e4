/*
 * @module service/config/provider
 * @description 质量配置加载与校验：viper读取YAML，缺省值内建，加载后整体校验失败则拒绝启用
 * @architecture 服务层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 启动加载 -> 校验(权重/阈值/规则) -> 只读快照供引擎使用；校验失败保留上一份有效配置
 * @rules 配置对象加载后只读；权重非法或阈值非降序的配置不得进入运行
 * @dependencies github.com/spf13/viper
 * @refs service/quality/weighting_engine.go, service/quality/threshold_manager.go
 */

package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/viper"

	"vms-quality-service/service/models"
	"vms-quality-service/service/quality"
)

// Provider 配置提供者，持有当前生效的只读配置快照
type Provider struct {
	mu      sync.RWMutex
	current *models.QualityConfig
	path    string
}

// NewProvider 创建配置提供者并完成首次加载
// QUALITY_CONFIG_PATH 指向YAML配置文件，未设置时使用内建缺省配置
func NewProvider() (*Provider, error) {
	p := &Provider{path: os.Getenv("QUALITY_CONFIG_PATH")}
	cfg, err := p.load()
	if err != nil {
		return nil, err
	}
	p.current = cfg
	return p, nil
}

// Current 返回当前生效的配置快照
func (p *Provider) Current() *models.QualityConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Reload 重新加载配置；校验失败时保留上一份有效配置并返回错误
func (p *Provider) Reload() error {
	cfg, err := p.load()
	if err != nil {
		slog.Error("配置重载失败，保留当前生效配置", "error", err)
		return err
	}
	p.mu.Lock()
	p.current = cfg
	p.mu.Unlock()
	slog.Info("配置已重载", "version", cfg.Version)
	return nil
}

func (p *Provider) load() (*models.QualityConfig, error) {
	v := viper.New()
	setDefaults(v)

	if p.path != "" {
		v.SetConfigFile(p.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg models.QualityConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults 内建缺省配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "default")

	v.SetDefault("severity_weights.critical", 1.0)
	v.SetDefault("severity_weights.error", 0.8)
	v.SetDefault("severity_weights.warning", 0.5)
	v.SetDefault("severity_weights.info", 0.2)

	v.SetDefault("penalty_multipliers", map[string]float64{
		string(models.ValidationCount):        15,
		string(models.ValidationCompleteness): 10,
		string(models.ValidationDataType):     10,
		string(models.ValidationRelationship): 12,
		string(models.ValidationBusinessRule): 8,
	})

	v.SetDefault("default_weights", map[string]float64{
		string(models.ValidationCount):        0.15,
		string(models.ValidationCompleteness): 0.25,
		string(models.ValidationDataType):     0.20,
		string(models.ValidationRelationship): 0.25,
		string(models.ValidationBusinessRule): 0.15,
	})

	v.SetDefault("default_thresholds.info", 100.0)
	v.SetDefault("default_thresholds.warning", 85.0)
	v.SetDefault("default_thresholds.error", 60.0)
	v.SetDefault("default_thresholds.critical", 30.0)

	v.SetDefault("completeness.floor_percent", 95.0)
	v.SetDefault("completeness.warning_gap", 5.0)
	v.SetDefault("completeness.error_gap", 15.0)

	v.SetDefault("trend.window_days", 30)
	v.SetDefault("trend.min_points", 3)
	v.SetDefault("trend.slope_dead_zone", 0.05)

	v.SetDefault("anomaly.window_size", 20)
	v.SetDefault("anomaly.sigma_threshold", 2.5)

	v.SetDefault("max_parallel", 3)
	v.SetDefault("validator_timeout_ms", 30000)
}

// Validate 整体校验配置：维度权重可归一、阈值严格降序、业务规则结构合法
func Validate(cfg *models.QualityConfig) error {
	if err := quality.ValidateWeights(cfg.DefaultWeights); err != nil {
		return fmt.Errorf("默认维度权重非法: %w", err)
	}
	for entity, weights := range cfg.EntityWeights {
		if !models.IsValidEntityType(entity) {
			return fmt.Errorf("%w: 权重配置引用未知实体类型 %s", quality.ErrConfiguration, entity)
		}
		if err := quality.ValidateWeights(weights); err != nil {
			return fmt.Errorf("实体 %s 维度权重非法: %w", entity, err)
		}
	}

	if err := quality.ValidateThresholds(cfg.DefaultThresholds); err != nil {
		return fmt.Errorf("默认阈值非法: %w", err)
	}
	for entity, thresholds := range cfg.EntityThresholds {
		if !models.IsValidEntityType(entity) {
			return fmt.Errorf("%w: 阈值配置引用未知实体类型 %s", quality.ErrConfiguration, entity)
		}
		if err := quality.ValidateThresholds(thresholds); err != nil {
			return fmt.Errorf("实体 %s 阈值非法: %w", entity, err)
		}
	}

	for entity, check := range cfg.CountChecks {
		if !models.IsValidEntityType(entity) {
			return fmt.Errorf("%w: 数量比对配置引用未知实体类型 %s", quality.ErrConfiguration, entity)
		}
		if check.TolerancePercent < 0 {
			return fmt.Errorf("%w: 实体 %s 的数量容差不能为负", quality.ErrConfiguration, entity)
		}
	}

	if cfg.Completeness.FloorPercent < 0 || cfg.Completeness.FloorPercent > 100 {
		return fmt.Errorf("%w: 完整率下限必须位于[0,100]", quality.ErrConfiguration)
	}

	if err := validateRules(cfg.Rules); err != nil {
		return err
	}
	return nil
}

func validateRules(rules []models.BusinessRule) error {
	evaluator := quality.NewExpressionEvaluator()
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		if rule.ID == "" {
			return fmt.Errorf("%w: 业务规则缺少id", quality.ErrConfiguration)
		}
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("%w: 业务规则id重复 %s", quality.ErrConfiguration, rule.ID)
		}
		seen[rule.ID] = struct{}{}

		if !models.IsValidEntityType(rule.Entity) {
			return fmt.Errorf("%w: 规则 %s 引用未知实体类型 %s", quality.ErrConfiguration, rule.ID, rule.Entity)
		}
		switch rule.Kind {
		case quality.RuleKindFieldFormat, quality.RuleKindCrossField,
			quality.RuleKindStateTransition, quality.RuleKindNaming:
		case quality.RuleKindExpression:
			// 表达式规则在加载期预编译，拒绝不可编译的规则进入运行
			source, _ := rule.Params["source"].(string)
			if source == "" {
				return fmt.Errorf("%w: 表达式规则 %s 缺少source", quality.ErrConfiguration, rule.ID)
			}
			if err := evaluator.Validate(source); err != nil {
				return fmt.Errorf("%w: 表达式规则 %s 编译失败: %v", quality.ErrConfiguration, rule.ID, err)
			}
		default:
			return fmt.Errorf("%w: 规则 %s 的类型未知 %s", quality.ErrConfiguration, rule.ID, rule.Kind)
		}
	}
	return nil
}
