/*
 * @module service/quality/engine
 * @description 校验引擎：按实体范围编排五类校验器并发执行、维度评分、权重合成与结果落库
 * @architecture 服务层 - 编排
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 创建运行(running) -> 分实体加锁获取快照 -> 校验器受限并发 -> 评分合成 -> 事务落库 -> 历史追加与告警 -> 终态
 * @rules 单个校验器失败不中止运行，降级为Critical Finding并将运行标记partial_failure；同一实体的运行经分布式锁串行化
 * @dependencies gorm.io/gorm, service/history, service/alerting, service/distributed_lock
 * @refs service/quality/validator.go, service/history/history_service.go
 */

package quality

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"vms-quality-service/service/alerting"
	"vms-quality-service/service/distributed_lock"
	"vms-quality-service/service/history"
	"vms-quality-service/service/meta"
	"vms-quality-service/service/models"
)

// EntityScopeAll 表示对全部实体类型执行校验
const EntityScopeAll = "all"

// ConfigSource 返回当前生效的只读配置快照
type ConfigSource func() *models.QualityConfig

// ValidationEngine 数据质量校验引擎
type ValidationEngine struct {
	db         *gorm.DB
	snapshots  SnapshotProvider
	refCounts  ReferenceCountProvider
	validators map[models.ValidationType]Validator
	scorer     *ScoreCalculator
	weighting  *WeightingEngine
	history    *history.HistoryService
	alerts     alerting.AlertPublisher
	lock       distributed_lock.DistributedLock // 可为nil，单实例部署时退化为进程内互斥
	configFn   ConfigSource

	// 进程内按实体互斥，分布式锁之下的第二道防线
	entityMu map[models.EntityType]*sync.Mutex
}

// NewValidationEngine 创建校验引擎
func NewValidationEngine(db *gorm.DB, snapshots SnapshotProvider, refCounts ReferenceCountProvider,
	historySvc *history.HistoryService, alerts alerting.AlertPublisher,
	lock distributed_lock.DistributedLock, configFn ConfigSource) *ValidationEngine {

	entityMu := make(map[models.EntityType]*sync.Mutex, len(models.AllEntityTypes()))
	for _, entity := range models.AllEntityTypes() {
		entityMu[entity] = &sync.Mutex{}
	}

	if alerts == nil {
		alerts = alerting.NopPublisher{}
	}

	return &ValidationEngine{
		db:         db,
		snapshots:  snapshots,
		refCounts:  refCounts,
		validators: NewValidatorSet(NewExpressionEvaluator()),
		scorer:     NewScoreCalculator(),
		weighting:  NewWeightingEngine(),
		history:    historySvc,
		alerts:     alerts,
		lock:       lock,
		configFn:   configFn,
		entityMu:   entityMu,
	}
}

// entityOutcome 单个实体的校验与评分产出
type entityOutcome struct {
	entity     models.EntityType
	findings   []models.QualityFinding
	dimensions []models.DimensionScore
	score      *models.QualityScore
	total      int64
	passed     int64
	// 执行失败的(实体,维度)对，用于运行状态判定
	failedValidators []string
	err              error
}

// RunValidation 执行一次校验运行
// entityScope为单个实体类型或"all"；typesScope为空时执行全部五类校验
func (e *ValidationEngine) RunValidation(ctx context.Context, entityScope string,
	typesScope []models.ValidationType) (*models.ValidationRun, error) {

	cfg := e.configFn()
	entities, err := resolveEntityScope(entityScope)
	if err != nil {
		return nil, err
	}
	types, err := resolveTypesScope(typesScope)
	if err != nil {
		return nil, err
	}

	run := &models.ValidationRun{
		StartedAt:            time.Now(),
		EntityScope:          entityScope,
		ValidationTypesScope: models.JSONB{"list": typeNames(types)},
		Status:               models.RunStatusRunning,
	}
	if err := e.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("创建校验运行失败: %w", err)
	}

	// 配置在运行入口整体校验，非法配置直接判定运行失败
	if err := e.precheckConfig(cfg, entities); err != nil {
		return e.finalizeFailed(ctx, run, err)
	}

	slog.Info("校验运行开始",
		"run_id", run.ID,
		"entity_scope", entityScope,
		"validation_types", typeNames(types))

	outcomes := e.runEntities(ctx, run.ID, entities, types, cfg)

	anyExecFailure := false
	anyEntityFailure := false
	var failedValidators []string
	for _, out := range outcomes {
		run.TotalChecks += out.total
		run.PassedChecks += out.passed
		if out.err != nil {
			anyEntityFailure = true
			failedValidators = append(failedValidators, fmt.Sprintf("%s:*", out.entity))
			continue
		}
		if len(out.failedValidators) > 0 {
			anyExecFailure = true
			failedValidators = append(failedValidators, out.failedValidators...)
		}
	}
	run.FailedChecks = run.TotalChecks - run.PassedChecks

	// failed状态仅保留给配置非法的运行；执行期失败一律降级为partial_failure
	if anyEntityFailure || anyExecFailure {
		run.Status = models.RunStatusPartialFailure
	} else {
		run.Status = models.RunStatusCompleted
	}
	if len(failedValidators) > 0 {
		run.FailedValidators = models.JSONB{"list": failedValidators}
	}

	now := time.Now()
	run.FinishedAt = &now
	if err := e.db.WithContext(ctx).Save(run).Error; err != nil {
		return nil, fmt.Errorf("更新校验运行失败: %w", err)
	}

	runsTotal.WithLabelValues(string(run.Status)).Inc()
	runDuration.Observe(now.Sub(run.StartedAt).Seconds())

	slog.Info("校验运行结束",
		"run_id", run.ID,
		"status", run.Status,
		"total_checks", run.TotalChecks,
		"passed", run.PassedChecks,
		"failed", run.FailedChecks,
		"duration", now.Sub(run.StartedAt))

	return run, nil
}

// runEntities 按实体并发执行，受MaxParallel信号量约束
func (e *ValidationEngine) runEntities(ctx context.Context, runID string,
	entities []models.EntityType, types []models.ValidationType, cfg *models.QualityConfig) []entityOutcome {

	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	sem := make(chan struct{}, maxParallel)

	outcomes := make([]entityOutcome, len(entities))
	var wg sync.WaitGroup
	for i, entity := range entities {
		wg.Add(1)
		go func(idx int, entity models.EntityType) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[idx] = e.runEntity(ctx, runID, entity, types, cfg)
		}(i, entity)
	}
	wg.Wait()
	return outcomes
}

// runEntity 对单个实体执行全部请求的校验维度并完成评分落库
func (e *ValidationEngine) runEntity(ctx context.Context, runID string,
	entity models.EntityType, types []models.ValidationType, cfg *models.QualityConfig) entityOutcome {

	out := entityOutcome{entity: entity}

	release, err := e.acquireEntityLock(ctx, entity)
	if err != nil {
		out.err = fmt.Errorf("实体 %s 加锁失败: %w", entity, err)
		slog.Error("实体校验跳过", "entity", entity, "error", err)
		return out
	}
	defer release()

	schema, ok := meta.SchemaFor(entity)
	if !ok {
		out.err = fmt.Errorf("实体 %s 缺少字段元数据", entity)
		return out
	}

	input, snapErr := e.buildInput(ctx, entity, schema, cfg)

	results := make(map[models.ValidationType]*ValidationResult, len(types))
	if snapErr != nil {
		// 快照不可用：所有请求的维度降级为data_unavailable类Critical Finding
		for _, vt := range types {
			results[vt] = failureResult(&ValidationInput{Entity: entity}, vt,
				&DataUnavailableError{Provider: "snapshot", Err: snapErr})
		}
	} else {
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, vt := range types {
			validator, ok := e.validators[vt]
			if !ok {
				continue
			}
			wg.Add(1)
			go func(vt models.ValidationType, v Validator) {
				defer wg.Done()
				result := safeValidate(ctx, v, input, cfg.ValidatorTimeout())
				mu.Lock()
				results[vt] = result
				mu.Unlock()
			}(vt, validator)
		}
		wg.Wait()
	}

	// 评分
	dims := make([]models.DimensionScore, 0, len(types))
	for _, vt := range types {
		result := results[vt]
		if result == nil {
			continue
		}
		out.total += result.TotalChecks
		out.passed += result.PassedChecks
		out.findings = append(out.findings, stampFindings(result.Findings, runID, entity)...)
		if hasExecutionFailure(result) {
			out.failedValidators = append(out.failedValidators, fmt.Sprintf("%s:%s", entity, vt))
		}
		dims = append(dims, e.scorer.CalculateDimensionScore(runID, entity, vt, result, cfg))
	}

	score, dims, err := e.weighting.CalculateComposite(runID, entity, dims, cfg)
	if err != nil {
		out.err = fmt.Errorf("实体 %s 综合评分失败: %w", entity, err)
		return out
	}
	out.dimensions = dims
	out.score = &score

	if err := e.persistEntity(ctx, &out); err != nil {
		out.err = err
		return out
	}

	for _, f := range out.findings {
		findingsTotal.WithLabelValues(string(f.Severity), string(f.ValidationType)).Inc()
	}

	e.recordHistory(ctx, runID, entity, &score, dims, cfg)
	e.raiseAlerts(ctx, runID, entity, &score)
	return out
}

// buildInput 构造校验输入：本地快照 + 被引用实体的主键集合
func (e *ValidationEngine) buildInput(ctx context.Context, entity models.EntityType,
	schema meta.EntitySchema, cfg *models.QualityConfig) (*ValidationInput, error) {

	snapshot, err := e.snapshots.GetSnapshot(ctx, entity)
	if err != nil {
		return nil, err
	}

	relatedKeys := make(map[models.EntityType]map[string]struct{})
	for _, ref := range schema.References {
		if _, done := relatedKeys[ref.TargetEntity]; done {
			continue
		}
		targetSchema, ok := meta.SchemaFor(ref.TargetEntity)
		if !ok {
			continue
		}
		related, err := e.snapshots.GetSnapshot(ctx, ref.TargetEntity)
		if err != nil {
			// 留空，由关联校验器对缺失目标快照报data_unavailable
			continue
		}
		relatedKeys[ref.TargetEntity] = related.KeySet(targetSchema.KeyField)
	}

	return &ValidationInput{
		Entity:      entity,
		Schema:      schema,
		Snapshot:    snapshot,
		Config:      cfg,
		RelatedKeys: relatedKeys,
		RefCounts:   e.refCounts,
	}, nil
}

// persistEntity 单实体的Finding、维度得分与综合得分在一个事务中落库
func (e *ValidationEngine) persistEntity(ctx context.Context, out *entityOutcome) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(out.findings) > 0 {
			if err := tx.CreateInBatches(out.findings, 200).Error; err != nil {
				return fmt.Errorf("保存Finding失败: %w", err)
			}
		}
		if len(out.dimensions) > 0 {
			if err := tx.Create(&out.dimensions).Error; err != nil {
				return fmt.Errorf("保存维度得分失败: %w", err)
			}
		}
		if err := tx.Create(out.score).Error; err != nil {
			return fmt.Errorf("保存综合得分失败: %w", err)
		}
		return nil
	})
}

// recordHistory 将综合分与各适用维度分追加到历史序列
func (e *ValidationEngine) recordHistory(ctx context.Context, runID string,
	entity models.EntityType, score *models.QualityScore, dims []models.DimensionScore,
	cfg *models.QualityConfig) {

	if e.history == nil {
		return
	}

	record, err := e.history.Record(ctx, runID, entity, models.MetricComposite,
		score.CompositeScore, cfg.Trend, cfg.Anomaly)
	if err != nil {
		slog.Error("追加综合分历史失败", "run_id", runID, "entity", entity, "error", err)
	} else if record.IsAnomaly {
		e.publishAlert(ctx, alerting.AlertEvent{
			Kind:       alerting.AlertAnomaly,
			RunID:      runID,
			EntityType: entity,
			MetricName: models.MetricComposite,
			Score:      score.CompositeScore,
			Message:    fmt.Sprintf("综合得分 %.2f 偏离滚动均值 %.2fσ", score.CompositeScore, record.AnomalyScore),
		})
	}

	for _, dim := range dims {
		if !dim.Applicable {
			continue
		}
		_, err := e.history.Record(ctx, runID, entity, string(dim.ValidationType),
			dim.RawScore, cfg.Trend, cfg.Anomaly)
		if err != nil {
			slog.Error("追加维度分历史失败",
				"run_id", runID, "entity", entity, "metric", dim.ValidationType, "error", err)
		}
	}
}

// raiseAlerts 综合分落入error/critical档时发布告警
func (e *ValidationEngine) raiseAlerts(ctx context.Context, runID string,
	entity models.EntityType, score *models.QualityScore) {

	if score.SeverityBand != models.SeverityError && score.SeverityBand != models.SeverityCritical {
		return
	}
	e.publishAlert(ctx, alerting.AlertEvent{
		Kind:       alerting.AlertScoreDegraded,
		RunID:      runID,
		EntityType: entity,
		Score:      score.CompositeScore,
		Band:       score.SeverityBand,
		Message:    fmt.Sprintf("实体 %s 综合得分 %.2f 落入 %s 档", entity, score.CompositeScore, score.SeverityBand),
	})
}

func (e *ValidationEngine) publishAlert(ctx context.Context, event alerting.AlertEvent) {
	if err := e.alerts.Publish(ctx, event); err != nil {
		slog.Error("告警发布失败", "kind", event.Kind, "entity", event.EntityType, "error", err)
	}
}

// acquireEntityLock 先取进程内互斥，再尝试分布式锁（带重试）
func (e *ValidationEngine) acquireEntityLock(ctx context.Context, entity models.EntityType) (func(), error) {
	mu := e.entityMu[entity]
	mu.Lock()

	if e.lock == nil {
		return mu.Unlock, nil
	}

	key := string(entity)
	const attempts = 3
	for i := 0; i < attempts; i++ {
		acquired, err := e.lock.TryLock(ctx, key, 5*time.Minute)
		if err != nil {
			mu.Unlock()
			return nil, err
		}
		if acquired {
			return func() {
				unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := e.lock.Unlock(unlockCtx, key); err != nil {
					slog.Warn("分布式锁释放失败", "entity", entity, "error", err)
				}
				mu.Unlock()
			}, nil
		}
		select {
		case <-ctx.Done():
			mu.Unlock()
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	mu.Unlock()
	return nil, fmt.Errorf("实体 %s 的校验运行正在其他实例上进行", entity)
}

// precheckConfig 运行入口的配置整体校验
func (e *ValidationEngine) precheckConfig(cfg *models.QualityConfig, entities []models.EntityType) error {
	for _, entity := range entities {
		if err := ValidateWeights(cfg.WeightsFor(entity)); err != nil {
			return fmt.Errorf("实体 %s: %w", entity, err)
		}
		if err := ValidateThresholds(cfg.ThresholdsFor(entity)); err != nil {
			return fmt.Errorf("实体 %s: %w", entity, err)
		}
	}
	return nil
}

func (e *ValidationEngine) finalizeFailed(ctx context.Context, run *models.ValidationRun, cause error) (*models.ValidationRun, error) {
	now := time.Now()
	run.FinishedAt = &now
	run.Status = models.RunStatusFailed
	run.ErrorMessage = cause.Error()
	if err := e.db.WithContext(ctx).Save(run).Error; err != nil {
		return nil, fmt.Errorf("更新校验运行失败: %w", err)
	}
	runsTotal.WithLabelValues(string(run.Status)).Inc()
	e.publishAlert(ctx, alerting.AlertEvent{
		Kind:    alerting.AlertRunFailed,
		RunID:   run.ID,
		Message: cause.Error(),
	})
	slog.Error("校验运行因配置非法终止", "run_id", run.ID, "error", cause)
	return run, cause
}

// GetRun 查询运行记录（含Finding）
func (e *ValidationEngine) GetRun(ctx context.Context, runID string) (*models.ValidationRun, error) {
	var run models.ValidationRun
	err := e.db.WithContext(ctx).Preload("Findings").First(&run, "id = ?", runID).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns 按开始时间倒序分页列出运行记录
func (e *ValidationEngine) ListRuns(ctx context.Context, page, size int) ([]models.ValidationRun, int64, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	var total int64
	if err := e.db.WithContext(ctx).Model(&models.ValidationRun{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var runs []models.ValidationRun
	err := e.db.WithContext(ctx).
		Order("started_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// GetQualityScore 查询实体的综合得分
// runID为"latest"时取最近一次completed或partial_failure运行的得分
func (e *ValidationEngine) GetQualityScore(ctx context.Context, entity models.EntityType, runID string) (*models.QualityScore, error) {
	if runID == "" || runID == "latest" {
		resolved, err := e.latestScoredRun(ctx, entity)
		if err != nil {
			return nil, err
		}
		runID = resolved
	}

	var score models.QualityScore
	err := e.db.WithContext(ctx).
		First(&score, "run_id = ? AND entity_type = ?", runID, entity).Error
	if err != nil {
		return nil, err
	}

	if err := e.db.WithContext(ctx).
		Where("run_id = ? AND entity_type = ?", runID, entity).
		Find(&score.DimensionScores).Error; err != nil {
		return nil, err
	}
	return &score, nil
}

// latestScoredRun 最近一次产出该实体得分的终态运行
func (e *ValidationEngine) latestScoredRun(ctx context.Context, entity models.EntityType) (string, error) {
	var score models.QualityScore
	err := e.db.WithContext(ctx).
		Joins("JOIN validation_runs ON validation_runs.id = quality_scores.run_id").
		Where("quality_scores.entity_type = ? AND validation_runs.status IN ?",
			entity, []models.RunStatus{models.RunStatusCompleted, models.RunStatusPartialFailure}).
		Order("validation_runs.started_at DESC").
		First(&score).Error
	if err != nil {
		return "", err
	}
	return score.RunID, nil
}

// stampFindings 回填运行与实体标识
func stampFindings(findings []models.QualityFinding, runID string, entity models.EntityType) []models.QualityFinding {
	for i := range findings {
		findings[i].RunID = runID
		if findings[i].EntityType == "" {
			findings[i].EntityType = entity
		}
	}
	return findings
}

func resolveEntityScope(scope string) ([]models.EntityType, error) {
	if scope == "" || scope == EntityScopeAll {
		return models.AllEntityTypes(), nil
	}
	entity := models.EntityType(scope)
	if !models.IsValidEntityType(entity) {
		return nil, fmt.Errorf("%w: 未知实体类型 %s", ErrConfiguration, scope)
	}
	return []models.EntityType{entity}, nil
}

func resolveTypesScope(types []models.ValidationType) ([]models.ValidationType, error) {
	if len(types) == 0 {
		return models.AllValidationTypes(), nil
	}
	for _, vt := range types {
		if !models.IsValidValidationType(vt) {
			return nil, fmt.Errorf("%w: 未知校验维度 %s", ErrConfiguration, vt)
		}
	}
	return types, nil
}

func typeNames(types []models.ValidationType) []interface{} {
	names := make([]interface{}, len(types))
	for i, vt := range types {
		names[i] = string(vt)
	}
	return names
}

