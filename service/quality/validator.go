/*
 * @module service/quality/validator
 * @description 校验器契约与安全执行包装：五类校验器的统一接口、超时预算与崩溃隔离
 * @architecture 服务层 - 校验器框架
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 构造输入 -> 受限执行(超时/异常捕获) -> Finding列表或降级Critical Finding
 * @rules 校验器是纯函数式的：相同快照与配置产出相同Finding；校验器之间互不消费输出
 * @dependencies context, service/models
 * @refs count_validator.go, completeness_validator.go, datatype_validator.go, relationship_validator.go, business_rule_validator.go
 */

package quality

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vms-quality-service/service/meta"
	"vms-quality-service/service/models"
)

// ValidationInput 一次校验器调用的全部输入，运行期间只读
type ValidationInput struct {
	Entity   models.EntityType
	Schema   meta.EntitySchema
	Snapshot *EntitySnapshot
	Config   *models.QualityConfig
	// RelatedKeys 被引用实体的主键集合，仅关联校验器使用
	RelatedKeys map[models.EntityType]map[string]struct{}
	// RefCounts 权威系统计数提供方，仅数量比对校验器使用
	RefCounts ReferenceCountProvider
}

// ValidationResult 一个(实体,维度)的校验产出
type ValidationResult struct {
	Findings     []models.QualityFinding
	TotalChecks  int64
	PassedChecks int64
}

// Validator 校验器接口，五个家族各实现一个
type Validator interface {
	Type() models.ValidationType
	Validate(ctx context.Context, input *ValidationInput) (*ValidationResult, error)
}

// NewValidatorSet 构造全部内置校验器
func NewValidatorSet(evaluator *ExpressionEvaluator) map[models.ValidationType]Validator {
	return map[models.ValidationType]Validator{
		models.ValidationCount:        &CountValidator{},
		models.ValidationCompleteness: &CompletenessValidator{},
		models.ValidationDataType:     &DataTypeValidator{},
		models.ValidationRelationship: &RelationshipValidator{},
		models.ValidationBusinessRule: &BusinessRuleValidator{Evaluator: evaluator},
	}
}

// safeValidate 在执行预算内运行校验器，异常和超时均降级为Critical Finding而非中止运行
func safeValidate(ctx context.Context, v Validator, input *ValidationInput, timeout time.Duration) *ValidationResult {
	type outcome struct {
		result *ValidationResult
		err    error
	}

	done := make(chan outcome, 1)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("校验器崩溃: %v", r)}
			}
		}()
		result, err := v.Validate(execCtx, input)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return failureResult(input, v.Type(), out.err)
		}
		return out.result
	case <-execCtx.Done():
		slog.Warn("校验器执行超时",
			"entity", input.Entity,
			"validation_type", v.Type(),
			"timeout", timeout)
		return &ValidationResult{
			Findings: []models.QualityFinding{{
				EntityType:     input.Entity,
				ValidationType: v.Type(),
				Severity:       models.SeverityCritical,
				Tag:            models.FindingTagTimeout,
				Message:        fmt.Sprintf("校验器执行超过预算 %s，已降级为失败", timeout),
				Timestamp:      time.Now(),
			}},
		}
	}
}

// failureResult 将校验器错误转换为单条Critical Finding
// 数据不可用与执行失败使用不同标签，下游据此区分"检查未运行"与"检查未通过"
func failureResult(input *ValidationInput, vt models.ValidationType, err error) *ValidationResult {
	tag := models.FindingTagValidatorError
	if IsDataUnavailable(err) {
		tag = models.FindingTagDataUnavailable
	}

	slog.Error("校验器执行失败",
		"entity", input.Entity,
		"validation_type", vt,
		"tag", tag,
		"error", err)

	return &ValidationResult{
		Findings: []models.QualityFinding{{
			EntityType:     input.Entity,
			ValidationType: vt,
			Severity:       models.SeverityCritical,
			Tag:            tag,
			Message:        err.Error(),
			Timestamp:      time.Now(),
		}},
	}
}

// hasExecutionFailure 判断结果中是否包含执行失败类Finding（用于运行状态判定）
func hasExecutionFailure(result *ValidationResult) bool {
	for _, f := range result.Findings {
		switch f.Tag {
		case models.FindingTagValidatorError, models.FindingTagDataUnavailable, models.FindingTagTimeout:
			return true
		}
	}
	return false
}
