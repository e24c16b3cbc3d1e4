/*
 * @module api/controllers/quality_controller
 * @description 数据质量控制器：触发校验运行、查询运行记录与质量得分
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 请求接收 -> 引擎编排 -> 响应返回
 * @rules 运行触发为同步执行，配置非法返回400；得分查询支持latest语义
 * @dependencies net/http, github.com/go-chi/chi/v5
 * @refs service/quality/engine.go
 */

package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"gorm.io/gorm"

	"vms-quality-service/service"
	"vms-quality-service/service/models"
	"vms-quality-service/service/quality"
)

// QualityController 数据质量控制器
type QualityController struct{}

// NewQualityController 创建数据质量控制器实例
func NewQualityController() *QualityController {
	return &QualityController{}
}

// RunValidationRequest 触发校验运行的请求体
type RunValidationRequest struct {
	EntityScope     string   `json:"entity_scope"`               // 单个实体类型或"all"，缺省为"all"
	ValidationTypes []string `json:"validation_types,omitempty"` // 缺省为全部五类
}

// RunValidation 触发校验运行
// @Summary 触发数据质量校验运行
// @Description 对指定实体范围执行数据质量校验并完成评分，同步返回运行记录
// @Tags 数据质量
// @Accept json
// @Produce json
// @Param request body RunValidationRequest true "运行范围"
// @Success 200 {object} APIResponse{data=models.ValidationRun}
// @Failure 400 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /quality/runs [post]
func (c *QualityController) RunValidation(w http.ResponseWriter, r *http.Request) {
	var req RunValidationRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		BadRequestResponse(w, r, "请求体解析失败: "+err.Error())
		return
	}
	if req.EntityScope == "" {
		req.EntityScope = quality.EntityScopeAll
	}

	types := make([]models.ValidationType, 0, len(req.ValidationTypes))
	for _, t := range req.ValidationTypes {
		types = append(types, models.ValidationType(t))
	}

	run, err := service.Engine.RunValidation(r.Context(), req.EntityScope, types)
	if err != nil {
		if errors.Is(err, quality.ErrConfiguration) {
			BadRequestResponse(w, r, err.Error())
			return
		}
		InternalErrorResponse(w, r, "校验运行失败: "+err.Error())
		return
	}
	SuccessResponse(w, r, "校验运行完成", run)
}

// GetRun 查询运行记录详情
// @Summary 查询校验运行详情
// @Description 按运行ID查询运行记录及其全部Finding
// @Tags 数据质量
// @Produce json
// @Param id path string true "运行ID"
// @Success 200 {object} APIResponse{data=models.ValidationRun}
// @Failure 404 {object} APIResponse
// @Router /quality/runs/{id} [get]
func (c *QualityController) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	run, err := service.Engine.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFoundResponse(w, r, "运行记录不存在")
			return
		}
		InternalErrorResponse(w, r, err.Error())
		return
	}
	SuccessResponse(w, r, "获取运行详情成功", run)
}

// ListRuns 分页列出运行记录
// @Summary 列出校验运行记录
// @Description 按开始时间倒序分页列出运行记录
// @Tags 数据质量
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(20)
// @Success 200 {object} PaginatedResponse{data=[]models.ValidationRun}
// @Failure 500 {object} APIResponse
// @Router /quality/runs [get]
func (c *QualityController) ListRuns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	runs, total, err := service.Engine.ListRuns(r.Context(), page, size)
	if err != nil {
		InternalErrorResponse(w, r, err.Error())
		return
	}
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	SuccessWithPagination(w, r, "获取运行列表成功", runs, total, page, size)
}

// GetQualityScore 查询实体质量得分
// @Summary 查询实体综合质量得分
// @Description 查询实体在指定运行（或最近终态运行）中的综合得分与维度得分
// @Tags 数据质量
// @Produce json
// @Param entity path string true "实体类型" Enums(volunteer,teacher,organization,event,participation)
// @Param run_id query string false "运行ID，缺省或latest表示最近终态运行"
// @Success 200 {object} APIResponse{data=models.QualityScore}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /quality/scores/{entity} [get]
func (c *QualityController) GetQualityScore(w http.ResponseWriter, r *http.Request) {
	entity := models.EntityType(chi.URLParam(r, "entity"))
	if !models.IsValidEntityType(entity) {
		BadRequestResponse(w, r, "未知实体类型: "+string(entity))
		return
	}
	runID := r.URL.Query().Get("run_id")

	score, err := service.Engine.GetQualityScore(r.Context(), entity, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFoundResponse(w, r, "该实体尚无质量得分")
			return
		}
		InternalErrorResponse(w, r, err.Error())
		return
	}
	SuccessResponse(w, r, "获取质量得分成功", score)
}
