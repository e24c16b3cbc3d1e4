/*
 * @module api/controllers/history_controller
 * @description 历史与趋势控制器：得分历史序列、趋势、异常点与聚合报表查询
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 请求接收 -> 历史/聚合服务查询 -> 响应返回
 * @rules 时间范围缺省为最近30天；指标名缺省为composite
 * @dependencies net/http, github.com/go-chi/chi/v5
 * @refs service/history/history_service.go, service/history/aggregation_service.go
 */

package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"vms-quality-service/service"
	"vms-quality-service/service/models"
)

// HistoryController 历史与趋势控制器
type HistoryController struct{}

// NewHistoryController 创建历史与趋势控制器实例
func NewHistoryController() *HistoryController {
	return &HistoryController{}
}

// parseSeriesParams 解析公共的序列查询参数
func parseSeriesParams(r *http.Request) (models.EntityType, string, time.Time, time.Time, bool) {
	entity := models.EntityType(chi.URLParam(r, "entity"))
	if !models.IsValidEntityType(entity) {
		return "", "", time.Time{}, time.Time{}, false
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = models.MetricComposite
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 30
	}
	to := time.Now()
	from := to.AddDate(0, 0, -days)

	if v := r.URL.Query().Get("from"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			from = parsed
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			to = parsed
		}
	}
	return entity, metric, from, to, true
}

// GetHistory 查询得分历史序列
// @Summary 查询质量得分历史序列
// @Description 查询实体某指标在时间范围内的历史记录（升序）
// @Tags 历史趋势
// @Produce json
// @Param entity path string true "实体类型"
// @Param metric query string false "指标名，composite或校验维度名" default(composite)
// @Param days query int false "最近天数" default(30)
// @Success 200 {object} APIResponse{data=[]models.QualityHistoryRecord}
// @Failure 400 {object} APIResponse
// @Router /history/{entity} [get]
func (c *HistoryController) GetHistory(w http.ResponseWriter, r *http.Request) {
	entity, metric, from, to, ok := parseSeriesParams(r)
	if !ok {
		BadRequestResponse(w, r, "未知实体类型")
		return
	}

	records, err := service.History.GetHistory(r.Context(), entity, metric, from, to)
	if err != nil {
		InternalErrorResponse(w, r, err.Error())
		return
	}
	SuccessResponse(w, r, "获取历史序列成功", records)
}

// GetTrend 查询趋势
// @Summary 查询质量得分趋势
// @Description 基于窗口内历史记录的线性拟合计算趋势方向、幅度与置信度
// @Tags 历史趋势
// @Produce json
// @Param entity path string true "实体类型"
// @Param metric query string false "指标名" default(composite)
// @Param days query int false "窗口天数" default(30)
// @Success 200 {object} APIResponse{data=history.TrendResult}
// @Failure 400 {object} APIResponse
// @Router /history/{entity}/trend [get]
func (c *HistoryController) GetTrend(w http.ResponseWriter, r *http.Request) {
	entity := models.EntityType(chi.URLParam(r, "entity"))
	if !models.IsValidEntityType(entity) {
		BadRequestResponse(w, r, "未知实体类型")
		return
	}
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = models.MetricComposite
	}
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	cfg := service.EffectiveConfig()
	trend, err := service.History.ComputeTrend(r.Context(), entity, metric, days, cfg.Trend)
	if err != nil {
		InternalErrorResponse(w, r, err.Error())
		return
	}
	SuccessResponse(w, r, "获取趋势成功", trend)
}

// GetAnomalies 查询异常点
// @Summary 查询质量得分异常点
// @Description 查询时间范围内被标记为统计离群的历史记录
// @Tags 历史趋势
// @Produce json
// @Param entity path string true "实体类型"
// @Param metric query string false "指标名" default(composite)
// @Param days query int false "最近天数" default(30)
// @Success 200 {object} APIResponse{data=[]models.QualityHistoryRecord}
// @Failure 400 {object} APIResponse
// @Router /history/{entity}/anomalies [get]
func (c *HistoryController) GetAnomalies(w http.ResponseWriter, r *http.Request) {
	entity, metric, from, to, ok := parseSeriesParams(r)
	if !ok {
		BadRequestResponse(w, r, "未知实体类型")
		return
	}

	records, err := service.History.GetAnomalies(r.Context(), entity, metric, from, to)
	if err != nil {
		InternalErrorResponse(w, r, err.Error())
		return
	}
	SuccessResponse(w, r, "获取异常点成功", records)
}

// GetSummary 查询聚合报表
// @Summary 查询质量序列聚合报表
// @Description 均值/方差/极值、多窗口统计与趋势形态的汇总报表，结果按依赖键缓存
// @Tags 历史趋势
// @Produce json
// @Param entity path string true "实体类型"
// @Param metric query string false "指标名" default(composite)
// @Param days query int false "最近天数" default(30)
// @Success 200 {object} APIResponse{data=history.SeriesSummary}
// @Failure 400 {object} APIResponse
// @Router /history/{entity}/summary [get]
func (c *HistoryController) GetSummary(w http.ResponseWriter, r *http.Request) {
	entity, metric, from, to, ok := parseSeriesParams(r)
	if !ok {
		BadRequestResponse(w, r, "未知实体类型")
		return
	}

	summary, err := service.Aggregation.GenerateSummary(r.Context(), entity, metric, from, to)
	if err != nil {
		InternalErrorResponse(w, r, err.Error())
		return
	}
	SuccessResponse(w, r, "获取聚合报表成功", summary)
}

// GetOptimization 查询聚合性能建议
// @Summary 查询序列的采样与缓存策略建议
// @Description 检视序列规模与波动性并给出咨询性建议，不改动任何存量数据
// @Tags 历史趋势
// @Produce json
// @Param entity path string true "实体类型"
// @Param metric query string false "指标名" default(composite)
// @Param days query int false "最近天数" default(30)
// @Success 200 {object} APIResponse{data=history.PerformanceAdvice}
// @Failure 400 {object} APIResponse
// @Router /history/{entity}/optimization [get]
func (c *HistoryController) GetOptimization(w http.ResponseWriter, r *http.Request) {
	entity, metric, from, to, ok := parseSeriesParams(r)
	if !ok {
		BadRequestResponse(w, r, "未知实体类型")
		return
	}

	advice, err := service.Aggregation.OptimizePerformance(r.Context(), entity, metric, from, to)
	if err != nil {
		InternalErrorResponse(w, r, err.Error())
		return
	}
	SuccessResponse(w, r, "获取性能建议成功", advice)
}

// GetPatterns 查询趋势形态
// @Summary 查询趋势形态片段
// @Description 对历史序列做方向游程分段并识别复合形态
// @Tags 历史趋势
// @Produce json
// @Param entity path string true "实体类型"
// @Param metric query string false "指标名" default(composite)
// @Param days query int false "最近天数" default(30)
// @Success 200 {object} APIResponse{data=[]history.TrendPattern}
// @Failure 400 {object} APIResponse
// @Router /history/{entity}/patterns [get]
func (c *HistoryController) GetPatterns(w http.ResponseWriter, r *http.Request) {
	entity, metric, from, to, ok := parseSeriesParams(r)
	if !ok {
		BadRequestResponse(w, r, "未知实体类型")
		return
	}

	cfg := service.EffectiveConfig()
	patterns, err := service.Aggregation.DetectTrendPatterns(r.Context(), entity, metric, from, to,
		cfg.Trend.MinPoints, cfg.Trend.SlopeDeadZone)
	if err != nil {
		InternalErrorResponse(w, r, err.Error())
		return
	}
	SuccessResponse(w, r, "获取趋势形态成功", patterns)
}
