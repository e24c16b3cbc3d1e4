/*
 * @module api/controllers/rule_controller
 * @description 业务规则控制器：声明式规则的增删改查与启停，变更后热加载
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 规则维护 -> 持久化 -> 热加载 -> 下次运行生效
 * @rules 内置规则可停用不可删除；规则变更立即对后续运行生效，进行中的运行不受影响
 * @dependencies net/http, github.com/go-chi/chi/v5
 * @refs service/database/rule_repository.go
 */

package controllers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"gorm.io/gorm"

	"vms-quality-service/service"
	"vms-quality-service/service/models"
)

// RuleController 业务规则控制器
type RuleController struct{}

// NewRuleController 创建业务规则控制器实例
func NewRuleController() *RuleController {
	return &RuleController{}
}

// ListRules 列出业务规则
// @Summary 列出业务规则
// @Description 列出全部业务规则定义（含停用和内置规则）
// @Tags 业务规则
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.BusinessRuleDef}
// @Failure 500 {object} APIResponse
// @Router /rules [get]
func (c *RuleController) ListRules(w http.ResponseWriter, r *http.Request) {
	defs, err := service.RuleRepo.ListRules(r.Context())
	if err != nil {
		InternalErrorResponse(w, r, err.Error())
		return
	}
	SuccessResponse(w, r, "获取规则列表成功", defs)
}

// GetRule 查询规则详情
// @Summary 查询业务规则详情
// @Tags 业务规则
// @Produce json
// @Param id path string true "规则ID"
// @Success 200 {object} APIResponse{data=models.BusinessRuleDef}
// @Failure 404 {object} APIResponse
// @Router /rules/{id} [get]
func (c *RuleController) GetRule(w http.ResponseWriter, r *http.Request) {
	def, err := service.RuleRepo.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFoundResponse(w, r, "规则不存在")
			return
		}
		InternalErrorResponse(w, r, err.Error())
		return
	}
	SuccessResponse(w, r, "获取规则详情成功", def)
}

// CreateRule 新增规则
// @Summary 新增业务规则
// @Description 新增声明式业务规则，创建后立即参与后续校验运行
// @Tags 业务规则
// @Accept json
// @Produce json
// @Param rule body models.BusinessRuleDef true "规则定义"
// @Success 200 {object} APIResponse{data=models.BusinessRuleDef}
// @Failure 400 {object} APIResponse
// @Router /rules [post]
func (c *RuleController) CreateRule(w http.ResponseWriter, r *http.Request) {
	var def models.BusinessRuleDef
	if err := render.DecodeJSON(r.Body, &def); err != nil {
		BadRequestResponse(w, r, "请求体解析失败: "+err.Error())
		return
	}
	def.IsBuiltIn = false

	if err := service.RuleRepo.CreateRule(r.Context(), &def); err != nil {
		InternalErrorResponse(w, r, err.Error())
		return
	}
	if err := service.ReloadRules(r.Context()); err != nil {
		InternalErrorResponse(w, r, "规则已保存但热加载失败: "+err.Error())
		return
	}
	SuccessResponse(w, r, "规则创建成功", def)
}

// UpdateRule 更新规则
// @Summary 更新业务规则
// @Tags 业务规则
// @Accept json
// @Produce json
// @Param id path string true "规则ID"
// @Param rule body models.BusinessRuleDef true "规则定义"
// @Success 200 {object} APIResponse{data=models.BusinessRuleDef}
// @Failure 404 {object} APIResponse
// @Router /rules/{id} [put]
func (c *RuleController) UpdateRule(w http.ResponseWriter, r *http.Request) {
	existing, err := service.RuleRepo.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFoundResponse(w, r, "规则不存在")
			return
		}
		InternalErrorResponse(w, r, err.Error())
		return
	}

	var def models.BusinessRuleDef
	if err := render.DecodeJSON(r.Body, &def); err != nil {
		BadRequestResponse(w, r, "请求体解析失败: "+err.Error())
		return
	}
	def.ID = existing.ID
	def.IsBuiltIn = existing.IsBuiltIn

	if err := service.RuleRepo.UpdateRule(r.Context(), &def); err != nil {
		InternalErrorResponse(w, r, err.Error())
		return
	}
	if err := service.ReloadRules(r.Context()); err != nil {
		InternalErrorResponse(w, r, "规则已保存但热加载失败: "+err.Error())
		return
	}
	SuccessResponse(w, r, "规则更新成功", def)
}

// SetRuleEnabled 启用或停用规则
// @Summary 启用或停用业务规则
// @Tags 业务规则
// @Accept json
// @Produce json
// @Param id path string true "规则ID"
// @Param request body map[string]bool true "{\"enabled\": true}"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /rules/{id}/enabled [post]
func (c *RuleController) SetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		BadRequestResponse(w, r, "请求体解析失败: "+err.Error())
		return
	}

	if err := service.RuleRepo.SetEnabled(r.Context(), chi.URLParam(r, "id"), req.Enabled); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFoundResponse(w, r, "规则不存在")
			return
		}
		InternalErrorResponse(w, r, err.Error())
		return
	}
	if err := service.ReloadRules(r.Context()); err != nil {
		InternalErrorResponse(w, r, "状态已更新但热加载失败: "+err.Error())
		return
	}
	SuccessResponse(w, r, "规则状态更新成功", nil)
}

// DeleteRule 删除规则
// @Summary 删除业务规则
// @Description 删除非内置业务规则，内置规则返回400
// @Tags 业务规则
// @Produce json
// @Param id path string true "规则ID"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /rules/{id} [delete]
func (c *RuleController) DeleteRule(w http.ResponseWriter, r *http.Request) {
	err := service.RuleRepo.DeleteRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFoundResponse(w, r, "规则不存在")
			return
		}
		BadRequestResponse(w, r, err.Error())
		return
	}
	if err := service.ReloadRules(r.Context()); err != nil {
		InternalErrorResponse(w, r, "规则已删除但热加载失败: "+err.Error())
		return
	}
	SuccessResponse(w, r, "规则删除成功", nil)
}
