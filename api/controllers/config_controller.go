/*
 * @module api/controllers/config_controller
 * @description 配置控制器：查看当前生效配置与触发重载
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 查询返回只读快照；重载校验失败时保留上一份有效配置
 * @rules 配置经API只读，修改通过配置文件与重载完成
 * @dependencies net/http
 * @refs service/config/provider.go
 */

package controllers

import (
	"net/http"

	"github.com/go-chi/render"

	"vms-quality-service/service"
	"vms-quality-service/service/config"
	"vms-quality-service/service/models"
)

// ConfigController 配置控制器
type ConfigController struct{}

// NewConfigController 创建配置控制器实例
func NewConfigController() *ConfigController {
	return &ConfigController{}
}

// GetConfig 查询当前生效配置
// @Summary 查询当前生效的质量配置
// @Description 返回含数据库规则在内的当前生效配置快照
// @Tags 配置
// @Produce json
// @Success 200 {object} APIResponse{data=models.QualityConfig}
// @Router /config [get]
func (c *ConfigController) GetConfig(w http.ResponseWriter, r *http.Request) {
	SuccessResponse(w, r, "获取配置成功", service.EffectiveConfig())
}

// ReloadConfig 重载配置
// @Summary 重载质量配置
// @Description 重新加载配置文件与数据库规则，校验失败时保留当前配置并返回400
// @Tags 配置
// @Produce json
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /config/reload [post]
func (c *ConfigController) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	if err := service.ConfigProvider.Reload(); err != nil {
		BadRequestResponse(w, r, "配置重载失败: "+err.Error())
		return
	}
	if err := service.ReloadRules(r.Context()); err != nil {
		InternalErrorResponse(w, r, "规则重载失败: "+err.Error())
		return
	}
	SuccessResponse(w, r, "配置重载成功", nil)
}

// ValidateConfig 试运行校验候选配置
// @Summary 校验候选质量配置
// @Description 对请求体中的配置做完整校验但不启用，用于上线前检查
// @Tags 配置
// @Accept json
// @Produce json
// @Param config body models.QualityConfig true "候选配置"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /config/validate [post]
func (c *ConfigController) ValidateConfig(w http.ResponseWriter, r *http.Request) {
	var candidate models.QualityConfig
	if err := render.DecodeJSON(r.Body, &candidate); err != nil {
		BadRequestResponse(w, r, "请求体解析失败: "+err.Error())
		return
	}
	if err := config.Validate(&candidate); err != nil {
		BadRequestResponse(w, r, "配置校验未通过: "+err.Error())
		return
	}
	SuccessResponse(w, r, "配置校验通过", nil)
}
