/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers
 */

package api

import (
	"vms-quality-service/api/controllers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 数据质量校验
	r.Route("/quality", func(r chi.Router) {
		qualityController := controllers.NewQualityController()

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", qualityController.RunValidation)
			r.Get("/", qualityController.ListRuns)
			r.Get("/{id}", qualityController.GetRun)
		})

		r.Get("/scores/{entity}", qualityController.GetQualityScore)
	})

	// 历史与趋势
	r.Route("/history", func(r chi.Router) {
		historyController := controllers.NewHistoryController()

		r.Get("/{entity}", historyController.GetHistory)
		r.Get("/{entity}/trend", historyController.GetTrend)
		r.Get("/{entity}/anomalies", historyController.GetAnomalies)
		r.Get("/{entity}/summary", historyController.GetSummary)
		r.Get("/{entity}/patterns", historyController.GetPatterns)
		r.Get("/{entity}/optimization", historyController.GetOptimization)
	})

	// 业务规则管理
	r.Route("/rules", func(r chi.Router) {
		ruleController := controllers.NewRuleController()

		r.Post("/", ruleController.CreateRule)
		r.Get("/", ruleController.ListRules)
		r.Get("/{id}", ruleController.GetRule)
		r.Put("/{id}", ruleController.UpdateRule)
		r.Delete("/{id}", ruleController.DeleteRule)
		r.Post("/{id}/enabled", ruleController.SetRuleEnabled)
	})

	// 配置管理
	r.Route("/config", func(r chi.Router) {
		configController := controllers.NewConfigController()

		r.Get("/", configController.GetConfig)
		r.Post("/reload", configController.ReloadConfig)
		r.Post("/validate", configController.ValidateConfig)
	})
}
