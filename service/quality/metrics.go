/*
 * @module service/quality/metrics
 * @description 质量引擎的Prometheus指标：运行计数、运行时长、Finding计数
 * @architecture 服务层 - 可观测性
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 运行结束时打点，经/metrics端点暴露
 * @rules 指标仅用于观测，不参与任何评分计算
 * @dependencies github.com/prometheus/client_golang/prometheus
 * @refs main.go
 */

package quality

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quality_validation_runs_total",
		Help: "校验运行总数，按终态分类",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quality_validation_run_duration_seconds",
		Help:    "校验运行耗时",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	findingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quality_findings_total",
		Help: "产出的Finding总数，按严重度与校验维度分类",
	}, []string{"severity", "validation_type"})
)
