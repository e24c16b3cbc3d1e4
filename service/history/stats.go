/*
 * @module service/history/stats
 * @description 纯统计函数：最小二乘线性拟合、均值/方差、拟合优度R²
 * @architecture 服务层 - 统计基础
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 无状态纯函数
 * @rules 方差主导信号时R²趋近0，趋势置信度随之降低
 * @dependencies math, time
 * @refs service/history/history_service.go
 */

package history

import (
	"math"
	"time"
)

// seriesPoint 拟合用的(时间,取值)点
type seriesPoint struct {
	At    time.Time
	Value float64
}

// linearFit 对(时间,取值)序列做最小二乘拟合
// 返回斜率（每天的得分变化量）与拟合优度R²
func linearFit(points []seriesPoint) (slopePerDay, r2 float64) {
	n := float64(len(points))
	if n < 2 {
		return 0, 0
	}

	origin := points[0].At
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := p.At.Sub(origin).Hours() / 24.0
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0
	}
	slopePerDay = (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slopePerDay*sumX) / n

	// R² = 1 - SS_res/SS_tot
	meanY := sumY / n
	var ssRes, ssTot float64
	for _, p := range points {
		x := p.At.Sub(origin).Hours() / 24.0
		predicted := intercept + slopePerDay*x
		ssRes += (p.Value - predicted) * (p.Value - predicted)
		ssTot += (p.Value - meanY) * (p.Value - meanY)
	}
	if ssTot == 0 {
		// 序列完全平坦，拟合完美
		return slopePerDay, 1.0
	}
	r2 = 1.0 - ssRes/ssTot
	if r2 < 0 {
		r2 = 0
	}
	return slopePerDay, r2
}

// meanStdDev 均值与总体标准差
func meanStdDev(values []float64) (mean, std float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= n

	var sumSq float64
	for _, v := range values {
		sumSq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sumSq / n)
}

// variance 总体方差
func variance(values []float64) float64 {
	_, std := meanStdDev(values)
	return std * std
}
