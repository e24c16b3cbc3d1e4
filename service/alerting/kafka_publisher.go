/*
 * @module service/alerting/kafka_publisher
 * @description 质量告警事件发布：得分越限与异常点通过Kafka主题对外广播
 * @architecture 服务层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 运行完成评分 -> 判定告警条件 -> 发布AlertEvent -> 下游消费方处理
 * @rules 发布失败只记录日志不阻断验证运行；事件体为JSON，键为实体类型便于分区内有序
 * @dependencies github.com/segmentio/kafka-go
 * @refs service/quality/engine.go
 */

package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"vms-quality-service/service/models"
)

// AlertKind 告警类别
type AlertKind string

const (
	AlertScoreDegraded AlertKind = "score_degraded" // 综合得分落入error/critical档
	AlertAnomaly       AlertKind = "anomaly"        // 历史序列统计离群
	AlertRunFailed     AlertKind = "run_failed"     // 验证运行整体失败
)

// AlertEvent 告警事件体
type AlertEvent struct {
	Kind       AlertKind         `json:"kind"`
	RunID      string            `json:"run_id,omitempty"`
	EntityType models.EntityType `json:"entity_type"`
	MetricName string            `json:"metric_name,omitempty"`
	Score      float64           `json:"score,omitempty"`
	Band       models.Severity   `json:"band,omitempty"`
	Message    string            `json:"message"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// AlertPublisher 告警发布接口
type AlertPublisher interface {
	Publish(ctx context.Context, event AlertEvent) error
	Close() error
}

// KafkaPublisher 基于Kafka的告警发布器
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher 从环境变量创建告警发布器
// KAFKA_BROKERS 逗号分隔的broker地址，KAFKA_ALERT_TOPIC 告警主题
func NewKafkaPublisher() *KafkaPublisher {
	brokers := getEnv("KAFKA_BROKERS", "localhost:9092")
	topic := getEnv("KAFKA_ALERT_TOPIC", "quality-alerts")

	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
		Async:        false,
	}

	slog.Info("初始化告警发布器", "brokers", brokers, "topic", topic)
	return &KafkaPublisher{writer: writer, topic: topic}
}

// Publish 发布告警事件，按实体类型分区
func (p *KafkaPublisher) Publish(ctx context.Context, event AlertEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化告警事件失败: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.EntityType),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("发布告警事件失败: %w", err)
	}

	slog.Info("已发布告警事件", "kind", event.Kind, "entity", event.EntityType, "band", event.Band)
	return nil
}

// Close 关闭底层写入器
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher 空实现，未配置Kafka时使用
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event AlertEvent) error { return nil }
func (NopPublisher) Close() error                                        { return nil }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
