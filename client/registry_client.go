/*
 * @module client/registry_client
 * @description 上游志愿服务登记系统HTTP客户端，提供权威记录计数查询，数量比对以其为基准
 * @architecture 适配器模式 - 封装上游REST接口的认证、重试与统计
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 请求构造 -> API Key认证 -> 错误重试 -> 计数返回
 * @rules 上游不可达返回错误而非0，调用方据此区分"数据不可用"与"计数为零"
 * @dependencies net/http, encoding/json
 * @refs service/quality/count_validator.go
 */

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"vms-quality-service/service/models"
)

// RegistryConfig 上游登记系统客户端配置
type RegistryConfig struct {
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
}

// RegistryClient 上游登记系统客户端
type RegistryClient struct {
	baseURL    string
	apiKey     string
	maxRetries int
	httpClient *http.Client

	// 统计信息
	statsMu      sync.Mutex
	requestCount int64
	errorCount   int64
	lastRequest  time.Time
}

// NewRegistryClient 创建上游登记系统客户端
func NewRegistryClient(config *RegistryConfig) *RegistryClient {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	return &RegistryClient{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		maxRetries: config.MaxRetries,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// NewRegistryClientFromEnv 从环境变量创建上游客户端
// REGISTRY_BASE_URL 上游地址，REGISTRY_API_KEY 认证密钥
func NewRegistryClientFromEnv() *RegistryClient {
	return NewRegistryClient(&RegistryConfig{
		BaseURL: getEnvWithDefault("REGISTRY_BASE_URL", "http://localhost:8080"),
		APIKey:  os.Getenv("REGISTRY_API_KEY"),
	})
}

// countResponse 上游计数接口响应
type countResponse struct {
	Entity string `json:"entity"`
	Count  int64  `json:"count"`
}

// GetReferenceCount 查询上游的权威记录计数
// filters作为查询参数透传，供上游侧按状态等条件过滤
func (c *RegistryClient) GetReferenceCount(ctx context.Context, entity models.EntityType,
	filters map[string]interface{}) (int64, error) {

	query := url.Values{}
	for k, v := range filters {
		query.Set(k, fmt.Sprintf("%v", v))
	}
	endpoint := fmt.Sprintf("%s/api/v1/records/%s/count", c.baseURL, entity)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		count, err := c.fetchCount(ctx, endpoint)
		if err == nil {
			return count, nil
		}
		lastErr = err
	}

	c.statsMu.Lock()
	c.errorCount++
	c.statsMu.Unlock()
	return 0, fmt.Errorf("上游计数查询失败(实体 %s): %w", entity, lastErr)
}

func (c *RegistryClient) fetchCount(ctx context.Context, endpoint string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	c.statsMu.Lock()
	c.requestCount++
	c.lastRequest = time.Now()
	c.statsMu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("上游返回状态 %d: %s", resp.StatusCode, string(body))
	}

	var parsed countResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("解析上游响应失败: %w", err)
	}
	return parsed.Count, nil
}

// Stats 返回请求统计
func (c *RegistryClient) Stats() (requests, errors int64, last time.Time) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.requestCount, c.errorCount, c.lastRequest
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
