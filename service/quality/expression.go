/*
 * @module service/quality/expression
 * @description 表达式求值器：基于yaegi解释执行规则配置中的自定义谓词，带编译缓存
 * @architecture 服务层 - 规则解释基础设施
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 规则源码 -> 哈希查缓存 -> 编译为Check函数 -> 逐记录求值
 * @rules 表达式是配置数据，必须提供 Check(record map[string]interface{}) bool 入口函数
 * @dependencies github.com/traefik/yaegi/interp, github.com/traefik/yaegi/stdlib
 * @refs service/quality/business_rule_validator.go
 */

package quality

import (
	"crypto/sha1"
	"fmt"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// checkFunc 编译后的谓词函数
type checkFunc func(record map[string]interface{}) bool

// ExpressionEvaluator 表达式求值器，按源码哈希缓存编译结果
type ExpressionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]checkFunc
}

// NewExpressionEvaluator 创建表达式求值器
func NewExpressionEvaluator() *ExpressionEvaluator {
	return &ExpressionEvaluator{
		cache: make(map[string]checkFunc),
	}
}

// Eval 对单条记录求值表达式，true表示记录通过该谓词
func (e *ExpressionEvaluator) Eval(source string, record map[string]interface{}) (bool, error) {
	fn, err := e.compiled(source)
	if err != nil {
		return false, err
	}
	return fn(record), nil
}

// Validate 仅编译不执行，用于配置加载时的规则校验
func (e *ExpressionEvaluator) Validate(source string) error {
	_, err := e.compiled(source)
	return err
}

// compiled 取缓存的编译结果，未命中则编译后缓存
func (e *ExpressionEvaluator) compiled(source string) (checkFunc, error) {
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(source)))

	e.mu.RLock()
	fn, ok := e.cache[hash]
	e.mu.RUnlock()
	if ok {
		return fn, nil
	}

	fn, err := e.compile(source)
	if err != nil {
		return nil, fmt.Errorf("表达式编译失败: %w", err)
	}

	e.mu.Lock()
	e.cache[hash] = fn
	e.mu.Unlock()
	return fn, nil
}

// compile 将规则源码编译为Check函数
// 源码必须定义 func Check(record map[string]interface{}) bool
func (e *ExpressionEvaluator) compile(source string) (checkFunc, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("加载标准库失败: %w", err)
	}

	if _, err := i.Eval(source); err != nil {
		return nil, err
	}

	// 带package子句的源码其符号挂在包名下
	v, err := i.Eval("Check")
	if err != nil {
		v, err = i.Eval("rules.Check")
	}
	if err != nil {
		return nil, fmt.Errorf("表达式未定义 Check 入口函数: %w", err)
	}

	fn, ok := v.Interface().(func(record map[string]interface{}) bool)
	if !ok {
		return nil, fmt.Errorf("Check 函数签名应为 func(map[string]interface{}) bool")
	}

	return fn, nil
}
