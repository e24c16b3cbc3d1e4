/*
 * @module service/quality/errors
 * @description 质量引擎错误分类：配置错误、校验器执行错误、数据不可用错误
 * @architecture 服务层
 * @documentReference dev_docs/quality_engine_req.md
 * @stateFlow 配置错误在运行开始前拒绝；校验器错误与数据不可用错误在校验器边界转换为Critical Finding
 * @rules "检查未能运行"与"检查运行后未通过"必须可区分，对应不同的Finding标签
 * @dependencies errors
 * @refs service/quality/engine.go
 */

package quality

import (
	"errors"
	"fmt"
)

// ErrConfiguration 配置非法（权重不可归一、阈值非降序等），运行开始前即拒绝
var ErrConfiguration = errors.New("配置非法")

// DataUnavailableError 快照或参照数据提供方不可达
// 与校验器执行失败区分，避免"无数据"被误判为"数据不合格"
type DataUnavailableError struct {
	Provider string
	Err      error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("数据提供方 %s 不可用: %v", e.Provider, e.Err)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// IsDataUnavailable 判断错误是否为数据不可用
func IsDataUnavailable(err error) bool {
	var target *DataUnavailableError
	return errors.As(err, &target)
}
