// internal/service/reservation/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 引用的实体不存在时返回的哨兵错误
var (
	ErrMaterialNotFound    = errors.New("material not found")
	ErrSubjectNotFound     = errors.New("subject not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrLineNotFound        = errors.New("pending line not found")
	ErrBuilderNotFound     = errors.New("request builder not found")
)

// ValidationError 表示调用方可以自行修正的输入问题
// 不会被自动重试，原样透传给用户
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InsufficientStockError 表示请求量超过了物料的实时可用量
// 附带实际可用量，调用方据此调整后重新提交；引擎绝不静默截断请求量
type InsufficientStockError struct {
	MaterialID string
	Requested  int
	Available  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for material %s: requested %d, available %d",
		e.MaterialID, e.Requested, e.Available)
}

// TransientError 表示存储不可用等临时性故障
// 调用方可以用同一请求重试整个操作；引擎内部不做重试
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// WrapTransient 将底层错误标记为临时性故障；nil 直接透传
func WrapTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}
