package shortlink

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation：请求参数缺失或不合法，不会触达存储层。
	ErrValidation = errors.New("validation failed")
	// ErrNotFound：短码和 ID 都没有匹配的记录。
	ErrNotFound = errors.New("shortlink not found")
	// ErrExpired 包装了 ErrNotFound：调用方对“过期”和“不存在”不做区分。
	ErrExpired = fmt.Errorf("%w: expired", ErrNotFound)
	// ErrPersistence：存储不可达或操作失败，调用方不能把它当成“不存在”。
	ErrPersistence = errors.New("persistence failure")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PersistenceError 记录失败的存储操作及底层原因。
// errors.Is(err, ErrPersistence) 为 true，errors.As 可以拿到底层驱动错误。
type PersistenceError struct {
	Op  string
	Err error
}

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return "shortlink store " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// AccountingError 是访问计数失败。它只会被记录和上报，不会让跳转失败。
type AccountingError struct {
	ID  string
	Err error
}

func (e *AccountingError) Error() string {
	return "increment visits for " + e.ID + ": " + e.Err.Error()
}

func (e *AccountingError) Unwrap() error {
	return e.Err
}
