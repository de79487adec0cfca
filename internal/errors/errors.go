// Package errors 定义记录器的结构化错误类型。
// 每个错误都带有类别、错误码和是否可由下一次心跳重试的标记。
package errors

import (
	"errors"
	"fmt"
)

// Category 错误类别
type Category string

const (
	CategoryConnection Category = "CONNECTION"
	CategorySession    Category = "SESSION"
	CategoryRecord     Category = "RECORD"
	CategoryHeartbeat  Category = "HEARTBEAT"
)

// 各类别的错误码
const (
	// Connection
	CodeConnectFailed  = "CONNECT_FAILED"
	CodeConnectionLost = "CONNECTION_LOST"

	// Session
	CodeSessionInsertFailed = "SESSION_INSERT_FAILED"

	// Record
	CodeInvalidEvent             = "INVALID_EVENT"
	CodeBeginFailed              = "BEGIN_FAILED"
	CodeHeaderInsertFailed       = "HEADER_INSERT_FAILED"
	CodeAttributeWriteFailed     = "ATTRIBUTE_WRITE_FAILED"
	CodeUnsupportedAttributeType = "UNSUPPORTED_ATTRIBUTE_TYPE"
	CodeCommitFailed             = "COMMIT_FAILED"

	// Heartbeat
	CodeHeartbeatUpdateFailed = "HEARTBEAT_UPDATE_FAILED"
)

// Error 记录器统一错误类型
type Error struct {
	Category  Category
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap 支持 errors.Is/As
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 类别和错误码相同即视为匹配
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New 创建错误
func New(category Category, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category),
	}
}

// Wrap 包装底层错误
func Wrap(category Category, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category),
	}
}

// 哨兵错误，用于 errors.Is 比较
var (
	ErrConnectFailed            = New(CategoryConnection, CodeConnectFailed, "connect failed")
	ErrConnectionLost           = New(CategoryConnection, CodeConnectionLost, "store connection is not live")
	ErrSessionInsertFailed      = New(CategorySession, CodeSessionInsertFailed, "session insert failed")
	ErrInvalidEvent             = New(CategoryRecord, CodeInvalidEvent, "invalid event")
	ErrBeginFailed              = New(CategoryRecord, CodeBeginFailed, "begin transaction failed")
	ErrHeaderInsertFailed       = New(CategoryRecord, CodeHeaderInsertFailed, "event insert failed")
	ErrAttributeWriteFailed     = New(CategoryRecord, CodeAttributeWriteFailed, "attribute insert failed")
	ErrUnsupportedAttributeType = New(CategoryRecord, CodeUnsupportedAttributeType, "unsupported attribute type")
	ErrCommitFailed             = New(CategoryRecord, CodeCommitFailed, "commit failed")
	ErrHeartbeatUpdateFailed    = New(CategoryHeartbeat, CodeHeartbeatUpdateFailed, "heartbeat update failed")
)

// IsRetryable 判断错误链上是否为可重试错误
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf 返回错误码，非结构化错误返回空串
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// isRetryable 连接、会话、心跳类错误都会在下一个心跳周期重试
func isRetryable(category Category) bool {
	switch category {
	case CategoryConnection, CategorySession, CategoryHeartbeat:
		return true
	default:
		return false
	}
}
