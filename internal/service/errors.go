package service

import (
	"errors"
	"fmt"
)

// Kind 业务错误分类，REST 层按它映射状态码，实时层按它回送 error 事件
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindInvalidOperation
	KindSelfReference
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFound"
	case KindForbidden:
		return "Forbidden"
	case KindConflict:
		return "Conflict"
	case KindInvalidOperation:
		return "InvalidOperation"
	case KindSelfReference:
		return "SelfReference"
	case KindUnauthorized:
		return "Unauthorized"
	}
	return "ServerError"
}

// Error 业务错误
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is 同类错误视为相等，便于 errors.Is(err, ErrConflict)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// 用于 errors.Is 判断的哨兵
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrInvalidOperation = &Error{Kind: KindInvalidOperation}
	ErrSelfReference    = &Error{Kind: KindSelfReference}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
)

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newError(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newError(KindNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newError(KindForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newError(KindConflict, format, args...)
}

func InvalidOperation(format string, args ...interface{}) error {
	return newError(KindInvalidOperation, format, args...)
}

func SelfReference(format string, args ...interface{}) error {
	return newError(KindSelfReference, format, args...)
}

func Unauthorized(format string, args ...interface{}) error {
	return newError(KindUnauthorized, format, args...)
}

// KindOf 取出错误分类，非业务错误返回 KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
