package domain

import (
	"errors"
	"fmt"
)

// Kind 错误类别，HTTP 层据此映射状态码
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindAuth
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// 业务错误原因
var (
	ErrMissingField     = errors.New("all fields are required (name, email, message)")
	ErrInvalidEmail     = errors.New("please provide a valid email address")
	ErrInvalidStatus    = errors.New("valid status required (unread, read, replied)")
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD or RFC 3339")
	ErrMessageNotFound  = errors.New("message not found")
	ErrInvalidToken     = errors.New("invalid or expired token")
	ErrForbidden        = errors.New("admin access required")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Error 带操作名与类别的领域错误
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError 创建领域错误
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ValidationError 创建校验类错误
func ValidationError(op string, err error) *Error {
	return NewError(KindValidation, op, err)
}

// NotFoundError 创建资源不存在错误
func NotFoundError(op string, err error) *Error {
	return NewError(KindNotFound, op, err)
}

// AuthError 创建认证/授权错误
func AuthError(op string, err error) *Error {
	return NewError(KindAuth, op, err)
}

// UnavailableError 包装底层存储故障，同时保留 ErrStoreUnavailable 与原始错误
func UnavailableError(op string, cause error) *Error {
	return NewError(KindUnavailable, op, fmt.Errorf("%w: %w", ErrStoreUnavailable, cause))
}

// KindOf 返回错误链上第一个领域错误的类别
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
