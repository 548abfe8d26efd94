package publish

import (
	"errors"
	"fmt"
)

// 传输层错误类型（通过 errors.Is 判断）
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limited")
	ErrNetworkFailure = errors.New("network failure")
)

// TransportError 一次 feed 写入失败
type TransportError struct {
	Feed string
	Kind error // ErrUnauthorized / ErrRateLimited / ErrNetworkFailure
	Err  error
}

// NewTransportError 构建传输错误，kind 为 nil 时按网络错误处理
func NewTransportError(feed string, kind error, err error) *TransportError {
	if kind == nil {
		kind = ErrNetworkFailure
	}
	return &TransportError{Feed: feed, Kind: kind, Err: err}
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("publish %s: %v", e.Feed, e.Kind)
	}
	return fmt.Sprintf("publish %s: %v: %v", e.Feed, e.Kind, e.Err)
}

// Unwrap 同时暴露错误类型和底层错误
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf 归类任意传输错误；无法识别的错误一律视为网络错误
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnauthorized):
		return ErrUnauthorized
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited
	default:
		return ErrNetworkFailure
	}
}
