package domain

import (
	"errors"
	"fmt"
)

// ErrorKind names one class of failure a caller can react to.
type ErrorKind string

const (
	KindInvalidCredential    ErrorKind = "invalid_credential"
	KindRateLimited          ErrorKind = "rate_limited"
	KindUpstreamUnavailable  ErrorKind = "upstream_unavailable"
	KindAPIError             ErrorKind = "api_error"
	KindTimeout              ErrorKind = "timeout"
	KindNetworkError         ErrorKind = "network_error"
	KindMalformedResponse    ErrorKind = "malformed_response"
	KindNoJSONFound          ErrorKind = "no_json_found"
	KindInvalidJSON          ErrorKind = "invalid_json"
	KindGatewayNotConfigured ErrorKind = "gateway_not_configured"
	KindBusy                 ErrorKind = "busy"
	KindNotFound             ErrorKind = "not_found"
	KindNotInGame            ErrorKind = "not_in_game"
)

// Error is the typed error surfaced by the gateway, the prompt assembler and
// the session. Message is what the end user sees.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCredential    = &Error{Kind: KindInvalidCredential, Message: "API Key 无效，请检查设置"}
	ErrRateLimited          = &Error{Kind: KindRateLimited, Message: "请求过于频繁，请稍后再试"}
	ErrUpstreamUnavailable  = &Error{Kind: KindUpstreamUnavailable, Message: "AI 服务器错误，请稍后再试"}
	ErrAPIError             = &Error{Kind: KindAPIError, Message: "API 错误"}
	ErrTimeout              = &Error{Kind: KindTimeout, Message: "请求超时，请检查网络连接"}
	ErrNetworkError         = &Error{Kind: KindNetworkError, Message: "网络错误"}
	ErrMalformedResponse    = &Error{Kind: KindMalformedResponse, Message: "AI 响应格式异常"}
	ErrNoJSONFound          = &Error{Kind: KindNoJSONFound, Message: "回复中没有找到 JSON 内容"}
	ErrInvalidJSON          = &Error{Kind: KindInvalidJSON, Message: "JSON 解析失败"}
	ErrGatewayNotConfigured = &Error{Kind: KindGatewayNotConfigured, Message: "请先设置 API Key"}
	ErrBusy                 = &Error{Kind: KindBusy, Message: "上一条请求仍在处理中"}
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "未找到"}
	ErrNotInGame            = &Error{Kind: KindNotInGame, Message: "游戏尚未开始"}
)

// NewError builds an error of a sentinel's kind with its message, wrapping cause.
func NewError(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// NewErrorf builds an error of a sentinel's kind whose message is the
// sentinel message followed by detail.
func NewErrorf(sentinel *Error, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    sentinel.Kind,
		Message: sentinel.Message + ": " + fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
