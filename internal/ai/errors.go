package ai

import (
	"errors"
	"fmt"
)

// Kind класс неудачного запроса.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindRateLimited Kind = "rate_limited"
	KindServerBusy  Kind = "server_busy"
	KindRejected    Kind = "rejected"
	KindTransport   Kind = "transport"
)

// Тексты, которые видит пользователь
const (
	MsgAuthFailed  = "授权失败，请检查API Key是否正确"
	MsgRateLimited = "请求过于频繁，请稍后再试"
	MsgTooFast     = "提问太快啦，请休息一下再问我吧"
	MsgTired       = "我现在有点累了，等会再来吧"
)

// StatusError ответ эндпоинта с кодом, отличным от 200.
type StatusError struct {
	Code    int
	Message string // error.message из тела, если удалось разобрать
	Type    string // error.type
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion status %d: %s (%s)", e.Code, e.Message, e.Type)
}

// ClassifiedError итог неудачного запроса: класс, текст для пользователя и причина.
type ClassifiedError struct {
	Kind    Kind
	Message string
	Status  int // 0 для транспортных ошибок
	Err     error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Retryable сообщает, стоит ли повторять запрос.
func (e *ClassifiedError) Retryable() bool {
	switch e.Kind {
	case KindServerBusy, KindRateLimited, KindTransport:
		return true
	}
	return false
}

// Classify приводит ошибку отправителя к ClassifiedError.
func Classify(err error) *ClassifiedError {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}
	var se *StatusError
	if errors.As(err, &se) {
		c := &ClassifiedError{Status: se.Code, Err: err}
		switch {
		case se.Code >= 500:
			c.Kind, c.Message = KindServerBusy, MsgTooFast
		case se.Code == 401:
			c.Kind, c.Message = KindAuth, MsgAuthFailed
		case se.Code == 429:
			c.Kind, c.Message = KindRateLimited, MsgRateLimited
		default:
			c.Kind, c.Message = KindRejected, MsgTooFast
		}
		return c
	}
	return &ClassifiedError{Kind: KindTransport, Message: MsgTired, Err: err}
}
