package api

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	// ErrEngineBusy is returned while another generation holds the engine.
	ErrEngineBusy = errors.New("engine_busy")
)

// RequestError rejects one request parameter. Param is the JSON field name,
// empty when the body as a whole is unusable.
type RequestError struct {
	Param  string
	Reason string
}

func (e *RequestError) Error() string {
	if e.Param == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Param, e.Reason)
}

func (e *RequestError) Unwrap() error {
	return ErrInvalidRequest
}

func badParam(param, format string, args ...any) error {
	return &RequestError{Param: param, Reason: fmt.Sprintf(format, args...)}
}
