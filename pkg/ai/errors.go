package ai

import (
	"context"
	"errors"
	"fmt"
)

// LLMInvocationError is a transient or permanent failure of a model call.
type LLMInvocationError struct {
	Op    string
	Model string
	Err   error
}

func (e *LLMInvocationError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("llm %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("llm %s failed (model %s): %v", e.Op, e.Model, e.Err)
}

func (e *LLMInvocationError) Unwrap() error {
	return e.Err
}

// WrapInvocation wraps err as an LLMInvocationError. nil stays nil and
// errors that already are invocation errors are returned unchanged.
func WrapInvocation(op, model string, err error) error {
	if err == nil {
		return nil
	}
	var ie *LLMInvocationError
	if errors.As(err, &ie) {
		return err
	}
	return &LLMInvocationError{Op: op, Model: model, Err: err}
}

// IsInvocationError reports whether err stems from a model call.
func IsInvocationError(err error) bool {
	var ie *LLMInvocationError
	return errors.As(err, &ie)
}

// IsCanceled reports whether err is a context cancellation or deadline.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// OutputParseError is returned by structured completions whose output could
// not be decoded into the requested type.
type OutputParseError struct {
	Raw string
	Err error
}

func (e *OutputParseError) Error() string {
	return fmt.Sprintf("parse model output: %v", e.Err)
}

func (e *OutputParseError) Unwrap() error {
	return e.Err
}
