// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling for agentflow. Callers
// classify failures by code rather than by matching message strings.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies agentflow errors for callers and monitoring.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeCycle indicates the graph contains a cycle among required edges.
	CodeCycle ErrorCode = "CYCLE"

	// CodeInvalidEdge indicates an edge with incompatible or undeclared ports.
	CodeInvalidEdge ErrorCode = "INVALID_EDGE"

	// CodeDanglingReference indicates an edge endpoint that names no node.
	CodeDanglingReference ErrorCode = "DANGLING_REFERENCE"

	// CodeDuplicateID indicates two nodes share the same id.
	CodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// CodeHandlerFailure indicates a node handler returned an error.
	CodeHandlerFailure ErrorCode = "HANDLER_FAILURE"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeCancelled indicates the caller cancelled the operation.
	CodeCancelled ErrorCode = "CANCELLED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeStoreError indicates a task/execution store failure.
	CodeStoreError ErrorCode = "STORE_ERROR"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// FlowError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type FlowError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *FlowError) MarshalJSON() ([]byte, error) {
	payload := struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Message:     e.Message,
		Code:        string(e.Code),
		Context:     e.Context,
		Recoverable: e.Recoverable,
	}
	if e.Err != nil {
		payload.Err = e.Err.Error()
	}
	return json.Marshal(payload)
}

// New creates a new FlowError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *FlowError {
	return &FlowError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// Newf creates a new FlowError with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *FlowError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *FlowError) WithContext(key string, value interface{}) *FlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *FlowError) WithRecoverable(recoverable bool) *FlowError {
	e.Recoverable = recoverable
	return e
}

// AsFlowError attempts to convert an error to a FlowError.
// Returns the error as FlowError if it is one, or wraps it otherwise.
func AsFlowError(err error) *FlowError {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*FlowError); ok {
		return fe
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the classification code of err, or CodeInternal when err
// carries no code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if fe, ok := err.(*FlowError); ok {
		return fe.Code
	}
	return CodeInternal
}

// Is reports whether err is a FlowError with the given code.
func Is(err error, code ErrorCode) bool {
	fe, ok := err.(*FlowError)
	return ok && fe.Code == code
}
