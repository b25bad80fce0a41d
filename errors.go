package blockflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error type constants for classification and routing.
const (
	// ErrorTypeAll acts as a wildcard that matches any error except graph errors.
	ErrorTypeAll = "all"

	// ErrorTypeValidation indicates a block's inputs failed validation before
	// the block started, for example a missing required input.
	ErrorTypeValidation = "validation"

	// ErrorTypeTool indicates a tool or function invocation failed or reported
	// success=false.
	ErrorTypeTool = "tool_execution"

	// ErrorTypeTimeout indicates a bounded operation exceeded its configured
	// timeout. Timeouts are a subtype of tool failures for routing purposes.
	ErrorTypeTimeout = "timeout"

	// ErrorTypeCancelled indicates the run was cancelled externally.
	ErrorTypeCancelled = "cancelled"

	// ErrorTypeGraph indicates the workflow graph itself is malformed (dangling
	// edge, overlapping groupings, and so on). Graph errors are detected before
	// the run loop starts, are always fatal, and are never matched by
	// ErrorTypeAll.
	ErrorTypeGraph = "graph_integrity"
)

// Error is a structured execution error carrying the block and tool context
// needed by error-routing logic. It supports Go's error wrapping patterns.
type Error struct {
	Type      string    `json:"type"`
	Cause     string    `json:"cause"`
	BlockID   string    `json:"block_id,omitempty"`
	BlockName string    `json:"block_name,omitempty"`
	Field     string    `json:"field,omitempty"`
	ToolID    string    `json:"tool_id,omitempty"`
	Output    any       `json:"output,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Wrapped   error     `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.BlockID != "" {
		return fmt.Sprintf("%s: block %q: %s", e.Type, e.BlockID, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// NewValidationError reports a bad or missing block input. The field names the
// offending input when known.
func NewValidationError(blockID, blockName, field, cause string) *Error {
	return &Error{
		Type:      ErrorTypeValidation,
		Cause:     cause,
		BlockID:   blockID,
		BlockName: blockName,
		Field:     field,
	}
}

// NewToolError reports a failed tool or function invocation. The raw output
// payload, when available, is attached for downstream error-routing logic.
func NewToolError(toolID, blockID, blockName, cause string, output any) *Error {
	return &Error{
		Type:      ErrorTypeTool,
		Cause:     cause,
		BlockID:   blockID,
		BlockName: blockName,
		ToolID:    toolID,
		Output:    output,
		Timestamp: time.Now(),
	}
}

// NewTimeoutError reports a bounded operation that exceeded its timeout.
func NewTimeoutError(toolID, blockID, blockName, cause string) *Error {
	return &Error{
		Type:      ErrorTypeTimeout,
		Cause:     cause,
		BlockID:   blockID,
		BlockName: blockName,
		ToolID:    toolID,
		Timestamp: time.Now(),
	}
}

// NewGraphError reports a malformed workflow graph.
func NewGraphError(cause string) *Error {
	return &Error{Type: ErrorTypeGraph, Cause: cause}
}

// NewCancelledError reports an externally cancelled run.
func NewCancelledError(cause string) *Error {
	return &Error{Type: ErrorTypeCancelled, Cause: cause}
}

// Classify converts a regular error into an *Error. Errors that are already
// structured pass through unchanged. Context deadline errors become timeouts
// and context cancellation becomes a cancelled error; everything else defaults
// to a tool execution failure.
func Classify(err error) *Error {
	var blockErr *Error
	if errors.As(err, &blockErr) {
		return blockErr
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return &Error{Type: ErrorTypeTimeout, Cause: err.Error(), Wrapped: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Type: ErrorTypeCancelled, Cause: err.Error(), Wrapped: err}
	}
	return &Error{Type: ErrorTypeTool, Cause: err.Error(), Wrapped: err}
}

// MatchesErrorType checks if an error matches a specified error type pattern.
// Graph errors are only matched by ErrorTypeGraph. The ErrorTypeTool pattern
// also matches timeouts, which are a subtype of tool failures.
func MatchesErrorType(err error, errorType string) bool {
	e := Classify(err)
	if e.Type == ErrorTypeGraph {
		return errorType == ErrorTypeGraph
	}
	switch errorType {
	case ErrorTypeAll:
		return true
	case ErrorTypeTool:
		return e.Type == ErrorTypeTool || e.Type == ErrorTypeTimeout
	default:
		return e.Type == errorType
	}
}

// ErrorStateOutput is the output recorded for a failed block so that
// error-routed successors can inspect the failure by reference.
func ErrorStateOutput(err error) map[string]any {
	e := Classify(err)
	out := map[string]any{
		"error":     e.Cause,
		"errorType": e.Type,
	}
	if e.ToolID != "" {
		out["tool"] = e.ToolID
	}
	if e.Output != nil {
		out["rawOutput"] = e.Output
	}
	return out
}
