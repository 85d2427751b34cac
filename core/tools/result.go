package tools

import (
	"encoding/json"
	"fmt"

	"github.com/koscakluka/convai-core/core/events"
)

// FailureKind classifies unsuccessful executions.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureNotFound  FailureKind = "not_found"
	FailureInvalid   FailureKind = "invalid"
	FailureTimeout   FailureKind = "timeout"
	FailureFailed    FailureKind = "failed"
	FailureCancelled FailureKind = "cancelled"
	FailurePanicked  FailureKind = "panicked"
)

// Result is the outcome of one execution.
type Result struct {
	Success bool
	Output  string
	Error   string
	Failure FailureKind
}

func succeeded(output string) *Result {
	return &Result{Success: true, Output: output}
}

func failed(kind FailureKind, format string, args ...any) *Result {
	return &Result{Failure: kind, Error: fmt.Sprintf(format, args...)}
}

// Outcome converts the result into the wire representation.
func (r *Result) Outcome() events.ToolOutcome {
	return events.ToolOutcome{Success: r.Success, Result: r.Output, Error: r.Error}
}

func (r *Result) outcomeLabel() string {
	if r == nil {
		return "no_response"
	}
	if r.Success {
		return "success"
	}
	return string(r.Failure)
}

func formatOutput(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool output: %w", err)
	}
	return string(encoded), nil
}
