// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("connection refused")
	fe := New(CodeHandlerFailure, "node evaluation failed", cause)

	if fe.Code != CodeHandlerFailure {
		t.Errorf("expected CodeHandlerFailure, got %v", fe.Code)
	}
	if fe.Message != "node evaluation failed" {
		t.Errorf("expected message 'node evaluation failed', got %q", fe.Message)
	}
	if fe.Err != cause {
		t.Errorf("expected cause to be preserved")
	}
	if !errors.Is(fe, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
}

func TestWithContext(t *testing.T) {
	fe := New(CodeInvalidEdge, "port mismatch", nil)
	fe.WithContext("source", "a").WithContext("target", "b")

	if fe.Context["source"] != "a" {
		t.Errorf("expected context source to be 'a'")
	}
	if fe.Context["target"] != "b" {
		t.Errorf("expected context target to be set")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(CodeCycle, "cycle detected", nil)); got != CodeCycle {
		t.Errorf("expected CodeCycle, got %v", got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Errorf("expected plain errors to classify as internal, got %v", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("expected empty code for nil error, got %v", got)
	}
}

func TestIs(t *testing.T) {
	fe := New(CodeTimeout, "run exceeded deadline", nil)
	if !Is(fe, CodeTimeout) {
		t.Errorf("expected Is to match the error code")
	}
	if Is(fe, CodeCancelled) {
		t.Errorf("expected Is to reject a different code")
	}
	if Is(errors.New("plain"), CodeTimeout) {
		t.Errorf("expected Is to reject non-FlowError values")
	}
}

func TestMarshalJSON(t *testing.T) {
	fe := New(CodeDuplicateID, "node id reused", errors.New("id=n1")).
		WithContext("node", "n1")

	raw, err := json.Marshal(fe)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["code"] != string(CodeDuplicateID) {
		t.Errorf("expected code %q, got %v", CodeDuplicateID, decoded["code"])
	}
	if decoded["error"] != "id=n1" {
		t.Errorf("expected wrapped error text, got %v", decoded["error"])
	}
}
