package jsonrpc

import (
	"fmt"
	"testing"
)

func TestJSONRPCErrorClassification(t *testing.T) {
	err := NewJSONRPCError(ErrInvalidParams, "bad params", nil)
	if err.Error() != "bad params" {
		t.Errorf("unexpected error message %q", err.Error())
	}
	if !IsInvalidParams(err) {
		t.Error("expected IsInvalidParams to match")
	}
	if IsInternalError(err) {
		t.Error("IsInternalError should not match an invalid params error")
	}

	wrapped := fmt.Errorf("handler: %w", NewJSONRPCError(ErrInternalError, "boom", nil))
	if !IsInternalError(wrapped) {
		t.Error("expected IsInternalError to match through wrapping")
	}

	if IsError(fmt.Errorf("plain"), ErrInternalError) {
		t.Error("plain errors should not classify")
	}
}
