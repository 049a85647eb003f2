package storage

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "error with message",
			err: &Error{
				Op:  "SaveDocument",
				Err: ErrQuotaReached,
				Msg: "account archive",
			},
			expected: "SaveDocument: account archive: storage quota reached",
		},
		{
			name: "error without message",
			err: &Error{
				Op:  "Lock",
				Err: ErrNotSupported,
			},
			expected: "Lock: operation not supported by storage backend",
		},
		{
			name: "error with nested error",
			err: &Error{
				Op:  "GetDocument",
				Err: errors.New("connection reset"),
				Msg: "backend unreachable",
			},
			expected: "GetDocument: backend unreachable: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := NewErrorf("GetMetadata", ErrNotFound, "file %s", "42")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is to match ErrNotFound through wrapping")
	}

	var storageErr *Error
	if !errors.As(err, &storageErr) {
		t.Fatal("expected errors.As to find *Error")
	}
	if storageErr.Op != "GetMetadata" {
		t.Errorf("Op = %q, want %q", storageErr.Op, "GetMetadata")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NewError("GetMetadata", ErrNotFound)) {
		t.Error("ErrNotFound should be reported as not-found")
	}
	if !IsNotFound(NewError("GetDocument", ErrVersionNotFound)) {
		t.Error("ErrVersionNotFound should be reported as not-found")
	}
	if IsNotFound(NewError("Lock", ErrLocked)) {
		t.Error("ErrLocked should not be reported as not-found")
	}
}

func TestIsNotSupported(t *testing.T) {
	if !IsNotSupported(NewError("Search", ErrNotSupported)) {
		t.Error("wrapped ErrNotSupported should be detected")
	}
	if IsNotSupported(errors.New("other")) {
		t.Error("unrelated error should not be detected as unsupported")
	}
}

func TestRights_Has(t *testing.T) {
	r := RightRead | RightWrite

	if !r.Has(RightRead) {
		t.Error("expected read bit")
	}
	if !r.Has(RightRead | RightWrite) {
		t.Error("expected combined bits")
	}
	if r.Has(RightDelete) {
		t.Error("unexpected delete bit")
	}
}
