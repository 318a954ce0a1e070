package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	tests := map[Kind]int{
		OriginRejected:      http.StatusForbidden,
		MalformedInput:      http.StatusBadRequest,
		MissingField:        http.StatusBadRequest,
		StoreWriteFailed:    http.StatusInternalServerError,
		ConfigMissing:       http.StatusInternalServerError,
		CdnSubmissionFailed: http.StatusInternalServerError,
		Kind("unknown"):     http.StatusInternalServerError,
	}
	for k, want := range tests {
		if got := Status(k); got != want {
			t.Errorf("Status(%s) = %d, want %d", k, got, want)
		}
	}
}

func TestError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("AccessDenied")
	err := Wrap(StoreWriteFailed, "upload failed", cause)

	if got := err.Error(); got != "store_write_failed: upload failed: AccessDenied" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should find the cause")
	}
	if err.Status() != http.StatusInternalServerError {
		t.Fatalf("Status() = %d", err.Status())
	}
}

func TestError_IsMatchesKind(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(ConfigMissing, "no distribution"))

	if !errors.Is(wrapped, New(ConfigMissing, "")) {
		t.Fatal("expected kind match through wrapping")
	}
	if errors.Is(wrapped, New(MalformedInput, "")) {
		t.Fatal("different kinds must not match")
	}
	if KindOf(wrapped) != ConfigMissing {
		t.Fatalf("KindOf = %q", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("KindOf plain error should be empty")
	}
}

func TestMissing(t *testing.T) {
	err := Missing("filename", "html")
	if err.Kind != MissingField {
		t.Fatalf("Kind = %q", err.Kind)
	}
	if err.Msg != "missing 'filename', 'html'" {
		t.Fatalf("Msg = %q", err.Msg)
	}
	if len(err.Fields) != 2 {
		t.Fatalf("Fields = %v", err.Fields)
	}
}
