package credits_test

import (
	"errors"
	"fmt"
	"testing"

	credits "github.com/xraph/credits"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		notFound  bool
		retryable bool
		client    bool
	}{
		{"account not found", fmt.Errorf("wrap: %w", credits.ErrAccountNotFound), true, false, false},
		{"store unavailable", credits.Unavailable(errors.New("conn reset")), false, true, false},
		{"insufficient", credits.ErrInsufficientCredits, false, false, true},
		{"validation", credits.ValidationError{Field: "id", Message: "required"}, false, false, true},
		{"signature", credits.ErrInvalidSignature, false, false, true},
		{"generation", credits.ErrGenerationFailed, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := credits.IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v", got)
			}
			if got := credits.IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v", got)
			}
			if got := credits.IsClientError(tt.err); got != tt.client {
				t.Errorf("IsClientError = %v", got)
			}
		})
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := credits.Unavailable(cause)
	if !errors.Is(err, cause) || !errors.Is(err, credits.ErrStoreUnavailable) {
		t.Errorf("Unavailable(%v) = %v", cause, err)
	}
	if credits.Unavailable(nil) != nil {
		t.Error("Unavailable(nil) should be nil")
	}
	if again := credits.Unavailable(err); again != err {
		t.Error("Unavailable should not wrap twice")
	}
}

func TestMultiError(t *testing.T) {
	var m credits.MultiError
	if m.HasErrors() || m.First() != nil {
		t.Fatal("empty MultiError reports errors")
	}
	m.Add(nil)
	m.Add(credits.ErrConflict)
	m.Add(credits.ErrNotFound)
	if !m.HasErrors() || m.First() != credits.ErrConflict {
		t.Errorf("MultiError = %+v", m)
	}
	if m.Error() != "credits: 2 errors occurred" {
		t.Errorf("Error() = %q", m.Error())
	}
}
