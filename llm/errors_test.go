package llm

import (
	"errors"
	"testing"
)

func TestErrorFromStatusCode(t *testing.T) {
	cases := []struct {
		status    int
		wantType  string
		retryable bool
	}{
		{400, "*llm.InvalidRequestError", false},
		{401, "*llm.AuthenticationError", false},
		{413, "*llm.ContextLengthError", false},
		{429, "*llm.RateLimitError", true},
		{500, "*llm.ServerError", true},
		{503, "*llm.ServerError", true},
	}

	for _, tc := range cases {
		err := ErrorFromStatusCode(tc.status, "boom", "test", nil)
		if err == nil {
			t.Fatalf("status %d: expected an error", tc.status)
		}
		if got := IsRetryable(err); got != tc.retryable {
			t.Errorf("status %d: IsRetryable = %v, want %v", tc.status, got, tc.retryable)
		}
	}
}

func TestIsRetryableTerminalErrors(t *testing.T) {
	terminal := []error{
		&ConfigurationError{SDKError{Message: "x"}},
		&InvalidToolCallError{SDKError{Message: "x"}},
		&UnknownModelError{SDKError{Message: "x"}},
		&RefusedError{ProviderError{SDKError: SDKError{Message: "x"}}},
		&TruncatedError{ProviderError{SDKError: SDKError{Message: "x"}}},
		&ContentFilterError{ProviderError{SDKError: SDKError{Message: "x"}}},
	}
	for _, err := range terminal {
		if IsRetryable(err) {
			t.Errorf("%T should not be retryable", err)
		}
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}

func TestSDKErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &ProviderError{SDKError: SDKError{Message: "wrapped", Cause: cause}}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments([]byte(`{"a": 2, "b": "x"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args["a"] != float64(2) || args["b"] != "x" {
		t.Errorf("unexpected args: %v", args)
	}

	if args, err = ParseArguments(nil); err != nil || len(args) != 0 {
		t.Errorf("empty payload should yield empty map, got %v, %v", args, err)
	}

	_, err = ParseArguments([]byte(`{"a": `))
	var bad *InvalidToolCallError
	if !errors.As(err, &bad) {
		t.Errorf("expected InvalidToolCallError, got %T", err)
	}
}
