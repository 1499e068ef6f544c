package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// stubProvider is a minimal Provider for routing tests.
type stubProvider struct {
	model string
}

func (s *stubProvider) Complete(ctx context.Context, msgs []Message, tools []ToolSchema) (*Response, error) {
	return &Response{Content: "ok"}, nil
}

func (s *stubProvider) StructuredComplete(ctx context.Context, msgs []Message, schema map[string]any) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (s *stubProvider) Model() string { return s.model }

func TestRouterExactMatch(t *testing.T) {
	exact := &stubProvider{model: "gpt-5.2"}
	family := &stubProvider{model: "gpt-family"}
	r := NewRouter(
		WithModel("gpt-5.2", exact),
		WithPrefix("gpt-", family),
	)

	got, err := r.Resolve("gpt-5.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Provider(exact) {
		t.Errorf("expected exact entry to win over prefix entry")
	}
}

func TestRouterLongestPrefixWins(t *testing.T) {
	short := &stubProvider{model: "claude"}
	long := &stubProvider{model: "claude-opus"}
	r := NewRouter(
		WithPrefix("claude-", short),
		WithPrefix("claude-opus-", long),
	)

	got, err := r.Resolve("claude-opus-4-6")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Provider(long) {
		t.Errorf("expected longest prefix to win")
	}

	got, err = r.Resolve("claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Provider(short) {
		t.Errorf("expected shorter prefix for non-opus model")
	}
}

func TestRouterUnknownModel(t *testing.T) {
	r := NewRouter(WithPrefix("gpt-", &stubProvider{}))

	_, err := r.Resolve("mistral-large")
	if err == nil {
		t.Fatal("expected error for unroutable model")
	}
	var unknown *UnknownModelError
	if !errors.As(err, &unknown) {
		t.Errorf("expected UnknownModelError, got %T", err)
	}
}

func TestRouterRegisterAfterConstruction(t *testing.T) {
	r := NewRouter()
	p := &stubProvider{model: "local"}
	r.Register("llama3", p)
	r.RegisterPrefix("llama", p)

	if got, err := r.Resolve("llama3"); err != nil || got != Provider(p) {
		t.Fatalf("Resolve(llama3) = %v, %v", got, err)
	}
	if got, err := r.Resolve("llama2-70b"); err != nil || got != Provider(p) {
		t.Fatalf("Resolve(llama2-70b) = %v, %v", got, err)
	}

	// A more specific prefix registered later must still win.
	fine := &stubProvider{model: "llama3-tuned"}
	r.RegisterPrefix("llama3-", fine)
	if got, err := r.Resolve("llama3-8b"); err != nil || got != Provider(fine) {
		t.Fatalf("Resolve(llama3-8b) = %v, %v", got, err)
	}
}
