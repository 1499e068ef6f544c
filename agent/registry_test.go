package agent

import (
	"errors"
	"testing"

	"github.com/saltpond/drover/llm"
)

func mustTool(t *testing.T, name string) Tool {
	t.Helper()
	tool, err := FromFunction(name, "", func() (string, error) { return name, nil })
	if err != nil {
		t.Fatalf("FromFunction(%s) failed: %v", name, err)
	}
	return tool
}

func TestRegistryAddAndGet(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Add(mustTool(t, "alpha")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	tool, ok := r.Get("alpha")
	if !ok {
		t.Fatal("Get(alpha) not found")
	}
	if tool.Name != "alpha" {
		t.Errorf("name = %q", tool.Name)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) should report absence")
	}
}

func TestRegistryDuplicateTool(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Add(mustTool(t, "alpha")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	err := r.Add(mustTool(t, "alpha"))
	if err == nil {
		t.Fatal("duplicate Add must fail")
	}
	var cfg *llm.ConfigurationError
	if !errors.As(err, &cfg) {
		t.Errorf("error type = %T, want *llm.ConfigurationError", err)
	}
	if r.Count() != 1 {
		t.Errorf("registry changed by failed Add: count = %d", r.Count())
	}
}

func TestRegistryToolInstanceNamespaceShared(t *testing.T) {
	r := NewToolRegistry()
	if err := r.AddInstance("counter", &counter{}); err != nil {
		t.Fatalf("AddInstance failed: %v", err)
	}

	// A tool may not take an instance's name, and vice versa.
	if err := r.Add(mustTool(t, "counter")); err == nil {
		t.Error("tool colliding with instance name must fail")
	}
	if err := r.AddInstance("increment", &counter{}); err == nil {
		t.Error("instance colliding with extracted tool name must fail")
	}
}

func TestRegistryAddInstanceAtomic(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Add(mustTool(t, "value")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// counter extracts "increment" and "value"; "value" collides, so
	// neither the instance nor "increment" may be registered.
	if err := r.AddInstance("counter", &counter{}); err == nil {
		t.Fatal("expected collision error")
	}
	if _, ok := r.Get("increment"); ok {
		t.Error("failed AddInstance leaked a tool into the registry")
	}
	if _, ok := r.GetInstance("counter"); ok {
		t.Error("failed AddInstance leaked the instance")
	}
}

func TestRegistryInsertionOrder(t *testing.T) {
	r := NewToolRegistry()
	for _, name := range []string{"zulu", "alpha", "mike"} {
		if err := r.Add(mustTool(t, name)); err != nil {
			t.Fatalf("Add(%s) failed: %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"zulu", "alpha", "mike"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want insertion order %v", names, want)
		}
	}

	schemas := r.Schemas()
	for i := range want {
		if schemas[i].Name != want[i] {
			t.Fatalf("Schemas() out of order: %v", schemas)
		}
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Add(mustTool(t, "alpha")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !r.Remove("alpha") {
		t.Error("Remove(alpha) = false, want true")
	}
	if r.Remove("alpha") {
		t.Error("second Remove(alpha) = true, want false")
	}
	if _, ok := r.Get("alpha"); ok {
		t.Error("tool still present after Remove")
	}
}

func TestRegistryRemoveInstance(t *testing.T) {
	r := NewToolRegistry()
	if err := r.AddInstance("counter", &counter{}); err != nil {
		t.Fatalf("AddInstance failed: %v", err)
	}
	if !r.Remove("counter") {
		t.Fatal("Remove(counter) = false")
	}
	if _, ok := r.Get("increment"); ok {
		t.Error("extracted tool survived instance removal")
	}
	if _, ok := r.Get("value"); ok {
		t.Error("extracted tool survived instance removal")
	}
	if r.Count() != 0 {
		t.Errorf("count = %d after removal, want 0", r.Count())
	}
}

func TestRegistryAddFunc(t *testing.T) {
	r := NewToolRegistry()
	err := r.AddFunc("add", "Add two integers.", addFunc)
	if err != nil {
		t.Fatalf("AddFunc failed: %v", err)
	}
	if _, ok := r.Get("add"); !ok {
		t.Error("AddFunc did not register the tool")
	}

	if err := r.AddFunc("bad", "", "not a function"); err == nil {
		t.Error("AddFunc with a non-function must fail")
	}
}
