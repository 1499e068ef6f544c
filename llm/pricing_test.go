package llm

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedTableParses(t *testing.T) {
	table := DefaultPriceTable()
	if table.Default.Input <= 0 || table.Default.Output <= 0 {
		t.Fatalf("default row not populated: %+v", table.Default)
	}
	if len(table.Models) == 0 {
		t.Fatal("embedded table has no model rows")
	}
}

func TestRatesExactThenLongestPrefixThenDefault(t *testing.T) {
	table := &PriceTable{
		Default: ModelRates{Input: 1, Output: 2},
		Models: map[string]ModelRates{
			"gpt-5.2": {Input: 2.5, Output: 10},
			"gpt-":    {Input: 3, Output: 12},
		},
	}

	if got := table.Rates("gpt-5.2"); got.Input != 2.5 {
		t.Errorf("exact lookup: got input rate %v, want 2.5", got.Input)
	}
	// Every row is a prefix candidate; "gpt-5.2" is longer than "gpt-",
	// so variants of that model resolve through it.
	if got := table.Rates("gpt-5.2-mini"); got.Input != 2.5 {
		t.Errorf("longest-prefix lookup: got input rate %v, want 2.5", got.Input)
	}
	if got := table.Rates("gpt-4o"); got.Input != 3 {
		t.Errorf("family-prefix lookup: got input rate %v, want 3", got.Input)
	}
	if got := table.Rates("totally-unknown"); got.Input != 1 {
		t.Errorf("default lookup: got input rate %v, want 1", got.Input)
	}
}

func TestCostIsPure(t *testing.T) {
	usage := TokenUsage{
		InputTokens:      1_000_000,
		OutputTokens:     500_000,
		CachedTokens:     200_000,
		CacheWriteTokens: 100_000,
		Cost:             999, // must be ignored
	}

	first := DefaultPriceTable().Cost("claude-opus-4-6", usage)
	second := DefaultPriceTable().Cost("claude-opus-4-6", usage)
	if first != second {
		t.Errorf("cost not deterministic: %v != %v", first, second)
	}
	if first <= 0 {
		t.Errorf("expected positive cost, got %v", first)
	}
}

func TestCostUnknownModelUsesDefaultRow(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000}
	table := DefaultPriceTable()

	got := table.Cost("no-such-model-at-all", usage)
	want := table.Default.Input
	if got != want {
		t.Errorf("unknown model cost = %v, want default-row cost %v", got, want)
	}
}

func TestLoadPriceTableOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.yaml")
	content := []byte("default:\n  input: 7\n  output: 9\nmodels:\n  local-: {input: 0, output: 0}\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadPriceTable(path)
	if err != nil {
		t.Fatalf("LoadPriceTable: %v", err)
	}
	if table.Default.Input != 7 {
		t.Errorf("default input = %v, want 7", table.Default.Input)
	}
	if got := table.Cost("local-llama", TokenUsage{InputTokens: 1_000_000}); got != 0 {
		t.Errorf("local model cost = %v, want 0", got)
	}
}

func TestLoadPriceTableMissingFile(t *testing.T) {
	if _, err := LoadPriceTable(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
