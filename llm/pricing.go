package llm

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var builtinPrices []byte

// ModelRates holds per-million-token prices for one model or model family.
type ModelRates struct {
	Input      float64 `yaml:"input"`
	Output     float64 `yaml:"output"`
	Cached     float64 `yaml:"cached"`
	CacheWrite float64 `yaml:"cache_write"`
}

// PriceTable maps model names (or name prefixes) to rates, with one explicit
// default row for unknown models. The table is read-only after construction.
type PriceTable struct {
	Default ModelRates            `yaml:"default"`
	Models  map[string]ModelRates `yaml:"models"`

	orderOnce sync.Once
	order     []string // Models keys, longest first
}

// LoadPriceTable reads a YAML price table from path.
func LoadPriceTable(path string) (*PriceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pricing: read %q: %w", path, err)
	}
	return parsePriceTable(data)
}

func parsePriceTable(data []byte) (*PriceTable, error) {
	var t PriceTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("pricing: decode yaml: %w", err)
	}
	if t.Models == nil {
		t.Models = map[string]ModelRates{}
	}
	return &t, nil
}

var (
	builtinTable     *PriceTable
	builtinTableOnce sync.Once
)

// DefaultPriceTable returns the table embedded at build time.
func DefaultPriceTable() *PriceTable {
	builtinTableOnce.Do(func() {
		t, err := parsePriceTable(builtinPrices)
		if err != nil {
			// The embedded table is validated by tests; a decode failure
			// here means a broken build.
			panic(fmt.Sprintf("pricing: embedded table: %v", err))
		}
		builtinTable = t
	})
	return builtinTable
}

// Rates resolves the price row for model: exact name, then longest prefix,
// then the default row. Every Models key doubles as a prefix candidate, so a
// "gpt-5.2" row also prices "gpt-5.2-mini" unless a more specific row exists.
func (t *PriceTable) Rates(model string) ModelRates {
	if r, ok := t.Models[model]; ok {
		return r
	}

	for _, prefix := range t.prefixKeys() {
		if len(model) > len(prefix) && model[:len(prefix)] == prefix {
			return t.Models[prefix]
		}
	}

	return t.Default
}

func (t *PriceTable) prefixKeys() []string {
	t.orderOnce.Do(func() {
		t.order = longestFirst(t.Models)
	})
	return t.order
}

// Cost computes the derived dollar cost for usage against model. It is a
// pure function of (model, usage-without-cost); the Cost field of the input
// is ignored.
func (t *PriceTable) Cost(model string, usage TokenUsage) float64 {
	r := t.Rates(model)
	const million = 1e6
	return float64(usage.InputTokens)*r.Input/million +
		float64(usage.OutputTokens)*r.Output/million +
		float64(usage.CachedTokens)*r.Cached/million +
		float64(usage.CacheWriteTokens)*r.CacheWrite/million
}

// Cost resolves usage against the built-in table. Providers call this after
// filling token counts so every Response carries a derived cost.
func Cost(model string, usage TokenUsage) float64 {
	return DefaultPriceTable().Cost(model, usage)
}
