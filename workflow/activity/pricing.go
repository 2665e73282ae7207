package activity

import (
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/shannon-run/shannon/workflow"
)

// ModelPrice is one entry of a pricing YAML file.
type ModelPrice struct {
	Model       string  `yaml:"model"`
	InputPer1M  float64 `yaml:"input_per_1m"`
	OutputPer1M float64 `yaml:"output_per_1m"`
}

// pricingFile is the top-level shape of the pricing YAML (spec §4.F:
// "a pricing table keyed by model name with defaults, loaded from a
// YAML at startup or a path environment variable").
type pricingFile struct {
	Models []ModelPrice `yaml:"models"`
}

// PricingEnvVar names the environment variable holding a path to a
// pricing YAML overriding the built-in defaults.
const PricingEnvVar = "SHANNON_PRICING_FILE"

// PricingTable resolves a model name to input/output per-million-token
// prices, falling back to workflow.DefaultModelPricing() for any model
// not present in a loaded YAML override.
type PricingTable struct {
	mu    sync.RWMutex
	table map[string]workflow.ModelPricing
}

// LoadPricingTable builds a PricingTable starting from the built-in
// defaults and, if path is non-empty (or PricingEnvVar is set),
// overlaying entries parsed from that YAML file.
func LoadPricingTable(path string) (*PricingTable, error) {
	table := workflow.DefaultModelPricing()

	if path == "" {
		path = os.Getenv(PricingEnvVar)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var pf pricingFile
		if err := yaml.Unmarshal(raw, &pf); err != nil {
			return nil, err
		}
		for _, m := range pf.Models {
			table[m.Model] = workflow.ModelPricing{InputPer1M: m.InputPer1M, OutputPer1M: m.OutputPer1M}
		}
	}

	return &PricingTable{table: table}, nil
}

// Lookup returns the pricing for model, or the zero value and false if
// the model has no default and no override.
func (p *PricingTable) Lookup(model string) (workflow.ModelPricing, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.table[model]
	return price, ok
}

// CostTracker is a thin, concurrency-safe wrapper over
// workflow.CostTracker scoped to a PricingTable, reused across every
// LLM activity call in a run rather than rebuilt per call.
type CostTracker struct {
	pricing *PricingTable
	inner   *workflow.CostTracker
}

// NewCostTracker wraps a workflow.CostTracker for runID, consulting
// pricing for per-model rates.
func NewCostTracker(runID string, pricing *PricingTable) *CostTracker {
	return &CostTracker{pricing: pricing, inner: workflow.NewCostTracker(runID, "USD")}
}

// RecordCall records one LLM call's token usage and cost, attributed
// to nodeID (the activity or pattern step that made the call).
func (c *CostTracker) RecordCall(model string, inputTokens, outputTokens int, nodeID string) float64 {
	if price, ok := c.pricing.Lookup(model); ok {
		c.inner.SetCustomPricing(model, price.InputPer1M, price.OutputPer1M)
	}
	_ = c.inner.RecordLLMCall(model, inputTokens, outputTokens, nodeID)
	return c.inner.GetTotalCost()
}

// TotalCost returns the accumulated cost for the run.
func (c *CostTracker) TotalCost() float64 { return c.inner.GetTotalCost() }
