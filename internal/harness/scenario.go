package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shelfwise/internal/model"
)

// Scenario defines an end-to-end sync and analytics scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now is the initial fixed clock, in RFC 3339.
	Now string `yaml:"now"`

	// StoreID defaults to DefaultStoreID.
	StoreID string `yaml:"store_id,omitempty"`

	// Disconnected leaves the store unregistered, so every sync fails with
	// a configuration error.
	Disconnected bool `yaml:"disconnected,omitempty"`

	// Upstream maps a resource ("orders" or "products") to its pages. Each
	// page is a JSON array of records.
	Upstream map[string][]string `yaml:"upstream,omitempty"`

	// Failures inject upstream errors before the flow starts.
	Failures []Failure `yaml:"failures,omitempty"`

	// Flow is executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions are checked after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// Failure makes the next Times requests for Page of Resource answer Status.
type Failure struct {
	Resource string `yaml:"resource"`
	Page     int    `yaml:"page"`
	Status   int    `yaml:"status"`
	Times    int    `yaml:"times"`
}

// Step is one flow step. Exactly one of Sync, Analytics, Advance or
// Upstream must be set.
type Step struct {
	// Sync is "orders", "variants" (or "products") or "all".
	Sync    string `yaml:"sync,omitempty"`
	Dry     bool   `yaml:"dry,omitempty"`
	Days    int    `yaml:"days,omitempty"`
	PageCap int    `yaml:"page_cap,omitempty"`

	Analytics *AnalyticsStep `yaml:"analytics,omitempty"`

	// Advance moves the clock forward by a Go duration ("36h").
	Advance string `yaml:"advance,omitempty"`

	// Upstream replaces the pages of the named resources.
	Upstream map[string][]string `yaml:"upstream,omitempty"`

	// Expect validates a sync step. Counts are summed over every run of
	// the step.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// AnalyticsStep computes a report. Knob values are raw strings, parsed the
// same way as HTTP query parameters.
type AnalyticsStep struct {
	Knobs  map[string]string `yaml:"knobs,omitempty"`
	Rule   string            `yaml:"rule,omitempty"`
	Record bool              `yaml:"record,omitempty"`
}

// ExpectClause specifies the expected outcome of a sync step.
type ExpectClause struct {
	// Status applies to every run of the step.
	Status string `yaml:"status,omitempty"`

	// Error is the expected sync error code; empty means no error.
	Error string `yaml:"error,omitempty"`

	Pages    *int `yaml:"pages,omitempty"`
	Fetched  *int `yaml:"fetched,omitempty"`
	Upserted *int `yaml:"upserted,omitempty"`
	Skipped  *int `yaml:"skipped,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Entity and Value (or Absent) are used by cursor.
	Entity string `yaml:"entity,omitempty"`
	Value  string `yaml:"value,omitempty"`
	Absent bool   `yaml:"absent,omitempty"`

	// Table is used by row_count.
	Table string `yaml:"table,omitempty"`

	// Status optionally narrows run_count.
	Status string `yaml:"status,omitempty"`

	// Count is used by row_count and run_count.
	Count int `yaml:"count,omitempty"`

	// Variants lists expected variant ids in order (top_sellers,
	// slow_movers). Quantities and Prices, when given, must line up with it.
	Variants   []int64  `yaml:"variants,omitempty"`
	Quantities []int64  `yaml:"quantities,omitempty"`
	Prices     []string `yaml:"prices,omitempty"`
}

// Assertion types.
const (
	AssertCursor     = "cursor"
	AssertRowCount   = "row_count"
	AssertRunCount   = "run_count"
	AssertTopSellers = "top_sellers"
	AssertSlowMovers = "slow_movers"
)

// DefaultStoreID is used when a scenario names no store.
const DefaultStoreID = "demo.myshopify.com"

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected so that
// typos ("assertion:" for "assertions:") fail loudly.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.StoreID == "" {
		scenario.StoreID = DefaultStoreID
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := time.Parse(time.RFC3339, s.Now); err != nil {
		return fmt.Errorf("now must be an RFC 3339 timestamp: %w", err)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, f := range s.Failures {
		if f.Resource == "" || f.Page < 1 || f.Status < 100 || f.Times < 1 {
			return fmt.Errorf("failures[%d]: resource, page >= 1, status and times >= 1 are required", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step, i); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step, index int) error {
	set := 0
	if step.Sync != "" {
		set++
		if step.Sync != "all" {
			if _, err := model.ParseEntityType(step.Sync); err != nil {
				return fmt.Errorf("flow[%d]: %w", index, err)
			}
		}
	}
	if step.Analytics != nil {
		set++
	}
	if step.Advance != "" {
		set++
		if _, err := time.ParseDuration(step.Advance); err != nil {
			return fmt.Errorf("flow[%d]: invalid advance: %w", index, err)
		}
	}
	if step.Upstream != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("flow[%d]: exactly one of sync, analytics, advance or upstream is required", index)
	}
	if step.Expect != nil && step.Sync == "" {
		return fmt.Errorf("flow[%d]: expect is only valid on sync steps", index)
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	switch a.Type {
	case AssertCursor:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for cursor", index)
		}
		if _, err := model.ParseEntityType(a.Entity); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if (a.Value == "") == !a.Absent {
			return fmt.Errorf("assertions[%d]: exactly one of value or absent is required for cursor", index)
		}
	case AssertRowCount:
		if !validIdentifier.MatchString(a.Table) {
			return fmt.Errorf("assertions[%d]: invalid table name %q", index, a.Table)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertRunCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTopSellers, AssertSlowMovers:
		if len(a.Quantities) > 0 && len(a.Quantities) != len(a.Variants) {
			return fmt.Errorf("assertions[%d]: quantities must line up with variants", index)
		}
		if len(a.Prices) > 0 && len(a.Prices) != len(a.Variants) {
			return fmt.Errorf("assertions[%d]: prices must line up with variants", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
