package analytics

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RuleVersion names a slow-mover qualification rule.
type RuleVersion string

const (
	// RuleV1 flags stocked variants with no sales in the window.
	RuleV1 RuleVersion = "v1"

	// RuleV2 flags stocked variants selling at most maxSalesInWindow units
	// in the window whose last sale is at least inactivityDays old (or that
	// never sold).
	RuleV2 RuleVersion = "v2"

	// RuleV3 is RuleV2 restricted to variants with a positive price, which
	// leaves out gift cards and free samples.
	RuleV3 RuleVersion = "v3"

	// DefaultRule is used when no valid version is requested.
	DefaultRule = RuleV2
)

// RuleVersions lists the available rules.
var RuleVersions = []RuleVersion{RuleV1, RuleV2, RuleV3}

// Facts are the aggregated inputs of a rule for one variant.
type Facts struct {
	Stock           int64 // latest snapshot stock, negative counted as 0
	QtySoldInWindow int64

	// DaysSinceLastSale is nil when the variant has never sold.
	DaysSinceLastSale *int

	// Price is the latest snapshot price; absent, malformed and negative
	// prices are 0.
	Price decimal.Decimal
}

// Rule decides whether a variant is a slow mover under cfg.
type Rule func(cfg Config, f Facts) bool

var rules = map[RuleVersion]Rule{
	RuleV1: ruleV1,
	RuleV2: ruleV2,
	RuleV3: ruleV3,
}

// ParseRuleVersion returns the named rule version, or DefaultRule when s
// names none.
func ParseRuleVersion(s string) RuleVersion {
	v := RuleVersion(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rules[v]; ok {
		return v
	}
	return DefaultRule
}

// Qualifies evaluates the rule version against f.
func (v RuleVersion) Qualifies(cfg Config, f Facts) bool {
	rule, ok := rules[v]
	if !ok {
		rule = rules[DefaultRule]
	}
	return rule(cfg, f)
}

func ruleV1(cfg Config, f Facts) bool {
	return f.Stock >= int64(cfg.MinStock) && f.QtySoldInWindow == 0
}

func ruleV2(cfg Config, f Facts) bool {
	if f.Stock < int64(cfg.MinStock) {
		return false
	}
	if f.QtySoldInWindow > int64(cfg.MaxSalesInWindow) {
		return false
	}
	return f.DaysSinceLastSale == nil || *f.DaysSinceLastSale >= cfg.InactivityDays
}

func ruleV3(cfg Config, f Facts) bool {
	return f.Price.IsPositive() && ruleV2(cfg, f)
}
