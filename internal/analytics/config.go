package analytics

import (
	"math"
	"strconv"
	"strings"
)

// Knob is a bounded numeric analytics option.
type Knob struct {
	Name    string `json:"-"`
	Default int    `json:"default"`
	Min     int    `json:"min"`
	Max     int    `json:"max"`
}

// Recognised knobs and their bounds.
var (
	WindowDays       = Knob{Name: "windowDays", Default: 120, Min: 30, Max: 365}
	MinStock         = Knob{Name: "minStock", Default: 20, Min: 0, Max: 10000}
	InactivityDays   = Knob{Name: "inactivityDays", Default: 60, Min: 7, Max: 720}
	DiscountPct      = Knob{Name: "discountPct", Default: -5, Min: -50, Max: 50}
	MaxSalesInWindow = Knob{Name: "maxSalesInWindow", Default: 1, Min: 0, Max: 50}
)

// Knobs lists every knob in presentation order.
var Knobs = []Knob{WindowDays, MinStock, InactivityDays, DiscountPct, MaxSalesInWindow}

// RuleKey is the option selecting the slow-mover rule version.
const RuleKey = "rule"

// Parse turns raw caller input into a value within the knob's bounds. It
// never fails:
//   - empty, non-numeric or non-finite input yields the default
//   - a negative value for a knob whose range is non-negative yields the
//     default (it has no meaningful nearest bound)
//   - anything else is truncated toward zero and clamped into [Min, Max],
//     so a discountPct of -2.5 applies as -2
func (k Knob) Parse(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return k.Default
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return k.Default
	}
	if f < 0 && k.Min >= 0 {
		return k.Default
	}
	if f > float64(k.Max) {
		return k.Max
	}
	if f < float64(k.Min) {
		return k.Min
	}
	return int(f)
}

// Clamp applies Parse's rules to an already numeric value.
func (k Knob) Clamp(v int) int {
	return k.Parse(strconv.Itoa(v))
}

// Config is a fully bounded analytics configuration.
type Config struct {
	WindowDays       int
	MinStock         int
	InactivityDays   int
	DiscountPct      int
	MaxSalesInWindow int
	Rule             RuleVersion
}

// DefaultConfig returns every knob at its default and the default rule.
func DefaultConfig() Config {
	return Config{
		WindowDays:       WindowDays.Default,
		MinStock:         MinStock.Default,
		InactivityDays:   InactivityDays.Default,
		DiscountPct:      DiscountPct.Default,
		MaxSalesInWindow: MaxSalesInWindow.Default,
		Rule:             DefaultRule,
	}
}

// ParseConfig builds a Config from raw string options, as found in a query
// string or on a command line. lookup returns "" for absent options.
func ParseConfig(lookup func(name string) string) Config {
	return Config{
		WindowDays:       WindowDays.Parse(lookup(WindowDays.Name)),
		MinStock:         MinStock.Parse(lookup(MinStock.Name)),
		InactivityDays:   InactivityDays.Parse(lookup(InactivityDays.Name)),
		DiscountPct:      DiscountPct.Parse(lookup(DiscountPct.Name)),
		MaxSalesInWindow: MaxSalesInWindow.Parse(lookup(MaxSalesInWindow.Name)),
		Rule:             ParseRuleVersion(lookup(RuleKey)),
	}
}

// Bounded returns c with every knob clamped and an unknown rule replaced by
// the default. Engine operations call it on every input.
func (c Config) Bounded() Config {
	return Config{
		WindowDays:       WindowDays.Clamp(c.WindowDays),
		MinStock:         MinStock.Clamp(c.MinStock),
		InactivityDays:   InactivityDays.Clamp(c.InactivityDays),
		DiscountPct:      DiscountPct.Clamp(c.DiscountPct),
		MaxSalesInWindow: MaxSalesInWindow.Clamp(c.MaxSalesInWindow),
		Rule:             ParseRuleVersion(string(c.Rule)),
	}
}
