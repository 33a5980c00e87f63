package analytics

import (
	"fmt"
	"io"
	"strings"
)

const dateLayout = "2006-01-02"

// RenderText writes a human-readable report.
func RenderText(w io.Writer, r Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "store %s\n", r.StoreID)
	fmt.Fprintf(&b, "window %d days (%s .. %s), rule %s\n",
		r.Meta.WindowDays,
		r.Meta.WindowStart.Format(dateLayout),
		r.Meta.WindowEnd.Format(dateLayout),
		r.Meta.Rule)
	fmt.Fprintf(&b, "knobs minStock=%d inactivityDays=%d discountPct=%d maxSalesInWindow=%d\n",
		r.Meta.Knobs.MinStock,
		r.Meta.Knobs.InactivityDays,
		r.Meta.Knobs.DiscountPct,
		r.Meta.Knobs.MaxSalesInWindow)

	b.WriteString("\nmetrics\n")
	fmt.Fprintf(&b, "  %-28s %d\n", "orders in db", r.Metrics.OrdersInDB)
	fmt.Fprintf(&b, "  %-28s %d\n", "variants sold in window", r.Metrics.UniqueVariantsSoldWindow)
	fmt.Fprintf(&b, "  %-28s %d\n", "variant snapshots", r.Metrics.VariantSnapshotsTotal)

	fmt.Fprintf(&b, "\ntop sellers (%d)\n", len(r.TopSellers))
	if len(r.TopSellers) == 0 {
		b.WriteString("  (none)\n")
	} else {
		fmt.Fprintf(&b, "  %-14s %8s\n", "VARIANT", "QTY")
		for _, t := range r.TopSellers {
			fmt.Fprintf(&b, "  %-14d %8d\n", t.VariantID, t.QtySold)
		}
	}

	fmt.Fprintf(&b, "\nslow movers (%d)\n", len(r.SlowMovers))
	if len(r.SlowMovers) == 0 {
		b.WriteString("  (none)\n")
	} else {
		fmt.Fprintf(&b, "  %-14s %7s %5s %10s %10s %10s  %s\n",
			"VARIANT", "STOCK", "SOLD", "LAST SALE", "PRICE", "SUGGESTED", "TITLE")
		for _, s := range r.SlowMovers {
			line := fmt.Sprintf("  %-14d %7d %5d %10s %10s %10s  %s",
				s.VariantID,
				s.Stock,
				s.QtySoldInWindow,
				lastSale(s.DaysSinceLastSale),
				moneyOrDash(s.CurrentPrice),
				moneyOrDash(s.RecommendedAction.SuggestedPrice),
				title(s))
			b.WriteString(strings.TrimRight(line, " "))
			b.WriteByte('\n')
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func lastSale(days *int) string {
	if days == nil {
		return "never"
	}
	return fmt.Sprintf("%dd ago", *days)
}

func moneyOrDash(m *Money) string {
	if m == nil {
		return "-"
	}
	return m.String()
}

func title(s SlowMover) string {
	switch {
	case s.ProductTitle != "" && s.VariantTitle != "":
		return s.ProductTitle + " / " + s.VariantTitle
	case s.ProductTitle != "":
		return s.ProductTitle
	default:
		return s.VariantTitle
	}
}
