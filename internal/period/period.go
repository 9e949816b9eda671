// Package period generates the monthly units of backfill work.
package period

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

const layout = "2006-01"

// Range returns every period from start to end inclusive, one month apart.
// It returns an empty slice when start is after end.
func Range(start, end quake.Period) []quake.Period {
	if end.Before(start) {
		return []quake.Period{}
	}
	months := (end.Year-start.Year)*12 + int(end.Month) - int(start.Month) + 1
	out := make([]quake.Period, 0, months)
	for p := start; !end.Before(p); p = p.Next() {
		out = append(out, p)
	}
	return out
}

// Parse reads a "YYYY-MM" string such as "2018-01".
func Parse(raw string) (quake.Period, error) {
	t, err := time.Parse(layout, strings.TrimSpace(raw))
	if err != nil {
		return quake.Period{}, fmt.Errorf("parse period %q: %w", raw, err)
	}
	return quake.Of(t), nil
}

// Format renders a period as "YYYY-MM".
func Format(p quake.Period) string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
