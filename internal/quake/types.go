package quake

import (
	"fmt"
	"time"
)

// Header is the fixed six-column schema of every shard artifact.
var Header = []string{"date_time", "latitude", "longitude", "depth", "magnitude", "location"}

// Record is one observed seismic event as published by the source.
type Record struct {
	// Timestamp is kept in the source format ("19 October 2026 - 02:13 PM");
	// normalization happens downstream.
	Timestamp string  `json:"date_time"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Depth     int     `json:"depth"`
	Magnitude float64 `json:"magnitude"`
	Location  string  `json:"location"`
}

// Period identifies one month of the catalog.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod builds a Period from a year and month.
func NewPeriod(year int, month time.Month) Period {
	return Period{Year: year, Month: month}
}

// Of returns the period containing t.
func Of(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// Next returns the period one month later.
func (p Period) Next() Period {
	if p.Month == time.December {
		return Period{Year: p.Year + 1, Month: time.January}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// Key returns the "<year>_<MM>" form used in shard names.
func (p Period) Key() string {
	return fmt.Sprintf("%04d_%02d", p.Year, int(p.Month))
}

// LogName returns the "<year>_<MonthName>.html" form written to the missing-period log.
func (p Period) LogName() string {
	return fmt.Sprintf("%d_%s.html", p.Year, p.Month.String())
}

// String renders the period as "March 2018".
func (p Period) String() string {
	return fmt.Sprintf("%s %d", p.Month.String(), p.Year)
}

// OutcomeKind classifies the result of fetching one period.
type OutcomeKind string

// Outcome kinds produced by the period fetcher.
const (
	OutcomeFetched    OutcomeKind = "fetched"
	OutcomeFetchError OutcomeKind = "fetch_error"
	OutcomeNoData     OutcomeKind = "no_data"
)

// Outcome is the explicit result of fetching one period. Rows is populated only
// for OutcomeFetched; Err is populated for the two failure kinds.
type Outcome struct {
	Kind       OutcomeKind
	Period     Period
	URL        string
	StatusCode int
	Rows       [][]string
	Err        error
}

// ShardWritten is the notification payload emitted after a shard is persisted.
type ShardWritten struct {
	RunID     string    `json:"run_id"`
	Period    string    `json:"period"`
	Shard     string    `json:"shard"`
	URI       string    `json:"uri"`
	Records   int       `json:"records"`
	Dropped   int       `json:"dropped"`
	SHA256    string    `json:"sha256"`
	WrittenAt time.Time `json:"written_at"`
}
