package backfill

import (
	"time"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

// Status is the terminal state of one period within a run.
type Status string

// Period statuses recorded in a Report.
const (
	// StatusSkipped means the shard already existed; nothing was fetched.
	StatusSkipped Status = "skipped"
	// StatusWritten means a new shard was persisted.
	StatusWritten Status = "written"
	// StatusFetchError means the page could not be retrieved; the period was logged as missing.
	StatusFetchError Status = "fetch_error"
	// StatusNoData means the page held no qualifying rows; the period was logged as missing.
	StatusNoData Status = "no_data"
	// StatusStoreError means the shard store failed; the period is retried next run.
	StatusStoreError Status = "store_error"
	// StatusCanceled means the run stopped before the period completed.
	StatusCanceled Status = "canceled"
)

// PeriodResult is one line of the run ledger.
type PeriodResult struct {
	Period  quake.Period `json:"-"`
	Key     string       `json:"period"`
	Status  Status       `json:"status"`
	URL     string       `json:"url,omitempty"`
	Shard   string       `json:"shard"`
	URI     string       `json:"uri,omitempty"`
	Records int          `json:"records"`
	Dropped int          `json:"dropped"`
	Error   string       `json:"error,omitempty"`
}

// Report summarizes one backfill run in period order.
type Report struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Periods    []PeriodResult `json:"periods"`
}

// Count returns how many periods ended with status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, p := range r.Periods {
		if p.Status == s {
			n++
		}
	}
	return n
}

// Records returns the total rows written across new shards.
func (r Report) Records() int {
	n := 0
	for _, p := range r.Periods {
		n += p.Records
	}
	return n
}

// Missing lists the periods appended to the missing log during the run.
func (r Report) Missing() []quake.Period {
	var out []quake.Period
	for _, p := range r.Periods {
		if p.Status == StatusFetchError || p.Status == StatusNoData {
			out = append(out, p.Period)
		}
	}
	return out
}
