package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://earthquake.phivolcs.dost.gov.ph/", "earthquake.phivolcs.dost.gov.ph"},
		{"upper case", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeHost(tc.input); got != tc.expected {
				t.Errorf("SanitizeHost(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveCounters(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(quakePeriodsTotal.WithLabelValues("no_data"))
	ObservePeriod("no_data")
	if got := testutil.ToFloat64(quakePeriodsTotal.WithLabelValues("no_data")); got != before+1 {
		t.Errorf("expected quake_periods_total{outcome=no_data} to be %f, got %f", before+1, got)
	}

	parsed := testutil.ToFloat64(quakeRowsTotal.WithLabelValues("metrics_test", "parsed"))
	dropped := testutil.ToFloat64(quakeRowsTotal.WithLabelValues("metrics_test", "dropped"))
	ObserveRows("metrics_test", 5, 2)
	if got := testutil.ToFloat64(quakeRowsTotal.WithLabelValues("metrics_test", "parsed")); got != parsed+5 {
		t.Errorf("expected parsed rows %f, got %f", parsed+5, got)
	}
	if got := testutil.ToFloat64(quakeRowsTotal.WithLabelValues("metrics_test", "dropped")); got != dropped+2 {
		t.Errorf("expected dropped rows %f, got %f", dropped+2, got)
	}

	ObserveFetch("metrics_test", 150*time.Millisecond)
	if n := testutil.CollectAndCount(quakeFetchDurationSeconds); n <= 0 {
		t.Errorf("expected fetch histogram to be observed, got %d", n)
	}
}

func FuzzSanitizeHost(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeHost(orig) == "" {
			t.Errorf("SanitizeHost(%q) returned an empty string", orig)
		}
	})
}
