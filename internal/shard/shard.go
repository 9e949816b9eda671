// Package shard names and encodes the per-month CSV artifacts.
package shard

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
	"github.com/JakeFAU/quake-catalog-crawler/internal/record"
)

const (
	namePrefix = "raw_eq_data_"
	nameSuffix = ".csv"
)

var namePattern = regexp.MustCompile(`^raw_eq_data_(\d{4})_(\d{2})\.csv$`)

// Name returns the artifact name for a period, e.g. raw_eq_data_2018_03.csv.
func Name(p quake.Period) string {
	return namePrefix + p.Key() + nameSuffix
}

// ParseName recovers the period from an artifact name. ok is false for names
// that are not shards.
func ParseName(name string) (quake.Period, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return quake.Period{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return quake.Period{}, false
	}
	return quake.NewPeriod(year, time.Month(month)), true
}

// Encode renders the header followed by one line per record, in the order given.
func Encode(records []quake.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(quake.Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := w.Write(record.Cells(r)); err != nil {
			return nil, fmt.Errorf("write record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// HeaderMatches reports whether fields equal the fixed shard header.
func HeaderMatches(fields []string) bool {
	if len(fields) != len(quake.Header) {
		return false
	}
	for i, f := range fields {
		if f != quake.Header[i] {
			return false
		}
	}
	return true
}
