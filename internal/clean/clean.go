// Package clean normalizes a merged catalog for analysis: ISO timestamps,
// integer depths, and a province column taken from the location text.
package clean

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
	"github.com/JakeFAU/quake-catalog-crawler/internal/shard"
)

const (
	sourceLayout = "2 January 2006 - 3:04 PM"
	outputLayout = "2006-01-02 15:04:05"
)

var (
	meridiemPattern = regexp.MustCompile(`(\d{1,2}:\d{2})\s*(AM|PM)`)
	provincePattern = regexp.MustCompile(`\(([^)]+)\)`)
)

// Header is the cleaned output schema.
var Header = append(append([]string(nil), quake.Header...), "province")

// Report counts the values that could not be normalized and were left empty.
type Report struct {
	Rows       int `json:"rows"`
	BadDates   int `json:"bad_dates"`
	BadDepths  int `json:"bad_depths"`
	NoProvince int `json:"no_province"`
}

// Timestamp converts "19 October 2026 - 02:13 PM" (with or without the space
// before the meridiem) to "2026-10-19 14:13:00". ok is false when the text does
// not parse.
func Timestamp(raw string) (string, bool) {
	s := strings.Join(strings.Fields(raw), " ")
	s = meridiemPattern.ReplaceAllString(s, "$1 $2")
	t, err := time.Parse(sourceLayout, s)
	if err != nil {
		return "", false
	}
	return t.Format(outputLayout), true
}

// Depth returns the depth as an integer string. Whole-valued decimals such as
// "10.0" are accepted; anything else is rejected.
func Depth(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil {
		return strconv.Itoa(n), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return "", false
	}
	return strconv.FormatInt(int64(f), 10), true
}

// Province returns the last parenthesized group of location, e.g. "Batangas"
// for "012 km N 45° W of Calatagan (Batangas)".
func Province(location string) (string, bool) {
	matches := provincePattern.FindAllStringSubmatch(location, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

// Run reads a merged catalog from r and writes the cleaned catalog to w.
func Run(r io.Reader, w io.Writer) (Report, error) {
	in := csv.NewReader(r)
	in.FieldsPerRecord = len(quake.Header)
	header, err := in.Read()
	if err != nil {
		return Report{}, fmt.Errorf("read header: %w", err)
	}
	if !shard.HeaderMatches(header) {
		return Report{}, fmt.Errorf("unexpected header %v", header)
	}

	out := csv.NewWriter(w)
	if err := out.Write(Header); err != nil {
		return Report{}, fmt.Errorf("write header: %w", err)
	}

	var report Report
	for {
		fields, err := in.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("read row %d: %w", report.Rows+1, err)
		}
		if err := out.Write(cleanRow(fields, &report)); err != nil {
			return report, fmt.Errorf("write row: %w", err)
		}
		report.Rows++
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return report, fmt.Errorf("flush cleaned csv: %w", err)
	}
	return report, nil
}

func cleanRow(fields []string, report *Report) []string {
	row := make([]string, 0, len(Header))
	row = append(row, fields...)

	ts, ok := Timestamp(fields[0])
	if !ok {
		report.BadDates++
	}
	row[0] = ts

	depth, ok := Depth(fields[3])
	if !ok {
		report.BadDepths++
	}
	row[3] = depth

	province, ok := Province(fields[5])
	if !ok {
		report.NoProvince++
	}
	return append(row, province)
}
