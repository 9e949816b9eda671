// Package record converts extracted table rows into typed earthquake records.
package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

// Field names, in column order.
const (
	FieldTimestamp = "date_time"
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
	FieldDepth     = "depth"
	FieldMagnitude = "magnitude"
	FieldLocation  = "location"
)

// InvalidRowError reports the row and the first field that failed to parse.
type InvalidRowError struct {
	Cells []string
	Field string
	Err   error
}

func (e *InvalidRowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid row %q: %v", e.Cells, e.Err)
	}
	return fmt.Sprintf("invalid row: field %s: %v", e.Field, e.Err)
}

func (e *InvalidRowError) Unwrap() error {
	return e.Err
}

// Is matches quake.ErrRowInvalid.
func (e *InvalidRowError) Is(target error) bool {
	return target == quake.ErrRowInvalid
}

// Parse converts six cells into a Record. It never returns a partially
// populated record: any failure yields the zero Record and an *InvalidRowError.
func Parse(cells []string) (quake.Record, error) {
	if len(cells) != len(quake.Header) {
		return quake.Record{}, &InvalidRowError{
			Cells: cells,
			Err:   fmt.Errorf("expected %d cells, got %d", len(quake.Header), len(cells)),
		}
	}

	lat, err := parseFloat(cells[1])
	if err != nil {
		return quake.Record{}, &InvalidRowError{Cells: cells, Field: FieldLatitude, Err: err}
	}
	lon, err := parseFloat(cells[2])
	if err != nil {
		return quake.Record{}, &InvalidRowError{Cells: cells, Field: FieldLongitude, Err: err}
	}
	depth, err := strconv.Atoi(strings.TrimSpace(cells[3]))
	if err != nil {
		return quake.Record{}, &InvalidRowError{Cells: cells, Field: FieldDepth, Err: err}
	}
	mag, err := parseFloat(cells[4])
	if err != nil {
		return quake.Record{}, &InvalidRowError{Cells: cells, Field: FieldMagnitude, Err: err}
	}

	return quake.Record{
		Timestamp: cells[0],
		Latitude:  lat,
		Longitude: lon,
		Depth:     depth,
		Magnitude: mag,
		Location:  cells[5],
	}, nil
}

// ParseAll parses rows in order, skipping invalid ones. It returns the valid
// records and the number of rows dropped.
func ParseAll(rows [][]string) ([]quake.Record, int) {
	records := make([]quake.Record, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		rec, err := Parse(row)
		if err != nil {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	return records, dropped
}

// Cells renders a record back into shard columns.
func Cells(r quake.Record) []string {
	return []string{
		r.Timestamp,
		strconv.FormatFloat(r.Latitude, 'f', -1, 64),
		strconv.FormatFloat(r.Longitude, 'f', -1, 64),
		strconv.Itoa(r.Depth),
		strconv.FormatFloat(r.Magnitude, 'f', -1, 64),
		r.Location,
	}
}

func parseFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}
