package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

func validCells() []string {
	return []string{"19 October 2026 - 02:13 PM", "14.50", "120.80", "010", "2.1", "Calatagan (Batangas)"}
}

func TestParseValidRow(t *testing.T) {
	t.Parallel()

	rec, err := Parse(validCells())
	require.NoError(t, err)
	assert.Equal(t, quake.Record{
		Timestamp: "19 October 2026 - 02:13 PM",
		Latitude:  14.5,
		Longitude: 120.8,
		Depth:     10,
		Magnitude: 2.1,
		Location:  "Calatagan (Batangas)",
	}, rec)
}

func TestParseInvalidFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		index int
		value string
		field string
	}{
		{name: "latitude", index: 1, value: "N/A", field: FieldLatitude},
		{name: "longitude", index: 2, value: "", field: FieldLongitude},
		{name: "depth fractional", index: 3, value: "10.5", field: FieldDepth},
		{name: "depth text", index: 3, value: "deep", field: FieldDepth},
		{name: "magnitude", index: 4, value: "M2", field: FieldMagnitude},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cells := validCells()
			cells[tt.index] = tt.value

			rec, err := Parse(cells)
			require.Error(t, err)
			require.True(t, errors.Is(err, quake.ErrRowInvalid))
			require.Equal(t, quake.Record{}, rec, "no partial record")

			var rowErr *InvalidRowError
			require.True(t, errors.As(err, &rowErr))
			require.Equal(t, tt.field, rowErr.Field)
			require.Equal(t, cells, rowErr.Cells)
		})
	}
}

func TestParseWrongArity(t *testing.T) {
	t.Parallel()

	_, err := Parse([]string{"a", "b"})
	require.ErrorIs(t, err, quake.ErrRowInvalid)
}

func TestParseLocationAndTimestampPassThrough(t *testing.T) {
	t.Parallel()

	cells := validCells()
	cells[0] = "not a date at all"
	cells[5] = ""
	rec, err := Parse(cells)
	require.NoError(t, err)
	require.Equal(t, "not a date at all", rec.Timestamp)
	require.Empty(t, rec.Location)
}

func TestParseAllDropsInvalidRows(t *testing.T) {
	t.Parallel()

	bad := validCells()
	bad[1] = "abc"
	rows := [][]string{validCells(), bad, validCells()}

	records, dropped := ParseAll(rows)
	require.Len(t, records, 2)
	require.Equal(t, 1, dropped)
}

func TestCellsRoundTrip(t *testing.T) {
	t.Parallel()

	rec, err := Parse(validCells())
	require.NoError(t, err)
	require.Equal(t, []string{"19 October 2026 - 02:13 PM", "14.5", "120.8", "10", "2.1", "Calatagan (Batangas)"}, Cells(rec))
}
