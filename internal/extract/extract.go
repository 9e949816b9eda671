// Package extract pulls earthquake data rows out of the source's HTML tables.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CellsPerRow is the arity that distinguishes data rows from header, footer,
// and ad rows on the source pages.
const CellsPerRow = 6

// Rows returns every table row with exactly CellsPerRow td cells, in document
// order, as trimmed cell text. No qualifying rows yields an empty slice.
func Rows(markup []byte) ([][]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	rows := make([][]string, 0)
	doc.Find("table tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() != CellsPerRow {
			return
		}
		row := make([]string, 0, CellsPerRow)
		cells.Each(func(_ int, td *goquery.Selection) {
			row = append(row, cellText(td))
		})
		rows = append(rows, row)
	})
	return rows, nil
}

// cellText trims the cell and collapses internal runs of whitespace, which the
// source pads heavily around links and line breaks.
func cellText(td *goquery.Selection) string {
	return strings.Join(strings.Fields(td.Text()), " ")
}
