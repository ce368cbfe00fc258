// Package dataset holds the accumulated sales dataset in memory and projects
// it to its two stored forms: a Parquet file and an Excel workbook.
//
// The dataset is an ordered sequence of flat records sharing a column
// vocabulary. Column order is established by the first appended record (or by
// the decoded Parquet schema) and is preserved for subsequent appends. Later
// records may introduce new columns or omit existing ones; missing cells are
// rendered empty.
package dataset

import (
	"slices"

	"github.com/dhelos/saleshook/internal/flatten"
)

// Dataset is the in-memory tabular representation of the stored sales data.
// It is owned by a single ingestion cycle and is not safe for concurrent use.
type Dataset struct {
	columns []string
	rows    []flatten.Record

	// loaded is the number of rows that were present when the dataset was
	// decoded from storage. Rows past this mark are the ones appended during
	// the current cycle.
	loaded int
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{}
}

// Append adds the record as a new row. The first record of an empty dataset
// establishes the column order; any later record may extend the vocabulary
// with columns of its own.
func (d *Dataset) Append(rec flatten.Record) {
	for _, key := range rec.Keys() {
		if !slices.Contains(d.columns, key) {
			d.columns = append(d.columns, key)
		}
	}
	d.rows = append(d.rows, rec)
}

// Rows returns the number of rows currently held.
func (d *Dataset) Rows() int {
	return len(d.rows)
}

// Columns returns the column vocabulary in its established order.
func (d *Dataset) Columns() []string {
	return d.columns
}

// Empty reports whether the dataset holds no rows.
func (d *Dataset) Empty() bool {
	return len(d.rows) == 0
}

// Row returns the record at index i.
func (d *Dataset) Row(i int) flatten.Record {
	return d.rows[i]
}

func (d *Dataset) hasColumn(name string) bool {
	return slices.Contains(d.columns, name)
}

// appended returns the rows added since the dataset was decoded from storage.
func (d *Dataset) appended() []flatten.Record {
	return d.rows[d.loaded:]
}

// lastValue returns the most recent non-nil value stored in the named column.
func (d *Dataset) lastValue(column string) (any, bool) {
	for i := len(d.rows) - 1; i >= 0; i-- {
		if v := d.rows[i].Value(column); v != nil {
			return v, true
		}
	}
	return nil, false
}
