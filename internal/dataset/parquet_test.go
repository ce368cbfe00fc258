package dataset_test

import (
	"testing"

	"github.com/dhelos/saleshook/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquetRoundTrip(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		rows [][]any

		wantColumns []string
		wantRows    []map[string]any
	}{
		"Single row": {
			rows:        [][]any{{"created_date", "2024-01-01", "total", 19.99}},
			wantColumns: []string{"created_date", "total"},
			wantRows: []map[string]any{
				{"created_date": "2024-01-01", "total": 19.99},
			},
		},
		"Multiple rows preserve order and values": {
			rows: [][]any{
				{"created_date", "2024-01-01", "order_id", "o-1"},
				{"created_date", "2024-02-01", "order_id", "o-2"},
				{"created_date", "2024-03-01", "order_id", "o-3"},
			},
			wantColumns: []string{"created_date", "order_id"},
			wantRows: []map[string]any{
				{"created_date": "2024-01-01", "order_id": "o-1"},
				{"created_date": "2024-02-01", "order_id": "o-2"},
				{"created_date": "2024-03-01", "order_id": "o-3"},
			},
		},
		"Extra keys never dropped": {
			rows: [][]any{
				{"a", "1"},
				{"a", "2", "b", "late column"},
			},
			wantColumns: []string{"a", "b"},
			wantRows: []map[string]any{
				{"a": "1"},
				{"a": "2", "b": "late column"},
			},
		},
		"Missing cells decode as absent keys": {
			rows: [][]any{
				{"a", "1", "b", "x"},
				{"a", "2"},
			},
			wantColumns: []string{"a", "b"},
			wantRows: []map[string]any{
				{"a": "1", "b": "x"},
				{"a": "2"},
			},
		},
		"Typed columns survive": {
			rows: [][]any{
				{"n", int64(7), "f", 1.5, "ok", true, "s", "x"},
				{"n", int64(8), "f", 2.5, "ok", false, "s", "y"},
			},
			wantColumns: []string{"n", "f", "ok", "s"},
			wantRows: []map[string]any{
				{"n": int64(7), "f": 1.5, "ok": true, "s": "x"},
				{"n": int64(8), "f": 2.5, "ok": false, "s": "y"},
			},
		},
		"Mixed-type column degrades to strings": {
			rows: [][]any{
				{"v", "text"},
				{"v", true},
			},
			wantColumns: []string{"v"},
			wantRows: []map[string]any{
				{"v": "text"},
				{"v": "true"},
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ds := dataset.New()
			for _, row := range tc.rows {
				ds.Append(record(t, row...))
			}

			data, err := ds.EncodeParquet()
			require.NoError(t, err, "EncodeParquet should not fail")
			require.NotEmpty(t, data, "EncodeParquet should produce data")

			decoded := dataset.New()
			require.NoError(t, decoded.DecodeParquet(t.Context(), data), "DecodeParquet should not fail")

			assert.Equal(t, tc.wantColumns, decoded.Columns(), "Columns should survive the round trip")
			require.Equal(t, len(tc.wantRows), decoded.Rows(), "Row count should survive the round trip")
			for i, want := range tc.wantRows {
				assert.Equal(t, want, decoded.Row(i).Map(), "Row %d should survive the round trip", i)
			}
		})
	}
}

func TestDecodeParquetRejectsGarbage(t *testing.T) {
	t.Parallel()

	ds := dataset.New()
	err := ds.DecodeParquet(t.Context(), []byte("not parquet at all"))
	require.Error(t, err, "DecodeParquet should reject corrupt data")
}
