package dataset

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/dhelos/saleshook/internal/flatten"
)

// colType is the storage type inferred for a column. Columns holding values
// of more than one type degrade to strings.
type colType int

const (
	colUnknown colType = iota
	colString
	colInt64
	colFloat64
	colBool
)

// EncodeParquet serializes the full dataset to a Parquet buffer. The Arrow
// schema is inferred per column from the stored values; cells missing from a
// row are written as nulls.
func (d *Dataset) EncodeParquet() ([]byte, error) {
	pool := memory.NewGoAllocator()

	types := make([]colType, len(d.columns))
	for i, col := range d.columns {
		types[i] = d.inferColumn(col)
	}

	fields := make([]arrow.Field, len(d.columns))
	for i, col := range d.columns {
		fields[i] = arrow.Field{Name: col, Type: arrowType(types[i]), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	arrays := make([]arrow.Array, len(d.columns))
	defer func() {
		for _, a := range arrays {
			if a != nil {
				a.Release()
			}
		}
	}()
	for i, col := range d.columns {
		arrays[i] = d.buildColumn(pool, col, types[i])
	}

	record := array.NewRecord(schema, arrays, int64(len(d.rows)))
	defer record.Release()

	var buf bytes.Buffer
	writer, err := pqarrow.NewFileWriter(schema, &buf, nil, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write parquet record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeParquet replaces the dataset contents with the rows stored in the
// Parquet buffer. The decoded rows become the loaded base: only rows appended
// afterwards count as new for the spreadsheet projection.
func (d *Dataset) DecodeParquet(ctx context.Context, data []byte) error {
	rdr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to open parquet data: %w", err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return fmt.Errorf("failed to create parquet reader: %w", err)
	}
	table, err := fr.ReadTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to read parquet table: %w", err)
	}
	defer table.Release()

	numRows := int(table.NumRows())
	columns := make([]string, table.NumCols())
	cells := make([][]any, table.NumCols())
	for i := range int(table.NumCols()) {
		columns[i] = table.Schema().Field(i).Name
		cells[i] = columnValues(table.Column(i).Data().Chunks(), numRows)
	}

	rows := make([]flatten.Record, numRows)
	for r := range numRows {
		rec := flatten.NewRecord()
		for c, name := range columns {
			if v := cells[c][r]; v != nil {
				rec.Set(name, v)
			}
		}
		rows[r] = rec
	}

	d.columns = columns
	d.rows = rows
	d.loaded = numRows
	return nil
}

func columnValues(chunks []arrow.Array, numRows int) []any {
	values := make([]any, 0, numRows)
	for _, chunk := range chunks {
		for i := range chunk.Len() {
			if chunk.IsNull(i) {
				values = append(values, nil)
				continue
			}
			switch a := chunk.(type) {
			case *array.String:
				values = append(values, a.Value(i))
			case *array.Int64:
				values = append(values, a.Value(i))
			case *array.Float64:
				values = append(values, a.Value(i))
			case *array.Boolean:
				values = append(values, a.Value(i))
			default:
				values = append(values, chunk.ValueStr(i))
			}
		}
	}
	return values
}

func (d *Dataset) inferColumn(column string) colType {
	t := colUnknown
	for _, row := range d.rows {
		v := row.Value(column)
		if v == nil {
			continue
		}
		t = mergeType(t, typeOf(v))
		if t == colString {
			break
		}
	}
	if t == colUnknown {
		return colString
	}
	return t
}

func typeOf(v any) colType {
	switch v.(type) {
	case string:
		return colString
	case bool:
		return colBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return colInt64
	case float32, float64:
		return colFloat64
	default:
		return colString
	}
}

func mergeType(a, b colType) colType {
	switch {
	case a == colUnknown:
		return b
	case a == b:
		return a
	case (a == colInt64 && b == colFloat64) || (a == colFloat64 && b == colInt64):
		return colFloat64
	default:
		return colString
	}
}

func arrowType(t colType) arrow.DataType {
	switch t {
	case colInt64:
		return arrow.PrimitiveTypes.Int64
	case colFloat64:
		return arrow.PrimitiveTypes.Float64
	case colBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

func (d *Dataset) buildColumn(pool memory.Allocator, column string, t colType) arrow.Array {
	switch t {
	case colInt64:
		b := array.NewInt64Builder(pool)
		defer b.Release()
		for _, row := range d.rows {
			if v := row.Value(column); v != nil {
				b.Append(toInt64(v))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()
	case colFloat64:
		b := array.NewFloat64Builder(pool)
		defer b.Release()
		for _, row := range d.rows {
			if v := row.Value(column); v != nil {
				b.Append(toFloat64(v))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()
	case colBool:
		b := array.NewBooleanBuilder(pool)
		defer b.Release()
		for _, row := range d.rows {
			if v := row.Value(column); v != nil {
				b.Append(v.(bool))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()
	default:
		b := array.NewStringBuilder(pool)
		defer b.Release()
		for _, row := range d.rows {
			if v := row.Value(column); v != nil {
				b.Append(stringify(v))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray()
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return float64(toInt64(v))
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
