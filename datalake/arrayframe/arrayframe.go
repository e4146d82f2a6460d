// Package arrayframe converts columnar records into a row/array based frame
// (rocketlaunchr/dataframe-go) the way array backed dataframe libraries do it.
//
// Flat numeric storage has no integer "absent" marker. Unless NullableIntegers
// is set, an integer column holding an absent value is stored as float64 with
// NaN holes, and so is every integer list cell holding an absent element. A
// schema inferred from such a frame reports double where the columnar source
// had an integer; see InferSchema.
package arrayframe

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/schema"
)

type Options struct {
	// NullableIntegers keeps integer columns integer, storing absent values as
	// nil instead of widening the column to float64.
	NullableIntegers bool
}

// FromRecord copies rec into a new frame, one series per column.
func FromRecord(rec arrow.Record, opts Options) (*dataframe.DataFrame, error) {
	series := make([]dataframe.Series, 0, rec.NumCols())
	for j, col := range rec.Columns() {
		s, err := toSeries(rec.ColumnName(j), col, opts)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", rec.ColumnName(j), err)
		}
		series = append(series, s)
	}
	return dataframe.NewDataFrame(series...), nil
}

func toSeries(name string, col arrow.Array, opts Options) (dataframe.Series, error) {
	n := col.Len()
	vals := make([]any, n)

	switch {
	case isInteger(col.DataType()):
		widen := !opts.NullableIntegers && col.NullN() > 0
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				continue
			}
			v := intValue(col, i)
			if widen {
				vals[i] = float64(v)
			} else {
				vals[i] = v
			}
		}
		if widen {
			return dataframe.NewSeriesFloat64(name, nil, vals...), nil
		}
		return dataframe.NewSeriesInt64(name, nil, vals...), nil

	case isFloat(col.DataType()):
		for i := 0; i < n; i++ {
			if col.IsValid(i) {
				vals[i] = floatValue(col, i)
			}
		}
		return dataframe.NewSeriesFloat64(name, nil, vals...), nil
	}

	switch c := col.(type) {
	case *array.String:
		for i := 0; i < n; i++ {
			if c.IsValid(i) {
				vals[i] = c.Value(i)
			}
		}
		return dataframe.NewSeriesString(name, nil, vals...), nil
	case *array.LargeString:
		for i := 0; i < n; i++ {
			if c.IsValid(i) {
				vals[i] = c.Value(i)
			}
		}
		return dataframe.NewSeriesString(name, nil, vals...), nil
	case *array.Boolean:
		for i := 0; i < n; i++ {
			if c.IsValid(i) {
				vals[i] = c.Value(i)
			}
		}
		return dataframe.NewSeriesGeneric(name, false, nil, vals...), nil
	case *array.Map:
		return nil, fmt.Errorf("%s: %w", col.DataType(), schema.ErrUnsupportedType)
	case array.ListLike:
		for i := 0; i < n; i++ {
			v, err := nestedValue(c, i, opts)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return dataframe.NewSeriesGeneric(name, List{}, nil, vals...), nil
	case *array.Struct:
		for i := 0; i < n; i++ {
			v, err := nestedValue(c, i, opts)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return dataframe.NewSeriesGeneric(name, Record{}, nil, vals...), nil
	default:
		return nil, fmt.Errorf("%s: %w", col.DataType(), schema.ErrUnsupportedType)
	}
}

// nestedValue returns the Go value of arr[i]: int64, float64, string, bool,
// List for lists and Record for structs. Absent values are nil.
func nestedValue(arr arrow.Array, i int, opts Options) (any, error) {
	if arr.IsNull(i) {
		return nil, nil
	}

	switch {
	case isInteger(arr.DataType()):
		return intValue(arr, i), nil
	case isFloat(arr.DataType()):
		return floatValue(arr, i), nil
	}

	switch a := arr.(type) {
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Map:
		return nil, fmt.Errorf("%s: %w", arr.DataType(), schema.ErrUnsupportedType)
	case array.ListLike:
		start, end := a.ValueOffsets(i)
		values := a.ListValues()

		widen := false
		if !opts.NullableIntegers && isInteger(values.DataType()) {
			for k := start; k < end; k++ {
				if values.IsNull(int(k)) {
					widen = true
					break
				}
			}
		}

		out := make([]any, 0, end-start)
		for k := start; k < end; k++ {
			if widen {
				if values.IsNull(int(k)) {
					out = append(out, math.NaN())
				} else {
					out = append(out, float64(intValue(values, int(k))))
				}
				continue
			}
			v, err := nestedValue(values, int(k), opts)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return List{Values: out}, nil
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		rec := Record{
			Names:  make([]string, 0, a.NumField()),
			Values: make([]any, 0, a.NumField()),
		}
		for f := 0; f < a.NumField(); f++ {
			v, err := nestedValue(a.Field(f), i, opts)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", st.Field(f).Name, err)
			}
			rec.Names = append(rec.Names, st.Field(f).Name)
			rec.Values = append(rec.Values, v)
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("%s: %w", arr.DataType(), schema.ErrUnsupportedType)
	}
}

func isInteger(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return true
	}
	return false
}

func isFloat(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.FLOAT32, arrow.FLOAT64:
		return true
	}
	return false
}

func intValue(arr arrow.Array, i int) int64 {
	switch a := arr.(type) {
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Uint64:
		return int64(a.Value(i))
	}
	panic(fmt.Sprintf("not an integer array: %s", arr.DataType()))
}

func floatValue(arr arrow.Array, i int) float64 {
	switch a := arr.(type) {
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	}
	panic(fmt.Sprintf("not a float array: %s", arr.DataType()))
}
