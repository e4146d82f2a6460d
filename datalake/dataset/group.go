package dataset

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/schema"
)

// HiveDefaultPartition is the partition value used for rows whose key is absent.
const HiveDefaultPartition = "__HIVE_DEFAULT_PARTITION__"

var ErrPartitionColumnType = errors.New("partition column must be a string column")

// Group is the set of rows sharing one partition value.
type Group struct {
	Value  string
	Record arrow.Record
}

type stringColumn interface {
	arrow.Array
	Value(i int) string
}

type run struct {
	start, end int64
}

// GroupBy splits rec by the distinct values of column. Groups come back in the
// order their value is first seen and rows keep their relative order inside a
// group. The caller owns the returned records; see Release.
func GroupBy(mem memory.Allocator, rec arrow.Record, column string) ([]Group, error) {
	indices := rec.Schema().FieldIndices(column)
	if len(indices) == 0 {
		return nil, fmt.Errorf("column %s: %w", column, schema.ErrMissingPartitionColumn)
	}

	keys, ok := rec.Column(indices[0]).(stringColumn)
	if !ok {
		return nil, fmt.Errorf("column %s has type %s: %w", column, rec.Column(indices[0]).DataType(), ErrPartitionColumnType)
	}

	var (
		order []string
		runs  = make(map[string][]run)
	)
	for i := 0; i < keys.Len(); i++ {
		value := HiveDefaultPartition
		if keys.IsValid(i) {
			value = keys.Value(i)
		}

		existing, seen := runs[value]
		if !seen {
			order = append(order, value)
		}
		if n := len(existing); n > 0 && existing[n-1].end == int64(i) {
			existing[n-1].end++
			continue
		}
		runs[value] = append(existing, run{start: int64(i), end: int64(i) + 1})
	}

	groups := make([]Group, 0, len(order))
	for _, value := range order {
		sub, err := gather(mem, rec, runs[value])
		if err != nil {
			Release(groups)
			return nil, fmt.Errorf("partition %s=%s: %w", column, value, err)
		}
		groups = append(groups, Group{Value: value, Record: sub})
	}
	return groups, nil
}

// gather concatenates the row ranges of rec into a single record.
func gather(mem memory.Allocator, rec arrow.Record, runs []run) (arrow.Record, error) {
	if len(runs) == 1 {
		return rec.NewSlice(runs[0].start, runs[0].end), nil
	}

	slices := make([]arrow.Record, 0, len(runs))
	defer func() {
		for _, s := range slices {
			s.Release()
		}
	}()

	var rows int64
	for _, r := range runs {
		slices = append(slices, rec.NewSlice(r.start, r.end))
		rows += r.end - r.start
	}

	columns := make([]arrow.Array, 0, rec.NumCols())
	defer func() {
		for _, c := range columns {
			c.Release()
		}
	}()

	for j := 0; j < int(rec.NumCols()); j++ {
		parts := make([]arrow.Array, 0, len(slices))
		for _, s := range slices {
			parts = append(parts, s.Column(j))
		}

		column, err := array.Concatenate(parts, mem)
		if err != nil {
			return nil, fmt.Errorf("concatenate column %s: %w", rec.ColumnName(j), err)
		}
		columns = append(columns, column)
	}

	return array.NewRecord(rec.Schema(), columns, rows), nil
}

// Release releases the records of groups.
func Release(groups []Group) {
	for _, g := range groups {
		g.Record.Release()
	}
}
