// Package dataset builds the nested sample records used by the lab and splits
// records by a partition column.
package dataset

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/iancoleman/strcase"

	"github.com/rudderlabs/rudder-datalake-lab/jsonrs"
)

// Naming selects how the sample columns and struct fields are spelled.
type Naming string

const (
	SnakeCase Naming = "snake"
	CamelCase Naming = "camel"
)

// ParseNaming returns the Naming for s, defaulting to SnakeCase when s is empty.
func ParseNaming(s string) (Naming, error) {
	switch Naming(strings.ToLower(s)) {
	case "", SnakeCase:
		return SnakeCase, nil
	case CamelCase:
		return CamelCase, nil
	default:
		return "", fmt.Errorf("unknown naming %q", s)
	}
}

// Name spells a snake case name according to n.
func (n Naming) Name(snake string) string {
	if n == CamelCase {
		return strcase.ToLowerCamel(snake)
	}
	return snake
}

// PartitionKey is the column the sample is partitioned by.
const PartitionKey = "year"

func (n Naming) leafFields() []arrow.Field {
	return []arrow.Field{
		{Name: n.Name("a_int"), Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: n.Name("a_str"), Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: n.Name("a_int_list"), Type: arrow.ListOf(arrow.PrimitiveTypes.Int64), Nullable: true},
		{Name: n.Name("a_str_list"), Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
	}
}

// Schema returns the arrow schema of the sample dataset.
func Schema(n Naming) *arrow.Schema {
	inner := arrow.StructOf(n.leafFields()...)
	outer := arrow.StructOf(append(n.leafFields(), arrow.Field{Name: n.Name("a_struct"), Type: inner, Nullable: true})...)

	return arrow.NewSchema([]arrow.Field{
		{Name: n.Name("id"), Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: n.Name(PartitionKey), Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: n.Name("a_int"), Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: n.Name("a_str"), Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: n.Name("a_int_list"), Type: arrow.ListOf(arrow.PrimitiveTypes.Int64), Nullable: true},
		{Name: n.Name("a_str_list"), Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
		{Name: n.Name("a_list_of_int_list"), Type: arrow.ListOf(arrow.ListOf(arrow.PrimitiveTypes.Int64)), Nullable: true},
		{Name: n.Name("a_list_of_str_list"), Type: arrow.ListOf(arrow.ListOf(arrow.BinaryTypes.String)), Nullable: true},
		{Name: n.Name("a_list_of_struct"), Type: arrow.ListOf(inner), Nullable: true},
		{Name: n.Name("a_struct"), Type: outer, Nullable: true},
	}, nil)
}

// sampleRows are two rows exercising nested lists, nested structs and absent
// values at every level. The second row leaves a_int empty, which is what
// makes the integer column widen on the way into a row/array based frame.
var sampleRows = []map[string]any{
	{
		"id":                 1,
		"year":               "2001",
		"a_int":              1,
		"a_str":              "alice",
		"a_int_list":         []any{1, 2, 3},
		"a_str_list":         []any{"a", "b", "c"},
		"a_list_of_int_list": []any{[]any{1, 2, 3}, []any{4, 5, 6}},
		"a_list_of_str_list": []any{[]any{"a", "b", "c"}, []any{"d", "e", "f"}},
		"a_list_of_struct": []any{
			map[string]any{"a_int": 1, "a_str": "hello", "a_int_list": []any{1, 2, 3}, "a_str_list": []any{"a", "b", "c"}},
			map[string]any{"a_int": 2, "a_str": "world", "a_int_list": []any{1, 2, 3}, "a_str_list": []any{"a", "b", "c"}},
		},
		"a_struct": map[string]any{
			"a_int":      1,
			"a_str":      "hello",
			"a_int_list": []any{1, 2, 3},
			"a_str_list": []any{"a", "b", "c"},
			"a_struct": map[string]any{
				"a_int": 1, "a_str": "hello", "a_int_list": []any{1, 2, 3}, "a_str_list": []any{"a", "b", "c"},
			},
		},
	},
	{
		"id":                 2,
		"year":               "2002",
		"a_int":              nil,
		"a_str":              "bob",
		"a_int_list":         []any{1, nil, 3},
		"a_str_list":         nil,
		"a_list_of_int_list": []any{[]any{1, nil, 3}, nil},
		"a_list_of_str_list": []any{[]any{"a", nil, "c"}, nil},
		"a_list_of_struct": []any{
			map[string]any{"a_int": nil, "a_str": "hello", "a_int_list": []any{1, nil, 3}, "a_str_list": []any{"a", nil, "c"}},
			map[string]any{"a_int": 2, "a_str": nil, "a_int_list": []any{1, nil, 3}, "a_str_list": []any{"a", nil, "c"}},
		},
		"a_struct": map[string]any{
			"a_int":      1,
			"a_str":      nil,
			"a_int_list": []any{1, nil, 3},
			"a_str_list": nil,
			"a_struct": map[string]any{
				"a_int": 1, "a_str": nil, "a_int_list": []any{1, nil, 3}, "a_str_list": nil,
			},
		},
	},
}

// Sample builds the sample record. The caller owns the record and must release it.
func Sample(mem memory.Allocator, n Naming) (arrow.Record, error) {
	rows := make([]any, 0, len(sampleRows))
	for _, row := range sampleRows {
		rows = append(rows, rename(row, n))
	}
	return FromRows(mem, Schema(n), rows)
}

// FromRows builds a record from JSON compatible rows matching s.
func FromRows(mem memory.Allocator, s *arrow.Schema, rows []any) (arrow.Record, error) {
	payload, err := jsonrs.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal rows: %w", err)
	}

	rec, _, err := array.RecordFromJSON(mem, s, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("record from json: %w", err)
	}
	return rec, nil
}

func rename(v any, n Naming) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[n.Name(k)] = rename(item, n)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = rename(item, n)
		}
		return out
	default:
		return v
	}
}
