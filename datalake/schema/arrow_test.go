package schema_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/schema"
)

func TestFromArrow(t *testing.T) {
	testCases := []struct {
		name     string
		input    arrow.DataType
		expected string
	}{
		{name: "int32", input: arrow.PrimitiveTypes.Int32, expected: "int"},
		{name: "int64", input: arrow.PrimitiveTypes.Int64, expected: "bigint"},
		{name: "uint64", input: arrow.PrimitiveTypes.Uint64, expected: "bigint"},
		{name: "float64", input: arrow.PrimitiveTypes.Float64, expected: "double"},
		{name: "utf8", input: arrow.BinaryTypes.String, expected: "string"},
		{name: "large utf8", input: arrow.BinaryTypes.LargeString, expected: "string"},
		{name: "bool", input: arrow.FixedWidthTypes.Boolean, expected: "boolean"},
		{name: "list", input: arrow.ListOf(arrow.PrimitiveTypes.Int64), expected: "array<bigint>"},
		{name: "large list", input: arrow.LargeListOf(arrow.BinaryTypes.String), expected: "array<string>"},
		{name: "fixed size list", input: arrow.FixedSizeListOf(2, arrow.PrimitiveTypes.Int32), expected: "array<int>"},
		{
			name:     "list of list",
			input:    arrow.ListOf(arrow.ListOf(arrow.PrimitiveTypes.Int32)),
			expected: "array<array<int>>",
		},
		{
			name: "struct",
			input: arrow.StructOf(
				arrow.Field{Name: "a_int", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
				arrow.Field{Name: "a_str_list", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
				arrow.Field{Name: "a_struct", Type: arrow.StructOf(
					arrow.Field{Name: "a_str", Type: arrow.BinaryTypes.String, Nullable: true},
				), Nullable: true},
			),
			expected: "struct<a_int:bigint,a_str_list:array<string>,a_struct:struct<a_str:string>>",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			typ, err := schema.FromArrow(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, schema.MustRender(typ))
		})
	}
}

func TestFromArrowUnsupported(t *testing.T) {
	testCases := []struct {
		name  string
		input arrow.DataType
	}{
		{name: "binary", input: arrow.BinaryTypes.Binary},
		{name: "timestamp", input: arrow.FixedWidthTypes.Timestamp_us},
		{name: "map", input: arrow.MapOf(arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int64)},
		{name: "nested binary", input: arrow.ListOf(arrow.BinaryTypes.Binary)},
		{name: "struct with decimal", input: arrow.StructOf(arrow.Field{Name: "d", Type: &arrow.Decimal128Type{Precision: 10, Scale: 2}})},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := schema.FromArrow(tc.input)
			require.ErrorIs(t, err, schema.ErrUnsupportedType)
		})
	}
}

func TestFromArrowSchema(t *testing.T) {
	s := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "year", Type: arrow.BinaryTypes.String},
	}, nil)

	columns, err := schema.FromArrowSchema(s)
	require.NoError(t, err)
	require.Equal(t, []schema.Column{
		{Name: "id", Type: schema.BigInt{}},
		{Name: "year", Type: schema.String{}},
	}, columns)

	_, err = schema.FromArrowSchema(arrow.NewSchema([]arrow.Field{{Name: "b", Type: arrow.BinaryTypes.Binary}}, nil))
	require.ErrorIs(t, err, schema.ErrUnsupportedType)
}
