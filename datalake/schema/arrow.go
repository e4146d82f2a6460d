package schema

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// FromArrow converts an arrow data type into a Type. Nested lists and structs
// are walked recursively; maps, binaries, decimals, temporal and dictionary
// types are rejected with ErrUnsupportedType.
func FromArrow(dt arrow.DataType) (Type, error) {
	switch v := dt.(type) {
	case *arrow.Int8Type, *arrow.Int16Type, *arrow.Int32Type, *arrow.Uint8Type, *arrow.Uint16Type:
		return Integer{}, nil
	case *arrow.Int64Type, *arrow.Uint32Type, *arrow.Uint64Type:
		return BigInt{}, nil
	case *arrow.Float16Type, *arrow.Float32Type, *arrow.Float64Type:
		return Float{}, nil
	case *arrow.StringType, *arrow.LargeStringType:
		return String{}, nil
	case *arrow.BooleanType:
		return Boolean{}, nil
	case *arrow.MapType:
		return nil, fmt.Errorf("%s: %w", dt, ErrUnsupportedType)
	case arrow.ListLikeType:
		elem, err := FromArrow(v.Elem())
		if err != nil {
			return nil, fmt.Errorf("list element: %w", err)
		}
		return List{Elem: elem}, nil
	case *arrow.StructType:
		fields := make([]Field, 0, v.NumFields())
		for _, f := range v.Fields() {
			t, err := FromArrow(f.Type)
			if err != nil {
				return nil, fmt.Errorf("struct field %s: %w", f.Name, err)
			}
			fields = append(fields, Field{Name: f.Name, Type: t})
		}
		return Struct{Fields: fields}, nil
	default:
		return nil, fmt.Errorf("%s: %w", dt, ErrUnsupportedType)
	}
}

// FromArrowSchema converts every field of s into a Column, keeping field order.
func FromArrowSchema(s *arrow.Schema) ([]Column, error) {
	columns := make([]Column, 0, s.NumFields())
	for _, f := range s.Fields() {
		t, err := FromArrow(f.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", f.Name, err)
		}
		columns = append(columns, Column{Name: f.Name, Type: t})
	}
	return columns, nil
}
