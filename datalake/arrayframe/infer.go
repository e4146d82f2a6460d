package arrayframe

import (
	"fmt"
	"io"

	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/schema"
	"github.com/rudderlabs/rudder-datalake-lab/jsonrs"
)

// InferSchema derives the column types of df from its storage and, for generic
// series, from the values it holds. Integer and float values seen in the same
// position merge to Float. A column with no value to infer from is rejected.
func InferSchema(df *dataframe.DataFrame) ([]schema.Column, error) {
	columns := make([]schema.Column, 0, len(df.Series))
	for _, s := range df.Series {
		t, err := inferSeries(s)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", s.Name(), err)
		}
		columns = append(columns, schema.Column{Name: s.Name(), Type: t})
	}
	return columns, nil
}

func inferSeries(s dataframe.Series) (schema.Type, error) {
	switch s.(type) {
	case *dataframe.SeriesInt64:
		return schema.BigInt{}, nil
	case *dataframe.SeriesFloat64:
		return schema.Float{}, nil
	case *dataframe.SeriesString:
		return schema.String{}, nil
	case *dataframe.SeriesGeneric:
	default:
		return nil, fmt.Errorf("series type %s: %w", s.Type(), schema.ErrUnsupportedType)
	}

	var t schema.Type
	for i := 0; i < s.NRows(); i++ {
		vt, err := inferValue(s.Value(i))
		if err != nil {
			return nil, err
		}
		if t, err = merge(t, vt); err != nil {
			return nil, err
		}
	}
	if err := complete(t); err != nil {
		return nil, err
	}
	return t, nil
}

// inferValue returns nil for an absent value.
func inferValue(v any) (schema.Type, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return schema.Boolean{}, nil
	case int64:
		return schema.BigInt{}, nil
	case float64:
		return schema.Float{}, nil
	case string:
		return schema.String{}, nil
	case List:
		var elem schema.Type
		for _, e := range v.Values {
			et, err := inferValue(e)
			if err != nil {
				return nil, err
			}
			if elem, err = merge(elem, et); err != nil {
				return nil, err
			}
		}
		return schema.List{Elem: elem}, nil
	case Record:
		fields := make([]schema.Field, 0, len(v.Names))
		for i, name := range v.Names {
			ft, err := inferValue(v.Values[i])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			fields = append(fields, schema.Field{Name: name, Type: ft})
		}
		return schema.Struct{Fields: fields}, nil
	default:
		return nil, fmt.Errorf("value of type %T: %w", v, schema.ErrUnsupportedType)
	}
}

// merge combines two observations of the same position. nil stands for
// "nothing observed yet", including list elements and struct fields.
func merge(a, b schema.Type) (schema.Type, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}

	switch at := a.(type) {
	case schema.BigInt:
		switch b.(type) {
		case schema.BigInt:
			return a, nil
		case schema.Float:
			return b, nil
		}
	case schema.Float:
		switch b.(type) {
		case schema.BigInt, schema.Float:
			return a, nil
		}
	case schema.List:
		if bt, ok := b.(schema.List); ok {
			elem, err := merge(at.Elem, bt.Elem)
			if err != nil {
				return nil, err
			}
			return schema.List{Elem: elem}, nil
		}
	case schema.Struct:
		if bt, ok := b.(schema.Struct); ok {
			return mergeStruct(at, bt)
		}
	default:
		if schema.Equal(a, b) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("mixed value types %T and %T: %w", a, b, schema.ErrUnsupportedType)
}

func mergeStruct(a, b schema.Struct) (schema.Type, error) {
	fields := make([]schema.Field, len(a.Fields))
	copy(fields, a.Fields)

	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.Name] = i
	}
	for _, f := range b.Fields {
		i, ok := index[f.Name]
		if !ok {
			index[f.Name] = len(fields)
			fields = append(fields, f)
			continue
		}
		t, err := merge(fields[i].Type, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		fields[i].Type = t
	}
	return schema.Struct{Fields: fields}, nil
}

// complete reports positions no value could be inferred for.
func complete(t schema.Type) error {
	switch t := t.(type) {
	case nil:
		return fmt.Errorf("no values to infer a type from: %w", schema.ErrUnsupportedType)
	case schema.List:
		if err := complete(t.Elem); err != nil {
			return fmt.Errorf("array element: %w", err)
		}
	case schema.Struct:
		for _, f := range t.Fields {
			if err := complete(f.Type); err != nil {
				return fmt.Errorf("struct field %s: %w", f.Name, err)
			}
		}
	}
	return nil
}

// WriteNDJSON writes df as one JSON object per row. Float values are written
// with a fractional part and NaN is written as null.
func WriteNDJSON(w io.Writer, df *dataframe.DataFrame) error {
	names := make([]string, 0, len(df.Series))
	for _, s := range df.Series {
		names = append(names, s.Name())
	}

	enc := jsonrs.NewEncoder(w)
	for row := 0; row < df.NRows(); row++ {
		r := Record{Names: names, Values: make([]any, 0, len(df.Series))}
		for _, s := range df.Series {
			r.Values = append(r.Values, s.Value(row))
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	return nil
}

// Widened lists the columns whose frame type differs from the columnar one,
// in columnar order.
func Widened(columnar, frame []schema.Column) []string {
	types := make(map[string]schema.Type, len(frame))
	for _, c := range frame {
		types[c.Name] = c.Type
	}

	var widened []string
	for _, c := range columnar {
		t, ok := types[c.Name]
		if ok && !schema.Equal(c.Type, t) {
			widened = append(widened, c.Name)
		}
	}
	return widened
}
