// Package schema describes nested column types and renders them as Glue/Athena
// catalog type strings.
//
// Types reach this package from two places. FromArrow walks the columnar
// engine's own nested schema, which keeps integer columns integer regardless of
// absent values. The arrayframe package infers types from a row/array based
// frame, where an integer column holding an absent value has already been
// widened to a float. Only the first source is safe for catalog registration of
// nullable integer columns.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	ErrUnsupportedType        = errors.New("unsupported type")
	ErrMissingPartitionColumn = errors.New("missing partition column")
	ErrDuplicateField         = errors.New("duplicate field")
	ErrMalformedType          = errors.New("malformed type")
)

// Type is a column type descriptor. The set of implementations is closed.
type Type interface {
	isType()
}

type (
	// Integer is a 32-bit integer, rendered as int.
	Integer struct{}
	// BigInt is a 64-bit integer, rendered as bigint.
	BigInt struct{}
	// Float is a double precision float, rendered as double.
	Float struct{}
	// String is a variable length string.
	String struct{}
	// Boolean is a boolean.
	Boolean struct{}

	// List is an ordered list of Elem.
	List struct {
		Elem Type
	}

	// Struct is a record with named fields kept in declaration order.
	Struct struct {
		Fields []Field
	}
)

type Field struct {
	Name string
	Type Type
}

// Column is a named top level type.
type Column struct {
	Name string
	Type Type
}

func (Integer) isType() {}
func (BigInt) isType()  {}
func (Float) isType()   {}
func (String) isType()  {}
func (Boolean) isType() {}
func (List) isType()    {}
func (Struct) isType()  {}

// NewStruct builds a struct type keeping the fields in the given order.
func NewStruct(fields ...Field) Struct {
	return Struct{Fields: fields}
}

// Validate checks that every struct has fields with non-empty unique names made
// of letters, digits and underscores, and that every list has an element type,
// at every nesting level.
func Validate(t Type) error {
	switch v := t.(type) {
	case Integer, BigInt, Float, String, Boolean:
		return nil
	case List:
		if v.Elem == nil {
			return fmt.Errorf("list element: %w", ErrUnsupportedType)
		}
		return Validate(v.Elem)
	case Struct:
		if len(v.Fields) == 0 {
			return fmt.Errorf("struct without fields: %w", ErrMalformedType)
		}
		seen := make(map[string]struct{}, len(v.Fields))
		for _, f := range v.Fields {
			if f.Name == "" {
				return fmt.Errorf("empty field name: %w", ErrMalformedType)
			}
			if strings.IndexFunc(f.Name, func(c rune) bool { return !isNameRune(c) }) >= 0 {
				return fmt.Errorf("field name %q: %w", f.Name, ErrMalformedType)
			}
			if _, ok := seen[f.Name]; ok {
				return fmt.Errorf("field %s: %w", f.Name, ErrDuplicateField)
			}
			seen[f.Name] = struct{}{}

			if err := Validate(f.Type); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%T: %w", t, ErrUnsupportedType)
	}
}

func isNameRune(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// Equal reports whether a and b describe the same type.
func Equal(a, b Type) bool {
	switch av := a.(type) {
	case Integer, BigInt, Float, String, Boolean:
		return a == b
	case List:
		bv, ok := b.(List)
		return ok && Equal(av.Elem, bv.Elem)
	case Struct:
		bv, ok := b.(Struct)
		if !ok || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for i := range av.Fields {
			if av.Fields[i].Name != bv.Fields[i].Name || !Equal(av.Fields[i].Type, bv.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
