package schema

import (
	"fmt"
	"strings"
)

// catalog keywords for primitive types
const (
	keywordInteger = "int"
	keywordBigInt  = "bigint"
	keywordFloat   = "double"
	keywordString  = "string"
	keywordBoolean = "boolean"
)

// Render returns the catalog type string of t, e.g. array<struct<a:int,b:string>>.
// Types that fail Validate are rejected, so every rendered string parses back.
func Render(t Type) (string, error) {
	if err := Validate(t); err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := render(&sb, t); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// MustRender is Render for types known to be valid, such as literals.
func MustRender(t Type) string {
	s, err := Render(t)
	if err != nil {
		panic(err)
	}
	return s
}

func render(sb *strings.Builder, t Type) error {
	switch v := t.(type) {
	case Integer:
		sb.WriteString(keywordInteger)
	case BigInt:
		sb.WriteString(keywordBigInt)
	case Float:
		sb.WriteString(keywordFloat)
	case String:
		sb.WriteString(keywordString)
	case Boolean:
		sb.WriteString(keywordBoolean)
	case List:
		sb.WriteString("array<")
		if err := render(sb, v.Elem); err != nil {
			return fmt.Errorf("array element: %w", err)
		}
		sb.WriteByte('>')
	case Struct:
		sb.WriteString("struct<")
		for i, f := range v.Fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(f.Name)
			sb.WriteByte(':')
			if err := render(sb, f.Type); err != nil {
				return fmt.Errorf("struct field %s: %w", f.Name, err)
			}
		}
		sb.WriteByte('>')
	default:
		return fmt.Errorf("%T: %w", t, ErrUnsupportedType)
	}
	return nil
}
