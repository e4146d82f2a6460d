package schema

import (
	"fmt"
	"strings"
	"unicode"
)

var primitives = map[string]Type{
	keywordInteger: Integer{},
	"integer":      Integer{},
	keywordBigInt:  BigInt{},
	keywordFloat:   Float{},
	"float":        Float{},
	keywordString:  String{},
	keywordBoolean: Boolean{},
}

// Parse reads a catalog type string back into a Type.
func Parse(s string) (Type, error) {
	p := &parser{input: s}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.done() {
		return nil, p.errorf("unexpected trailing input %q", s[p.pos:])
	}
	return t, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) done() bool {
	return p.pos >= len(p.input)
}

func (p *parser) skipSpace() {
	for !p.done() && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("position %d: %s: %w", p.pos, fmt.Sprintf(format, args...), ErrMalformedType)
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.done() || p.input[p.pos] != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

// ident reads a keyword or a field name.
func (p *parser) ident() string {
	p.skipSpace()
	start := p.pos
	for !p.done() {
		if !isNameRune(rune(p.input[p.pos])) {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *parser) parseType() (Type, error) {
	word := p.ident()
	if word == "" {
		return nil, p.errorf("expected type")
	}

	switch strings.ToLower(word) {
	case "array":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		return List{Elem: elem}, nil
	case "struct":
		return p.parseStruct()
	}

	if t, ok := primitives[strings.ToLower(word)]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%s: %w", word, ErrUnsupportedType)
}

func (p *parser) parseStruct() (Type, error) {
	if err := p.expect('<'); err != nil {
		return nil, err
	}

	var fields []Field
	for {
		name := p.ident()
		if name == "" {
			return nil, p.errorf("expected field name")
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		t, err := p.parseType()
		if err != nil {
			return nil, fmt.Errorf("struct field %s: %w", name, err)
		}
		fields = append(fields, Field{Name: name, Type: t})

		p.skipSpace()
		if p.done() {
			return nil, p.errorf("unterminated struct")
		}
		if p.input[p.pos] == ',' {
			p.pos++
			continue
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		break
	}

	st := Struct{Fields: fields}
	if err := Validate(st); err != nil {
		return nil, err
	}
	return st, nil
}
