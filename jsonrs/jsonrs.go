// Package jsonrs is the JSON facade used across the module. Callers never import
// a JSON library directly so the implementation can be swapped in one place.
package jsonrs

import "io"

// JSON is the set of operations a JSON implementation needs to provide.
type JSON interface {
	Marshal(v any) ([]byte, error)
	MarshalIndent(v any, prefix, indent string) ([]byte, error)
	Unmarshal(data []byte, v any) error
	MarshalToString(v any) (string, error)
	NewDecoder(r io.Reader) Decoder
	NewEncoder(w io.Writer) Encoder
}

// Decoder reads JSON values from a stream.
type Decoder interface {
	Decode(v any) error
	More() bool
	UseNumber()
}

// Encoder writes JSON values to a stream, one value per line.
type Encoder interface {
	Encode(v any) error
	SetEscapeHTML(on bool)
}

var Default JSON = newJsoniter()

func Marshal(v any) ([]byte, error) {
	return Default.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return Default.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return Default.Unmarshal(data, v)
}

func MarshalToString(v any) (string, error) {
	return Default.MarshalToString(v)
}

func NewDecoder(r io.Reader) Decoder {
	return Default.NewDecoder(r)
}

func NewEncoder(w io.Writer) Encoder {
	return Default.NewEncoder(w)
}
