package jsonrs

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

// jsoniterJSON is backed by github.com/json-iterator/go. Numbers decode as
// json.Number so that 1 and 1.0 stay distinguishable when reading back
// datasets, and map keys are sorted for stable output.
type jsoniterJSON struct {
	api jsoniter.API
}

func newJsoniter() *jsoniterJSON {
	return &jsoniterJSON{api: jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		UseNumber:              true,
	}.Froze()}
}

func (j *jsoniterJSON) Marshal(v any) ([]byte, error) {
	return j.api.Marshal(v)
}

func (j *jsoniterJSON) MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return j.api.MarshalIndent(v, prefix, indent)
}

func (j *jsoniterJSON) Unmarshal(data []byte, v any) error {
	return j.api.Unmarshal(data, v)
}

func (j *jsoniterJSON) MarshalToString(v any) (string, error) {
	return j.api.MarshalToString(v)
}

func (j *jsoniterJSON) NewDecoder(r io.Reader) Decoder {
	return j.api.NewDecoder(r)
}

func (j *jsoniterJSON) NewEncoder(w io.Writer) Encoder {
	return j.api.NewEncoder(w)
}
