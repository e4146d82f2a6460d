package arrayframe

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/rudderlabs/rudder-datalake-lab/jsonrs"
)

// Record is a struct value with its fields in declaration order.
type Record struct {
	Names  []string
	Values []any
}

// List is an array value. Generic series only hold scalar or struct cells, so
// array cells are wrapped.
type List struct {
	Values []any
}

// Get returns the value of the named field.
func (r Record) Get(name string) (any, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i], true
		}
	}
	return nil, false
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.Names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := jsonrs.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := jsonrs.Marshal(jsonValue(r.Values[i]))
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// jsonValue maps a frame value to what gets written out: NaN becomes null and
// integral floats keep a fractional part so that widened integers stay visible.
func jsonValue(v any) any {
	switch v := v.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return json.Number(strconv.FormatFloat(v, 'f', 1, 64))
		}
		return v
	case List:
		out := make([]any, len(v.Values))
		for i := range v.Values {
			out[i] = jsonValue(v.Values[i])
		}
		return out
	default:
		return v
	}
}
