package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

type Kind int

const (
	Numeric Kind = iota
	Categorical
)

// Value is one request attribute. Numeric values feed the matching schema
// column directly; categorical values become a `<field>_<value>` indicator.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

func Number(v float64) Value  { return Value{Kind: Numeric, Num: v} }
func Category(s string) Value { return Value{Kind: Categorical, Str: s} }

var (
	ErrUnsupportedValue = errors.New("unsupported value")
	ErrTrailingData     = errors.New("unexpected data after attribute object")
)

// Record is a flat attribute name -> value object for one observation.
type Record map[string]Value

// DecodeRecord reads a flat JSON object. Numbers and numeric strings are
// numeric, other strings are categorical, booleans are 1/0 and nulls are
// treated as absent. Nested objects and arrays are rejected.
func DecodeRecord(r io.Reader) (Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return Record{}, nil
		}
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	rec := make(Record, len(raw))
	for name, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case json.Number:
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			rec[name] = Number(f)
		case string:
			rec[name] = parseString(val)
		case bool:
			if val {
				rec[name] = Number(1)
			} else {
				rec[name] = Number(0)
			}
		default:
			return nil, fmt.Errorf("attribute %q: %w of type %T", name, ErrUnsupportedValue, v)
		}
	}
	return rec, nil
}

// Form inputs arrive as strings, so numeric text is treated as a number.
func parseString(s string) Value {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Number(f)
	}
	return Category(s)
}

// Encode one-hot encodes the categorical values of rec. Numeric values keep
// their field name.
func Encode(rec Record) map[string]float32 {
	out := make(map[string]float32, len(rec))
	for name, v := range rec {
		switch v.Kind {
		case Categorical:
			out[name+"_"+v.Str] = 1
		default:
			out[name] = float32(v.Num)
		}
	}
	return out
}

// Columns returns the encoded column names of rec, sorted.
func (rec Record) Columns() []string {
	encoded := Encode(rec)
	cols := make([]string, 0, len(encoded))
	for col := range encoded {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}
