package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"wpinsight/internal/registry"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	default:
		return "null"
	}
}

// Value is a scalar event property: string, number, boolean or null.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

func Null() Value             { return Value{} }
func String(s string) Value   { return Value{kind: KindString, str: s} }
func Number(f float64) Value  { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) Str() string   { return v.str }
func (v Value) Num() float64  { return v.num }
func (v Value) Boolean() bool { return v.b }

// FromAny converts a decoded JSON value. Nested objects and arrays are kept as
// their JSON text.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return String(fmt.Sprint(t))
		}
		return String(string(data))
	}
}

// Interface returns the Go value: nil, string, float64 or bool.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// Text renders the value for use as a dimension value.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return err
	}
	*v = FromAny(x)
	return nil
}

// Coerce converts v to the declared property type where that is safe. The
// second result is false when v cannot be represented as t; v is then
// returned unchanged. Null is never coerced.
func (v Value) Coerce(t registry.PropertyType) (Value, bool) {
	if v.kind == KindNull {
		return v, true
	}
	switch t {
	case registry.TypeNumber:
		switch v.kind {
		case KindNumber:
			return v, true
		case KindString:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return v, false
			}
			return Number(f), true
		case KindBool:
			if v.b {
				return Number(1), true
			}
			return Number(0), true
		}
	case registry.TypeBoolean:
		switch v.kind {
		case KindBool:
			return v, true
		case KindNumber:
			return Bool(v.num != 0), true
		case KindString:
			switch strings.ToLower(strings.TrimSpace(v.str)) {
			case "true", "1", "yes":
				return Bool(true), true
			case "false", "0", "no":
				return Bool(false), true
			}
			return v, false
		}
	case registry.TypeString:
		if v.kind == KindString {
			return v, true
		}
		return String(v.Text()), true
	}
	return v, false
}

// Properties are the scalar properties of an event.
type Properties map[string]Value

// PropertiesFromMap converts decoded JSON properties.
func PropertiesFromMap(m map[string]any) Properties {
	props := make(Properties, len(m))
	for k, x := range m {
		props[k] = FromAny(x)
	}
	return props
}

// ParseProperties decodes a JSON object of properties. Empty input yields no properties.
func ParseProperties(data []byte) (Properties, error) {
	props := Properties{}
	if len(bytes.TrimSpace(data)) == 0 {
		return props, nil
	}
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("invalid properties: %w", err)
	}
	return props, nil
}

// Get returns the property text, or "" when absent or null.
func (p Properties) Get(key string) string {
	return p[key].Text()
}

// First returns the text of the first non-empty property among keys.
func (p Properties) First(keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(p.Get(k)); s != "" {
			return s
		}
	}
	return ""
}
