package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FromJSON decodes JSON bytes into a Value, preserving the distinction
// between integer-looking and float-looking number literals (ForceFloat)
// by decoding numbers as json.Number and inspecting their raw text for a
// '.' or exponent marker.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("jyro: invalid JSON: %w", err)
	}
	return fromInterface(raw), nil
}

func fromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return NullValue
	case bool:
		return Boolean(t)
	case json.Number:
		s := string(t)
		forceFloat := strings.ContainsAny(s, ".eE")
		f, _ := t.Float64()
		return Number{Value: f, ForceFloat: forceFloat}
	case string:
		return String(t)
	case []interface{}:
		elems := make([]Value, len(t))
		for i, e := range t {
			elems[i] = fromInterface(e)
		}
		return &Array{Elements: elems}
	case map[string]interface{}:
		obj := NewObject()
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys) // stable order: input JSON object key order isn't
		// preserved by encoding/json's map decode, so we fall back to a
		// deterministic lexical order rather than an arbitrary map order.
		for _, k := range keys {
			obj.SetPropertyLiteral(k, fromInterface(t[k]))
		}
		return obj
	default:
		return NullValue
	}
}

// ToJSON encodes a Value back to JSON bytes, rendering Numbers with or
// without a decimal point per their ForceFloat flag and Function values as
// the literal string "<function>".
func ToJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch t := v.(type) {
	case Null:
		buf.WriteString("null")
	case Boolean:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(formatJSONNumber(t))
	case String:
		b, err := json.Marshal(string(t))
		if err != nil {
			return err
		}
		buf.Write(b)
	case *Array:
		buf.WriteByte('[')
		for i, e := range t.Elements {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Object:
		buf.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeJSON(buf, t.values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case Function:
		buf.WriteString(`"<function>"`)
	default:
		buf.WriteString("null")
	}
	return nil
}

func formatJSONNumber(n Number) string {
	if !n.ForceFloat && n.Value == float64(int64(n.Value)) {
		return strconv.FormatInt(int64(n.Value), 10)
	}
	s := strconv.FormatFloat(n.Value, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
