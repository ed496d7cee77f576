// Package value implements the JSON-like value tree that contract documents,
// ASTs and IR documents are expressed in.
// A Value is one of six kinds and is immutable once built.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the variants of a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a closed sum over null, bool, number, string, array and object.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  json.Number
	str  string
	arr  []Value
	obj  map[string]Value
}

// NullValue returns the null value.
func NullValue() Value { return Value{} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: String, str: s} }

// NumberValue wraps a JSON number literal. The literal is not validated.
func NumberValue(n json.Number) Value { return Value{kind: Number, num: n} }

// IntValue wraps an integer.
func IntValue(i int64) Value {
	return Value{kind: Number, num: json.Number(strconv.FormatInt(i, 10))}
}

// FloatValue wraps a float using its shortest round-trip form.
func FloatValue(f float64) Value {
	return Value{kind: Number, num: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// ArrayValue wraps a sequence. The slice is copied.
func ArrayValue(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: Array, arr: cp}
}

// ObjectValue wraps a mapping. The map is copied.
func ObjectValue(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: Object, obj: cp}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == Null }

// IsObject reports whether v is an object.
func (v Value) IsObject() bool { return v.kind == Object }

// AsBool returns the bool and whether v is a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == Bool }

// AsString returns the string and whether v is a String.
func (v Value) AsString() (string, bool) { return v.str, v.kind == String }

// AsNumber returns the number literal and whether v is a Number.
func (v Value) AsNumber() (json.Number, bool) { return v.num, v.kind == Number }

// AsArray returns the elements and whether v is an Array.
// Callers must not modify the returned slice.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == Array }

// Len is the number of elements of an Array or fields of an Object, else 0.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.obj)
	}
	return 0
}

// Get returns the field named key of an Object.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	f, ok := v.obj[key]
	return f, ok
}

// Keys returns the field names of an Object sorted in byte order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsInt returns the number as an int when it is integral and fits.
func (v Value) AsInt() (int, bool) {
	if v.kind != Number {
		return 0, false
	}
	r, ok := new(big.Rat).SetString(string(v.num))
	if !ok || !r.IsInt() || !r.Num().IsInt64() {
		return 0, false
	}
	i := r.Num().Int64()
	if int64(int(i)) != i {
		return 0, false
	}
	return int(i), true
}

// Equal reports structural equality. Numbers compare by numeric value,
// exactly as CanonicalNumber spells them.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == o.b
	case String:
		return v.str == o.str
	case Number:
		return CanonicalNumber(v.num) == CanonicalNumber(o.num)
	case Array:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, fv := range v.obj {
			ov, ok := o.obj[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v as compact JSON for diagnostics.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(b)
}

// MarshalJSON renders standard JSON with object keys in sorted order.
func (v Value) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	if err := v.writeJSON(&sb); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func (v Value) writeJSON(sb *strings.Builder) error {
	switch v.kind {
	case Null:
		sb.WriteString("null")
	case Bool:
		sb.WriteString(strconv.FormatBool(v.b))
	case Number:
		if v.num == "" {
			sb.WriteString("0")
			return nil
		}
		sb.WriteString(string(v.num))
	case String:
		b, err := encodeString(v.str)
		if err != nil {
			return err
		}
		sb.Write(b)
	case Array:
		sb.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := item.writeJSON(sb); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case Object:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, err := encodeString(k)
			if err != nil {
				return err
			}
			sb.Write(kb)
			sb.WriteByte(':')
			if err := v.obj[k].writeJSON(sb); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	default:
		return fmt.Errorf("value: unknown kind %d", int(v.kind))
	}
	return nil
}

// encodeString quotes s as a JSON string without HTML escaping.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON parses standard JSON into v, rejecting duplicate keys.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
