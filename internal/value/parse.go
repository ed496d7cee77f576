package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
)

var (
	// ErrDuplicateKey is returned when an object repeats a field name.
	ErrDuplicateKey = errors.New("duplicate object key")
	// ErrTrailingData is returned when input continues after the first document.
	ErrTrailingData = errors.New("trailing data after JSON document")
)

// Parse decodes a single JSON document. Numbers keep their literal text.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("parse json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = ErrTrailingData
		}
		return Value{}, fmt.Errorf("parse json: %w", err)
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return Value{}, io.ErrUnexpectedEOF
		}
		return Value{}, err
	}
	return decodeFrom(dec, tok)
}

func decodeFrom(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return NumberValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: Array, arr: items}, nil
		case '{':
			fields := make(map[string]Value)
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T, want string", kt)
				}
				if _, dup := fields[key]; dup {
					return Value{}, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
				}
				fv, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				fields[key] = fv
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: Object, obj: fields}, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// FromGo converts plain Go data (nil, bool, numbers, string, []any,
// map[string]any, json.Number, Value) into a Value.
func FromGo(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		return NumberValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case float32:
		return fromFloat(float64(t))
	case float64:
		return fromFloat(t)
	case []any:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			iv, err := FromGo(e)
			if err != nil {
				return Value{}, err
			}
			items = append(items, iv)
		}
		return Value{kind: Array, arr: items}, nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fv, err := FromGo(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			fields[k] = fv
		}
		return Value{kind: Object, obj: fields}, nil
	}
	return Value{}, fmt.Errorf("value: unsupported Go type %s", reflect.TypeOf(x))
}

// MustFromGo is FromGo for literals known to be valid; it panics otherwise.
func MustFromGo(x any) Value {
	v, err := FromGo(x)
	if err != nil {
		panic(err)
	}
	return v
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("value: non-finite number %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return IntValue(int64(f)), nil
	}
	return FloatValue(f), nil
}
