// Package canon produces the canonical byte form of a value tree and the
// content hashes derived from it.
//
// Two values that are structurally equal always canonicalize to the same
// bytes: object keys are sorted, no whitespace is emitted, and numbers use
// a single minimal spelling.
package canon

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"ggloracle/internal/value"
)

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Bytes returns the canonical serialization of v.
func Bytes(v value.Value) []byte {
	var buf bytes.Buffer
	write(&buf, v)
	return buf.Bytes()
}

func write(buf *bytes.Buffer, v value.Value) {
	switch v.Kind() {
	case value.Null:
		buf.WriteString("null")
	case value.Bool:
		b, _ := v.AsBool()
		buf.WriteString(strconv.FormatBool(b))
	case value.Number:
		n, _ := v.AsNumber()
		buf.WriteString(Number(n))
	case value.String:
		s, _ := v.AsString()
		buf.WriteString(quote(s))
	case value.Array:
		items, _ := v.AsArray()
		buf.WriteByte('[')
		for i, item := range items {
			if i > 0 {
				buf.WriteByte(',')
			}
			write(buf, item)
		}
		buf.WriteByte(']')
	case value.Object:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(quote(k))
			buf.WriteByte(':')
			f, _ := v.Get(k)
			write(buf, f)
		}
		buf.WriteByte('}')
	default:
		buf.WriteString(quote(v.String()))
	}
}

// quote wraps s in double quotes. Only backslash, double quote, newline,
// carriage return and tab are escaped; all other characters pass through.
func quote(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}

// Number returns the minimal spelling of a JSON number literal. Equal
// values always share one spelling; see value.CanonicalNumber.
func Number(n json.Number) string {
	return value.CanonicalNumber(n)
}
