package value

import (
	"encoding/json"
	"strconv"
	"strings"
)

// maxPlainExponent is the largest count of trailing zeros an integer is
// written out with before switching to exponent form.
const maxPlainExponent = 20

// CanonicalNumber returns the one spelling shared by every literal of the
// same numeric value. The conversion is exact; no float rounding happens.
//
// Integers are written in full unless they end in more than
// maxPlainExponent zeros. Fractions are written as plain decimals unless
// the leading digit sits more than four places after the point. Exponent
// form follows strconv's 'g' layout: 2.5e-07, 1e+400.
//
// Literals that are not JSON numbers are returned unchanged.
func CanonicalNumber(n json.Number) string {
	lit := string(n)
	if lit == "" {
		return "0"
	}
	neg, digits, exp, ok := splitNumber(lit)
	if !ok {
		return lit
	}
	if digits == "" {
		return "0"
	}

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	point := int64(len(digits)) + exp
	switch {
	case exp >= 0 && exp <= maxPlainExponent:
		sb.WriteString(digits)
		sb.WriteString(strings.Repeat("0", int(exp)))
	case exp < 0 && point-1 >= -4:
		if point <= 0 {
			sb.WriteString("0.")
			sb.WriteString(strings.Repeat("0", int(-point)))
			sb.WriteString(digits)
		} else {
			sb.WriteString(digits[:point])
			sb.WriteByte('.')
			sb.WriteString(digits[point:])
		}
	default:
		sb.WriteString(digits[:1])
		if len(digits) > 1 {
			sb.WriteByte('.')
			sb.WriteString(digits[1:])
		}
		x := point - 1
		sb.WriteByte('e')
		if x < 0 {
			sb.WriteByte('-')
			x = -x
		} else {
			sb.WriteByte('+')
		}
		if x < 10 {
			sb.WriteByte('0')
		}
		sb.WriteString(strconv.FormatInt(x, 10))
	}
	return sb.String()
}

// splitNumber decomposes a literal into sign, significant digits and a
// base-ten exponent, so the value is digits * 10^exp. digits carries no
// leading or trailing zeros and is empty for zero.
func splitNumber(lit string) (neg bool, digits string, exp int64, ok bool) {
	s := lit
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	mant := s
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mant = s[:i]
		e, err := strconv.ParseInt(s[i+1:], 10, 32)
		if err != nil {
			return false, "", 0, false
		}
		exp = e
	}

	whole, frac := mant, ""
	if i := strings.IndexByte(mant, '.'); i >= 0 {
		whole, frac = mant[:i], mant[i+1:]
		if frac == "" {
			return false, "", 0, false
		}
	}
	if whole == "" || !isDigits(whole) || !isDigits(frac) {
		return false, "", 0, false
	}

	digits = strings.TrimLeft(whole+frac, "0")
	exp -= int64(len(frac))
	trimmed := strings.TrimRight(digits, "0")
	exp += int64(len(digits) - len(trimmed))
	return neg, trimmed, exp, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
