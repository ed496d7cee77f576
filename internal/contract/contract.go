// Package contract loads the tokenizer and grammar contracts that
// parameterize every verification stage, and derives the ABI hash that
// binds the pair into one content identity.
package contract

import (
	"errors"
	"fmt"
	"time"
	"unicode"

	"ggloracle/internal/value"

	"github.com/dlclark/regexp2"
)

// Defaults applied when a grammar contract omits a field.
const (
	DefaultASTType     = "ggl.program.v1"
	DefaultLoweredType = "scene.ir.v1"
)

// Contract field names.
const (
	FieldAllowedRanges      = "allowed_unicode_ranges"
	FieldDisallowedRanges   = "disallowed_unicode_ranges"
	FieldAllowedRegex       = "allowed_char_regex"
	FieldDisallowedRegex    = "disallowed_char_regex"
	FieldASTType            = "ast_type"
	FieldMaxLength          = "max_length"
	FieldLoweredType        = "lowered_type"
	FieldLoweringContractID = "lowering_contract_id"
)

// MatchTimeout bounds a single character-pattern match.
var MatchTimeout = time.Second

// ErrMalformedContract is returned when a contract field has the wrong shape.
var ErrMalformedContract = errors.New("malformed contract")

// Range is an inclusive codepoint interval.
type Range struct {
	Lo rune
	Hi rune
}

// Contains reports whether cp lies in [Lo, Hi].
func (r Range) Contains(cp rune) bool { return cp >= r.Lo && cp <= r.Hi }

// InRanges reports whether cp lies in any of ranges.
func InRanges(cp rune, ranges []Range) bool {
	for _, r := range ranges {
		if r.Contains(cp) {
			return true
		}
	}
	return false
}

// CharPattern is a compiled single-character pattern from a tokenizer contract.
type CharPattern struct {
	Source string
	full   *regexp2.Regexp
	search *regexp2.Regexp
}

// CompileCharPattern compiles src for both full-match and search use.
func CompileCharPattern(src string) (*CharPattern, error) {
	search, err := regexp2.Compile(src, regexp2.None)
	if err != nil {
		return nil, err
	}
	full, err := regexp2.Compile(`\A(?:`+src+`)\z`, regexp2.None)
	if err != nil {
		return nil, err
	}
	search.MatchTimeout = MatchTimeout
	full.MatchTimeout = MatchTimeout
	return &CharPattern{Source: src, full: full, search: search}, nil
}

// FullMatch reports whether the whole of s matches the pattern.
func (p *CharPattern) FullMatch(s string) (bool, error) { return p.full.MatchString(s) }

// Search reports whether the pattern matches anywhere in s.
func (p *CharPattern) Search(s string) (bool, error) { return p.search.MatchString(s) }

// Tokenizer is the character contract. A nil field disables its gate.
type Tokenizer struct {
	AllowedRanges    []Range
	DisallowedRanges []Range
	AllowedRegex     *CharPattern
	DisallowedRegex  *CharPattern
}

// Unconstrained reports whether no gate is configured.
func (t *Tokenizer) Unconstrained() bool {
	return t == nil || (t.AllowedRanges == nil && t.DisallowedRanges == nil &&
		t.AllowedRegex == nil && t.DisallowedRegex == nil)
}

// Grammar is the structural contract for parsing, legality and lowering.
type Grammar struct {
	ASTType            string
	MaxLength          *int
	LoweredType        string
	LoweringContractID *string
}

// DefaultGrammar returns a grammar with every field at its default.
func DefaultGrammar() *Grammar {
	return &Grammar{ASTType: DefaultASTType, LoweredType: DefaultLoweredType}
}

// DecodeTokenizer builds a Tokenizer from a contract document.
// A document that is not an object imposes no constraints.
func DecodeTokenizer(doc value.Value) (*Tokenizer, error) {
	t := &Tokenizer{}
	if !doc.IsObject() {
		return t, nil
	}

	var err error
	if t.AllowedRanges, err = decodeRanges(doc, FieldAllowedRanges); err != nil {
		return nil, err
	}
	if t.DisallowedRanges, err = decodeRanges(doc, FieldDisallowedRanges); err != nil {
		return nil, err
	}
	if t.AllowedRegex, err = decodePattern(doc, FieldAllowedRegex); err != nil {
		return nil, err
	}
	if t.DisallowedRegex, err = decodePattern(doc, FieldDisallowedRegex); err != nil {
		return nil, err
	}
	return t, nil
}

// DecodeGrammar builds a Grammar from a contract document.
// A document that is not an object yields the default grammar.
func DecodeGrammar(doc value.Value) (*Grammar, error) {
	g := DefaultGrammar()
	if !doc.IsObject() {
		return g, nil
	}

	if s, ok, err := optionalString(doc, FieldASTType); err != nil {
		return nil, err
	} else if ok {
		g.ASTType = s
	}
	if s, ok, err := optionalString(doc, FieldLoweredType); err != nil {
		return nil, err
	} else if ok {
		g.LoweredType = s
	}
	if s, ok, err := optionalString(doc, FieldLoweringContractID); err != nil {
		return nil, err
	} else if ok {
		g.LoweringContractID = &s
	}

	if f, ok := present(doc, FieldMaxLength); ok {
		n, isInt := f.AsInt()
		if !isInt {
			return nil, fmt.Errorf("%w: %s must be an integer, got %s", ErrMalformedContract, FieldMaxLength, f)
		}
		g.MaxLength = &n
	}
	return g, nil
}

// present returns a field unless it is missing or null.
func present(doc value.Value, key string) (value.Value, bool) {
	f, ok := doc.Get(key)
	if !ok || f.IsNull() {
		return value.Value{}, false
	}
	return f, true
}

func optionalString(doc value.Value, key string) (string, bool, error) {
	f, ok := present(doc, key)
	if !ok {
		return "", false, nil
	}
	s, isStr := f.AsString()
	if !isStr {
		return "", false, fmt.Errorf("%w: %s must be a string, got %s", ErrMalformedContract, key, f.Kind())
	}
	return s, true, nil
}

func decodePattern(doc value.Value, key string) (*CharPattern, error) {
	src, ok, err := optionalString(doc, key)
	if err != nil || !ok {
		return nil, err
	}
	p, err := CompileCharPattern(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedContract, key, err)
	}
	return p, nil
}

func decodeRanges(doc value.Value, key string) ([]Range, error) {
	f, ok := present(doc, key)
	if !ok {
		return nil, nil
	}
	pairs, isArr := f.AsArray()
	if !isArr {
		return nil, fmt.Errorf("%w: %s must be an array, got %s", ErrMalformedContract, key, f.Kind())
	}

	out := make([]Range, 0, len(pairs))
	for i, p := range pairs {
		bounds, isArr := p.AsArray()
		if !isArr || len(bounds) != 2 {
			return nil, fmt.Errorf("%w: %s[%d] must be a [start,end] pair", ErrMalformedContract, key, i)
		}
		lo, okLo := bounds[0].AsInt()
		hi, okHi := bounds[1].AsInt()
		if !okLo || !okHi || lo < 0 || hi < lo {
			return nil, fmt.Errorf("%w: %s[%d] bounds %s are not an ascending codepoint pair", ErrMalformedContract, key, i, p)
		}
		if lo > unicode.MaxRune {
			continue // cannot match any codepoint
		}
		if hi > unicode.MaxRune {
			hi = unicode.MaxRune
		}
		out = append(out, Range{Lo: rune(lo), Hi: rune(hi)})
	}
	return out, nil
}
