package ggl

import (
	"ggloracle/internal/contract"
)

// StageTokenize names the character contract stage in errors.
const StageTokenize = "tokenize"

// CheckChars scans text one codepoint at a time against the tokenizer
// contract and reports the first violation, or nil. Per codepoint the gates
// run in a fixed order: disallowed ranges, allowed ranges, allowed regex
// (full match), disallowed regex (search). A nil gate is skipped.
func CheckChars(text string, tok *contract.Tokenizer) *Error {
	if tok.Unconstrained() {
		return nil
	}

	line, col := 1, 0
	for _, cp := range text {
		col++
		if err := checkChar(cp, tok); err != nil {
			return err.At(line, col)
		}
		if cp == '\n' {
			line++
			col = 0
		}
	}
	return nil
}

func checkChar(cp rune, tok *contract.Tokenizer) *Error {
	if tok.DisallowedRanges != nil && contract.InRanges(cp, tok.DisallowedRanges) {
		return charError(CodeDisallowedChar, "disallowed character U+%04X", cp)
	}
	if tok.AllowedRanges != nil && !contract.InRanges(cp, tok.AllowedRanges) {
		return charError(CodeOutOfRange, "character U+%04X outside allowed ranges", cp)
	}

	ch := string(cp)
	if tok.AllowedRegex != nil {
		ok, err := tok.AllowedRegex.FullMatch(ch)
		if err != nil {
			return regexError(CodeRegexMismatch, "allowed", cp, err)
		}
		if !ok {
			return charError(CodeRegexMismatch, "character U+%04X failed allowed regex", cp)
		}
	}
	if tok.DisallowedRegex != nil {
		hit, err := tok.DisallowedRegex.Search(ch)
		if err != nil {
			return regexError(CodeDisallowedRegex, "disallowed", cp, err)
		}
		if hit {
			return charError(CodeDisallowedRegex, "character U+%04X matched disallowed regex", cp)
		}
	}
	return nil
}

func charError(code, format string, cp rune) *Error {
	return stageError(StageTokenize, code, "", ErrCharContract, format, cp)
}

// regexError reports a match that could not complete (a timeout). The
// character is treated as violating the gate.
func regexError(code, gate string, cp rune, err error) *Error {
	return stageError(StageTokenize, code, DetailRegexUnavailable, ErrCharContract,
		"character U+%04X: %s regex did not complete: %v", cp, gate, err)
}
