package ggl

import (
	"strings"
	"unicode/utf8"

	"ggloracle/internal/contract"
)

// StageLegal names the legality stage in errors.
const StageLegal = "legal"

// CheckLegality validates an AST against the grammar contract: the type
// must match ast_type, the body must be non-blank, and the body length in
// codepoints must not exceed max_length when one is set.
func CheckLegality(ast *AST, gr *contract.Grammar) error {
	if ast == nil {
		return stageError(StageLegal, CodeLegal, DetailMissingAST, ErrMissingAST, "missing AST")
	}

	expected := astType(gr)
	if ast.Type != expected {
		got := ast.Type
		if got == "" {
			got = "<none>"
		}
		return stageError(StageLegal, CodeLegal, DetailLegalASTType, ErrTypeMismatch,
			"expected ast type %s, got %s", expected, got)
	}

	if strings.TrimSpace(ast.Body) == "" {
		return stageError(StageLegal, CodeLegal, DetailLegalEmpty, ErrBodyMissingOrEmpty,
			"GGL body missing or empty")
	}

	if gr != nil && gr.MaxLength != nil {
		if n := utf8.RuneCountInString(ast.Body); n > *gr.MaxLength {
			return stageError(StageLegal, CodeLegal, DetailLegalMaxLength, ErrBodyTooLong,
				"GGL body length %d exceeds %d", n, *gr.MaxLength)
		}
	}
	return nil
}
