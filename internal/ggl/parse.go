package ggl

import (
	"strings"

	"ggloracle/internal/contract"
	"ggloracle/internal/value"
)

// StageParse names the parse stage in errors.
const StageParse = "parse"

// AST is the minimal program tree: a type discriminator and the payload body.
type AST struct {
	Type string
	Body string
}

// Parse wraps a non-blank payload in an AST of the grammar's ast_type.
// Grammar-driven parsing of the body is left to later contract versions.
func Parse(text string, gr *contract.Grammar) (*AST, error) {
	if strings.TrimSpace(text) == "" {
		return nil, stageError(StageParse, CodeParse, DetailParseEmpty, ErrEmptyPayload,
			"empty GGL payload").At(1, 1)
	}
	return &AST{Type: astType(gr), Body: text}, nil
}

// DecodeAST builds an AST from a generic {type, body} document, as supplied
// by callers that parse elsewhere. A missing or non-string field decodes as
// the empty string and is rejected by CheckLegality.
func DecodeAST(doc value.Value) (*AST, error) {
	if !doc.IsObject() {
		return nil, stageError(StageLegal, CodeLegal, DetailMissingAST, ErrMissingAST, "missing AST")
	}
	ast := &AST{}
	if f, ok := doc.Get("type"); ok {
		ast.Type, _ = f.AsString()
	}
	if f, ok := doc.Get("body"); ok {
		ast.Body, _ = f.AsString()
	}
	return ast, nil
}

func astType(gr *contract.Grammar) string {
	if gr == nil {
		return contract.DefaultASTType
	}
	return gr.ASTType
}
