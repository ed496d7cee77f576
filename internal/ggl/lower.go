package ggl

import (
	"ggloracle/internal/contract"
	"ggloracle/internal/value"
)

// StageLower names the lowering stage in errors.
const StageLower = "lower"

// IR document keys.
const (
	IRType     = "@type"
	IRBody     = "ggl"
	IRLowering = "@lowering"
)

// Lower produces the IR document for an AST:
// {"@type": lowered_type, "ggl": body} plus "@lowering" when the grammar
// names a lowering contract. It re-checks the AST shape itself rather than
// relying on CheckLegality having run.
func Lower(ast *AST, gr *contract.Grammar) (value.Value, error) {
	if ast == nil {
		return value.Value{}, stageError(StageLower, CodeLower, DetailMissingAST, ErrMissingAST, "missing AST")
	}
	if ast.Body == "" {
		return value.Value{}, stageError(StageLower, CodeLower, DetailLowerBody, ErrMissingBody,
			"missing GGL body for lowering")
	}

	if gr == nil {
		gr = contract.DefaultGrammar()
	}
	ir := map[string]value.Value{
		IRType: value.StringValue(gr.LoweredType),
		IRBody: value.StringValue(ast.Body),
	}
	if gr.LoweringContractID != nil {
		ir[IRLowering] = value.StringValue(*gr.LoweringContractID)
	}
	return value.ObjectValue(ir), nil
}
