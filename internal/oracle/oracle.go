// Package oracle runs the GGL verification pipeline and reports a single
// scored Result per call.
//
// The pipeline is forward-only:
//
//	boundary -> tokenize -> parse -> legal -> [lower] -> ok
//
// The first failing stage ends the run. The score is the sum of the weights
// of the stages that completed before it, so partially correct output still
// earns a graded signal.
package oracle

import (
	"ggloracle/internal/contract"
	"ggloracle/internal/ggl"
	"ggloracle/internal/logging"
	"ggloracle/internal/value"
)

// Result is the verdict for one payload. It is never mutated after Verify
// returns it.
type Result struct {
	OK      bool    `json:"ok"`
	Stage   Stage   `json:"stage"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Score   float64 `json:"score"`

	// Detail is the fine-grained cause code behind a generic stage code.
	Detail string `json:"detail,omitempty"`
	Line   int    `json:"line,omitempty"`
	Col    int    `json:"col,omitempty"`

	// ABIHash identifies the contracts the verdict was reached under.
	ABIHash string `json:"abi_hash"`
	// IR is set only when lowering was requested and succeeded.
	IR *value.Value `json:"ir,omitempty"`
}

// Penalty is the complement of the score, for use as a training loss.
func (r Result) Penalty() float64 {
	return round6(1 - r.Score)
}

// Oracle verifies payloads against the ABI provided by its source.
// It holds no per-call state and is safe for concurrent use.
type Oracle struct {
	source contract.Source
}

// New returns an Oracle reading its contracts from source. A *contract.ABI
// serves as a fixed source; a *contract.Reloader follows the files on disk.
func New(source contract.Source) *Oracle {
	return &Oracle{source: source}
}

// ABI returns the contracts the next Verify call would use.
func (o *Oracle) ABI() *contract.ABI {
	return o.source.Current()
}

// Verify runs the pipeline on raw generator output. Lowering runs only when
// wantLower is set; without it a fully legal payload scores 0.90.
// One ABI snapshot is used for the whole call.
func (o *Oracle) Verify(text string, wantLower bool) Result {
	abi := o.source.Current()
	r := o.verify(abi, text, wantLower)
	r.ABIHash = abi.Hash

	if r.OK {
		logging.OracleDebug("verify ok score=%.2f lower=%v", r.Score, wantLower)
	} else {
		logging.OracleDebug("verify failed at %s: %s %s (score=%.2f)", r.Stage, r.Code, r.Message, r.Score)
	}
	return r
}

func (o *Oracle) verify(abi *contract.ABI, text string, wantLower bool) Result {
	ex := ggl.Extract(text)
	if !ex.OK {
		return Result{Stage: StageBoundary, Code: ex.Code, Message: ex.Message, Score: round6(ex.Score)}
	}

	if terr := ggl.CheckChars(ex.Inner, abi.Tokenizer); terr != nil {
		return failed(StageTokenize, terr.Code, terr)
	}

	ast, err := ggl.Parse(ex.Inner, abi.Grammar)
	if err != nil {
		return failedErr(StageParse, ggl.CodeParse, err)
	}

	if err := ggl.CheckLegality(ast, abi.Grammar); err != nil {
		return failedErr(StageLegal, ggl.CodeLegal, err)
	}

	if !wantLower {
		return Result{OK: true, Stage: StageOK, Code: ggl.CodeOK, Message: "legal", Score: scoreBefore(StageLower)}
	}

	ir, err := ggl.Lower(ast, abi.Grammar)
	if err != nil {
		return failedErr(StageLower, ggl.CodeLower, err)
	}
	return Result{OK: true, Stage: StageOK, Code: ggl.CodeOK, Message: "legal", Score: scoreBefore(StageOK), IR: &ir}
}

func failed(stage Stage, code string, e *ggl.Error) Result {
	return Result{
		Stage:   stage,
		Code:    code,
		Message: e.Message,
		Score:   scoreBefore(stage),
		Detail:  e.Detail,
		Line:    e.Line,
		Col:     e.Col,
	}
}

// failedErr converts a stage error. Errors outside the ggl taxonomy keep
// the stage's generic code with the error text as the message.
func failedErr(stage Stage, code string, err error) Result {
	if e, ok := ggl.AsError(err); ok {
		return failed(stage, code, e)
	}
	return Result{Stage: stage, Code: code, Message: err.Error(), Score: scoreBefore(stage)}
}
