// Package regression runs YAML-defined batteries of payloads with expected
// verdicts, so contract or pipeline changes that move a verdict are caught.
package regression

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ggloracle/internal/diff"
	"ggloracle/internal/logging"
	"ggloracle/internal/oracle"
	"ggloracle/internal/value"

	"gopkg.in/yaml.v3"
)

// Battery is a collection of regression cases.
type Battery struct {
	Version int    `yaml:"version"`
	Cases   []Case `yaml:"cases"`
	// FailFast stops at the first case whose verdict does not match.
	FailFast bool `yaml:"fail_fast,omitempty"`

	dir string
}

// Case is a single payload and the verdict it must produce.
// Supported types: text (inline payload) and file (payload read from a
// path relative to the battery file).
type Case struct {
	ID    string `yaml:"id"`
	Type  string `yaml:"type"` // "text" or "file"
	Text  string `yaml:"text,omitempty"`
	File  string `yaml:"file,omitempty"`
	Lower bool   `yaml:"lower,omitempty"`

	Expect Expect `yaml:"expect"`
}

// Expect lists the verdict fields a case checks. Unset fields are not
// compared.
type Expect struct {
	OK     *bool    `yaml:"ok,omitempty"`
	Stage  string   `yaml:"stage,omitempty"`
	Code   string   `yaml:"code,omitempty"`
	Detail string   `yaml:"detail,omitempty"`
	Score  *float64 `yaml:"score,omitempty"`
	Line   int      `yaml:"line,omitempty"`
	Col    int      `yaml:"col,omitempty"`
	// IR is the expected lowered document; the case needs lower: true.
	IR map[string]interface{} `yaml:"ir,omitempty"`
}

// Result captures the outcome of one case.
type Result struct {
	CaseID     string
	Success    bool
	Verdict    oracle.Result
	Mismatches []string
	Error      string
	DurationMs int64
}

// LoadBattery reads a YAML battery file from disk.
func LoadBattery(path string) (*Battery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Battery
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse battery YAML: %w", err)
	}
	b.dir = filepath.Dir(path)
	return &b, nil
}

// RunBattery verifies every case in order against o.
func RunBattery(ctx context.Context, o *oracle.Oracle, b *Battery) ([]Result, error) {
	if b == nil || len(b.Cases) == 0 {
		return nil, nil
	}

	pinned := oracle.New(o.ABI())
	results := make([]Result, 0, len(b.Cases))

	for _, c := range b.Cases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		start := time.Now()
		res := Result{CaseID: c.ID}

		text, err := b.payload(c)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Verdict = pinned.Verify(text, c.Lower)
			res.Mismatches = c.Expect.compare(res.Verdict)
			res.Success = len(res.Mismatches) == 0
		}

		res.DurationMs = time.Since(start).Milliseconds()
		results = append(results, res)
		if !res.Success {
			logging.Get(logging.CategoryOracle).Warn("regression case %s failed: %s%s",
				c.ID, res.Error, strings.Join(res.Mismatches, "; "))
			if b.FailFast {
				break
			}
		}
	}

	return results, nil
}

// Passed reports whether every result succeeded.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}

func (b *Battery) payload(c Case) (string, error) {
	t := strings.ToLower(strings.TrimSpace(c.Type))
	if t == "" {
		t = "text"
	}
	switch t {
	case "text":
		return c.Text, nil
	case "file":
		if c.File == "" {
			return "", fmt.Errorf("empty file path")
		}
		path := c.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(b.dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported case type: %s", c.Type)
	}
}

func (e Expect) compare(got oracle.Result) []string {
	var diffs []string
	mismatch := func(field string, want, have interface{}) {
		diffs = append(diffs, fmt.Sprintf("%s: want %v, got %v", field, want, have))
	}

	if e.OK != nil && *e.OK != got.OK {
		mismatch("ok", *e.OK, got.OK)
	}
	if e.Stage != "" && e.Stage != got.Stage.String() {
		mismatch("stage", e.Stage, got.Stage)
	}
	if e.Code != "" && e.Code != got.Code {
		mismatch("code", e.Code, got.Code)
	}
	if e.Detail != "" && e.Detail != got.Detail {
		mismatch("detail", e.Detail, got.Detail)
	}
	if e.Score != nil && math.Abs(*e.Score-got.Score) > 1e-9 {
		mismatch("score", *e.Score, got.Score)
	}
	if e.Line != 0 && e.Line != got.Line {
		mismatch("line", e.Line, got.Line)
	}
	if e.Col != 0 && e.Col != got.Col {
		mismatch("col", e.Col, got.Col)
	}
	if e.IR != nil {
		diffs = append(diffs, e.compareIR(got)...)
	}
	return diffs
}

func (e Expect) compareIR(got oracle.Result) []string {
	want, err := value.FromGo(e.IR)
	if err != nil {
		return []string{fmt.Sprintf("ir: bad expectation: %v", err)}
	}
	if got.IR == nil {
		return []string{"ir: want a lowered document, got none"}
	}
	if d := diff.Values(want, *got.IR); d != "" {
		return []string{"ir:\n" + d}
	}
	return nil
}

// DefaultBatteryPath returns the conventional battery path for a workspace.
func DefaultBatteryPath(workspace string) string {
	return filepath.Join(workspace, ".ggl", "battery.yaml")
}
