package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ggloracle/internal/config"
	"ggloracle/internal/contract"
	"ggloracle/internal/logging"
	"ggloracle/internal/oracle"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func setupCLI(t *testing.T) {
	t.Helper()
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	t.Cleanup(func() {
		cfg = nil
		configPath, tokenizerPath, grammarPath, pinHash = config.DefaultPath, "", "", ""
	})
}

func writeContracts(t *testing.T, tok, gr string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	tp := filepath.Join(dir, "tokenizer.json")
	gp := filepath.Join(dir, "grammar.json")
	require.NoError(t, os.WriteFile(tp, []byte(tok), 0644))
	require.NoError(t, os.WriteFile(gp, []byte(gr), 0644))
	return tp, gp
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("lower", false, "")
	cmd.Flags().StringP("file", "f", "", "")
	return cmd
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("in", "", "")
	cmd.Flags().String("glob", "", "")
	cmd.Flags().StringP("out", "o", "", "")
	cmd.Flags().Int("concurrency", 0, "")
	cmd.Flags().Bool("lower", false, "")
	return cmd
}

func TestRunHashDefault(t *testing.T) {
	setupCLI(t)

	output := captureOutput(t, func() {
		if err := runHash(&cobra.Command{}, nil); err != nil {
			t.Fatalf("runHash returned error: %v", err)
		}
	})

	if strings.TrimSpace(output) != contract.Default().Hash {
		t.Fatalf("expected default hash, got: %s", output)
	}
}

func TestRunHashFiles(t *testing.T) {
	setupCLI(t)
	tok, gr := `{"allowed_unicode_ranges": [[32, 126]]}`, `{"ast_type": "Doc", "max_length": 10}`
	cfg.Contracts.TokenizerPath, cfg.Contracts.GrammarPath = writeContracts(t, tok, gr)

	want, err := contract.Load([]byte(tok), []byte(gr))
	require.NoError(t, err)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, runHash(cmd, nil))
	assert.Equal(t, want.Hash+"\n", out.String())
}

func TestRunHashPinMismatch(t *testing.T) {
	setupCLI(t)
	cfg.Contracts.PinnedHash = strings.Repeat("0", 64)

	err := runHash(&cobra.Command{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrHashMismatch))
	assert.Equal(t, 2, exitCode(err))
}

func TestRunCanon(t *testing.T) {
	setupCLI(t)
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{ "b": 1, "a": [true, null, "x"] }`), 0644))

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, runCanon(cmd, []string{path}))
	assert.Equal(t, `{"a":[true,null,"x"],"b":1}`+"\n", out.String())

	bad := filepath.Join(t.TempDir(), "dup.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"a": 1, "a": 2}`), 0644))
	err := runCanon(&cobra.Command{}, []string{bad})
	assert.Equal(t, 2, exitCode(err))
}

func TestRunVerifyExitCodes(t *testing.T) {
	cases := []struct {
		name     string
		args     []string
		file     string
		wantCode int
		wantOut  string
	}{
		{name: "legal", args: []string{"<GGL>hi</GGL>"}, wantCode: 0, wantOut: `"score": 0.9`},
		{name: "illegal", args: []string{"hi"}, wantCode: 1, wantOut: `"code": "E_GGL_BOUNDARY"`},
		{name: "file and text", args: []string{"x"}, file: "also.txt", wantCode: 2},
		{name: "missing file", file: "/does/not/exist", wantCode: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setupCLI(t)
			cmd := newVerifyCmd()
			if tc.file != "" {
				require.NoError(t, cmd.Flags().Set("file", tc.file))
			}

			var err error
			output := captureOutput(t, func() {
				err = runVerify(cmd, tc.args)
			})
			assert.Equal(t, tc.wantCode, exitCode(err))
			if tc.wantOut != "" {
				assert.Contains(t, output, tc.wantOut)
			}
		})
	}
}

func TestRunVerifyStdinLower(t *testing.T) {
	setupCLI(t)
	cmd := newVerifyCmd()
	require.NoError(t, cmd.Flags().Set("lower", "true"))
	cmd.SetIn(strings.NewReader("<GGL>a < b</GGL>"))
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runVerify(cmd, []string{"-"}))

	var res oracle.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.True(t, res.OK)
	assert.Equal(t, 1.0, res.Score)
	require.NotNil(t, res.IR)
	assert.Contains(t, out.String(), `"ggl": "a < b"`)
}

func TestRunVerifyContractFailure(t *testing.T) {
	setupCLI(t)
	cfg.Contracts.TokenizerPath, cfg.Contracts.GrammarPath = writeContracts(t, `{"allowed_unicode_ranges": "nope"}`, `{}`)

	err := runVerify(newVerifyCmd(), []string{"<GGL>a</GGL>"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrMalformedContract))
	assert.Equal(t, 2, exitCode(err))
}

func TestRunBatchWithLedger(t *testing.T) {
	setupCLI(t)
	dir := t.TempDir()
	cfg.Ledger.Enabled = true
	cfg.Ledger.Path = filepath.Join(dir, "ledger.db")

	in := filepath.Join(dir, "items.jsonl")
	lines := strings.Join([]string{
		`{"id": "a", "text": "<GGL>one</GGL>"}`,
		`{"id": "b", "text": "two"}`,
		`{"id": "c", "text": "<GGL>three</GGL>", "want_lower": true}`,
	}, "\n")
	require.NoError(t, os.WriteFile(in, []byte(lines), 0644))
	outPath := filepath.Join(dir, "out", "verdicts.jsonl")

	cmd := newBatchCmd()
	require.NoError(t, cmd.Flags().Set("in", in))
	require.NoError(t, cmd.Flags().Set("out", outPath))
	require.NoError(t, cmd.Flags().Set("concurrency", "2"))
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)

	err := runBatch(cmd, nil)
	assert.Equal(t, 1, exitCode(err), "one item is illegal")
	assert.Contains(t, stderr.String(), "2/3 ok")
	assert.Contains(t, stderr.String(), "mean penalty 0.3667")
	assert.Contains(t, stderr.String(), "E_GGL_BOUNDARY")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	outLines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, outLines, 3)
	assert.Contains(t, outLines[0], `"id":"a"`)
	assert.Contains(t, outLines[2], `"ir":`)

	statsCmd := &cobra.Command{}
	statsCmd.Flags().String("abi", "", "")
	var out bytes.Buffer
	statsCmd.SetOut(&out)
	require.NoError(t, runLedgerStats(statsCmd, nil))

	var stats struct {
		Total int            `json:"total"`
		OK    int            `json:"ok"`
		Codes map[string]int `json:"by_code"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.OK)
	assert.Equal(t, map[string]int{"E_GGL_BOUNDARY": 1}, stats.Codes)
}

func TestRunBatchGlob(t *testing.T) {
	setupCLI(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ggl"), []byte("<GGL>a</GGL>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.ggl"), []byte("<GGL>b</GGL>"), 0644))

	cmd := newBatchCmd()
	require.NoError(t, cmd.Flags().Set("glob", filepath.Join(dir, "*.ggl")))
	var out, stderr bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&stderr)

	require.NoError(t, runBatch(cmd, nil))
	assert.Equal(t, 2, strings.Count(out.String(), "\n"))
	assert.Contains(t, stderr.String(), "2/2 ok")
}

func TestRunBatchUsage(t *testing.T) {
	setupCLI(t)

	err := runBatch(newBatchCmd(), nil)
	assert.Equal(t, 2, exitCode(err))

	cmd := newBatchCmd()
	require.NoError(t, cmd.Flags().Set("in", "x.jsonl"))
	require.NoError(t, cmd.Flags().Set("glob", "*.ggl"))
	err = runBatch(cmd, nil)
	assert.Equal(t, 2, exitCode(err))
}

func TestRunLedgerStatsDisabled(t *testing.T) {
	setupCLI(t)
	cmd := &cobra.Command{}
	cmd.Flags().String("abi", "", "")

	err := runLedgerStats(cmd, nil)
	assert.True(t, errors.Is(err, errLedgerDisabled))
	assert.Equal(t, 2, exitCode(err))
}

func TestLoadSettings(t *testing.T) {
	setupCLI(t)
	t.Setenv("GGL_TOKENIZER_ABI", "")
	t.Setenv("GGL_GRAMMAR_ABI", "")
	t.Setenv("GGL_ABI_HASH", "")
	configPath = filepath.Join(t.TempDir(), "missing.yaml")

	pinHash = "abc"
	require.NoError(t, loadSettings())
	assert.Equal(t, "abc", cfg.Contracts.PinnedHash)

	tokenizerPath = "tok.json"
	err := loadSettings()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 1, exitCode(&exitError{code: 1}))
	assert.Equal(t, 2, exitCode(usageError(errors.New("bad flag"))))
	assert.Equal(t, "exit status 1", (&exitError{code: 1}).Error())
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}

func TestRunRegress(t *testing.T) {
	setupCLI(t)
	path := filepath.Join(t.TempDir(), "battery.yaml")
	battery := `version: 1
cases:
  - id: hello
    text: "<GGL>hello</GGL>"
    expect: {ok: true, score: 0.9}
  - id: wrong
    text: "hello"
    expect: {ok: true}
`
	require.NoError(t, os.WriteFile(path, []byte(battery), 0644))

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	err := runRegress(cmd, []string{path})
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out.String(), "PASS hello")
	assert.Contains(t, out.String(), "FAIL wrong")
	assert.Contains(t, out.String(), "ok: want true, got false")
	assert.Contains(t, out.String(), "1/2 cases passed")

	err = runRegress(&cobra.Command{}, []string{filepath.Join(t.TempDir(), "none.yaml")})
	assert.Equal(t, 2, exitCode(err))
}

func TestSetupLogging(t *testing.T) {
	setupCLI(t)
	t.Cleanup(func() {
		verbose = false
		logger = zap.NewNop()
		logging.Attach(nil, logging.Config{})
	})

	dir := t.TempDir()
	configPath = filepath.Join(dir, "ggl.yaml")
	logFile := filepath.Join(dir, "logs", "ggl.log")
	settle := func(t *testing.T, yaml string) error {
		require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0644))
		require.NoError(t, loadSettings())
		return setupLogging()
	}

	t.Run("debug_mode off silences categories", func(t *testing.T) {
		require.NoError(t, settle(t, "logging:\n  debug_mode: false\n  level: debug\n"))
		assert.False(t, logging.IsDebugMode())
		for _, c := range []logging.Category{logging.CategoryBoot, logging.CategoryOracle, logging.CategoryServer} {
			assert.False(t, logging.IsCategoryEnabled(c), c)
		}
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("categories and file", func(t *testing.T) {
		require.NoError(t, settle(t, "logging:\n  debug_mode: true\n  level: debug\n  file: "+logFile+"\n  categories:\n    oracle: false\n"))
		assert.True(t, logging.IsCategoryEnabled(logging.CategoryContract))
		assert.False(t, logging.IsCategoryEnabled(logging.CategoryOracle))

		logging.Contract("contract line")
		logging.Sync()
		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "contract line")
	})

	t.Run("env enables debug", func(t *testing.T) {
		t.Setenv("GGL_DEBUG", "1")
		require.NoError(t, settle(t, "logging:\n  debug_mode: false\n"))
		assert.True(t, logging.IsCategoryEnabled(logging.CategoryOracle))
	})

	t.Run("verbose forces debug", func(t *testing.T) {
		verbose = true
		defer func() { verbose = false }()
		require.NoError(t, settle(t, "logging:\n  debug_mode: false\n  level: error\n"))
		assert.True(t, logging.IsDebugMode())
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("bad level", func(t *testing.T) {
		assert.Error(t, settle(t, "logging:\n  level: loud\n"))
	})
}

func TestWantLowerFlagOverridesConfig(t *testing.T) {
	setupCLI(t)
	cfg.Oracle.WantLower = true

	verify := func(t *testing.T, cmd *cobra.Command) oracle.Result {
		var out bytes.Buffer
		cmd.SetOut(&out)
		require.NoError(t, runVerify(cmd, []string{"<GGL>go</GGL>"}))
		var res oracle.Result
		require.NoError(t, json.Unmarshal(out.Bytes(), &res))
		return res
	}

	res := verify(t, newVerifyCmd())
	assert.Equal(t, 1.0, res.Score, "configured want_lower applies without the flag")
	assert.NotNil(t, res.IR)

	cmd := newVerifyCmd()
	require.NoError(t, cmd.Flags().Set("lower", "false"))
	res = verify(t, cmd)
	assert.Equal(t, 0.9, res.Score)
	assert.Nil(t, res.IR)

	cfg.Oracle.WantLower = false
	cmd = newVerifyCmd()
	require.NoError(t, cmd.Flags().Set("lower", "true"))
	assert.True(t, wantLower(cmd))
	assert.False(t, wantLower(newBatchCmd()))
}

func TestRunLegal(t *testing.T) {
	cases := []struct {
		name     string
		doc      string
		wantCode int
		wantOut  string
	}{
		{name: "legal", doc: `{"type": "Doc", "body": "abc"}`, wantCode: 0, wantOut: `"code": "OK"`},
		{name: "too long", doc: `{"type": "Doc", "body": "abcdefghijk"}`, wantCode: 1, wantOut: `"detail": "E_LEGAL_MAX_LENGTH"`},
		{name: "wrong type", doc: `{"type": "ggl.program.v1", "body": "abc"}`, wantCode: 1, wantOut: "expected ast type Doc, got ggl.program.v1"},
		{name: "not an object", doc: `"abc"`, wantCode: 1, wantOut: `"detail": "E_AST_MISSING"`},
		{name: "invalid json", doc: `{"type":`, wantCode: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setupCLI(t)
			cfg.Contracts.TokenizerPath, cfg.Contracts.GrammarPath = writeContracts(t, `{}`, `{"ast_type": "Doc", "max_length": 10}`)

			cmd := &cobra.Command{}
			cmd.Flags().String("ast", "", "")
			require.NoError(t, cmd.Flags().Set("ast", "-"))
			cmd.SetIn(strings.NewReader(tc.doc))
			var out bytes.Buffer
			cmd.SetOut(&out)

			err := runLegal(cmd, nil)
			assert.Equal(t, tc.wantCode, exitCode(err))
			if tc.wantOut != "" {
				assert.Contains(t, out.String(), tc.wantOut)
			}
		})
	}

	setupCLI(t)
	cmd := &cobra.Command{}
	cmd.Flags().String("ast", "", "")
	assert.Equal(t, 2, exitCode(runLegal(cmd, nil)), "--ast is required")
}

func TestRunInit(t *testing.T) {
	setupCLI(t)
	configPath = filepath.Join(t.TempDir(), "conf", "ggl.yaml")
	cfg.Batch.Concurrency = 3

	newInitCmd := func() *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().Bool("force", false, "")
		cmd.SetOut(io.Discard)
		return cmd
	}

	require.NoError(t, runInit(newInitCmd(), nil))
	loaded, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Batch.Concurrency)

	assert.Equal(t, 2, exitCode(runInit(newInitCmd(), nil)), "existing file is kept")

	cmd := newInitCmd()
	require.NoError(t, cmd.Flags().Set("force", "true"))
	require.NoError(t, runInit(cmd, nil))
}
