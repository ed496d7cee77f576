package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ggloracle/internal/contract"
	"ggloracle/internal/ledger"
	"ggloracle/internal/oracle"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return New(oracle.New(contract.Default()), opts)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.TODO(), method, path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestVerifyHandler(t *testing.T) {
	s := newTestServer(t, Options{})
	abiHash := contract.Default().Hash

	cases := []struct {
		Name     string
		Body     string
		Expected oracle.Result
	}{
		{
			Name: "legal without lowering",
			Body: `{"text": "<GGL>hello</GGL>"}`,
			Expected: oracle.Result{
				OK: true, Stage: oracle.StageOK, Code: "OK", Message: "legal", Score: 0.9, ABIHash: abiHash,
			},
		},
		{
			Name: "no boundary",
			Body: `{"text": "hello"}`,
			Expected: oracle.Result{
				Stage: oracle.StageBoundary, Code: "E_GGL_BOUNDARY", Message: "missing or malformed <GGL>...</GGL> boundary", Score: 0, ABIHash: abiHash,
			},
		},
		{
			Name: "missing text is an empty payload",
			Body: `{}`,
			Expected: oracle.Result{
				Stage: oracle.StageBoundary, Code: "E_GGL_BOUNDARY", Message: "missing or malformed <GGL>...</GGL> boundary", Score: 0, ABIHash: abiHash,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/verify", tc.Body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var got oracle.Result
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			if diff := cmp.Diff(tc.Expected.Code, got.Code); diff != "" {
				t.Errorf("code mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tc.Expected.OK, got.OK)
			assert.Equal(t, tc.Expected.Stage, got.Stage)
			assert.Equal(t, tc.Expected.Score, got.Score)
			assert.Equal(t, tc.Expected.ABIHash, got.ABIHash)
			assert.Nil(t, got.IR)
		})
	}
}

func TestVerifyHandler_Lowering(t *testing.T) {
	s := newTestServer(t, Options{})

	w := do(t, s, http.MethodPost, "/api/verify", `{"text": "<GGL>a & b</GGL>", "want_lower": true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var got oracle.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.OK)
	assert.Equal(t, 1.0, got.Score)
	require.NotNil(t, got.IR)
	body, ok := got.IR.Get("ggl")
	require.True(t, ok)
	s2, _ := body.AsString()
	assert.Equal(t, "a & b", s2)
}

func TestVerifyHandler_DefaultLower(t *testing.T) {
	s := newTestServer(t, Options{WantLower: true})

	w := do(t, s, http.MethodPost, "/api/verify", `{"text": "<GGL>x</GGL>"}`)
	var got oracle.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1.0, got.Score)

	w = do(t, s, http.MethodPost, "/api/verify", `{"text": "<GGL>x</GGL>", "want_lower": false}`)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 0.9, got.Score)
}

func TestVerifyHandler_BadRequest(t *testing.T) {
	s := newTestServer(t, Options{})

	w := do(t, s, http.MethodPost, "/api/verify", `{"text": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestVerifyHandler_BodyLimit(t *testing.T) {
	s := newTestServer(t, Options{MaxBodyBytes: 32})

	big := `{"text": "<GGL>` + strings.Repeat("a", 64) + `</GGL>"}`
	w := do(t, s, http.MethodPost, "/api/verify", big)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/verify", `{"text": "<GGL>a</GGL>"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBatchHandler(t *testing.T) {
	s := newTestServer(t, Options{Concurrency: 4})

	req := `{"items": [
		{"id": "a", "text": "<GGL>one</GGL>"},
		{"id": "b", "text": "pre <GGL>two</GGL>"},
		{"text": "<GGL>three</GGL>", "want_lower": true}
	]}`
	w := do(t, s, http.MethodPost, "/api/batch", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Outcomes, 3)
	assert.NotEmpty(t, resp.RunID)

	assert.Equal(t, "a", resp.Outcomes[0].ID)
	assert.Equal(t, 0.9, resp.Outcomes[0].Result.Score)
	assert.Equal(t, "b", resp.Outcomes[1].ID)
	assert.Equal(t, "E_GGL_OUTSIDE_TEXT", resp.Outcomes[1].Result.Code)
	assert.NotEmpty(t, resp.Outcomes[2].ID)
	assert.Equal(t, 1.0, resp.Outcomes[2].Result.Score)

	assert.Equal(t, 3, resp.Summary.Total)
	assert.Equal(t, 2, resp.Summary.OK)
	assert.InDelta(t, 0.35, resp.Summary.MeanPenalty, 1e-9)
}

func TestBatchHandler_Ledger(t *testing.T) {
	l, err := ledger.Open(ledger.MemoryPath)
	require.NoError(t, err)
	defer l.Close()

	s := newTestServer(t, Options{Ledger: l})
	req := `{"items": [{"id": "a", "text": "<GGL>memo</GGL>"}]}`

	w := do(t, s, http.MethodPost, "/api/batch", req)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, s, http.MethodPost, "/api/batch", req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Outcomes[0].Cached)
	assert.Equal(t, 1, resp.Summary.Cached)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().cachedTotal))
}

func TestABIAndHealth(t *testing.T) {
	s := newTestServer(t, Options{})
	hash := contract.Default().Hash

	w := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	if diff := cmp.Diff(map[string]string{"status": "ok", "abi_hash": hash}, health); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}

	w = do(t, s, http.MethodGet, "/api/abi", "")
	require.Equal(t, http.StatusOK, w.Code)
	var abi struct {
		ABIHash   string          `json:"abi_hash"`
		Tokenizer json.RawMessage `json:"tokenizer"`
		Grammar   json.RawMessage `json:"grammar"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &abi))
	assert.Equal(t, hash, abi.ABIHash)
	assert.NotEmpty(t, abi.Tokenizer)
	assert.NotEmpty(t, abi.Grammar)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t, Options{})

	do(t, s, http.MethodPost, "/api/verify", `{"text": "<GGL>a</GGL>"}`)
	do(t, s, http.MethodPost, "/api/verify", `{"text": "<GGL>b</GGL>"}`)
	do(t, s, http.MethodPost, "/api/verify", `{"text": "nothing"}`)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.Metrics().verifyTotal.WithLabelValues("ok", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Metrics().verifyTotal.WithLabelValues("boundary", "E_GGL_BOUNDARY")))

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, "ggl_verify_total")
	assert.Contains(t, out, "ggl_verify_score_bucket")
	assert.Contains(t, out, `ggl_abi_info{hash="`+contract.Default().Hash+`"} 1`)
}

func TestOnABIChange(t *testing.T) {
	s := newTestServer(t, Options{})

	abi, err := contract.Load([]byte(`{}`), []byte(`{"max_length": 8}`))
	require.NoError(t, err)
	s.OnABIChange(abi)

	w := do(t, s, http.MethodGet, "/metrics", "")
	out := w.Body.String()
	assert.Contains(t, out, `ggl_abi_info{hash="`+abi.Hash+`"} 1`)
	assert.NotContains(t, out, contract.Default().Hash)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	s := newTestServer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0", 0) }()
	cancel()

	assert.NoError(t, <-done)
}

func TestVerifyHandler_NoContentType(t *testing.T) {
	s := newTestServer(t, Options{})
	payload, err := json.Marshal(VerifyRequest{Text: "<GGL>quoted \"x\"</GGL>"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/verify", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
