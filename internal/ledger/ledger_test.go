package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"ggloracle/internal/contract"
	"ggloracle/internal/oracle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndLookup(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)
	o := oracle.New(contract.Default())

	payload := "<GGL>hello</GGL>"
	r := o.Verify(payload, true)
	id, err := l.Record(ctx, "run-1", payload, true, r)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, ok, err := l.Lookup(ctx, r.ABIHash, payload, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r, got)

	// want_lower is part of the key
	_, ok, err = l.Lookup(ctx, r.ABIHash, payload, false)
	require.NoError(t, err)
	assert.False(t, ok)

	// so is the ABI hash
	_, ok, err = l.Lookup(ctx, "other", payload, true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLookupFailureRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	abi, err := contract.Load([]byte(`{"allowed_unicode_ranges": [[97, 122]]}`), []byte(`{}`))
	require.NoError(t, err)
	o := oracle.New(abi)

	payload := "<GGL>ab\ncD</GGL>"
	r := o.Verify(payload, false)
	require.False(t, r.OK)
	_, err = l.Record(ctx, "run-1", payload, false, r)
	require.NoError(t, err)

	got, ok, err := l.Lookup(ctx, abi.Hash, payload, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r, got)
	assert.Equal(t, 2, got.Line)
	assert.Equal(t, 2, got.Col)
	assert.Nil(t, got.IR)
}

func TestRunAndStats(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)
	o := oracle.New(contract.Default())

	payloads := []string{"<GGL>a</GGL>", "<GGL>b</GGL>", "x", "y<GGL>z</GGL>", "<GGL> </GGL>"}
	for _, p := range payloads {
		_, err := l.Record(ctx, "run-7", p, false, o.Verify(p, false))
		require.NoError(t, err)
	}
	_, err := l.Record(ctx, "run-8", "<GGL>c</GGL>", true, o.Verify("<GGL>c</GGL>", true))
	require.NoError(t, err)

	entries, err := l.Run(ctx, "run-7")
	require.NoError(t, err)
	require.Len(t, entries, len(payloads))
	for i, e := range entries {
		assert.Equal(t, PayloadSHA(payloads[i]), e.PayloadSHA)
		assert.Equal(t, "run-7", e.RunID)
		assert.Equal(t, contract.Default().Hash, e.Result.ABIHash)
		assert.False(t, e.CreatedAt.IsZero())
	}

	st, err := l.Stats(ctx, contract.Default().Hash)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Total)
	assert.Equal(t, 3, st.OK)
	assert.Equal(t, 3, st.ByStage["ok"])
	assert.Equal(t, 2, st.ByStage["boundary"])
	assert.Equal(t, 1, st.ByStage["parse"])
	assert.Equal(t, 1, st.ByCode["E_GGL_BOUNDARY"])
	assert.Equal(t, 1, st.ByCode["E_GGL_OUTSIDE_TEXT"])
	assert.Equal(t, 1, st.ByCode["E_PARSE"])
	// 0.9 + 0.9 + 0 + 0.05 + 0.25 + 1.0
	assert.InDelta(t, 3.1/6, st.MeanScore, 1e-9)

	empty, err := l.Stats(ctx, "nothing")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, 0.0, empty.MeanScore)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	o := oracle.New(contract.Default())
	r := o.Verify("<GGL>x</GGL>", false)
	_, err = l.Record(context.Background(), "r", "<GGL>x</GGL>", false, r)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, ok, err := reopened.Lookup(context.Background(), r.ABIHash, "<GGL>x</GGL>", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, r, got)
}
