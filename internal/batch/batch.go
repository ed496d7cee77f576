// Package batch verifies many payloads concurrently against one ABI
// snapshot, optionally memoizing verdicts in the ledger.
package batch

import (
	"context"
	"fmt"
	"runtime"

	"ggloracle/internal/ledger"
	"ggloracle/internal/logging"
	"ggloracle/internal/oracle"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Item is one payload to verify.
type Item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	// WantLower overrides the runner default when set.
	WantLower *bool `json:"want_lower,omitempty"`
}

// Outcome pairs an item id with its verdict.
type Outcome struct {
	ID     string        `json:"id"`
	Result oracle.Result `json:"result"`
	// Cached is true when the verdict came from the ledger.
	Cached bool `json:"cached,omitempty"`
}

// Runner verifies items with bounded concurrency.
type Runner struct {
	RunID       string
	Oracle      *oracle.Oracle
	Concurrency int
	WantLower   bool
	// Ledger, when set, is consulted before verifying and records every
	// fresh verdict.
	Ledger *ledger.Ledger
}

// NewRunner returns a runner with a fresh run id. A concurrency below 1
// means one worker per CPU.
func NewRunner(o *oracle.Oracle, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = runtime.NumCPU()
	}
	return &Runner{
		RunID:       uuid.New().String(),
		Oracle:      o,
		Concurrency: concurrency,
	}
}

// Run verifies every item and returns outcomes in input order. Cancelling
// ctx stops scheduling new items; the outcomes gathered so far are
// returned with the context error.
func (r *Runner) Run(ctx context.Context, items []Item) ([]Outcome, error) {
	// Pin one ABI for the whole run so every verdict shares a hash.
	pinned := oracle.New(r.Oracle.ABI())
	limit := r.Concurrency
	if limit < 1 {
		limit = 1
	}

	logging.Batch("run %s: %d items, concurrency %d, abi %s", r.RunID, len(items), limit, pinned.ABI().Hash)

	out := make([]Outcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range items {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o, err := r.verifyOne(gctx, pinned, items[i])
			if err != nil {
				return fmt.Errorf("item %s: %w", items[i].ID, err)
			}
			out[i] = o
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logging.Get(logging.CategoryBatch).Warn("run %s stopped: %v", r.RunID, err)
		return out, err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	s := Summarize(out)
	logging.Batch("run %s done: %d/%d ok, mean score %.4f, %d cached", r.RunID, s.OK, s.Total, s.MeanScore, s.Cached)
	return out, nil
}

func (r *Runner) verifyOne(ctx context.Context, o *oracle.Oracle, item Item) (Outcome, error) {
	wantLower := r.WantLower
	if item.WantLower != nil {
		wantLower = *item.WantLower
	}

	if r.Ledger != nil {
		res, ok, err := r.Ledger.Lookup(ctx, o.ABI().Hash, item.Text, wantLower)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			logging.BatchDebug("item %s served from ledger", item.ID)
			return Outcome{ID: item.ID, Result: res, Cached: true}, nil
		}
	}

	res := o.Verify(item.Text, wantLower)
	if r.Ledger != nil {
		if _, err := r.Ledger.Record(ctx, r.RunID, item.Text, wantLower, res); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{ID: item.ID, Result: res}, nil
}
