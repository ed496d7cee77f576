// Package ledger persists oracle verdicts in sqlite. Verdicts are a pure
// function of (ABI hash, payload, want_lower), so the ledger doubles as a
// memo for repeated payloads.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ggloracle/internal/canon"
	"ggloracle/internal/logging"
	"ggloracle/internal/oracle"
	"ggloracle/internal/value"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory ledger.
const MemoryPath = ":memory:"

// Ledger is a sqlite-backed verdict store.
type Ledger struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Entry is one recorded verdict.
type Entry struct {
	ID         string
	RunID      string
	PayloadSHA string
	WantLower  bool
	Result     oracle.Result
	CreatedAt  time.Time
}

// Stats summarizes the verdicts recorded under one ABI hash.
type Stats struct {
	ABIHash   string  `json:"abi_hash"`
	Total     int     `json:"total"`
	OK        int     `json:"ok"`
	MeanScore float64 `json:"mean_score"`
	// ByStage counts verdicts by final stage; "ok" counts successes.
	ByStage map[string]int `json:"by_stage"`
	// ByCode counts failures by code.
	ByCode map[string]int `json:"by_code"`
}

// Open creates or opens a ledger at path.
func Open(path string) (*Ledger, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: sqlite serializes writers anyway, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, dbPath: path}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Ledger("opened ledger at %s", path)
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.dbPath
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS verdicts (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		abi_hash TEXT NOT NULL,
		payload_sha TEXT NOT NULL,
		want_lower INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		stage TEXT NOT NULL,
		code TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		score REAL NOT NULL,
		line INTEGER NOT NULL DEFAULT 0,
		col INTEGER NOT NULL DEFAULT 0,
		ir_json TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verdicts_memo ON verdicts(abi_hash, payload_sha, want_lower);
	CREATE INDEX IF NOT EXISTS idx_verdicts_run ON verdicts(run_id);
	`
	_, err := l.db.Exec(schema)
	return err
}

// PayloadSHA is the key a payload is recorded under.
func PayloadSHA(payload string) string {
	return canon.Hash([]byte(payload))
}

// Record stores a verdict and returns its row id.
func (l *Ledger) Record(ctx context.Context, runID, payload string, wantLower bool, r oracle.Result) (string, error) {
	var irJSON sql.NullString
	if r.IR != nil {
		raw, err := r.IR.MarshalJSON()
		if err != nil {
			return "", fmt.Errorf("failed to encode ir: %w", err)
		}
		irJSON = sql.NullString{String: string(raw), Valid: true}
	}

	id := uuid.New().String()
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO verdicts (id, run_id, abi_hash, payload_sha, want_lower, ok, stage, code, detail, message, score, line, col, ir_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, runID, r.ABIHash, PayloadSHA(payload), boolInt(wantLower), boolInt(r.OK),
		r.Stage.String(), r.Code, r.Detail, r.Message, r.Score, r.Line, r.Col, irJSON,
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record verdict: %w", err)
	}
	logging.LedgerDebug("recorded %s run=%s stage=%s code=%s", id, runID, r.Stage, r.Code)
	return id, nil
}

// Lookup returns the most recent verdict for a payload under abiHash.
func (l *Ledger) Lookup(ctx context.Context, abiHash, payload string, wantLower bool) (oracle.Result, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := l.db.QueryRowContext(ctx, `
		SELECT id, run_id, payload_sha, want_lower, ok, stage, code, detail, message, score, line, col, ir_json, created_at
		FROM verdicts
		WHERE abi_hash = ? AND payload_sha = ? AND want_lower = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`,
		abiHash, PayloadSHA(payload), boolInt(wantLower),
	)
	e, err := scanEntry(row, abiHash)
	if errors.Is(err, sql.ErrNoRows) {
		return oracle.Result{}, false, nil
	}
	if err != nil {
		return oracle.Result{}, false, err
	}
	return e.Result, true, nil
}

// Run returns every verdict recorded for a run, oldest first.
func (l *Ledger) Run(ctx context.Context, runID string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, payload_sha, want_lower, ok, stage, code, detail, message, score, line, col, ir_json, created_at, abi_hash
		FROM verdicts
		WHERE run_id = ?
		ORDER BY created_at ASC, rowid ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var abiHash string
		e, err := scanEntry(rows, "", &abiHash)
		if err != nil {
			return nil, err
		}
		e.Result.ABIHash = abiHash
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats summarizes every verdict recorded under abiHash.
func (l *Ledger) Stats(ctx context.Context, abiHash string) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{ABIHash: abiHash, ByStage: make(map[string]int), ByCode: make(map[string]int)}

	var mean sql.NullFloat64
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(ok), 0), AVG(score) FROM verdicts WHERE abi_hash = ?`,
		abiHash,
	).Scan(&st.Total, &st.OK, &mean)
	if err != nil {
		return st, fmt.Errorf("failed to query stats: %w", err)
	}
	st.MeanScore = mean.Float64

	rows, err := l.db.QueryContext(ctx, `
		SELECT stage, code, COUNT(*) FROM verdicts WHERE abi_hash = ? GROUP BY stage, code`,
		abiHash,
	)
	if err != nil {
		return st, fmt.Errorf("failed to query stage counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stage, code string
		var n int
		if err := rows.Scan(&stage, &code, &n); err != nil {
			return st, err
		}
		st.ByStage[stage] += n
		if code != "OK" {
			st.ByCode[code] += n
		}
	}
	return st, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner, abiHash string, extra ...interface{}) (Entry, error) {
	var (
		e         Entry
		wantLower int
		ok        int
		stage     string
		irJSON    sql.NullString
	)
	dest := []interface{}{
		&e.ID, &e.RunID, &e.PayloadSHA, &wantLower, &ok, &stage,
		&e.Result.Code, &e.Result.Detail, &e.Result.Message, &e.Result.Score,
		&e.Result.Line, &e.Result.Col, &irJSON, &e.CreatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return e, err
	}

	st, err := oracle.ParseStage(stage)
	if err != nil {
		return e, fmt.Errorf("verdict %s: %w", e.ID, err)
	}
	e.WantLower = wantLower != 0
	e.Result.OK = ok != 0
	e.Result.Stage = st
	e.Result.ABIHash = abiHash
	if irJSON.Valid {
		ir, err := value.Parse([]byte(irJSON.String))
		if err != nil {
			return e, fmt.Errorf("verdict %s: bad ir: %w", e.ID, err)
		}
		e.Result.IR = &ir
	}
	return e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
