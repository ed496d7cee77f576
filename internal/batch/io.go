package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// maxLine bounds a single JSONL record.
const maxLine = 16 * 1024 * 1024

// ReadJSONL reads one Item per non-blank line. Items without an id are
// assigned a random one.
func ReadJSONL(r io.Reader) ([]Item, error) {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for long payloads
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var items []Item
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var item Item
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}
	return items, nil
}

// WriteJSONL writes one Outcome per line.
func WriteJSONL(w io.Writer, outcomes []Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, o := range outcomes {
		if err := enc.Encode(o); err != nil {
			return fmt.Errorf("failed to write outcome %s: %w", o.ID, err)
		}
	}
	return nil
}

// ItemsFromGlob reads every regular file matching a doublestar pattern as
// one item whose id is the file path. Matches are sorted.
func ItemsFromGlob(pattern string) ([]Item, error) {
	matches, err := doublestar.FilepathGlob(filepath.Clean(pattern))
	if err != nil {
		return nil, fmt.Errorf("glob error: %w", err)
	}
	sort.Strings(matches)

	var items []Item
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		items = append(items, Item{ID: filepath.ToSlash(path), Text: string(data)})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no files match pattern: %s", pattern)
	}
	return items, nil
}

// Summary aggregates a run. MeanPenalty is the mean of 1 - score, the loss
// a training loop consumes.
type Summary struct {
	Total       int            `json:"total"`
	OK          int            `json:"ok"`
	Cached      int            `json:"cached"`
	MeanScore   float64        `json:"mean_score"`
	MeanPenalty float64        `json:"mean_penalty"`
	ByStage     map[string]int `json:"by_stage"`
	ByCode      map[string]int `json:"by_code"`
}

// Summarize aggregates outcomes. Failures are counted under the stage and
// code that ended them.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{ByStage: make(map[string]int), ByCode: make(map[string]int)}
	total, penalty := 0.0, 0.0
	for _, o := range outcomes {
		s.Total++
		total += o.Result.Score
		penalty += o.Result.Penalty()
		if o.Cached {
			s.Cached++
		}
		s.ByStage[o.Result.Stage.String()]++
		if o.Result.OK {
			s.OK++
			continue
		}
		s.ByCode[o.Result.Code]++
	}
	if s.Total > 0 {
		s.MeanScore = total / float64(s.Total)
		s.MeanPenalty = penalty / float64(s.Total)
	}
	return s
}

// AllOK reports whether every outcome passed.
func AllOK(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if !o.Result.OK {
			return false
		}
	}
	return true
}
