package oracle

import (
	"fmt"
	"math"
)

// Stage is a step of the verification pipeline. Stages run strictly in
// declaration order; StageOK is the terminal success state.
type Stage int

const (
	StageBoundary Stage = iota
	StageTokenize
	StageParse
	StageLegal
	StageLower
	StageOK
)

var stageNames = [...]string{
	StageBoundary: "boundary",
	StageTokenize: "tokenize",
	StageParse:    "parse",
	StageLegal:    "legal",
	StageLower:    "lower",
	StageOK:       "ok",
}

// Stage weights. They sum to 1.
var stageWeights = [...]float64{
	StageBoundary: 0.10,
	StageTokenize: 0.15,
	StageParse:    0.35,
	StageLegal:    0.30,
	StageLower:    0.10,
}

// Stages lists every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageBoundary, StageTokenize, StageParse, StageLegal, StageLower, StageOK}
}

// String returns the wire name of the stage.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Weight is the score contributed by completing the stage.
func (s Stage) Weight() float64 {
	if s < 0 || int(s) >= len(stageWeights) {
		return 0
	}
	return stageWeights[s]
}

// ParseStage resolves a wire name.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(b []byte) error {
	parsed, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// scoreBefore sums the weights of every stage that precedes s.
func scoreBefore(s Stage) float64 {
	total := 0.0
	for st := StageBoundary; st < s && st < StageOK; st++ {
		total += st.Weight()
	}
	return round6(total)
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
