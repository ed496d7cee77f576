package ggl

import "strings"

// Payload delimiters.
const (
	OpenMarker  = "<GGL>"
	CloseMarker = "</GGL>"
)

// Boundary scores. A payload wrapped in stray text ranks above one with no
// usable markers at all.
const (
	ScoreNoBoundary  = 0.0
	ScoreOutsideText = 0.05
	ScoreBoundary    = 0.10
)

// Extraction is the outcome of locating the payload.
type Extraction struct {
	OK      bool
	Code    string
	Message string
	Score   float64
	Inner   string
}

// Extract isolates the trimmed payload between the first OpenMarker and the
// first CloseMarker. Text outside the markers must be blank. Repeated or
// nested markers are not interpreted; they remain part of the payload.
func Extract(text string) Extraction {
	a := strings.Index(text, OpenMarker)
	b := strings.Index(text, CloseMarker)
	if a < 0 || b < 0 || b < a {
		return Extraction{
			Code:    CodeBoundary,
			Message: "missing or malformed <GGL>...</GGL> boundary",
			Score:   ScoreNoBoundary,
		}
	}

	// b >= a+len(OpenMarker) always holds here: the two markers cannot
	// overlap since "</" never occurs inside "<GGL>".
	inner := text[a+len(OpenMarker) : b]
	outside := text[:a] + text[b+len(CloseMarker):]
	if strings.TrimSpace(outside) != "" {
		return Extraction{
			Code:    CodeOutsideText,
			Message: "non-empty text outside GGL boundary",
			Score:   ScoreOutsideText,
		}
	}

	return Extraction{
		OK:    true,
		Score: ScoreBoundary,
		Inner: strings.TrimSpace(inner),
	}
}
