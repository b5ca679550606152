package output

import (
	"strings"

	"github.com/crimson-sun/wastenot/internal/model"
)

// Verbosity controls which record fields reach an output.
type Verbosity int

const (
	// Minimal drops comment text, keeping only the verdict.
	Minimal Verbosity = iota
	// Standard keeps every field.
	Standard
)

// ParseVerbosity maps "minimal" or "standard" to a Verbosity. Anything else
// is Standard.
func ParseVerbosity(s string) Verbosity {
	if strings.EqualFold(s, "minimal") {
		return Minimal
	}
	return Standard
}

// FormatRecord returns a copy of the record with fields stripped according
// to verbosity. At Minimal the comment is cleared (omitted from JSON via
// omitempty).
func FormatRecord(rec model.FeedbackRecord, verbosity Verbosity) model.FeedbackRecord {
	if verbosity == Minimal {
		rec.Comment = ""
	}
	return rec
}
