// Package feedback records user verdicts on predictions.
//
// Every accepted submission gets its own time-ordered ID, so two identical
// comments produce two distinct records and two distinct comment series.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/crimson-sun/wastenot/internal/metrics"
	"github.com/crimson-sun/wastenot/internal/model"
	"github.com/crimson-sun/wastenot/internal/output"
)

// Acknowledgement is returned for every accepted submission.
const Acknowledgement = "Thank you for your feedback!"

const (
	// DefaultMaxCommentLength bounds comments, counted in runes.
	DefaultMaxCommentLength = 500
	maxLabelLength          = 64
)

// ValidationError reports a rejected submission. Nothing is recorded when
// it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("feedback: invalid %s: %s", e.Field, e.Reason)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxCommentLength overrides the comment bound. Values < 1 are ignored.
func WithMaxCommentLength(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxComment = n
		}
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDFunc replaces the ID generator.
func WithIDFunc(f func() (string, error)) Option {
	return func(l *Ledger) { l.newID = f }
}

// Ledger accepts feedback submissions, counts them on the metrics sink and
// appends them to the comment log. Safe for concurrent use.
type Ledger struct {
	sink       metrics.Sink
	out        output.Output
	maxComment int
	now        func() time.Time
	newID      func() (string, error)
}

// New creates a Ledger. A nil sink or output discards that side of the
// record.
func New(sink metrics.Sink, out output.Output, opts ...Option) *Ledger {
	if sink == nil {
		sink = metrics.Nop{}
	}
	l := &Ledger{
		sink:       sink,
		out:        out,
		maxComment: DefaultMaxCommentLength,
		now:        time.Now,
		newID:      newV7,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type submission struct {
	PredictedLabel string `validate:"max=64"`
	Type           string `validate:"required,oneof=good bad"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Record validates and records one submission, returning the
// acknowledgement text. The label is recorded as given (after
// normalization); it may be "unknown".
func (l *Ledger) Record(ctx context.Context, predictedLabel, feedbackType, comment string) (string, error) {
	sub := submission{
		PredictedLabel: normalize(predictedLabel),
		Type:           cases.Fold().String(normalize(feedbackType)),
	}
	comment = normalize(comment)

	if err := validate.Struct(sub); err != nil {
		return "", toValidationError(err)
	}
	if n := utf8.RuneCountInString(comment); n > l.maxComment {
		return "", &ValidationError{
			Field:  "comment",
			Reason: fmt.Sprintf("%d characters exceeds limit of %d", n, l.maxComment),
		}
	}

	id, err := l.newID()
	if err != nil {
		return "", fmt.Errorf("feedback: generate id: %w", err)
	}

	rec := model.FeedbackRecord{
		ID:             id,
		PredictedLabel: sub.PredictedLabel,
		Type:           model.FeedbackType(sub.Type),
		Comment:        comment,
		CreatedAt:      l.now().UTC(),
	}

	l.sink.ObserveFeedback(rec)
	if l.out != nil {
		if err := l.out.Write(ctx, rec); err != nil {
			slog.Warn("feedback log write failed", "feedback_id", rec.ID, "error", err)
		}
	}
	return Acknowledgement, nil
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(strings.ToValidUTF8(s, "�")))
}

func newV7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

var fieldNames = map[string]string{
	"PredictedLabel": "predicted_ingredient",
	"Type":           "feedback_type",
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "submission", Reason: err.Error()}
	}
	fe := verrs[0]
	field := fieldNames[fe.Field()]
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Reason: "must not be empty"}
	case "oneof":
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not one of good, bad", fe.Value())}
	case "max":
		return &ValidationError{Field: field, Reason: fmt.Sprintf("longer than %s characters", fe.Param())}
	default:
		return &ValidationError{Field: field, Reason: fe.Tag()}
	}
}
