// Package output defines destinations for the feedback comment log.
package output

import (
	"context"

	"github.com/crimson-sun/wastenot/internal/model"
)

// Output defines the interface for feedback record destinations.
type Output interface {
	Write(ctx context.Context, rec model.FeedbackRecord) error
	Close() error
}
