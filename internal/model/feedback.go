package model

import "time"

// FeedbackType is the user's verdict on a prediction.
type FeedbackType string

const (
	FeedbackGood FeedbackType = "good"
	FeedbackBad  FeedbackType = "bad"
)

// FeedbackRecord is a single feedback submission. ID is unique per
// submission so identical comments stay distinct.
type FeedbackRecord struct {
	ID             string       `json:"feedback_id"`
	PredictedLabel string       `json:"predicted_ingredient"`
	Type           FeedbackType `json:"feedback_type"`
	Comment        string       `json:"comment,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}
