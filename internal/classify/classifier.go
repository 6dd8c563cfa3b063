package classify

import (
	"context"

	"github.com/postwatch/postwatch/internal/model"
)

// Result is a single classifier decision.
type Result struct {
	Decision  string `json:"decision"`
	Reasoning string `json:"reasoning"`
}

// Classifier decides whether a post should be forwarded.
type Classifier interface {
	Classify(ctx context.Context, post model.Post) (Result, error)
}

// Verdict pairs a post with its classification outcome.
type Verdict struct {
	Post      model.Post
	Decision  string
	Reasoning string
	Accepted  bool
}
