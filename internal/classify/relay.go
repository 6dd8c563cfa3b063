package classify

import (
	"context"

	"github.com/postwatch/postwatch/internal/model"

	"go.uber.org/zap"
)

// Recorder receives error records for posts dropped by the relay.
type Recorder interface {
	RecordError(ctx context.Context, kind, message string, account *string) error
}

// Relay submits posts to the classifier one at a time and partitions the
// results. A post whose classification fails is dropped, not retried: the
// cursor has already moved past it, so it will not be fetched again.
type Relay struct {
	classifier Classifier
	rec        Recorder
	log        *zap.Logger
}

// NewRelay creates a relay. rec may be nil.
func NewRelay(classifier Classifier, rec Recorder, log *zap.Logger) *Relay {
	return &Relay{classifier: classifier, rec: rec, log: log}
}

// ClassifyBatch classifies posts sequentially. The classifier collaborator
// paces its own requests, so no concurrency here.
func (r *Relay) ClassifyBatch(ctx context.Context, posts []model.Post) []Verdict {
	verdicts := make([]Verdict, 0, len(posts))
	for _, post := range posts {
		if ctx.Err() != nil {
			r.log.Info("classify batch: context done", zap.Error(ctx.Err()))
			return verdicts
		}
		res, err := r.classifier.Classify(ctx, post)
		if err != nil {
			r.log.Warn("dropping post, classification failed",
				zap.String("post_id", post.ID),
				zap.String("account", post.Account),
				zap.Error(err))
			if r.rec != nil {
				acct := post.Account
				_ = r.rec.RecordError(ctx, "classification_error", err.Error(), &acct)
			}
			continue
		}
		accepted := model.Accepted(res.Decision)
		r.log.Info("classified post",
			zap.String("post_id", post.ID),
			zap.String("decision", res.Decision),
			zap.Bool("accepted", accepted))
		verdicts = append(verdicts, Verdict{
			Post:      post,
			Decision:  res.Decision,
			Reasoning: res.Reasoning,
			Accepted:  accepted,
		})
	}
	return verdicts
}

// Accepted filters a verdict list down to the accepted partition.
func Accepted(verdicts []Verdict) []Verdict {
	var out []Verdict
	for _, v := range verdicts {
		if v.Accepted {
			out = append(out, v)
		}
	}
	return out
}
