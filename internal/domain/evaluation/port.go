package evaluation

import (
	"context"
	"io"

	"github.com/bryanwahyu/tor-evaluator/internal/domain/ai"
)

// Repository stores sessions and their follow-up artefacts.
// Get returns (nil, nil) when the session does not exist.
type Repository interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Summary, error)
	SaveFollowup(ctx context.Context, f *Followup) error
	SaveFeedback(ctx context.Context, f *Feedback) error
}

// DocumentStore keeps uploaded source documents and returns a reference.
type DocumentStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// TextExtractor turns an uploaded document into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
}

// PromptInput carries everything a prompt template may embed.
type PromptInput struct {
	Proposal          string
	ToR               string
	Guidelines        string
	InternalInsights  string
	ExternalInsights  string
	EvaluationSummary string
	Section           string
	Question          string
}

// PromptBuilder renders the completion request for one prompt template.
type PromptBuilder interface {
	Build(in PromptInput) ai.Request
}
