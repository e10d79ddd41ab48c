package evaluation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/tor-evaluator/internal/application"
	appguidelines "github.com/bryanwahyu/tor-evaluator/internal/application/guidelines"
	"github.com/bryanwahyu/tor-evaluator/internal/domain/ai"
	domain "github.com/bryanwahyu/tor-evaluator/internal/domain/evaluation"
)

const (
	defaultDeadline   = 600 * time.Second
	persistTimeout    = 30 * time.Second
	storedTextRunes   = 10000
	followupRunes     = 300
	defaultListLimit  = 20
	maxListLimit      = 100
	followupMaxTokens = 600
	maxBatchIDs       = 100
)

// GuidelineResolver is the part of the guideline service used here.
type GuidelineResolver interface {
	Resolve(ctx context.Context, email, organizationID string) (*appguidelines.Resolution, error)
}

// Analyzer runs the three analyses of one evaluation.
type Analyzer interface {
	Analyze(ctx context.Context, in AnalysisInput) (*AnalysisResult, error)
}

// Service implements use-cases untuk evaluation sessions.
// Service is designed to be used concurrently; evaluations share no state.
type Service struct {
	Guidelines GuidelineResolver
	Analyzer   Analyzer
	Sessions   domain.Repository
	Documents  domain.DocumentStore // optional
	Extractor  domain.TextExtractor

	// LLM answers follow-up questions; usually the Orchestrator so the
	// same timeout and retry policy applies.
	LLM      ai.Client
	Followup domain.PromptBuilder

	Clock    application.Clock
	Logger   *zap.Logger
	Deadline time.Duration
}

//
// ==== USE CASES ====
//

// Upload is a document sent as a file instead of inline text.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EvaluateCommand untuk trigger evaluation
type EvaluateCommand struct {
	UserID         string
	UserEmail      string
	OrganizationID string
	ProposalText   string
	ProposalFile   *Upload
	TorText        string
	TorFile        *Upload
}

// FollowupCommand asks a question about a finished session.
type FollowupCommand struct {
	SessionID string
	UserID    string
	Question  string
	Section   string
}

// FeedbackCommand rates a finished session from 1 to 5.
type FeedbackCommand struct {
	SessionID string
	UserID    string
	Rating    int
	Comment   string
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) deadline() time.Duration {
	if s.Deadline <= 0 {
		return defaultDeadline
	}
	return s.Deadline
}

// Evaluate resolves guidelines, runs the analyses under the overall
// deadline, aggregates, and persists the session exactly once.
func (s *Service) Evaluate(ctx context.Context, cmd EvaluateCommand) (*domain.Session, error) {
	if strings.TrimSpace(cmd.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}
	if !strings.Contains(cmd.UserEmail, "@") {
		return nil, fmt.Errorf("%w: user_email is required", domain.ErrInvalidRequest)
	}

	clock := application.ClockOrSystem(s.Clock)
	started := clock.Now()
	id := uuid.NewString()
	log := s.log().With(zap.String("session_id", id), zap.String("user_id", cmd.UserID))

	proposal, proposalRef, err := s.document(ctx, id, "proposal", cmd.ProposalText, cmd.ProposalFile)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(proposal) == "" {
		return nil, domain.ErrEmptyProposal
	}
	tor, torRef, err := s.document(ctx, id, "tor", cmd.TorText, cmd.TorFile)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(tor) == "" {
		return nil, domain.ErrEmptyToR
	}

	log.Info("evaluation_started", zap.Bool("has_organization", cmd.OrganizationID != ""))

	dctx, cancel := context.WithTimeout(ctx, s.deadline())
	defer cancel()

	// Audit rows for every guideline check are written here, before any
	// analysis is dispatched.
	resolved, err := s.Guidelines.Resolve(dctx, cmd.UserEmail, cmd.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("resolve guidelines: %w", err)
	}

	result, err := s.Analyzer.Analyze(dctx, AnalysisInput{
		Proposal:   proposal,
		ToR:        tor,
		Guidelines: resolved.Text(),
	})
	if err != nil {
		return nil, err
	}

	score, status := domain.Aggregate(result.Sections()...)
	if result.DeadlineExceeded {
		status = domain.StatusFailure
	}

	orgID := cmd.OrganizationID
	if resolved.Organization != nil {
		orgID = resolved.Organization.ID
	}

	completed := clock.Now()
	session := &domain.Session{
		ID:               id,
		UserID:           cmd.UserID,
		UserEmail:        cmd.UserEmail,
		OrganizationID:   orgID,
		ProposalText:     TruncateRunes(proposal, storedTextRunes),
		ProposalRef:      proposalRef,
		TorText:          TruncateRunes(tor, storedTextRunes),
		TorRef:           torRef,
		GuidelineIDs:     resolved.IDs(),
		Internal:         result.Internal,
		External:         result.External,
		Delta:            result.Delta,
		OverallScore:     score,
		Status:           status,
		ProcessingTimeMS: completed.Sub(started).Milliseconds(),
		CreatedAt:        started,
		CompletedAt:      completed,
	}

	// The caller's deadline must not abort the single write.
	pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer pcancel()
	if err := s.Sessions.Save(pctx, session); err != nil {
		log.Error("evaluation_persist_failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("guidelines", len(session.GuidelineIDs)),
		zap.Int64("processing_time_ms", session.ProcessingTimeMS),
	}
	if score != nil {
		fields = append(fields, zap.Float64("overall_score", *score))
	}
	log.Info("evaluation_complete", fields...)
	return session, nil
}

// document returns inline text when present, otherwise the extracted text
// of the upload. Uploads are stored when a DocumentStore is configured.
func (s *Service) document(ctx context.Context, sessionID, label, text string, file *Upload) (string, string, error) {
	if strings.TrimSpace(text) != "" || file == nil {
		return text, "", nil
	}
	if s.Extractor == nil {
		return "", "", fmt.Errorf("%w: file uploads are disabled", domain.ErrUnsupportedDocument)
	}

	extracted, err := s.Extractor.Extract(ctx, file.Filename, file.ContentType, bytes.NewReader(file.Data))
	if err != nil {
		return "", "", fmt.Errorf("extract %s: %w", label, err)
	}

	var ref string
	if s.Documents != nil {
		key := path.Join("evaluations", sessionID, label, path.Base(file.Filename))
		ref, err = s.Documents.Put(ctx, key, file.ContentType, file.Data)
		if err != nil {
			// The evaluation can proceed from the extracted text.
			s.log().Warn("document_upload_failed", zap.String("document", label), zap.Error(err))
			ref = ""
		}
	}
	return extracted, ref, nil
}

// Get returns a stored session or ErrSessionNotFound.
func (s *Service) Get(ctx context.Context, id string) (*domain.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrSessionNotFound
	}
	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// GetMany returns the stored sessions among ids, newest first. Malformed
// and unknown ids are skipped; duplicates are returned once.
func (s *Service) GetMany(ctx context.Context, ids []string) ([]*domain.Session, error) {
	if len(ids) > maxBatchIDs {
		return nil, fmt.Errorf("%w: at most %d session_ids per request", domain.ErrInvalidRequest, maxBatchIDs)
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sess, err := s.Sessions.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get session %s: %w", id, err)
		}
		if sess != nil {
			out = append(out, sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListByUser returns the user's sessions, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Summary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.Sessions.ListByUser(ctx, userID, limit, offset)
}

// Ask answers a follow-up question with the session's analyses as context.
func (s *Service) Ask(ctx context.Context, cmd FollowupCommand) (*domain.Followup, error) {
	if strings.TrimSpace(cmd.Question) == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidRequest)
	}
	if s.LLM == nil || s.Followup == nil {
		return nil, errors.New("follow-up answering is not configured")
	}
	sess, err := s.Get(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}

	req := s.Followup.Build(domain.PromptInput{
		EvaluationSummary: FollowupContext(sess),
		Question:          strings.TrimSpace(cmd.Question),
		Section:           cmd.Section,
	})
	if req.MaxTokens == 0 {
		req.MaxTokens = followupMaxTokens
	}
	answer, err := s.LLM.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("answer follow-up: %w", err)
	}

	f := &domain.Followup{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		UserID:    cmd.UserID,
		Question:  strings.TrimSpace(cmd.Question),
		Answer:    strings.TrimSpace(answer),
		CreatedAt: application.ClockOrSystem(s.Clock).Now(),
	}
	if err := s.Sessions.SaveFollowup(ctx, f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	s.log().Info("followup_answered", zap.String("session_id", sess.ID), zap.String("section", cmd.Section))
	return f, nil
}

// FollowupContext condenses a session's narratives for a follow-up prompt.
func FollowupContext(sess *domain.Session) string {
	var parts []string
	for _, sec := range sess.Sections() {
		if sec == nil || sec.Failed() {
			continue
		}
		parts = append(parts, fmt.Sprintf("**%s**: %s", sec.Title, TruncateRunes(sec.Narrative, followupRunes)))
	}
	if len(parts) == 0 {
		return "No analysis content is available for this session."
	}
	return strings.Join(parts, "\n\n")
}

// Rate stores reviewer feedback for a session.
func (s *Service) Rate(ctx context.Context, cmd FeedbackCommand) (*domain.Feedback, error) {
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrInvalidRequest)
	}
	sess, err := s.Get(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	f := &domain.Feedback{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		UserID:    cmd.UserID,
		Rating:    cmd.Rating,
		Comment:   strings.TrimSpace(cmd.Comment),
		CreatedAt: application.ClockOrSystem(s.Clock).Now(),
	}
	if err := s.Sessions.SaveFeedback(ctx, f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return f, nil
}
