package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	domain "github.com/bryanwahyu/tor-evaluator/internal/domain/evaluation"
)

type SessionRepository struct{ db *sql.DB }

func NewSessionRepository(db *sql.DB) *SessionRepository { return &SessionRepository{db: db} }

// Save inserts a finished session. Sessions are immutable, so an existing
// id is an error rather than an update.
func (r *SessionRepository) Save(ctx context.Context, s *domain.Session) error {
	const q = `
INSERT INTO evaluator_sessions
(session_id, user_id, user_email, organization_id,
 proposal_text, proposal_url, tor_text, tor_url, guideline_ids,
 internal_analysis, external_analysis, delta_analysis,
 overall_score, status, processing_time_ms, created_at, completed_at)
VALUES ($1,$2,$3,$4,
        $5,$6,$7,$8,$9,
        $10,$11,$12,
        $13,$14,$15,$16,$17);`

	internal, err := sectionJSON(s.Internal, domain.KindInternal)
	if err != nil {
		return fmt.Errorf("encode internal analysis: %w", err)
	}
	external, err := sectionJSON(s.External, domain.KindExternal)
	if err != nil {
		return fmt.Errorf("encode external analysis: %w", err)
	}
	delta, err := sectionJSON(s.Delta, domain.KindDelta)
	if err != nil {
		return fmt.Errorf("encode delta analysis: %w", err)
	}

	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.UserID, s.UserEmail, s.OrganizationID,
		s.ProposalText, s.ProposalRef, s.TorText, s.TorRef, pq.Array(s.GuidelineIDs),
		internal, external, delta,
		nullFloat(s.OverallScore), string(s.Status), s.ProcessingTimeMS, s.CreatedAt, s.CompletedAt,
	)
	return err
}

// Get returns nil, nil when the session does not exist.
func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	const q = `
SELECT session_id, user_id, user_email, organization_id,
       proposal_text, proposal_url, tor_text, tor_url, guideline_ids,
       internal_analysis, external_analysis, delta_analysis,
       overall_score, status, processing_time_ms, created_at, completed_at
FROM evaluator_sessions
WHERE session_id = $1
LIMIT 1;`

	var (
		s                         domain.Session
		guidelineIDs              pq.StringArray
		internal, external, delta []byte
		score                     sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.UserID, &s.UserEmail, &s.OrganizationID,
		&s.ProposalText, &s.ProposalRef, &s.TorText, &s.TorRef, &guidelineIDs,
		&internal, &external, &delta,
		&score, &s.Status, &s.ProcessingTimeMS, &s.CreatedAt, &s.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.GuidelineIDs = []string(guidelineIDs)
	s.OverallScore = floatPtr(score)
	if s.Internal, err = decodeSection(internal, domain.KindInternal); err != nil {
		return nil, fmt.Errorf("decode internal analysis: %w", err)
	}
	if s.External, err = decodeSection(external, domain.KindExternal); err != nil {
		return nil, fmt.Errorf("decode external analysis: %w", err)
	}
	if s.Delta, err = decodeSection(delta, domain.KindDelta); err != nil {
		return nil, fmt.Errorf("decode delta analysis: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT session_id, overall_score, status, created_at
FROM evaluator_sessions
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*domain.Summary{}
	for rows.Next() {
		var (
			s     domain.Summary
			score sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &score, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.OverallScore = floatPtr(score)
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *SessionRepository) SaveFollowup(ctx context.Context, f *domain.Followup) error {
	const q = `
INSERT INTO evaluator_followups (followup_id, session_id, user_id, question, answer, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := r.db.ExecContext(ctx, q, f.ID, f.SessionID, stringOrDash(f.UserID), f.Question, f.Answer, f.CreatedAt)
	return err
}

func (r *SessionRepository) SaveFeedback(ctx context.Context, f *domain.Feedback) error {
	const q = `
INSERT INTO evaluator_feedback (feedback_id, session_id, user_id, rating, comment, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := r.db.ExecContext(ctx, q, f.ID, f.SessionID, stringOrDash(f.UserID), f.Rating, f.Comment, f.CreatedAt)
	return err
}
