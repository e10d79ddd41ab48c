package evaluation

import "time"

// AnalysisKind identifies one of the three analyses of an evaluation
type AnalysisKind string

const (
	KindInternal AnalysisKind = "P_Internal"
	KindExternal AnalysisKind = "P_External"
	KindDelta    AnalysisKind = "P_Delta"
)

// Kinds lists the analyses in presentation order.
var Kinds = []AnalysisKind{KindInternal, KindExternal, KindDelta}

// DefaultTitle is used when the model response carries no title line.
func (k AnalysisKind) DefaultTitle() string {
	switch k {
	case KindInternal:
		return "Internal Consistency Analysis"
	case KindExternal:
		return "ToR Alignment Analysis"
	case KindDelta:
		return "Gap Analysis"
	}
	return string(k)
}

// Label is the short human name used inside prompts.
func (k AnalysisKind) Label() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindExternal:
		return "External"
	case KindDelta:
		return "Delta"
	}
	return string(k)
}

// ParseConfidence records how much structure was recovered from a response
type ParseConfidence string

const (
	ConfidenceFull    ParseConfidence = "full"
	ConfidencePartial ParseConfidence = "partial"
	ConfidenceFailed  ParseConfidence = "failed"
)

// Status is the overall outcome of an evaluation
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial success"
	StatusFailure        Status = "failure"
)

// AnalysisSection is the typed result of one analysis
type AnalysisSection struct {
	Kind            AnalysisKind    `json:"kind"`
	Title           string          `json:"title"`
	Narrative       string          `json:"narrative"`
	Score           *float64        `json:"score"`
	Gaps            []string        `json:"gaps"`
	Strengths       []string        `json:"strengths"`
	Recommendations []string        `json:"recommendations"`
	ParseConfidence ParseConfidence `json:"parse_confidence"`
}

// Failed reports whether the section carries no usable analysis.
func (s *AnalysisSection) Failed() bool {
	return s == nil || s.ParseConfidence == ConfidenceFailed
}

// FailedSection is the placeholder recorded when an analysis could not be
// obtained.
func FailedSection(kind AnalysisKind) *AnalysisSection {
	return &AnalysisSection{
		Kind:            kind,
		Title:           kind.DefaultTitle(),
		Gaps:            []string{},
		Strengths:       []string{},
		Recommendations: []string{},
		ParseConfidence: ConfidenceFailed,
	}
}

// Session is one immutable evaluation run.
type Session struct {
	ID               string           `json:"session_id"`
	UserID           string           `json:"user_id"`
	UserEmail        string           `json:"user_email"`
	OrganizationID   string           `json:"organization_id"`
	ProposalText     string           `json:"proposal_text"`
	ProposalRef      string           `json:"proposal_ref,omitempty"`
	TorText          string           `json:"tor_text"`
	TorRef           string           `json:"tor_ref,omitempty"`
	GuidelineIDs     []string         `json:"guideline_ids"`
	Internal         *AnalysisSection `json:"internal_analysis"`
	External         *AnalysisSection `json:"external_analysis"`
	Delta            *AnalysisSection `json:"delta_analysis"`
	OverallScore     *float64         `json:"overall_score"`
	Status           Status           `json:"status"`
	ProcessingTimeMS int64            `json:"processing_time_ms"`
	CreatedAt        time.Time        `json:"created_at"`
	CompletedAt      time.Time        `json:"completed_at"`
}

// Sections returns the three analyses in presentation order.
func (s *Session) Sections() []*AnalysisSection {
	return []*AnalysisSection{s.Internal, s.External, s.Delta}
}

// Summary is the list view of a session.
type Summary struct {
	ID           string    `json:"session_id"`
	OverallScore *float64  `json:"overall_score"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Followup is a question asked about a completed session.
type Followup struct {
	ID        string    `json:"followup_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Feedback is a reviewer's rating of a completed session.
type Feedback struct {
	ID        string    `json:"feedback_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
