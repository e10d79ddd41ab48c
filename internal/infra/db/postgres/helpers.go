package postgres

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/bryanwahyu/tor-evaluator/internal/domain/evaluation"
)

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// sectionJSON never stores SQL NULL; a missing section is stored as failed.
func sectionJSON(s *evaluation.AnalysisSection, kind evaluation.AnalysisKind) ([]byte, error) {
	if s == nil {
		s = evaluation.FailedSection(kind)
	}
	return json.Marshal(s)
}

func decodeSection(raw []byte, kind evaluation.AnalysisKind) (*evaluation.AnalysisSection, error) {
	if len(raw) == 0 {
		return evaluation.FailedSection(kind), nil
	}
	var s evaluation.AnalysisSection
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
