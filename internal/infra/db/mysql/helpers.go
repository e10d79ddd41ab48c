package mysql

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

// jsonStrings encodes a list as a JSON array, never as null
func jsonStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeStrings(raw []byte) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
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

func sectionJSON(s *evaluation.AnalysisSection, kind evaluation.AnalysisKind) (string, error) {
	if s == nil {
		s = evaluation.FailedSection(kind)
	}
	b, err := json.Marshal(s)
	return string(b), err
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
