package evaluation

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	scoreKeywordRe = regexp.MustCompile(`(?i)\bscore\b`)
	numberRe       = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	scoreRatioRe   = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*/\s*100\b`)
	headerRe       = regexp.MustCompile(`(?i)^(title|overall score|score|key strengths|strengths?|critical gaps|minor gaps|key gaps|gaps|weaknesses|key recommendations|recommendations?|detailed analysis|analysis|narrative)\s*(?:\([^)]*\))?\s*(?::\s*(.*))?$`)
	listItemRe     = regexp.MustCompile(`^(?:[-*•+]|\d+[.)])\s+(.*)$`)
)

type block int

const (
	blockPreamble block = iota
	blockNarrative
	blockGaps
	blockStrengths
	blockRecommendations
)

// Parse converts one raw model response into an AnalysisSection. It never
// panics; input it cannot make sense of lowers ParseConfidence instead.
func Parse(kind AnalysisKind, raw string) (sec *AnalysisSection) {
	if strings.TrimSpace(raw) == "" {
		return FailedSection(kind)
	}

	defer func() {
		if r := recover(); r != nil {
			sec = &AnalysisSection{
				Kind:            kind,
				Title:           kind.DefaultTitle(),
				Narrative:       strings.TrimSpace(raw),
				Gaps:            []string{},
				Strengths:       []string{},
				Recommendations: []string{},
				ParseConfidence: ConfidencePartial,
			}
		}
	}()

	sec = &AnalysisSection{
		Kind:            kind,
		Gaps:            []string{},
		Strengths:       []string{},
		Recommendations: []string{},
	}
	sec.Score = ExtractScore(raw)

	var (
		narrative  []string
		current    = blockPreamble
		structured = sec.Score != nil
	)

	appendItem := func(b block, item string) {
		item = cleanInline(item)
		if item == "" {
			return
		}
		switch b {
		case blockGaps:
			sec.Gaps = append(sec.Gaps, item)
		case blockStrengths:
			sec.Strengths = append(sec.Strengths, item)
		case blockRecommendations:
			sec.Recommendations = append(sec.Recommendations, item)
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if name, rest, ok := matchHeader(trimmed); ok {
			structured = true
			switch name {
			case "title":
				if rest != "" && sec.Title == "" {
					sec.Title = cleanInline(rest)
				}
				current = blockNarrative
			case "score", "overall score":
				current = blockNarrative
			case "detailed analysis", "analysis", "narrative":
				current = blockNarrative
				if rest != "" {
					narrative = append(narrative, rest)
				}
			default:
				current = listBlock(name)
				appendItem(current, rest)
			}
			continue
		}

		if strings.HasPrefix(trimmed, "#") && sec.Title == "" && current == blockPreamble {
			if t := cleanInline(strings.TrimLeft(trimmed, "# ")); t != "" {
				sec.Title = t
				structured = true
				continue
			}
		}

		switch current {
		case blockGaps, blockStrengths, blockRecommendations:
			if m := listItemRe.FindStringSubmatch(trimmed); m != nil {
				appendItem(current, m[1])
				continue
			}
		}
		narrative = append(narrative, strings.TrimRight(line, " \t"))
	}

	if sec.Title == "" {
		sec.Title = kind.DefaultTitle()
	}
	if structured {
		sec.Narrative = joinNarrative(narrative)
	} else {
		sec.Narrative = strings.TrimSpace(raw)
	}

	sec.ParseConfidence = ConfidencePartial
	if sec.Score != nil && (len(sec.Gaps) > 0 || len(sec.Strengths) > 0 || len(sec.Recommendations) > 0) {
		sec.ParseConfidence = ConfidenceFull
	}
	return sec
}

// ExtractScore returns the score named on the first "score" line that
// carries a number, or failing that the first "NN/100" ratio. On a keyword
// line the value after the colon wins, and range bounds ("0-100") and
// scales ("out of 100") are skipped. Values outside [0, 100] yield nil.
func ExtractScore(raw string) *float64 {
	for _, loc := range scoreKeywordRe.FindAllStringIndex(raw, -1) {
		rest := raw[loc[1]:]
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[:i]
		}
		if v, ok := scoreOnLine(rest); ok {
			return inRange(v)
		}
	}
	if m := scoreRatioRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return inRange(v)
		}
	}
	return nil
}

func inRange(v float64) *float64 {
	if v < 0 || v > 100 {
		return nil
	}
	return &v
}

func scoreOnLine(rest string) (float64, bool) {
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		if v, ok := firstValue(rest[i+1:]); ok {
			return v, true
		}
	}
	return firstValue(rest)
}

// firstValue returns the first number in s that is not a range bound, a
// denominator or an "out of" scale.
func firstValue(s string) (float64, bool) {
	for _, loc := range numberRe.FindAllStringIndex(s, -1) {
		tok := s[loc[0]:loc[1]]
		pre := strings.TrimRight(s[:loc[0]], " \t")
		post := strings.TrimLeft(s[loc[1]:], " \t")

		if tok[0] == '-' && endsWithDigit(pre) {
			continue // "0-100": upper bound
		}
		if p := strings.TrimSuffix(strings.TrimSuffix(pre, "-"), "–"); p != pre && endsWithDigit(strings.TrimRight(p, " \t")) {
			continue // "0 – 100": upper bound
		}
		if startsWithRangeDash(post) {
			continue // lower bound
		}
		if strings.HasSuffix(pre, "/") || strings.HasSuffix(strings.ToLower(pre), "out of") {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}

func endsWithDigit(s string) bool {
	return s != "" && s[len(s)-1] >= '0' && s[len(s)-1] <= '9'
}

func startsWithRangeDash(s string) bool {
	for _, dash := range []string{"-", "–"} {
		if rest, ok := strings.CutPrefix(s, dash); ok {
			rest = strings.TrimLeft(rest, " \t")
			return rest != "" && rest[0] >= '0' && rest[0] <= '9'
		}
	}
	return false
}

func matchHeader(line string) (name, rest string, ok bool) {
	if line == "" {
		return "", "", false
	}
	norm := strings.TrimLeft(line, "# ")
	norm = strings.ReplaceAll(norm, "**", "")
	norm = strings.ReplaceAll(norm, "__", "")
	norm = strings.TrimSpace(norm)
	m := headerRe.FindStringSubmatch(norm)
	if m == nil {
		return "", "", false
	}
	return strings.ToLower(m[1]), strings.TrimSpace(m[2]), true
}

func listBlock(header string) block {
	switch {
	case strings.Contains(header, "strength"):
		return blockStrengths
	case strings.Contains(header, "recommendation"):
		return blockRecommendations
	default:
		return blockGaps
	}
}

func cleanInline(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	return strings.TrimSpace(s)
}

func joinNarrative(lines []string) string {
	out := make([]string, 0, len(lines))
	blank := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, l)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
