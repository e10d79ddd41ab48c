package evaluation

// StatusOf derives the evaluation status from the failed-section count.
func StatusOf(sections ...*AnalysisSection) Status {
	failed := 0
	for _, s := range sections {
		if s.Failed() {
			failed++
		}
	}
	switch {
	case len(sections) == 0 || failed == len(sections):
		return StatusFailure
	case failed == 0:
		return StatusSuccess
	default:
		return StatusPartialSuccess
	}
}

// Aggregate returns the unweighted mean score of non-failed sections that
// carry a score. Failed sections are excluded from the mean, not counted as
// zero. With no qualifying section the score is nil and the status failure.
func Aggregate(sections ...*AnalysisSection) (*float64, Status) {
	var (
		sum float64
		n   int
	)
	for _, s := range sections {
		if s.Failed() || s.Score == nil {
			continue
		}
		sum += *s.Score
		n++
	}
	if n == 0 {
		return nil, StatusFailure
	}
	mean := sum / float64(n)
	return &mean, StatusOf(sections...)
}
