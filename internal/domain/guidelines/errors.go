package guidelines

import "errors"

var (
	// ErrGuidelineNotFound marks an absent or inactive guideline. It is
	// reported to callers as a denied check, never as an error.
	ErrGuidelineNotFound = errors.New("guideline not found")
	// ErrAccessDenied marks a guideline that no tier exposes to the caller.
	ErrAccessDenied = errors.New("guideline access denied")
	// ErrAuditWrite is returned when an access check could not be recorded.
	ErrAuditWrite = errors.New("guideline audit write failed")
)
