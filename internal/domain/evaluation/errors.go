package evaluation

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid evaluation request")
	ErrEmptyProposal       = errors.New("proposal text is empty")
	ErrEmptyToR            = errors.New("terms of reference text is empty")
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrSessionNotFound     = errors.New("evaluation session not found")
	// ErrPersistence is fatal for the whole evaluation; nothing is assumed
	// to have been stored.
	ErrPersistence = errors.New("evaluation persistence failed")
)
