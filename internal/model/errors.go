package model

import "errors"

// Sentinel errors returned by services and mapped to HTTP codes by the
// handler layer.
var (
	ErrJobNotFound         = errors.New("job not found")
	ErrSiteNotFound        = errors.New("site not found")
	ErrVersionNotFound     = errors.New("version not found")
	ErrNotOwner            = errors.New("resource belongs to another user")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidTransition   = errors.New("invalid job transition")
	ErrNoPreviousVersion   = errors.New("no previous version")
	ErrNoNextVersion       = errors.New("no next version")
	ErrGenerationFailed    = errors.New("generation failed")
)
