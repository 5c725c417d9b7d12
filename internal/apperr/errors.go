package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrContentNotRetained = errors.New("content not retained for this version")
	ErrAllYanked          = errors.New("all versions are yanked")
	ErrInvalidManifest    = errors.New("invalid manifest")
	ErrBlocked            = errors.New("blocked by trust policy")
	ErrInvalidSkill       = errors.New("invalid skill")
)

// LoadError is a per-skill failure recorded by the registry loader. It never
// aborts a full load; the skill is omitted and the error reported.
type LoadError struct {
	Owner string
	Name  string
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s/%s (%s): %v", e.Owner, e.Name, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RefreshError reports a failed refresh stage for one source. The previously
// published snapshot stays in place.
type RefreshError struct {
	Source string
	Stage  string
	Err    error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refresh %s: %s: %v", e.Source, e.Stage, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
