package scraper

import (
	"context"
	"errors"

	"github.com/maltedev/market-scout/internal/models"
)

var (
	ErrNavigationFailed     = errors.New("navigation failed")
	ErrExtractionIncomplete = errors.New("extraction incomplete")
	ErrChallengeTimedOut    = errors.New("challenge not cleared")
	ErrUnknownSource        = errors.New("unknown source")
)

// Adapter searches one external site. A fatal error comes back with no
// listings; non-fatal problems (ErrExtractionIncomplete, ErrChallengeTimedOut)
// are joined into the error returned next to whatever listings were gathered.
type Adapter interface {
	Name() string
	Kind() models.SourceKind
	Search(ctx context.Context, keyword string, limit int) ([]models.Listing, error)
}

// IsFatal reports whether err means the adapter produced nothing usable.
// Joined errors are fatal only if some part of them is.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if IsFatal(e) {
				return true
			}
		}
		return false
	}
	return !errors.Is(err, ErrExtractionIncomplete) && !errors.Is(err, ErrChallengeTimedOut)
}

// Warnings flattens a non-fatal error into display strings.
func Warnings(err error) []string {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, Warnings(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
