// Package musiclink executes provider queries such as "dzsearch:daft punk" against music catalogs
// and returns the tracks they find.
package musiclink

import (
	"context"
	"errors"

	"trackmirror/pkg/mirror"
)

var (
	// ErrNoSource is returned when no source accepts an identifier.
	ErrNoSource = errors.New("no source found for identifier")
	// ErrRateLimited is returned when a source has used up its request budget.
	ErrRateLimited = errors.New("source rate limited")
	// ErrMissingAPIKey is returned by sources that need an API key and have none.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Source executes identifiers for one catalog.
type Source interface {
	// Name identifies the source in logs, metrics and rate limits.
	Name() string

	// CanLoad checks if this source handles the given identifier.
	CanLoad(identifier string) bool

	// Load executes the identifier.
	Load(ctx context.Context, identifier string) (mirror.LoadResult, error)
}

// Limiter decides whether another request for key may go out now.
type Limiter interface {
	Allow(key string) bool
}
