// Package mirror resolves a track from a primary catalog to its best equivalent on secondary
// search providers. It drives an ordered list of provider query templates through a Loader,
// ranks the returned candidates and falls back to a single retry query when nothing matches.
package mirror

import (
	"context"
	"strings"
	"time"
)

const (
	// UnknownAuthor is the author value used by catalogs when no artist is known.
	UnknownAuthor = "unknown"
	// explicitMarker is the URI token that flags a reference track as explicit.
	explicitMarker = "explicit=true"
)

// ReferenceTrack is the track from the primary catalog that needs a playable equivalent.
type ReferenceTrack struct {
	Title    string
	Author   string
	Duration time.Duration
	ISRC     string
	URI      string
}

// IsExplicit reports whether the reference track's URI carries the explicit flag.
func (r ReferenceTrack) IsExplicit() bool {
	return r.URI != "" && strings.Contains(r.URI, explicitMarker)
}

// SearchQuery returns the free-text query for the reference: the title, followed by
// the author unless the author is unknown.
func (r ReferenceTrack) SearchQuery() string {
	if r.Author == UnknownAuthor {
		return r.Title
	}
	return r.Title + " " + r.Author
}

// Track is a playable track returned by a secondary provider.
type Track struct {
	Title      string
	Author     string
	Duration   time.Duration
	Identifier string
	URI        string
	ISRC       string
	Source     string
}

// ResultKind tells which shape a LoadResult has.
type ResultKind int

const (
	// ResultNoMatch means the provider found nothing.
	ResultNoMatch ResultKind = iota
	// ResultTrack means the provider returned one definitive track.
	ResultTrack
	// ResultCollection means the provider returned a list of candidates.
	ResultCollection
)

func (k ResultKind) String() string {
	switch k {
	case ResultTrack:
		return "track"
	case ResultCollection:
		return "collection"
	default:
		return "no_match"
	}
}

// LoadResult is the outcome of executing one query against a provider.
type LoadResult struct {
	Kind   ResultKind
	Track  *Track
	Tracks []Track
}

// NoMatch is the sentinel result for a query that found nothing.
var NoMatch = LoadResult{Kind: ResultNoMatch}

// SingleTrack wraps one definitive track.
func SingleTrack(track Track) LoadResult {
	return LoadResult{Kind: ResultTrack, Track: &track}
}

// Collection wraps a list of candidate tracks.
func Collection(tracks []Track) LoadResult {
	return LoadResult{Kind: ResultCollection, Tracks: tracks}
}

// Empty reports whether the result carries no usable track.
func (r LoadResult) Empty() bool {
	switch r.Kind {
	case ResultTrack:
		return r.Track == nil
	case ResultCollection:
		return len(r.Tracks) == 0
	default:
		return true
	}
}

// Loader executes a provider identifier such as "ytsearch:daft punk" and returns what it found.
type Loader interface {
	Load(ctx context.Context, identifier string) (LoadResult, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, identifier string) (LoadResult, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, identifier string) (LoadResult, error) {
	return f(ctx, identifier)
}

// Resolution is a successfully resolved reference track.
type Resolution struct {
	Track      Track
	Identifier string
	Fallback   bool
}

// Observer receives resolution events, typically to export metrics.
type Observer interface {
	QueryObserved(source, status string)
	ResolutionObserved(outcome string, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) QueryObserved(string, string)             {}
func (noopObserver) ResolutionObserved(string, time.Duration) {}
