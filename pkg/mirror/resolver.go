package mirror

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Query statuses reported to the Observer.
const (
	StatusSkipped  = "skipped"
	StatusError    = "error"
	StatusEmpty    = "empty"
	StatusMatched  = "matched"
	StatusRejected = "rejected"
)

// Resolution outcomes reported to the Observer.
const (
	OutcomeMatched  = "matched"
	OutcomeFallback = "fallback"
	OutcomeNoMatch  = "no_match"
	OutcomeCanceled = "canceled"
)

// Resolver finds the best mirror of a reference track by running provider templates in
// priority order, then one fallback query. It holds read-only configuration and is safe
// for concurrent use.
type Resolver struct {
	loader         Loader
	templates      []Template
	blocked        []string
	fallbackPrefix string
	observer       Observer
	logger         *zap.Logger
}

// Option customises the Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver sets the receiver of query and resolution events.
func WithObserver(observer Observer) Option {
	return func(r *Resolver) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// WithBlockedPrefixes replaces the source prefixes that are never queried.
func WithBlockedPrefixes(prefixes ...string) Option {
	return func(r *Resolver) {
		r.blocked = append([]string(nil), prefixes...)
	}
}

// WithFallbackPrefix overrides the provider used for the fallback query.
func WithFallbackPrefix(prefix string) Option {
	return func(r *Resolver) {
		if prefix != "" {
			r.fallbackPrefix = prefix
		}
	}
}

// NewResolver creates a Resolver that executes queries through loader. When templates
// is empty, DefaultTemplates are used.
func NewResolver(loader Loader, templates []Template, opts ...Option) *Resolver {
	r := &Resolver{
		loader:         loader,
		templates:      append([]Template(nil), templates...),
		blocked:        append([]string(nil), DefaultBlockedPrefixes...),
		fallbackPrefix: DefaultFallbackPrefix,
		observer:       noopObserver{},
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if len(r.templates) == 0 {
		// DefaultTemplates always parse.
		r.templates, _ = ParseTemplates(nil)
	}

	return r
}

// Templates returns the provider templates in priority order.
func (r *Resolver) Templates() []Template {
	return append([]Template(nil), r.templates...)
}

// Resolve finds the best match for ref. It reports false when neither the provider
// templates nor the fallback query produce one. Provider failures are logged and never
// abort the resolution.
func (r *Resolver) Resolve(ctx context.Context, ref ReferenceTrack) (Resolution, bool) {
	start := time.Now()
	resolution, outcome := r.resolve(ctx, ref)
	r.observer.ResolutionObserved(outcome, time.Since(start))

	switch outcome {
	case OutcomeMatched, OutcomeFallback:
		r.logger.Info("Resolved track",
			zap.String("title", ref.Title),
			zap.String("author", ref.Author),
			zap.String("identifier", resolution.Identifier),
			zap.String("match_title", resolution.Track.Title),
			zap.String("match_author", resolution.Track.Author),
			zap.Bool("fallback", resolution.Fallback))
		return resolution, true
	default:
		r.logger.Info("No match found",
			zap.String("title", ref.Title),
			zap.String("author", ref.Author),
			zap.String("outcome", outcome))
		return Resolution{}, false
	}
}

func (r *Resolver) resolve(ctx context.Context, ref ReferenceTrack) (Resolution, string) {
	for _, t := range r.templates {
		if err := ctx.Err(); err != nil {
			r.logger.Debug("Resolution canceled", zap.Error(err))
			return Resolution{}, OutcomeCanceled
		}

		identifier, ok := r.buildQuery(t, ref)
		if !ok {
			continue
		}

		result, err := r.loader.Load(ctx, identifier)
		if err != nil {
			r.logger.Error("Failed to load provider query",
				zap.String("identifier", identifier),
				zap.Error(err))
			r.observer.QueryObserved(sourceOf(identifier), StatusError)
			continue
		}

		if result.Empty() {
			r.logger.Debug("Provider query returned nothing", zap.String("identifier", identifier))
			r.observer.QueryObserved(sourceOf(identifier), StatusEmpty)
			continue
		}

		if result.Kind == ResultTrack {
			r.observer.QueryObserved(sourceOf(identifier), StatusMatched)
			return Resolution{Track: *result.Track, Identifier: identifier}, OutcomeMatched
		}

		if best, found := r.rank(result.Tracks, ref, identifier, false); found {
			r.observer.QueryObserved(sourceOf(identifier), StatusMatched)
			return Resolution{Track: best, Identifier: identifier}, OutcomeMatched
		}
		r.observer.QueryObserved(sourceOf(identifier), StatusRejected)
	}

	if err := ctx.Err(); err != nil {
		return Resolution{}, OutcomeCanceled
	}
	return r.fallback(ctx, ref)
}

func (r *Resolver) buildQuery(t Template, ref ReferenceTrack) (string, bool) {
	for _, prefix := range r.blocked {
		if strings.HasPrefix(t.String(), prefix) {
			r.logger.Debug("Skipping blocked provider template",
				zap.String("template", t.String()),
				zap.String("prefix", prefix))
			r.observer.QueryObserved(sourceOf(t.String()), StatusSkipped)
			return "", false
		}
	}

	identifier, ok := t.Build(ref)
	if !ok {
		r.logger.Debug("Skipping ISRC template without ISRC",
			zap.String("template", t.String()),
			zap.String("title", ref.Title))
		r.observer.QueryObserved(sourceOf(t.String()), StatusSkipped)
		return "", false
	}
	return identifier, true
}

func (r *Resolver) fallback(ctx context.Context, ref ReferenceTrack) (Resolution, string) {
	identifier := r.fallbackPrefix + ref.SearchQuery() + fallbackSuffix
	source := sourceOf(identifier)

	r.logger.Debug("Trying fallback query", zap.String("identifier", identifier))

	result, err := r.loader.Load(ctx, identifier)
	if err != nil {
		r.logger.Error("Fallback query failed",
			zap.String("identifier", identifier),
			zap.Error(err))
		r.observer.QueryObserved(source, StatusError)
		return Resolution{}, OutcomeNoMatch
	}

	if result.Kind != ResultCollection || result.Empty() {
		r.observer.QueryObserved(source, StatusEmpty)
		return Resolution{}, OutcomeNoMatch
	}

	best, found := r.rank(result.Tracks, ref, identifier, true)
	if !found {
		r.observer.QueryObserved(source, StatusRejected)
		return Resolution{}, OutcomeNoMatch
	}

	r.observer.QueryObserved(source, StatusMatched)
	return Resolution{Track: best, Identifier: identifier, Fallback: true}, OutcomeFallback
}

func (r *Resolver) rank(candidates []Track, ref ReferenceTrack, identifier string, retry bool) (Track, bool) {
	best, found := bestCandidate(candidates, ref)
	if !found {
		r.logger.Debug("No candidate within duration tolerance",
			zap.String("identifier", identifier),
			zap.Int("candidates", len(candidates)),
			zap.Duration("reference_duration", ref.Duration),
			zap.Bool("retry", retry))
		return Track{}, false
	}

	r.logger.Debug("Selected best match",
		zap.String("identifier", identifier),
		zap.String("title", best.Title),
		zap.String("author", best.Author),
		zap.Float64("score", best.Score),
		zap.Int("index", best.Index),
		zap.Bool("explicit", ref.IsExplicit()),
		zap.Bool("retry", retry))
	return best.Track, true
}
