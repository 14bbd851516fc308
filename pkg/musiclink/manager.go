package musiclink

import (
	"context"
	"fmt"

	"trackmirror/pkg/mirror"
)

// Manager dispatches identifiers to the first source that accepts them. It implements
// mirror.Loader.
type Manager struct {
	sources []Source
	limiter Limiter
}

// NewManager creates a manager over sources, tried in order.
func NewManager(sources ...Source) *Manager {
	return &Manager{sources: sources}
}

// SetLimiter makes every request ask limiter for permission first, keyed by source name.
func (m *Manager) SetLimiter(limiter Limiter) {
	m.limiter = limiter
}

// Load executes identifier on the matching source.
func (m *Manager) Load(ctx context.Context, identifier string) (mirror.LoadResult, error) {
	source := m.sourceFor(identifier)
	if source == nil {
		return mirror.NoMatch, fmt.Errorf("%w: %q", ErrNoSource, identifier)
	}

	if m.limiter != nil && !m.limiter.Allow(source.Name()) {
		return mirror.NoMatch, fmt.Errorf("%w: %s", ErrRateLimited, source.Name())
	}

	result, err := source.Load(ctx, identifier)
	if err != nil {
		return mirror.NoMatch, fmt.Errorf("%s: %w", source.Name(), err)
	}
	return result, nil
}

// CanLoad checks if any source handles the identifier.
func (m *Manager) CanLoad(identifier string) bool {
	return m.sourceFor(identifier) != nil
}

// SourceNames lists the configured sources in order.
func (m *Manager) SourceNames() []string {
	names := make([]string, 0, len(m.sources))
	for _, source := range m.sources {
		names = append(names, source.Name())
	}
	return names
}

func (m *Manager) sourceFor(identifier string) Source {
	for _, source := range m.sources {
		if source.CanLoad(identifier) {
			return source
		}
	}
	return nil
}
