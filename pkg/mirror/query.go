package mirror

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ISRCPlaceholder is replaced by the reference ISRC with hyphens removed.
	ISRCPlaceholder = "%ISRC%"
	// QueryPlaceholder is replaced by the reference title and author.
	QueryPlaceholder = "%QUERY%"
	// DefaultFallbackPrefix is the provider used for the "official video" retry.
	DefaultFallbackPrefix = "ytsearch:"
	// fallbackSuffix is appended to the search query for the retry.
	fallbackSuffix = " official video"
)

var (
	// DefaultTemplates are used when no provider templates are configured:
	// an exact ISRC search first, then a free-text search.
	DefaultTemplates = []string{
		`ytsearch:"` + ISRCPlaceholder + `"`,
		"ytsearch:" + QueryPlaceholder,
	}

	// DefaultBlockedPrefixes are search prefixes that must never be used as mirrors:
	// the primary catalog itself and a catalog without arbitrary search.
	DefaultBlockedPrefixes = []string{"spsearch:", "amsearch:"}

	// ErrInvalidTemplate is returned for provider templates that cannot be parsed.
	ErrInvalidTemplate = errors.New("invalid provider template")
)

// TemplateKind distinguishes ISRC lookups from free-text searches.
type TemplateKind int

const (
	// TextQuery templates only need the reference title and author.
	TextQuery TemplateKind = iota
	// ISRCQuery templates need the reference ISRC and are skipped without one.
	ISRCQuery
)

func (k TemplateKind) String() string {
	if k == ISRCQuery {
		return "isrc"
	}
	return "text"
}

// Template is a parsed provider template such as `ytsearch:"%ISRC%"`.
type Template struct {
	kind    TemplateKind
	source  string
	pattern string
}

// ParseTemplate parses a single provider template. The source is the text up to and
// including the first colon; templates without one have an empty source.
func ParseTemplate(raw string) (Template, error) {
	pattern := strings.TrimSpace(raw)
	if pattern == "" {
		return Template{}, fmt.Errorf("%w: empty template", ErrInvalidTemplate)
	}

	kind := TextQuery
	if strings.Contains(pattern, ISRCPlaceholder) {
		kind = ISRCQuery
	}

	var source string
	if idx := strings.Index(pattern, ":"); idx > 0 {
		source = pattern[:idx+1]
	}

	return Template{kind: kind, source: source, pattern: pattern}, nil
}

// ParseTemplates parses provider templates in priority order. An empty list yields
// DefaultTemplates.
func ParseTemplates(raws []string) ([]Template, error) {
	if len(raws) == 0 {
		raws = DefaultTemplates
	}

	templates := make([]Template, 0, len(raws))
	for i, raw := range raws {
		t, err := ParseTemplate(raw)
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// Kind returns the template kind.
func (t Template) Kind() TemplateKind { return t.kind }

// Source returns the provider prefix, for example "ytsearch:".
func (t Template) Source() string { return t.source }

// String returns the raw template.
func (t Template) String() string { return t.pattern }

// Build substitutes the placeholders for ref. It reports false when the template
// needs an ISRC and ref has none.
func (t Template) Build(ref ReferenceTrack) (string, bool) {
	identifier := t.pattern
	if t.kind == ISRCQuery {
		if ref.ISRC == "" {
			return "", false
		}
		identifier = strings.ReplaceAll(identifier, ISRCPlaceholder, strings.ReplaceAll(ref.ISRC, "-", ""))
	}
	return strings.ReplaceAll(identifier, QueryPlaceholder, ref.SearchQuery()), true
}

// sourceOf returns the provider prefix of an identifier, used as a metrics label.
func sourceOf(identifier string) string {
	if idx := strings.Index(identifier, ":"); idx > 0 {
		return identifier[:idx]
	}
	return "unknown"
}
