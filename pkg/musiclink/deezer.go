package musiclink

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trackmirror/pkg/mirror"
)

const (
	// DeezerSearchPrefix marks a free-text Deezer search.
	DeezerSearchPrefix = "dzsearch:"
	// DeezerISRCPrefix marks a Deezer lookup by ISRC.
	DeezerISRCPrefix = "dzisrc:"
	// DefaultDeezerAPIURL is the public Deezer API.
	DefaultDeezerAPIURL = "https://api.deezer.com"
	// DefaultDeezerSearchLimit is the number of search results requested.
	DefaultDeezerSearchLimit = 10
	// deezerNoDataCode is the API error code for an unknown resource.
	deezerNoDataCode = 800
)

// DeezerSource loads tracks from the Deezer API.
type DeezerSource struct {
	client *http.Client
	apiURL string
	limit  int
}

// NewDeezerSource creates a Deezer source. Empty or zero arguments select the defaults.
func NewDeezerSource(apiURL string, limit int) *DeezerSource {
	if apiURL == "" {
		apiURL = DefaultDeezerAPIURL
	}
	if limit <= 0 {
		limit = DefaultDeezerSearchLimit
	}
	return &DeezerSource{
		client: newHTTPClient(),
		apiURL: strings.TrimRight(apiURL, "/"),
		limit:  limit,
	}
}

func (s *DeezerSource) Name() string { return "deezer" }

// CanLoad checks for a Deezer search or ISRC identifier.
func (s *DeezerSource) CanLoad(identifier string) bool {
	return strings.HasPrefix(identifier, DeezerSearchPrefix) || strings.HasPrefix(identifier, DeezerISRCPrefix)
}

// Load runs a search (collection) or an ISRC lookup (single track).
func (s *DeezerSource) Load(ctx context.Context, identifier string) (mirror.LoadResult, error) {
	if isrc, ok := queryAfterPrefix(identifier, DeezerISRCPrefix); ok {
		return s.lookupISRC(ctx, strings.Trim(isrc, `"`))
	}
	if query, ok := queryAfterPrefix(identifier, DeezerSearchPrefix); ok {
		return s.search(ctx, query)
	}
	return mirror.NoMatch, fmt.Errorf("not a Deezer identifier: %q", identifier)
}

func (s *DeezerSource) search(ctx context.Context, query string) (mirror.LoadResult, error) {
	if query == "" {
		return mirror.NoMatch, nil
	}

	reqURL := fmt.Sprintf("%s/search?q=%s&limit=%d", s.apiURL, url.QueryEscape(query), s.limit)

	var resp deezerSearchResponse
	if err := fetchJSON(ctx, s.client, reqURL, "deezer", &resp); err != nil {
		return mirror.NoMatch, err
	}
	if resp.Error != nil {
		return mirror.NoMatch, fmt.Errorf("deezer API error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	tracks := make([]mirror.Track, 0, len(resp.Data))
	for _, item := range resp.Data {
		tracks = append(tracks, item.toTrack())
	}
	return mirror.Collection(tracks), nil
}

func (s *DeezerSource) lookupISRC(ctx context.Context, isrc string) (mirror.LoadResult, error) {
	if isrc == "" {
		return mirror.NoMatch, nil
	}

	reqURL := fmt.Sprintf("%s/track/isrc:%s", s.apiURL, url.PathEscape(isrc))

	var resp deezerTrackResponse
	if err := fetchJSON(ctx, s.client, reqURL, "deezer", &resp); err != nil {
		return mirror.NoMatch, err
	}
	if resp.Error != nil {
		if resp.Error.Code == deezerNoDataCode {
			return mirror.NoMatch, nil
		}
		return mirror.NoMatch, fmt.Errorf("deezer API error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.ID == 0 {
		return mirror.NoMatch, nil
	}

	return mirror.SingleTrack(resp.toTrack()), nil
}

// Deezer API response types

type deezerSearchResponse struct {
	Data  []deezerTrack `json:"data"`
	Error *deezerError  `json:"error,omitempty"`
}

type deezerTrackResponse struct {
	deezerTrack
	Error *deezerError `json:"error,omitempty"`
}

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerTrack struct {
	ID         int64        `json:"id"`
	Title      string       `json:"title"`
	TitleShort string       `json:"title_short"`
	Link       string       `json:"link"`
	ISRC       string       `json:"isrc"`
	Duration   int          `json:"duration"`
	Artist     deezerArtist `json:"artist"`
}

type deezerArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (t deezerTrack) toTrack() mirror.Track {
	title := t.Title
	if title == "" {
		title = t.TitleShort
	}
	return mirror.Track{
		Title:      title,
		Author:     t.Artist.Name,
		Duration:   time.Duration(t.Duration) * time.Second,
		Identifier: strconv.FormatInt(t.ID, 10),
		URI:        t.Link,
		ISRC:       t.ISRC,
		Source:     "deezer",
	}
}
