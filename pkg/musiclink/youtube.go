package musiclink

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"trackmirror/pkg/mirror"
)

const (
	// YouTubeSearchPrefix marks a YouTube video search.
	YouTubeSearchPrefix = "ytsearch:"
	// DefaultYouTubeAPIURL is the YouTube Data API v3 endpoint.
	DefaultYouTubeAPIURL = "https://www.googleapis.com/youtube/v3"
	// DefaultYouTubeMaxResults is the number of search results requested.
	DefaultYouTubeMaxResults = 10
	// youtubeMaxResultsLimit is the largest page the search API accepts.
	youtubeMaxResultsLimit = 50
	// youtubeWatchURL is the prefix of a playable video URL.
	youtubeWatchURL = "https://www.youtube.com/watch?v="
	// youtubeExpectedSplitParts is the expected number of parts when splitting title/artist strings.
	youtubeExpectedSplitParts = 2
)

var (
	isoDurationRegex = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)
	camelCaseRegex   = regexp.MustCompile(`([a-z])([A-Z])`)
	videoMarkerRegex = regexp.MustCompile(`(?i)\s*[(\[](official (music )?video|official audio|lyric video|lyrics|hd|4k)[)\]]`)
)

// YouTubeSource searches videos through the YouTube Data API.
type YouTubeSource struct {
	client     *http.Client
	apiURL     string
	apiKey     string
	maxResults int
}

// NewYouTubeSource creates a YouTube source. Empty or zero arguments select the defaults.
func NewYouTubeSource(apiKey, apiURL string, maxResults int) *YouTubeSource {
	if apiURL == "" {
		apiURL = DefaultYouTubeAPIURL
	}
	if maxResults <= 0 {
		maxResults = DefaultYouTubeMaxResults
	}
	return &YouTubeSource{
		client:     newHTTPClient(),
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		maxResults: min(maxResults, youtubeMaxResultsLimit),
	}
}

func (s *YouTubeSource) Name() string { return "youtube" }

// CanLoad checks for a YouTube search identifier.
func (s *YouTubeSource) CanLoad(identifier string) bool {
	return strings.HasPrefix(identifier, YouTubeSearchPrefix)
}

// Load searches for videos and returns them, in search order, as a collection.
func (s *YouTubeSource) Load(ctx context.Context, identifier string) (mirror.LoadResult, error) {
	query, ok := queryAfterPrefix(identifier, YouTubeSearchPrefix)
	if !ok {
		return mirror.NoMatch, fmt.Errorf("not a YouTube identifier: %q", identifier)
	}
	if s.apiKey == "" {
		return mirror.NoMatch, ErrMissingAPIKey
	}
	if query == "" {
		return mirror.NoMatch, nil
	}

	ids, err := s.search(ctx, query)
	if err != nil {
		return mirror.NoMatch, err
	}
	if len(ids) == 0 {
		return mirror.Collection(nil), nil
	}

	videos, err := s.videos(ctx, ids)
	if err != nil {
		return mirror.NoMatch, err
	}

	tracks := make([]mirror.Track, 0, len(ids))
	for _, id := range ids {
		video, found := videos[id]
		if !found {
			continue
		}
		tracks = append(tracks, video.toTrack())
	}
	return mirror.Collection(tracks), nil
}

func (s *YouTubeSource) search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(s.maxResults))
	params.Set("q", query)
	params.Set("key", s.apiKey)

	var resp youtubeSearchResponse
	if err := fetchJSON(ctx, s.client, s.apiURL+"/search?"+params.Encode(), "youtube search", &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

func (s *YouTubeSource) videos(ctx context.Context, ids []string) (map[string]youtubeVideo, error) {
	params := url.Values{}
	params.Set("part", "contentDetails,snippet")
	params.Set("id", strings.Join(ids, ","))
	params.Set("key", s.apiKey)

	var resp youtubeVideosResponse
	if err := fetchJSON(ctx, s.client, s.apiURL+"/videos?"+params.Encode(), "youtube videos", &resp); err != nil {
		return nil, err
	}

	videos := make(map[string]youtubeVideo, len(resp.Items))
	for _, item := range resp.Items {
		videos[item.ID] = item
	}
	return videos, nil
}

// YouTube Data API response types

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type youtubeVideosResponse struct {
	Items []youtubeVideo `json:"items"`
}

type youtubeVideo struct {
	ID      string `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		ChannelTitle string `json:"channelTitle"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

func (v youtubeVideo) toTrack() mirror.Track {
	title, artist := parseVideoInfo(html.UnescapeString(v.Snippet.Title), html.UnescapeString(v.Snippet.ChannelTitle))
	duration, _ := parseISODuration(v.ContentDetails.Duration)

	return mirror.Track{
		Title:      title,
		Author:     artist,
		Duration:   duration,
		Identifier: v.ID,
		URI:        youtubeWatchURL + v.ID,
		Source:     "youtube",
	}
}

// parseVideoInfo derives the track title and artist from a video title and channel name.
func parseVideoInfo(videoTitle, channelTitle string) (title, artist string) {
	title = cleanTitle(videoTitle)
	artist = extractArtist(title, channelTitle)

	// "Artist - Song" titles: keep only the song part once the artist came from it.
	if parts := strings.SplitN(title, " - ", youtubeExpectedSplitParts); len(parts) == youtubeExpectedSplitParts &&
		strings.TrimSpace(parts[0]) == artist {
		title = strings.TrimSpace(parts[1])
	}
	return title, artist
}

// cleanTitle removes common YouTube video metadata from titles.
func cleanTitle(title string) string {
	return strings.TrimSpace(videoMarkerRegex.ReplaceAllString(title, ""))
}

// extractArtist attempts to extract the artist name from title and channel name.
func extractArtist(title, channelTitle string) string {
	if strings.HasSuffix(channelTitle, "VEVO") {
		// "RickAstleyVEVO" -> "Rick Astley".
		return splitCamelCase(strings.TrimSuffix(channelTitle, "VEVO"))
	}

	if strings.HasSuffix(channelTitle, " - Topic") {
		// YouTube auto-generated artist channels.
		return strings.TrimSuffix(channelTitle, " - Topic")
	}

	// "Artist - Song Title" is the most common upload format.
	if strings.Contains(title, " - ") {
		parts := strings.SplitN(title, " - ", youtubeExpectedSplitParts)
		if len(parts) == youtubeExpectedSplitParts {
			return strings.TrimSpace(parts[0])
		}
	}

	return channelTitle
}

// splitCamelCase inserts a space before each capital letter that follows a lowercase one.
func splitCamelCase(s string) string {
	return camelCaseRegex.ReplaceAllString(s, "$1 $2")
}

// parseISODuration parses the ISO-8601 durations used by the YouTube API, such as "PT3M20S".
func parseISODuration(s string) (time.Duration, error) {
	m := isoDurationRegex.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}

	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
		}
		total += time.Duration(n) * unit
	}
	return total, nil
}
