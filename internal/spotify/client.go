// Package spotify looks up reference tracks in the Spotify Web API.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"trackmirror/internal/core"
	"trackmirror/pkg/mirror"
)

const (
	// SpotifyIDLength is the expected length of a Spotify track ID
	SpotifyIDLength = 22
	// trackURLPrefix is the public URL of a track, used as the reference URI
	trackURLPrefix = "https://open.spotify.com/track/"
	// explicitQuery marks explicit tracks in the reference URI
	explicitQuery = "?explicit=true"
)

var (
	// ErrNotConfigured is returned when no client credentials are configured.
	ErrNotConfigured = errors.New("spotify client credentials not configured")
	// ErrInvalidTrackID is returned for input that contains no track ID.
	ErrInvalidTrackID = errors.New("no Spotify track ID found")

	spotifyTrackRegex = regexp.MustCompile(`(?:https?://)?(?:open\.)?spotify\.com/(?:intl-[a-z]+/)?track/([a-zA-Z0-9]+)`)
	spotifyURIRegex   = regexp.MustCompile(`spotify:track:([a-zA-Z0-9]+)`)
	spotifyIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9]{22}$`)
)

// Client fetches reference tracks using the client-credentials flow.
type Client struct {
	config *core.SpotifyConfig
	logger *zap.Logger
	client *spotify.Client
}

// NewClient creates a client. The token is fetched lazily by the first request.
func NewClient(ctx context.Context, config *core.SpotifyConfig, logger *zap.Logger) (*Client, error) {
	if !config.Configured() {
		return nil, ErrNotConfigured
	}

	tokenURL := config.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	creds := &clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     tokenURL,
	}

	var opts []spotify.ClientOption
	if config.APIURL != "" {
		opts = append(opts, spotify.WithBaseURL(withTrailingSlash(config.APIURL)))
	}

	return &Client{
		config: config,
		logger: logger,
		client: spotify.New(creds.Client(ctx), opts...),
	}, nil
}

// ReferenceTrack fetches a track by ID, spotify:track: URI or open.spotify.com URL.
func (c *Client) ReferenceTrack(ctx context.Context, idOrURL string) (mirror.ReferenceTrack, error) {
	trackID, err := ExtractTrackID(idOrURL)
	if err != nil {
		return mirror.ReferenceTrack{}, err
	}

	track, err := c.client.GetTrack(ctx, spotify.ID(trackID))
	if err != nil {
		return mirror.ReferenceTrack{}, fmt.Errorf("failed to get track %s: %w", trackID, err)
	}

	ref := convertSpotifyTrack(track)
	c.logger.Debug("Fetched reference track",
		zap.String("id", trackID),
		zap.String("title", ref.Title),
		zap.String("author", ref.Author),
		zap.String("isrc", ref.ISRC),
		zap.Duration("duration", ref.Duration))

	return ref, nil
}

// ExtractTrackID returns the track ID contained in a bare ID, URI or URL.
func ExtractTrackID(input string) (string, error) {
	input = strings.TrimSpace(input)

	if matches := spotifyURIRegex.FindStringSubmatch(input); len(matches) > 1 {
		return matches[1], nil
	}

	if matches := spotifyTrackRegex.FindStringSubmatch(input); len(matches) > 1 {
		return matches[1], nil
	}

	if spotifyIDRegex.MatchString(input) {
		return input, nil
	}

	u, err := url.Parse(input)
	if err == nil && u.Host != "" {
		pathParts := strings.Split(strings.Trim(u.Path, "/"), "/")
		for i, part := range pathParts {
			if part == "track" && i+1 < len(pathParts) && pathParts[i+1] != "" {
				return pathParts[i+1], nil
			}
		}
	}

	return "", fmt.Errorf("%w in %q", ErrInvalidTrackID, input)
}

func convertSpotifyTrack(track *spotify.FullTrack) mirror.ReferenceTrack {
	var artists []string
	for _, artist := range track.Artists {
		artists = append(artists, artist.Name)
	}

	author := strings.Join(artists, ", ")
	if author == "" {
		author = mirror.UnknownAuthor
	}

	uri := trackURLPrefix + string(track.ID)
	if track.Explicit {
		uri += explicitQuery
	}

	return mirror.ReferenceTrack{
		Title:    track.Name,
		Author:   author,
		Duration: time.Duration(track.Duration) * time.Millisecond,
		ISRC:     track.ExternalIDs["isrc"],
		URI:      uri,
	}
}

func withTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
