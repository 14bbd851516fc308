// Package core holds the application configuration shared by the trackmirror services.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"trackmirror/pkg/mirror"
)

const (
	// DefaultServerPort is the default HTTP port.
	DefaultServerPort = 8080
	// DefaultServerTimeout is the default HTTP read and write timeout.
	DefaultServerTimeout = 10 * time.Second
	// DefaultCacheSize is the default number of cached query results.
	DefaultCacheSize = 1000
	// DefaultBloomFalsePositiveRate is the default false positive rate of the no-match filter.
	DefaultBloomFalsePositiveRate = 0.001
	// DefaultProviderRateLimit is the default number of requests per provider per minute.
	DefaultProviderRateLimit = 120
	// DefaultClientRateLimit is the default number of resolve requests per client per minute.
	DefaultClientRateLimit = 30
	// DefaultBatchConcurrency is the default number of parallel resolutions in batch mode.
	DefaultBatchConcurrency = 4
	// DefaultDeezerSearchLimit is the default number of Deezer search results.
	DefaultDeezerSearchLimit = 10
	// DefaultYouTubeMaxResults is the default number of YouTube search results.
	DefaultYouTubeMaxResults = 10
	// MaxYouTubeResults is the largest page the YouTube search API returns.
	MaxYouTubeResults = 50
)

type Config struct {
	Resolver  ResolverConfig
	Deezer    DeezerConfig
	YouTube   YouTubeConfig
	Spotify   SpotifyConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Batch     BatchConfig
	Server    ServerConfig
	Log       LogConfig
}

type ResolverConfig struct {
	Providers       []string
	FallbackPrefix  string
	BlockedPrefixes []string
}

type DeezerConfig struct {
	Enabled     bool
	APIURL      string
	SearchLimit int
}

type YouTubeConfig struct {
	APIKey     string
	APIURL     string
	MaxResults int
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	APIURL       string
}

// Configured reports whether Spotify credentials are present.
func (c SpotifyConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type CacheConfig struct {
	Size                   int
	BloomFalsePositiveRate float64
}

// RateLimitConfig limits requests per minute. Zero disables a limit.
type RateLimitConfig struct {
	ProviderPerMinute int
	ClientPerMinute   int
}

type BatchConfig struct {
	Concurrency int
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Resolver: ResolverConfig{
			Providers:       append([]string(nil), mirror.DefaultTemplates...),
			FallbackPrefix:  mirror.DefaultFallbackPrefix,
			BlockedPrefixes: append([]string(nil), mirror.DefaultBlockedPrefixes...),
		},
		Deezer: DeezerConfig{
			Enabled:     true,
			APIURL:      "https://api.deezer.com",
			SearchLimit: DefaultDeezerSearchLimit,
		},
		YouTube: YouTubeConfig{
			APIURL:     "https://www.googleapis.com/youtube/v3",
			MaxResults: DefaultYouTubeMaxResults,
		},
		Spotify: SpotifyConfig{
			TokenURL: "https://accounts.spotify.com/api/token",
			APIURL:   "https://api.spotify.com/v1/",
		},
		Cache: CacheConfig{
			Size:                   DefaultCacheSize,
			BloomFalsePositiveRate: DefaultBloomFalsePositiveRate,
		},
		RateLimit: RateLimitConfig{
			ProviderPerMinute: DefaultProviderRateLimit,
			ClientPerMinute:   DefaultClientRateLimit,
		},
		Batch: BatchConfig{
			Concurrency: DefaultBatchConcurrency,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  DefaultServerTimeout,
			WriteTimeout: DefaultServerTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if _, err := mirror.ParseTemplates(c.Resolver.Providers); err != nil {
		errs = append(errs, fmt.Errorf("providers: %w", err))
	}
	if c.Resolver.FallbackPrefix == "" || !strings.HasSuffix(c.Resolver.FallbackPrefix, ":") {
		errs = append(errs, fmt.Errorf("fallback prefix %q must end with ':'", c.Resolver.FallbackPrefix))
	}

	if c.Deezer.SearchLimit <= 0 {
		errs = append(errs, fmt.Errorf("deezer search limit must be positive, got %d", c.Deezer.SearchLimit))
	}
	if c.YouTube.MaxResults <= 0 || c.YouTube.MaxResults > MaxYouTubeResults {
		errs = append(errs, fmt.Errorf("youtube max results must be between 1 and %d, got %d",
			MaxYouTubeResults, c.YouTube.MaxResults))
	}
	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		errs = append(errs, errors.New("spotify client ID and secret must be set together"))
	}

	if c.Cache.Size <= 0 {
		errs = append(errs, fmt.Errorf("cache size must be positive, got %d", c.Cache.Size))
	}
	if c.Cache.BloomFalsePositiveRate <= 0 || c.Cache.BloomFalsePositiveRate >= 1 {
		errs = append(errs, fmt.Errorf("bloom false positive rate must be between 0 and 1, got %g",
			c.Cache.BloomFalsePositiveRate))
	}
	if c.RateLimit.ProviderPerMinute < 0 || c.RateLimit.ClientPerMinute < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.Batch.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("batch concurrency must be positive, got %d", c.Batch.Concurrency))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d is out of range", c.Server.Port))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
