package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"trackmirror/internal/flood"
	httpserver "trackmirror/internal/http"
	"trackmirror/internal/spotify"
	"trackmirror/pkg/mirror"
)

var errMissingTitle = errors.New("a title or --spotify-track is required")

// referenceFlags describes a reference track on the command line.
type referenceFlags struct {
	title      string
	author     string
	durationMs int64
	isrc       string
	uri        string
}

func (f *referenceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "reference track title")
	cmd.Flags().StringVar(&f.author, "author", mirror.UnknownAuthor, "reference track artists")
	cmd.Flags().Int64Var(&f.durationMs, "duration-ms", 0, "reference track duration in milliseconds")
	cmd.Flags().StringVar(&f.isrc, "isrc", "", "reference track ISRC")
	cmd.Flags().StringVar(&f.uri, "uri", "", "reference track URI (explicit=true marks explicit tracks)")
}

func (f *referenceFlags) reference() (mirror.ReferenceTrack, error) {
	if f.title == "" {
		return mirror.ReferenceTrack{}, errMissingTitle
	}
	if f.durationMs < 0 {
		return mirror.ReferenceTrack{}, fmt.Errorf("duration must not be negative, got %d", f.durationMs)
	}
	author := f.author
	if author == "" {
		author = mirror.UnknownAuthor
	}
	return mirror.ReferenceTrack{
		Title:    f.title,
		Author:   author,
		Duration: time.Duration(f.durationMs) * time.Millisecond,
		ISRC:     f.isrc,
		URI:      f.uri,
	}, nil
}

func newResolveCommand() *cobra.Command {
	var (
		ref          referenceFlags
		spotifyTrack string
		format       string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Find the best mirror of one reference track",
		Example: `  trackmirror resolve --title "Blinding Lights" --author "The Weeknd" --duration-ms 200040
  trackmirror resolve --spotify-track https://open.spotify.com/track/0VjIjW4GlUZAMYd2vXMi3b --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}

			ctx := cmd.Context()
			reference, err := newReferenceSource(newSpotifyTracks).lookup(ctx, &ref, spotifyTrack)
			if err != nil {
				return err
			}

			svcs, err := newServices(config, logger, nil)
			if err != nil {
				return err
			}
			defer svcs.Close()

			resolution, ok := svcs.resolver.Resolve(ctx, reference)
			return writeResolution(cmd.OutOrStdout(), format, newResolutionOutput(reference, resolution, ok))
		},
	}

	ref.register(cmd)
	cmd.Flags().StringVar(&spotifyTrack, "spotify-track", "", "Spotify track ID, URI or URL to use as the reference")
	cmd.Flags().StringVar(&format, "format", formatText, "output format (text, json, yaml)")

	return cmd
}

// spotifyTracks fetches reference tracks from the Spotify catalog.
type spotifyTracks interface {
	ReferenceTrack(ctx context.Context, idOrURL string) (mirror.ReferenceTrack, error)
}

func newSpotifyTracks(ctx context.Context) (spotifyTracks, error) {
	return spotify.NewClient(ctx, &config.Spotify, logger.Named("spotify"))
}

// referenceSource turns command line or batch input into reference tracks. The Spotify
// client is created on first use and shared by every later lookup.
type referenceSource struct {
	newClient func(ctx context.Context) (spotifyTracks, error)

	once   sync.Once
	client spotifyTracks
	err    error
}

func newReferenceSource(newClient func(ctx context.Context) (spotifyTracks, error)) *referenceSource {
	return &referenceSource{newClient: newClient}
}

func (s *referenceSource) lookup(ctx context.Context, ref *referenceFlags, spotifyTrack string) (mirror.ReferenceTrack, error) {
	if spotifyTrack == "" {
		return ref.reference()
	}

	s.once.Do(func() {
		s.client, s.err = s.newClient(ctx)
	})
	if s.err != nil {
		return mirror.ReferenceTrack{}, s.err
	}
	return s.client.ReferenceTrack(ctx, spotifyTrack)
}

func newRankCommand() *cobra.Command {
	var ref referenceFlags

	cmd := &cobra.Command{
		Use:   "rank <identifier>",
		Short: "Score every candidate one provider query returns",
		Long: `rank runs a single provider query (for example "ytsearch:blinding lights") and prints
every candidate within the duration tolerance with its score, best first.`,
		Example: `  trackmirror rank "dzsearch:blinding lights the weeknd" --title "Blinding Lights" --author "The Weeknd" --duration-ms 200040`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reference, err := ref.reference()
			if err != nil {
				return err
			}

			svcs, err := newServices(config, logger, nil)
			if err != nil {
				return err
			}
			defer svcs.Close()

			result, err := svcs.loader.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load %q: %w", args[0], err)
			}

			candidates := candidatesOf(result)
			if len(candidates) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No candidates for %s\n", args[0])
				return nil
			}

			scored := mirror.RankCandidates(candidates, reference)
			if len(scored) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderCandidates(scored))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d candidates within duration tolerance\n", len(scored), len(candidates))
			return nil
		},
	}

	ref.register(cmd)
	return cmd
}

func candidatesOf(result mirror.LoadResult) []mirror.Track {
	switch result.Kind {
	case mirror.ResultTrack:
		if result.Track != nil {
			return []mirror.Track{*result.Track}
		}
	case mirror.ResultCollection:
		return result.Tracks
	}
	return nil
}

// batchFile is the input of the batch command.
type batchFile struct {
	Tracks []batchEntry `yaml:"tracks"`
}

type batchEntry struct {
	Title      string `yaml:"title"`
	Author     string `yaml:"author"`
	DurationMs int64  `yaml:"duration_ms"`
	ISRC       string `yaml:"isrc"`
	URI        string `yaml:"uri"`
	Spotify    string `yaml:"spotify"`
}

type batchOutput struct {
	Results []resolutionOutput `yaml:"results"`
}

func newBatchCommand() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "batch <file.yaml>",
		Short: "Resolve every reference track listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read batch file: %w", err)
			}

			var file batchFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("failed to parse batch file: %w", err)
			}

			if concurrency <= 0 {
				concurrency = config.Batch.Concurrency
			}

			svcs, err := newServices(config, logger, nil)
			if err != nil {
				return err
			}
			defer svcs.Close()

			source := newReferenceSource(newSpotifyTracks)
			results, err := resolveBatch(cmd.Context(), svcs.resolver, source, file.Tracks, concurrency)
			if err != nil {
				return err
			}

			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent(2)
			if err := encoder.Encode(batchOutput{Results: results}); err != nil {
				return fmt.Errorf("failed to write results: %w", err)
			}
			return encoder.Close()
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel resolutions (default from --batch-concurrency)")
	return cmd
}

// trackResolver resolves reference tracks.
type trackResolver interface {
	Resolve(ctx context.Context, ref mirror.ReferenceTrack) (mirror.Resolution, bool)
}

// resolveBatch resolves entries concurrently. Results keep the input order and entries that
// cannot be turned into a reference carry an error instead of failing the batch.
func resolveBatch(ctx context.Context, resolver trackResolver, source *referenceSource, entries []batchEntry, concurrency int) ([]resolutionOutput, error) {
	results := make([]resolutionOutput, len(entries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i, entry := range entries {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			ref, err := entry.reference(gCtx, source)
			if err != nil {
				results[i] = resolutionOutput{Reference: trackOutputOf(entry.asReference()), Error: err.Error()}
				return nil
			}

			resolution, ok := resolver.Resolve(gCtx, ref)
			results[i] = newResolutionOutput(ref, resolution, ok)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch interrupted: %w", err)
	}
	return results, nil
}

func (e batchEntry) reference(ctx context.Context, source *referenceSource) (mirror.ReferenceTrack, error) {
	flags := referenceFlags{
		title:      e.Title,
		author:     e.Author,
		durationMs: e.DurationMs,
		isrc:       e.ISRC,
		uri:        e.URI,
	}
	return source.lookup(ctx, &flags, e.Spotify)
}

func (e batchEntry) asReference() mirror.ReferenceTrack {
	return mirror.ReferenceTrack{
		Title:    e.Title,
		Author:   e.Author,
		Duration: time.Duration(e.DurationMs) * time.Millisecond,
		ISRC:     e.ISRC,
		URI:      e.URI,
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP resolve API with health checks and metrics",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServer(ctx)
		},
	}
}

func runServer(ctx context.Context) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := httpserver.NewMetrics(registry)

	svcs, err := newServices(config, logger, metrics)
	if err != nil {
		return err
	}
	defer svcs.Close()

	var clientLimiter httpserver.Limiter
	var clientGate *flood.Floodgate
	if config.RateLimit.ClientPerMinute > 0 {
		clientGate = flood.New(config.RateLimit.ClientPerMinute)
		defer clientGate.Stop()
		clientLimiter = clientGate
	}

	providers := templateStrings(svcs.resolver.Templates())

	server := httpserver.NewServer(&config.Server, logger.Named("http"), svcs.resolver, metrics, clientLimiter)
	server.AddStats("sources", func() any { return svcs.manager.SourceNames() })
	server.AddStats("providers", func() any { return providers })
	server.AddStats("cache", func() any { return svcs.cache.Stats() })
	if svcs.providerLimiter != nil {
		server.AddStats("provider_limits", func() any { return svcs.providerLimiter.Stats() })
	}
	if clientGate != nil {
		server.AddStats("client_limits", func() any { return clientGate.Stats() })
	}

	logger.Info("Starting trackmirror",
		zap.Strings("sources", svcs.manager.SourceNames()),
		zap.Strings("providers", providers),
		zap.String("fallback_prefix", config.Resolver.FallbackPrefix),
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("trackmirror stopped with error", zap.Error(err))
		return err
	}

	logger.Info("trackmirror stopped gracefully")
	return nil
}

func templateStrings(templates []mirror.Template) []string {
	out := make([]string, 0, len(templates))
	for _, template := range templates {
		out = append(out, template.String())
	}
	return out
}
