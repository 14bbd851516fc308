package main

import (
	"fmt"

	"go.uber.org/zap"

	"trackmirror/internal/core"
	"trackmirror/internal/flood"
	"trackmirror/internal/store"
	"trackmirror/pkg/mirror"
	"trackmirror/pkg/musiclink"
)

// services bundles the resolution pipeline: sources, provider limits, cache and resolver.
type services struct {
	manager         *musiclink.Manager
	providerLimiter *flood.Floodgate
	cache           *store.SearchCache
	loader          mirror.Loader
	resolver        *mirror.Resolver
}

// newServices wires the pipeline from cfg. observer may be nil.
func newServices(cfg *core.Config, log *zap.Logger, observer mirror.Observer) (*services, error) {
	templates, err := mirror.ParseTemplates(cfg.Resolver.Providers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider templates: %w", err)
	}

	sources := []musiclink.Source{
		musiclink.NewYouTubeSource(cfg.YouTube.APIKey, cfg.YouTube.APIURL, cfg.YouTube.MaxResults),
	}
	if cfg.Deezer.Enabled {
		sources = append(sources, musiclink.NewDeezerSource(cfg.Deezer.APIURL, cfg.Deezer.SearchLimit))
	}
	manager := musiclink.NewManager(sources...)

	svcs := &services{manager: manager}
	if cfg.RateLimit.ProviderPerMinute > 0 {
		svcs.providerLimiter = flood.New(cfg.RateLimit.ProviderPerMinute)
		manager.SetLimiter(svcs.providerLimiter)
	}

	svcs.cache = store.NewSearchCache(cfg.Cache.Size, cfg.Cache.BloomFalsePositiveRate)
	svcs.loader = store.NewCachedLoader(manager, svcs.cache)

	svcs.resolver = mirror.NewResolver(svcs.loader, templates,
		mirror.WithLogger(log.Named("resolver")),
		mirror.WithObserver(observer),
		mirror.WithBlockedPrefixes(cfg.Resolver.BlockedPrefixes...),
		mirror.WithFallbackPrefix(cfg.Resolver.FallbackPrefix),
	)

	log.Debug("Resolution pipeline ready",
		zap.Strings("sources", manager.SourceNames()),
		zap.Int("templates", len(templates)),
		zap.Int("cache_size", cfg.Cache.Size),
		zap.Int("provider_rate_limit", cfg.RateLimit.ProviderPerMinute))

	return svcs, nil
}

// Close stops background goroutines.
func (s *services) Close() {
	if s.providerLimiter != nil {
		s.providerLimiter.Stop()
	}
}
