// Package main provides the trackmirror CLI application entry point.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trackmirror/internal/core"
)

const envPrefix = "TRACKMIRROR"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trackmirror",
	Short: "trackmirror - find a track from one catalog on another",
	Long: `trackmirror resolves a reference track (title, artist, duration, ISRC) to the
best matching playable track on secondary search providers such as YouTube and Deezer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if viper.GetBool("generate-env-example") {
			return nil
		}
		if err := config.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if viper.GetBool("generate-env-example") {
			return generateEnvExample(cmd)
		}
		return cmd.Help()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, text)")

	flags.StringSlice("providers", defaults.Resolver.Providers, "provider templates in priority order (%ISRC%, %QUERY%)")
	flags.String("fallback-prefix", defaults.Resolver.FallbackPrefix, "source prefix of the fallback query")
	flags.StringSlice("blocked-prefixes", defaults.Resolver.BlockedPrefixes, "source prefixes that are never queried")

	flags.Bool("deezer-enabled", defaults.Deezer.Enabled, "Enable the Deezer source (dzsearch:, dzisrc:)")
	flags.String("deezer-api-url", defaults.Deezer.APIURL, "Deezer API base URL")
	flags.Int("deezer-search-limit", defaults.Deezer.SearchLimit, "Maximum Deezer search results")

	flags.String("youtube-api-key", "", "YouTube Data API key")
	flags.String("youtube-api-url", defaults.YouTube.APIURL, "YouTube Data API base URL")
	flags.Int("youtube-max-results", defaults.YouTube.MaxResults, "Maximum YouTube search results")

	flags.String("spotify-client-id", "", "Spotify client ID")
	flags.String("spotify-client-secret", "", "Spotify client secret")

	flags.Int("cache-size", defaults.Cache.Size, "Number of cached provider results")
	flags.Float64("cache-bloom-fp-rate", defaults.Cache.BloomFalsePositiveRate, "False positive rate of the no-match filter")

	flags.Int("provider-rate-limit", defaults.RateLimit.ProviderPerMinute, "Maximum requests per provider per minute (0 disables)")
	flags.Int("client-rate-limit", defaults.RateLimit.ClientPerMinute, "Maximum resolve requests per client per minute (0 disables)")

	flags.Int("batch-concurrency", defaults.Batch.Concurrency, "Parallel resolutions in batch mode")

	flags.String("server-host", defaults.Server.Host, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Duration("server-read-timeout", defaults.Server.ReadTimeout, "HTTP server read timeout")
	flags.Duration("server-write-timeout", defaults.Server.WriteTimeout, "HTTP server write timeout")

	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		newResolveCommand(),
		newRankCommand(),
		newBatchCommand(),
		newServeCommand(),
	)
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Resolver.Providers = splitList(viper.GetStringSlice("providers"))
	cfg.Resolver.FallbackPrefix = viper.GetString("fallback-prefix")
	cfg.Resolver.BlockedPrefixes = splitList(viper.GetStringSlice("blocked-prefixes"))

	cfg.Deezer.Enabled = viper.GetBool("deezer-enabled")
	cfg.Deezer.APIURL = viper.GetString("deezer-api-url")
	cfg.Deezer.SearchLimit = viper.GetInt("deezer-search-limit")

	cfg.YouTube.APIKey = viper.GetString("youtube-api-key")
	cfg.YouTube.APIURL = viper.GetString("youtube-api-url")
	cfg.YouTube.MaxResults = viper.GetInt("youtube-max-results")

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")

	cfg.Cache.Size = viper.GetInt("cache-size")
	cfg.Cache.BloomFalsePositiveRate = viper.GetFloat64("cache-bloom-fp-rate")

	cfg.RateLimit.ProviderPerMinute = viper.GetInt("provider-rate-limit")
	cfg.RateLimit.ClientPerMinute = viper.GetInt("client-rate-limit")

	cfg.Batch.Concurrency = viper.GetInt("batch-concurrency")

	cfg.Server.Host = viper.GetString("server-host")
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.ReadTimeout = viper.GetDuration("server-read-timeout")
	cfg.Server.WriteTimeout = viper.GetDuration("server-write-timeout")

	cfg.Log.Level = strings.ToLower(viper.GetString("log-level"))
	cfg.Log.Format = strings.ToLower(viper.GetString("log-format"))

	return cfg
}

// splitList accepts both repeated values and comma separated environment values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "text" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	// Command output goes to stdout.
	cfg.OutputPaths = []string{"stderr"}

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.PersistentFlags().Lookup(flagName); f != nil {
		return f.DefValue
	}
	return ""
}
