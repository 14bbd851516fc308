package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# trackmirror Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	content.WriteString("# Format: TRACKMIRROR_<SECTION>_<SETTING>=value\n")
	content.WriteString("# CLI equivalent: --<section>-<setting>\n")
	content.WriteString("#\n\n")

	generateResolverSection(&content, cmd)
	generateSourcesSection(&content, cmd)
	generateSpotifySection(&content)
	generateCacheSection(&content, cmd)
	generateServerSection(&content, cmd)
	generateLoggingSection(&content, cmd)

	return content.String()
}

func writeSectionHeader(content *strings.Builder, title string) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	fmt.Fprintf(content, "# %s\n", title)
	content.WriteString("# -----------------------------------------------------------------------------\n")
}

// writeDefault writes flagName with its default value and a trailing description.
func writeDefault(content *strings.Builder, cmd *cobra.Command, flagName, description string) {
	value := envValue(getDefaultValueString(cmd, flagName))
	fmt.Fprintf(content, "%s=%s  # %s\n", flagToEnvVar(flagName), value, description)
}

// envValue converts a slice flag default such as "[a,b]" to "a,b".
func envValue(defValue string) string {
	if strings.HasPrefix(defValue, "[") && strings.HasSuffix(defValue, "]") {
		return strings.TrimSuffix(strings.TrimPrefix(defValue, "["), "]")
	}
	return defValue
}

func generateResolverSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Resolver")
	content.WriteString("# Provider templates are tried in order. %ISRC% is replaced by the ISRC without\n")
	content.WriteString("# hyphens, %QUERY% by \"<title> <artists>\". Example: dzisrc:%ISRC%,ytsearch:%QUERY%\n")
	writeDefault(content, cmd, "providers", "Comma separated provider templates")
	writeDefault(content, cmd, "fallback-prefix", "Source of the final \"official video\" query")
	writeDefault(content, cmd, "blocked-prefixes", "Sources that are never queried")
	writeDefault(content, cmd, "batch-concurrency", "Parallel resolutions in batch mode")
	content.WriteString("\n")
}

func generateSourcesSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Sources")
	content.WriteString("# YouTube requires a Data API key: https://console.cloud.google.com/apis/credentials\n")
	fmt.Fprintf(content, "%s=your_youtube_api_key_here  # YouTube Data API key\n", flagToEnvVar("youtube-api-key"))
	writeDefault(content, cmd, "youtube-api-url", "YouTube Data API base URL")
	writeDefault(content, cmd, "youtube-max-results", "Maximum YouTube search results (1-50)")
	writeDefault(content, cmd, "deezer-enabled", "Enable the Deezer source")
	writeDefault(content, cmd, "deezer-api-url", "Deezer API base URL")
	writeDefault(content, cmd, "deezer-search-limit", "Maximum Deezer search results")
	writeDefault(content, cmd, "provider-rate-limit", "Requests per source per minute, 0 disables")
	content.WriteString("\n")
}

func generateSpotifySection(content *strings.Builder) {
	writeSectionHeader(content, "Spotify (optional, for --spotify-track references)")
	content.WriteString("# Get these from https://developer.spotify.com/dashboard\n")
	fmt.Fprintf(content, "%s=your_spotify_client_id_here  # Spotify app client ID\n", flagToEnvVar("spotify-client-id"))
	fmt.Fprintf(content, "%s=your_spotify_client_secret_here  # Spotify app client secret\n",
		flagToEnvVar("spotify-client-secret"))
	content.WriteString("\n")
}

func generateCacheSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Cache")
	writeDefault(content, cmd, "cache-size", "Number of cached provider results")
	writeDefault(content, cmd, "cache-bloom-fp-rate", "False positive rate of the no-match filter")
	content.WriteString("\n")
}

func generateServerSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "HTTP Server (serve command)")
	writeDefault(content, cmd, "server-host", "Listen address")
	writeDefault(content, cmd, "server-port", "Listen port")
	writeDefault(content, cmd, "server-read-timeout", "Read timeout")
	writeDefault(content, cmd, "server-write-timeout", "Write timeout")
	writeDefault(content, cmd, "client-rate-limit", "Resolve requests per client per minute, 0 disables")
	content.WriteString("\n")
}

func generateLoggingSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Logging")
	writeDefault(content, cmd, "log-level", "debug, info, warn, error")
	writeDefault(content, cmd, "log-format", "json, text")
}
