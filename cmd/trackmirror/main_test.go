package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"trackmirror/pkg/mirror"
)

func TestFlagToEnvVar(t *testing.T) {
	tests := []struct {
		flag string
		want string
	}{
		{flag: "log-level", want: "TRACKMIRROR_LOG_LEVEL"},
		{flag: "youtube-api-key", want: "TRACKMIRROR_YOUTUBE_API_KEY"},
		{flag: "providers", want: "TRACKMIRROR_PROVIDERS"},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			if got := flagToEnvVar(tt.flag); got != tt.want {
				t.Errorf("flagToEnvVar(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "Repeated flags", input: []string{"dzisrc:%ISRC%", "ytsearch:%QUERY%"}, want: []string{"dzisrc:%ISRC%", "ytsearch:%QUERY%"}},
		{name: "Comma separated env value", input: []string{"spsearch:, amsearch:"}, want: []string{"spsearch:", "amsearch:"}},
		{name: "Empty parts dropped", input: []string{",", " "}, want: nil},
		{name: "Nothing", input: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitList(tt.input); !slices.Equal(got, tt.want) {
				t.Errorf("splitList(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		if logger := buildLogger("debug", format); logger == nil {
			t.Errorf("buildLogger(debug, %s) returned nil", format)
		}
	}
}

func TestGenerateEnvExampleContent(t *testing.T) {
	content := generateEnvExampleContent(rootCmd)

	for _, want := range []string{
		"TRACKMIRROR_PROVIDERS=",
		"TRACKMIRROR_FALLBACK_PREFIX=ytsearch:",
		"TRACKMIRROR_BLOCKED_PREFIXES=spsearch:,amsearch:",
		"TRACKMIRROR_YOUTUBE_API_KEY=",
		"TRACKMIRROR_DEEZER_ENABLED=true",
		"TRACKMIRROR_SPOTIFY_CLIENT_ID=",
		"TRACKMIRROR_CACHE_SIZE=1000",
		"TRACKMIRROR_SERVER_PORT=8080",
		"TRACKMIRROR_LOG_LEVEL=info",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("env example does not contain %q", want)
		}
	}
}

func TestEnvValue(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "[a,b]", want: "a,b"},
		{input: "[]", want: ""},
		{input: "info", want: "info"},
	}

	for _, tt := range tests {
		if got := envValue(tt.input); got != tt.want {
			t.Errorf("envValue(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestReferenceFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   referenceFlags
		want    mirror.ReferenceTrack
		wantErr bool
	}{
		{
			name:  "Full reference",
			flags: referenceFlags{title: "Song", author: "Artist", durationMs: 200000, isrc: "US-AB1-23-45678", uri: "spotify:track:x?explicit=true"},
			want: mirror.ReferenceTrack{
				Title:    "Song",
				Author:   "Artist",
				Duration: 200 * time.Second,
				ISRC:     "US-AB1-23-45678",
				URI:      "spotify:track:x?explicit=true",
			},
		},
		{
			name:  "Empty author becomes unknown",
			flags: referenceFlags{title: "Song"},
			want:  mirror.ReferenceTrack{Title: "Song", Author: mirror.UnknownAuthor},
		},
		{
			name:    "Missing title",
			flags:   referenceFlags{author: "Artist"},
			wantErr: true,
		},
		{
			name:    "Negative duration",
			flags:   referenceFlags{title: "Song", durationMs: -5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.reference()
			if tt.wantErr {
				if err == nil {
					t.Error("reference() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("reference() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("reference() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{input: 0, want: "0:00"},
		{input: 200040 * time.Millisecond, want: "3:20"},
		{input: 59600 * time.Millisecond, want: "1:00"},
		{input: 61 * time.Minute, want: "61:00"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.input); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func sampleResolution() (mirror.ReferenceTrack, mirror.Resolution) {
	ref := mirror.ReferenceTrack{Title: "Song", Author: "Artist", Duration: 200 * time.Second}
	resolution := mirror.Resolution{
		Track: mirror.Track{
			Title:      "Song",
			Author:     "Artist",
			Duration:   201 * time.Second,
			Identifier: "abc123",
			URI:        "https://www.youtube.com/watch?v=abc123",
			Source:     "youtube",
		},
		Identifier: "abc123",
		Fallback:   true,
	}
	return ref, resolution
}

func TestWriteResolution(t *testing.T) {
	ref, resolution := sampleResolution()
	matched := newResolutionOutput(ref, resolution, true)
	unmatched := newResolutionOutput(ref, mirror.Resolution{}, false)

	t.Run("Text match", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResolution(&buf, formatText, matched); err != nil {
			t.Fatalf("writeResolution() unexpected error: %v", err)
		}
		want := "Song - Artist (3:21) [abc123] via youtube (fallback)\nhttps://www.youtube.com/watch?v=abc123\n"
		if buf.String() != want {
			t.Errorf("writeResolution() = %q, want %q", buf.String(), want)
		}
	})

	t.Run("Text no match", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResolution(&buf, formatText, unmatched); err != nil {
			t.Fatalf("writeResolution() unexpected error: %v", err)
		}
		if buf.String() != "No match for Song - Artist\n" {
			t.Errorf("writeResolution() = %q", buf.String())
		}
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResolution(&buf, formatJSON, matched); err != nil {
			t.Fatalf("writeResolution() unexpected error: %v", err)
		}
		var decoded resolutionOutput
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if !decoded.Matched || decoded.Match == nil || decoded.Match.Identifier != "abc123" || !decoded.Match.Fallback {
			t.Errorf("decoded output = %+v", decoded)
		}
		if decoded.Reference.DurationMs != 200000 {
			t.Errorf("reference duration = %d, want 200000", decoded.Reference.DurationMs)
		}
	})

	t.Run("YAML no match omits match", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writeResolution(&buf, formatYAML, unmatched); err != nil {
			t.Fatalf("writeResolution() unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "matched: false") {
			t.Errorf("YAML output = %q", buf.String())
		}
		if strings.Contains(buf.String(), "\nmatch:") || strings.Contains(buf.String(), "identifier:") {
			t.Errorf("YAML output of a miss carries a match: %q", buf.String())
		}
	})

	t.Run("Unknown format", func(t *testing.T) {
		if err := writeResolution(&bytes.Buffer{}, "xml", matched); err == nil {
			t.Error("writeResolution() expected error for unknown format")
		}
	})
}

func TestRenderCandidates(t *testing.T) {
	ref := mirror.ReferenceTrack{Title: "Song", Author: "Artist", Duration: 200 * time.Second}
	candidates := []mirror.Track{
		{Title: "Song", Author: "Artist", Duration: 200 * time.Second, Identifier: "a"},
		{Title: "Song (Live)", Author: "Artist", Duration: 300 * time.Second, Identifier: "b"},
		{Title: "Song Extended Mix", Author: "Someone", Duration: 202 * time.Second, Identifier: "c"},
	}

	output := renderCandidates(mirror.RankCandidates(candidates, ref))

	for _, want := range []string{"RANK", "SCORE", "IDENTIFIER", "200.00", "3:20"} {
		if !strings.Contains(output, want) {
			t.Errorf("renderCandidates() output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Song (Live)") {
		t.Errorf("renderCandidates() shows a candidate outside the duration tolerance:\n%s", output)
	}
	if strings.Index(output, " a ") > strings.Index(output, " c ") {
		t.Errorf("renderCandidates() does not list the best candidate first:\n%s", output)
	}
}

func TestCandidatesOf(t *testing.T) {
	track := mirror.Track{Identifier: "one"}

	tests := []struct {
		name   string
		result mirror.LoadResult
		want   int
	}{
		{name: "No match", result: mirror.NoMatch, want: 0},
		{name: "Single track", result: mirror.SingleTrack(track), want: 1},
		{name: "Collection", result: mirror.Collection([]mirror.Track{track, track}), want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(candidatesOf(tt.result)); got != tt.want {
				t.Errorf("candidatesOf() returned %d tracks, want %d", got, tt.want)
			}
		})
	}
}

type stubResolver struct {
	mu    sync.Mutex
	calls int
}

func (r *stubResolver) Resolve(_ context.Context, ref mirror.ReferenceTrack) (mirror.Resolution, bool) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if strings.HasPrefix(ref.Title, "miss") {
		return mirror.Resolution{}, false
	}
	return mirror.Resolution{
		Track:      mirror.Track{Title: ref.Title, Author: ref.Author, Duration: ref.Duration, Source: "youtube"},
		Identifier: "id-" + ref.Title,
	}, true
}

func TestResolveBatch(t *testing.T) {
	entries := []batchEntry{
		{Title: "one", Author: "Artist", DurationMs: 1000},
		{Title: "miss two"},
		{Author: "No Title"},
		{Title: "four", Author: "Artist"},
	}
	resolver := &stubResolver{}

	results, err := resolveBatch(context.Background(), resolver, newReferenceSource(nil), entries, 2)
	if err != nil {
		t.Fatalf("resolveBatch() unexpected error: %v", err)
	}

	if len(results) != len(entries) {
		t.Fatalf("resolveBatch() returned %d results, want %d", len(results), len(entries))
	}
	if resolver.calls != 3 {
		t.Errorf("resolver called %d times, want 3", resolver.calls)
	}

	if !results[0].Matched || results[0].Match.Identifier != "id-one" {
		t.Errorf("results[0] = %+v, want match id-one", results[0])
	}
	if results[1].Matched || results[1].Reference.Author != mirror.UnknownAuthor {
		t.Errorf("results[1] = %+v, want unmatched with unknown author", results[1])
	}
	if results[2].Error != errMissingTitle.Error() || results[2].Reference.Author != "No Title" {
		t.Errorf("results[2] = %+v, want missing title error", results[2])
	}
	if !results[3].Matched || results[3].Match.Identifier != "id-four" {
		t.Errorf("results[3] = %+v, want match id-four", results[3])
	}
}

type stubSpotify struct{}

func (stubSpotify) ReferenceTrack(_ context.Context, idOrURL string) (mirror.ReferenceTrack, error) {
	return mirror.ReferenceTrack{Title: "spotify " + idOrURL, Author: "Artist"}, nil
}

func TestResolveBatchSharesSpotifyClient(t *testing.T) {
	var (
		mu      sync.Mutex
		clients int
	)
	source := newReferenceSource(func(context.Context) (spotifyTracks, error) {
		mu.Lock()
		defer mu.Unlock()
		clients++
		return stubSpotify{}, nil
	})

	entries := []batchEntry{
		{Spotify: "spotify:track:1"},
		{Spotify: "spotify:track:2"},
		{Title: "plain"},
		{Spotify: "spotify:track:3"},
	}

	results, err := resolveBatch(context.Background(), &stubResolver{}, source, entries, 3)
	if err != nil {
		t.Fatalf("resolveBatch() unexpected error: %v", err)
	}

	if clients != 1 {
		t.Errorf("Spotify client created %d times, want 1", clients)
	}
	if got := results[1].Reference.Title; got != "spotify spotify:track:2" {
		t.Errorf("results[1] title = %q, want the Spotify reference", got)
	}
}

func TestResolveBatchSpotifyClientError(t *testing.T) {
	errNoCredentials := errors.New("missing credentials")
	calls := 0
	source := newReferenceSource(func(context.Context) (spotifyTracks, error) {
		calls++
		return nil, errNoCredentials
	})

	entries := []batchEntry{{Spotify: "spotify:track:1"}, {Spotify: "spotify:track:2"}}
	results, err := resolveBatch(context.Background(), &stubResolver{}, source, entries, 1)
	if err != nil {
		t.Fatalf("resolveBatch() unexpected error: %v", err)
	}

	if calls != 1 {
		t.Errorf("Spotify client created %d times, want 1", calls)
	}
	for i, result := range results {
		if result.Error != errNoCredentials.Error() {
			t.Errorf("results[%d].Error = %q, want %q", i, result.Error, errNoCredentials)
		}
	}
}

func TestTemplateStrings(t *testing.T) {
	templates, err := mirror.ParseTemplates([]string{"dzisrc:%ISRC%", "ytsearch:%QUERY%"})
	if err != nil {
		t.Fatalf("ParseTemplates() unexpected error: %v", err)
	}

	got := templateStrings(templates)
	if want := []string{"dzisrc:%ISRC%", "ytsearch:%QUERY%"}; !slices.Equal(got, want) {
		t.Errorf("templateStrings() = %v, want %v", got, want)
	}
}

func TestResolveBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolveBatch(ctx, &stubResolver{}, newReferenceSource(nil), []batchEntry{{Title: "one"}}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("resolveBatch() error = %v, want %v", err, context.Canceled)
	}
}

func TestBatchFileParsing(t *testing.T) {
	data := []byte(`tracks:
  - title: Blinding Lights
    author: The Weeknd
    duration_ms: 200040
    isrc: USUG11904206
  - spotify: spotify:track:0VjIjW4GlUZAMYd2vXMi3b
`)

	var file batchFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		t.Fatalf("yaml.Unmarshal() unexpected error: %v", err)
	}
	if len(file.Tracks) != 2 {
		t.Fatalf("parsed %d tracks, want 2", len(file.Tracks))
	}
	if file.Tracks[0].DurationMs != 200040 || file.Tracks[0].ISRC != "USUG11904206" {
		t.Errorf("first entry = %+v", file.Tracks[0])
	}
	if file.Tracks[1].Spotify != "spotify:track:0VjIjW4GlUZAMYd2vXMi3b" {
		t.Errorf("second entry = %+v", file.Tracks[1])
	}
}
