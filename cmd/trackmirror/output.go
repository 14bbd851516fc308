package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"trackmirror/pkg/mirror"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type trackOutput struct {
	Title      string `json:"title" yaml:"title"`
	Author     string `json:"author" yaml:"author"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
	ISRC       string `json:"isrc,omitempty" yaml:"isrc,omitempty"`
	URI        string `json:"uri,omitempty" yaml:"uri,omitempty"`
}

type matchOutput struct {
	Title      string `json:"title" yaml:"title"`
	Author     string `json:"author" yaml:"author"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
	Identifier string `json:"identifier" yaml:"identifier"`
	URI        string `json:"uri,omitempty" yaml:"uri,omitempty"`
	Source     string `json:"source" yaml:"source"`
	Fallback   bool   `json:"fallback" yaml:"fallback"`
}

type resolutionOutput struct {
	Reference trackOutput  `json:"reference" yaml:"reference"`
	Matched   bool         `json:"matched" yaml:"matched"`
	Match     *matchOutput `json:"match,omitempty" yaml:"match,omitempty"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`
}

func trackOutputOf(ref mirror.ReferenceTrack) trackOutput {
	return trackOutput{
		Title:      ref.Title,
		Author:     ref.Author,
		DurationMs: ref.Duration.Milliseconds(),
		ISRC:       ref.ISRC,
		URI:        ref.URI,
	}
}

func newResolutionOutput(ref mirror.ReferenceTrack, resolution mirror.Resolution, ok bool) resolutionOutput {
	out := resolutionOutput{Reference: trackOutputOf(ref), Matched: ok}
	if ok {
		out.Match = &matchOutput{
			Title:      resolution.Track.Title,
			Author:     resolution.Track.Author,
			DurationMs: resolution.Track.Duration.Milliseconds(),
			Identifier: resolution.Identifier,
			URI:        resolution.Track.URI,
			Source:     resolution.Track.Source,
			Fallback:   resolution.Fallback,
		}
	}
	return out
}

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (text, json, yaml)", format)
	}
}

func writeResolution(w io.Writer, format string, out resolutionOutput) error {
	switch format {
	case formatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	case formatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(out); err != nil {
			return err
		}
		return encoder.Close()
	case formatText:
		_, err := io.WriteString(w, formatResolutionText(out))
		return err
	default:
		return validateFormat(format)
	}
}

func formatResolutionText(out resolutionOutput) string {
	if !out.Matched || out.Match == nil {
		return fmt.Sprintf("No match for %s - %s\n", out.Reference.Title, out.Reference.Author)
	}

	m := out.Match
	line := fmt.Sprintf("%s - %s (%s) [%s] via %s", m.Title, m.Author,
		formatDuration(time.Duration(m.DurationMs)*time.Millisecond), m.Identifier, m.Source)
	if m.Fallback {
		line += " (fallback)"
	}
	if m.URI != "" {
		line += "\n" + m.URI
	}
	return line + "\n"
}

// formatDuration renders d as m:ss.
func formatDuration(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderCandidates(scored []mirror.ScoredCandidate) string {
	headers := []string{"Rank", "Score", "Title", "Author", "Duration", "Position", "Identifier"}
	aligns := []columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(scored))
	for i, candidate := range scored {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(candidate.Score, 'f', 2, 64),
			candidate.Title,
			candidate.Author,
			formatDuration(candidate.Duration),
			strconv.Itoa(candidate.Index + 1),
			candidate.Identifier,
		})
	}

	return renderTable(headers, rows, aligns)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}
