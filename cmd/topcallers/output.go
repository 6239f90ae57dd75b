package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/715d/topcallers/pkg/topcaller"
)

// Report is the output of one query.
type Report struct {
	Start      []string              `json:"start"`
	TopCallers []topcaller.TopCaller `json:"top_callers"`
	Stats      Stats                 `json:"stats"`
}

// Stats summarises the work behind a report.
type Stats struct {
	TopCallers     int           `json:"top_callers"`
	Visited        int           `json:"visited"`
	Truncated      bool          `json:"truncated"`
	Failures       int           `json:"failures"`
	Methods        int           `json:"methods"`
	Files          int           `json:"files"`
	Cached         int           `json:"cached"`
	Version        uint64        `json:"snapshot_version"`
	LoadDuration   time.Duration `json:"load_duration"`
	SearchDuration time.Duration `json:"search_duration"`
}

func writeReport(w io.Writer, report *Report, asJSON, verbose bool) error {
	var output string
	var err error

	if asJSON {
		output, err = formatJSONOutput(report)
	} else {
		output = formatTextOutput(report, verbose)
	}
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, output)
	return err
}

type jOutput struct {
	Start      []string              `json:"start"`
	TopCallers []topcaller.TopCaller `json:"top_callers"`
	Stats      Stats                 `json:"stats"`
	Version    string                `json:"version"`
	Timestamp  string                `json:"timestamp"`
}

func formatJSONOutput(report *Report) (string, error) {
	callers := report.TopCallers
	if callers == nil {
		callers = []topcaller.TopCaller{}
	}
	data, err := json.MarshalIndent(jOutput{
		Start:      report.Start,
		TopCallers: callers,
		Stats:      report.Stats,
		Version:    version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json output: %w", err)
	}
	return string(data) + "\n", nil
}

func formatTextOutput(report *Report, verbose bool) string {
	var output strings.Builder

	if verbose {
		slog.Info("",
			"top_callers", report.Stats.TopCallers,
			"visited", report.Stats.Visited,
			"methods", report.Stats.Methods,
			"files", report.Stats.Files,
			"cached", report.Stats.Cached,
			"load_duration", report.Stats.LoadDuration.String(),
			"search_duration", report.Stats.SearchDuration.String())
	}

	if report.Stats.Truncated {
		output.WriteString("warning: depth limit reached, some top callers may be missing\n")
	}
	if len(report.TopCallers) == 0 {
		slog.Info("no top callers found", "start", report.Start)
		return output.String()
	}

	for _, tc := range report.TopCallers {
		// Format: file:line kind key
		if !verbose {
			fmt.Fprintf(&output, "%s:%d %s %s\n", tc.Location.File, tc.Location.Line, tc.Kind, tc.Key)
		} else {
			fmt.Fprintf(&output, "  %s:%d:%d %s %s (depth %d)\n",
				tc.Location.File, tc.Location.Line, tc.Location.Column, tc.Kind, tc.Key, tc.Depth)
		}
	}
	return output.String()
}
