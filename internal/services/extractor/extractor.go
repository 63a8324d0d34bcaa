// Package extractor downloads a track's audio through yt-dlp and converts
// it to Opus. The runner searches rather than resolving URLs: the caller
// hands it a title and artist and gets back the path of the finished file.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

type Runner struct {
	binary      string
	cookiesFile string
}

type Config struct {
	Binary      string
	CookiesFile string
}

func New(cfg Config) *Runner {
	bin := strings.TrimSpace(cfg.Binary)
	if bin == "" {
		bin = "yt-dlp"
	}
	// A configured cookies file that is not readable is dropped up front
	// instead of failing every fetch.
	cookies := strings.TrimSpace(cfg.CookiesFile)
	if cookies != "" {
		if _, err := os.Stat(cookies); err != nil {
			cookies = ""
		}
	}
	return &Runner{binary: bin, cookiesFile: cookies}
}

const (
	maxExtractTimeout = 10 * time.Minute
	audioQuality      = "96K"
)

// Fetch runs yt-dlp against the first search hit for the track, extracting
// the audio as Opus under the given output stem. It returns the path of the
// finished file as reported by yt-dlp itself; the report is verified to
// exist before it is trusted.
func (r *Runner) Fetch(ctx context.Context, title, artist, outputStem string) (string, error) {
	stem := strings.TrimSpace(outputStem)
	if stem == "" {
		return "", errors.New("output stem is required")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxExtractTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, r.binary, r.buildArgs(title, artist, stem)...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("yt-dlp failed: %w", err)
		}
		return "", fmt.Errorf("yt-dlp failed: %w: %s", err, msg)
	}

	reported := parseReportedPath(stdout.String())
	if reported == "" {
		return "", errors.New("yt-dlp reported no output path")
	}
	if _, err := os.Stat(reported); err != nil {
		return "", fmt.Errorf("yt-dlp reported a missing file: %w", err)
	}
	return reported, nil
}

func (r *Runner) buildArgs(title, artist, stem string) []string {
	// --print forces simulation unless --no-simulate is passed alongside.
	args := []string{
		"--no-simulate",
		"--quiet",
		"--no-warnings",
		"--no-check-certificates",
		"--no-playlist",
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", "opus",
		"--audio-quality", audioQuality,
		"--output", stem + ".%(ext)s",
		"--print", "after_move:filepath",
	}
	if r.cookiesFile != "" {
		args = append(args, "--cookies", r.cookiesFile)
	}
	return append(args, searchTerm(title, artist))
}

// searchTerm builds the single-result search directive. Appending "audio"
// biases the first hit away from music videos.
func searchTerm(title, artist string) string {
	term := strings.TrimSpace(strings.TrimSpace(artist) + " " + strings.TrimSpace(title))
	return "ytsearch1:" + term + " audio"
}

// parseReportedPath returns the last non-empty stdout line. yt-dlp prints
// the after-move file path there; anything above it is noise from the
// download itself.
func parseReportedPath(output string) string {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
