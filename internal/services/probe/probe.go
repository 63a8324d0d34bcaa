// Package probe reads container-level tags and duration from audio
// artifacts via ffprobe.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"trackcache/internal/domain"
)

type Prober struct {
	binary string
}

func New(binary string) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{binary: bin}
}

const maxProbeTimeout = 30 * time.Second

// Probe runs ffprobe against the file. The error is non-nil only when the
// probe itself fails; missing tag fields are not an error.
func (p *Prober) Probe(ctx context.Context, filePath string) (domain.ArtifactInfo, error) {
	path := strings.TrimSpace(filePath)
	if path == "" {
		return domain.ArtifactInfo{}, errors.New("file path is required")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	info, parseErr := parseProbeOutput(stdout.Bytes())
	if parseErr != nil {
		if runErr != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				return domain.ArtifactInfo{}, fmt.Errorf("ffprobe failed: %w", runErr)
			}
			return domain.ArtifactInfo{}, fmt.Errorf("ffprobe failed: %w: %s", runErr, msg)
		}
		return domain.ArtifactInfo{}, fmt.Errorf("ffprobe output parse failed: %w", parseErr)
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return domain.ArtifactInfo{}, fmt.Errorf("ffprobe failed: %w", runErr)
		}
		return domain.ArtifactInfo{}, fmt.Errorf("ffprobe failed: %w: %s", runErr, msg)
	}
	return info, nil
}

// probePayload is the subset of ffprobe JSON output we parse. Opus files
// usually carry their vorbis comments on the audio stream, but ffmpeg also
// mirrors them at format level for most containers, so both are consulted.
type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType string            `json:"codec_type"`
	Duration  string            `json:"duration"`
	Tags      map[string]string `json:"tags"`
}

type probeFormat struct {
	Duration string            `json:"duration"`
	Tags     map[string]string `json:"tags"`
}

func parseProbeOutput(data []byte) (domain.ArtifactInfo, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.ArtifactInfo{}, err
	}

	var streamTags map[string]string
	var streamDuration string
	for _, stream := range payload.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		streamTags = stream.Tags
		streamDuration = stream.Duration
		break
	}

	info := domain.ArtifactInfo{
		Title:  strings.TrimSpace(firstTag(payload.Format.Tags, streamTags, "title")),
		Artist: strings.TrimSpace(firstTag(payload.Format.Tags, streamTags, "artist")),
		Album:  strings.TrimSpace(firstTag(payload.Format.Tags, streamTags, "album")),
	}

	if d := parseDuration(payload.Format.Duration); d > 0 {
		info.Duration = d
	} else if d := parseDuration(streamDuration); d > 0 {
		info.Duration = d
	}

	return info, nil
}

func parseDuration(value string) float64 {
	if value == "" {
		return 0
	}
	d, err := strconv.ParseFloat(value, 64)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

func firstTag(format, stream map[string]string, key string) string {
	if value := getTag(format, key); value != "" {
		return value
	}
	return getTag(stream, key)
}

func getTag(tags map[string]string, key string) string {
	if len(tags) == 0 {
		return ""
	}
	if value, ok := tags[key]; ok {
		return value
	}
	upper := strings.ToUpper(key)
	if value, ok := tags[upper]; ok {
		return value
	}
	lower := strings.ToLower(key)
	if value, ok := tags[lower]; ok {
		return value
	}
	return ""
}
