// Package media inspects generated audio files with ffprobe.
package media

import (
	"context"
	"encoding/json"
	"math"
	"os/exec"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

var execCommandContext = exec.CommandContext

// Prober runs ffprobe. The zero value uses "ffprobe" from PATH.
type Prober struct {
	Binary string
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// AudioDuration returns the duration of the file at path in seconds. Any
// failure (missing binary, unreadable file, unparsable output) yields 0.
func (p Prober) AudioDuration(ctx context.Context, path string) float64 {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return 0
	}

	cmd := execCommandContext(ctx, binary, "-v", "error", "-show_entries", "format=duration", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		log.Printf("ffprobe failed for %s: %v", path, err)
		return 0
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		log.Printf("Error parsing ffprobe output for %s: %v", path, err)
		return 0
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0
	}
	return seconds
}
