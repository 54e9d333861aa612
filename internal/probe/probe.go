// Package probe shells out to ffprobe for media durations. It degrades
// gracefully when the binary is absent.
package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var ErrUnavailable = errors.New("ffprobe not available")

const ffprobeTimeout = 15 * time.Second

// Prober resolves media durations via ffprobe.
type Prober struct {
	path string
}

// NewProber looks up ffprobe on PATH. A missing binary is not an error, the
// prober just reports unavailable.
func NewProber() *Prober {
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		return &Prober{}
	}
	return &Prober{path: path}
}

// Available reports whether ffprobe was found.
func (p *Prober) Available() bool {
	return p.path != ""
}

// Duration returns the duration of the media file in seconds.
func (p *Prober) Duration(ctx context.Context, filePath string) (float64, error) {
	if p.path == "" {
		return 0, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, ffprobeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		filePath,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", filePath, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe output %q: %w", strings.TrimSpace(string(out)), err)
	}

	return seconds, nil
}
