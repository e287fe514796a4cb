package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
)

var (
	ErrDurationUnknown = errors.New("media duration could not be determined")

	durationMatcher  = regexp.MustCompile(`Duration:\s*(\d+):(\d{1,2}):(\d{1,2}(?:\.\d+)?)`)
	dimensionMatcher = regexp.MustCompile(`Stream #.*Video:.*?\b(\d{2,5})x(\d{2,5})\b`)
)

type (
	// Info describes the properties of a media file discovered by probing it.
	Info struct {
		Duration float64
		Width    int
		Height   int
	}

	Prober interface {
		Probe(ctx context.Context, path string) (*Info, error)
	}

	// ExecProber runs the encoder in probe mode (input only, no output)
	// and parses the human readable report it prints.
	ExecProber struct {
		config Config
	}
)

func NewProber(config Config) *ExecProber {
	return &ExecProber{config: config}
}

// Probe returns the duration and frame size of the media at the path given. A
// report lacking a duration results in ErrDurationUnknown.
func (prober *ExecProber) Probe(ctx context.Context, path string) (*Info, error) {
	cmd := exec.CommandContext(ctx, prober.config.ffmpegBin(), "-hide_banner", "-i", path)

	// ffmpeg exits non-zero as no output was requested, so the exit
	// status is ignored unless the process could not run at all.
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run probe for %s: %w", path, err)
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return ParseInfo(string(output))
}

// ParseInfo extracts the media information from the report printed by the encoder.
func ParseInfo(output string) (*Info, error) {
	duration, err := ParseDuration(output)
	if err != nil {
		return nil, err
	}

	info := &Info{Duration: duration}
	info.Width, info.Height = ParseDimensions(output)
	return info, nil
}

// ParseDuration finds the 'Duration: H:MM:SS.fraction' marker in the output
// provided and converts it to seconds, e.g. "Duration: 00:01:05.20" is 65.2.
// Missing or malformed markers yield ErrDurationUnknown.
func ParseDuration(output string) (float64, error) {
	groups := durationMatcher.FindStringSubmatch(output)
	if groups == nil {
		return 0, ErrDurationUnknown
	}

	hours, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0, ErrDurationUnknown
	}
	minutes, err := strconv.Atoi(groups[2])
	if err != nil || minutes >= 60 {
		return 0, ErrDurationUnknown
	}
	seconds, err := strconv.ParseFloat(groups[3], 64)
	if err != nil || seconds >= 60 {
		return 0, ErrDurationUnknown
	}

	return float64(hours*3600+minutes*60) + seconds, nil
}

// ParseDimensions returns the frame size of the first video stream
// found in the output, or zeros if there is none.
func ParseDimensions(output string) (int, int) {
	groups := dimensionMatcher.FindStringSubmatch(output)
	if groups == nil {
		return 0, 0
	}

	w, _ := strconv.Atoi(groups[1])
	h, _ := strconv.Atoi(groups[2])
	return w, h
}
