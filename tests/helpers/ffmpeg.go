package helpers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/floostack/transcoder"
	"github.com/hbomb79/mediabatch/internal/ffmpeg"
)

type (
	// FakeProber answers probes from a fixed table, keyed by file base name.
	// Paths not in the table are answered with Default, or ErrDurationUnknown
	// if no default is set.
	FakeProber struct {
		Infos   map[string]*ffmpeg.Info
		Default *ffmpeg.Info
	}

	RunCall struct {
		Input  string
		Output string
		Args   []string
	}

	// FakeRunner records each encoder invocation and writes a small
	// placeholder file at the output path. Outputs listed in Fail are not
	// written, and the error is returned instead. When Content is set, its
	// result is written in place of the placeholder.
	FakeRunner struct {
		mutex   sync.Mutex
		Calls   []RunCall
		Fail    map[string]error
		Content func(output string) []byte
	}
)

func (prober *FakeProber) Probe(_ context.Context, path string) (*ffmpeg.Info, error) {
	if info, ok := prober.Infos[filepath.Base(path)]; ok {
		out := *info
		return &out, nil
	}
	if prober.Default != nil {
		out := *prober.Default
		return &out, nil
	}

	return nil, ffmpeg.ErrDurationUnknown
}

func (runner *FakeRunner) Run(_ context.Context, input string, output string, args transcoder.Options, progress ffmpeg.ProgressHandler) error {
	runner.mutex.Lock()
	runner.Calls = append(runner.Calls, RunCall{Input: input, Output: output, Args: args.GetStrArguments()})
	err := runner.Fail[filepath.Base(output)]
	runner.mutex.Unlock()

	if err != nil {
		return err
	}
	if progress != nil {
		progress(&ffmpeg.Progress{Progress: 100})
	}

	if err := os.MkdirAll(filepath.Dir(output), os.ModePerm); err != nil {
		return err
	}
	content := []byte("encoded from " + input)
	if runner.Content != nil {
		content = runner.Content(output)
	}

	return os.WriteFile(output, content, 0o644)
}

// Outputs returns the base names of every output the runner was asked to write.
func (runner *FakeRunner) Outputs() []string {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()

	out := make([]string, len(runner.Calls))
	for i, call := range runner.Calls {
		out[i] = filepath.Base(call.Output)
	}

	return out
}

// SolidPNG encodes a w*h PNG filled with c.
func SolidPNG(w int, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}

	return buf.Bytes()
}
