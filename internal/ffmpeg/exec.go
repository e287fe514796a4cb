package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

var log = logger.Get("FFmpeg")

type (
	Progress struct {
		FramesProcessed string
		CurrentTime     string
		CurrentBitrate  string
		Progress        float64
		Speed           string
	}

	ProgressHandler func(*Progress)

	// Runner executes a single encoder invocation reading from input
	// and writing to output, with the arguments provided placed between the two.
	Runner interface {
		Run(ctx context.Context, input string, output string, args transcoder.Options, progress ProgressHandler) error
	}

	// Args is an ordered list of encoder arguments.
	Args []string

	// TranscodeRunner drives the encoder through the transcoder library,
	// reporting progress as the encode proceeds.
	TranscodeRunner struct {
		config Config
	}
)

// GetStrArguments implements transcoder.Options
func (args Args) GetStrArguments() []string { return args }

// Seconds formats a second offset the way the encoder expects.
func Seconds(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

func NewRunner(config Config) *TranscodeRunner {
	return &TranscodeRunner{config: config}
}

func (runner *TranscodeRunner) Run(ctx context.Context, input string, output string, args transcoder.Options, progress ProgressHandler) error {
	trans := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   runner.config.ffmpegBin(),
			FfprobeBinPath:  runner.config.ffprobeBin(),
		}).
		Input(input).
		Output(output).
		WithContext(&ctx)

	if err := os.MkdirAll(filepath.Dir(output), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", output, err)
	}
	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale output %s: %w", output, err)
	}

	log.Emit(logger.DEBUG, "Running encoder %s -> %s with %v\n", input, output, args.GetStrArguments())
	progressChannel, err := trans.Start(args)
	if err != nil {
		return parseFfmpegError(err)
	}

	for prog := range progressChannel {
		if progress == nil {
			continue
		}

		progress(&Progress{
			FramesProcessed: prog.GetFramesProcessed(),
			CurrentTime:     prog.GetCurrentTime(),
			CurrentBitrate:  prog.GetCurrentBitrate(),
			Progress:        prog.GetProgress(),
			Speed:           prog.GetSpeed(),
		})
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	// The exit status of the encoder is not surfaced through the progress
	// channel, so the output file is the only evidence of success. Any
	// previous output was removed before the encoder started.
	if info, err := os.Stat(output); err != nil || info.Size() == 0 {
		return fmt.Errorf("encoder produced no output at %s", output)
	}

	return nil
}

// ExtractFrame writes the single frame found at the given offset of the input to output.
func ExtractFrame(ctx context.Context, runner Runner, input string, output string, at float64) error {
	args := Args{"-ss", Seconds(at), "-frames:v", "1", "-y"}
	if err := runner.Run(ctx, input, output, args, nil); err != nil {
		return fmt.Errorf("failed to extract frame at %ss from %s: %w", Seconds(at), input, err)
	}

	return nil
}

func parseFfmpegError(err error) error {
	// Try and pick out some relevant information from the HUGE
	// output log from ffmpeg. The error we get contains lots of information
	// about how the binary was compiled... this is useless info, we just
	// want the 'message' JSON that is encoded inside.
	messageMatcher := regexp.MustCompile(`(?s)message: ({.*})`)
	groups := messageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return err
	}

	var out map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil {
		return errors.New(groups[1])
	}

	if ffmpegException, ok := out["error"].(map[string]interface{}); ok {
		if msg, ok := ffmpegException["string"].(string); ok {
			return errors.New(msg)
		}
	}

	return errors.New(groups[1])
}
