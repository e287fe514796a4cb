package transform

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hbomb79/mediabatch/internal/ffmpeg"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

// ErrAssetMissing is returned by operations which depend on a file (font,
// watermark, music) that does not exist. Compose skips such operations.
var ErrAssetMissing = errors.New("asset missing")

var musicExtensions = map[string]bool{".mp3": true, ".wav": true}

type (
	// Clip is an in-memory description of an encode: a window of a source file
	// plus the filters, overlays and audio to apply to it. Nothing is encoded
	// until the clip is handed to an ffmpeg.Runner.
	Clip struct {
		Source string
		Start  float64
		End    float64
		Width  int
		Height int

		filters    []string
		inputs     []string
		watermark  *watermark
		audioInput int
	}

	watermark struct {
		input   int
		opacity float64
	}

	// Op transforms a clip in place.
	Op func(*Clip) error

	// Interval is a half-open window [Start, End) of a clip, in seconds.
	Interval struct {
		Start float64
		End   float64
	}

	TextStyle struct {
		FontPath     string
		Size         int
		Colour       string
		StrokeWidth  int
		StrokeColour string

		// Vertical position of the text as a fraction of the frame height.
		Position float64
	}
)

func NewClip(source string, info *ffmpeg.Info) *Clip {
	return &Clip{
		Source:     source,
		Start:      0,
		End:        info.Duration,
		Width:      info.Width,
		Height:     info.Height,
		filters:    make([]string, 0),
		inputs:     make([]string, 0),
		audioInput: -1,
	}
}

func (clip *Clip) Duration() float64 { return clip.End - clip.Start }

func (clip *Clip) String() string {
	return fmt.Sprintf("Clip{%s [%s,%s) %dx%d}", filepath.Base(clip.Source), ffmpeg.Seconds(clip.Start), ffmpeg.Seconds(clip.End), clip.Width, clip.Height)
}

func (clip *Clip) validate() error {
	if clip.Duration() <= 0 {
		return fmt.Errorf("no duration remaining (%ss)", ffmpeg.Seconds(clip.Duration()))
	}
	if clip.Width <= 0 || clip.Height <= 0 {
		return fmt.Errorf("frame has zero area (%dx%d)", clip.Width, clip.Height)
	}

	return nil
}

func (clip *Clip) clone() *Clip {
	out := *clip
	out.filters = append(make([]string, 0, len(clip.filters)), clip.filters...)
	out.inputs = append(make([]string, 0, len(clip.inputs)), clip.inputs...)
	if clip.watermark != nil {
		wm := *clip.watermark
		out.watermark = &wm
	}

	return &out
}

// Segment returns a copy of the clip restricted to the interval given, which
// is relative to the start of the clip.
func (clip *Clip) Segment(iv Interval) *Clip {
	out := clip.clone()
	out.Start = clip.Start + iv.Start
	out.End = math.Min(clip.Start+iv.End, clip.End)

	return out
}

// Args renders the clip in to the encoder arguments that follow the
// primary input.
func (clip *Clip) Args() ffmpeg.Args {
	args := ffmpeg.Args{}
	for _, input := range clip.inputs {
		args = append(args, "-i", input)
	}

	chain := "null"
	if len(clip.filters) > 0 {
		chain = strings.Join(clip.filters, ",")
	}

	graph := []string{fmt.Sprintf("[0:v]%s[base]", chain)}
	videoOut := "[base]"
	if clip.watermark != nil {
		graph = append(graph,
			fmt.Sprintf("[%d:v]scale=32:24,format=rgba,colorchannelmixer=aa=%.2f[wm]", clip.watermark.input, clip.watermark.opacity),
			"[base][wm]overlay=W-w-10:H-h-10[vout]",
		)
		videoOut = "[vout]"
	}

	args = append(args, "-filter_complex", strings.Join(graph, ";"), "-map", videoOut)
	if clip.audioInput > 0 {
		args = append(args, "-map", fmt.Sprintf("%d:a", clip.audioInput), "-shortest")
	} else {
		args = append(args, "-map", "0:a?")
	}

	return append(args, "-ss", ffmpeg.Seconds(clip.Start), "-t", ffmpeg.Seconds(clip.Duration()), "-y")
}

// Compose applies the operations to a copy of the clip in order. Operations
// whose asset is missing are skipped with a warning. Composition stops at the
// first operation that fails, or that leaves the clip with no duration or a
// zero-area frame; this is logged and (nil, false) returned.
func Compose(clip *Clip, ops ...Op) (*Clip, bool) {
	if err := clip.validate(); err != nil {
		log.Emit(logger.WARNING, "Cannot compose %s: %v\n", clip, err)
		return nil, false
	}

	current := clip
	for i, op := range ops {
		next := current.clone()
		if err := op(next); err != nil {
			if errors.Is(err, ErrAssetMissing) {
				log.Emit(logger.WARNING, "Skipping operation %d for %s: %v\n", i, clip.Source, err)
				continue
			}

			log.Emit(logger.WARNING, "Composition of %s stopped at operation %d: %v\n", clip.Source, i, err)
			return nil, false
		}

		if err := next.validate(); err != nil {
			log.Emit(logger.WARNING, "Composition of %s stopped at operation %d: %v\n", clip.Source, i, err)
			return nil, false
		}

		current = next
	}

	return current, true
}

// Trim restricts the clip to [start, end), relative to the current start of
// the clip. An end beyond the clip is clamped.
func Trim(start float64, end float64) Op {
	return func(clip *Clip) error {
		if start < 0 {
			return fmt.Errorf("trim start %ss is negative", ffmpeg.Seconds(start))
		}

		base := clip.Start
		clip.Start = base + start
		clip.End = math.Min(base+end, clip.End)
		return nil
	}
}

// TrimMargins removes head seconds from the start and tail seconds from the end.
func TrimMargins(head float64, tail float64) Op {
	return func(clip *Clip) error {
		clip.Start += math.Max(head, 0)
		clip.End -= math.Max(tail, 0)
		return nil
	}
}

// ResizeForShorts scales the clip to the target height, preserving aspect
// ratio, and centre-crops it to the target width when it is wide enough.
func ResizeForShorts(width int, height int) Op {
	return func(clip *Clip) error {
		scaled := int(math.Round(float64(clip.Width) * float64(height) / float64(clip.Height)))
		scaled -= scaled % 2

		clip.filters = append(clip.filters, fmt.Sprintf("scale=-2:%d", height))
		if scaled >= width {
			clip.filters = append(clip.filters, fmt.Sprintf("crop=%d:%d", width, height))
			scaled = width
		}
		clip.filters = append(clip.filters, "setsar=1")

		clip.Width = scaled
		clip.Height = height
		return nil
	}
}

// TextOverlay draws the text centred horizontally with an outline. A missing
// font falls back to the encoders default font.
func TextOverlay(text string, style TextStyle) Op {
	return func(clip *Clip) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}

		options := make([]string, 0, 8)
		if style.FontPath != "" {
			if _, err := os.Stat(style.FontPath); err == nil {
				options = append(options, fmt.Sprintf("fontfile='%s'", escapeFilterValue(style.FontPath)))
			} else {
				log.Emit(logger.WARNING, "Font %s unavailable, using default font: %v\n", style.FontPath, err)
			}
		}

		options = append(options,
			fmt.Sprintf("text='%s'", escapeFilterValue(text)),
			fmt.Sprintf("fontsize=%d", style.Size),
			fmt.Sprintf("fontcolor=%s", style.Colour),
			"x=(w-text_w)/2",
			fmt.Sprintf("y=h*%.3f", style.Position),
		)
		if style.StrokeWidth > 0 {
			options = append(options, fmt.Sprintf("borderw=%d", style.StrokeWidth), fmt.Sprintf("bordercolor=%s", style.StrokeColour))
		}

		clip.filters = append(clip.filters, "drawtext="+strings.Join(options, ":"))
		return nil
	}
}

// Watermark overlays the image at the bottom right corner of the clip.
func Watermark(path string, opacity float64) Op {
	return func(clip *Clip) error {
		if path == "" {
			return fmt.Errorf("%w: no watermark configured", ErrAssetMissing)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: watermark %s: %v", ErrAssetMissing, path, err)
		}

		clip.inputs = append(clip.inputs, path)
		clip.watermark = &watermark{input: len(clip.inputs), opacity: opacity}
		return nil
	}
}

// Delogo blurs out a burned-in watermark occupying the region given as
// 'x,y,w,h' in source pixels. The region must lie strictly inside the frame.
func Delogo(region string) Op {
	return func(clip *Clip) error {
		if region == "" {
			return fmt.Errorf("%w: no watermark region configured", ErrAssetMissing)
		}

		rect, err := ParseRegion(region)
		if err != nil {
			return err
		}
		if rect.X < 1 || rect.Y < 1 || rect.X+rect.W >= clip.Width || rect.Y+rect.H >= clip.Height {
			return fmt.Errorf("watermark region %s is not inside the %dx%d frame", region, clip.Width, clip.Height)
		}

		clip.filters = append(clip.filters, fmt.Sprintf("delogo=x=%d:y=%d:w=%d:h=%d", rect.X, rect.Y, rect.W, rect.H))
		return nil
	}
}

// Region is a rectangle of a frame, in pixels.
type Region struct {
	X, Y, W, H int
}

// ParseRegion parses a region of the form 'x,y,w,h'.
func ParseRegion(v string) (Region, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q must be of the form x,y,w,h", v)
	}

	values := make([]int, 4)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return Region{}, fmt.Errorf("region %q has an illegal component %q", v, part)
		}
		values[i] = n
	}
	if values[2] == 0 || values[3] == 0 {
		return Region{}, fmt.Errorf("region %q has zero area", v)
	}

	return Region{X: values[0], Y: values[1], W: values[2], H: values[3]}, nil
}

// MusicOverlay replaces the audio of the clip with the music file provided. If
// the path is a directory, the first audio file within it is used.
func MusicOverlay(path string) Op {
	return func(clip *Clip) error {
		music, err := resolveMusic(path)
		if err != nil {
			return err
		}

		clip.inputs = append(clip.inputs, music)
		clip.audioInput = len(clip.inputs)
		return nil
	}
}

func resolveMusic(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: no music configured", ErrAssetMissing)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: music %s: %v", ErrAssetMissing, path, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("%w: music directory %s: %v", ErrAssetMissing, path, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && musicExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: no audio files in %s", ErrAssetMissing, path)
	}

	sort.Strings(names)
	return filepath.Join(path, names[0]), nil
}

// Intervals splits total seconds in to consecutive windows of the given
// length. The final window is truncated to the total, never padded, and a
// zero-length tail is dropped.
func Intervals(total float64, length float64) []Interval {
	if total <= 0 || length <= 0 {
		return []Interval{}
	}

	out := make([]Interval, 0, int(math.Ceil(total/length)))
	for i := 0; ; i++ {
		start := float64(i) * length
		if total-start < 1e-6 {
			break
		}

		out = append(out, Interval{Start: start, End: math.Min(start+length, total)})
	}

	return out
}

// escapeFilterValue escapes a value for use inside a quoted filter option.
func escapeFilterValue(v string) string {
	return strings.NewReplacer(
		`\`, `\\\\`,
		`'`, "’",
		`%`, `\\%`,
		`:`, `\\:`,
	).Replace(v)
}
