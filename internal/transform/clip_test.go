package transform_test

import (
	"strings"
	"testing"

	"github.com/hbomb79/mediabatch/internal/ffmpeg"
	"github.com/hbomb79/mediabatch/internal/transform"
	"github.com/hbomb79/mediabatch/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

func Test_Intervals(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		total    float64
		length   float64
		expected []transform.Interval
	}{
		{"truncated tail", 37, 15, []transform.Interval{{0, 15}, {15, 30}, {30, 37}}},
		{"exact multiple drops empty tail", 30, 15, []transform.Interval{{0, 15}, {15, 30}}},
		{"shorter than one interval", 9.5, 15, []transform.Interval{{0, 9.5}}},
		{"no duration", 0, 15, []transform.Interval{}},
		{"no length", 37, 0, []transform.Interval{}},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.expected, transform.Intervals(test.total, test.length))
		})
	}
}

func newClip() *transform.Clip {
	return transform.NewClip("/media/281.mp4", &ffmpeg.Info{Duration: 65.2, Width: 1280, Height: 720})
}

func Test_Compose_TrimAndResize(t *testing.T) {
	t.Parallel()
	clip, ok := transform.Compose(newClip(),
		transform.TrimMargins(10, 10),
		transform.Trim(5, 1000),
		transform.ResizeForShorts(1080, 1920),
	)
	require.True(t, ok)

	assert.InDelta(t, 15, clip.Start, 1e-9)
	assert.InDelta(t, 55.2, clip.End, 1e-9)
	assert.Equal(t, 1080, clip.Width)
	assert.Equal(t, 1920, clip.Height)

	args := strings.Join(clip.Args(), " ")
	assert.Contains(t, args, "[0:v]scale=-2:1920,crop=1080:1920,setsar=1[base]")
	assert.Contains(t, args, "-map 0:a?")
	assert.Contains(t, args, "-ss 15.000 -t 40.200")
}

func Test_Compose_NarrowSourceIsNotCropped(t *testing.T) {
	t.Parallel()
	clip := transform.NewClip("/media/1.mp4", &ffmpeg.Info{Duration: 20, Width: 360, Height: 720})
	composed, ok := transform.Compose(clip, transform.ResizeForShorts(1080, 1920))
	require.True(t, ok)

	assert.Equal(t, 960, composed.Width)
	assert.NotContains(t, strings.Join(composed.Args(), " "), "crop=")
}

func Test_Compose_StopsAtInvalidIntermediate(t *testing.T) {
	t.Parallel()
	original := newClip()

	_, ok := transform.Compose(original, transform.TrimMargins(40, 40), transform.ResizeForShorts(1080, 1920))
	assert.False(t, ok)

	_, ok = transform.Compose(transform.NewClip("/media/2.mp4", &ffmpeg.Info{Duration: 30}))
	assert.False(t, ok, "zero area sources cannot be composed")

	// The input clip is never modified
	assert.Equal(t, 0.0, original.Start)
	assert.Equal(t, 65.2, original.End)
}

func Test_Compose_SkipsMissingAssets(t *testing.T) {
	t.Parallel()
	clip, ok := transform.Compose(newClip(),
		transform.Watermark("/does/not/exist.png", 0.3),
		transform.MusicOverlay(""),
		transform.TextOverlay("Hello: World", transform.TextStyle{FontPath: "/missing.ttf", Size: 64, Colour: "white", StrokeWidth: 4, StrokeColour: "black", Position: 0.1}),
	)
	require.True(t, ok)

	args := strings.Join(clip.Args(), " ")
	assert.NotContains(t, args, "overlay=")
	assert.NotContains(t, args, "fontfile")
	assert.Contains(t, args, `text='Hello\\: World'`)
	assert.Contains(t, args, "borderw=4:bordercolor=black")
}

func Test_Compose_WatermarkAndMusic(t *testing.T) {
	t.Parallel()
	dir := fs.NewDir(t, "assets",
		fs.WithFile("logo.png", "png"),
		fs.WithDir("music", fs.WithFile("b.mp3", "mp3"), fs.WithFile("a.wav", "wav"), fs.WithFile("notes.txt", "")),
	)

	clip, ok := transform.Compose(newClip(),
		transform.Watermark(dir.Join("logo.png"), 0.3),
		transform.MusicOverlay(dir.Join("music")),
	)
	require.True(t, ok)

	args := clip.Args()
	assert.Equal(t, []string{"-i", dir.Join("logo.png"), "-i", dir.Join("music", "a.wav")}, []string(args[:4]))

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "[1:v]scale=32:24,format=rgba,colorchannelmixer=aa=0.30[wm];[base][wm]overlay=W-w-10:H-h-10[vout]")
	assert.Contains(t, joined, "-map [vout] -map 2:a -shortest")
}

func Test_Clip_Segment(t *testing.T) {
	t.Parallel()
	clip, ok := transform.Compose(newClip(), transform.TrimMargins(10, 0))
	require.True(t, ok)

	segment := clip.Segment(transform.Interval{Start: 45, End: 60})
	assert.Equal(t, 55.0, segment.Start)
	assert.Equal(t, 65.2, segment.End)
	assert.Equal(t, 10.0, clip.Start)
}

func Test_Compose_DelogoRemovesRegion(t *testing.T) {
	t.Parallel()
	clip, ok := transform.Compose(newClip(),
		transform.Delogo("1100, 640, 160, 60"),
		transform.ResizeForShorts(1080, 1920),
	)
	require.True(t, ok)

	joined := strings.Join(clip.Args(), " ")
	assert.Contains(t, joined, "[0:v]delogo=x=1100:y=640:w=160:h=60,scale=-2:1920")
}

func Test_Compose_DelogoRegionOutsideFrame(t *testing.T) {
	t.Parallel()
	_, ok := transform.Compose(newClip(), transform.Delogo("1200,640,160,60"))
	assert.False(t, ok, "a region crossing the frame edge should stop composition")

	_, ok = transform.Compose(newClip(), transform.Delogo("0,0,160,60"))
	assert.False(t, ok)

	clip, ok := transform.Compose(newClip(), transform.Delogo(""))
	require.True(t, ok, "an unconfigured region is skipped")
	assert.NotContains(t, strings.Join(clip.Args(), " "), "delogo")
}

func Test_ParseRegion(t *testing.T) {
	t.Parallel()
	region, err := transform.ParseRegion("10,20,30,40")
	require.NoError(t, err)
	assert.Equal(t, transform.Region{X: 10, Y: 20, W: 30, H: 40}, region)

	for _, bad := range []string{"10,20,30", "a,b,c,d", "10,20,0,40", "-1,20,30,40"} {
		_, err := transform.ParseRegion(bad)
		assert.Error(t, err, bad)
	}
}
