package transform_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/internal/ffmpeg"
	"github.com/hbomb79/mediabatch/internal/label"
	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/internal/transform"
	"github.com/hbomb79/mediabatch/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

type fixture struct {
	source  *fs.Dir
	output  *fs.Dir
	store   *record.Store
	prober  *helpers.FakeProber
	runner  *helpers.FakeRunner
	events  event.HandlerChannel
	service *transform.Service
}

func newFixture(t *testing.T, modtimeAge int, options ...func(*transform.Config)) *fixture {
	source := fs.NewDir(t, "source", fs.WithFile("281.mp4", "src"), fs.WithFile("282.mp4", "src"))
	output := fs.NewDir(t, "output",
		fs.WithFile("11.mp4", "short"),
		fs.WithFile("video_map.json", `{"11.mp4": {"source": "100.mp4"}}`),
	)

	store, err := record.Open(source.Join("records.json"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Append(record.Record{Label: 281, Title: "Night of the Living Dead", Status: record.FETCHED}))
	require.NoError(t, store.Append(record.Record{Label: 282, Title: "Unprobeable", Status: record.FETCHED}))

	prober := &helpers.FakeProber{Infos: map[string]*ffmpeg.Info{
		"281.mp4": {Duration: 57, Width: 1280, Height: 720},
	}}
	runner := &helpers.FakeRunner{}

	bus := event.New()
	events := make(event.HandlerChannel, 32)
	bus.RegisterHandlerChannel(events, event.TRANSFORM_COMPLETE, event.TRANSFORM_SKIPPED, event.TRANSFORM_FAILED)

	config := transform.Config{
		SourceDirectory:           source.Path(),
		OutputDirectory:           output.Path(),
		Extension:                 "mp4",
		IntervalSeconds:           15,
		TrimHeadSeconds:           4,
		MarginSeconds:             10,
		ShortsWidth:               1080,
		ShortsHeight:              1920,
		FontSize:                  64,
		FontColour:                "white",
		MappingFile:               "video_map.json",
		RequiredModTimeAgeSeconds: modtimeAge,
	}
	for _, option := range options {
		option(&config)
	}

	return &fixture{
		source:  source,
		output:  output,
		store:   store,
		prober:  prober,
		runner:  runner,
		events:  events,
		service: transform.New(config, prober, runner, bus, uuid.New()),
	}
}

func Test_Cut_UpdatesRecord(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)

	require.NoError(t, f.service.Cut(context.Background(), 281, f.store))

	rec, ok := f.store.Get(281)
	require.True(t, ok)
	assert.Equal(t, f.output.Join("281_cut.mp4"), rec.MediaPath)
	assert.Equal(t, "281.mp4", rec.Provenance)
	assert.Equal(t, record.TRANSFORMED, rec.Status)
	assert.FileExists(t, f.output.Join("281_cut.mp4"))

	require.Len(t, f.runner.Calls, 1)
	assert.Equal(t, f.source.Join("281.mp4"), f.runner.Calls[0].Input)
	assert.Contains(t, f.runner.Calls[0].Args, "4.000")

	received := helpers.DrainEvents(f.events)
	assert.Equal(t, 1, helpers.CountMatching(received, helpers.MatchItemEvent(event.TRANSFORM_COMPLETE, 281)))
}

func Test_CutAll_SkipsUnusableSources(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)

	summary := f.service.CutAll(context.Background(), []int{281, 282, 283}, f.store)
	assert.Equal(t, transform.Summary{Complete: 1, Skipped: 2}, summary)
	assert.Equal(t, []string{"281_cut.mp4"}, f.runner.Outputs())

	unprobed, _ := f.store.Get(282)
	assert.Equal(t, record.FETCHED, unprobed.Status)

	received := helpers.DrainEvents(f.events)
	assert.Equal(t, 1, helpers.CountMatching(received, helpers.MatchItemEvent(event.TRANSFORM_SKIPPED, 282)))
	assert.Equal(t, 1, helpers.CountMatching(received, helpers.MatchItemEvent(event.TRANSFORM_SKIPPED, 283)))
}

func Test_Cut_EncoderFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.runner.Fail = map[string]error{"281_cut.mp4": errors.New("encoder exploded")}

	err := f.service.Cut(context.Background(), 281, f.store)
	require.Error(t, err)
	assert.NotErrorIs(t, err, transform.ErrSkipped)

	rec, _ := f.store.Get(281)
	assert.Equal(t, record.FETCHED, rec.Status)
	assert.Empty(t, rec.MediaPath)
}

func Test_ShortsAll_SplitsAndWritesMapping(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)

	outputs, err := label.NewAllocator(f.output.Path(), "mp4", 1, 0)
	require.NoError(t, err)

	summary := f.service.ShortsAll(context.Background(), []int{281, 282}, f.store, outputs)
	assert.Equal(t, transform.Summary{Complete: 1, Skipped: 1}, summary)

	// 57s less 10s margins either side leaves 37s: [0,15) [15,30) [30,37)
	assert.Equal(t, []string{"12.mp4", "13.mp4", "14.mp4"}, f.runner.Outputs())
	assert.Contains(t, f.runner.Calls[2].Args, "-t")
	assert.Contains(t, f.runner.Calls[2].Args, "7.000")
	assert.Contains(t, f.runner.Calls[0].Args, "10.000")

	mapping, err := transform.LoadMapping(f.output.Join("video_map.json"))
	require.NoError(t, err)
	assert.Equal(t, transform.Mapping{
		"11.mp4": {Source: "100.mp4"},
		"12.mp4": {Source: "281.mp4"},
		"13.mp4": {Source: "281.mp4"},
		"14.mp4": {Source: "281.mp4"},
	}, mapping)

	rec, _ := f.store.Get(281)
	assert.Equal(t, record.TRANSFORMED, rec.Status)
}

func Test_Shorts_KeepsMappingOfWrittenClips(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	f.runner.Fail = map[string]error{"13.mp4": errors.New("disk full")}

	outputs, err := label.NewAllocator(f.output.Path(), "mp4", 1, 0)
	require.NoError(t, err)

	mapping, err := f.service.Shorts(context.Background(), 281, f.store, outputs)
	require.Error(t, err)
	assert.Equal(t, transform.Mapping{"12.mp4": {Source: "281.mp4"}}, mapping)
}

func Test_DiscoverNewFiles(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0)
	require.NoError(t, os.WriteFile(f.output.Join("282_cut.mp4"), []byte("done"), 0o644))
	require.NoError(t, os.WriteFile(f.source.Join("283_cut.mp4"), []byte("ignored"), 0o644))

	release := make(chan int, 1)
	assert.Equal(t, []int{281}, f.service.DiscoverNewFiles(release))
	assert.Empty(t, f.service.DiscoverNewFiles(release), "files are only discovered once")
}

func Test_DiscoverNewFiles_HoldsRecentFiles(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)

	release := make(chan int, 4)
	assert.Empty(t, f.service.DiscoverNewFiles(release))

	select {
	case <-release:
	case <-time.After(5 * time.Second):
		t.Fatal("hold on recently modified files was never released")
	}

	// Both files were held; allow for the second timer before rescanning
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []int{281, 282}, f.service.DiscoverNewFiles(release))
}

func Test_Cut_RemovesWatermarkRegion(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 0, func(config *transform.Config) { config.WatermarkRegion = "1100,640,160,60" })

	require.NoError(t, f.service.Cut(context.Background(), 281, f.store))

	require.Len(t, f.runner.Calls, 1)
	assert.Contains(t, strings.Join(f.runner.Calls[0].Args, " "), "delogo=x=1100:y=640:w=160:h=60")
}
