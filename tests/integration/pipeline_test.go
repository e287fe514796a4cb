package integration_test

import (
	"context"
	"image/color"
	"testing"

	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/internal/publish"
	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/internal/render"
	"github.com/hbomb79/mediabatch/internal/schedule"
	"github.com/hbomb79/mediabatch/pkg/logger"
	"github.com/hbomb79/mediabatch/tests/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

const legacyRecords = `[
	{"Label": 1, "Identifier": "nosferatu", "Title": "Nosferatu (1922)", "Description": "A symphony of horror.", "Tags": "horror, silent"},
	{"Label": 2, "Identifier": "the-general", "Title": "The General", "Description": "A locomotive chase.", "Tags": "comedy"},
	{"Label": 3, "Identifier": "metropolis", "Title": "Metropolis", "Description": "A city of the future.", "Tags": "sci-fi"}
]`

// TestPipeline_RenderScheduleAndPublish drives imported records through the
// render, schedule and publish stages. The upload of the first label stalls
// when setting its thumbnail, which must fail only that label.
func TestPipeline_RenderScheduleAndPublish(t *testing.T) {
	dir := fs.NewDir(t, "pipeline",
		fs.WithFile("legacy.json", legacyRecords),
		fs.WithDir("media", fs.WithFile("1.mp4", "one"), fs.WithFile("2.mp4", "two"), fs.WithFile("3.mp4", "three")),
		fs.WithDir("thumbs"))
	ctx := context.Background()
	runID := uuid.New()

	bus := event.New()
	events := make(event.HandlerChannel, 64)
	bus.RegisterHandlerChannel(events, event.AllItemEvents...)

	store, err := record.Open(dir.Join("records.json"))
	require.NoError(t, err)
	legacy, err := record.ReadLegacy(dir.Join("legacy.json"))
	require.NoError(t, err)
	require.Equal(t, 3, store.Import(legacy))

	frame := helpers.SolidPNG(320, 180, color.RGBA{120, 110, 100, 255})
	renderer := render.New(render.Config{
		SourceDirectory:     dir.Join("media"),
		ThumbnailDirectory:  dir.Join("thumbs"),
		Extension:           "mp4",
		ConfidenceThreshold: 0.5,
		OverlapThreshold:    0.4,
		Template:            render.SINGLE_TEMPLATE,
		FrameAtSeconds:      20,
		Width:               64,
		Height:              36,
		JPEGQuality:         80,
	}, &helpers.FakeRunner{Content: func(string) []byte { return frame }}, nil, nil, nil, bus, runID)
	assert.Equal(t, render.Summary{Complete: 3}, renderer.RenderAll(ctx, []int{1, 2, 3}, store))

	scheduleConfig := schedule.Config{StartDate: "2024-06-01", EndDate: "2024-06-30", Seed: 11}
	start, end, err := scheduleConfig.Range()
	require.NoError(t, err)
	assignments, err := schedule.Assign(store.Range(1, 3), start, end, scheduleConfig.Rand())
	require.NoError(t, err)
	assert.Equal(t, 3, schedule.Apply(store, assignments))

	session := &helpers.FakeSession{Block: map[string]int{"SetThumbnail": 1}}
	publisher := publish.New(publish.Config{
		SourceDirectory:          dir.Join("media"),
		ThumbnailDirectory:       dir.Join("thumbs"),
		Extension:                "mp4",
		StepTimeoutSeconds:       0.2,
		ProcessingTimeoutSeconds: 0.2,
		WizardSteps:              1,
		Visibility:               "public",
	}, session, bus, runID)
	assert.Equal(t, publish.Summary{Published: 2, Failed: 1}, publisher.PublishAll(ctx, []int{1, 2, 3}, store))

	require.NoError(t, store.Flush())
	require.NoError(t, store.Close())

	received := helpers.DrainEvents(events)
	for _, l := range []int{1, 2, 3} {
		assert.Equal(t, 1, helpers.CountMatching(received, helpers.MatchItemEvent(event.RENDER_COMPLETE, l)), "label %d should render", l)
	}
	assert.Equal(t, 1, helpers.CountMatching(received, helpers.MatchItemEvent(event.PUBLISH_FAILED, 1)))
	assert.Equal(t, 1, helpers.CountMatching(received, helpers.MatchItemEvent(event.PUBLISH_COMPLETE, 2)))
	assert.Equal(t, 1, helpers.CountMatching(received, helpers.MatchItemEvent(event.PUBLISH_COMPLETE, 3)))
	assert.Zero(t, helpers.CountMatching(received, helpers.MatchEventType(event.RENDER_FAILED)))

	records, err := record.Load(dir.Join("records.json"))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, record.FAILED, records[0].Status)
	assert.Contains(t, records[0].FailureReason, publish.THUMBNAIL_SET.String())
	for _, rec := range records[1:] {
		assert.Equal(t, record.PUBLISHED, rec.Status, "label %d", rec.Label)
		assert.NotEmpty(t, rec.ThumbnailPath)
		require.NotNil(t, rec.ScheduleAt)
	}
}
