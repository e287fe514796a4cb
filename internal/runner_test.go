package internal_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/hbomb79/mediabatch/internal"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/internal/label"
	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

const runnerLegacyFixture = `[
	{"Label": 1, "Identifier": "nosferatu", "Title": "Nosferatu (1922)", "Description": "A symphony of horror.", "Tags": "horror, silent"},
	{"Label": 2, "Identifier": "the-general", "Title": "The General", "Description": "A locomotive chase.", "Tags": "comedy"},
	{"Label": 3, "Identifier": "metropolis", "Title": "Metropolis", "Description": "A city of the future.", "Tags": "sci-fi"}
]`

// runnerConfig writes a configuration rooted in a temporary directory, with
// an empty source directory, and loads it.
func runnerConfig(t *testing.T, archiveURL string, extra string, ops ...fs.PathOp) (*internal.Config, *fs.Dir) {
	ops = append(ops, fs.WithDir("media"), fs.WithDir("shorts"), fs.WithDir("thumbs"))
	dir := fs.NewDir(t, "runner", ops...)

	content := fmt.Sprintf(`
source_directory: %s
output_directory: %s
thumbnail_directory: %s
store_path: %s
fetch:
  archive_base_url: %s
  request_rate: 100
  retry_delay_ms: 5
  show_progress: false
%s`, dir.Join("media"), dir.Join("shorts"), dir.Join("thumbs"), dir.Join("records.json"), archiveURL, extra)
	require.NoError(t, os.WriteFile(dir.Join("mediabatch.yaml"), []byte(content), 0o644))

	config, err := internal.LoadConfig(dir.Join("mediabatch.yaml"), "")
	require.NoError(t, err)

	return config, dir
}

func startRunner(t *testing.T, config *internal.Config) *internal.Runner {
	runner := internal.NewRunner(config)
	require.NoError(t, runner.Start(context.Background()))

	return runner
}

func Test_Runner_RejectsSecondWriter(t *testing.T) {
	t.Parallel()
	config, _ := runnerConfig(t, "http://127.0.0.1:0", "")

	first := startRunner(t, config)
	second := internal.NewRunner(config)
	assert.ErrorIs(t, second.Start(context.Background()), record.ErrLocked)

	_, err := first.Stop()
	require.NoError(t, err)

	third := startRunner(t, config)
	_, err = third.Stop()
	assert.NoError(t, err)
}

func Test_Runner_FetchArchive_LabelsSuccessesInInputOrder(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/metadata/first":
			w.Write([]byte(`{"metadata": {"identifier": "first", "title": "First (1931)", "description": "One"}, "files": [{"name": "first.mp4", "format": "h.264", "size": "10"}]}`))
		case "/metadata/second":
			w.Write([]byte(`{"metadata": {"identifier": "second", "title": "Second"}, "files": []}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	config, dir := runnerConfig(t, server.URL, "", fs.WithDir("media", fs.WithFile("4.mp4", "")))

	runner := startRunner(t, config)
	require.NoError(t, runner.FetchArchive(context.Background(), []string{"first", "gone", "second"}))
	summary, err := runner.Stop()
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Counts[event.FETCH_COMPLETE])
	assert.Equal(t, 1, summary.Counts[event.FETCH_FAILED])
	assert.Equal(t, 1, summary.Failed())

	records, err := record.Load(dir.Join("records.json"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 5, records[0].Label)
	assert.Equal(t, "First (1931)", records[0].Title)
	assert.Equal(t, 6, records[1].Label)
	assert.Equal(t, "Second", records[1].Title)
	assert.Equal(t, record.NoDescription, records[1].Description)
	assert.Equal(t, record.NoMediaURL, records[1].MediaURL)
	for _, rec := range records {
		assert.Equal(t, record.FETCHED, rec.Status)
	}
}

func Test_Runner_FetchWithoutSourceDirectory(t *testing.T) {
	t.Parallel()
	config, dir := runnerConfig(t, "http://127.0.0.1:0", "")
	require.NoError(t, os.Remove(dir.Join("media")))

	runner := startRunner(t, config)
	t.Cleanup(func() { runner.Stop() })

	assert.ErrorIs(t, runner.FetchArchive(context.Background(), []string{"first"}), label.ErrDirectoryMissing)
}

func Test_Runner_ImportThenSchedule(t *testing.T) {
	t.Parallel()
	config, dir := runnerConfig(t, "http://127.0.0.1:0", `
label_range:
  start: 2
schedule:
  start_date: "2024-03-01"
  end_date: "2024-03-10"
  seed: 42
`, fs.WithFile("legacy.json", runnerLegacyFixture))

	runner := startRunner(t, config)
	require.NoError(t, runner.ImportLegacy(dir.Join("legacy.json")))
	require.NoError(t, runner.Schedule())

	counts := runner.Status()
	assert.Equal(t, 2, counts[record.SCHEDULED])
	assert.Zero(t, counts[record.FETCHED])

	_, err := runner.Stop()
	require.NoError(t, err)

	records, err := record.Load(dir.Join("records.json"))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Nil(t, records[0].ScheduleAt, "label 1 is outside of the label range")
	require.NotNil(t, records[1].ScheduleAt)
	require.NotNil(t, records[2].ScheduleAt)
	assert.NotEqual(t, records[1].ScheduleAt.YearDay(), records[2].ScheduleAt.YearDay())
}

func Test_Runner_ScheduleRequiresDates(t *testing.T) {
	t.Parallel()
	config, _ := runnerConfig(t, "http://127.0.0.1:0", "")

	runner := startRunner(t, config)
	t.Cleanup(func() { runner.Stop() })

	assert.Error(t, runner.Schedule())
}

func Test_Runner_MissingWritesLog(t *testing.T) {
	t.Parallel()
	config, dir := runnerConfig(t, "http://127.0.0.1:0", "label_range:\n  start: 1\n  end: 5\n",
		fs.WithDir("media", fs.WithFile("1.mp4", ""), fs.WithFile("3.mp4", ""), fs.WithFile("5.mp4", ""), fs.WithFile("notes.txt", "")))

	runner := startRunner(t, config)
	t.Cleanup(func() { runner.Stop() })

	require.NoError(t, runner.Missing(dir.Join("missing.log")))
	content, err := os.ReadFile(dir.Join("missing.log"))
	require.NoError(t, err)
	assert.Equal(t, "2.mp4\n4.mp4\n", string(content))
}

func Test_Runner_MissingRequiresBoundedRange(t *testing.T) {
	t.Parallel()
	config, dir := runnerConfig(t, "http://127.0.0.1:0", "")

	runner := startRunner(t, config)
	t.Cleanup(func() { runner.Stop() })

	assert.Error(t, runner.Missing(dir.Join("missing.log")))
}

func Test_Runner_RunKeepsCommandErrorWhenStopFails(t *testing.T) {
	t.Parallel()
	config, dir := runnerConfig(t, "http://127.0.0.1:0", "", fs.WithDir("store"))
	config.StorePath = dir.Join("store", "records.json")

	commandErr := errors.New("command failed")
	runner := startRunner(t, config)
	_, err := runner.Run(context.Background(), func(context.Context) error {
		return os.RemoveAll(dir.Join("store"))
	})
	assert.Error(t, err, "the store can no longer be written")

	require.NoError(t, os.MkdirAll(dir.Join("store"), os.ModePerm))
	runner = startRunner(t, config)
	_, err = runner.Run(context.Background(), func(context.Context) error {
		require.NoError(t, os.RemoveAll(dir.Join("store")))
		return commandErr
	})
	assert.ErrorIs(t, err, commandErr)
	assert.ErrorContains(t, err, "failed to write record store")
}

func Test_Runner_RunReturnsCommandError(t *testing.T) {
	t.Parallel()
	config, _ := runnerConfig(t, "http://127.0.0.1:0", "")

	commandErr := errors.New("command failed")
	runner := startRunner(t, config)
	_, err := runner.Run(context.Background(), func(context.Context) error { return commandErr })
	assert.ErrorIs(t, err, commandErr)

	again := startRunner(t, config)
	_, err = again.Stop()
	assert.NoError(t, err, "the store lock is released after a failed command")
}

func Test_Runner_ImageWhitensAndContinuesPastFailures(t *testing.T) {
	t.Parallel()
	config, dir := runnerConfig(t, "http://127.0.0.1:0", "", fs.WithFile("broken.png", "not an image"))

	logo := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	logo.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 128})
	logo.SetNRGBA(1, 0, color.NRGBA{10, 0, 0, 255})
	f, err := os.Create(dir.Join("logo.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, logo))
	require.NoError(t, f.Close())

	runner := startRunner(t, config)
	t.Cleanup(func() { runner.Stop() })

	err = runner.Image("whiten", []string{dir.Join("broken.png"), dir.Join("logo.png")})
	assert.Error(t, err)

	out, err := os.Open(dir.Join("logo_white.png"))
	require.NoError(t, err)
	defer out.Close()
	decoded, err := png.Decode(out)
	require.NoError(t, err)

	assert.Equal(t, color.NRGBA{255, 255, 255, 128}, color.NRGBAModel.Convert(decoded.At(0, 0)), "black becomes white, keeping alpha")
	assert.Equal(t, color.NRGBA{10, 0, 0, 255}, color.NRGBAModel.Convert(decoded.At(1, 0)))

	assert.Error(t, runner.Image("sepia", []string{dir.Join("logo.png")}))
}
