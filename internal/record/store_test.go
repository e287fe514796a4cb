package record_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

func sampleRecords() []record.Record {
	at := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)
	return []record.Record{
		{Label: 3, SourceReference: "https://archive.org/details/a", Title: "Alpha & Omega", Description: "desc", Tags: []string{"vintage", "archive"}, Status: record.FETCHED},
		{Label: 1, SourceReference: "b", Title: record.NoTitle, Description: record.NoDescription, Tags: []string{}, MediaURL: record.NoMediaURL, Status: record.FETCHED},
		{Label: 2, SourceReference: "c", Title: "Gamma", MediaPath: "/tmp/2_cut.mp4", Provenance: "2.mp4", ScheduleAt: &at, Status: record.SCHEDULED},
		{Label: 7, SourceReference: "d", Title: "Delta", Status: record.FAILED, FailureReason: "timed out at THUMBNAIL_SET"},
	}
}

func Test_SaveLoad_RoundTripPreservesOrderAndFields(t *testing.T) {
	t.Parallel()
	dir := fs.NewDir(t, "records")
	path := dir.Join("records.json")

	require.NoError(t, record.Save(path, sampleRecords()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded, err := record.Load(path)
	require.NoError(t, err)
	require.Len(t, loaded, 4)
	assert.Equal(t, []int{3, 1, 2, 7}, []int{loaded[0].Label, loaded[1].Label, loaded[2].Label, loaded[3].Label})
	assert.Equal(t, "Alpha & Omega", loaded[0].Title)
	assert.True(t, loaded[1].LowConfidence())
	assert.Equal(t, record.FAILED, loaded[3].Status)

	require.NoError(t, record.Save(path, loaded))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func Test_Load_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	records, err := record.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func Test_Load_MalformedFileErrors(t *testing.T) {
	t.Parallel()
	dir := fs.NewDir(t, "records", fs.WithFile("records.json", "{not json"))
	_, err := record.Load(dir.Join("records.json"))
	assert.Error(t, err)
}

func Test_Store_AppendRejectsDuplicateLabel(t *testing.T) {
	t.Parallel()
	store, err := record.Open(filepath.Join(t.TempDir(), "records.json"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	assert.NoError(t, store.Append(record.Record{Label: 1, Title: "one"}))
	assert.ErrorIs(t, store.Append(record.Record{Label: 1, Title: "again"}), record.ErrDuplicateLabel)
	assert.Error(t, store.Append(record.Record{Label: 0, Title: "zero"}), "label zero is invalid")
	assert.Error(t, store.Append(record.Record{Label: 2}), "title is required")

	rec, ok := store.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "one", rec.Title)
	assert.Equal(t, record.FETCHED, rec.Status)
}

func Test_Store_UpdateAndRange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, record.Save(path, sampleRecords()))

	store, err := record.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = store.Update(1, func(r *record.Record) error {
		r.Title = "Renamed"
		r.Label = 99
		r.Advance(record.RENDERED)
		return nil
	})
	require.NoError(t, err)

	rec, ok := store.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Renamed", rec.Title)
	assert.Equal(t, record.RENDERED, rec.Status)
	_, ok = store.Get(99)
	assert.False(t, ok, "update must not be able to change a label")

	assert.ErrorIs(t, store.Update(50, func(*record.Record) error { return nil }), record.ErrNotFound)

	ranged := store.Range(2, 7)
	assert.Equal(t, []int{2, 3, 7}, []int{ranged[0].Label, ranged[1].Label, ranged[2].Label})
	assert.Len(t, store.Range(1, 0), 4)
	assert.Equal(t, 7, store.MaxLabel())

	require.NoError(t, store.Flush())
	reloaded, err := record.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded[1].Title, "insertion order is kept on flush")
}

func Test_Store_SecondOpenIsLocked(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "records.json")

	store, err := record.Open(path)
	require.NoError(t, err)

	_, err = record.Open(path)
	assert.ErrorIs(t, err, record.ErrLocked)

	require.NoError(t, store.Close())
	again, err := record.Open(path)
	require.NoError(t, err)
	again.Close()
}

func Test_Store_MissingDirectoryIsError(t *testing.T) {
	t.Parallel()
	_, err := record.Open(filepath.Join(t.TempDir(), "missing", "records.json"))
	assert.Error(t, err)
}

func Test_Store_LegacyDuplicatesAndStatusInference(t *testing.T) {
	t.Parallel()
	dir := fs.NewDir(t, "records", fs.WithFile("records.json", `[
		{"label": 4, "title": "first", "tags": null},
		{"label": 4, "title": "second", "tags": null, "thumbnail_path": "4.jpg"},
		{"label": 5, "title": "cut", "tags": null, "provenance": "5.mp4"}
	]`))

	store, err := record.Open(dir.Join("records.json"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	assert.Equal(t, 3, store.Len(), "duplicate entries are both kept")
	rec, _ := store.Get(4)
	assert.Equal(t, "second", rec.Title)
	assert.Equal(t, record.RENDERED, rec.Status)

	rec, _ = store.Get(5)
	assert.Equal(t, record.TRANSFORMED, rec.Status)
}
