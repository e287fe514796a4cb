package label_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hbomb79/mediabatch/internal/label"
	"github.com/hbomb79/mediabatch/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

func Test_Next(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		files    []string
		expected int
	}{
		{"empty directory uses default", nil, 1},
		{"max plus one", []string{"3.mp4", "5.mp4", "9.mp4"}, 10},
		{"non-numeric names ignored", []string{"intro.mp4", "2.mp4", "notes.txt", "12_cut.mp4"}, 3},
		{"other extensions ignored", []string{"40.jpg", "4.mp4"}, 5},
		{"gaps are not backfilled", []string{"1.mp4", "100.mp4"}, 101},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			ops := make([]fs.PathOp, 0, len(test.files))
			for _, f := range test.files {
				ops = append(ops, fs.WithFile(f, ""))
			}
			dir := fs.NewDir(t, "labels", ops...)

			next, err := label.Next(dir.Path(), "mp4", 1)
			require.NoError(t, err)
			assert.Equal(t, test.expected, next)
		})
	}
}

func Test_Next_MissingDirectory(t *testing.T) {
	t.Parallel()
	_, err := label.Next(filepath.Join(t.TempDir(), "absent"), "mp4", 1)
	assert.ErrorIs(t, err, label.ErrDirectoryMissing)
}

func Test_Allocator_UsesStoreMaximum(t *testing.T) {
	t.Parallel()
	dir := fs.NewDir(t, "labels", fs.WithFile("3.mp4", ""))

	alloc, err := label.NewAllocator(dir.Path(), "mp4", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 11, alloc.Take())
	assert.Equal(t, 12, alloc.Take())
	assert.Equal(t, 13, alloc.Peek())

	alloc, err = label.NewAllocator(dir.Path(), "mp4", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, alloc.Take())
}

func Test_Missing(t *testing.T) {
	t.Parallel()
	dir := fs.NewDir(t, "labels", fs.WithFile("1.mp4", ""), fs.WithFile("3.mp4", ""), fs.WithFile("4_cut.mp4", ""))

	missing, err := label.Missing(dir.Path(), "mp4", 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 5}, missing)

	logPath := dir.Join("missing_files.log")
	require.NoError(t, label.WriteMissingLog(logPath, "mp4", missing))
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "2.mp4\n4.mp4\n5.mp4\n", string(content))

	_, err = label.Missing(dir.Path(), "mp4", 5, 1)
	assert.Error(t, err)
}

func Test_Parse_RequiresWholeStem(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		expected int
		ok       bool
	}{
		{"12.mp4", 12, true},
		{"007.MP4", 7, true},
		{"12_cut.mp4", 0, false},
		{"12.5.mp4", 0, false},
		{"0.mp4", 0, false},
		{"12.jpg", 0, false},
	}

	for _, test := range tests {
		v, ok := label.Parse(test.name, "mp4")
		assert.Equal(t, test.ok, ok, test.name)
		assert.Equal(t, test.expected, v, test.name)
	}
}

func Test_Allocator_IgnoresCutOutputs(t *testing.T) {
	t.Parallel()
	dir := fs.NewDir(t, "shorts", fs.WithFile("11.mp4", ""), fs.WithFile("281_cut.mp4", ""))

	alloc, err := label.NewAllocator(dir.Path(), "mp4", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, alloc.Take())
}
