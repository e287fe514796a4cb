package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/gommon/random"
	"github.com/stretchr/testify/assert"
)

// TempDirWithFiles creates a temporary directory containing an empty file
// for each name provided. The directory and the full paths of the files
// are returned; the directory is removed when the test completes.
func TempDirWithFiles(t *testing.T, files []string) (string, []string) {
	contents := make(map[string]string, len(files))
	for _, f := range files {
		contents[f] = ""
	}

	dir := TempDirWithContent(t, contents)
	filePaths := make([]string, 0, len(files))
	for _, f := range files {
		filePaths = append(filePaths, filepath.Join(dir, f))
	}

	assert.Len(t, filePaths, len(files), "Expected file paths recorded to match length of requested files")
	return dir, filePaths
}

// TempDirWithContent creates a temporary directory with files whose names
// and contents are given by the map provided.
func TempDirWithContent(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		assert.Nil(t, os.MkdirAll(filepath.Dir(path), 0o755), "failed to create parent of temporary file")
		assert.Nil(t, os.WriteFile(path, []byte(content), 0o644), "failed to create temporary file in temporary dir")
	}

	return dir
}

// RandomTitle returns a random alphanumeric string suitable as a
// fixture title or reference.
func RandomTitle() string {
	return random.String(16, random.Alphanumeric)
}
