package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hbomb79/mediabatch/internal/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"
)

const archiveFixture = `{
	"metadata": {
		"identifier": "night_of_the_living_dead",
		"title": "Night of the Living Dead (1968)",
		"description": "<p>A classic.<br>Public domain.</p>",
		"subject": "horror; zombies, classic"
	},
	"files": [
		{"name": "notld.ogv", "format": "Ogg Video", "size": "900"},
		{"name": "notld_512kb.mp4", "format": "512Kb MPEG4", "size": "500"},
		{"name": "notld.mp4", "format": "h.264", "size": "2000"}
	]
}`

const archiveFallbackFixture = `{
	"metadata": {"identifier": "fallback", "title": ["Fallback"]},
	"files": [
		{"name": "fallback.txt", "format": "Text", "size": "10"},
		{"name": "fallback_3mb.avi", "format": "Cinepack", "size": "3000"}
	]
}`

func archiveServer(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/metadata/night_of_the_living_dead":
			w.Write([]byte(archiveFixture))
		case r.URL.Path == "/metadata/fallback":
			w.Write([]byte(archiveFallbackFixture))
		case r.URL.Path == "/metadata/bare":
			w.Write([]byte(`{"metadata": {"identifier": "bare"}, "files": []}`))
		case r.URL.Path == "/metadata/flaky":
			w.WriteHeader(http.StatusServiceUnavailable)
		case strings.HasPrefix(r.URL.Path, "/metadata/"):
			w.Write([]byte(`{}`))
		case r.URL.Path == "/advancedsearch.php":
			assert.Equal(t, "collection:feature_films", r.URL.Query().Get("q"))
			w.Write([]byte(`{"response": {"docs": [{"identifier": "a"}, {"identifier": ""}, {"identifier": "b"}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	return server
}

func Test_ArchiveSource_Fetch(t *testing.T) {
	t.Parallel()
	server := archiveServer(t)
	source := fetch.NewArchiveSource(fetch.Config{ArchiveBaseURL: server.URL, SearchRows: 10})

	item, err := source.Fetch(context.Background(), "https://archive.org/details/night_of_the_living_dead")
	require.NoError(t, err)
	assert.Equal(t, "night_of_the_living_dead", item.Identifier)
	assert.Equal(t, "Night of the Living Dead (1968)", item.Title)
	assert.Equal(t, "A classic.\nPublic domain.", item.Description)
	assert.Equal(t, []string{"horror", "zombies", "classic"}, item.Tags)
	assert.Equal(t, server.URL+"/download/night_of_the_living_dead/notld.mp4", item.MediaURL)
}

func Test_ArchiveSource_FetchFallsBackToNamedDerivative(t *testing.T) {
	t.Parallel()
	server := archiveServer(t)
	source := fetch.NewArchiveSource(fetch.Config{ArchiveBaseURL: server.URL})

	item, err := source.Fetch(context.Background(), "fallback")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/download/fallback/fallback_3mb.avi", item.MediaURL)

	bare, err := source.Fetch(context.Background(), "bare")
	require.NoError(t, err)
	assert.Empty(t, bare.MediaURL)
}

func Test_ArchiveSource_FetchClassifiesFailures(t *testing.T) {
	t.Parallel()
	server := archiveServer(t)
	source := fetch.NewArchiveSource(fetch.Config{ArchiveBaseURL: server.URL})

	_, err := source.Fetch(context.Background(), "does_not_exist")
	var notFound *fetch.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	_, err = source.Fetch(context.Background(), "flaky")
	var requestErr *fetch.RequestError
	require.ErrorAs(t, err, &requestErr)
	assert.Contains(t, err.Error(), "503")
}

func Test_ArchiveSource_CollectionAndSmallestMP4(t *testing.T) {
	t.Parallel()
	server := archiveServer(t)
	source := fetch.NewArchiveSource(fetch.Config{ArchiveBaseURL: server.URL, SearchRows: 10})

	ids, err := source.Collection(context.Background(), "feature_films")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	smallest, err := source.SmallestMP4(context.Background(), "night_of_the_living_dead")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/download/night_of_the_living_dead/notld_512kb.mp4", smallest)

	_, err = source.SmallestMP4(context.Background(), "fallback")
	var notFound *fetch.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func Test_ArchiveIdentifier(t *testing.T) {
	t.Parallel()
	tests := []struct {
		reference string
		expected  string
	}{
		{"https://archive.org/details/some_film", "some_film"},
		{"https://archive.org/download/some_film/file.mp4", "some_film"},
		{"  some_film  ", "some_film"},
		{"https://archive.org/search?q=x", ""},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, fetch.ArchiveIdentifier(test.reference), test.reference)
	}
}

func Test_PosterSource_PrefersMatchingYear(t *testing.T) {
	t.Parallel()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/find/":
			assert.Equal(t, "Nosferatu", r.URL.Query().Get("q"))
			w.Write([]byte(`<html><body><ul>
				<li><a class="ipc-metadata-list-summary-item__t" href="/title/tt2/">Nosferatu</a><span>2024</span></li>
				<li><a class="ipc-metadata-list-summary-item__t" href="/title/tt1/">Nosferatu</a><span>1922</span></li>
			</ul></body></html>`))
		case "/title/tt1/":
			w.Write([]byte(`<html><body><img class="ipc-image" src="` + server.URL + `/poster/1922.jpg"></body></html>`))
		case "/title/tt2/":
			w.Write([]byte(`<html><body><img class="ipc-image" src="/poster/2024.jpg"></body></html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	source := fetch.NewPosterSource(fetch.Config{PosterSearchURL: server.URL + "/find/?q=%s", PosterBaseURL: server.URL})

	poster, err := source.FindPoster(context.Background(), "Nosferatu 1922")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/poster/1922.jpg", poster)

	poster, err = source.FindPoster(context.Background(), "Nosferatu (2024)")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/poster/2024.jpg", poster)
}

func Test_PosterSource_NoResults(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>No results</p></body></html>`))
	}))
	t.Cleanup(server.Close)

	source := fetch.NewPosterSource(fetch.Config{PosterSearchURL: server.URL + "/find/?q=%s", PosterBaseURL: server.URL})
	_, err := source.FindPoster(context.Background(), "Nothing")

	var notFound *fetch.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func Test_ExtractYear(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1968, fetch.ExtractYear("Night of the Living Dead (1968)"))
	assert.Equal(t, 2001, fetch.ExtractYear("2001 A Space Odyssey"))
	assert.Equal(t, 0, fetch.ExtractYear("Room 1408x"))
	assert.Equal(t, 0, fetch.ExtractYear("No year here"))
}

func Test_HTTPDownloader_Download(t *testing.T) {
	t.Parallel()
	payload := strings.Repeat("media", 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.mp4" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Write([]byte(payload))
	}))
	t.Cleanup(server.Close)

	dir := fs.NewDir(t, "download")
	downloader := fetch.NewHTTPDownloader(fetch.Config{})

	dest := filepath.Join(dir.Path(), "nested", "4.mp4")
	require.NoError(t, downloader.Download(context.Background(), server.URL+"/film.mp4", dest))
	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, string(content))

	missing := dir.Join("5.mp4")
	assert.Error(t, downloader.Download(context.Background(), server.URL+"/missing.mp4", missing))
	assert.NoFileExists(t, missing)

	// Temporary part files are always cleaned up
	entries, err := os.ReadDir(filepath.Join(dir.Path(), "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
