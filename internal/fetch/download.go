package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hbomb79/mediabatch/pkg/logger"
	"github.com/schollz/progressbar/v3"
)

// HTTPDownloader streams media over HTTP to local files, reporting
// progress on a terminal progress bar when enabled.
type HTTPDownloader struct {
	config Config
	http   *httpClient
}

func NewHTTPDownloader(config Config) *HTTPDownloader {
	return &HTTPDownloader{config: config, http: newHTTPClient(config)}
}

// Download fetches the resource at the URL provided and writes it to dest. The
// content is written to a temporary file beside dest and renamed in to place
// once complete, so dest only ever exists as a whole file.
func (downloader *HTTPDownloader) Download(ctx context.Context, url string, dest string) error {
	resp, err := downloader.http.do(ctx, url, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temporary download file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bar := downloader.progressBar(resp.ContentLength, filepath.Base(dest))
	written, err := io.Copy(io.MultiWriter(tmp, bar), resp.Body)
	bar.Finish()
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("download of %s interrupted: %w", url, err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("download of %s truncated (%d of %d bytes)", url, written, resp.ContentLength)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to move download in to place: %w", err)
	}

	log.Emit(logger.SUCCESS, "Downloaded %s (%d bytes)\n", dest, written)
	return nil
}

func (downloader *HTTPDownloader) progressBar(size int64, description string) *progressbar.ProgressBar {
	var out io.Writer = os.Stderr
	if !downloader.config.ShowProgress {
		out = io.Discard
	}

	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
