package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

type (
	recordUpdater interface {
		Update(int, func(*record.Record) error) error
	}

	httpDownloader interface {
		Download(ctx context.Context, url string, dest string) error
	}

	toolDownloader interface {
		Download(ctx context.Context, reference string, dir string, label int, ext string) (string, error)
	}

	mp4Finder interface {
		SmallestMP4(ctx context.Context, reference string) (string, error)
	}

	// DownloadStage downloads the media of fetched records in to the source
	// directory as '{label}.{ext}', one label at a time in ascending order.
	DownloadStage struct {
		config    Config
		directory string
		extension string
		direct    httpDownloader
		tool      toolDownloader
		finder    mp4Finder
		eventBus  event.EventDispatcher
		runID     uuid.UUID
	}
)

func NewDownloadStage(config Config, directory string, extension string, direct httpDownloader, tool toolDownloader, finder mp4Finder, eventBus event.EventDispatcher, runID uuid.UUID) *DownloadStage {
	return &DownloadStage{
		config:    config,
		directory: directory,
		extension: extension,
		direct:    direct,
		tool:      tool,
		finder:    finder,
		eventBus:  eventBus,
		runID:     runID,
	}
}

// DownloadAll downloads the media for each record provided, updating the
// media_path of each record once its file exists. Failures are logged and
// do not stop the batch. The number of records with media on disk is returned.
func (stage *DownloadStage) DownloadAll(ctx context.Context, records []record.Record, store recordUpdater) int {
	done := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}

		itemLog := logger.WithLabel(log, rec.Label)
		dest, err := stage.download(ctx, rec, itemLog)
		if err != nil {
			itemLog.Emit(logger.ERROR, "Download failed: %v\n", err)
			stage.eventBus.Dispatch(event.DOWNLOAD_FAILED, event.ItemPayload{RunID: stage.runID, Label: rec.Label, Detail: err.Error()})
			continue
		}

		if err := store.Update(rec.Label, func(r *record.Record) error {
			r.MediaPath = dest
			return nil
		}); err != nil {
			itemLog.Emit(logger.ERROR, "Failed to record media path: %v\n", err)
			continue
		}

		done++
		stage.eventBus.Dispatch(event.DOWNLOAD_COMPLETE, event.ItemPayload{RunID: stage.runID, Label: rec.Label, Detail: dest})
	}

	return done
}

func (stage *DownloadStage) download(ctx context.Context, rec record.Record, itemLog logger.Logger) (string, error) {
	dest := filepath.Join(stage.directory, fmt.Sprintf("%d.%s", rec.Label, stage.extension))
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		itemLog.Emit(logger.DEBUG, "Media already present at %s\n", dest)
		return dest, nil
	}

	mediaURL := rec.MediaURL
	if (mediaURL == "" || mediaURL == record.NoMediaURL) && stage.finder != nil && rec.Identifier != "" {
		found, err := stage.finder.SmallestMP4(ctx, rec.Identifier)
		if err != nil {
			return "", fmt.Errorf("no media location known and none could be found: %w", err)
		}
		mediaURL = found
	}

	if isDirectMediaURL(mediaURL) {
		err := stage.retry(ctx, func() error { return stage.direct.Download(ctx, mediaURL, dest) })
		return dest, err
	}

	if stage.tool == nil {
		return "", errors.New("media location is not directly downloadable and no download tool is configured")
	}

	reference := rec.SourceReference
	if reference == "" {
		reference = mediaURL
	}

	var out string
	err := stage.retry(ctx, func() error {
		path, err := stage.tool.Download(ctx, reference, stage.directory, rec.Label, stage.extension)
		out = path
		return err
	})
	return out, err
}

func (stage *DownloadStage) retry(ctx context.Context, op func() error) error {
	attempts := stage.config.attempts()
	return backoff.Retry(func() error {
		if err := op(); err != nil {
			if trouble := newTrouble(err); !trouble.Transient() {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(stage.config.RetryDelay()), uint64(attempts-1)), ctx))
}

// isDirectMediaURL reports whether the URL points straight at a media file,
// rather than a page which needs a download tool to resolve.
func isDirectMediaURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	switch path.Ext(u.Path) {
	case ".mp4", ".m4v", ".mov", ".mkv", ".webm", ".ogv", ".avi", ".mpeg", ".mpg":
		return true
	}

	return false
}
