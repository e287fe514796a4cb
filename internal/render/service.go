package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/internal/ffmpeg"
	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

var log = logger.Get("RenderServ")

// ErrSkipped is wrapped by the errors of labels which have no media to render from.
var ErrSkipped = errors.New("item skipped")

type (
	recordStore interface {
		Get(int) (record.Record, bool)
		Update(int, func(*record.Record) error) error
	}

	posterFinder interface {
		FindPoster(ctx context.Context, title string) (string, error)
	}

	downloader interface {
		Download(ctx context.Context, url string, dest string) error
	}

	Summary struct {
		Complete int
		Skipped  int
		Failed   int
	}

	// Service renders a thumbnail for each label from a frame of its media.
	// Labels are rendered one at a time, and a failure only affects the
	// label it occurred for.
	Service struct {
		config     Config
		runner     ffmpeg.Runner
		detector   Detector
		posters    posterFinder
		downloader downloader
		eventBus   event.EventDispatcher
		runID      uuid.UUID
	}
)

// New creates a render service. The detector, posters and downloader are
// optional and may be nil; without a detector no region is desaturated, and
// without posters the pair template uses a second frame of the media.
func New(config Config, runner ffmpeg.Runner, detector Detector, posters posterFinder, downloader downloader, eventBus event.EventDispatcher, runID uuid.UUID) *Service {
	return &Service{
		config:     config,
		runner:     runner,
		detector:   detector,
		posters:    posters,
		downloader: downloader,
		eventBus:   eventBus,
		runID:      runID,
	}
}

func (service *Service) ThumbnailPath(label int) string {
	return filepath.Join(service.config.ThumbnailDirectory, fmt.Sprintf("%d.jpg", label))
}

// RenderAll renders each label in order.
func (service *Service) RenderAll(ctx context.Context, labels []int, store recordStore) Summary {
	summary := Summary{}
	for _, l := range labels {
		if ctx.Err() != nil {
			break
		}

		err := service.Render(ctx, l, store)
		switch {
		case err == nil:
			summary.Complete++
		case errors.Is(err, ErrSkipped):
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	return summary
}

// Render writes '{label}.jpg' to the thumbnail directory using the configured
// template, and records the thumbnail against the labels record.
func (service *Service) Render(ctx context.Context, label int, store recordStore) error {
	itemLog := logger.WithLabel(log, label)
	rec, hasRecord := store.Get(label)

	media, err := service.mediaPath(label, rec)
	if err != nil {
		return service.outcome(label, itemLog, err)
	}

	work, err := os.MkdirTemp("", "mediabatch-render-*")
	if err != nil {
		return service.outcome(label, itemLog, fmt.Errorf("failed to create working directory: %w", err))
	}
	defer os.RemoveAll(work)

	frame, err := service.captureFrame(ctx, media, filepath.Join(work, "frame.png"), service.config.FrameAtSeconds, itemLog)
	if err != nil {
		return service.outcome(label, itemLog, err)
	}

	var thumbnail *image.RGBA
	switch service.config.Template {
	case PAIR_TEMPLATE:
		second := service.secondImage(ctx, rec, hasRecord, media, work, itemLog)
		thumbnail = Pair(frame, second, service.loadOverlay(itemLog), PairStyle{
			FontPath: service.config.FontPath,
			Text:     service.config.PairText,
			Subtitle: service.config.Subtitle,
			Height:   service.config.PairHeight,
			Hue:      mustColour(service.config.SunsetColour, color.RGBA{0xFF, 0x45, 0x00, 0xFF}),
		})
	default:
		thumbnail = Single(frame, service.detectRegion(ctx, frame, itemLog), SingleStyle{
			FontPath: service.config.FontPath,
			Text:     service.config.Text,
			Width:    service.config.Width,
			Height:   service.config.Height,
			Tint:     mustColour(service.config.TintColour, color.RGBA{0x00, 0x00, 0xFF, 0xFF}),
		})
	}

	output := service.ThumbnailPath(label)
	if err := writeJPEG(output, thumbnail, service.config.JPEGQuality); err != nil {
		return service.outcome(label, itemLog, err)
	}

	err = store.Update(label, func(r *record.Record) error {
		r.ThumbnailPath = output
		r.Promote(record.RENDERED)
		return nil
	})
	if errors.Is(err, record.ErrNotFound) {
		itemLog.Emit(logger.DEBUG, "No record, thumbnail written without record update\n")
	} else if err != nil {
		return service.outcome(label, itemLog, fmt.Errorf("failed to update record: %w", err))
	}

	itemLog.Emit(logger.SUCCESS, "Rendered %s\n", output)
	return service.outcome(label, itemLog, nil)
}

func (service *Service) mediaPath(label int, rec record.Record) (string, error) {
	source := filepath.Join(service.config.SourceDirectory, fmt.Sprintf("%d.%s", label, service.config.extension()))
	if _, err := os.Stat(source); err == nil {
		return source, nil
	}
	if rec.MediaPath != "" {
		if _, err := os.Stat(rec.MediaPath); err == nil {
			return rec.MediaPath, nil
		}
	}

	return "", fmt.Errorf("%w: no media for label at %s", ErrSkipped, source)
}

// captureFrame extracts and decodes a single frame of the media. Media shorter
// than the offset requested falls back to the first frame.
func (service *Service) captureFrame(ctx context.Context, media string, output string, at float64, itemLog logger.Logger) (image.Image, error) {
	err := ffmpeg.ExtractFrame(ctx, service.runner, media, output, at)
	if err != nil && at > 0 {
		itemLog.Emit(logger.WARNING, "%v, falling back to the first frame\n", err)
		err = ffmpeg.ExtractFrame(ctx, service.runner, media, output, 0)
	}
	if err != nil {
		return nil, err
	}

	return decodeImage(output)
}

func (service *Service) detectRegion(ctx context.Context, frame image.Image, itemLog logger.Logger) *image.Rectangle {
	if service.detector == nil {
		return nil
	}

	detections, err := service.detector.Detect(ctx, frame)
	if err != nil {
		itemLog.Emit(logger.WARNING, "Object detection failed, rendering without it: %v\n", err)
		return nil
	}

	region, ok := SelectRegion(detections, service.config.ConfidenceThreshold, service.config.OverlapThreshold)
	if !ok {
		itemLog.Emit(logger.DEBUG, "No region selected from %d detections\n", len(detections))
		return nil
	}

	itemLog.Emit(logger.DEBUG, "Selected %s region %v (confidence %.2f)\n", region.Class, region.Box, region.Confidence)
	return &region.Box
}

// secondImage finds the second image for the pair template: a poster for the
// records title when enabled, else a second frame of the media, else the first
// frame again.
func (service *Service) secondImage(ctx context.Context, rec record.Record, hasRecord bool, media string, work string, itemLog logger.Logger) image.Image {
	if service.config.UsePosters && service.posters != nil && service.downloader != nil && hasRecord && rec.Title != record.NoTitle {
		poster, err := service.poster(ctx, rec.Title, filepath.Join(work, "poster"))
		if err == nil {
			return poster
		}

		itemLog.Emit(logger.WARNING, "No poster for %q: %v\n", rec.Title, err)
	}

	second, err := service.captureFrame(ctx, media, filepath.Join(work, "second.png"), service.config.SecondFrameAtSeconds, itemLog)
	if err == nil {
		return second
	}

	itemLog.Emit(logger.WARNING, "Second frame unavailable, reusing the first: %v\n", err)
	first, _ := decodeImage(filepath.Join(work, "frame.png"))
	return first
}

func (service *Service) poster(ctx context.Context, title string, dest string) (image.Image, error) {
	url, err := service.posters.FindPoster(ctx, title)
	if err != nil {
		return nil, err
	}
	if err := service.downloader.Download(ctx, url, dest); err != nil {
		return nil, err
	}

	return decodeImage(dest)
}

func (service *Service) loadOverlay(itemLog logger.Logger) image.Image {
	if service.config.CloudOverlayPath == "" {
		return nil
	}

	overlay, err := decodeImage(service.config.CloudOverlayPath)
	if err != nil {
		itemLog.Emit(logger.WARNING, "Overlay unavailable, skipping it: %v\n", err)
		return nil
	}

	return overlay
}

func (service *Service) outcome(label int, itemLog logger.Logger, err error) error {
	payload := event.ItemPayload{RunID: service.runID, Label: label}
	switch {
	case err == nil:
		service.eventBus.Dispatch(event.RENDER_COMPLETE, payload)
	case errors.Is(err, ErrSkipped):
		itemLog.Emit(logger.WARNING, "Skipped: %v\n", err)
	default:
		itemLog.Emit(logger.ERROR, "Failed: %v\n", err)
		payload.Detail = err.Error()
		service.eventBus.Dispatch(event.RENDER_FAILED, payload)
	}

	return err
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	return img, nil
}

func writeJPEG(path string, img image.Image, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: quality}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}

	return os.Rename(tmp.Name(), path)
}
