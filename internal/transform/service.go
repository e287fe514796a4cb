package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/internal/ffmpeg"
	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

var log = logger.Get("TransformServ")

// ErrSkipped is wrapped by the errors of items which were not transformed
// because there was nothing usable to transform.
var ErrSkipped = errors.New("item skipped")

type (
	recordStore interface {
		Get(int) (record.Record, bool)
		Update(int, func(*record.Record) error) error
	}

	labeler interface {
		Take() int
	}

	// Summary counts the outcomes of a batch of transforms.
	Summary struct {
		Complete int
		Skipped  int
		Failed   int
	}

	// Service transforms the source media of labelled records. Items are
	// processed one at a time, in the order given.
	Service struct {
		*sync.Mutex
		config   Config
		prober   ffmpeg.Prober
		runner   ffmpeg.Runner
		eventBus event.EventDispatcher
		runID    uuid.UUID

		seen       map[int]bool
		holdTimers map[int]*time.Timer
	}
)

func New(config Config, prober ffmpeg.Prober, runner ffmpeg.Runner, eventBus event.EventDispatcher, runID uuid.UUID) *Service {
	return &Service{
		Mutex:      &sync.Mutex{},
		config:     config,
		prober:     prober,
		runner:     runner,
		eventBus:   eventBus,
		runID:      runID,
		seen:       make(map[int]bool),
		holdTimers: make(map[int]*time.Timer),
	}
}

// CutPath returns the path of the cut output for the label.
func (service *Service) CutPath(label int) string {
	return filepath.Join(service.config.OutputDirectory, fmt.Sprintf("%d_cut.%s", label, service.config.extension()))
}

// SourcePath returns the path of the source media for the label.
func (service *Service) SourcePath(label int) string {
	return filepath.Join(service.config.SourceDirectory, fmt.Sprintf("%d.%s", label, service.config.extension()))
}

// CutAll runs Cut for each label, in order.
func (service *Service) CutAll(ctx context.Context, labels []int, store recordStore) Summary {
	summary := Summary{}
	for _, l := range labels {
		if ctx.Err() != nil {
			break
		}

		summary.add(service.Cut(ctx, l, store))
	}

	return summary
}

// Cut removes the configured head and tail from the source media of the label
// and watermarks it, writing '{label}_cut.{ext}' to the output directory. The
// record, if there is one, is pointed at the cut and marked TRANSFORMED.
func (service *Service) Cut(ctx context.Context, label int, store recordStore) error {
	itemLog := logger.WithLabel(log, label)
	input, clip, err := service.probe(ctx, label, store)
	if err != nil {
		return service.outcome(label, itemLog, err)
	}

	composed, ok := Compose(clip,
		Delogo(service.config.WatermarkRegion),
		TrimMargins(service.config.TrimHeadSeconds, service.config.TrimTailSeconds),
		Watermark(service.config.WatermarkPath, service.config.WatermarkOpacity),
	)
	if !ok {
		return service.outcome(label, itemLog, fmt.Errorf("%w: %s cannot be cut", ErrSkipped, input))
	}

	output := service.CutPath(label)
	if err := service.runner.Run(ctx, input, output, composed.Args(), progressLogger(itemLog)); err != nil {
		return service.outcome(label, itemLog, fmt.Errorf("cut of %s failed: %w", input, err))
	}

	err = store.Update(label, func(r *record.Record) error {
		r.MediaPath = output
		r.Provenance = filepath.Base(input)
		r.Promote(record.TRANSFORMED)
		return nil
	})
	if errors.Is(err, record.ErrNotFound) {
		itemLog.Emit(logger.DEBUG, "No record for %s, cut written without record update\n", input)
	} else if err != nil {
		return service.outcome(label, itemLog, fmt.Errorf("failed to update record: %w", err))
	}

	itemLog.Emit(logger.SUCCESS, "Cut %s -> %s\n", input, output)
	return service.outcome(label, itemLog, nil)
}

// ShortsAll runs Shorts for each label in order, merging the interval mapping
// of every label in to the mapping file as it completes.
func (service *Service) ShortsAll(ctx context.Context, labels []int, store recordStore, outputs labeler) Summary {
	summary := Summary{}
	mappingPath := filepath.Join(service.config.OutputDirectory, service.config.MappingFile)
	for _, l := range labels {
		if ctx.Err() != nil {
			break
		}

		mapping, err := service.Shorts(ctx, l, store, outputs)
		summary.add(err)
		if len(mapping) == 0 {
			continue
		}

		if err := mapping.Save(mappingPath); err != nil {
			log.Emit(logger.ERROR, "Failed to save interval mapping: %v\n", err)
		}
	}

	return summary
}

// Shorts recomposes the source media of the label for portrait display and
// splits it in to consecutive clips of the configured interval length. Each
// clip is written to the output directory under a label taken from outputs.
// The mapping of each written clip back to its source is returned, even when
// a later clip fails.
func (service *Service) Shorts(ctx context.Context, label int, store recordStore, outputs labeler) (Mapping, error) {
	itemLog := logger.WithLabel(log, label)
	mapping := Mapping{}

	input, clip, err := service.probe(ctx, label, store)
	if err != nil {
		return mapping, service.outcome(label, itemLog, err)
	}

	text := service.config.OverlayText
	if rec, ok := store.Get(label); ok && text == "" && rec.Title != record.NoTitle {
		text = rec.Title
	}

	composed, ok := Compose(clip,
		TrimMargins(service.config.MarginSeconds, service.config.MarginSeconds),
		ResizeForShorts(service.config.ShortsWidth, service.config.ShortsHeight),
		TextOverlay(text, TextStyle{
			FontPath:     service.config.FontPath,
			Size:         service.config.FontSize,
			Colour:       service.config.FontColour,
			StrokeWidth:  service.config.StrokeWidth,
			StrokeColour: service.config.StrokeColour,
			Position:     service.config.TextPosition,
		}),
		MusicOverlay(service.config.MusicPath),
	)
	if !ok {
		return mapping, service.outcome(label, itemLog, fmt.Errorf("%w: %s cannot be recomposed", ErrSkipped, input))
	}

	intervals := Intervals(composed.Duration(), service.config.IntervalSeconds)
	itemLog.Emit(logger.INFO, "Splitting %s in to %d clips\n", composed, len(intervals))

	source := fmt.Sprintf("%d.%s", label, service.config.extension())
	for i, iv := range intervals {
		out := fmt.Sprintf("%d.%s", outputs.Take(), service.config.extension())
		path := filepath.Join(service.config.OutputDirectory, out)
		if err := service.runner.Run(ctx, input, path, composed.Segment(iv).Args(), progressLogger(itemLog)); err != nil {
			return mapping, service.outcome(label, itemLog, fmt.Errorf("clip %d of %d [%s,%s) failed: %w", i+1, len(intervals), ffmpeg.Seconds(iv.Start), ffmpeg.Seconds(iv.End), err))
		}

		mapping[out] = MappingEntry{Source: source}
	}

	if err := store.Update(label, func(r *record.Record) error {
		r.Promote(record.TRANSFORMED)
		return nil
	}); err != nil && !errors.Is(err, record.ErrNotFound) {
		itemLog.Emit(logger.WARNING, "Failed to update record: %v\n", err)
	}

	return mapping, service.outcome(label, itemLog, nil)
}

// probe locates the source media for the label and builds a clip from it. Missing
// sources and sources of unknown duration are skipped.
func (service *Service) probe(ctx context.Context, label int, store recordStore) (string, *Clip, error) {
	input := service.SourcePath(label)
	if _, err := os.Stat(input); err != nil {
		rec, ok := store.Get(label)
		if !ok || rec.MediaPath == "" {
			return "", nil, fmt.Errorf("%w: no source media at %s", ErrSkipped, input)
		}
		if _, err := os.Stat(rec.MediaPath); err != nil {
			return "", nil, fmt.Errorf("%w: no source media at %s or %s", ErrSkipped, input, rec.MediaPath)
		}

		input = rec.MediaPath
	}

	info, err := service.prober.Probe(ctx, input)
	if errors.Is(err, ffmpeg.ErrDurationUnknown) {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrSkipped, input, err)
	} else if err != nil {
		return "", nil, fmt.Errorf("failed to probe %s: %w", input, err)
	}

	return input, NewClip(input, info), nil
}

// outcome logs and dispatches the result of transforming a label, returning err.
func (service *Service) outcome(label int, itemLog logger.Logger, err error) error {
	payload := event.ItemPayload{RunID: service.runID, Label: label}
	switch {
	case err == nil:
		service.eventBus.Dispatch(event.TRANSFORM_COMPLETE, payload)
	case errors.Is(err, ErrSkipped):
		itemLog.Emit(logger.WARNING, "Skipped: %v\n", err)
		payload.Detail = err.Error()
		service.eventBus.Dispatch(event.TRANSFORM_SKIPPED, payload)
	default:
		itemLog.Emit(logger.ERROR, "Failed: %v\n", err)
		payload.Detail = err.Error()
		service.eventBus.Dispatch(event.TRANSFORM_FAILED, payload)
	}

	return err
}

func (summary *Summary) add(err error) {
	switch {
	case err == nil:
		summary.Complete++
	case errors.Is(err, ErrSkipped):
		summary.Skipped++
	default:
		summary.Failed++
	}
}

func (summary Summary) String() string {
	return fmt.Sprintf("%d complete, %d skipped, %d failed", summary.Complete, summary.Skipped, summary.Failed)
}

func progressLogger(itemLog logger.Logger) ffmpeg.ProgressHandler {
	last := -1
	return func(p *ffmpeg.Progress) {
		step := int(p.Progress) / 25
		if step != last {
			last = step
			itemLog.Emit(logger.DEBUG, "Encoding %.0f%% (speed %s)\n", p.Progress, p.Speed)
		}
	}
}
