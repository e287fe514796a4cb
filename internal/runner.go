package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/internal/fetch"
	"github.com/hbomb79/mediabatch/internal/ffmpeg"
	"github.com/hbomb79/mediabatch/internal/label"
	"github.com/hbomb79/mediabatch/internal/publish"
	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/internal/render"
	"github.com/hbomb79/mediabatch/internal/rewrite"
	"github.com/hbomb79/mediabatch/internal/schedule"
	"github.com/hbomb79/mediabatch/internal/transform"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

var log = logger.Get("Core")

// Runner is the top-level object for a single invocation of the pipeline. It
// owns the record store for the duration of the run: the store is loaded once
// when the runner starts, and written once when it stops.
type Runner struct {
	config   *Config
	runID    uuid.UUID
	eventBus event.EventCoordinator
	activity *activityService
	store    *record.Store

	stopActivity context.CancelFunc
	activityDone chan struct{}
}

func NewRunner(config *Config) *Runner {
	runID := uuid.New()
	eventBus := event.New()

	return &Runner{
		config:   config,
		runID:    runID,
		eventBus: eventBus,
		activity: newActivityService(eventBus, runID),
	}
}

// Start locks and loads the record store, and begins tallying the events of
// this run. An error here is a process-level failure.
func (runner *Runner) Start(ctx context.Context) error {
	store, err := record.Open(runner.config.StorePath)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	runner.store = store

	activityCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runner.stopActivity = cancel
	runner.activityDone = make(chan struct{})
	go func() {
		defer close(runner.activityDone)
		runner.activity.Run(activityCtx)
	}()

	log.Emit(logger.NEW, "Run %s started (store %s, %d records)\n", runner.runID, store.Path(), store.Len())
	return nil
}

// Stop writes the record store, releases its lock and reports the
// outcome of the run.
func (runner *Runner) Stop() (RunSummary, error) {
	if runner.stopActivity != nil {
		runner.stopActivity()
		<-runner.activityDone
	}

	summary := runner.activity.Summary()
	if runner.store == nil {
		return summary, nil
	}

	flushErr := runner.store.Flush()
	if err := runner.store.Close(); err != nil {
		log.Emit(logger.WARNING, "Failed to release record store lock: %v\n", err)
	}
	if flushErr != nil {
		return summary, fmt.Errorf("failed to write record store: %w", flushErr)
	}

	for _, l := range sortedKeys(summary.Failures) {
		log.Emit(logger.WARNING, "[label=%d] %s\n", l, summary.Failures[l])
	}
	log.Emit(logger.STOP, "Run %s finished: %s\n", runner.runID, summary)
	return summary, nil
}

// Run executes the command against the started runner and then stops it. A
// failure to stop never hides the failure of the command.
func (runner *Runner) Run(ctx context.Context, command func(context.Context) error) (RunSummary, error) {
	cmdErr := command(ctx)
	summary, stopErr := runner.Stop()

	return summary, errors.Join(cmdErr, stopErr)
}

func (runner *Runner) RunID() uuid.UUID { return runner.runID }

// FetchArchive fetches archive items by identifier (or details URL), then
// records each success under a newly allocated label.
func (runner *Runner) FetchArchive(ctx context.Context, references []string) error {
	return runner.fetch(ctx, fetch.NewArchiveSource(runner.config.FetchConfig()), references)
}

// FetchCollection fetches every item of an archive collection.
func (runner *Runner) FetchCollection(ctx context.Context, collection string) error {
	source := fetch.NewArchiveSource(runner.config.FetchConfig())
	identifiers, err := source.Collection(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to list collection %s: %w", collection, err)
	}

	log.Emit(logger.INFO, "Collection %s contains %d items\n", collection, len(identifiers))
	return runner.fetch(ctx, source, identifiers)
}

// FetchTool fetches items using the video-info tool. A single playlist URL
// is expanded in to its entries.
func (runner *Runner) FetchTool(ctx context.Context, references []string, playlist bool) error {
	source := fetch.NewYtdlpSource(runner.config.FetchConfig())
	if playlist {
		expanded := make([]string, 0)
		for _, ref := range references {
			entries, err := source.Playlist(ctx, ref)
			if err != nil {
				return fmt.Errorf("failed to list playlist %s: %w", ref, err)
			}
			expanded = append(expanded, entries...)
		}
		references = expanded
	}

	return runner.fetch(ctx, source, references)
}

func (runner *Runner) fetch(ctx context.Context, source fetch.Source, references []string) error {
	allocator, err := runner.allocator(runner.config.SourceDirectory, runner.store.MaxLabel())
	if err != nil {
		return err
	}

	service := fetch.New(runner.config.FetchConfig(), source, runner.eventBus, runner.runID)
	results := service.FetchAll(ctx, references)
	labels := service.Commit(results, runner.store, allocator)

	log.Emit(logger.SUCCESS, "Fetched %d of %d references\n", len(labels), len(references))
	return nil
}

// FetchPosters downloads a poster for each record in the label range in to
// the 'posters' folder of the thumbnail directory.
func (runner *Runner) FetchPosters(ctx context.Context) error {
	cfg := runner.config.FetchConfig()
	posters := fetch.NewPosterSource(cfg)
	downloader := fetch.NewHTTPDownloader(cfg)
	dir := filepath.Join(runner.config.ThumbnailDirectory, "posters")
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create poster directory: %w", err)
	}

	found := 0
	for _, rec := range runner.records() {
		if ctx.Err() != nil {
			break
		}

		itemLog := logger.WithLabel(log, rec.Label)
		if rec.Title == record.NoTitle {
			itemLog.Emit(logger.WARNING, "No title to search posters with\n")
			continue
		}

		url, err := posters.FindPoster(ctx, rec.Title)
		if err != nil {
			itemLog.Emit(logger.WARNING, "No poster for %q: %v\n", rec.Title, err)
			continue
		}
		if err := downloader.Download(ctx, url, filepath.Join(dir, fmt.Sprintf("%d.jpg", rec.Label))); err != nil {
			itemLog.Emit(logger.ERROR, "Poster download failed: %v\n", err)
			continue
		}

		found++
	}

	log.Emit(logger.SUCCESS, "Downloaded %d posters\n", found)
	return nil
}

// Download downloads the media of each record in the label range.
func (runner *Runner) Download(ctx context.Context) error {
	if err := runner.requireDir(runner.config.SourceDirectory); err != nil {
		return err
	}

	cfg := runner.config.FetchConfig()
	stage := fetch.NewDownloadStage(cfg, runner.config.SourceDirectory, runner.config.MediaExtension,
		fetch.NewHTTPDownloader(cfg), fetch.NewYtdlpSource(cfg), fetch.NewArchiveSource(cfg),
		runner.eventBus, runner.runID)

	records := runner.records()
	done := stage.DownloadAll(ctx, records, runner.store)
	log.Emit(logger.SUCCESS, "%d of %d records have media\n", done, len(records))
	return nil
}

// Cut trims and watermarks the source media of each label, or when watching,
// every new source file until the context is cancelled.
func (runner *Runner) Cut(ctx context.Context, watch bool) error {
	service := runner.transformService()
	if watch {
		return service.Watch(ctx, runner.store)
	}

	labels, err := runner.mediaLabels()
	if err != nil {
		return err
	}

	log.Emit(logger.SUCCESS, "Cut: %s\n", service.CutAll(ctx, labels, runner.store))
	return nil
}

// Split recomposes the source media of each label as shorts, each cut in
// to fixed length intervals and written under newly allocated output labels.
func (runner *Runner) Split(ctx context.Context) error {
	labels, err := runner.mediaLabels()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(runner.config.OutputDirectory, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputs, err := runner.allocator(runner.config.OutputDirectory, 0)
	if err != nil {
		return err
	}

	log.Emit(logger.SUCCESS, "Shorts: %s\n", runner.transformService().ShortsAll(ctx, labels, runner.store, outputs))
	return nil
}

func (runner *Runner) transformService() *transform.Service {
	cfg := runner.config.TransformConfig()
	return transform.New(cfg, ffmpeg.NewProber(cfg.Config), ffmpeg.NewRunner(cfg.Config), runner.eventBus, runner.runID)
}

// Thumbnail renders a thumbnail for each label with media.
func (runner *Runner) Thumbnail(ctx context.Context) error {
	labels, err := runner.mediaLabels()
	if err != nil {
		return err
	}

	cfg := runner.config.RenderConfig()
	var detector render.Detector
	if cfg.DetectorEndpoint != "" {
		detector = render.NewHTTPDetector(cfg.DetectorEndpoint, cfg.DetectorAPIKey)
	}

	fetchCfg := runner.config.FetchConfig()
	service := render.New(cfg, ffmpeg.NewRunner(runner.config.Transform.Config), detector,
		fetch.NewPosterSource(fetchCfg), fetch.NewHTTPDownloader(fetchCfg), runner.eventBus, runner.runID)

	summary := service.RenderAll(ctx, labels, runner.store)
	log.Emit(logger.SUCCESS, "Rendered %d, skipped %d, failed %d\n", summary.Complete, summary.Skipped, summary.Failed)
	return nil
}

// Image applies the named image operation ('enhance', 'resize' or 'whiten')
// to each file, writing the result alongside it. Every file is attempted.
func (runner *Runner) Image(name string, paths []string) error {
	op, err := render.ParseImageOp(name)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no image files given")
	}

	cfg := runner.config.RenderConfig()
	var errs []error
	for _, path := range paths {
		if _, err := cfg.ApplyImageOp(path, op); err != nil {
			log.Emit(logger.ERROR, "Image operation %s failed for %s: %v\n", op, path, err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Rewrite regenerates the title and description of each record in the label range.
func (runner *Runner) Rewrite(ctx context.Context) error {
	service := rewrite.New(runner.config.Rewrite, rewrite.NewChatClient(runner.config.Rewrite))
	summary := service.RewriteAll(ctx, runner.recordLabels(), runner.store)

	log.Emit(logger.SUCCESS, "Rewrote %d, failed %d\n", summary.Complete, summary.Failed)
	return nil
}

// Schedule assigns a distinct publish date, drawn from the configured range,
// to each record in the label range.
func (runner *Runner) Schedule() error {
	start, end, err := runner.config.Schedule.Range()
	if err != nil {
		return err
	}

	assignments, err := schedule.Assign(runner.records(), start, end, runner.config.Schedule.Rand())
	if err != nil {
		return err
	}

	log.Emit(logger.SUCCESS, "Scheduled %d records\n", schedule.Apply(runner.store, assignments))
	return nil
}

// Publish uploads each record in the label range using the configured driver.
func (runner *Runner) Publish(ctx context.Context) error {
	cfg := runner.config.PublishConfig()

	var session publish.RemoteUploadSession
	switch cfg.Driver {
	case publish.API_DRIVER:
		s, err := publish.NewAPISession(ctx, cfg)
		if err != nil {
			return err
		}
		session = s
	default:
		s, err := publish.NewBrowserSession(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		session = s
	}

	summary := publish.New(cfg, session, runner.eventBus, runner.runID).PublishAll(ctx, runner.recordLabels(), runner.store)
	log.Emit(logger.SUCCESS, "Published %d, skipped %d, failed %d\n", summary.Published, summary.Skipped, summary.Failed)
	return nil
}

// Missing writes a log of the labels in the range which have no source file.
// The range must be bounded, either by configuration or by the store.
func (runner *Runner) Missing(output string) error {
	start, end := runner.bounds()
	if end < start {
		return errors.New("label range is empty, set label_range.end")
	}

	missing, err := label.Missing(runner.config.SourceDirectory, runner.config.MediaExtension, start, end)
	if err != nil {
		return err
	}
	if err := label.WriteMissingLog(output, runner.config.MediaExtension, missing); err != nil {
		return err
	}

	log.Emit(logger.SUCCESS, "%d of %d labels are missing, written to %s\n", len(missing), end-start+1, output)
	return nil
}

// ImportLegacy appends the records of a legacy record file to the store.
func (runner *Runner) ImportLegacy(path string) error {
	records, err := record.ReadLegacy(path)
	if err != nil {
		return err
	}

	log.Emit(logger.SUCCESS, "Imported %d of %d legacy records\n", runner.store.Import(records), len(records))
	return nil
}

// Status reports how many records in the label range are at each status.
func (runner *Runner) Status() map[record.Status]int {
	counts := make(map[record.Status]int)
	lowConfidence := 0
	for _, rec := range runner.records() {
		counts[rec.Status]++
		if rec.LowConfidence() {
			lowConfidence++
		}
	}

	for s := record.FETCHED; s <= record.FAILED; s++ {
		log.Emit(logger.INFO, "%-12s %d\n", s, counts[s])
	}
	if lowConfidence > 0 {
		log.Emit(logger.WARNING, "%d records contain placeholder metadata\n", lowConfidence)
	}

	return counts
}

// bounds resolves the configured label range, using the highest label in
// the store when no end is configured.
func (runner *Runner) bounds() (int, int) {
	start, end := runner.config.LabelRange.Start, runner.config.LabelRange.End
	if end <= 0 {
		end = runner.store.MaxLabel()
	}

	return start, end
}

func (runner *Runner) records() []record.Record {
	start, end := runner.bounds()
	if end < start {
		return []record.Record{}
	}

	return runner.store.Range(start, end)
}

func (runner *Runner) recordLabels() []int {
	records := runner.records()
	labels := make([]int, 0, len(records))
	for _, rec := range records {
		labels = append(labels, rec.Label)
	}

	return labels
}

// mediaLabels returns, in ascending order, the labels in range which have a
// source file or a record. With no configured end, every source file from
// the start of the range is included.
func (runner *Runner) mediaLabels() ([]int, error) {
	if err := runner.requireDir(runner.config.SourceDirectory); err != nil {
		return nil, err
	}

	existing, err := label.Existing(runner.config.SourceDirectory, runner.config.MediaExtension)
	if err != nil {
		return nil, err
	}

	start, end := runner.config.LabelRange.Start, runner.config.LabelRange.End
	set := make(map[int]struct{})
	for _, l := range existing {
		if l >= start && (end <= 0 || l <= end) {
			set[l] = struct{}{}
		}
	}
	for _, l := range runner.recordLabels() {
		set[l] = struct{}{}
	}

	return sortedKeys(set), nil
}

func (runner *Runner) allocator(dir string, storeMax int) (*label.Allocator, error) {
	if err := runner.requireDir(dir); err != nil {
		return nil, err
	}

	return label.NewAllocator(dir, runner.config.MediaExtension, runner.config.DefaultLabel, storeMax)
}

func (runner *Runner) requireDir(dir string) error {
	if info, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", label.ErrDirectoryMissing, dir)
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	return nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	return keys
}
