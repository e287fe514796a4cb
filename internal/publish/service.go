package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

var (
	log      = logger.Get("PublishServ")
	validate = validator.New()

	ErrSkipped = errors.New("item skipped")
)

type (
	recordStore interface {
		Get(int) (record.Record, bool)
		Update(int, func(*record.Record) error) error
	}

	Summary struct {
		Published int
		Skipped   int
		Failed    int
	}

	// request holds everything an upload needs, resolved from a record.
	request struct {
		Label         int        `validate:"gte=1"`
		Title         string     `validate:"required"`
		Description   string     `validate:"required"`
		Tags          []string   `validate:"dive,required"`
		MediaURL      string     `validate:"-"`
		MediaPath     string     `validate:"required,file"`
		ThumbnailPath string     `validate:"-"`
		ScheduleAt    *time.Time `validate:"-"`
	}

	// Service publishes records through a RemoteUploadSession, one at a
	// time. An upload which fails at any step marks only that record as
	// failed; the session is kept and the next record starts from OPEN.
	Service struct {
		config   Config
		session  RemoteUploadSession
		eventBus event.EventDispatcher
		runID    uuid.UUID
	}
)

func New(config Config, session RemoteUploadSession, eventBus event.EventDispatcher, runID uuid.UUID) *Service {
	return &Service{config: config, session: session, eventBus: eventBus, runID: runID}
}

// PublishAll publishes the records for each label in order.
func (service *Service) PublishAll(ctx context.Context, labels []int, store recordStore) Summary {
	summary := Summary{}
	for _, l := range labels {
		if ctx.Err() != nil {
			break
		}

		err := service.Publish(ctx, l, store)
		switch {
		case err == nil:
			summary.Published++
		case errors.Is(err, ErrSkipped):
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	return summary
}

// Publish uploads the record for the label, marking it PUBLISHED on success
// or FAILED with the reason otherwise. Records which do not exist, or have
// already been published, are skipped.
func (service *Service) Publish(ctx context.Context, label int, store recordStore) error {
	itemLog := logger.WithLabel(log, label)
	rec, ok := store.Get(label)
	if !ok {
		itemLog.Emit(logger.WARNING, "No record, skipping\n")
		return fmt.Errorf("%w: no record for label %d", ErrSkipped, label)
	}
	if rec.Status == record.PUBLISHED {
		itemLog.Emit(logger.INFO, "Already published, skipping\n")
		return fmt.Errorf("%w: label %d already published", ErrSkipped, label)
	}

	req := service.resolve(rec)
	if err := checkPreconditions(req); err != nil {
		return service.fail(label, store, itemLog, err)
	}

	media := req.MediaPath
	var rollback func() error
	if service.config.RenameBeforeUpload {
		renamed, undo, err := renameForUpload(req.MediaPath, req.Title)
		if err != nil {
			return service.fail(label, store, itemLog, err)
		}

		itemLog.Emit(logger.DEBUG, "Renamed %s to %s for upload\n", filepath.Base(req.MediaPath), filepath.Base(renamed))
		media, rollback = renamed, undo
	}

	if err := service.upload(ctx, req, media, itemLog); err != nil {
		if rollback != nil {
			if rbErr := rollback(); rbErr != nil {
				itemLog.Emit(logger.ERROR, "Failed to restore %s: %v\n", filepath.Base(req.MediaPath), rbErr)
				err = errors.Join(err, rbErr)
			} else {
				itemLog.Emit(logger.DEBUG, "Restored %s\n", filepath.Base(req.MediaPath))
			}
		}

		return service.fail(label, store, itemLog, err)
	}

	err := store.Update(label, func(r *record.Record) error {
		r.MediaPath = media
		r.Promote(record.PUBLISHED)
		return nil
	})
	if err != nil {
		itemLog.Emit(logger.ERROR, "Published but failed to update record: %v\n", err)
	}

	itemLog.Emit(logger.SUCCESS, "Published %q\n", req.Title)
	service.eventBus.Dispatch(event.PUBLISH_COMPLETE, event.ItemPayload{RunID: service.runID, Label: label})
	return nil
}

// upload performs each step in order, stopping at the first failure.
func (service *Service) upload(ctx context.Context, req request, media string, itemLog logger.Logger) error {
	for _, step := range Steps {
		timeout := service.config.stepTimeout()
		if step == PROCESSING {
			timeout = service.config.processingTimeout()
		}

		err := runStep(ctx, step, timeout, func(stepCtx context.Context) error {
			return service.perform(stepCtx, step, req, media, itemLog)
		})
		if err != nil {
			return err
		}

		itemLog.Emit(logger.VERBOSE, "Step %s complete\n", step)
		service.eventBus.Dispatch(event.PUBLISH_STEP, event.ItemPayload{RunID: service.runID, Label: req.Label, Detail: step.String()})
	}

	return nil
}

func (service *Service) perform(ctx context.Context, step Step, req request, media string, itemLog logger.Logger) error {
	session := service.session
	switch step {
	case OPEN:
		return session.OpenUpload(ctx)
	case FILE_SELECTED:
		abs, err := filepath.Abs(media)
		if err != nil {
			return err
		}
		return session.SelectFile(ctx, abs)
	case PROCESSING:
		return session.AwaitProcessing(ctx)
	case METADATA_FILLED:
		err := session.SetMetadata(ctx, Metadata{Title: req.Title, Description: req.Description, Tags: req.Tags, MadeForKids: service.config.MadeForKids})
		if err != nil || service.config.Playlist == "" {
			return err
		}
		return session.SelectPlaylist(ctx, service.config.Playlist)
	case THUMBNAIL_SET:
		if req.ThumbnailPath == "" {
			itemLog.Emit(logger.WARNING, "No thumbnail found, skipping thumbnail\n")
			return nil
		}
		return session.SetThumbnail(ctx, req.ThumbnailPath)
	case WIZARD_ADVANCED:
		for i := 0; i < service.config.WizardSteps; i++ {
			if err := session.AdvanceWizard(ctx); err != nil {
				return fmt.Errorf("wizard page %d: %w", i+1, err)
			}
		}
		return nil
	case VISIBILITY_SET:
		if req.ScheduleAt != nil {
			return session.SetSchedule(ctx, *req.ScheduleAt)
		}
		return session.SetVisibility(ctx, Visibility(service.config.Visibility))
	case CONFIRMED:
		return session.Confirm(ctx)
	default:
		return fmt.Errorf("unknown step %s", step)
	}
}

func (service *Service) fail(label int, store recordStore, itemLog logger.Logger, err error) error {
	itemLog.Emit(logger.ERROR, "Publish failed: %v\n", err)
	if updateErr := store.Update(label, func(r *record.Record) error {
		r.Fail(err.Error())
		return nil
	}); updateErr != nil {
		itemLog.Emit(logger.ERROR, "Failed to mark record as failed: %v\n", updateErr)
	}

	service.eventBus.Dispatch(event.PUBLISH_FAILED, event.ItemPayload{RunID: service.runID, Label: label, Detail: err.Error()})
	return err
}

// resolve finds the media and thumbnail for the record. The records own
// paths are preferred, falling back to '{label}.{ext}' in the source
// directory and '{label}.jpg' in the thumbnail directory.
func (service *Service) resolve(rec record.Record) request {
	media := rec.MediaPath
	if !exists(media) {
		media = filepath.Join(service.config.SourceDirectory, fmt.Sprintf("%d.%s", rec.Label, service.config.extension()))
	}

	thumbnail := rec.ThumbnailPath
	if !exists(thumbnail) {
		thumbnail = filepath.Join(service.config.ThumbnailDirectory, fmt.Sprintf("%d.jpg", rec.Label))
		if service.config.ThumbnailDirectory == "" || !exists(thumbnail) {
			thumbnail = ""
		}
	}

	return request{
		Label:         rec.Label,
		Title:         rec.Title,
		Description:   rec.Description,
		Tags:          rec.Tags,
		MediaURL:      rec.MediaURL,
		MediaPath:     media,
		ThumbnailPath: thumbnail,
		ScheduleAt:    rec.ScheduleAt,
	}
}

func checkPreconditions(req request) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("record not ready to publish: %w", err)
	}
	if req.Title == record.NoTitle || req.Description == record.NoDescription || req.MediaURL == record.NoMediaURL {
		return errors.New("record not ready to publish: title, description or media URL is a placeholder")
	}

	return nil
}

// SafeFileName reduces the title to letters, digits and spaces.
func SafeFileName(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}

// renameForUpload renames the media to a name derived from the title, so
// that the platform picks up a meaningful file name. The returned function
// reverses the rename.
func renameForUpload(path string, title string) (string, func() error, error) {
	safe := SafeFileName(title)
	if safe == "" {
		return "", nil, fmt.Errorf("title %q produces an empty file name", title)
	}

	target := filepath.Join(filepath.Dir(path), safe+filepath.Ext(path))
	if target == path {
		return path, func() error { return nil }, nil
	}
	if exists(target) {
		return "", nil, fmt.Errorf("cannot rename %s for upload: %s already exists", filepath.Base(path), filepath.Base(target))
	}
	if err := os.Rename(path, target); err != nil {
		return "", nil, fmt.Errorf("failed to rename media for upload: %w", err)
	}

	return target, func() error { return os.Rename(target, path) }, nil
}

func exists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
