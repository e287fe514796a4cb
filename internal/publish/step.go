package publish

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type (
	Step int

	Visibility string

	// Metadata is the form content filled in for an upload.
	Metadata struct {
		Title       string
		Description string
		Tags        []string
		MadeForKids bool
	}

	// RemoteUploadSession is the set of interactions the publish stage
	// performs against the hosting platform. A session is connected once
	// and reused for every record in a batch; OpenUpload must return the
	// session to a fresh upload regardless of where a previous upload
	// was abandoned.
	RemoteUploadSession interface {
		OpenUpload(ctx context.Context) error
		SelectFile(ctx context.Context, path string) error
		AwaitProcessing(ctx context.Context) error
		SetMetadata(ctx context.Context, metadata Metadata) error
		SelectPlaylist(ctx context.Context, name string) error
		SetThumbnail(ctx context.Context, path string) error
		AdvanceWizard(ctx context.Context) error
		SetVisibility(ctx context.Context, visibility Visibility) error
		SetSchedule(ctx context.Context, at time.Time) error
		Confirm(ctx context.Context) error
	}

	// StepError is returned when a step of an upload fails.
	StepError struct {
		Step    Step
		Timeout bool
		Err     error
	}
)

const (
	OPEN Step = iota
	FILE_SELECTED
	PROCESSING
	METADATA_FILLED
	THUMBNAIL_SET
	WIZARD_ADVANCED
	VISIBILITY_SET
	CONFIRMED
)

const (
	PUBLIC   Visibility = "public"
	UNLISTED Visibility = "unlisted"
	PRIVATE  Visibility = "private"
)

// Steps lists every step of an upload in the order they are performed.
var Steps = []Step{OPEN, FILE_SELECTED, PROCESSING, METADATA_FILLED, THUMBNAIL_SET, WIZARD_ADVANCED, VISIBILITY_SET, CONFIRMED}

var ErrStepTimeout = errors.New("step timed out")

func (s Step) String() string {
	switch s {
	case OPEN:
		return fmt.Sprintf("OPEN[%d]", s)
	case FILE_SELECTED:
		return fmt.Sprintf("FILE_SELECTED[%d]", s)
	case PROCESSING:
		return fmt.Sprintf("PROCESSING[%d]", s)
	case METADATA_FILLED:
		return fmt.Sprintf("METADATA_FILLED[%d]", s)
	case THUMBNAIL_SET:
		return fmt.Sprintf("THUMBNAIL_SET[%d]", s)
	case WIZARD_ADVANCED:
		return fmt.Sprintf("WIZARD_ADVANCED[%d]", s)
	case VISIBILITY_SET:
		return fmt.Sprintf("VISIBILITY_SET[%d]", s)
	case CONFIRMED:
		return fmt.Sprintf("CONFIRMED[%d]", s)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}
}

func (e *StepError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("step %s timed out: %v", e.Step, e.Err)
	}

	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	if e.Timeout {
		return []error{ErrStepTimeout, e.Err}
	}

	return []error{e.Err}
}

// runStep runs fn under a deadline of timeout. Sessions are expected to
// honour the context; an error returned once the deadline has passed is
// reported as a timeout.
func runStep(ctx context.Context, step Step, timeout time.Duration, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(stepCtx)
	if err == nil {
		return nil
	}

	timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(stepCtx.Err(), context.DeadlineExceeded)
	return &StepError{Step: step, Timeout: timedOut && ctx.Err() == nil, Err: err}
}
