package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/pkg/logger"
	syncmap "github.com/hbomb79/mediabatch/pkg/sync"
)

const (
	DEBOUNCE_DURATION  time.Duration = time.Second * 2
	MAX_TIMER_DURATION time.Duration = time.Second * 5
)

var activityLog = logger.Get("Activity")

type (
	// RunSummary is the tally of item events seen during a run, along with
	// the reason given for each label which failed.
	RunSummary struct {
		RunID    uuid.UUID
		Counts   map[event.Event]int
		Failures map[int]string
	}

	// activityService listens to the item events of a single run, keeping
	// a tally of each and reporting progress at most every few seconds.
	activityService struct {
		*sync.Mutex
		eventBus event.EventHandler
		runID    uuid.UUID
		messages event.HandlerChannel
		counts   *syncmap.TypedSyncMap[event.Event, *atomic.Int64]
		failures *syncmap.TypedSyncMap[int, string]

		debounceTimer *time.Timer
		maxTimer      *time.Timer
	}
)

func newActivityService(eventBus event.EventHandler, runID uuid.UUID) *activityService {
	service := &activityService{
		Mutex:    &sync.Mutex{},
		eventBus: eventBus,
		runID:    runID,
		messages: make(event.HandlerChannel, 100),
		counts:   new(syncmap.TypedSyncMap[event.Event, *atomic.Int64]),
		failures: new(syncmap.TypedSyncMap[int, string]),
	}

	eventBus.RegisterHandlerChannel(service.messages, event.AllItemEvents...)
	return service
}

// Run consumes events until the context is cancelled, at which point any
// events already dispatched are drained before returning.
func (service *activityService) Run(ctx context.Context) error {
	activityLog.Emit(logger.DEBUG, "Activity service started for run %s\n", service.runID)
	for {
		select {
		case ev := <-service.messages:
			if err := service.handleEvent(ev); err != nil {
				activityLog.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		case <-ctx.Done():
			service.drain()
			service.stopTimers()
			activityLog.Emit(logger.DEBUG, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) drain() {
	for {
		select {
		case ev := <-service.messages:
			if err := service.handleEvent(ev); err != nil {
				activityLog.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		default:
			return
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	payload, ok := ev.Payload.(event.ItemPayload)
	if !ok {
		return errors.New("illegal payload (expected ItemPayload)")
	}
	if payload.RunID != service.runID {
		return nil
	}

	counter, _ := service.counts.LoadOrStore(ev.Event, new(atomic.Int64))
	counter.Add(1)

	switch ev.Event {
	case event.FETCH_FAILED, event.DOWNLOAD_FAILED, event.TRANSFORM_FAILED, event.RENDER_FAILED, event.PUBLISH_FAILED:
		if payload.Label > 0 {
			service.failures.Store(payload.Label, fmt.Sprintf("%s: %s", ev.Event, payload.Detail))
		}
	case event.PUBLISH_STEP:
		return nil
	}

	service.scheduleProgressReport()
	return nil
}

// scheduleProgressReport debounces progress reporting, so that a burst of
// events produces a single line. A report is always made within
// MAX_TIMER_DURATION of the first unreported event.
func (service *activityService) scheduleProgressReport() {
	service.Lock()
	defer service.Unlock()

	if service.debounceTimer != nil {
		service.debounceTimer.Stop()
	}
	service.debounceTimer = time.AfterFunc(DEBOUNCE_DURATION, service.report)

	if service.maxTimer == nil {
		service.maxTimer = time.AfterFunc(MAX_TIMER_DURATION, service.report)
	}
}

func (service *activityService) report() {
	service.stopTimers()
	activityLog.Emit(logger.INFO, "Progress: %s\n", service.Summary())
}

func (service *activityService) stopTimers() {
	service.Lock()
	defer service.Unlock()

	if service.debounceTimer != nil {
		service.debounceTimer.Stop()
		service.debounceTimer = nil
	}
	if service.maxTimer != nil {
		service.maxTimer.Stop()
		service.maxTimer = nil
	}
}

// Summary returns a snapshot of the events tallied so far.
func (service *activityService) Summary() RunSummary {
	summary := RunSummary{RunID: service.runID, Counts: make(map[event.Event]int), Failures: make(map[int]string)}
	service.counts.Range(func(ev event.Event, count *atomic.Int64) bool {
		summary.Counts[ev] = int(count.Load())
		return true
	})
	service.failures.Range(func(label int, reason string) bool {
		summary.Failures[label] = reason
		return true
	})

	return summary
}

// Failed returns the number of item failures tallied.
func (summary RunSummary) Failed() int {
	failed := 0
	for ev, count := range summary.Counts {
		if strings.HasSuffix(string(ev), ":failed") {
			failed += count
		}
	}

	return failed
}

func (summary RunSummary) String() string {
	parts := make([]string, 0, len(summary.Counts))
	for ev, count := range summary.Counts {
		if ev == event.PUBLISH_STEP {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%d", strings.Replace(string(ev), ":item:", " ", 1), count))
	}
	if len(parts) == 0 {
		return "no items processed"
	}

	sort.Strings(parts)

	return strings.Join(parts, ", ")
}
