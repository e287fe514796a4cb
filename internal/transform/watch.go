package transform

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hbomb79/mediabatch/internal/label"
	"github.com/hbomb79/mediabatch/pkg/logger"
	"github.com/rjeczalik/notify"
)

// Watch is the long-running form of the cut operation. It listens to the
// file system for changes to the source directory, as well as regularly
// polling it irrespective of the watcher, and cuts each newly discovered
// labelled file once its modtime is old enough.
// To stop watching, the calling code should cancel the context provided.
func (service *Service) Watch(ctx context.Context, store recordStore) error {
	fsNotifyChannel := make(chan notify.EventInfo, 16)
	if err := notify.Watch(service.config.SourceDirectory, fsNotifyChannel, notify.Create, notify.Write, notify.Rename); err != nil {
		return fmt.Errorf("failed to watch %s: %w", service.config.SourceDirectory, err)
	}
	defer notify.Stop(fsNotifyChannel)

	forceSync := time.NewTicker(service.config.ForceSyncDuration())
	defer forceSync.Stop()

	holdExpired := make(chan int, 16)
	defer service.clearAllHoldTimers()

	log.Emit(logger.INFO, "Watching %s for new media\n", service.config.SourceDirectory)
	for {
		for _, l := range service.DiscoverNewFiles(holdExpired) {
			if ctx.Err() != nil {
				return nil
			}

			service.Cut(ctx, l, store)
		}

		select {
		case <-fsNotifyChannel:
		case <-forceSync.C:
		case <-holdExpired:
		case <-ctx.Done():
			return nil
		}
	}
}

// DiscoverNewFiles scans the source directory for labelled files which have not
// yet been seen and have no cut output. Files whose modtime is too recent are
// likely still being written: these are placed on hold, and the label is sent
// on the release channel provided once the hold expires. The labels ready to be
// cut are returned in ascending order.
//
// Note: This function will take ownership of the mutex, and releases it when returning
func (service *Service) DiscoverNewFiles(release chan<- int) []int {
	service.Lock()
	defer service.Unlock()

	labels, err := label.Existing(service.config.SourceDirectory, service.config.extension())
	if err != nil {
		log.Emit(logger.ERROR, "File system polling failed: %v\n", err)
		return nil
	}

	minModtimeAge := service.config.RequiredModTimeAgeDuration()
	ready := make([]int, 0)
	for _, l := range labels {
		if service.seen[l] {
			continue
		}
		if _, err := os.Stat(service.CutPath(l)); err == nil {
			service.seen[l] = true
			continue
		}

		info, err := os.Stat(service.SourcePath(l))
		if err != nil {
			continue
		}

		if age := time.Since(info.ModTime()); age < minModtimeAge {
			service.scheduleHoldTimer(l, minModtimeAge-age, release)
			continue
		}

		service.clearHoldTimer(l)
		service.seen[l] = true
		ready = append(ready, l)
	}

	return ready
}

// scheduleHoldTimer sends the label on the release channel after the delay has
// elapsed. Any existing hold timer for the label is cancelled first.
func (service *Service) scheduleHoldTimer(l int, delay time.Duration, release chan<- int) {
	service.clearHoldTimer(l)
	service.holdTimers[l] = time.AfterFunc(delay, func() {
		select {
		case release <- l:
		default:
		}
	})
}

func (service *Service) clearHoldTimer(l int) {
	if timer, ok := service.holdTimers[l]; ok {
		timer.Stop()
		delete(service.holdTimers, l)
	}
}

func (service *Service) clearAllHoldTimers() {
	service.Lock()
	defer service.Unlock()

	for l, timer := range service.holdTimers {
		timer.Stop()
		delete(service.holdTimers, l)
	}
}
