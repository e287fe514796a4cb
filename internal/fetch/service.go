package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/internal/record"
	"github.com/hbomb79/mediabatch/pkg/logger"
	"github.com/hbomb79/mediabatch/pkg/worker"
)

var log = logger.Get("FetchServ")

type (
	recordAppender interface {
		Append(record.Record) error
	}

	labeler interface {
		Take() int
	}

	// Service fetches a batch of references using a bounded pool of
	// workers. Each reference is fetched independently: a failure is
	// retried up to the configured number of attempts and then skipped,
	// without affecting any other reference in the batch.
	Service struct {
		*sync.Mutex
		config   Config
		source   Source
		eventBus event.EventDispatcher
		runID    uuid.UUID
		tasks    []*task
	}
)

func New(config Config, source Source, eventBus event.EventDispatcher, runID uuid.UUID) *Service {
	return &Service{
		Mutex:    &sync.Mutex{},
		config:   config,
		source:   source,
		eventBus: eventBus,
		runID:    runID,
	}
}

// FetchAll fetches every reference provided, returning one Result per
// reference in the same order as the input, regardless of the order
// in which the fetches complete.
func (service *Service) FetchAll(ctx context.Context, references []string) []Result {
	if len(references) == 0 {
		return []Result{}
	}

	service.Lock()
	service.tasks = make([]*task, len(references))
	for i, ref := range references {
		service.tasks[i] = &task{index: i, reference: ref, state: IDLE, result: make(chan Result, 1)}
	}
	tasks := service.tasks
	service.Unlock()

	pool := worker.NewWorkerPool()
	for i := 0; i < service.config.workers(len(references)); i++ {
		label := fmt.Sprintf("fetch-worker-%d", i)
		pool.PushWorker(worker.NewWorker(label, func(w worker.Worker) (bool, error) {
			return service.performFetch(ctx, w)
		}))
	}

	log.Emit(logger.INFO, "Fetching %d references using %d workers\n", len(references), pool.Size())
	pool.Start()
	pool.WakeupWorkers()

	results := make([]Result, len(tasks))
	for i, t := range tasks {
		results[i] = <-t.result
	}

	pool.Close()
	return results
}

// performFetch is the worker function for the fetch service.
// This function will claim the first IDLE task it finds and attempt to
// fetch it, delivering exactly one Result on the tasks result channel.
func (service *Service) performFetch(ctx context.Context, w worker.Worker) (bool, error) {
	t := service.claimIdleTask()
	if t == nil {
		return false, nil
	}

	item, attempts, err := service.fetchWithRetry(ctx, t.reference)
	result := Result{Index: t.index, Reference: t.reference, Item: item, Attempts: attempts, Err: err}

	service.Lock()
	if err != nil {
		t.state = FAILED
	} else {
		t.state = COMPLETE
	}
	service.Unlock()

	t.result <- result
	return true, nil
}

// fetchWithRetry makes up to the configured number of attempts at fetching the
// reference. Only transient troubles are retried.
func (service *Service) fetchWithRetry(ctx context.Context, reference string) (*Item, int, error) {
	attempts := 0
	maxAttempts := service.config.attempts()

	var item *Item
	operation := func() error {
		attempts++
		fetched, err := service.source.Fetch(ctx, reference)
		if err != nil {
			trouble := newTrouble(err)
			if !trouble.Transient() {
				return backoff.Permanent(trouble)
			}

			if attempts < maxAttempts {
				log.Emit(logger.WARNING, "Attempt %d/%d for %s failed (%s): %v\n", attempts, maxAttempts, reference, trouble.Type(), err)
			}
			return trouble
		}
		if fetched == nil {
			return backoff.Permanent(&Trouble{error: &MalformedResponseError{"source returned no item"}, tType: MALFORMED})
		}

		item = fetched
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(service.config.RetryDelay()), uint64(maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w (after %v)", ctxErr, err)
		}
		return nil, attempts, err
	}

	item.Reference = reference
	item.fillSentinels()
	return item, attempts, nil
}

// claimIdleTask will try and find an IDLE task in the fetch service,
// and set it's state to 'FETCHING' to prevent another
// worker from claiming it once the mutex lock is released.
//
// Note: This function takes ownership of the mutex, and releases it when returning
func (service *Service) claimIdleTask() *task {
	service.Lock()
	defer service.Unlock()

	for _, t := range service.tasks {
		if t.state == IDLE {
			t.state = FETCHING
			return t
		}
	}

	return nil
}

// Commit appends a record for every successful result, in input order, using
// labels taken from the labeler provided. Failed results emit no record. The
// labels assigned are returned.
func (service *Service) Commit(results []Result, store recordAppender, labels labeler) []int {
	assigned := make([]int, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			log.Emit(logger.WARNING, "Skipping %s after %d attempt(s): %v\n", res.Reference, res.Attempts, res.Err)
			service.eventBus.Dispatch(event.FETCH_FAILED, event.ItemPayload{RunID: service.runID, Detail: res.Reference})
			continue
		}

		label := labels.Take()
		itemLog := logger.WithLabel(log, label)
		if err := store.Append(res.Item.Record(label)); err != nil {
			itemLog.Emit(logger.ERROR, "Failed to store record for %s: %v\n", res.Reference, err)
			service.eventBus.Dispatch(event.FETCH_FAILED, event.ItemPayload{RunID: service.runID, Label: label, Detail: err.Error()})
			continue
		}

		if res.Item.Title == record.NoTitle || res.Item.MediaURL == record.NoMediaURL {
			itemLog.Emit(logger.WARNING, "Stored partial fetch of %s\n", res.Reference)
		} else {
			itemLog.Emit(logger.SUCCESS, "Stored %s\n", res.Item)
		}

		assigned = append(assigned, label)
		service.eventBus.Dispatch(event.FETCH_COMPLETE, event.ItemPayload{RunID: service.runID, Label: label, Detail: res.Reference})
	}

	return assigned
}
