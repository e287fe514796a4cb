package worker_test

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hbomb79/mediabatch/pkg/logger"
	"github.com/hbomb79/mediabatch/pkg/worker"
	"github.com/stretchr/testify/assert"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

func Test_Pool_DrainsWorkThenSleeps(t *testing.T) {
	t.Parallel()

	var remaining atomic.Int32
	remaining.Store(20)
	var processed atomic.Int32

	task := func(w worker.Worker) (bool, error) {
		if remaining.Add(-1) < 0 {
			return false, nil
		}

		processed.Add(1)
		return true, nil
	}

	pool := worker.NewWorkerPool()
	for i := 0; i < 3; i++ {
		assert.Nil(t, pool.PushWorker(worker.NewWorker(fmt.Sprintf("test-%d", i), task)))
	}
	assert.Nil(t, pool.Start())

	assert.Eventually(t, func() bool { return processed.Load() == 20 }, time.Second, time.Millisecond*5)
	pool.Close()
	assert.EqualValues(t, 20, processed.Load())
}

func Test_Pool_ErrorsDoNotStopWorker(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	task := func(w worker.Worker) (bool, error) {
		n := calls.Add(1)
		if n < 3 {
			return true, errors.New("boom")
		}

		return false, nil
	}

	pool := worker.NewWorkerPool()
	assert.Nil(t, pool.PushWorker(worker.NewWorker("erroring", task)))
	assert.Nil(t, pool.Start())
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond*5)

	assert.Nil(t, pool.WakeupWorkers())
	assert.Eventually(t, func() bool { return calls.Load() >= 4 }, time.Second, time.Millisecond*5)
	pool.Close()
}

func Test_Pool_LifecycleErrors(t *testing.T) {
	t.Parallel()

	pool := worker.NewWorkerPool()
	assert.Error(t, pool.WakeupWorkers(), "wakeup before start should fail")
	assert.Nil(t, pool.Start())
	assert.Error(t, pool.Start(), "double start should fail")
	assert.Error(t, pool.PushWorker(worker.NewWorker("late", func(worker.Worker) (bool, error) { return false, nil })))
	pool.Close()
}
