package event_test

import (
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/internal/event"
	"github.com/hbomb79/mediabatch/tests/helpers"
	"github.com/stretchr/testify/assert"
)

func Test_Dispatch_ChannelAndFunctionHandlers(t *testing.T) {
	t.Parallel()
	bus := event.New()
	runID := uuid.New()

	ch := make(event.HandlerChannel, 4)
	bus.RegisterHandlerChannel(ch, event.FETCH_COMPLETE, event.FETCH_FAILED)

	var calls atomic.Int32
	bus.RegisterHandlerFunction(event.FETCH_FAILED, func(event.Event, event.Payload) { calls.Add(1) })

	bus.Dispatch(event.FETCH_COMPLETE, event.ItemPayload{RunID: runID, Label: 4})
	bus.Dispatch(event.FETCH_FAILED, event.ItemPayload{RunID: runID, Label: 5, Detail: "not found"})

	first, second := <-ch, <-ch
	assert.True(t, helpers.MatchItemEvent(event.FETCH_COMPLETE, 4).DoesMatch(first))
	assert.True(t, helpers.MatchItemEvent(event.FETCH_FAILED, 5).DoesMatch(second))
	assert.False(t, helpers.MatchItemEvent(event.FETCH_FAILED, 4).DoesMatch(first))
	assert.EqualValues(t, 1, calls.Load())
}

func Test_Dispatch_RejectsIllegalPayload(t *testing.T) {
	t.Parallel()
	bus := event.New()
	ch := make(event.HandlerChannel, 1)
	bus.RegisterHandlerChannel(ch, event.RENDER_COMPLETE)

	bus.Dispatch(event.RENDER_COMPLETE, "not a payload")
	bus.Dispatch(event.Event("unknown"), event.ItemPayload{})

	assert.Len(t, ch, 0)
}
