// A collection of event names and common methods used to handle the events, typically
// redirecting the handling to a reporter or other method via the `Handler` interface.
package event

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/hbomb79/mediabatch/pkg/logger"
)

var log = logger.Get("Events")

// Events emitted by the stages of the pipeline as each item progresses. Every
// event carries an ItemPayload identifying the run and the item label.
type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	// ItemPayload is the payload for every item-level event.
	ItemPayload struct {
		RunID  uuid.UUID
		Label  int
		Detail string
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		*sync.RWMutex
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

const (
	FETCH_COMPLETE Event = "fetch:item:complete"
	FETCH_FAILED   Event = "fetch:item:failed"

	DOWNLOAD_COMPLETE Event = "download:item:complete"
	DOWNLOAD_FAILED   Event = "download:item:failed"

	TRANSFORM_COMPLETE Event = "transform:item:complete"
	TRANSFORM_SKIPPED  Event = "transform:item:skipped"
	TRANSFORM_FAILED   Event = "transform:item:failed"

	RENDER_COMPLETE Event = "render:item:complete"
	RENDER_FAILED   Event = "render:item:failed"

	PUBLISH_STEP     Event = "publish:item:step"
	PUBLISH_COMPLETE Event = "publish:item:complete"
	PUBLISH_FAILED   Event = "publish:item:failed"
)

// AllItemEvents lists every event which carries an ItemPayload.
var AllItemEvents = []Event{
	FETCH_COMPLETE, FETCH_FAILED,
	DOWNLOAD_COMPLETE, DOWNLOAD_FAILED,
	TRANSFORM_COMPLETE, TRANSFORM_SKIPPED, TRANSFORM_FAILED,
	RENDER_COMPLETE, RENDER_FAILED,
	PUBLISH_STEP, PUBLISH_COMPLETE, PUBLISH_FAILED,
}

func New() EventCoordinator {
	return &eventHandler{
		RWMutex:      &sync.RWMutex{},
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes an event type and a channel and will send Event messages on
// the channel any time a Dispatch for the provided event occurs.
// This method can be used multiple times for different events on the same channel.
//
// If the channel is BLOCKED when the event bus attempts to send the message on the handler channel,
// then the thread dispatching the event will also be BLOCKED. It is recomended to buffer the handler channels
// appropiately to avoid dispatcher-side blocking.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	handler.Lock()
	defer handler.Unlock()

	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction takes an event type and a handler method which will be
// called with the payload for the event whenever it is dispatched.
// The handle provided should be guaranteed to return quickly, else other threads calling
// Dispatch on this event bus will be blocked.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction accepts an Event and a HandlerMethod which will be stored and
// called inside of a goroutine when the event is handled.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.Lock()
	defer handler.Unlock()

	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch takes an event type and a payload and dispatches the payload to the handlers
// registered for the event type provided.
// Note that this method WILL block if a synchronous handler function is blocking, or if channel
// handlers are blocked.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	if err := handler.validatePayload(event, payload); err != nil {
		log.Emit(logger.FATAL, "Dispatch for event %v FAILED validation: %v\n", event, err)
		return
	}

	handler.RLock()
	fnHandles := handler.fnHandlers[event]
	chanHandles := handler.chanHandlers[event]
	handler.RUnlock()

	for _, handle := range fnHandles {
		if handle.async {
			go handle.handle(event, payload)
		} else {
			handle.handle(event, payload)
		}
	}

	if len(chanHandles) > 0 {
		payload := HandlerEvent{event, payload}
		for _, handle := range chanHandles {
			handle <- payload
		}
	}
}

// validatePayload ensures that the payload provided is valid for the event specified. An error
// will be returned if the payload is not valid, and the event should not be sent to the registered
// handlers in this case.
func (handler *eventHandler) validatePayload(event Event, payload Payload) error {
	var payloadTypeName string
	if t := reflect.TypeOf(payload); t != nil {
		payloadTypeName = t.Name()
	} else {
		payloadTypeName = "Nil"
	}

	for _, known := range AllItemEvents {
		if known != event {
			continue
		}

		if _, ok := payload.(ItemPayload); !ok {
			return fmt.Errorf("illegal payload (type %s) for %s event. Expected event.ItemPayload payload", payloadTypeName, event)
		}

		return nil
	}

	return errors.New("event type not recognized for validation")
}
