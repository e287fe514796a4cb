package helpers

import (
	"github.com/hbomb79/go-chanassert"
	"github.com/hbomb79/mediabatch/internal/event"
)

// MatchItemEvent returns a chanassert matcher which will match
// events of the given type concerning the label provided.
func MatchItemEvent(ev event.Event, label int) chanassert.Matcher[event.HandlerEvent] {
	return chanassert.MatchPredicate(func(message event.HandlerEvent) bool {
		if message.Event != ev {
			return false
		}

		payload, ok := message.Payload.(event.ItemPayload)
		return ok && payload.Label == label
	})
}

// MatchEventType returns a matcher which matches any event of the type provided.
func MatchEventType(ev event.Event) chanassert.Matcher[event.HandlerEvent] {
	return chanassert.MatchStructPartial(event.HandlerEvent{Event: ev})
}

// DrainEvents collects every event currently buffered on the channel
// without blocking.
func DrainEvents(ch event.HandlerChannel) []event.HandlerEvent {
	out := make([]event.HandlerEvent, 0, len(ch))
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// CountMatching returns how many of the events satisfy the matcher.
func CountMatching(events []event.HandlerEvent, matcher chanassert.Matcher[event.HandlerEvent]) int {
	n := 0
	for _, ev := range events {
		if matcher.DoesMatch(ev) {
			n++
		}
	}

	return n
}
