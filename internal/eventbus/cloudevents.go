package eventbus

import (
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2/event"

	"github.com/yabot/core/internal/events"
)

// eventSource is the CloudEvents "source" attribute stamped on every
// envelope this bus produces.
const eventSource = "yabot/core"

// encode wraps ev in a CloudEvents 1.0 envelope and serializes it to JSON,
// the wire format this bus hands to whichever Broker is active. Grounded
// on the surrounding eventbus idiom of treating CloudEvents as the
// broker-bound envelope while keeping the domain Event as the in-process
// type (cloudevents_encode.go in the reference eventbus module).
func encode(ev events.Event) ([]byte, error) {
	ce := cloudevents.New(cloudevents.CloudEventsVersionV1)
	ce.SetID(ev.EventID)
	ce.SetType(string(ev.EventType))
	ce.SetSource(eventSource)
	ce.SetTime(ev.Timestamp)
	if ev.UserID != "" {
		ce.SetExtension("userid", ev.UserID)
	}
	if err := ce.SetData(cloudevents.ApplicationJSON, ev.Payload); err != nil {
		return nil, fmt.Errorf("eventbus: encode payload: %w", err)
	}
	return ce.MarshalJSON()
}

// decode reverses encode.
func decode(raw []byte) (events.Event, error) {
	var ce cloudevents.Event
	if err := ce.UnmarshalJSON(raw); err != nil {
		return events.Event{}, fmt.Errorf("eventbus: decode envelope: %w", err)
	}

	var payload map[string]any
	if len(ce.Data()) > 0 {
		if err := ce.DataAs(&payload); err != nil {
			return events.Event{}, fmt.Errorf("eventbus: decode payload: %w", err)
		}
	}

	var userID string
	if v, err := ce.Context.GetExtension("userid"); err == nil && v != nil {
		if s, ok := v.(string); ok {
			userID = s
		}
	}

	return events.Event{
		EventID:   ce.ID(),
		EventType: events.Type(ce.Type()),
		UserID:    userID,
		Timestamp: ce.Time(),
		Payload:   payload,
	}, nil
}
