package domain

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates stream events on the wire.
type EventType string

const (
	EventDraftProgress EventType = "draft_progress"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
)

// EventPrefix is the line prefix that frames each stream event.
const EventPrefix = "data: "

// StreamEvent is one event on the explanation stream. Exactly one of the
// payload groups is populated, selected by Type:
//
//	draft_progress: Index, Status, Ranking
//	complete:       Result (flattened into the event object on the wire)
//	error:          Message
type StreamEvent struct {
	Type EventType `json:"type"`

	Index   *int           `json:"index,omitempty"`
	Status  DraftState     `json:"status,omitempty"`
	Ranking map[string]int `json:"ranking,omitempty"`

	Result *ExplanationResult `json:"-"`

	Message string `json:"message,omitempty"`
}

// DraftProgressEvent builds a draft_progress event for one draft.
func DraftProgressEvent(index int, status DraftState, ranking map[string]int) StreamEvent {
	i := index
	return StreamEvent{Type: EventDraftProgress, Index: &i, Status: status, Ranking: ranking}
}

// CompleteEvent builds the terminal success event carrying the full result.
func CompleteEvent(result *ExplanationResult) StreamEvent {
	return StreamEvent{Type: EventComplete, Result: result}
}

// ErrorEvent builds the terminal failure event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}

// MarshalJSON flattens a complete event's result fields into the event
// object, matching the wire contract where the result payload and the type
// discriminator share one object.
func (e StreamEvent) MarshalJSON() ([]byte, error) {
	if e.Type == EventComplete && e.Result != nil {
		raw, err := json.Marshal(e.Result)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
		fields["type"] = json.RawMessage(`"complete"`)
		return json.Marshal(fields)
	}

	type alias StreamEvent
	return json.Marshal(alias(e))
}

// UnmarshalJSON is the inverse of MarshalJSON: for complete events the
// result fields sit beside the discriminator in the same object.
func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	type alias StreamEvent
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = StreamEvent(a)

	if e.Type == EventComplete {
		var result ExplanationResult
		if err := json.Unmarshal(data, &result); err != nil {
			return err
		}
		e.Result = &result
	}
	return nil
}

// Frame renders the event as a line-framed wire message: the event prefix,
// the JSON payload, and a blank separator line.
func (e StreamEvent) Frame() (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream event: %w", err)
	}
	return fmt.Sprintf("%s%s\n\n", EventPrefix, payload), nil
}
