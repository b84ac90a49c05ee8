// Package agui implements the AG-UI server-sent event protocol: typed
// events with a single-writer stream per run, so event ordering is a
// structural guarantee rather than a locking discipline.
package agui

import "encoding/json"

// EventType names an AG-UI event.
type EventType string

const (
	EventRunStarted         EventType = "RUN_STARTED"
	EventTextMessageStart   EventType = "TEXT_MESSAGE_START"
	EventTextMessageContent EventType = "TEXT_MESSAGE_CONTENT"
	EventTextMessageEnd     EventType = "TEXT_MESSAGE_END"
	EventStateSnapshot      EventType = "STATE_SNAPSHOT"
	EventRunFinished        EventType = "RUN_FINISHED"
	EventRunError           EventType = "RUN_ERROR"
)

// Event is one AG-UI protocol event. Only the fields relevant to the
// event type are set.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"runId,omitempty"`
	ThreadID  string    `json:"threadId,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Delta     string    `json:"delta,omitempty"`
	Snapshot  any       `json:"snapshot,omitempty"`
	Message   string    `json:"message,omitempty"`
	Code      string    `json:"code,omitempty"`
}

// Encode renders the event as one SSE frame.
func (e Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(payload)+32)
	frame = append(frame, "event: "...)
	frame = append(frame, string(e.Type)...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}

// StateSnapshot is the payload of a STATE_SNAPSHOT event.
type StateSnapshot struct {
	Dashboard    any      `json:"dashboard,omitempty"`
	Status       string   `json:"status"`
	SchemaValid  bool     `json:"schema_valid"`
	SchemaErrors []string `json:"schema_errors,omitempty"`
	Text         string   `json:"text,omitempty"`
	Error        string   `json:"error,omitempty"`
}
