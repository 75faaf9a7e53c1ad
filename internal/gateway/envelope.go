package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind names a server-initiated broadcast.
type EventKind string

const (
	EventMessage       EventKind = "MESSAGE"
	EventResponse      EventKind = "RESPONSE"
	EventException     EventKind = "EXCEPTION"
	EventAlertNew      EventKind = "ALERT_NEW"
	EventAlertUpdated  EventKind = "ALERT_UPDATED"
	EventAlertCanceled EventKind = "ALERT_CANCELED"
)

var eventKinds = map[EventKind]struct{}{
	EventMessage:       {},
	EventResponse:      {},
	EventException:     {},
	EventAlertNew:      {},
	EventAlertUpdated:  {},
	EventAlertCanceled: {},
}

func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if _, ok := eventKinds[k]; !ok {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// Envelope is one parsed inbound frame. Raw keeps the whole frame so commands
// can decode their own fields.
type Envelope struct {
	Type       string
	CallbackID json.RawMessage
	Raw        json.RawMessage
}

func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Raw, v)
}

func ParseEnvelope(frame []byte) (Envelope, error) {
	var head struct {
		Type       json.RawMessage `json:"type"`
		CallbackID json.RawMessage `json:"callbackId"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return Envelope{}, fmt.Errorf("malformed frame: %w", err)
	}

	env := Envelope{Raw: append(json.RawMessage(nil), frame...)}
	if len(head.CallbackID) > 0 && !bytes.Equal(head.CallbackID, []byte("null")) {
		env.CallbackID = head.CallbackID
	}
	if len(head.Type) == 0 || bytes.Equal(head.Type, []byte("null")) {
		return env, errors.New("type is required")
	}
	if err := json.Unmarshal(head.Type, &env.Type); err != nil {
		return env, errors.New("type must be a string")
	}
	if env.Type == "" {
		return env, errors.New("type is required")
	}
	return env, nil
}

// Response is written back to the session a request arrived on.
type Response struct {
	CallbackID json.RawMessage `json:"callbackId,omitempty"`
	Success    bool            `json:"success"`
	Result     any             `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Event is the broadcast frame.
type Event struct {
	Type  EventKind `json:"type"`
	Value any       `json:"value"`
}
