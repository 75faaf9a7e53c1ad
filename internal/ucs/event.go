package ucs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/ucs-gateway/internal/gateway"
	"github.com/example/ucs-gateway/internal/model"
)

// Event is the record carried on the events topic. Every gateway instance
// consumes it and broadcasts the rendered form to its own sessions.
type Event struct {
	Kind      gateway.EventKind          `json:"kind"`
	ServerID  string                     `json:"serverId"`
	Message   *model.Message             `json:"message,omitempty"`
	MessageID string                     `json:"messageId,omitempty"`
	Status    *model.DeliveryStatus      `json:"status,omitempty"`
	Exception *model.ProcessingException `json:"exception,omitempty"`
	Sender    model.PhysicalAddress      `json:"sender"`
	Receiver  model.PhysicalAddress      `json:"receiver"`
	EmittedAt time.Time                  `json:"emittedAt"`
}

// Key is the partition key: events about one message stay ordered.
func (e Event) Key() string {
	if e.Message != nil {
		return e.Message.ID()
	}
	return e.MessageID
}

func (e Event) Validate() error {
	if _, err := gateway.ParseEventKind(string(e.Kind)); err != nil {
		return err
	}
	switch e.Kind {
	case gateway.EventResponse:
		if e.MessageID == "" || e.Status == nil {
			return errors.New("RESPONSE event requires messageId and status")
		}
	case gateway.EventException:
		if e.Exception == nil {
			return errors.New("EXCEPTION event requires an exception")
		}
	default:
		if e.Message == nil {
			return fmt.Errorf("%s event requires a message", e.Kind)
		}
	}
	return nil
}

func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func MessageEvent(kind gateway.EventKind, msg model.Message, serverID string) Event {
	m := msg.Clone()
	return Event{Kind: kind, ServerID: serverID, Message: &m, MessageID: msg.ID()}
}

func ResponseEvent(messageID string, status model.DeliveryStatus, serverID string) Event {
	return Event{Kind: gateway.EventResponse, ServerID: serverID, MessageID: messageID, Status: &status}
}

func ExceptionEvent(msg model.Message, sender, receiver model.PhysicalAddress, exc model.ProcessingException, serverID string) Event {
	m := msg.Clone()
	return Event{
		Kind:      gateway.EventException,
		ServerID:  serverID,
		Message:   &m,
		MessageID: msg.ID(),
		Exception: &exc,
		Sender:    sender,
		Receiver:  receiver,
	}
}
