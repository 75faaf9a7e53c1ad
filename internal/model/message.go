package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind tags the message variant.
type Kind int

const (
	KindSimple Kind = iota
	KindAlert
	KindNotification
	KindConversationRequest
)

var kindNames = [...]string{"SimpleMessage", "Alert", "Notification", "ConversationRequest"}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return KindSimple, fmt.Errorf("unknown message type %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type AlertStatus int

const (
	AlertNew AlertStatus = iota
	AlertPending
	AlertAcknowledged
	AlertRetracted
	AlertExpired
)

var alertStatusNames = [...]string{"New", "Pending", "Acknowledged", "Retracted", "Expired"}

func (s AlertStatus) String() string {
	if int(s) >= 0 && int(s) < len(alertStatusNames) {
		return alertStatusNames[s]
	}
	return fmt.Sprintf("AlertStatus(%d)", int(s))
}

func ParseAlertStatus(s string) (AlertStatus, error) {
	for i, name := range alertStatusNames {
		if name == s {
			return AlertStatus(i), nil
		}
	}
	return AlertNew, fmt.Errorf("unknown alert status %q", s)
}

func (s AlertStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *AlertStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseAlertStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Alert struct {
	Status     AlertStatus       `json:"status"`
	Properties map[string]string `json:"properties,omitempty"`
}

type Part struct {
	Identifier string `json:"identifier"`
	Content    string `json:"content"`
	MimeType   string `json:"mimeType"`
}

type Header struct {
	MessageID             string           `json:"messageId"`
	RelatedConversationID string           `json:"relatedConversationId"`
	RelatedMessageID      string           `json:"relatedMessageId,omitempty"`
	Subject               string           `json:"subject,omitempty"`
	Created               *time.Time       `json:"created,omitempty"`
	Sender                PhysicalAddress  `json:"sender"`
	Recipients            []Recipient      `json:"recipients"`
	DeliveryStatuses      []DeliveryStatus `json:"deliveryStatuses,omitempty"`
}

// Message is a closed variant over the message kinds. Alert is set iff Kind is
// KindAlert.
type Message struct {
	Kind   Kind   `json:"kind"`
	Header Header `json:"header"`
	Parts  []Part `json:"parts"`
	Alert  *Alert `json:"alert,omitempty"`
}

func (m Message) ID() string { return m.Header.MessageID }

func (m Message) IsAlert() bool { return m.Kind == KindAlert }

func (m Message) Recipient(recipientID string) (Recipient, bool) {
	for _, r := range m.Header.Recipients {
		if r.RecipientID == recipientID {
			return r, true
		}
	}
	return Recipient{}, false
}

func (m Message) CurrentStatus(recipientID string) (DeliveryStatus, bool) {
	return CurrentStatus(m.Header.DeliveryStatuses, recipientID)
}

// Validate checks the structural invariants every message must hold.
func (m Message) Validate() error {
	if m.Header.MessageID == "" {
		return errors.New("message id is required")
	}
	if m.Kind == KindAlert && m.Alert == nil {
		return errors.New("alert message requires alert fields")
	}
	if m.Kind != KindAlert && m.Alert != nil {
		return fmt.Errorf("%s message must not carry alert fields", m.Kind)
	}
	seen := make(map[string]struct{}, len(m.Header.Recipients))
	for _, r := range m.Header.Recipients {
		if r.RecipientID == "" {
			return errors.New("recipient id is required")
		}
		if _, dup := seen[r.RecipientID]; dup {
			return fmt.Errorf("duplicate recipient id %q", r.RecipientID)
		}
		seen[r.RecipientID] = struct{}{}
	}
	for _, s := range m.Header.DeliveryStatuses {
		if _, ok := seen[s.RecipientID]; !ok {
			return fmt.Errorf("delivery status %q references unknown recipient %q", s.ID, s.RecipientID)
		}
	}
	return nil
}

// Clone returns a deep copy that shares no slices or maps with m.
func (m Message) Clone() Message {
	out := m
	if m.Header.Created != nil {
		created := *m.Header.Created
		out.Header.Created = &created
	}
	out.Header.Recipients = append([]Recipient(nil), m.Header.Recipients...)
	out.Header.DeliveryStatuses = append([]DeliveryStatus(nil), m.Header.DeliveryStatuses...)
	out.Parts = append([]Part(nil), m.Parts...)
	if m.Alert != nil {
		alert := *m.Alert
		if m.Alert.Properties != nil {
			alert.Properties = make(map[string]string, len(m.Alert.Properties))
			for k, v := range m.Alert.Properties {
				alert.Properties[k] = v
			}
		}
		out.Alert = &alert
	}
	return out
}

// HasDeliveryStatus reports whether a status with the given id is already recorded.
func (m Message) HasDeliveryStatus(id string) bool {
	if id == "" {
		return false
	}
	for _, s := range m.Header.DeliveryStatuses {
		if s.ID == id {
			return true
		}
	}
	return false
}

// WithDeliveryStatus returns a copy of m with s appended to its delivery history.
func (m Message) WithDeliveryStatus(s DeliveryStatus) Message {
	out := m.Clone()
	out.Header.DeliveryStatuses = append(out.Header.DeliveryStatuses, s)
	return out
}

// WithAlertStatus returns a copy of an alert message carrying the given status.
func (m Message) WithAlertStatus(status AlertStatus) Message {
	out := m.Clone()
	if out.Alert != nil {
		out.Alert.Status = status
	}
	return out
}

func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
