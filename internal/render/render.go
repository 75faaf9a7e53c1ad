// Package render converts model values into the client wire representation.
// Absent optional fields always map to a sentinel so clients can rely on presence.
package render

import (
	"sort"
	"time"

	"github.com/example/ucs-gateway/internal/model"
)

const (
	Unknown      = "<unknown>"
	EmptyBody    = "<empty>"
	NoSubject    = "<none>"
	DefaultMime  = "text/plain"
	TimestampFmt = "01-02-2006 15:04:05"
)

// Location is the zone timestamps are formatted in.
var Location = time.Local

type Address struct {
	Who    string `json:"who"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

type MessageView struct {
	Services         []string  `json:"services"`
	Sender           Address   `json:"sender"`
	MessageID        string    `json:"messageId"`
	ConversationID   string    `json:"conversationId"`
	RelatedMessageID string    `json:"relatedMessageId"`
	Timestamp        string    `json:"timestamp"`
	BodyMime         string    `json:"bodyMime"`
	Subject          string    `json:"subject"`
	Body             string    `json:"body"`
	Recipients       []Address `json:"recipients"`
}

type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type AlertView struct {
	MessageView
	Status     string     `json:"status"`
	Properties []Property `json:"properties"`
}

type ConversationView struct {
	ID string `json:"id"`
}

type ConversationInfoView struct {
	ConversationID string   `json:"conversationId"`
	Messages       []string `json:"messages"`
}

type ExceptionView struct {
	ExceptionID string `json:"exceptionId"`
	MessageID   string `json:"messageId"`
	Fault       string `json:"fault"`
	Context     string `json:"context"`
	ServiceID   string `json:"serviceId"`
	Type        string `json:"type"`
}

type StatusView struct {
	Capability string `json:"capability"`
	Available  bool   `json:"available"`
	Supported  bool   `json:"supported"`
}

type ServiceInfoView struct {
	Name string `json:"name"`
}

// ExceptionEvent is the payload of an EXCEPTION broadcast.
type ExceptionEvent struct {
	Message   any           `json:"message"`
	Sender    Address       `json:"sender"`
	Receiver  Address       `json:"receiver"`
	Exception ExceptionView `json:"exception"`
	ServerID  string        `json:"serverId"`
}

// Message renders a message according to its kind: alerts carry their status and
// properties on top of the common fields.
func Message(m model.Message) any {
	switch m.Kind {
	case model.KindAlert:
		return alert(m)
	default:
		return message(m)
	}
}

func message(m model.Message) MessageView {
	h := m.Header

	timestamp := Unknown
	if h.Created != nil {
		timestamp = h.Created.In(Location).Format(TimestampFmt)
	}

	body, mime := EmptyBody, DefaultMime
	if len(m.Parts) > 0 {
		body, mime = m.Parts[0].Content, m.Parts[0].MimeType
	}

	recipients := make([]Address, 0, len(h.Recipients))
	for _, r := range h.Recipients {
		recipients = append(recipients, Recipient(r, h.DeliveryStatuses))
	}

	return MessageView{
		Services:         services(h.Recipients),
		Sender:           PhysicalAddress(h.Sender),
		MessageID:        h.MessageID,
		ConversationID:   h.RelatedConversationID,
		RelatedMessageID: orSentinel(h.RelatedMessageID, NoSubject),
		Timestamp:        timestamp,
		BodyMime:         orSentinel(mime, DefaultMime),
		Subject:          orSentinel(h.Subject, NoSubject),
		Body:             body,
		Recipients:       recipients,
	}
}

func alert(m model.Message) AlertView {
	view := AlertView{MessageView: message(m), Properties: []Property{}}
	if m.Alert == nil {
		view.Status = Unknown
		return view
	}
	view.Status = m.Alert.Status.String()
	for k, v := range m.Alert.Properties {
		view.Properties = append(view.Properties, Property{Key: k, Value: v})
	}
	return view
}

func services(recipients []model.Recipient) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		id := r.ServiceID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DeliveryAddress renders an address with the current delivery status of the
// recipient it belongs to, if any.
func DeliveryAddress(da model.DeliveryAddress, statuses []model.DeliveryStatus) Address {
	out := PhysicalAddress(da.Physical)
	if da.RecipientID == "" {
		return out
	}
	if s, ok := model.CurrentStatus(statuses, da.RecipientID); ok {
		out.Status = s.Action + ": " + s.Status
	}
	return out
}

// Recipient renders a recipient's address keyed by its recipient id, which is
// authoritative over any id carried on the delivery address itself.
func Recipient(r model.Recipient, statuses []model.DeliveryStatus) Address {
	da := r.DeliveryAddress
	da.RecipientID = r.RecipientID
	return DeliveryAddress(da, statuses)
}

func PhysicalAddress(pa model.PhysicalAddress) Address {
	return Address{Who: pa.Address, Type: pa.ServiceID, Status: Unknown}
}

func Conversation(c model.Conversation) ConversationView {
	return ConversationView{ID: c.ConversationID}
}

func ConversationInfo(ci model.ConversationInfo) ConversationInfoView {
	messages := make([]string, len(ci.Messages))
	copy(messages, ci.Messages)
	return ConversationInfoView{
		ConversationID: ci.Conversation.ConversationID,
		Messages:       messages,
	}
}

func Exception(e model.ProcessingException) ExceptionView {
	return ExceptionView{
		ExceptionID: e.ExceptionID,
		MessageID:   e.GeneratingMessageID,
		Fault:       e.Fault,
		Context:     e.TypeSpecificContext,
		ServiceID:   e.IssuingService,
		Type:        e.Type.String(),
	}
}

func Status(s model.Status) StatusView {
	return StatusView{Capability: s.Capability, Available: s.Available, Supported: s.Supported}
}

func ServiceInfo(si model.ServiceInfo) ServiceInfoView {
	return ServiceInfoView{Name: si.Name}
}

func ExceptionNotice(m model.Message, sender, receiver model.PhysicalAddress, e model.ProcessingException, serverID string) ExceptionEvent {
	return ExceptionEvent{
		Message:   Message(m),
		Sender:    PhysicalAddress(sender),
		Receiver:  PhysicalAddress(receiver),
		Exception: Exception(e),
		ServerID:  serverID,
	}
}

func orSentinel(v, sentinel string) string {
	if v == "" {
		return sentinel
	}
	return v
}
