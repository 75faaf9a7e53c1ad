package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Builder composes messages for commands and tests. Recipients added without an
// explicit id are numbered in insertion order starting at "1".
type Builder struct {
	msg Message
	now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

func (b *Builder) WithMessageID(id string) *Builder {
	b.msg.Header.MessageID = id
	return b
}

func (b *Builder) WithConversationID(id string) *Builder {
	b.msg.Header.RelatedConversationID = id
	return b
}

func (b *Builder) WithRelatedMessageID(id string) *Builder {
	b.msg.Header.RelatedMessageID = id
	return b
}

func (b *Builder) WithSubject(subject string) *Builder {
	b.msg.Header.Subject = subject
	return b
}

func (b *Builder) WithSender(sender PhysicalAddress) *Builder {
	b.msg.Header.Sender = sender
	return b
}

func (b *Builder) WithCreated(t time.Time) *Builder {
	b.msg.Header.Created = &t
	return b
}

// WithBody adds an untagged text/plain part.
func (b *Builder) WithBody(content string) *Builder {
	return b.AddPart(Part{Content: content, MimeType: "text/plain"})
}

func (b *Builder) AddPart(p Part) *Builder {
	if p.MimeType == "" {
		p.MimeType = "text/plain"
	}
	b.msg.Parts = append(b.msg.Parts, p)
	return b
}

func (b *Builder) AddRecipient(r Recipient) *Builder {
	if r.RecipientID == "" {
		r.RecipientID = strconv.Itoa(len(b.msg.Header.Recipients) + 1)
	}
	r.DeliveryAddress.RecipientID = r.RecipientID
	b.msg.Header.Recipients = append(b.msg.Header.Recipients, r)
	return b
}

func (b *Builder) AddDeliveryStatus(s DeliveryStatus) *Builder {
	b.msg.Header.DeliveryStatuses = append(b.msg.Header.DeliveryStatuses, s)
	return b
}

func (b *Builder) AsAlert(status AlertStatus, properties map[string]string) *Builder {
	b.msg.Kind = KindAlert
	b.msg.Alert = &Alert{Status: status, Properties: properties}
	return b
}

func (b *Builder) AsKind(kind Kind) *Builder {
	b.msg.Kind = kind
	return b
}

// Build fills in a message id and creation time when absent and validates the result.
func (b *Builder) Build() (Message, error) {
	msg := b.msg.Clone()
	if msg.Header.MessageID == "" {
		msg.Header.MessageID = uuid.NewString()
	}
	if msg.Header.Created == nil {
		created := b.now().UTC()
		msg.Header.Created = &created
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
