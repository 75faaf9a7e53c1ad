// Package body picks the part of a composite message that should be delivered
// to a given recipient, address or channel.
package body

import (
	"errors"
	"strings"

	"github.com/example/ucs-gateway/internal/model"
)

// Reserved part identifier prefixes. Matching is exact and case-sensitive.
const (
	RecipientPrefix = "[RECIPIENT-ID]:"
	ServicePrefix   = "[SERVICE-ID]:"
)

var ErrNoMatchingPart = errors.New("no matching message part")

// Query selects a part. Empty fields are treated as not supplied.
type Query struct {
	ServiceID   string
	RecipientID string
	Address     string
}

func RecipientTag(recipientIDOrAddress string) string {
	return RecipientPrefix + recipientIDOrAddress
}

func ServiceTag(serviceID string) string {
	return ServicePrefix + serviceID
}

// Resolve walks the precedence chain recipient id, then address, then service id,
// returning the first part whose identifier matches. A tighter selector that
// matches wins even if looser selectors disagree with it.
func Resolve(msg model.Message, q Query) (model.Part, error) {
	if q.RecipientID != "" {
		if p, ok := find(msg.Parts, RecipientTag(q.RecipientID)); ok {
			return p, nil
		}
	}
	if q.Address != "" {
		if p, ok := find(msg.Parts, RecipientTag(q.Address)); ok {
			return p, nil
		}
	}
	if q.ServiceID != "" {
		if p, ok := find(msg.Parts, ServiceTag(q.ServiceID)); ok {
			return p, nil
		}
	}
	return model.Part{}, ErrNoMatchingPart
}

// ResolveFor resolves using every selector a recipient carries.
func ResolveFor(msg model.Message, r model.Recipient) (model.Part, error) {
	return Resolve(msg, Query{
		ServiceID:   r.ServiceID(),
		RecipientID: r.RecipientID,
		Address:     r.Address(),
	})
}

// IsUnscoped reports whether a part identifier carries none of the reserved prefixes.
func IsUnscoped(identifier string) bool {
	return !strings.HasPrefix(identifier, RecipientPrefix) && !strings.HasPrefix(identifier, ServicePrefix)
}

func find(parts []model.Part, identifier string) (model.Part, bool) {
	for _, p := range parts {
		if p.Identifier == identifier {
			return p, true
		}
	}
	return model.Part{}, false
}

// DefaultPart returns the first part that is not scoped to a recipient or service.
func DefaultPart(msg model.Message) (model.Part, bool) {
	for _, p := range msg.Parts {
		if IsUnscoped(p.Identifier) {
			return p, true
		}
	}
	return model.Part{}, false
}

// ContentFor picks the part delivered to r: a scoped part when one matches,
// otherwise the message's unscoped body. ErrNoMatchingPart means neither exists.
func ContentFor(msg model.Message, r model.Recipient) (model.Part, error) {
	p, err := ResolveFor(msg, r)
	if err == nil {
		return p, nil
	}
	if d, ok := DefaultPart(msg); ok {
		return d, nil
	}
	return model.Part{}, err
}
