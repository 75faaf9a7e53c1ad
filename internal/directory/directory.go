// Package directory resolves user names to the physical addresses they can be
// reached on.
package directory

import (
	"context"
	"errors"

	"github.com/example/ucs-gateway/internal/model"
)

var ErrUnknownUser = errors.New("unknown user")

type ContactInfo struct {
	Name             string                           `json:"name" yaml:"name"`
	AddressesByType  map[string]model.PhysicalAddress `json:"addressesByType" yaml:"addressesByType"`
	PreferredAddress model.PhysicalAddress            `json:"preferredAddress" yaml:"preferredAddress"`
}

// Address returns the user's address for serviceID.
func (c ContactInfo) Address(serviceID string) (model.PhysicalAddress, bool) {
	pa, ok := c.AddressesByType[serviceID]
	if !ok || pa.Address == "" {
		return model.PhysicalAddress{}, false
	}
	return pa, true
}

// Resolver is consulted on every send. Implementations must not cache
// results across calls because a user's addresses may change at any time.
type Resolver interface {
	ResolveUserContactInfo(ctx context.Context, userName string) (ContactInfo, error)
}

func contact(name, email, phone, chat, voice string) ContactInfo {
	byType := map[string]model.PhysicalAddress{
		model.ServiceEmail:       model.NewPhysicalAddress(model.ServiceEmail, email),
		model.ServiceSMS:         model.NewPhysicalAddress(model.ServiceSMS, phone),
		model.ServiceChat:        model.NewPhysicalAddress(model.ServiceChat, chat),
		model.ServiceTextToVoice: model.NewPhysicalAddress(model.ServiceTextToVoice, voice),
	}
	return ContactInfo{Name: name, AddressesByType: byType, PreferredAddress: byType[model.ServiceEmail]}
}
