package model

// Channel identifiers used as PhysicalAddress.ServiceID.
const (
	ServiceSMS         = "SMS"
	ServiceEmail       = "EMAIL"
	ServiceChat        = "CHAT"
	ServiceTextToVoice = "TEXT-TO-VOICE"
	ServiceAlert       = "ALERT"
)

// GroupChatPrefix marks a CHAT address that names a group rather than a user.
const GroupChatPrefix = "GROUP:"

type PhysicalAddress struct {
	ServiceID string `json:"serviceId"`
	Address   string `json:"address"`
}

func NewPhysicalAddress(serviceID, address string) PhysicalAddress {
	return PhysicalAddress{ServiceID: serviceID, Address: address}
}

func (a PhysicalAddress) IsZero() bool {
	return a.ServiceID == "" && a.Address == ""
}

func (a PhysicalAddress) String() string {
	return a.ServiceID + ":" + a.Address
}

type DeliveryAddress struct {
	Physical    PhysicalAddress `json:"physicalAddress"`
	RecipientID string          `json:"recipientId,omitempty"`
}

type Recipient struct {
	RecipientID     string          `json:"recipientId"`
	DeliveryAddress DeliveryAddress `json:"deliveryAddress"`
}

func NewRecipient(recipientID, address, serviceID string) Recipient {
	return Recipient{
		RecipientID: recipientID,
		DeliveryAddress: DeliveryAddress{
			Physical:    NewPhysicalAddress(serviceID, address),
			RecipientID: recipientID,
		},
	}
}

func (r Recipient) ServiceID() string { return r.DeliveryAddress.Physical.ServiceID }

func (r Recipient) Address() string { return r.DeliveryAddress.Physical.Address }
