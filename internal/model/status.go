package model

import "time"

// DeliveryStatus is one entry in a recipient's delivery history.
type DeliveryStatus struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	Action      string    `json:"action"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// Status is a capability health record.
type Status struct {
	Capability string `json:"capability"`
	Available  bool   `json:"available"`
	Supported  bool   `json:"supported"`
}

type ServiceInfo struct {
	Name string `json:"name"`
}

// CurrentStatus returns the entry with the latest timestamp for the recipient.
// Entries sharing a timestamp resolve to the one appended last.
func CurrentStatus(statuses []DeliveryStatus, recipientID string) (DeliveryStatus, bool) {
	var (
		current DeliveryStatus
		found   bool
	)
	for _, s := range statuses {
		if s.RecipientID != recipientID {
			continue
		}
		if !found || !s.Timestamp.Before(current.Timestamp) {
			current = s
			found = true
		}
	}
	return current, found
}
