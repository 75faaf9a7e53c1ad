package model

import (
	"encoding/json"
	"fmt"
)

type ExceptionType int

const (
	ExceptionGeneral ExceptionType = iota
	ExceptionInvalidInput
	ExceptionInvalidMessage
	ExceptionInvalidAddress
	ExceptionInvalidContext
	ExceptionInvalidConversation
	ExceptionUnknownUser
	ExceptionUnknownService
	ExceptionDelivery
	ExceptionServerAdapterFault
	ExceptionSystemFault
	ExceptionReadOnly
	ExceptionUpdateError
)

var exceptionTypeNames = map[ExceptionType]string{
	ExceptionGeneral:             "General",
	ExceptionInvalidInput:        "InvalidInput",
	ExceptionInvalidMessage:      "InvalidMessage",
	ExceptionInvalidAddress:      "InvalidAddress",
	ExceptionInvalidContext:      "InvalidContext",
	ExceptionInvalidConversation: "InvalidConversation",
	ExceptionUnknownUser:         "UnknownUser",
	ExceptionUnknownService:      "UnknownService",
	ExceptionDelivery:            "Delivery",
	ExceptionServerAdapterFault:  "ServerAdapterFault",
	ExceptionSystemFault:         "SystemFault",
	ExceptionReadOnly:            "ReadOnly",
	ExceptionUpdateError:         "UpdateError",
}

func (t ExceptionType) String() string {
	if name, ok := exceptionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ExceptionType(%d)", int(t))
}

func ParseExceptionType(s string) (ExceptionType, error) {
	for t, name := range exceptionTypeNames {
		if name == s {
			return t, nil
		}
	}
	return ExceptionGeneral, fmt.Errorf("unknown exception type %q", s)
}

func (t ExceptionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *ExceptionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseExceptionType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ProcessingException describes a delivery or processing failure surfaced to clients.
type ProcessingException struct {
	ExceptionID         string        `json:"exceptionId"`
	GeneratingMessageID string        `json:"generatingMessageId"`
	Fault               string        `json:"fault"`
	TypeSpecificContext string        `json:"typeSpecificContext"`
	IssuingService      string        `json:"issuingService"`
	Type                ExceptionType `json:"type"`
}

func (e ProcessingException) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Fault)
}
