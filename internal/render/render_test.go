package render

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ucs-gateway/internal/model"
)

func TestMessageSentinels(t *testing.T) {
	m := model.Message{
		Header: model.Header{
			MessageID: "m1",
			Sender:    model.NewPhysicalAddress(model.ServiceEmail, "eafry"),
		},
	}

	view, ok := Message(m).(MessageView)
	require.True(t, ok)
	assert.Equal(t, Unknown, view.Timestamp)
	assert.Equal(t, EmptyBody, view.Body)
	assert.Equal(t, DefaultMime, view.BodyMime)
	assert.Equal(t, NoSubject, view.Subject)
	assert.Equal(t, NoSubject, view.RelatedMessageID)
	assert.Equal(t, Address{Who: "eafry", Type: model.ServiceEmail, Status: Unknown}, view.Sender)
	assert.NotNil(t, view.Services)
	assert.NotNil(t, view.Recipients)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"services":[]`)
	assert.Contains(t, string(data), `"recipients":[]`)
}

func TestMessageFields(t *testing.T) {
	created := time.Date(2015, 6, 1, 14, 5, 9, 0, time.UTC)
	m, err := model.NewBuilder().
		WithMessageID("m1").
		WithConversationID("c1").
		WithRelatedMessageID("m0").
		WithSubject("hi").
		WithCreated(created).
		AddPart(model.Part{Content: "<b>x</b>", MimeType: "text/html"}).
		AddPart(model.Part{Content: "second"}).
		Build()
	require.NoError(t, err)

	view := Message(m).(MessageView)
	assert.Equal(t, created.In(Location).Format(TimestampFmt), view.Timestamp)
	assert.Equal(t, "<b>x</b>", view.Body)
	assert.Equal(t, "text/html", view.BodyMime)
	assert.Equal(t, "hi", view.Subject)
	assert.Equal(t, "c1", view.ConversationID)
	assert.Equal(t, "m0", view.RelatedMessageID)
}

func TestTimestampUsesConfiguredZone(t *testing.T) {
	prev := Location
	Location = time.FixedZone("UTC+2", 2*60*60)
	defer func() { Location = prev }()

	m, err := model.NewBuilder().WithCreated(time.Date(2015, 12, 31, 23, 0, 0, 0, time.UTC)).Build()
	require.NoError(t, err)

	assert.Equal(t, "01-01-2016 01:00:00", Message(m).(MessageView).Timestamp)
}

func TestServicesSortedAndDistinct(t *testing.T) {
	orders := [][]model.Recipient{
		{
			model.NewRecipient("1", "1", model.ServiceSMS),
			model.NewRecipient("2", "a@b", model.ServiceEmail),
			model.NewRecipient("3", "2", model.ServiceSMS),
			model.NewRecipient("4", "c", model.ServiceChat),
		},
		{
			model.NewRecipient("4", "c", model.ServiceChat),
			model.NewRecipient("3", "2", model.ServiceSMS),
			model.NewRecipient("2", "a@b", model.ServiceEmail),
			model.NewRecipient("1", "1", model.ServiceSMS),
		},
	}
	for _, recipients := range orders {
		m := model.Message{Header: model.Header{MessageID: "m", Recipients: recipients}}
		view := Message(m).(MessageView)
		assert.Equal(t, []string{"CHAT", "EMAIL", "SMS"}, view.Services)
		assert.Len(t, view.Recipients, 4)
	}
}

func TestRecipientStatus(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := model.NewBuilder().
		AddRecipient(model.NewRecipient("1", "123456", model.ServiceSMS)).
		AddRecipient(model.NewRecipient("2", "654321", model.ServiceSMS)).
		AddDeliveryStatus(model.DeliveryStatus{ID: "a", RecipientID: "1", Action: "Send", Status: "Queued", Timestamp: t0}).
		AddDeliveryStatus(model.DeliveryStatus{ID: "b", RecipientID: "1", Action: "Send", Status: "Delivered", Timestamp: t0.Add(time.Second)}).
		Build()
	require.NoError(t, err)

	view := Message(m).(MessageView)
	require.Len(t, view.Recipients, 2)
	assert.Equal(t, Address{Who: "123456", Type: "SMS", Status: "Send: Delivered"}, view.Recipients[0])
	assert.Equal(t, Address{Who: "654321", Type: "SMS", Status: Unknown}, view.Recipients[1])
}

func TestAlertMessage(t *testing.T) {
	m, err := model.NewBuilder().
		WithBody("alert body").
		AddRecipient(model.NewRecipient("", "jhughes", model.ServiceAlert)).
		AsAlert(model.AlertPending, map[string]string{"priority": "high", "ward": "3"}).
		Build()
	require.NoError(t, err)

	view, ok := Message(m).(AlertView)
	require.True(t, ok)
	assert.Equal(t, "Pending", view.Status)
	assert.Equal(t, "alert body", view.Body)
	assert.ElementsMatch(t, []Property{{"priority", "high"}, {"ward", "3"}}, view.Properties)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "Pending", flat["status"])
	assert.Equal(t, "alert body", flat["body"])
	assert.Contains(t, flat, "properties")
}

func TestAlertWithoutPropertiesRendersEmptyArray(t *testing.T) {
	m, err := model.NewBuilder().AsAlert(model.AlertNew, nil).Build()
	require.NoError(t, err)

	data, err := json.Marshal(Message(m))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"properties":[]`)
}

func TestRenderDoesNotMutate(t *testing.T) {
	recipients := []model.Recipient{
		model.NewRecipient("1", "b", model.ServiceSMS),
		model.NewRecipient("2", "a", model.ServiceEmail),
	}
	m := model.Message{Header: model.Header{MessageID: "m", Recipients: recipients}}
	_ = Message(m)
	assert.Equal(t, model.ServiceSMS, m.Header.Recipients[0].ServiceID())
}

func TestConversationAndInfo(t *testing.T) {
	assert.Equal(t, ConversationView{ID: "c1"}, Conversation(model.Conversation{ConversationID: "c1"}))

	info := ConversationInfo(model.ConversationInfo{Conversation: model.Conversation{ConversationID: "c1"}})
	assert.Equal(t, "c1", info.ConversationID)
	assert.NotNil(t, info.Messages)
	assert.Empty(t, info.Messages)

	info = ConversationInfo(model.ConversationInfo{
		Conversation: model.Conversation{ConversationID: "c2"},
		Messages:     []string{"m1", "m2"},
	})
	assert.Equal(t, []string{"m1", "m2"}, info.Messages)
}

func TestException(t *testing.T) {
	e := model.ProcessingException{
		ExceptionID:         "e1",
		GeneratingMessageID: "m1",
		Fault:               "Unknown User: bob",
		TypeSpecificContext: "ctx",
		IssuingService:      "SMS",
		Type:                model.ExceptionUnknownUser,
	}
	assert.Equal(t, ExceptionView{
		ExceptionID: "e1",
		MessageID:   "m1",
		Fault:       "Unknown User: bob",
		Context:     "ctx",
		ServiceID:   "SMS",
		Type:        "UnknownUser",
	}, Exception(e))
}

func TestStatusAndServiceInfo(t *testing.T) {
	assert.Equal(t, StatusView{Capability: "SMS", Available: true, Supported: false},
		Status(model.Status{Capability: "SMS", Available: true}))
	assert.Equal(t, ServiceInfoView{Name: "EMAIL"}, ServiceInfo(model.ServiceInfo{Name: "EMAIL"}))
}

func TestExceptionNotice(t *testing.T) {
	m, err := model.NewBuilder().WithMessageID("m1").Build()
	require.NoError(t, err)

	ev := ExceptionNotice(m,
		model.NewPhysicalAddress(model.ServiceSMS, "1"),
		model.PhysicalAddress{},
		model.ProcessingException{ExceptionID: "e", Type: model.ExceptionDelivery},
		"gw-1")
	assert.Equal(t, "gw-1", ev.ServerID)
	assert.Equal(t, "Delivery", ev.Exception.Type)
	assert.Equal(t, "1", ev.Sender.Who)
	assert.Equal(t, Unknown, ev.Receiver.Status)
}
