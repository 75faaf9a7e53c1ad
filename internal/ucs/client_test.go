package ucs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ucs-gateway/internal/directory"
	"github.com/example/ucs-gateway/internal/gateway"
	"github.com/example/ucs-gateway/internal/model"
	"github.com/example/ucs-gateway/internal/store"
)

type clientFixture struct {
	client   *Client
	store    *store.Memory
	outbound *fakeWriter
	events   *fakeWriter
}

func newClientFixture(t *testing.T, dir directory.Resolver) clientFixture {
	t.Helper()
	if dir == nil {
		dir = directory.NewMock()
	}
	f := clientFixture{store: store.NewMemory(), outbound: &fakeWriter{}, events: &fakeWriter{}}
	f.client = &Client{
		Store:     f.store,
		Directory: dir,
		Outbound:  &Publisher{Writer: f.outbound, MaxElapsed: time.Second},
		Events:    &Publisher{Writer: f.events, MaxElapsed: time.Second},
		ServerID:  "test-server",
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) },
	}
	return f
}

func buildMessage(t *testing.T, recipients ...model.Recipient) model.Message {
	t.Helper()
	b := model.NewBuilder().
		WithConversationID("conv-1").
		WithSubject("hello").
		WithSender(model.NewPhysicalAddress(model.ServiceEmail, "sender@example.org")).
		WithBody("body")
	for _, r := range recipients {
		b.AddRecipient(r)
	}
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func outboundMessage(t *testing.T, w *fakeWriter, i int) model.Message {
	t.Helper()
	recs := w.records()
	require.Greater(t, len(recs), i)
	m, err := model.Unmarshal(recs[i].Value)
	require.NoError(t, err)
	return m
}

func TestSendMessageResolvesAddresses(t *testing.T) {
	f := newClientFixture(t, nil)
	ctx := context.Background()

	msg := buildMessage(t,
		model.NewRecipient("1", "eafry", model.ServiceSMS),
		model.NewRecipient("2", "ealiverti", model.ServiceTextToVoice),
	)
	sent, err := f.client.SendMessage(ctx, msg)
	require.NoError(t, err)

	assert.Equal(t, "18583957317", sent.Header.Recipients[0].Address())
	assert.Equal(t, "+4981614923621", sent.Header.Recipients[1].Address())
	assert.Empty(t, sent.Header.DeliveryStatuses)

	out := outboundMessage(t, f.outbound, 0)
	assert.Equal(t, msg.ID(), out.ID())
	require.Len(t, out.Header.Recipients, 2)
	assert.Equal(t, "18583957317", out.Header.Recipients[0].Address())
	assert.Equal(t, msg.ID(), string(f.outbound.records()[0].Key))

	stored, err := f.store.Message(ctx, msg.ID())
	require.NoError(t, err)
	assert.Equal(t, "+4981614923621", stored.Header.Recipients[1].Address())

	assert.Empty(t, f.events.records())
}

func TestSendMessageUnknownUser(t *testing.T) {
	f := newClientFixture(t, nil)
	ctx := context.Background()

	msg := buildMessage(t,
		model.NewRecipient("1", "nobody", model.ServiceSMS),
		model.NewRecipient("2", "eafry", model.ServiceEmail),
	)
	sent, err := f.client.SendMessage(ctx, msg)
	require.NoError(t, err)

	status, ok := sent.CurrentStatus("1")
	require.True(t, ok)
	assert.Equal(t, "Unknown User: nobody", status.Status)
	assert.Equal(t, resolveAction, status.Action)

	out := outboundMessage(t, f.outbound, 0)
	require.Len(t, out.Header.Recipients, 1)
	assert.Equal(t, "eafry@cognitivemedicine.com", out.Header.Recipients[0].Address())

	evs := f.events.events()
	require.Len(t, evs, 1)
	assert.Equal(t, gateway.EventException, evs[0].Kind)
	assert.Equal(t, model.ExceptionUnknownUser, evs[0].Exception.Type)
	assert.Equal(t, "nobody", evs[0].Exception.TypeSpecificContext)
	assert.Equal(t, msg.ID(), evs[0].Exception.GeneratingMessageID)
	assert.Equal(t, model.NewPhysicalAddress(model.ServiceSMS, "nobody"), evs[0].Receiver)
	assert.Equal(t, "test-server", evs[0].ServerID)
}

func TestSendMessageUnknownService(t *testing.T) {
	dir := directory.NewStatic(directory.ContactInfo{
		Name: "frank",
		AddressesByType: map[string]model.PhysicalAddress{
			model.ServiceEmail: model.NewPhysicalAddress(model.ServiceEmail, "frank@example.org"),
		},
	})
	f := newClientFixture(t, dir)

	_, err := f.client.SendMessage(context.Background(), buildMessage(t, model.NewRecipient("7", "frank", model.ServiceChat)))
	require.NoError(t, err)

	assert.Empty(t, f.outbound.records(), "nothing deliverable")
	evs := f.events.events()
	require.Len(t, evs, 1)
	assert.Equal(t, model.ExceptionUnknownService, evs[0].Exception.Type)
	assert.Equal(t, "7", evs[0].Exception.TypeSpecificContext)
	assert.Equal(t, model.ServiceChat, evs[0].Exception.IssuingService)
}

func TestSendMessageGroupChatSkipsDirectory(t *testing.T) {
	dir := directory.NewRotating()
	f := newClientFixture(t, dir)

	_, err := f.client.SendMessage(context.Background(), buildMessage(t, model.NewRecipient("1", "GROUP:oncall", model.ServiceChat)))
	require.NoError(t, err)

	out := outboundMessage(t, f.outbound, 0)
	assert.Equal(t, "GROUP:oncall", out.Header.Recipients[0].Address())
	assert.Equal(t, 0, dir.Calls("GROUP:oncall"))
}

func TestSendMessageConsultsDirectoryEveryTime(t *testing.T) {
	dir := directory.NewRotating()
	dir.Add(
		directory.ContactInfo{Name: "gina", AddressesByType: map[string]model.PhysicalAddress{model.ServiceSMS: model.NewPhysicalAddress(model.ServiceSMS, "111")}},
		directory.ContactInfo{Name: "gina", AddressesByType: map[string]model.PhysicalAddress{model.ServiceSMS: model.NewPhysicalAddress(model.ServiceSMS, "222")}},
	)
	f := newClientFixture(t, dir)
	ctx := context.Background()

	first, err := f.client.SendMessage(ctx, buildMessage(t, model.NewRecipient("1", "gina", model.ServiceSMS)))
	require.NoError(t, err)
	second, err := f.client.SendMessage(ctx, buildMessage(t, model.NewRecipient("1", "gina", model.ServiceSMS)))
	require.NoError(t, err)

	assert.Equal(t, "111", first.Header.Recipients[0].Address())
	assert.Equal(t, "222", second.Header.Recipients[0].Address())
	assert.Equal(t, 2, dir.Calls("gina"))
}

type failingDirectory struct{}

func (failingDirectory) ResolveUserContactInfo(context.Context, string) (directory.ContactInfo, error) {
	return directory.ContactInfo{}, errors.New("directory down")
}

func TestSendMessageDirectoryFailure(t *testing.T) {
	f := newClientFixture(t, failingDirectory{})
	msg := buildMessage(t, model.NewRecipient("1", "eafry", model.ServiceSMS))

	_, err := f.client.SendMessage(context.Background(), msg)
	require.Error(t, err)

	_, err = f.store.Message(context.Background(), msg.ID())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSendMessageRejectsInvalid(t *testing.T) {
	f := newClientFixture(t, nil)
	_, err := f.client.SendMessage(context.Background(), model.Message{})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSendMessageRetriesPublish(t *testing.T) {
	f := newClientFixture(t, nil)
	f.outbound.failures = 1

	_, err := f.client.SendMessage(context.Background(), buildMessage(t, model.NewRecipient("1", "eafry", model.ServiceSMS)))
	require.NoError(t, err)
	assert.Len(t, f.outbound.records(), 1)
}

func TestSendMessageMarksUnsentOnPublishFailure(t *testing.T) {
	ctx := context.Background()
	f := newClientFixture(t, nil)
	f.client.Outbound.MaxElapsed = 50 * time.Millisecond
	f.outbound.failures = 1000
	msg := buildMessage(t, model.NewRecipient("1", "eafry", model.ServiceSMS))

	_, err := f.client.SendMessage(ctx, msg)
	require.Error(t, err)

	stored, err := f.store.Message(ctx, msg.ID())
	require.NoError(t, err)
	status, ok := stored.CurrentStatus("1")
	require.True(t, ok)
	assert.Equal(t, deliveryAction, status.Action)
	assert.Contains(t, status.Status, "not sent")
}

func sendAlert(t *testing.T, f clientFixture, status model.AlertStatus) model.Message {
	t.Helper()
	m, err := model.NewBuilder().
		WithSubject("alert").
		WithBody("patient alarm").
		AddRecipient(model.NewRecipient("", "eafry", model.ServiceAlert)).
		AsAlert(status, map[string]string{"priority": "high"}).
		Build()
	require.NoError(t, err)
	sent, err := f.client.SendMessage(context.Background(), m)
	require.NoError(t, err)
	return sent
}

func TestSendAlertPublishesAlertNew(t *testing.T) {
	f := newClientFixture(t, nil)
	sent := sendAlert(t, f, model.AlertNew)

	assert.Equal(t, "eafry", sent.Header.Recipients[0].Address())
	evs := f.events.events()
	require.Len(t, evs, 1)
	assert.Equal(t, gateway.EventAlertNew, evs[0].Kind)
	assert.Equal(t, sent.ID(), evs[0].Message.ID())
	assert.Equal(t, model.AlertNew, evs[0].Message.Alert.Status)
}

func TestCancelMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("pending alert is retracted", func(t *testing.T) {
		f := newClientFixture(t, nil)
		sent := sendAlert(t, f, model.AlertPending)

		require.NoError(t, f.client.CancelMessage(ctx, sent.ID()))
		stored, err := f.store.Message(ctx, sent.ID())
		require.NoError(t, err)
		assert.Equal(t, model.AlertRetracted, stored.Alert.Status)

		evs := f.events.events()
		require.Len(t, evs, 2)
		assert.Equal(t, gateway.EventAlertCanceled, evs[1].Kind)

		require.NoError(t, f.client.CancelMessage(ctx, sent.ID()))
		assert.Len(t, f.events.events(), 2, "second cancel is a no-op")
	})

	t.Run("acknowledged alert cannot be cancelled", func(t *testing.T) {
		f := newClientFixture(t, nil)
		sent := sendAlert(t, f, model.AlertAcknowledged)
		err := f.client.CancelMessage(ctx, sent.ID())
		require.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("plain message", func(t *testing.T) {
		f := newClientFixture(t, nil)
		sent, err := f.client.SendMessage(ctx, buildMessage(t, model.NewRecipient("1", "eafry", model.ServiceSMS)))
		require.NoError(t, err)
		require.ErrorIs(t, f.client.CancelMessage(ctx, sent.ID()), ErrNotAlert)
	})

	t.Run("unknown message", func(t *testing.T) {
		f := newClientFixture(t, nil)
		require.ErrorIs(t, f.client.CancelMessage(ctx, "missing"), store.ErrNotFound)
	})
}

func TestUpdateAlert(t *testing.T) {
	ctx := context.Background()
	f := newClientFixture(t, nil)
	sent := sendAlert(t, f, model.AlertNew)

	updated, err := f.client.UpdateAlert(ctx, sent.ID(), model.AlertAcknowledged)
	require.NoError(t, err)
	assert.Equal(t, model.AlertAcknowledged, updated.Alert.Status)

	evs := f.events.events()
	require.Len(t, evs, 2)
	assert.Equal(t, gateway.EventAlertUpdated, evs[1].Kind)
	assert.Equal(t, model.AlertAcknowledged, evs[1].Message.Alert.Status)

	_, err = f.client.UpdateAlert(ctx, sent.ID(), model.AlertExpired)
	require.NoError(t, err)
	_, err = f.client.UpdateAlert(ctx, sent.ID(), model.AlertNew)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestMessagesAndSummaries(t *testing.T) {
	ctx := context.Background()
	f := newClientFixture(t, nil)
	plain, err := f.client.SendMessage(ctx, buildMessage(t, model.NewRecipient("1", "eafry", model.ServiceSMS)))
	require.NoError(t, err)
	alert := sendAlert(t, f, model.AlertNew)

	all, err := f.client.Messages(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	kind := model.KindAlert
	alerts, err := f.client.Messages(ctx, &kind)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.ID(), alerts[0].ID())

	summaries, err := f.client.QueryMessages(ctx, nil)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, plain.ID(), summaries[0].ID())
	assert.Equal(t, "hello", summaries[0].Parts[0].Content)
	assert.Equal(t, model.KindSimple, summaries[1].Kind)
	assert.Nil(t, summaries[1].Alert)
	assert.Equal(t, "alert", summaries[1].Parts[0].Content)
}

func TestStatusAndChannels(t *testing.T) {
	ctx := context.Background()
	f := newClientFixture(t, nil)

	channels := f.client.DiscoverChannels(ctx)
	require.Len(t, channels, len(DefaultChannels))
	assert.Equal(t, model.ServiceInfo{Name: model.ServiceSMS}, channels[0])

	for _, s := range f.client.Status(ctx) {
		assert.True(t, s.Available)
		assert.True(t, s.Supported)
	}

	f.client.Probe = func(context.Context) error { return errors.New("no brokers") }
	f.client.Channels = []string{model.ServiceSMS}
	statuses := f.client.Status(ctx)
	require.Len(t, statuses, 1)
	assert.Equal(t, model.Status{Capability: model.ServiceSMS, Available: false, Supported: true}, statuses[0])
}

func TestConversations(t *testing.T) {
	ctx := context.Background()
	f := newClientFixture(t, nil)

	c, err := f.client.CreateConversation(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ConversationID)

	_, err = f.client.SendMessage(ctx, buildMessage(t, model.NewRecipient("1", "eafry", model.ServiceSMS)))
	require.NoError(t, err)

	convs, err := f.client.Conversations(ctx)
	require.NoError(t, err)
	assert.Len(t, convs, 2)

	info, err := f.client.Conversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Len(t, info.Messages, 1)
}

func TestEventValidation(t *testing.T) {
	_, err := DecodeEvent([]byte(`{"kind":"BOGUS"}`))
	require.Error(t, err)
	_, err = DecodeEvent([]byte(`{"kind":"RESPONSE","messageId":"m"}`))
	require.Error(t, err)
	_, err = DecodeEvent([]byte(`{"kind":"ALERT_NEW"}`))
	require.Error(t, err)
	_, err = DecodeEvent([]byte(`not json`))
	require.Error(t, err)

	ev := ResponseEvent("m1", model.DeliveryStatus{RecipientID: "1", Status: "Delivered"}, "srv")
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	decoded, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "m1", decoded.Key())
}
