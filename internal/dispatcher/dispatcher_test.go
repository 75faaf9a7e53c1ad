package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ucs-gateway/internal/body"
	"github.com/example/ucs-gateway/internal/gateway"
	"github.com/example/ucs-gateway/internal/model"
	"github.com/example/ucs-gateway/internal/ucs"
)

func TestTopicForChannel(t *testing.T) {
	cases := map[string]string{
		"EMAIL":         "dispatch.email",
		"SMS":           "dispatch.sms",
		"CHAT":          "dispatch.chat",
		"TEXT-TO-VOICE": "dispatch.voice",
		"ALERT":         "dispatch.alert",
		"sms":           "",
		"unknown":       "",
	}

	for input, expected := range cases {
		if got := topicForChannel(input); got != expected {
			t.Fatalf("topicForChannel(%s)=%s, expected %s", input, got, expected)
		}
	}
}

type topicWriters struct {
	mu     sync.Mutex
	topics map[string][]kafka.Message
}

type topicWriter struct {
	parent *topicWriters
	topic  string
}

func (w topicWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.parent.mu.Lock()
	defer w.parent.mu.Unlock()
	w.parent.topics[w.topic] = append(w.parent.topics[w.topic], msgs...)
	return nil
}

func (topicWriter) Close() error { return nil }

func (w *topicWriters) factory(topic string) ucs.Writer {
	return topicWriter{parent: w, topic: topic}
}

func (w *topicWriters) get(topic string) []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.topics[topic]...)
}

type eventLog struct {
	mu     sync.Mutex
	events []ucs.Event
}

func (l *eventLog) PublishEvent(_ context.Context, ev ucs.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) all() []ucs.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ucs.Event(nil), l.events...)
}

type chanReader struct {
	in        chan kafka.Message
	mu        sync.Mutex
	committed int
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.in:
		return m, nil
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed += len(msgs)
	return nil
}

func (r *chanReader) Close() error { return nil }

func (r *chanReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

func newDispatcher(w *topicWriters, events *eventLog, r *chanReader) *Dispatcher {
	return &Dispatcher{
		ReaderFactory: func() ucs.Reader { return r },
		WriterFactory: w.factory,
		Events:        events,
		DLQTopic:      "dlq.ucs",
		ServerID:      "dispatcher-1",
		Logger:        zerolog.Nop(),
	}
}

func decodeDelivery(t *testing.T, m kafka.Message) Delivery {
	t.Helper()
	var d Delivery
	require.NoError(t, json.Unmarshal(m.Value, &d))
	return d
}

func TestDispatchRoutesPerRecipient(t *testing.T) {
	w := &topicWriters{topics: map[string][]kafka.Message{}}
	events := &eventLog{}
	d := newDispatcher(w, events, nil)

	msg, err := model.NewBuilder().
		WithSubject("s").
		WithBody("default body").
		AddPart(model.Part{Identifier: body.RecipientTag("1"), Content: "text for 1"}).
		AddPart(model.Part{Identifier: body.ServiceTag(model.ServiceEmail), Content: "<p>email</p>", MimeType: "text/html"}).
		AddRecipient(model.NewRecipient("1", "123456", model.ServiceSMS)).
		AddRecipient(model.NewRecipient("2", "654321", model.ServiceSMS)).
		AddRecipient(model.NewRecipient("3", "a@example.org", model.ServiceEmail)).
		Build()
	require.NoError(t, err)

	require.NoError(t, d.dispatch(context.Background(), msg))

	sms := w.get("dispatch.sms")
	require.Len(t, sms, 2)
	first := decodeDelivery(t, sms[0])
	assert.Equal(t, "text for 1", first.Content)
	assert.Equal(t, "123456", first.Address)
	assert.Equal(t, msg.ID()+":1", string(sms[0].Key))
	assert.Equal(t, "default body", decodeDelivery(t, sms[1]).Content)

	email := w.get("dispatch.email")
	require.Len(t, email, 1)
	assert.Equal(t, "text/html", decodeDelivery(t, email[0]).MimeType)

	assert.Empty(t, w.get("dlq.ucs"))
	assert.Empty(t, events.all())
}

func TestDispatchRejects(t *testing.T) {
	w := &topicWriters{topics: map[string][]kafka.Message{}}
	events := &eventLog{}
	d := newDispatcher(w, events, nil)

	msg, err := model.NewBuilder().
		AddPart(model.Part{Identifier: body.ServiceTag(model.ServiceSMS), Content: "sms only"}).
		AddRecipient(model.NewRecipient("1", "123", model.ServiceSMS)).
		AddRecipient(model.NewRecipient("2", "x@example.org", model.ServiceEmail)).
		AddRecipient(model.NewRecipient("3", "pager-7", "PAGER")).
		Build()
	require.NoError(t, err)

	require.NoError(t, d.dispatch(context.Background(), msg))

	assert.Len(t, w.get("dispatch.sms"), 1)
	assert.Empty(t, w.get("dispatch.email"))
	assert.Len(t, w.get("dlq.ucs"), 2)

	evs := events.all()
	require.Len(t, evs, 2)
	assert.Equal(t, gateway.EventException, evs[0].Kind)
	assert.Equal(t, model.ExceptionInvalidMessage, evs[0].Exception.Type)
	assert.Equal(t, "2", evs[0].Exception.TypeSpecificContext)
	assert.Equal(t, model.ExceptionUnknownService, evs[1].Exception.Type)
	assert.Equal(t, "dispatcher-1", evs[1].ServerID)
	assert.Equal(t, model.NewPhysicalAddress("PAGER", "pager-7"), evs[1].Receiver)

	var dl DeadLetter
	require.NoError(t, json.Unmarshal(w.get("dlq.ucs")[1].Value, &dl))
	require.NotNil(t, dl.Delivery)
	assert.Equal(t, "3", dl.Delivery.RecipientID)
}

func TestRunCommitsUndecodable(t *testing.T) {
	w := &topicWriters{topics: map[string][]kafka.Message{}}
	r := &chanReader{in: make(chan kafka.Message, 4)}
	d := newDispatcher(w, &eventLog{}, r)

	msg, err := model.NewBuilder().WithBody("hi").AddRecipient(model.NewRecipient("1", "123", model.ServiceSMS)).Build()
	require.NoError(t, err)
	raw, err := model.Marshal(msg)
	require.NoError(t, err)

	r.in <- kafka.Message{Key: []byte("bad"), Value: []byte("{")}
	r.in <- kafka.Message{Key: []byte(msg.ID()), Value: raw}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return r.commits() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, w.get("dlq.ucs"), 1)
	assert.Len(t, w.get("dispatch.sms"), 1)

	cancel()
	require.NoError(t, <-done)
}
