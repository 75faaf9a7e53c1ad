package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/ucs-gateway/internal/common"
	"github.com/example/ucs-gateway/internal/model"
	"github.com/example/ucs-gateway/internal/ucs"
)

// Publisher is satisfied by *ucs.Publisher.
type Publisher interface {
	PublishEvent(ctx context.Context, ev ucs.Event) error
}

// Server turns provider delivery callbacks into RESPONSE events.
type Server struct {
	Events   Publisher
	ServerID string
	Logger   zerolog.Logger
	Now      func() time.Time
}

var (
	eventCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total webhook events processed",
	}, []string{"provider", "status"})
)

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/providers/{provider}/events", s.handle)
	return r
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("webhook").Start(r.Context(), "ingest-webhook")
	defer span.End()

	provider := chi.URLParam(r, "provider")
	if provider == "" {
		s.respondErr(ctx, w, http.StatusBadRequest, errors.New("provider path param required"))
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondErr(ctx, w, http.StatusBadRequest, err)
		return
	}

	messageID, status, err := s.normalize(provider, payload)
	if err != nil {
		s.respondErr(ctx, w, http.StatusBadRequest, err)
		return
	}
	span.SetAttributes(
		attribute.String("message.id", messageID),
		attribute.String("recipient.id", status.RecipientID),
	)

	if err := s.Events.PublishEvent(ctx, ucs.ResponseEvent(messageID, status, s.ServerID)); err != nil {
		s.respondErr(ctx, w, http.StatusInternalServerError, err)
		return
	}

	eventCounter.WithLabelValues(provider, "ok").Inc()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) normalize(provider string, payload map[string]any) (string, model.DeliveryStatus, error) {
	idKey := "message_id"
	switch provider {
	case "sms", "chat", "voice":
	case "email":
		// SendGrid style callbacks carry the id under sg_message_id.
		if _, ok := payload[idKey]; !ok {
			idKey = "sg_message_id"
		}
	default:
		return "", model.DeliveryStatus{}, errors.New("unsupported provider")
	}

	messageID, _ := payload[idKey].(string)
	if messageID == "" {
		return "", model.DeliveryStatus{}, fmt.Errorf("%s %s missing", provider, idKey)
	}
	recipientID, _ := payload["recipient_id"].(string)
	if recipientID == "" {
		return "", model.DeliveryStatus{}, fmt.Errorf("%s recipient_id missing", provider)
	}
	event, _ := payload["event"].(string)
	if event == "" {
		return "", model.DeliveryStatus{}, fmt.Errorf("%s event missing", provider)
	}

	occurred := s.now()
	if raw, ok := payload["timestamp"].(string); ok && raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return "", model.DeliveryStatus{}, fmt.Errorf("%s timestamp: %w", provider, err)
		}
		occurred = t.UTC()
	}
	statusID, _ := payload["id"].(string)
	if statusID == "" {
		statusID = uuid.NewString()
	}

	return messageID, model.DeliveryStatus{
		ID:          statusID,
		RecipientID: recipientID,
		Action:      provider,
		Status:      event,
		Timestamp:   occurred,
	}, nil
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Server) respondErr(ctx context.Context, w http.ResponseWriter, status int, err error) {
	logger := common.WithContext(ctx, s.Logger)
	logger.Error().Err(err).Int("status", status).Msg("webhook handler error")
	eventCounter.WithLabelValues("unknown", "error").Inc()
	http.Error(w, err.Error(), status)
}
