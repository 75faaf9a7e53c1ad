package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/ucs-gateway/internal/common"
)

type Gateway struct {
	commands *Commands
	sessions *Sessions
	tracer   trace.Tracer
	logger   zerolog.Logger
}

func New(commands *Commands, logger zerolog.Logger) *Gateway {
	return &Gateway{
		commands: commands,
		sessions: NewSessions(),
		tracer:   otel.Tracer("gateway"),
		logger:   logger,
	}
}

func (g *Gateway) Sessions() *Sessions { return g.sessions }

// Handle runs one inbound frame through parse, Init and Execute. Every failure
// becomes an unsuccessful response; Handle itself never fails.
func (g *Gateway) Handle(ctx context.Context, frame []byte) Response {
	env, err := ParseEnvelope(frame)
	resp := Response{CallbackID: env.CallbackID}
	if err != nil {
		frameCounter.WithLabelValues("invalid", "rejected").Inc()
		g.logFailure(ctx, env, err)
		resp.Error = err.Error()
		return resp
	}

	ctx, span := g.tracer.Start(ctx, "command", trace.WithAttributes(attribute.String("command.type", env.Type)))
	defer span.End()

	start := time.Now()
	result, err := g.dispatch(ctx, env)
	label := env.Type
	if errors.Is(err, ErrUnknownCommand) {
		label = "unknown"
	} else {
		commandLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		frameCounter.WithLabelValues(label, outcome(err)).Inc()
		g.logFailure(ctx, env, err)
		resp.Error = err.Error()
		return resp
	}

	frameCounter.WithLabelValues(label, "ok").Inc()
	resp.Success = true
	resp.Result = result
	return resp
}

func (g *Gateway) dispatch(ctx context.Context, env Envelope) (result any, err error) {
	cmd, ok := g.commands.Lookup(env.Type)
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownCommand, env.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &ExecutionError{Command: env.Type, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := cmd.Init(env); err != nil {
		return nil, &ValidationError{Command: env.Type, Err: err}
	}
	result, err = cmd.Execute(ctx)
	if err != nil {
		return nil, &ExecutionError{Command: env.Type, Err: err}
	}
	if result == nil {
		result = struct{}{}
	}
	return result, nil
}

// Broadcast sends {type, value} to every open session. A failed write is logged
// and skipped; it neither stops delivery to the rest nor unregisters the session.
// The only error returned is a payload that cannot be serialised.
func (g *Gateway) Broadcast(ctx context.Context, kind EventKind, value any) error {
	frame, err := json.Marshal(Event{Type: kind, Value: value})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	broadcastCounter.WithLabelValues(string(kind)).Inc()

	for _, c := range g.sessions.Snapshot() {
		if !c.Open() {
			continue
		}
		if err := c.Send(ctx, frame); err != nil {
			broadcastFailures.Inc()
			terr := &TransportError{SessionID: c.ID(), Err: err}
			logger := common.WithContext(ctx, g.logger)
			logger.Warn().Err(terr).Str("event", string(kind)).Msg("broadcast write failed")
		}
	}
	return nil
}

func (g *Gateway) logFailure(ctx context.Context, env Envelope, err error) {
	logger := common.WithContext(ctx, g.logger)
	logger.Warn().Err(err).Str("type", env.Type).Msg("request failed")
}

func outcome(err error) string {
	var (
		verr *ValidationError
		xerr *ExecutionError
	)
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return "unknown"
	case errors.As(err, &verr):
		return "invalid"
	case errors.As(err, &xerr):
		return "failed"
	default:
		return "error"
	}
}
