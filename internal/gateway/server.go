package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const defaultWriteTimeout = 10 * time.Second

// Server exposes the gateway over websocket. Each connection is served by its own
// goroutine that handles frames one at a time, so responses on a session keep
// the order of its requests.
type Server struct {
	Gateway    *Gateway
	Path       string
	FrameRate  float64
	FrameBurst int
	Logger     zerolog.Logger

	upgrader websocket.Upgrader
}

func (s *Server) Router() http.Handler {
	path := s.Path
	if path == "" {
		path = "/ucs"
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	r := chi.NewRouter()
	r.Get(path, s.serveWS)
	r.Get("/healthz", s.health)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.Gateway.Sessions().Len(),
	})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newWSConn(uuid.NewString(), ws)
	sessions := s.Gateway.Sessions()
	sessions.Add(conn)
	logger := s.Logger.With().Str("session_id", conn.ID()).Logger()
	logger.Info().Str("remote", r.RemoteAddr).Msg("session opened")

	defer func() {
		sessions.Remove(conn.ID())
		conn.close()
		logger.Info().Msg("session closed")
	}()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if s.FrameRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.FrameRate), max(s.FrameBurst, 1))
	}

	ctx := r.Context()
	for {
		msgType, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		resp := s.Gateway.Handle(ctx, frame)
		payload, err := json.Marshal(resp)
		if err != nil {
			logger.Error().Err(err).Msg("marshal response")
			payload, _ = json.Marshal(Response{CallbackID: resp.CallbackID, Error: "response could not be encoded"})
		}
		if err := conn.Send(ctx, payload); err != nil {
			logger.Warn().Err(err).Msg("response write failed")
			return
		}
	}
}

type wsConn struct {
	id   string
	ws   *websocket.Conn
	mu   sync.Mutex
	open atomic.Bool
}

func newWSConn(id string, ws *websocket.Conn) *wsConn {
	c := &wsConn{id: id, ws: ws}
	c.open.Store(true)
	return c
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Open() bool { return c.open.Load() }

// Send serialises writes; gorilla connections allow a single concurrent writer.
func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	if !c.Open() {
		return ErrSessionClosed
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *wsConn) close() {
	if !c.open.CompareAndSwap(true, false) {
		return
	}
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	_ = c.ws.Close()
}

// CloseAll closes every registered websocket session, e.g. on shutdown.
func (s *Server) CloseAll() {
	for _, c := range s.Gateway.Sessions().Snapshot() {
		if wc, ok := c.(*wsConn); ok {
			wc.close()
		}
	}
}
