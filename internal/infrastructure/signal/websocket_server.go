package signal

import (
	"encoding/json"
	"net/http"
	"time"

	"camsync/internal/core/domain"
	"camsync/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServerOptions tunes relay connection handling; zero values use defaults.
type ServerOptions struct {
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	MessagesPerSecond float64
	MessageBurst      int
}

// WebSocketServer terminates relay client connections and feeds their
// envelopes into the hub.
type WebSocketServer struct {
	hub    *Hub
	logger *zap.SugaredLogger

	pingInterval      time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	messagesPerSecond float64
	messageBurst      int
}

// NewWebSocketServer creates a relay endpoint backed by hub.
func NewWebSocketServer(hub *Hub, opts ServerOptions, logger *zap.SugaredLogger) *WebSocketServer {
	s := &WebSocketServer{
		hub:               hub,
		logger:            logger,
		pingInterval:      opts.PingInterval,
		readTimeout:       opts.ReadTimeout,
		writeTimeout:      opts.WriteTimeout,
		messagesPerSecond: opts.MessagesPerSecond,
		messageBurst:      opts.MessageBurst,
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 30 * time.Second
	}
	if s.readTimeout <= 0 {
		s.readTimeout = 75 * time.Second
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 10 * time.Second
	}
	if s.messagesPerSecond <= 0 {
		s.messagesPerSecond = 50
	}
	if s.messageBurst <= 0 {
		s.messageBurst = 100
	}
	return s
}

// HandleWebSocket upgrades the request and serves the connection until the
// client disconnects. Query parameters: session_id (required), participant_id
// (optional, generated when absent), label.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := domain.SessionID(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	participantID := domain.ParticipantID(r.URL.Query().Get("participant_id"))
	if participantID == "" {
		participantID = domain.ParticipantID(utils.GenerateParticipantID())
	}
	label := utils.SanitizeLabel(r.URL.Query().Get("label"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	m := domain.Member{ID: participantID, Label: label}
	joined := time.Now()
	s.hub.Join(sessionID, m, conn)
	defer func() {
		s.hub.Leave(sessionID, participantID)
		s.hub.ObserveConnectionDuration(time.Since(joined))
	}()

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	// Per-connection message throttle; bursty signaling (candidate trickle)
	// is allowed, sustained floods are not.
	limiter := rate.NewLimiter(rate.Limit(s.messagesPerSecond), s.messageBurst)

	envChan := make(chan domain.Envelope, 16)
	errChan := make(chan error, 1)

	go func() {
		for {
			var env domain.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				errChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			envChan <- env
		}
	}()

	for {
		select {
		case env := <-envChan:
			if !limiter.Allow() {
				s.logger.Warnw("message rate limit exceeded, envelope dropped",
					"session_id", sessionID, "participant_id", participantID)
				continue
			}
			if env.Type == "" {
				s.logger.Warnw("envelope without type dropped",
					"session_id", sessionID, "participant_id", participantID)
				continue
			}
			// The relay does not trust the client to stamp From correctly.
			env.From = participantID
			s.hub.Broadcast(r.Context(), sessionID, env)

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("ping failed",
					"session_id", sessionID, "participant_id", participantID, "error", err)
				return
			}

		case err := <-errChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read failed",
					"session_id", sessionID, "participant_id", participantID, "error", err)
			}
			return
		}
	}
}

// HealthCheck reports relay liveness and room counts.
func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"sessions":  s.hub.Sessions(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
