// Monitor API server.
// Serves a health check, dispatch of raw event envelopes, and a WebSocket
// stream of dispatch outcomes and send results.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/cardbot/pkg/bus"
	"github.com/sipeed/cardbot/pkg/config"
	"github.com/sipeed/cardbot/pkg/events"
	"github.com/sipeed/cardbot/pkg/logger"
	"github.com/sipeed/cardbot/pkg/profiles"
	"github.com/sipeed/cardbot/pkg/router"
)

const maxEnvelopeBytes = 1 << 20

// Dispatcher is the router as seen by the monitor.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) router.Outcome
}

// Server is the HTTP monitor server.
type Server struct {
	config      config.MonitorConfig
	dispatcher  Dispatcher
	profile     *profiles.Profile
	messageBus  *bus.MessageBus
	wsHub       *WSHub
	eventBridge *EventBridge
	startTime   time.Time
	server      *http.Server
	mu          sync.Mutex
}

// NewServer creates a monitor server. profile is informational only.
func NewServer(cfg config.MonitorConfig, d Dispatcher, msgBus *bus.MessageBus, profile *profiles.Profile) *Server {
	s := &Server{
		config:     cfg,
		dispatcher: d,
		profile:    profile,
		messageBus: msgBus,
		startTime:  time.Now(),
	}
	s.wsHub = NewWSHub(s.status)
	s.eventBridge = NewEventBridge(msgBus, s.wsHub)
	return s
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/profile", s.handleProfile)
	mux.HandleFunc("/api/events", s.handleEvent)
	mux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)
	return corsMiddleware(authMiddleware(s.config.APIKey, mux))
}

// Start begins listening on the configured address. It returns once the
// listener goroutine is running.
func (s *Server) Start(ctx context.Context) error {
	if strings.TrimSpace(s.config.Addr) == "" {
		return errors.New("monitor address not configured")
	}

	s.mu.Lock()
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	logger.InfoCF("api", "Monitor server starting", map[string]interface{}{
		"addr": s.config.Addr,
	})

	go s.wsHub.Run(ctx)
	s.eventBridge.Run(ctx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is a trusted localhost address.
func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) status() map[string]interface{} {
	uptime := time.Since(s.startTime)
	st := map[string]interface{}{
		"uptime_seconds": int(uptime.Seconds()),
		"uptime_human":   formatDuration(uptime),
		"ws_clients":     s.wsHub.ClientCount(),
	}
	if s.profile != nil {
		st["family"] = s.profile.Name
		st["kinds"] = s.profile.Kinds()
	}
	if s.messageBus != nil {
		st["outbound_pending"] = s.messageBus.Pending()
		st["outbound_dropped"] = s.messageBus.Dropped()
	}
	return st
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if s.profile == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no profile loaded"})
		return
	}
	writeJSON(w, http.StatusOK, s.profile)
}

// POST /api/events — dispatch one raw envelope as if the transport had
// delivered it:
//
//	{"kind": "card.action.trigger", "event": {...}}
//
// The response is the dispatch outcome; for card actions it carries the
// trigger response in its wire shape.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read body"})
		return
	}
	ev, err := events.DecodeEnvelope(body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, events.ErrUnknownKind) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	outcome := s.dispatcher.Dispatch(r.Context(), ev)
	logger.InfoCF("api", "Envelope dispatched", map[string]interface{}{
		"event_id": ev.ID(),
		"kind":     ev.Kind().String(),
		"outcome":  string(outcome.Kind),
	})
	writeJSON(w, http.StatusOK, outcome)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
