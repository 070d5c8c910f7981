// Package gatewayhttp exposes the broker over HTTP/WebSocket: each
// connection gets its own Session, bridged to the upstream connector
// resolved by a shared Dispatcher (spec.md §4.2, §6.2).
package gatewayhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"filippo.io/age"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/ozzie/internal/broker"
	"github.com/dohr-michael/ozzie/internal/config"
	"github.com/dohr-michael/ozzie/internal/scaffolding"
	"github.com/dohr-michael/ozzie/internal/transport"
	"github.com/dohr-michael/ozzie/internal/upstream"
)

// Server is the broker's HTTP/WS front door.
type Server struct {
	httpServer *http.Server
	dispatcher *upstream.Dispatcher
	cfg        *config.Config
	recipient  *age.X25519Recipient
}

// NewServer wires chi routes for WebSocket session upgrade and health.
// recipient, if non-nil, seals spelling-sensitive questionnaire answers for
// every session this server hands off (internal/secrets).
func NewServer(cfg *config.Config, dispatcher *upstream.Dispatcher, recipient *age.X25519Recipient) *Server {
	s := &Server{
		dispatcher: dispatcher,
		cfg:        cfg,
		recipient:  recipient,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/session", s.handleSession)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler: r,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("broker listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleSession upgrades the connection, builds a fresh Session bound to
// this connection's user port, and runs the handshake choreography.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	userPort := transport.NewServerPort(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})

	ctx := r.Context()
	sc, err := scaffolding.New(ctx, scaffolding.Config{
		Type:                   s.cfg.Agent.Type,
		InitialMessageTemplate: s.cfg.Agent.InitialMessageTemplate,
		QuestionnaireTemplate:  s.cfg.Agent.QuestionnaireTemplate,
		Questionnaire:          s.cfg.Agent.Questionnaire,
		QuestionnaireDir:       s.cfg.Agent.QuestionnaireDir,
		QuestionnaireFile:      s.cfg.Agent.QuestionnaireFile,
		Tools:                  s.cfg.Agent.Tools,
		MCPServers:             toScaffoldingServers(s.cfg.Agent.MCPServers),
		Recipient:              s.recipient,
	})
	if err != nil {
		slog.Error("broker: build scaffolding", "error", err)
		http.Error(w, "scaffolding error", http.StatusInternalServerError)
		return
	}

	var llmRaw map[string]any
	if data, err := json.Marshal(s.cfg.LLM); err == nil {
		_ = json.Unmarshal(data, &llmRaw)
	}
	var fullRaw map[string]any
	if data, err := json.Marshal(s.cfg); err == nil {
		_ = json.Unmarshal(data, &fullRaw)
	}

	sess := broker.New(s.dispatcher,
		broker.WithUserPort(userPort),
		broker.WithScaffolding(sc),
		broker.WithConfig(broker.Config{
			Raw:            fullRaw,
			LLM:            llmRaw,
			ReceiveTimeout: 5 * time.Second,
		}),
	)

	if err := sess.Initialize(ctx); err != nil {
		slog.Error("broker: session initialize failed", "error", err, "session_id", sess.ID())
		return
	}

	slog.Info("broker: session active", "session_id", sess.ID())
}

func toScaffoldingServers(cfgServers []config.MCPServerConfig) []scaffolding.MCPServerConfig {
	out := make([]scaffolding.MCPServerConfig, 0, len(cfgServers))
	for _, c := range cfgServers {
		out = append(out, scaffolding.MCPServerConfig{Name: c.Name, Command: c.Command, Args: c.Args})
	}
	return out
}
