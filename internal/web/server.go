// Package web provides the HTTP status, history, live and command surface of
// the tag client gateway.
package web

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sweeney/respiration-monitor/internal/client"
	"github.com/sweeney/respiration-monitor/internal/logic"
	"github.com/sweeney/respiration-monitor/internal/metrics"
	"github.com/sweeney/respiration-monitor/internal/status"
)

// Controller is the session surface the command endpoints drive.
// *client.Manager satisfies it.
type Controller interface {
	Send(cmd logic.Command) error
	Connect(ctx context.Context, peer string) error
	Disconnect() error
}

// Deps are the collaborators of a Server. History, Controller, Hub and
// Metrics may be nil; their routes then answer 404 or 503.
type Deps struct {
	Tracker    *status.Tracker
	History    *client.History
	Controller Controller
	Hub        *Hub
	Metrics    *metrics.Metrics
}

// Server serves the gateway over HTTP.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	deps       Deps
}

// New creates a Server listening on addr.
func New(addr string, deps Deps) *Server {
	s := &Server{router: chi.NewRouter(), deps: deps}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/history.json", s.handleHistory)
	if s.deps.Hub != nil {
		r.Get("/ws", s.handleWS)
	}
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/command", func(r chi.Router) {
		r.Post("/volume/{level}", s.handleVolume)
		r.Post("/{name}", s.handleCommand)
	})
	r.Post("/session/connect", s.handleConnect)
	r.Post("/session/disconnect", s.handleDisconnect)
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.deps.Hub != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, formatHistory(s.deps.History.Readings()))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	greeting := FormatSessionMessage(snap.Session.State, snap.Session.Peer, snap.Session.Attempts)
	s.deps.Hub.ServeWS(w, r, greeting)
}

// commandNames maps URL names to argument-free commands.
var commandNames = map[string]logic.Command{
	"mute":         logic.Mute(true),
	"unmute":       logic.Mute(false),
	"power-off":    logic.PowerOff(),
	"sleep":        {Kind: logic.CmdForceSleep},
	"request":      {Kind: logic.CmdRequestData},
	"reset-alerts": {Kind: logic.CmdResetAlerts},
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cmd, ok := commandNames[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, CommandResult{Command: name, Error: "unknown command"})
		return
	}
	s.send(w, name, cmd)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "level")
	level, err := strconv.Atoi(raw)
	if err != nil || level < 0 || level > 100 {
		writeJSON(w, http.StatusBadRequest, CommandResult{Command: "volume", Error: "level must be 0-100"})
		return
	}
	s.send(w, "volume", logic.SetVolume(uint8(level)))
}

func (s *Server) send(w http.ResponseWriter, name string, cmd logic.Command) {
	if s.deps.Controller == nil {
		writeJSON(w, http.StatusServiceUnavailable, CommandResult{Command: name, Error: "no session"})
		return
	}
	err := s.deps.Controller.Send(cmd)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveCommand(cmd.Kind, err)
	}
	if err != nil {
		log.Printf("web: command %s failed: %v", name, err)
		writeJSON(w, errorStatus(err), CommandResult{Command: name, Error: err.Error()})
		return
	}
	log.Printf("web: command %s sent", name)
	writeJSON(w, http.StatusOK, CommandResult{Command: name, OK: true})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Controller == nil {
		writeJSON(w, http.StatusServiceUnavailable, CommandResult{Command: "connect", Error: "no session"})
		return
	}
	peer := r.URL.Query().Get("peer")
	if err := s.deps.Controller.Connect(r.Context(), peer); err != nil {
		log.Printf("web: connect %q failed: %v", peer, err)
		writeJSON(w, errorStatus(err), CommandResult{Command: "connect", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, CommandResult{Command: "connect", OK: true})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Controller == nil {
		writeJSON(w, http.StatusServiceUnavailable, CommandResult{Command: "disconnect", Error: "no session"})
		return
	}
	if err := s.deps.Controller.Disconnect(); err != nil {
		log.Printf("web: disconnect failed: %v", err)
		writeJSON(w, errorStatus(err), CommandResult{Command: "disconnect", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, CommandResult{Command: "disconnect", OK: true})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, client.ErrNotConnected), errors.Is(err, client.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, client.ErrCancelled):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
