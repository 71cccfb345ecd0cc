// Package web provides the HTTP status page and admin endpoint for the parking gate daemon.
package web

import (
	"context"
	"log"
	"net"
	"net/http"

	"github.com/sweeney/parking-gate/internal/status"
)

// Resetter clears today's entry/exit totals.
type Resetter interface {
	ResetDailyStats() error
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	resetter   Resetter
}

// New creates a Server that reads state from the given tracker. If resetter
// is nil the reset endpoint is not registered.
func New(addr string, tracker *status.Tracker, resetter Resetter) *Server {
	s := &Server{tracker: tracker, resetter: resetter}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if resetter != nil {
		mux.HandleFunc("/reset-daily", s.handleResetDaily)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
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
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.resetter != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleResetDaily clears today's totals and redirects back to the page.
func (s *Server) handleResetDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.resetter.ResetDailyStats(); err != nil {
		log.Printf("http: reset daily stats: %v", err)
		http.Error(w, "reset failed", http.StatusInternalServerError)
		return
	}
	log.Printf("http: daily stats reset by %s", r.RemoteAddr)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
