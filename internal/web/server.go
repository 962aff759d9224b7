// Package web serves the keypad-sensor status page: a table of key states
// and debouncer counters, with the same document as JSON for scripts.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/sweeney/keypad-sensor/internal/status"
)

// Server renders tracker snapshots over HTTP. Every request takes a fresh
// snapshot; the server keeps no state of its own.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New returns a Server for addr backed by tracker. Nothing listens until
// ListenAndServe or Serve is called.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.servePage)
	mux.HandleFunc("/index.html", s.servePage)
	mux.HandleFunc("/index.json", s.serveStatus)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the routes, for mounting under httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe binds addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// servePage renders the key table. Unknown paths fall through "/" and get 404.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
