// Package web provides an HTTP status server for the dehydrator daemon.
// It is read-only: nothing served here can change targets or mode.
package web

import (
	"bytes"
	"context"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/sweeney/dehydrator/internal/status"
)

// FrameSource renders the current display frame as PNG.
type FrameSource interface {
	WritePNG(w io.Writer) error
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	frame      FrameSource
}

// New creates a Server that reads state from the given tracker. frame may be
// nil, in which case /display.png is not served.
func New(addr string, tracker *status.Tracker, frame FrameSource) *Server {
	s := &Server{tracker: tracker, frame: frame}

	router := httprouter.New()
	router.GET("/", s.handleIndex)
	router.GET("/index.html", s.handleIndex)
	router.GET("/index.json", s.handleJSON)
	if frame != nil {
		router.GET("/display.png", s.handleDisplay)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
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

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.frame != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var buf bytes.Buffer
	if err := s.frame.WritePNG(&buf); err != nil {
		log.Printf("web: render display: %v", err)
		http.Error(w, "display unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}
