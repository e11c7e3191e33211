package calendar

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/kilianp07/kioskpower/infra/logger"
)

// Server exposes a Handler over HTTP.
type Server struct {
	addr string
	h    *Handler
	log  logger.Logger
	srv  *http.Server
}

// NewServer creates a server listening on addr once started.
func NewServer(addr string, h *Handler) *Server {
	return &Server{addr: addr, h: h, log: logger.New("calendar-api")}
}

// Addr returns the listening address once Start has been called.
func (s *Server) Addr() string { return s.addr }

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	s.srv = &http.Server{Handler: s.h.Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("shutdown server: %v", err)
		}
		cancel()
		s.h.Close()
	}()
	s.log.Infof("calendar API listening on %s", s.addr)
	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
