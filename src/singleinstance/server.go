package singleinstance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// Server owns the resident HTTP endpoint.
type Server struct {
	rng  Range
	lis  net.Listener
	srv  *http.Server
	port int
	errs chan error
}

// NewServer returns a server for the range. Only the start port is ever
// bound so clients always find the resident first.
func NewServer(r Range) *Server {
	return &Server{rng: r.Normalize(), errs: make(chan error, 1)}
}

// Start binds the start port and serves h in the background. If the port is
// held by a live resident, ErrAlreadyRunning is returned.
func (s *Server) Start(ctx context.Context, h http.Handler) error {
	if s.lis != nil {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", residentHost, s.rng.Start)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("singleinstance: failed to bind %s: %v", addr, err)
		if _, ok := ping(ctx, http.DefaultClient, s.rng.Start); ok {
			return ErrAlreadyRunning
		}
		return err
	}
	s.lis = lis
	s.port = s.rng.Start
	s.srv = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	log.Printf("singleinstance: listening on %s", addr)
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
		close(s.errs)
	}()
	return nil
}

// Port returns the bound port (0 if not started).
func (s *Server) Port() int { return s.port }

// Errors delivers a fatal serve error and is closed when serving stops.
func (s *Server) Errors() <-chan error { return s.errs }

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
