// Package server implements the copy server: a long-running listener
// owning a content database, spawning one session per accepted
// connection and deciding per incoming file whether it needs to travel
// at all — and if so, in what form.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/eacopy/eacopy/internal/contentdb"
	"github.com/eacopy/eacopy/internal/fingerprint"
	"github.com/eacopy/eacopy/internal/obs"
)

// Config controls one Server instance.
type Config struct {
	Addr              string
	RootDir           string // destination root new uploads are written under
	MaxSessions       int
	SecretFingerprint fingerprint.Fingerprint
	MaxHistory        int // contentdb.New's history bound
	PrimeDirs         []string
}

// Server listens on plain TCP — the protocol assumes a trusted link —
// and gates sessions with the secret-fingerprint HELLO check rather
// than transport-level auth.
type Server struct {
	cfg Config
	db  *contentdb.DB
	log *obs.LogContext

	ln  net.Listener
	sem chan struct{}
	wg  sync.WaitGroup
}

// New returns a Server ready to Listen and Serve.
func New(cfg Config, log *obs.LogContext) *Server {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 64
	}
	db := contentdb.New(cfg.MaxHistory)
	for _, dir := range cfg.PrimeDirs {
		db.Prime(dir)
	}
	return &Server{
		cfg: cfg,
		db:  db,
		log: log,
		sem: make(chan struct{}, cfg.MaxSessions),
	}
}

// Listen opens the TCP listener. Call before Serve.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	return nil
}

// Serve runs the accept loop until ctx is cancelled, then stops
// accepting, waits for in-flight sessions to finish, and returns. No
// session goroutine outlives Serve's return.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.db.RunPriming(ctx)

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			s.handleSession(ctx, conn)
		}()
	}

	s.wg.Wait()
	return nil
}

// DB exposes the server's Content Database, e.g. for a PRIME request
// handler or external inspection.
func (s *Server) DB() *contentdb.DB { return s.db }

// Addr returns the bound listener address; nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}
