// Package server exposes the inventory actions over HTTP behind the session gate.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/unkn0wn-root/stockcore/auth"
	"github.com/unkn0wn-root/stockcore/inventory"
	"github.com/unkn0wn-root/stockcore/logx"
)

type Deps struct {
	Gate      *auth.Gate
	Inventory *inventory.Service
	Log       logx.Logger
	// Ready reports backend health for /readyz; nil => always ready.
	Ready func(context.Context) error
}

type Server struct {
	log    logx.Logger
	server *http.Server
}

func New(addr string, d Deps) (*Server, error) {
	if d.Gate == nil || d.Inventory == nil {
		return nil, errors.New("server: gate and inventory are required")
	}
	log := logx.OrNop(d.Log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(d),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{log: log, server: srv}, nil
}

// Run serves until Close. It returns nil on a graceful shutdown.
func (s *Server) Run() error {
	s.log.Info("http server started", logx.Fields{"addr": s.server.Addr})
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Close(ctx context.Context) {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Warn("http server forced to shutdown", logx.Fields{"err": err})
		return
	}
	s.log.Info("http server exited gracefully", nil)
}
