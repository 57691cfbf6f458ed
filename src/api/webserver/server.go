package webserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/stake-plus/guildgov/src/config"
	"github.com/stake-plus/guildgov/src/governance"
)

// Server runs the governance API as a managed module.
type Server struct {
	addr string
	srv  *http.Server
	done chan struct{}
}

func NewServer(cfg config.APIConfig, svc *governance.Service, runner *governance.Runner) *Server {
	return &Server{
		addr: ":" + cfg.Port,
		srv: &http.Server{
			Handler:           New(cfg, svc, runner),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Name() string { return "api" }

// Addr is the bound listen address once Start has returned.
func (s *Server) Addr() string { return s.addr }

func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("api: serve: %v", err)
		}
	}()
	log.Printf("api: listening on %s", s.addr)
	return nil
}

// Stop drains in-flight requests until ctx is done, then closes what is left.
func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Printf("api: shutdown: %v", err)
		_ = s.srv.Close()
	}
	if s.done != nil {
		<-s.done
	}
}
