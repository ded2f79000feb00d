// Package apiserver runs the HTTP API as a managed module.
package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/stake-plus/commons/src/api/webserver"
	"github.com/stake-plus/commons/src/config"
)

type Module struct {
	cfg  config.APIConfig
	srv  *http.Server
	log  zerolog.Logger
	done chan struct{}
}

func NewModule(cfg config.APIConfig, deps webserver.Deps, log zerolog.Logger) *Module {
	return &Module{
		cfg: cfg,
		log: log,
		srv: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           webserver.New(cfg, deps),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

func (m *Module) Name() string { return "api" }

// Start binds the listener before returning so a busy port fails startup.
func (m *Module) Start(context.Context) error {
	ln, err := net.Listen("tcp", m.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.srv.Addr, err)
	}
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		m.log.Info().Str("addr", ln.Addr().String()).Msg("api: listening")
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("api: serve failed")
		}
	}()
	return nil
}

// Stop drains in-flight requests for at most the configured timeout.
func (m *Module) Stop(ctx context.Context) {
	if m.done == nil {
		return
	}
	timeout := m.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.log.Warn().Err(err).Msg("api: shutdown incomplete")
	}
	<-m.done
	m.done = nil
}
