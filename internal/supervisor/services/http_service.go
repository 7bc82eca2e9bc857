// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tomtom215/greeting/internal/logging"
)

// UnixPrefix marks a listen address as a unix socket path.
const UnixPrefix = "unix:"

// HTTPServer matches the *http.Server lifecycle methods used here.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService binds one listen address and serves HTTP on it as a
// supervised service.
//
//	server := &http.Server{Handler: router.Setup()}
//	svc := services.NewHTTPServerService(server, "unix:/run/greeting.sock", 15*time.Second)
//	tree.AddAPIService(svc)
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration
	listen          func(network, address string) (net.Listener, error)
}

// NewHTTPServerService creates a listener service for addr. The
// shutdownTimeout bounds how long in-flight requests may take to finish.
func NewHTTPServerService(server HTTPServer, addr string, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		listen:          Listen,
	}
}

// ParseListenAddr splits a configured listen address into a network and an
// address for net.Listen.
func ParseListenAddr(addr string) (network, address string) {
	if path, ok := strings.CutPrefix(addr, UnixPrefix); ok {
		return "unix", path
	}
	return "tcp", addr
}

// Listen opens a listener, removing a leftover unix socket file first.
func Listen(network, address string) (net.Listener, error) {
	if network == "unix" {
		if err := os.Remove(address); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", address, err)
		}
	}
	return net.Listen(network, address)
}

// Serve implements suture.Service. It returns an error if the address
// cannot be bound or the server fails, so suture retries with backoff.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	network, address := ParseListenAddr(h.addr)
	ln, err := h.listen(network, address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.addr, err)
	}

	logging.Info().Str("addr", h.addr).Str("network", network).Msg("HTTP server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server on %s failed: %w", h.addr, err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server on %s shutdown failed: %w", h.addr, err)
		}

		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer; suture uses it in event logs.
func (h *HTTPServerService) String() string {
	return "http-server(" + h.addr + ")"
}
