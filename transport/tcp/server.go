// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/ffutop/modbus-server/internal/metrics"
	"github.com/ffutop/modbus-server/transport"
)

// Server implements a Modbus TCP Server. Every accepted connection is served
// by its own goroutine.
type Server struct {
	Address string
	// MaxConns bounds the number of connections served at once. Zero means
	// unbounded.
	MaxConns int
	// IdleTimeout bounds how long a connection may wait for its request.
	// Zero means no deadline.
	IdleTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	// listen defaults to net.Listen.
	listen func(network, address string) (net.Listener, error)
}

// NewServer creates a new TCP Server.
func NewServer(address string) *Server {
	return &Server{
		Address: address,
	}
}

// Start listens on s.Address and serves connections until ctx is done or the
// server is closed. It returns once every in-flight connection has finished.
func (s *Server) Start(ctx context.Context, handler transport.ConnHandler) error {
	if handler == nil {
		return fmt.Errorf("no handler defined for TCP server")
	}
	listen := s.listen
	if listen == nil {
		listen = net.Listen
	}
	listener, err := listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("Modbus TCP server listening", "addr", listener.Addr().String(), "maxConns", s.MaxConns)

	stop := context.AfterFunc(ctx, func() {
		s.Close()
	})
	defer stop()

	var slots chan struct{}
	if s.MaxConns > 0 {
		slots = make(chan struct{}, s.MaxConns)
	}

	var wg conc.WaitGroup
	defer wg.Wait()

	for {
		if slots != nil {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			if slots != nil {
				<-slots
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}

		wg.Go(func() {
			if slots != nil {
				defer func() { <-slots }()
			}
			s.handleConnection(ctx, conn, handler)
		})
	}
}

// Addr returns the listening address, or nil before Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.ConnHandler) {
	defer conn.Close()
	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()
	slog.Debug("New TCP client connected", "addr", conn.RemoteAddr())

	// Unblock a handler stuck in Read when the server shuts down.
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if s.IdleTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(s.IdleTimeout)); err != nil {
			slog.Error("Failed to set connection deadline", "addr", conn.RemoteAddr(), "err", err)
			return
		}
	}

	var err error
	var pc panics.Catcher
	pc.Try(func() {
		err = handler(ctx, conn)
	})
	if r := pc.Recovered(); r != nil {
		slog.Error("Handler panicked", "addr", conn.RemoteAddr(), "err", r.AsError())
		return
	}
	if err != nil {
		slog.Warn("Connection aborted", "addr", conn.RemoteAddr(), "err", err)
		return
	}
	slog.Debug("TCP client served", "addr", conn.RemoteAddr())
}
