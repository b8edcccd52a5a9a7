// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package server

import (
	"context"
	"log/slog"
	"sync"

	localslave "github.com/ffutop/modbus-server/internal/local-slave"
	"github.com/ffutop/modbus-server/internal/local-slave/model"
	"github.com/ffutop/modbus-server/transport"
)

// Server binds upstream listeners to a single local slave. Every upstream
// and every connection shares the same register bank.
type Server struct {
	Name      string
	Upstreams []transport.Upstream

	bank  *model.RegisterBank
	slave *localslave.LocalSlave
}

// NewServer creates a new Server serving bank.
func NewServer(name string, upstreams []transport.Upstream, bank *model.RegisterBank) *Server {
	return &Server{
		Name:      name,
		Upstreams: upstreams,
		bank:      bank,
		slave:     localslave.NewLocalSlave(bank),
	}
}

// Bank returns the shared register bank.
func (s *Server) Bank() *model.RegisterBank {
	return s.bank
}

// Start starts all upstreams and blocks until ctx is done. It returns the
// first listen error if every upstream failed to start.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failed   int
		firstErr error
	)
	for i, us := range s.Upstreams {
		wg.Add(1)
		go func(ups transport.Upstream, idx int) {
			defer wg.Done()
			slog.Info("Starting upstream", "server", s.Name, "index", idx)
			if err := ups.Start(ctx, s.slave.Handle); err != nil {
				slog.Error("Upstream stopped with error", "server", s.Name, "index", idx, "err", err)
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = err
				}
				if failed == len(s.Upstreams) {
					cancel()
				}
				mu.Unlock()
			}
		}(us, i)
	}

	<-ctx.Done()

	// Graceful shutdown
	for _, us := range s.Upstreams {
		us.Close()
	}
	wg.Wait()

	slog.Info("Server stopped", "server", s.Name, "registers", s.bank.Snapshot())

	if failed == len(s.Upstreams) {
		return firstErr
	}
	return nil
}
