// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	connections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "modbus",
			Subsystem: "tcp",
			Name:      "connections_total",
			Help:      "Total accepted client connections.",
		},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "modbus",
			Subsystem: "tcp",
			Name:      "active_connections",
			Help:      "Client connections currently being handled.",
		},
	)
	connectionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modbus",
			Subsystem: "tcp",
			Name:      "connection_errors_total",
			Help:      "Connections aborted by a read or write failure.",
		},
		[]string{"kind"},
	)
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modbus",
			Subsystem: "slave",
			Name:      "requests_total",
			Help:      "Requests answered, by function.",
		},
		[]string{"function"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modbus",
			Subsystem: "slave",
			Name:      "request_duration_seconds",
			Help:      "Time from frame decode to response write.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"function"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connections, activeConnections, connectionErrors, requests, requestDuration)
	})
}

func ConnectionOpened() {
	RegisterMetrics()
	connections.Inc()
	activeConnections.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	activeConnections.Dec()
}

func RecordConnectionError(kind string) {
	RegisterMetrics()
	connectionErrors.WithLabelValues(kind).Inc()
}

func RecordRequest(function string, duration time.Duration) {
	RegisterMetrics()
	requests.WithLabelValues(function).Inc()
	requestDuration.WithLabelValues(function).Observe(duration.Seconds())
}

// Serve exposes /metrics on address until ctx is cancelled.
func Serve(ctx context.Context, address string) error {
	RegisterMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	slog.Info("Metrics server listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
