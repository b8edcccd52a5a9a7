// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(requests.WithLabelValues("write_single_register"))
	RecordRequest("write_single_register", 3*time.Millisecond)
	if got := testutil.ToFloat64(requests.WithLabelValues("write_single_register")); got != before+1 {
		t.Errorf("requests_total = %v, want %v", got, before+1)
	}

	active := testutil.ToFloat64(activeConnections)
	ConnectionOpened()
	ConnectionClosed()
	if got := testutil.ToFloat64(activeConnections); got != active {
		t.Errorf("active_connections = %v, want %v", got, active)
	}

	RecordConnectionError("short_read")
	if got := testutil.ToFloat64(connectionErrors.WithLabelValues("short_read")); got < 1 {
		t.Errorf("connection_errors_total = %v, want >= 1", got)
	}
}

func TestServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- Serve(ctx, addr)
	}()

	RecordRequest("read_coils", time.Millisecond)

	var resp *http.Response
	for i := 0; i < 20; i++ {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if !strings.Contains(string(body), "modbus_slave_requests_total") {
		t.Errorf("metrics output missing modbus_slave_requests_total")
	}

	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Serve() returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("Serve() did not stop after cancel")
	}
}
