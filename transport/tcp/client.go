// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/ffutop/modbus-server/modbus"
)

const (
	tcpTimeout = 10 * time.Second
)

// Client sends single fixed-size frames to a Modbus TCP server, one
// connection per request.
type Client struct {
	Address string
	Timeout time.Duration
	UnitID  byte

	transactionID uint32 // Atomic counter
}

// NewClient allocates and initializes a TCP Client.
func NewClient(address string) *Client {
	return &Client{
		Address: address,
		Timeout: tcpTimeout,
		UnitID:  1,
	}
}

// Send sends one request and returns the decoded response.
func (mb *Client) Send(ctx context.Context, functionCode byte, address, data uint16) (*modbus.Frame, error) {
	req := &modbus.Frame{
		TransactionID: uint16(atomic.AddUint32(&mb.transactionID, 1)),
		ProtocolID:    0,
		UnitID:        mb.UnitID,
		FunctionCode:  functionCode,
		Address:       address,
		Data:          data,
	}

	dialer := net.Dialer{Timeout: mb.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", mb.Address)
	if err != nil {
		return nil, fmt.Errorf("modbus: failed to connect to %s: %w", mb.Address, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(mb.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := conn.Write(req.Encode()); err != nil {
		return nil, err
	}

	raw := make([]byte, modbus.FrameSize)
	if _, err := io.ReadFull(conn, raw); err != nil {
		return nil, err
	}
	slog.Debug("recv from modbus tcp server", "response", hex.EncodeToString(raw))

	resp, err := modbus.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response frame: %w", err)
	}
	if err := verify(req, resp); err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}
	return resp, nil
}

// ReadHoldingRegister reads the holding register at address.
func (mb *Client) ReadHoldingRegister(ctx context.Context, address uint16) (uint16, error) {
	resp, err := mb.Send(ctx, modbus.FuncCodeReadHoldingRegisters, address, 0)
	if err != nil {
		return 0, err
	}
	return resp.Data, nil
}

// WriteSingleRegister writes value to the holding register at address.
func (mb *Client) WriteSingleRegister(ctx context.Context, address, value uint16) error {
	_, err := mb.Send(ctx, modbus.FuncCodeWriteSingleRegister, address, value)
	return err
}

func verify(req, resp *modbus.Frame) error {
	// Transaction ID must match
	if resp.TransactionID != req.TransactionID {
		return fmt.Errorf("modbus: response transaction id '%v' does not match request '%v'", resp.TransactionID, req.TransactionID)
	}
	if resp.FunctionCode != req.FunctionCode {
		return fmt.Errorf("modbus: response function code '%v' does not match request '%v'", resp.FunctionCode, req.FunctionCode)
	}
	return nil
}
