// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package localslave

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-server/internal/local-slave/model"
	"github.com/ffutop/modbus-server/internal/metrics"
	"github.com/ffutop/modbus-server/modbus"
)

var (
	// ErrShortRead means fewer than modbus.FrameSize bytes arrived in one read.
	ErrShortRead = errors.New("modbus: short read")
	// ErrShortWrite means the response could not be fully transmitted.
	ErrShortWrite = errors.New("modbus: short write")
)

// LocalSlave implements the Modbus protocol logic on top of a RegisterBank.
type LocalSlave struct {
	bank *model.RegisterBank
}

// NewLocalSlave creates a new LocalSlave serving bank. The same bank must be
// shared by every connection.
func NewLocalSlave(bank *model.RegisterBank) *LocalSlave {
	return &LocalSlave{bank: bank}
}

// Handle serves exactly one request/response exchange on stream. The frame
// must arrive in a single read; partial frames are not reassembled. The
// caller owns stream and closes it.
func (s *LocalSlave) Handle(ctx context.Context, stream io.ReadWriter) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, modbus.FrameSize)
	n, err := stream.Read(buf)
	if n < modbus.FrameSize {
		metrics.RecordConnectionError("short_read")
		if err != nil {
			return fmt.Errorf("%w: got %d of %d bytes: %w", ErrShortRead, n, modbus.FrameSize, err)
		}
		return fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, n, modbus.FrameSize)
	}
	start := time.Now()
	slog.Debug("recv modbus request", "request", hex.EncodeToString(buf))

	req, err := modbus.Decode(buf)
	if err != nil {
		return err
	}

	resp := s.Process(req)
	raw := resp.Encode()

	n, err = stream.Write(raw)
	if err != nil || n < len(raw) {
		metrics.RecordConnectionError("short_write")
		if err != nil {
			return fmt.Errorf("%w: sent %d of %d bytes: %w", ErrShortWrite, n, len(raw), err)
		}
		return fmt.Errorf("%w: sent %d of %d bytes", ErrShortWrite, n, len(raw))
	}
	slog.Debug("sent modbus response", "response", hex.EncodeToString(raw))

	metrics.RecordRequest(modbus.FunctionName(req.FunctionCode), time.Since(start))
	return nil
}

// Process executes the request against the register bank and builds the
// response. Unknown function codes and undefined addresses are answered
// with zero data.
func (s *LocalSlave) Process(req *modbus.Frame) *modbus.Frame {
	var data uint16
	s.bank.Transact(func(tx *model.Tx) {
		switch req.FunctionCode {
		case modbus.FuncCodeReadCoils:
			data = tx.Read(model.TableCoils, req.Address)
		case modbus.FuncCodeReadHoldingRegisters:
			data = tx.Read(model.TableHoldingRegisters, req.Address)
		case modbus.FuncCodeReadInputRegisters:
			data = tx.Read(model.TableInputRegisters, req.Address)
		case modbus.FuncCodeWriteSingleCoil:
			data = s.write(tx, model.TableCoils, req)
		case modbus.FuncCodeWriteSingleRegister:
			data = s.write(tx, model.TableHoldingRegisters, req)
		}
	})
	return modbus.NewResponse(req, data)
}

// write stores req.Data and echoes what the bank now holds at the address,
// which is zero when the address holds no register.
func (s *LocalSlave) write(tx *model.Tx, table model.TableType, req *modbus.Frame) uint16 {
	if err := tx.Write(table, req.Address, req.Data); err != nil {
		slog.Error("Register write rejected", "table", table, "err", err)
		return 0
	}
	return tx.Read(table, req.Address)
}
