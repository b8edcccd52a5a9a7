// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FrameSize is the size of every request and response frame.
	FrameSize = 12

	// identSize covers TransactionID and ProtocolID.
	identSize = 4

	// ResponseLength is the value written to the Length field of every
	// encoded frame: the frame size minus TransactionID and ProtocolID.
	ResponseLength = FrameSize - identSize
)

// ErrMalformedFrame is returned when fewer than FrameSize bytes are decoded.
var ErrMalformedFrame = errors.New("modbus: malformed frame")

// Frame is the fixed 12-byte unit exchanged once per connection.
//
// Layout (big-endian):
//
//	0  TransactionID (2)
//	2  ProtocolID    (2)
//	4  Length        (2)
//	6  UnitID        (1)
//	7  FunctionCode  (1)
//	8  Address       (2)
//	10 Data          (2)
type Frame struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16
	UnitID        byte
	FunctionCode  byte
	Address       uint16
	Data          uint16
}

// Decode parses the first FrameSize bytes of raw. Extra bytes are ignored and
// Length is taken as-is.
func Decode(raw []byte) (*Frame, error) {
	if len(raw) < FrameSize {
		return nil, fmt.Errorf("%w: length '%v' does not meet frame size '%v'", ErrMalformedFrame, len(raw), FrameSize)
	}
	return &Frame{
		TransactionID: binary.BigEndian.Uint16(raw[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(raw[2:4]),
		Length:        binary.BigEndian.Uint16(raw[4:6]),
		UnitID:        raw[6],
		FunctionCode:  raw[7],
		Address:       binary.BigEndian.Uint16(raw[8:10]),
		Data:          binary.BigEndian.Uint16(raw[10:12]),
	}, nil
}

// Encode serializes the frame. The Length field is always ResponseLength,
// whatever f.Length holds.
func (f *Frame) Encode() []byte {
	raw := make([]byte, FrameSize)
	binary.BigEndian.PutUint16(raw[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(raw[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(raw[4:6], ResponseLength)
	raw[6] = f.UnitID
	raw[7] = f.FunctionCode
	binary.BigEndian.PutUint16(raw[8:10], f.Address)
	binary.BigEndian.PutUint16(raw[10:12], f.Data)
	return raw
}

// NewResponse builds the response to req carrying data. Header fields and
// the address are echoed from the request.
func NewResponse(req *Frame, data uint16) *Frame {
	return &Frame{
		TransactionID: req.TransactionID,
		ProtocolID:    req.ProtocolID,
		Length:        ResponseLength,
		UnitID:        req.UnitID,
		FunctionCode:  req.FunctionCode,
		Address:       req.Address,
		Data:          data,
	}
}
