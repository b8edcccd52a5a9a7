// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"errors"
	"fmt"
	"sync"
)

// DefinedAddress is the only address backed by a register in each table.
const DefinedAddress = 0x0000

// ErrReadOnly is returned when writing a table the protocol cannot write.
var ErrReadOnly = errors.New("register table is read-only")

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableCoils TableType = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

func (t TableType) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableDiscreteInputs:
		return "discrete_inputs"
	case TableHoldingRegisters:
		return "holding_registers"
	case TableInputRegisters:
		return "input_registers"
	default:
		return fmt.Sprintf("table(%d)", int(t))
	}
}

// Writable reports whether the table accepts writes from requests.
func (t TableType) Writable() bool {
	return t == TableCoils || t == TableHoldingRegisters
}

// Registers is a point-in-time copy of every slot in a RegisterBank.
type Registers struct {
	// 0x Coil. Stored as the raw integer written by the client.
	Coil uint16
	// 1x Discrete Input (Read Only).
	DiscreteInput uint16
	// 4x Holding Register (Read/Write).
	HoldingRegister uint16
	// 3x Input Register (Read Only).
	InputRegister uint16
}

// RegisterBank holds one register per table, shared by every connection.
// A single exclusive lock guards all access.
type RegisterBank struct {
	mu   sync.Mutex
	regs Registers
}

// NewRegisterBank creates a bank with every slot set to zero.
func NewRegisterBank() *RegisterBank {
	return &RegisterBank{}
}

// Read returns the value of table at address. Addresses other than
// DefinedAddress read as zero.
func (b *RegisterBank) Read(table TableType, address uint16) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.read(table, address)
}

// Write stores value in table at address. Only coils and holding registers
// are writable; a write to any other address is ignored.
func (b *RegisterBank) Write(table TableType, address uint16, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.write(table, address, value)
}

// Preset initializes a slot regardless of its access mode. It is meant for
// server-side setup and is not reachable from requests.
func (b *RegisterBank) Preset(table TableType, value uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p := b.slot(table); p != nil {
		*p = value
	}
}

// Snapshot returns a consistent copy of all slots.
func (b *RegisterBank) Snapshot() Registers {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.regs
}

// Tx is a view of a RegisterBank whose lock is already held. It is only
// valid inside the Transact callback that received it.
type Tx struct {
	b *RegisterBank
}

// Read is RegisterBank.Read without taking the lock.
func (tx *Tx) Read(table TableType, address uint16) uint16 {
	return tx.b.read(table, address)
}

// Write is RegisterBank.Write without taking the lock.
func (tx *Tx) Write(table TableType, address uint16, value uint16) error {
	return tx.b.write(table, address, value)
}

// Transact runs fn with exclusive access to the bank, so a sequence of reads
// and writes is never interleaved with another caller's. fn must not retain
// tx after it returns.
func (b *RegisterBank) Transact(fn func(tx *Tx)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	fn(&Tx{b: b})
}

// read and write expect the caller to hold b.mu.
func (b *RegisterBank) read(table TableType, address uint16) uint16 {
	if address != DefinedAddress {
		return 0
	}
	if p := b.slot(table); p != nil {
		return *p
	}
	return 0
}

func (b *RegisterBank) write(table TableType, address uint16, value uint16) error {
	if !table.Writable() {
		return fmt.Errorf("%w: %s", ErrReadOnly, table)
	}
	if address != DefinedAddress {
		return nil
	}
	if p := b.slot(table); p != nil {
		*p = value
	}
	return nil
}

func (b *RegisterBank) slot(table TableType) *uint16 {
	switch table {
	case TableCoils:
		return &b.regs.Coil
	case TableDiscreteInputs:
		return &b.regs.DiscreteInput
	case TableHoldingRegisters:
		return &b.regs.HoldingRegister
	case TableInputRegisters:
		return &b.regs.InputRegister
	default:
		return nil
	}
}
