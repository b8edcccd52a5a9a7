// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"errors"
	"sync"
	"testing"
)

func TestRegisterBank_ReadWrite(t *testing.T) {
	tests := []struct {
		name    string
		table   TableType
		address uint16
		value   uint16
		want    uint16
		wantErr error
	}{
		{"Coil", TableCoils, 0, 0xFF00, 0xFF00, nil},
		{"HoldingRegister", TableHoldingRegisters, 0, 12345, 12345, nil},
		{"UndefinedAddressIgnored", TableHoldingRegisters, 10, 12345, 0, nil},
		{"DiscreteInputReadOnly", TableDiscreteInputs, 0, 1, 0, ErrReadOnly},
		{"InputRegisterReadOnly", TableInputRegisters, 0, 1, 0, ErrReadOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewRegisterBank()
			err := b.Write(tt.table, tt.address, tt.value)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Write() error = %v, want %v", err, tt.wantErr)
			}
			if got := b.Read(tt.table, tt.address); got != tt.want {
				t.Errorf("Read() = %d, want %d", got, tt.want)
			}
			if got := b.Read(tt.table, 0); tt.address != 0 && got != 0 {
				t.Errorf("write to address %d leaked into address 0: %d", tt.address, got)
			}
		})
	}
}

func TestRegisterBank_Preset(t *testing.T) {
	b := NewRegisterBank()
	b.Preset(TableInputRegisters, 7)
	b.Preset(TableDiscreteInputs, 1)

	if got := b.Read(TableInputRegisters, 0); got != 7 {
		t.Errorf("input register = %d, want 7", got)
	}
	if got := b.Read(TableDiscreteInputs, 0); got != 1 {
		t.Errorf("discrete input = %d, want 1", got)
	}
	if got := b.Read(TableInputRegisters, 1); got != 0 {
		t.Errorf("undefined address = %d, want 0", got)
	}

	want := Registers{DiscreteInput: 1, InputRegister: 7}
	if got := b.Snapshot(); got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestRegisterBank_Transact(t *testing.T) {
	b := NewRegisterBank()
	b.Preset(TableInputRegisters, 5)

	b.Transact(func(tx *Tx) {
		if err := tx.Write(TableHoldingRegisters, 0, 42); err != nil {
			t.Errorf("Write() failed: %v", err)
		}
		if err := tx.Write(TableCoils, 0, tx.Read(TableHoldingRegisters, 0)+1); err != nil {
			t.Errorf("Write() failed: %v", err)
		}
		if err := tx.Write(TableInputRegisters, 0, 9); !errors.Is(err, ErrReadOnly) {
			t.Errorf("Write() to input register error = %v, want ErrReadOnly", err)
		}
		if got := tx.Read(TableHoldingRegisters, 3); got != 0 {
			t.Errorf("Read() undefined address = %d, want 0", got)
		}
	})

	want := Registers{Coil: 43, HoldingRegister: 42, InputRegister: 5}
	if got := b.Snapshot(); got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}

func TestRegisterBank_TransactIsExclusive(t *testing.T) {
	b := NewRegisterBank()
	const workers, rounds = 8, 200

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				// Read-modify-write is only safe if nothing interleaves.
				b.Transact(func(tx *Tx) {
					_ = tx.Write(TableHoldingRegisters, 0, tx.Read(TableHoldingRegisters, 0)+1)
				})
			}
		}()
	}
	wg.Wait()

	if got := b.Read(TableHoldingRegisters, 0); got != workers*rounds {
		t.Errorf("holding register = %d, want %d", got, workers*rounds)
	}
}

func TestRegisterBank_ConcurrentWrites(t *testing.T) {
	b := NewRegisterBank()
	const writers = 64

	written := make(map[uint16]bool, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		// High and low bytes differ per writer so a torn value is detectable.
		v := uint16(i+1)<<8 | uint16(0xFF-i)
		written[v] = true
		wg.Add(1)
		go func(v uint16) {
			defer wg.Done()
			if err := b.Write(TableHoldingRegisters, 0, v); err != nil {
				t.Errorf("Write() failed: %v", err)
			}
		}(v)
	}
	wg.Wait()

	if got := b.Read(TableHoldingRegisters, 0); !written[got] {
		t.Errorf("final value 0x%04X is not one of the written values", got)
	}
}

func TestTableType_String(t *testing.T) {
	if TableHoldingRegisters.String() != "holding_registers" {
		t.Errorf("String() = %q", TableHoldingRegisters.String())
	}
	if TableType(9).String() != "table(9)" {
		t.Errorf("String() = %q", TableType(9).String())
	}
}

func BenchmarkRegisterBank_Write(b *testing.B) {
	m := NewRegisterBank()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Write(TableHoldingRegisters, 0, uint16(i))
	}
}
