// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the wire-level definitions of the fixed-frame
// Modbus/TCP subset served by this module.
package modbus

import "fmt"

// Function Codes
const (
	FuncCodeReadCoils            = 0x01
	FuncCodeReadDiscreteInputs   = 0x02
	FuncCodeReadHoldingRegisters = 0x03
	FuncCodeReadInputRegisters   = 0x04
	FuncCodeWriteSingleCoil      = 0x05
	FuncCodeWriteSingleRegister  = 0x06
)

// FunctionName returns a short name for a function code, used in logs and
// metric labels. Unknown codes are rendered as hex.
func FunctionName(code byte) string {
	switch code {
	case FuncCodeReadCoils:
		return "read_coils"
	case FuncCodeReadDiscreteInputs:
		return "read_discrete_inputs"
	case FuncCodeReadHoldingRegisters:
		return "read_holding_registers"
	case FuncCodeReadInputRegisters:
		return "read_input_registers"
	case FuncCodeWriteSingleCoil:
		return "write_single_coil"
	case FuncCodeWriteSingleRegister:
		return "write_single_register"
	default:
		return fmt.Sprintf("0x%02X", code)
	}
}
