// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"fmt"
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// Encode returns the raw PDU bytes: function code followed by data.
func (pdu ProtocolDataUnit) Encode() []byte {
	raw := make([]byte, 1+len(pdu.Data))
	raw[0] = pdu.FunctionCode
	copy(raw[1:], pdu.Data)
	return raw
}

// StartingAddress returns the address field of a request PDU. All
// standard requests carry it in the first two data bytes.
func (pdu ProtocolDataUnit) StartingAddress() (uint16, error) {
	if len(pdu.Data) < 2 {
		return 0, fmt.Errorf("modbus: pdu data length '%v' too short for address field", len(pdu.Data))
	}
	return binary.BigEndian.Uint16(pdu.Data[0:2]), nil
}

// readRequest builds the shared layout of function codes 0x01-0x04:
// address(2) quantity(2), big endian.
func readRequest(funcCode byte, startingAddress, quantity uint16) ProtocolDataUnit {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startingAddress)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	return ProtocolDataUnit{FunctionCode: funcCode, Data: data}
}

// ReadCoils returns a request PDU for function code 0x01: Read Coils.
func ReadCoils(startingAddress, quantity uint16) ProtocolDataUnit {
	return readRequest(FuncCodeReadCoils, startingAddress, quantity)
}

// ReadDiscreteInputs returns a request PDU for function code 0x02:
// Read Discrete Inputs.
func ReadDiscreteInputs(startingAddress, quantity uint16) ProtocolDataUnit {
	return readRequest(FuncCodeReadDiscreteInputs, startingAddress, quantity)
}

// ReadHoldingRegisters returns a request PDU for function code 0x03:
// Read Holding Registers.
func ReadHoldingRegisters(startingAddress, quantity uint16) ProtocolDataUnit {
	return readRequest(FuncCodeReadHoldingRegisters, startingAddress, quantity)
}

// ReadInputRegisters returns a request PDU for function code 0x04:
// Read Input Registers.
func ReadInputRegisters(startingAddress, quantity uint16) ProtocolDataUnit {
	return readRequest(FuncCodeReadInputRegisters, startingAddress, quantity)
}

// WriteSingleCoil returns a request PDU for function code 0x05: Write
// Single Coil. The value field is 0xFFFF for ON and 0x0000 for OFF.
func WriteSingleCoil(address uint16, value bool) ProtocolDataUnit {
	var status uint16
	if value {
		status = 0xFFFF
	}
	return readRequest(FuncCodeWriteSingleCoil, address, status)
}

// WriteSingleRegister returns a request PDU for function code 0x06:
// Write Single Register.
func WriteSingleRegister(address, value uint16) ProtocolDataUnit {
	return readRequest(FuncCodeWriteSingleRegister, address, value)
}

// WriteMultipleCoils returns a request PDU for function code 0x0F:
// Write Multiple Coils. Coil statuses are packed LSB first, eight per
// byte; trailing bits of the last byte are zero.
func WriteMultipleCoils(startingAddress uint16, values []bool) ProtocolDataUnit {
	packed := PackBits(values)

	data := make([]byte, 5+len(packed))
	binary.BigEndian.PutUint16(data[0:2], startingAddress)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(len(packed))
	copy(data[5:], packed)

	return ProtocolDataUnit{FunctionCode: FuncCodeWriteMultipleCoils, Data: data}
}

// WriteMultipleRegisters returns a request PDU for function code 0x10:
// Write Multiple Registers.
func WriteMultipleRegisters(startingAddress uint16, values []uint16) ProtocolDataUnit {
	data := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(data[0:2], startingAddress)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+2*i:], v)
	}

	return ProtocolDataUnit{FunctionCode: FuncCodeWriteMultipleRegisters, Data: data}
}

// PackBits packs coil statuses into bytes, eight per byte. Bit 0 of
// each byte holds the first status of its group. The result is
// ceil(len(values)/8) bytes; unused high bits stay zero.
func PackBits(values []bool) []byte {
	packed := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	return packed
}

// UnpackBits is the inverse of PackBits. It extracts n statuses from
// packed bytes, LSB first.
func UnpackBits(packed []byte, n int) []bool {
	values := make([]bool, 0, n)
	for i := 0; i < n; i++ {
		values = append(values, (packed[i/8]>>uint(i%8))&1 == 1)
	}
	return values
}
