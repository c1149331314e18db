// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc computes the CRC-16 (IBM) checksum used by Modbus RTU framing.
package crc

// CRC is the cumulative checksum state. Call Reset before the first use.
type CRC struct {
	value uint16
}

// Reset initializes the checksum to its starting value.
func (crc *CRC) Reset() *CRC {
	crc.value = 0xFFFF
	return crc
}

// PushByte updates the checksum with a single byte.
func (crc *CRC) PushByte(b byte) *CRC {
	crc.value ^= uint16(b)
	for i := 0; i < 8; i++ {
		if crc.value&1 != 0 {
			crc.value = (crc.value >> 1) ^ 0xA001
		} else {
			crc.value >>= 1
		}
	}
	return crc
}

// PushBytes updates the checksum with a slice of bytes.
func (crc *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		crc.PushByte(b)
	}
	return crc
}

// Value returns the current checksum.
func (crc *CRC) Value() uint16 {
	return crc.value
}
