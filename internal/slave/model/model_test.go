// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package model

import (
	"bytes"
	"testing"
)

func TestReadCoils_Packing(t *testing.T) {
	m := NewDataModel()
	for _, addr := range []int{0, 2, 3, 8} {
		m.Coils[addr] = 1
	}

	got, err := m.ReadCoils(0, 9)
	if err != nil {
		t.Fatalf("ReadCoils() error = %v", err)
	}
	// Bits 0, 2, 3 in the first byte, bit 0 in the second.
	want := []byte{0x0D, 0x01}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadCoils() = % X, want % X", got, want)
	}
}

func TestReadCoils_ByteCount(t *testing.T) {
	m := NewDataModel()
	tests := []struct {
		quantity uint16
		want     int
	}{
		{1, 1},
		{8, 1},
		{9, 2},
		{16, 2},
		{17, 3},
	}
	for _, tt := range tests {
		got, err := m.ReadCoils(0, tt.quantity)
		if err != nil {
			t.Fatalf("ReadCoils(0, %v) error = %v", tt.quantity, err)
		}
		if len(got) != tt.want {
			t.Errorf("ReadCoils(0, %v) returned %v bytes, want %v", tt.quantity, len(got), tt.want)
		}
	}
}

func TestWriteSingleCoil(t *testing.T) {
	m := NewDataModel()

	tests := []struct {
		name    string
		value   uint16
		want    byte
		wantErr bool
	}{
		{"StandardOn", 0xFF00, 1, false},
		{"LegacyOn", 0xFFFF, 1, false},
		{"Off", 0x0000, 0, false},
		{"Invalid", 0x1234, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.WriteSingleCoil(7, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("WriteSingleCoil() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && m.Coils[7] != tt.want {
				t.Errorf("Coils[7] = %v, want %v", m.Coils[7], tt.want)
			}
		})
	}
}

func TestWriteMultipleCoils_RoundTrip(t *testing.T) {
	m := NewDataModel()

	// 0x0D 0x01: bits 0, 2, 3, 8.
	if err := m.WriteMultipleCoils(100, 9, []byte{0x0D, 0x01}); err != nil {
		t.Fatalf("WriteMultipleCoils() error = %v", err)
	}

	got, err := m.ReadCoils(100, 9)
	if err != nil {
		t.Fatalf("ReadCoils() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x0D, 0x01}) {
		t.Errorf("ReadCoils() = % X, want 0D 01", got)
	}
}

func TestWriteMultipleCoils_ShortData(t *testing.T) {
	m := NewDataModel()
	if err := m.WriteMultipleCoils(0, 9, []byte{0x0D}); err == nil {
		t.Error("WriteMultipleCoils() with short data expected error, got nil")
	}
}

func TestRegisters_BigEndian(t *testing.T) {
	m := NewDataModel()
	m.HoldingRegisters[1] = 0x1234

	got, err := m.ReadHoldingRegisters(1, 1)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x12, 0x34}) {
		t.Errorf("ReadHoldingRegisters() = % X, want 12 34", got)
	}
}

func TestWriteMultipleRegisters(t *testing.T) {
	m := NewDataModel()

	if err := m.WriteMultipleRegisters(10, 2, []byte{0xBE, 0xEF, 0x01, 0x02}); err != nil {
		t.Fatalf("WriteMultipleRegisters() error = %v", err)
	}
	if m.HoldingRegisters[10] != 0xBEEF || m.HoldingRegisters[11] != 0x0102 {
		t.Errorf("HoldingRegisters[10:12] = %04X %04X, want BEEF 0102",
			m.HoldingRegisters[10], m.HoldingRegisters[11])
	}
}

func TestValidateRange(t *testing.T) {
	m := NewDataModel()

	tests := []struct {
		name     string
		address  uint16
		quantity uint16
		wantErr  bool
	}{
		{"FullSpan", 0, 65535, false},
		{"LastAddress", 65535, 1, false},
		{"ZeroQuantity", 0, 0, true},
		{"Overflow", 65535, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ReadDiscreteInputs(tt.address, tt.quantity)
			if (err != nil) != tt.wantErr {
				t.Errorf("ReadDiscreteInputs(%v, %v) error = %v, wantErr %v",
					tt.address, tt.quantity, err, tt.wantErr)
			}
		})
	}
}
