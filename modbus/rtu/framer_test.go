// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestCalculateRequestLength(t *testing.T) {
	tests := []struct {
		name     string
		funcCode byte
		header   []byte
		want     int
		wantErr  bool
	}{
		{"ReadHoldingRegisters", 0x03, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, 8, false},
		{"WriteSingleRegister", 0x06, []byte{0x01, 0x06, 0x00, 0x00, 0xAA, 0xBB}, 8, false},
		{"WriteMultipleRegisters_ShortHeader", 0x10, []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x01}, 0, true},
		{"WriteMultipleRegisters_Valid", 0x10, []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x01, 0x02}, 7 + 2 + 2, false},
		{"UnknownFunction", 0x99, []byte{0x01, 0x99}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateRequestLength(tt.funcCode, tt.header)
			if (err != nil) != tt.wantErr {
				t.Errorf("CalculateRequestLength() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("CalculateRequestLength() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateResponseLength(t *testing.T) {
	tests := []struct {
		name string
		adu  []byte
		want int
	}{
		// ReadCoils 9 coils: 4 + 1 (byte count) + 2 (data)
		{"ReadCoils9", []byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x09}, 7},
		// ReadHoldingRegisters 2 regs: 4 + 1 + 4
		{"ReadHolding2", []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}, 9},
		// WriteSingleRegister: echo, 4 + 4
		{"WriteSingle", []byte{0x01, 0x06, 0x00, 0x00, 0xAA, 0xBB}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateResponseLength(tt.adu); got != tt.want {
				t.Errorf("CalculateResponseLength() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadResponse_Exception(t *testing.T) {
	// Exception frame: slave 1, func 0x83, code 0x02, CRC (2 arbitrary bytes,
	// ReadResponse does not verify the checksum itself).
	frame := []byte{0x01, 0x83, 0x02, 0xC0, 0xF1}
	got, err := ReadResponse(0x01, 0x03, bytes.NewReader(frame), time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("ReadResponse() = % X, want % X", got, frame)
	}
}

func TestReadResponse_InvalidLength(t *testing.T) {
	// ReadHoldingRegisters response with a zero byte count is rejected.
	frame := []byte{0x01, 0x03, 0x00}
	_, err := ReadResponse(0x01, 0x03, bytes.NewReader(frame), time.Now().Add(time.Second))
	var lenErr *InvalidLengthError
	if !errors.As(err, &lenErr) {
		t.Fatalf("ReadResponse() error = %v, want *InvalidLengthError", err)
	}
}
