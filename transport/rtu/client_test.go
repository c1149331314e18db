// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ffutop/modbus-router/internal/config"
	"github.com/ffutop/modbus-router/modbus"
)

// newMockedClient returns a client whose serial port is replaced by an
// in-memory pair. connect() skips serial.Open when the port is pre-set.
func newMockedClient(response []byte) (*Client, *bytes.Buffer) {
	writer := &bytes.Buffer{}
	mock := &mockPort{Reader: bytes.NewReader(response), Writer: writer}

	client := NewClient(config.SerialConfig{})
	client.rtuSerialTransporter.port = mock
	client.Config.Timeout = 100 * time.Millisecond
	return client, writer
}

func TestClient_Send(t *testing.T) {
	// Request: Read Holding Registers, slave 1, addr 0, quantity 1.
	expectedReq := buildFrame(0x01, []byte{0x03, 0x00, 0x00, 0x00, 0x01})
	respADU := buildFrame(0x01, []byte{0x03, 0x02, 0xAA, 0xBB})

	client, writer := newMockedClient(respADU)

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	resp, err := client.Send(context.Background(), 1, pdu)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if !bytes.Equal(writer.Bytes(), expectedReq) {
		t.Errorf("Request mismatch.\nWant: % X\nGot:  % X", expectedReq, writer.Bytes())
	}
	if resp.FunctionCode != 0x03 {
		t.Errorf("Response FunctionCode = %02X, want 03", resp.FunctionCode)
	}
	if !bytes.Equal(resp.Data, []byte{0x02, 0xAA, 0xBB}) {
		t.Errorf("Response Data = % X, want 02 AA BB", resp.Data)
	}
}

func TestClient_ExceptionResponse(t *testing.T) {
	// Slave reports Illegal Data Address.
	respADU := buildFrame(0x01, []byte{0x83, 0x02})

	client, _ := newMockedClient(respADU)

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0xFF, 0xFF, 0x00, 0x01}}
	_, err := client.Send(context.Background(), 1, pdu)
	if err == nil {
		t.Fatal("Send() expected error, got nil")
	}

	var mbErr *modbus.Error
	if !errors.As(err, &mbErr) {
		t.Fatalf("Send() error = %T (%v), want *modbus.Error", err, err)
	}
	if mbErr.FunctionCode != 0x03 {
		t.Errorf("FunctionCode = %02X, want 03", mbErr.FunctionCode)
	}
	if mbErr.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("ExceptionCode = %v, want %v", mbErr.ExceptionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
}

func TestClient_CRCError(t *testing.T) {
	respADU := buildFrame(0x01, []byte{0x03, 0x02, 0xAA, 0xBB})
	respADU[len(respADU)-1] ^= 0xFF // Corrupt checksum

	client, _ := newMockedClient(respADU)

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	if _, err := client.Send(context.Background(), 1, pdu); err == nil {
		t.Error("Send() expected CRC error, got nil")
	}
}

func TestClient_SlaveIDMismatch(t *testing.T) {
	// Response from the wrong slave must fail verification.
	respADU := buildFrame(0x02, []byte{0x03, 0x02, 0xAA, 0xBB})

	client, _ := newMockedClient(respADU)

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	if _, err := client.Send(context.Background(), 1, pdu); err == nil {
		t.Error("Send() expected slave id mismatch error, got nil")
	}
}
