// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package tcp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ffutop/modbus-router/modbus"
)

// mockSlave accepts one connection per request and answers every
// request with the given response PDU, echoing the transaction id.
func mockSlave(t *testing.T, respPDU []byte) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				buf := make([]byte, 512)
				for {
					n, err := conn.Read(buf)
					if err != nil || n < 8 {
						return
					}

					resp := make([]byte, 7+len(respPDU))
					copy(resp[0:2], buf[0:2]) // Echo TransID
					binary.BigEndian.PutUint16(resp[2:], 0)
					binary.BigEndian.PutUint16(resp[4:], uint16(1+len(respPDU)))
					resp[6] = buf[6] // Echo UnitID
					copy(resp[7:], respPDU)

					if _, err := conn.Write(resp); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return l
}

func TestClient_Send(t *testing.T) {
	l := mockSlave(t, []byte{0x03, 0x02, 0xAA, 0xBB})
	defer l.Close()

	client := NewClient(l.Addr().String())
	client.Timeout = 1 * time.Second

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	resp, err := client.Send(context.Background(), 1, pdu)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if resp.FunctionCode != 0x03 {
		t.Errorf("Response FunctionCode = %02X, want 03", resp.FunctionCode)
	}
	if !bytes.Equal(resp.Data, []byte{0x02, 0xAA, 0xBB}) {
		t.Errorf("Response Data = % X, want 02 AA BB", resp.Data)
	}
}

func TestClient_ExceptionResponse(t *testing.T) {
	// Slave reports Illegal Data Address for function 0x03.
	l := mockSlave(t, []byte{0x83, 0x02})
	defer l.Close()

	client := NewClient(l.Addr().String())
	client.Timeout = 1 * time.Second

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

func TestClient_Timeout(t *testing.T) {
	// Listener that accepts but never answers.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	client := NewClient(l.Addr().String())
	client.Timeout = 100 * time.Millisecond

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	if _, err := client.Send(context.Background(), 1, pdu); err == nil {
		t.Error("Send() expected timeout error, got nil")
	}
}

func TestClient_TransactionIDIncrements(t *testing.T) {
	l := mockSlave(t, []byte{0x03, 0x02, 0x00, 0x00})
	defer l.Close()

	client := NewClient(l.Addr().String())
	client.Timeout = 1 * time.Second

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	for i := 0; i < 3; i++ {
		if _, err := client.Send(context.Background(), 1, pdu); err != nil {
			t.Fatalf("Send() #%d error = %v", i, err)
		}
	}
	if client.transactionID != 3 {
		t.Errorf("transactionID = %v, want 3", client.transactionID)
	}
}
