// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package modbus

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeResponse_Normal(t *testing.T) {
	pdu, err := DecodeResponse([]byte{0x03, 0x02, 0xAA, 0xBB})
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if pdu.FunctionCode != 0x03 {
		t.Errorf("FunctionCode = %02X, want 03", pdu.FunctionCode)
	}
	if !bytes.Equal(pdu.Data, []byte{0x02, 0xAA, 0xBB}) {
		t.Errorf("Data = % X, want 02 AA BB", pdu.Data)
	}
}

func TestDecodeResponse_Exception(t *testing.T) {
	_, err := DecodeResponse([]byte{0x83, 0x03})
	if err == nil {
		t.Fatal("DecodeResponse() expected error, got nil")
	}

	var mbErr *Error
	if !errors.As(err, &mbErr) {
		t.Fatalf("DecodeResponse() error = %T, want *Error", err)
	}
	if mbErr.FunctionCode != 0x03 {
		t.Errorf("FunctionCode = %02X, want 03", mbErr.FunctionCode)
	}
	if mbErr.ExceptionCode != ExceptionCodeIllegalDataValue {
		t.Errorf("ExceptionCode = %v, want %v", mbErr.ExceptionCode, ExceptionCodeIllegalDataValue)
	}
	if mbErr.Error() == "" {
		t.Error("Error() returned empty string")
	}
}

func TestDecodeResponse_UnknownExceptionCode(t *testing.T) {
	// Codes outside the standard set pass through untouched.
	_, err := DecodeResponse([]byte{0x81, 0x2A})

	var mbErr *Error
	if !errors.As(err, &mbErr) {
		t.Fatalf("DecodeResponse() error = %T, want *Error", err)
	}
	if mbErr.FunctionCode != 0x01 {
		t.Errorf("FunctionCode = %02X, want 01", mbErr.FunctionCode)
	}
	if mbErr.ExceptionCode != 0x2A {
		t.Errorf("ExceptionCode = %02X, want 2A", mbErr.ExceptionCode)
	}
}

func TestDecodeResponse_Malformed(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, {0x83}} {
		_, err := DecodeResponse(raw)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("DecodeResponse(% X) error = %v, want ErrMalformedResponse", raw, err)
		}
	}
}

func TestExceptionResponse_RoundTrip(t *testing.T) {
	resp := ExceptionResponse(0x01, ExceptionCodeIllegalDataAddress)
	if resp.FunctionCode != 0x81 {
		t.Errorf("FunctionCode = %02X, want 81", resp.FunctionCode)
	}

	_, err := DecodeResponse(resp.Encode())
	var mbErr *Error
	if !errors.As(err, &mbErr) {
		t.Fatalf("DecodeResponse() error = %T, want *Error", err)
	}
	if mbErr.FunctionCode != 0x01 || mbErr.ExceptionCode != ExceptionCodeIllegalDataAddress {
		t.Errorf("got function %02X exception %v, want function 01 exception %v",
			mbErr.FunctionCode, mbErr.ExceptionCode, ExceptionCodeIllegalDataAddress)
	}
}
