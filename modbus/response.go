// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse reports a response PDU too short to classify.
var ErrMalformedResponse = errors.New("modbus: malformed response")

// DecodeResponse classifies a raw response PDU. A PDU whose function
// code has the high bit set is an exception response; it is returned
// as a *Error carrying the clear function code and the exception code.
// Any other PDU is returned as-is, the data left for the caller to
// decode per function code.
func DecodeResponse(raw []byte) (ProtocolDataUnit, error) {
	if len(raw) < 2 {
		return ProtocolDataUnit{}, fmt.Errorf("%w: length '%v' does not meet minimum '2'", ErrMalformedResponse, len(raw))
	}

	if raw[0]&exceptionError != 0 {
		return ProtocolDataUnit{}, &Error{
			FunctionCode:  raw[0] &^ exceptionError,
			ExceptionCode: raw[1],
		}
	}

	return ProtocolDataUnit{FunctionCode: raw[0], Data: raw[1:]}, nil
}

// ExceptionResponse returns the exception PDU for a failed request:
// the request function code with the high bit set, followed by the
// exception code.
func ExceptionResponse(funcCode, exceptionCode byte) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: funcCode | exceptionError,
		Data:         []byte{exceptionCode},
	}
}
