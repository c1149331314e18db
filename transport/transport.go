// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"

	"github.com/ffutop/modbus-router/modbus"
)

// RequestHandler handles a decoded Modbus request. An Upstream strips
// transport framing down to the slave id and PDU before calling it;
// the handler produces the response PDU to be framed and written back.
type RequestHandler func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// Upstream represents a source of requests (a Modbus master connected to us).
// It acts as a server.
type Upstream interface {
	// Start starts the server and blocks. It should be called in a goroutine.
	Start(ctx context.Context, handler RequestHandler) error
	Close() error
}

// Downstream represents a destination for requests (a Modbus slave we
// connect to). It acts as a client.
type Downstream interface {
	// Send sends a PDU to a specific SlaveID and returns the response PDU.
	Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)
	Connect(ctx context.Context) error
	Close() error
}
