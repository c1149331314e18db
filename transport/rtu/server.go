// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ffutop/modbus-router/internal/config"
	"github.com/ffutop/modbus-router/modbus"
	"github.com/ffutop/modbus-router/modbus/crc"
	rtuframe "github.com/ffutop/modbus-router/modbus/rtu"
	"github.com/ffutop/modbus-router/transport"
	"github.com/grid-x/serial"
)

// Server implements a Modbus RTU Server (Upstream).
// It acts as a Slave on the serial bus, waiting for requests from an external Master.
type Server struct {
	Config config.SerialConfig
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig) *Server {
	return &Server{
		Config: cfg,
	}
}

// Start starts the RTU server.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	spConfig := &serial.Config{
		Address:  s.Config.Device,
		BaudRate: s.Config.BaudRate,
		DataBits: s.Config.DataBits,
		StopBits: s.Config.StopBits,
		Parity:   s.Config.Parity,
		Timeout:  s.Config.Timeout, // Read timeout
	}

	port, err := serial.Open(spConfig)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	defer port.Close()
	slog.Info("RTU Server listening", "device", s.Config.Device)

	// handle close
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return s.scanLoop(ctx, port, handler)
}

func (s *Server) scanLoop(ctx context.Context, port io.ReadWriteCloser, handler transport.RequestHandler) error {
	buf := make([]byte, rtuframe.MaxSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// Read 1 byte to unblock
		n, err := port.Read(buf[:1])
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		if n == 0 {
			continue
		}

		// Read header (attempt 7 bytes total to cover ByteCount for variable length functions)
		current := 1
		need := 7

		for current < need {
			n, err := port.Read(buf[current:need])
			if err != nil {
				break
			}
			current += n
		}

		if current < 2 {
			continue
		}

		functionCode := buf[1]

		// Determine expected length
		expectedLen, err := rtuframe.CalculateRequestLength(functionCode, buf[:current])
		if err != nil {
			continue
		}

		// Read remaining
		for current < expectedLen {
			n, err := port.Read(buf[current:expectedLen])
			if err != nil {
				break
			}
			current += n
		}

		if current != expectedLen {
			continue
		}

		// Verify CRC
		var c crc.CRC
		c.Reset().PushBytes(buf[:expectedLen-2])
		checksum := c.Value()
		receivedChecksum := uint16(buf[expectedLen-1])<<8 | uint16(buf[expectedLen-2])

		if checksum != receivedChecksum {
			continue
		}

		// Extract PDU
		slaveID := buf[0]
		pduData := make([]byte, expectedLen-4)
		copy(pduData, buf[2:expectedLen-2])

		reqPDU := modbus.ProtocolDataUnit{
			FunctionCode: functionCode,
			Data:         pduData,
		}

		// Dispatch
		go func(sid byte, pdu modbus.ProtocolDataUnit) {
			respPDU, err := handler(ctx, sid, pdu)
			if err != nil {
				slog.Error("Upstream handler failed", "err", err)
				respPDU = modbus.ExceptionResponse(pdu.FunctionCode, modbus.ExceptionCodeServerDeviceFailure)
			}

			respAdu := &ApplicationDataUnit{SlaveID: sid, Pdu: respPDU}
			respBuf, err := respAdu.Encode()
			if err != nil {
				slog.Error("Failed to encode RTU response", "err", err)
				return
			}

			_, _ = port.Write(respBuf)
		}(slaveID, reqPDU)
	}
}

func (s *Server) Close() error {
	return nil
}
