// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/ffutop/modbus-router/modbus"
	rtuframe "github.com/ffutop/modbus-router/modbus/rtu"
	"github.com/ffutop/modbus-router/transport"
	"github.com/ffutop/modbus-router/transport/rtu"
)

// Server implements a Modbus RTU over TCP Server.
// It listens on a TCP port and handles incoming connections as Modbus RTU streams.
type Server struct {
	Address  string
	listener net.Listener
}

// NewServer creates a new RTU over TCP Server.
func NewServer(address string) *Server {
	return &Server{
		Address: address,
	}
}

// Start starts the TCP server.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	s.listener = listener
	slog.Info("RTU over TCP server listening", "addr", s.Address)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Error("Failed to accept connection", "err", err)
				continue
			}
		}
		go s.handleConnection(ctx, conn, handler)
	}
}

// Close closes the server listener.
func (s *Server) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.RequestHandler) {
	defer conn.Close()
	slog.Info("New RTU over TCP client connected", "addr", conn.RemoteAddr())

	buf := make([]byte, rtuframe.MaxSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Read first byte (SlaveID) to detect start of frame.
		n, err := conn.Read(buf[:1])
		if err != nil {
			if err != io.EOF {
				slog.Error("Connection read error", "addr", conn.RemoteAddr(), "err", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		// Read enough header bytes to determine frame length. At least
		// 7 bytes total (including SlaveID) are needed for 0x0F/0x10 to
		// contain the ByteCount field.
		current := 1
		need := 7

		for current < need {
			n, err := conn.Read(buf[current:need])
			if err != nil {
				return
			}
			current += n
		}

		functionCode := buf[1]
		expectedLen, err := rtuframe.CalculateRequestLength(functionCode, buf[:current])
		if err != nil {
			slog.Warn("Invalid RTU frame header", "func", functionCode, "err", err)
			// Close connection on protocol violation to reset stream state.
			return
		}

		// Read remaining body
		for current < expectedLen {
			n, err := conn.Read(buf[current:expectedLen])
			if err != nil {
				return
			}
			current += n
		}

		// Decode and verify CRC
		adu, err := rtu.Decode(buf[:expectedLen])
		if err != nil {
			slog.Warn("RTU frame decode failed", "err", err)
			continue
		}

		respPdu, err := handler(ctx, adu.SlaveID, adu.Pdu)
		if err != nil {
			slog.Error("Handler failed", "err", err)
			exceptionCode := byte(modbus.ExceptionCodeServerDeviceFailure)
			if errors.Is(err, context.DeadlineExceeded) {
				exceptionCode = modbus.ExceptionCodeGatewayTargetDeviceFailedToRespond
			}
			respPdu = modbus.ExceptionResponse(adu.Pdu.FunctionCode, exceptionCode)
		}

		respAdu := &rtu.ApplicationDataUnit{
			SlaveID: adu.SlaveID,
			Pdu:     respPdu,
		}

		respRaw, err := respAdu.Encode()
		if err != nil {
			slog.Error("Failed to encode response", "err", err)
			continue
		}

		if _, err := conn.Write(respRaw); err != nil {
			slog.Error("Failed to write response", "err", err)
			return
		}
	}
}
