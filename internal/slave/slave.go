// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave implements the Modbus server-side protocol logic on
// top of a DataModel. A Slave's Process method has the route.Endpoint
// shape, so units configured in the route table dispatch straight into it.
package slave

import (
	"context"
	"encoding/binary"

	"github.com/ffutop/modbus-router/internal/slave/model"
	"github.com/ffutop/modbus-router/internal/slave/persistence"
	"github.com/ffutop/modbus-router/modbus"
)

// Slave executes request PDUs against a data model and reports writes
// to its storage backend.
type Slave struct {
	model   *model.DataModel
	storage persistence.Storage
}

// New creates a new Slave.
func New(m *model.DataModel, storage persistence.Storage) *Slave {
	return &Slave{model: m, storage: storage}
}

// Process executes the Modbus Function Code against the memory model.
func (s *Slave) Process(ctx context.Context, slaveID byte, req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils:
		return s.handleReadBits(req, s.model.ReadCoils)
	case modbus.FuncCodeReadDiscreteInputs:
		return s.handleReadBits(req, s.model.ReadDiscreteInputs)
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleReadRegisters(req, s.model.ReadHoldingRegisters)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleReadRegisters(req, s.model.ReadInputRegisters)
	case modbus.FuncCodeWriteSingleCoil:
		return s.handleWriteSingleCoil(req)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req)
	case modbus.FuncCodeWriteMultipleCoils:
		return s.handleWriteMultipleCoils(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return s.handleWriteMultipleRegisters(req)
	default:
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}
}

// handleReadBits serves function codes 0x01 and 0x02. Up to 2000 bits
// per request.
func (s *Slave) handleReadBits(req modbus.ProtocolDataUnit, read func(uint16, uint16) ([]byte, error)) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 2000 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	data, err := read(address, quantity)
	if err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	return s.byteCountResponse(req.FunctionCode, data), nil
}

// handleReadRegisters serves function codes 0x03 and 0x04. Up to 125
// registers per request.
func (s *Slave) handleReadRegisters(req modbus.ProtocolDataUnit, read func(uint16, uint16) ([]byte, error)) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > 125 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	data, err := read(address, quantity)
	if err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}

	return s.byteCountResponse(req.FunctionCode, data), nil
}

func (s *Slave) handleWriteSingleCoil(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.model.WriteSingleCoil(address, value); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	s.storage.OnWrite(model.TableCoils, address, 1)

	return req, nil // Echo request
}

func (s *Slave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.model.WriteSingleRegister(address, value); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	s.storage.OnWrite(model.TableHoldingRegisters, address, 1)

	return req, nil // Echo request
}

func (s *Slave) handleWriteMultipleCoils(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 6 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > 1968 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	if byte(len(req.Data)-5) != byteCount {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	if err := s.model.WriteMultipleCoils(address, quantity, req.Data[5:]); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	s.storage.OnWrite(model.TableCoils, address, quantity)

	return s.echoRangeResponse(req.FunctionCode, address, quantity), nil
}

func (s *Slave) handleWriteMultipleRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 6 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])
	byteCount := req.Data[4]

	if quantity < 1 || quantity > 123 {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	if byte(len(req.Data)-5) != byteCount {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	if err := s.model.WriteMultipleRegisters(address, quantity, req.Data[5:]); err != nil {
		return s.exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress), nil
	}
	s.storage.OnWrite(model.TableHoldingRegisters, address, quantity)

	return s.echoRangeResponse(req.FunctionCode, address, quantity), nil
}

// byteCountResponse builds a read response: byte count followed by data.
func (s *Slave) byteCountResponse(funcCode byte, data []byte) modbus.ProtocolDataUnit {
	respData := make([]byte, 1+len(data))
	respData[0] = byte(len(data))
	copy(respData[1:], data)

	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode,
		Data:         respData,
	}
}

// echoRangeResponse builds a multiple-write response: address and quantity.
func (s *Slave) echoRangeResponse(funcCode byte, address, quantity uint16) modbus.ProtocolDataUnit {
	respData := make([]byte, 4)
	binary.BigEndian.PutUint16(respData[0:2], address)
	binary.BigEndian.PutUint16(respData[2:4], quantity)

	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode,
		Data:         respData,
	}
}

func (s *Slave) exception(funcCode byte, code byte) modbus.ProtocolDataUnit {
	return modbus.ExceptionResponse(funcCode, code)
}
