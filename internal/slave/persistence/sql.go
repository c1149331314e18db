// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-router/internal/slave/model"
)

// SQLStorage implements persistence using a SQL database. Registers
// are stored one row per address in the `modbus_registers` table,
// created on first load.
type SQLStorage struct {
	driver string
	dsn    string
	db     *sql.DB
	model  *model.DataModel
}

// NewSQLStorage creates a new SQLStorage.
// Note: The driver (e.g., sqlite3, mysql) must be imported by the embedder.
func NewSQLStorage(driver, dsn string) *SQLStorage {
	return &SQLStorage{
		driver: driver,
		dsn:    dsn,
	}
}

// Load connects to the DB and loads the data.
func (s *SQLStorage) Load() (*model.DataModel, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	m := model.NewDataModel()
	s.model = m // OnWrite reads changed values back from the model

	rows, err := db.Query("SELECT table_type, address, value FROM modbus_registers")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to query registers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t int
		var addr, val int
		if err := rows.Scan(&t, &addr, &val); err != nil {
			continue
		}
		if addr > model.MaxAddress {
			continue
		}

		switch model.TableType(t) {
		case model.TableCoils:
			m.Coils[addr] = byte(val)
		case model.TableDiscreteInputs:
			m.DiscreteInputs[addr] = byte(val)
		case model.TableHoldingRegisters:
			m.HoldingRegisters[addr] = uint16(val)
		case model.TableInputRegisters:
			m.InputRegisters[addr] = uint16(val)
		}
	}

	return m, nil
}

func (s *SQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS modbus_registers (
		table_type INTEGER,
		address INTEGER,
		value INTEGER,
		PRIMARY KEY (table_type, address)
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save is a no-op: OnWrite keeps the database current row by row, so a
// full dump would only duplicate work.
func (s *SQLStorage) Save(m *model.DataModel) error {
	return nil
}

// OnWrite upserts the changed registers to the DB. It is called after
// the model update, so the new values can be read back from the model.
func (s *SQLStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if s.db == nil || s.model == nil {
		return
	}

	for i := 0; i < int(quantity); i++ {
		addr := int(address) + i
		var val int64

		switch table {
		case model.TableCoils:
			val = int64(s.model.Coils[addr])
		case model.TableDiscreteInputs:
			val = int64(s.model.DiscreteInputs[addr])
		case model.TableHoldingRegisters:
			val = int64(s.model.HoldingRegisters[addr])
		case model.TableInputRegisters:
			val = int64(s.model.InputRegisters[addr])
		}

		// Upsert (SQLite compatible)
		query := "INSERT INTO modbus_registers (table_type, address, value) VALUES (?, ?, ?) ON CONFLICT(table_type, address) DO UPDATE SET value=excluded.value"
		_, err := s.db.Exec(query, int(table), addr, val)
		if err != nil {
			slog.Error("Failed to persist register", "table", table, "addr", addr, "err", err)
		}
	}
}

func (s *SQLStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
