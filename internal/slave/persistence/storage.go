// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"log/slog"

	"github.com/ffutop/modbus-router/internal/slave/model"
)

// Storage defines the interface for persisting the slave data model.
type Storage interface {
	// Load loads the data model from storage.
	// If no data exists, it should return a new empty model.
	Load() (*model.DataModel, error)

	// Save saves the current data model to storage.
	Save(model *model.DataModel) error

	// OnWrite is a hook called whenever a register is modified.
	// It allows the storage to perform real-time persistence (e.g. sync to disk or DB).
	OnWrite(table model.TableType, address, quantity uint16)
}

// Open selects a storage backend by type name. Unknown types fall back
// to non-persistent memory storage.
func Open(typ, path string) Storage {
	switch typ {
	case "file":
		slog.Info("Initializing slave with file persistence", "path", path)
		return NewFileStorage(path)
	case "mmap":
		slog.Info("Initializing slave with MMAP persistence", "path", path)
		return NewMmapStorage(path)
	case "sql":
		slog.Info("Initializing slave with SQL persistence", "driver", "sqlite3", "dsn", path)
		// The embedding binary must import the driver (e.g. _ "github.com/mattn/go-sqlite3")
		return NewSQLStorage("sqlite3", path)
	default:
		slog.Info("Initializing slave with memory storage (non-persistent)")
		return NewMemoryStorage()
	}
}
