// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package persistence

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ffutop/modbus-router/internal/slave/model"
)

func TestMemoryStorage_Load(t *testing.T) {
	ms := NewMemoryStorage()
	m, err := ms.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(m.HoldingRegisters) != model.MaxAddress+1 {
		t.Errorf("HoldingRegisters length = %v, want %v", len(m.HoldingRegisters), model.MaxAddress+1)
	}

	// Memory storage does not persist: a second Load yields a fresh model.
	m.HoldingRegisters[10] = 0xBEEF
	ms.OnWrite(model.TableHoldingRegisters, 10, 1)

	m2, err := ms.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m2.HoldingRegisters[10] != 0 {
		t.Errorf("HoldingRegisters[10] = %04X after reload, want 0", m2.HoldingRegisters[10])
	}
}

func TestFileStorage_Persist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slave.bin")

	ms := NewFileStorage(path)
	m, err := ms.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	m.HoldingRegisters[7] = 0xBEEF
	m.Coils[3] = 1
	ms.OnWrite(model.TableHoldingRegisters, 7, 1)
	ms.OnWrite(model.TableCoils, 3, 1)
	if err := ms.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen and verify the data survived.
	ms2 := NewFileStorage(path)
	m2, err := ms2.Load()
	if err != nil {
		t.Fatalf("Load() after reopen error = %v", err)
	}
	defer ms2.Close()

	if m2.HoldingRegisters[7] != 0xBEEF {
		t.Errorf("HoldingRegisters[7] = %04X, want BEEF", m2.HoldingRegisters[7])
	}
	if m2.Coils[3] != 1 {
		t.Errorf("Coils[3] = %v, want 1", m2.Coils[3])
	}
}

func TestMmapStorage_Persist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slave.mmap")

	ms := NewMmapStorage(path)
	m, err := ms.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	m.HoldingRegisters[100] = 0x1234
	ms.OnWrite(model.TableHoldingRegisters, 100, 1)
	if err := ms.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ms2 := NewMmapStorage(path)
	m2, err := ms2.Load()
	if err != nil {
		t.Fatalf("Load() after reopen error = %v", err)
	}
	defer ms2.Close()

	if m2.HoldingRegisters[100] != 0x1234 {
		t.Errorf("HoldingRegisters[100] = %04X, want 1234", m2.HoldingRegisters[100])
	}
}

func TestOpen_BackendSelection(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		typ  string
		path string
		want string
	}{
		{"memory", "", "*persistence.MemoryStorage"},
		{"file", filepath.Join(dir, "f.bin"), "*persistence.FileStorage"},
		{"mmap", filepath.Join(dir, "m.bin"), "*persistence.MmapStorage"},
		{"", "", "*persistence.MemoryStorage"},
		{"bogus", "", "*persistence.MemoryStorage"},
	}

	for _, tt := range tests {
		t.Run("type_"+tt.typ, func(t *testing.T) {
			s := Open(tt.typ, tt.path)
			got := fmt.Sprintf("%T", s)
			if got != tt.want {
				t.Errorf("Open(%q) = %s, want %s", tt.typ, got, tt.want)
			}
		})
	}
}
