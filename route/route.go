// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package route implements the request dispatch table of a Modbus server.
A Map holds an ordered list of rules; an incoming (slave id, function
code, address) tuple resolves to the endpoint of the first rule whose
constraints accept it.
*/
package route

import (
	"context"
	"errors"

	"github.com/ffutop/modbus-router/modbus"
)

// ErrSealed is returned by AddRule after the map has been sealed.
var ErrSealed = errors.New("route: map is sealed")

// Endpoint handles a dispatched request and produces the response PDU.
type Endpoint func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)

// Constraint accepts either any value or one of a finite set.
// The zero value accepts any value.
type Constraint struct {
	set map[uint16]struct{}
}

// Any returns a Constraint accepting every value.
func Any() Constraint {
	return Constraint{}
}

// OneOf returns a Constraint accepting exactly the given values.
func OneOf(values ...uint16) Constraint {
	set := make(map[uint16]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return Constraint{set: set}
}

// Matches reports whether the constraint accepts v.
func (c Constraint) Matches(v uint16) bool {
	if c.set == nil {
		return true
	}
	_, ok := c.set[v]
	return ok
}

// Rule binds an endpoint to the requests it serves. A constraint left
// as Any matches every value of its field.
type Rule struct {
	Endpoint      Endpoint
	SlaveIDs      Constraint
	FunctionCodes Constraint
	Addresses     Constraint
}

// match tests the function code and address against this rule's own
// constraints. The slave id is deliberately not part of it; see Map.Match.
func (r *Rule) match(functionCode byte, address uint16) bool {
	return r.FunctionCodes.Matches(uint16(functionCode)) && r.Addresses.Matches(address)
}

// Map is an ordered, append-only dispatch table. Rules are registered
// during server setup and the map is sealed before serving begins;
// Match requires no locking on a sealed map.
type Map struct {
	rules  []Rule
	sealed bool
}

// NewMap returns an empty Map in the building state.
func NewMap() *Map {
	return &Map{}
}

// AddRule appends a rule. Insertion order is significant: the first
// matching rule wins, so the most specific rules must be added first.
// Overlapping rules are not reconciled.
func (m *Map) AddRule(endpoint Endpoint, slaveIDs, functionCodes, addresses Constraint) error {
	if m.sealed {
		return ErrSealed
	}
	m.rules = append(m.rules, Rule{
		Endpoint:      endpoint,
		SlaveIDs:      slaveIDs,
		FunctionCodes: functionCodes,
		Addresses:     addresses,
	})
	return nil
}

// Seal transitions the map from building to serving. Further AddRule
// calls fail with ErrSealed.
func (m *Map) Seal() {
	m.sealed = true
}

// Sealed reports whether the map accepts further rules.
func (m *Map) Sealed() bool {
	return m.sealed
}

// Match resolves a request tuple to an endpoint. The slave id is gated
// against the first rule only: if rule 0 constrains slave ids and the
// given id is not a member, no rule matches, regardless of the rest of
// the table. Then rules are tried in insertion order against function
// code and address; the first rule accepting both wins.
func (m *Map) Match(slaveID, functionCode byte, address uint16) (Endpoint, bool) {
	if len(m.rules) == 0 {
		return nil, false
	}

	if !m.rules[0].SlaveIDs.Matches(uint16(slaveID)) {
		return nil, false
	}

	for i := range m.rules {
		if m.rules[i].match(functionCode, address) {
			return m.rules[i].Endpoint, true
		}
	}
	return nil, false
}
