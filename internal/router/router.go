// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ffutop/modbus-router/modbus"
	"github.com/ffutop/modbus-router/route"
	"github.com/ffutop/modbus-router/transport"
)

// Router represents a single server instance. It serves requests from
// multiple Upstreams (Masters) and dispatches them through a sealed
// route.Map to the registered endpoints.
type Router struct {
	Name      string
	Upstreams []transport.Upstream
	Map       *route.Map
}

// New creates a new Router instance. The map is sealed here: the rule
// set is immutable once the router starts serving.
func New(name string, upstreams []transport.Upstream, m *route.Map) *Router {
	m.Seal()
	return &Router{
		Name:      name,
		Upstreams: upstreams,
		Map:       m,
	}
}

// Start starts all upstream servers and blocks until ctx is done.
func (r *Router) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for i, us := range r.Upstreams {
		wg.Add(1)
		go func(ups transport.Upstream, idx int) {
			defer wg.Done()
			slog.Info("Starting upstream", "router", r.Name, "index", idx)
			if err := ups.Start(ctx, r.HandleRequest); err != nil {
				slog.Error("Upstream stopped with error", "router", r.Name, "index", idx, "err", err)
			}
		}(us, i)
	}

	<-ctx.Done()

	// Graceful shutdown
	for _, us := range r.Upstreams {
		us.Close()
	}

	wg.Wait()
	return nil
}

// HandleRequest is the central dispatch function. It resolves the
// request tuple against the route table and executes the matched
// endpoint. An unroutable request is answered with an IllegalFunction
// exception; a failing endpoint with ServerDeviceFailure.
func (r *Router) HandleRequest(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	address, err := pdu.StartingAddress()
	if err != nil {
		slog.Warn("Request PDU too short to route", "router", r.Name, "slaveID", slaveID, "func", pdu.FunctionCode)
		return modbus.ExceptionResponse(pdu.FunctionCode, modbus.ExceptionCodeIllegalDataValue), nil
	}

	endpoint, ok := r.Map.Match(slaveID, pdu.FunctionCode, address)
	if !ok {
		slog.Warn("No route found for request", "router", r.Name, "slaveID", slaveID, "func", pdu.FunctionCode, "address", address)
		return modbus.ExceptionResponse(pdu.FunctionCode, modbus.ExceptionCodeIllegalFunction), nil
	}

	respPdu, err := endpoint(ctx, slaveID, pdu)
	if err != nil {
		slog.Error("Endpoint failed", "router", r.Name, "slaveID", slaveID, "func", pdu.FunctionCode, "err", err)
		return modbus.ExceptionResponse(pdu.FunctionCode, modbus.ExceptionCodeServerDeviceFailure), nil
	}

	return respPdu, nil
}
