// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"

	"github.com/bureau-foundation/socketrpc/lib/fieldmap"
	"github.com/bureau-foundation/socketrpc/lib/markup"
)

// Reply field names the dispatcher owns.
const (
	FieldReqID     = "reqid"
	FieldSucceeded = "succeeded"
)

// Handler executes one command. It returns the reply fields it wants
// to contribute (nil for none) and whether the command was
// acknowledged. Handlers never return errors: every failure is folded
// into ack=false after logging it through call.Logger.
type Handler func(ctx context.Context, call *Call) (*fieldmap.Map, bool)

// Call is what a Handler receives for one request.
type Call struct {
	Request  *markup.Request
	Executor Executor
	Logger   *slog.Logger
}

// Dispatcher routes decoded requests to command handlers and builds
// their replies. Register extra commands with Handle before the
// dispatcher is shared with a server; Dispatch is safe for concurrent
// use once registration is complete.
type Dispatcher struct {
	executor Executor
	logger   *slog.Logger
	handlers map[string]Handler
}

// New returns a dispatcher with the built-in focus, self, and url
// commands registered against executor.
func New(executor Executor, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		executor: executor,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
	d.Handle("focus", handleFocus)
	d.Handle("self", handleSelf)
	d.Handle("url", handleURL)
	return d
}

// Handle registers a handler for command. Panics if the command is
// already registered.
func (d *Dispatcher) Handle(command string, handler Handler) {
	if _, exists := d.handlers[command]; exists {
		panic(fmt.Sprintf("dispatch.Dispatcher: duplicate handler for command %q", command))
	}
	d.handlers[command] = handler
}

// Commands returns the registered command names in sorted order.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch executes request and returns the reply fields. The reply
// always carries succeeded as its last field, preceded by the echoed
// reqid (when the request had one) and whatever the handler added.
// Dispatch never fails: unknown commands and handler failures are
// reported as succeeded=false.
func (d *Dispatcher) Dispatch(ctx context.Context, request *markup.Request) *fieldmap.Map {
	reply := fieldmap.New()
	if reqid, ok := request.Fields.Get(FieldReqID); ok {
		reply.Set(FieldReqID, reqid)
	}

	handler, exists := d.handlers[request.Command]
	if !exists {
		d.logger.Warn("unknown command",
			"command", request.Command,
			"attributes", request.AttributeNames,
			"children", request.ChildNames,
		)
		reply.Set(FieldSucceeded, fieldmap.FormatBool(false))
		return reply
	}

	call := &Call{
		Request:  request,
		Executor: d.executor,
		Logger:   d.logger.With("command", request.Command),
	}
	delta, ack := d.invoke(ctx, handler, call)
	for name, value := range delta.All() {
		if name == FieldReqID || name == FieldSucceeded {
			continue
		}
		reply.Set(name, value)
	}
	reply.Set(FieldSucceeded, fieldmap.FormatBool(ack))
	return reply
}

// invoke runs handler, converting a panic into ack=false so one bad
// request cannot take down the connection goroutine.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, call *Call) (delta *fieldmap.Map, ack bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			call.Logger.Error("command handler panicked",
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			delta, ack = nil, false
		}
	}()
	return handler(ctx, call)
}
