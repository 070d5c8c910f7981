// Package upstream implements the Upstream Connector contract (spec.md
// §4.7): a factory that returns a Transport Port connected to the LLM
// realtime endpoint, resolved through a Dispatcher so a legacy-compatible
// shim can be injected at runtime ahead of the default connector.
package upstream

import (
	"context"
	"fmt"
	"sync"

	"github.com/dohr-michael/ozzie/internal/transport"
)

// Connector is a zero-argument asynchronous factory returning a Transport
// Port already connected to an upstream LLM endpoint. It owns URL
// composition, credential headers, and transport-library specifics.
type Connector func(ctx context.Context) (transport.Port, error)

// Dispatcher resolves the connector a Session should use: the named legacy
// shim if one is registered, else the default connector (spec.md §4.7, §9
// legacy-shim supplement).
type Dispatcher struct {
	mu        sync.RWMutex
	def       Connector
	legacy    Connector
	named     map[string]Connector
}

// NewDispatcher builds a Dispatcher around the default connector used when
// no legacy shim has been registered.
func NewDispatcher(def Connector) *Dispatcher {
	return &Dispatcher{def: def, named: make(map[string]Connector)}
}

// Register installs a named connector, returning whichever connector
// previously held that name (nil if none). Registering under the
// reserved name "legacy" also makes Resolve prefer it over the default,
// per the legacy-compatible-shim path spec.md §4.7 describes.
func (d *Dispatcher) Register(name string, c Connector) Connector {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.named[name]
	d.named[name] = c
	if name == "legacy" {
		prev = d.legacy
		d.legacy = c
	}
	return prev
}

// Unregister removes a named connector, returning it if present.
func (d *Dispatcher) Unregister(name string) Connector {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev := d.named[name]
	delete(d.named, name)
	if name == "legacy" {
		d.legacy = nil
	}
	return prev
}

// Resolve returns the connector a new Session should call: the legacy
// shim if registered, else the default. It never returns nil unless
// neither was configured.
func (d *Dispatcher) Resolve() (Connector, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.legacy != nil {
		return d.legacy, nil
	}
	if d.def != nil {
		return d.def, nil
	}
	return nil, fmt.Errorf("upstream: no connector registered")
}

// Named returns a specific registered connector by name, for callers that
// need to bypass the legacy-preference rule (e.g. tests, admin tooling).
func (d *Dispatcher) Named(name string) (Connector, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.named[name]
	return c, ok
}
