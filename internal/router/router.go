// ABOUTME: Routes mixed bus output to audio devices
// ABOUTME: Tracks route health and degrades instead of failing on unplug
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// RouteState tracks a route through its lifecycle. A Degraded route's
// device went away: writes are dropped silently until the device
// returns or the route is closed.
type RouteState int

const (
	RouteCreated RouteState = iota
	RouteActive
	RouteDegraded
	RouteClosed
)

func (s RouteState) String() string {
	switch s {
	case RouteCreated:
		return "created"
	case RouteActive:
		return "active"
	case RouteDegraded:
		return "degraded"
	case RouteClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Route connects one mixer bus to one device
type Route struct {
	ID       string
	Bus      string
	DeviceID string

	mu    sync.Mutex
	state RouteState
	sink  Sink
}

// State returns the route's current state
func (r *Route) State() RouteState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats is a snapshot of router activity
type Stats struct {
	Routes        int
	Active        int
	Degraded      int
	BlocksWritten uint64
	BlocksDropped uint64
}

// Router owns all routes and the device snapshot. It implements the
// mixer's output interface: each rendered block fans out to every
// active route bound to that bus.
type Router struct {
	backend Backend
	format  audio.Format
	log     *log.Logger

	// backendMu serializes backend teardown against enumeration.
	// Refresh holds the read side across Enumerate and reopen; CloseAll
	// takes the write side before backend.Close so the backend is never
	// freed under a running refresh.
	backendMu sync.RWMutex

	mu      sync.Mutex
	routes  map[string]*Route // keyed by device id, one route per device
	devices []Device
	closed  bool

	written atomic.Uint64
	dropped atomic.Uint64
}

// New creates a router over backend and takes an initial device
// snapshot. format is the block format every sink is opened with.
func New(backend Backend, format audio.Format, logger *log.Logger) (*Router, error) {
	if logger == nil {
		logger = log.Default()
	}
	r := &Router{
		backend: backend,
		format:  format,
		log:     logger.WithPrefix("router"),
		routes:  make(map[string]*Route),
	}
	devices, err := backend.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("initial device enumeration: %w", err)
	}
	r.devices = devices
	r.log.Info("devices discovered", "count", len(devices))
	return r, nil
}

// Devices returns the most recent device snapshot
func (r *Router) Devices() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// OpenRoute binds bus output to the device. A device carries at most
// one route; closing the old route first is the caller's job.
func (r *Router) OpenRoute(busID, deviceID string) (*Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if _, ok := r.routes[deviceID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRouteExists, deviceID)
	}
	if !r.deviceKnownLocked(deviceID) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, deviceID)
	}

	sink, err := r.backend.Open(deviceID, r.format)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, deviceID, err)
	}

	route := &Route{
		ID:       uuid.New().String(),
		Bus:      busID,
		DeviceID: deviceID,
		state:    RouteActive,
		sink:     sink,
	}
	r.routes[deviceID] = route
	r.log.Info("route opened", "route", route.ID, "bus", busID, "device", deviceID)
	return route, nil
}

// CloseRoute tears down the route synchronously. The sink is closed
// before CloseRoute returns; no block written afterwards reaches it.
func (r *Router) CloseRoute(route *Route) error {
	r.mu.Lock()
	if existing, ok := r.routes[route.DeviceID]; !ok || existing != route {
		r.mu.Unlock()
		return nil
	}
	delete(r.routes, route.DeviceID)
	r.mu.Unlock()

	route.mu.Lock()
	defer route.mu.Unlock()
	if route.state == RouteClosed {
		return nil
	}
	route.state = RouteClosed
	var err error
	if route.sink != nil {
		err = route.sink.Close()
		route.sink = nil
	}
	r.log.Info("route closed", "route", route.ID, "device", route.DeviceID)
	return err
}

// CreateVirtualDevice provisions a virtual endpoint through the backend
// and adds it to the device snapshot.
func (r *Router) CreateVirtualDevice(name string, kind VirtualKind) (Device, error) {
	r.backendMu.RLock()
	defer r.backendMu.RUnlock()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Device{}, ErrClosed
	}
	r.mu.Unlock()

	dev, err := r.backend.CreateVirtual(name, kind)
	if err != nil {
		return Device{}, err
	}
	r.mu.Lock()
	if !r.deviceKnownLocked(dev.ID) {
		r.devices = append(r.devices, dev)
	}
	r.mu.Unlock()
	r.log.Info("virtual device created", "device", dev.ID, "kind", kind)
	return dev, nil
}

// WriteBlock fans a rendered block out to every route on busID. It is
// the mixer's output: called once per bus per tick. A failing sink
// degrades its route; degraded routes drop blocks without error.
func (r *Router) WriteBlock(busID string, samples []int32) {
	r.mu.Lock()
	targets := make([]*Route, 0, len(r.routes))
	for _, route := range r.routes {
		if route.Bus == busID {
			targets = append(targets, route)
		}
	}
	r.mu.Unlock()

	for _, route := range targets {
		r.writeRoute(route, samples)
	}
}

func (r *Router) writeRoute(route *Route, samples []int32) {
	route.mu.Lock()
	defer route.mu.Unlock()

	switch route.state {
	case RouteActive:
	case RouteDegraded:
		r.dropped.Add(1)
		return
	default:
		return
	}

	if err := route.sink.Write(samples); err != nil {
		route.state = RouteDegraded
		route.sink.Close()
		route.sink = nil
		r.log.Warn("route degraded", "route", route.ID, "device", route.DeviceID, "err", err)
		r.dropped.Add(1)
		return
	}
	r.written.Add(1)
}

// Refresh re-enumerates devices, degrades routes whose device vanished,
// and recovers degraded routes whose device came back. After CloseAll
// it returns ErrClosed without touching the backend.
func (r *Router) Refresh() error {
	r.backendMu.RLock()
	defer r.backendMu.RUnlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.mu.Unlock()

	devices, err := r.backend.Enumerate()
	if err != nil {
		return fmt.Errorf("device enumeration: %w", err)
	}

	present := make(map[string]bool, len(devices))
	for _, d := range devices {
		present[d.ID] = true
	}

	r.mu.Lock()
	r.devices = devices
	routes := make([]*Route, 0, len(r.routes))
	for _, route := range r.routes {
		routes = append(routes, route)
	}
	r.mu.Unlock()

	for _, route := range routes {
		if present[route.DeviceID] {
			r.recover(route)
		} else {
			r.degrade(route)
		}
	}
	return nil
}

func (r *Router) degrade(route *Route) {
	route.mu.Lock()
	defer route.mu.Unlock()
	if route.state != RouteActive {
		return
	}
	route.state = RouteDegraded
	if route.sink != nil {
		route.sink.Close()
		route.sink = nil
	}
	r.log.Warn("device vanished, route degraded", "route", route.ID, "device", route.DeviceID)
}

func (r *Router) recover(route *Route) {
	route.mu.Lock()
	defer route.mu.Unlock()
	if route.state != RouteDegraded {
		return
	}
	sink, err := r.backend.Open(route.DeviceID, r.format)
	if err != nil {
		return // still gone, try again next refresh
	}
	route.sink = sink
	route.state = RouteActive
	r.log.Info("route recovered", "route", route.ID, "device", route.DeviceID)
}

// Run refreshes the device snapshot on interval until ctx is done
func (r *Router) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(); err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				r.log.Warn("device refresh failed", "err", err)
			}
		}
	}
}

// CloseAll closes every route and the backend
func (r *Router) CloseAll() error {
	r.mu.Lock()
	routes := make([]*Route, 0, len(r.routes))
	for _, route := range r.routes {
		routes = append(routes, route)
	}
	r.closed = true
	r.mu.Unlock()

	for _, route := range routes {
		r.CloseRoute(route)
	}

	r.backendMu.Lock()
	defer r.backendMu.Unlock()
	return r.backend.Close()
}

// Stats returns a snapshot of router counters
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{
		Routes:        len(r.routes),
		BlocksWritten: r.written.Load(),
		BlocksDropped: r.dropped.Load(),
	}
	for _, route := range r.routes {
		switch route.State() {
		case RouteActive:
			s.Active++
		case RouteDegraded:
			s.Degraded++
		}
	}
	return s
}

func (r *Router) deviceKnownLocked(deviceID string) bool {
	for _, d := range r.devices {
		if d.ID == deviceID {
			return true
		}
	}
	return false
}
