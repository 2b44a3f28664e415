// Package dcb implements the per-destination control block: the lock-free
// state machine that drives doubletree-style backward/forward probing for
// a single target address.
package dcb

import (
	"net/netip"
	"sync/atomic"
)

// Word layout for the packed state. Go has no byte-wide CAS, so the four
// mutable fields are packed one-per-byte into a uint32 and every
// read-modify-write is a CompareAndSwap retry loop over the whole word
// (UpdateSplitTTL stores a fresh word outright). This keeps all four
// fields moving together atomically, per the "Lock-free per-destination
// state" note in the design.
const (
	shiftBackward = 24 // next_backward_hop
	shiftForward  = 16 // next_forward_hop
	shiftHorizon  = 8  // forward_horizon
	shiftCount    = 0  // backward_count
	byteMask      = 0xFF
)

func packWord(backward, forward, horizon, count uint8) uint32 {
	return uint32(backward)<<shiftBackward |
		uint32(forward)<<shiftForward |
		uint32(horizon)<<shiftHorizon |
		uint32(count)<<shiftCount
}

func unpackWord(w uint32) (backward, forward, horizon, count uint8) {
	backward = uint8(w >> shiftBackward)
	forward = uint8(w >> shiftForward)
	horizon = uint8(w >> shiftHorizon)
	count = uint8(w >> shiftCount)
	return
}

// DCB is the Destination Control Block for one target address. It is safe
// for concurrent use by exactly two workers (one forward, one backward) plus
// any number of readers; all mutation goes through atomic CAS loops so no
// external locking is required.
type DCB struct {
	Addr netip.Addr // immutable

	// initialTTL and accurateDistance are written only by UpdateSplitTTL,
	// and never again once accurateDistance is set. They are read far more
	// often than written, so they live in their own atomics rather than the
	// packed word.
	initialTTL       atomic.Uint32 // current best hop-distance estimate
	accurateDistance atomic.Bool   // true once a direct reply has set initialTTL

	state atomic.Uint32 // packed (backward, forward, horizon, count)
}

// New creates a DCB split around splitTTL: backward probing counts down from
// splitTTL, forward probing starts at splitTTL+1 with the horizon closed at
// splitTTL, and the distance estimate is not yet accurate.
func New(addr netip.Addr, splitTTL uint8) *DCB {
	d := &DCB{Addr: addr}
	d.initialTTL.Store(uint32(splitTTL))
	d.state.Store(packWord(splitTTL, splitTTL+1, splitTTL, 0))
	return d
}

// InitialTTL returns the current best hop-distance estimate.
func (d *DCB) InitialTTL() uint8 {
	return uint8(d.initialTTL.Load())
}

// AccurateDistance reports whether the accurate latch has been set.
func (d *DCB) AccurateDistance() bool {
	return d.accurateDistance.Load()
}

// PullBackwardTask atomically reads and decrements next_backward_hop. It
// returns the hop to probe and true, or (0, false) once backward probing is
// exhausted. Every successful pull increments backward_count.
func (d *DCB) PullBackwardTask() (uint8, bool) {
	for {
		old := d.state.Load()
		backward, forward, horizon, count := unpackWord(old)
		if backward == 0 {
			return 0, false
		}
		next := packWord(backward-1, forward, horizon, count+1)
		if d.state.CompareAndSwap(old, next) {
			return backward, true
		}
	}
}

// PullForwardTask atomically reads and increments next_forward_hop, so long
// as it does not exceed forward_horizon. Returns (0, false) once forward
// probing is stopped or has outrun the horizon.
func (d *DCB) PullForwardTask() (uint8, bool) {
	for {
		old := d.state.Load()
		backward, forward, horizon, count := unpackWord(old)
		if forward > horizon {
			return 0, false
		}
		next := packWord(backward, forward+1, horizon, count)
		if d.state.CompareAndSwap(old, next) {
			return forward, true
		}
	}
}

// LastForwardTask returns a snapshot of next_forward_hop-1, saturating at 0.
func (d *DCB) LastForwardTask() uint8 {
	_, forward, _, _ := unpackWord(d.state.Load())
	if forward == 0 {
		return 0
	}
	return forward - 1
}

// SetForwardHorizon raises forward_horizon to max(horizon, h). A zero h is a
// no-op: zero is the stopped state, reachable only through StopForward.
func (d *DCB) SetForwardHorizon(h uint8) {
	if h == 0 {
		return
	}
	for {
		old := d.state.Load()
		backward, forward, horizon, count := unpackWord(old)
		if h <= horizon {
			return
		}
		next := packWord(backward, forward, h, count)
		if d.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// UpdateSplitTTL re-splits the DCB around newTTL. If accurate_distance is
// already latched true, this is a no-op — the accurate update is a one-way
// latch and subsequent calls (accurate or not) never take effect again.
func (d *DCB) UpdateSplitTTL(newTTL uint8, accurate bool) {
	if d.accurateDistance.Load() {
		return
	}
	d.initialTTL.Store(uint32(newTTL))
	d.state.Store(packWord(newTTL, newTTL+1, newTTL, 0))
	if accurate {
		d.accurateDistance.Store(true)
	}
}

// StopBackward clamps next_backward_hop to 0, so that subsequent
// PullBackwardTask calls return false. When twoMinimum is set, the clamp is
// gated on backward_count >= 2 (the "-2" / "two" CLI option).
func (d *DCB) StopBackward(twoMinimum bool) {
	for {
		old := d.state.Load()
		backward, forward, horizon, count := unpackWord(old)
		if backward == 0 {
			return
		}
		if twoMinimum && count < 2 {
			return
		}
		next := packWord(0, forward, horizon, count)
		if d.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// StopForward clamps forward_horizon to 0. Because PullForwardTask compares
// next_forward_hop <= forward_horizon, and next_forward_hop is always >= 1,
// this makes all subsequent pulls fail regardless of how high the horizon
// had been raised.
func (d *DCB) StopForward() {
	for {
		old := d.state.Load()
		backward, forward, horizon, count := unpackWord(old)
		if horizon == 0 {
			return
		}
		next := packWord(backward, forward, 0, count)
		if d.state.CompareAndSwap(old, next) {
			return
		}
	}
}

// BackwardCount returns the number of backward probes issued so far.
func (d *DCB) BackwardCount() uint8 {
	_, _, _, count := unpackWord(d.state.Load())
	return count
}
