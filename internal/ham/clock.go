package ham

import (
	"crypto/rand"
	"sync/atomic"
)

const machineIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewMachineID returns a fresh 8-char alphanumeric replica identifier.
// Per spec.md §9, "global mutable singletons (machine_id, machine_state
// counter, random sources) become instance-scoped fields" — callers mint
// one per Clock, not once per process.
func NewMachineID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is a programmer/environment error, not a
		// recoverable one; spec.md §5 reserves panics for unreachable
		// branches, and an unseeded random source is exactly that.
		panic("ham: crypto/rand unavailable: " + err.Error())
	}
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = machineIDAlphabet[int(b)%len(machineIDAlphabet)]
	}
	return string(out)
}

// Clock mints machine_state values for one replica. It is instance-scoped:
// two Clocks in the same process (e.g. two Engines) never share state.
type Clock struct {
	machineID string
	state     atomic.Uint64
}

// NewClock returns a Clock for a replica identified by machineID. If
// machineID is empty, a fresh one is generated.
func NewClock(machineID string) *Clock {
	if machineID == "" {
		machineID = NewMachineID()
	}
	return &Clock{machineID: machineID}
}

// MachineID returns this clock's replica identifier.
func (c *Clock) MachineID() string { return c.machineID }

// Next advances the clock past observed and returns the new machine_state.
// Invariant §3-3: strictly increasing within the replica's lifetime.
func (c *Clock) Next(observed uint64) uint64 {
	for {
		cur := c.state.Load()
		next := observed + 1
		if cur+1 > next {
			next = cur + 1
		}
		if c.state.CompareAndSwap(cur, next) {
			return next
		}
	}
}
