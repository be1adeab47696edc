// Package heartbeat implements the watchdog-style liveness pulse of
// spec §4.6: set by the scheduler's tick, driven onto an external pin
// by the cooperative loop, and left to decay LOW if ticks stop.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package heartbeat

import (
	"sync/atomic"
	"time"
)

// PinWriter drives the external liveness pin a supervising circuit
// watches.
type PinWriter interface {
	SetHigh()
	SetLow()
}

// Monitor is grounded on the teacher's safety.Manager watchdog
// (Heartbeat()/watchdogLoop), narrowed from "trip a shutdown after a
// timeout" to "drive a pin": detection of a stalled tick source is
// delegated to an external supervising circuit (spec §4.6), not to
// this program.
type Monitor struct {
	pin         PinWriter
	pulseWidth  time.Duration
	pending     atomic.Bool
	pinHigh     atomic.Bool
}

// New creates a Monitor driving pin, with pulseWidth the duration the
// pin stays HIGH after the Poll that raised it (default 5000us per spec
// §6). A Set() consumed while the pin is already HIGH does not extend
// the pulse.
func New(pin PinWriter, pulseWidth time.Duration) *Monitor {
	return &Monitor{pin: pin, pulseWidth: pulseWidth}
}

// Set is called by the scheduler on every tick; it marks the pulse
// pending for the next Poll to drive HIGH.
func (m *Monitor) Set() {
	m.pending.Store(true)
}

// Poll is the cooperative-side routine (spec §4.6): it drives the pin
// HIGH if a tick set the pulse since the last Poll, and schedules the
// pin back LOW after pulseWidth via time.AfterFunc, so a stalled tick
// source naturally lets the pulse decay.
func (m *Monitor) Poll() {
	if m.pending.Load() {
		m.pending.Store(false)
		m.driveHigh()
	}
}

func (m *Monitor) driveHigh() {
	if m.pinHigh.CompareAndSwap(false, true) {
		m.pin.SetHigh()
	}
	time.AfterFunc(m.pulseWidth, func() {
		if m.pinHigh.CompareAndSwap(true, false) {
			m.pin.SetLow()
		}
	})
}
