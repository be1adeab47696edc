// Package scheduler implements the zero-cross tick source: a
// free-running half-cycle counter that dispatches sample-schedule and
// output-update broadcasts to every channel, per spec §4.5.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package scheduler

import "github.com/jbclone/station/internal/heartbeat"

// Tickable is the subset of *channel.Channel the scheduler needs: the
// two calls made from "interrupt" context (spec §5).
type Tickable interface {
	ScheduleSample(nowUs int64)
	UpdateOutput(opLevel float64)
}

// HardwareZeroCross is satisfied by a real zero-cross interrupt
// source; a future GPIO-interrupt backend can drive Scheduler.Tick
// without the Scheduler itself changing.
type HardwareZeroCross interface {
	OnZeroCross(fn func(nowUs int64))
}

// Scheduler owns the free-running half-cycle counter k and the
// per-channel broadcast of spec §4.5.
type Scheduler struct {
	n         int64
	k         int64
	channels  []Tickable
	heartbeat *heartbeat.Monitor
}

// New creates a Scheduler with period n (half-cycles between sample
// windows, default 10 per spec §6) driving the given channels and
// setting the heartbeat liveness flag on every tick.
func New(n int64, channels []Tickable, hb *heartbeat.Monitor) *Scheduler {
	return &Scheduler{n: n, channels: channels, heartbeat: hb}
}

// Tick runs one zero-cross half-cycle step (spec §4.5): it always
// asserts the heartbeat, then either broadcasts a sample-schedule (at
// k>=N, resetting k and returning without an output update this tick)
// or broadcasts an output update at the current op-level and advances
// k.
func (s *Scheduler) Tick(nowUs int64) {
	if s.heartbeat != nil {
		s.heartbeat.Set()
	}

	if s.k >= s.n {
		s.k = 0
		for _, ch := range s.channels {
			ch.ScheduleSample(nowUs)
		}
		return
	}

	opLevel := float64(s.k) / float64(s.n)
	for _, ch := range s.channels {
		ch.UpdateOutput(opLevel)
	}
	s.k++
}

// K returns the scheduler's current counter value, for tests.
func (s *Scheduler) K() int64 { return s.k }

// N returns the scheduler's configured period.
func (s *Scheduler) N() int64 { return s.n }
