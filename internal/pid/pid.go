// Package pid implements the per-channel PID engine: filtered
// derivative, back-calculation anti-windup, and normalized error, per
// spec §4.3.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package pid

// Back-calculation anti-windup gain (spec §4.3 step 6: "Kb = 1").
const antiWindupGain = 1.0

// minDt is the oversampling guard: samples closer together than this
// are ignored rather than producing a division by a near-zero dt.
const minDt = 0.001 // seconds

// OutputMin and OutputMax bound the controller's output, matching the
// channel's [0,1] duty-cycle range (spec §3).
const (
	OutputMin = 0.0
	OutputMax = 1.0
)

// Controller is a single-channel PID loop with filtered derivative and
// back-calculation anti-windup, grounded on the teacher's ControlPID
// (AndySze-klipper/pkg/temperature/control.go), generalized to this
// spec's normalized [0,1] error/output domain and derivative low-pass
// filter.
type Controller struct {
	Kp            float64
	Ki            float64
	Kd            float64
	DerivativeTau float64 // seconds; 0 disables filtering

	integral      float64
	derivativePrev float64
	output        float64

	prevTimeUs     int64
	havePrevSample bool
}

// New creates a Controller with the given gains, already Reset.
func New(kp, ki, kd, derivativeTau float64) *Controller {
	c := &Controller{Kp: kp, Ki: ki, Kd: kd, DerivativeTau: derivativeTau}
	c.Reset(0)
	return c
}

// Reset clears all PID state to the enable-transition contract of
// spec §4.3: integral and output to zero, derivativePrev seeded
// unfiltered from the current process variable, timestamps cleared.
func (c *Controller) Reset(tcVoltagePv float64) {
	c.integral = 0
	c.derivativePrev = tcVoltagePv
	c.output = 0
	c.prevTimeUs = 0
	c.havePrevSample = false
}

// Output returns the last computed (clamped) output.
func (c *Controller) Output() float64 {
	return c.output
}

// Update runs one PID step for a fresh sample observed at nowUs, given
// the active setpoint and process variable (both in the same voltage
// units) and the normalization span (spec §4.3 step 3). It returns the
// new output and whether it actually recomputed one: the very first
// sample after Reset, and any sample closer than minDt to the previous
// one, leave output unchanged and report updated=false.
func (c *Controller) Update(nowUs int64, sp, pv, span float64) (output float64, updated bool) {
	if !c.havePrevSample {
		c.prevTimeUs = nowUs
		c.havePrevSample = true
		return c.output, false
	}

	dt := float64(nowUs-c.prevTimeUs) * 1e-6
	if dt < minDt {
		return c.output, false
	}
	c.prevTimeUs = nowUs

	if span == 0 {
		span = 1
	}
	errNorm := sp/span - pv/span

	p := c.Kp * errNorm

	var d float64
	if c.Kd > 0 {
		if c.DerivativeTau > 0 {
			alpha := dt / (c.DerivativeTau + dt)
			filtered := alpha*errNorm + (1-alpha)*c.derivativePrev
			d = (filtered - c.derivativePrev) / dt
			c.derivativePrev = filtered
		} else {
			d = (errNorm - c.derivativePrev) / dt
			c.derivativePrev = errNorm
		}
	}
	dTerm := c.Kd * d

	var iTerm float64
	if c.Ki > 0 {
		unconstrained := p + c.Ki*c.integral + dTerm
		aw := c.output - unconstrained
		c.integral += (errNorm + antiWindupGain*aw) * dt

		intMin := OutputMin / c.Ki
		intMax := OutputMax / c.Ki
		if c.integral < intMin {
			c.integral = intMin
		} else if c.integral > intMax {
			c.integral = intMax
		}
		iTerm = c.Ki * c.integral
	}

	out := p + iTerm + dTerm
	if out < OutputMin {
		out = OutputMin
	} else if out > OutputMax {
		out = OutputMax
	}
	c.output = out

	return c.output, true
}
