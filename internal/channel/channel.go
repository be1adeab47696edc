// Package channel implements a single physical heater/thermocouple
// pair: sample scheduling, output gating, the sleep state machine, and
// the runaway safety interlock, per spec §4.4.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package channel

import (
	"sync"
	"sync/atomic"

	"github.com/jbclone/station/internal/calib"
	"github.com/jbclone/station/internal/errs"
	"github.com/jbclone/station/internal/logging"
	"github.com/jbclone/station/internal/pid"
)

// SleepState is the small, explicitly-transitioned enum of spec §4.4,
// grounded on the teacher's safety.ShutdownState (enum + String() +
// an explicit transition function, never a generic FSM library).
type SleepState int

const (
	Awake SleepState = iota
	StandPending
	Sleep
)

func (s SleepState) String() string {
	switch s {
	case Awake:
		return "awake"
	case StandPending:
		return "stand_pending"
	case Sleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// HeaterDriver drives the single physical heater GPIO.
type HeaterDriver interface {
	SetHigh()
	SetLow()
}

// ThermocoupleReader reads the raw ADC count behind the amplifier.
type ThermocoupleReader interface {
	ReadRaw() (count int, fullScale bool)
}

// StandSense reports the stand-detection input: true means the sense
// line reads LOW (iron resting on the stand, per spec §4.4).
type StandSense interface {
	IsLow() bool
}

// Pusher is the per-channel HMI update-hook capability of spec §9's
// design note, supplied at construction instead of a hard-coded field
// table.
type Pusher interface {
	PushText(field, text string)
	PushValue(field string, v int)
	PushColor(field string, rgb int64)
}

// Identity carries the hardware identity and derived constants fixed
// at channel construction (spec §3).
type Identity struct {
	AnalogInputID  int
	HeaterDriveID  int
	StandSenseID   int
	Gain           float64 // V/V
	EEPROMOffset   int
	ADCFullScale   int
	ADCVref        float64 // volts
}

// TCMaxVoltageSetpoint implements spec §3's derived constant
// `tc_max_voltage_setpoint = ADC_VREF · 10⁶ / G` (µV).
func (id Identity) TCMaxVoltageSetpoint() float64 {
	return id.ADCVref * 1e6 / id.Gain
}

// Channel is one physical heater + thermocouple pair.
type Channel struct {
	id       int
	identity Identity
	log      *logging.Logger

	calTable *calib.Table
	pidCtrl  *pid.Controller

	heater HeaterDriver
	tc     ThermocoupleReader
	stand  StandSense
	hmi    Pusher

	// hmiFields resolves the channel's logical display fields ("pv",
	// "sp", "pct", "en", "sleep") to the display's actual field names,
	// so that multiple channels sharing one Pusher don't collide on a
	// hardcoded name (spec §9 Open Question 4).
	hmiFields map[string]string

	ampRecoveryUs int64
	hmiIntervalMs int64

	mu sync.Mutex // guards everything below except the ISR-shared scalars

	tempSp               float64
	tempSpMin            float64
	tempSpMax            float64
	tempRunawayThreshold float64
	tcVoltageSp          float64
	sleepVoltageSp       float64

	tcVoltagePv       float64
	tempPv            float64
	pvTimestampUs     int64
	pvPrevTimestampUs int64

	sampleScheduleTimestampUs int64
	pidUpdatePending          bool
	firstAcquisitionPending   bool

	sleepState         SleepState
	sleepDelayRunning  bool
	sleepDelayStartMs  int64
	sleepDelayMs       float64

	hmiLastUpdateMs int64
	runawayLatched  bool

	factory PersistedFields

	// ISR-shared scalars (spec §5/§9): written from the tick source,
	// read from the loop, or vice versa. Guarded by their own lock
	// rather than the main mutex, since the tick source must never
	// block on loop-held work.
	isrMu           sync.Mutex
	enable          atomic.Bool
	sampleScheduled atomic.Bool
	output          atomic.Value // float64
}

// New constructs a Channel with factory defaults; callers apply a
// persisted record (or leave factory defaults) immediately after.
// hmiFields binds the channel's logical display fields ("pv", "sp",
// "pct", "en", "sleep") to the display's actual field names; a nil map
// or a missing key falls back to the logical name itself.
func New(id int, identity Identity, calTable *calib.Table, log *logging.Logger, heater HeaterDriver, tc ThermocoupleReader, stand StandSense, hmi Pusher, hmiFields map[string]string) *Channel {
	c := &Channel{
		id:                id,
		identity:          identity,
		log:               log,
		calTable:          calTable,
		pidCtrl:           pid.New(0, 0, 0, 0),
		heater:            heater,
		tc:                tc,
		stand:             stand,
		hmi:               hmi,
		hmiFields:         hmiFields,
		ampRecoveryUs:     1700,
		hmiIntervalMs:     200,
		sleepState:        Awake,
		firstAcquisitionPending: true,
	}
	c.output.Store(0.0)
	c.heater.SetLow()
	return c
}

// fieldName resolves a logical display field to its configured name,
// falling back to the logical name when hmiFields has no override.
func (c *Channel) fieldName(logical string) string {
	if name, ok := c.hmiFields[logical]; ok && name != "" {
		return name
	}
	return logical
}

// ID returns the channel's index.
func (c *Channel) ID() int { return c.id }

// SetTimings overrides the amplifier recovery and HMI cadence
// intervals from their defaults (used by config wiring).
func (c *Channel) SetTimings(ampRecoveryUs, hmiIntervalMs int64) {
	c.ampRecoveryUs = ampRecoveryUs
	c.hmiIntervalMs = hmiIntervalMs
}

// Identity returns the channel's fixed hardware identity.
func (c *Channel) Identity() Identity { return c.identity }

// CalibrationTable returns the channel's calibration table.
func (c *Channel) CalibrationTable() *calib.Table { return c.calTable }

// ---- ISR-side API: ScheduleSample / UpdateOutput ----

// ScheduleSample is called by the scheduler at k==N. It forces the
// heater LOW and records the schedule timestamp; spec §4.4.
func (c *Channel) ScheduleSample(nowUs int64) {
	c.isrMu.Lock()
	defer c.isrMu.Unlock()
	c.heater.SetLow()
	c.sampleScheduled.Store(true)
	atomic.StoreInt64(&c.sampleScheduleTimestampUs, nowUs)
}

// UpdateOutput is called by the scheduler on every non-sample tick
// with the broadcast fractional op-level; spec §4.4's output gating.
func (c *Channel) UpdateOutput(opLevel float64) {
	c.isrMu.Lock()
	defer c.isrMu.Unlock()

	if !c.enable.Load() || c.sampleScheduled.Load() {
		c.heater.SetLow()
		return
	}
	out := c.output.Load().(float64)
	if opLevel < out {
		c.heater.SetHigh()
	} else {
		c.heater.SetLow()
	}
}

func (c *Channel) setOutput(v float64) {
	c.output.Store(v)
}

// Output returns the channel's current PID output in [0,1].
func (c *Channel) Output() float64 {
	return c.output.Load().(float64)
}

// Enabled reports the channel's enable state.
func (c *Channel) Enabled() bool { return c.enable.Load() }

// Enable sets the enable line. A false->true transition resets PID
// state (spec §3 invariant: "enable==false ⇒ heater drive LOW and PID
// state is reset at transition"); a true->false transition also resets
// PID and forces the output to zero.
func (c *Channel) Enable(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	was := c.enable.Load()
	c.enable.Store(on)
	if on != was {
		c.resetPIDLocked()
	}
	if !on {
		atomic.StoreInt64(&c.sampleScheduleTimestampUs, 0)
		c.setOutput(0)
		c.heater.SetLow()
	}
	if c.log != nil {
		c.log.WithField("channel", c.id).WithField("enable", on).Info("enable set")
	}
}

func (c *Channel) resetPIDLocked() {
	c.pidCtrl.Reset(c.tcVoltagePv)
	c.pidUpdatePending = false
	c.firstAcquisitionPending = true
	c.pvTimestampUs = 0
	c.pvPrevTimestampUs = 0
	c.setOutput(0)
}

// ---- loop-side API: Poll ----

// Poll runs the cooperative-loop half of the channel's work: sample
// acquisition (gated by amplifier recovery), the sleep state machine,
// the runaway interlock, and the PID compute; spec §4.4, §5.
func (c *Channel) Poll(nowUs int64, nowMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sampleScheduled.Load() {
		scheduleTs := atomic.LoadInt64(&c.sampleScheduleTimestampUs)
		if nowUs-scheduleTs > c.ampRecoveryUs {
			c.acquireSampleLocked(nowUs)
		}
	}

	if c.enable.Load() {
		c.tickSleepLocked(nowMs)
	}

	if c.enable.Load() && c.pidUpdatePending {
		c.runPIDLocked(nowUs)
	}

	c.pushHMILocked(nowMs)
}

func (c *Channel) acquireSampleLocked(nowUs int64) {
	raw, fullScale := c.tc.ReadRaw()
	adcVolts := float64(raw) / float64(c.identity.ADCFullScale) * c.identity.ADCVref
	c.tcVoltagePv = adcVolts / c.identity.Gain * 1e6
	c.tempPv = c.calTable.VoltageToTemp(c.tcVoltagePv)

	c.pvPrevTimestampUs = c.pvTimestampUs
	c.pvTimestampUs = nowUs

	if c.firstAcquisitionPending {
		// Retake the very first sample after reset so the next one has
		// a well-defined, non-zero dt (spec §4.4).
		c.firstAcquisitionPending = false
	} else {
		c.sampleScheduled.Store(false)
	}
	c.pidUpdatePending = true

	c.evaluateRunawayLocked(raw, fullScale)
}

func (c *Channel) evaluateRunawayLocked(raw int, fullScale bool) {
	if c.runawayLatched {
		return
	}
	if c.tempPv > c.tempRunawayThreshold || fullScale {
		c.runawayLatched = true
		c.enable.Store(false)
		c.resetPIDLocked()
		c.heater.SetLow()
		if c.log != nil {
			e := errs.RunawayError(c.tempPv, c.tempRunawayThreshold).ForChannel(c.id)
			c.log.WithError(e).Error("thermal runaway latched")
		}
	}
}

func (c *Channel) tickSleepLocked(nowMs int64) {
	standLow := c.stand.IsLow()
	switch c.sleepState {
	case Awake:
		if standLow {
			c.sleepState = StandPending
			c.sleepDelayRunning = true
			c.sleepDelayStartMs = nowMs
		}
	case StandPending:
		if !standLow {
			c.sleepState = Awake
			c.sleepDelayRunning = false
		} else if nowMs-c.sleepDelayStartMs >= int64(c.sleepDelayMs) {
			c.sleepState = Sleep
			c.sleepDelayRunning = false
		}
	case Sleep:
		if !standLow {
			c.sleepState = Awake
		}
	}
}

func (c *Channel) runPIDLocked(nowUs int64) {
	sp := c.tcVoltageSp
	if c.sleepState == Sleep {
		sp = c.sleepVoltageSp
	}
	span := c.identity.TCMaxVoltageSetpoint()

	out, updated := c.pidCtrl.Update(nowUs, sp, c.tcVoltagePv, span)
	if updated {
		c.setOutput(out)
		c.pidUpdatePending = false
	}
}

func (c *Channel) pushHMILocked(nowMs int64) {
	if c.hmi == nil {
		return
	}
	if nowMs-c.hmiLastUpdateMs < c.hmiIntervalMs {
		return
	}
	c.hmiLastUpdateMs = nowMs

	enableLabel, enableColor := "OFF", int64(0xF800) // red
	if c.enable.Load() {
		enableLabel, enableColor = "ON", 0x07E0 // green
	}
	sleepLabel := "awake"
	if c.sleepState == Sleep {
		sleepLabel = "sleep"
	}

	c.hmi.PushText(c.fieldName("pv"), formatFixed(c.tempPv, 1))
	c.hmi.PushText(c.fieldName("sp"), formatFixed(c.tempSp, 1))
	c.hmi.PushValue(c.fieldName("pct"), int(c.Output()*100+0.5))
	c.hmi.PushText(c.fieldName("en"), enableLabel)
	c.hmi.PushColor(c.fieldName("en"), enableColor)
	c.hmi.PushText(c.fieldName("sleep"), sleepLabel)
}

// ---- persisted-field accessors used by internal/command and internal/persist ----

// PersistedFields is the subset of a Channel's state that is saved to
// and loaded from byte storage, in the fixed order of spec §3.
type PersistedFields struct {
	TcVoltageSp          float64
	TempSpMin            float64
	TempSpMax            float64
	Kp                   float64
	Ki                   float64
	Kd                   float64
	DerivativeTau        float64
	SleepDelayMs         float64
	SleepVoltageSp       float64
	TempRunawayThreshold float64
	Calibration          [calib.PointCount]calib.Point
}

// Snapshot returns the channel's current persisted fields.
func (c *Channel) Snapshot() PersistedFields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PersistedFields{
		TcVoltageSp:          c.tcVoltageSp,
		TempSpMin:            c.tempSpMin,
		TempSpMax:            c.tempSpMax,
		Kp:                   c.pidCtrl.Kp,
		Ki:                   c.pidCtrl.Ki,
		Kd:                   c.pidCtrl.Kd,
		DerivativeTau:        c.pidCtrl.DerivativeTau,
		SleepDelayMs:         c.sleepDelayMs,
		SleepVoltageSp:       c.sleepVoltageSp,
		TempRunawayThreshold: c.tempRunawayThreshold,
		Calibration:          c.calTable.Points(),
	}
}

// SetFactoryDefaults records the configuration-seeded defaults used by
// the `restore` command (spec §6) and as the fallback applied when a
// channel's persisted record fails to load (spec §3 lifecycle).
func (c *Channel) SetFactoryDefaults(f PersistedFields) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factory = f
}

// FactoryDefaults returns the configuration-seeded factory defaults.
func (c *Channel) FactoryDefaults() PersistedFields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.factory
}

// Apply installs a loaded/factory-default PersistedFields snapshot,
// recomputing temp_sp from tc_voltage_sp per spec §4.2.
func (c *Channel) Apply(f PersistedFields) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tcVoltageSp = f.TcVoltageSp
	c.tempSpMin = f.TempSpMin
	c.tempSpMax = f.TempSpMax
	c.pidCtrl.Kp = f.Kp
	c.pidCtrl.Ki = f.Ki
	c.pidCtrl.Kd = f.Kd
	c.pidCtrl.DerivativeTau = f.DerivativeTau
	c.sleepDelayMs = f.SleepDelayMs
	c.sleepVoltageSp = f.SleepVoltageSp
	c.tempRunawayThreshold = f.TempRunawayThreshold
	c.calTable = calib.New(f.Calibration)

	c.tempSp = c.calTable.VoltageToTemp(c.tcVoltageSp)
}

// ---- typed setter/getter surface used directly by internal/command ----

func (c *Channel) SetpointC() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempSp
}

// SetSetpointC sets temp_sp, bounded by [temp_sp_min, temp_sp_max], and
// derives tc_voltage_sp from it.
func (c *Channel) SetSetpointC(t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < c.tempSpMin || t > c.tempSpMax {
		return errs.ChannelBoundsError("set_t", t, c.tempSpMin, c.tempSpMax).ForChannel(c.id)
	}
	c.tempSp = t
	c.tcVoltageSp = c.calTable.TempToVoltage(t)
	return nil
}

func (c *Channel) MeasuredTempC() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempPv
}

func (c *Channel) MeasuredVoltageUV() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tcVoltagePv
}

func (c *Channel) IsSleeping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleepState == Sleep
}

func (c *Channel) SleepStateLabel() SleepState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleepState
}

func (c *Channel) PIDOutput() float64 {
	return c.Output()
}

func (c *Channel) RunawayThresholdC() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempRunawayThreshold
}

func (c *Channel) SetRunawayThresholdC(t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	max := c.calTable.VoltageToTemp(c.identity.TCMaxVoltageSetpoint())
	if t > max {
		t = max
	}
	c.tempRunawayThreshold = t
	return nil
}

func (c *Channel) SetpointMinC() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempSpMin
}

func (c *Channel) SetSetpointMinC(t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t < 0 || t > c.tempSpMax {
		return errs.ChannelBoundsError("set_min_t", t, 0, c.tempSpMax).ForChannel(c.id)
	}
	c.tempSpMin = t
	return nil
}

func (c *Channel) SetpointMaxC() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempSpMax
}

func (c *Channel) SetSetpointMaxC(t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	max := c.calTable.VoltageToTemp(c.identity.TCMaxVoltageSetpoint())
	if t < c.tempSpMin || t > max {
		return errs.ChannelBoundsError("set_max_t", t, c.tempSpMin, max).ForChannel(c.id)
	}
	c.tempSpMax = t
	return nil
}

func (c *Channel) SetpointUV() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tcVoltageSp
}

func (c *Channel) SetSetpointUV(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	max := c.identity.TCMaxVoltageSetpoint()
	if v < 0 || v > max {
		return errs.ChannelBoundsError("set_uv", v, 0, max).ForChannel(c.id)
	}
	c.tcVoltageSp = v
	c.tempSp = c.calTable.VoltageToTemp(v)
	return nil
}

func (c *Channel) Kp() float64 { c.mu.Lock(); defer c.mu.Unlock(); return c.pidCtrl.Kp }
func (c *Channel) Ki() float64 { c.mu.Lock(); defer c.mu.Unlock(); return c.pidCtrl.Ki }
func (c *Channel) Kd() float64 { c.mu.Lock(); defer c.mu.Unlock(); return c.pidCtrl.Kd }

func (c *Channel) SetKp(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v < 0 {
		return errs.CommandValueError("pid_kp must be >= 0").ForChannel(c.id)
	}
	c.pidCtrl.Kp = v
	return nil
}

func (c *Channel) SetKi(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v < 0 {
		return errs.CommandValueError("pid_ki must be >= 0").ForChannel(c.id)
	}
	c.pidCtrl.Ki = v
	return nil
}

func (c *Channel) SetKd(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v < 0 {
		return errs.CommandValueError("pid_kd must be >= 0").ForChannel(c.id)
	}
	c.pidCtrl.Kd = v
	return nil
}

func (c *Channel) DerivativeTau() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pidCtrl.DerivativeTau
}

func (c *Channel) SetDerivativeTau(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v < 0 {
		return errs.CommandValueError("pid_d_tau must be >= 0").ForChannel(c.id)
	}
	c.pidCtrl.DerivativeTau = v
	return nil
}

func (c *Channel) SleepSetpointC() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calTable.VoltageToTemp(c.sleepVoltageSp)
}

func (c *Channel) SetSleepSetpointC(t float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleepVoltageSp = c.calTable.TempToVoltage(t)
	return nil
}

func (c *Channel) SleepDelayMs() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleepDelayMs
}

func (c *Channel) SetSleepDelayMs(v float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v < 0 {
		return errs.CommandValueError("sleep_delay must be >= 0").ForChannel(c.id)
	}
	c.sleepDelayMs = v
	return nil
}

// RunawayLatched reports whether the runaway interlock has tripped
// and is awaiting an explicit re-enable.
func (c *Channel) RunawayLatched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runawayLatched
}

// ClearRunawayLatch is called on an explicit enable command so the
// interlock can re-arm.
func (c *Channel) ClearRunawayLatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runawayLatched = false
}

// Restore implements the literal (preserved, not fixed) cross-field
// behavior of spec §9's Open Question: the gain argument S (µV/K) is
// range-checked against (0, 40] but assigned into tc_voltage_sp, and
// the rest of the channel's configuration resets to factory values.
func (c *Channel) Restore(gainArg float64, factory PersistedFields) error {
	if gainArg <= 0 || gainArg > 40 {
		return errs.CommandValueError("restore gain must be in (0, 40]").ForChannel(c.id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tcVoltageSp = gainArg
	c.tempSpMin = factory.TempSpMin
	c.tempSpMax = factory.TempSpMax
	c.pidCtrl.Kp = factory.Kp
	c.pidCtrl.Ki = factory.Ki
	c.pidCtrl.Kd = factory.Kd
	c.pidCtrl.DerivativeTau = factory.DerivativeTau
	c.sleepDelayMs = factory.SleepDelayMs
	c.sleepVoltageSp = factory.SleepVoltageSp
	c.tempRunawayThreshold = factory.TempRunawayThreshold
	c.calTable = calib.New(factory.Calibration)
	c.tempSp = c.calTable.VoltageToTemp(c.tcVoltageSp)
	return nil
}
