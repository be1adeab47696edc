// Package station wires the control core's components into the
// top-level object a hosted binary runs: the channel array, the
// zero-cross scheduler, the heartbeat monitor, the command dispatcher,
// and the USB/HMI transports. Grounded on cmd/klipper-go/main.go and
// itohio-golpm/pkg/lpm/main.go's "one goroutine per I/O source feeding
// one still-single-threaded polling loop" shape.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package station

import (
	"context"
	"time"

	"github.com/jbclone/station/internal/calib"
	"github.com/jbclone/station/internal/channel"
	"github.com/jbclone/station/internal/command"
	"github.com/jbclone/station/internal/config"
	"github.com/jbclone/station/internal/errs"
	"github.com/jbclone/station/internal/heartbeat"
	"github.com/jbclone/station/internal/hmi"
	"github.com/jbclone/station/internal/logging"
	"github.com/jbclone/station/internal/persist"
	"github.com/jbclone/station/internal/scheduler"
)

// Station owns every long-lived component of the control core.
type Station struct {
	log *logging.Logger
	cfg *config.Config

	channels   []*channel.Channel
	scheduler  *scheduler.Scheduler
	heartbeat  *heartbeat.Monitor
	dispatcher *command.Dispatcher
	store      persist.ByteStore

	usbLines <-chan string
	usbWrite func(string) error

	hmiPusher *hmi.Pusher
	hmiReader *hmi.Reader
}

// HeartbeatPin drives the external liveness pin.
type HeartbeatPin interface {
	SetHigh()
	SetLow()
}

// Hardware bundles the per-channel hardware collaborators a caller
// must supply at construction (spec §1's "board pin mapping" external
// collaborator).
type Hardware struct {
	Heater channel.HeaterDriver
	TC     channel.ThermocoupleReader
	Stand  channel.StandSense
}

// New constructs a Station from cfg, a persisted byte store, the
// hardware collaborators for each configured channel (in config
// order), the heartbeat pin, and the USB/HMI line transports.
func New(cfg *config.Config, store persist.ByteStore, hw []Hardware, hbPin HeartbeatPin, usbLines <-chan string, usbWrite func(string) error, hmiPusher *hmi.Pusher, hmiReader func(eval hmi.Evaluator) *hmi.Reader, log *logging.Logger) *Station {
	if log == nil {
		log = logging.New("station")
	}

	// A nil *hmi.Pusher must reach channel.New as a nil interface so the
	// channel's "no HMI" check sees it.
	var pusher channel.Pusher
	if hmiPusher != nil {
		pusher = hmiPusher
	}

	channels := make([]*channel.Channel, len(cfg.Channels))
	for i, cc := range cfg.Channels {
		identity := channel.Identity{
			AnalogInputID: cc.AnalogInputID,
			HeaterDriveID: cc.HeaterDriveID,
			StandSenseID:  cc.StandSenseID,
			Gain:          cc.Gain,
			EEPROMOffset:  cc.EEPROMOffset,
			ADCFullScale:  cc.ADCFullScale,
			ADCVref:       cc.ADCVref,
		}

		factory := factoryFields(cc)
		calTable := calib.New(factory.Calibration)

		ch := channel.New(i, identity, calTable, log.WithPrefix("channel"), hw[i].Heater, hw[i].TC, hw[i].Stand, pusher, cc.HMIFields)
		ch.SetTimings(cfg.Timing.AmpRecoveryUs, cfg.Timing.HMIUpdateIntervalMs)
		ch.SetFactoryDefaults(factory)

		loaded, ok := persist.Load(store, persist.Offset(i))
		if ok {
			ch.Apply(channel.PersistedFields(loaded))
			log.WithField("channel", i).Info("persisted record loaded")
		} else {
			ch.Apply(factory)
			e := errs.PersistLoadError("persisted record load failed, applied factory defaults").ForChannel(i)
			log.WithError(e).Warn("persisted record load failed")
		}

		channels[i] = ch
	}

	dispatcher := command.New(channels, store, log)

	var hb *heartbeat.Monitor
	if hbPin != nil {
		hb = heartbeat.New(hbPin, time.Duration(cfg.Timing.HeartbeatPulseUs)*time.Microsecond)
	}

	tickables := make([]scheduler.Tickable, len(channels))
	for i, ch := range channels {
		tickables[i] = ch
	}
	sched := scheduler.New(cfg.Timing.ZeroCrossPeriodN, tickables, hb)

	s := &Station{
		log:        log,
		cfg:        cfg,
		channels:   channels,
		scheduler:  sched,
		heartbeat:  hb,
		dispatcher: dispatcher,
		store:      store,
		usbLines:   usbLines,
		usbWrite:   usbWrite,
		hmiPusher:  hmiPusher,
	}
	if hmiReader != nil {
		s.hmiReader = hmiReader(dispatcher)
	}
	return s
}

func factoryFields(cc config.ChannelConfig) channel.PersistedFields {
	var cal [calib.PointCount]calib.Point
	for i := 0; i < calib.PointCount && i < len(cc.FactoryCalibration); i++ {
		cal[i] = calib.Point{VoltageUV: cc.FactoryCalibration[i].VoltageUV, TempC: cc.FactoryCalibration[i].TempC}
	}
	return channel.PersistedFields{
		TempSpMin:            cc.FactoryTempSpMin,
		TempSpMax:            cc.FactoryTempSpMax,
		Kp:                   cc.FactoryKp,
		Ki:                   cc.FactoryKi,
		Kd:                   cc.FactoryKd,
		DerivativeTau:        cc.FactoryDerivativeTau,
		SleepDelayMs:         cc.FactorySleepDelayMs,
		SleepVoltageSp:       cc.FactorySleepVoltageSp,
		TempRunawayThreshold: cc.FactoryTempRunawayThreshold,
		Calibration:          cal,
	}
}

// Channels returns the station's channel slice, for cmd/station wiring
// and tests.
func (s *Station) Channels() []*channel.Channel { return s.channels }

// Dispatcher returns the station's command dispatcher.
func (s *Station) Dispatcher() *command.Dispatcher { return s.dispatcher }

// SaveAll persists every channel's current fields, logging (but not
// halting on) individual save failures per spec §4.2/§7.
func (s *Station) SaveAll() {
	for i, ch := range s.channels {
		rec := persist.Record(ch.Snapshot())
		ok := persist.Save(s.store, persist.Offset(i), rec)
		if !ok {
			e := errs.PersistSaveError("shutdown save failed").ForChannel(i)
			s.log.WithError(e).Error("FAIL TO SAVE")
		}
	}
}

// Run drives the scheduler on a wall-clock ticker at the half-cycle
// period implied by config's mains frequency, and runs the main
// cooperative loop (heartbeat, then every channel's Poll, then one USB
// line, then one HMI line per iteration) until ctx is cancelled. This
// is the direct generalization of original_source/main.cpp's loop().
func (s *Station) Run(ctx context.Context) {
	halfCyclePeriod := time.Second / time.Duration(2*s.cfg.Timing.MainsFrequencyHz)
	ticker := time.NewTicker(halfCyclePeriod)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				s.scheduler.Tick(t.UnixMicro())
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		if s.heartbeat != nil {
			s.heartbeat.Poll()
		}
		for _, ch := range s.channels {
			ch.Poll(now.UnixMicro(), now.UnixMilli())
		}

		select {
		case line, ok := <-s.usbLines:
			if ok {
				s.handleUSBLine(line)
			}
		default:
		}

		if s.hmiReader != nil && s.hmiReader.Next() {
			s.hmiReader.Handle()
		}
	}
}

func (s *Station) handleUSBLine(line string) {
	ok, response := s.dispatcher.Eval(line)
	if s.usbWrite == nil {
		return
	}
	if !ok {
		s.usbWrite(response + "\n")
		return
	}
	if len(response) > 0 {
		s.usbWrite(response + "\n")
	}
}
