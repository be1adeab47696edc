// Package command implements the line-oriented command surface of
// spec §6: `id:command:arg` framing, a name-to-handler dispatch table,
// and the fixed success/error response shapes.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package command

import (
	"strconv"
	"strings"

	"github.com/jbclone/station/internal/calib"
	"github.com/jbclone/station/internal/channel"
	"github.com/jbclone/station/internal/errs"
	"github.com/jbclone/station/internal/logging"
	"github.com/jbclone/station/internal/persist"
)

// Handler processes a parsed command against a channel (identified by
// id, its index into the dispatcher's channel slice and persisted
// record store) and an argument string, returning either a success
// body or an error.
type Handler func(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error)

// Dispatcher holds the name-to-handler table, the channel slice it
// dispatches into, and the persisted record store every rw command
// saves to, grounded on original_source's eval_serial_command and
// commandTable, recast per spec §9's design note as "a mapping from
// command name to a handler".
type Dispatcher struct {
	channels []*channel.Channel
	store    persist.ByteStore
	log      *logging.Logger
	handlers map[string]Handler
}

// New creates a Dispatcher over channels with every command in spec
// §6's table registered. store is the persisted record backing store
// every successful rw command saves to, per spec §6/§7. log is
// optional; a nil log disables the save-failure log line.
func New(channels []*channel.Channel, store persist.ByteStore, log *logging.Logger) *Dispatcher {
	d := &Dispatcher{
		channels: channels,
		store:    store,
		log:      log,
		handlers: make(map[string]Handler),
	}
	d.registerDefaults()
	return d
}

// save persists ch's current fields at its channel offset, returning
// the literal "OK"/"FAIL TO SAVE" body spec §6/§7 and
// original_source's eeprom.cpp:36 return to the command origin.
func (d *Dispatcher) save(ch *channel.Channel, id int) string {
	rec := persist.Record(ch.Snapshot())
	if persist.Save(d.store, persist.Offset(id), rec) {
		return "OK"
	}
	if d.log != nil {
		e := errs.PersistSaveError("command-triggered save failed").ForChannel(id)
		d.log.WithError(e).Error("FAIL TO SAVE")
	}
	return "FAIL TO SAVE"
}

// Register adds or replaces a command handler.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// Eval parses and executes one command line: `id:command:arg`. It
// returns whether the command succeeded and the literal response body
// (including the "ERROR " prefix on failure), per spec §6/§7.
func (d *Dispatcher) Eval(line string) (bool, string) {
	c1 := strings.IndexByte(line, ':')
	if c1 < 0 {
		return false, "ERROR " + errs.CommandMalformedError().Message
	}
	c2 := strings.IndexByte(line[c1+1:], ':')
	if c2 < 0 {
		return false, "ERROR " + errs.CommandMalformedError().Message
	}
	c2 += c1 + 1

	idText := line[:c1]
	cmdName := line[c1+1 : c2]
	arg := line[c2+1:]

	id, err := strconv.Atoi(idText)
	if err != nil || id < 0 || id >= len(d.channels) {
		return false, "ERROR " + errs.CommandDeviceIDError().Message
	}
	ch := d.channels[id]

	handler, ok := d.handlers[cmdName]
	if !ok {
		return false, "ERROR " + errs.CommandUnknownError().Message
	}

	body, err := handler(d, ch, id, arg)
	if err != nil {
		return false, "ERROR " + err.Error()
	}
	return true, body
}

func formatFixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func boolText(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseBool(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "1", "true":
		return true, nil
	case "0", "false":
		return false, nil
	default:
		return false, errs.CommandValueError("expected 0 or 1")
	}
}

func parseFloatArg(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errs.CommandValueError("not a number")
	}
	return v, nil
}

// getSet wraps the common "arg == \"?\" ⇒ get, else set" shape shared
// by nearly every rw command in spec §6's table.
func getSet(arg string, get func() string, set func(string) (string, error)) (string, error) {
	if arg == "?" {
		return get(), nil
	}
	return set(arg)
}

func (d *Dispatcher) registerDefaults() {
	d.Register("en", cmdEn)
	d.Register("set_t", cmdSetT)
	d.Register("meas_t", cmdMeasT)
	d.Register("meas_uv", cmdMeasUV)
	d.Register("sleep_state", cmdSleepState)
	d.Register("pid_op", cmdPidOp)
	d.Register("runaway_t", cmdRunawayT)
	d.Register("set_min_t", cmdSetMinT)
	d.Register("set_max_t", cmdSetMaxT)
	d.Register("set_uv", cmdSetUV)
	d.Register("pid_kp", cmdPidKp)
	d.Register("pid_ki", cmdPidKi)
	d.Register("pid_kd", cmdPidKd)
	d.Register("pid_d_tau", cmdPidDTau)
	d.Register("sleep_set_t", cmdSleepSetT)
	d.Register("sleep_delay", cmdSleepDelay)
	d.Register("tc_cal_table", cmdTcCalTable)
	d.Register("restore", cmdRestore)
}

func cmdEn(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return boolText(ch.Enabled()) },
		func(s string) (string, error) {
			v, err := parseBool(s)
			if err != nil {
				return "", err
			}
			if v {
				ch.ClearRunawayLatch()
			}
			ch.Enable(v)
			return d.save(ch, id), nil
		})
}

func cmdSetT(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.SetpointC(), 2) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetSetpointC(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

func cmdMeasT(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return formatFixed(ch.MeasuredTempC(), 2), nil
}

func cmdMeasUV(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return formatFixed(ch.MeasuredVoltageUV(), 5), nil
}

func cmdSleepState(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return boolText(ch.IsSleeping()), nil
}

func cmdPidOp(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return formatFixed(ch.PIDOutput(), 4), nil
}

func cmdRunawayT(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.RunawayThresholdC(), 1) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetRunawayThresholdC(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

func cmdSetMinT(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.SetpointMinC(), 0) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetSetpointMinC(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

func cmdSetMaxT(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.SetpointMaxC(), 0) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetSetpointMaxC(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

func cmdSetUV(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.SetpointUV(), 5) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetSetpointUV(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

func cmdPidKp(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.Kp(), 5) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetKp(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

func cmdPidKi(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.Ki(), 5) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetKi(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

func cmdPidKd(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.Kd(), 5) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetKd(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

func cmdPidDTau(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.DerivativeTau(), 5) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetDerivativeTau(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

func cmdSleepSetT(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.SleepSetpointC(), 1) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetSleepSetpointC(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

func cmdSleepDelay(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	return getSet(arg,
		func() string { return formatFixed(ch.SleepDelayMs(), 0) },
		func(s string) (string, error) {
			v, err := parseFloatArg(s)
			if err != nil {
				return "", err
			}
			if err := ch.SetSleepDelayMs(v); err != nil {
				return "", err
			}
			return d.save(ch, id), nil
		})
}

// cmdTcCalTable implements the three sub-forms of spec §6: `?` ->
// table size, `<index>` -> "[v,t]", `<index>[v,t]` -> set entry.
func cmdTcCalTable(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "?" {
		return strconv.Itoa(calib.PointCount), nil
	}

	bracket := strings.IndexByte(arg, '[')
	if bracket < 0 {
		idx, err := strconv.Atoi(arg)
		if err != nil || idx < 0 || idx >= calib.PointCount {
			return "", errs.CommandValueError("tc_cal_table index out of range")
		}
		pts := ch.CalibrationTable().Points()
		p := pts[idx]
		return "[" + formatFixed(p.VoltageUV, 5) + "," + formatFixed(p.TempC, 5) + "]", nil
	}

	idxText := arg[:bracket]
	idx, err := strconv.Atoi(idxText)
	if err != nil || idx < 0 || idx >= calib.PointCount {
		return "", errs.CommandValueError("tc_cal_table index out of range")
	}

	closeBracket := strings.IndexByte(arg, ']')
	if closeBracket < 0 || closeBracket < bracket {
		return "", errs.CommandValueError("tc_cal_table entry malformed, expected [v,t]")
	}
	inner := arg[bracket+1 : closeBracket]
	parts := strings.SplitN(inner, ",", 2)
	if len(parts) != 2 {
		return "", errs.CommandValueError("tc_cal_table entry malformed, expected [v,t]")
	}
	v, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	tempVal, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return "", errs.CommandValueError("tc_cal_table entry malformed, expected [v,t]")
	}

	ch.CalibrationTable().Set(idx, calib.Point{VoltageUV: v, TempC: tempVal})
	return d.save(ch, id), nil
}

// cmdRestore implements the literal preserved behavior of spec §9's
// Open Question: the µV/K argument range-checked against (0, 40] but
// assigned into tc_voltage_sp, with the rest of the channel's
// configuration reset to its factory defaults.
func cmdRestore(d *Dispatcher, ch *channel.Channel, id int, arg string) (string, error) {
	v, err := parseFloatArg(arg)
	if err != nil {
		return "", err
	}
	factory := ch.FactoryDefaults()
	if err := ch.Restore(v, factory); err != nil {
		return "", err
	}
	return d.save(ch, id), nil
}
