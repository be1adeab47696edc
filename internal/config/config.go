// Package config loads the station's process-level YAML configuration:
// serial transports, timing constants, and the hardware identity plus
// factory defaults for every configured channel. Grounded on
// itohio-golpm/pkg/config/config.go's Load/Default shape.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jbclone/station/internal/errs"
)

// SerialConfig describes one serial transport (USB command surface or
// HMI link).
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// TimingConfig carries the defaults of spec §6, overridable per
// deployment.
type TimingConfig struct {
	ZeroCrossPeriodN     int64 `yaml:"zero_cross_period_n"`
	AmpRecoveryUs        int64 `yaml:"amp_recovery_us"`
	HeartbeatPulseUs     int64 `yaml:"heartbeat_pulse_us"`
	HMIUpdateIntervalMs  int64 `yaml:"hmi_update_interval_ms"`
	EEPROMAckTimeoutMs   int64 `yaml:"eeprom_ack_timeout_ms"`
	SerialReadTimeoutMs  int64 `yaml:"serial_read_timeout_ms"`
	MainsFrequencyHz     float64 `yaml:"mains_frequency_hz"`
}

// CalibrationPointConfig is one (voltage, temperature) calibration
// entry as it appears in YAML.
type CalibrationPointConfig struct {
	VoltageUV float64 `yaml:"v"`
	TempC     float64 `yaml:"t"`
}

// ChannelConfig describes one channel's hardware identity and factory
// defaults, the config-driven seed original_source's `restore` command
// reconstructs at runtime.
type ChannelConfig struct {
	AnalogInputID int     `yaml:"analog_input_id"`
	HeaterDriveID int     `yaml:"heater_drive_id"`
	StandSenseID  int     `yaml:"stand_sense_id"`
	Gain          float64 `yaml:"gain"`
	EEPROMOffset  int     `yaml:"eeprom_offset"`
	ADCFullScale  int     `yaml:"adc_full_scale"`
	ADCVref       float64 `yaml:"adc_vref"`

	FactoryTempSpMin            float64                  `yaml:"factory_temp_sp_min"`
	FactoryTempSpMax            float64                  `yaml:"factory_temp_sp_max"`
	FactoryKp                   float64                  `yaml:"factory_kp"`
	FactoryKi                   float64                  `yaml:"factory_ki"`
	FactoryKd                   float64                  `yaml:"factory_kd"`
	FactoryDerivativeTau        float64                  `yaml:"factory_derivative_tau"`
	FactorySleepDelayMs         float64                  `yaml:"factory_sleep_delay_ms"`
	FactorySleepVoltageSp       float64                  `yaml:"factory_sleep_voltage_sp"`
	FactoryTempRunawayThreshold float64                  `yaml:"factory_temp_runaway_threshold"`
	FactoryCalibration          []CalibrationPointConfig `yaml:"factory_calibration"`

	// HMIFields is the per-channel display-binding map named in spec
	// §9's Open Question ("field names are reused across channels...
	// implementers should treat per-channel display binding as
	// configuration").
	HMIFields map[string]string `yaml:"hmi_fields"`
}

// Config is the full station configuration.
type Config struct {
	USBSerial    SerialConfig    `yaml:"usb_serial"`
	HMISerial    SerialConfig    `yaml:"hmi_serial"`
	Timing       TimingConfig    `yaml:"timing"`
	PersistPath  string          `yaml:"persist_path"`
	Channels     []ChannelConfig `yaml:"channels"`
}

// Default returns a single-channel configuration with the timing
// defaults of spec §6.
func Default() *Config {
	return &Config{
		USBSerial: SerialConfig{Port: "/dev/ttyACM0", BaudRate: 115200},
		HMISerial: SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 9600},
		Timing: TimingConfig{
			ZeroCrossPeriodN:    10,
			AmpRecoveryUs:       1700,
			HeartbeatPulseUs:    5000,
			HMIUpdateIntervalMs: 200,
			EEPROMAckTimeoutMs:  7,
			SerialReadTimeoutMs: 20,
			MainsFrequencyHz:    60,
		},
		PersistPath: "station.eeprom",
		Channels: []ChannelConfig{
			{
				Gain: 100, ADCFullScale: 4095, ADCVref: 3.3,
				FactoryTempSpMin: 50, FactoryTempSpMax: 450,
				FactoryKp: 20, FactoryKi: 1, FactoryKd: 100,
				FactoryDerivativeTau: 0.3, FactorySleepDelayMs: 30000,
				FactorySleepVoltageSp: 100, FactoryTempRunawayThreshold: 480,
			},
		},
	}
}

// Load reads and parses filename as YAML, returning a descriptive
// error immediately on a missing or malformed file rather than
// partially applying values (the teacher's pkg/config idiom).
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrConfig, fmt.Sprintf("read config file %s", filename))
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(err, errs.ErrConfig, fmt.Sprintf("parse config file %s", filename))
	}
	if len(cfg.Channels) == 0 {
		return nil, errs.New(errs.ErrConfig, "config must declare at least one channel")
	}
	return cfg, nil
}

// Save writes cfg to filename as YAML.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errs.Wrap(err, errs.ErrConfig, "marshal config")
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errs.Wrap(err, errs.ErrConfig, fmt.Sprintf("write config file %s", filename))
	}
	return nil
}
