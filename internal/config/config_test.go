package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
usb_serial:
  port: /dev/ttyACM0
  baud_rate: 115200
hmi_serial:
  port: /dev/ttyUSB0
  baud_rate: 9600
timing:
  zero_cross_period_n: 10
  amp_recovery_us: 1700
  heartbeat_pulse_us: 5000
  hmi_update_interval_ms: 200
  eeprom_ack_timeout_ms: 7
  serial_read_timeout_ms: 20
  mains_frequency_hz: 60
persist_path: station.eeprom
channels:
  - gain: 100
    adc_full_scale: 4095
    adc_vref: 3.3
    factory_temp_sp_min: 50
    factory_temp_sp_max: 450
    factory_kp: 20
    factory_ki: 1
    factory_kd: 100
    factory_derivative_tau: 0.3
    factory_sleep_delay_ms: 30000
    factory_sleep_voltage_sp: 100
    factory_temp_runaway_threshold: 480
    factory_calibration:
      - {v: 0, t: 0}
      - {v: 4500, t: 450}
    hmi_fields:
      pv: t0
      sp: t1
`

func TestLoadParsesFullConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "station.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.USBSerial.Port)
	assert.Equal(t, int64(10), cfg.Timing.ZeroCrossPeriodN)
	require.Len(t, cfg.Channels, 1)
	assert.Equal(t, 100.0, cfg.Channels[0].Gain)
	assert.Equal(t, "t0", cfg.Channels[0].HMIFields["pv"])
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/station.yaml")
	assert.Error(t, err)
}

func TestLoadRequiresAtLeastOneChannel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("usb_serial:\n  port: x\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := Default()
	require.NoError(t, cfg.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.USBSerial.Port, reloaded.USBSerial.Port)
	assert.Equal(t, len(cfg.Channels), len(reloaded.Channels))
}
