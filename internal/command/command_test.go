package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbclone/station/internal/calib"
	"github.com/jbclone/station/internal/channel"
	"github.com/jbclone/station/internal/persist"
)

type fakeHeater struct{ high bool }

func (f *fakeHeater) SetHigh() { f.high = true }
func (f *fakeHeater) SetLow()  { f.high = false }

type fakeTC struct {
	raw       int
	fullScale bool
}

func (f *fakeTC) ReadRaw() (int, bool) { return f.raw, f.fullScale }

type fakeStand struct{ low bool }

func (f *fakeStand) IsLow() bool { return f.low }

func sampleCalTable() *calib.Table {
	var pts [calib.PointCount]calib.Point
	for i := range pts {
		pts[i] = calib.Point{VoltageUV: float64(i) * 500, TempC: float64(i) * 50}
	}
	return calib.New(pts)
}

func newTestDispatcher() *Dispatcher {
	d, _ := newTestDispatcherWithStore()
	return d
}

func newTestDispatcherWithStore() (*Dispatcher, *persist.MockStore) {
	identity := channel.Identity{Gain: 100, ADCFullScale: 4095, ADCVref: 3.3}
	ch := channel.New(0, identity, sampleCalTable(), nil, &fakeHeater{}, &fakeTC{raw: 1000}, &fakeStand{}, nil, nil)
	factory := channel.PersistedFields{
		TcVoltageSp: 1000, TempSpMin: 0, TempSpMax: 450,
		Kp: 1, Ki: 0, Kd: 0, DerivativeTau: 0,
		SleepDelayMs: 30000, SleepVoltageSp: 100, TempRunawayThreshold: 400,
		Calibration: sampleCalTable().Points(),
	}
	ch.Apply(factory)
	ch.SetFactoryDefaults(factory)
	store := persist.NewMockStore(persist.RecordSize)
	return New([]*channel.Channel{ch}, store, nil), store
}

func TestMalformedCommandMissingSecondColon(t *testing.T) {
	d := newTestDispatcher()
	ok, resp := d.Eval("0:set_t")
	assert.False(t, ok)
	assert.Equal(t, "ERROR Malformed command. Format: id:command:value_or_?", resp)
}

func TestInvalidDeviceID(t *testing.T) {
	d := newTestDispatcher()
	ok, resp := d.Eval("9:set_t:100")
	assert.False(t, ok)
	assert.Equal(t, "ERROR Invalid device ID", resp)
}

func TestUnknownCommand(t *testing.T) {
	d := newTestDispatcher()
	ok, resp := d.Eval("0:frobnicate:1")
	assert.False(t, ok)
	assert.Equal(t, "ERROR Unknown command", resp)
}

func TestEnableGetAndSet(t *testing.T) {
	d := newTestDispatcher()

	ok, resp := d.Eval("0:en:?")
	require.True(t, ok)
	assert.Equal(t, "0", resp)

	ok, resp = d.Eval("0:en:1")
	require.True(t, ok)
	assert.Equal(t, "OK", resp)

	ok, resp = d.Eval("0:en:?")
	require.True(t, ok)
	assert.Equal(t, "1", resp)
}

func TestSetTBoundedByMinMax(t *testing.T) {
	d := newTestDispatcher()

	ok, resp := d.Eval("0:set_t:200")
	require.True(t, ok)
	assert.Equal(t, "OK", resp)

	ok, resp = d.Eval("0:set_t:?")
	require.True(t, ok)
	assert.Equal(t, "200.00", resp)

	ok, _ = d.Eval("0:set_t:9999")
	assert.False(t, ok)
}

func TestTcCalTableThreeForms(t *testing.T) {
	d := newTestDispatcher()

	ok, resp := d.Eval("0:tc_cal_table:?")
	require.True(t, ok)
	assert.Equal(t, "10", resp)

	ok, resp = d.Eval("0:tc_cal_table:3")
	require.True(t, ok)
	assert.Equal(t, "[1500.00000,150.00000]", resp)

	ok, resp = d.Eval("0:tc_cal_table:3[1600,160]")
	require.True(t, ok)
	assert.Equal(t, "OK", resp)

	ok, resp = d.Eval("0:tc_cal_table:3")
	require.True(t, ok)
	assert.Equal(t, "[1600.00000,160.00000]", resp)
}

func TestSetTPersistsAndReportsFailToSave(t *testing.T) {
	d, store := newTestDispatcherWithStore()

	ok, resp := d.Eval("0:set_t:200")
	require.True(t, ok)
	assert.Equal(t, "OK", resp)

	loaded, loadOK := persist.Load(store, persist.Offset(0))
	require.True(t, loadOK)
	assert.InDelta(t, 2000.0, loaded.TcVoltageSp, 1e-6)

	store.FailNextWrite = true
	ok, resp = d.Eval("0:set_t:210")
	require.True(t, ok)
	assert.Equal(t, "FAIL TO SAVE", resp)
}

func TestRestoreCrossFieldBugPreserved(t *testing.T) {
	d := newTestDispatcher()

	ok, resp := d.Eval("0:restore:20")
	require.True(t, ok)
	assert.Equal(t, "OK", resp)

	ok, resp = d.Eval("0:set_uv:?")
	require.True(t, ok)
	assert.Equal(t, "20.00000", resp)

	ok, _ = d.Eval("0:restore:50")
	assert.False(t, ok)
}
