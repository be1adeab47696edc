package persist

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbclone/station/internal/calib"
)

func sampleRecord() Record {
	var rec Record
	rec.TcVoltageSp = 1234.5
	rec.TempSpMin = 50
	rec.TempSpMax = 450
	rec.Kp = 22.2
	rec.Ki = 1.08
	rec.Kd = 114
	rec.DerivativeTau = 0.5
	rec.SleepDelayMs = 30000
	rec.SleepVoltageSp = 100
	rec.TempRunawayThreshold = 480
	for i := 0; i < calib.PointCount; i++ {
		rec.Calibration[i] = calib.Point{VoltageUV: float64(i) * 500, TempC: float64(i) * 50}
	}
	return rec
}

// asStored returns rec as it reads back from a ByteStore: every field
// is stored as a 4-byte IEEE-754 float, so each value rounds to float32.
func asStored(rec Record) Record {
	f := func(v float64) float64 { return float64(float32(v)) }
	out := Record{
		TcVoltageSp: f(rec.TcVoltageSp), TempSpMin: f(rec.TempSpMin), TempSpMax: f(rec.TempSpMax),
		Kp: f(rec.Kp), Ki: f(rec.Ki), Kd: f(rec.Kd), DerivativeTau: f(rec.DerivativeTau),
		SleepDelayMs: f(rec.SleepDelayMs), SleepVoltageSp: f(rec.SleepVoltageSp),
		TempRunawayThreshold: f(rec.TempRunawayThreshold),
	}
	for i, p := range rec.Calibration {
		out.Calibration[i] = calib.Point{VoltageUV: f(p.VoltageUV), TempC: f(p.TempC)}
	}
	return out
}

func TestSaveLoadRoundTripBitExact(t *testing.T) {
	store := NewMockStore(RecordSize)
	rec := sampleRecord()

	ok := Save(store, 0, rec)
	require.True(t, ok)

	got, ok := Load(store, 0)
	require.True(t, ok)
	assert.Equal(t, asStored(rec), got)
}

func TestSavePartialFailureStillAttemptsAllWrites(t *testing.T) {
	store := NewMockStore(RecordSize)
	rec := sampleRecord()

	store.FailNextWrite = true
	ok := Save(store, 0, rec)
	assert.False(t, ok)

	// The remaining scalars after the failed one must still have been written.
	second, got := store.ReadFloat(4)
	assert.True(t, got)
	assert.InDelta(t, rec.TempSpMin, second, 1e-3)
}

func TestLoadFailsAllOrNothingOnNaN(t *testing.T) {
	store := NewMockStore(RecordSize)
	rec := sampleRecord()
	require.True(t, Save(store, 0, rec))

	store.ReturnNaN = true
	_, ok := Load(store, 0)
	assert.False(t, ok)
}

func TestOffsetIsChannelMajor(t *testing.T) {
	assert.Equal(t, 0, Offset(0))
	assert.Equal(t, RecordSize, Offset(1))
	assert.Equal(t, 2*RecordSize, Offset(2))
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eeprom.bin")

	store, err := NewFileStore(path, RecordSize*2)
	require.NoError(t, err)

	rec := sampleRecord()
	require.True(t, Save(store, Offset(1), rec))
	require.NoError(t, store.Flush())

	reopened, err := NewFileStore(path, RecordSize*2)
	require.NoError(t, err)

	got, ok := Load(reopened, Offset(1))
	require.True(t, ok)
	assert.Equal(t, asStored(rec), got)
}

func TestFileStoreNaNIsFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eeprom.bin")
	store, err := NewFileStore(path, 8)
	require.NoError(t, err)

	require.True(t, store.WriteFloat(0, math.NaN()))
	_, ok := store.ReadFloat(0)
	assert.False(t, ok)
}
