package persist

import "github.com/jbclone/station/internal/calib"

// ScalarCount is the number of plain float64 fields in a Record ahead
// of the calibration table.
const ScalarCount = 10

// RecordSize is the fixed per-channel footprint in bytes: 10 scalars
// plus 10 (voltage, temperature) pairs, all 4-byte floats.
const RecordSize = (ScalarCount + 2*calib.PointCount) * 4

// Record is the fixed-order persisted layout of spec §3: the 10
// scalar fields followed by the 10 calibration pairs, in exactly the
// order given there.
type Record struct {
	TcVoltageSp         float64
	TempSpMin           float64
	TempSpMax           float64
	Kp                  float64
	Ki                  float64
	Kd                  float64
	DerivativeTau       float64
	SleepDelayMs        float64
	SleepVoltageSp      float64
	TempRunawayThreshold float64
	Calibration         [calib.PointCount]calib.Point
}

// Save writes rec to store starting at baseOffset. Every sub-write is
// attempted even after an earlier one fails (spec §4.2); the return
// value reports whether all of them succeeded.
func Save(store ByteStore, baseOffset int, rec Record) bool {
	ok := true
	addr := baseOffset

	scalars := []float64{
		rec.TcVoltageSp, rec.TempSpMin, rec.TempSpMax,
		rec.Kp, rec.Ki, rec.Kd, rec.DerivativeTau,
		rec.SleepDelayMs, rec.SleepVoltageSp, rec.TempRunawayThreshold,
	}
	for _, v := range scalars {
		if !store.WriteFloat(addr, v) {
			ok = false
		}
		addr += 4
	}

	for _, p := range rec.Calibration {
		if !store.WriteFloat(addr, p.VoltageUV) {
			ok = false
		}
		addr += 4
		if !store.WriteFloat(addr, p.TempC) {
			ok = false
		}
		addr += 4
	}

	return ok
}

// Load reads a Record from store starting at baseOffset. Load is
// all-or-nothing: on the first failed sub-read it stops and reports
// failure without returning a partially populated Record.
func Load(store ByteStore, baseOffset int) (Record, bool) {
	var rec Record
	addr := baseOffset

	scalars := make([]float64, ScalarCount)
	for i := range scalars {
		v, ok := store.ReadFloat(addr)
		if !ok {
			return Record{}, false
		}
		scalars[i] = v
		addr += 4
	}
	rec.TcVoltageSp = scalars[0]
	rec.TempSpMin = scalars[1]
	rec.TempSpMax = scalars[2]
	rec.Kp = scalars[3]
	rec.Ki = scalars[4]
	rec.Kd = scalars[5]
	rec.DerivativeTau = scalars[6]
	rec.SleepDelayMs = scalars[7]
	rec.SleepVoltageSp = scalars[8]
	rec.TempRunawayThreshold = scalars[9]

	for i := 0; i < calib.PointCount; i++ {
		v, ok := store.ReadFloat(addr)
		if !ok {
			return Record{}, false
		}
		addr += 4
		tc, ok := store.ReadFloat(addr)
		if !ok {
			return Record{}, false
		}
		addr += 4
		rec.Calibration[i] = calib.Point{VoltageUV: v, TempC: tc}
	}

	return rec, true
}

// Offset returns the base byte offset for channel index idx, per
// spec §6's "base = channel_index * 120" layout.
func Offset(idx int) int {
	return idx * RecordSize
}
