package calib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *Table {
	// Loosely modeled on a JBC-style tip: 0..450C over a small EMF range.
	pts := [PointCount]Point{
		{VoltageUV: 0, TempC: 0},
		{VoltageUV: 500, TempC: 50},
		{VoltageUV: 1000, TempC: 100},
		{VoltageUV: 1500, TempC: 150},
		{VoltageUV: 2000, TempC: 200},
		{VoltageUV: 2500, TempC: 250},
		{VoltageUV: 3000, TempC: 300},
		{VoltageUV: 3500, TempC: 350},
		{VoltageUV: 4000, TempC: 400},
		{VoltageUV: 4500, TempC: 450},
	}
	return New(pts)
}

func TestVoltageToTempInterpolatesWithinRange(t *testing.T) {
	tbl := sampleTable()

	assert.InDelta(t, 0.0, tbl.VoltageToTemp(0), 1e-9)
	assert.InDelta(t, 450.0, tbl.VoltageToTemp(4500), 1e-9)
	assert.InDelta(t, 225.0, tbl.VoltageToTemp(2250), 1e-9)
}

func TestVoltageToTempExtrapolatesOutsideRange(t *testing.T) {
	tbl := sampleTable()

	// Below the first entry: slope of segment (0->1) is 50C/500uV = 0.1
	below := tbl.VoltageToTemp(-500)
	assert.InDelta(t, -50.0, below, 1e-9)

	// Above the last entry: slope of segment (8->9) continues linearly.
	above := tbl.VoltageToTemp(5500)
	assert.InDelta(t, 550.0, above, 1e-9)
	assert.Greater(t, above, 450.0)
}

func TestTempToVoltageRoundTrip(t *testing.T) {
	tbl := sampleTable()

	for _, temp := range []float64{0, 12.5, 50, 173.2, 400, 450} {
		v := tbl.TempToVoltage(temp)
		back := tbl.VoltageToTemp(v)
		require.True(t, math.Abs(back-temp) < 1e-3, "round trip for %.3f got %.6f via v=%.6f", temp, back, v)
	}
}

func TestVoltageToTempMonotonic(t *testing.T) {
	tbl := sampleTable()

	prev := math.Inf(-1)
	for v := -1000.0; v <= 6000.0; v += 37.0 {
		temp := tbl.VoltageToTemp(v)
		assert.GreaterOrEqual(t, temp, prev)
		prev = temp
	}
}

func TestSetMutatesEntry(t *testing.T) {
	tbl := sampleTable()
	tbl.Set(0, Point{VoltageUV: -10, TempC: -5})
	pts := tbl.Points()
	assert.Equal(t, Point{VoltageUV: -10, TempC: -5}, pts[0])
}
