// Package calib implements the thermocouple calibration table: a
// piecewise-linear map between thermocouple EMF (microvolts) and
// temperature (degrees Celsius), with linear extrapolation beyond the
// table's ends.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package calib

// PointCount is the fixed number of calibration entries a Table holds.
const PointCount = 10

// Point is one (voltage, temperature) calibration entry.
type Point struct {
	VoltageUV float64
	TempC     float64
}

// Table is a fixed-size, caller-ordered piecewise-linear calibration
// curve. Monotonicity of the supplied points is not enforced: the
// source firmware does not validate it either, and a degenerate table
// is an operator-visible hazard rather than a construction-time error
// (see spec Open Questions).
type Table struct {
	points [PointCount]Point
}

// New builds a Table from exactly PointCount points, in ascending
// order as the caller intends them to be searched.
func New(points [PointCount]Point) *Table {
	return &Table{points: points}
}

// Points returns a copy of the table's entries, in index order.
func (t *Table) Points() [PointCount]Point {
	return t.points
}

// Set replaces the entry at index i (0..PointCount-1).
func (t *Table) Set(i int, p Point) {
	t.points[i] = p
}

// VoltageToTemp converts a thermocouple voltage in microvolts to a
// temperature in degrees Celsius by locating the bracketing segment on
// the voltage axis and interpolating linearly within it, or
// extrapolating with the slope of the end segment when v falls outside
// the table's range.
func (t *Table) VoltageToTemp(v float64) float64 {
	return interp(t.points[:], v, func(p Point) (float64, float64) {
		return p.VoltageUV, p.TempC
	})
}

// TempToVoltage is the inverse of VoltageToTemp: given a temperature,
// return the thermocouple voltage that would produce it, interpolating
// or extrapolating on the temperature axis.
func (t *Table) TempToVoltage(temp float64) float64 {
	return interp(t.points[:], temp, func(p Point) (float64, float64) {
		return p.TempC, p.VoltageUV
	})
}

// interp performs the shared "find the bracketing segment on the x
// axis, interpolate into y; extrapolate with the first/last segment's
// slope outside the table's domain" algorithm, where axis picks which
// of a Point's two fields is treated as x (the search/interpolation
// domain) and which is y (the value produced).
func interp(points []Point, x float64, axis func(Point) (x, y float64)) float64 {
	n := len(points)
	if n == 0 {
		return 0
	}
	if n == 1 {
		_, y := axis(points[0])
		return y
	}

	x0, y0 := axis(points[0])
	if x < x0 {
		x1, y1 := axis(points[1])
		return extrapolate(x0, y0, x1, y1, x)
	}

	for i := 0; i < n-1; i++ {
		xa, ya := axis(points[i])
		xb, yb := axis(points[i+1])
		if x <= xb {
			return lerp(xa, ya, xb, yb, x)
		}
	}

	xa, ya := axis(points[n-2])
	xb, yb := axis(points[n-1])
	return extrapolate(xa, ya, xb, yb, x)
}

func lerp(xa, ya, xb, yb, x float64) float64 {
	if xb == xa {
		return ya
	}
	ratio := (x - xa) / (xb - xa)
	return ya + ratio*(yb-ya)
}

func extrapolate(xa, ya, xb, yb, x float64) float64 {
	return lerp(xa, ya, xb, yb, x)
}
