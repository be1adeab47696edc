package heartbeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePin struct {
	high bool
}

func (f *fakePin) SetHigh() { f.high = true }
func (f *fakePin) SetLow()  { f.high = false }

func TestPollDrivesHighAfterSet(t *testing.T) {
	pin := &fakePin{}
	m := New(pin, 20*time.Millisecond)

	m.Poll()
	assert.False(t, pin.high, "no Set() yet: pin stays LOW")

	m.Set()
	m.Poll()
	assert.True(t, pin.high)
}

func TestPinDecaysLowAfterPulseWidthWithoutFurtherSet(t *testing.T) {
	pin := &fakePin{}
	m := New(pin, 10*time.Millisecond)

	m.Set()
	m.Poll()
	assert.True(t, pin.high)

	time.Sleep(30 * time.Millisecond)
	assert.False(t, pin.high, "pulse must decay LOW once the tick source stops feeding Set()")
}
