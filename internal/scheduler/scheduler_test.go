package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingChannel struct {
	scheduled  []int64
	opLevels   []float64
}

func (r *recordingChannel) ScheduleSample(nowUs int64)  { r.scheduled = append(r.scheduled, nowUs) }
func (r *recordingChannel) UpdateOutput(opLevel float64) { r.opLevels = append(r.opLevels, opLevel) }

func TestBurstFiringOpLevelSequence(t *testing.T) {
	ch := &recordingChannel{}
	s := New(10, []Tickable{ch}, nil)

	for i := 0; i < 10; i++ {
		s.Tick(int64(i) * 1000)
	}

	assert.Equal(t, []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}, ch.opLevels)
	assert.Empty(t, ch.scheduled, "no sample should be scheduled before k reaches N")
}

func TestScheduleAtKEqualsNResetsCounter(t *testing.T) {
	ch := &recordingChannel{}
	s := New(10, []Tickable{ch}, nil)

	for i := 0; i < 10; i++ {
		s.Tick(int64(i) * 1000)
	}
	s.Tick(10_000) // k has reached N

	assert.Len(t, ch.scheduled, 1)
	assert.Equal(t, int64(10_000), ch.scheduled[0])
	assert.Equal(t, int64(0), s.K())

	// Immediately after a schedule broadcast, no output update is sent
	// in the same tick (spec §4.5 MUST, confirmed by original_source).
	assert.Len(t, ch.opLevels, 10)
}

func TestFiringResumesAtK1AfterSample(t *testing.T) {
	ch := &recordingChannel{}
	s := New(10, []Tickable{ch}, nil)

	for i := 0; i < 11; i++ {
		s.Tick(int64(i) * 1000)
	}
	s.Tick(11_000)

	assert.Equal(t, []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0}, ch.opLevels)
}
