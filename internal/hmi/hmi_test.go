package hmi

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushTextFramesWithTripleFF(t *testing.T) {
	var buf bytes.Buffer
	p := NewPusher(&buf)
	p.PushText("t0", "200.0")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `t0.txt="200.0"`))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF}, []byte(out[len(out)-3:]))
}

func TestPushValueAndColorFraming(t *testing.T) {
	var buf bytes.Buffer
	p := NewPusher(&buf)
	p.PushValue("pct", 42)
	p.PushColor("en", 0x07E0)

	out := buf.String()
	assert.Contains(t, out, "pct.val=42")
	assert.Contains(t, out, "en.pco=2016")
}

func TestPauseSuppressesOutboundPushes(t *testing.T) {
	var buf bytes.Buffer
	p := NewPusher(&buf)
	p.Pause()
	p.PushValue("pct", 1)
	assert.Empty(t, buf.String())

	p.Resume()
	p.PushValue("pct", 1)
	assert.NotEmpty(t, buf.String())
}

type fakeEval struct {
	lastLine string
}

func (f *fakeEval) Eval(line string) (bool, string) {
	f.lastLine = line
	return true, "OK"
}

func TestReaderRoutesPausePreambleInternally(t *testing.T) {
	var buf bytes.Buffer
	pusher := NewPusher(&buf)
	ev := &fakeEval{}

	stream := strings.NewReader("xxxP" + "\xff\xff\xff" + "0:en:1" + "\xff\xff\xff")
	r := NewReader(stream, pusher, ev)

	require.True(t, r.Next())
	ok, resp := r.Handle()
	assert.True(t, ok)
	assert.Empty(t, resp)

	pusher.PushValue("x", 1)
	assert.Empty(t, buf.String(), "pause preamble must have suppressed outbound pushes")

	require.True(t, r.Next())
	ok, resp = r.Handle()
	assert.True(t, ok)
	assert.Equal(t, "OK", resp)
	assert.Equal(t, "0:en:1", ev.lastLine)
}

func TestReaderRoutesResumePreambleInternally(t *testing.T) {
	var buf bytes.Buffer
	pusher := NewPusher(&buf)
	pusher.Pause()
	ev := &fakeEval{}

	stream := strings.NewReader("xxxR" + "\xff\xff\xff")
	r := NewReader(stream, pusher, ev)

	require.True(t, r.Next())
	ok, _ := r.Handle()
	assert.True(t, ok)

	pusher.PushValue("x", 1)
	assert.NotEmpty(t, buf.String())
}
