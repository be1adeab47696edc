package serialio

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback is a minimal conn backed by an in-memory pipe, standing in
// for a real go.bug.st/serial.Port in tests.
type loopback struct {
	r io.Reader
	w io.Writer
}

func (l *loopback) Read(p []byte) (int, error)         { return l.r.Read(p) }
func (l *loopback) Write(p []byte) (int, error)        { return l.w.Write(p) }
func (l *loopback) Close() error                       { return nil }
func (l *loopback) SetReadTimeout(time.Duration) error { return nil }

func TestLinesDeliversScannedLines(t *testing.T) {
	pr, pw := io.Pipe()
	var outBuf bytes.Buffer
	p := newWithConn(&loopback{r: pr, w: &outBuf})

	go func() {
		pw.Write([]byte("0:en:1\n1:set_t:250\n"))
		pw.Close()
	}()

	first := <-p.Lines()
	second := <-p.Lines()
	assert.Equal(t, "0:en:1", first)
	assert.Equal(t, "1:set_t:250", second)
}

func TestWriteSendsRawBytes(t *testing.T) {
	pr, pw := io.Pipe()
	var outBuf bytes.Buffer
	p := newWithConn(&loopback{r: pr, w: &outBuf})
	defer pw.Close()

	require.NoError(t, p.Write("OK\n"))
	assert.Equal(t, "OK\n", outBuf.String())
}
