// Package serialio implements the line-oriented serial transport used
// for both the USB command surface and the HMI serial link, grounded
// on itohio-golpm's Serial type (open-port / read-goroutine / write-
// command shape), generalized from that device's fixed heater-state
// protocol to this program's newline-terminated command lines.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package serialio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/jbclone/station/internal/logging"
)

// DefaultReadTimeout matches spec §6's serial read timeout default.
const DefaultReadTimeout = 20 * time.Millisecond

// conn is the narrow surface Port needs from a serial connection;
// go.bug.st/serial.Port satisfies it. Kept separate from that library
// type so tests can substitute an in-memory loopback.
type conn interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Port wraps a go.bug.st/serial connection, exposing a line channel
// for inbound reads and a Write method for outbound lines.
type Port struct {
	name     string
	baudRate int
	timeout  time.Duration
	log      *logging.Logger

	mu        sync.RWMutex
	conn      conn
	lines     chan string
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a Port for name at baudRate, with a read timeout
// defaulting to DefaultReadTimeout when timeout is zero.
func New(name string, baudRate int, timeout time.Duration, log *logging.Logger) *Port {
	if timeout == 0 {
		timeout = DefaultReadTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Port{
		name:     name,
		baudRate: baudRate,
		timeout:  timeout,
		log:      log,
		lines:    make(chan string, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Open connects to the underlying serial device and starts the
// read-goroutine feeding Lines().
func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return fmt.Errorf("serialio: %s already open", p.name)
	}

	mode := &serial.Mode{BaudRate: p.baudRate}
	sp, err := serial.Open(p.name, mode)
	if err != nil {
		return fmt.Errorf("serialio: open %s: %w", p.name, err)
	}
	if err := sp.SetReadTimeout(p.timeout); err != nil {
		sp.Close()
		return fmt.Errorf("serialio: set read timeout on %s: %w", p.name, err)
	}

	p.conn = sp
	p.connected = true
	go p.readLines()
	return nil
}

// newWithConn builds a Port already wired to an established
// connection, for tests that substitute an in-memory loopback for a
// real go.bug.st/serial.Port.
func newWithConn(c conn) *Port {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Port{
		name:      "test",
		lines:     make(chan string, 16),
		ctx:       ctx,
		cancel:    cancel,
		conn:      c,
		connected: true,
	}
	go p.readLines()
	return p
}

// Close stops the read goroutine and closes the underlying port.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil
	}
	p.cancel()
	err := p.conn.Close()
	p.connected = false
	return err
}

// Lines returns the channel of inbound, newline-terminated lines
// (with the terminator stripped).
func (p *Port) Lines() <-chan string {
	return p.lines
}

// Write sends a line (the caller-provided terminator, if any, is sent
// as-is; callers typically append "\n").
func (p *Port) Write(line string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.connected {
		return fmt.Errorf("serialio: %s not open", p.name)
	}
	_, err := p.conn.Write([]byte(line))
	return err
}

func (p *Port) readLines() {
	defer func() {
		if r := recover(); r != nil && p.log != nil {
			p.log.Error("panic in serialio read loop for %s: %v", p.name, r)
		}
	}()

	scanner := bufio.NewScanner(p.conn)
	for scanner.Scan() {
		select {
		case <-p.ctx.Done():
			return
		case p.lines <- scanner.Text():
		}
	}
	close(p.lines)
}
