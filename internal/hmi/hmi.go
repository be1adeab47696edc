// Package hmi implements the Nextion-style HMI serial protocol of
// spec §6/§9: outbound field pushes terminated by three 0xFF bytes,
// and inbound line routing between the pause/resume preamble and the
// shared command dispatcher.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package hmi

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

var terminator = []byte{0xFF, 0xFF, 0xFF}

// Pusher implements spec §4.4's per-channel update hook
// (PushText/PushValue/PushColor), framing outbound Nextion-style
// commands over w.
type Pusher struct {
	mu      sync.Mutex
	w       io.Writer
	paused  bool
}

// NewPusher creates a Pusher writing framed commands to w.
func NewPusher(w io.Writer) *Pusher {
	return &Pusher{w: w}
}

// Pause stops outbound pushes (the `xxxP` inbound preamble).
func (p *Pusher) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume re-enables outbound pushes (the `xxxR` inbound preamble).
func (p *Pusher) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

func (p *Pusher) write(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	io.WriteString(p.w, s)
	p.w.Write(terminator)
}

// PushText sends `<field>.txt="<text>"`.
func (p *Pusher) PushText(field, text string) {
	p.write(fmt.Sprintf("%s.txt=%q", field, text))
}

// PushValue sends `<field>.val=<int>`.
func (p *Pusher) PushValue(field string, v int) {
	p.write(fmt.Sprintf("%s.val=%d", field, v))
}

// PushColor sends `<field>.pco=<long>`.
func (p *Pusher) PushColor(field string, rgb int64) {
	p.write(fmt.Sprintf("%s.pco=%d", field, rgb))
}

// Eval is satisfied by command.Dispatcher.Eval; kept as a narrow
// interface here so internal/hmi does not import internal/command.
type Evaluator interface {
	Eval(line string) (bool, string)
}

// Reader wraps an inbound HMI stream, splitting on the three-0xFF
// terminator, routing the `xxxP`/`xxxR` pause/resume preamble to a
// Pusher and everything else through the shared command dispatcher.
type Reader struct {
	scanner *bufio.Scanner
	pusher  *Pusher
	eval    Evaluator
}

// NewReader creates a Reader over r, routing pause/resume to pusher
// and all other lines through eval.
func NewReader(r io.Reader, pusher *Pusher, eval Evaluator) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Split(splitOnTripleFF)
	return &Reader{scanner: scanner, pusher: pusher, eval: eval}
}

// Next reads and routes the next inbound line. It returns false when
// the underlying stream is exhausted.
func (r *Reader) Next() bool {
	return r.scanner.Scan()
}

// Err returns the last scanning error, if any.
func (r *Reader) Err() error { return r.scanner.Err() }

// Handle routes the most recently scanned line. It returns the
// dispatcher's response when the line was passed through (empty for
// an internal pause/resume preamble).
func (r *Reader) Handle() (ok bool, response string) {
	line := r.scanner.Text()
	if strings.HasPrefix(line, "xxx") && len(line) >= 4 {
		switch line[3] {
		case 'P':
			if r.pusher != nil {
				r.pusher.Pause()
			}
			return true, ""
		case 'R':
			if r.pusher != nil {
				r.pusher.Resume()
			}
			return true, ""
		}
	}
	return r.eval.Eval(line)
}

// splitOnTripleFF is a bufio.SplitFunc that frames on three
// consecutive 0xFF bytes instead of a newline, per spec §6's HMI
// terminator.
func splitOnTripleFF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i := 0; i+2 < len(data); i++ {
		if data[i] == 0xFF && data[i+1] == 0xFF && data[i+2] == 0xFF {
			return i + 3, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
