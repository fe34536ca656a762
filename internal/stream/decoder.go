// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes newline-delimited JSON chat response bodies.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"go.uber.org/zap"
)

const readChunkSize = 4096

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns a chunked response body into Events, one per newline
// terminated line. Lines may be split across reads at any byte. A line that
// is not valid JSON is logged and skipped. Bytes after the last newline when
// the body ends are discarded unparsed.
//
// A Decoder is single use: create one per response.
type Decoder struct {
	r       io.Reader
	log     *zap.Logger
	buf     []byte // carry-over: bytes after the last complete line
	read    []byte
	eof     bool
	err     error
	lines   int
	dropped int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used to report malformed lines.
func WithLogger(log *zap.Logger) Option {
	return func(d *Decoder) {
		if log != nil {
			d.log = log
		}
	}
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		r:    r,
		log:  zap.NewNop(),
		read: make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next event. It returns io.EOF once the body is exhausted;
// any other error comes from the underlying reader.
func (d *Decoder) Next() (Event, error) {
	for {
		if line, ok := d.nextLine(); ok {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			d.lines++

			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				d.dropped++
				d.log.Warn("dropping malformed stream line",
					zap.Int("line", d.lines),
					zap.ByteString("raw", truncate(line, 200)),
					zap.Error(err))
				continue
			}
			return ev, nil
		}

		if d.err != nil {
			return Event{}, d.err
		}
		if d.eof {
			if len(bytes.TrimSpace(d.buf)) > 0 {
				d.log.Debug("discarding unterminated trailing line",
					zap.Int("bytes", len(d.buf)))
			}
			d.buf = nil
			return Event{}, io.EOF
		}

		d.fill()
	}
}

// nextLine pops one complete line from the carry-over buffer.
func (d *Decoder) nextLine() ([]byte, bool) {
	i := bytes.IndexByte(d.buf, '\n')
	if i < 0 {
		return nil, false
	}
	line := d.buf[:i]
	d.buf = d.buf[i+1:]
	return bytes.TrimSuffix(line, []byte("\r")), true
}

// fill performs one read and appends it to the carry-over buffer.
func (d *Decoder) fill() {
	n, err := d.r.Read(d.read)
	if n > 0 {
		// Copy out so returned lines never alias the read buffer.
		d.buf = append(d.buf[:len(d.buf):len(d.buf)], d.read[:n]...)
	}
	switch {
	case errors.Is(err, io.EOF):
		d.eof = true
	case err != nil:
		d.err = err
	}
}

// Dropped reports how many malformed lines were skipped so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// =============================================================================
// CALLBACK STYLE
// =============================================================================

// Process calls fn for every event in order until the body ends. It returns
// nil at end of body, ctx.Err() if ctx is cancelled between events, or the
// underlying read error.
func (d *Decoder) Process(ctx context.Context, fn func(Event)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := d.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		fn(ev)
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
