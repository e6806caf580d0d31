// Package rs232 implements the RS-232 protocol handler: a concrete
// WireTransport backed by github.com/tarm/serial, command-level retry, and
// response validation wired through the shared protocol package.
package rs232

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tarm/serial"

	"github.com/benchforge/portcore/internal/protocol"
)

// parityFromPattern decodes the data-pattern code a bib configuration
// attaches to a port into the tarm/serial enum values. Both the
// data-bits-first form ("8n1", "7e1") and the parity-first form ("n81",
// "e71") are accepted. Defaults to 8 data bits, no parity, 1 stop bit
// when the pattern is empty or unrecognized.
func parityFromPattern(pattern string) (dataBits byte, parity serial.Parity, stopBits serial.StopBits) {
	dataBits, parity, stopBits = 8, serial.ParityNone, serial.Stop1

	if len(pattern) < 3 {
		return
	}

	// A parity-first code is reordered to the data-bits-first form.
	if pattern[0] < '0' || pattern[0] > '9' {
		pattern = pattern[1:2] + pattern[0:1] + pattern[2:]
	}

	if d, err := strconv.Atoi(string(pattern[0])); err == nil && d >= 5 && d <= 8 {
		dataBits = byte(d)
	}

	switch pattern[1] {
	case 'n', 'N':
		parity = serial.ParityNone
	case 'e', 'E':
		parity = serial.ParityEven
	case 'o', 'O':
		parity = serial.ParityOdd
	}

	switch pattern[2] {
	case '1':
		stopBits = serial.Stop1
	case '2':
		stopBits = serial.Stop2
	}

	return
}

// serialTransport adapts a *serial.Port (blocking I/O) to WireTransport,
// wrapping each blocking call in a goroutine selected against ctx.Done() so
// a cancelled context unblocks the caller even though the underlying read
// or write is still in flight.
type serialTransport struct {
	portName string
	cfg      *serial.Config
	port     *serial.Port
	reader   *bufio.Reader
}

var _ protocol.WireTransport = (*serialTransport)(nil)

func newSerialTransport(portName string, baud int, dataPattern string, readTimeout time.Duration) *serialTransport {
	dataBits, parity, stopBits := parityFromPattern(dataPattern)
	return &serialTransport{
		portName: portName,
		cfg: &serial.Config{
			Name:        portName,
			Baud:        baud,
			Size:        dataBits,
			Parity:      parity,
			StopBits:    stopBits,
			ReadTimeout: readTimeout,
		},
	}
}

func (t *serialTransport) Open(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		p, err := serial.OpenPort(t.cfg)
		if err != nil {
			done <- err
			return
		}
		t.port = p
		t.reader = bufio.NewReader(p)
		done <- nil
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", protocol.ErrTransport, t.portName, err)
		}
		return nil
	}
}

func (t *serialTransport) Close(ctx context.Context) error {
	if t.port == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		err := t.port.Close()
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		t.port = nil
		t.reader = nil
		if err != nil {
			return fmt.Errorf("%w: close %s: %v", protocol.ErrTransport, t.portName, err)
		}
		return nil
	}
}

func (t *serialTransport) Write(ctx context.Context, data []byte, timeout time.Duration) error {
	if t.port == nil {
		return fmt.Errorf("%w: %s not open", protocol.ErrTransport, t.portName)
	}

	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := t.port.Write(data)
		done <- err
	}()
	select {
	case <-writeCtx.Done():
		return fmt.Errorf("%w: write to %s", protocol.ErrTimeout, t.portName)
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: write to %s: %v", protocol.ErrTransport, t.portName, err)
		}
		return nil
	}
}

// ReadUntil reads bytes from the port until delim is seen or timeout
// elapses. Bytes are read one at a time into a buffer local to this call so
// that, on timeout or cancellation, whatever has been buffered so far is
// returned trimmed alongside protocol.ErrTimeout instead of being discarded
// — the caller (internal/protocol.ValidateResponse via rs232.Handler)
// decides what a partial, unterminated response means.
func (t *serialTransport) ReadUntil(ctx context.Context, delim byte, timeout time.Duration) ([]byte, error) {
	if t.reader == nil {
		return nil, fmt.Errorf("%w: %s not open", protocol.ErrTransport, t.portName)
	}

	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type byteResult struct {
		b   byte
		err error
	}

	readByte := func() <-chan byteResult {
		ch := make(chan byteResult, 1)
		go func() {
			b, err := t.reader.ReadByte()
			ch <- byteResult{b: b, err: err}
		}()
		return ch
	}

	var buf []byte
	next := readByte()
	for {
		select {
		case <-readCtx.Done():
			return trimDelim(buf, delim), fmt.Errorf("%w: read from %s", protocol.ErrTimeout, t.portName)
		case r := <-next:
			if r.err != nil {
				if errors.Is(r.err, context.DeadlineExceeded) {
					return trimDelim(buf, delim), fmt.Errorf("%w: read from %s", protocol.ErrTimeout, t.portName)
				}
				return trimDelim(buf, delim), fmt.Errorf("%w: read from %s: %v", protocol.ErrTransport, t.portName, r.err)
			}
			buf = append(buf, r.b)
			if r.b == delim {
				return trimDelim(buf, delim), nil
			}
			next = readByte()
		}
	}
}

// trimDelim drops a trailing delimiter byte, if present, without mutating
// the caller's buffer further.
func trimDelim(buf []byte, delim byte) []byte {
	if n := len(buf); n > 0 && buf[n-1] == delim {
		return buf[:n-1]
	}
	return buf
}
