package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialTransport is the real Transport backend: a USB-CDC serial port
// opened via go.bug.st/serial, the same library the field toolkit this
// package is modeled on uses for device bring-up.
type SerialTransport struct {
	mu       sync.Mutex
	port     serial.Port
	portName string
	closed   bool
}

// Open dials the named serial port at the requested baud and applies
// ReadTimeout when it is set. ReadBufSize, WriteBufSize and WriteTimeout
// are not applied to the port; the library's own buffering is used.
func Open(opts Options) (*SerialTransport, error) {
	mode := &serial.Mode{BaudRate: opts.Baud}
	if mode.BaudRate == 0 {
		mode.BaudRate = DefaultBaudQualcomm
	}

	port, err := serial.Open(opts.PortName, mode)
	if err != nil {
		return nil, newError("open", classifyOpenErr(err), err)
	}

	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, newError("open", KindIO, err)
		}
	}

	return &SerialTransport{port: port, portName: opts.PortName}, nil
}

func (t *SerialTransport) PortName() string { return t.portName }

func (t *SerialTransport) Write(ctx context.Context, p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return newError("write", KindPortClosed, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return newError("write", KindCancelled, err)
	}

	total := 0
	for total < len(p) {
		n, err := t.port.Write(p[total:])
		if err != nil {
			return newError("write", classifyIOErr(err), err)
		}
		total += n
		if err := ctx.Err(); err != nil {
			return newError("write", KindCancelled, err)
		}
	}
	return nil
}

func (t *SerialTransport) Read(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, newError("read", KindPortClosed, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, newError("read", KindCancelled, err)
	}

	if timeout > 0 {
		if err := t.port.SetReadTimeout(timeout); err != nil {
			return nil, newError("read", KindIO, err)
		}
	}

	buf := make([]byte, n)
	got := 0
	deadline := time.Now().Add(timeout)
	for got < n {
		if timeout > 0 && time.Now().After(deadline) {
			return buf[:got], newError("read", KindTimeout, nil)
		}
		if err := ctx.Err(); err != nil {
			return buf[:got], newError("read", KindCancelled, err)
		}
		m, err := t.port.Read(buf[got:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return buf[:got], newError("read", KindDeviceDisappeared, err)
			}
			return buf[:got], newError("read", classifyIOErr(err), err)
		}
		if m == 0 {
			return buf[:got], newError("read", KindTimeout, nil)
		}
		got += m
	}
	return buf, nil
}

func (t *SerialTransport) ReadUntilSilence(ctx context.Context, maxWait, silence time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, newError("read_until_silence", KindPortClosed, ErrClosed)
	}

	if err := t.port.SetReadTimeout(silence); err != nil {
		return nil, newError("read_until_silence", KindIO, err)
	}

	var out []byte
	deadline := time.Now().Add(maxWait)
	chunk := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return out, newError("read_until_silence", KindCancelled, err)
		}
		if time.Now().After(deadline) {
			return out, nil
		}
		n, err := t.port.Read(chunk)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, newError("read_until_silence", KindDeviceDisappeared, err)
			}
			return out, newError("read_until_silence", classifyIOErr(err), err)
		}
		if n == 0 {
			return out, nil // silence window elapsed with nothing new
		}
		out = append(out, chunk[:n]...)
	}
}

func (t *SerialTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return newError("flush", KindPortClosed, ErrClosed)
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return newError("flush", KindIO, err)
	}
	return nil
}

func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.port.Close()
}

func classifyOpenErr(err error) Kind {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return KindDeviceDisappeared
		case serial.PermissionDenied, serial.PortBusy:
			return KindIO
		}
	}
	return KindIO
}

func classifyIOErr(err error) Kind {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		if portErr.Code() == serial.PortNotFound {
			return KindDeviceDisappeared
		}
	}
	if errors.Is(err, io.EOF) {
		return KindDeviceDisappeared
	}
	return KindIO
}

var _ Transport = (*SerialTransport)(nil)
