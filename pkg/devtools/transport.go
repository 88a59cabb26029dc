// pkg/devtools/transport.go
package devtools

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
)

// Transport is a duplex message pipe to the browser. Read and Write each move exactly
// one complete protocol message. Write must be safe for concurrent use; Read is only
// ever called by one goroutine at a time (the handshake, then the dispatch loop).
type Transport interface {
	Read() ([]byte, error)
	Write(msg []byte) error
	Close() error
}

// pipeDelimiter terminates every message on Chromium's --remote-debugging-pipe channel.
const pipeDelimiter = 0

// PipeTransport speaks the NUL-delimited framing Chromium uses on the file descriptors
// opened by --remote-debugging-pipe.
type PipeTransport struct {
	r       *bufio.Reader
	w       io.Writer
	closers []io.Closer

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Transport = (*PipeTransport)(nil)

// NewPipeTransport frames messages over r (browser to host) and w (host to browser).
// If either side implements io.Closer it is closed by Close.
func NewPipeTransport(r io.Reader, w io.Writer) *PipeTransport {
	t := &PipeTransport{
		r: bufio.NewReaderSize(r, 64*1024),
		w: w,
	}
	if c, ok := w.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	if c, ok := r.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	return t
}

// Read blocks until a full message arrives. Empty frames are skipped. A partial frame
// followed by end of stream is reported as ErrClosed.
func (t *PipeTransport) Read() ([]byte, error) {
	for {
		frame, err := t.r.ReadBytes(pipeDelimiter)
		if err != nil {
			if isClosedErr(err) {
				return nil, ErrClosed
			}
			return nil, &TransportError{Op: "read", Err: err}
		}
		frame = frame[:len(frame)-1]
		if len(frame) == 0 {
			continue
		}
		return frame, nil
	}
}

// Write sends msg followed by the delimiter as a single write so concurrent writers
// never interleave bytes.
func (t *PipeTransport) Write(msg []byte) error {
	buf := make([]byte, len(msg)+1)
	copy(buf, msg)
	buf[len(msg)] = pipeDelimiter

	t.wmu.Lock()
	defer t.wmu.Unlock()
	if _, err := t.w.Write(buf); err != nil {
		if isClosedErr(err) {
			return ErrClosed
		}
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close closes both halves. It is safe to call more than once.
func (t *PipeTransport) Close() error {
	t.closeOnce.Do(func() {
		var errs []error
		for _, c := range t.closers {
			if err := c.Close(); err != nil && !isClosedErr(err) {
				errs = append(errs, err)
			}
		}
		t.closeErr = errors.Join(errs...)
	})
	return t.closeErr
}

// isClosedErr reports whether err means the other end is gone, as opposed to a real I/O fault.
func isClosedErr(err error) bool {
	return errors.Is(err, ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE)
}
