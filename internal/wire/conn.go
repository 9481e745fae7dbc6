package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/dirmesh-go/internal/core/domain"
)

// Conn frames JSON values over a byte stream.
//
// Reads are not safe for concurrent use; one goroutine owns the read side.
// Writes are serialized, so a reader and any number of pushers may share
// a Conn.
type Conn struct {
	netConn net.Conn
	br      *bufio.Reader

	writeMu sync.Mutex
	bw      *bufio.Writer

	// pending is the last frame read but not yet consumed by DecodeAs.
	pending []byte

	readTimeout  atomic.Int64
	writeTimeout atomic.Int64

	closed atomic.Bool
}

// NewConn wraps c.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		netConn: c,
		br:      bufio.NewReader(c),
		bw:      bufio.NewWriter(c),
	}
}

// SetReadTimeout sets the deadline applied to every read. Zero disables it.
func (c *Conn) SetReadTimeout(d time.Duration) {
	c.readTimeout.Store(int64(d))
}

// SetWriteTimeout sets the deadline applied to every write. Zero disables it.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.writeTimeout.Store(int64(d))
}

func (c *Conn) armRead() error {
	d := time.Duration(c.readTimeout.Load())
	if d <= 0 {
		return c.netConn.SetReadDeadline(time.Time{})
	}
	return c.netConn.SetReadDeadline(time.Now().Add(d))
}

func (c *Conn) armWrite() error {
	d := time.Duration(c.writeTimeout.Load())
	if d <= 0 {
		return c.netConn.SetWriteDeadline(time.Time{})
	}
	return c.netConn.SetWriteDeadline(time.Now().Add(d))
}

// Send encodes v as one frame and flushes it.
func (c *Conn) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode %T: %w", v, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.armWrite(); err != nil {
		return err
	}
	if err := writeFrame(c.bw, payload); err != nil {
		return err
	}
	return c.bw.Flush()
}

// Receive returns the pending frame, reading a new one from the stream if
// none is pending. The frame stays pending until DecodeAs consumes it.
func (c *Conn) Receive() ([]byte, error) {
	if c.pending != nil {
		return c.pending, nil
	}
	if err := c.armRead(); err != nil {
		return nil, err
	}
	frame, err := readFrame(c.br)
	if err != nil {
		return nil, err
	}
	c.pending = frame
	return frame, nil
}

// Consume drops the pending frame.
func (c *Conn) Consume() {
	c.pending = nil
}

// DecodeAs strictly decodes the pending frame into v, reading a frame first
// if none is pending.
//
// On success the frame is consumed. A frame with unknown fields or fields
// of the wrong type yields ErrDecodeMismatch and stays pending. Text that is
// not JSON yields ErrMalformedFrame and is dropped. Transport errors are
// returned as is.
func (c *Conn) DecodeAs(v any) error {
	frame, err := c.Receive()
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if isSyntaxError(err) {
			c.pending = nil
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return fmt.Errorf("%w: %v", ErrDecodeMismatch, err)
	}
	c.pending = nil
	return nil
}

func isSyntaxError(err error) bool {
	var syntaxErr *json.SyntaxError
	return errors.As(err, &syntaxErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// ReadResources reads Resource frames until a ResultSize terminator and
// passes each resource to fn. It returns how many resources were received
// and the count declared by the terminator. An error from fn stops the
// stream.
func (c *Conn) ReadResources(fn func(*domain.Resource) error) (received, declared int, err error) {
	for {
		var r domain.Resource
		err := c.DecodeAs(&r)
		if err == nil {
			received++
			if fn != nil {
				if err := fn(&r); err != nil {
					return received, 0, err
				}
			}
			continue
		}
		if !errors.Is(err, ErrDecodeMismatch) {
			return received, 0, err
		}

		var size domain.ResultSize
		if err := c.DecodeAs(&size); err != nil {
			return received, 0, err
		}
		return received, size.ResultSize, nil
	}
}

// SendRaw copies exactly n unframed bytes from r and flushes.
func (c *Conn) SendRaw(r io.Reader, n int64) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.armWrite(); err != nil {
		return err
	}
	if _, err := io.CopyN(c.bw, r, n); err != nil {
		return fmt.Errorf("wire: send raw: %w", err)
	}
	return c.bw.Flush()
}

// ReceiveRaw copies exactly n unframed bytes to w. A pending frame must
// have been consumed first.
func (c *Conn) ReceiveRaw(w io.Writer, n int64) error {
	if c.pending != nil {
		return errors.New("wire: receive raw with a pending frame")
	}
	if err := c.armRead(); err != nil {
		return err
	}
	if _, err := io.CopyN(w, c.br, n); err != nil {
		return fmt.Errorf("wire: receive raw: %w", err)
	}
	return nil
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// NetConn returns the underlying connection.
func (c *Conn) NetConn() net.Conn {
	return c.netConn
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}
