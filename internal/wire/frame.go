package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameLen is the largest payload a frame can carry. The length prefix
// is an unsigned 16-bit integer.
const MaxFrameLen = 0xFFFF

var (
	// ErrFrameTooLarge is returned when an encoded value does not fit in one frame.
	ErrFrameTooLarge = errors.New("wire: frame too large")

	// ErrMalformedFrame is returned when the buffered frame is not valid JSON.
	// The frame is dropped.
	ErrMalformedFrame = errors.New("wire: malformed frame")

	// ErrDecodeMismatch is returned when the buffered frame is valid JSON but
	// does not have the shape of the requested type. The frame is kept so
	// another type can be tried.
	ErrDecodeMismatch = errors.New("wire: decode mismatch")
)

// readFrame reads one length-prefixed frame.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(header[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// writeFrame writes one length-prefixed frame without flushing.
func writeFrame(w *bufio.Writer, payload []byte) error {
	if len(payload) > MaxFrameLen {
		return fmt.Errorf("%w: %d bytes exceeds limit %d", ErrFrameTooLarge, len(payload), MaxFrameLen)
	}
	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
