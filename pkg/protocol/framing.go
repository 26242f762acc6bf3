// Package protocol implements the length-prefixed JSON wire protocol spoken
// between the driver process and its clients.
//
// Every message on the socket is a 4-byte big-endian unsigned length N
// followed by N bytes of UTF-8 JSON. The server processes exactly one request
// per accepted connection, sends one response frame, then closes the
// connection.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/codescope/codedb/internal/bytesize"
)

// MaxFrameSize is the maximum allowed payload size for a single frame.
// Frames declaring a larger length are rejected at the connection level
// before any payload bytes are read.
const MaxFrameSize = 10 * bytesize.MiB

// ErrFrameTooLarge is returned when a frame header declares a payload
// larger than MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// WriteFrame writes one length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(MaxFrameSize) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
//
// EOF on the length prefix is returned directly (not wrapped) to allow
// callers to detect normal peer disconnect. A truncated prefix or payload
// yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if uint64(length) > uint64(MaxFrameSize) {
		return nil, fmt.Errorf("%w: declared %d bytes (max %s)",
			ErrFrameTooLarge, length, bytesize.ByteSize(MaxFrameSize))
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}
