package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"jsonrpc":"2.0","method":"ping","id":"1"}`),
		[]byte("x"),
		bytes.Repeat([]byte("a"), 64*1024),
	}

	for _, payload := range payloads {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, payload); err != nil {
			t.Fatalf("WriteFrame() error = %v", err)
		}

		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("ReadFrame() = %d bytes, want %d bytes", len(got), len(payload))
		}
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, MaxFrameSize+1)

	if err := WriteFrame(&buf, payload); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("WriteFrame() error = %v, want ErrFrameTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Errorf("WriteFrame() wrote %d bytes after rejection", buf.Len())
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(MaxFrameSize)+1)
	buf.Write(header[:])

	if _, err := ReadFrame(&buf); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("ReadFrame() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameEOF(t *testing.T) {
	// A clean close before the header is a plain EOF so accept loops can
	// tell it apart from a truncated frame.
	if _, err := ReadFrame(bytes.NewReader(nil)); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() on empty stream error = %v, want io.EOF", err)
	}

	// A partial header is a real protocol error, not a clean EOF.
	if _, err := ReadFrame(bytes.NewReader([]byte{0, 0})); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() on truncated header error = %v, want unexpected-EOF error", err)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 100)
	buf.Write(header[:])
	buf.WriteString("short")

	if _, err := ReadFrame(&buf); err == nil {
		t.Error("ReadFrame() on truncated body expected error, got nil")
	}
}
