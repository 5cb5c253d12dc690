package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single payload; larger length prefixes are rejected
// before any allocation.
const MaxFrameSize = 8 << 20

// ReadFrame reads a length-prefixed payload from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit %d", length, MaxFrameSize)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes payload to w with a 4-byte little-endian length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit %d", len(payload), MaxFrameSize)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(payload))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
