package ws

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// buildFrame serializes one complete, unfragmented (FIN=1) frame for opcode
// with the given payload, per §4.3. If mask is true, a random 4-byte masking
// key is generated and the payload is XOR-masked in the returned bytes; the
// server implementation never sets mask for normal sends, but the option
// exists for symmetry with readFrame and for tests.
func buildFrame(opcode Opcode, payload []byte, mask bool) ([]byte, error) {
	length := len(payload)

	header := make([]byte, 0, 14)
	header = append(header, bitFin|byte(opcode))

	maskBit := byte(0)
	if mask {
		maskBit = bitMask
	}

	switch {
	case length <= len7Max:
		header = append(header, maskBit|byte(length))
	case length <= 0xFFFF:
		header = append(header, maskBit|len16Tag)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(length))
		header = append(header, ext[:]...)
	default:
		header = append(header, maskBit|len64Tag)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(length))
		header = append(header, ext[:]...)
	}

	frame := header
	if mask {
		var key [4]byte
		if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
			return nil, fmt.Errorf("websocket: generating mask key: %w", err)
		}
		frame = append(frame, key[:]...)
		masked := make([]byte, length)
		copy(masked, payload)
		unmask(masked, key)
		frame = append(frame, masked...)
	} else {
		frame = append(frame, payload...)
	}

	return frame, nil
}

// writeFrame serializes and writes one frame to w in a single call, looping
// internally if the underlying Write returns a short write, per §4.3's "a
// single send with the fully materialized frame is preferred; partial writes
// must loop".
func writeFrame(w io.Writer, opcode Opcode, payload []byte) error {
	frame, err := buildFrame(opcode, payload, false)
	if err != nil {
		return err
	}
	return writeFull(w, frame)
}

// writeFull loops Write calls until all of b has been written or an error occurs.
func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return fmt.Errorf("websocket: write error: %w", err)
		}
		b = b[n:]
	}
	return nil
}
