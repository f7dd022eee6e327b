package rcon

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// MaxPayload caps the content length of a single frame. Responses larger
// than this indicate a desynced stream rather than real data.
const MaxPayload = 1 << 20

// applyXOR masks buf in place with the repeating key. An empty key leaves
// the buffer untouched, which is the pre-handshake state.
func applyXOR(buf, key []byte) {
	if len(key) == 0 {
		return
	}
	for i := range buf {
		buf[i] ^= key[i%len(key)]
	}
}

// writeFrame writes one framed message: little-endian request id, little-
// endian content length, then the XOR-masked payload.
func writeFrame(w io.Writer, id uint32, payload, key []byte) error {
	frame := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], id)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)
	applyXOR(frame[8:], key)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readFrame reads exactly one framed message and returns the echoed id and
// the unmasked payload.
func readFrame(r io.Reader, key []byte) (uint32, []byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("read frame header: %w", err)
	}

	id := binary.LittleEndian.Uint32(header[0:4])
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > MaxPayload {
		return 0, nil, &InvalidDataError{Reason: fmt.Sprintf("content length %d exceeds cap", length)}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read frame payload: %w", err)
	}
	applyXOR(payload, key)
	return id, payload, nil
}

// sanitizePayload turns a raw payload into a string safe to hand to the
// JSON parser: invalid UTF-8 is replaced and the pretty-printing whitespace
// the server occasionally emits is stripped.
func sanitizePayload(payload []byte) string {
	s := strings.ToValidUTF8(string(payload), "�")
	return strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t':
			return -1
		}
		return r
	}, s)
}
