package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFields bounds the field count of a single frame.
	MaxFields = 16

	// MaxFieldSize bounds a single payload field (64KB).
	MaxFieldSize = 65536
)

var (
	ErrVersionMismatch  = errors.New("protocol: version mismatch")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrTooManyFields    = errors.New("protocol: too many payload fields")
	ErrFieldTooLarge    = errors.New("protocol: payload field too large")
)

// Encode serializes the message into its wire form: magic (2B), version
// (1B), kind (1B), field count (4B BE), then each field as a 4B BE length
// prefix plus raw bytes, then the CRC-32 trailer (4B BE). The layout is
// deterministic; fields are never reordered.
func Encode(m *Message) []byte {
	size := 8 + 4 // header + trailer
	for _, f := range m.Fields {
		size += 4 + len(f)
	}
	buf := make([]byte, 0, size)

	var hdr [8]byte
	binary.BigEndian.PutUint16(hdr[0:2], Magic)
	hdr[2] = Version
	hdr[3] = byte(m.Kind)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(m.Fields))) //nolint:gosec // bounded by MaxFields
	buf = append(buf, hdr[:]...)

	var lenBuf [4]byte
	for _, f := range m.Fields {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f))) //nolint:gosec // bounded by MaxFieldSize
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, f...)
	}

	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], m.checksum())
	return append(buf, sum[:]...)
}

// Write encodes the message and writes it to w in one call.
func Write(w io.Writer, m *Message) error {
	if _, err := w.Write(Encode(m)); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// AwaitFrameStart consumes bytes from r until the two-byte magic sequence
// has been read, scanning byte by byte so the stream resynchronizes even
// when the marker lands at an odd offset. It returns the reader's error
// when the stream ends before a marker is found.
func AwaitFrameStart(r io.ByteReader) error {
	var prev byte
	var have bool
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if have && binary.BigEndian.Uint16([]byte{prev, b}) == Magic {
			return nil
		}
		prev, have = b, true
	}
}

// Decode reads one frame body from r. The caller must already have consumed
// the magic prefix (see AwaitFrameStart). An unknown kind byte decodes as
// KindEmpty; a version byte other than Version fails with
// ErrVersionMismatch; a trailer that does not match the checksum recomputed
// from the decoded fields fails with ErrChecksumMismatch.
func Decode(r io.Reader) (*Message, error) {
	var hdr [6]byte // version, kind, field count
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("protocol: read header: %w", err)
	}
	if hdr[0] != Version {
		return nil, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrVersionMismatch, hdr[0], Version)
	}

	m := &Message{Kind: KindFromByte(hdr[1])}

	count := binary.BigEndian.Uint32(hdr[2:6])
	if count > MaxFields {
		return nil, fmt.Errorf("%w: %d", ErrTooManyFields, count)
	}

	var lenBuf [4]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("protocol: read field length: %w", err)
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > MaxFieldSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrFieldTooLarge, n)
		}
		field := make([]byte, n)
		if _, err := io.ReadFull(r, field); err != nil {
			return nil, fmt.Errorf("protocol: read field: %w", err)
		}
		m.Fields = append(m.Fields, field)
	}

	var sum [4]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return nil, fmt.Errorf("protocol: read checksum: %w", err)
	}
	if got := binary.BigEndian.Uint32(sum[:]); got != m.checksum() {
		return nil, fmt.Errorf("%w: frame says 0x%08X, fields say 0x%08X", ErrChecksumMismatch, got, m.checksum())
	}

	return m, nil
}
