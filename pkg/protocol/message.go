// Package protocol defines the chat wire format: a framed binary protocol
// with a magic prefix, a versioned header, length-prefixed payload fields,
// and a CRC-32 integrity trailer.
package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

const (
	// Magic marks the start of every frame on the wire.
	Magic uint16 = 0x5918

	// Version is the protocol version byte checked on every decode.
	Version byte = 0x01
)

// Message is one decoded unit of the wire protocol: a kind and an ordered
// list of raw byte fields. The checksum is computed on encode and verified
// on decode; it is never carried in memory.
type Message struct {
	Kind   Kind
	Fields [][]byte
}

// Is reports whether the message has the given kind.
func (m *Message) Is(k Kind) bool { return m.Kind == k }

// Field returns the i-th payload field, or nil if out of range.
func (m *Message) Field(i int) []byte {
	if i < 0 || i >= len(m.Fields) {
		return nil
	}
	return m.Fields[i]
}

// Text returns the i-th payload field as a string, or "" if out of range.
func (m *Message) Text(i int) string { return string(m.Field(i)) }

// Uint64Field decodes the i-th field as an 8-byte big-endian integer.
func (m *Message) Uint64Field(i int) (uint64, error) {
	f := m.Field(i)
	if len(f) != 8 {
		return 0, fmt.Errorf("protocol: field %d is not a uint64 (%d bytes)", i, len(f))
	}
	return binary.BigEndian.Uint64(f), nil
}

// TimeField parses the i-th field as an RFC 3339 timestamp.
func (m *Message) TimeField(i int) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, m.Text(i))
	if err != nil {
		return time.Time{}, fmt.Errorf("protocol: field %d: %w", i, err)
	}
	return t, nil
}

// checksum is the CRC-32 (IEEE) of the concatenated field bytes.
// Header and count bytes are deliberately excluded.
func (m *Message) checksum() uint32 {
	h := crc32.NewIEEE()
	for _, f := range m.Fields {
		_, _ = h.Write(f)
	}
	return h.Sum32()
}

func (m *Message) String() string {
	return fmt.Sprintf("Message(%v, %d fields)", m.Kind, len(m.Fields))
}

// A Builder assembles an outgoing message field by field.
type Builder struct{ msg Message }

// NewBuilder starts a message of the given kind with no fields.
func NewBuilder(k Kind) *Builder { return &Builder{msg: Message{Kind: k}} }

// Field appends a raw byte field.
func (b *Builder) Field(data []byte) *Builder {
	b.msg.Fields = append(b.msg.Fields, data)
	return b
}

// Text appends a string field.
func (b *Builder) Text(s string) *Builder { return b.Field([]byte(s)) }

// Uint64 appends an 8-byte big-endian integer field.
func (b *Builder) Uint64(v uint64) *Builder {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return b.Field(buf[:])
}

// Build finalizes the message.
func (b *Builder) Build() *Message { return &b.msg }

// No-payload sentinels.

func Empty() *Message      { return &Message{Kind: KindEmpty} }
func Ack() *Message        { return &Message{Kind: KindAck} }
func Nack() *Message       { return &Message{Kind: KindNack} }
func Disconnect() *Message { return &Message{Kind: KindDisconnect} }
func Break() *Message      { return &Message{Kind: KindBreak} }

// DebugLogRequest asks the server to dump its directory state to its own
// diagnostic log. The reply never reaches the client.
func DebugLogRequest() *Message { return &Message{Kind: KindServerDebugLog} }

// Heartbeat carries an RFC 3339 timestamp string.
func Heartbeat(t time.Time) *Message {
	return NewBuilder(KindHeartbeat).Text(t.Format(time.RFC3339)).Build()
}

// Auth carries username and password.
func Auth(username, password string) *Message {
	return NewBuilder(KindAuth).Text(username).Text(password).Build()
}

// AuthCreate carries username and password for registration.
func AuthCreate(username, password string) *Message {
	return NewBuilder(KindAuthCreate).Text(username).Text(password).Build()
}

func AuthSuccess() *Message { return &Message{Kind: KindAuthSuccess} }

// AuthFailure carries a human-readable reason.
func AuthFailure(reason string) *Message {
	return NewBuilder(KindAuthFailure).Text(reason).Build()
}

// DirectMessageSend carries recipient and body.
func DirectMessageSend(recipient, body string) *Message {
	return NewBuilder(KindDirectMessageSend).Text(recipient).Text(body).Build()
}

// DirectMessageReceive carries sender and body.
func DirectMessageReceive(sender, body string) *Message {
	return NewBuilder(KindDirectMessageReceive).Text(sender).Text(body).Build()
}

// MessageError carries a routing failure reason.
func MessageError(reason string) *Message {
	return NewBuilder(KindMessageError).Text(reason).Build()
}

// ShutdownWarning carries the shutdown timeout in seconds as an 8-byte
// big-endian integer.
func ShutdownWarning(seconds uint64) *Message {
	return NewBuilder(KindServerShutdownWarning).Uint64(seconds).Build()
}

// Shutdown requests a server shutdown after the given timeout in seconds.
func Shutdown(seconds uint64) *Message {
	return NewBuilder(KindServerShutdown).Uint64(seconds).Build()
}
