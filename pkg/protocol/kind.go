package protocol

import "fmt"

// Kind identifies the type of a wire frame. The enumeration is closed:
// unknown bytes decode to KindEmpty rather than failing the frame.
type Kind byte

const (
	KindEmpty      Kind = 0x00
	KindAck        Kind = 0x01
	KindNack       Kind = 0x02
	KindDisconnect Kind = 0x03
	KindHeartbeat  Kind = 0x04

	KindAuth        Kind = 0x10
	KindAuthCreate  Kind = 0x11
	KindAuthSuccess Kind = 0x12
	KindAuthFailure Kind = 0x13

	KindServerDebugLog        Kind = 0x20
	KindServerShutdownWarning Kind = 0x21
	KindServerShutdown        Kind = 0x22

	KindDirectMessageSend    Kind = 0x30
	KindDirectMessageReceive Kind = 0x31
	KindMessageError         Kind = 0x32

	// KindBreak unwinds a send loop cooperatively. It is internal to the
	// server and must never be written to the wire.
	KindBreak Kind = 0xFF
)

// KindFromByte maps a wire byte to a Kind. Unknown codes map to KindEmpty.
func KindFromByte(b byte) Kind {
	switch k := Kind(b); k {
	case KindEmpty, KindAck, KindNack, KindDisconnect, KindHeartbeat,
		KindAuth, KindAuthCreate, KindAuthSuccess, KindAuthFailure,
		KindServerDebugLog, KindServerShutdownWarning, KindServerShutdown,
		KindDirectMessageSend, KindDirectMessageReceive, KindMessageError,
		KindBreak:
		return k
	default:
		return KindEmpty
	}
}

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "EMPTY"
	case KindAck:
		return "ACK"
	case KindNack:
		return "NACK"
	case KindDisconnect:
		return "DISCONNECT"
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindAuth:
		return "AUTH"
	case KindAuthCreate:
		return "AUTH_CREATE"
	case KindAuthSuccess:
		return "AUTH_SUCCESS"
	case KindAuthFailure:
		return "AUTH_FAILURE"
	case KindServerDebugLog:
		return "SERVER_DEBUG_LOG"
	case KindServerShutdownWarning:
		return "SERVER_SHUTDOWN_WARNING"
	case KindServerShutdown:
		return "SERVER_SHUTDOWN"
	case KindDirectMessageSend:
		return "DIRECT_MESSAGE_SEND"
	case KindDirectMessageReceive:
		return "DIRECT_MESSAGE_RECEIVE"
	case KindMessageError:
		return "MESSAGE_ERROR"
	case KindBreak:
		return "BREAK"
	default:
		return fmt.Sprintf("KIND:0x%02X", byte(k))
	}
}
