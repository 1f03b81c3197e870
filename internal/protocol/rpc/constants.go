package rpc

import "fmt"

// RPCVersion is the only ONC RPC protocol version spoken on the wire.
//
// Reference: RFC 5531 Section 9 (RPC Message Protocol)
const RPCVersion = 2

// MsgType identifies whether an RPC message is a call or a reply.
type MsgType uint32

// RPC Message Types
const (
	// MsgCall indicates an RPC call message sent by the client.
	MsgCall MsgType = 0

	// MsgReply indicates an RPC reply message sent by the server.
	MsgReply MsgType = 1
)

// ReplyStat is the top-level discriminant of a reply body.
type ReplyStat uint32

// RPC Reply States
//
// A reply is either accepted (the server attempted the call) or denied
// (RPC version mismatch or authentication failure).
const (
	MsgAccepted ReplyStat = 0
	MsgDenied   ReplyStat = 1
)

// AcceptStat qualifies an accepted reply.
type AcceptStat uint32

// RPC Accept Status
const (
	// Success indicates the procedure executed and results follow.
	Success AcceptStat = 0

	// ProgUnavail indicates the remote has not exported the program.
	ProgUnavail AcceptStat = 1

	// ProgMismatch indicates the program version is not supported.
	// The reply carries the supported [low, high] version range.
	ProgMismatch AcceptStat = 2

	// ProcUnavail indicates the program cannot support the procedure.
	ProcUnavail AcceptStat = 3

	// GarbageArgs indicates the procedure could not decode its parameters.
	GarbageArgs AcceptStat = 4

	// SystemErr indicates an internal server error (e.g. memory allocation).
	SystemErr AcceptStat = 5
)

func (s AcceptStat) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case ProgUnavail:
		return "PROG_UNAVAIL"
	case ProgMismatch:
		return "PROG_MISMATCH"
	case ProcUnavail:
		return "PROC_UNAVAIL"
	case GarbageArgs:
		return "GARBAGE_ARGS"
	case SystemErr:
		return "SYSTEM_ERR"
	default:
		return fmt.Sprintf("ACCEPT_STAT(%d)", uint32(s))
	}
}

// RejectStat qualifies a denied reply.
type RejectStat uint32

// RPC Reject Status
const (
	// RPCMismatch indicates the RPC version number was not 2.
	RPCMismatch RejectStat = 0

	// AuthError indicates the remote could not authenticate the caller.
	AuthError RejectStat = 1
)

// AuthFlavor identifies the authentication scheme of an OpaqueAuth.
type AuthFlavor uint32

// Authentication flavors (RFC 5531 Section 8.2)
const (
	AuthNull  AuthFlavor = 0
	AuthUnix  AuthFlavor = 1
	AuthShort AuthFlavor = 2
	AuthDES   AuthFlavor = 3
)

func (f AuthFlavor) String() string {
	switch f {
	case AuthNull:
		return "AUTH_NULL"
	case AuthUnix:
		return "AUTH_UNIX"
	case AuthShort:
		return "AUTH_SHORT"
	case AuthDES:
		return "AUTH_DES"
	default:
		return fmt.Sprintf("AUTH_FLAVOR(%d)", uint32(f))
	}
}

// AuthStat explains why a call was denied with AuthError.
type AuthStat uint32

// Authentication status codes (RFC 5531 Section 9)
const (
	AuthOK           AuthStat = 0
	AuthBadCred      AuthStat = 1 // bad credentials (seal broken)
	AuthRejectedCred AuthStat = 2 // client must begin new session
	AuthBadVerf      AuthStat = 3 // bad verifier (seal broken)
	AuthRejectedVerf AuthStat = 4 // verifier expired or replayed
	AuthTooWeak      AuthStat = 5 // rejected for security reasons
)

func (s AuthStat) String() string {
	switch s {
	case AuthOK:
		return "AUTH_OK"
	case AuthBadCred:
		return "AUTH_BADCRED"
	case AuthRejectedCred:
		return "AUTH_REJECTEDCRED"
	case AuthBadVerf:
		return "AUTH_BADVERF"
	case AuthRejectedVerf:
		return "AUTH_REJECTEDVERF"
	case AuthTooWeak:
		return "AUTH_TOOWEAK"
	default:
		return fmt.Sprintf("AUTH_STAT(%d)", uint32(s))
	}
}

// Record marking (RFC 5531 Section 11)
const (
	// lastFragmentFlag is bit 31 of the fragment header.
	lastFragmentFlag = 0x80000000

	// fragmentLengthMask extracts the 31-bit fragment length.
	fragmentLengthMask = 0x7FFFFFFF

	// DefaultMaxRecordSize bounds the size of a reassembled inbound record.
	DefaultMaxRecordSize = 16 << 20
)
