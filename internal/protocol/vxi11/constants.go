// Package vxi11 implements the wire protocol of the VXI-11 core channel.
//
// VXI-11 is the TCP/IP instrument protocol of the VXIbus Consortium. An
// instrument exposes the DEVICE_CORE RPC program, discovered through the
// port mapper. A client creates a device link, exchanges messages with
// DEVICE_WRITE and DEVICE_READ and finally destroys the link.
//
// This package carries the message types and a thin typed client that
// returns each reply as-is, including its device error code. Session
// semantics (chunking, read reassembly, link lifecycle) live in pkg/vxi11.
//
// References:
//   - VXI-11 Revision 1.0, TCP/IP Instrument Protocol Specification
//   - RFC 5531 (ONC RPC v2)
package vxi11

import (
	"fmt"
	"strings"
)

// ============================================================================
// RPC Programs
// ============================================================================

const (
	// CoreProgram is the DEVICE_CORE program: link management and I/O.
	CoreProgram uint32 = 0x0607af

	// CoreVersion is the DEVICE_CORE version.
	CoreVersion uint32 = 1

	// AsyncProgram is the DEVICE_ASYNC program served on the abort port.
	AsyncProgram uint32 = 0x0607b0

	// AsyncVersion is the DEVICE_ASYNC version.
	AsyncVersion uint32 = 1

	// InterruptProgram is the DEVICE_INTR program a client serves to
	// receive service requests.
	InterruptProgram uint32 = 0x0607b1

	// InterruptVersion is the DEVICE_INTR version.
	InterruptVersion uint32 = 1
)

// ============================================================================
// DEVICE_CORE Procedures
// ============================================================================

const (
	ProcCreateLink      uint32 = 10
	ProcDeviceWrite     uint32 = 11
	ProcDeviceRead      uint32 = 12
	ProcDeviceReadSTB   uint32 = 13
	ProcDeviceTrigger   uint32 = 14
	ProcDeviceClear     uint32 = 15
	ProcDeviceRemote    uint32 = 16
	ProcDeviceLocal     uint32 = 17
	ProcDeviceLock      uint32 = 18
	ProcDeviceUnlock    uint32 = 19
	ProcDeviceEnableSRQ uint32 = 20
	ProcDeviceDoCmd     uint32 = 22
	ProcDestroyLink     uint32 = 23
	ProcCreateIntrChan  uint32 = 25
	ProcDestroyIntrChan uint32 = 26
)

// ProcedureNames labels DEVICE_CORE procedures in logs and metrics.
var ProcedureNames = map[uint32]string{
	ProcCreateLink:      "CREATE_LINK",
	ProcDeviceWrite:     "DEVICE_WRITE",
	ProcDeviceRead:      "DEVICE_READ",
	ProcDeviceReadSTB:   "DEVICE_READSTB",
	ProcDeviceTrigger:   "DEVICE_TRIGGER",
	ProcDeviceClear:     "DEVICE_CLEAR",
	ProcDeviceRemote:    "DEVICE_REMOTE",
	ProcDeviceLocal:     "DEVICE_LOCAL",
	ProcDeviceLock:      "DEVICE_LOCK",
	ProcDeviceUnlock:    "DEVICE_UNLOCK",
	ProcDeviceEnableSRQ: "DEVICE_ENABLE_SRQ",
	ProcDeviceDoCmd:     "DEVICE_DOCMD",
	ProcDestroyLink:     "DESTROY_LINK",
	ProcCreateIntrChan:  "CREATE_INTR_CHAN",
	ProcDestroyIntrChan: "DESTROY_INTR_CHAN",
}

// ============================================================================
// Operation Flags
// ============================================================================

// Flags is the Device_Flags bitmask sent with I/O and lock requests.
type Flags int32

const (
	// FlagWaitLock makes the server wait up to lock_timeout for a lock held
	// by another link instead of failing immediately.
	FlagWaitLock Flags = 1

	// FlagEnd marks the last chunk of a logical message on DEVICE_WRITE.
	FlagEnd Flags = 8

	// FlagTermCharSet makes DEVICE_READ stop at the term_char byte.
	FlagTermCharSet Flags = 128
)

// ============================================================================
// Read Reasons
// ============================================================================

// Reason is the bitmask returned by DEVICE_READ explaining why the chunk
// ended. Zero means the server returned early and more data follows.
type Reason int32

const (
	// ReasonRequestCount: the requested number of bytes was transferred.
	ReasonRequestCount Reason = 1

	// ReasonTermChar: the termination character was read.
	ReasonTermChar Reason = 2

	// ReasonEnd: the instrument signalled end of message.
	ReasonEnd Reason = 4
)

func (r Reason) String() string {
	if r == 0 {
		return "none"
	}
	var names []string
	if r&ReasonRequestCount != 0 {
		names = append(names, "REQCNT")
	}
	if r&ReasonTermChar != 0 {
		names = append(names, "CHR")
	}
	if r&ReasonEnd != 0 {
		names = append(names, "END")
	}
	if rest := r &^ (ReasonRequestCount | ReasonTermChar | ReasonEnd); rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", int32(rest)))
	}
	return strings.Join(names, "|")
}

// ============================================================================
// Device Error Codes
// ============================================================================

// ErrorCode is the Device_ErrorCode carried by every DEVICE_CORE reply.
type ErrorCode int32

const (
	ErrNone                  ErrorCode = 0
	ErrSyntax                ErrorCode = 1
	ErrNotAccessible         ErrorCode = 3
	ErrInvalidLink           ErrorCode = 4
	ErrParameter             ErrorCode = 5
	ErrChannelNotEstablished ErrorCode = 6
	ErrOperationNotSupported ErrorCode = 8
	ErrOutOfResources        ErrorCode = 9
	ErrDeviceLocked          ErrorCode = 11
	ErrNoLockHeld            ErrorCode = 12
	ErrIOTimeout             ErrorCode = 15
	ErrIOError               ErrorCode = 17
	ErrInvalidAddress        ErrorCode = 21
	ErrAbort                 ErrorCode = 23
	ErrChannelEstablished    ErrorCode = 29
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "no error"
	case ErrSyntax:
		return "syntax error"
	case ErrNotAccessible:
		return "device not accessible"
	case ErrInvalidLink:
		return "invalid link identifier"
	case ErrParameter:
		return "parameter error"
	case ErrChannelNotEstablished:
		return "channel not established"
	case ErrOperationNotSupported:
		return "operation not supported"
	case ErrOutOfResources:
		return "out of resources"
	case ErrDeviceLocked:
		return "device locked by another link"
	case ErrNoLockHeld:
		return "no lock held by this link"
	case ErrIOTimeout:
		return "I/O timeout"
	case ErrIOError:
		return "I/O error"
	case ErrInvalidAddress:
		return "invalid address"
	case ErrAbort:
		return "abort"
	case ErrChannelEstablished:
		return "channel already established"
	default:
		return fmt.Sprintf("device error %d", int32(c))
	}
}
