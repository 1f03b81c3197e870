package rpc

import (
	"errors"
	"fmt"
)

// ============================================================================
// RPC-Layer Errors
// ============================================================================
//
// Every non-success reply maps to a distinct error type so that callers can
// classify failures with errors.As instead of inspecting raw status codes.
// None of these are retriable without renegotiating program, version or
// credentials.

// ProtocolError reports a reply that violates the RPC message protocol:
// wrong message type, unknown status discriminants, SYSTEM_ERR, or a reply
// whose XID does not match the outstanding call.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "rpc: protocol error: " + e.Msg
}

func protocolErrorf(format string, args ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// VersionMismatchError reports a denied reply with RPC_MISMATCH.
// Low and High are the RPC versions the server supports.
type VersionMismatchError struct {
	Low, High uint32
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("rpc: RPC version mismatch (server supports %d-%d)", e.Low, e.High)
}

// AuthFailedError reports a denied reply with AUTH_ERROR.
type AuthFailedError struct {
	Status AuthStat
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("rpc: authentication failed: %s", e.Status)
}

// ProgramUnavailableError reports PROG_UNAVAIL.
type ProgramUnavailableError struct {
	Program uint32
}

func (e *ProgramUnavailableError) Error() string {
	return fmt.Sprintf("rpc: program %d unavailable", e.Program)
}

// ProgramMismatchError reports PROG_MISMATCH. Low and High bound the
// program versions the server supports.
type ProgramMismatchError struct {
	Program   uint32
	Low, High uint32
}

func (e *ProgramMismatchError) Error() string {
	return fmt.Sprintf("rpc: program %d version mismatch (server supports %d-%d)", e.Program, e.Low, e.High)
}

// ProcedureUnavailableError reports PROC_UNAVAIL.
type ProcedureUnavailableError struct {
	Program   uint32
	Procedure uint32
}

func (e *ProcedureUnavailableError) Error() string {
	return fmt.Sprintf("rpc: procedure %d of program %d unavailable", e.Procedure, e.Program)
}

// GarbageArgumentsError reports GARBAGE_ARGS.
type GarbageArgumentsError struct {
	Program   uint32
	Procedure uint32
}

func (e *GarbageArgumentsError) Error() string {
	return fmt.Sprintf("rpc: server could not decode arguments of procedure %d (program %d)", e.Procedure, e.Program)
}

// ============================================================================
// Transport-Layer Errors
// ============================================================================
//
// A transport error invalidates the connection. The caller may open a new
// one; the client never reconnects on its own.

// ConnectionError reports a network failure while dialing, sending or
// receiving.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rpc: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ConnectionClosedError reports that the peer closed the stream before a
// complete record was received.
type ConnectionClosedError struct {
	Addr string
	Err  error
}

func (e *ConnectionClosedError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("rpc: connection closed mid-record: %v", e.Err)
	}
	return fmt.Sprintf("rpc: connection to %s closed mid-record: %v", e.Addr, e.Err)
}

func (e *ConnectionClosedError) Unwrap() error {
	return e.Err
}

var (
	// ErrCallInProgress is returned when Call is invoked while another call
	// is outstanding on the same client. It is a programming error: the
	// transport carries exactly one request at a time.
	ErrCallInProgress = errors.New("rpc: call already in progress on this client")

	// ErrClientClosed is returned by Call after Close.
	ErrClientClosed = errors.New("rpc: client closed")

	// ErrRecordTooLarge is returned when an inbound record exceeds the
	// configured maximum size.
	ErrRecordTooLarge = errors.New("rpc: record exceeds maximum size")
)
