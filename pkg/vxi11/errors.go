package vxi11

import (
	"errors"
	"fmt"

	"github.com/marmos91/vxi11/internal/protocol/portmap"
	"github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/marmos91/vxi11/internal/protocol/vxi11"
)

// ErrorCode is the device error code carried by every DEVICE_CORE reply.
type ErrorCode = vxi11.ErrorCode

// Device error codes callers most often branch on.
const (
	CodeSyntax                = vxi11.ErrSyntax
	CodeNotAccessible         = vxi11.ErrNotAccessible
	CodeInvalidLink           = vxi11.ErrInvalidLink
	CodeOutOfResources        = vxi11.ErrOutOfResources
	CodeDeviceLocked          = vxi11.ErrDeviceLocked
	CodeNoLockHeld            = vxi11.ErrNoLockHeld
	CodeIOTimeout             = vxi11.ErrIOTimeout
	CodeIOError               = vxi11.ErrIOError
	CodeInvalidAddress        = vxi11.ErrInvalidAddress
	CodeAbort                 = vxi11.ErrAbort
	CodeOperationNotSupported = vxi11.ErrOperationNotSupported
)

// Transport and RPC errors surfaced unchanged from the lower layers.
type (
	ConnectionError       = rpc.ConnectionError
	ConnectionClosedError = rpc.ConnectionClosedError
	ProtocolError         = rpc.ProtocolError
	ServiceNotFoundError  = portmap.ServiceNotFoundError
)

// ErrResponseTooLarge is returned by Read when a response grows past
// Config.MaxResponseSize. The rest of the response is left unread on the
// device; call Clear before the next exchange.
var ErrResponseTooLarge = errors.New("vxi11: response exceeds maximum size")

// DeviceError reports a non-zero device error code. The link stays usable.
type DeviceError struct {
	Op   string
	Code ErrorCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("vxi11: %s: %s (code %d)", e.Op, e.Code, int32(e.Code))
}

// ShortWriteError reports a DEVICE_WRITE whose accepted size differs from
// the chunk that was sent. Remaining chunks of the message are not sent.
type ShortWriteError struct {
	Sent     int
	Accepted uint32
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("vxi11: short write: device accepted %d of %d bytes", e.Accepted, e.Sent)
}

// InvalidStateError reports an operation attempted in the wrong state,
// such as a write before Open or after Close.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("vxi11: cannot %s: device is %s", e.Op, e.State)
}
