package vxi11

import (
	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// ============================================================================
// Message Types
// ============================================================================
//
// Field order matches the RPCL definitions of the VXI-11 specification.
// Every field is a 4-byte XDR word or an opaque/string, so fixed-shape
// messages are encoded with xdr.Packer.PackStruct. Replies carrying
// variable-length data are decoded by hand so their length fields are
// checked against the reply before anything is allocated.

// CreateLinkParms is the argument of CREATE_LINK.
type CreateLinkParms struct {
	ClientID    int32  // implementation-specific client identifier
	LockDevice  bool   // attempt to lock the device
	LockTimeout uint32 // ms to wait for the lock
	Device      string // logical device name, e.g. "inst0" or "gpib0,5"
}

// CreateLinkResp is the result of CREATE_LINK.
type CreateLinkResp struct {
	Error       ErrorCode
	LinkID      int32
	AbortPort   uint32 // unsigned short on the wire, widened to one word
	MaxRecvSize uint32 // largest data size the device accepts per DEVICE_WRITE
}

// WriteParms is the argument of DEVICE_WRITE.
type WriteParms struct {
	LinkID      int32
	IOTimeout   uint32 // ms
	LockTimeout uint32 // ms
	Flags       Flags
	Data        []byte
}

// WriteResp is the result of DEVICE_WRITE.
type WriteResp struct {
	Error ErrorCode
	Size  uint32 // bytes accepted by the device
}

// ReadParms is the argument of DEVICE_READ.
type ReadParms struct {
	LinkID      int32
	RequestSize uint32
	IOTimeout   uint32 // ms
	LockTimeout uint32 // ms
	Flags       Flags
	TermChar    int32 // only honoured with FlagTermCharSet
}

// ReadResp is the result of DEVICE_READ.
type ReadResp struct {
	Error  ErrorCode
	Reason Reason
	Data   []byte
}

// GenericParms is the argument of DEVICE_READSTB, DEVICE_TRIGGER,
// DEVICE_CLEAR, DEVICE_REMOTE and DEVICE_LOCAL.
type GenericParms struct {
	LinkID      int32
	Flags       Flags
	LockTimeout uint32 // ms
	IOTimeout   uint32 // ms
}

// ReadSTBResp is the result of DEVICE_READSTB.
type ReadSTBResp struct {
	Error ErrorCode
	STB   uint32 // status byte in the low 8 bits
}

// LockParms is the argument of DEVICE_LOCK.
type LockParms struct {
	LinkID      int32
	Flags       Flags
	LockTimeout uint32 // ms
}

// EnableSRQParms is the argument of DEVICE_ENABLE_SRQ.
type EnableSRQParms struct {
	LinkID int32
	Enable bool
	Handle []byte // at most 40 bytes, echoed back in device_intr_srq
}

// DoCmdParms is the argument of DEVICE_DOCMD.
type DoCmdParms struct {
	LinkID       int32
	Flags        Flags
	IOTimeout    uint32 // ms
	LockTimeout  uint32 // ms
	Cmd          int32
	NetworkOrder bool
	DataSize     int32
	DataIn       []byte
}

// DoCmdResp is the result of DEVICE_DOCMD.
type DoCmdResp struct {
	Error   ErrorCode
	DataOut []byte
}

// deviceErrorResp is the Device_Error result shared by most procedures.
type deviceErrorResp struct {
	Error ErrorCode
}

// ============================================================================
// Hand-decoded Replies
// ============================================================================

// UnpackReadResp decodes a DEVICE_READ result.
func UnpackReadResp(u *xdr.Unpacker) (ReadResp, error) {
	var resp ReadResp

	code, err := u.UnpackInt()
	if err != nil {
		return ReadResp{}, err
	}
	reason, err := u.UnpackInt()
	if err != nil {
		return ReadResp{}, err
	}
	data, err := u.UnpackOpaque()
	if err != nil {
		return ReadResp{}, err
	}

	resp.Error = ErrorCode(code)
	resp.Reason = Reason(reason)
	resp.Data = data
	return resp, nil
}

// PackReadResp encodes a DEVICE_READ result.
func PackReadResp(p *xdr.Packer, resp ReadResp) {
	p.PackInt(int32(resp.Error))
	p.PackInt(int32(resp.Reason))
	p.PackOpaque(resp.Data)
}

// UnpackDoCmdResp decodes a DEVICE_DOCMD result.
func UnpackDoCmdResp(u *xdr.Unpacker) (DoCmdResp, error) {
	code, err := u.UnpackInt()
	if err != nil {
		return DoCmdResp{}, err
	}
	data, err := u.UnpackOpaque()
	if err != nil {
		return DoCmdResp{}, err
	}
	return DoCmdResp{Error: ErrorCode(code), DataOut: data}, nil
}

// PackDoCmdResp encodes a DEVICE_DOCMD result.
func PackDoCmdResp(p *xdr.Packer, resp DoCmdResp) {
	p.PackInt(int32(resp.Error))
	p.PackOpaque(resp.DataOut)
}
