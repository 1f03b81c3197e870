package rpc

import (
	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// OpaqueAuth represents authentication credentials or verifiers.
//
// The RPC layer does not interpret Body; its meaning depends on Flavor.
// This client only ever sends AUTH_NULL, but verifiers returned by servers
// are decoded into the same shape whatever their flavor.
//
// Reference: RFC 5531 Section 8 (Authentication)
type OpaqueAuth struct {
	Flavor AuthFlavor
	Body   []byte
}

// NullAuth returns the empty AUTH_NULL credential.
func NullAuth() OpaqueAuth {
	return OpaqueAuth{Flavor: AuthNull, Body: []byte{}}
}

// Pack encodes the auth as [flavor:enum][body:opaque].
func (a OpaqueAuth) Pack(p *xdr.Packer) {
	p.PackEnum(int32(a.Flavor))
	p.PackOpaque(a.Body)
}

// UnpackOpaqueAuth decodes an OpaqueAuth.
func UnpackOpaqueAuth(u *xdr.Unpacker) (OpaqueAuth, error) {
	flavor, err := u.UnpackEnum()
	if err != nil {
		return OpaqueAuth{}, err
	}
	body, err := u.UnpackOpaque()
	if err != nil {
		return OpaqueAuth{}, err
	}
	return OpaqueAuth{Flavor: AuthFlavor(flavor), Body: body}, nil
}

// CallHeader is the fixed part of every RPC call message.
//
// Wire Format (XDR encoding):
//   - XID:        4 bytes (transaction identifier)
//   - MsgType:    4 bytes (always 0 for CALL)
//   - RPCVersion: 4 bytes (always 2)
//   - Program:    4 bytes
//   - Version:    4 bytes
//   - Procedure:  4 bytes
//   - Cred:       variable (authentication credentials)
//   - Verf:       variable (authentication verifier)
//   - [procedure-specific parameters follow]
type CallHeader struct {
	XID       uint32
	Program   uint32
	Version   uint32
	Procedure uint32
	Cred      OpaqueAuth
	Verf      OpaqueAuth
}

// PackCallHeader writes a call header. The caller appends the
// procedure-specific argument encoding afterwards.
func PackCallHeader(p *xdr.Packer, h CallHeader) {
	p.PackUint(h.XID)
	p.PackEnum(int32(MsgCall))
	p.PackUint(RPCVersion)
	p.PackUint(h.Program)
	p.PackUint(h.Version)
	p.PackUint(h.Procedure)
	h.Cred.Pack(p)
	h.Verf.Pack(p)
}

// ReplyHeader is the header of a successful (accepted, SUCCESS) reply.
type ReplyHeader struct {
	XID  uint32
	Verf OpaqueAuth
}
