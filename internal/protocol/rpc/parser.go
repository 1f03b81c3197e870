package rpc

import (
	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// ============================================================================
// Reply Parsing (client side)
// ============================================================================

// UnpackReplyHeader reads an RPC reply header and classifies its status.
//
// On SUCCESS it returns the XID and server verifier, leaving the Unpacker
// positioned at the start of the procedure-specific result. Every other
// outcome returns a typed error:
//
//	MSG_DENIED / RPC_MISMATCH   → *VersionMismatchError
//	MSG_DENIED / AUTH_ERROR     → *AuthFailedError
//	MSG_ACCEPTED / PROG_UNAVAIL → *ProgramUnavailableError
//	MSG_ACCEPTED / PROG_MISMATCH→ *ProgramMismatchError
//	MSG_ACCEPTED / PROC_UNAVAIL → *ProcedureUnavailableError
//	MSG_ACCEPTED / GARBAGE_ARGS → *GarbageArgumentsError
//	anything else               → *ProtocolError
//
// The returned header carries the XID even when an error is returned, as
// long as the XID itself could be decoded, so callers can still match the
// reply against the outstanding call.
//
// program and procedure only annotate the returned errors.
func UnpackReplyHeader(u *xdr.Unpacker, program, procedure uint32) (ReplyHeader, error) {
	var hdr ReplyHeader

	xid, err := u.UnpackUint()
	if err != nil {
		return hdr, err
	}
	hdr.XID = xid

	msgType, err := u.UnpackUint()
	if err != nil {
		return hdr, err
	}
	if MsgType(msgType) != MsgReply {
		return hdr, protocolErrorf("expected REPLY message, got type %d", msgType)
	}

	replyStat, err := u.UnpackUint()
	if err != nil {
		return hdr, err
	}

	switch ReplyStat(replyStat) {
	case MsgDenied:
		return hdr, unpackRejectedReply(u)

	case MsgAccepted:
		verf, err := UnpackOpaqueAuth(u)
		if err != nil {
			return hdr, err
		}
		hdr.Verf = verf
		return hdr, unpackAcceptStat(u, program, procedure)

	default:
		return hdr, protocolErrorf("invalid reply_stat %d", replyStat)
	}
}

func unpackRejectedReply(u *xdr.Unpacker) error {
	rejectStat, err := u.UnpackUint()
	if err != nil {
		return err
	}

	switch RejectStat(rejectStat) {
	case RPCMismatch:
		low, high, err := unpackRange(u)
		if err != nil {
			return err
		}
		return &VersionMismatchError{Low: low, High: high}

	case AuthError:
		stat, err := u.UnpackUint()
		if err != nil {
			return err
		}
		return &AuthFailedError{Status: AuthStat(stat)}

	default:
		return protocolErrorf("invalid reject_stat %d", rejectStat)
	}
}

func unpackAcceptStat(u *xdr.Unpacker, program, procedure uint32) error {
	stat, err := u.UnpackUint()
	if err != nil {
		return err
	}

	switch AcceptStat(stat) {
	case Success:
		return nil
	case ProgUnavail:
		return &ProgramUnavailableError{Program: program}
	case ProgMismatch:
		low, high, err := unpackRange(u)
		if err != nil {
			return err
		}
		return &ProgramMismatchError{Program: program, Low: low, High: high}
	case ProcUnavail:
		return &ProcedureUnavailableError{Program: program, Procedure: procedure}
	case GarbageArgs:
		return &GarbageArgumentsError{Program: program, Procedure: procedure}
	default:
		return protocolErrorf("call failed: %s", AcceptStat(stat))
	}
}

func unpackRange(u *xdr.Unpacker) (low, high uint32, err error) {
	if low, err = u.UnpackUint(); err != nil {
		return 0, 0, err
	}
	if high, err = u.UnpackUint(); err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

// ============================================================================
// Call Parsing and Reply Building (server side)
// ============================================================================
//
// These helpers let loopback services (port mapper and instrument doubles
// used in tests) speak the same wire format the client expects.

// UnpackCallHeader reads a call header, leaving the Unpacker at the start
// of the procedure arguments. It rejects anything that is not a CALL; an
// RPC version other than 2 is returned in the header for the caller to
// answer with PackDeniedReply.
func UnpackCallHeader(u *xdr.Unpacker) (CallHeader, uint32, error) {
	var hdr CallHeader

	xid, err := u.UnpackUint()
	if err != nil {
		return hdr, 0, err
	}
	hdr.XID = xid

	msgType, err := u.UnpackUint()
	if err != nil {
		return hdr, 0, err
	}
	if MsgType(msgType) != MsgCall {
		return hdr, 0, protocolErrorf("expected CALL message, got type %d", msgType)
	}

	rpcVersion, err := u.UnpackUint()
	if err != nil {
		return hdr, 0, err
	}

	if hdr.Program, err = u.UnpackUint(); err != nil {
		return hdr, 0, err
	}
	if hdr.Version, err = u.UnpackUint(); err != nil {
		return hdr, 0, err
	}
	if hdr.Procedure, err = u.UnpackUint(); err != nil {
		return hdr, 0, err
	}
	if hdr.Cred, err = UnpackOpaqueAuth(u); err != nil {
		return hdr, 0, err
	}
	if hdr.Verf, err = UnpackOpaqueAuth(u); err != nil {
		return hdr, 0, err
	}

	return hdr, rpcVersion, nil
}

// PackAcceptedReply writes an accepted reply header with an AUTH_NULL
// verifier. For SUCCESS the caller appends the result encoding; for
// PROG_MISMATCH use PackProgMismatchReply instead.
func PackAcceptedReply(p *xdr.Packer, xid uint32, stat AcceptStat) {
	p.PackUint(xid)
	p.PackEnum(int32(MsgReply))
	p.PackEnum(int32(MsgAccepted))
	NullAuth().Pack(p)
	p.PackEnum(int32(stat))
}

// PackProgMismatchReply writes an accepted PROG_MISMATCH reply with the
// supported version range.
func PackProgMismatchReply(p *xdr.Packer, xid, low, high uint32) {
	PackAcceptedReply(p, xid, ProgMismatch)
	p.PackUint(low)
	p.PackUint(high)
}

// PackDeniedReply writes a denied reply. For RPCMismatch, detail holds the
// supported [low, high] range; for AuthError, detail[0] is the AuthStat.
func PackDeniedReply(p *xdr.Packer, xid uint32, stat RejectStat, detail ...uint32) {
	p.PackUint(xid)
	p.PackEnum(int32(MsgReply))
	p.PackEnum(int32(MsgDenied))
	p.PackEnum(int32(stat))
	for _, d := range detail {
		p.PackUint(d)
	}
}
