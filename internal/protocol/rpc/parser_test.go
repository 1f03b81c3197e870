package rpc

import (
	"errors"
	"testing"

	"github.com/marmos91/vxi11/internal/protocol/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testProgram   = 0x0607af
	testProcedure = 11
)

func unpackReply(t *testing.T, p *xdr.Packer) (ReplyHeader, *xdr.Unpacker, error) {
	t.Helper()
	u := xdr.NewUnpacker(p.Bytes())
	hdr, err := UnpackReplyHeader(u, testProgram, testProcedure)
	return hdr, u, err
}

// ============================================================================
// Call Header Tests
// ============================================================================

func TestCallHeader(t *testing.T) {
	t.Run("WireLayout", func(t *testing.T) {
		p := xdr.NewPacker()
		PackCallHeader(p, CallHeader{
			XID: 1, Program: 100000, Version: 2, Procedure: 3,
			Cred: NullAuth(), Verf: NullAuth(),
		})

		expected := []byte{
			0, 0, 0, 1, // xid
			0, 0, 0, 0, // CALL
			0, 0, 0, 2, // rpcvers
			0, 1, 0x86, 0xa0, // program 100000
			0, 0, 0, 2, // version
			0, 0, 0, 3, // procedure
			0, 0, 0, 0, 0, 0, 0, 0, // cred: AUTH_NULL, empty body
			0, 0, 0, 0, 0, 0, 0, 0, // verf: AUTH_NULL, empty body
		}
		assert.Equal(t, expected, p.Bytes())
	})

	t.Run("RoundTripsThroughServerParser", func(t *testing.T) {
		in := CallHeader{
			XID: 0xdeadbeef, Program: testProgram, Version: 1, Procedure: 10,
			Cred: OpaqueAuth{Flavor: AuthUnix, Body: []byte{1, 2, 3}},
			Verf: NullAuth(),
		}
		p := xdr.NewPacker()
		PackCallHeader(p, in)
		p.PackUint(42)

		u := xdr.NewUnpacker(p.Bytes())
		out, rpcVersion, err := UnpackCallHeader(u)
		require.NoError(t, err)
		assert.Equal(t, uint32(RPCVersion), rpcVersion)
		assert.Equal(t, in, out)

		arg, err := u.UnpackUint()
		require.NoError(t, err)
		assert.Equal(t, uint32(42), arg)
	})

	t.Run("RejectsReplyAsCall", func(t *testing.T) {
		p := xdr.NewPacker()
		PackAcceptedReply(p, 1, Success)

		_, _, err := UnpackCallHeader(xdr.NewUnpacker(p.Bytes()))
		var protoErr *ProtocolError
		assert.True(t, errors.As(err, &protoErr))
	})
}

// ============================================================================
// Reply Classification Tests
// ============================================================================

func TestUnpackReplyHeader(t *testing.T) {
	t.Run("SuccessLeavesCursorAtResult", func(t *testing.T) {
		p := xdr.NewPacker()
		PackAcceptedReply(p, 7, Success)
		p.PackUint(1234)

		hdr, u, err := unpackReply(t, p)
		require.NoError(t, err)
		assert.Equal(t, uint32(7), hdr.XID)
		assert.Equal(t, AuthNull, hdr.Verf.Flavor)

		result, err := u.UnpackUint()
		require.NoError(t, err)
		assert.Equal(t, uint32(1234), result)
		assert.NoError(t, u.Done())
	})

	t.Run("KeepsNonNullVerifier", func(t *testing.T) {
		p := xdr.NewPacker()
		p.PackUint(9)
		p.PackEnum(int32(MsgReply))
		p.PackEnum(int32(MsgAccepted))
		OpaqueAuth{Flavor: AuthShort, Body: []byte{0xaa, 0xbb}}.Pack(p)
		p.PackEnum(int32(Success))

		hdr, _, err := unpackReply(t, p)
		require.NoError(t, err)
		assert.Equal(t, AuthShort, hdr.Verf.Flavor)
		assert.Equal(t, []byte{0xaa, 0xbb}, hdr.Verf.Body)
	})

	t.Run("CallMessageIsProtocolError", func(t *testing.T) {
		p := xdr.NewPacker()
		PackCallHeader(p, CallHeader{XID: 3, Cred: NullAuth(), Verf: NullAuth()})

		hdr, _, err := unpackReply(t, p)
		var protoErr *ProtocolError
		require.True(t, errors.As(err, &protoErr))
		assert.Equal(t, uint32(3), hdr.XID)
	})

	t.Run("RPCMismatch", func(t *testing.T) {
		p := xdr.NewPacker()
		PackDeniedReply(p, 1, RPCMismatch, 2, 2)

		_, _, err := unpackReply(t, p)
		var mismatch *VersionMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, uint32(2), mismatch.Low)
		assert.Equal(t, uint32(2), mismatch.High)
	})

	t.Run("AuthError", func(t *testing.T) {
		p := xdr.NewPacker()
		PackDeniedReply(p, 1, AuthError, uint32(AuthTooWeak))

		_, _, err := unpackReply(t, p)
		var authErr *AuthFailedError
		require.True(t, errors.As(err, &authErr))
		assert.Equal(t, AuthTooWeak, authErr.Status)
		assert.Contains(t, authErr.Error(), "AUTH_TOOWEAK")
	})

	t.Run("UnknownRejectStat", func(t *testing.T) {
		p := xdr.NewPacker()
		PackDeniedReply(p, 1, RejectStat(9))

		_, _, err := unpackReply(t, p)
		var protoErr *ProtocolError
		assert.True(t, errors.As(err, &protoErr))
	})

	t.Run("UnknownReplyStat", func(t *testing.T) {
		p := xdr.NewPacker()
		p.PackUint(1)
		p.PackEnum(int32(MsgReply))
		p.PackEnum(2)

		_, _, err := unpackReply(t, p)
		var protoErr *ProtocolError
		assert.True(t, errors.As(err, &protoErr))
	})

	t.Run("AcceptStats", func(t *testing.T) {
		tests := []struct {
			name  string
			stat  AcceptStat
			check func(t *testing.T, err error)
		}{
			{"ProgUnavail", ProgUnavail, func(t *testing.T, err error) {
				var e *ProgramUnavailableError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, uint32(testProgram), e.Program)
			}},
			{"ProcUnavail", ProcUnavail, func(t *testing.T, err error) {
				var e *ProcedureUnavailableError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, uint32(testProcedure), e.Procedure)
			}},
			{"GarbageArgs", GarbageArgs, func(t *testing.T, err error) {
				var e *GarbageArgumentsError
				assert.True(t, errors.As(err, &e))
			}},
			{"SystemErr", SystemErr, func(t *testing.T, err error) {
				var e *ProtocolError
				require.True(t, errors.As(err, &e))
				assert.Contains(t, e.Msg, "SYSTEM_ERR")
			}},
			{"Unknown", AcceptStat(42), func(t *testing.T, err error) {
				var e *ProtocolError
				assert.True(t, errors.As(err, &e))
			}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := xdr.NewPacker()
				PackAcceptedReply(p, 1, tt.stat)

				_, _, err := unpackReply(t, p)
				require.Error(t, err)
				tt.check(t, err)
			})
		}
	})

	t.Run("ProgMismatchCarriesRange", func(t *testing.T) {
		p := xdr.NewPacker()
		PackProgMismatchReply(p, 1, 3, 4)

		_, _, err := unpackReply(t, p)
		var e *ProgramMismatchError
		require.True(t, errors.As(err, &e))
		assert.Equal(t, uint32(3), e.Low)
		assert.Equal(t, uint32(4), e.High)
	})

	t.Run("TruncatedHeaderIsDecodeError", func(t *testing.T) {
		p := xdr.NewPacker()
		PackAcceptedReply(p, 1, Success)
		wire := p.Bytes()[:len(p.Bytes())-2]

		_, err := UnpackReplyHeader(xdr.NewUnpacker(wire), testProgram, testProcedure)
		var decErr *xdr.DecodeError
		assert.True(t, errors.As(err, &decErr))
	})
}
