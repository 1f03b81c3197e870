package portmap_test

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/marmos91/vxi11/internal/protocol/portmap"
	"github.com/marmos91/vxi11/internal/protocol/portmap/portmaptest"
	"github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/marmos91/vxi11/internal/protocol/rpc/rpctest"
	"github.com/marmos91/vxi11/internal/protocol/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	coreProgram = 0x0607af
	coreVersion = 1
)

// ============================================================================
// Test Helper Functions
// ============================================================================

func hostPort(t *testing.T, srv *rpctest.Server) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func newPortmapper(t *testing.T) (*rpctest.Server, *portmaptest.Registry, *portmap.Client) {
	t.Helper()
	srv := rpctest.NewServer(t)
	reg := portmaptest.Serve(srv)

	host, port := hostPort(t, srv)
	client, err := portmap.Dial(context.Background(), host, port)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return srv, reg, client
}

// ============================================================================
// Wire Format Tests
// ============================================================================

func TestMappingWireFormat(t *testing.T) {
	p := xdr.NewPacker()
	portmap.PackMapping(p, portmap.Mapping{
		Program: coreProgram, Version: coreVersion, Protocol: portmap.ProtocolTCP, Port: 1024,
	})
	require.NoError(t, p.Err())

	expected := []byte{
		0x00, 0x06, 0x07, 0xaf,
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x06,
		0x00, 0x00, 0x04, 0x00,
	}
	assert.Equal(t, expected, p.Bytes())

	m, err := portmap.UnpackMapping(xdr.NewUnpacker(p.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, portmap.ProtocolTCP, m.Protocol)
	assert.Equal(t, uint32(1024), m.Port)
}

// ============================================================================
// Procedure Tests
// ============================================================================

func TestGetPort(t *testing.T) {
	t.Run("ResolvesRegisteredService", func(t *testing.T) {
		_, reg, client := newPortmapper(t)
		reg.Register(coreProgram, coreVersion, 40000)

		port, err := client.GetPort(context.Background(), portmap.Mapping{
			Program: coreProgram, Version: coreVersion, Protocol: portmap.ProtocolTCP,
		})
		require.NoError(t, err)
		assert.Equal(t, uint32(40000), port)
	})

	t.Run("PortZeroIsServiceNotFound", func(t *testing.T) {
		_, _, client := newPortmapper(t)

		port, err := client.GetPort(context.Background(), portmap.Mapping{
			Program: coreProgram, Version: coreVersion, Protocol: portmap.ProtocolTCP,
		})
		assert.Zero(t, port)

		var notFound *portmap.ServiceNotFoundError
		require.True(t, errors.As(err, &notFound))
		assert.Equal(t, uint32(coreProgram), notFound.Program)
		assert.Equal(t, portmap.ProtocolTCP, notFound.Protocol)
	})

	t.Run("ProtocolIsPartOfTheKey", func(t *testing.T) {
		_, reg, client := newPortmapper(t)
		reg.Register(coreProgram, coreVersion, 40000)

		_, err := client.GetPort(context.Background(), portmap.Mapping{
			Program: coreProgram, Version: coreVersion, Protocol: portmap.ProtocolUDP,
		})
		var notFound *portmap.ServiceNotFoundError
		assert.True(t, errors.As(err, &notFound))
	})
}

func TestSetUnsetDump(t *testing.T) {
	_, _, client := newPortmapper(t)
	ctx := context.Background()

	require.NoError(t, client.Null(ctx))

	mappings, err := client.Dump(ctx)
	require.NoError(t, err)
	assert.Empty(t, mappings)

	tcp := portmap.Mapping{Program: coreProgram, Version: coreVersion, Protocol: portmap.ProtocolTCP, Port: 1024}
	udp := portmap.Mapping{Program: coreProgram, Version: coreVersion, Protocol: portmap.ProtocolUDP, Port: 1025}

	ok, err := client.Set(ctx, tcp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Set(ctx, tcp)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate registration is refused")

	ok, err = client.Set(ctx, udp)
	require.NoError(t, err)
	assert.True(t, ok)

	mappings, err = client.Dump(ctx)
	require.NoError(t, err)
	assert.Equal(t, []portmap.Mapping{tcp, udp}, mappings)

	ok, err = client.Unset(ctx, portmap.Mapping{Program: coreProgram, Version: coreVersion})
	require.NoError(t, err)
	assert.True(t, ok)

	mappings, err = client.Dump(ctx)
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestCallIt(t *testing.T) {
	_, reg, client := newPortmapper(t)
	reg.Register(coreProgram, coreVersion, 40000)
	reg.Forward(coreProgram, func(procedure uint32, args []byte) ([]byte, error) {
		return append([]byte{0, 0, 0, byte(procedure)}, args...), nil
	})

	res, err := client.CallIt(context.Background(), portmap.CallArgs{
		Program: coreProgram, Version: coreVersion, Procedure: 13, Args: []byte{0, 0, 0, 1},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(40000), res.Port)
	assert.Equal(t, []byte{0, 0, 0, 13, 0, 0, 0, 1}, res.Result)

	_, err = client.CallIt(context.Background(), portmap.CallArgs{Program: 1, Version: 1})
	var garbage *rpc.GarbageArgumentsError
	assert.True(t, errors.As(err, &garbage))
}

func TestCallItOversizedResult(t *testing.T) {
	srv := rpctest.NewServer(t)
	srv.Handle(portmap.Program, portmap.Version, portmap.ProcNull, func(_ *xdr.Unpacker, _ *xdr.Packer) error {
		return nil
	})
	srv.Handle(portmap.Program, portmap.Version, portmap.ProcCallIt, func(_ *xdr.Unpacker, reply *xdr.Packer) error {
		reply.PackUint(111)
		reply.PackUint(0x7ffffff0) // result length with no data behind it
		return nil
	})

	host, port := hostPort(t, srv)
	client, err := portmap.Dial(context.Background(), host, port)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.CallIt(context.Background(), portmap.CallArgs{Program: coreProgram, Version: coreVersion})
	var decodeErr *xdr.DecodeError
	require.True(t, errors.As(err, &decodeErr), "got %v", err)

	require.NoError(t, client.Null(context.Background()), "decode errors leave the connection usable")
}

func TestCallResultWireFormat(t *testing.T) {
	p := xdr.NewPacker()
	portmap.PackCallResult(p, portmap.CallResult{Port: 40000, Result: []byte{1, 2, 3}})
	require.NoError(t, p.Err())

	expected := []byte{
		0x00, 0x00, 0x9c, 0x40,
		0x00, 0x00, 0x00, 0x03,
		0x01, 0x02, 0x03, 0x00,
	}
	assert.Equal(t, expected, p.Bytes())

	res, err := portmap.UnpackCallResult(xdr.NewUnpacker(p.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, uint32(40000), res.Port)
	assert.Equal(t, []byte{1, 2, 3}, res.Result)

	_, err = portmap.UnpackCallResult(xdr.NewUnpacker([]byte{0, 0, 0, 111, 0x7f, 0xff, 0xff, 0xf0}))
	var decodeErr *xdr.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

// ============================================================================
// LookupPort Tests
// ============================================================================

func TestLookupPort(t *testing.T) {
	t.Run("UsesOneShortLivedConnection", func(t *testing.T) {
		srv := rpctest.NewServer(t)
		reg := portmaptest.Serve(srv)
		reg.Register(coreProgram, coreVersion, 40001)
		host, port := hostPort(t, srv)

		got, err := portmap.LookupPort(context.Background(), host, port, coreProgram, coreVersion)
		require.NoError(t, err)
		assert.Equal(t, uint32(40001), got)
		assert.Equal(t, 1, srv.Connections())
		assert.Equal(t, 1, srv.CallCount(portmap.Program, portmap.ProcGetPort))
	})

	t.Run("UnreachablePortmapper", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		require.NoError(t, ln.Close())

		_, err = portmap.LookupPort(context.Background(), "127.0.0.1", port, coreProgram, coreVersion)
		var connErr *rpc.ConnectionError
		assert.True(t, errors.As(err, &connErr))
	})
}
