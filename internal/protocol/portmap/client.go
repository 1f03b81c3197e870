package portmap

import (
	"context"
	"net"
	"strconv"

	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// Client talks to a port mapper over TCP.
//
// A Client wraps a single rpc.Client and inherits its one-call-at-a-time
// rule. Most callers only need LookupPort, which manages a short-lived
// Client on its own.
type Client struct {
	rpc  *rpc.Client
	host string
}

// Dial connects to the port mapper on host:port. Pass Port for the
// well-known port. opts are forwarded to rpc.Dial.
func Dial(ctx context.Context, host string, port int, opts ...rpc.Option) (*Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	rpcOpts := append([]rpc.Option{
		rpc.WithProgramName("portmap"),
		rpc.WithProcedureNames(procedureNames),
	}, opts...)

	client, err := rpc.Dial(ctx, addr, Program, Version, rpcOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: client, host: host}, nil
}

// Close closes the connection to the port mapper.
func (c *Client) Close() error {
	return c.rpc.Close()
}

// Null pings the port mapper.
func (c *Client) Null(ctx context.Context) error {
	return c.rpc.Call(ctx, ProcNull, nil, nil)
}

// Set registers m. It reports false when the port mapper refused the
// registration, typically because the (program, version, protocol) triple
// is already mapped.
func (c *Client) Set(ctx context.Context, m Mapping) (bool, error) {
	return c.callBool(ctx, ProcSet, m)
}

// Unset removes every registration of (m.Program, m.Version).
func (c *Client) Unset(ctx context.Context, m Mapping) (bool, error) {
	return c.callBool(ctx, ProcUnset, m)
}

func (c *Client) callBool(ctx context.Context, proc uint32, m Mapping) (bool, error) {
	var ok bool
	err := c.rpc.Call(ctx, proc,
		func(p *xdr.Packer) { PackMapping(p, m) },
		func(u *xdr.Unpacker) error {
			var err error
			ok, err = u.UnpackBool()
			return err
		})
	return ok, err
}

// GetPort returns the port serving (m.Program, m.Version, m.Protocol);
// m.Port is ignored.
//
// A reply of port 0 means the service is not registered and is returned
// as *ServiceNotFoundError.
func (c *Client) GetPort(ctx context.Context, m Mapping) (uint32, error) {
	m.Port = 0

	var port uint32
	err := c.rpc.Call(ctx, ProcGetPort,
		func(p *xdr.Packer) { PackMapping(p, m) },
		func(u *xdr.Unpacker) error {
			var err error
			port, err = u.UnpackUint()
			return err
		})
	if err != nil {
		return 0, err
	}

	if port == 0 {
		return 0, &ServiceNotFoundError{
			Host:     c.host,
			Program:  m.Program,
			Version:  m.Version,
			Protocol: m.Protocol,
		}
	}

	logger.Debug("portmap: %s resolved program=%d version=%d protocol=%s to port %d",
		c.host, m.Program, m.Version, m.Protocol, port)
	return port, nil
}

// Dump lists every registration in the order the port mapper returns them.
func (c *Client) Dump(ctx context.Context) ([]Mapping, error) {
	var mappings []Mapping
	err := c.rpc.Call(ctx, ProcDump, nil, func(u *xdr.Unpacker) error {
		var err error
		mappings, err = xdr.UnpackList(u, UnpackMapping)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

// CallIt asks the port mapper to call a procedure of a registered program
// on its host. The arguments and result are opaque, already XDR-encoded
// bodies.
//
// Port mappers usually only forward CALLIT over UDP and answer nothing on
// TCP; callers should pass a context deadline.
func (c *Client) CallIt(ctx context.Context, args CallArgs) (CallResult, error) {
	var res CallResult
	err := c.rpc.Call(ctx, ProcCallIt,
		func(p *xdr.Packer) { p.PackStruct(&args) },
		func(u *xdr.Unpacker) error {
			var err error
			res, err = UnpackCallResult(u)
			return err
		})
	if err != nil {
		return CallResult{}, err
	}
	return res, nil
}

// LookupPort resolves the TCP port of (program, version) on host with a
// short-lived port mapper session: connect, issue one GETPORT, close.
//
// pmapPort is the port mapper's port; pass Port for the well-known one.
// Returns *ServiceNotFoundError when the service is not registered.
func LookupPort(ctx context.Context, host string, pmapPort int, program, version uint32, opts ...rpc.Option) (uint32, error) {
	client, err := Dial(ctx, host, pmapPort, opts...)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Debug("portmap: close %s: %v", host, err)
		}
	}()

	return client.GetPort(ctx, Mapping{
		Program:  program,
		Version:  version,
		Protocol: ProtocolTCP,
	})
}
