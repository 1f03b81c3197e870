package vxi11

import (
	"context"
	"net"
	"strconv"

	"github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// CoreClient issues DEVICE_CORE calls over one RPC connection.
//
// Every method returns the decoded reply including its device error code;
// a non-nil error means the RPC itself failed (transport, rejection or
// malformed reply). Interpreting device error codes is up to the caller.
type CoreClient struct {
	rpc *rpc.Client
}

// DialCore connects to the DEVICE_CORE service on host:port. opts are
// forwarded to rpc.Dial.
func DialCore(ctx context.Context, host string, port uint32, opts ...rpc.Option) (*CoreClient, error) {
	addr := net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))

	rpcOpts := append([]rpc.Option{
		rpc.WithProgramName("device_core"),
		rpc.WithProcedureNames(ProcedureNames),
	}, opts...)

	client, err := rpc.Dial(ctx, addr, CoreProgram, CoreVersion, rpcOpts...)
	if err != nil {
		return nil, err
	}
	return &CoreClient{rpc: client}, nil
}

// Addr returns the address of the DEVICE_CORE service.
func (c *CoreClient) Addr() string {
	return c.rpc.Addr()
}

// Close closes the core channel connection.
func (c *CoreClient) Close() error {
	return c.rpc.Close()
}

// CreateLink opens a device link.
func (c *CoreClient) CreateLink(ctx context.Context, parms CreateLinkParms) (CreateLinkResp, error) {
	var resp CreateLinkResp
	err := c.rpc.Call(ctx, ProcCreateLink,
		func(p *xdr.Packer) { p.PackStruct(&parms) },
		func(u *xdr.Unpacker) error { return u.UnpackStruct(&resp) })
	return resp, err
}

// DeviceWrite sends one chunk of a message.
func (c *CoreClient) DeviceWrite(ctx context.Context, parms WriteParms) (WriteResp, error) {
	var resp WriteResp
	err := c.rpc.Call(ctx, ProcDeviceWrite,
		func(p *xdr.Packer) { p.PackStruct(&parms) },
		func(u *xdr.Unpacker) error { return u.UnpackStruct(&resp) })
	return resp, err
}

// DeviceRead reads one chunk of a message.
func (c *CoreClient) DeviceRead(ctx context.Context, parms ReadParms) (ReadResp, error) {
	var resp ReadResp
	err := c.rpc.Call(ctx, ProcDeviceRead,
		func(p *xdr.Packer) { p.PackStruct(&parms) },
		func(u *xdr.Unpacker) error {
			var err error
			resp, err = UnpackReadResp(u)
			return err
		})
	return resp, err
}

// DeviceReadSTB reads the status byte.
func (c *CoreClient) DeviceReadSTB(ctx context.Context, parms GenericParms) (ReadSTBResp, error) {
	var resp ReadSTBResp
	err := c.rpc.Call(ctx, ProcDeviceReadSTB,
		func(p *xdr.Packer) { p.PackStruct(&parms) },
		func(u *xdr.Unpacker) error { return u.UnpackStruct(&resp) })
	return resp, err
}

// DeviceTrigger sends a trigger (GPIB GET).
func (c *CoreClient) DeviceTrigger(ctx context.Context, parms GenericParms) (ErrorCode, error) {
	return c.genericCall(ctx, ProcDeviceTrigger, &parms)
}

// DeviceClear sends a device clear (GPIB SDC).
func (c *CoreClient) DeviceClear(ctx context.Context, parms GenericParms) (ErrorCode, error) {
	return c.genericCall(ctx, ProcDeviceClear, &parms)
}

// DeviceRemote places the device in remote state.
func (c *CoreClient) DeviceRemote(ctx context.Context, parms GenericParms) (ErrorCode, error) {
	return c.genericCall(ctx, ProcDeviceRemote, &parms)
}

// DeviceLocal places the device in local state.
func (c *CoreClient) DeviceLocal(ctx context.Context, parms GenericParms) (ErrorCode, error) {
	return c.genericCall(ctx, ProcDeviceLocal, &parms)
}

// DeviceLock acquires the device lock for the link.
func (c *CoreClient) DeviceLock(ctx context.Context, parms LockParms) (ErrorCode, error) {
	return c.genericCall(ctx, ProcDeviceLock, &parms)
}

// DeviceUnlock releases the device lock held by the link.
func (c *CoreClient) DeviceUnlock(ctx context.Context, linkID int32) (ErrorCode, error) {
	return c.linkCall(ctx, ProcDeviceUnlock, linkID)
}

// DeviceEnableSRQ enables or disables service request interrupts.
func (c *CoreClient) DeviceEnableSRQ(ctx context.Context, parms EnableSRQParms) (ErrorCode, error) {
	return c.genericCall(ctx, ProcDeviceEnableSRQ, &parms)
}

// DeviceDoCmd runs a device-specific command.
func (c *CoreClient) DeviceDoCmd(ctx context.Context, parms DoCmdParms) (DoCmdResp, error) {
	var resp DoCmdResp
	err := c.rpc.Call(ctx, ProcDeviceDoCmd,
		func(p *xdr.Packer) { p.PackStruct(&parms) },
		func(u *xdr.Unpacker) error {
			var err error
			resp, err = UnpackDoCmdResp(u)
			return err
		})
	return resp, err
}

// DestroyLink closes a device link.
func (c *CoreClient) DestroyLink(ctx context.Context, linkID int32) (ErrorCode, error) {
	return c.linkCall(ctx, ProcDestroyLink, linkID)
}

// genericCall sends a fixed-shape argument and decodes a Device_Error.
func (c *CoreClient) genericCall(ctx context.Context, proc uint32, parms any) (ErrorCode, error) {
	var resp deviceErrorResp
	err := c.rpc.Call(ctx, proc,
		func(p *xdr.Packer) { p.PackStruct(parms) },
		func(u *xdr.Unpacker) error { return u.UnpackStruct(&resp) })
	return resp.Error, err
}

// linkCall sends a bare Device_Link and decodes a Device_Error.
func (c *CoreClient) linkCall(ctx context.Context, proc uint32, linkID int32) (ErrorCode, error) {
	var resp deviceErrorResp
	err := c.rpc.Call(ctx, proc,
		func(p *xdr.Packer) { p.PackInt(linkID) },
		func(u *xdr.Unpacker) error { return u.UnpackStruct(&resp) })
	return resp.Error, err
}
