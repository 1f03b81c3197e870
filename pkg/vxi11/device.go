// Package vxi11 is a client for LAN instruments speaking VXI-11.
//
// A Device resolves the instrument's DEVICE_CORE port through the port
// mapper, creates a device link and exchanges logical messages over it:
//
//	dev := vxi11.New("192.168.1.20", vxi11.Config{})
//	if err := dev.Open(ctx); err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	idn, err := dev.Ask(ctx, "*IDN?")
//
// Write splits a message into chunks no larger than the link's
// max_recv_size and marks the last one with END. Read issues DEVICE_READ
// until the instrument reports END (or the termination character, when
// enabled) and returns the concatenated data.
//
// A Device serializes its own operations with a mutex, so Ask is never
// interleaved with another goroutine's Write or Read on the same Device.
// Device-level errors (*DeviceError, *ShortWriteError) leave the link
// usable. Transport errors (*ConnectionError, *ConnectionClosedError) make
// every later operation fail; Close and open a new Device to recover.
package vxi11

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/internal/protocol/portmap"
	"github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/marmos91/vxi11/internal/protocol/vxi11"
	"github.com/marmos91/vxi11/internal/ratelimiter"
)

// State is the lifecycle state of a Device.
type State int

const (
	StateUnopened State = iota
	StateLinked
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateLinked:
		return "linked"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Device is a link to one logical device of a VXI-11 instrument.
type Device struct {
	host    string
	cfg     Config
	session string
	limiter *ratelimiter.RateLimiter

	mu          sync.Mutex
	state       State
	core        *vxi11.CoreClient
	linkID      int32
	maxRecvSize uint32
}

// New returns an unopened Device for host. cfg is completed with
// ApplyDefaults.
func New(host string, cfg Config) *Device {
	cfg.ApplyDefaults()
	return &Device{
		host:    host,
		cfg:     cfg,
		session: uuid.NewString()[:8],
		limiter: ratelimiter.New(cfg.CommandRate, cfg.CommandBurst),
	}
}

// Dial is New followed by Open.
func Dial(ctx context.Context, host string, cfg Config) (*Device, error) {
	d := New(host, cfg)
	if err := d.Open(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Host returns the instrument host.
func (d *Device) Host() string { return d.host }

// Name returns the logical device name.
func (d *Device) Name() string { return d.cfg.Name }

// State returns the current lifecycle state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// LinkID returns the link identifier assigned by the instrument.
func (d *Device) LinkID() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linkID
}

// MaxRecvSize returns the negotiated chunk size, after clamping.
func (d *Device) MaxRecvSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxRecvSize
}

// ============================================================================
// Link Lifecycle
// ============================================================================

// Open resolves the DEVICE_CORE port, connects and creates the link.
//
// The port mapper lookup uses its own short-lived connection. If the
// service is not registered, Open fails with *ServiceNotFoundError before
// connecting to the instrument. On any failure the Device stays unopened
// and Open may be retried.
func (d *Device) Open(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { d.cfg.DeviceMetrics.RecordOperation("open", time.Since(start), err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateUnopened {
		return &InvalidStateError{Op: "open", State: d.state}
	}

	rpcOpts := []rpc.Option{
		rpc.WithTimeout(d.cfg.SocketTimeout),
		rpc.WithDialTimeout(d.cfg.DialTimeout),
		rpc.WithMetrics(d.cfg.RPCMetrics),
	}

	port, err := portmap.LookupPort(ctx, d.host, d.cfg.PortmapPort,
		vxi11.CoreProgram, vxi11.CoreVersion, rpcOpts...)
	if err != nil {
		return fmt.Errorf("resolve device core on %s: %w", d.host, err)
	}

	core, err := vxi11.DialCore(ctx, d.host, port, rpcOpts...)
	if err != nil {
		return err
	}

	resp, err := core.CreateLink(ctx, vxi11.CreateLinkParms{
		ClientID:    d.cfg.ClientID,
		LockDevice:  d.cfg.LockDevice,
		LockTimeout: millis(d.cfg.LockTimeout),
		Device:      d.cfg.Name,
	})
	if err == nil && resp.Error != vxi11.ErrNone {
		err = d.deviceError("create link", resp.Error)
	}
	if err != nil {
		if cerr := core.Close(); cerr != nil {
			logger.Debug("vxi11[%s]: close after failed link: %v", d.session, cerr)
		}
		return err
	}

	d.core = core
	d.linkID = resp.LinkID
	d.maxRecvSize = clampRecvSize(resp.MaxRecvSize, d.cfg.MaxRecvSize)
	d.state = StateLinked
	d.cfg.DeviceMetrics.AddActiveLinks(1)

	logger.Debug("vxi11[%s]: link %d max_recv_size=%d (reported %d) abort_port=%d",
		d.session, d.linkID, d.maxRecvSize, resp.MaxRecvSize, resp.AbortPort)
	logger.Info("vxi11[%s]: opened %s on %s (core port %d)", d.session, d.cfg.Name, d.host, port)
	return nil
}

// clampRecvSize bounds the chunk size reported by the instrument. Some
// servers report a negative value, which reads as a huge unsigned one.
func clampRecvSize(reported, ceiling uint32) uint32 {
	if reported == 0 || reported > ceiling {
		return ceiling
	}
	return reported
}

// Close destroys the link and closes the connection.
//
// A DESTROY_LINK failure is logged and does not prevent the connection
// from being closed. Closing an unopened or closed Device only marks it
// closed.
func (d *Device) Close() (err error) {
	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateLinked {
		d.state = StateClosed
		return nil
	}
	defer func() { d.cfg.DeviceMetrics.RecordOperation("close", time.Since(start), err) }()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.IOTimeout+time.Second)
	defer cancel()

	code, derr := d.core.DestroyLink(ctx, d.linkID)
	switch {
	case derr != nil:
		logger.Warn("vxi11[%s]: destroy link %d: %v", d.session, d.linkID, derr)
	case code != vxi11.ErrNone:
		d.cfg.DeviceMetrics.RecordDeviceError(code.String())
		logger.Warn("vxi11[%s]: destroy link %d: %s", d.session, d.linkID, code)
	}

	err = d.core.Close()
	d.core = nil
	d.state = StateClosed
	d.cfg.DeviceMetrics.AddActiveLinks(-1)

	logger.Info("vxi11[%s]: closed %s on %s", d.session, d.cfg.Name, d.host)
	return err
}

// ============================================================================
// Message Exchange
// ============================================================================

// Write sends msg as one logical message.
func (d *Device) Write(ctx context.Context, msg string) error {
	return d.WriteBytes(ctx, []byte(msg))
}

// WriteBytes sends data as one logical message, split into chunks of at
// most MaxRecvSize bytes. Only the last chunk carries END. An empty
// message is sent as a single empty chunk with END.
//
// If the instrument reports an error or accepts fewer bytes than a chunk
// holds, the remaining chunks are not sent.
func (d *Device) WriteBytes(ctx context.Context, data []byte) (err error) {
	start := time.Now()
	defer func() { d.cfg.DeviceMetrics.RecordOperation("write", time.Since(start), err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLinked("write"); err != nil {
		return err
	}
	return d.write(ctx, data)
}

// Read returns the next logical response.
//
// DEVICE_READ is repeated until the instrument reports END, or the
// termination character when Config.TermCharEnabled is set. A chunk that
// merely fills the request size does not complete the response.
func (d *Device) Read(ctx context.Context) (data []byte, err error) {
	start := time.Now()
	defer func() { d.cfg.DeviceMetrics.RecordOperation("read", time.Since(start), err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLinked("read"); err != nil {
		return nil, err
	}
	return d.read(ctx)
}

// Ask writes msg and reads the response while holding the Device, so no
// other operation on this Device runs in between.
func (d *Device) Ask(ctx context.Context, msg string) (data []byte, err error) {
	start := time.Now()
	defer func() { d.cfg.DeviceMetrics.RecordOperation("ask", time.Since(start), err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLinked("ask"); err != nil {
		return nil, err
	}
	if err := d.write(ctx, []byte(msg)); err != nil {
		return nil, err
	}
	return d.read(ctx)
}

func (d *Device) write(ctx context.Context, data []byte) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("vxi11: pacing write: %w", err)
	}

	chunkSize := int(d.maxRecvSize)
	chunks := 0

	for offset := 0; ; {
		end := min(offset+chunkSize, len(data))
		chunk := data[offset:end]
		last := end == len(data)

		var flags vxi11.Flags
		if last {
			flags |= vxi11.FlagEnd
		}

		resp, err := d.core.DeviceWrite(ctx, vxi11.WriteParms{
			LinkID:      d.linkID,
			IOTimeout:   millis(d.cfg.IOTimeout),
			LockTimeout: millis(d.cfg.LockTimeout),
			Flags:       flags,
			Data:        chunk,
		})
		if err != nil {
			return err
		}
		chunks++
		if resp.Error != vxi11.ErrNone {
			return d.deviceError("write", resp.Error)
		}
		if resp.Size != uint32(len(chunk)) {
			return &ShortWriteError{Sent: len(chunk), Accepted: resp.Size}
		}

		if last {
			break
		}
		offset = end
	}

	d.cfg.DeviceMetrics.RecordTransfer("write", len(data), chunks)
	logger.Debug("vxi11[%s]: wrote %d bytes in %d chunk(s)", d.session, len(data), chunks)
	return nil
}

func (d *Device) read(ctx context.Context) ([]byte, error) {
	parms := vxi11.ReadParms{
		LinkID:      d.linkID,
		RequestSize: d.maxRecvSize,
		IOTimeout:   millis(d.cfg.IOTimeout),
		LockTimeout: millis(d.cfg.LockTimeout),
	}
	if d.cfg.TermCharEnabled {
		parms.Flags = vxi11.FlagTermCharSet
		parms.TermChar = int32(d.cfg.TermChar)
	}

	var data []byte
	chunks := 0

	for {
		resp, err := d.core.DeviceRead(ctx, parms)
		if err != nil {
			return nil, err
		}
		chunks++
		if resp.Error != vxi11.ErrNone {
			return nil, d.deviceError("read", resp.Error)
		}
		if len(data)+len(resp.Data) > d.cfg.MaxResponseSize {
			return nil, ErrResponseTooLarge
		}
		data = append(data, resp.Data...)

		if d.isComplete(resp.Reason) {
			break
		}
	}

	d.cfg.DeviceMetrics.RecordTransfer("read", len(data), chunks)
	logger.Debug("vxi11[%s]: read %d bytes in %d chunk(s)", d.session, len(data), chunks)
	return data, nil
}

// isComplete reports whether reason ends the logical response.
func (d *Device) isComplete(reason vxi11.Reason) bool {
	if reason&vxi11.ReasonEnd != 0 {
		return true
	}
	return d.cfg.TermCharEnabled && reason&vxi11.ReasonTermChar != 0
}

// ============================================================================
// Device Control
// ============================================================================

// ReadSTB returns the instrument's status byte.
func (d *Device) ReadSTB(ctx context.Context) (stb byte, err error) {
	start := time.Now()
	defer func() { d.cfg.DeviceMetrics.RecordOperation("readstb", time.Since(start), err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLinked("read status byte"); err != nil {
		return 0, err
	}
	resp, err := d.core.DeviceReadSTB(ctx, d.genericParms())
	if err != nil {
		return 0, err
	}
	if resp.Error != vxi11.ErrNone {
		return 0, d.deviceError("read status byte", resp.Error)
	}
	return byte(resp.STB), nil
}

// Trigger sends a group execute trigger.
func (d *Device) Trigger(ctx context.Context) error {
	return d.control(ctx, "trigger", func(ctx context.Context) (vxi11.ErrorCode, error) {
		return d.core.DeviceTrigger(ctx, d.genericParms())
	})
}

// Clear sends a selected device clear, discarding pending input and output
// on the instrument.
func (d *Device) Clear(ctx context.Context) error {
	return d.control(ctx, "clear", func(ctx context.Context) (vxi11.ErrorCode, error) {
		return d.core.DeviceClear(ctx, d.genericParms())
	})
}

// Remote places the instrument in remote state.
func (d *Device) Remote(ctx context.Context) error {
	return d.control(ctx, "remote", func(ctx context.Context) (vxi11.ErrorCode, error) {
		return d.core.DeviceRemote(ctx, d.genericParms())
	})
}

// Local returns the instrument to local (front panel) state.
func (d *Device) Local(ctx context.Context) error {
	return d.control(ctx, "local", func(ctx context.Context) (vxi11.ErrorCode, error) {
		return d.core.DeviceLocal(ctx, d.genericParms())
	})
}

// Lock acquires the instrument lock for this link, waiting up to
// Config.LockTimeout if another link holds it.
func (d *Device) Lock(ctx context.Context) error {
	return d.control(ctx, "lock", func(ctx context.Context) (vxi11.ErrorCode, error) {
		return d.core.DeviceLock(ctx, vxi11.LockParms{
			LinkID:      d.linkID,
			Flags:       d.waitLockFlag(),
			LockTimeout: millis(d.cfg.LockTimeout),
		})
	})
}

// Unlock releases the instrument lock held by this link.
func (d *Device) Unlock(ctx context.Context) error {
	return d.control(ctx, "unlock", func(ctx context.Context) (vxi11.ErrorCode, error) {
		return d.core.DeviceUnlock(ctx, d.linkID)
	})
}

func (d *Device) control(ctx context.Context, op string, call func(context.Context) (vxi11.ErrorCode, error)) (err error) {
	start := time.Now()
	defer func() { d.cfg.DeviceMetrics.RecordOperation(op, time.Since(start), err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkLinked(op); err != nil {
		return err
	}
	code, err := call(ctx)
	if err != nil {
		return err
	}
	if code != vxi11.ErrNone {
		return d.deviceError(op, code)
	}
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func (d *Device) genericParms() vxi11.GenericParms {
	return vxi11.GenericParms{
		LinkID:      d.linkID,
		Flags:       d.waitLockFlag(),
		LockTimeout: millis(d.cfg.LockTimeout),
		IOTimeout:   millis(d.cfg.IOTimeout),
	}
}

func (d *Device) waitLockFlag() vxi11.Flags {
	if d.cfg.LockTimeout > 0 {
		return vxi11.FlagWaitLock
	}
	return 0
}

// checkLinked must be called with mu held.
func (d *Device) checkLinked(op string) error {
	if d.state != StateLinked {
		return &InvalidStateError{Op: op, State: d.state}
	}
	return nil
}

func (d *Device) deviceError(op string, code vxi11.ErrorCode) error {
	d.cfg.DeviceMetrics.RecordDeviceError(code.String())
	logger.Debug("vxi11[%s]: %s: device error %d (%s)", d.session, op, int32(code), code)
	return &DeviceError{Op: op, Code: code}
}

// IsDeviceError reports whether err is a device-level failure that leaves
// the link usable.
func IsDeviceError(err error) bool {
	var devErr *DeviceError
	var shortErr *ShortWriteError
	return errors.As(err, &devErr) || errors.As(err, &shortErr)
}
