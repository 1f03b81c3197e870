package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/internal/protocol/xdr"
	"github.com/marmos91/vxi11/pkg/metrics"
)

// aLongTimeAgo is a non-zero time in the past, used to unblock pending
// socket I/O when a call's context is cancelled.
var aLongTimeAgo = time.Unix(1, 0)

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout         time.Duration
	dialTimeout     time.Duration
	maxFragmentSize int
	maxRecordSize   int
	programName     string
	procedureNames  map[uint32]string
	metrics         metrics.RPCMetrics
}

// WithTimeout bounds every call (send and receive) with a socket deadline.
// Zero means no local deadline; the call then only ends when the peer
// replies, the connection fails, or the call's context is done.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithDialTimeout bounds connection establishment in Dial.
func WithDialTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.dialTimeout = d }
}

// WithMaxFragmentSize splits outbound records into fragments of at most n
// bytes. Zero sends each record as a single fragment.
func WithMaxFragmentSize(n int) Option {
	return func(o *clientOptions) { o.maxFragmentSize = n }
}

// WithMaxRecordSize bounds the size of a reassembled reply.
func WithMaxRecordSize(n int) Option {
	return func(o *clientOptions) { o.maxRecordSize = n }
}

// WithProgramName sets the program label used in logs and metrics.
func WithProgramName(name string) Option {
	return func(o *clientOptions) { o.programName = name }
}

// WithProcedureNames sets the procedure labels used in logs and metrics.
func WithProcedureNames(names map[uint32]string) Option {
	return func(o *clientOptions) { o.procedureNames = names }
}

// WithMetrics attaches an RPCMetrics sink. Nil selects the no-op sink.
func WithMetrics(m metrics.RPCMetrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// Client is an ONC RPC client bound to one program and version over a
// single record-marked TCP connection.
//
// A Client carries exactly one outstanding call at a time: there is one
// connection and no request multiplexing. Calling Call while another call
// is in flight fails immediately with ErrCallInProgress instead of
// interleaving bytes on the stream. Callers that share a Client across
// goroutines must serialize their calls.
//
// Transaction IDs start at 1 and increase by one per call.
//
// Any transport failure (send, receive, deadline, cancellation mid-call,
// reply XID mismatch) leaves the stream in an unknown position, so the
// Client records the failure and every subsequent Call returns it. Open a
// new Client to recover. RPC-level rejections (PROC_UNAVAIL, AUTH_ERROR,
// ...) and result decode errors do not affect the connection.
type Client struct {
	conn    net.Conn
	addr    string
	program uint32
	version uint32
	opts    clientOptions

	busy   atomic.Bool
	closed atomic.Bool

	// Owned by the call holding busy.
	xid    uint32
	broken error
	packer *xdr.Packer
}

// Dial opens a TCP connection to addr and returns a Client for the given
// program and version.
//
// Returns *ConnectionError if the connection cannot be established.
func Dial(ctx context.Context, addr string, program, version uint32, opts ...Option) (*Client, error) {
	o := buildOptions(program, opts)

	dialer := net.Dialer{Timeout: o.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}

	logger.Debug("RPC connected to %s (program=%s version=%d)", addr, o.programName, version)
	return newClient(conn, addr, program, version, o), nil
}

// NewClient wraps an established connection. The Client takes ownership
// of conn and closes it in Close.
func NewClient(conn net.Conn, program, version uint32, opts ...Option) *Client {
	o := buildOptions(program, opts)
	return newClient(conn, conn.RemoteAddr().String(), program, version, o)
}

func buildOptions(program uint32, opts []Option) clientOptions {
	o := clientOptions{
		maxRecordSize: DefaultMaxRecordSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.programName == "" {
		o.programName = strconv.FormatUint(uint64(program), 10)
	}
	if o.metrics == nil {
		o.metrics = metrics.NewNoopRPCMetrics()
	}
	if o.maxRecordSize <= 0 {
		o.maxRecordSize = DefaultMaxRecordSize
	}
	return o
}

func newClient(conn net.Conn, addr string, program, version uint32, o clientOptions) *Client {
	o.metrics.RecordConnectionOpened(o.programName)
	return &Client{
		conn:    conn,
		addr:    addr,
		program: program,
		version: version,
		opts:    o,
		packer:  xdr.NewPacker(),
	}
}

// Addr returns the remote address of the connection.
func (c *Client) Addr() string {
	return c.addr
}

// Call performs one RPC round trip.
//
// args, if not nil, appends the procedure arguments after the call header.
// result, if not nil, decodes the procedure result; after it returns, any
// unread bytes in the reply are reported as a decode error. A nil result
// expects an empty result body.
//
// The effective socket deadline is the earlier of the context deadline and
// the client timeout. Cancelling ctx while the call is blocked aborts the
// socket I/O, which breaks the connection.
//
// Returns:
//   - nil on SUCCESS with a fully decoded result
//   - ErrClientClosed, ErrCallInProgress for misuse
//   - *ConnectionError, *ConnectionClosedError for transport failures
//   - *ProtocolError and the other RPC error types for rejected calls
//   - *xdr.DecodeError (wrapped) for malformed replies
func (c *Client) Call(ctx context.Context, procedure uint32, args func(*xdr.Packer), result func(*xdr.Unpacker) error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrCallInProgress
	}
	defer c.busy.Store(false)

	if c.broken != nil {
		return c.broken
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name := c.procedureName(procedure)

	c.xid++
	xid := c.xid

	c.packer.Reset()
	PackCallHeader(c.packer, CallHeader{
		XID:       xid,
		Program:   c.program,
		Version:   c.version,
		Procedure: procedure,
		Cred:      NullAuth(),
		Verf:      NullAuth(),
	})
	if args != nil {
		args(c.packer)
	}
	if err := c.packer.Err(); err != nil {
		return fmt.Errorf("encode %s arguments: %w", name, err)
	}

	logger.Debug("RPC call: xid=0x%x program=%s procedure=%s bytes=%d",
		xid, c.opts.programName, name, c.packer.Len())

	start := time.Now()
	err := c.roundTrip(ctx, xid, procedure, name, result)
	duration := time.Since(start)
	c.opts.metrics.RecordCall(c.opts.programName, name, duration, err)

	if err != nil {
		logger.Debug("RPC call failed: xid=0x%x procedure=%s duration=%v error=%v", xid, name, duration, err)
	} else {
		logger.Debug("RPC reply: xid=0x%x procedure=%s duration=%v", xid, name, duration)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, xid, procedure uint32, name string, result func(*xdr.Unpacker) error) error {
	if err := c.conn.SetDeadline(c.deadline(ctx)); err != nil {
		return c.fail(ctx, "set deadline", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	request := c.packer.Bytes()
	if err := WriteRecord(c.conn, request, c.opts.maxFragmentSize); err != nil {
		return c.fail(ctx, "send", err)
	}
	c.opts.metrics.RecordBytesTransferred(c.opts.programName, "sent", len(request))

	reply, err := ReadRecord(c.conn, c.opts.maxRecordSize)
	if err != nil {
		return c.fail(ctx, "receive", err)
	}
	c.opts.metrics.RecordBytesTransferred(c.opts.programName, "received", len(reply))

	u := xdr.NewUnpacker(reply)
	hdr, err := UnpackReplyHeader(u, c.program, procedure)

	// The XID is the first word of the reply; once it has been read, a
	// mismatch takes precedence over whatever the rest of the header says.
	if len(reply) >= 4 && hdr.XID != xid {
		c.broken = &ProtocolError{Msg: fmt.Sprintf("reply/request mismatch: sent xid 0x%x, got 0x%x", xid, hdr.XID)}
		return c.broken
	}
	if err != nil {
		return err
	}

	if result != nil {
		if err := result(u); err != nil {
			return fmt.Errorf("decode %s reply: %w", name, err)
		}
	}
	if err := u.Done(); err != nil {
		return fmt.Errorf("decode %s reply: %w", name, err)
	}
	return nil
}

// deadline returns the earlier of the context deadline and the client
// timeout, or the zero time when neither applies.
func (c *Client) deadline(ctx context.Context) time.Time {
	var deadline time.Time
	if c.opts.timeout > 0 {
		deadline = time.Now().Add(c.opts.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

// fail records a transport failure and returns it. Once recorded, every
// further Call returns the same error.
func (c *Client) fail(ctx context.Context, op string, err error) error {
	var closedErr *ConnectionClosedError
	switch ctxErr := contextError(ctx); {
	case ctxErr != nil:
		c.broken = &ConnectionError{Op: op, Addr: c.addr, Err: fmt.Errorf("%w: %w", ctxErr, err)}
	case errors.As(err, &closedErr):
		closedErr.Addr = c.addr
		c.broken = closedErr
	default:
		c.broken = &ConnectionError{Op: op, Addr: c.addr, Err: err}
	}
	return c.broken
}

// contextError reports why ctx ended. A socket deadline taken from ctx can
// expire a moment before the context's own timer fires, so a passed
// deadline counts as DeadlineExceeded even while ctx.Err is still nil.
func contextError(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return nil
}

func (c *Client) procedureName(procedure uint32) string {
	if name, ok := c.opts.procedureNames[procedure]; ok {
		return name
	}
	return strconv.FormatUint(uint64(procedure), 10)
}

// Close closes the connection. It unblocks a call in flight, which then
// fails with a transport error. Close is idempotent; only the first call
// reports the error from closing the socket.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.opts.metrics.RecordConnectionClosed(c.opts.programName)
	logger.Debug("RPC connection to %s closed (program=%s)", c.addr, c.opts.programName)

	if err := c.conn.Close(); err != nil {
		return &ConnectionError{Op: "close", Addr: c.addr, Err: err}
	}
	return nil
}
