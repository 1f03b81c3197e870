// Package rpctest provides a loopback ONC RPC server for tests.
//
// The server speaks record-marked TCP on 127.0.0.1, dispatches calls by
// (program, version, procedure) and answers unknown programs, versions and
// procedures with the matching RPC accept status, so clients can be tested
// against realistic failure replies as well as scripted results.
package rpctest

import (
	"errors"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/internal/protocol/rpc"
	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// Handler serves one procedure. It decodes its arguments from args and
// appends its result to reply. Returning an error answers GARBAGE_ARGS.
type Handler func(args *xdr.Unpacker, reply *xdr.Packer) error

// RawHandler serves one procedure by returning the complete reply record,
// bypassing reply header construction. Returning nil closes the
// connection without replying.
type RawHandler func(call rpc.CallHeader, args []byte) []byte

type procKey struct {
	program, version, procedure uint32
}

type route struct {
	handler Handler
	raw     RawHandler
}

// Server is a loopback RPC server.
type Server struct {
	ln net.Listener

	// ReplyFragmentSize splits reply records into fragments of at most this
	// many bytes. Zero sends each reply as one fragment.
	ReplyFragmentSize int

	mu       sync.Mutex
	routes   map[procKey]route
	versions map[uint32][]uint32
	calls    []rpc.CallHeader

	accepted atomic.Int32
	wg       sync.WaitGroup
	conns    sync.Map
	closed   atomic.Bool
}

// NewServer starts a server on an ephemeral loopback port. It is closed
// automatically when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("rpctest: listen: %v", err)
	}

	s := &Server{
		ln:       ln,
		routes:   make(map[procKey]route),
		versions: make(map[uint32][]uint32),
	}

	s.wg.Add(1)
	go s.acceptLoop()

	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() uint32 {
	return uint32(s.ln.Addr().(*net.TCPAddr).Port)
}

// Handle registers h for a procedure.
func (s *Server) Handle(program, version, procedure uint32, h Handler) {
	s.register(procKey{program, version, procedure}, route{handler: h})
}

// HandleRaw registers a raw handler for a procedure.
func (s *Server) HandleRaw(program, version, procedure uint32, h RawHandler) {
	s.register(procKey{program, version, procedure}, route{raw: h})
}

func (s *Server) register(key procKey, r route) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.routes[key] = r
	if !slices.Contains(s.versions[key.program], key.version) {
		s.versions[key.program] = append(s.versions[key.program], key.version)
	}
}

// Calls returns the headers of every call received so far, in order.
func (s *Server) Calls() []rpc.CallHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rpc.CallHeader(nil), s.calls...)
}

// CallCount returns how many calls were made to the given procedure.
func (s *Server) CallCount(program, procedure uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		if c.Program == program && c.Procedure == procedure {
			n++
		}
	}
	return n
}

// Connections returns how many connections have been accepted.
func (s *Server) Connections() int {
	return int(s.accepted.Load())
}

// Close stops the listener, closes open connections and waits for the
// serving goroutines to exit.
func (s *Server) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	_ = s.ln.Close()
	s.conns.Range(func(key, _ any) bool {
		_ = key.(net.Conn).Close()
		return true
	})
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.conns.Store(conn, struct{}{})
		if s.closed.Load() {
			_ = conn.Close()
		}

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.conns.Delete(conn)
		_ = conn.Close()
	}()

	for {
		record, err := rpc.ReadRecord(conn, rpc.DefaultMaxRecordSize)
		if err != nil {
			var closedErr *rpc.ConnectionClosedError
			if !errors.As(err, &closedErr) && !s.closed.Load() {
				logger.Debug("rpctest: read: %v", err)
			}
			return
		}

		reply := s.dispatch(record)
		if reply == nil {
			return
		}

		if err := rpc.WriteRecord(conn, reply, s.ReplyFragmentSize); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(record []byte) []byte {
	u := xdr.NewUnpacker(record)
	call, rpcVersion, err := rpc.UnpackCallHeader(u)
	if err != nil {
		logger.Debug("rpctest: bad call header: %v", err)
		return nil
	}

	p := xdr.NewPacker()
	if rpcVersion != rpc.RPCVersion {
		rpc.PackDeniedReply(p, call.XID, rpc.RPCMismatch, rpc.RPCVersion, rpc.RPCVersion)
		return p.Bytes()
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	r, ok := s.routes[procKey{call.Program, call.Version, call.Procedure}]
	versions := append([]uint32(nil), s.versions[call.Program]...)
	s.mu.Unlock()

	switch {
	case ok && r.raw != nil:
		return r.raw(call, record[len(record)-u.Remaining():])

	case ok:
		p.Reset()
		rpc.PackAcceptedReply(p, call.XID, rpc.Success)
		if err := r.handler(u, p); err != nil {
			p.Reset()
			rpc.PackAcceptedReply(p, call.XID, rpc.GarbageArgs)
		}
		return p.Bytes()

	case len(versions) == 0:
		rpc.PackAcceptedReply(p, call.XID, rpc.ProgUnavail)
		return p.Bytes()

	case !slices.Contains(versions, call.Version):
		low, high := versions[0], versions[0]
		for _, v := range versions {
			low, high = min(low, v), max(high, v)
		}
		rpc.PackProgMismatchReply(p, call.XID, low, high)
		return p.Bytes()

	default:
		rpc.PackAcceptedReply(p, call.XID, rpc.ProcUnavail)
		return p.Bytes()
	}
}
