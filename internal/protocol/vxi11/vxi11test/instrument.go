// Package vxi11test provides a scripted VXI-11 instrument for tests.
//
// An Instrument runs two loopback RPC servers: a port mapper on which the
// DEVICE_CORE program is registered, and the DEVICE_CORE service itself.
// It implements link management, chunked writes with END handling, reads
// that honour request size and termination character, locking and the
// generic device procedures, and records every request so tests can
// assert on exactly what went over the wire.
package vxi11test

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/vxi11/internal/protocol/portmap/portmaptest"
	"github.com/marmos91/vxi11/internal/protocol/rpc/rpctest"
	"github.com/marmos91/vxi11/internal/protocol/vxi11"
	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// IDN is the default answer to "*IDN?".
const IDN = "VXI11TEST,FAKE-INSTRUMENT,0,1.0\n"

// Responder computes the answer to a complete message. A nil answer
// leaves nothing to read.
type Responder func(message []byte) []byte

// WriteHook overrides the reply to a DEVICE_WRITE. Return ok=false to fall
// back to the default behaviour.
type WriteHook func(parms vxi11.WriteParms) (resp vxi11.WriteResp, ok bool)

// Instrument is a fake VXI-11 instrument.
type Instrument struct {
	Portmap  *rpctest.Server
	Core     *rpctest.Server
	Registry *portmaptest.Registry

	mu sync.Mutex

	maxRecvSize     uint32
	createLinkError vxi11.ErrorCode
	responder       Responder
	writeHook       WriteHook
	scriptedReads   []vxi11.ReadResp
	stb             uint32

	nextLink  int32
	links     map[int32]bool
	lockOwner int32

	partial  []byte
	messages [][]byte
	pending  []byte

	createLinks []vxi11.CreateLinkParms
	writes      []vxi11.WriteParms
	reads       []vxi11.ReadParms
	destroys    []int32
	generic     map[uint32]int
}

// New starts a fake instrument. Both servers are closed when the test ends.
func New(t testing.TB) *Instrument {
	t.Helper()

	inst := &Instrument{
		Portmap:     rpctest.NewServer(t),
		Core:        rpctest.NewServer(t),
		maxRecvSize: 1024,
		nextLink:    1,
		links:       make(map[int32]bool),
		generic:     make(map[uint32]int),
		responder:   defaultResponder,
	}

	inst.Registry = portmaptest.Serve(inst.Portmap)
	inst.Registry.Register(vxi11.CoreProgram, vxi11.CoreVersion, inst.Core.Port())
	inst.serveCore()

	return inst
}

func defaultResponder(message []byte) []byte {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(string(message))), "*IDN?") {
		return []byte(IDN)
	}
	return nil
}

// Host returns the loopback host both servers listen on.
func (inst *Instrument) Host() string {
	host, _, _ := net.SplitHostPort(inst.Portmap.Addr())
	return host
}

// PortmapPort returns the port mapper's TCP port.
func (inst *Instrument) PortmapPort() int {
	_, port, _ := net.SplitHostPort(inst.Portmap.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

// ============================================================================
// Scripting
// ============================================================================

// SetMaxRecvSize sets the max_recv_size reported by CREATE_LINK.
func (inst *Instrument) SetMaxRecvSize(n uint32) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.maxRecvSize = n
}

// FailCreateLink makes CREATE_LINK answer with code.
func (inst *Instrument) FailCreateLink(code vxi11.ErrorCode) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.createLinkError = code
}

// SetResponder replaces the message responder.
func (inst *Instrument) SetResponder(r Responder) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.responder = r
}

// SetWriteHook installs a DEVICE_WRITE override.
func (inst *Instrument) SetWriteHook(h WriteHook) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.writeHook = h
}

// ScriptReads queues DEVICE_READ replies that are returned verbatim, in
// order, before any responder output.
func (inst *Instrument) ScriptReads(resps ...vxi11.ReadResp) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.scriptedReads = append(inst.scriptedReads, resps...)
}

// SetSTB sets the status byte returned by DEVICE_READSTB.
func (inst *Instrument) SetSTB(stb byte) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.stb = uint32(stb)
}

// Unregister removes the DEVICE_CORE mapping so GETPORT returns 0.
func (inst *Instrument) Unregister() {
	inst.Registry.Unregister(vxi11.CoreProgram, vxi11.CoreVersion)
}

// ============================================================================
// Inspection
// ============================================================================

// CreateLinks returns every CREATE_LINK argument received.
func (inst *Instrument) CreateLinks() []vxi11.CreateLinkParms {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return append([]vxi11.CreateLinkParms(nil), inst.createLinks...)
}

// Writes returns every DEVICE_WRITE argument received.
func (inst *Instrument) Writes() []vxi11.WriteParms {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return append([]vxi11.WriteParms(nil), inst.writes...)
}

// Reads returns every DEVICE_READ argument received.
func (inst *Instrument) Reads() []vxi11.ReadParms {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return append([]vxi11.ReadParms(nil), inst.reads...)
}

// Messages returns every complete (END-terminated) message written.
func (inst *Instrument) Messages() [][]byte {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return append([][]byte(nil), inst.messages...)
}

// DestroyCount returns how many DESTROY_LINK calls were received.
func (inst *Instrument) DestroyCount() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return len(inst.destroys)
}

// CallCount returns how many times a generic procedure (READSTB, TRIGGER,
// CLEAR, REMOTE, LOCAL, LOCK, UNLOCK, ENABLE_SRQ, DOCMD) was called.
func (inst *Instrument) CallCount(proc uint32) int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.generic[proc]
}

// OpenLinks returns the number of links not yet destroyed.
func (inst *Instrument) OpenLinks() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return len(inst.links)
}

// ============================================================================
// DEVICE_CORE Handlers
// ============================================================================

func (inst *Instrument) serveCore() {
	srv := inst.Core
	prog, vers := vxi11.CoreProgram, vxi11.CoreVersion

	srv.Handle(prog, vers, vxi11.ProcCreateLink, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		var parms vxi11.CreateLinkParms
		if err := args.UnpackStruct(&parms); err != nil {
			return err
		}
		resp := inst.createLink(parms)
		reply.PackStruct(&resp)
		return reply.Err()
	})

	srv.Handle(prog, vers, vxi11.ProcDeviceWrite, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		var parms vxi11.WriteParms
		if err := args.UnpackStruct(&parms); err != nil {
			return err
		}
		resp := inst.write(parms)
		reply.PackStruct(&resp)
		return reply.Err()
	})

	srv.Handle(prog, vers, vxi11.ProcDeviceRead, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		var parms vxi11.ReadParms
		if err := args.UnpackStruct(&parms); err != nil {
			return err
		}
		vxi11.PackReadResp(reply, inst.read(parms))
		return nil
	})

	srv.Handle(prog, vers, vxi11.ProcDeviceReadSTB, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		var parms vxi11.GenericParms
		if err := args.UnpackStruct(&parms); err != nil {
			return err
		}
		inst.mu.Lock()
		inst.generic[vxi11.ProcDeviceReadSTB]++
		resp := vxi11.ReadSTBResp{Error: inst.checkLink(parms.LinkID), STB: inst.stb}
		inst.mu.Unlock()
		reply.PackStruct(&resp)
		return reply.Err()
	})

	for _, proc := range []uint32{vxi11.ProcDeviceTrigger, vxi11.ProcDeviceClear, vxi11.ProcDeviceRemote, vxi11.ProcDeviceLocal} {
		srv.Handle(prog, vers, proc, func(args *xdr.Unpacker, reply *xdr.Packer) error {
			var parms vxi11.GenericParms
			if err := args.UnpackStruct(&parms); err != nil {
				return err
			}
			inst.mu.Lock()
			inst.generic[proc]++
			code := inst.checkLink(parms.LinkID)
			if code == vxi11.ErrNone && proc == vxi11.ProcDeviceClear {
				inst.partial = nil
				inst.pending = nil
			}
			inst.mu.Unlock()
			reply.PackInt(int32(code))
			return nil
		})
	}

	srv.Handle(prog, vers, vxi11.ProcDeviceLock, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		var parms vxi11.LockParms
		if err := args.UnpackStruct(&parms); err != nil {
			return err
		}
		inst.mu.Lock()
		inst.generic[vxi11.ProcDeviceLock]++
		code := inst.checkLink(parms.LinkID)
		if code == vxi11.ErrNone {
			switch inst.lockOwner {
			case 0, parms.LinkID:
				inst.lockOwner = parms.LinkID
			default:
				code = vxi11.ErrDeviceLocked
			}
		}
		inst.mu.Unlock()
		reply.PackInt(int32(code))
		return nil
	})

	srv.Handle(prog, vers, vxi11.ProcDeviceUnlock, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		link, err := args.UnpackInt()
		if err != nil {
			return err
		}
		inst.mu.Lock()
		inst.generic[vxi11.ProcDeviceUnlock]++
		code := inst.checkLink(link)
		if code == vxi11.ErrNone {
			if inst.lockOwner != link {
				code = vxi11.ErrNoLockHeld
			} else {
				inst.lockOwner = 0
			}
		}
		inst.mu.Unlock()
		reply.PackInt(int32(code))
		return nil
	})

	srv.Handle(prog, vers, vxi11.ProcDeviceEnableSRQ, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		var parms vxi11.EnableSRQParms
		if err := args.UnpackStruct(&parms); err != nil {
			return err
		}
		inst.mu.Lock()
		inst.generic[vxi11.ProcDeviceEnableSRQ]++
		code := inst.checkLink(parms.LinkID)
		inst.mu.Unlock()
		reply.PackInt(int32(code))
		return nil
	})

	srv.Handle(prog, vers, vxi11.ProcDeviceDoCmd, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		var parms vxi11.DoCmdParms
		if err := args.UnpackStruct(&parms); err != nil {
			return err
		}
		inst.mu.Lock()
		inst.generic[vxi11.ProcDeviceDoCmd]++
		code := inst.checkLink(parms.LinkID)
		inst.mu.Unlock()
		vxi11.PackDoCmdResp(reply, vxi11.DoCmdResp{Error: code, DataOut: parms.DataIn})
		return nil
	})

	srv.Handle(prog, vers, vxi11.ProcDestroyLink, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		link, err := args.UnpackInt()
		if err != nil {
			return err
		}
		inst.mu.Lock()
		inst.destroys = append(inst.destroys, link)
		code := inst.checkLink(link)
		if code == vxi11.ErrNone {
			delete(inst.links, link)
			if inst.lockOwner == link {
				inst.lockOwner = 0
			}
		}
		inst.mu.Unlock()
		reply.PackInt(int32(code))
		return nil
	})
}

// checkLink must be called with mu held.
func (inst *Instrument) checkLink(link int32) vxi11.ErrorCode {
	if !inst.links[link] {
		return vxi11.ErrInvalidLink
	}
	return vxi11.ErrNone
}

func (inst *Instrument) createLink(parms vxi11.CreateLinkParms) vxi11.CreateLinkResp {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	inst.createLinks = append(inst.createLinks, parms)
	if inst.createLinkError != vxi11.ErrNone {
		return vxi11.CreateLinkResp{Error: inst.createLinkError}
	}

	link := inst.nextLink
	inst.nextLink++
	inst.links[link] = true

	if parms.LockDevice {
		if inst.lockOwner != 0 {
			delete(inst.links, link)
			return vxi11.CreateLinkResp{Error: vxi11.ErrDeviceLocked}
		}
		inst.lockOwner = link
	}

	return vxi11.CreateLinkResp{
		Error:       vxi11.ErrNone,
		LinkID:      link,
		AbortPort:   0,
		MaxRecvSize: inst.maxRecvSize,
	}
}

func (inst *Instrument) write(parms vxi11.WriteParms) vxi11.WriteResp {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	inst.writes = append(inst.writes, parms)
	if code := inst.checkLink(parms.LinkID); code != vxi11.ErrNone {
		return vxi11.WriteResp{Error: code}
	}

	if inst.writeHook != nil {
		if resp, ok := inst.writeHook(parms); ok {
			return resp
		}
	}

	inst.partial = append(inst.partial, parms.Data...)
	if parms.Flags&vxi11.FlagEnd != 0 {
		message := inst.partial
		inst.partial = nil
		inst.messages = append(inst.messages, message)
		if inst.responder != nil {
			if answer := inst.responder(message); answer != nil {
				inst.pending = append(inst.pending, answer...)
			}
		}
	}

	return vxi11.WriteResp{Error: vxi11.ErrNone, Size: uint32(len(parms.Data))}
}

func (inst *Instrument) read(parms vxi11.ReadParms) vxi11.ReadResp {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	inst.reads = append(inst.reads, parms)
	if code := inst.checkLink(parms.LinkID); code != vxi11.ErrNone {
		return vxi11.ReadResp{Error: code}
	}

	if len(inst.scriptedReads) > 0 {
		resp := inst.scriptedReads[0]
		inst.scriptedReads = inst.scriptedReads[1:]
		return resp
	}

	if len(inst.pending) == 0 {
		return vxi11.ReadResp{Error: vxi11.ErrIOTimeout}
	}

	n := min(len(inst.pending), int(parms.RequestSize))
	var reason vxi11.Reason

	if parms.Flags&vxi11.FlagTermCharSet != 0 {
		if i := bytes.IndexByte(inst.pending[:n], byte(parms.TermChar)); i >= 0 {
			n = i + 1
			reason |= vxi11.ReasonTermChar
		}
	}
	if n == int(parms.RequestSize) {
		reason |= vxi11.ReasonRequestCount
	}
	if n == len(inst.pending) {
		reason |= vxi11.ReasonEnd
	}

	data := append([]byte(nil), inst.pending[:n]...)
	inst.pending = inst.pending[n:]
	return vxi11.ReadResp{Error: vxi11.ErrNone, Reason: reason, Data: data}
}
