// Package portmaptest serves an in-memory port mapper on an rpctest.Server.
package portmaptest

import (
	"errors"
	"slices"
	"sync"

	"github.com/marmos91/vxi11/internal/protocol/portmap"
	"github.com/marmos91/vxi11/internal/protocol/rpc/rpctest"
	"github.com/marmos91/vxi11/internal/protocol/xdr"
)

// errCallItUnsupported makes CALLIT answer GARBAGE_ARGS for programs the
// registry has no forwarder for.
var errCallItUnsupported = errors.New("callit: no forwarder")

// Forwarder answers a CALLIT for one program: it receives the procedure
// and its encoded arguments and returns the encoded result.
type Forwarder func(procedure uint32, args []byte) ([]byte, error)

// Registry is an in-memory port mapper table.
type Registry struct {
	mu         sync.Mutex
	mappings   []portmap.Mapping
	forwarders map[uint32]Forwarder
}

// Serve registers port mapper handlers for every procedure on srv and
// returns the backing table.
func Serve(srv *rpctest.Server) *Registry {
	r := &Registry{forwarders: make(map[uint32]Forwarder)}

	srv.Handle(portmap.Program, portmap.Version, portmap.ProcNull, func(_ *xdr.Unpacker, _ *xdr.Packer) error {
		return nil
	})

	srv.Handle(portmap.Program, portmap.Version, portmap.ProcSet, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		m, err := portmap.UnpackMapping(args)
		if err != nil {
			return err
		}
		reply.PackBool(r.set(m))
		return nil
	})

	srv.Handle(portmap.Program, portmap.Version, portmap.ProcUnset, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		m, err := portmap.UnpackMapping(args)
		if err != nil {
			return err
		}
		reply.PackBool(r.unset(m))
		return nil
	})

	srv.Handle(portmap.Program, portmap.Version, portmap.ProcGetPort, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		m, err := portmap.UnpackMapping(args)
		if err != nil {
			return err
		}
		reply.PackUint(r.lookup(m))
		return nil
	})

	srv.Handle(portmap.Program, portmap.Version, portmap.ProcDump, func(_ *xdr.Unpacker, reply *xdr.Packer) error {
		xdr.PackList(reply, r.Mappings(), portmap.PackMapping)
		return nil
	})

	srv.Handle(portmap.Program, portmap.Version, portmap.ProcCallIt, func(args *xdr.Unpacker, reply *xdr.Packer) error {
		var call portmap.CallArgs
		if err := args.UnpackStruct(&call); err != nil {
			return err
		}

		r.mu.Lock()
		fwd, ok := r.forwarders[call.Program]
		r.mu.Unlock()
		if !ok {
			return errCallItUnsupported
		}

		res, err := fwd(call.Procedure, call.Args)
		if err != nil {
			return err
		}
		port := r.lookup(portmap.Mapping{Program: call.Program, Version: call.Version, Protocol: portmap.ProtocolTCP})
		portmap.PackCallResult(reply, portmap.CallResult{Port: port, Result: res})
		return reply.Err()
	})

	return r
}

// Register adds a TCP mapping without going through SET.
func (r *Registry) Register(program, version, port uint32) {
	r.set(portmap.Mapping{Program: program, Version: version, Protocol: portmap.ProtocolTCP, Port: port})
}

// Unregister removes every mapping of program and version.
func (r *Registry) Unregister(program, version uint32) {
	r.unset(portmap.Mapping{Program: program, Version: version})
}

// Forward installs the CALLIT handler for program.
func (r *Registry) Forward(program uint32, f Forwarder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwarders[program] = f
}

// Mappings returns a copy of the table.
func (r *Registry) Mappings() []portmap.Mapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.mappings)
}

func (r *Registry) set(m portmap.Mapping) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.mappings {
		if existing.Program == m.Program && existing.Version == m.Version && existing.Protocol == m.Protocol {
			return false
		}
	}
	r.mappings = append(r.mappings, m)
	return true
}

func (r *Registry) unset(m portmap.Mapping) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.mappings)
	r.mappings = slices.DeleteFunc(r.mappings, func(existing portmap.Mapping) bool {
		return existing.Program == m.Program && existing.Version == m.Version
	})
	return len(r.mappings) != before
}

func (r *Registry) lookup(m portmap.Mapping) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.mappings {
		if existing.Program == m.Program && existing.Version == m.Version && existing.Protocol == m.Protocol {
			return existing.Port
		}
	}
	return 0
}
