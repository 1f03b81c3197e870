// Package portmap implements a client for the port mapper (portmap v2).
//
// The port mapper is the well-known RPC service that maps a
// (program, version, protocol) triple to the dynamic port serving it.
// Clients use it once during connection setup to find where a service such
// as the VXI-11 device core is listening.
//
// References:
//   - RFC 1833 Section 3 (Port Mapper Program Protocol, version 2)
//   - RFC 4506 (XDR: External Data Representation Standard)
package portmap

import "fmt"

// ============================================================================
// Port Mapper Program and Version
// ============================================================================

const (
	// Program is the port mapper RPC program number.
	Program uint32 = 100000

	// Version is the port mapper protocol version spoken by this client.
	Version uint32 = 2

	// Port is the well-known TCP and UDP port of the port mapper.
	Port = 111
)

// ============================================================================
// Procedure Numbers
// ============================================================================

const (
	// ProcNull does nothing; used to check the service is alive.
	ProcNull uint32 = 0

	// ProcSet registers a mapping. Returns true on success.
	ProcSet uint32 = 1

	// ProcUnset removes every mapping for (program, version). Protocol and
	// port are ignored. Returns true on success.
	ProcUnset uint32 = 2

	// ProcGetPort returns the port of (program, version, protocol), or 0
	// when no such service is registered.
	ProcGetPort uint32 = 3

	// ProcDump lists every registered mapping.
	ProcDump uint32 = 4

	// ProcCallIt calls a procedure of a registered program on the same
	// host without knowing its port.
	ProcCallIt uint32 = 5
)

// procedureNames labels procedures in logs and metrics.
var procedureNames = map[uint32]string{
	ProcNull:    "NULL",
	ProcSet:     "SET",
	ProcUnset:   "UNSET",
	ProcGetPort: "GETPORT",
	ProcDump:    "DUMP",
	ProcCallIt:  "CALLIT",
}

// ============================================================================
// Transport Protocols
// ============================================================================

// Protocol identifies the transport of a mapping by IP protocol number.
type Protocol uint32

const (
	ProtocolTCP Protocol = 6
	ProtocolUDP Protocol = 17
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return fmt.Sprintf("proto(%d)", uint32(p))
	}
}
