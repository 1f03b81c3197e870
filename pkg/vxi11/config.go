package vxi11

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/vxi11/internal/protocol/portmap"
	"github.com/marmos91/vxi11/pkg/metrics"
)

const (
	// DefaultDeviceName is the logical device of a LAN instrument.
	DefaultDeviceName = "inst0"

	// DefaultIOTimeout is the io_timeout sent with every I/O request.
	DefaultIOTimeout = 2 * time.Second

	// DefaultLockTimeout is the lock_timeout sent with every request.
	DefaultLockTimeout = 2 * time.Second

	// DefaultMaxRecvSize caps the max_recv_size reported by CREATE_LINK.
	DefaultMaxRecvSize = 16 * 1024

	// DefaultMaxResponseSize bounds the bytes accumulated by one Read.
	DefaultMaxResponseSize = 64 << 20
)

// Config describes how a Device links to an instrument.
//
// The zero value is usable: ApplyDefaults fills in every unset field.
type Config struct {
	// Name is the logical device name, e.g. "inst0" or "gpib0,5".
	Name string

	// ClientID is sent with CREATE_LINK. Zero derives a random 31-bit id.
	ClientID int32

	// LockDevice requests an exclusive lock when the link is created.
	LockDevice bool

	// LockTimeout is how long the instrument waits for a lock held by
	// another link. Sent in milliseconds.
	LockTimeout time.Duration

	// IOTimeout bounds each device operation on the instrument side.
	// Sent in milliseconds.
	IOTimeout time.Duration

	// SocketTimeout is a local deadline on every RPC. Zero waits forever.
	SocketTimeout time.Duration

	// DialTimeout bounds TCP connection establishment.
	DialTimeout time.Duration

	// MaxRecvSize is the ceiling applied to the instrument's reported
	// max_recv_size. Chunks sent and requested never exceed it.
	MaxRecvSize uint32

	// MaxResponseSize bounds one Read. Zero selects DefaultMaxResponseSize.
	MaxResponseSize int

	// TermChar ends reads early when TermCharEnabled is set.
	TermChar        byte
	TermCharEnabled bool

	// PortmapPort is the port mapper's TCP port. Zero selects 111.
	PortmapPort int

	// CommandRate paces Write calls (commands per second). Zero disables
	// pacing. CommandBurst is the number of commands allowed back to back.
	CommandRate  float64
	CommandBurst int

	RPCMetrics    metrics.RPCMetrics
	DeviceMetrics metrics.DeviceMetrics
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = DefaultDeviceName
	}
	if c.ClientID == 0 {
		c.ClientID = deriveClientID()
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = DefaultIOTimeout
	}
	if c.MaxRecvSize == 0 {
		c.MaxRecvSize = DefaultMaxRecvSize
	}
	if c.MaxResponseSize <= 0 {
		c.MaxResponseSize = DefaultMaxResponseSize
	}
	if c.PortmapPort == 0 {
		c.PortmapPort = portmap.Port
	}
	if c.RPCMetrics == nil {
		c.RPCMetrics = metrics.NewNoopRPCMetrics()
	}
	if c.DeviceMetrics == nil {
		c.DeviceMetrics = metrics.NewNoopDeviceMetrics()
	}
}

// deriveClientID returns a random non-zero 31-bit identifier.
func deriveClientID() int32 {
	id := uuid.New()
	v := int32(binary.BigEndian.Uint32(id[:4]) & 0x7fffffff)
	if v == 0 {
		v = 1
	}
	return v
}

// millis converts d to the millisecond timeouts carried on the wire.
func millis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms < 0:
		return 0
	case ms > int64(^uint32(0)):
		return ^uint32(0)
	default:
		return uint32(ms)
	}
}
