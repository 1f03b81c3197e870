package metrics

import "time"

// RPCMetrics provides observability for the ONC RPC client transport.
//
// Implementations can collect metrics about calls, their latency and
// outcome, bytes moved over the record-marked stream, and connection
// lifecycle. This interface is optional - if not provided to an RPC client,
// a no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewRPCMetrics()
//	client, err := rpc.Dial(ctx, addr, prog, vers, rpc.WithMetrics(m))
//
//	// Without metrics (no-op)
//	client, err := rpc.Dial(ctx, addr, prog, vers)
type RPCMetrics interface {
	// RecordCall records a completed RPC call.
	//
	// Parameters:
	//   - program: Program name (e.g., "portmap", "device_core")
	//   - procedure: Procedure name (e.g., "GETPORT", "DEVICE_WRITE")
	//   - duration: Time from sending the call to decoding the reply
	//   - err: Error if the call failed, nil if successful
	RecordCall(program string, procedure string, duration time.Duration, err error)

	// RecordBytesTransferred records bytes sent or received, including the
	// RPC headers but not the fragment headers.
	//
	// Parameters:
	//   - program: Program name
	//   - direction: "sent" or "received"
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(program string, direction string, bytes int)

	// RecordConnectionOpened increments the opened connections counter.
	RecordConnectionOpened(program string)

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed(program string)
}

// NewNoopRPCMetrics returns an RPCMetrics that discards everything.
func NewNoopRPCMetrics() RPCMetrics {
	return noopRPCMetrics{}
}

// noopRPCMetrics is a no-op implementation of RPCMetrics with zero overhead.
type noopRPCMetrics struct{}

func (noopRPCMetrics) RecordCall(program string, procedure string, duration time.Duration, err error) {
}
func (noopRPCMetrics) RecordBytesTransferred(program string, direction string, bytes int) {}
func (noopRPCMetrics) RecordConnectionOpened(program string)                             {}
func (noopRPCMetrics) RecordConnectionClosed(program string)                             {}
