package metrics

import "time"

// DeviceMetrics provides observability for VXI-11 device sessions.
//
// It complements RPCMetrics with instrument-level information: how many
// logical messages were written and read, how many chunks each needed,
// and which device error codes the instrument returned.
type DeviceMetrics interface {
	// RecordOperation records a completed device operation.
	//
	// Parameters:
	//   - operation: "open", "write", "read", "ask", "close", ...
	//   - duration: Time taken by the whole operation
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordTransfer records one logical message moved over the link.
	//
	// Parameters:
	//   - direction: "write" or "read"
	//   - bytes: Message length
	//   - chunks: Number of DEVICE_WRITE or DEVICE_READ calls it took
	RecordTransfer(direction string, bytes int, chunks int)

	// RecordDeviceError counts a non-zero device error code.
	RecordDeviceError(code string)

	// AddActiveLinks adjusts the number of open device links by delta.
	AddActiveLinks(delta int)
}

// NewNoopDeviceMetrics returns a DeviceMetrics that discards everything.
func NewNoopDeviceMetrics() DeviceMetrics {
	return noopDeviceMetrics{}
}

type noopDeviceMetrics struct{}

func (noopDeviceMetrics) RecordOperation(operation string, duration time.Duration, err error) {}
func (noopDeviceMetrics) RecordTransfer(direction string, bytes int, chunks int)             {}
func (noopDeviceMetrics) RecordDeviceError(code string)                                      {}
func (noopDeviceMetrics) AddActiveLinks(delta int)                                           {}
