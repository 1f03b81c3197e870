package vxi11_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	wire "github.com/marmos91/vxi11/internal/protocol/vxi11"
	"github.com/marmos91/vxi11/internal/protocol/vxi11/vxi11test"
	"github.com/marmos91/vxi11/pkg/vxi11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

func testConfig(inst *vxi11test.Instrument) vxi11.Config {
	return vxi11.Config{
		PortmapPort:   inst.PortmapPort(),
		SocketTimeout: 5 * time.Second,
	}
}

func openDevice(t *testing.T, inst *vxi11test.Instrument, cfg vxi11.Config) *vxi11.Device {
	t.Helper()
	dev := vxi11.New(inst.Host(), cfg)
	require.NoError(t, dev.Open(context.Background()))
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func readReply(reason wire.Reason, data string) wire.ReadResp {
	return wire.ReadResp{Error: wire.ErrNone, Reason: reason, Data: []byte(data)}
}

// ============================================================================
// Open Tests
// ============================================================================

func TestOpen(t *testing.T) {
	t.Run("CreatesLinkWithDefaults", func(t *testing.T) {
		inst := vxi11test.New(t)
		dev := openDevice(t, inst, testConfig(inst))

		assert.Equal(t, vxi11.StateLinked, dev.State())

		links := inst.CreateLinks()
		require.Len(t, links, 1)
		assert.Equal(t, "inst0", links[0].Device)
		assert.False(t, links[0].LockDevice)
		assert.Equal(t, uint32(2000), links[0].LockTimeout)
		assert.Positive(t, links[0].ClientID)
	})

	t.Run("ClampsReportedMaxRecvSize", func(t *testing.T) {
		for _, tc := range []struct {
			name     string
			reported uint32
			want     uint32
		}{
			{"Small", 512, 512},
			{"NegativeOnTheWire", 0xfffffff0, vxi11.DefaultMaxRecvSize},
			{"Zero", 0, vxi11.DefaultMaxRecvSize},
		} {
			t.Run(tc.name, func(t *testing.T) {
				inst := vxi11test.New(t)
				inst.SetMaxRecvSize(tc.reported)
				dev := openDevice(t, inst, testConfig(inst))
				assert.Equal(t, tc.want, dev.MaxRecvSize())
			})
		}
	})

	t.Run("ServiceNotRegistered", func(t *testing.T) {
		inst := vxi11test.New(t)
		inst.Unregister()

		dev := vxi11.New(inst.Host(), testConfig(inst))
		err := dev.Open(context.Background())

		var notFound *vxi11.ServiceNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, 0, inst.Core.Connections(), "no device core connection attempted")
		assert.Equal(t, vxi11.StateUnopened, dev.State())
	})

	t.Run("CreateLinkDeviceError", func(t *testing.T) {
		inst := vxi11test.New(t)
		inst.FailCreateLink(wire.ErrInvalidAddress)

		dev := vxi11.New(inst.Host(), testConfig(inst))
		err := dev.Open(context.Background())

		var devErr *vxi11.DeviceError
		require.ErrorAs(t, err, &devErr)
		assert.Equal(t, vxi11.CodeInvalidAddress, devErr.Code)
		assert.Equal(t, vxi11.StateUnopened, dev.State())
	})

	t.Run("OpenTwice", func(t *testing.T) {
		inst := vxi11test.New(t)
		dev := openDevice(t, inst, testConfig(inst))

		var stateErr *vxi11.InvalidStateError
		assert.ErrorAs(t, dev.Open(context.Background()), &stateErr)
	})
}

// ============================================================================
// Write Tests
// ============================================================================

func TestWrite(t *testing.T) {
	t.Run("ChunksWithEndOnLast", func(t *testing.T) {
		inst := vxi11test.New(t)
		inst.SetMaxRecvSize(100)
		dev := openDevice(t, inst, testConfig(inst))

		msg := bytes.Repeat([]byte("x"), 3*100-1)
		require.NoError(t, dev.WriteBytes(context.Background(), msg))

		writes := inst.Writes()
		require.Len(t, writes, 3)
		assert.Len(t, writes[0].Data, 100)
		assert.Len(t, writes[1].Data, 100)
		assert.Len(t, writes[2].Data, 99)
		assert.Zero(t, writes[0].Flags&wire.FlagEnd)
		assert.Zero(t, writes[1].Flags&wire.FlagEnd)
		assert.Equal(t, wire.FlagEnd, writes[2].Flags&wire.FlagEnd)
		assert.Equal(t, uint32(2000), writes[0].IOTimeout)

		require.Len(t, inst.Messages(), 1)
		assert.Equal(t, msg, inst.Messages()[0])
	})

	t.Run("ExactMultipleHasNoEmptyTail", func(t *testing.T) {
		inst := vxi11test.New(t)
		inst.SetMaxRecvSize(4)
		dev := openDevice(t, inst, testConfig(inst))

		require.NoError(t, dev.Write(context.Background(), "ABCDEFGH"))
		writes := inst.Writes()
		require.Len(t, writes, 2)
		assert.Equal(t, wire.FlagEnd, writes[1].Flags&wire.FlagEnd)
	})

	t.Run("EmptyMessageSendsOneEndChunk", func(t *testing.T) {
		inst := vxi11test.New(t)
		dev := openDevice(t, inst, testConfig(inst))

		require.NoError(t, dev.Write(context.Background(), ""))
		writes := inst.Writes()
		require.Len(t, writes, 1)
		assert.Empty(t, writes[0].Data)
		assert.Equal(t, wire.FlagEnd, writes[0].Flags)
	})

	t.Run("ShortWriteStopsMessage", func(t *testing.T) {
		inst := vxi11test.New(t)
		inst.SetMaxRecvSize(10)
		inst.SetWriteHook(func(parms wire.WriteParms) (wire.WriteResp, bool) {
			return wire.WriteResp{Size: uint32(len(parms.Data)) - 1}, true
		})
		dev := openDevice(t, inst, testConfig(inst))

		err := dev.Write(context.Background(), "0123456789ABCDEFGHIJ")
		var shortErr *vxi11.ShortWriteError
		require.ErrorAs(t, err, &shortErr)
		assert.Equal(t, 10, shortErr.Sent)
		assert.Equal(t, uint32(9), shortErr.Accepted)
		assert.Len(t, inst.Writes(), 1, "remaining chunks are not sent")
		assert.True(t, vxi11.IsDeviceError(err))
	})

	t.Run("DeviceErrorKeepsLinkUsable", func(t *testing.T) {
		inst := vxi11test.New(t)
		failed := false
		inst.SetWriteHook(func(parms wire.WriteParms) (wire.WriteResp, bool) {
			if failed {
				return wire.WriteResp{}, false
			}
			failed = true
			return wire.WriteResp{Error: wire.ErrIOTimeout}, true
		})
		dev := openDevice(t, inst, testConfig(inst))

		err := dev.Write(context.Background(), "*RST")
		var devErr *vxi11.DeviceError
		require.ErrorAs(t, err, &devErr)
		assert.Equal(t, vxi11.CodeIOTimeout, devErr.Code)

		require.NoError(t, dev.Write(context.Background(), "*CLS"))
	})
}

// ============================================================================
// Read Tests
// ============================================================================

func TestRead(t *testing.T) {
	t.Run("AccumulatesUntilEnd", func(t *testing.T) {
		inst := vxi11test.New(t)
		inst.ScriptReads(
			readReply(wire.ReasonRequestCount, "first,"),
			readReply(0, "second,"),
			readReply(wire.ReasonEnd, "third\n"),
		)
		dev := openDevice(t, inst, testConfig(inst))

		data, err := dev.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "first,second,third\n", string(data))
		assert.Len(t, inst.Reads(), 3)
	})

	t.Run("RequestSizeIsMaxRecvSize", func(t *testing.T) {
		inst := vxi11test.New(t)
		inst.SetMaxRecvSize(8)
		dev := openDevice(t, inst, testConfig(inst))

		data, err := dev.Ask(context.Background(), "*IDN?")
		require.NoError(t, err)
		assert.Equal(t, vxi11test.IDN, string(data))

		reads := inst.Reads()
		assert.Len(t, reads, (len(vxi11test.IDN)+7)/8)
		for _, r := range reads {
			assert.Equal(t, uint32(8), r.RequestSize)
			assert.Zero(t, r.Flags)
		}
	})

	t.Run("TermCharCompletes", func(t *testing.T) {
		inst := vxi11test.New(t)
		cfg := testConfig(inst)
		cfg.TermChar = ','
		cfg.TermCharEnabled = true
		dev := openDevice(t, inst, cfg)

		data, err := dev.Ask(context.Background(), "*IDN?")
		require.NoError(t, err)
		assert.Equal(t, "VXI11TEST,", string(data))

		reads := inst.Reads()
		require.Len(t, reads, 1)
		assert.Equal(t, wire.FlagTermCharSet, reads[0].Flags)
		assert.Equal(t, int32(','), reads[0].TermChar)
	})

	t.Run("DeviceErrorAborts", func(t *testing.T) {
		inst := vxi11test.New(t)
		inst.ScriptReads(
			readReply(0, "partial"),
			wire.ReadResp{Error: wire.ErrIOError},
		)
		dev := openDevice(t, inst, testConfig(inst))

		_, err := dev.Read(context.Background())
		var devErr *vxi11.DeviceError
		require.ErrorAs(t, err, &devErr)
		assert.Equal(t, vxi11.CodeIOError, devErr.Code)
	})

	t.Run("ResponseTooLarge", func(t *testing.T) {
		inst := vxi11test.New(t)
		inst.ScriptReads(
			readReply(0, "0123456789"),
			readReply(wire.ReasonEnd, "0123456789"),
		)
		cfg := testConfig(inst)
		cfg.MaxResponseSize = 15
		dev := openDevice(t, inst, cfg)

		_, err := dev.Read(context.Background())
		assert.ErrorIs(t, err, vxi11.ErrResponseTooLarge)
	})
}

// ============================================================================
// Lifecycle Tests
// ============================================================================

func TestInvalidState(t *testing.T) {
	inst := vxi11test.New(t)
	ctx := context.Background()
	dev := vxi11.New(inst.Host(), testConfig(inst))

	var stateErr *vxi11.InvalidStateError

	require.ErrorAs(t, dev.Write(ctx, "*RST"), &stateErr)
	assert.Equal(t, vxi11.StateUnopened, stateErr.State)
	_, err := dev.Read(ctx)
	require.ErrorAs(t, err, &stateErr)

	require.NoError(t, dev.Open(ctx))
	require.NoError(t, dev.Close())

	require.ErrorAs(t, dev.Write(ctx, "*RST"), &stateErr)
	assert.Equal(t, vxi11.StateClosed, stateErr.State)
	_, err = dev.Ask(ctx, "*IDN?")
	require.ErrorAs(t, err, &stateErr)
	require.ErrorAs(t, dev.Trigger(ctx), &stateErr)
	require.ErrorAs(t, dev.Open(ctx), &stateErr)

	assert.NoError(t, dev.Close(), "closing again is a no-op")
	assert.Equal(t, 1, inst.DestroyCount())
}

func TestCloseDestroysLinkOnce(t *testing.T) {
	t.Run("AfterFailedWrite", func(t *testing.T) {
		inst := vxi11test.New(t)
		inst.SetWriteHook(func(parms wire.WriteParms) (wire.WriteResp, bool) {
			return wire.WriteResp{Size: 0}, true
		})
		dev := vxi11.New(inst.Host(), testConfig(inst))
		require.NoError(t, dev.Open(context.Background()))

		require.Error(t, dev.Write(context.Background(), "*RST"))
		require.NoError(t, dev.Close())

		assert.Equal(t, 1, inst.DestroyCount())
		assert.Zero(t, inst.OpenLinks())
	})

	t.Run("AfterFailedRead", func(t *testing.T) {
		inst := vxi11test.New(t)
		dev := vxi11.New(inst.Host(), testConfig(inst))
		require.NoError(t, dev.Open(context.Background()))

		_, err := dev.Read(context.Background())
		require.Error(t, err, "nothing to read times out on the device")
		require.NoError(t, dev.Close())

		assert.Equal(t, 1, inst.DestroyCount())
	})

	t.Run("TransportClosedAnyway", func(t *testing.T) {
		inst := vxi11test.New(t)
		dev := vxi11.New(inst.Host(), testConfig(inst))
		require.NoError(t, dev.Open(context.Background()))

		inst.Core.Close()
		_ = dev.Close()
		assert.Equal(t, vxi11.StateClosed, dev.State())
	})
}

// ============================================================================
// Device Control Tests
// ============================================================================

func TestDeviceControl(t *testing.T) {
	inst := vxi11test.New(t)
	ctx := context.Background()
	dev := openDevice(t, inst, testConfig(inst))

	inst.SetSTB(0x40)
	stb, err := dev.ReadSTB(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x40), stb)

	require.NoError(t, dev.Trigger(ctx))
	require.NoError(t, dev.Remote(ctx))
	require.NoError(t, dev.Local(ctx))
	assert.Equal(t, 1, inst.CallCount(wire.ProcDeviceTrigger))
	assert.Equal(t, 1, inst.CallCount(wire.ProcDeviceRemote))
	assert.Equal(t, 1, inst.CallCount(wire.ProcDeviceLocal))

	t.Run("ClearDropsPendingOutput", func(t *testing.T) {
		require.NoError(t, dev.Write(ctx, "*IDN?"))
		require.NoError(t, dev.Clear(ctx))

		_, err := dev.Read(ctx)
		var devErr *vxi11.DeviceError
		require.ErrorAs(t, err, &devErr)
		assert.Equal(t, vxi11.CodeIOTimeout, devErr.Code)
	})

	t.Run("LockContention", func(t *testing.T) {
		other := openDevice(t, inst, testConfig(inst))

		err := dev.Unlock(ctx)
		var devErr *vxi11.DeviceError
		require.ErrorAs(t, err, &devErr)
		assert.Equal(t, vxi11.CodeNoLockHeld, devErr.Code)

		require.NoError(t, dev.Lock(ctx))
		err = other.Lock(ctx)
		require.ErrorAs(t, err, &devErr)
		assert.Equal(t, vxi11.CodeDeviceLocked, devErr.Code)

		require.NoError(t, dev.Unlock(ctx))
		require.NoError(t, other.Lock(ctx))
	})
}

// ============================================================================
// Pacing Tests
// ============================================================================

func TestCommandPacing(t *testing.T) {
	inst := vxi11test.New(t)
	cfg := testConfig(inst)
	cfg.CommandRate = 20
	cfg.CommandBurst = 1
	dev := openDevice(t, inst, cfg)
	ctx := context.Background()

	require.NoError(t, dev.Write(ctx, "A"))
	start := time.Now()
	require.NoError(t, dev.Write(ctx, "B"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := dev.Write(cancelled, "C")
	assert.ErrorIs(t, err, context.Canceled)
}
