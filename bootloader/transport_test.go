package bootloader

import (
	"context"
	"testing"
	"time"

	"github.com/arloliu/go-picloader/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Success cases ---

func TestExchange_FixedLength(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))

	go func() {
		req := readRequest(t, remote, 0)
		assert.Equal(t, CmdReadConfig, req.Command())
		assert.Equal(t, uint16(4), req.DataLength())
		assert.Equal(t, uint32(0x0005), req.Address())

		// the device echoes the request header, dataLength included
		respond(t, remote, CmdReadConfig, []byte{0x42, 0x20, 0xB0, 0x30})
	}()

	req := NewFrame(CmdReadConfig)
	req.SetAddress(0x0005)
	req.SetDataLength(4)

	resp, err := tr.Exchange(context.Background(), req, 4)
	require.NoError(t, err)
	assert.Equal(t, CmdReadConfig, resp.Command())
	assert.Equal(t, []byte{0x42, 0x20, 0xB0, 0x30}, resp.Payload)

	m := tr.Metrics()
	assert.Equal(t, uint64(1), m.ExchangeCount.Load())
	assert.Equal(t, uint64(1+HeaderSize), m.BytesSent.Load())
	assert.Equal(t, uint64(1+HeaderSize+4), m.BytesRecv.Load())
	assert.Equal(t, int64(1), m.CommandCount(CmdReadConfig))
}

func TestExchange_LengthFromHeader(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))

	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}

	go func() {
		readRequest(t, remote, 0)
		respond(t, remote, CmdReadFlash, data)
	}()

	req := NewFrame(CmdReadFlash)
	req.SetDataLength(16)

	resp, err := tr.Exchange(context.Background(), req, UnknownLength)
	require.NoError(t, err)
	assert.Equal(t, data, resp.Payload)
}

func TestExchange_WritesPayload(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))

	payload := []byte{0xFF, 0x3F, 0xC0, 0x3F, 0x0A, 0x18, 0xFF, 0x3F}

	go func() {
		req := readRequest(t, remote, len(payload))
		assert.True(t, req.HasEraseWriteKey())
		assert.Equal(t, payload, req.Payload)
		respond(t, remote, CmdWriteConfig, []byte{byte(StatusSuccess)})
	}()

	req := NewFrame(CmdWriteConfig)
	req.SetEraseWriteKey()
	req.SetPayload(payload)

	resp, err := tr.Exchange(context.Background(), req, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(StatusSuccess)}, resp.Payload)
}

func TestExchange_DrainsTail(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t, WithTailTimeout(50*time.Millisecond)))

	go func() {
		readRequest(t, remote, 0)
		respond(t, remote, CmdResetDevice, []byte{byte(StatusSuccess)}, 0x00, 0xFF, 0x00)

		readRequest(t, remote, 0)
		respond(t, remote, CmdResetDevice, []byte{byte(StatusSuccess)})
	}()

	for i := 0; i < 2; i++ {
		resp, err := tr.Exchange(context.Background(), NewFrame(CmdResetDevice), 1)
		require.NoError(t, err, "exchange %d", i)
		assert.Equal(t, []byte{byte(StatusSuccess)}, resp.Payload)
	}

	assert.Equal(t, uint64(3), tr.Metrics().TailBytes.Load())
}

func TestExchange_ExtraTimeout(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))

	go func() {
		readRequest(t, remote, 0)
		time.Sleep(80 * time.Millisecond) // beyond the 50ms base timeout
		respond(t, remote, CmdEraseFlash, []byte{byte(StatusSuccess)})
	}()

	req := NewFrame(CmdEraseFlash)
	_, err := tr.Exchange(context.Background(), req, 1, WithExtraTimeout(200*time.Millisecond))
	require.NoError(t, err)
}

// --- Failure cases ---

func TestExchange_SyncMismatch(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))

	go func() {
		readRequest(t, remote, 0)
		_, err := remote.Write([]byte{0x00})
		assert.NoError(t, err)
	}()

	_, err := tr.Exchange(context.Background(), NewFrame(CmdReadVersion), VersionResponseSize)
	require.ErrorIs(t, err, ErrSyncMismatch)
	assert.True(t, IsTransportError(err))
	assert.False(t, IsProtocolError(err))
	assert.Equal(t, uint64(1), tr.Metrics().FailureCount.Load())
}

func TestExchange_ReadTimeout(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))

	go func() {
		readRequest(t, remote, 0) // and never answer
	}()

	start := time.Now()
	_, err := tr.Exchange(context.Background(), NewFrame(CmdReadVersion), VersionResponseSize)
	require.ErrorIs(t, err, ErrReadTimeout)
	assert.True(t, IsTransportError(err))
	assert.Less(t, time.Since(start), time.Second)

	m := tr.Metrics()
	assert.Equal(t, uint64(1), m.FailureCount.Load())
	assert.Equal(t, uint64(1), m.TimeoutCount.Load())
}

func TestExchange_TruncatedPayload(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))

	go func() {
		readRequest(t, remote, 0)
		// header promises 4 bytes, only 2 arrive
		resp := NewFrame(CmdReadConfig)
		resp.SetDataLength(4)
		buf := append([]byte{SyncByte}, resp.Pack()...)
		buf = append(buf, 0x01, 0x02)
		_, err := remote.Write(buf)
		assert.NoError(t, err)
	}()

	req := NewFrame(CmdReadConfig)
	req.SetDataLength(4)

	_, err := tr.Exchange(context.Background(), req, 4)
	require.ErrorIs(t, err, ErrReadTimeout)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "read payload", te.Op)
}

func TestExchange_UnexpectedCommand(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))

	go func() {
		readRequest(t, remote, 0)
		respond(t, remote, CmdReadFlash, []byte{0x01})
	}()

	_, err := tr.Exchange(context.Background(), NewFrame(CmdResetDevice), 1)
	require.ErrorIs(t, err, ErrUnexpectedCommand)
	assert.True(t, IsProtocolError(err))
	assert.True(t, IsLinkError(err))
}

func TestExchange_PayloadTooLong(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))

	go func() {
		readRequest(t, remote, 0)
		resp := NewFrame(CmdReadFlash)
		resp.SetDataLength(MaxPayloadSize + 1)
		_, err := remote.Write(append([]byte{SyncByte}, resp.Pack()...))
		assert.NoError(t, err)
	}()

	_, err := tr.Exchange(context.Background(), NewFrame(CmdReadFlash), UnknownLength)
	require.ErrorIs(t, err, ErrPayloadTooLong)
	assert.True(t, IsProtocolError(err))
}

func TestExchange_SyncWriteFailed(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))
	require.NoError(t, remote.Close())

	_, err := tr.Exchange(context.Background(), NewFrame(CmdReadVersion), VersionResponseSize)
	require.ErrorIs(t, err, ErrSyncWriteFailed)
	assert.True(t, IsTransportError(err))
}

func TestExchange_WriteTimeout(t *testing.T) {
	tr, remote := newTestTransport(t, newTestConfig(t))

	go func() {
		// take the sync byte, then stop reading
		readExactly(t, remote, 1)
	}()

	_, err := tr.Exchange(context.Background(), NewFrame(CmdReadVersion), VersionResponseSize)
	require.ErrorIs(t, err, ErrWriteFailed)
}

func TestExchange_ContextCancelled(t *testing.T) {
	tr, _ := newTestTransport(t, newTestConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Exchange(ctx, NewFrame(CmdReadVersion), VersionResponseSize)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), tr.Metrics().BytesSent.Load())
}

func TestExchange_InvalidResponseLength(t *testing.T) {
	tr, _ := newTestTransport(t, newTestConfig(t))

	_, err := tr.Exchange(context.Background(), NewFrame(CmdReadFlash), MaxPayloadSize+1)
	require.ErrorIs(t, err, ErrInvalidLength)
}

// --- Diagnostics ---

func TestExchange_QuietLogsAtDebug(t *testing.T) {
	ml := logger.NewMockLogger()
	ml.On("Debug", "bootloader: exchange failed", mock.Anything).Once()

	tr, remote := newTestTransport(t, newTestConfig(t, WithLogger(ml)))

	go func() {
		readRequest(t, remote, 0)
		_, _ = remote.Write([]byte{0x00})
	}()

	req := NewFrame(CmdWriteFlash)
	_, err := tr.Exchange(context.Background(), req, 1, Quietly())
	require.Error(t, err)

	ml.AssertExpectations(t)
	ml.AssertNotCalled(t, "Error", mock.Anything, mock.Anything)
}

func TestExchange_LoudLogsAtError(t *testing.T) {
	ml := logger.NewMockLogger()
	ml.On("Error", "bootloader: exchange failed", mock.Anything).Once()

	tr, remote := newTestTransport(t, newTestConfig(t, WithLogger(ml)))

	go func() {
		readRequest(t, remote, 0)
		_, _ = remote.Write([]byte{0x00})
	}()

	_, err := tr.Exchange(context.Background(), NewFrame(CmdWriteFlash), 1)
	require.Error(t, err)

	ml.AssertExpectations(t)
}
