package channel

import (
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qt-creator/qtc-ssh/transport"
	"github.com/qt-creator/qtc-ssh/wire"
)

// nopStream is a transport.Stream that never blocks: reads report EOF
// immediately (nothing in these tests drives the transport's read loop)
// and writes are accepted and discarded, letting Manager.Open's outbound
// CHANNEL_OPEN succeed without a real socket.
type nopStream struct{}

func (nopStream) Read(p []byte) (int, error)  { return 0, io.EOF }
func (nopStream) Write(p []byte) (int, error) { return len(p), nil }
func (nopStream) Close() error                { return nil }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	tr := transport.New(nopStream{}, transport.Config{ReplyTimeout: time.Second})
	return NewManager(tr, nil, 200*time.Millisecond)
}

func TestManagerOpenConfirmation(t *testing.T) {
	mgr := newTestManager(t)

	type openResult struct {
		ch  *Channel
		err error
	}
	done := make(chan openResult, 1)
	go func() {
		ch, err := mgr.Open("session", VariantSessionProcess, nil)
		done <- openResult{ch, err}
	}()

	require.Eventually(t, func() bool {
		_, ok := mgr.lookup(0)
		return ok
	}, time.Second, time.Millisecond)

	b := wire.NewBufferWithCapacity(16)
	b.AppendUint32(0)     // local channel id
	b.AppendUint32(7)     // remote channel id
	b.AppendUint32(65536) // remote window
	b.AppendUint32(32768) // remote max packet size
	require.NoError(t, mgr.handleOpenConfirmation(b.Bytes()))

	res := <-done
	require.NoError(t, res.err)
	require.NotNil(t, res.ch)
	assert.Equal(t, StateSessionEstablished, res.ch.State())
}

func TestManagerOpenFailure(t *testing.T) {
	mgr := newTestManager(t)

	errc := make(chan error, 1)
	go func() {
		_, err := mgr.Open("session", VariantSessionProcess, nil)
		errc <- err
	}()

	require.Eventually(t, func() bool {
		_, ok := mgr.lookup(0)
		return ok
	}, time.Second, time.Millisecond)

	b := wire.NewBufferWithCapacity(32)
	b.AppendUint32(0) // local channel id
	b.AppendUint32(1) // reason
	b.AppendString("denied")
	require.NoError(t, mgr.handleOpenFailure(b.Bytes()))

	err := <-errc
	require.Error(t, err)
	var openErr *OpenError
	require.True(t, stderrors.As(err, &openErr))
	assert.Equal(t, "denied", openErr.Description)

	_, stillTracked := mgr.lookup(0)
	assert.False(t, stillTracked)
}

func TestManagerWindowAdjust(t *testing.T) {
	mgr := newTestManager(t)

	c := &Channel{
		mgr:          mgr,
		id:           5,
		log:          mgr.log,
		state:        StateSessionEstablished,
		closed:       make(chan struct{}),
		remoteID:     9,
		remoteWindow: 0,
	}
	mgr.mu.Lock()
	mgr.channels[5] = c
	mgr.mu.Unlock()

	b := wire.NewBufferWithCapacity(8)
	b.AppendUint32(5)
	b.AppendUint32(1000)
	require.NoError(t, mgr.handleWindowAdjust(b.Bytes()))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, uint32(1000), c.remoteWindow)
}

func TestManagerDataDeliversToHook(t *testing.T) {
	mgr := newTestManager(t)

	var received []byte
	c := &Channel{
		mgr:                mgr,
		id:                 2,
		log:                mgr.log,
		state:              StateSessionEstablished,
		closed:             make(chan struct{}),
		localWindow:        DefaultMaxPacketSize,
		localMaxPacketSize: DefaultMaxPacketSize,
		OnData:             func(data []byte) { received = append([]byte(nil), data...) },
	}
	mgr.mu.Lock()
	mgr.channels[2] = c
	mgr.mu.Unlock()

	b := wire.NewBufferWithCapacity(32)
	b.AppendUint32(2)
	b.AppendBytes([]byte("hello"))
	require.NoError(t, mgr.handleData(b.Bytes()))

	assert.Equal(t, "hello", string(received))
}

func TestManagerDataRejectsInactiveChannel(t *testing.T) {
	mgr := newTestManager(t)

	c := &Channel{mgr: mgr, id: 4, log: mgr.log, state: StateInactive, closed: make(chan struct{})}
	mgr.mu.Lock()
	mgr.channels[4] = c
	mgr.mu.Unlock()

	b := wire.NewBufferWithCapacity(16)
	b.AppendUint32(4)
	b.AppendBytes([]byte("x"))
	assert.Error(t, mgr.handleData(b.Bytes()))
}

func TestManagerCloseAllInvokesOnClose(t *testing.T) {
	mgr := newTestManager(t)

	closed := false
	c := &Channel{
		mgr:     mgr,
		id:      1,
		log:     mgr.log,
		state:   StateSessionEstablished,
		closed:  make(chan struct{}),
		OnClose: func() { closed = true },
	}
	mgr.mu.Lock()
	mgr.channels[1] = c
	mgr.mu.Unlock()

	mgr.CloseAll()

	assert.True(t, closed)
	assert.Equal(t, StateClosed, c.State())
	_, ok := mgr.lookup(1)
	assert.False(t, ok)
}
