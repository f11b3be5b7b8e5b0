package tunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qt-creator/qtc-ssh/channel"
)

func newTestTunnel() (*Tunnel, *channel.Channel) {
	ch := &channel.Channel{}
	tun := &Tunnel{ch: ch}
	return tun, ch
}

func TestTunnelReadBuffersUntilDrained(t *testing.T) {
	tun, _ := newTestTunnel()

	tun.handleData([]byte("hello "))
	tun.handleData([]byte("world"))

	buf := make([]byte, 64)
	n, err := tun.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf[:n]))
}

func TestTunnelReadReturnsZeroWhenEmptyAndOpen(t *testing.T) {
	tun, _ := newTestTunnel()

	n, err := tun.Read(make([]byte, 8))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTunnelReadErrorsWhenEmptyAndClosed(t *testing.T) {
	tun, _ := newTestTunnel()

	tun.handleClosed()

	_, err := tun.Read(make([]byte, 8))
	assert.Error(t, err)
}

func TestTunnelOnReadyReadFiresOnData(t *testing.T) {
	tun, _ := newTestTunnel()

	fired := false
	tun.OnReadyRead = func() { fired = true }
	tun.handleData([]byte("x"))

	assert.True(t, fired)
}

func TestTunnelOnClosedFiresOnEachHandleClosed(t *testing.T) {
	tun, _ := newTestTunnel()

	count := 0
	tun.OnClosed = func() { count++ }
	tun.handleClosed()
	tun.handleClosed()

	assert.Equal(t, 2, count, "handleClosed itself is not idempotent; Manager guarantees single delivery of CLOSE")
}
