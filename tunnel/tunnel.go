// Package tunnel implements the direct-tcpip channel (spec §4.7): a
// half-duplex-safe byte pipe on top of a multiplexed channel.
package tunnel

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/qt-creator/qtc-ssh/channel"
	"github.com/qt-creator/qtc-ssh/wire"
)

// Tunnel is a direct-tcpip forwarded connection: writes enter the
// channel's send buffer, CHANNEL_DATA becomes available to read (spec
// §4.7).
type Tunnel struct {
	ch  *channel.Channel
	log *logrus.Entry

	mu     sync.Mutex
	inbox  bytes.Buffer
	closed bool

	OnReadyRead func()
	OnClosed    func()
	OnError     func(err error)
}

// Open opens a direct-tcpip channel from (originatorHost, originatorPort)
// to (destHost, destPort), per RFC 4254 §7.2.
func Open(mgr *channel.Manager, destHost string, destPort uint32, originatorHost string, originatorPort uint32) (*Tunnel, error) {
	b := wire.NewBufferWithCapacity(64 + len(destHost) + len(originatorHost))
	b.AppendString(destHost)
	b.AppendUint32(destPort)
	b.AppendString(originatorHost)
	b.AppendUint32(originatorPort)

	ch, err := mgr.Open("direct-tcpip", channel.VariantDirectTCPIP, b.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "tunnel: open direct-tcpip channel")
	}

	tun := &Tunnel{ch: ch, log: logrus.NewEntry(logrus.StandardLogger())}
	ch.OnData = tun.handleData
	ch.OnExtendedData = func(dataType uint32, _ []byte) {
		tun.log.WithField("type", dataType).Warn("tunnel: unexpected extended data")
	}
	// OpenSSH sends EOF but does not close the channel when the remote
	// endpoint goes away; the tunnel must initiate close itself on
	// receipt of its own EOF (spec §4.7).
	ch.OnEOF = func() { _ = tun.Close() }
	ch.OnClose = tun.handleClosed

	return tun, nil
}

func (t *Tunnel) handleData(data []byte) {
	t.mu.Lock()
	t.inbox.Write(data)
	t.mu.Unlock()
	if t.OnReadyRead != nil {
		t.OnReadyRead()
	}
}

func (t *Tunnel) handleClosed() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	if t.OnClosed != nil {
		t.OnClosed()
	}
}

// Write sends data into the channel; the channel's own flow control
// buffers anything beyond the remote window.
func (t *Tunnel) Write(data []byte) (int, error) {
	return t.ch.Write(data)
}

// Read drains up to len(p) bytes received so far, mirroring io.Reader
// semantics but never blocking: callers are driven by OnReadyRead.
func (t *Tunnel) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inbox.Len() == 0 {
		if t.closed {
			return 0, errors.New("tunnel: closed")
		}
		return 0, nil
	}
	return t.inbox.Read(p)
}

// Close initiates the two-phase channel close.
func (t *Tunnel) Close() error { return t.ch.Close() }

// Channel returns the underlying multiplexed channel.
func (t *Tunnel) Channel() *channel.Channel { return t.ch }
