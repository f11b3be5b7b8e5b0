// Package channel implements the SSH-2 channel multiplexer (spec §4.5):
// window/flow-control accounting, the open/close lifecycle, and
// data/extended-data/request dispatch for independent logical streams
// sharing one transport.
package channel

import (
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultMaxPacketSize bounds a single CHANNEL_DATA/EXTENDED_DATA payload
// this side will accept, and is also used as the initial local window
// (spec §3 Data Model: "a local receive window (initial = max packet
// size)").
const DefaultMaxPacketSize = 32768

// State is the per-channel lifecycle state machine (spec §3).
type State int

const (
	StateInactive State = iota
	StateSessionRequested
	StateSessionEstablished
	StateCloseRequested
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "Inactive"
	case StateSessionRequested:
		return "SessionRequested"
	case StateSessionEstablished:
		return "SessionEstablished"
	case StateCloseRequested:
		return "CloseRequested"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Variant tags the channel-behavior capability set a channel was opened
// for (spec §9): which hooks the owner is expected to have wired.
type Variant string

const (
	VariantSessionProcess Variant = "session-process"
	VariantSessionShell   Variant = "session-shell"
	VariantSessionSFTP    Variant = "session-sftp"
	VariantDirectTCPIP    Variant = "direct-tcpip"
)

// Channel is one multiplexed logical stream (spec §3, §4.5). Callers
// obtain a Channel from Manager.Open and register hooks before traffic
// starts flowing; all hook invocations happen on the transport's read
// loop goroutine, so hooks must not block.
type Channel struct {
	mgr     *Manager
	id      uint32
	variant Variant
	log     *logrus.Entry

	mu                  sync.Mutex
	remoteID            uint32
	localWindow         uint32
	localMaxPacketSize  uint32
	remoteWindow        uint32
	remoteMaxPacketSize uint32
	state               State
	sendBuf             bytes.Buffer

	openResult chan error
	closed     chan struct{}

	requestReplies []chan bool

	// Hooks. Nil is a valid "no-op" value for any of these.
	OnData         func(data []byte)
	OnExtendedData func(dataType uint32, data []byte)
	OnEOF          func()
	OnClose        func()
	OnRequest      func(requestType string, wantReply bool, data []byte) bool
}

// ID returns the channel's locally assigned id.
func (c *Channel) ID() uint32 { return c.id }

// Variant returns the behavior-capability tag the channel was opened
// with.
func (c *Channel) Variant() Variant { return c.variant }

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Write queues data for the remote peer, flushing as much as the current
// remote window and max-packet-size allow; the remainder sits in the
// per-channel send buffer until WINDOW_ADJUST arrives (spec §4.5, §5
// "oversize sends are held in an in-memory per-channel queue").
func (c *Channel) Write(data []byte) (int, error) {
	c.mu.Lock()
	c.sendBuf.Write(data)
	c.mu.Unlock()
	if err := c.flushLocked(); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (c *Channel) flushLocked() error {
	for {
		c.mu.Lock()
		if c.state != StateSessionEstablished || c.sendBuf.Len() == 0 || c.remoteWindow == 0 {
			c.mu.Unlock()
			return nil
		}
		n := c.remoteWindow
		if maxN := c.remoteMaxPacketSize; maxN > 0 && maxN < n {
			n = maxN
		}
		if buffered := uint32(c.sendBuf.Len()); buffered < n {
			n = buffered
		}
		chunk := make([]byte, n)
		c.sendBuf.Read(chunk)
		c.remoteWindow -= n
		remoteID := c.remoteID
		c.mu.Unlock()

		if err := c.mgr.sendData(remoteID, chunk); err != nil {
			return err
		}
	}
}

// SendRequest issues a CHANNEL_REQUEST. If wantReply, it blocks until the
// matching CHANNEL_SUCCESS/FAILURE arrives (channel requests are answered
// strictly in the order they were sent, RFC 4254 §4) and returns whether
// the server accepted it.
func (c *Channel) SendRequest(requestType string, wantReply bool, data []byte) (bool, error) {
	var wait chan bool
	if wantReply {
		wait = make(chan bool, 1)
		c.mu.Lock()
		c.requestReplies = append(c.requestReplies, wait)
		remoteID := c.remoteID
		c.mu.Unlock()
		if err := c.mgr.sendChannelRequest(remoteID, requestType, wantReply, data); err != nil {
			return false, err
		}
		select {
		case ok := <-wait:
			return ok, nil
		case <-c.closed:
			return false, errChannelClosed
		}
	}
	c.mu.Lock()
	remoteID := c.remoteID
	c.mu.Unlock()
	return true, c.mgr.sendChannelRequest(remoteID, requestType, wantReply, data)
}

// EOF sends CHANNEL_EOF, signalling no more data will be written.
func (c *Channel) EOF() error {
	c.mu.Lock()
	remoteID := c.remoteID
	c.mu.Unlock()
	return c.mgr.sendEOF(remoteID)
}

// Close begins the two-phase close (spec §4.5): EOF, then CLOSE, entering
// CloseRequested until the server's own CLOSE confirms teardown.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateCloseRequested {
		c.mu.Unlock()
		return nil
	}
	c.state = StateCloseRequested
	remoteID := c.remoteID
	c.mu.Unlock()

	_ = c.mgr.sendEOF(remoteID)
	return c.mgr.sendClose(remoteID)
}

// Done returns a channel closed once this Channel reaches StateClosed.
func (c *Channel) Done() <-chan struct{} { return c.closed }
