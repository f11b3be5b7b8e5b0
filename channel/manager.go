package channel

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/qt-creator/qtc-ssh/transport"
	"github.com/qt-creator/qtc-ssh/wire"
)

// SSH connection-protocol message numbers not already named in transport
// (kept local since only this package needs them by name).
const (
	msgChannelOpen             = transport.MsgChannelOpen
	msgChannelOpenConfirmation = transport.MsgChannelOpenConfirmation
	msgChannelOpenFailure      = transport.MsgChannelOpenFailure
	msgChannelWindowAdjust     = transport.MsgChannelWindowAdjust
	msgChannelData             = transport.MsgChannelData
	msgChannelExtendedData     = transport.MsgChannelExtendedData
	msgChannelEOF              = transport.MsgChannelEOF
	msgChannelClose            = transport.MsgChannelClose
	msgChannelRequest          = transport.MsgChannelRequest
	msgChannelSuccess          = transport.MsgChannelSuccess
	msgChannelFailure          = transport.MsgChannelFailure
)

var (
	errChannelClosed = errors.New("channel: closed")
	errOpenTimeout   = errors.New("channel: open-confirmation reply timeout")
)

// OpenError wraps an OPEN_FAILURE (spec §4.5, §7 channel-level errors).
type OpenError struct {
	Reason      uint32
	Description string
}

func (e *OpenError) Error() string { return "channel: open failed: " + e.Description }

// Manager multiplexes channels over a single transport.Transport (spec
// §4.5). It exclusively owns the channel table; callers hold *Channel
// handles that reference entries by id.
type Manager struct {
	t            *transport.Transport
	log          *logrus.Entry
	replyTimeout time.Duration

	mu       sync.Mutex
	channels map[uint32]*Channel
	nextID   uint32
}

// NewManager registers the connection-protocol message handlers on t and
// returns a Manager ready to open channels. Call after userauth succeeds
// and BeginMultiplexing has started the transport's read loop.
func NewManager(t *transport.Transport, log *logrus.Entry, replyTimeout time.Duration) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if replyTimeout == 0 {
		replyTimeout = 10 * time.Second
	}
	m := &Manager{t: t, log: log, replyTimeout: replyTimeout, channels: make(map[uint32]*Channel)}
	t.OnMessage(msgChannelOpenConfirmation, m.handleOpenConfirmation)
	t.OnMessage(msgChannelOpenFailure, m.handleOpenFailure)
	t.OnMessage(msgChannelWindowAdjust, m.handleWindowAdjust)
	t.OnMessage(msgChannelData, m.handleData)
	t.OnMessage(msgChannelExtendedData, m.handleExtendedData)
	t.OnMessage(msgChannelEOF, m.handleEOF)
	t.OnMessage(msgChannelClose, m.handleClose)
	t.OnMessage(msgChannelRequest, m.handleRequest)
	t.OnMessage(msgChannelSuccess, m.handleChannelSuccess)
	t.OnMessage(msgChannelFailure, m.handleChannelFailure)
	t.OnMessage(msgChannelOpen, m.handleForeignOpen)
	return m
}

// Open sends a CHANNEL_OPEN of channelType, with typeSpecificData appended
// after the standard sender/window/max-packet fields, and blocks for the
// server's OPEN_CONFIRMATION or OPEN_FAILURE.
func (m *Manager) Open(channelType string, variant Variant, typeSpecificData []byte) (*Channel, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	c := &Channel{
		mgr:                m,
		id:                 id,
		variant:            variant,
		log:                m.log.WithField("channel", id),
		localWindow:        DefaultMaxPacketSize,
		localMaxPacketSize: DefaultMaxPacketSize,
		state:              StateSessionRequested,
		openResult:         make(chan error, 1),
		closed:             make(chan struct{}),
	}
	m.channels[id] = c
	m.mu.Unlock()

	b := wire.NewBufferWithCapacity(64 + len(typeSpecificData))
	b.AppendString(channelType)
	b.AppendUint32(id)
	b.AppendUint32(c.localWindow)
	b.AppendUint32(c.localMaxPacketSize)
	b.AppendRawBytes(typeSpecificData)

	if err := m.t.SendPacket(msgChannelOpen, b.Bytes()); err != nil {
		m.remove(id)
		return nil, err
	}

	select {
	case err := <-c.openResult:
		if err != nil {
			m.remove(id)
			return nil, err
		}
		return c, nil
	case <-time.After(m.replyTimeout):
		m.remove(id)
		return nil, errOpenTimeout
	case <-m.t.Done():
		m.remove(id)
		return nil, errors.New("channel: transport closed while opening channel")
	}
}

func (m *Manager) remove(id uint32) {
	m.mu.Lock()
	delete(m.channels, id)
	m.mu.Unlock()
}

func (m *Manager) lookup(id uint32) (*Channel, bool) {
	m.mu.Lock()
	c, ok := m.channels[id]
	m.mu.Unlock()
	return c, ok
}

// CloseAll cancels every open channel, used when the owning connection
// tears down (spec §5 Cancellation).
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Channel, 0, len(m.channels))
	for _, c := range m.channels {
		all = append(all, c)
	}
	m.mu.Unlock()
	for _, c := range all {
		c.mu.Lock()
		c.state = StateClosed
		onClose := c.OnClose
		c.mu.Unlock()
		select {
		case <-c.closed:
		default:
			close(c.closed)
		}
		if onClose != nil {
			onClose()
		}
		m.remove(c.id)
	}
}

func (m *Manager) handleOpenConfirmation(body []byte) error {
	b := wire.NewBuffer(body)
	localID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	remoteID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	remoteWindow, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	remoteMaxPacket, err := b.ConsumeUint32()
	if err != nil {
		return err
	}

	c, ok := m.lookup(localID)
	if !ok {
		return errors.Errorf("channel: open-confirmation for unknown channel %d", localID)
	}
	c.mu.Lock()
	c.remoteID = remoteID
	c.remoteWindow = remoteWindow
	// Reduce the advertised max-packet-size by the per-packet header
	// overhead (packet_type + recipient_channel + string-length), per
	// spec §4.5 "Remote max-packet adjustment".
	const channelDataHeaderOverhead = 1 + 4 + 4
	if remoteMaxPacket > channelDataHeaderOverhead {
		c.remoteMaxPacketSize = remoteMaxPacket - channelDataHeaderOverhead
	}
	c.state = StateSessionEstablished
	c.mu.Unlock()

	c.openResult <- nil
	return nil
}

func (m *Manager) handleOpenFailure(body []byte) error {
	b := wire.NewBuffer(body)
	localID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	reason, _ := b.ConsumeUint32()
	desc, _ := b.ConsumeString()

	c, ok := m.lookup(localID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	close(c.closed)
	c.openResult <- &OpenError{Reason: reason, Description: desc}
	return nil
}

func (m *Manager) handleWindowAdjust(body []byte) error {
	b := wire.NewBuffer(body)
	localID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	delta, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	c, ok := m.lookup(localID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.remoteWindow += delta
	c.mu.Unlock()
	return c.flushLocked()
}

func (m *Manager) handleData(body []byte) error {
	b := wire.NewBuffer(body)
	localID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	data, err := b.ConsumeBytes()
	if err != nil {
		return err
	}
	c, ok := m.lookup(localID)
	if !ok || c.State() == StateInactive || c.State() == StateClosed {
		return errors.Errorf("channel: data for inactive channel %d", localID)
	}
	m.admitInbound(c, data, c.OnData)
	return nil
}

func (m *Manager) handleExtendedData(body []byte) error {
	b := wire.NewBuffer(body)
	localID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	dataType, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	data, err := b.ConsumeBytes()
	if err != nil {
		return err
	}
	c, ok := m.lookup(localID)
	if !ok {
		return nil
	}
	var hook func([]byte)
	c.mu.Lock()
	if c.OnExtendedData != nil {
		ed := c.OnExtendedData
		hook = func(d []byte) { ed(dataType, d) }
	} else {
		m.log.WithField("channel", localID).Warn("channel: unexpected extended data, discarding")
	}
	c.mu.Unlock()
	m.admitInbound(c, data, hook)
	return nil
}

// admitInbound applies the local-window accounting shared by DATA and
// EXTENDED_DATA (spec §4.5): excess bytes beyond the window are dropped
// with a warning, and the window is topped back up by exactly one
// max-packet-size as soon as it runs low.
func (m *Manager) admitInbound(c *Channel, data []byte, deliver func([]byte)) {
	c.mu.Lock()
	if uint32(len(data)) > c.localWindow {
		m.log.WithField("channel", c.id).Warn("channel: inbound data exceeds local window, dropping excess")
		data = data[:c.localWindow]
	}
	c.localWindow -= uint32(len(data))
	needsAdjust := c.localWindow < c.localMaxPacketSize
	if needsAdjust {
		c.localWindow += c.localMaxPacketSize
	}
	remoteID := c.remoteID
	maxPacket := c.localMaxPacketSize
	c.mu.Unlock()

	if deliver != nil && len(data) > 0 {
		deliver(data)
	}
	if needsAdjust {
		b := wire.NewBufferWithCapacity(8)
		b.AppendUint32(remoteID)
		b.AppendUint32(maxPacket)
		if err := m.t.SendPacket(msgChannelWindowAdjust, b.Bytes()); err != nil {
			m.log.WithError(err).Warn("channel: failed to send window adjust")
		}
	}
}

func (m *Manager) handleEOF(body []byte) error {
	b := wire.NewBuffer(body)
	localID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	c, ok := m.lookup(localID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	hook := c.OnEOF
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (m *Manager) handleClose(body []byte) error {
	b := wire.NewBuffer(body)
	localID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	c, ok := m.lookup(localID)
	if !ok {
		return nil
	}

	c.mu.Lock()
	alreadyRequested := c.state == StateCloseRequested
	remoteID := c.remoteID
	c.state = StateClosed
	onClose := c.OnClose
	c.mu.Unlock()

	if !alreadyRequested {
		// Unsolicited close: RFC 4254 §5.3 expects us to answer with our
		// own CLOSE.
		_ = m.sendClose(remoteID)
	}

	close(c.closed)
	if onClose != nil {
		onClose()
	}
	m.remove(localID)
	return nil
}

func (m *Manager) handleRequest(body []byte) error {
	b := wire.NewBuffer(body)
	localID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	requestType, err := b.ConsumeString()
	if err != nil {
		return err
	}
	wantReply, err := b.ConsumeBool()
	if err != nil {
		return err
	}
	data := b.Bytes()

	c, ok := m.lookup(localID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	hook := c.OnRequest
	remoteID := c.remoteID
	c.mu.Unlock()

	handled := false
	if hook != nil {
		handled = hook(requestType, wantReply, data)
	}
	if !wantReply {
		return nil
	}
	reply := wire.NewBufferWithCapacity(4)
	reply.AppendUint32(remoteID)
	msgType := byte(msgChannelFailure)
	if handled {
		msgType = msgChannelSuccess
	}
	return m.t.SendPacket(msgType, reply.Bytes())
}

func (m *Manager) handleChannelSuccess(body []byte) error { return m.dispatchReply(body, true) }
func (m *Manager) handleChannelFailure(body []byte) error { return m.dispatchReply(body, false) }

func (m *Manager) dispatchReply(body []byte, ok bool) error {
	b := wire.NewBuffer(body)
	localID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	c, found := m.lookup(localID)
	if !found {
		return nil
	}
	c.mu.Lock()
	if len(c.requestReplies) == 0 {
		c.mu.Unlock()
		return nil
	}
	w := c.requestReplies[0]
	c.requestReplies = c.requestReplies[1:]
	c.mu.Unlock()
	w <- ok
	return nil
}

// handleForeignOpen answers server-initiated CHANNEL_OPEN (e.g. X11 or
// forwarded-tcpip back-connections) with administratively-prohibited:
// accepting inbound forwarding is out of scope for this client (spec §1
// non-goals).
func (m *Manager) handleForeignOpen(body []byte) error {
	b := wire.NewBuffer(body)
	if _, err := b.ConsumeString(); err != nil {
		return err
	}
	senderID, err := b.ConsumeUint32()
	if err != nil {
		return err
	}
	reply := wire.NewBufferWithCapacity(32)
	reply.AppendUint32(senderID)
	reply.AppendUint32(1) // SSH_OPEN_ADMINISTRATIVELY_PROHIBITED
	reply.AppendString("not supported")
	reply.AppendString("")
	return m.t.SendPacket(msgChannelOpenFailure, reply.Bytes())
}

func (m *Manager) sendData(remoteID uint32, data []byte) error {
	b := wire.NewBufferWithCapacity(len(data) + 16)
	b.AppendUint32(remoteID)
	b.AppendBytes(data)
	return m.t.SendPacket(msgChannelData, b.Bytes())
}

func (m *Manager) sendChannelRequest(remoteID uint32, requestType string, wantReply bool, data []byte) error {
	b := wire.NewBufferWithCapacity(32 + len(requestType) + len(data))
	b.AppendUint32(remoteID)
	b.AppendString(requestType)
	b.AppendBool(wantReply)
	b.AppendRawBytes(data)
	return m.t.SendPacket(msgChannelRequest, b.Bytes())
}

func (m *Manager) sendEOF(remoteID uint32) error {
	b := wire.NewBufferWithCapacity(4)
	b.AppendUint32(remoteID)
	return m.t.SendPacket(msgChannelEOF, b.Bytes())
}

func (m *Manager) sendClose(remoteID uint32) error {
	b := wire.NewBufferWithCapacity(4)
	b.AppendUint32(remoteID)
	return m.t.SendPacket(msgChannelClose, b.Bytes())
}
