package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/qt-creator/qtc-ssh/kex"
	"github.com/qt-creator/qtc-ssh/sshcrypto"
	"github.com/qt-creator/qtc-ssh/wire"
)

// Stream is the byte-transport collaborator consumed by this layer (spec
// §6): a connected, ordered, reliable byte stream. *net.TCPConn and
// similar satisfy it directly.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// ClientVersion is the identification string this client sends, per RFC
// 4253 §4.2.
const ClientVersion = "SSH-2.0-qtc-ssh_1.0"

// Config configures a Transport (spec §6 Encoded configuration options).
type Config struct {
	Host              string
	Capabilities      kex.Capabilities
	HostKeyDB         sshcrypto.HostKeyDatabase
	HostKeyCheckMode  sshcrypto.HostKeyCheckMode
	KeepAliveInterval time.Duration
	ReplyTimeout      time.Duration
	Logger            *logrus.Entry
}

// DisconnectError is returned to callers, and passed to OnDisconnect
// handlers, when either side sends SSH_MSG_DISCONNECT or a protocol
// violation forces one (spec §7).
type DisconnectError struct {
	Reason  uint32
	Message string
	Local   bool
}

func (e *DisconnectError) Error() string {
	who := "remote"
	if e.Local {
		who = "local"
	}
	return fmt.Sprintf("ssh: %s disconnect (reason %d): %s", who, e.Reason, e.Message)
}

// Handler processes the payload of a dispatched message (message-type
// byte already stripped).
type Handler func(payload []byte) error

// Transport owns one TCP connection's worth of SSH-2 protocol state: the
// packet codec, crypto envelope, key exchange, and message dispatch table
// (spec §3 Session state, §4.4). Outbound sends are serialized by writeMu,
// modeled on the generalization of client conn's single-writer discipline;
// inbound packets are processed one at a time by a dedicated read loop
// goroutine, so handlers never race each other.
type Transport struct {
	cfg  Config
	conn Stream
	log  *logrus.Entry

	reader *bufio.Reader

	envelope *sshcrypto.Envelope

	clientID []byte
	serverID []byte

	clientKexInit []byte
	serverKexInit []byte
	sessionID     []byte
	negotiated    kex.Negotiated

	writeMu sync.Mutex
	phaseMu sync.Mutex
	phase   Phase

	handlers   map[byte]Handler
	handlersMu sync.RWMutex

	onDisconnect []func(*DisconnectError)
	closeOnce    sync.Once
	closed       chan struct{}

	keepAliveStop chan struct{}

	replyTimeout time.Duration

	globalReqOnce sync.Once
	globalReq     *globalRequests
}

// New creates a Transport over conn. It does not start I/O; call Connect.
func New(conn Stream, cfg Config) *Transport {
	if cfg.Capabilities.KexAlgorithms == nil {
		cfg.Capabilities = kex.Default()
	}
	if cfg.ReplyTimeout == 0 {
		cfg.ReplyTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transport{
		cfg:          cfg,
		conn:         conn,
		log:          log,
		envelope:     sshcrypto.NewEnvelope(),
		handlers:     make(map[byte]Handler),
		phase:        PhaseUnconnected,
		closed:       make(chan struct{}),
		replyTimeout: cfg.ReplyTimeout,
	}
}

func (t *Transport) setPhase(p Phase) {
	t.phaseMu.Lock()
	t.phase = p
	t.phaseMu.Unlock()
	t.log.WithField("phase", p.String()).Debug("ssh: phase transition")
}

// Phase returns the current connection phase.
func (t *Transport) Phase() Phase {
	t.phaseMu.Lock()
	defer t.phaseMu.Unlock()
	return t.phase
}

// OnMessage registers handler for inbound messages of msgType. Only one
// handler per type; re-registering replaces it.
func (t *Transport) OnMessage(msgType byte, handler Handler) {
	t.handlersMu.Lock()
	t.handlers[msgType] = handler
	t.handlersMu.Unlock()
}

// OnDisconnect registers a callback invoked exactly once when the
// transport tears down, with the terminating reason.
func (t *Transport) OnDisconnect(fn func(*DisconnectError)) {
	t.onDisconnect = append(t.onDisconnect, fn)
}

// Connect performs version exchange and the first key exchange. The
// caller then drives RequestUserAuthService and the Authenticate*
// helpers in auth.go synchronously on this same goroutine — no
// background reader is running yet, so there is exactly one reader of
// the wire until authentication completes. Once authenticated, call
// BeginMultiplexing to hand inbound packets over to the dispatch loop
// that channel.Manager and the rest of the connection layer depend on.
func (t *Transport) Connect() error {
	t.setPhase(PhaseConnecting)
	if err := t.exchangeVersions(); err != nil {
		return err
	}
	t.setPhase(PhaseConnected)
	return t.performKeyExchange()
}

// BeginMultiplexing starts the background read loop and, if configured,
// the keep-alive timer. Call it once userauth has completed.
func (t *Transport) BeginMultiplexing() {
	go t.readLoop()
	if t.cfg.KeepAliveInterval > 0 {
		t.keepAliveStop = make(chan struct{})
		go t.keepAliveLoop()
	}
}

func (t *Transport) exchangeVersions() error {
	t.clientID = []byte(ClientVersion)
	if _, err := t.conn.Write(append(append([]byte(nil), t.clientID...), '\r', '\n')); err != nil {
		return errors.Wrap(err, "ssh: send identification string")
	}

	t.reader = bufio.NewReader(t.conn)
	line, err := readVersionLine(t.reader)
	if err != nil {
		return errors.Wrap(err, "ssh: read server identification string")
	}
	if !bytes.HasPrefix(line, []byte("SSH-2.0-")) && !bytes.HasPrefix(line, []byte("SSH-1.99-")) {
		return errors.Errorf("ssh: unsupported server protocol banner %q", line)
	}
	t.serverID = line
	return nil
}

// readVersionLine reads the server's identification string, skipping any
// pre-banner lines per RFC 4253 §4.2.
func readVersionLine(r *bufio.Reader) ([]byte, error) {
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		if bytes.HasPrefix(line, []byte("SSH-")) {
			return line, nil
		}
	}
}

// SendPacket frames, encrypts and writes one SSH packet whose first
// payload byte is msgType. It is safe to call concurrently; writes are
// serialized so the sequence number and MAC stay consistent.
func (t *Transport) SendPacket(msgType byte, payload []byte) error {
	return t.sendPacket(msgType, payload)
}

// sendPacket frames, encrypts and writes one SSH packet whose first
// payload byte is msgType.
func (t *Transport) sendPacket(msgType byte, rest []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	payload := make([]byte, 1+len(rest))
	payload[0] = msgType
	copy(payload[1:], rest)

	framed, err := wire.EncodeFrame(payload, t.envelope.OutBlockSize(), t.envelope.OutMACLength() > 0)
	if err != nil {
		return errors.Wrap(err, "ssh: encode packet")
	}
	mac, err := t.envelope.EncryptOutgoing(framed)
	if err != nil {
		return errors.Wrap(err, "ssh: encrypt packet")
	}
	if _, err := t.conn.Write(framed); err != nil {
		return errors.Wrap(err, "ssh: write packet")
	}
	if len(mac) > 0 {
		if _, err := t.conn.Write(mac); err != nil {
			return errors.Wrap(err, "ssh: write MAC")
		}
	}
	return nil
}

// sendRawKexPayload sends a pre-built payload (already carrying its
// message-type byte), used for KEXINIT/KEXDH frames built via the kex
// package's own Marshal helpers.
func (t *Transport) sendRawKexPayload(payload []byte) error {
	if len(payload) == 0 {
		return errors.New("ssh: empty kex payload")
	}
	return t.sendPacket(payload[0], payload[1:])
}

// readPacket blocks until one full SSH packet has been received,
// decrypted and MAC-verified, returning its payload (message type byte
// included).
func (t *Transport) readPacket() ([]byte, error) {
	blockSize := t.envelope.InBlockSize()

	first := make([]byte, blockSize)
	if _, err := io.ReadFull(t.reader, first); err != nil {
		return nil, errors.Wrap(err, "ssh: read packet header")
	}
	t.envelope.DecryptBlock(first)

	length := uint32(first[0])<<24 | uint32(first[1])<<16 | uint32(first[2])<<8 | uint32(first[3])
	if err := wire.CheckLength(length); err != nil {
		return nil, err
	}

	total := 4 + int(length)
	frame := make([]byte, total)
	copy(frame, first)
	if total > blockSize {
		rest := frame[blockSize:]
		if _, err := io.ReadFull(t.reader, rest); err != nil {
			return nil, errors.Wrap(err, "ssh: read packet body")
		}
		t.envelope.DecryptBlock(rest)
	}

	var mac []byte
	if n := t.envelope.InMACLength(); n > 0 {
		mac = make([]byte, n)
		if _, err := io.ReadFull(t.reader, mac); err != nil {
			return nil, errors.Wrap(err, "ssh: read MAC")
		}
	}
	if err := t.envelope.VerifyIncoming(frame, mac); err != nil {
		return nil, err
	}

	return wire.DecodeFrame(frame[4:])
}

// readLoop is the single goroutine that owns all inbound decryption,
// dispatch and state-machine advancement, mirroring the original
// single-threaded event loop (spec §5) within Go's goroutine model.
func (t *Transport) readLoop() {
	for {
		payload, err := t.readPacket()
		if err != nil {
			t.teardown(&DisconnectError{Reason: DisconnectConnectionLost, Message: err.Error()})
			return
		}
		if len(payload) == 0 {
			continue
		}
		msgType, body := payload[0], payload[1:]

		switch msgType {
		case MsgDisconnect:
			t.handleDisconnect(body)
			return
		case MsgIgnore, MsgDebug:
			continue
		case MsgUnimplemented:
			t.log.Debug("ssh: server reported SSH_MSG_UNIMPLEMENTED")
			continue
		case MsgKexInit:
			if err := t.handleServerInitiatedRekey(body); err != nil {
				t.teardown(&DisconnectError{Reason: DisconnectKeyExchangeFailed, Message: err.Error(), Local: true})
				return
			}
			continue
		case MsgRequestSuccess:
			t.dispatchGlobalRequestReply(true, body)
			continue
		case MsgRequestFailure:
			t.dispatchGlobalRequestReply(false, nil)
			continue
		}

		t.handlersMu.RLock()
		handler, ok := t.handlers[msgType]
		t.handlersMu.RUnlock()
		if !ok {
			_ = t.sendPacket(MsgUnimplemented, encodeUint32(uint32(msgType)))
			continue
		}
		if err := handler(body); err != nil {
			t.log.WithError(err).WithField("msgType", msgType).Warn("ssh: message handler failed")
		}
	}
}

func encodeUint32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func (t *Transport) handleDisconnect(body []byte) {
	b := wire.NewBuffer(body)
	reason, _ := b.ConsumeUint32()
	msg, _ := b.ConsumeString()
	t.teardown(&DisconnectError{Reason: reason, Message: msg})
}

// Disconnect sends SSH_MSG_DISCONNECT and tears the transport down
// locally.
func (t *Transport) Disconnect(reason uint32, message string) error {
	b := wire.NewBufferWithCapacity(len(message) + 16)
	b.AppendUint32(reason)
	b.AppendString(message)
	b.AppendString("")
	err := t.sendPacket(MsgDisconnect, b.Bytes())
	t.teardown(&DisconnectError{Reason: reason, Message: message, Local: true})
	return err
}

func (t *Transport) teardown(reason *DisconnectError) {
	t.closeOnce.Do(func() {
		t.setPhase(PhaseClosed)
		close(t.closed)
		if t.keepAliveStop != nil {
			close(t.keepAliveStop)
		}
		_ = t.conn.Close()
		for _, fn := range t.onDisconnect {
			fn(reason)
		}
	})
}

// Done returns a channel closed once the transport has torn down.
func (t *Transport) Done() <-chan struct{} { return t.closed }

// keepAliveLoop periodically sends SSH_MSG_IGNORE to keep NAT/firewall
// state alive, per spec §4.4.
func (t *Transport) keepAliveLoop() {
	ticker := time.NewTicker(t.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.keepAliveStop:
			return
		case <-ticker.C:
			b := wire.NewBufferWithCapacity(8)
			b.AppendString("")
			if err := t.sendPacket(MsgIgnore, b.Bytes()); err != nil {
				t.log.WithError(err).Debug("ssh: keep-alive send failed")
			}
		}
	}
}
