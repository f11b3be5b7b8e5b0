package sftp

import (
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/qt-creator/qtc-ssh/channel"
	sshfx "github.com/qt-creator/qtc-ssh/sftp/filexfer"
	"github.com/qt-creator/qtc-ssh/sshprocess"
)

// maxMsgLength bounds both the packets we are willing to read off the wire
// and the read/write chunk size used by transfer jobs; it matches the
// SFTP v3 payload size most servers negotiate comfortably.
const maxMsgLength = 32 * 1024

// marshaler is implemented by every filexfer request packet: a two-part
// (header, payload) binary encoding keyed on a client-chosen request id.
type marshaler interface {
	MarshalPacket(reqid uint32) (header, payload []byte, err error)
}

// result is what a conn delivers back to the caller that issued a request:
// the still-undecoded response packet type byte, request id, and body.
// release, if non-nil, returns the allocator page backing body to the pool;
// callers that are done reading body's contents should call it once.
type result struct {
	typ     sshfx.PacketType
	id      uint32
	body    *sshfx.Buffer
	release func()
	err     error
}

// conn is the request/response multiplexer over one "sftp" subsystem
// channel: every outbound packet carries a request id, and conn dispatches
// inbound packets back to their caller purely by that id, allowing any
// number of operations to be pipelined in flight (§4.9).
type conn struct {
	proc *sshprocess.Process
	log  *logrus.Entry

	pw *io.PipeWriter
	pr *io.PipeReader

	nextID  uint32 // atomic
	recvSeq uint32 // atomic, keys allocator pages independently of request id

	mu       sync.Mutex
	inflight map[uint32]chan result
	closeErr error
	closed   chan struct{}

	allocator *allocator
}

// dial opens the "sftp" subsystem on a new session channel and performs the
// SSH_FXP_INIT/VERSION handshake (draft-ietf-secsh-filexfer-02 section 3).
func dial(mgr *channel.Manager) (*conn, error) {
	proc, err := sshprocess.Open(mgr, channel.VariantSessionSFTP)
	if err != nil {
		return nil, errors.Wrap(err, "sftp: open subsystem channel")
	}

	if err := proc.Subsystem("sftp"); err != nil {
		return nil, errors.Wrap(err, "sftp: request sftp subsystem")
	}

	pr, pw := io.Pipe()

	c := &conn{
		proc:      proc,
		log:       logrus.WithField("component", "sftp"),
		pr:        pr,
		pw:        pw,
		inflight:  make(map[uint32]chan result),
		closed:    make(chan struct{}),
		allocator: newAllocator(),
	}

	proc.OnReadyReadStandardOutput = func(data []byte) {
		if _, err := pw.Write(data); err != nil {
			c.log.WithError(err).Debug("discarding sftp bytes after pipe close")
		}
	}
	proc.OnReadyReadStandardError = func(data []byte) {
		c.log.WithField("stderr", string(data)).Debug("sftp subsystem stderr")
	}
	proc.OnDone = func(status sshprocess.ExitStatus, exitCode int, exitSignal string, err error) {
		if err == nil {
			err = errors.New("sftp: subsystem channel closed")
		}
		c.closeWithErr(err)
	}

	go c.recvLoop()

	if err := c.handshake(); err != nil {
		c.closeWithErr(err)
		return nil, err
	}

	return c, nil
}

func (c *conn) handshake() error {
	init := &sshfx.InitPacket{Version: 3}
	raw, err := init.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "sftp: marshal init")
	}
	if _, err := c.proc.Write(raw); err != nil {
		return errors.Wrap(err, "sftp: send init")
	}

	typ, _, body, pageKey, err := c.readPacket()
	if err != nil {
		return errors.Wrap(err, "sftp: read version")
	}
	if typ != sshfx.PacketTypeVersion {
		return errors.Errorf("sftp: expected VERSION, got %s", typ)
	}

	var version sshfx.VersionPacket
	unmarshalErr := version.UnmarshalPacketBody(body)
	c.releasePage(pageKey)
	if unmarshalErr != nil {
		return errors.Wrap(unmarshalErr, "sftp: unmarshal version")
	}
	if version.Version < 3 {
		return errors.Errorf("sftp: server offered unsupported version %d", version.Version)
	}

	return nil
}

// nextRequestID returns the next client-chosen request id; ids are never
// reused while in flight, so free pipelining is safe per §4.9.
func (c *conn) nextRequestID() uint32 {
	return atomic.AddUint32(&c.nextID, 1)
}

// send marshals pkt under a fresh request id, writes it to the wire, and
// returns a channel that will receive exactly one result for that id.
func (c *conn) send(pkt marshaler) (uint32, <-chan result, error) {
	id := c.nextRequestID()

	header, payload, err := pkt.MarshalPacket(id)
	if err != nil {
		return 0, nil, errors.Wrap(err, "sftp: marshal request")
	}

	ch := make(chan result, 1)

	c.mu.Lock()
	if c.closeErr != nil {
		err := c.closeErr
		c.mu.Unlock()
		return 0, nil, err
	}
	c.inflight[id] = ch
	c.mu.Unlock()

	if _, err := c.proc.Write(append(header, payload...)); err != nil {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
		return 0, nil, errors.Wrap(err, "sftp: write request")
	}

	return id, ch, nil
}

// sendWait is the common case: issue pkt and block for its one reply.
func (c *conn) sendWait(pkt marshaler) result {
	_, ch, err := c.send(pkt)
	if err != nil {
		return result{err: err}
	}
	return <-ch
}

// readPacket reads one length-prefixed packet off the wire into a page
// drawn from the allocator, keyed by a sequence number independent of the
// request id (the id itself lives inside the body we are about to read).
// The caller owns the returned pageKey and must releasePage it once done
// with the returned Buffer.
func (c *conn) readPacket() (sshfx.PacketType, uint32, *sshfx.Buffer, uint32, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.pr, lenBuf[:]); err != nil {
		return 0, 0, nil, 0, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 5 || length > maxMsgLength {
		return 0, 0, nil, 0, errors.Errorf("sftp: invalid packet length %d", length)
	}

	pageKey := atomic.AddUint32(&c.recvSeq, 1)
	page := c.allocator.GetPage(pageKey)
	body := page[:length]

	if _, err := io.ReadFull(c.pr, body); err != nil {
		c.allocator.ReleasePages(pageKey)
		return 0, 0, nil, 0, err
	}

	buf := sshfx.NewBuffer(body)

	typByte, err := buf.ConsumeUint8()
	if err != nil {
		c.allocator.ReleasePages(pageKey)
		return 0, 0, nil, 0, err
	}

	var reqID uint32
	typ := sshfx.PacketType(typByte)
	if typ != sshfx.PacketTypeVersion {
		reqID, err = buf.ConsumeUint32()
		if err != nil {
			c.allocator.ReleasePages(pageKey)
			return 0, 0, nil, 0, err
		}
	}

	return typ, reqID, buf, pageKey, nil
}

// releasePage returns the allocator page backing a result's body to the
// pool. Safe to call once the caller is done reading from that body.
func (c *conn) releasePage(pageKey uint32) {
	c.allocator.ReleasePages(pageKey)
}

// recvLoop is the sole reader of the subsystem's standard output; it
// dispatches every reply purely by request id, so callers can pipeline
// arbitrarily many outstanding requests (§4.9, §5 Concurrency Model).
func (c *conn) recvLoop() {
	for {
		typ, id, body, pageKey, err := c.readPacket()
		if err != nil {
			c.closeWithErr(errors.Wrap(err, "sftp: read packet"))
			return
		}

		c.mu.Lock()
		ch, ok := c.inflight[id]
		if ok {
			delete(c.inflight, id)
		}
		c.mu.Unlock()

		if !ok {
			c.log.WithField("request_id", id).Warn("sftp: reply for unknown request id")
			c.releasePage(pageKey)
			continue
		}

		ch <- result{typ: typ, id: id, body: body, release: func() { c.releasePage(pageKey) }}
	}
}

func (c *conn) closeWithErr(err error) {
	c.mu.Lock()
	if c.closeErr != nil {
		c.mu.Unlock()
		return
	}
	c.closeErr = err
	pending := make([]chan result, 0, len(c.inflight))
	for id, ch := range c.inflight {
		pending = append(pending, ch)
		delete(c.inflight, id)
	}
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: err}
	}

	_ = c.pw.CloseWithError(err)
	close(c.closed)
}

// Close tears down the subsystem channel and unblocks every pending request.
func (c *conn) Close() error {
	err := c.proc.Channel().Close()
	c.closeWithErr(errors.New("sftp: connection closed"))
	c.allocator.Free()
	return err
}
