package transport

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/qt-creator/qtc-ssh/wire"
)

// globalRequestWaiter tracks one in-flight want-reply global request; SSH
// global requests are answered in FIFO order, so a single queue suffices
// (RFC 4254 §4).
type globalRequestWaiter struct {
	reply chan globalRequestResult
}

type globalRequestResult struct {
	ok   bool
	data []byte
}

type globalRequests struct {
	mu    sync.Mutex
	queue []*globalRequestWaiter
}

func (t *Transport) globalReqState() *globalRequests {
	t.globalReqOnce.Do(func() { t.globalReq = &globalRequests{} })
	return t.globalReq
}

// SendGlobalRequest issues a connection-wide request (e.g.
// "tcpip-forward"). If wantReply, it blocks for the matching
// SUCCESS/FAILURE and returns any reply-specific data.
func (t *Transport) SendGlobalRequest(requestType string, wantReply bool, data []byte) (ok bool, reply []byte, err error) {
	b := wire.NewBufferWithCapacity(32 + len(requestType) + len(data))
	b.AppendString(requestType)
	b.AppendBool(wantReply)
	b.AppendRawBytes(data)

	st := t.globalReqState()
	var w *globalRequestWaiter
	if wantReply {
		w = &globalRequestWaiter{reply: make(chan globalRequestResult, 1)}
		st.mu.Lock()
		st.queue = append(st.queue, w)
		st.mu.Unlock()
	}

	if err := t.sendPacket(MsgGlobalRequest, b.Bytes()); err != nil {
		return false, nil, err
	}
	if !wantReply {
		return true, nil, nil
	}

	select {
	case res := <-w.reply:
		return res.ok, res.data, nil
	case <-t.closed:
		return false, nil, errors.New("ssh: transport closed while awaiting global request reply")
	}
}

// dispatchGlobalRequestReply feeds the next queued waiter; called by the
// read loop on SSH_MSG_REQUEST_SUCCESS/FAILURE.
func (t *Transport) dispatchGlobalRequestReply(ok bool, data []byte) {
	st := t.globalReqState()
	st.mu.Lock()
	if len(st.queue) == 0 {
		st.mu.Unlock()
		return
	}
	w := st.queue[0]
	st.queue = st.queue[1:]
	st.mu.Unlock()
	w.reply <- globalRequestResult{ok: ok, data: data}
}
