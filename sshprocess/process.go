// Package sshprocess implements the remote process channel (spec §4.6):
// exec/shell/pty/env/signal requests over a "session" channel, with
// stdout/stderr separation and exit status/signal reporting.
package sshprocess

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/qt-creator/qtc-ssh/channel"
	"github.com/qt-creator/qtc-ssh/wire"
)

// ExitStatus reports how the remote process terminated.
type ExitStatus int

const (
	// ExitedNormally means the process ran to completion with ExitCode set.
	ExitedNormally ExitStatus = iota
	// KilledBySignal means the process was terminated by ExitSignal.
	KilledBySignal
	// StartFailed means the exec/shell/subsystem request itself failed.
	StartFailed
)

// Process is a remote command, shell, or subsystem running over one SSH
// channel (spec §4.6).
type Process struct {
	ch  *channel.Channel
	log *logrus.Entry

	mu         sync.Mutex
	exitCode   int
	exitSignal string
	exitErrMsg string
	status     ExitStatus
	done       bool

	OnReadyReadStandardOutput func(data []byte)
	OnReadyReadStandardError  func(data []byte)
	OnDone                    func(status ExitStatus, exitCode int, exitSignal string, err error)
}

// Open starts a new "session" channel for remote process execution.
func Open(mgr *channel.Manager, variant channel.Variant) (*Process, error) {
	ch, err := mgr.Open("session", variant, nil)
	if err != nil {
		return nil, errors.Wrap(err, "sshprocess: open session channel")
	}
	p := &Process{ch: ch, log: logrus.NewEntry(logrus.StandardLogger())}

	ch.OnData = func(data []byte) {
		if p.OnReadyReadStandardOutput != nil {
			p.OnReadyReadStandardOutput(data)
		}
	}
	const extendedDataStderr = 1 // SSH_EXTENDED_DATA_STDERR
	ch.OnExtendedData = func(dataType uint32, data []byte) {
		if dataType == extendedDataStderr && p.OnReadyReadStandardError != nil {
			p.OnReadyReadStandardError(data)
			return
		}
		p.log.WithField("type", dataType).Warn("sshprocess: discarding unknown extended-data type")
	}
	ch.OnRequest = p.handleServerRequest
	ch.OnEOF = p.finishIfNeeded
	ch.OnClose = p.finishIfNeeded

	return p, nil
}

// RequestPTY sends a pty-req request (want-reply=false), per spec §4.6.
func (p *Process) RequestPTY(term string, cols, rows, widthPx, heightPx uint32, modes []byte) error {
	b := wire.NewBufferWithCapacity(64 + len(term) + len(modes))
	b.AppendString(term)
	b.AppendUint32(cols)
	b.AppendUint32(rows)
	b.AppendUint32(widthPx)
	b.AppendUint32(heightPx)
	b.AppendBytes(modes)
	_, err := p.ch.SendRequest("pty-req", false, b.Bytes())
	return err
}

// RequestX11Forwarding sends an x11-req request (want-reply=false), asking
// the server to forward its X11 connections back over this channel (RFC
// 4254 §6.3.1). authProtocol/authCookie are the Xauthority MIT-MAGIC-COOKIE
// pair the server should present to the forwarded display; screenNumber is
// the trailing numeric suffix of a DISPLAY string such as "localhost:10.0".
func (p *Process) RequestX11Forwarding(singleConnection bool, authProtocol, authCookie string, screenNumber uint32) error {
	b := wire.NewBufferWithCapacity(32 + len(authProtocol) + len(authCookie))
	b.AppendBool(singleConnection)
	b.AppendString(authProtocol)
	b.AppendString(authCookie)
	b.AppendUint32(screenNumber)
	_, err := p.ch.SendRequest("x11-req", false, b.Bytes())
	return err
}

// SetEnv sends an env request (want-reply=false); most servers only honor
// a fixed allow-list of variable names.
func (p *Process) SetEnv(name, value string) error {
	b := wire.NewBufferWithCapacity(16 + len(name) + len(value))
	b.AppendString(name)
	b.AppendString(value)
	_, err := p.ch.SendRequest("env", false, b.Bytes())
	return err
}

// Exec runs command via the "exec" request (want-reply=true); success
// transitions the process to running, failure to StartFailed.
func (p *Process) Exec(command string) error {
	return p.startRequest("exec", command)
}

// Shell starts the user's login shell via the "shell" request.
func (p *Process) Shell() error {
	return p.startRequest("shell", "")
}

// Subsystem invokes a named subsystem (e.g. "sftp") via the "subsystem"
// request.
func (p *Process) Subsystem(name string) error {
	return p.startRequest("subsystem", name)
}

func (p *Process) startRequest(requestType, arg string) error {
	var body []byte
	if requestType != "shell" {
		b := wire.NewBufferWithCapacity(16 + len(arg))
		b.AppendString(arg)
		body = b.Bytes()
	}
	ok, err := p.ch.SendRequest(requestType, true, body)
	if err != nil {
		return err
	}
	if !ok {
		p.mu.Lock()
		p.status = StartFailed
		p.mu.Unlock()
		return errors.Errorf("sshprocess: %s request refused", requestType)
	}
	return nil
}

// Write sends data to the process's standard input.
func (p *Process) Write(data []byte) (int, error) { return p.ch.Write(data) }

// Signal sends a "signal" channel request (RFC 4254 §6.9).
func (p *Process) Signal(name string) error {
	b := wire.NewBufferWithCapacity(16 + len(name))
	b.AppendString(name)
	_, err := p.ch.SendRequest("signal", false, b.Bytes())
	return err
}

// Channel returns the underlying multiplexed channel.
func (p *Process) Channel() *channel.Channel { return p.ch }

// handleServerRequest processes exit-status, exit-signal and
// eow@openssh.com channel requests the server sends us (spec §4.6).
func (p *Process) handleServerRequest(requestType string, wantReply bool, data []byte) bool {
	switch requestType {
	case "exit-status":
		b := wire.NewBuffer(data)
		code, err := b.ConsumeUint32()
		if err != nil {
			return false
		}
		p.mu.Lock()
		p.exitCode = int(code)
		p.status = ExitedNormally
		p.mu.Unlock()
		return true
	case "exit-signal":
		b := wire.NewBuffer(data)
		signal, err := b.ConsumeString()
		if err != nil {
			return false
		}
		_, _ = b.ConsumeBool() // core dumped
		errMsg, _ := b.ConsumeString()
		p.mu.Lock()
		p.exitSignal = signal
		p.exitErrMsg = errMsg
		p.status = KilledBySignal
		p.mu.Unlock()
		return true
	case "eow@openssh.com":
		return true
	default:
		return false
	}
}

// finishIfNeeded emits OnDone exactly once, on whichever of EOF or Close
// arrives first, with whatever exit information has been recorded by then.
func (p *Process) finishIfNeeded() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	status, code, signal, errMsg := p.status, p.exitCode, p.exitSignal, p.exitErrMsg
	p.mu.Unlock()

	if p.OnDone == nil {
		return
	}
	var err error
	if status == StartFailed {
		err = errors.New("sshprocess: start failed")
	} else if status == KilledBySignal && errMsg != "" {
		err = errors.New(errMsg)
	}
	p.OnDone(status, code, signal, err)
}
