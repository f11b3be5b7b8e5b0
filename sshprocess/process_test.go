package sshprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qt-creator/qtc-ssh/wire"
)

func TestHandleServerRequestExitStatus(t *testing.T) {
	p := &Process{}

	b := wire.NewBufferWithCapacity(8)
	b.AppendUint32(3)
	require.True(t, p.handleServerRequest("exit-status", false, b.Bytes()))

	assert.Equal(t, 3, p.exitCode)
	assert.Equal(t, ExitedNormally, p.status)
}

func TestHandleServerRequestExitSignal(t *testing.T) {
	p := &Process{}

	b := wire.NewBufferWithCapacity(32)
	b.AppendString("TERM")
	b.AppendBool(false)
	b.AppendString("terminated by signal")
	require.True(t, p.handleServerRequest("exit-signal", false, b.Bytes()))

	assert.Equal(t, "TERM", p.exitSignal)
	assert.Equal(t, "terminated by signal", p.exitErrMsg)
	assert.Equal(t, KilledBySignal, p.status)
}

func TestHandleServerRequestEOWAcked(t *testing.T) {
	p := &Process{}
	assert.True(t, p.handleServerRequest("eow@openssh.com", false, nil))
}

func TestHandleServerRequestUnknownRejected(t *testing.T) {
	p := &Process{}
	assert.False(t, p.handleServerRequest("made-up-request", false, nil))
}

func TestFinishIfNeededFiresOnDoneOnce(t *testing.T) {
	p := &Process{status: ExitedNormally, exitCode: 0}

	calls := 0
	p.OnDone = func(status ExitStatus, code int, signal string, err error) {
		calls++
		assert.Equal(t, ExitedNormally, status)
		assert.Equal(t, 0, code)
		assert.NoError(t, err)
	}

	p.finishIfNeeded()
	p.finishIfNeeded()

	assert.Equal(t, 1, calls)
}

func TestFinishIfNeededReportsSignalError(t *testing.T) {
	p := &Process{status: KilledBySignal, exitSignal: "KILL", exitErrMsg: "killed"}

	var gotErr error
	p.OnDone = func(_ ExitStatus, _ int, _ string, err error) { gotErr = err }
	p.finishIfNeeded()

	require.Error(t, gotErr)
	assert.Equal(t, "killed", gotErr.Error())
}

func TestFinishIfNeededReportsStartFailed(t *testing.T) {
	p := &Process{status: StartFailed}

	var gotErr error
	p.OnDone = func(_ ExitStatus, _ int, _ string, err error) { gotErr = err }
	p.finishIfNeeded()

	require.Error(t, gotErr)
}
