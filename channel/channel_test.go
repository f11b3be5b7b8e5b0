package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateInactive, "Inactive"},
		{StateSessionRequested, "SessionRequested"},
		{StateSessionEstablished, "SessionEstablished"},
		{StateCloseRequested, "CloseRequested"},
		{StateClosed, "Closed"},
		{State(99), "Unknown"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.state.String())
	}
}

func TestChannelAccessors(t *testing.T) {
	c := &Channel{
		id:      3,
		variant: VariantDirectTCPIP,
		state:   StateSessionEstablished,
		closed:  make(chan struct{}),
	}

	assert.Equal(t, uint32(3), c.ID())
	assert.Equal(t, VariantDirectTCPIP, c.Variant())
	assert.Equal(t, StateSessionEstablished, c.State())
}

func TestChannelDoneClosesOnce(t *testing.T) {
	c := &Channel{closed: make(chan struct{})}

	select {
	case <-c.Done():
		t.Fatal("Done() should not be closed yet")
	default:
	}

	close(c.closed)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done() should be closed")
	}
}
