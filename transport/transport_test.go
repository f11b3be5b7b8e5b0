package transport

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnectErrorMessage(t *testing.T) {
	remote := &DisconnectError{Reason: DisconnectProtocolError, Message: "bad packet"}
	assert.Contains(t, remote.Error(), "remote disconnect")
	assert.Contains(t, remote.Error(), "bad packet")

	local := &DisconnectError{Reason: DisconnectByApplication, Message: "bye", Local: true}
	assert.Contains(t, local.Error(), "local disconnect")
}

func TestReadVersionLineSkipsPreBanner(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("Welcome to OpenSSH test server\r\nSSH-2.0-OpenSSH_9.0\r\n"))

	line, err := readVersionLine(r)
	require.NoError(t, err)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.0", string(line))
}

func TestReadVersionLineAcceptsFirstLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("SSH-1.99-Cisco-1.25\r\n"))

	line, err := readVersionLine(r)
	require.NoError(t, err)
	assert.Equal(t, "SSH-1.99-Cisco-1.25", string(line))
}

func TestEncodeUint32(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x02}, encodeUint32(0x0102))
}
