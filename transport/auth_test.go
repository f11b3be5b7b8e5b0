package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qt-creator/qtc-ssh/wire"
)

func TestParseAuthFailure(t *testing.T) {
	b := wire.NewBufferWithCapacity(32)
	b.AppendNameList([]string{"publickey", "password"})
	b.AppendBool(true)

	err := parseAuthFailure(b.Bytes())
	require.Error(t, err)

	var failure *AuthFailure
	require.IsType(t, failure, err)
	af := err.(*AuthFailure)
	assert.Equal(t, []string{"publickey", "password"}, af.MethodsContinue)
	assert.True(t, af.PartialSuccess)
	assert.Contains(t, af.Error(), "publickey,password")
}

func TestJoinComma(t *testing.T) {
	assert.Equal(t, "", joinComma(nil))
	assert.Equal(t, "a", joinComma([]string{"a"}))
	assert.Equal(t, "a,b,c", joinComma([]string{"a", "b", "c"}))
}
