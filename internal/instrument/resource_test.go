package instrument

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResource(t *testing.T) {
	r, err := ParseResource("TCPIP0::192.168.1.20::4000::SOCKET")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", r.Host)
	assert.Equal(t, 4000, r.Port)
	assert.Equal(t, "192.168.1.20:4000", r.Addr())

	r, err = ParseResource("tcpip::scope.lab::5025::socket")
	require.NoError(t, err)
	assert.Equal(t, "scope.lab:5025", r.Addr())

	r, err = ParseResource("localhost:4000")
	require.NoError(t, err)
	assert.Equal(t, 4000, r.Port)
}

func TestParseResourceRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"USB::0x0699::0x0105::PQ100215::INSTR",
		"GPIB0::1::INSTR",
		"TCPIP0::192.168.1.20::inst0::INSTR",
		"TCPIP0::192.168.1.20::99999::SOCKET",
		"TCPIP0::::4000::SOCKET",
		"no-port",
	} {
		_, err := ParseResource(in)
		assert.ErrorIs(t, err, ErrUnsupportedResource, in)
	}
}
