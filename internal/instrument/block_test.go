package instrument

import (
	"bufio"
	"bytes"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reader(b []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(b))
}

func TestReadBlock(t *testing.T) {
	payload := []byte{0x01, 0xff, 0x80, 0x7f}
	data, err := ReadBlock(reader(EncodeBlock(payload)), 2, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestReadBlockLarge(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 125000)
	block := EncodeBlock(payload)
	assert.True(t, strings.HasPrefix(string(block), "#6125000"))

	data, err := ReadBlock(reader(block), 4096, nil)
	require.NoError(t, err)
	assert.Len(t, data, 125000)
}

func TestReadBlockErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"no hash", "5abcde\n", ErrMalformedBlock},
		{"indefinite length", "#0abc\n", ErrMalformedBlock},
		{"bad length digits", "#2x1abc\n", ErrMalformedBlock},
		{"short length field", "#41", ErrMalformedBlock},
		{"truncated payload", "#210abc", ErrTruncatedBlock},
		{"missing terminator", "#13abc", ErrTerminator},
		{"wrong terminator", "#13abcX", ErrTerminator},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadBlock(reader([]byte(tc.in)), 0, nil)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestReadBlockCallsHookPerChunk(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, 5*1024)
	calls := 0
	data, err := ReadBlock(reader(EncodeBlock(payload)), 1024, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, data, 5*1024)
	assert.Equal(t, 5, calls)

	boom := errors.New("deadline")
	_, err = ReadBlock(reader(EncodeBlock(payload)), 1024, func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestReadBlockHugeLengthDoesNotPreallocate(t *testing.T) {
	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	data, err := ReadBlock(reader([]byte("#9900000000abc")), DefaultChunkSize, nil)

	runtime.ReadMemStats(&after)
	require.ErrorIs(t, err, ErrTruncatedBlock)
	assert.Nil(t, data)
	assert.Contains(t, err.Error(), "got 3 of 900000000 bytes")
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(64<<20))
}

func TestDecode(t *testing.T) {
	s, err := Decode([]byte{0x00, 0x7f, 0x80, 0xff}, FormatForWidth(1))
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 127, -128, -1}, s)

	s, err = Decode([]byte{0x00, 0x01, 0xff, 0xfe, 0x80, 0x00}, FormatForWidth(2))
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -2, -32768}, s)

	_, err = Decode([]byte{0x00, 0x01, 0x02}, FormatForWidth(2))
	assert.ErrorIs(t, err, ErrOddPayload)

	_, err = Decode([]byte{0x00}, SampleFormat{Width: 4, Signed: true})
	assert.Error(t, err)
}

func TestSampleFormatString(t *testing.T) {
	assert.Equal(t, "int8", FormatForWidth(1).String())
	assert.Equal(t, "int16", FormatForWidth(2).String())
	assert.Equal(t, "uint8", SampleFormat{Width: 1}.String())
}
