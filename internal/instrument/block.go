package instrument

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

// SampleFormat selects how a curve payload is decoded.
type SampleFormat struct {
	Width  int // bytes per sample, 1 or 2
	Signed bool
}

func FormatForWidth(width int) SampleFormat {
	return SampleFormat{Width: width, Signed: true}
}

func (f SampleFormat) String() string {
	switch {
	case f.Width == 1 && f.Signed:
		return "int8"
	case f.Width == 1:
		return "uint8"
	case f.Width == 2 && f.Signed:
		return "int16"
	case f.Width == 2:
		return "uint16"
	}
	return fmt.Sprintf("width(%d)", f.Width)
}

// ReadBlock reads an IEEE 488.2 definite length block (#<n><len><data>)
// followed by the read terminator. The payload is read in chunks of at most
// chunkSize bytes; beforeChunk, if not nil, runs before each chunk is read.
// The buffer grows with the bytes actually received, so a corrupt length
// field cannot force a large allocation.
func ReadBlock(r *bufio.Reader, chunkSize int, beforeChunk func() error) ([]byte, error) {
	// Instruments may emit leading whitespace before the block.
	var c byte
	var err error
	for {
		c, err = r.ReadByte()
		if err != nil {
			return nil, err
		}
		if c != ' ' && c != '\r' && c != '\n' {
			break
		}
	}
	if c != '#' {
		return nil, fmt.Errorf("%w: expected '#', got %q", ErrMalformedBlock, c)
	}

	digits, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	n := int(digits - '0')
	if n < 1 || n > 9 {
		// #0 (indefinite length) is not produced by CURVe? on these scopes
		return nil, fmt.Errorf("%w: invalid length digit %q", ErrMalformedBlock, digits)
	}

	lenBuf := make([]byte, n)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("%w: short length field: %v", ErrMalformedBlock, err)
	}
	size, err := strconv.ParseInt(string(lenBuf), 10, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("%w: invalid length %q", ErrMalformedBlock, lenBuf)
	}

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var buf bytes.Buffer
	buf.Grow(int(min(size, int64(chunkSize))))
	for remaining := size; remaining > 0; {
		if beforeChunk != nil {
			if err := beforeChunk(); err != nil {
				return nil, err
			}
		}
		k, err := io.CopyN(&buf, r, min(remaining, int64(chunkSize)))
		remaining -= k
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTruncatedBlock, buf.Len(), size)
			}
			return nil, err
		}
	}

	term, err := r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return nil, ErrTerminator
		}
		return nil, err
	}
	if term != '\n' {
		return nil, fmt.Errorf("%w: got %q", ErrTerminator, term)
	}
	return buf.Bytes(), nil
}

// Decode converts a raw big endian payload into samples.
func Decode(data []byte, f SampleFormat) ([]int16, error) {
	switch f.Width {
	case 1:
		out := make([]int16, len(data))
		for i, b := range data {
			if f.Signed {
				out[i] = int16(int8(b))
			} else {
				out[i] = int16(b)
			}
		}
		return out, nil
	case 2:
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("%w: %d bytes", ErrOddPayload, len(data))
		}
		out := make([]int16, len(data)/2)
		for i := range out {
			// unsigned 16-bit values above MaxInt16 wrap; sample values are never interpreted
			out[i] = int16(binary.BigEndian.Uint16(data[2*i:]))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported sample width %d", f.Width)
}

// EncodeBlock frames payload as a definite length block with terminator.
func EncodeBlock(payload []byte) []byte {
	size := strconv.Itoa(len(payload))
	out := make([]byte, 0, len(payload)+len(size)+3)
	out = append(out, '#', byte('0'+len(size)))
	out = append(out, size...)
	out = append(out, payload...)
	return append(out, '\n')
}
