package instrument

import (
	"bufio"
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlockHeader(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		want   BlockHeader
		wantOK bool
	}{
		{name: "rigol 10 byte header", data: "#800000600abc", want: BlockHeader{Size: 10, Length: 600}, wantOK: true},
		{name: "one digit", data: "#15hello", want: BlockHeader{Size: 3, Length: 5}, wantOK: true},
		{name: "no hash", data: "800000600", wantOK: false},
		{name: "indefinite", data: "#0abc", wantOK: false},
		{name: "truncated digits", data: "#8000", wantOK: false},
		{name: "non numeric length", data: "#3a12", wantOK: false},
		{name: "empty", data: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseBlockHeader([]byte(tt.data))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFormatBlock(t *testing.T) {
	assert.Equal(t, []byte("#800000003abc"), FormatBlock([]byte("abc"), 8))
	assert.Equal(t, []byte("#13abc"), FormatBlock([]byte("abc"), 1))
	assert.Equal(t, []byte("#212"+string(make([]byte, 12))), FormatBlock(make([]byte, 12), 1))
}

func TestReadResponse_Line(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("5.000e-01\r\n2.000e+00\n")))

	got, err := readResponse(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("5.000e-01"), got)

	got, err = readResponse(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("2.000e+00"), got)
}

func TestReadResponse_Block(t *testing.T) {
	payload := []byte{0x00, '\n', 0xFF, 0x80}
	stream := append(FormatBlock(payload, 8), '\n')
	stream = append(stream, []byte("1.0\n")...)
	r := bufio.NewReader(bytes.NewReader(stream))

	got, err := readResponse(r)
	require.NoError(t, err)
	assert.Equal(t, FormatBlock(payload, 8), got)

	// terminator after the block is consumed, next response is intact
	got, err = readResponse(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("1.0"), got)
}

func TestReadResponse_BlockTerminatorInLaterRead(t *testing.T) {
	tests := []struct {
		name       string
		terminator string
	}{
		{name: "newline", terminator: "\n"},
		{name: "carriage return newline", terminator: "\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := FormatBlock([]byte{1, 2, 3, 4}, 8)
			stream := append(append([]byte{}, block...), tt.terminator...)
			stream = append(stream, []byte("5.000e-01\n")...)
			// every read returns one byte, so the terminator is never buffered
			// when the payload completes
			r := bufio.NewReader(iotest.OneByteReader(bytes.NewReader(stream)))

			got, err := readResponse(r)
			require.NoError(t, err)
			assert.Equal(t, block, got)

			got, err = readResponse(r)
			require.NoError(t, err)
			assert.Equal(t, []byte("5.000e-01"), got)
		})
	}
}

func TestReadResponse_BlockWithoutTerminator(t *testing.T) {
	block := FormatBlock([]byte{9, 8, 7}, 8)

	r := bufio.NewReader(bytes.NewReader(block))
	got, err := readResponse(r)
	require.NoError(t, err)
	assert.Equal(t, block, got)

	// the line goes quiet after the payload
	r = bufio.NewReader(io.MultiReader(bytes.NewReader(block), stallReader{}))
	got, err = readResponse(r)
	require.NoError(t, err)
	assert.Equal(t, block, got)
}

func TestReadResponse_IndefiniteBlock(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("#0abc\n")))
	got, err := readResponse(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("#0abc"), got)
}

func TestReadResponse_ShortBlock(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("#800000010abc")))
	_, err := readResponse(r)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadResponse_Timeout(t *testing.T) {
	r := bufio.NewReader(stallReader{})
	_, err := readResponse(r)
	assert.ErrorIs(t, err, ErrTimeout)
}

// stallReader behaves like a serial port whose read timeout always expires.
type stallReader struct{}

func (stallReader) Read([]byte) (int, error) {
	return 0, ErrTimeout
}
