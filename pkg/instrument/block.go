package instrument

import (
	"bufio"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// BlockHeader describes an IEEE 488.2 definite length block header
// (#<n><n digits of length>).
type BlockHeader struct {
	Size   int // header length in bytes
	Length int // payload length declared by the header
}

// ParseBlockHeader decodes the block header at the start of b. ok is false
// when b does not start with a definite length header.
func ParseBlockHeader(b []byte) (h BlockHeader, ok bool) {
	if len(b) < 2 || b[0] != '#' {
		return BlockHeader{}, false
	}
	digits := int(b[1] - '0')
	if digits < 1 || digits > 9 || len(b) < 2+digits {
		return BlockHeader{}, false
	}
	length, err := strconv.Atoi(string(b[2 : 2+digits]))
	if err != nil || length < 0 {
		return BlockHeader{}, false
	}
	return BlockHeader{Size: 2 + digits, Length: length}, true
}

// FormatBlock prepends a definite length header with the given digit count.
func FormatBlock(data []byte, digits int) []byte {
	length := strconv.Itoa(len(data))
	for len(length) < digits {
		length = "0" + length
	}
	out := make([]byte, 0, 2+len(length)+len(data))
	out = append(out, '#', byte('0'+len(length)))
	out = append(out, length...)
	return append(out, data...)
}

// readResponse reads one response from a line oriented instrument: either a
// definite length block (returned with its header, without the trailing
// newline) or a newline terminated line (returned without the terminator).
func readResponse(r *bufio.Reader) ([]byte, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, err
	}

	if first[0] == '#' {
		return readBlock(r)
	}

	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return trimEOL(line), nil
}

func readBlock(r *bufio.Reader) ([]byte, error) {
	prefix, err := r.Peek(2)
	if err != nil {
		return nil, err
	}
	digits := int(prefix[1] - '0')
	if digits == 0 {
		// indefinite length block, terminated by newline
		line, err := r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		return trimEOL(line), nil
	}
	if digits < 0 || digits > 9 {
		return nil, errors.Errorf("malformed block header %q", prefix)
	}

	head := make([]byte, 2+digits)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, errors.Wrap(err, "failed to read block header")
	}
	h, ok := ParseBlockHeader(head)
	if !ok {
		return nil, errors.Errorf("malformed block header %q", head)
	}

	out := make([]byte, h.Size+h.Length)
	copy(out, head)
	if _, err := io.ReadFull(r, out[h.Size:]); err != nil {
		return nil, errors.Wrapf(err, "failed to read %d byte block", h.Length)
	}

	skipTerminator(r)
	return out, nil
}

// skipTerminator consumes the \r\n or \n that follows a block. The
// terminator may arrive in a later read than the payload, so it is peeked
// for rather than looked up in the buffer. A timeout or EOF means the
// instrument sent none.
func skipTerminator(r *bufio.Reader) {
	if b, err := r.Peek(1); err == nil && b[0] == '\r' {
		_, _ = r.ReadByte()
	}
	if b, err := r.Peek(1); err == nil && b[0] == '\n' {
		_, _ = r.ReadByte()
	}
}

func trimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
