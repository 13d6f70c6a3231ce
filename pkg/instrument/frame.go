package instrument

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// USBTMC bulk message IDs.
const (
	msgDevDepMsgOut        byte = 1
	msgRequestDevDepMsgIn  byte = 2
	msgDevDepMsgIn         byte = 2
	headerSize                  = 12
	attrEOM                byte = 0x01
	attrTermCharEnabled    byte = 0x02
	defaultMaxTransferSize      = 1 << 20
)

// bulkHeader is the 12-byte header that precedes every USBTMC bulk transfer.
type bulkHeader struct {
	MsgID        byte
	Tag          byte
	TransferSize uint32
	Attributes   byte
	TermChar     byte
}

// EOM reports whether the transfer is the last one of the message.
func (h bulkHeader) EOM() bool {
	return h.Attributes&attrEOM != 0
}

func (h bulkHeader) encode(dst []byte) {
	dst[0] = h.MsgID
	dst[1] = h.Tag
	dst[2] = ^h.Tag
	dst[3] = 0
	binary.LittleEndian.PutUint32(dst[4:8], h.TransferSize)
	dst[8] = h.Attributes
	dst[9] = h.TermChar
	dst[10] = 0
	dst[11] = 0
}

// encodeDevDepMsgOut frames data as one DEV_DEP_MSG_OUT transfer padded to a
// 4-byte boundary.
func encodeDevDepMsgOut(tag byte, data []byte, eom bool) []byte {
	size := headerSize + len(data)
	padded := (size + 3) &^ 3
	buf := make([]byte, padded)

	h := bulkHeader{MsgID: msgDevDepMsgOut, Tag: tag, TransferSize: uint32(len(data))}
	if eom {
		h.Attributes = attrEOM
	}
	h.encode(buf)
	copy(buf[headerSize:], data)
	return buf
}

// encodeRequestDevDepMsgIn asks the device to send up to maxSize bytes.
func encodeRequestDevDepMsgIn(tag byte, maxSize uint32) []byte {
	buf := make([]byte, headerSize)
	h := bulkHeader{MsgID: msgRequestDevDepMsgIn, Tag: tag, TransferSize: maxSize}
	h.encode(buf)
	return buf
}

// parseBulkInHeader decodes and validates a DEV_DEP_MSG_IN header.
func parseBulkInHeader(b []byte, tag byte) (bulkHeader, error) {
	if len(b) < headerSize {
		return bulkHeader{}, errors.Errorf("short usbtmc header: %d bytes", len(b))
	}
	if b[0] != msgDevDepMsgIn {
		return bulkHeader{}, errors.Errorf("unexpected usbtmc message id %d", b[0])
	}
	if b[1] != tag || b[2] != ^tag {
		return bulkHeader{}, errors.Errorf("usbtmc tag mismatch: sent %d, got %d/%d", tag, b[1], b[2])
	}
	return bulkHeader{
		MsgID:        b[0],
		Tag:          b[1],
		TransferSize: binary.LittleEndian.Uint32(b[4:8]),
		Attributes:   b[8],
	}, nil
}

// tagger hands out bTag values 1..255; 0 is reserved.
type tagger struct {
	last byte
}

func (t *tagger) next() byte {
	t.last++
	if t.last == 0 {
		t.last = 1
	}
	return t.last
}
