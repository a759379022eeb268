package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	frameMagic      uint16 = 0x4343 // "CC"
	frameVersion    byte   = 1
	frameHeaderSize        = 2 + 1 + 1 + 4 + 8 + 4
)

var errBadFrame = errors.New("bad frame")

// frameHeader precedes every payload on the wire:
// magic(2) version(1) kind(1) param(4) seq(8) source(4)
type frameHeader struct {
	seq    uint64
	source uint32
	op     op
}

func encodeFrame(h frameHeader, body []byte) []byte {
	buf := make([]byte, frameHeaderSize, frameHeaderSize+len(body))
	binary.BigEndian.PutUint16(buf[0:], frameMagic)
	buf[2] = frameVersion
	buf[3] = byte(h.op.kind)
	binary.BigEndian.PutUint32(buf[4:], h.op.param)
	binary.BigEndian.PutUint64(buf[8:], h.seq)
	binary.BigEndian.PutUint32(buf[16:], h.source)
	return append(buf, body...)
}

func decodeFrame(data []byte) (frameHeader, []byte, error) {
	if len(data) < frameHeaderSize {
		return frameHeader{}, nil, fmt.Errorf("%w: %d bytes", errBadFrame, len(data))
	}
	if binary.BigEndian.Uint16(data[0:]) != frameMagic {
		return frameHeader{}, nil, fmt.Errorf("%w: magic %x", errBadFrame, data[0:2])
	}
	if data[2] != frameVersion {
		return frameHeader{}, nil, fmt.Errorf("%w: version %d", errBadFrame, data[2])
	}
	h := frameHeader{
		op: op{
			kind:  Kind(data[3]),
			param: binary.BigEndian.Uint32(data[4:]),
		},
		seq:    binary.BigEndian.Uint64(data[8:]),
		source: binary.BigEndian.Uint32(data[16:]),
	}
	if h.op.kind < KindBroadcast || h.op.kind > KindBarrier {
		return frameHeader{}, nil, fmt.Errorf("%w: kind %d", errBadFrame, data[3])
	}
	return h, data[frameHeaderSize:], nil
}
