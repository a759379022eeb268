// Package wire encodes the payloads ranks exchange during collectives.
//
// Every payload starts with a one-byte tag. Id sequences are written as
// zigzag varint deltas, so sorted neighbor lists of nearby ids cost one
// or two bytes per entry while arbitrary orders still round-trip.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Payload tags
const (
	TagIDs     byte = 0x01
	TagRecords byte = 0x02
	TagCounts  byte = 0x03
	TagPairs   byte = 0x04
	TagBits    byte = 0x05
	TagHeader  byte = 0x06
	TagAbort   byte = 0xFF
)

var (
	// ErrTruncated is returned when a payload ends mid-value
	ErrTruncated = errors.New("wire: truncated payload")
	// ErrUnexpectedTag is returned when a payload carries a different tag than expected
	ErrUnexpectedTag = errors.New("wire: unexpected payload tag")
)

// Record is one adjacency fragment routed to the owner of Node.
// Out holds targets of edges Node->x, In holds sources of edges x->Node.
type Record struct {
	Node uint64
	Out  []uint64
	In   []uint64
}

// Pair is an edge-membership query: is W a neighbor of U?
type Pair struct {
	U uint64
	W uint64
}

func appendIDSeq(dst []byte, ids []uint64) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(ids)))
	var prev uint64
	for _, id := range ids {
		dst = binary.AppendVarint(dst, int64(id-prev))
		prev = id
	}
	return dst
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, ErrTruncated
	}
	r.off += n
	return v, nil
}

func (r *reader) varint() (int64, error) {
	v, n := binary.Varint(r.buf[r.off:])
	if n <= 0 {
		return 0, ErrTruncated
	}
	r.off += n
	return v, nil
}

func (r *reader) idSeq() ([]uint64, error) {
	count, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	// every entry takes at least one byte
	if count > uint64(len(r.buf)-r.off) {
		return nil, ErrTruncated
	}
	ids := make([]uint64, count)
	var prev uint64
	for i := range ids {
		d, err := r.varint()
		if err != nil {
			return nil, err
		}
		prev += uint64(d)
		ids[i] = prev
	}
	return ids, nil
}

func openPayload(data []byte, tag byte) (*reader, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}
	if data[0] == TagAbort {
		return nil, DecodeAbort(data)
	}
	if data[0] != tag {
		return nil, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrUnexpectedTag, data[0], tag)
	}
	return &reader{buf: data, off: 1}, nil
}

// EncodeIDs encodes a list of node ids, preserving order
func EncodeIDs(ids []uint64) []byte {
	dst := make([]byte, 0, 1+binary.MaxVarintLen64+2*len(ids))
	dst = append(dst, TagIDs)
	return appendIDSeq(dst, ids)
}

// DecodeIDs decodes a payload produced by EncodeIDs
func DecodeIDs(data []byte) ([]uint64, error) {
	r, err := openPayload(data, TagIDs)
	if err != nil {
		return nil, err
	}
	return r.idSeq()
}

// EncodeCounts encodes non-negative integers such as degrees
func EncodeCounts(counts []uint64) []byte {
	dst := make([]byte, 0, 1+binary.MaxVarintLen64+2*len(counts))
	dst = append(dst, TagCounts)
	dst = binary.AppendUvarint(dst, uint64(len(counts)))
	for _, c := range counts {
		dst = binary.AppendUvarint(dst, c)
	}
	return dst
}

// DecodeCounts decodes a payload produced by EncodeCounts
func DecodeCounts(data []byte) ([]uint64, error) {
	r, err := openPayload(data, TagCounts)
	if err != nil {
		return nil, err
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(r.buf)-r.off) {
		return nil, ErrTruncated
	}
	counts := make([]uint64, n)
	for i := range counts {
		if counts[i], err = r.uvarint(); err != nil {
			return nil, err
		}
	}
	return counts, nil
}

// EncodeRecords encodes adjacency fragments
func EncodeRecords(records []Record) []byte {
	dst := []byte{TagRecords}
	dst = binary.AppendUvarint(dst, uint64(len(records)))
	var prev uint64
	for _, rec := range records {
		dst = binary.AppendVarint(dst, int64(rec.Node-prev))
		prev = rec.Node
		dst = appendIDSeq(dst, rec.Out)
		dst = appendIDSeq(dst, rec.In)
	}
	return dst
}

// DecodeRecords decodes a payload produced by EncodeRecords
func DecodeRecords(data []byte) ([]Record, error) {
	r, err := openPayload(data, TagRecords)
	if err != nil {
		return nil, err
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(r.buf)-r.off) {
		return nil, ErrTruncated
	}
	records := make([]Record, n)
	var prev uint64
	for i := range records {
		d, err := r.varint()
		if err != nil {
			return nil, err
		}
		prev += uint64(d)
		records[i].Node = prev
		if records[i].Out, err = r.idSeq(); err != nil {
			return nil, err
		}
		if records[i].In, err = r.idSeq(); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// EncodePairs encodes edge-membership queries
func EncodePairs(pairs []Pair) []byte {
	dst := []byte{TagPairs}
	dst = binary.AppendUvarint(dst, uint64(len(pairs)))
	var prev uint64
	for _, p := range pairs {
		dst = binary.AppendVarint(dst, int64(p.U-prev))
		dst = binary.AppendVarint(dst, int64(p.W-p.U))
		prev = p.U
	}
	return dst
}

// DecodePairs decodes a payload produced by EncodePairs
func DecodePairs(data []byte) ([]Pair, error) {
	r, err := openPayload(data, TagPairs)
	if err != nil {
		return nil, err
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(r.buf)-r.off) {
		return nil, ErrTruncated
	}
	pairs := make([]Pair, n)
	var prev uint64
	for i := range pairs {
		du, err := r.varint()
		if err != nil {
			return nil, err
		}
		dw, err := r.varint()
		if err != nil {
			return nil, err
		}
		prev += uint64(du)
		pairs[i] = Pair{U: prev, W: prev + uint64(dw)}
	}
	return pairs, nil
}

// EncodeBits packs booleans eight to a byte
func EncodeBits(bits []bool) []byte {
	dst := []byte{TagBits}
	dst = binary.AppendUvarint(dst, uint64(len(bits)))
	packed := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	return append(dst, packed...)
}

// DecodeBits decodes a payload produced by EncodeBits
func DecodeBits(data []byte) ([]bool, error) {
	r, err := openPayload(data, TagBits)
	if err != nil {
		return nil, err
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	packed := r.buf[r.off:]
	if uint64(len(packed)) < (n+7)/8 {
		return nil, ErrTruncated
	}
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = packed[i/8]&(1<<(i%8)) != 0
	}
	return bits, nil
}

// Header opens a run: rank 0 broadcasts the run id and the node count
type Header struct {
	RunID    string
	NumNodes uint64
}

// EncodeHeader encodes a run header
func EncodeHeader(h Header) []byte {
	dst := []byte{TagHeader}
	dst = binary.AppendUvarint(dst, h.NumNodes)
	dst = binary.AppendUvarint(dst, uint64(len(h.RunID)))
	return append(dst, h.RunID...)
}

// DecodeHeader decodes a payload produced by EncodeHeader
func DecodeHeader(data []byte) (Header, error) {
	r, err := openPayload(data, TagHeader)
	if err != nil {
		return Header{}, err
	}
	n, err := r.uvarint()
	if err != nil {
		return Header{}, err
	}
	l, err := r.uvarint()
	if err != nil {
		return Header{}, err
	}
	if uint64(len(r.buf)-r.off) < l {
		return Header{}, ErrTruncated
	}
	return Header{NumNodes: n, RunID: string(r.buf[r.off : r.off+int(l)])}, nil
}
