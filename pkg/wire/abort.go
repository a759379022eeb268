package wire

import (
	"encoding/binary"
	"fmt"
)

// AbortKind classifies why a rank gave up on a collective exchange
type AbortKind byte

const (
	AbortUnknown AbortKind = iota
	AbortStoreUnavailable
	AbortOwnershipInconsistency
	AbortInvalidPartition
	AbortNodeOutOfRange
	AbortCollectiveTimeout
)

func (k AbortKind) String() string {
	switch k {
	case AbortStoreUnavailable:
		return "store_unavailable"
	case AbortOwnershipInconsistency:
		return "ownership_inconsistency"
	case AbortInvalidPartition:
		return "invalid_partition"
	case AbortNodeOutOfRange:
		return "node_out_of_range"
	case AbortCollectiveTimeout:
		return "collective_timeout"
	default:
		return "unknown"
	}
}

// Abort is sent in place of a regular payload by a rank that failed
// before a collective, so its peers fail with the same diagnostic instead
// of waiting for data that never comes.
type Abort struct {
	Kind    AbortKind
	Rank    int
	Message string
}

func (a *Abort) Error() string {
	return fmt.Sprintf("rank %d aborted (%s): %s", a.Rank, a.Kind, a.Message)
}

// EncodeAbort encodes an abort frame
func EncodeAbort(kind AbortKind, rank int, message string) []byte {
	dst := []byte{TagAbort, byte(kind)}
	dst = binary.AppendUvarint(dst, uint64(rank))
	dst = binary.AppendUvarint(dst, uint64(len(message)))
	return append(dst, message...)
}

// IsAbort reports whether data is an abort frame
func IsAbort(data []byte) bool {
	return len(data) > 0 && data[0] == TagAbort
}

// DecodeAbort decodes an abort frame into an *Abort error. Malformed
// frames still decode to an Abort of unknown kind.
func DecodeAbort(data []byte) error {
	if !IsAbort(data) || len(data) < 2 {
		return &Abort{Kind: AbortUnknown, Rank: -1, Message: "malformed abort frame"}
	}
	a := &Abort{Kind: AbortKind(data[1]), Rank: -1}
	r := &reader{buf: data, off: 2}
	rank, err := r.uvarint()
	if err != nil {
		return a
	}
	a.Rank = int(rank)
	n, err := r.uvarint()
	if err != nil || uint64(len(r.buf)-r.off) < n {
		return a
	}
	a.Message = string(r.buf[r.off : r.off+int(n)])
	return a
}

// FirstAbort returns the abort error carried by the lowest-ranked abort
// frame in a received set, or nil when none of them is an abort.
func FirstAbort(frames [][]byte) error {
	for _, f := range frames {
		if IsAbort(f) {
			return DecodeAbort(f)
		}
	}
	return nil
}
