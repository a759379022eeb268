package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-connectome/pkg/comm"
	"github.com/dd0wney/cluso-connectome/pkg/wire"
)

// BroadcastGraph reads the whole of st on rank 0 and broadcasts it, so
// every rank returns an identical MemoryStore. Only rank 0 touches st;
// other ranks may pass nil. It is meant for graphs small enough to
// replicate.
func BroadcastGraph(ctx context.Context, c comm.Communicator, st Store) (*MemoryStore, error) {
	var payload []byte
	if c.Rank() == 0 {
		snapshot, err := encodeSnapshot(ctx, st)
		if err != nil {
			payload = wire.EncodeAbort(wire.AbortStoreUnavailable, 0, err.Error())
			if _, bErr := c.Broadcast(ctx, 0, payload); bErr != nil {
				return nil, errors.Join(err, bErr)
			}
			return nil, err
		}
		payload = snapshot
	}

	got, err := c.Broadcast(ctx, 0, payload)
	if err != nil {
		return nil, err
	}
	if wire.IsAbort(got) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, wire.DecodeAbort(got))
	}
	return decodeSnapshot(got)
}

// snapshot layout: uvarint N, populations, then per projection its two
// names and one length-prefixed wire records payload
func encodeSnapshot(ctx context.Context, st Store) ([]byte, error) {
	if st == nil {
		return nil, unavailable("broadcast", errors.New("rank 0 has no store"))
	}
	n, err := st.NumNodes(ctx)
	if err != nil {
		return nil, err
	}
	pops, err := st.Populations(ctx)
	if err != nil {
		return nil, err
	}
	prjs, err := st.Projections(ctx)
	if err != nil {
		return nil, err
	}

	buf := binary.AppendUvarint(nil, n)
	buf = binary.AppendUvarint(buf, uint64(len(pops)))
	for _, p := range pops {
		buf = appendString(buf, p.Name)
		buf = binary.AppendUvarint(buf, p.Start)
		buf = binary.AppendUvarint(buf, p.Count)
	}
	buf = binary.AppendUvarint(buf, uint64(len(prjs)))
	for _, prj := range prjs {
		records, err := st.ReadRange(ctx, prj, 0, n)
		if err != nil {
			return nil, err
		}
		frags := make([]wire.Record, len(records))
		for i, rec := range records {
			frags[i] = wire.Record{Node: rec.Node, Out: rec.Neighbors}
		}
		buf = appendString(buf, prj.Source)
		buf = appendString(buf, prj.Destination)
		encoded := wire.EncodeRecords(frags)
		buf = binary.AppendUvarint(buf, uint64(len(encoded)))
		buf = append(buf, encoded...)
	}
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

var errBadSnapshot = errors.New("malformed graph snapshot")

type snapshotReader struct {
	buf []byte
	err error
}

func (r *snapshotReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.err = errBadSnapshot
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *snapshotReader) bytes() []byte {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.buf)) {
		r.err = errBadSnapshot
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func decodeSnapshot(data []byte) (*MemoryStore, error) {
	r := &snapshotReader{buf: data}
	n := r.uvarint()

	npops := r.uvarint()
	if npops > uint64(len(data)) {
		return nil, errBadSnapshot
	}
	pops := make([]Population, 0, npops)
	for i := uint64(0); i < npops && r.err == nil; i++ {
		pops = append(pops, Population{Name: string(r.bytes()), Start: r.uvarint(), Count: r.uvarint()})
	}

	m := NewMemoryStore(n, pops...)
	nprjs := r.uvarint()
	for i := uint64(0); i < nprjs && r.err == nil; i++ {
		prj := Projection{Source: string(r.bytes()), Destination: string(r.bytes())}
		encoded := r.bytes()
		if r.err != nil {
			break
		}
		frags, err := wire.DecodeRecords(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: projection %s: %v", errBadSnapshot, prj, err)
		}
		records := make([]Record, len(frags))
		for j, f := range frags {
			records[j] = Record{Node: f.Node, Neighbors: f.Out}
		}
		m.SetRecords(prj, records)
	}
	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}
