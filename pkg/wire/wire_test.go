package wire

import (
	"errors"
	"reflect"
	"testing"
)

func TestIDs(t *testing.T) {
	tests := []struct {
		name string
		ids  []uint64
	}{
		{"empty", []uint64{}},
		{"sorted", []uint64{1, 2, 3, 1000, 1001}},
		{"unsorted", []uint64{50, 3, 9_000_000_000, 0}},
		{"max", []uint64{0, ^uint64(0), 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeIDs(EncodeIDs(tt.ids))
			if err != nil {
				t.Fatalf("DecodeIDs failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.ids) {
				t.Errorf("DecodeIDs = %v, want %v", got, tt.ids)
			}
		})
	}
}

func TestIDs_Compact(t *testing.T) {
	ids := make([]uint64, 1000)
	for i := range ids {
		ids[i] = 5_000_000_000 + uint64(i)
	}
	if n := len(EncodeIDs(ids)); n > 1020 {
		t.Errorf("encoded size = %d bytes, want about one byte per consecutive id", n)
	}
}

func TestRecords(t *testing.T) {
	records := []Record{
		{Node: 7, Out: []uint64{1, 2}, In: []uint64{}},
		{Node: 3, Out: []uint64{}, In: []uint64{9}},
	}
	got, err := DecodeRecords(EncodeRecords(records))
	if err != nil {
		t.Fatalf("DecodeRecords failed: %v", err)
	}
	if !reflect.DeepEqual(got, records) {
		t.Errorf("DecodeRecords = %+v, want %+v", got, records)
	}
}

func TestPairsAndBits(t *testing.T) {
	pairs := []Pair{{U: 10, W: 2}, {U: 4, W: 40}}
	got, err := DecodePairs(EncodePairs(pairs))
	if err != nil {
		t.Fatalf("DecodePairs failed: %v", err)
	}
	if !reflect.DeepEqual(got, pairs) {
		t.Errorf("DecodePairs = %v, want %v", got, pairs)
	}

	bits := []bool{true, false, false, true, true, false, true, false, true}
	gotBits, err := DecodeBits(EncodeBits(bits))
	if err != nil {
		t.Fatalf("DecodeBits failed: %v", err)
	}
	if !reflect.DeepEqual(gotBits, bits) {
		t.Errorf("DecodeBits = %v, want %v", gotBits, bits)
	}
}

func TestCounts(t *testing.T) {
	counts := []uint64{0, 1, 300, 1 << 40}
	got, err := DecodeCounts(EncodeCounts(counts))
	if err != nil {
		t.Fatalf("DecodeCounts failed: %v", err)
	}
	if !reflect.DeepEqual(got, counts) {
		t.Errorf("DecodeCounts = %v, want %v", got, counts)
	}
}

func TestWrongTag(t *testing.T) {
	if _, err := DecodeIDs(EncodeCounts([]uint64{1})); !errors.Is(err, ErrUnexpectedTag) {
		t.Errorf("err = %v, want ErrUnexpectedTag", err)
	}
	if _, err := DecodeRecords(nil); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestTruncated(t *testing.T) {
	data := EncodeIDs([]uint64{1, 2, 3, 4})
	if _, err := DecodeIDs(data[:len(data)-2]); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
	// claimed length far beyond the buffer
	if _, err := DecodeCounts([]byte{TagCounts, 0xff, 0xff, 0x03}); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestAbort(t *testing.T) {
	frame := EncodeAbort(AbortStoreUnavailable, 3, "disk gone")
	if !IsAbort(frame) {
		t.Fatal("IsAbort = false")
	}

	err := DecodeAbort(frame)
	var abort *Abort
	if !errors.As(err, &abort) {
		t.Fatalf("DecodeAbort returned %T", err)
	}
	if abort.Kind != AbortStoreUnavailable || abort.Rank != 3 || abort.Message != "disk gone" {
		t.Errorf("abort = %+v", abort)
	}

	// decoding a data payload that is actually an abort surfaces the abort
	if _, err := DecodeIDs(frame); !errors.As(err, &abort) {
		t.Errorf("DecodeIDs(abort) err = %v, want *Abort", err)
	}

	frames := [][]byte{EncodeIDs(nil), frame, EncodeAbort(AbortUnknown, 5, "later")}
	if err := FirstAbort(frames); !errors.As(err, &abort) || abort.Rank != 3 {
		t.Errorf("FirstAbort = %v, want rank 3 abort", err)
	}
	if FirstAbort([][]byte{EncodeIDs(nil)}) != nil {
		t.Error("FirstAbort should be nil without abort frames")
	}
}

func TestHeader(t *testing.T) {
	h := Header{RunID: "3f1c2a9e-run", NumNodes: 1 << 40}
	got, err := DecodeHeader(EncodeHeader(h))
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}
	if got != h {
		t.Errorf("DecodeHeader = %+v, want %+v", got, h)
	}

	data := EncodeHeader(h)
	if _, err := DecodeHeader(data[:len(data)-3]); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}
