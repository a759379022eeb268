package comm

import (
	"context"
	"sync"
	"time"
)

// Observer receives one callback per completed or failed collective
type Observer interface {
	ObserveCollective(kind string, bytesOut, bytesIn int, duration time.Duration, err error)
}

// Event is one collective as seen by a rank
type Event struct {
	Seq      int
	Kind     Kind
	Root     int // broadcast root, -1 otherwise
	BytesOut []int
	BytesIn  []int
	Duration time.Duration
	Err      error
}

// Recorder wraps a Communicator, keeping the order and traffic of every
// collective it issues and forwarding them to an optional Observer.
type Recorder struct {
	inner    Communicator
	observer Observer

	mu     sync.Mutex
	events []Event
}

// NewRecorder wraps inner. observer may be nil.
func NewRecorder(inner Communicator, observer Observer) *Recorder {
	return &Recorder{inner: inner, observer: observer}
}

// Events returns a copy of the recorded collectives in issue order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded collective kinds in issue order
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (r *Recorder) record(kind Kind, root int, out, in [][]byte, start time.Time, err error) {
	e := Event{
		Kind:     kind,
		Root:     root,
		BytesOut: sizes(out),
		BytesIn:  sizes(in),
		Duration: time.Since(start),
		Err:      err,
	}

	r.mu.Lock()
	e.Seq = len(r.events)
	r.events = append(r.events, e)
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.ObserveCollective(kind.String(), sum(e.BytesOut), sum(e.BytesIn), e.Duration, err)
	}
}

func sizes(frames [][]byte) []int {
	if frames == nil {
		return nil
	}
	out := make([]int, len(frames))
	for i, f := range frames {
		out[i] = len(f)
	}
	return out
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func (r *Recorder) Rank() int { return r.inner.Rank() }
func (r *Recorder) Size() int { return r.inner.Size() }

func (r *Recorder) Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error) {
	start := time.Now()
	got, err := r.inner.Broadcast(ctx, root, payload)
	var out [][]byte
	if r.Rank() == root {
		out = [][]byte{payload}
	}
	r.record(KindBroadcast, root, out, [][]byte{got}, start, err)
	return got, err
}

func (r *Recorder) AllToAll(ctx context.Context, sends [][]byte) ([][]byte, error) {
	start := time.Now()
	recv, err := r.inner.AllToAll(ctx, sends)
	r.record(KindAllToAll, -1, sends, recv, start, err)
	return recv, err
}

func (r *Recorder) AllReduceSum(ctx context.Context, values []float64) ([]float64, error) {
	start := time.Now()
	sum, err := r.inner.AllReduceSum(ctx, values)
	frame := [][]byte{make([]byte, 8*len(values))}
	r.record(KindAllReduce, -1, frame, frame, start, err)
	return sum, err
}

func (r *Recorder) Barrier(ctx context.Context) error {
	start := time.Now()
	err := r.inner.Barrier(ctx)
	r.record(KindBarrier, -1, nil, nil, start, err)
	return err
}

func (r *Recorder) Close() error {
	return r.inner.Close()
}

var _ Communicator = (*Recorder)(nil)
