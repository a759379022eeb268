package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/golang/snappy"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-connectome/pkg/validation"
	"github.com/dd0wney/cluso-connectome/pkg/wire"
)

// ManifestName is the object holding the block layout
const ManifestName = "manifest.yaml"

// ErrCorruptBlock is returned when a block does not decode or does not
// match its manifest entry
var ErrCorruptBlock = errors.New("corrupt edge block")

// Manifest describes a block layout: per projection, a list of blocks
// covering disjoint source node ranges.
type Manifest struct {
	NumNodes    uint64               `yaml:"num_nodes"`
	Populations []Population         `yaml:"populations" validate:"required,min=1,dive"`
	Projections []ManifestProjection `yaml:"projections" validate:"dive"`
}

// ManifestProjection lists the blocks of one projection, sorted by Start
type ManifestProjection struct {
	Projection `yaml:",inline"`
	Blocks     []BlockRef `yaml:"blocks" validate:"dive"`
}

// BlockRef is one snappy-compressed block holding the records whose
// source node lies in [Start, End)
type BlockRef struct {
	File  string `yaml:"file" validate:"required"`
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end" validate:"gtfield=Start"`
	Edges uint64 `yaml:"edges"`
}

// Validate checks tags plus block ordering
func (m *Manifest) Validate() error {
	if err := validation.Struct(m); err != nil {
		return err
	}
	for _, mp := range m.Projections {
		for i, b := range mp.Blocks {
			if b.End > m.NumNodes {
				return fmt.Errorf("projection %s: block %s ends at %d beyond %d nodes", mp.Projection, b.File, b.End, m.NumNodes)
			}
			if i > 0 && b.Start < mp.Blocks[i-1].End {
				return fmt.Errorf("projection %s: block %s overlaps %s", mp.Projection, b.File, mp.Blocks[i-1].File)
			}
		}
	}
	return nil
}

// BlockSource fetches block layout objects by name
type BlockSource interface {
	ReadObject(ctx context.Context, name string) ([]byte, error)
	Close() error
}

// BlockStore serves range reads from a block layout
type BlockStore struct {
	src      BlockSource
	manifest Manifest
	index    map[Projection][]BlockRef
}

// OpenBlockStore reads and validates the manifest of src
func OpenBlockStore(ctx context.Context, src BlockSource) (*BlockStore, error) {
	data, err := src.ReadObject(ctx, ManifestName)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestName, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ManifestName, err)
	}

	index := make(map[Projection][]BlockRef, len(m.Projections))
	for _, mp := range m.Projections {
		index[mp.Projection] = mp.Blocks
	}
	return &BlockStore{src: src, manifest: m, index: index}, nil
}

// Manifest returns the layout the store was opened with
func (b *BlockStore) Manifest() Manifest { return b.manifest }

func (b *BlockStore) Populations(ctx context.Context) ([]Population, error) {
	return slices.Clone(b.manifest.Populations), nil
}

func (b *BlockStore) Projections(ctx context.Context) ([]Projection, error) {
	prjs := make([]Projection, len(b.manifest.Projections))
	for i, mp := range b.manifest.Projections {
		prjs[i] = mp.Projection
	}
	return prjs, nil
}

func (b *BlockStore) NumNodes(ctx context.Context) (uint64, error) {
	return b.manifest.NumNodes, nil
}

func (b *BlockStore) ReadRange(ctx context.Context, prj Projection, start, end uint64) ([]Record, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	blocks, ok := b.index[prj]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProjection, prj)
	}

	var out []Record
	for _, ref := range blocks {
		if ref.End <= start || ref.Start >= end {
			continue
		}
		records, err := b.readBlock(ctx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, filterRange(records, start, end)...)
	}
	return out, nil
}

func (b *BlockStore) readBlock(ctx context.Context, ref BlockRef) ([]Record, error) {
	compressed, err := b.src.ReadObject(ctx, ref.File)
	if err != nil {
		return nil, err
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptBlock, ref.File, err)
	}
	frags, err := wire.DecodeRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptBlock, ref.File, err)
	}

	records := make([]Record, len(frags))
	var edges uint64
	for i, f := range frags {
		if f.Node < ref.Start || f.Node >= ref.End {
			return nil, fmt.Errorf("%w: %s: node %d outside [%d,%d)", ErrCorruptBlock, ref.File, f.Node, ref.Start, ref.End)
		}
		records[i] = Record{Node: f.Node, Neighbors: f.Out}
		edges += uint64(len(f.Out))
	}
	if edges != ref.Edges {
		return nil, fmt.Errorf("%w: %s: %d edges, manifest says %d", ErrCorruptBlock, ref.File, edges, ref.Edges)
	}
	return records, nil
}

func (b *BlockStore) Close() error {
	return b.src.Close()
}

var _ Store = (*BlockStore)(nil)

// WriteBlocks writes edges as a block layout under dir. Each projection
// is cut into source node ranges of blockSize ids; ranges without edges
// get no block.
func WriteBlocks(dir string, numNodes uint64, populations []Population, edges map[Projection][]Edge, blockSize uint64) (*Manifest, error) {
	if blockSize == 0 {
		return nil, fmt.Errorf("block size must be positive")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	prjs := make([]Projection, 0, len(edges))
	for prj := range edges {
		prjs = append(prjs, prj)
	}
	slices.SortFunc(prjs, func(a, b Projection) int {
		if a.Source != b.Source {
			if a.Source < b.Source {
				return -1
			}
			return 1
		}
		switch {
		case a.Destination < b.Destination:
			return -1
		case a.Destination > b.Destination:
			return 1
		}
		return 0
	})

	m := &Manifest{NumNodes: numNodes, Populations: slices.Clone(populations)}
	for _, prj := range prjs {
		for _, e := range edges[prj] {
			if e.Src >= numNodes || e.Dst >= numNodes {
				return nil, fmt.Errorf("edge %d->%d of %s outside [0,%d)", e.Src, e.Dst, prj, numNodes)
			}
		}
		records := groupEdges(edges[prj])
		mp := ManifestProjection{Projection: prj}

		for start := uint64(0); start < numNodes; start += blockSize {
			end := min(start+blockSize, numNodes)
			window := filterRange(records, start, end)
			if len(window) == 0 {
				continue
			}

			frags := make([]wire.Record, len(window))
			var count uint64
			for i, rec := range window {
				frags[i] = wire.Record{Node: rec.Node, Out: rec.Neighbors}
				count += uint64(len(rec.Neighbors))
			}
			ref := BlockRef{
				File:  fmt.Sprintf("%s__%s__%012d.blk", prj.Source, prj.Destination, start),
				Start: start,
				End:   end,
				Edges: count,
			}
			if err := os.WriteFile(filepath.Join(dir, ref.File), snappy.Encode(nil, wire.EncodeRecords(frags)), 0o644); err != nil {
				return nil, fmt.Errorf("failed to write block %s: %w", ref.File, err)
			}
			mp.Blocks = append(mp.Blocks, ref)
		}
		m.Projections = append(m.Projections, mp)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}
