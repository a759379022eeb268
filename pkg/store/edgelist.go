package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// EdgeList is a graph read from a text edge list
type EdgeList struct {
	// NumNodes is one past the largest id seen.
	NumNodes uint64
	Edges    map[Projection][]Edge
	order    []Projection
}

// ReadEdgeList parses one edge per line: "src dst", optionally followed
// by the source and destination population names. Blank lines and lines
// starting with '#' are skipped. Edges without populations go to
// DefaultProjection.
func ReadEdgeList(r io.Reader) (*EdgeList, error) {
	el := &EdgeList{Edges: make(map[Projection][]Edge)}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 && len(fields) != 4 {
			return nil, fmt.Errorf("line %d: want 2 or 4 fields, got %d", line, len(fields))
		}
		src, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: source: %w", line, err)
		}
		dst, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: destination: %w", line, err)
		}

		prj := DefaultProjection
		if len(fields) == 4 {
			prj = Projection{Source: fields[2], Destination: fields[3]}
		}
		if _, ok := el.Edges[prj]; !ok {
			el.order = append(el.order, prj)
		}
		el.Edges[prj] = append(el.Edges[prj], Edge{Src: src, Dst: dst})
		el.NumNodes = max(el.NumNodes, src+1, dst+1)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line, err)
	}
	return el, nil
}

// ReadEdgeListFile reads an edge list file
func ReadEdgeListFile(path string) (*EdgeList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	el, err := ReadEdgeList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return el, nil
}

// Populations returns the single population "all" over [0, NumNodes).
// Edge lists carry no population ranges.
func (el *EdgeList) Populations() []Population {
	return []Population{{Name: "all", Start: 0, Count: el.NumNodes}}
}

// MemoryStore loads the list into a store over numNodes ids, or
// NumNodes when numNodes is zero
func (el *EdgeList) MemoryStore(numNodes uint64) (*MemoryStore, error) {
	if numNodes == 0 {
		numNodes = el.NumNodes
	}
	if numNodes < el.NumNodes {
		return nil, fmt.Errorf("edge list references node %d, graph has %d nodes", el.NumNodes-1, numNodes)
	}
	m := NewMemoryStore(numNodes)
	for _, prj := range el.order {
		m.AddEdges(prj, el.Edges[prj])
	}
	return m, nil
}
