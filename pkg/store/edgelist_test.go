package store

import (
	"context"
	"strings"
	"testing"
)

func TestReadEdgeList(t *testing.T) {
	input := `# triangle with a tail
0 1
1 2
2 0

2 3
4 5 GC MC
`
	el, err := ReadEdgeList(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadEdgeList failed: %v", err)
	}
	if el.NumNodes != 6 {
		t.Errorf("NumNodes = %d, want 6", el.NumNodes)
	}
	if n := len(el.Edges[DefaultProjection]); n != 4 {
		t.Errorf("default projection has %d edges, want 4", n)
	}
	gcmc := Projection{Source: "GC", Destination: "MC"}
	if got := el.Edges[gcmc]; len(got) != 1 || got[0] != (Edge{Src: 4, Dst: 5}) {
		t.Errorf("GC->MC edges = %v", got)
	}

	st, err := el.MemoryStore(0)
	if err != nil {
		t.Fatalf("MemoryStore failed: %v", err)
	}
	prjs, _ := st.Projections(context.Background())
	if len(prjs) != 2 || prjs[0] != DefaultProjection || prjs[1] != gcmc {
		t.Errorf("projections = %v", prjs)
	}
	if _, err := el.MemoryStore(3); err == nil {
		t.Error("expected an error when the node count is too small")
	}
}

func TestReadEdgeList_Malformed(t *testing.T) {
	tests := []string{
		"0\n",
		"0 1 2\n",
		"a 1\n",
		"0 -1\n",
	}
	for _, input := range tests {
		if _, err := ReadEdgeList(strings.NewReader(input)); err == nil {
			t.Errorf("ReadEdgeList(%q) should fail", input)
		}
	}
}
