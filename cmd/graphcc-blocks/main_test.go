package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-connectome/pkg/store"
)

func TestRun(t *testing.T) {
	tmp := t.TempDir()
	edges := filepath.Join(tmp, "edges.txt")
	require.NoError(t, os.WriteFile(edges, []byte("# triangle plus tail\n0 1\n1 2\n2 0\n2 3\n"), 0o644))
	out := filepath.Join(tmp, "blocks")

	var buf bytes.Buffer
	require.NoError(t, run([]string{"-edges", edges, "-out", out, "-block-size", "2", "-nodes", "6"}, &buf))
	assert.Contains(t, buf.String(), "4 edges")
	assert.Contains(t, buf.String(), "6 nodes")

	bs, err := store.OpenBlockStore(context.Background(), store.NewFileSource(out))
	require.NoError(t, err)
	n, err := bs.NumNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(6), n)
}

func TestRun_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, run(nil, &buf))

	tmp := t.TempDir()
	edges := filepath.Join(tmp, "edges.txt")
	require.NoError(t, os.WriteFile(edges, []byte("0 5\n"), 0o644))
	err := run([]string{"-edges", edges, "-out", filepath.Join(tmp, "out"), "-nodes", "3"}, &buf)
	assert.ErrorContains(t, err, "below the largest id")
}
