// Command graphcc-blocks converts a text edge list into the block layout
// read by the blocks store.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dd0wney/cluso-connectome/pkg/store"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("graphcc-blocks", flag.ContinueOnError)
	var (
		edgeFile  = fs.String("edges", "", "Edge list: one 'src dst [srcpop dstpop]' per line")
		outDir    = fs.String("out", "", "Output directory")
		blockSize = fs.Uint64("block-size", 65536, "Source node ids per block")
		numNodes  = fs.Uint64("nodes", 0, "Node count (default: largest id + 1)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *edgeFile == "" || *outDir == "" {
		return errors.New("-edges and -out are required")
	}

	el, err := store.ReadEdgeListFile(*edgeFile)
	if err != nil {
		return fmt.Errorf("read edges: %w", err)
	}
	if *numNodes > 0 {
		if *numNodes < el.NumNodes {
			return fmt.Errorf("-nodes %d is below the largest id %d", *numNodes, el.NumNodes-1)
		}
		el.NumNodes = *numNodes
	}

	m, err := store.WriteBlocks(*outDir, el.NumNodes, el.Populations(), el.Edges, *blockSize)
	if err != nil {
		return fmt.Errorf("write blocks: %w", err)
	}

	var blocks, edges uint64
	for _, mp := range m.Projections {
		for _, b := range mp.Blocks {
			blocks++
			edges += b.Edges
		}
	}
	fmt.Fprintf(out, "Wrote %d blocks (%d edges, %d projections, %d nodes) to %s\n",
		blocks, edges, len(m.Projections), m.NumNodes, *outDir)
	return nil
}
