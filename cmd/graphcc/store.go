package main

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-connectome/pkg/config"
	"github.com/dd0wney/cluso-connectome/pkg/store"
)

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	sc := cfg.Store
	switch sc.Kind {
	case config.StoreMemory:
		el, err := store.ReadEdgeListFile(sc.EdgeFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
		}
		m, err := el.MemoryStore(sc.NumNodes)
		if err != nil {
			return nil, err
		}
		return m, nil

	case config.StorePostgres:
		pg, err := store.NewPGStore(ctx, sc.DatabaseURL, store.PGOptions{
			MaxConns: sc.MaxConns,
			Migrate:  sc.Migrate,
		})
		if err != nil {
			return nil, err
		}
		return pg, nil

	case config.StoreBlocks:
		var src store.BlockSource
		if sc.S3 != nil {
			s3src, err := store.NewS3Source(ctx, store.S3Options{
				Bucket:          sc.S3.Bucket,
				Prefix:          sc.S3.Prefix,
				Region:          sc.S3.Region,
				Endpoint:        sc.S3.Endpoint,
				UsePathStyle:    sc.S3.UsePathStyle,
				AccessKeyID:     sc.S3.AccessKeyID,
				SecretAccessKey: sc.S3.SecretAccessKey,
			})
			if err != nil {
				return nil, err
			}
			src = s3src
		} else {
			src = store.NewFileSource(sc.Dir)
		}
		bs, err := store.OpenBlockStore(ctx, src)
		if err != nil {
			src.Close()
			return nil, err
		}
		return bs, nil

	default:
		return nil, fmt.Errorf("unknown store kind %q", sc.Kind)
	}
}
