// Package config loads the run configuration of graphcc from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-connectome/pkg/analytics"
	"github.com/dd0wney/cluso-connectome/pkg/partition"
	"github.com/dd0wney/cluso-connectome/pkg/store"
	"github.com/dd0wney/cluso-connectome/pkg/validation"
)

// Transports
const (
	TransportLocal = "local"
	TransportNNG   = "nng"
	TransportZMQ   = "zmq"
)

// Store kinds
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBlocks   = "blocks"
)

// Default configuration values
const (
	DefaultCollectiveTimeout = 5 * time.Minute
	DefaultSendTimeout       = 30 * time.Second
	DefaultChunkSize         = 256
	DefaultBatchPairs        = analytics.DefaultBatchPairs
)

// Config is the configuration of one graphcc process
type Config struct {
	// WorldSize is the number of ranks. With the local transport all of
	// them run in this process.
	WorldSize int    `yaml:"world_size" validate:"min=1,max=4096"`
	Rank      int    `yaml:"rank" validate:"min=0"`
	Transport string `yaml:"transport" validate:"oneof=local nng zmq"`
	// Peers holds one listen address per rank for socket transports.
	Peers []string `yaml:"peers"`

	Strategy       string             `yaml:"strategy" validate:"oneof=block round_robin"`
	IOSize         int                `yaml:"io_size" validate:"min=0"`
	Directed       bool               `yaml:"directed"`
	TriangleMode   string             `yaml:"triangle_mode" validate:"oneof=exact local"`
	Workers        int                `yaml:"workers" validate:"min=0,max=4096"`
	ChunkSize      int                `yaml:"chunk_size" validate:"min=0"`
	// BatchPairs caps the neighbor pairs one rank asks about per
	// membership round in exact mode.
	BatchPairs     int                `yaml:"batch_pairs" validate:"min=0"`
	BroadcastGraph bool               `yaml:"broadcast_graph"`
	Projections    []ProjectionConfig `yaml:"projections" validate:"dive"`

	CollectiveTimeout time.Duration `yaml:"collective_timeout"`
	SendTimeout       time.Duration `yaml:"send_timeout"`

	Store StoreConfig `yaml:"store"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// ProjectionConfig names one projection to read
type ProjectionConfig struct {
	Source      string `yaml:"source" validate:"required,popname"`
	Destination string `yaml:"destination" validate:"required,popname"`
}

// StoreConfig selects and configures the graph store
type StoreConfig struct {
	Kind string `yaml:"kind" validate:"oneof=memory postgres blocks"`

	// memory: a whitespace separated edge list
	EdgeFile string `yaml:"edge_file"`
	NumNodes uint64 `yaml:"num_nodes"`

	// postgres
	DatabaseURL string `yaml:"database_url"`
	MaxConns    int32  `yaml:"max_conns" validate:"min=0"`
	Migrate     bool   `yaml:"migrate"`

	// blocks: a local directory or an S3 prefix
	Dir string    `yaml:"dir"`
	S3  *S3Config `yaml:"s3"`
}

// S3Config locates a block layout in S3
type S3Config struct {
	Bucket          string `yaml:"bucket" validate:"required"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Default returns a single-rank in-process configuration
func Default() *Config {
	return &Config{
		WorldSize:         1,
		Transport:         TransportLocal,
		Strategy:          string(partition.StrategyBlock),
		TriangleMode:      analytics.TrianglesExact.String(),
		ChunkSize:         DefaultChunkSize,
		BatchPairs:        DefaultBatchPairs,
		CollectiveTimeout: DefaultCollectiveTimeout,
		SendTimeout:       DefaultSendTimeout,
		Store:             StoreConfig{Kind: StoreMemory},
		LogLevel:          "info",
	}
}

// Load reads a YAML file over the defaults, applies environment
// overrides and validates the result
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFile is Load without validation, for callers that override
// fields first
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, applies environment overrides
// and validates the result
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GRAPHCC_* variables and LOG_LEVEL
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("GRAPHCC_RANK"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid GRAPHCC_RANK %q: %w", v, err)
		}
		c.Rank = n
	}
	if v, ok := lookup("GRAPHCC_WORLD_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid GRAPHCC_WORLD_SIZE %q: %w", v, err)
		}
		c.WorldSize = n
	}
	if v, ok := lookup("GRAPHCC_TRANSPORT"); ok {
		c.Transport = strings.ToLower(v)
	}
	if v, ok := lookup("GRAPHCC_PEERS"); ok {
		c.Peers = splitAndTrim(v, ",")
	}
	if v, ok := lookup("GRAPHCC_COLLECTIVE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid GRAPHCC_COLLECTIVE_TIMEOUT %q: %w", v, err)
		}
		c.CollectiveTimeout = d
	}
	if v, ok := lookup("GRAPHCC_DATABASE_URL"); ok {
		c.Store.DatabaseURL = v
	}
	if v, ok := lookup("GRAPHCC_METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.LogLevel = strings.ToLower(v)
	}
	return nil
}

// Validate checks struct tags and the rules between fields
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cv := validation.NewConfigValidator("config")
	cv.When(c.Transport != TransportLocal, func(cv *validation.ConfigValidator) {
		cv.RangeInt("rank", c.Rank, 0, c.WorldSize-1)
		cv.Custom("peers", func() error {
			if len(c.Peers) != c.WorldSize {
				return fmt.Errorf("%d peer addresses for %d ranks", len(c.Peers), c.WorldSize)
			}
			return nil
		})
	})
	cv.RangeInt("io_size", c.IOSize, 0, c.WorldSize)
	cv.MinDuration("collective_timeout", c.CollectiveTimeout, 10*time.Millisecond)
	cv.MinDuration("send_timeout", c.SendTimeout, time.Millisecond)

	switch c.Store.Kind {
	case StoreMemory:
		cv.Required("store.edge_file", c.Store.EdgeFile)
	case StorePostgres:
		cv.Required("store.database_url", c.Store.DatabaseURL)
	case StoreBlocks:
		cv.Custom("store", func() error {
			if (c.Store.Dir == "") == (c.Store.S3 == nil) {
				return fmt.Errorf("blocks store needs exactly one of dir and s3")
			}
			return nil
		})
	}
	if err := cv.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// PipelineOptions converts the analytics settings
func (c *Config) PipelineOptions() (analytics.Options, error) {
	mode, err := analytics.ParseTriangleMode(c.TriangleMode)
	if err != nil {
		return analytics.Options{}, err
	}
	var prjs []store.Projection
	for _, p := range c.Projections {
		prjs = append(prjs, store.Projection{Source: p.Source, Destination: p.Destination})
	}
	return analytics.Options{
		Strategy:       partition.Strategy(c.Strategy),
		IOSize:         c.IOSize,
		Projections:    prjs,
		Directed:       c.Directed,
		TriangleMode:   mode,
		Workers:        c.Workers,
		ChunkSize:      validation.DefaultOrInt(c.ChunkSize, DefaultChunkSize),
		BatchPairs:     validation.DefaultOrInt(c.BatchPairs, DefaultBatchPairs),
		BroadcastGraph: c.BroadcastGraph,
	}, nil
}

// ReadsStore reports whether rank needs an open store
func (c *Config) ReadsStore(rank int) bool {
	if c.BroadcastGraph {
		return rank == 0
	}
	io := c.IOSize
	if io == 0 {
		io = c.WorldSize
	}
	return rank == 0 || rank < io
}

// splitAndTrim splits a string and trims whitespace from each part
func splitAndTrim(s string, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
