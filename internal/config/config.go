package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/safewatch/safe-indexer/pkg/database"
	"github.com/safewatch/safe-indexer/pkg/indexer"
)

func ReadFile(filepath string) (*Config, error) {
	cfg := DefaultConfig

	if _, err := toml.DecodeFile(filepath, &cfg); err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", filepath)
	}

	return &cfg, nil
}

type Config struct {
	DB      database.Config `toml:"db"`
	Node    Node            `toml:"node"`
	Indexer Indexer         `toml:"indexer"`
}

var DefaultConfig = Config{
	DB: database.Config{
		Host: "localhost",
		Port: 5432,
	},
	Node: Node{
		URL: "http://localhost:8545",
	},
	Indexer: Indexer{
		Confirmations:                6,
		MaxBlockRange:                1000,
		MaxConcurrency:               8,
		UpdatedBlocksBehind:          300,
		DecodeBatchSize:              500,
		BackoffMaxElapsedTimeSeconds: 300,
		RequestTimeoutMillis:         30000,
	},
}

type Node struct {
	URL string `toml:"url"`
}

type Indexer struct {
	Confirmations                uint64 `toml:"confirmations"`
	MaxBlockRange                uint64 `toml:"max_block_range"`
	MaxConcurrency               int    `toml:"max_concurrency"`
	UpdatedBlocksBehind          uint64 `toml:"updated_blocks_behind"`
	DecodeBatchSize              int    `toml:"decode_batch_size"`
	BackoffMaxElapsedTimeSeconds uint64 `toml:"backoff_max_elapsed_time_seconds"`
	RequestTimeoutMillis         uint64 `toml:"request_timeout_millis"`
}

// IndexerConfig maps the file shape onto the indexer's runtime settings.
func (cfg *Config) IndexerConfig() indexer.Config {
	return indexer.Config{
		Confirmations:         cfg.Indexer.Confirmations,
		MaxBlockRange:         cfg.Indexer.MaxBlockRange,
		MaxConcurrency:        cfg.Indexer.MaxConcurrency,
		UpdatedBlocksBehind:   cfg.Indexer.UpdatedBlocksBehind,
		DecodeBatchSize:       cfg.Indexer.DecodeBatchSize,
		BackoffMaxElapsedTime: time.Duration(cfg.Indexer.BackoffMaxElapsedTimeSeconds) * time.Second,
		RequestTimeout:        time.Duration(cfg.Indexer.RequestTimeoutMillis) * time.Millisecond,
	}
}
