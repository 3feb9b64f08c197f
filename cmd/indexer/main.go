package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/flare-foundation/go-flare-common/pkg/logger"

	"github.com/safewatch/safe-indexer/internal/config"
	"github.com/safewatch/safe-indexer/pkg/database"
	"github.com/safewatch/safe-indexer/pkg/ethereum"
	"github.com/safewatch/safe-indexer/pkg/indexer"
	"github.com/safewatch/safe-indexer/pkg/safedecoder"
)

type CLIArgs struct {
	ConfigFile string `arg:"--config,env:CONFIG_FILE" default:"config.toml"`
}

func main() {
	var args CLIArgs
	arg.MustParse(&args)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, args); err != nil && ctx.Err() == nil {
		logger.Fatal("indexer stopped: ", err)
	}
}

func run(ctx context.Context, args CLIArgs) error {
	cfg, err := config.ReadFile(args.ConfigFile)
	if err != nil {
		return err
	}

	db, err := database.New(&cfg.DB)
	if err != nil {
		return err
	}

	node, err := ethereum.Dial(ctx, cfg.Node.URL)
	if err != nil {
		return err
	}
	defer node.Close()

	decoder, err := safedecoder.New()
	if err != nil {
		return err
	}

	ix := indexer.New(cfg.IndexerConfig(), db, node, decoder)

	logger.Infof("starting safe indexer against %s", cfg.Node.URL)

	return ix.Run(ctx)
}
