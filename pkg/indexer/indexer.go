package indexer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"

	"github.com/safewatch/safe-indexer/pkg/database"
	"github.com/safewatch/safe-indexer/pkg/ethereum"
	"github.com/safewatch/safe-indexer/pkg/safedecoder"
)

type Config struct {
	Confirmations         uint64
	MaxBlockRange         uint64
	MaxConcurrency        int
	UpdatedBlocksBehind   uint64
	DecodeBatchSize       int
	BackoffMaxElapsedTime time.Duration
	RequestTimeout        time.Duration
}

// Indexer drives the full pipeline: trace scanning for the monitored address
// families, transaction and block resolution, payload decoding, state
// replay and token-transfer ingestion.
type Indexer struct {
	db      *database.DB
	node    ethereum.NodeClient
	decoder safedecoder.Decoder

	replayer *Replayer

	confirmations         uint64
	maxBlockRange         uint64
	maxConcurrency        int
	updatedBlocksBehind   uint64
	decodeBatchSize       int
	backoffMaxElapsedTime time.Duration
}

func New(cfg Config, db *database.DB, node ethereum.NodeClient, decoder safedecoder.Decoder) *Indexer {
	return &Indexer{
		db:                    db,
		node:                  ethereum.NewNodeWithBackoff(node, cfg.BackoffMaxElapsedTime, cfg.RequestTimeout),
		decoder:               decoder,
		replayer:              NewReplayer(db, cfg.DecodeBatchSize),
		confirmations:         cfg.Confirmations,
		maxBlockRange:         cfg.MaxBlockRange,
		maxConcurrency:        cfg.MaxConcurrency,
		updatedBlocksBehind:   cfg.UpdatedBlocksBehind,
		decodeBatchSize:       cfg.DecodeBatchSize,
		backoffMaxElapsedTime: cfg.BackoffMaxElapsedTime,
	}
}

func (ix *Indexer) Run(ctx context.Context) error {
	upToDateBackoff := backoff.NewExponentialBackOff()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := backoff.RetryNotify(
			func() error {
				progressed, err := ix.runIteration(ctx)
				if err != nil {
					return err
				}

				if !progressed {
					time.Sleep(upToDateBackoff.NextBackOff())
					return nil
				}

				upToDateBackoff.Reset()
				return nil
			},
			ix.newBackoff(ctx),
			func(err error, d time.Duration) {
				logger.Errorf("indexer iteration error: %v. Will retry after %v", err, d)
			},
		)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fatal error in indexer")
		}
	}
}

// runIteration executes one full pass against the current chain head.
// Progress is reported so the caller can back off when fully caught up.
func (ix *Indexer) runIteration(ctx context.Context) (bool, error) {
	head, err := ix.node.CurrentBlockNumber(ctx)
	if err != nil {
		return false, err
	}

	confirmed, err := ix.db.ConfirmBlocksBelow(ctx, head, ix.confirmations)
	if err != nil {
		return false, err
	}
	if confirmed > 0 {
		logger.Debugf("confirmed %d blocks below %d", confirmed, head)
	}

	if err := scanFamily[database.SafeContract](ctx, ix, head, scanAsSender); err != nil {
		return false, err
	}
	if err := scanFamily[database.SafeMasterCopy](ctx, ix, head, scanAsTarget); err != nil {
		return false, err
	}
	if err := scanFamily[database.ProxyFactory](ctx, ix, head, scanAsTarget); err != nil {
		return false, err
	}

	decoded, err := ix.decodePending(ctx)
	if err != nil {
		return false, err
	}

	folded, err := ix.replayer.Process(ctx)
	if err != nil {
		return false, err
	}

	if err := ix.scanTransfers(ctx, head); err != nil {
		return false, err
	}

	if decoded > 0 || folded > 0 {
		logger.Infof("processed up to block %d: %d operations decoded, %d replayed", head, decoded, folded)
	}

	return decoded > 0 || folded > 0 || confirmed > 0, nil
}

func (ix *Indexer) newBackoff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(ix.backoffMaxElapsedTime),
	), ctx)
}
