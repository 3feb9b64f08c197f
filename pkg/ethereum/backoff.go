package ethereum

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
)

// nodeWithBackoff decorates a NodeClient with per-request timeouts and
// exponential backoff retries. ErrNotFound is never retried: it is a valid
// answer, not a transient failure.
type nodeWithBackoff struct {
	client         NodeClient
	maxElapsedTime time.Duration
	requestTimeout time.Duration
}

func NewNodeWithBackoff(client NodeClient, maxElapsedTime, requestTimeout time.Duration) NodeClient {
	return &nodeWithBackoff{
		client:         client,
		maxElapsedTime: maxElapsedTime,
		requestTimeout: requestTimeout,
	}
}

func retryNode[T any](
	nwb *nodeWithBackoff, ctx context.Context, name string, call func(ctx context.Context) (T, error),
) (T, error) {
	var result T

	err := backoff.RetryNotify(
		func() (err error) {
			ctx, cancel := context.WithTimeout(ctx, nwb.requestTimeout)
			defer cancel()

			result, err = call(ctx)
			if errors.Is(err, ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		},
		nwb.newBackoff(ctx),
		func(err error, d time.Duration) {
			logger.Errorf("%s error: %v. Will retry after %v", name, err, d)
		},
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return result, err
		}
		return result, errors.Wrapf(err, "%s failed", name)
	}

	return result, nil
}

func (nwb *nodeWithBackoff) CurrentBlockNumber(ctx context.Context) (uint64, error) {
	return retryNode(nwb, ctx, "CurrentBlockNumber", func(ctx context.Context) (uint64, error) {
		return nwb.client.CurrentBlockNumber(ctx)
	})
}

func (nwb *nodeWithBackoff) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	return retryNode(nwb, ctx, "BlockByNumber", func(ctx context.Context) (*Block, error) {
		return nwb.client.BlockByNumber(ctx, number)
	})
}

func (nwb *nodeWithBackoff) BlocksByNumbers(ctx context.Context, numbers []uint64) ([]*Block, error) {
	return retryNode(nwb, ctx, "BlocksByNumbers", func(ctx context.Context) ([]*Block, error) {
		return nwb.client.BlocksByNumbers(ctx, numbers)
	})
}

func (nwb *nodeWithBackoff) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	return retryNode(nwb, ctx, "TransactionByHash", func(ctx context.Context) (*Transaction, error) {
		return nwb.client.TransactionByHash(ctx, hash)
	})
}

func (nwb *nodeWithBackoff) TransactionsByHashes(ctx context.Context, hashes []string) ([]*Transaction, error) {
	return retryNode(nwb, ctx, "TransactionsByHashes", func(ctx context.Context) ([]*Transaction, error) {
		return nwb.client.TransactionsByHashes(ctx, hashes)
	})
}

func (nwb *nodeWithBackoff) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	return retryNode(nwb, ctx, "TransactionReceipt", func(ctx context.Context) (*Receipt, error) {
		return nwb.client.TransactionReceipt(ctx, hash)
	})
}

func (nwb *nodeWithBackoff) TransactionReceipts(ctx context.Context, hashes []string) ([]*Receipt, error) {
	return retryNode(nwb, ctx, "TransactionReceipts", func(ctx context.Context) ([]*Receipt, error) {
		return nwb.client.TransactionReceipts(ctx, hashes)
	})
}

func (nwb *nodeWithBackoff) TraceFilter(
	ctx context.Context, fromBlock, toBlock uint64, fromAddresses, toAddresses []string,
) ([]*Trace, error) {
	return retryNode(nwb, ctx, "TraceFilter", func(ctx context.Context) ([]*Trace, error) {
		return nwb.client.TraceFilter(ctx, fromBlock, toBlock, fromAddresses, toAddresses)
	})
}

func (nwb *nodeWithBackoff) FilterLogs(
	ctx context.Context, fromBlock, toBlock uint64, topic string,
) ([]FilterLog, error) {
	return retryNode(nwb, ctx, "FilterLogs", func(ctx context.Context) ([]FilterLog, error) {
		return nwb.client.FilterLogs(ctx, fromBlock, toBlock, topic)
	})
}

func (nwb *nodeWithBackoff) newBackoff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(nwb.maxElapsedTime),
	), ctx)
}
