package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/safewatch/safe-indexer/pkg/ethereum"
)

// BlockFromRaw builds the block record, computing the confirmed flag from the
// chain head at ingestion time. Once confirmed, reorg handling never touches
// the block again.
func BlockFromRaw(raw *ethereum.Block, currentBlockNumber, confirmations uint64) *EthereumBlock {
	confirmed := currentBlockNumber >= raw.Number && currentBlockNumber-raw.Number >= confirmations

	return &EthereumBlock{
		Number:     raw.Number,
		GasLimit:   raw.GasLimit,
		GasUsed:    raw.GasUsed,
		Timestamp:  time.Unix(int64(raw.Timestamp), 0).UTC(),
		BlockHash:  raw.Hash,
		ParentHash: raw.ParentHash,
		Confirmed:  confirmed,
	}
}

// GetBlock returns the stored block or gorm.ErrRecordNotFound.
func (db *DB) GetBlock(ctx context.Context, number uint64) (*EthereumBlock, error) {
	block := new(EthereumBlock)
	if err := db.g.WithContext(ctx).First(block, number).Error; err != nil {
		return nil, err
	}

	return block, nil
}

// GetOrCreateBlock fetches the block from the store, retrieving it from the
// node on a miss. The node's reported head decides the confirmed flag.
func (db *DB) GetOrCreateBlock(
	ctx context.Context, node ethereum.NodeClient, number, confirmations uint64,
) (*EthereumBlock, error) {
	block, err := db.GetBlock(ctx, number)
	if err == nil {
		return block, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(err, "getting block %d", number)
	}

	currentBlockNumber, err := node.CurrentBlockNumber(ctx) // For reorgs
	if err != nil {
		return nil, err
	}

	raw, err := node.BlockByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	return db.createBlock(ctx, BlockFromRaw(raw, currentBlockNumber, confirmations))
}

// GetOrCreateBlockFromRaw is the variant for callers that already hold the
// raw block and the head height of the ingestion pass.
func (db *DB) GetOrCreateBlockFromRaw(
	ctx context.Context, raw *ethereum.Block, currentBlockNumber, confirmations uint64,
) (*EthereumBlock, error) {
	block, err := db.GetBlock(ctx, raw.Number)
	if err == nil {
		return block, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(err, "getting block %d", raw.Number)
	}

	return db.createBlock(ctx, BlockFromRaw(raw, currentBlockNumber, confirmations))
}

func (db *DB) createBlock(ctx context.Context, block *EthereumBlock) (*EthereumBlock, error) {
	if err := db.g.WithContext(ctx).Create(block).Error; err != nil {
		return nil, errors.Wrapf(err, "creating block %d", block.Number)
	}

	return block, nil
}

// NotConfirmedBlocks returns unconfirmed blocks up to toBlockNumber (nil for
// no bound), ordered by number.
func (db *DB) NotConfirmedBlocks(ctx context.Context, toBlockNumber *uint64) ([]EthereumBlock, error) {
	query := db.g.WithContext(ctx).Where("confirmed = ?", false)
	if toBlockNumber != nil {
		query = query.Where("number <= ?", *toBlockNumber)
	}

	var blocks []EthereumBlock
	if err := query.Order("number").Find(&blocks).Error; err != nil {
		return nil, errors.Wrap(err, "querying not confirmed blocks")
	}

	return blocks, nil
}

// ConfirmBlocksBelow flips the confirmed flag for every unconfirmed block at
// depth >= confirmations relative to the given head. Returns the number of
// blocks confirmed.
func (db *DB) ConfirmBlocksBelow(ctx context.Context, currentBlockNumber, confirmations uint64) (int64, error) {
	if currentBlockNumber < confirmations {
		return 0, nil
	}

	result := db.g.WithContext(ctx).
		Model(&EthereumBlock{}).
		Where("confirmed = ? AND number <= ?", false, currentBlockNumber-confirmations).
		Update("confirmed", true)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "confirming blocks")
	}

	return result.RowsAffected, nil
}
