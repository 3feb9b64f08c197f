package database

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/safewatch/safe-indexer/pkg/ethereum"
)

// ErrTxNotFound means the node has no data at all for a requested transaction
// hash. Not retried automatically: the hash may simply be invalid.
var ErrTxNotFound = errors.New("transaction not found")

// ErrTxWithoutBlock means the transaction or its receipt exists but carries
// no block number yet. Callers can retry once it is mined.
var ErrTxWithoutBlock = errors.New("transaction has no block yet")

// txFromNode builds a transaction record from node data. The receipt may be
// nil for a not-yet-mined placeholder.
func txFromNode(tx *ethereum.Transaction, receipt *ethereum.Receipt, block *EthereumBlock) (*EthereumTx, error) {
	record := &EthereumTx{
		TxHash:      tx.Hash,
		FromAddress: tx.From,
		Gas:         tx.Gas,
		GasPrice:    NewUint256FromBig(tx.GasPrice),
		Data:        tx.Data,
		Nonce:       tx.Nonce,
		ToAddress:   tx.To,
		Value:       NewUint256FromBig(tx.Value),
	}

	if block != nil {
		number := block.Number
		record.BlockNumber = &number
	}

	if receipt != nil {
		gasUsed := receipt.GasUsed
		txIndex := receipt.TransactionIndex
		record.GasUsed = &gasUsed
		record.Status = receipt.Status
		record.TransactionIndex = &txIndex

		logs, err := json.Marshal(receipt.Logs)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding logs of %s", tx.Hash)
		}
		record.Logs = logs
	}

	return record, nil
}

// applyReceiptAndBlock upgrades an unmined placeholder in memory with mined
// receipt data. Pre-existing fields (from, value, nonce, payload) are left
// untouched. No-op when the record is already mined.
func applyReceiptAndBlock(record *EthereumTx, block *EthereumBlock, receipt *ethereum.Receipt) (bool, error) {
	if record.BlockNumber != nil {
		return false, nil
	}

	number := block.Number
	gasUsed := receipt.GasUsed
	txIndex := receipt.TransactionIndex

	record.BlockNumber = &number
	record.GasUsed = &gasUsed
	record.Status = receipt.Status
	record.TransactionIndex = &txIndex

	logs, err := json.Marshal(receipt.Logs)
	if err != nil {
		return false, errors.Wrapf(err, "encoding logs of %s", record.TxHash)
	}
	record.Logs = logs

	return true, nil
}

// GetTransaction returns the stored transaction or gorm.ErrRecordNotFound.
func (db *DB) GetTransaction(ctx context.Context, hash string) (*EthereumTx, error) {
	tx := new(EthereumTx)
	if err := db.g.WithContext(ctx).First(tx, "tx_hash = ?", hash).Error; err != nil {
		return nil, err
	}

	return tx, nil
}

// CreateOrUpdateFromTxHashes resolves a batch of transaction hashes against
// the store. Hashes already stored with a block are returned as-is; misses
// are retrieved from the node, creating block records lazily and upgrading
// unmined placeholders in place. The whole batch fails with ErrTxNotFound or
// ErrTxWithoutBlock when any hash cannot be fully resolved. The result is
// aligned with the input hashes.
func (db *DB) CreateOrUpdateFromTxHashes(
	ctx context.Context, node ethereum.NodeClient, txHashes []string, confirmations uint64,
) ([]*EthereumTx, error) {
	resolved := make(map[string]*EthereumTx, len(txHashes))

	// Search first in database: only mined records count as resolved.
	var stored []*EthereumTx
	err := db.g.WithContext(ctx).
		Where("tx_hash IN ? AND block_number IS NOT NULL", txHashes).
		Find(&stored).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying stored transactions")
	}
	for _, tx := range stored {
		resolved[tx.TxHash] = tx
	}

	var missing []string
	for _, hash := range txHashes {
		if resolved[hash] == nil {
			missing = append(missing, hash)
		}
	}

	if len(missing) > 0 {
		receipts, err := db.fetchReceipts(ctx, node, missing)
		if err != nil {
			return nil, err
		}

		txs, blockNumbers, err := db.fetchTransactions(ctx, node, missing)
		if err != nil {
			return nil, err
		}

		blocks, err := node.BlocksByNumbers(ctx, blockNumbers)
		if err != nil {
			return nil, err
		}

		currentBlockNumber, err := node.CurrentBlockNumber(ctx)
		if err != nil {
			return nil, err
		}

		for i, hash := range missing {
			if blocks[i] == nil {
				return nil, errors.Wrapf(ErrTxNotFound, "block %d for tx-hash=%s", blockNumbers[i], hash)
			}

			block, err := db.GetOrCreateBlockFromRaw(ctx, blocks[i], currentBlockNumber, confirmations)
			if err != nil {
				return nil, err
			}

			record, err := db.createOrUpgradeTx(ctx, txs[i], receipts[i], block)
			if err != nil {
				return nil, err
			}

			resolved[hash] = record
		}
	}

	results := make([]*EthereumTx, len(txHashes))
	for i, hash := range txHashes {
		results[i] = resolved[hash]
	}

	return results, nil
}

// CreateOrUpdateFromTxHash is the singular variant.
func (db *DB) CreateOrUpdateFromTxHash(
	ctx context.Context, node ethereum.NodeClient, txHash string, confirmations uint64,
) (*EthereumTx, error) {
	txs, err := db.CreateOrUpdateFromTxHashes(ctx, node, []string{txHash}, confirmations)
	if err != nil {
		return nil, err
	}

	return txs[0], nil
}

// createOrUpgradeTx stores a freshly fetched transaction, or upgrades the
// pre-existing unmined placeholder with the same hash in place.
func (db *DB) createOrUpgradeTx(
	ctx context.Context, tx *ethereum.Transaction, receipt *ethereum.Receipt, block *EthereumBlock,
) (*EthereumTx, error) {
	record := new(EthereumTx)
	err := db.g.WithContext(ctx).First(record, "tx_hash = ?", tx.Hash).Error

	switch {
	case err == nil:
		// Stored before being mined: upgrade the same record.
		changed, err := applyReceiptAndBlock(record, block, receipt)
		if err != nil {
			return nil, err
		}
		if changed {
			err := db.g.WithContext(ctx).Model(record).
				Select("block_number", "gas_used", "logs", "status", "transaction_index").
				Updates(record).Error
			if err != nil {
				return nil, errors.Wrapf(err, "upgrading transaction %s", tx.Hash)
			}
		}

		return record, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		record, err := txFromNode(tx, receipt, block)
		if err != nil {
			return nil, err
		}
		if err := db.g.WithContext(ctx).Create(record).Error; err != nil {
			return nil, errors.Wrapf(err, "creating transaction %s", tx.Hash)
		}

		return record, nil

	default:
		return nil, errors.Wrapf(err, "getting transaction %s", tx.Hash)
	}
}

// fetchReceipts retrieves receipts for all hashes, retrying batch misses with
// singular calls. Every receipt must exist and be mined.
func (db *DB) fetchReceipts(
	ctx context.Context, node ethereum.NodeClient, hashes []string,
) ([]*ethereum.Receipt, error) {
	receipts, err := node.TransactionReceipts(ctx, hashes)
	if err != nil {
		return nil, err
	}

	for i, hash := range hashes {
		receipt := receipts[i]
		if receipt == nil {
			receipt, err = node.TransactionReceipt(ctx, hash) // Retry fetching if failed
			if err != nil {
				if errors.Is(err, ethereum.ErrNotFound) {
					return nil, errors.Wrapf(ErrTxNotFound, "tx-receipt with tx-hash=%s", hash)
				}
				return nil, err
			}
		}
		if receipt.BlockNumber == nil {
			return nil, errors.Wrapf(ErrTxWithoutBlock, "tx-receipt with tx-hash=%s", hash)
		}

		receipts[i] = receipt
	}

	return receipts, nil
}

// fetchTransactions retrieves canonical transactions for all hashes with the
// same retry and strictness rules as fetchReceipts, returning their block
// numbers alongside.
func (db *DB) fetchTransactions(
	ctx context.Context, node ethereum.NodeClient, hashes []string,
) ([]*ethereum.Transaction, []uint64, error) {
	txs, err := node.TransactionsByHashes(ctx, hashes)
	if err != nil {
		return nil, nil, err
	}

	blockNumbers := make([]uint64, len(hashes))
	for i, hash := range hashes {
		tx := txs[i]
		if tx == nil {
			tx, err = node.TransactionByHash(ctx, hash) // Retry fetching if failed
			if err != nil {
				if errors.Is(err, ethereum.ErrNotFound) {
					return nil, nil, errors.Wrapf(ErrTxNotFound, "tx with tx-hash=%s", hash)
				}
				return nil, nil, err
			}
		}
		if tx.BlockNumber == nil {
			return nil, nil, errors.Wrapf(ErrTxWithoutBlock, "tx with tx-hash=%s", hash)
		}

		txs[i] = tx
		blockNumbers[i] = *tx.BlockNumber
	}

	return txs, blockNumbers, nil
}
