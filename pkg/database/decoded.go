package database

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"gorm.io/gorm/clause"
)

// CreateDecoded stores the decoded operation of one internal transaction,
// unprocessed. Decoding is deterministic, so re-decoding an already stored
// operation is a no-op.
func (db *DB) CreateDecoded(
	ctx context.Context, internalTxID uint64, functionName string, arguments map[string]interface{},
) (*InternalTxDecoded, error) {
	raw, err := json.Marshal(arguments)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling decoded arguments")
	}

	decoded := &InternalTxDecoded{
		InternalTxID: internalTxID,
		FunctionName: functionName,
		Arguments:    raw,
		Processed:    false,
	}

	err = db.g.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(decoded).
		Error
	if err != nil {
		return nil, errors.Wrap(err, "creating decoded internal tx")
	}

	return decoded, nil
}

// PendingDecodedForSafes returns every unprocessed decoded operation the
// state replayer must fold, in chain-history order. Operations are limited to
// addresses already monitored, plus every setup call, which is how new
// addresses enter monitoring in the first place.
func (db *DB) PendingDecodedForSafes(ctx context.Context, limit int) ([]InternalTxDecoded, error) {
	query := db.g.WithContext(ctx).
		Model(&InternalTxDecoded{}).
		Joins("InternalTx").
		Joins(`JOIN ethereum_txs ON ethereum_txs.tx_hash = "InternalTx"."ethereum_tx_hash"`).
		Preload("InternalTx.EthereumTx").
		Where("internal_txs_decoded.processed = ?", false).
		Where(
			`"InternalTx"."from_address" IN (SELECT address FROM safe_contracts) OR internal_txs_decoded.function_name = ?`,
			"setup",
		).
		Order(`ethereum_txs.block_number, ethereum_txs.transaction_index, "InternalTx"."trace_address_sort"`)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var decoded []InternalTxDecoded
	if err := query.Find(&decoded).Error; err != nil {
		return nil, errors.Wrap(err, "querying pending decoded internal txs")
	}

	return decoded, nil
}

// MarkDecodedProcessed flips one decoded operation to processed.
func (db *DB) MarkDecodedProcessed(ctx context.Context, internalTxID uint64) error {
	err := db.g.WithContext(ctx).
		Model(&InternalTxDecoded{}).
		Where("internal_tx_id = ?", internalTxID).
		Update("processed", true).
		Error

	return errors.Wrap(err, "marking decoded internal tx processed")
}

// DecodedArguments unmarshals the stored argument map.
func (d *InternalTxDecoded) DecodedArguments() (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(d.Arguments, &args); err != nil {
		return nil, errors.Wrap(err, "unmarshaling decoded arguments")
	}

	return args, nil
}
