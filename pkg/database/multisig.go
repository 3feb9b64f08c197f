package database

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (db *DB) multisigTxsJoined(ctx context.Context) *gorm.DB {
	return db.g.WithContext(ctx).
		Model(&MultisigTransaction{}).
		Joins("EthereumTx").
		Preload("EthereumTx.Block")
}

// ExecutedMultisigTransactions returns the proposals whose linked on-chain
// transaction has been mined, newest first. Optionally filtered by Safe.
func (db *DB) ExecutedMultisigTransactions(ctx context.Context, safe *string) ([]MultisigTransaction, error) {
	query := db.multisigTxsJoined(ctx).
		Where(`multisig_transactions.ethereum_tx_hash IS NOT NULL AND "EthereumTx"."block_number" IS NOT NULL`).
		Order(`"EthereumTx"."block_number" DESC, multisig_transactions.nonce DESC`)
	if safe != nil {
		query = query.Where("multisig_transactions.safe = ?", *safe)
	}

	var mtxs []MultisigTransaction
	if err := query.Find(&mtxs).Error; err != nil {
		return nil, errors.Wrap(err, "querying executed multisig transactions")
	}

	return mtxs, nil
}

// NotExecutedMultisigTransactions returns proposals not yet mined: either
// never broadcast or still pending. Ordered by nonce so queued work reads in
// execution order.
func (db *DB) NotExecutedMultisigTransactions(ctx context.Context, safe *string) ([]MultisigTransaction, error) {
	query := db.multisigTxsJoined(ctx).
		Where(`multisig_transactions.ethereum_tx_hash IS NULL OR "EthereumTx"."block_number" IS NULL`).
		Order("multisig_transactions.nonce")
	if safe != nil {
		query = query.Where("multisig_transactions.safe = ?", *safe)
	}

	var mtxs []MultisigTransaction
	if err := query.Find(&mtxs).Error; err != nil {
		return nil, errors.Wrap(err, "querying not executed multisig transactions")
	}

	return mtxs, nil
}

// ConfirmationsRequired is the Safe threshold in force when the proposal was
// executed, falling back to the current threshold for pending proposals.
// Zero when the Safe has no replayed state at all.
func (db *DB) ConfirmationsRequired(ctx context.Context, mtx *MultisigTransaction) (uint64, error) {
	if mtx.EthereumTxHash != nil {
		var threshold uint64
		err := db.g.WithContext(ctx).
			Raw(`SELECT s.threshold
			FROM safe_statuses s
			JOIN internal_txs i ON i.id = s.internal_tx_id
			WHERE s.address = @safe AND i.ethereum_tx_hash = @hash
			ORDER BY i.trace_address_sort DESC
			LIMIT 1`,
				map[string]interface{}{"safe": mtx.Safe, "hash": *mtx.EthereumTxHash}).
			Scan(&threshold).
			Error
		if err != nil {
			return 0, errors.Wrap(err, "querying threshold at execution")
		}
		if threshold > 0 {
			return threshold, nil
		}
	}

	status, err := db.LastStatusForAddress(ctx, mtx.Safe)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return status.Threshold, nil
}

// CreateOrUpdateMultisigTransaction stores the proposal keyed by its content
// hash. A re-proposal only fills in fields learned later: the executing
// transaction link, signatures and the failure flag.
func (db *DB) CreateOrUpdateMultisigTransaction(ctx context.Context, mtx *MultisigTransaction) error {
	err := db.g.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "safe_tx_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"ethereum_tx_hash", "signatures", "failed", "modified"}),
		}).
		Create(mtx).
		Error
	if err != nil {
		return errors.Wrap(err, "storing multisig transaction")
	}

	// Confirmations for this hash may have arrived before the proposal.
	return db.linkConfirmations(ctx, mtx.SafeTxHash)
}

// CreateOrUpdateConfirmation stores one owner approval, unique per
// (hash, owner), and links it to its proposal when that is already known.
func (db *DB) CreateOrUpdateConfirmation(ctx context.Context, confirmation *MultisigConfirmation) error {
	if confirmation.MultisigTransactionID == nil {
		mtx := new(MultisigTransaction)
		err := db.g.WithContext(ctx).
			First(mtx, "safe_tx_hash = ?", confirmation.MultisigTransactionHash).
			Error
		if err == nil {
			confirmation.MultisigTransactionID = &mtx.SafeTxHash
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrap(err, "resolving confirmation transaction")
		}
	}

	err := db.g.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "multisig_transaction_hash"}, {Name: "owner"}},
			DoUpdates: clause.AssignmentColumns([]string{"multisig_transaction_id", "signature", "modified"}),
		}).
		Create(confirmation).
		Error

	return errors.Wrap(err, "storing multisig confirmation")
}

// linkConfirmations attaches every dangling confirmation carrying the hash to
// its now-known proposal.
func (db *DB) linkConfirmations(ctx context.Context, safeTxHash string) error {
	err := db.g.WithContext(ctx).
		Model(&MultisigConfirmation{}).
		Where("multisig_transaction_hash = ? AND multisig_transaction_id IS NULL", safeTxHash).
		Update("multisig_transaction_id", safeTxHash).
		Error

	return errors.Wrap(err, "linking multisig confirmations")
}

// ConfirmationsWithTransaction returns the approvals already linked to the
// proposal.
func (db *DB) ConfirmationsWithTransaction(ctx context.Context, safeTxHash string) ([]MultisigConfirmation, error) {
	var confirmations []MultisigConfirmation
	err := db.g.WithContext(ctx).
		Where("multisig_transaction_id = ?", safeTxHash).
		Order("created").
		Find(&confirmations).
		Error
	if err != nil {
		return nil, errors.Wrap(err, "querying linked confirmations")
	}

	return confirmations, nil
}

// ConfirmationsWithoutTransaction returns every dangling approval: received,
// stored, but with no matching proposal yet.
func (db *DB) ConfirmationsWithoutTransaction(ctx context.Context) ([]MultisigConfirmation, error) {
	var confirmations []MultisigConfirmation
	err := db.g.WithContext(ctx).
		Where("multisig_transaction_id IS NULL").
		Order("created").
		Find(&confirmations).
		Error
	if err != nil {
		return nil, errors.Wrap(err, "querying dangling confirmations")
	}

	return confirmations, nil
}
