package database

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/safewatch/safe-indexer/pkg/ethereum"
)

// statusKey is the position of a snapshot in chain history: the block,
// transaction index and trace address of the operation that produced it.
// Unmined components sort first.
func statusKey(s *SafeStatus) (block, index uint64, trace string) {
	if s.InternalTx == nil {
		return 0, 0, ""
	}
	if tx := s.InternalTx.EthereumTx; tx != nil {
		if tx.BlockNumber != nil {
			block = *tx.BlockNumber
		}
		if tx.TransactionIndex != nil {
			index = *tx.TransactionIndex
		}
	}

	return block, index, s.InternalTx.TraceAddress
}

// CompareStatusKeys orders two snapshots by their history key. The snapshot
// with the maximal key is the current one, so inserting a snapshot with a
// smaller key can never change what the current status is. Associations must
// be loaded on both.
func CompareStatusKeys(a, b *SafeStatus) int {
	aBlock, aIndex, aTrace := statusKey(a)
	bBlock, bIndex, bTrace := statusKey(b)

	switch {
	case aBlock != bBlock:
		if aBlock < bBlock {
			return -1
		}
		return 1
	case aIndex != bIndex:
		if aIndex < bIndex {
			return -1
		}
		return 1
	default:
		return ethereum.CompareTraceAddressStrings(aTrace, bTrace)
	}
}

func (db *DB) statusesJoined(ctx context.Context) *gorm.DB {
	return db.g.WithContext(ctx).
		Model(&SafeStatus{}).
		Joins("JOIN internal_txs ON internal_txs.id = safe_statuses.internal_tx_id").
		Joins("JOIN ethereum_txs ON ethereum_txs.tx_hash = internal_txs.ethereum_tx_hash")
}

// LastStatusForAddress returns the snapshot with the maximal history key for
// the address, or gorm.ErrRecordNotFound when no operation has ever been
// replayed for it.
func (db *DB) LastStatusForAddress(ctx context.Context, address string) (*SafeStatus, error) {
	status := new(SafeStatus)
	err := db.statusesJoined(ctx).
		Where("safe_statuses.address = ?", address).
		Order("ethereum_txs.block_number DESC, ethereum_txs.transaction_index DESC, internal_txs.trace_address_sort DESC").
		First(status).
		Error
	if err != nil {
		return nil, errors.Wrap(err, "querying last safe status")
	}

	return status, nil
}

// LastStatusForEveryAddress returns the current snapshot of every known
// address in one query.
func (db *DB) LastStatusForEveryAddress(ctx context.Context) ([]SafeStatus, error) {
	var statuses []SafeStatus
	err := db.g.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (s.address) s.*
		FROM safe_statuses s
		JOIN internal_txs i ON i.id = s.internal_tx_id
		JOIN ethereum_txs t ON t.tx_hash = i.ethereum_tx_hash
		ORDER BY s.address, t.block_number DESC, t.transaction_index DESC, i.trace_address_sort DESC`).
		Scan(&statuses).
		Error
	if err != nil {
		return nil, errors.Wrap(err, "querying last safe statuses")
	}

	return statuses, nil
}

// StatusHistoryForAddress returns every snapshot of the address, oldest
// first.
func (db *DB) StatusHistoryForAddress(ctx context.Context, address string) ([]SafeStatus, error) {
	var statuses []SafeStatus
	err := db.g.WithContext(ctx).
		Preload("InternalTx.EthereumTx").
		Where("address = ?", address).
		Find(&statuses).
		Error
	if err != nil {
		return nil, errors.Wrap(err, "querying safe status history")
	}

	sort.SliceStable(statuses, func(i, j int) bool {
		return CompareStatusKeys(&statuses[i], &statuses[j]) < 0
	})

	return statuses, nil
}

// AddressesForOwner returns every address whose current snapshot lists the
// owner.
func (db *DB) AddressesForOwner(ctx context.Context, owner string) ([]string, error) {
	statuses, err := db.LastStatusForEveryAddress(ctx)
	if err != nil {
		return nil, err
	}

	var addresses []string
	for i := range statuses {
		if statuses[i].HasOwner(owner) {
			addresses = append(addresses, statuses[i].Address)
		}
	}

	return addresses, nil
}

// CreateSafeStatus stores one snapshot. Snapshots are keyed by the operation
// that produced them, so replaying an already folded operation is a no-op.
func (db *DB) CreateSafeStatus(ctx context.Context, status *SafeStatus) error {
	err := db.g.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(status).
		Error

	return errors.Wrap(err, "creating safe status")
}

// SaveStatusAndMarkProcessed stores the snapshot and flips the decoded
// operation to processed in one transaction, so a crash between the two can
// never lose a state transition.
func (db *DB) SaveStatusAndMarkProcessed(
	ctx context.Context, status *SafeStatus, decoded *InternalTxDecoded,
) error {
	return db.RunInTransaction(ctx, func(txDB *DB) error {
		if status != nil {
			if err := txDB.CreateSafeStatus(ctx, status); err != nil {
				return err
			}
		}

		return txDB.MarkDecodedProcessed(ctx, decoded.InternalTxID)
	})
}
