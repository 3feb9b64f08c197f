package database

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MonitoredAddress is any contract family carrying a scan cursor:
// SafeContract, ProxyFactory or SafeMasterCopy.
type MonitoredAddress interface {
	SafeContract | ProxyFactory | SafeMasterCopy

	GetAddress() string
	GetTxBlockNumber() *uint64
	GetInitialBlockNumber() uint64
}

// Cursor columns that UpdateAddressesBlockNumber may advance.
const (
	CursorTxBlockNumber    = "tx_block_number"
	CursorERC20BlockNumber = "erc20_block_number"
)

func validCursorField(field string) error {
	switch field {
	case CursorTxBlockNumber, CursorERC20BlockNumber:
		return nil
	default:
		return errors.Errorf("%s is not a cursor column", field)
	}
}

// cursorAdvanceFloor is the smallest stored cursor still allowed to advance
// for a scan starting at fromBlockNumber: one block of tolerance, so a cursor
// left exactly one block behind by a concurrent pass is not stranded.
func cursorAdvanceFloor(fromBlockNumber uint64) uint64 {
	if fromBlockNumber == 0 {
		return 0
	}

	return fromBlockNumber - 1
}

// CursorCanAdvance reports whether a stored cursor may be moved by a scan over
// blocks [fromBlockNumber, ...]. An unset cursor always advances; a set cursor
// advances only from fromBlockNumber-1 or later, so a cursor rewound further
// back by reorg recovery keeps the rewound range pending. Mirrors the SQL
// predicate in UpdateAddressesBlockNumber.
func CursorCanAdvance(cursor *uint64, fromBlockNumber uint64) bool {
	return cursor == nil || *cursor >= cursorAdvanceFloor(fromBlockNumber)
}

// AlmostUpdated returns the monitored addresses whose cursor is close enough
// to the head to be scanned all the way to it, including addresses never
// scanned before.
func AlmostUpdated[M MonitoredAddress](
	ctx context.Context, db *DB, currentBlockNumber, confirmations, updatedBlocksBehind uint64,
) ([]M, error) {
	var confirmedUpTo uint64
	if currentBlockNumber > confirmations {
		confirmedUpTo = currentBlockNumber - confirmations
	}
	var behindFrom uint64
	if currentBlockNumber > updatedBlocksBehind {
		behindFrom = currentBlockNumber - updatedBlocksBehind
	}

	var addresses []M
	err := db.g.WithContext(ctx).
		Where(
			"tx_block_number IS NULL OR (tx_block_number < ? AND tx_block_number >= ?)",
			confirmedUpTo, behindFrom,
		).
		Find(&addresses).
		Error
	if err != nil {
		return nil, errors.Wrap(err, "querying almost updated addresses")
	}

	return addresses, nil
}

// NotUpdated returns the monitored addresses lagging so far behind the head
// that their scan must stop short of it, at the confirmed frontier.
func NotUpdated[M MonitoredAddress](
	ctx context.Context, db *DB, currentBlockNumber, updatedBlocksBehind uint64,
) ([]M, error) {
	var behindFrom uint64
	if currentBlockNumber > updatedBlocksBehind {
		behindFrom = currentBlockNumber - updatedBlocksBehind
	}

	var addresses []M
	err := db.g.WithContext(ctx).
		Where("tx_block_number IS NOT NULL AND tx_block_number < ?", behindFrom).
		Find(&addresses).
		Error
	if err != nil {
		return nil, errors.Wrap(err, "querying not updated addresses")
	}

	return addresses, nil
}

// UpdateAddressesBlockNumber advances the cursor column to toBlockNumber for
// the given addresses. An address is only advanced when its cursor sits at or
// past fromBlockNumber-1: a cursor moved backwards by a concurrent reorg
// recovery must not be silently re-advanced over the rewound range. Returns
// how many rows moved.
func UpdateAddressesBlockNumber[M MonitoredAddress](
	ctx context.Context, db *DB, addresses []string, fromBlockNumber, toBlockNumber uint64, field string,
) (int64, error) {
	if err := validCursorField(field); err != nil {
		return 0, err
	}
	if len(addresses) == 0 {
		return 0, nil
	}

	minCursor := cursorAdvanceFloor(fromBlockNumber)

	var model M
	result := db.g.WithContext(ctx).
		Model(&model).
		Where("address IN ?", addresses).
		Where(field+" >= ? OR "+field+" IS NULL", minCursor).
		Update(field, toBlockNumber)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "updating address cursors")
	}

	return result.RowsAffected, nil
}

// GetOrCreateSafeContract registers a newly discovered Safe for monitoring.
// Its trace cursor starts just before its deployment block so the first scan
// pass covers the setup call itself.
func (db *DB) GetOrCreateSafeContract(
	ctx context.Context, address, ethereumTxHash string, blockNumber uint64,
) (*SafeContract, bool, error) {
	stored := new(SafeContract)
	err := db.g.WithContext(ctx).First(stored, "address = ?", address).Error
	if err == nil {
		return stored, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, "getting safe contract")
	}

	var cursor *uint64
	if blockNumber > 0 {
		c := blockNumber - 1
		cursor = &c
	}

	contract := &SafeContract{
		Address:            address,
		EthereumTxHash:     ethereumTxHash,
		InitialBlockNumber: blockNumber,
		TxBlockNumber:      cursor,
		ERC20BlockNumber:   blockNumber,
	}

	err = db.g.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(contract).
		Error
	if err != nil {
		return nil, false, errors.Wrap(err, "creating safe contract")
	}

	return contract, true, nil
}

// SafeContracts returns every monitored Safe.
func (db *DB) SafeContracts(ctx context.Context) ([]SafeContract, error) {
	var contracts []SafeContract
	if err := db.g.WithContext(ctx).Find(&contracts).Error; err != nil {
		return nil, errors.Wrap(err, "querying safe contracts")
	}

	return contracts, nil
}

// CreateProxyFactory registers a proxy factory for monitoring.
func (db *DB) CreateProxyFactory(ctx context.Context, address string, initialBlockNumber uint64) error {
	factory := &ProxyFactory{Address: address, InitialBlockNumber: initialBlockNumber}
	err := db.g.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(factory).
		Error

	return errors.Wrap(err, "creating proxy factory")
}

// CreateSafeMasterCopy registers a master copy for monitoring.
func (db *DB) CreateSafeMasterCopy(ctx context.Context, address string, initialBlockNumber uint64) error {
	master := &SafeMasterCopy{Address: address, InitialBlockNumber: initialBlockNumber}
	err := db.g.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(master).
		Error

	return errors.Wrap(err, "creating safe master copy")
}
