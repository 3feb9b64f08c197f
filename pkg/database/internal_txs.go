package database

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/safewatch/safe-indexer/pkg/ethereum"
)

// ParseTxType maps a trace `type` field onto TxType.
func ParseTxType(s string) (TxType, error) {
	switch strings.ToUpper(s) {
	case "CALL":
		return TxTypeCall, nil
	case "CREATE":
		return TxTypeCreate, nil
	case "SUICIDE", "SELFDESTRUCT":
		return TxTypeSelfDestruct, nil
	default:
		return 0, errors.Errorf("%s is not a valid trace type", s)
	}
}

// ParseCallType maps a trace `callType` field onto CallType, nil for anything
// that is not a plain or delegate call.
func ParseCallType(s string) *CallType {
	var ct CallType
	switch strings.ToLower(s) {
	case "call":
		ct = CallTypeCall
	case "delegatecall":
		ct = CallTypeDelegateCall
	default:
		return nil
	}

	return &ct
}

func optionalAddress(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// BuildInternalTxFromTrace maps one raw trace node onto its record without
// storing it.
func BuildInternalTxFromTrace(trace *ethereum.Trace, tx *EthereumTx) (*InternalTx, error) {
	txType, err := ParseTxType(trace.Type)
	if err != nil {
		return nil, err
	}

	itx := &InternalTx{
		EthereumTxHash:   tx.TxHash,
		TraceAddress:     trace.TraceAddress.String(),
		TraceAddressSort: trace.TraceAddress.SortKey(),
		FromAddress:      optionalAddress(trace.From),
		Gas:              trace.Gas,
		Data:             trace.Data,
		ToAddress:        optionalAddress(trace.To),
		Value:            NewUint256FromBig(trace.Value),
		GasUsed:          trace.GasUsed,
		ContractAddress:  optionalAddress(trace.ContractAddress),
		Code:             trace.Code,
		Output:           trace.Output,
		RefundAddress:    optionalAddress(trace.RefundAddress),
		TxType:           txType,
		CallType:         ParseCallType(trace.CallType),
	}
	if trace.Error != "" {
		errStr := trace.Error
		itx.Error = &errStr
	}

	return itx, nil
}

// GetOrCreateInternalTxFromTrace stores the trace node keyed by
// (transaction, trace address). Re-ingesting the same trace is a no-op get;
// the bool reports whether a row was created.
func (db *DB) GetOrCreateInternalTxFromTrace(
	ctx context.Context, trace *ethereum.Trace, tx *EthereumTx,
) (*InternalTx, bool, error) {
	stored := new(InternalTx)
	err := db.g.WithContext(ctx).
		First(stored, "ethereum_tx_hash = ? AND trace_address = ?", tx.TxHash, trace.TraceAddress.String()).
		Error
	if err == nil {
		return stored, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, "getting internal tx")
	}

	itx, err := BuildInternalTxFromTrace(trace, tx)
	if err != nil {
		return nil, false, err
	}

	// A concurrent scanner may have raced the First above; DoNothing keeps
	// creation idempotent under the unique (tx, trace address) key.
	err = db.g.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(itx).
		Error
	if err != nil {
		return nil, false, errors.Wrap(err, "creating internal tx")
	}

	return itx, true, nil
}

// InternalTxsCanBeDecoded returns, oldest first, every internal transaction
// satisfying the decoding-eligibility predicate that has no decoded record
// yet: the work queue feeding the decoder.
func (db *DB) InternalTxsCanBeDecoded(ctx context.Context, limit int) ([]InternalTx, error) {
	query := db.g.WithContext(ctx).
		Joins("EthereumTx").
		Joins("LEFT JOIN internal_txs_decoded ON internal_txs_decoded.internal_tx_id = internal_txs.id").
		Where("internal_txs.call_type = ?", CallTypeDelegateCall).
		Where("internal_txs.error IS NULL").
		Where("internal_txs.data IS NOT NULL").
		Where(`"EthereumTx"."status" = ?`, 1).
		Where("internal_txs_decoded.internal_tx_id IS NULL").
		Order("internal_txs.id")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var itxs []InternalTx
	if err := query.Find(&itxs).Error; err != nil {
		return nil, errors.Wrap(err, "querying decodable internal txs")
	}

	return itxs, nil
}

// tracesOfTransaction returns all internal transactions of one transaction in
// call-tree traversal order.
func (db *DB) tracesOfTransaction(ctx context.Context, txHash string) ([]InternalTx, error) {
	var itxs []InternalTx
	err := db.g.WithContext(ctx).
		Where("ethereum_tx_hash = ?", txHash).
		Find(&itxs).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying internal txs of transaction")
	}

	sort.Slice(itxs, func(i, j int) bool {
		return ethereum.CompareTraceAddressStrings(itxs[i].TraceAddress, itxs[j].TraceAddress) < 0
	})

	return itxs, nil
}

// NextTrace returns the successor of the internal transaction in the
// traversal order of its transaction, nil at the end.
func (db *DB) NextTrace(ctx context.Context, itx *InternalTx) (*InternalTx, error) {
	return db.neighborTrace(ctx, itx, 1)
}

// PreviousTrace returns the predecessor, nil at the beginning.
func (db *DB) PreviousTrace(ctx context.Context, itx *InternalTx) (*InternalTx, error) {
	return db.neighborTrace(ctx, itx, -1)
}

func (db *DB) neighborTrace(ctx context.Context, itx *InternalTx, offset int) (*InternalTx, error) {
	itxs, err := db.tracesOfTransaction(ctx, itx.EthereumTxHash)
	if err != nil {
		return nil, err
	}

	for i := range itxs {
		if itxs[i].TraceAddress == itx.TraceAddress {
			neighbor := i + offset
			if neighbor < 0 || neighbor >= len(itxs) {
				return nil, nil
			}

			return &itxs[neighbor], nil
		}
	}

	return nil, nil
}

// Transfer is one incoming movement of ether or tokens for an address.
// TokenAddress is nil for plain ether transfers.
type Transfer struct {
	BlockNumber     uint64    `json:"blockNumber"`
	TransactionHash string    `json:"transactionHash"`
	ToAddress       string    `json:"to"`
	FromAddress     string    `json:"from"`
	Value           Uint256   `json:"value"`
	ExecutionDate   time.Time `json:"executionDate"`
	TokenAddress    *string   `json:"tokenAddress"`
}

// IncomingTxs returns ether transfers into the address: plain CALL internal
// transactions with positive value, ordered by descending block number.
func (db *DB) IncomingTxs(ctx context.Context, address string) ([]Transfer, error) {
	var transfers []Transfer
	err := db.g.WithContext(ctx).Raw(`
		SELECT et.block_number AS block_number,
		       it.ethereum_tx_hash AS transaction_hash,
		       it.to_address AS to_address,
		       it.from_address AS from_address,
		       it.value AS value,
		       b.timestamp AS execution_date,
		       NULL AS token_address
		FROM internal_txs it
		JOIN ethereum_txs et ON et.tx_hash = it.ethereum_tx_hash
		JOIN ethereum_blocks b ON b.number = et.block_number
		WHERE it.to_address = ? AND it.call_type = ? AND it.value > 0
		ORDER BY et.block_number DESC`,
		address, CallTypeCall,
	).Scan(&transfers).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying incoming txs")
	}

	return transfers, nil
}

// IncomingTxsWithTokens unions incoming ether and ERC-20 token transfers,
// ordered by descending block number.
func (db *DB) IncomingTxsWithTokens(ctx context.Context, address string) ([]Transfer, error) {
	ether, err := db.IncomingTxs(ctx, address)
	if err != nil {
		return nil, err
	}

	tokens, err := db.IncomingTokens(ctx, address)
	if err != nil {
		return nil, err
	}

	merged := append(ether, tokens...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].BlockNumber > merged[j].BlockNumber
	})

	return merged, nil
}
