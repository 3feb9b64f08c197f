package database

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// TxType is the kind of call-tree node.
type TxType int16

const (
	TxTypeCall TxType = iota
	TxTypeCreate
	TxTypeSelfDestruct
)

// CallType is the sub-kind of a CALL trace. It is null for CREATE and
// SELF_DESTRUCT traces.
type CallType int16

const (
	CallTypeCall CallType = iota
	CallTypeDelegateCall
)

// SafeOperation is the operation field of a multisig transaction.
type SafeOperation int16

const (
	SafeOperationCall SafeOperation = iota
	SafeOperationDelegateCall
	SafeOperationCreate
)

func allEntities() []interface{} {
	return []interface{}{
		&EthereumBlock{},
		&EthereumTx{},
		&EthereumEvent{},
		&InternalTx{},
		&InternalTxDecoded{},
		&SafeStatus{},
		&SafeContract{},
		&ProxyFactory{},
		&SafeMasterCopy{},
		&MultisigTransaction{},
		&MultisigConfirmation{},
	}
}

// EthereumBlock is created lazily on first reference and mutated only to flip
// Confirmed, which is never un-set again.
type EthereumBlock struct {
	Number     uint64 `gorm:"primaryKey;autoIncrement:false"`
	GasLimit   uint64
	GasUsed    uint64
	Timestamp  time.Time
	BlockHash  string `gorm:"type:varchar(66);uniqueIndex"`
	ParentHash string `gorm:"type:varchar(66)"`
	Confirmed  bool   `gorm:"index"`
}

// EthereumTx with a nil BlockNumber is a known-but-unmined placeholder; the
// receipt fields (GasUsed, Status, Logs, TransactionIndex) stay nil until it
// is upgraded in place.
type EthereumTx struct {
	TxHash           string         `gorm:"primaryKey;type:varchar(66)"`
	BlockNumber      *uint64        `gorm:"index"`
	Block            *EthereumBlock `gorm:"foreignKey:BlockNumber;references:Number"`
	GasUsed          *uint64
	Status           *int64
	Logs             datatypes.JSON
	TransactionIndex *uint64
	FromAddress      string `gorm:"type:varchar(42);index"`
	Gas              uint64
	GasPrice         Uint256
	Data             []byte
	Nonce            uint64
	ToAddress        *string `gorm:"type:varchar(42);index"`
	Value            Uint256
	Created          time.Time `gorm:"autoCreateTime"`
	Modified         time.Time `gorm:"autoUpdateTime"`
}

func (EthereumTx) TableName() string { return "ethereum_txs" }

// Success reports whether the transaction was mined and executed without
// reverting. Nil while unmined or for pre-Byzantium transactions.
func (tx *EthereumTx) Success() *bool {
	if tx.Status == nil {
		return nil
	}

	success := *tx.Status == 1
	return &success
}

func (tx *EthereumTx) Mined() bool {
	return tx.BlockNumber != nil
}

// EthereumEvent is one transaction log, stored with its first topic
// denormalized for classification queries.
type EthereumEvent struct {
	ID             uint64         `gorm:"primaryKey"`
	EthereumTxHash string         `gorm:"type:varchar(66);uniqueIndex:idx_event_tx_log_index;index"`
	LogIndex       uint           `gorm:"uniqueIndex:idx_event_tx_log_index"`
	Address        string         `gorm:"type:varchar(42);index"`
	Topic          string         `gorm:"type:varchar(66);index"`
	Topics         pq.StringArray `gorm:"type:text[]"`
	Arguments      datatypes.JSON
}

func (e *EthereumEvent) arguments() map[string]interface{} {
	args := make(map[string]interface{})
	if err := json.Unmarshal(e.Arguments, &args); err != nil {
		return nil
	}

	return args
}

// IsERC20 reports whether the event is a fungible-token transfer: the shared
// transfer topic with a `value` argument.
func (e *EthereumEvent) IsERC20() bool {
	if e.Topic != ERC20721TransferTopic {
		return false
	}

	_, ok := e.arguments()["value"]
	return ok
}

// IsERC721 reports whether the event is an NFT transfer: the shared transfer
// topic with a `tokenId` argument.
func (e *EthereumEvent) IsERC721() bool {
	if e.Topic != ERC20721TransferTopic {
		return false
	}

	_, ok := e.arguments()["tokenId"]
	return ok
}

// InternalTx is one node of the call tree of a transaction, uniquely
// identified by (EthereumTxHash, TraceAddress). TraceAddressSort is the
// zero-padded shadow of TraceAddress maintained on write, so SQL string
// ordering matches numeric call-tree traversal order.
type InternalTx struct {
	ID               uint64      `gorm:"primaryKey"`
	EthereumTxHash   string      `gorm:"type:varchar(66);uniqueIndex:idx_internal_tx_trace;index"`
	EthereumTx       *EthereumTx `gorm:"foreignKey:EthereumTxHash;references:TxHash"`
	TraceAddress     string      `gorm:"type:varchar(600);uniqueIndex:idx_internal_tx_trace"`
	TraceAddressSort string      `gorm:"type:varchar(600);index"`
	FromAddress      *string     `gorm:"type:varchar(42);index"`
	Gas              uint64
	Data             []byte  // `input` for CALL, `init` for CREATE
	ToAddress        *string `gorm:"type:varchar(42);index"`
	Value            Uint256
	GasUsed          uint64
	ContractAddress  *string   `gorm:"type:varchar(42);index"` // CREATE
	Code             []byte    // CREATE
	Output           []byte    // CALL
	RefundAddress    *string   `gorm:"type:varchar(42)"` // SELF_DESTRUCT
	TxType           TxType    `gorm:"index"`
	CallType         *CallType `gorm:"index"`
	Error            *string   `gorm:"type:varchar(200)"`
}

func (InternalTx) TableName() string { return "internal_txs" }

func (itx *InternalTx) IsCall() bool {
	return itx.TxType == TxTypeCall
}

func (itx *InternalTx) IsDelegateCall() bool {
	return itx.CallType != nil && *itx.CallType == CallTypeDelegateCall
}

func (itx *InternalTx) IsEtherTransfer() bool {
	return itx.CallType != nil && *itx.CallType == CallTypeCall && itx.Value.Sign() > 0
}

// CanBeDecoded is the decoding-eligibility predicate: a successful delegate
// call that carries a payload and did not error. The owning transaction must
// be loaded.
func (itx *InternalTx) CanBeDecoded() bool {
	if !itx.IsDelegateCall() || itx.Error != nil || len(itx.Data) == 0 {
		return false
	}

	if itx.EthereumTx == nil {
		return false
	}

	success := itx.EthereumTx.Success()
	return success != nil && *success
}

// InternalTxDecoded holds the decoded operation of one eligible internal
// transaction. Processed flips once the state replayer has folded it.
type InternalTxDecoded struct {
	InternalTxID uint64      `gorm:"primaryKey;autoIncrement:false"`
	InternalTx   *InternalTx `gorm:"foreignKey:InternalTxID;references:ID"`
	FunctionName string      `gorm:"type:varchar(256);index"`
	Arguments    datatypes.JSON
	Processed    bool `gorm:"index"`
}

func (InternalTxDecoded) TableName() string { return "internal_txs_decoded" }

// SafeAddress is the address whose state the operation mutates: the sender of
// the delegate call into the master copy.
func (d *InternalTxDecoded) SafeAddress() string {
	if d.InternalTx == nil || d.InternalTx.FromAddress == nil {
		return ""
	}

	return *d.InternalTx.FromAddress
}

// SafeStatus is an immutable snapshot of Safe state as of one decoded
// operation. Snapshots for an address are totally ordered by
// (block number, transaction index, trace address); the current state of the
// address is the snapshot with the maximal key. Never updated in place.
type SafeStatus struct {
	InternalTxID uint64         `gorm:"primaryKey;autoIncrement:false"`
	InternalTx   *InternalTx    `gorm:"foreignKey:InternalTxID;references:ID"`
	Address      string         `gorm:"type:varchar(42);index"`
	Owners       pq.StringArray `gorm:"type:text[]"`
	Threshold    uint64
	Nonce        uint64
	MasterCopy   string `gorm:"type:varchar(42)"`
}

// HasOwner reports whether the snapshot lists the given owner.
func (s *SafeStatus) HasOwner(owner string) bool {
	for _, o := range s.Owners {
		if o == owner {
			return true
		}
	}

	return false
}

// SafeContract is a monitored Safe. TxBlockNumber is the trace-scan cursor
// and ERC20BlockNumber the transfer-event scan cursor.
type SafeContract struct {
	Address            string `gorm:"primaryKey;type:varchar(42)"`
	EthereumTxHash     string `gorm:"type:varchar(66)"`
	InitialBlockNumber uint64
	TxBlockNumber      *uint64 `gorm:"index"`
	ERC20BlockNumber   uint64  `gorm:"index"`
}

func (c SafeContract) GetAddress() string { return c.Address }

func (c SafeContract) GetTxBlockNumber() *uint64 { return c.TxBlockNumber }

func (c SafeContract) GetInitialBlockNumber() uint64 { return c.InitialBlockNumber }

// ProxyFactory is a monitored Safe proxy factory contract.
type ProxyFactory struct {
	Address            string `gorm:"primaryKey;type:varchar(42)"`
	InitialBlockNumber uint64
	TxBlockNumber      *uint64 `gorm:"index"`
}

func (f ProxyFactory) GetAddress() string { return f.Address }

func (f ProxyFactory) GetTxBlockNumber() *uint64 { return f.TxBlockNumber }

func (f ProxyFactory) GetInitialBlockNumber() uint64 { return f.InitialBlockNumber }

// SafeMasterCopy is a monitored Safe master copy (implementation) contract.
type SafeMasterCopy struct {
	Address            string `gorm:"primaryKey;type:varchar(42)"`
	InitialBlockNumber uint64
	TxBlockNumber      *uint64 `gorm:"index"`
}

func (m SafeMasterCopy) GetAddress() string { return m.Address }

func (m SafeMasterCopy) GetTxBlockNumber() *uint64 { return m.TxBlockNumber }

func (m SafeMasterCopy) GetInitialBlockNumber() uint64 { return m.InitialBlockNumber }

// MultisigTransaction is an off-chain proposed Safe transaction keyed by its
// content hash, optionally linked to the on-chain transaction executing it.
type MultisigTransaction struct {
	SafeTxHash     string      `gorm:"primaryKey;type:varchar(66)"`
	Safe           string      `gorm:"type:varchar(42);index"`
	EthereumTxHash *string     `gorm:"type:varchar(66);index"`
	EthereumTx     *EthereumTx `gorm:"foreignKey:EthereumTxHash;references:TxHash"`
	ToAddress      *string     `gorm:"type:varchar(42);index"`
	Value          Uint256
	Data           []byte
	Operation      SafeOperation
	SafeTxGas      Uint256
	BaseGas        Uint256
	GasPrice       Uint256
	GasToken       *string `gorm:"type:varchar(42)"`
	RefundReceiver *string `gorm:"type:varchar(42)"`
	Signatures     []byte  // Set once the transaction is executed.
	Nonce          Uint256 `gorm:"index"`
	Failed         *bool
	Created        time.Time `gorm:"autoCreateTime"`
	Modified       time.Time `gorm:"autoUpdateTime"`
}

// Executed reports whether the linked on-chain transaction exists and is
// mined. The EthereumTx association must be loaded when linked.
func (mtx *MultisigTransaction) Executed() bool {
	return mtx.EthereumTxHash != nil && mtx.EthereumTx != nil && mtx.EthereumTx.Mined()
}

// ExecutionDate is the timestamp of the mined block, nil until executed.
func (mtx *MultisigTransaction) ExecutionDate() *time.Time {
	if !mtx.Executed() || mtx.EthereumTx.Block == nil {
		return nil
	}

	return &mtx.EthereumTx.Block.Timestamp
}

// Owners derived from raw signatures are not recovered here; signature
// recovery is an external boundary. Returns nil when only signatures exist.
func (mtx *MultisigTransaction) Owners() []string {
	return nil
}

// MultisigConfirmation is one owner's approval of a multisig transaction,
// unique per (transaction hash, owner). It may arrive before the transaction
// itself is known, in which case MultisigTransactionID stays nil until the
// correlator links it.
type MultisigConfirmation struct {
	ID                      uint64               `gorm:"primaryKey"`
	EthereumTxHash          *string              `gorm:"type:varchar(66)"` // Nil for off-chain signatures.
	MultisigTransactionID   *string              `gorm:"type:varchar(66);index"`
	MultisigTransaction     *MultisigTransaction `gorm:"foreignKey:MultisigTransactionID;references:SafeTxHash"`
	MultisigTransactionHash string               `gorm:"type:varchar(66);uniqueIndex:idx_confirmation_hash_owner"`
	Owner                   string               `gorm:"type:varchar(42);uniqueIndex:idx_confirmation_hash_owner"`
	Signature               []byte
	Created                 time.Time `gorm:"autoCreateTime"`
	Modified                time.Time `gorm:"autoUpdateTime"`
}
