package ethereum

import (
	"math/big"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when the node has no data at all for a requested
// hash or number. Callers must not retry a NotFound automatically, since the
// hash may simply be invalid. "Found but pending" is not an error: it is
// signalled by a nil BlockNumber on the returned transaction or receipt.
var ErrNotFound = errors.New("not found on node")

// Block is the subset of a block header the indexer persists.
type Block struct {
	Number     uint64
	GasLimit   uint64
	GasUsed    uint64
	Timestamp  uint64
	Hash       string
	ParentHash string
}

// Transaction is a canonical transaction as returned by the node. BlockNumber
// is nil while the transaction is pending.
type Transaction struct {
	Hash        string
	BlockNumber *uint64
	From        string
	To          *string
	Value       *big.Int
	Gas         uint64
	GasPrice    *big.Int
	Nonce       uint64
	Data        []byte
}

// Receipt carries mined transaction data. BlockNumber is nil for pending
// receipts, Status is nil for pre-Byzantium transactions.
type Receipt struct {
	TxHash           string
	BlockNumber      *uint64
	GasUsed          uint64
	Status           *int64
	TransactionIndex uint64
	Logs             []Log
}

// Log is one receipt log entry.
type Log struct {
	Address  string   `json:"address"`
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	LogIndex uint     `json:"logIndex"`
}

// FilterLog is one eth_getLogs result: a log plus its position on chain.
type FilterLog struct {
	Log
	TransactionHash string
	BlockNumber     uint64
}

// Trace is one node of the execution call tree, in the shape returned by
// trace_filter / trace_transaction.
type Trace struct {
	TransactionHash string
	BlockNumber     uint64
	Type            string
	TraceAddress    TraceAddress
	Error           string

	// Action fields.
	From          string
	To            string   // `address` for SELF_DESTRUCT
	Value         *big.Int // `balance` for SELF_DESTRUCT
	Gas           uint64
	Data          []byte // `input` for CALL, `init` for CREATE
	CallType      string // "call" / "delegatecall" / ..., empty for CREATE and SELF_DESTRUCT
	RefundAddress string // SELF_DESTRUCT

	// Result fields, zero-valued when the trace errored.
	GasUsed         uint64
	ContractAddress string // CREATE
	Code            []byte // CREATE
	Output          []byte // CALL
}
