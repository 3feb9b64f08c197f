package ethereum

import "context"

// NodeClient is the boundary to the Ethereum node. Batch variants return a
// slice aligned with the input where individual items may be nil; callers are
// expected to retry misses with the singular variant before treating them as
// errors. Singular variants return ErrNotFound / ErrPending as appropriate.
type NodeClient interface {
	CurrentBlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*Block, error)
	BlocksByNumbers(ctx context.Context, numbers []uint64) ([]*Block, error)
	TransactionByHash(ctx context.Context, hash string) (*Transaction, error)
	TransactionsByHashes(ctx context.Context, hashes []string) ([]*Transaction, error)
	TransactionReceipt(ctx context.Context, hash string) (*Receipt, error)
	TransactionReceipts(ctx context.Context, hashes []string) ([]*Receipt, error)

	// TraceFilter returns all call-tree nodes within the inclusive block
	// range whose sender is in fromAddresses or whose target is in
	// toAddresses, ordered by block. Either filter slice may be empty.
	TraceFilter(ctx context.Context, fromBlock, toBlock uint64, fromAddresses, toAddresses []string) ([]*Trace, error)

	// FilterLogs returns all logs within the inclusive block range whose
	// first topic matches topic.
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, topic string) ([]FilterLog, error)
}
