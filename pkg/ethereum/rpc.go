package ethereum

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// RPCClient implements NodeClient over a JSON-RPC endpoint. Traces require a
// node exposing the parity trace namespace (trace_filter).
type RPCClient struct {
	c *rpc.Client
}

func Dial(ctx context.Context, url string) (*RPCClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing node %s", url)
	}

	return &RPCClient{c: c}, nil
}

func NewRPCClient(c *rpc.Client) *RPCClient {
	return &RPCClient{c: c}
}

func (cl *RPCClient) Close() {
	cl.c.Close()
}

type rpcBlock struct {
	Number     hexutil.Uint64 `json:"number"`
	GasLimit   hexutil.Uint64 `json:"gasLimit"`
	GasUsed    hexutil.Uint64 `json:"gasUsed"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
}

func (b *rpcBlock) toBlock() *Block {
	return &Block{
		Number:     uint64(b.Number),
		GasLimit:   uint64(b.GasLimit),
		GasUsed:    uint64(b.GasUsed),
		Timestamp:  uint64(b.Timestamp),
		Hash:       b.Hash.Hex(),
		ParentHash: b.ParentHash.Hex(),
	}
}

type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	Gas         hexutil.Uint64  `json:"gas"`
	GasPrice    *hexutil.Big    `json:"gasPrice"`
	Nonce       hexutil.Uint64  `json:"nonce"`
	Input       hexutil.Bytes   `json:"input"`
}

func (t *rpcTransaction) toTransaction() *Transaction {
	tx := &Transaction{
		Hash:     t.Hash.Hex(),
		From:     t.From.Hex(),
		Value:    t.Value.ToInt(),
		Gas:      uint64(t.Gas),
		GasPrice: t.GasPrice.ToInt(),
		Nonce:    uint64(t.Nonce),
		Data:     t.Input,
	}
	if t.BlockNumber != nil {
		number := t.BlockNumber.ToInt().Uint64()
		tx.BlockNumber = &number
	}
	if t.To != nil {
		to := t.To.Hex()
		tx.To = &to
	}

	return tx
}

type rpcReceipt struct {
	TransactionHash  common.Hash     `json:"transactionHash"`
	BlockNumber      *hexutil.Big    `json:"blockNumber"`
	GasUsed          hexutil.Uint64  `json:"gasUsed"`
	Status           *hexutil.Uint64 `json:"status"`
	TransactionIndex hexutil.Uint64  `json:"transactionIndex"`
	Logs             []*types.Log    `json:"logs"`
}

func (r *rpcReceipt) toReceipt() *Receipt {
	receipt := &Receipt{
		TxHash:           r.TransactionHash.Hex(),
		GasUsed:          uint64(r.GasUsed),
		TransactionIndex: uint64(r.TransactionIndex),
		Logs:             make([]Log, len(r.Logs)),
	}
	if r.BlockNumber != nil {
		number := r.BlockNumber.ToInt().Uint64()
		receipt.BlockNumber = &number
	}
	if r.Status != nil {
		status := int64(*r.Status)
		receipt.Status = &status
	}

	for i, log := range r.Logs {
		topics := make([]string, len(log.Topics))
		for j, topic := range log.Topics {
			topics[j] = topic.Hex()
		}

		receipt.Logs[i] = Log{
			Address:  log.Address.Hex(),
			Topics:   topics,
			Data:     hexutil.Encode(log.Data),
			LogIndex: log.Index,
		}
	}

	return receipt
}

type rpcTraceAction struct {
	From          *common.Address `json:"from"`
	To            *common.Address `json:"to"`
	Address       *common.Address `json:"address"`       // SELF_DESTRUCT
	RefundAddress *common.Address `json:"refundAddress"` // SELF_DESTRUCT
	Value         *hexutil.Big    `json:"value"`
	Balance       *hexutil.Big    `json:"balance"` // SELF_DESTRUCT
	Gas           *hexutil.Uint64 `json:"gas"`
	Input         hexutil.Bytes   `json:"input"`
	Init          hexutil.Bytes   `json:"init"` // CREATE
	CallType      string          `json:"callType"`
}

type rpcTraceResult struct {
	GasUsed hexutil.Uint64  `json:"gasUsed"`
	Address *common.Address `json:"address"` // CREATE
	Code    hexutil.Bytes   `json:"code"`    // CREATE
	Output  hexutil.Bytes   `json:"output"`
}

type rpcTrace struct {
	Action          rpcTraceAction  `json:"action"`
	Result          *rpcTraceResult `json:"result"`
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	TraceAddress    []int           `json:"traceAddress"`
	Type            string          `json:"type"`
	Error           string          `json:"error"`
}

func (t *rpcTrace) toTrace() *Trace {
	trace := &Trace{
		TransactionHash: t.TransactionHash.Hex(),
		BlockNumber:     uint64(t.BlockNumber),
		Type:            t.Type,
		TraceAddress:    TraceAddress(t.TraceAddress),
		Error:           t.Error,
		CallType:        t.Action.CallType,
	}

	if t.Action.From != nil {
		trace.From = t.Action.From.Hex()
	}
	switch {
	case t.Action.To != nil:
		trace.To = t.Action.To.Hex()
	case t.Action.Address != nil:
		trace.To = t.Action.Address.Hex()
	}
	if t.Action.RefundAddress != nil {
		trace.RefundAddress = t.Action.RefundAddress.Hex()
	}
	switch {
	case t.Action.Value != nil:
		trace.Value = t.Action.Value.ToInt()
	case t.Action.Balance != nil:
		trace.Value = t.Action.Balance.ToInt()
	}
	if t.Action.Gas != nil {
		trace.Gas = uint64(*t.Action.Gas)
	}
	if len(t.Action.Input) > 0 {
		trace.Data = t.Action.Input
	} else if len(t.Action.Init) > 0 {
		trace.Data = t.Action.Init
	}

	if t.Result != nil {
		trace.GasUsed = uint64(t.Result.GasUsed)
		trace.Code = t.Result.Code
		trace.Output = t.Result.Output
		if t.Result.Address != nil {
			trace.ContractAddress = t.Result.Address.Hex()
		}
	}

	return trace
}

func (cl *RPCClient) CurrentBlockNumber(ctx context.Context) (uint64, error) {
	var number hexutil.Uint64
	if err := cl.c.CallContext(ctx, &number, "eth_blockNumber"); err != nil {
		return 0, errors.Wrap(err, "eth_blockNumber")
	}

	return uint64(number), nil
}

func (cl *RPCClient) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	var raw *rpcBlock
	err := cl.c.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.Uint64(number), false)
	if err != nil {
		return nil, errors.Wrapf(err, "eth_getBlockByNumber %d", number)
	}
	if raw == nil {
		return nil, errors.Wrapf(ErrNotFound, "block %d", number)
	}

	return raw.toBlock(), nil
}

func (cl *RPCClient) BlocksByNumbers(ctx context.Context, numbers []uint64) ([]*Block, error) {
	raws := make([]*rpcBlock, len(numbers))
	batch := make([]rpc.BatchElem, len(numbers))

	for i, number := range numbers {
		batch[i] = rpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{hexutil.Uint64(number), false},
			Result: &raws[i],
		}
	}

	if err := cl.batchCall(ctx, batch); err != nil {
		return nil, errors.Wrap(err, "eth_getBlockByNumber batch")
	}

	blocks := make([]*Block, len(numbers))
	for i, raw := range raws {
		if raw != nil {
			blocks[i] = raw.toBlock()
		}
	}

	return blocks, nil
}

func (cl *RPCClient) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var raw *rpcTransaction
	err := cl.c.CallContext(ctx, &raw, "eth_getTransactionByHash", common.HexToHash(hash))
	if err != nil {
		return nil, errors.Wrapf(err, "eth_getTransactionByHash %s", hash)
	}
	if raw == nil {
		return nil, errors.Wrapf(ErrNotFound, "transaction %s", hash)
	}

	return raw.toTransaction(), nil
}

func (cl *RPCClient) TransactionsByHashes(ctx context.Context, hashes []string) ([]*Transaction, error) {
	raws := make([]*rpcTransaction, len(hashes))
	batch := make([]rpc.BatchElem, len(hashes))

	for i, hash := range hashes {
		batch[i] = rpc.BatchElem{
			Method: "eth_getTransactionByHash",
			Args:   []interface{}{common.HexToHash(hash)},
			Result: &raws[i],
		}
	}

	if err := cl.batchCall(ctx, batch); err != nil {
		return nil, errors.Wrap(err, "eth_getTransactionByHash batch")
	}

	txs := make([]*Transaction, len(hashes))
	for i, raw := range raws {
		if raw != nil {
			txs[i] = raw.toTransaction()
		}
	}

	return txs, nil
}

func (cl *RPCClient) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	var raw *rpcReceipt
	err := cl.c.CallContext(ctx, &raw, "eth_getTransactionReceipt", common.HexToHash(hash))
	if err != nil {
		return nil, errors.Wrapf(err, "eth_getTransactionReceipt %s", hash)
	}
	if raw == nil {
		return nil, errors.Wrapf(ErrNotFound, "receipt %s", hash)
	}

	return raw.toReceipt(), nil
}

func (cl *RPCClient) TransactionReceipts(ctx context.Context, hashes []string) ([]*Receipt, error) {
	raws := make([]*rpcReceipt, len(hashes))
	batch := make([]rpc.BatchElem, len(hashes))

	for i, hash := range hashes {
		batch[i] = rpc.BatchElem{
			Method: "eth_getTransactionReceipt",
			Args:   []interface{}{common.HexToHash(hash)},
			Result: &raws[i],
		}
	}

	if err := cl.batchCall(ctx, batch); err != nil {
		return nil, errors.Wrap(err, "eth_getTransactionReceipt batch")
	}

	receipts := make([]*Receipt, len(hashes))
	for i, raw := range raws {
		if raw != nil {
			receipts[i] = raw.toReceipt()
		}
	}

	return receipts, nil
}

type traceFilterParams struct {
	FromBlock   hexutil.Uint64 `json:"fromBlock"`
	ToBlock     hexutil.Uint64 `json:"toBlock"`
	FromAddress []string       `json:"fromAddress,omitempty"`
	ToAddress   []string       `json:"toAddress,omitempty"`
}

func (cl *RPCClient) TraceFilter(
	ctx context.Context, fromBlock, toBlock uint64, fromAddresses, toAddresses []string,
) ([]*Trace, error) {
	params := traceFilterParams{
		FromBlock:   hexutil.Uint64(fromBlock),
		ToBlock:     hexutil.Uint64(toBlock),
		FromAddress: fromAddresses,
		ToAddress:   toAddresses,
	}

	var raws []rpcTrace
	if err := cl.c.CallContext(ctx, &raws, "trace_filter", params); err != nil {
		return nil, errors.Wrapf(err, "trace_filter %d-%d", fromBlock, toBlock)
	}

	traces := make([]*Trace, len(raws))
	for i := range raws {
		traces[i] = raws[i].toTrace()
	}

	return traces, nil
}

type logFilterParams struct {
	FromBlock hexutil.Uint64  `json:"fromBlock"`
	ToBlock   hexutil.Uint64  `json:"toBlock"`
	Topics    [][]common.Hash `json:"topics"`
}

func (cl *RPCClient) FilterLogs(
	ctx context.Context, fromBlock, toBlock uint64, topic string,
) ([]FilterLog, error) {
	params := logFilterParams{
		FromBlock: hexutil.Uint64(fromBlock),
		ToBlock:   hexutil.Uint64(toBlock),
		Topics:    [][]common.Hash{{common.HexToHash(topic)}},
	}

	var raws []types.Log
	if err := cl.c.CallContext(ctx, &raws, "eth_getLogs", params); err != nil {
		return nil, errors.Wrapf(err, "eth_getLogs %d-%d", fromBlock, toBlock)
	}

	logs := make([]FilterLog, len(raws))
	for i := range raws {
		topics := make([]string, len(raws[i].Topics))
		for j, t := range raws[i].Topics {
			topics[j] = t.Hex()
		}

		logs[i] = FilterLog{
			Log: Log{
				Address:  raws[i].Address.Hex(),
				Topics:   topics,
				Data:     hexutil.Encode(raws[i].Data),
				LogIndex: raws[i].Index,
			},
			TransactionHash: raws[i].TxHash.Hex(),
			BlockNumber:     raws[i].BlockNumber,
		}
	}

	return logs, nil
}

func (cl *RPCClient) batchCall(ctx context.Context, batch []rpc.BatchElem) error {
	if len(batch) == 0 {
		return nil
	}

	if err := cl.c.BatchCallContext(ctx, batch); err != nil {
		return err
	}

	// Per-item errors are tolerated: the slot stays nil and the caller
	// retries it with the singular call.
	return nil
}
