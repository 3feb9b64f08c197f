package database

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safewatch/safe-indexer/pkg/ethereum"
)

func delegateCallTx(status int64) *InternalTx {
	ct := CallTypeDelegateCall
	blockNumber := uint64(100)

	return &InternalTx{
		EthereumTxHash: "0xaa",
		TraceAddress:   "0",
		Data:           []byte{0xde, 0xad},
		TxType:         TxTypeCall,
		CallType:       &ct,
		EthereumTx: &EthereumTx{
			TxHash:      "0xaa",
			BlockNumber: &blockNumber,
			Status:      &status,
		},
	}
}

func TestCanBeDecoded(t *testing.T) {
	itx := delegateCallTx(1)
	require.True(t, itx.CanBeDecoded())
}

func TestCanBeDecodedRevertedTx(t *testing.T) {
	itx := delegateCallTx(0)
	require.False(t, itx.CanBeDecoded())
}

func TestCanBeDecodedPlainCall(t *testing.T) {
	itx := delegateCallTx(1)
	ct := CallTypeCall
	itx.CallType = &ct
	require.False(t, itx.CanBeDecoded())
}

func TestCanBeDecodedTraceError(t *testing.T) {
	itx := delegateCallTx(1)
	traceErr := "Out of gas"
	itx.Error = &traceErr
	require.False(t, itx.CanBeDecoded())
}

func TestCanBeDecodedEmptyData(t *testing.T) {
	itx := delegateCallTx(1)
	itx.Data = nil
	require.False(t, itx.CanBeDecoded())
}

func TestCanBeDecodedUnminedTx(t *testing.T) {
	itx := delegateCallTx(1)
	itx.EthereumTx.BlockNumber = nil
	itx.EthereumTx.Status = nil
	require.False(t, itx.CanBeDecoded())
}

func transferEvent(t *testing.T, args map[string]interface{}) *EthereumEvent {
	raw, err := json.Marshal(args)
	require.NoError(t, err)

	return &EthereumEvent{
		Topic:     ERC20721TransferTopic,
		Arguments: raw,
	}
}

func TestEventClassification(t *testing.T) {
	erc20 := transferEvent(t, map[string]interface{}{"from": "0x1", "to": "0x2", "value": "5"})
	require.True(t, erc20.IsERC20())
	require.False(t, erc20.IsERC721())

	erc721 := transferEvent(t, map[string]interface{}{"from": "0x1", "to": "0x2", "tokenId": "7"})
	require.True(t, erc721.IsERC721())
	require.False(t, erc721.IsERC20())
}

func TestEventClassificationOtherTopic(t *testing.T) {
	event := transferEvent(t, map[string]interface{}{"value": "5"})
	event.Topic = "0x0000000000000000000000000000000000000000000000000000000000000000"
	require.False(t, event.IsERC20())
	require.False(t, event.IsERC721())
}

func TestBlockFromRawConfirmed(t *testing.T) {
	raw := &ethereum.Block{
		Number:     100,
		Hash:       "0xblock",
		ParentHash: "0xparent",
		Timestamp:  1700000000,
	}

	require.True(t, BlockFromRaw(raw, 106, 6).Confirmed)
	require.False(t, BlockFromRaw(raw, 105, 6).Confirmed)
	require.False(t, BlockFromRaw(raw, 0, 6).Confirmed)
}

func TestApplyReceiptAndBlockUpgradesInPlace(t *testing.T) {
	record := &EthereumTx{
		TxHash:      "0xaa",
		FromAddress: "0xsender",
		Nonce:       7,
		Value:       NewUint256(1000),
		Data:        []byte{0x01},
	}

	status := int64(1)
	block := &EthereumBlock{Number: 50}
	receipt := &ethereum.Receipt{
		GasUsed:          21000,
		Status:           &status,
		TransactionIndex: 3,
	}

	upgraded, err := applyReceiptAndBlock(record, block, receipt)
	require.NoError(t, err)
	require.True(t, upgraded)

	require.Equal(t, uint64(50), *record.BlockNumber)
	require.Equal(t, uint64(21000), *record.GasUsed)
	require.Equal(t, int64(1), *record.Status)
	require.Equal(t, uint64(3), *record.TransactionIndex)

	// The pre-existing fields survive the upgrade.
	require.Equal(t, "0xsender", record.FromAddress)
	require.Equal(t, uint64(7), record.Nonce)
	require.Equal(t, 0, record.Value.Cmp(big.NewInt(1000)))
	require.Equal(t, []byte{0x01}, record.Data)
}

func TestApplyReceiptAndBlockMinedNoop(t *testing.T) {
	mined := uint64(40)
	record := &EthereumTx{TxHash: "0xaa", BlockNumber: &mined}

	status := int64(1)
	upgraded, err := applyReceiptAndBlock(record, &EthereumBlock{Number: 50}, &ethereum.Receipt{Status: &status})
	require.NoError(t, err)
	require.False(t, upgraded)
	require.Equal(t, uint64(40), *record.BlockNumber)
}

func TestUint256RoundTrip(t *testing.T) {
	original := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	value := new(Uint256)
	require.NoError(t, value.Scan(original))

	dbValue, err := value.Value()
	require.NoError(t, err)
	require.Equal(t, original, dbValue)

	encoded, err := json.Marshal(value)
	require.NoError(t, err)
	require.Equal(t, `"`+original+`"`, string(encoded))

	decoded := new(Uint256)
	require.NoError(t, json.Unmarshal(encoded, decoded))
	require.Equal(t, 0, decoded.Cmp(&value.Int))
}
