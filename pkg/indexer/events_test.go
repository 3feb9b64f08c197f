package indexer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/safewatch/safe-indexer/pkg/database"
	"github.com/safewatch/safe-indexer/pkg/ethereum"
)

func paddedAddressTopic(address string) string {
	return "0x000000000000000000000000" + address[2:]
}

func transferLog(topics []string, data string) *ethereum.FilterLog {
	return &ethereum.FilterLog{
		Log: ethereum.Log{
			Address:  "0x6B175474E89094C44Da98b954EedeAC495271d0F",
			Topics:   topics,
			Data:     data,
			LogIndex: 3,
		},
		TransactionHash: "0xaa",
		BlockNumber:     100,
	}
}

func TestClassifyERC20Transfer(t *testing.T) {
	log := transferLog(
		[]string{
			database.ERC20721TransferTopic,
			paddedAddressTopic("0x0000000000000000000000000000000000000aaa"),
			paddedAddressTopic("0x0000000000000000000000000000000000000bbb"),
		},
		"0x00000000000000000000000000000000000000000000000000000000000003e8",
	)

	decoded, err := ClassifyTransferLog(log)
	require.NoError(t, err)
	require.Equal(t, "1000", decoded.Arguments["value"])
	require.NotContains(t, decoded.Arguments, "tokenId")
	require.Equal(t, common.HexToAddress("0xaaa").Hex(), decoded.Arguments["from"])
	require.Equal(t, common.HexToAddress("0xbbb").Hex(), decoded.Arguments["to"])
}

func TestClassifyERC721Transfer(t *testing.T) {
	log := transferLog(
		[]string{
			database.ERC20721TransferTopic,
			paddedAddressTopic("0x0000000000000000000000000000000000000aaa"),
			paddedAddressTopic("0x0000000000000000000000000000000000000bbb"),
			"0x0000000000000000000000000000000000000000000000000000000000000007",
		},
		"0x",
	)

	decoded, err := ClassifyTransferLog(log)
	require.NoError(t, err)
	require.Equal(t, "7", decoded.Arguments["tokenId"])
	require.NotContains(t, decoded.Arguments, "value")
}

func TestClassifyOtherTopic(t *testing.T) {
	log := transferLog(
		[]string{"0x0000000000000000000000000000000000000000000000000000000000000001"},
		"0x",
	)

	_, err := ClassifyTransferLog(log)
	require.ErrorIs(t, err, ErrNotTransferLog)
}

func TestClassifyTransferWithoutIndexedParties(t *testing.T) {
	// Some ancient tokens emit Transfer with no indexed arguments at all.
	log := transferLog([]string{database.ERC20721TransferTopic}, "0x")

	_, err := ClassifyTransferLog(log)
	require.ErrorIs(t, err, ErrNotTransferLog)
}
