package indexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/safewatch/safe-indexer/pkg/database"
)

func TestFirstScanBlock(t *testing.T) {
	cursor := uint64(150)
	require.Equal(t, uint64(151), firstScanBlock(database.SafeContract{
		InitialBlockNumber: 100,
		TxBlockNumber:      &cursor,
	}))

	// An address registered with no cursor yet must still have its own
	// deployment block scanned: a factory can deploy Safes in the very block
	// it was registered at.
	require.Equal(t, uint64(100), firstScanBlock(database.ProxyFactory{InitialBlockNumber: 100}))
	require.Equal(t, uint64(100), firstScanBlock(database.SafeMasterCopy{InitialBlockNumber: 100}))
	require.Equal(t, uint64(0), firstScanBlock(database.ProxyFactory{InitialBlockNumber: 0}))
}

func TestCapRange(t *testing.T) {
	// Within the cap: scan all the way to the target.
	require.Equal(t, uint64(150), capRange(100, 150, 100))

	// Beyond the cap: stop after maxBlockRange blocks.
	require.Equal(t, uint64(199), capRange(100, 500, 100))

	// Zero cap disables the limit.
	require.Equal(t, uint64(500), capRange(100, 500, 0))

	// Single block.
	require.Equal(t, uint64(100), capRange(100, 100, 100))
}

func TestUniqueStrings(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, uniqueStrings([]string{"a", "b", "a", "c", "b"}))
	require.Empty(t, uniqueStrings(nil))
}
