package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func blockPtr(v uint64) *uint64 { return &v }

func TestCursorCanAdvance(t *testing.T) {
	// An unset cursor may always be advanced: the address has never been
	// scanned, so there is no range to lose.
	require.True(t, CursorCanAdvance(nil, 100))

	// A cursor at or past the range start advances.
	require.True(t, CursorCanAdvance(blockPtr(100), 100))
	require.True(t, CursorCanAdvance(blockPtr(150), 100))

	// One block behind is within tolerance: a concurrent pass may have
	// advanced the cursor between listing the addresses and scanning.
	require.True(t, CursorCanAdvance(blockPtr(99), 100))

	// Further behind means the cursor was rewound for a rescan; advancing it
	// now would skip the rewound range for good.
	require.False(t, CursorCanAdvance(blockPtr(98), 100))
	require.False(t, CursorCanAdvance(blockPtr(0), 100))
}

func TestCursorCanAdvanceFromGenesis(t *testing.T) {
	require.True(t, CursorCanAdvance(blockPtr(0), 0))
	require.True(t, CursorCanAdvance(blockPtr(0), 1))
	require.True(t, CursorCanAdvance(nil, 0))
}

func TestValidCursorField(t *testing.T) {
	require.NoError(t, validCursorField(CursorTxBlockNumber))
	require.NoError(t, validCursorField(CursorERC20BlockNumber))
	require.Error(t, validCursorField("address"))
}
