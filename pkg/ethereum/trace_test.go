package ethereum

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTraceAddressString(t *testing.T) {
	require.Equal(t, "", TraceAddress{}.String())
	require.Equal(t, "0", TraceAddress{0}.String())
	require.Equal(t, "0,1,2", TraceAddress{0, 1, 2}.String())
}

func TestParseTraceAddress(t *testing.T) {
	ta, err := ParseTraceAddress("0,10,2")
	require.NoError(t, err)
	require.Equal(t, TraceAddress{0, 10, 2}, ta)

	ta, err = ParseTraceAddress("")
	require.NoError(t, err)
	require.Empty(t, ta)

	_, err = ParseTraceAddress("0,x")
	require.Error(t, err)
}

func TestTraceAddressRoundTrip(t *testing.T) {
	for _, ta := range []TraceAddress{{}, {0}, {1, 2, 3}, {10, 0, 25}} {
		parsed, err := ParseTraceAddress(ta.String())
		require.NoError(t, err)
		require.Equal(t, ta, parsed)
	}
}

func TestTraceAddressCompareNumeric(t *testing.T) {
	// "2" must order before "10" even though it does not lexicographically.
	require.Equal(t, -1, TraceAddress{2}.Compare(TraceAddress{10}))
	require.Equal(t, 1, TraceAddress{10}.Compare(TraceAddress{2}))
	require.Equal(t, 0, TraceAddress{0, 1}.Compare(TraceAddress{0, 1}))

	// A parent orders before its children.
	require.Equal(t, -1, TraceAddress{0}.Compare(TraceAddress{0, 0}))
	require.Equal(t, 1, TraceAddress{0, 0}.Compare(TraceAddress{0}))
}

func TestTraceAddressSortOrderIsTraversalOrder(t *testing.T) {
	addresses := []TraceAddress{
		{1}, {0, 10}, {}, {0}, {0, 2}, {1, 0}, {0, 0},
	}

	sort.Slice(addresses, func(i, j int) bool {
		return addresses[i].Compare(addresses[j]) < 0
	})

	want := []TraceAddress{
		{}, {0}, {0, 0}, {0, 2}, {0, 10}, {1}, {1, 0},
	}
	require.Equal(t, want, addresses)
}

func TestSortKeyMatchesNumericOrder(t *testing.T) {
	require.Less(t, TraceAddress{2}.SortKey(), TraceAddress{10}.SortKey())
	require.Less(t, TraceAddress{0}.SortKey(), TraceAddress{0, 0}.SortKey())
}

func TestCompareTraceAddressStrings(t *testing.T) {
	require.Equal(t, -1, CompareTraceAddressStrings("2", "10"))
	require.Equal(t, 1, CompareTraceAddressStrings("10", "2"))
	require.Equal(t, 0, CompareTraceAddressStrings("0,1", "0,1"))
}
