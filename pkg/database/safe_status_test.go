package database

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func statusAt(id, block, index uint64, trace string, nonce uint64) SafeStatus {
	return SafeStatus{
		InternalTxID: id,
		Address:      "0x5afe000000000000000000000000000000000000",
		Owners:       []string{"0xaaaa000000000000000000000000000000000000"},
		Threshold:    1,
		Nonce:        nonce,
		InternalTx: &InternalTx{
			ID:           id,
			TraceAddress: trace,
			EthereumTx: &EthereumTx{
				BlockNumber:      &block,
				TransactionIndex: &index,
			},
		},
	}
}

func TestCompareStatusKeys(t *testing.T) {
	base := statusAt(1, 100, 3, "0,1", 0)

	laterBlock := statusAt(2, 101, 0, "0", 1)
	require.Equal(t, -1, CompareStatusKeys(&base, &laterBlock))
	require.Equal(t, 1, CompareStatusKeys(&laterBlock, &base))

	laterIndex := statusAt(3, 100, 4, "0", 1)
	require.Equal(t, -1, CompareStatusKeys(&base, &laterIndex))

	// Trace addresses compare numerically per segment, not as strings.
	shallow := statusAt(4, 100, 3, "0,2", 1)
	deep := statusAt(5, 100, 3, "0,10", 2)
	require.Equal(t, -1, CompareStatusKeys(&shallow, &deep))

	same := statusAt(6, 100, 3, "0,1", 0)
	require.Equal(t, 0, CompareStatusKeys(&base, &same))
}

func sortByHistoryKey(statuses []SafeStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		return CompareStatusKeys(&statuses[i], &statuses[j]) < 0
	})
}

func TestCurrentStatusUnchangedBySmallerKeys(t *testing.T) {
	current := statusAt(3, 120, 0, "0", 2)
	statuses := []SafeStatus{
		statusAt(2, 110, 5, "0,1", 1),
		current,
		statusAt(1, 100, 3, "0", 0),
	}

	sortByHistoryKey(statuses)
	require.Equal(t, current.InternalTxID, statuses[len(statuses)-1].InternalTxID)

	// A late-arriving snapshot from earlier in the chain slots into history
	// without displacing the current one.
	statuses = append(statuses, statusAt(4, 110, 5, "0,0", 1))
	sortByHistoryKey(statuses)
	require.Equal(t, current.InternalTxID, statuses[len(statuses)-1].InternalTxID)
	require.Equal(t, uint64(4), statuses[1].InternalTxID)
}
