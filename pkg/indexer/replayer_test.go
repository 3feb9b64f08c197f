package indexer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/safewatch/safe-indexer/pkg/database"
)

const (
	safeAddress = "0x5AFE000000000000000000000000000000000001"
	masterCopy  = "0xb6029EA3B2c51D09a50B53CA8012FeEB05bDa35A"
	ownerA      = "0x0000000000000000000000000000000000000aaa"
	ownerB      = "0x0000000000000000000000000000000000000bbb"
	ownerC      = "0x0000000000000000000000000000000000000ccc"
)

// mockStore keeps snapshots in memory, newest first per address.
type mockStore struct {
	pending   []database.InternalTxDecoded
	statuses  map[string][]*database.SafeStatus
	contracts map[string]*database.SafeContract
	processed map[uint64]bool
}

func newMockStore() *mockStore {
	return &mockStore{
		statuses:  map[string][]*database.SafeStatus{},
		contracts: map[string]*database.SafeContract{},
		processed: map[uint64]bool{},
	}
}

func (m *mockStore) PendingDecodedForSafes(_ context.Context, _ int) ([]database.InternalTxDecoded, error) {
	var out []database.InternalTxDecoded
	for _, d := range m.pending {
		if !m.processed[d.InternalTxID] {
			out = append(out, d)
		}
	}

	return out, nil
}

func (m *mockStore) LastStatusForAddress(_ context.Context, address string) (*database.SafeStatus, error) {
	history := m.statuses[address]
	if len(history) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return history[len(history)-1], nil
}

func (m *mockStore) SaveStatusAndMarkProcessed(
	_ context.Context, status *database.SafeStatus, decoded *database.InternalTxDecoded,
) error {
	if status != nil {
		m.statuses[status.Address] = append(m.statuses[status.Address], status)
	}
	m.processed[decoded.InternalTxID] = true

	return nil
}

func (m *mockStore) GetOrCreateSafeContract(
	_ context.Context, address, ethereumTxHash string, blockNumber uint64,
) (*database.SafeContract, bool, error) {
	if contract, ok := m.contracts[address]; ok {
		return contract, false, nil
	}

	contract := &database.SafeContract{
		Address:            address,
		EthereumTxHash:     ethereumTxHash,
		InitialBlockNumber: blockNumber,
	}
	m.contracts[address] = contract

	return contract, true, nil
}

func decodedOp(t *testing.T, id uint64, functionName string, args map[string]interface{}) database.InternalTxDecoded {
	raw, err := json.Marshal(args)
	require.NoError(t, err)

	from := safeAddress
	to := masterCopy
	blockNumber := uint64(100)

	return database.InternalTxDecoded{
		InternalTxID: id,
		FunctionName: functionName,
		Arguments:    raw,
		InternalTx: &database.InternalTx{
			ID:             id,
			EthereumTxHash: "0xaa",
			FromAddress:    &from,
			ToAddress:      &to,
			EthereumTx: &database.EthereumTx{
				TxHash:      "0xaa",
				BlockNumber: &blockNumber,
			},
		},
	}
}

func setupOp(t *testing.T, id uint64) database.InternalTxDecoded {
	return decodedOp(t, id, "setup", map[string]interface{}{
		"_owners":    []string{ownerA, ownerB},
		"_threshold": "2",
	})
}

func TestReplaySetup(t *testing.T) {
	store := newMockStore()
	store.pending = []database.InternalTxDecoded{setupOp(t, 1)}

	folded, err := NewReplayer(store, 100).Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, folded)

	status, err := store.LastStatusForAddress(context.Background(), safeAddress)
	require.NoError(t, err)
	require.Equal(t, []string{ownerA, ownerB}, []string(status.Owners))
	require.Equal(t, uint64(2), status.Threshold)
	require.Equal(t, uint64(0), status.Nonce)
	require.Equal(t, masterCopy, status.MasterCopy)

	// The setup registers the safe for monitoring.
	contract, ok := store.contracts[safeAddress]
	require.True(t, ok)
	require.Equal(t, uint64(100), contract.InitialBlockNumber)
}

func TestReplayOwnerManagement(t *testing.T) {
	store := newMockStore()
	store.pending = []database.InternalTxDecoded{
		setupOp(t, 1),
		decodedOp(t, 2, "addOwnerWithThreshold", map[string]interface{}{"owner": ownerC, "_threshold": "3"}),
		decodedOp(t, 3, "swapOwner", map[string]interface{}{"prevOwner": ownerC, "oldOwner": ownerA, "newOwner": "0x0000000000000000000000000000000000000ddd"}),
		decodedOp(t, 4, "removeOwner", map[string]interface{}{"prevOwner": ownerC, "owner": ownerB, "_threshold": "1"}),
	}

	folded, err := NewReplayer(store, 100).Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, folded)

	status, err := store.LastStatusForAddress(context.Background(), safeAddress)
	require.NoError(t, err)
	require.Equal(t, []string{ownerC, "0x0000000000000000000000000000000000000ddd"}, []string(status.Owners))
	require.Equal(t, uint64(1), status.Threshold)
}

func TestReplayExecTransactionBumpsNonce(t *testing.T) {
	store := newMockStore()
	store.pending = []database.InternalTxDecoded{
		setupOp(t, 1),
		decodedOp(t, 2, "execTransaction", map[string]interface{}{"to": ownerA, "value": "1"}),
		decodedOp(t, 3, "execTransaction", map[string]interface{}{"to": ownerB, "value": "2"}),
	}

	folded, err := NewReplayer(store, 100).Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, folded)

	status, err := store.LastStatusForAddress(context.Background(), safeAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(2), status.Nonce)
	require.Equal(t, uint64(2), status.Threshold)
}

func TestReplayChangeMasterCopy(t *testing.T) {
	newMaster := "0x34CfAC646f301356fAa8B21e94227e3583Fe3F5F"
	store := newMockStore()
	store.pending = []database.InternalTxDecoded{
		setupOp(t, 1),
		decodedOp(t, 2, "changeMasterCopy", map[string]interface{}{"_masterCopy": newMaster}),
	}

	folded, err := NewReplayer(store, 100).Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, folded)

	status, err := store.LastStatusForAddress(context.Background(), safeAddress)
	require.NoError(t, err)
	require.Equal(t, newMaster, status.MasterCopy)
}

func TestReplayUntrackedOperationNoNewStatus(t *testing.T) {
	store := newMockStore()
	store.pending = []database.InternalTxDecoded{
		setupOp(t, 1),
		decodedOp(t, 2, "enableModule", map[string]interface{}{"module": ownerC}),
	}

	folded, err := NewReplayer(store, 100).Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, folded)
	require.True(t, store.processed[2])

	// The module change leaves the setup snapshot as the latest.
	status, err := store.LastStatusForAddress(context.Background(), safeAddress)
	require.NoError(t, err)
	require.Equal(t, uint64(1), status.InternalTxID)
}

func TestReplayMissingPreviousStateLeftPending(t *testing.T) {
	store := newMockStore()
	store.pending = []database.InternalTxDecoded{
		decodedOp(t, 1, "execTransaction", map[string]interface{}{"to": ownerA}),
	}

	folded, err := NewReplayer(store, 100).Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, folded)
	require.False(t, store.processed[1])
}
