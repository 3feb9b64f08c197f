package indexer

import (
	"context"
	"strconv"

	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/safewatch/safe-indexer/pkg/database"
)

// StatusStore is the persistence surface the state replayer needs.
type StatusStore interface {
	PendingDecodedForSafes(ctx context.Context, limit int) ([]database.InternalTxDecoded, error)
	LastStatusForAddress(ctx context.Context, address string) (*database.SafeStatus, error)
	SaveStatusAndMarkProcessed(ctx context.Context, status *database.SafeStatus, decoded *database.InternalTxDecoded) error
	GetOrCreateSafeContract(ctx context.Context, address, ethereumTxHash string, blockNumber uint64) (*database.SafeContract, bool, error)
}

// Replayer folds decoded Safe operations into immutable state snapshots, in
// chain-history order. Setup calls register new Safes for monitoring; every
// other operation derives its snapshot from the previous one.
type Replayer struct {
	store     StatusStore
	batchSize int
}

func NewReplayer(store StatusStore, batchSize int) *Replayer {
	return &Replayer{store: store, batchSize: batchSize}
}

// Process drains the pending decoded operations. The fold is strictly
// sequential: an operation whose previous snapshot is missing is left
// unprocessed for a later pass, once its setup has been seen. Returns how
// many operations were folded.
func (r *Replayer) Process(ctx context.Context) (int, error) {
	processed := 0

	for {
		pending, err := r.store.PendingDecodedForSafes(ctx, r.batchSize)
		if err != nil {
			return processed, err
		}
		if len(pending) == 0 {
			return processed, nil
		}

		foldedInBatch := 0
		for i := range pending {
			folded, err := r.applyDecoded(ctx, &pending[i])
			if err != nil {
				return processed, err
			}
			if folded {
				foldedInBatch++
				processed++
			}
		}

		// Every remaining operation is blocked on a missing predecessor;
		// another pass over the same batch cannot unblock them.
		if foldedInBatch == 0 {
			return processed, nil
		}
	}
}

// applyDecoded folds one operation. Returns whether the operation was marked
// processed.
func (r *Replayer) applyDecoded(ctx context.Context, decoded *database.InternalTxDecoded) (bool, error) {
	itx := decoded.InternalTx
	if itx == nil {
		return false, errors.Errorf("decoded operation %d has no internal tx loaded", decoded.InternalTxID)
	}

	address := decoded.SafeAddress()
	if address == "" {
		logger.Errorf("decoded operation %d has no sender, skipping", decoded.InternalTxID)
		return true, r.store.SaveStatusAndMarkProcessed(ctx, nil, decoded)
	}

	args, err := decoded.DecodedArguments()
	if err != nil {
		return false, err
	}

	if decoded.FunctionName == "setup" {
		return true, r.applySetup(ctx, decoded, address, args)
	}

	previous, err := r.store.LastStatusForAddress(ctx, address)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Infof(
			"cannot replay %s for %s yet: no previous state, waiting for setup",
			decoded.FunctionName, address,
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	status := nextStatus(previous, decoded, args)

	return true, r.store.SaveStatusAndMarkProcessed(ctx, status, decoded)
}

func (r *Replayer) applySetup(
	ctx context.Context, decoded *database.InternalTxDecoded, address string, args map[string]interface{},
) error {
	itx := decoded.InternalTx

	masterCopy := ""
	if itx.ToAddress != nil {
		masterCopy = *itx.ToAddress
	}

	status := &database.SafeStatus{
		InternalTxID: decoded.InternalTxID,
		Address:      address,
		Owners:       argAddressList(args, "_owners"),
		Threshold:    argUint64(args, "_threshold"),
		Nonce:        0,
		MasterCopy:   masterCopy,
	}

	blockNumber := uint64(0)
	if itx.EthereumTx != nil && itx.EthereumTx.BlockNumber != nil {
		blockNumber = *itx.EthereumTx.BlockNumber
	}

	_, created, err := r.store.GetOrCreateSafeContract(ctx, address, itx.EthereumTxHash, blockNumber)
	if err != nil {
		return err
	}
	if created {
		logger.Infof("discovered safe %s at block %d", address, blockNumber)
	}

	return r.store.SaveStatusAndMarkProcessed(ctx, status, decoded)
}

// nextStatus derives the snapshot after one non-setup operation. Operations
// that do not touch tracked state (module management, hash approvals,
// fallback handler changes, unknown selectors) yield no new snapshot.
func nextStatus(
	previous *database.SafeStatus, decoded *database.InternalTxDecoded, args map[string]interface{},
) *database.SafeStatus {
	owners := append([]string(nil), previous.Owners...)
	threshold := previous.Threshold
	nonce := previous.Nonce
	masterCopy := previous.MasterCopy

	switch decoded.FunctionName {
	case "addOwnerWithThreshold":
		owners = append([]string{argString(args, "owner")}, owners...)
		threshold = argUint64(args, "_threshold")
	case "removeOwner", "removeOwnerWithThreshold":
		owners = removeOwner(owners, argString(args, "owner"))
		threshold = argUint64(args, "_threshold")
	case "swapOwner":
		owners = swapOwner(owners, argString(args, "oldOwner"), argString(args, "newOwner"))
	case "changeThreshold":
		threshold = argUint64(args, "_threshold")
	case "changeMasterCopy":
		masterCopy = argString(args, "_masterCopy")
	case "execTransaction":
		nonce++
	default:
		return nil
	}

	return &database.SafeStatus{
		InternalTxID: decoded.InternalTxID,
		Address:      previous.Address,
		Owners:       owners,
		Threshold:    threshold,
		Nonce:        nonce,
		MasterCopy:   masterCopy,
	}
}

func removeOwner(owners []string, owner string) []string {
	result := owners[:0]
	for _, o := range owners {
		if o != owner {
			result = append(result, o)
		}
	}

	return result
}

func swapOwner(owners []string, oldOwner, newOwner string) []string {
	for i, o := range owners {
		if o == oldOwner {
			owners[i] = newOwner
		}
	}

	return owners
}

func argString(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

// argUint64 reads a numeric argument, which arrives as a decimal string for
// ABI big integers or as a JSON number after a storage round trip.
func argUint64(args map[string]interface{}, key string) uint64 {
	switch v := args[key].(type) {
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case float64:
		return uint64(v)
	case int:
		return uint64(v)
	case uint64:
		return v
	default:
		return 0
	}
}

func argAddressList(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []interface{}:
		addresses := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				addresses = append(addresses, s)
			}
		}
		return addresses
	default:
		return nil
	}
}
