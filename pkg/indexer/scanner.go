package indexer

import (
	"context"
	"sort"

	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/safewatch/safe-indexer/pkg/database"
	"github.com/safewatch/safe-indexer/pkg/safedecoder"
)

// scanRole says which side of a call the monitored addresses sit on. Safes
// send the delegate calls into their master copy, so they are scanned as
// senders; master copies and proxy factories are scanned as targets, which
// also catches setup calls arriving from proxies not yet monitored.
type scanRole int

const (
	scanAsSender scanRole = iota
	scanAsTarget
)

// scanFamily runs one scan pass over a monitored-address family. Addresses
// close to the head are scanned all the way to it; lagging addresses stop at
// the confirmed frontier so a shallow reorg cannot poison a long catch-up.
func scanFamily[M database.MonitoredAddress](ctx context.Context, ix *Indexer, head uint64, role scanRole) error {
	almost, err := database.AlmostUpdated[M](ctx, ix.db, head, ix.confirmations, ix.updatedBlocksBehind)
	if err != nil {
		return err
	}
	if err := scanGroups[M](ctx, ix, almost, head, role); err != nil {
		return err
	}

	behind, err := database.NotUpdated[M](ctx, ix.db, head, ix.updatedBlocksBehind)
	if err != nil {
		return err
	}

	var confirmedHead uint64
	if head > ix.confirmations {
		confirmedHead = head - ix.confirmations
	}

	return scanGroups[M](ctx, ix, behind, confirmedHead, role)
}

// firstScanBlock is the first block an address' scan must cover: one past the
// cursor, or the address's own first-seen block while the cursor is still
// unset, so the deployment block itself is never skipped.
func firstScanBlock[M database.MonitoredAddress](address M) uint64 {
	if cursor := address.GetTxBlockNumber(); cursor != nil {
		return *cursor + 1
	}

	return address.GetInitialBlockNumber()
}

// scanGroups batches addresses sharing a scan start into one trace_filter
// call, so a freshly discovered Safe does not force a deep rescan for the
// rest.
func scanGroups[M database.MonitoredAddress](ctx context.Context, ix *Indexer, addresses []M, target uint64, role scanRole) error {
	groups := map[uint64][]string{}
	for _, address := range addresses {
		from := firstScanBlock(address)
		groups[from] = append(groups[from], address.GetAddress())
	}

	// Deterministic pass order, oldest range first.
	froms := make([]uint64, 0, len(groups))
	for from := range groups {
		froms = append(froms, from)
	}
	sort.Slice(froms, func(i, j int) bool { return froms[i] < froms[j] })

	for _, from := range froms {
		if from > target {
			continue
		}
		to := capRange(from, target, ix.maxBlockRange)

		if err := ix.scanTraceRange(ctx, groups[from], from, to, role); err != nil {
			return err
		}
	}

	return nil
}

// scanTraceRange ingests every call-tree node touching the addresses within
// the range, resolving owning transactions and blocks first, then advances
// the trace cursor. The cursor only moves after the rows are durable, so a
// crash replays the range instead of skipping it.
func (ix *Indexer) scanTraceRange(ctx context.Context, addresses []string, from, to uint64, role scanRole) error {
	var fromAddresses, toAddresses []string
	switch role {
	case scanAsSender:
		fromAddresses = addresses
	case scanAsTarget:
		toAddresses = addresses
	}

	traces, err := ix.node.TraceFilter(ctx, from, to, fromAddresses, toAddresses)
	if err != nil {
		return err
	}

	if len(traces) > 0 {
		logger.Debugf("found %d traces for %d addresses in blocks %d-%d", len(traces), len(addresses), from, to)

		hashes := make([]string, len(traces))
		for i, trace := range traces {
			hashes[i] = trace.TransactionHash
		}

		txs, err := ix.db.CreateOrUpdateFromTxHashes(ctx, ix.node, uniqueStrings(hashes), ix.confirmations)
		if err != nil {
			return err
		}

		txByHash := make(map[string]*database.EthereumTx, len(txs))
		for _, tx := range txs {
			txByHash[tx.TxHash] = tx
		}

		// Rows are keyed by (tx hash, trace address) and created idempotently,
		// so insertion order does not matter here; decode and replay read them
		// back in trace order once the pass completes.
		sem := make(chan struct{}, ix.maxConcurrency)
		eg, egCtx := errgroup.WithContext(ctx)
		for i := range traces {
			trace := traces[i]
			eg.Go(func() error {
				sem <- struct{}{}
				defer func() { <-sem }()

				_, _, err := ix.db.GetOrCreateInternalTxFromTrace(egCtx, trace, txByHash[trace.TransactionHash])
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}

	var moved int64
	switch role {
	case scanAsSender:
		moved, err = database.UpdateAddressesBlockNumber[database.SafeContract](
			ctx, ix.db, addresses, from, to, database.CursorTxBlockNumber,
		)
	case scanAsTarget:
		moved, err = ix.updateTargetCursors(ctx, addresses, from, to)
	}
	if err != nil {
		return err
	}
	if moved < int64(len(addresses)) {
		logger.Infof("only %d of %d cursors advanced for blocks %d-%d, range will be rescanned", moved, len(addresses), from, to)
	}

	return nil
}

// updateTargetCursors advances both target families; an address list never
// mixes the two, so one of the updates is a no-op.
func (ix *Indexer) updateTargetCursors(ctx context.Context, addresses []string, from, to uint64) (int64, error) {
	masters, err := database.UpdateAddressesBlockNumber[database.SafeMasterCopy](
		ctx, ix.db, addresses, from, to, database.CursorTxBlockNumber,
	)
	if err != nil {
		return 0, err
	}

	factories, err := database.UpdateAddressesBlockNumber[database.ProxyFactory](
		ctx, ix.db, addresses, from, to, database.CursorTxBlockNumber,
	)
	if err != nil {
		return 0, err
	}

	return masters + factories, nil
}

// decodePending decodes every eligible internal transaction that has no
// decoded record yet. Payloads no Safe ABI recognizes are skipped and
// retried on the next pass only if new ABIs are added, which keeps unknown
// master copies from wedging the queue.
func (ix *Indexer) decodePending(ctx context.Context) (int, error) {
	decoded := 0

	for {
		itxs, err := ix.db.InternalTxsCanBeDecoded(ctx, ix.decodeBatchSize)
		if err != nil {
			return decoded, err
		}
		if len(itxs) == 0 {
			return decoded, nil
		}

		skipped := 0
		for i := range itxs {
			itx := &itxs[i]

			toAddress := ""
			if itx.ToAddress != nil {
				toAddress = *itx.ToAddress
			}

			functionName, arguments, err := ix.decoder.Decode(toAddress, itx.Data)
			if errors.Is(err, safedecoder.ErrNotDecodable) {
				skipped++
				continue
			}
			if err != nil {
				// A payload that matches a selector but fails to unpack would
				// wedge the queue if treated as fatal.
				logger.Errorf("cannot decode internal tx %d: %v", itx.ID, err)
				skipped++
				continue
			}

			if _, err := ix.db.CreateDecoded(ctx, itx.ID, functionName, arguments); err != nil {
				return decoded, err
			}
			decoded++
		}

		if skipped == len(itxs) {
			return decoded, nil
		}
	}
}

func capRange(from, target, maxBlockRange uint64) uint64 {
	if maxBlockRange > 0 && target-from+1 > maxBlockRange {
		return from + maxBlockRange - 1
	}

	return target
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			unique = append(unique, v)
		}
	}

	return unique
}
