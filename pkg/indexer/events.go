package indexer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"

	"github.com/safewatch/safe-indexer/pkg/database"
	"github.com/safewatch/safe-indexer/pkg/ethereum"
)

// ErrNotTransferLog marks a log that is not a well-formed ERC-20 or ERC-721
// Transfer.
var ErrNotTransferLog = errors.New("not a transfer log")

// ClassifyTransferLog decodes an ERC-20 or ERC-721 Transfer log into the
// stored event shape. The two standards share a topic and are told apart by
// indexing: ERC-721 indexes the token id as a third topic, ERC-20 carries the
// amount in the data payload.
func ClassifyTransferLog(log *ethereum.FilterLog) (*database.DecodedEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != database.ERC20721TransferTopic {
		return nil, errors.Wrapf(ErrNotTransferLog, "log %d of %s", log.LogIndex, log.TransactionHash)
	}

	arguments := map[string]interface{}{}

	switch len(log.Topics) {
	case 3:
		value, err := quantityFromData(log.Data)
		if err != nil {
			return nil, errors.Wrapf(err, "log %d of %s", log.LogIndex, log.TransactionHash)
		}
		arguments["value"] = value.String()
	case 4:
		arguments["tokenId"] = new(big.Int).SetBytes(common.HexToHash(log.Topics[3]).Bytes()).String()
	default:
		return nil, errors.Wrapf(ErrNotTransferLog, "log %d of %s has %d topics", log.LogIndex, log.TransactionHash, len(log.Topics))
	}

	arguments["from"] = addressFromTopic(log.Topics[1])
	arguments["to"] = addressFromTopic(log.Topics[2])

	return &database.DecodedEvent{
		TransactionHash: log.TransactionHash,
		LogIndex:        log.LogIndex,
		Address:         log.Address,
		Topics:          log.Topics,
		Arguments:       arguments,
	}, nil
}

func addressFromTopic(topic string) string {
	return common.BytesToAddress(common.HexToHash(topic).Bytes()).Hex()
}

func quantityFromData(data string) (*big.Int, error) {
	raw, err := hexutil.Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, "decoding transfer amount")
	}
	if len(raw) != 32 {
		return nil, errors.Wrapf(ErrNotTransferLog, "transfer amount is %d bytes", len(raw))
	}

	return new(big.Int).SetBytes(raw), nil
}

// scanTransfers advances the token-transfer cursor of every monitored Safe:
// fetch all Transfer logs in the pending range, keep the ones moving tokens
// from or to a Safe, and store them against their resolved transactions.
func (ix *Indexer) scanTransfers(ctx context.Context, head uint64) error {
	contracts, err := ix.db.SafeContracts(ctx)
	if err != nil {
		return err
	}

	groups := map[uint64][]string{}
	for _, contract := range contracts {
		groups[contract.ERC20BlockNumber] = append(groups[contract.ERC20BlockNumber], contract.Address)
	}

	for cursor, addresses := range groups {
		from := cursor + 1
		if from > head {
			continue
		}
		to := capRange(from, head, ix.maxBlockRange)

		if err := ix.scanTransferRange(ctx, addresses, from, to); err != nil {
			return err
		}
	}

	return nil
}

func (ix *Indexer) scanTransferRange(ctx context.Context, addresses []string, from, to uint64) error {
	logs, err := ix.node.FilterLogs(ctx, from, to, database.ERC20721TransferTopic)
	if err != nil {
		return err
	}

	monitored := make(map[string]bool, len(addresses))
	for _, address := range addresses {
		monitored[address] = true
	}

	var relevant []*database.DecodedEvent
	for i := range logs {
		decoded, err := ClassifyTransferLog(&logs[i])
		if errors.Is(err, ErrNotTransferLog) {
			continue
		}
		if err != nil {
			return err
		}

		sender, _ := decoded.Arguments["from"].(string)
		receiver, _ := decoded.Arguments["to"].(string)
		if !monitored[sender] && !monitored[receiver] {
			continue
		}

		relevant = append(relevant, decoded)
	}

	if len(relevant) > 0 {
		hashes := uniqueStrings(transferTxHashes(relevant))
		if _, err := ix.db.CreateOrUpdateFromTxHashes(ctx, ix.node, hashes, ix.confirmations); err != nil {
			return err
		}

		for _, decoded := range relevant {
			if _, _, err := ix.db.GetOrCreateERC20Or721Event(ctx, decoded); err != nil {
				return err
			}
		}

		logger.Debugf("stored %d transfer events for blocks %d-%d", len(relevant), from, to)
	}

	_, err = database.UpdateAddressesBlockNumber[database.SafeContract](
		ctx, ix.db, addresses, from, to, database.CursorERC20BlockNumber,
	)

	return err
}

func transferTxHashes(events []*database.DecodedEvent) []string {
	hashes := make([]string, len(events))
	for i, event := range events {
		hashes[i] = event.TransactionHash
	}

	return hashes
}
