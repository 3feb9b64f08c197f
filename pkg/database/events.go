package database

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ERC20721TransferTopic is the shared signature of ERC-20 and ERC-721
// Transfer events; the two standards are told apart by their argument set.
var ERC20721TransferTopic = crypto.Keccak256Hash(
	[]byte("Transfer(address,address,uint256)"),
).Hex()

// DecodedEvent is one decoded transaction log as handed over by the log
// decoding step.
type DecodedEvent struct {
	TransactionHash string
	LogIndex        uint
	Address         string
	Topics          []string
	Arguments       map[string]interface{}
}

func (e *DecodedEvent) topic() string {
	if len(e.Topics) == 0 {
		return ""
	}

	return e.Topics[0]
}

// GetOrCreateERC20Or721Event stores a transfer event. Logs carrying neither a
// `value` nor a `tokenId` argument are rejected as malformed. The owning
// transaction must already exist.
func (db *DB) GetOrCreateERC20Or721Event(ctx context.Context, decoded *DecodedEvent) (*EthereumEvent, bool, error) {
	_, hasValue := decoded.Arguments["value"]
	_, hasTokenID := decoded.Arguments["tokenId"]
	if !hasValue && !hasTokenID {
		return nil, false, errors.Errorf(
			"invalid ERC20 or ERC721 event tx-hash=%s log-index=%d", decoded.TransactionHash, decoded.LogIndex,
		)
	}

	stored := new(EthereumEvent)
	err := db.g.WithContext(ctx).
		First(stored, "ethereum_tx_hash = ? AND log_index = ?", decoded.TransactionHash, decoded.LogIndex).
		Error
	if err == nil {
		return stored, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, "getting event")
	}

	arguments, err := json.Marshal(decoded.Arguments)
	if err != nil {
		return nil, false, errors.Wrap(err, "encoding event arguments")
	}

	event := &EthereumEvent{
		EthereumTxHash: decoded.TransactionHash,
		LogIndex:       decoded.LogIndex,
		Address:        decoded.Address,
		Topic:          decoded.topic(),
		Topics:         decoded.Topics,
		Arguments:      arguments,
	}

	err = db.g.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).
		Error
	if err != nil {
		return nil, false, errors.Wrap(err, "creating event")
	}

	return event, true, nil
}

// erc20And721Events filters transfer-topic events, optionally by token
// contract and by the address appearing as sender or recipient.
func (db *DB) erc20And721Events(ctx context.Context, tokenAddress, address *string) *gorm.DB {
	query := db.g.WithContext(ctx).Model(&EthereumEvent{}).Where("topic = ?", ERC20721TransferTopic)
	if tokenAddress != nil {
		query = query.Where("address = ?", *tokenAddress)
	}
	if address != nil {
		query = query.Where("arguments->>'to' = ? OR arguments->>'from' = ?", *address, *address)
	}

	return query
}

// ERC20Events returns fungible-token transfers: transfer-topic events whose
// argument set contains `value`.
func (db *DB) ERC20Events(ctx context.Context, tokenAddress, address *string) ([]EthereumEvent, error) {
	var events []EthereumEvent
	err := db.erc20And721Events(ctx, tokenAddress, address).
		Where("jsonb_exists(arguments, 'value')").
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying erc20 events")
	}

	return events, nil
}

// ERC721Events returns NFT transfers: transfer-topic events whose argument
// set contains `tokenId`.
func (db *DB) ERC721Events(ctx context.Context, tokenAddress, address *string) ([]EthereumEvent, error) {
	var events []EthereumEvent
	err := db.erc20And721Events(ctx, tokenAddress, address).
		Where("jsonb_exists(arguments, 'tokenId')").
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying erc721 events")
	}

	return events, nil
}

// ERC20TokensUsedByAddress lists the token contracts the address ever sent or
// received.
func (db *DB) ERC20TokensUsedByAddress(ctx context.Context, address string) ([]string, error) {
	var tokens []string
	err := db.erc20And721Events(ctx, nil, &address).
		Where("jsonb_exists(arguments, 'value')").
		Distinct("address").
		Pluck("address", &tokens).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying tokens used by address")
	}

	return tokens, nil
}

// TokenBalance is the aggregated balance of one token for one holder.
// Negative balances can appear while history is still being back-filled.
type TokenBalance struct {
	TokenAddress string  `json:"tokenAddress"`
	Balance      Uint256 `json:"balance"`
}

// ERC20TokensWithBalance sums transfer values signed by direction (negative
// when the address is the sender) grouped by token contract, largest balance
// first.
func (db *DB) ERC20TokensWithBalance(ctx context.Context, address string) ([]TokenBalance, error) {
	var balances []TokenBalance
	err := db.g.WithContext(ctx).Raw(`
		SELECT address AS token_address,
		       SUM(CASE WHEN arguments->>'from' = @address
		                THEN -(arguments->>'value')::numeric
		                ELSE (arguments->>'value')::numeric
		           END) AS balance
		FROM ethereum_events
		WHERE topic = @topic
		  AND jsonb_exists(arguments, 'value')
		  AND (arguments->>'to' = @address OR arguments->>'from' = @address)
		GROUP BY address
		ORDER BY balance DESC`,
		map[string]interface{}{"address": address, "topic": ERC20721TransferTopic},
	).Scan(&balances).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying token balances")
	}

	return balances, nil
}

// IncomingTokens returns ERC-20 transfers into the address, ordered by
// descending block number.
func (db *DB) IncomingTokens(ctx context.Context, address string) ([]Transfer, error) {
	var transfers []Transfer
	err := db.g.WithContext(ctx).Raw(`
		SELECT et.block_number AS block_number,
		       e.ethereum_tx_hash AS transaction_hash,
		       e.arguments->>'to' AS to_address,
		       e.arguments->>'from' AS from_address,
		       (e.arguments->>'value')::numeric AS value,
		       b.timestamp AS execution_date,
		       e.address AS token_address
		FROM ethereum_events e
		JOIN ethereum_txs et ON et.tx_hash = e.ethereum_tx_hash
		JOIN ethereum_blocks b ON b.number = et.block_number
		WHERE e.topic = @topic
		  AND jsonb_exists(e.arguments, 'value')
		  AND e.arguments->>'to' = @address
		ORDER BY et.block_number DESC`,
		map[string]interface{}{"address": address, "topic": ERC20721TransferTopic},
	).Scan(&transfers).Error
	if err != nil {
		return nil, errors.Wrap(err, "querying incoming tokens")
	}

	return transfers, nil
}
