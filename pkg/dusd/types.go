// Package dusd implements the accounting core of the dUSD collateralized
// stablecoin: the collateral vault, issuance and redemption flows, and the
// AMO allocation ledger. All mutating operations run to completion as a
// single atomic unit; external inputs (oracle prices, AMO vault valuations)
// are read fresh at call time and never cached.
package dusd

import (
	"math/big"
	"time"
)

const (
	// PriceDecimals is the fixed base-currency scale shared by every price
	// feed and valuation the core consumes (USD with 8 decimal places).
	PriceDecimals uint8 = 8

	// ReceiptDecimals is the decimal precision of the dUSD receipt token.
	ReceiptDecimals uint8 = 6

	// ReceiptSymbol is the receipt token's symbol, also the oracle key for
	// its own price.
	ReceiptSymbol = "dUSD"

	// BpsDivisor converts basis points to a fraction.
	BpsDivisor = 10_000

	// MaxFeeBps caps any redemption fee at 5%.
	MaxFeeBps = 500
)

// Asset describes a fungible collateral asset accepted by the protocol.
type Asset struct {
	Symbol   string
	Decimals uint8
	Allowed  bool
}

// EventType identifies an engine event.
type EventType string

const (
	EventIssued          EventType = "issued"
	EventRedeemed        EventType = "redeemed"
	EventAllocated       EventType = "amo_allocated"
	EventDeallocated     EventType = "amo_deallocated"
	EventProfitWithdrawn EventType = "amo_profit_withdrawn"
	EventSupplyChanged   EventType = "supply_changed"
	EventPauseChanged    EventType = "pause_changed"
)

// Event is an accounting event emitted by the engine after a successful
// operation. Consumed by the websocket broadcaster, the journal and the
// NATS publisher.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

var bigTen = big.NewInt(10)

// pow10 returns 10^n as a big.Int.
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}

// scaleAmount rescales amount from one decimal basis to another. Scaling down
// uses floor division, so a round trip can lose dust but never creates value.
func scaleAmount(amount *big.Int, from, to uint8) *big.Int {
	if from == to {
		return new(big.Int).Set(amount)
	}
	if to > from {
		return new(big.Int).Mul(amount, pow10(to-from))
	}
	return new(big.Int).Quo(amount, pow10(from-to))
}

// assetValue converts an asset amount into base-currency units:
// amount * price / 10^decimals, floored.
func assetValue(amount, price *big.Int, decimals uint8) *big.Int {
	v := new(big.Int).Mul(amount, price)
	return v.Quo(v, pow10(decimals))
}

// amountFromValue converts a base-currency value into asset units:
// value * 10^decimals / price, floored.
func amountFromValue(value, price *big.Int, decimals uint8) *big.Int {
	v := new(big.Int).Mul(value, pow10(decimals))
	return v.Quo(v, price)
}

func isZeroOrNegative(amount *big.Int) bool {
	return amount == nil || amount.Sign() <= 0
}
