package dusd

import (
	"math/big"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// EngineConfig configures a newly wired engine.
type EngineConfig struct {
	Admin            string
	FeeReceiver      string
	OracleStaleAfter time.Duration
	EventBuffer      int
}

// Engine wires the core components together and emits accounting events
// after successful operations. Callers that need the raw components (tests,
// the daemon's admin surface) reach them through the exported fields; the
// Engine methods add only event emission, never extra semantics.
type Engine struct {
	Roles      *AccessController
	Oracle     *FeedOracle
	Receipt    *Token
	Collateral *CollateralVault
	Issuer     *Issuer
	Redeemer   *Redeemer
	Allocator  *AmoAllocator

	Events chan Event

	dropped atomic.Uint64
}

// NewEngine builds a fully wired engine. The redeemer and allocator
// identities are granted the collateral-withdrawer capability; everything
// else starts with only the admin's default-admin grant.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.OracleStaleAfter <= 0 {
		cfg.OracleStaleAfter = 5 * time.Minute
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 10000
	}

	roles := NewAccessController(cfg.Admin)
	oracle := NewFeedOracle(cfg.OracleStaleAfter)
	receipt := NewToken(ReceiptSymbol, ReceiptDecimals)
	collateral := NewCollateralVault(oracle, roles)
	allocator := NewAmoAllocator(receipt, collateral, oracle, roles)
	issuer := NewIssuer(collateral, oracle, receipt, roles, allocator)
	redeemer := NewRedeemer(collateral, oracle, receipt, roles, cfg.FeeReceiver)

	// Component identities need their capabilities before first use. This
	// is construction-time bootstrap, same as the admin grant in
	// NewAccessController, so it bypasses the caller check.
	roles.grant(RoleCollateralWithdrawer, RedeemerAccount)
	roles.grant(RoleCollateralWithdrawer, AllocatorAccount)

	return &Engine{
		Roles:      roles,
		Oracle:     oracle,
		Receipt:    receipt,
		Collateral: collateral,
		Issuer:     issuer,
		Redeemer:   redeemer,
		Allocator:  allocator,
		Events:     make(chan Event, cfg.EventBuffer),
	}
}

// IssueEventData carries the operands of an issuance event.
type IssueEventData struct {
	Caller           string `json:"caller"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	ReceiptAmount    string `json:"receiptAmount"`
}

// RedeemEventData carries the operands of a redemption event.
type RedeemEventData struct {
	Caller        string `json:"caller"`
	Asset         string `json:"asset"`
	ReceiptAmount string `json:"receiptAmount"`
	NetCollateral string `json:"netCollateral"`
	FeeBps        uint32 `json:"feeBps"`
}

// AmoEventData carries the operands of an allocation-side event.
type AmoEventData struct {
	Vault  string `json:"vault"`
	Amount string `json:"amount"`
	Asset  string `json:"asset,omitempty"`
}

// Issue mints dUSD against a fresh collateral deposit.
func (e *Engine) Issue(caller string, collateralAmount *big.Int, symbol string, minReceiptOut *big.Int) (*big.Int, error) {
	out, err := e.Issuer.Issue(caller, collateralAmount, symbol, minReceiptOut)
	if err != nil {
		return nil, err
	}
	e.emit(EventIssued, IssueEventData{
		Caller:           caller,
		Asset:            symbol,
		CollateralAmount: collateralAmount.String(),
		ReceiptAmount:    out.String(),
	})
	return out, nil
}

// Redeem burns dUSD for collateral.
func (e *Engine) Redeem(caller string, receiptAmount *big.Int, symbol string, minCollateralOut *big.Int) (*big.Int, error) {
	out, err := e.Redeemer.Redeem(caller, receiptAmount, symbol, minCollateralOut)
	if err != nil {
		return nil, err
	}
	e.emit(EventRedeemed, RedeemEventData{
		Caller:        caller,
		Asset:         symbol,
		ReceiptAmount: receiptAmount.String(),
		NetCollateral: out.String(),
		FeeBps:        e.Redeemer.FeeBpsFor(symbol),
	})
	return out, nil
}

// AllocateAmo hands reserve supply to a venue.
func (e *Engine) AllocateAmo(caller, vault string, amount *big.Int) error {
	if err := e.Allocator.AllocateAmo(caller, vault, amount); err != nil {
		return err
	}
	e.emit(EventAllocated, AmoEventData{Vault: vault, Amount: amount.String()})
	return nil
}

// DeallocateAmo pulls reserve supply back from a venue.
func (e *Engine) DeallocateAmo(caller, vault string, amount *big.Int) error {
	if err := e.Allocator.DeallocateAmo(caller, vault, amount); err != nil {
		return err
	}
	e.emit(EventDeallocated, AmoEventData{Vault: vault, Amount: amount.String()})
	return nil
}

// IncreaseAmoSupply expands reserve supply.
func (e *Engine) IncreaseAmoSupply(caller string, amount *big.Int) error {
	if err := e.Issuer.IncreaseAmoSupply(caller, amount); err != nil {
		return err
	}
	e.emit(EventSupplyChanged, AmoEventData{Vault: AllocatorAccount, Amount: amount.String()})
	return nil
}

// DecreaseAmoSupply burns idle reserve supply.
func (e *Engine) DecreaseAmoSupply(caller string, amount *big.Int) error {
	if err := e.Allocator.DecreaseAmoSupply(caller, amount); err != nil {
		return err
	}
	e.emit(EventSupplyChanged, AmoEventData{Vault: AllocatorAccount, Amount: "-" + amount.String()})
	return nil
}

// WithdrawProfits withdraws venue profit to a recipient.
func (e *Engine) WithdrawProfits(caller, vault, recipient string, amount *big.Int, symbol string) error {
	if err := e.Allocator.WithdrawProfits(caller, vault, recipient, amount, symbol); err != nil {
		return err
	}
	e.emit(EventProfitWithdrawn, AmoEventData{Vault: vault, Amount: amount.String(), Asset: symbol})
	return nil
}

// PauseEventData carries the operands of a pause-state change.
type PauseEventData struct {
	Caller string `json:"caller"`
	Scope  string `json:"scope"`
	Asset  string `json:"asset,omitempty"`
	Paused bool   `json:"paused"`
}

// SetPaused flips the global pause on both issuance and redemption.
func (e *Engine) SetPaused(caller string, paused bool) error {
	if err := e.Issuer.SetPaused(caller, paused); err != nil {
		return err
	}
	if err := e.Redeemer.SetPaused(caller, paused); err != nil {
		return err
	}
	e.emit(EventPauseChanged, PauseEventData{Caller: caller, Scope: "global", Paused: paused})
	return nil
}

// SetMintPaused flips the per-asset mint pause.
func (e *Engine) SetMintPaused(caller, symbol string, paused bool) error {
	if err := e.Issuer.SetMintPaused(caller, symbol, paused); err != nil {
		return err
	}
	e.emit(EventPauseChanged, PauseEventData{Caller: caller, Scope: "mint", Asset: symbol, Paused: paused})
	return nil
}

// SetRedeemPaused flips the per-asset redemption pause.
func (e *Engine) SetRedeemPaused(caller, symbol string, paused bool) error {
	if err := e.Redeemer.SetRedeemPaused(caller, symbol, paused); err != nil {
		return err
	}
	e.emit(EventPauseChanged, PauseEventData{Caller: caller, Scope: "redeem", Asset: symbol, Paused: paused})
	return nil
}

// Snapshot is a consistent view of the engine's supply accounting, with
// base-unit figures alongside human-readable decimal strings.
type Snapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	TotalSupply       string    `json:"totalSupply"`
	CirculatingSupply string    `json:"circulatingSupply"`
	AmoSupply         string    `json:"amoSupply"`
	TotalAllocated    string    `json:"totalAllocated"`
	CollateralValue   string    `json:"collateralValue"`
	CollateralUSD     string    `json:"collateralUsd"`
}

// Snapshot captures current supplies and collateral value. The collateral
// valuation can fail on a dead oracle; supplies are always available.
func (e *Engine) Snapshot() (Snapshot, error) {
	value, err := e.Collateral.TotalValue()
	if err != nil {
		return Snapshot{}, err
	}
	usd := decimal.NewFromBigInt(value, -int32(PriceDecimals))
	return Snapshot{
		Timestamp:         time.Now(),
		TotalSupply:       e.Receipt.TotalSupply().String(),
		CirculatingSupply: e.Issuer.CirculatingSupply().String(),
		AmoSupply:         e.Allocator.TotalAmoSupply().String(),
		TotalAllocated:    e.Allocator.TotalAllocated().String(),
		CollateralValue:   value.String(),
		CollateralUSD:     usd.StringFixed(2),
	}, nil
}

// emit publishes an event without blocking; consumers that fall behind
// lose events rather than stalling the accounting path.
func (e *Engine) emit(typ EventType, data interface{}) {
	select {
	case e.Events <- Event{Type: typ, Timestamp: time.Now(), Data: data}:
	default:
		e.dropped.Add(1)
	}
}

// DroppedEvents reports how many events have been lost to a full buffer.
func (e *Engine) DroppedEvents() uint64 {
	return e.dropped.Load()
}
