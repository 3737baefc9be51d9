package dusd

import (
	"fmt"
	"math/big"
)

// Every failure condition the core can signal is a distinct error type
// carrying its operands, so callers can match with errors.As instead of
// parsing messages. Operations fail atomically: an error means no state
// was mutated.

// UnauthorizedError signals a caller lacking a required capability.
type UnauthorizedError struct {
	Role   Role
	Caller string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("caller %s is missing role %s", e.Caller, e.Role)
}

// UnsupportedCollateralError signals an asset outside the allowed set.
type UnsupportedCollateralError struct {
	Symbol string
}

func (e *UnsupportedCollateralError) Error() string {
	return fmt.Sprintf("unsupported collateral: %s", e.Symbol)
}

// CollateralAlreadyAllowedError signals a duplicate allow.
type CollateralAlreadyAllowedError struct {
	Symbol string
}

func (e *CollateralAlreadyAllowedError) Error() string {
	return fmt.Sprintf("collateral already allowed: %s", e.Symbol)
}

// LastCollateralError signals an attempt to disallow the only remaining
// allowed collateral.
type LastCollateralError struct {
	Symbol string
}

func (e *LastCollateralError) Error() string {
	return fmt.Sprintf("cannot disallow last collateral: %s", e.Symbol)
}

// ZeroAmountError signals a zero or negative amount.
type ZeroAmountError struct {
	Op string
}

func (e *ZeroAmountError) Error() string {
	return fmt.Sprintf("%s: amount must be positive", e.Op)
}

// InsufficientBalanceError signals a transfer or burn exceeding a balance.
type InsufficientBalanceError struct {
	Symbol    string
	Account   string
	Requested *big.Int
	Available *big.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s: requested %s, available %s",
		e.Symbol, e.Account, e.Requested, e.Available)
}

// InsufficientAllowanceError signals a pull exceeding the spender's allowance.
type InsufficientAllowanceError struct {
	Symbol    string
	Owner     string
	Spender   string
	Requested *big.Int
	Allowance *big.Int
}

func (e *InsufficientAllowanceError) Error() string {
	return fmt.Sprintf("insufficient %s allowance from %s to %s: requested %s, allowed %s",
		e.Symbol, e.Owner, e.Spender, e.Requested, e.Allowance)
}

// SlippageError signals an output below the caller's minimum.
type SlippageError struct {
	Got *big.Int
	Min *big.Int
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("slippage too high: got %s, minimum %s", e.Got, e.Min)
}

// IssuanceSurpassesExcessCollateralError rejects uncollateralized minting:
// issuance against excess collateral may never exceed the excess itself.
type IssuanceSurpassesExcessCollateralError struct {
	Requested *big.Int
	Excess    *big.Int
}

func (e *IssuanceSurpassesExcessCollateralError) Error() string {
	return fmt.Sprintf("issuance surpasses excess collateral: requested %s, excess %s",
		e.Requested, e.Excess)
}

// CannotWithdrawMoreValueThanDepositedError rejects a collateral exchange
// whose requested out-value exceeds the deposited in-value.
type CannotWithdrawMoreValueThanDepositedError struct {
	OutValue *big.Int
	InValue  *big.Int
}

func (e *CannotWithdrawMoreValueThanDepositedError) Error() string {
	return fmt.Sprintf("cannot withdraw more value than deposited: out %s, in %s",
		e.OutValue, e.InValue)
}

// ToCollateralAmountBelowMinError signals a collateral exchange output
// below the caller's minimum.
type ToCollateralAmountBelowMinError struct {
	Got *big.Int
	Min *big.Int
}

func (e *ToCollateralAmountBelowMinError) Error() string {
	return fmt.Sprintf("collateral amount below minimum: got %s, minimum %s", e.Got, e.Min)
}

// FeeTooHighError signals a fee configuration above MaxFeeBps.
type FeeTooHighError struct {
	FeeBps uint32
	MaxBps uint32
}

func (e *FeeTooHighError) Error() string {
	return fmt.Sprintf("fee too high: %d bps, maximum %d bps", e.FeeBps, e.MaxBps)
}

// InactiveAmoVaultError signals an allocation to a vault that is not active.
type InactiveAmoVaultError struct {
	Vault string
}

func (e *InactiveAmoVaultError) Error() string {
	return fmt.Sprintf("inactive amo vault: %s", e.Vault)
}

// UnregisteredAmoVaultError signals an operation on a vault the allocator
// has never seen.
type UnregisteredAmoVaultError struct {
	Vault string
}

func (e *UnregisteredAmoVaultError) Error() string {
	return fmt.Sprintf("unregistered amo vault: %s", e.Vault)
}

// AllocationExceededError signals a deallocation larger than the vault's
// current allocation ledger entry.
type AllocationExceededError struct {
	Vault     string
	Requested *big.Int
	Allocated *big.Int
}

func (e *AllocationExceededError) Error() string {
	return fmt.Sprintf("deallocation exceeds allocation for %s: requested %s, allocated %s",
		e.Vault, e.Requested, e.Allocated)
}

// InsufficientProfitsError signals a profit withdrawal above the vault's
// available profit. Available is signed; a vault running at a loss reports
// a negative amount.
type InsufficientProfitsError struct {
	Requested *big.Int
	Available *big.Int
}

func (e *InsufficientProfitsError) Error() string {
	return fmt.Sprintf("insufficient profit: requested %s, available %s",
		e.Requested, e.Available)
}

// MintPausedError signals a per-asset mint pause.
type MintPausedError struct {
	Symbol string
}

func (e *MintPausedError) Error() string {
	return fmt.Sprintf("minting paused for asset: %s", e.Symbol)
}

// AssetPausedError signals a per-asset pause on a non-mint path.
type AssetPausedError struct {
	Symbol string
	Op     string
}

func (e *AssetPausedError) Error() string {
	return fmt.Sprintf("%s paused for asset: %s", e.Op, e.Symbol)
}

// ContractPausedError signals the global pause.
type ContractPausedError struct {
	Component string
}

func (e *ContractPausedError) Error() string {
	return fmt.Sprintf("%s is paused", e.Component)
}

// NoPriceError signals a symbol with no usable price feed.
type NoPriceError struct {
	Symbol string
}

func (e *NoPriceError) Error() string {
	return fmt.Sprintf("no price for %s", e.Symbol)
}

// StalePriceError signals that every feed for a symbol is stale.
type StalePriceError struct {
	Symbol string
	Age    string
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("stale price for %s (age %s)", e.Symbol, e.Age)
}

// FeedDecimalsError rejects a feed whose unit does not match PriceDecimals.
type FeedDecimalsError struct {
	Symbol string
	Got    uint8
	Want   uint8
}

func (e *FeedDecimalsError) Error() string {
	return fmt.Sprintf("feed for %s uses %d decimals, want %d", e.Symbol, e.Got, e.Want)
}
