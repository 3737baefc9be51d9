package dusd

import (
	"math/big"
	"sync"
)

// ReserveSupplier reports the current reserve supply (receipt tokens minted
// for algorithmic market operations). Implemented by the AmoAllocator.
type ReserveSupplier interface {
	ReserveAccount() string
	TotalAmoSupply() *big.Int
}

// Issuer mints the dUSD receipt token 1:1 against deposited collateral
// value, and separately expands reserve supply bounded by excess
// collateral. All conversions go through the oracle price of the receipt
// token itself, so off-peg ratios are honored rather than assuming $1.
type Issuer struct {
	vault   *CollateralVault
	oracle  PriceOracle
	token   *Token
	roles   *AccessController
	reserve ReserveSupplier

	paused     bool
	mintPaused map[string]bool
	mu         sync.RWMutex
}

// NewIssuer wires the issuer to its collaborators.
func NewIssuer(vault *CollateralVault, oracle PriceOracle, token *Token, roles *AccessController, reserve ReserveSupplier) *Issuer {
	return &Issuer{
		vault:      vault,
		oracle:     oracle,
		token:      token,
		roles:      roles,
		reserve:    reserve,
		mintPaused: make(map[string]bool),
	}
}

// Issue deposits collateral from the caller and mints the equivalent
// receipt amount to them. Fails with SlippageError if the minted amount
// falls below minReceiptOut.
func (is *Issuer) Issue(caller string, collateralAmount *big.Int, symbol string, minReceiptOut *big.Int) (*big.Int, error) {
	return is.issue(caller, caller, caller, collateralAmount, symbol, minReceiptOut, false)
}

// IssueTo performs the deposit on behalf of depositor, spending the
// caller's allowance on the collateral token, and mints to receiver.
func (is *Issuer) IssueTo(caller, depositor, receiver string, collateralAmount *big.Int, symbol string, minReceiptOut *big.Int) (*big.Int, error) {
	return is.issue(caller, depositor, receiver, collateralAmount, symbol, minReceiptOut, true)
}

func (is *Issuer) issue(caller, depositor, receiver string, collateralAmount *big.Int, symbol string, minReceiptOut *big.Int, pull bool) (*big.Int, error) {
	// Pause flags are checked before any valuation so a paused asset never
	// reaches the oracle math.
	if err := is.checkPaused(symbol); err != nil {
		return nil, err
	}
	if isZeroOrNegative(collateralAmount) {
		return nil, &ZeroAmountError{Op: "issue"}
	}

	value, err := is.vault.ValueOf(collateralAmount, symbol)
	if err != nil {
		return nil, err
	}
	receiptPrice, err := is.oracle.GetAssetPrice(is.token.Symbol)
	if err != nil {
		return nil, err
	}
	receiptAmount := amountFromValue(value, receiptPrice, is.token.Decimals)
	if receiptAmount.Sign() == 0 {
		return nil, &ZeroAmountError{Op: "issue"}
	}
	if minReceiptOut != nil && receiptAmount.Cmp(minReceiptOut) < 0 {
		return nil, &SlippageError{Got: receiptAmount, Min: new(big.Int).Set(minReceiptOut)}
	}

	if pull {
		err = is.vault.DepositFrom(caller, depositor, collateralAmount, symbol)
	} else {
		err = is.vault.Deposit(depositor, collateralAmount, symbol)
	}
	if err != nil {
		return nil, err
	}

	if err := is.token.Mint(receiver, receiptAmount); err != nil {
		return nil, err
	}
	return receiptAmount, nil
}

// IncreaseAmoSupply mints amount of receipt token directly to the AMO
// allocator, expanding reserve supply without touching the collateral
// vault. Restricted to the amo-manager capability.
func (is *Issuer) IncreaseAmoSupply(caller string, amount *big.Int) error {
	if err := is.roles.Require(RoleAmoManager, caller); err != nil {
		return err
	}
	if err := is.checkGlobalPause(); err != nil {
		return err
	}
	return is.token.Mint(is.reserve.ReserveAccount(), amount)
}

// IssueUsingExcessCollateral mints up to the difference between current
// collateral value and circulating supply, without a fresh deposit.
// Restricted to the minter capability.
func (is *Issuer) IssueUsingExcessCollateral(caller, receiver string, amount *big.Int) error {
	if err := is.roles.Require(RoleMinter, caller); err != nil {
		return err
	}
	if err := is.checkGlobalPause(); err != nil {
		return err
	}
	if isZeroOrNegative(amount) {
		return &ZeroAmountError{Op: "issueUsingExcessCollateral"}
	}

	collateralValue, err := is.vault.TotalValue()
	if err != nil {
		return err
	}
	receiptPrice, err := is.oracle.GetAssetPrice(is.token.Symbol)
	if err != nil {
		return err
	}
	collateralInReceipt := amountFromValue(collateralValue, receiptPrice, is.token.Decimals)

	excess := new(big.Int).Sub(collateralInReceipt, is.CirculatingSupply())
	if amount.Cmp(excess) > 0 {
		return &IssuanceSurpassesExcessCollateralError{
			Requested: new(big.Int).Set(amount),
			Excess:    excess,
		}
	}
	return is.token.Mint(receiver, amount)
}

// CirculatingSupply is total supply minus reserve supply.
func (is *Issuer) CirculatingSupply() *big.Int {
	return new(big.Int).Sub(is.token.TotalSupply(), is.reserve.TotalAmoSupply())
}

// CollateralInReceiptUnits converts the vault's total value into receipt
// token units at the current receipt price.
func (is *Issuer) CollateralInReceiptUnits() (*big.Int, error) {
	collateralValue, err := is.vault.TotalValue()
	if err != nil {
		return nil, err
	}
	receiptPrice, err := is.oracle.GetAssetPrice(is.token.Symbol)
	if err != nil {
		return nil, err
	}
	return amountFromValue(collateralValue, receiptPrice, is.token.Decimals), nil
}

// SetPaused toggles the global pause. Restricted to the pauser capability.
func (is *Issuer) SetPaused(caller string, paused bool) error {
	if err := is.roles.Require(RolePauser, caller); err != nil {
		return err
	}
	is.mu.Lock()
	defer is.mu.Unlock()
	is.paused = paused
	return nil
}

// SetMintPaused toggles minting against a single collateral asset.
// Restricted to the pauser capability.
func (is *Issuer) SetMintPaused(caller, symbol string, paused bool) error {
	if err := is.roles.Require(RolePauser, caller); err != nil {
		return err
	}
	is.mu.Lock()
	defer is.mu.Unlock()
	is.mintPaused[symbol] = paused
	return nil
}

// Paused reports the global pause flag.
func (is *Issuer) Paused() bool {
	is.mu.RLock()
	defer is.mu.RUnlock()
	return is.paused
}

// MintPaused reports the per-asset pause flag.
func (is *Issuer) MintPaused(symbol string) bool {
	is.mu.RLock()
	defer is.mu.RUnlock()
	return is.mintPaused[symbol]
}

func (is *Issuer) checkGlobalPause() error {
	is.mu.RLock()
	defer is.mu.RUnlock()
	if is.paused {
		return &ContractPausedError{Component: "issuer"}
	}
	return nil
}

func (is *Issuer) checkPaused(symbol string) error {
	is.mu.RLock()
	defer is.mu.RUnlock()
	if is.paused {
		return &ContractPausedError{Component: "issuer"}
	}
	if is.mintPaused[symbol] {
		return &MintPausedError{Symbol: symbol}
	}
	return nil
}
