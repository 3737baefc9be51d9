package dusd

import (
	"math/big"
	"sync"
)

// VaultAccount is the custody identity holding deposited collateral on
// every collateral token ledger.
const VaultAccount = "collateral-vault"

// CollateralVault owns the set of collateral assets accepted by the
// protocol and their deposited balances. Valuation is recomputed from
// balances and fresh oracle prices on every call; nothing is cached.
type CollateralVault struct {
	oracle PriceOracle
	roles  *AccessController

	assets map[string]*Asset
	tokens map[string]*Token
	mu     sync.RWMutex
}

// NewCollateralVault creates an empty vault.
func NewCollateralVault(oracle PriceOracle, roles *AccessController) *CollateralVault {
	return &CollateralVault{
		oracle: oracle,
		roles:  roles,
		assets: make(map[string]*Asset),
		tokens: make(map[string]*Token),
	}
}

// Allow admits a collateral token. Re-allowing a currently allowed asset is
// an error; a previously disallowed asset is re-admitted in place.
func (cv *CollateralVault) Allow(caller string, token *Token) error {
	if err := cv.roles.Require(RoleDefaultAdmin, caller); err != nil {
		return err
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()

	if asset, ok := cv.assets[token.Symbol]; ok {
		if asset.Allowed {
			return &CollateralAlreadyAllowedError{Symbol: token.Symbol}
		}
		asset.Allowed = true
		return nil
	}

	cv.assets[token.Symbol] = &Asset{Symbol: token.Symbol, Decimals: token.Decimals, Allowed: true}
	cv.tokens[token.Symbol] = token
	return nil
}

// Disallow removes an asset from the allowed set. The last remaining
// allowed asset cannot be removed: the protocol must always accept at
// least one collateral type. Any existing balance stays in custody and is
// simply excluded from valuation.
func (cv *CollateralVault) Disallow(caller, symbol string) error {
	if err := cv.roles.Require(RoleDefaultAdmin, caller); err != nil {
		return err
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()

	asset, ok := cv.assets[symbol]
	if !ok || !asset.Allowed {
		return &UnsupportedCollateralError{Symbol: symbol}
	}

	allowed := 0
	for _, a := range cv.assets {
		if a.Allowed {
			allowed++
		}
	}
	if allowed <= 1 {
		return &LastCollateralError{Symbol: symbol}
	}

	asset.Allowed = false
	return nil
}

// IsAllowed reports whether symbol is in the allowed set.
func (cv *CollateralVault) IsAllowed(symbol string) bool {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	asset, ok := cv.assets[symbol]
	return ok && asset.Allowed
}

// Assets returns a snapshot of all known assets.
func (cv *CollateralVault) Assets() []Asset {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	out := make([]Asset, 0, len(cv.assets))
	for _, a := range cv.assets {
		out = append(out, *a)
	}
	return out
}

// TokenFor returns the token ledger backing a known asset.
func (cv *CollateralVault) TokenFor(symbol string) (*Token, error) {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	token, ok := cv.tokens[symbol]
	if !ok {
		return nil, &UnsupportedCollateralError{Symbol: symbol}
	}
	return token, nil
}

// Deposit moves amount of symbol from the depositor into custody.
func (cv *CollateralVault) Deposit(from string, amount *big.Int, symbol string) error {
	token, err := cv.allowedToken(symbol)
	if err != nil {
		return err
	}
	return token.Transfer(from, VaultAccount, amount)
}

// DepositFrom pulls amount of symbol from owner into custody, spending
// spender's allowance.
func (cv *CollateralVault) DepositFrom(spender, owner string, amount *big.Int, symbol string) error {
	token, err := cv.allowedToken(symbol)
	if err != nil {
		return err
	}
	return token.TransferFrom(spender, owner, VaultAccount, amount)
}

// Withdraw releases amount of symbol from custody to the caller.
// Restricted to the collateral-withdrawer capability.
func (cv *CollateralVault) Withdraw(caller string, amount *big.Int, symbol string) error {
	return cv.WithdrawTo(caller, caller, amount, symbol)
}

// WithdrawTo releases amount of symbol from custody to recipient.
func (cv *CollateralVault) WithdrawTo(caller, recipient string, amount *big.Int, symbol string) error {
	if err := cv.roles.Require(RoleCollateralWithdrawer, caller); err != nil {
		return err
	}
	token, err := cv.allowedToken(symbol)
	if err != nil {
		return err
	}
	return token.Transfer(VaultAccount, recipient, amount)
}

// ExchangeCollateral swaps amountIn of the caller's symbolIn for amountOut
// of vault-held symbolOut. The requested out-value may never exceed the
// deposited in-value at current oracle prices.
func (cv *CollateralVault) ExchangeCollateral(caller string, amountIn *big.Int, symbolIn string, amountOut *big.Int, symbolOut string) error {
	tokenIn, err := cv.allowedToken(symbolIn)
	if err != nil {
		return err
	}
	tokenOut, err := cv.allowedToken(symbolOut)
	if err != nil {
		return err
	}
	if isZeroOrNegative(amountIn) || isZeroOrNegative(amountOut) {
		return &ZeroAmountError{Op: "exchangeCollateral"}
	}

	inValue, err := cv.ValueOf(amountIn, symbolIn)
	if err != nil {
		return err
	}
	outValue, err := cv.ValueOf(amountOut, symbolOut)
	if err != nil {
		return err
	}
	if outValue.Cmp(inValue) > 0 {
		return &CannotWithdrawMoreValueThanDepositedError{OutValue: outValue, InValue: inValue}
	}
	if tokenOut.BalanceOf(VaultAccount).Cmp(amountOut) < 0 {
		return &InsufficientBalanceError{
			Symbol:    symbolOut,
			Account:   VaultAccount,
			Requested: new(big.Int).Set(amountOut),
			Available: tokenOut.BalanceOf(VaultAccount),
		}
	}

	if err := tokenIn.Transfer(caller, VaultAccount, amountIn); err != nil {
		return err
	}
	return tokenOut.Transfer(VaultAccount, caller, amountOut)
}

// ExchangeCollateralMax swaps amountIn of the caller's symbolIn for the
// maximum equal-value amount of symbolOut, rejecting if that maximum falls
// below minAmountOut. Returns the amount received.
func (cv *CollateralVault) ExchangeCollateralMax(caller string, amountIn *big.Int, symbolIn, symbolOut string, minAmountOut *big.Int) (*big.Int, error) {
	if _, err := cv.allowedToken(symbolOut); err != nil {
		return nil, err
	}

	inValue, err := cv.ValueOf(amountIn, symbolIn)
	if err != nil {
		return nil, err
	}
	cv.mu.RLock()
	oracle := cv.oracle
	decimalsOut := cv.assets[symbolOut].Decimals
	cv.mu.RUnlock()

	priceOut, err := oracle.GetAssetPrice(symbolOut)
	if err != nil {
		return nil, err
	}

	amountOut := amountFromValue(inValue, priceOut, decimalsOut)
	if minAmountOut != nil && amountOut.Cmp(minAmountOut) < 0 {
		return nil, &ToCollateralAmountBelowMinError{Got: amountOut, Min: new(big.Int).Set(minAmountOut)}
	}

	if err := cv.ExchangeCollateral(caller, amountIn, symbolIn, amountOut, symbolOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// Balance returns the custody balance of symbol.
func (cv *CollateralVault) Balance(symbol string) *big.Int {
	cv.mu.RLock()
	token, ok := cv.tokens[symbol]
	cv.mu.RUnlock()
	if !ok {
		return big.NewInt(0)
	}
	return token.BalanceOf(VaultAccount)
}

// ValueOf converts an amount of an allowed asset into base-currency units
// at the current oracle price.
func (cv *CollateralVault) ValueOf(amount *big.Int, symbol string) (*big.Int, error) {
	cv.mu.RLock()
	asset, ok := cv.assets[symbol]
	oracle := cv.oracle
	cv.mu.RUnlock()
	if !ok || !asset.Allowed {
		return nil, &UnsupportedCollateralError{Symbol: symbol}
	}

	price, err := oracle.GetAssetPrice(symbol)
	if err != nil {
		return nil, err
	}
	return assetValue(amount, price, asset.Decimals), nil
}

// AmountFromValue converts a base-currency value into units of an allowed
// asset at the current oracle price.
func (cv *CollateralVault) AmountFromValue(value *big.Int, symbol string) (*big.Int, error) {
	cv.mu.RLock()
	asset, ok := cv.assets[symbol]
	oracle := cv.oracle
	cv.mu.RUnlock()
	if !ok || !asset.Allowed {
		return nil, &UnsupportedCollateralError{Symbol: symbol}
	}

	price, err := oracle.GetAssetPrice(symbol)
	if err != nil {
		return nil, err
	}
	return amountFromValue(value, price, asset.Decimals), nil
}

// TotalValue sums balance x price over every allowed asset, normalized to
// base-currency units. Disallowed assets are excluded even when a custody
// balance exists.
func (cv *CollateralVault) TotalValue() (*big.Int, error) {
	cv.mu.RLock()
	type entry struct {
		symbol   string
		decimals uint8
		token    *Token
	}
	entries := make([]entry, 0, len(cv.assets))
	for symbol, asset := range cv.assets {
		if asset.Allowed {
			entries = append(entries, entry{symbol, asset.Decimals, cv.tokens[symbol]})
		}
	}
	oracle := cv.oracle
	cv.mu.RUnlock()

	total := big.NewInt(0)
	for _, e := range entries {
		balance := e.token.BalanceOf(VaultAccount)
		if balance.Sign() == 0 {
			continue
		}
		price, err := oracle.GetAssetPrice(e.symbol)
		if err != nil {
			return nil, err
		}
		total.Add(total, assetValue(balance, price, e.decimals))
	}
	return total, nil
}

// SetOracle swaps the price oracle. Restricted to the oracle-manager
// capability.
func (cv *CollateralVault) SetOracle(caller string, oracle PriceOracle) error {
	if err := cv.roles.Require(RoleOracleManager, caller); err != nil {
		return err
	}
	cv.mu.Lock()
	defer cv.mu.Unlock()
	cv.oracle = oracle
	return nil
}

func (cv *CollateralVault) allowedToken(symbol string) (*Token, error) {
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	asset, ok := cv.assets[symbol]
	if !ok || !asset.Allowed {
		return nil, &UnsupportedCollateralError{Symbol: symbol}
	}
	return cv.tokens[symbol], nil
}
