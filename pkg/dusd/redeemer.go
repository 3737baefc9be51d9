package dusd

import (
	"math/big"
	"sync"
)

// RedeemerAccount is the identity under which the redeemer exercises its
// collateral-withdrawer capability.
const RedeemerAccount = "redeemer"

// Redeemer burns dUSD and releases collateral of equal value, optionally
// minus a per-asset or default fee routed to the fee receiver.
type Redeemer struct {
	vault  *CollateralVault
	oracle PriceOracle
	token  *Token
	roles  *AccessController

	feeReceiver   string
	defaultFeeBps uint32
	assetFeeBps   map[string]uint32

	paused       bool
	redeemPaused map[string]bool
	mu           sync.RWMutex
}

// NewRedeemer wires the redeemer to its collaborators. The redeemer's own
// identity (RedeemerAccount) must hold the collateral-withdrawer role for
// redemptions to succeed.
func NewRedeemer(vault *CollateralVault, oracle PriceOracle, token *Token, roles *AccessController, feeReceiver string) *Redeemer {
	return &Redeemer{
		vault:        vault,
		oracle:       oracle,
		token:        token,
		roles:        roles,
		feeReceiver:  feeReceiver,
		assetFeeBps:  make(map[string]uint32),
		redeemPaused: make(map[string]bool),
	}
}

// Redeem burns receiptAmount from the caller and withdraws the equivalent
// collateral, minus the redemption fee, to the caller. Fails with
// SlippageError if the net payout falls below minCollateralOut.
func (rd *Redeemer) Redeem(caller string, receiptAmount *big.Int, symbol string, minCollateralOut *big.Int) (*big.Int, error) {
	return rd.redeem(caller, receiptAmount, symbol, minCollateralOut, rd.FeeBpsFor(symbol))
}

// RedeemAsProtocol bypasses fees for privileged callers while reusing the
// same valuation path. Restricted to the redemption-manager capability.
func (rd *Redeemer) RedeemAsProtocol(caller string, receiptAmount *big.Int, symbol string, minCollateralOut *big.Int) (*big.Int, error) {
	if err := rd.roles.Require(RoleRedemptionManager, caller); err != nil {
		return nil, err
	}
	return rd.redeem(caller, receiptAmount, symbol, minCollateralOut, 0)
}

func (rd *Redeemer) redeem(caller string, receiptAmount *big.Int, symbol string, minCollateralOut *big.Int, feeBps uint32) (*big.Int, error) {
	if err := rd.checkPaused(symbol); err != nil {
		return nil, err
	}
	if isZeroOrNegative(receiptAmount) {
		return nil, &ZeroAmountError{Op: "redeem"}
	}

	// Collaborators can be swapped by managers at runtime; snapshot them so
	// the whole operation sees one oracle and one vault.
	rd.mu.RLock()
	oracle, vault := rd.oracle, rd.vault
	rd.mu.RUnlock()

	receiptPrice, err := oracle.GetAssetPrice(rd.token.Symbol)
	if err != nil {
		return nil, err
	}
	value := assetValue(receiptAmount, receiptPrice, rd.token.Decimals)

	gross, err := vault.AmountFromValue(value, symbol)
	if err != nil {
		return nil, err
	}

	fee := new(big.Int).Mul(gross, big.NewInt(int64(feeBps)))
	fee.Quo(fee, big.NewInt(BpsDivisor))
	net := new(big.Int).Sub(gross, fee)

	// A payout that floors to zero must abort here: custody transfers
	// reject zero amounts, and by then the burn would already have landed.
	if net.Sign() <= 0 {
		return nil, &ZeroAmountError{Op: "redeem " + symbol}
	}

	if minCollateralOut != nil && net.Cmp(minCollateralOut) < 0 {
		return nil, &SlippageError{Got: net, Min: new(big.Int).Set(minCollateralOut)}
	}

	// Custody must cover the gross payout before anything is burned, so a
	// short vault aborts with no state change.
	if vault.Balance(symbol).Cmp(gross) < 0 {
		return nil, &InsufficientBalanceError{
			Symbol:    symbol,
			Account:   VaultAccount,
			Requested: gross,
			Available: vault.Balance(symbol),
		}
	}

	if err := rd.token.Burn(caller, receiptAmount); err != nil {
		return nil, err
	}
	if err := vault.WithdrawTo(RedeemerAccount, caller, net, symbol); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := vault.WithdrawTo(RedeemerAccount, rd.FeeReceiver(), fee, symbol); err != nil {
			return nil, err
		}
	}
	return net, nil
}

// FeeBpsFor returns the per-asset fee override if set, else the default.
func (rd *Redeemer) FeeBpsFor(symbol string) uint32 {
	rd.mu.RLock()
	defer rd.mu.RUnlock()
	if bps, ok := rd.assetFeeBps[symbol]; ok {
		return bps
	}
	return rd.defaultFeeBps
}

// SetDefaultRedemptionFee sets the default fee in basis points.
// Restricted to the fee-manager capability; bounded by MaxFeeBps.
func (rd *Redeemer) SetDefaultRedemptionFee(caller string, feeBps uint32) error {
	if err := rd.roles.Require(RoleFeeManager, caller); err != nil {
		return err
	}
	if feeBps > MaxFeeBps {
		return &FeeTooHighError{FeeBps: feeBps, MaxBps: MaxFeeBps}
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.defaultFeeBps = feeBps
	return nil
}

// SetAssetRedemptionFee sets a per-asset fee override.
func (rd *Redeemer) SetAssetRedemptionFee(caller, symbol string, feeBps uint32) error {
	if err := rd.roles.Require(RoleFeeManager, caller); err != nil {
		return err
	}
	if feeBps > MaxFeeBps {
		return &FeeTooHighError{FeeBps: feeBps, MaxBps: MaxFeeBps}
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.assetFeeBps[symbol] = feeBps
	return nil
}

// ClearAssetRedemptionFee removes a per-asset override, falling back to
// the default. Clearing an absent override is a no-op.
func (rd *Redeemer) ClearAssetRedemptionFee(caller, symbol string) error {
	if err := rd.roles.Require(RoleFeeManager, caller); err != nil {
		return err
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	delete(rd.assetFeeBps, symbol)
	return nil
}

// SetFeeReceiver changes where redemption fees are routed. Restricted to
// the fee-manager capability.
func (rd *Redeemer) SetFeeReceiver(caller, receiver string) error {
	if err := rd.roles.Require(RoleFeeManager, caller); err != nil {
		return err
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.feeReceiver = receiver
	return nil
}

// FeeReceiver returns the current fee receiver identity.
func (rd *Redeemer) FeeReceiver() string {
	rd.mu.RLock()
	defer rd.mu.RUnlock()
	return rd.feeReceiver
}

// SetOracle swaps the price oracle. Restricted to the oracle-manager
// capability.
func (rd *Redeemer) SetOracle(caller string, oracle PriceOracle) error {
	if err := rd.roles.Require(RoleOracleManager, caller); err != nil {
		return err
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.oracle = oracle
	return nil
}

// SetCollateralVault swaps the collateral vault. Restricted to
// default-admin.
func (rd *Redeemer) SetCollateralVault(caller string, vault *CollateralVault) error {
	if err := rd.roles.Require(RoleDefaultAdmin, caller); err != nil {
		return err
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.vault = vault
	return nil
}

// SetPaused toggles the global pause. Restricted to the pauser capability.
func (rd *Redeemer) SetPaused(caller string, paused bool) error {
	if err := rd.roles.Require(RolePauser, caller); err != nil {
		return err
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.paused = paused
	return nil
}

// SetRedeemPaused toggles redemption of a single collateral asset.
// Restricted to the pauser capability.
func (rd *Redeemer) SetRedeemPaused(caller, symbol string, paused bool) error {
	if err := rd.roles.Require(RolePauser, caller); err != nil {
		return err
	}
	rd.mu.Lock()
	defer rd.mu.Unlock()
	rd.redeemPaused[symbol] = paused
	return nil
}

func (rd *Redeemer) checkPaused(symbol string) error {
	rd.mu.RLock()
	defer rd.mu.RUnlock()
	if rd.paused {
		return &ContractPausedError{Component: "redeemer"}
	}
	if rd.redeemPaused[symbol] {
		return &AssetPausedError{Symbol: symbol, Op: "redeem"}
	}
	return nil
}
