package dusd

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultValuation(t *testing.T) {
	e, _, dai := newTestEngine(t)

	// 420 units of an 18-decimal asset at $1 is $420 in 8-decimal base
	// units regardless of the ledger's native precision.
	fund(t, dai, "alice", units(420, 18))
	require.NoError(t, e.Collateral.Deposit("alice", units(420, 18), "DAI"))

	total, err := e.Collateral.TotalValue()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42_000_000_000), total)

	require.NoError(t, e.Collateral.WithdrawTo(RedeemerAccount, "alice", units(351, 18), "DAI"))

	total, err = e.Collateral.TotalValue()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(6_900_000_000), total)
	assert.Equal(t, usd(69), total)
}

func TestVaultAllowList(t *testing.T) {
	e, usdc, _ := newTestEngine(t)

	t.Run("ReAllowingAllowedAssetFails", func(t *testing.T) {
		err := e.Collateral.Allow(testAdmin, usdc)
		var already *CollateralAlreadyAllowedError
		require.ErrorAs(t, err, &already)
		assert.Equal(t, "USDC", already.Symbol)
	})

	t.Run("DisallowUnknownAssetFails", func(t *testing.T) {
		err := e.Collateral.Disallow(testAdmin, "FRAX")
		var unsupported *UnsupportedCollateralError
		require.ErrorAs(t, err, &unsupported)
	})

	t.Run("DisallowedBalanceStaysExcluded", func(t *testing.T) {
		fund(t, usdc, "alice", units(100, 6))
		require.NoError(t, e.Collateral.Deposit("alice", units(100, 6), "USDC"))

		require.NoError(t, e.Collateral.Disallow(testAdmin, "USDC"))
		assert.False(t, e.Collateral.IsAllowed("USDC"))

		// Custody keeps the balance but valuation ignores it.
		assert.Equal(t, units(100, 6), e.Collateral.Balance("USDC"))
		total, err := e.Collateral.TotalValue()
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(0), total)

		_, err = e.Collateral.ValueOf(units(1, 6), "USDC")
		var unsupported *UnsupportedCollateralError
		require.ErrorAs(t, err, &unsupported)
	})

	t.Run("DepositToDisallowedAssetFails", func(t *testing.T) {
		err := e.Collateral.Deposit("alice", units(1, 6), "USDC")
		var unsupported *UnsupportedCollateralError
		require.ErrorAs(t, err, &unsupported)
	})

	t.Run("ReAdmissionRestoresValuation", func(t *testing.T) {
		require.NoError(t, e.Collateral.Allow(testAdmin, usdc))
		total, err := e.Collateral.TotalValue()
		require.NoError(t, err)
		assert.Equal(t, usd(100), total)
	})

	t.Run("LastAllowedAssetCannotBeRemoved", func(t *testing.T) {
		require.NoError(t, e.Collateral.Disallow(testAdmin, "USDC"))
		err := e.Collateral.Disallow(testAdmin, "DAI")
		var last *LastCollateralError
		require.ErrorAs(t, err, &last)
		assert.True(t, e.Collateral.IsAllowed("DAI"))
		require.NoError(t, e.Collateral.Allow(testAdmin, usdc))
	})

	t.Run("NonAdminCannotManageAllowList", func(t *testing.T) {
		var unauthorized *UnauthorizedError
		assert.ErrorAs(t, e.Collateral.Allow("alice", NewToken("FRAX", 18)), &unauthorized)
		assert.ErrorAs(t, e.Collateral.Disallow("alice", "USDC"), &unauthorized)
	})
}

func TestVaultWithdrawGating(t *testing.T) {
	e, usdc, _ := newTestEngine(t)
	fund(t, usdc, "alice", units(50, 6))
	require.NoError(t, e.Collateral.Deposit("alice", units(50, 6), "USDC"))

	err := e.Collateral.Withdraw("alice", units(10, 6), "USDC")
	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	assert.Equal(t, RoleCollateralWithdrawer, unauthorized.Role)

	require.NoError(t, e.Collateral.WithdrawTo(testOperator, "bob", units(10, 6), "USDC"))
	assert.Equal(t, units(10, 6), usdc.BalanceOf("bob"))
}

func TestExchangeCollateral(t *testing.T) {
	e, usdc, dai := newTestEngine(t)

	// Seed custody with DAI so USDC can be swapped out against it.
	fund(t, dai, "seeder", units(1000, 18))
	require.NoError(t, e.Collateral.Deposit("seeder", units(1000, 18), "DAI"))
	fund(t, usdc, "alice", units(500, 6))

	t.Run("EqualValueSwap", func(t *testing.T) {
		require.NoError(t, e.Collateral.ExchangeCollateral("alice", units(100, 6), "USDC", units(100, 18), "DAI"))
		assert.Equal(t, units(100, 18), dai.BalanceOf("alice"))
		assert.Equal(t, units(400, 6), usdc.BalanceOf("alice"))
	})

	t.Run("OutValueAboveInValueFails", func(t *testing.T) {
		err := e.Collateral.ExchangeCollateral("alice", units(100, 6), "USDC", units(101, 18), "DAI")
		var tooMuch *CannotWithdrawMoreValueThanDepositedError
		require.ErrorAs(t, err, &tooMuch)
		assert.Equal(t, usd(101), tooMuch.OutValue)
		assert.Equal(t, usd(100), tooMuch.InValue)
	})

	t.Run("MaxSwapHonorsMinOut", func(t *testing.T) {
		_, err := e.Collateral.ExchangeCollateralMax("alice", units(100, 6), "USDC", "DAI", units(101, 18))
		var belowMin *ToCollateralAmountBelowMinError
		require.ErrorAs(t, err, &belowMin)
		assert.Equal(t, units(100, 18), belowMin.Got)

		out, err := e.Collateral.ExchangeCollateralMax("alice", units(100, 6), "USDC", "DAI", units(100, 18))
		require.NoError(t, err)
		assert.Equal(t, units(100, 18), out)
	})

	t.Run("OffPegPricesDriveTheRatio", func(t *testing.T) {
		// DAI trades at $0.50: $100 of USDC buys 200 DAI.
		offPeg := NewFeedOracle(time.Minute)
		require.NoError(t, offPeg.RegisterFeed(NewStaticFeed("USDC", oneDollar())))
		require.NoError(t, offPeg.RegisterFeed(NewStaticFeed("DAI", big.NewInt(50_000_000))))
		require.NoError(t, e.Collateral.SetOracle(testOperator, offPeg))

		out, err := e.Collateral.ExchangeCollateralMax("alice", units(100, 6), "USDC", "DAI", nil)
		require.NoError(t, err)
		assert.Equal(t, units(200, 18), out)
	})
}
