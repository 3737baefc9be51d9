package dusd

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssue(t *testing.T) {
	e, usdc, dai := newTestEngine(t)
	fund(t, usdc, "alice", units(1000, 6))
	fund(t, dai, "alice", units(1000, 18))

	t.Run("MintsAtDepositedValue", func(t *testing.T) {
		out, err := e.Issuer.Issue("alice", units(100, 6), "USDC", nil)
		require.NoError(t, err)
		assert.Equal(t, units(100, ReceiptDecimals), out)
		assert.Equal(t, units(100, ReceiptDecimals), e.Receipt.BalanceOf("alice"))
		assert.Equal(t, units(100, 6), e.Collateral.Balance("USDC"))
	})

	t.Run("NormalizesForeignPrecision", func(t *testing.T) {
		// An 18-decimal deposit mints the same receipt units as a
		// 6-decimal deposit of equal value.
		out, err := e.Issuer.Issue("alice", units(100, 18), "DAI", nil)
		require.NoError(t, err)
		assert.Equal(t, units(100, ReceiptDecimals), out)
	})

	t.Run("SlippageGuard", func(t *testing.T) {
		_, err := e.Issuer.Issue("alice", units(100, 6), "USDC", units(101, ReceiptDecimals))
		var slippage *SlippageError
		require.ErrorAs(t, err, &slippage)
		assert.Equal(t, units(100, ReceiptDecimals), slippage.Got)
		// Nothing moved on failure.
		assert.Equal(t, units(100, 6), e.Collateral.Balance("USDC"))
	})

	t.Run("ZeroAmountRejected", func(t *testing.T) {
		_, err := e.Issuer.Issue("alice", big.NewInt(0), "USDC", nil)
		var zero *ZeroAmountError
		require.ErrorAs(t, err, &zero)
	})

	t.Run("UnknownAssetRejected", func(t *testing.T) {
		_, err := e.Issuer.Issue("alice", units(1, 6), "FRAX", nil)
		var unsupported *UnsupportedCollateralError
		require.ErrorAs(t, err, &unsupported)
	})
}

func TestIssueOffPeg(t *testing.T) {
	e := NewEngine(EngineConfig{Admin: testAdmin, FeeReceiver: testFeeRecv})

	// dUSD trades at $0.50: $100 of collateral mints 200 dUSD.
	require.NoError(t, e.Oracle.RegisterFeed(NewStaticFeed(ReceiptSymbol, big.NewInt(50_000_000))))
	require.NoError(t, e.Oracle.RegisterFeed(NewStaticFeed("USDC", oneDollar())))

	usdc := NewToken("USDC", 6)
	require.NoError(t, e.Collateral.Allow(testAdmin, usdc))
	fund(t, usdc, "alice", units(100, 6))

	out, err := e.Issuer.Issue("alice", units(100, 6), "USDC", nil)
	require.NoError(t, err)
	assert.Equal(t, units(200, ReceiptDecimals), out)
}

func TestIssueTo(t *testing.T) {
	e, usdc, _ := newTestEngine(t)
	fund(t, usdc, "alice", units(100, 6))

	t.Run("RequiresAllowance", func(t *testing.T) {
		_, err := e.Issuer.IssueTo("router", "alice", "bob", units(50, 6), "USDC", nil)
		var allowance *InsufficientAllowanceError
		require.ErrorAs(t, err, &allowance)
	})

	t.Run("PullsDepositAndMintsToReceiver", func(t *testing.T) {
		usdc.Approve("alice", "router", units(50, 6))
		out, err := e.Issuer.IssueTo("router", "alice", "bob", units(50, 6), "USDC", nil)
		require.NoError(t, err)
		assert.Equal(t, units(50, ReceiptDecimals), out)
		assert.Equal(t, units(50, ReceiptDecimals), e.Receipt.BalanceOf("bob"))
		assert.Equal(t, units(50, 6), usdc.BalanceOf("alice"))
	})
}

func TestIssuePause(t *testing.T) {
	e, usdc, _ := newTestEngine(t)
	fund(t, usdc, "alice", units(100, 6))

	t.Run("PerAssetPause", func(t *testing.T) {
		require.NoError(t, e.Issuer.SetMintPaused(testOperator, "USDC", true))
		_, err := e.Issuer.Issue("alice", units(10, 6), "USDC", nil)
		var paused *MintPausedError
		require.ErrorAs(t, err, &paused)
		assert.Equal(t, "USDC", paused.Symbol)

		// Pause is checked before anything else, including amount checks.
		_, err = e.Issuer.Issue("alice", big.NewInt(0), "USDC", nil)
		require.ErrorAs(t, err, &paused)

		require.NoError(t, e.Issuer.SetMintPaused(testOperator, "USDC", false))
	})

	t.Run("GlobalPause", func(t *testing.T) {
		require.NoError(t, e.Issuer.SetPaused(testOperator, true))
		_, err := e.Issuer.Issue("alice", units(10, 6), "USDC", nil)
		var paused *ContractPausedError
		require.ErrorAs(t, err, &paused)

		err = e.Issuer.IncreaseAmoSupply(testOperator, units(10, ReceiptDecimals))
		require.ErrorAs(t, err, &paused)

		require.NoError(t, e.Issuer.SetPaused(testOperator, false))
		_, err = e.Issuer.Issue("alice", units(10, 6), "USDC", nil)
		require.NoError(t, err)
	})

	t.Run("PauseRequiresCapability", func(t *testing.T) {
		var unauthorized *UnauthorizedError
		assert.ErrorAs(t, e.Issuer.SetPaused("alice", true), &unauthorized)
	})
}

func TestAmoSupplyExpansion(t *testing.T) {
	e, _, _ := newTestEngine(t)

	require.NoError(t, e.Issuer.IncreaseAmoSupply(testOperator, units(5000, ReceiptDecimals)))
	assert.Equal(t, units(5000, ReceiptDecimals), e.Receipt.TotalSupply())
	assert.Equal(t, units(5000, ReceiptDecimals), e.Allocator.TotalAmoSupply())

	// Reserve supply never counts as circulating.
	assert.Zero(t, big.NewInt(0).Cmp(e.Issuer.CirculatingSupply()))

	var unauthorized *UnauthorizedError
	assert.ErrorAs(t, e.Issuer.IncreaseAmoSupply("alice", units(1, ReceiptDecimals)), &unauthorized)
}

func TestIssueUsingExcessCollateral(t *testing.T) {
	e, usdc, _ := newTestEngine(t)
	fund(t, usdc, "alice", units(1000, 6))

	// Alice issues 500: collateral value equals circulating supply, so
	// there is no excess yet.
	_, err := e.Issuer.Issue("alice", units(500, 6), "USDC", nil)
	require.NoError(t, err)

	t.Run("NoExcessFails", func(t *testing.T) {
		err := e.Issuer.IssueUsingExcessCollateral(testOperator, "treasury", units(1, ReceiptDecimals))
		var surpasses *IssuanceSurpassesExcessCollateralError
		require.ErrorAs(t, err, &surpasses)
		assert.Zero(t, big.NewInt(0).Cmp(surpasses.Excess))
	})

	// A donation straight into custody creates $200 of excess.
	fund(t, usdc, "donor", units(200, 6))
	require.NoError(t, e.Collateral.Deposit("donor", units(200, 6), "USDC"))

	t.Run("BoundedByExcess", func(t *testing.T) {
		err := e.Issuer.IssueUsingExcessCollateral(testOperator, "treasury", units(201, ReceiptDecimals))
		var surpasses *IssuanceSurpassesExcessCollateralError
		require.ErrorAs(t, err, &surpasses)
		assert.Equal(t, units(200, ReceiptDecimals), surpasses.Excess)
	})

	t.Run("MintsWithinExcess", func(t *testing.T) {
		require.NoError(t, e.Issuer.IssueUsingExcessCollateral(testOperator, "treasury", units(200, ReceiptDecimals)))
		assert.Equal(t, units(200, ReceiptDecimals), e.Receipt.BalanceOf("treasury"))

		// Backing still covers the whole circulating supply.
		backing, err := e.Issuer.CollateralInReceiptUnits()
		require.NoError(t, err)
		assert.True(t, backing.Cmp(e.Issuer.CirculatingSupply()) >= 0)
	})

	t.Run("RequiresMinterCapability", func(t *testing.T) {
		var unauthorized *UnauthorizedError
		assert.ErrorAs(t, e.Issuer.IssueUsingExcessCollateral("alice", "alice", units(1, ReceiptDecimals)), &unauthorized)
	})
}
