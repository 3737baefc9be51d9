package dusd

import (
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testAdmin    = "admin"
	testFeeRecv  = "fee-receiver"
	testOperator = "operator"
)

// units returns n whole tokens in raw units at the given precision.
func units(n int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), pow10(decimals))
}

// usd returns n whole dollars in base-currency units.
func usd(n int64) *big.Int {
	return units(n, PriceDecimals)
}

// oneDollar is $1.00 in base-currency units.
func oneDollar() *big.Int {
	return usd(1)
}

// mockAmoVault is a controllable venue for allocator tests. Its reported
// value is whatever the test sets, independent of any ledger balance.
type mockAmoVault struct {
	name  string
	value *big.Int
	err   error
	mu    sync.Mutex
}

func newMockAmoVault(name string) *mockAmoVault {
	return &mockAmoVault{name: name, value: big.NewInt(0)}
}

func (m *mockAmoVault) Name() string    { return m.name }
func (m *mockAmoVault) Account() string { return "vault:" + m.name }

func (m *mockAmoVault) TotalCollateralValue() (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return new(big.Int).Set(m.value), nil
}

func (m *mockAmoVault) setValue(v *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = new(big.Int).Set(v)
}

// testEngine is a fully wired engine with two collateral assets at $1:
// USDC (6 decimals) and DAI (18 decimals). The operator identity holds
// every non-admin capability.
func newTestEngine(t *testing.T) (*Engine, *Token, *Token) {
	t.Helper()

	e := NewEngine(EngineConfig{Admin: testAdmin, FeeReceiver: testFeeRecv})

	require.NoError(t, e.Oracle.RegisterFeed(NewStaticFeed(ReceiptSymbol, oneDollar())))
	require.NoError(t, e.Oracle.RegisterFeed(NewStaticFeed("USDC", oneDollar())))
	require.NoError(t, e.Oracle.RegisterFeed(NewStaticFeed("DAI", oneDollar())))

	usdc := NewToken("USDC", 6)
	dai := NewToken("DAI", 18)
	require.NoError(t, e.Collateral.Allow(testAdmin, usdc))
	require.NoError(t, e.Collateral.Allow(testAdmin, dai))

	for _, role := range []Role{
		RoleCollateralWithdrawer,
		RoleAmoAllocator,
		RoleAmoManager,
		RolePauser,
		RoleOracleManager,
		RoleFeeManager,
		RoleMinter,
		RoleRedemptionManager,
	} {
		require.NoError(t, e.Roles.Grant(testAdmin, role, testOperator))
	}

	return e, usdc, dai
}

// fund mints collateral straight to an account for test setup.
func fund(t *testing.T, token *Token, account string, amount *big.Int) {
	t.Helper()
	require.NoError(t, token.Mint(account, amount))
}
