package dusd

import (
	"math/big"
	"sync"
)

// AllocatorAccount is the identity holding idle reserve supply and
// exercising the allocator's capabilities on other ledgers.
const AllocatorAccount = "amo-allocator"

// AmoVault is the narrow capability interface an external AMO venue must
// expose. The allocator never trusts a vault's self-reported value for
// accounting: allocation ledger entries remain authoritative even when the
// venue's balance diverges.
type AmoVault interface {
	// Name identifies the vault in the allocator's registry.
	Name() string

	// Account is the vault's custody identity on the token ledgers.
	Account() string

	// TotalCollateralValue reports the venue's net value in base-currency
	// units. May return anything, including zero or a loss; queried at
	// arbitrary times and never cached.
	TotalCollateralValue() (*big.Int, error)
}

// AmoVaultState is the allocator-side lifecycle of a vault.
type AmoVaultState int

const (
	AmoVaultUnregistered AmoVaultState = iota
	AmoVaultActive
	AmoVaultInactive
)

func (s AmoVaultState) String() string {
	switch s {
	case AmoVaultActive:
		return "active"
	case AmoVaultInactive:
		return "inactive"
	default:
		return "unregistered"
	}
}

type amoEntry struct {
	vault      AmoVault
	state      AmoVaultState
	allocation *big.Int
}

// AmoAllocator tracks how much reserve supply has been handed out to AMO
// venues and computes venue profit. Only active vaults accept new
// allocations; deallocation works in any registered state so capital stays
// retrievable after a venue is decommissioned.
type AmoAllocator struct {
	token      *Token
	collateral *CollateralVault
	oracle     PriceOracle
	roles      *AccessController

	vaults         map[string]*amoEntry
	totalAllocated *big.Int
	mu             sync.RWMutex
}

// NewAmoAllocator wires the allocator to its collaborators. The allocator's
// identity (AllocatorAccount) must hold the collateral-withdrawer role for
// holding-vault transfers to succeed.
func NewAmoAllocator(token *Token, collateral *CollateralVault, oracle PriceOracle, roles *AccessController) *AmoAllocator {
	return &AmoAllocator{
		token:          token,
		collateral:     collateral,
		oracle:         oracle,
		roles:          roles,
		vaults:         make(map[string]*amoEntry),
		totalAllocated: big.NewInt(0),
	}
}

// ReserveAccount implements ReserveSupplier.
func (aa *AmoAllocator) ReserveAccount() string { return AllocatorAccount }

// TotalAmoSupply is the allocator's idle reserve-token balance plus
// everything currently allocated to vaults.
func (aa *AmoAllocator) TotalAmoSupply() *big.Int {
	aa.mu.RLock()
	allocated := new(big.Int).Set(aa.totalAllocated)
	aa.mu.RUnlock()
	return allocated.Add(allocated, aa.token.BalanceOf(AllocatorAccount))
}

// TotalAllocated returns the sum of all allocation ledger entries.
func (aa *AmoAllocator) TotalAllocated() *big.Int {
	aa.mu.RLock()
	defer aa.mu.RUnlock()
	return new(big.Int).Set(aa.totalAllocated)
}

// AllocationOf returns the allocation ledger entry for a vault, zero if
// unregistered.
func (aa *AmoAllocator) AllocationOf(name string) *big.Int {
	aa.mu.RLock()
	defer aa.mu.RUnlock()
	if entry, ok := aa.vaults[name]; ok {
		return new(big.Int).Set(entry.allocation)
	}
	return big.NewInt(0)
}

// VaultState returns the allocator-side state of a vault.
func (aa *AmoAllocator) VaultState(name string) AmoVaultState {
	aa.mu.RLock()
	defer aa.mu.RUnlock()
	if entry, ok := aa.vaults[name]; ok {
		return entry.state
	}
	return AmoVaultUnregistered
}

// EnableAmoVault registers a vault or reactivates a disabled one.
// Enabling an already active vault is a no-op. Restricted to the
// amo-manager capability.
func (aa *AmoAllocator) EnableAmoVault(caller string, vault AmoVault) error {
	if err := aa.roles.Require(RoleAmoManager, caller); err != nil {
		return err
	}

	aa.mu.Lock()
	defer aa.mu.Unlock()

	if entry, ok := aa.vaults[vault.Name()]; ok {
		entry.state = AmoVaultActive
		return nil
	}
	aa.vaults[vault.Name()] = &amoEntry{
		vault:      vault,
		state:      AmoVaultActive,
		allocation: big.NewInt(0),
	}
	return nil
}

// DisableAmoVault makes a vault ineligible for new allocations. Disabling
// an already inactive vault is a no-op. Restricted to the amo-manager
// capability.
func (aa *AmoAllocator) DisableAmoVault(caller, name string) error {
	if err := aa.roles.Require(RoleAmoManager, caller); err != nil {
		return err
	}

	aa.mu.Lock()
	defer aa.mu.Unlock()

	entry, ok := aa.vaults[name]
	if !ok {
		return &UnregisteredAmoVaultError{Vault: name}
	}
	entry.state = AmoVaultInactive
	return nil
}

// AllocateAmo hands amount of reserve supply to an active vault. Reserve
// supply is conserved across allocation: only custody moves, TotalAmoSupply
// is unchanged. Restricted to the amo-allocator capability.
func (aa *AmoAllocator) AllocateAmo(caller, name string, amount *big.Int) error {
	if err := aa.roles.Require(RoleAmoAllocator, caller); err != nil {
		return err
	}
	if isZeroOrNegative(amount) {
		return &ZeroAmountError{Op: "allocateAmo"}
	}

	aa.mu.Lock()
	defer aa.mu.Unlock()

	entry, ok := aa.vaults[name]
	if !ok || entry.state != AmoVaultActive {
		return &InactiveAmoVaultError{Vault: name}
	}
	if err := aa.token.Transfer(AllocatorAccount, entry.vault.Account(), amount); err != nil {
		return err
	}
	entry.allocation.Add(entry.allocation, amount)
	aa.totalAllocated.Add(aa.totalAllocated, amount)
	return nil
}

// DeallocateAmo pulls amount of reserve supply back from a vault,
// regardless of its active/inactive state. Restricted to the amo-allocator
// capability.
func (aa *AmoAllocator) DeallocateAmo(caller, name string, amount *big.Int) error {
	if err := aa.roles.Require(RoleAmoAllocator, caller); err != nil {
		return err
	}
	if isZeroOrNegative(amount) {
		return &ZeroAmountError{Op: "deallocateAmo"}
	}

	aa.mu.Lock()
	defer aa.mu.Unlock()

	entry, ok := aa.vaults[name]
	if !ok {
		return &UnregisteredAmoVaultError{Vault: name}
	}
	if amount.Cmp(entry.allocation) > 0 {
		return &AllocationExceededError{
			Vault:     name,
			Requested: new(big.Int).Set(amount),
			Allocated: new(big.Int).Set(entry.allocation),
		}
	}
	if err := aa.token.Transfer(entry.vault.Account(), AllocatorAccount, amount); err != nil {
		return err
	}
	entry.allocation.Sub(entry.allocation, amount)
	aa.totalAllocated.Sub(aa.totalAllocated, amount)
	return nil
}

// DecreaseAmoSupply burns idle reserve supply held directly by the
// allocator. Restricted to the amo-manager capability.
func (aa *AmoAllocator) DecreaseAmoSupply(caller string, amount *big.Int) error {
	if err := aa.roles.Require(RoleAmoManager, caller); err != nil {
		return err
	}
	return aa.token.Burn(AllocatorAccount, amount)
}

// TransferFromAmoVaultToHoldingVault moves collateral from a vault into
// the protocol's holding vault and decreases the vault's allocation by the
// receipt-token value of the transfer. Works in any registered state.
// Restricted to the amo-allocator capability.
func (aa *AmoAllocator) TransferFromAmoVaultToHoldingVault(caller, name string, amount *big.Int, symbol string) error {
	if err := aa.roles.Require(RoleAmoAllocator, caller); err != nil {
		return err
	}

	aa.mu.Lock()
	defer aa.mu.Unlock()

	entry, ok := aa.vaults[name]
	if !ok {
		return &UnregisteredAmoVaultError{Vault: name}
	}
	receiptEq, err := aa.receiptEquivalent(amount, symbol)
	if err != nil {
		return err
	}
	// A return worth more than the recorded allocation settles the
	// allocation in full; the surplus is profit and leaves the ledger at
	// zero rather than negative.
	if receiptEq.Cmp(entry.allocation) > 0 {
		receiptEq = new(big.Int).Set(entry.allocation)
	}
	if err := aa.collateral.Deposit(entry.vault.Account(), amount, symbol); err != nil {
		return err
	}
	entry.allocation.Sub(entry.allocation, receiptEq)
	aa.totalAllocated.Sub(aa.totalAllocated, receiptEq)
	return nil
}

// TransferFromHoldingVaultToAmoVault moves collateral from the holding
// vault to an active vault and increases the vault's allocation by the
// receipt-token value of the transfer. Restricted to the amo-allocator
// capability.
func (aa *AmoAllocator) TransferFromHoldingVaultToAmoVault(caller, name string, amount *big.Int, symbol string) error {
	if err := aa.roles.Require(RoleAmoAllocator, caller); err != nil {
		return err
	}

	aa.mu.Lock()
	defer aa.mu.Unlock()

	entry, ok := aa.vaults[name]
	if !ok || entry.state != AmoVaultActive {
		return &InactiveAmoVaultError{Vault: name}
	}
	receiptEq, err := aa.receiptEquivalent(amount, symbol)
	if err != nil {
		return err
	}
	if err := aa.collateral.WithdrawTo(AllocatorAccount, entry.vault.Account(), amount, symbol); err != nil {
		return err
	}
	entry.allocation.Add(entry.allocation, receiptEq)
	aa.totalAllocated.Add(aa.totalAllocated, receiptEq)
	return nil
}

// AvailableProfit is the vault's self-reported net value minus the value
// it still owes back. Negative when the venue is running at a loss.
func (aa *AmoAllocator) AvailableProfit(name string) (*big.Int, error) {
	aa.mu.RLock()
	entry, ok := aa.vaults[name]
	aa.mu.RUnlock()
	if !ok {
		return nil, &UnregisteredAmoVaultError{Vault: name}
	}

	netValue, err := entry.vault.TotalCollateralValue()
	if err != nil {
		return nil, err
	}
	receiptPrice, err := aa.oracle.GetAssetPrice(aa.token.Symbol)
	if err != nil {
		return nil, err
	}

	aa.mu.RLock()
	owed := assetValue(entry.allocation, receiptPrice, aa.token.Decimals)
	aa.mu.RUnlock()

	return new(big.Int).Sub(netValue, owed), nil
}

// WithdrawProfits withdraws amount of symbol from a vault to recipient,
// bounded by the vault's available profit. Profit is above and beyond
// allocated capital, so the allocation ledger is untouched. Restricted to
// the amo-manager capability.
func (aa *AmoAllocator) WithdrawProfits(caller, name, recipient string, amount *big.Int, symbol string) error {
	if err := aa.roles.Require(RoleAmoManager, caller); err != nil {
		return err
	}
	if isZeroOrNegative(amount) {
		return &ZeroAmountError{Op: "withdrawProfits"}
	}

	requestedValue, err := aa.collateral.ValueOf(amount, symbol)
	if err != nil {
		return err
	}
	available, err := aa.AvailableProfit(name)
	if err != nil {
		return err
	}
	if requestedValue.Cmp(available) > 0 {
		return &InsufficientProfitsError{Requested: requestedValue, Available: available}
	}

	token, err := aa.collateral.TokenFor(symbol)
	if err != nil {
		return err
	}

	aa.mu.RLock()
	entry := aa.vaults[name]
	aa.mu.RUnlock()

	return token.Transfer(entry.vault.Account(), recipient, amount)
}

// receiptEquivalent converts a collateral amount into receipt-token units
// at current oracle prices. Caller must hold the allocator lock; the
// conversion itself only reads external state.
func (aa *AmoAllocator) receiptEquivalent(amount *big.Int, symbol string) (*big.Int, error) {
	value, err := aa.collateral.ValueOf(amount, symbol)
	if err != nil {
		return nil, err
	}
	receiptPrice, err := aa.oracle.GetAssetPrice(aa.token.Symbol)
	if err != nil {
		return nil, err
	}
	return amountFromValue(value, receiptPrice, aa.token.Decimals), nil
}
