package dusd

import (
	"math/big"
	"sync"
)

// Token is a minimal fungible-token ledger used for every collateral asset
// and for the dUSD receipt token itself. Balances are keyed by account
// identity; all mutations are serialized under one mutex so a transfer is
// atomic with respect to every other token operation.
type Token struct {
	Symbol   string
	Decimals uint8

	balances    map[string]*big.Int
	allowances  map[string]map[string]*big.Int
	totalSupply *big.Int
	mu          sync.RWMutex
}

// NewToken creates an empty token ledger.
func NewToken(symbol string, decimals uint8) *Token {
	return &Token{
		Symbol:      symbol,
		Decimals:    decimals,
		balances:    make(map[string]*big.Int),
		allowances:  make(map[string]map[string]*big.Int),
		totalSupply: big.NewInt(0),
	}
}

// TotalSupply returns a copy of the current total supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.totalSupply)
}

// BalanceOf returns a copy of the account's balance.
func (t *Token) BalanceOf(account string) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

// Mint creates amount new units in to's balance.
func (t *Token) Mint(to string, amount *big.Int) error {
	if isZeroOrNegative(amount) {
		return &ZeroAmountError{Op: "mint " + t.Symbol}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.credit(to, amount)
	t.totalSupply.Add(t.totalSupply, amount)
	return nil
}

// Burn destroys amount units from from's balance.
func (t *Token) Burn(from string, amount *big.Int) error {
	if isZeroOrNegative(amount) {
		return &ZeroAmountError{Op: "burn " + t.Symbol}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.totalSupply.Sub(t.totalSupply, amount)
	return nil
}

// Transfer moves amount from one account to another.
func (t *Token) Transfer(from, to string, amount *big.Int) error {
	if isZeroOrNegative(amount) {
		return &ZeroAmountError{Op: "transfer " + t.Symbol}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(owner, spender string, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[string]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

// Allowance returns a copy of spender's remaining allowance from owner.
func (t *Token) Allowance(owner, spender string) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if a, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return big.NewInt(0)
}

// TransferFrom moves amount from owner to to, spending spender's allowance.
// The allowance check happens before any balance mutation, so a failed pull
// leaves both ledger and allowance untouched.
func (t *Token) TransferFrom(spender, owner, to string, amount *big.Int) error {
	if isZeroOrNegative(amount) {
		return &ZeroAmountError{Op: "transferFrom " + t.Symbol}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	allowance, ok := t.allowances[owner][spender]
	if !ok || allowance.Cmp(amount) < 0 {
		avail := big.NewInt(0)
		if ok {
			avail = new(big.Int).Set(allowance)
		}
		return &InsufficientAllowanceError{
			Symbol:    t.Symbol,
			Owner:     owner,
			Spender:   spender,
			Requested: new(big.Int).Set(amount),
			Allowance: avail,
		}
	}
	if err := t.debit(owner, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	t.credit(to, amount)
	return nil
}

// credit and debit assume the caller holds the write lock.

func (t *Token) credit(account string, amount *big.Int) {
	if b, ok := t.balances[account]; ok {
		b.Add(b, amount)
		return
	}
	t.balances[account] = new(big.Int).Set(amount)
}

func (t *Token) debit(account string, amount *big.Int) error {
	b, ok := t.balances[account]
	if !ok || b.Cmp(amount) < 0 {
		avail := big.NewInt(0)
		if ok {
			avail = new(big.Int).Set(b)
		}
		return &InsufficientBalanceError{
			Symbol:    t.Symbol,
			Account:   account,
			Requested: new(big.Int).Set(amount),
			Available: avail,
		}
	}
	b.Sub(b, amount)
	return nil
}
