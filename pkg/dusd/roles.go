package dusd

import "sync"

// Role names a capability required by a privileged operation.
type Role string

const (
	RoleDefaultAdmin         Role = "default-admin"
	RoleCollateralWithdrawer Role = "collateral-withdrawer"
	RoleAmoAllocator         Role = "amo-allocator"
	RoleAmoManager           Role = "amo-manager"
	RolePauser               Role = "pauser"
	RoleOracleManager        Role = "oracle-manager"
	RoleFeeManager           Role = "fee-manager"
	RoleMinter               Role = "minter"
	RoleRedemptionManager    Role = "redemption-manager"
)

// AccessController is the capability table shared by every core component.
// It is passed into operations explicitly rather than living as ambient
// global state, so tests can construct arbitrary role configurations.
//
// Grant and Revoke are idempotent: granting a held role or revoking an
// absent one is a no-op, never an error.
type AccessController struct {
	grants map[Role]map[string]bool
	mu     sync.RWMutex
}

// NewAccessController creates a capability table with admin holding the
// default-admin role.
func NewAccessController(admin string) *AccessController {
	ac := &AccessController{grants: make(map[Role]map[string]bool)}
	ac.grant(RoleDefaultAdmin, admin)
	return ac
}

// Grant gives identity the role. Only default-admin may grant.
func (ac *AccessController) Grant(caller string, role Role, identity string) error {
	if err := ac.Require(RoleDefaultAdmin, caller); err != nil {
		return err
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.grant(role, identity)
	return nil
}

// Revoke removes the role from identity. Only default-admin may revoke.
func (ac *AccessController) Revoke(caller string, role Role, identity string) error {
	if err := ac.Require(RoleDefaultAdmin, caller); err != nil {
		return err
	}
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if holders, ok := ac.grants[role]; ok {
		delete(holders, identity)
	}
	return nil
}

// HasRole reports whether identity holds the role.
func (ac *AccessController) HasRole(role Role, identity string) bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.grants[role][identity]
}

// Require returns an UnauthorizedError unless caller holds the role.
// Default-admin does not imply other roles; each capability is explicit.
func (ac *AccessController) Require(role Role, caller string) error {
	if !ac.HasRole(role, caller) {
		return &UnauthorizedError{Role: role, Caller: caller}
	}
	return nil
}

func (ac *AccessController) grant(role Role, identity string) {
	if ac.grants[role] == nil {
		ac.grants[role] = make(map[string]bool)
	}
	ac.grants[role][identity] = true
}
