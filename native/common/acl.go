package common

import (
	"fmt"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
)

// Role names a privilege checked by configuration entry points.
type Role string

const (
	// RoleConfigurator may wire collaborators and register assets.
	RoleConfigurator Role = "configurator"
	// RoleController may tune limits, fees and rates.
	RoleController Role = "controller"
	RolePauser     Role = "pauser"
	RoleUnpauser   Role = "unpauser"
	// RoleCreditManager may move quotas on behalf of positions.
	RoleCreditManager Role = "credit_manager"
)

// Authorizer answers role membership questions.
type Authorizer interface {
	HasRole(caller ethcommon.Address, role Role) bool
}

// Authorize succeeds when caller holds any of the supplied roles. A nil
// authorizer denies everything.
func Authorize(acl Authorizer, caller ethcommon.Address, roles ...Role) error {
	if acl != nil {
		for _, role := range roles {
			if acl.HasRole(caller, role) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s lacks %v", coreerrors.ErrUnauthorized, caller.Hex(), roles)
}

// AuthorizeController accepts controllers and configurators alike.
func AuthorizeController(acl Authorizer, caller ethcommon.Address) error {
	return Authorize(acl, caller, RoleController, RoleConfigurator)
}

// StaticACL is an in-memory role table.
type StaticACL struct {
	mu     sync.RWMutex
	grants map[Role]map[ethcommon.Address]struct{}
}

// NewStaticACL builds a role table from the provided grants.
func NewStaticACL(grants map[Role][]ethcommon.Address) *StaticACL {
	acl := &StaticACL{grants: make(map[Role]map[ethcommon.Address]struct{})}
	for role, members := range grants {
		for _, member := range members {
			acl.Grant(role, member)
		}
	}
	return acl
}

// Grant adds member to role.
func (a *StaticACL) Grant(role Role, member ethcommon.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.grants[role]
	if !ok {
		set = make(map[ethcommon.Address]struct{})
		a.grants[role] = set
	}
	set[member] = struct{}{}
}

// Revoke removes member from role.
func (a *StaticACL) Revoke(role Role, member ethcommon.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.grants[role], member)
}

// HasRole implements Authorizer.
func (a *StaticACL) HasRole(caller ethcommon.Address, role Role) bool {
	if a == nil || caller == (ethcommon.Address{}) {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.grants[role][caller]
	return ok
}
