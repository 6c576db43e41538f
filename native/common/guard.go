package common

import (
	"sort"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"

	coreerrors "creditpool/core/errors"
)

// ErrModulePaused is returned by Guard for modules switched off by a pauser.
var ErrModulePaused = coreerrors.ErrPaused

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a PauseView whose switches are flipped by holders of the pause
// roles.
type PauseSet struct {
	mu     sync.RWMutex
	acl    Authorizer
	paused map[string]bool
}

// NewPauseSet creates a pause registry with every module running.
func NewPauseSet(acl Authorizer) *PauseSet {
	return &PauseSet{acl: acl, paused: make(map[string]bool)}
}

// IsPaused implements PauseView.
func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

// Pause stops the named module. Requires RolePauser.
func (s *PauseSet) Pause(caller ethcommon.Address, module string) error {
	if err := Authorize(s.acl, caller, RolePauser); err != nil {
		return err
	}
	s.mu.Lock()
	s.paused[module] = true
	s.mu.Unlock()
	return nil
}

// Unpause resumes the named module. Requires RoleUnpauser.
func (s *PauseSet) Unpause(caller ethcommon.Address, module string) error {
	if err := Authorize(s.acl, caller, RoleUnpauser); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.paused, module)
	s.mu.Unlock()
	return nil
}

// Paused lists the modules currently switched off.
func (s *PauseSet) Paused() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.paused))
	for module := range s.paused {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}

// Restore replaces every switch with modules. It bypasses the pause roles and
// is meant for reloading persisted state.
func (s *PauseSet) Restore(modules []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = make(map[string]bool, len(modules))
	for _, module := range modules {
		if module != "" {
			s.paused[module] = true
		}
	}
}
