package service

import (
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

var (
	ErrPluginDisabled   = errors.New("context clearing is disabled")
	ErrPermissionDenied = errors.New("requester not in permission list")
	ErrMissingContext   = errors.New("conversation identity unavailable")
	ErrInvalidArgument  = errors.New("invalid numeric argument")
)

// PermissionGate decides who may run clear commands. The list can be swapped at
// runtime when the config file changes.
type PermissionGate struct {
	enabled atomic.Bool
	allowed atomic.Pointer[map[string]struct{}]
}

func NewPermissionGate(enabled bool, ids []string) *PermissionGate {
	g := &PermissionGate{}
	g.Update(enabled, ids)
	return g
}

// Update replaces the enable flag and the allow-list.
func (g *PermissionGate) Update(enabled bool, ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	g.allowed.Store(&set)
	g.enabled.Store(enabled)
}

func (g *PermissionGate) Enabled() bool {
	return g.enabled.Load()
}

func (g *PermissionGate) Allowed(requesterID string) bool {
	set := g.allowed.Load()
	if set == nil || requesterID == "" {
		return false
	}
	_, ok := (*set)[requesterID]
	return ok
}

// Check returns ErrPluginDisabled or ErrPermissionDenied, nil if the requester may proceed.
func (g *PermissionGate) Check(requesterID string) error {
	if !g.Enabled() {
		return ErrPluginDisabled
	}
	if !g.Allowed(requesterID) {
		return errors.Wrapf(ErrPermissionDenied, "requester %q", requesterID)
	}
	return nil
}

// Size is the number of allowed requesters.
func (g *PermissionGate) Size() int {
	set := g.allowed.Load()
	if set == nil {
		return 0
	}
	return len(*set)
}
