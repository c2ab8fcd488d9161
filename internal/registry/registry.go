/*

This file contains the governance registry capability the engine is given on
construction. The engine only ever asks two narrow questions: is this vault
denylisted, and what is the default feed heartbeat for a pair.

*/

package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/defiedge/rangevault/internal/types"
)

var ErrUnknownPair = errors.New("no default heartbeat configured for pair")

// Registry is a read-only view of factory-level governance state.
type Registry interface {
	IsDenylisted(vaultID types.VaultID) bool
	DefaultHeartbeat(pairKey string) (time.Duration, error)
	ProtocolFeeRecipient() string
}

// StaticRegistry is a Registry backed by in-memory maps, populated from
// configuration at startup. Mutations exist for the daemon's admin surface
// and for tests.
type StaticRegistry struct {
	mu                sync.RWMutex
	denylist          map[types.VaultID]bool
	heartbeats        map[string]time.Duration
	fallbackHeartbeat time.Duration
	protocolRecipient string
}

// NewStaticRegistry creates a registry with the given fallback heartbeat for
// pairs without an explicit override.
func NewStaticRegistry(fallbackHeartbeat time.Duration, protocolRecipient string) (*StaticRegistry, error) {
	if fallbackHeartbeat <= 0 {
		return nil, errors.New("fallback heartbeat must be positive")
	}
	if protocolRecipient == "" {
		return nil, errors.New("protocol fee recipient cannot be empty")
	}
	return &StaticRegistry{
		denylist:          make(map[types.VaultID]bool),
		heartbeats:        make(map[string]time.Duration),
		fallbackHeartbeat: fallbackHeartbeat,
		protocolRecipient: protocolRecipient,
	}, nil
}

func (r *StaticRegistry) IsDenylisted(vaultID types.VaultID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.denylist[vaultID]
}

func (r *StaticRegistry) SetDenylisted(vaultID types.VaultID, denied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if denied {
		r.denylist[vaultID] = true
	} else {
		delete(r.denylist, vaultID)
	}
}

func (r *StaticRegistry) DefaultHeartbeat(pairKey string) (time.Duration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if hb, ok := r.heartbeats[pairKey]; ok {
		return hb, nil
	}
	return r.fallbackHeartbeat, nil
}

func (r *StaticRegistry) SetHeartbeat(pairKey string, hb time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats[pairKey] = hb
}

func (r *StaticRegistry) ProtocolFeeRecipient() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.protocolRecipient
}
