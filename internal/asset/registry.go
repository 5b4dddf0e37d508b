package asset

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrAlreadySupported is returned when registering a handle that already
	// has a registry record.
	ErrAlreadySupported = errors.New("asset already supported")

	// ErrUnsupportedAsset is returned for handles with no registry record, or
	// for deposit paths on deregistered assets.
	ErrUnsupportedAsset = errors.New("unsupported asset")

	// ErrInvalidConfiguration is returned for configuration-time rejections
	// such as a decimal precision above 18.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Registry is the exclusive owner of Asset records. Records are created by
// privileged registration and never deleted.
type Registry struct {
	mu     sync.RWMutex
	assets map[ID]*Asset
}

func NewRegistry() *Registry {
	return &Registry{assets: make(map[ID]*Asset)}
}

// Register creates a record for a new fungible asset.
func (r *Registry) Register(id ID, decimals uint8) (*Asset, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty asset handle", ErrInvalidConfiguration)
	}
	if id == NativeID {
		return nil, fmt.Errorf("%w: %q is reserved for the native coin", ErrInvalidConfiguration, NativeID)
	}
	if err := ValidateDecimals(decimals); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySupported, id)
	}

	a := &Asset{ID: id, Decimals: decimals, Supported: true}
	r.assets[id] = a
	out := *a
	return &out, nil
}

// Load replaces the registry contents with previously persisted records.
// Used once at startup, before the registry serves operations.
func (r *Registry) Load(assets []Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.assets = make(map[ID]*Asset, len(assets))
	for _, a := range assets {
		rec := a
		r.assets[a.ID] = &rec
	}
}

// Unregister marks an asset unsupported. It blocks new deposits only:
// standing balances stay withdrawable, so the record is kept.
func (r *Registry) Unregister(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedAsset, id)
	}
	a.Supported = false
	return nil
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id ID) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnsupportedAsset, id)
	}
	return *a, nil
}

// IsSupported reports whether id currently accepts deposits.
func (r *Registry) IsSupported(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	return ok && a.Supported
}

// RecordDeposit increments the lifetime deposit counter.
func (r *Registry) RecordDeposit(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.assets[id]; ok {
		a.Deposits++
	}
}

// RecordWithdrawal increments the lifetime withdrawal counter.
func (r *Registry) RecordWithdrawal(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.assets[id]; ok {
		a.Withdrawals++
	}
}

// List returns copies of all records ordered by handle.
func (r *Registry) List() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
