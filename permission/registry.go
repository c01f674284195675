package permission

import (
	"errors"
	"sync"
)

const maskBits = 64

var (
	errRegistryFrozen    = errors.New("permission: registry frozen")
	errPermissionName    = errors.New("permission: invalid permission name")
	errPermissionExists  = errors.New("permission: already registered")
	errPermissionOverrun = errors.New("permission: no free bits")
)

// Mask64 holds one bit per registered permission. Bit 63 is the root bit
// when the registry reserves it.
type Mask64 uint64

// Has reports whether bit is set, or whether the root bit is set and root
// is honoured.
func (m Mask64) Has(bit int, root bool) bool {
	if bit < 0 || bit >= maskBits {
		return false
	}
	if root && m&(1<<(maskBits-1)) != 0 {
		return true
	}
	return m&(1<<bit) != 0
}

// Set adds bit to m. Out of range bits are ignored.
func (m *Mask64) Set(bit int) {
	if bit >= 0 && bit < maskBits {
		*m |= 1 << bit
	}
}

// Registry assigns bit positions to permission names in registration
// order. Build it at startup and Freeze it before use.
type Registry struct {
	rootReserved bool

	mu     sync.RWMutex
	bits   map[string]int
	frozen bool
}

// NewRegistry returns an empty Registry. With rootReserved, bit 63 stands
// for every permission and only 63 names fit.
func NewRegistry(rootReserved bool) *Registry {
	return &Registry{rootReserved: rootReserved, bits: make(map[string]int)}
}

// Register assigns the next free bit to name.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.frozen:
		return -1, errRegistryFrozen
	case name == "" || name == RootPermission:
		return -1, errPermissionName
	}
	if _, ok := r.bits[name]; ok {
		return -1, errPermissionExists
	}

	limit := maskBits
	if r.rootReserved {
		limit--
	}
	next := len(r.bits)
	if next >= limit {
		return -1, errPermissionOverrun
	}
	r.bits[name] = next
	return next, nil
}

// Bit returns the bit assigned to name.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.bits[name]
	return bit, ok
}

func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// RootReserved reports whether bit 63 is the root permission.
func (r *Registry) RootReserved() bool {
	return r.rootReserved
}

// RootBit returns the reserved root bit.
func (r *Registry) RootBit() (int, bool) {
	if !r.rootReserved {
		return -1, false
	}
	return maskBits - 1, true
}
