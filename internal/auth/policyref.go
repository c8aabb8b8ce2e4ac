// Package auth - policyref.go holds the currently effective policy table.
package auth

import "sync/atomic"

// PolicyRef is a swappable reference to the effective policy table. Request
// handling reads through it; the config watcher stores a new table on reload.
// Tables themselves stay immutable, so readers never observe a half-updated
// policy.
type PolicyRef struct {
	table atomic.Pointer[PolicyTable]
}

// NewPolicyRef creates a ref pointing at the given table.
func NewPolicyRef(t *PolicyTable) *PolicyRef {
	r := &PolicyRef{}
	r.table.Store(t)
	return r
}

// Table returns the current policy table.
func (r *PolicyRef) Table() *PolicyTable {
	return r.table.Load()
}

// Swap replaces the current policy table.
func (r *PolicyRef) Swap(t *PolicyTable) {
	r.table.Store(t)
}
