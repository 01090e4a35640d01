// Package domain defines the core records of the stake pool metrics engine:
// lamport allocations, reward totals and per-epoch statistics. All monetary
// amounts are non-negative integers denominated in lamports.
package domain

// LamportsAllocation breaks a pool's controlled lamports down by lifecycle.
// The four components always sum to the total lamports under pool control.
type LamportsAllocation struct {
	Active       uint64 `json:"active"`
	Activating   uint64 `json:"activating"`
	Deactivating uint64 `json:"deactivating"`
	Undelegated  uint64 `json:"undelegated"`
}

// Total returns the sum of all four components.
func (a LamportsAllocation) Total() uint64 {
	return a.Active + a.Activating + a.Deactivating + a.Undelegated
}

// Delegated returns the stake assigned to validators, in any lifecycle stage.
func (a LamportsAllocation) Delegated() uint64 {
	return a.Active + a.Activating + a.Deactivating
}

// Yielding returns the portion earning rewards this epoch. Activating stake
// is excluded: it has not yet accrued a full epoch of rewards.
func (a LamportsAllocation) Yielding() uint64 {
	return a.Active + a.Deactivating
}

// Add returns the component-wise sum of two allocations.
func (a LamportsAllocation) Add(b LamportsAllocation) LamportsAllocation {
	return LamportsAllocation{
		Active:       a.Active + b.Active,
		Activating:   a.Activating + b.Activating,
		Deactivating: a.Deactivating + b.Deactivating,
		Undelegated:  a.Undelegated + b.Undelegated,
	}
}

// Rewards are the per-epoch reward totals attributed to a pool or validator.
type Rewards struct {
	Inflation uint64 `json:"inflation"`
	Jito      uint64 `json:"jito"`
}

// Total returns inflation plus jito rewards.
func (r Rewards) Total() uint64 {
	return r.Inflation + r.Jito
}

// Add returns the component-wise sum of two reward totals.
func (r Rewards) Add(o Rewards) Rewards {
	return Rewards{Inflation: r.Inflation + o.Inflation, Jito: r.Jito + o.Jito}
}
