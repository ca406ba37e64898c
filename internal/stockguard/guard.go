// Package stockguard checks cart quantities against a cached stock snapshot.
//
// The snapshot is advisory: it is only as fresh as the last product fetch, and two terminals
// can both pass the check for the last unit. The authoritative check is Recheck against stock
// read just before settling.
package stockguard

import (
	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
)

// Snapshot maps a product reference to the quantity available when it was fetched.
type Snapshot map[string]int

func SnapshotFromProducts(products []domain.Product) Snapshot {
	snap := make(Snapshot, len(products))
	for _, p := range products {
		snap[p.ID] = p.Stock
	}
	return snap
}

func (s Snapshot) Available(productRef string) (int, bool) {
	qty, ok := s[productRef]
	return qty, ok
}

type Decision struct {
	Allowed        bool
	CappedQuantity *int
	Available      int
}

type Guard struct {
	snapshot Snapshot
}

func New(snapshot Snapshot) *Guard {
	if snapshot == nil {
		snapshot = Snapshot{}
	}
	return &Guard{snapshot: snapshot}
}

func (g *Guard) Snapshot() Snapshot {
	return g.snapshot
}

// CanAdd decides whether current+delta fits the snapshot. A rejected decision carries the
// largest quantity that would fit in CappedQuantity.
func (g *Guard) CanAdd(productRef string, current int, delta int) Decision {
	available := g.snapshot[productRef]
	requested := current + delta
	if requested <= available {
		return Decision{Allowed: true, Available: available}
	}
	capped := max(available, 0)
	return Decision{Allowed: false, CappedQuantity: &capped, Available: available}
}

// CheckIncrement is the add-to-cart path: the increment is rejected outright.
func (g *Guard) CheckIncrement(productRef string, name string, current int) error {
	decision := g.CanAdd(productRef, current, 1)
	if decision.Allowed {
		return nil
	}
	return domain.NewValidationError(domain.ErrInsufficientStock, "%s: only %d available", name, decision.Available)
}

// Adjustment is the outcome of a manual quantity edit.
type Adjustment struct {
	Quantity  int  `json:"quantity"`
	Capped    bool `json:"capped"`
	Available int  `json:"available"`
}

// ClampEdit is the manual edit path: quantities above the snapshot are capped, not rejected.
func (g *Guard) ClampEdit(productRef string, requested int) Adjustment {
	if requested < 0 {
		requested = 0
	}
	decision := g.CanAdd(productRef, 0, requested)
	if decision.Allowed {
		return Adjustment{Quantity: requested, Available: decision.Available}
	}
	return Adjustment{Quantity: *decision.CappedQuantity, Capped: true, Available: decision.Available}
}

// Recheck validates every settleable line against stock. The first violation is returned.
func Recheck(lines []domain.CartLine, stock Snapshot) error {
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		available, ok := stock[line.ProductRef]
		if !ok {
			return domain.NewValidationError(domain.ErrUnknownProduct, "%s (%s)", line.Name, line.ProductRef)
		}
		if line.Quantity > available {
			return domain.NewValidationError(domain.ErrInsufficientStock, "%s: requested %d, only %d available", line.Name, line.Quantity, available)
		}
	}
	return nil
}
