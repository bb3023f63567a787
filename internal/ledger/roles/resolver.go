package roles

import (
	"context"
	"fmt"

	"github.com/halftone-erp/halftone/internal/ledger"
)

// Resolver holds the role→account table in memory. It is loaded once at
// startup and validated eagerly so a missing mapping fails fast instead of
// at first posting.
type Resolver struct {
	byRole map[Role]Mapping
}

// Load reads all mappings and verifies every required role resolves to an
// active, transactable account.
func Load(ctx context.Context, repo Repository) (*Resolver, error) {
	mappings, err := repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	byRole := make(map[Role]Mapping, len(mappings))
	for _, m := range mappings {
		byRole[m.Role] = m
	}
	for _, role := range Required {
		m, ok := byRole[role]
		if !ok {
			return nil, fmt.Errorf("%w: %s not mapped", ledger.ErrAccountNotConfigured, role)
		}
		if !m.IsActive || !m.AllowTransactions {
			return nil, fmt.Errorf("%w: %s maps to unusable account %s", ledger.ErrAccountNotConfigured, role, m.AccountCode)
		}
	}
	return &Resolver{byRole: byRole}, nil
}

// Account returns the account id mapped to the role.
func (r *Resolver) Account(role Role) (int64, error) {
	m, ok := r.byRole[role]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ledger.ErrAccountNotConfigured, role)
	}
	return m.AccountID, nil
}
