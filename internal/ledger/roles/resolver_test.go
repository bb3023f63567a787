package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftone-erp/halftone/internal/ledger"
)

// ===== MOCK REPOSITORY =====

type mockRepository struct {
	mappings []Mapping
	listErr  error
}

func (m *mockRepository) ListAll(ctx context.Context) ([]Mapping, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.mappings, nil
}

func fullMappings() []Mapping {
	out := make([]Mapping, 0, len(Required))
	for i, role := range Required {
		out = append(out, Mapping{
			Role:              role,
			AccountID:         int64(i + 1),
			AccountCode:       "10" + string(rune('0'+i)),
			AllowTransactions: true,
			IsActive:          true,
		})
	}
	return out
}

// ===== TESTS =====

func TestLoadResolvesEveryRequiredRole(t *testing.T) {
	resolver, err := Load(context.Background(), &mockRepository{mappings: fullMappings()})
	require.NoError(t, err)

	for i, role := range Required {
		id, err := resolver.Account(role)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}
}

func TestLoadFailsOnMissingRole(t *testing.T) {
	mappings := fullMappings()
	trimmed := make([]Mapping, 0, len(mappings)-1)
	for _, m := range mappings {
		if m.Role == RoleVATPayable {
			continue
		}
		trimmed = append(trimmed, m)
	}

	_, err := Load(context.Background(), &mockRepository{mappings: trimmed})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrAccountNotConfigured)
	assert.Contains(t, err.Error(), "vat_payable")
}

func TestLoadFailsOnInactiveAccount(t *testing.T) {
	mappings := fullMappings()
	mappings[0].IsActive = false

	_, err := Load(context.Background(), &mockRepository{mappings: mappings})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrAccountNotConfigured)
}

func TestLoadFailsOnNonTransactableAccount(t *testing.T) {
	mappings := fullMappings()
	mappings[2].AllowTransactions = false

	_, err := Load(context.Background(), &mockRepository{mappings: mappings})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrAccountNotConfigured)
}

func TestLoadPropagatesRepositoryError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := Load(context.Background(), &mockRepository{listErr: boom})
	assert.ErrorIs(t, err, boom)
}

func TestAccountRejectsUnknownRole(t *testing.T) {
	resolver, err := Load(context.Background(), &mockRepository{mappings: fullMappings()})
	require.NoError(t, err)

	_, err = resolver.Account(Role("petty_cash"))
	assert.ErrorIs(t, err, ledger.ErrAccountNotConfigured)
}
