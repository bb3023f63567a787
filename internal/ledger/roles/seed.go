package roles

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type seedAccount struct {
	role     Role
	code     string
	name     string
	category string
	system   bool
}

// Bootstrap accounts, keyed by fixed codes. This is the only place the
// system knows concrete account codes; everything else goes through roles.
var seedAccounts = []seedAccount{
	{RoleCash, "1000", "Cash on Hand", "ASSET", true},
	{RoleBank, "1010", "Bank Account", "ASSET", true},
	{RoleChequesReceived, "1020", "Cheques Received (Uncleared)", "ASSET", true},
	{RoleAR, "1100", "Accounts Receivable", "ASSET", true},
	{RoleAP, "2000", "Accounts Payable", "LIABILITY", true},
	{RoleChequesPending, "2010", "Cheques Pending (Issued)", "LIABILITY", true},
	{RoleVATPayable, "2100", "VAT Payable", "LIABILITY", true},
	{RoleCustomerAdvances, "2200", "Customer Advances", "LIABILITY", true},
	{RoleOwnerCapital, "3000", "Owner Capital", "EQUITY", true},
	{RoleSales, "4000", "Sales Revenue", "INCOME", true},
	{RoleExpense, "5000", "General Expenses", "EXPENSE", true},
}

// Seed inserts the bootstrap accounts and their role mappings once.
// Re-running is a no-op.
func Seed(ctx context.Context, db *pgxpool.Pool) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, acc := range seedAccounts {
		var accountID int64
		err := tx.QueryRow(ctx, `INSERT INTO accounts (code, name, category_id, current_balance, allow_transactions, is_active, is_system_account)
SELECT $1, $2, c.id, 0, TRUE, TRUE, $4 FROM account_categories c WHERE c.code = $3
ON CONFLICT (code) DO UPDATE SET name = accounts.name
RETURNING id`, acc.code, acc.name, acc.category, acc.system).Scan(&accountID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO account_role_mappings (role, account_id) VALUES ($1, $2)
ON CONFLICT (role) DO NOTHING`, acc.role, accountID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
