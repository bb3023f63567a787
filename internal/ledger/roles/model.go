package roles

import "time"

// Role names a semantic account slot referenced by posting handlers.
// Handlers never hold account codes; they resolve a Role instead.
type Role string

const (
	RoleCash             Role = "cash"
	RoleBank             Role = "bank"
	RoleAR               Role = "ar"
	RoleAP               Role = "ap"
	RoleSales            Role = "sales"
	RoleExpense          Role = "expense"
	RoleCustomerAdvances Role = "customer_advances"
	RoleVATPayable       Role = "vat_payable"
	RoleChequesReceived  Role = "cheques_received"
	RoleChequesPending   Role = "cheques_pending"
	RoleOwnerCapital     Role = "owner_capital"
)

// Required lists every role a mapping table must cover before the engine
// may start.
var Required = []Role{
	RoleCash,
	RoleBank,
	RoleAR,
	RoleAP,
	RoleSales,
	RoleExpense,
	RoleCustomerAdvances,
	RoleVATPayable,
	RoleChequesReceived,
	RoleChequesPending,
	RoleOwnerCapital,
}

// Mapping links a role to a concrete ledger account.
type Mapping struct {
	Role              Role
	AccountID         int64
	AccountCode       string
	AllowTransactions bool
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
