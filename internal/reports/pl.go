package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/halftone-erp/halftone/internal/ledger"
)

// ProfitAndLossAccount is one income or expense account's net movement.
type ProfitAndLossAccount struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// ProfitAndLossSection groups accounts by nature.
type ProfitAndLossSection struct {
	Label    string                 `json:"label"`
	Accounts []ProfitAndLossAccount `json:"accounts"`
	Total    decimal.Decimal        `json:"total"`
}

// ProfitAndLoss reports net movement over a date range.
type ProfitAndLoss struct {
	From      string               `json:"from"`
	To        string               `json:"to"`
	Income    ProfitAndLossSection `json:"income"`
	Expense   ProfitAndLossSection `json:"expense"`
	NetIncome decimal.Decimal      `json:"net_income"`
}

// BuildProfitAndLoss aggregates income and expense movement. Summaries must
// already be scoped to the reporting range.
func BuildProfitAndLoss(accounts []AccountSummary) ProfitAndLoss {
	income := ProfitAndLossSection{Label: "Income", Total: decimal.Zero}
	expense := ProfitAndLossSection{Label: "Expense", Total: decimal.Zero}

	for _, acc := range accounts {
		switch acc.Category {
		case ledger.CategoryIncome:
			amount := acc.Credit.Sub(acc.Debit)
			income.Accounts = append(income.Accounts, ProfitAndLossAccount{Code: acc.Code, Name: acc.Name, Amount: amount})
			income.Total = income.Total.Add(amount)
		case ledger.CategoryExpense:
			amount := acc.Debit.Sub(acc.Credit)
			expense.Accounts = append(expense.Accounts, ProfitAndLossAccount{Code: acc.Code, Name: acc.Name, Amount: amount})
			expense.Total = expense.Total.Add(amount)
		}
	}

	sort.Slice(income.Accounts, func(i, j int) bool { return income.Accounts[i].Code < income.Accounts[j].Code })
	sort.Slice(expense.Accounts, func(i, j int) bool { return expense.Accounts[i].Code < expense.Accounts[j].Code })

	return ProfitAndLoss{
		Income:    income,
		Expense:   expense,
		NetIncome: income.Total.Sub(expense.Total),
	}
}
