package reports

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TrialBalanceRow is one active transactable account's net position.
type TrialBalanceRow struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// TrialBalance lists every account's net debit or credit with totals and a
// balanced flag.
type TrialBalance struct {
	AsOf        string            `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
	Balanced    bool              `json:"balanced"`
}

// BuildTrialBalance nets each account to one side. Accounts with no posted
// activity appear with zeros.
func BuildTrialBalance(accounts []AccountSummary) TrialBalance {
	tb := TrialBalance{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, acc := range accounts {
		net := acc.Debit.Sub(acc.Credit)
		row := TrialBalanceRow{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
		}
		if net.IsPositive() {
			row.Debit = net
		} else {
			row.Credit = net.Neg()
		}
		tb.Rows = append(tb.Rows, row)
		tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Code < tb.Rows[j].Code })
	tb.Balanced = tb.TotalDebit.Equal(tb.TotalCredit)
	return tb
}
