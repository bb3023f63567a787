package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/halftone-erp/halftone/internal/ledger"
)

// BalanceSheetAccount summarises one account inside a section.
type BalanceSheetAccount struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceSheetSection groups accounts under one classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

// BalanceSheet reports the accounting equation at a point in time.
// CurrentEarnings carries income minus expense to date, folded into the
// equity side so the identity can hold without a closing entry.
type BalanceSheet struct {
	AsOf            string              `json:"as_of"`
	Assets          BalanceSheetSection `json:"assets"`
	Liabilities     BalanceSheetSection `json:"liabilities"`
	Equity          BalanceSheetSection `json:"equity"`
	CurrentEarnings decimal.Decimal     `json:"current_earnings"`
	IdentityHolds   bool                `json:"identity_holds"`
}

// BuildBalanceSheet aggregates sign-adjusted balances into asset, liability,
// and equity sections and checks assets = liabilities + equity + earnings.
func BuildBalanceSheet(accounts []AccountSummary) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets", Total: decimal.Zero}
	liabilities := BalanceSheetSection{Label: "Liabilities", Total: decimal.Zero}
	equity := BalanceSheetSection{Label: "Equity", Total: decimal.Zero}
	earnings := decimal.Zero

	for _, acc := range accounts {
		balance := acc.Balance()
		row := BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: balance}
		switch acc.Category {
		case ledger.CategoryAsset:
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(balance)
		case ledger.CategoryLiability:
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(balance)
		case ledger.CategoryEquity:
			equity.Accounts = append(equity.Accounts, row)
			equity.Total = equity.Total.Add(balance)
		case ledger.CategoryIncome:
			earnings = earnings.Add(balance)
		case ledger.CategoryExpense:
			earnings = earnings.Sub(balance)
		}
	}

	for _, section := range []*BalanceSheetSection{&assets, &liabilities, &equity} {
		accs := section.Accounts
		sort.Slice(accs, func(i, j int) bool { return accs[i].Code < accs[j].Code })
	}

	return BalanceSheet{
		Assets:          assets,
		Liabilities:     liabilities,
		Equity:          equity,
		CurrentEarnings: earnings,
		IdentityHolds:   assets.Total.Equal(liabilities.Total.Add(equity.Total).Add(earnings)),
	}
}
