package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halftone-erp/halftone/internal/ledger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func summaries() []AccountSummary {
	return []AccountSummary{
		{AccountID: 1, Code: "1010", Name: "Bank", Category: ledger.CategoryAsset, NormalSide: ledger.NormalSideDebit,
			Debit: dec("1000.00"), Credit: dec("200.00")},
		{AccountID: 2, Code: "1100", Name: "AR", Category: ledger.CategoryAsset, NormalSide: ledger.NormalSideDebit,
			Debit: dec("500.00"), Credit: dec("300.00")},
		{AccountID: 3, Code: "2100", Name: "VAT Payable", Category: ledger.CategoryLiability, NormalSide: ledger.NormalSideCredit,
			Debit: dec("0.00"), Credit: dec("180.00")},
		{AccountID: 4, Code: "3000", Name: "Owner Capital", Category: ledger.CategoryEquity, NormalSide: ledger.NormalSideCredit,
			Debit: dec("0.00"), Credit: dec("0.00")},
		{AccountID: 5, Code: "4000", Name: "Sales", Category: ledger.CategoryIncome, NormalSide: ledger.NormalSideCredit,
			Debit: dec("0.00"), Credit: dec("1000.00")},
		{AccountID: 6, Code: "5000", Name: "Expenses", Category: ledger.CategoryExpense, NormalSide: ledger.NormalSideDebit,
			Debit: dec("180.00"), Credit: dec("0.00")},
	}
}

func TestBuildTrialBalanceNetsAndBalances(t *testing.T) {
	tb := BuildTrialBalance(summaries())

	require.Len(t, tb.Rows, 6)
	// Rows sorted by code; each account netted to a single side.
	assert.Equal(t, "1010", tb.Rows[0].Code)
	assert.Equal(t, "800.00", tb.Rows[0].Debit.StringFixed(2))
	assert.Equal(t, "0.00", tb.Rows[0].Credit.StringFixed(2))

	assert.Equal(t, "1180.00", tb.TotalDebit.StringFixed(2))
	assert.Equal(t, "1180.00", tb.TotalCredit.StringFixed(2))
	assert.True(t, tb.Balanced)
}

func TestBuildTrialBalanceFlagsImbalance(t *testing.T) {
	rows := summaries()
	rows[0].Debit = rows[0].Debit.Add(dec("0.01"))

	tb := BuildTrialBalance(rows)
	assert.False(t, tb.Balanced)
}

func TestBuildBalanceSheetIdentity(t *testing.T) {
	bs := BuildBalanceSheet(summaries())

	assert.Equal(t, "1000.00", bs.Assets.Total.StringFixed(2))
	assert.Equal(t, "180.00", bs.Liabilities.Total.StringFixed(2))
	assert.Equal(t, "0.00", bs.Equity.Total.StringFixed(2))
	// Income 1000 minus expenses 180 closes the gap without a closing entry.
	assert.Equal(t, "820.00", bs.CurrentEarnings.StringFixed(2))
	assert.True(t, bs.IdentityHolds)
}

func TestBuildProfitAndLoss(t *testing.T) {
	pl := BuildProfitAndLoss(summaries())

	assert.Equal(t, "1000.00", pl.Income.Total.StringFixed(2))
	assert.Equal(t, "180.00", pl.Expense.Total.StringFixed(2))
	assert.Equal(t, "820.00", pl.NetIncome.StringFixed(2))
	require.Len(t, pl.Income.Accounts, 1)
	assert.Equal(t, "4000", pl.Income.Accounts[0].Code)
}

func TestBuildAgingBuckets(t *testing.T) {
	asOf := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	docs := []OutstandingDoc{
		{ID: 1, DueDate: asOf.AddDate(0, 0, 10), Balance: dec("100.00")},  // not yet due
		{ID: 2, DueDate: asOf.AddDate(0, 0, -15), Balance: dec("200.00")}, // current
		{ID: 3, DueDate: asOf.AddDate(0, 0, -45), Balance: dec("300.00")}, // 31-60
		{ID: 4, DueDate: asOf.AddDate(0, 0, -75), Balance: dec("400.00")}, // 61-90
		{ID: 5, DueDate: asOf.AddDate(0, 0, -120), Balance: dec("500.00")}, // 90+
	}

	report := BuildAging(docs, asOf)

	require.Len(t, report.Buckets, 4)
	assert.Equal(t, "300.00", report.Buckets[0].Amount.StringFixed(2))
	assert.Equal(t, 2, report.Buckets[0].Count)
	assert.Equal(t, "300.00", report.Buckets[1].Amount.StringFixed(2))
	assert.Equal(t, "400.00", report.Buckets[2].Amount.StringFixed(2))
	assert.Equal(t, "500.00", report.Buckets[3].Amount.StringFixed(2))
	assert.Equal(t, "1500.00", report.Total.StringFixed(2))
	assert.Equal(t, "2026-06-30", report.AsOf)
}

func TestBuildAgingBoundaryDays(t *testing.T) {
	asOf := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	docs := []OutstandingDoc{
		{ID: 1, DueDate: asOf.AddDate(0, 0, -30), Balance: dec("10.00")},
		{ID: 2, DueDate: asOf.AddDate(0, 0, -31), Balance: dec("20.00")},
		{ID: 3, DueDate: asOf.AddDate(0, 0, -90), Balance: dec("30.00")},
		{ID: 4, DueDate: asOf.AddDate(0, 0, -91), Balance: dec("40.00")},
	}

	report := BuildAging(docs, asOf)

	assert.Equal(t, "10.00", report.Buckets[0].Amount.StringFixed(2))
	assert.Equal(t, "20.00", report.Buckets[1].Amount.StringFixed(2))
	assert.Equal(t, "30.00", report.Buckets[2].Amount.StringFixed(2))
	assert.Equal(t, "40.00", report.Buckets[3].Amount.StringFixed(2))
}
