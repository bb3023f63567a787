package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NormalSide declares which side increases an account's balance.
type NormalSide string

const (
	NormalSideDebit  NormalSide = "DEBIT"
	NormalSideCredit NormalSide = "CREDIT"
)

// CategoryCode classifies accounts for reporting.
type CategoryCode string

const (
	CategoryAsset     CategoryCode = "ASSET"
	CategoryLiability CategoryCode = "LIABILITY"
	CategoryEquity    CategoryCode = "EQUITY"
	CategoryIncome    CategoryCode = "INCOME"
	CategoryExpense   CategoryCode = "EXPENSE"
)

// SourceType identifies the upstream record kind behind a journal entry.
type SourceType string

const (
	SourceSalesInvoice    SourceType = "sales_invoice"
	SourceInvoicePayment  SourceType = "invoice_payment"
	SourceOrderPayment    SourceType = "order_payment"
	SourceBillPayment     SourceType = "bill_payment"
	SourceSupplierBill    SourceType = "supplier_bill"
	SourceBankTransaction SourceType = "bank_transaction"
	SourceOpeningBalance  SourceType = "opening_balance"
	SourceManual          SourceType = "manual"
)

// AccountCategory defines the sign convention for a family of accounts.
type AccountCategory struct {
	ID         int64
	Code       CategoryCode
	Name       string
	NormalSide NormalSide
}

// Account is a chart of accounts node. CurrentBalance is a denormalized
// running total maintained only by the engine during posting and reversal.
type Account struct {
	ID                int64
	Code              string
	Name              string
	CategoryID        int64
	Category          CategoryCode
	NormalSide        NormalSide
	CurrentBalance    decimal.Decimal
	AllowTransactions bool
	IsActive          bool
	IsSystemAccount   bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// JournalEntry captures one balanced business event.
type JournalEntry struct {
	ID          int64
	Number      string
	EntryDate   time.Time
	SourceType  SourceType
	SourceID    *int64
	EventType   string
	Description string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	IsPosted    bool
	CreatedBy   int64
	ReversalOf  *int64
	CreatedAt   time.Time
	Lines       []JournalLine
}

// JournalLine stores a debit or credit amount against one account.
// Exactly one side is non-zero.
type JournalLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

var (
	// ErrUnbalancedEntry indicates debits != credits.
	ErrUnbalancedEntry = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates fewer than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrPeriodClosed indicates the entry date has no open fiscal period.
	ErrPeriodClosed = errors.New("ledger: no open period for entry date")
	// ErrNumberConflict indicates numbering retries were exhausted.
	ErrNumberConflict = errors.New("ledger: journal number conflict")
	// ErrAccountNotConfigured indicates a missing or inactive role mapping.
	ErrAccountNotConfigured = errors.New("ledger: account not configured for role")
	// ErrReversalState indicates reversing an unposted or already-reversed entry.
	ErrReversalState = errors.New("ledger: entry cannot be reversed")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrSourceConflict indicates the idempotency key already exists.
	ErrSourceConflict = errors.New("ledger: source event already posted")
)

// LineInput describes one line of a posting request.
type LineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// EntryInput groups the fields required to create a journal entry.
type EntryInput struct {
	EntryDate   time.Time
	SourceType  SourceType
	SourceID    *int64
	EventType   string
	Description string
	Lines       []LineInput
	CreatedBy   int64
	AutoPost    bool
}

// Validate checks structural invariants before anything touches storage.
func (in EntryInput) Validate() error {
	if in.SourceType == "" {
		return errors.New("ledger: source type required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			return fmt.Errorf("ledger: line %d must have exactly one side", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return ErrUnbalancedEntry
	}
	return nil
}

// BalanceDelta returns the signed change a line applies to an account with
// the given normal side.
func BalanceDelta(side NormalSide, debit, credit decimal.Decimal) decimal.Decimal {
	if side == NormalSideDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}
