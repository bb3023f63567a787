package posting

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod selects which asset account a receipt or disbursement
// touches. Cheques route through a holding account until cleared.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodBank   PaymentMethod = "bank"
	MethodCard   PaymentMethod = "card"
	MethodCheque PaymentMethod = "cheque"
)

// PaymentKind distinguishes a payment against an invoice from an advance
// taken on an order before invoicing.
type PaymentKind string

const (
	KindInvoicePayment PaymentKind = "invoice_payment"
	KindOrderPayment   PaymentKind = "order_payment"
)

// ChequeDirection tells clearance which holding account the funds sit in.
type ChequeDirection string

const (
	ChequeIncoming ChequeDirection = "incoming"
	ChequeOutgoing ChequeDirection = "outgoing"
)

// InvoiceIssuedEvent carries a tax invoice at issue time. AdvancesApplied
// is the gross (VAT-inclusive) advance amount consumed by this invoice.
type InvoiceIssuedEvent struct {
	InvoiceID       int64
	CustomerID      int64
	IssuedAt        time.Time
	Subtotal        decimal.Decimal
	VATAmount       decimal.Decimal
	Total           decimal.Decimal
	AdvancesApplied decimal.Decimal
	VATRate         decimal.Decimal
	IssuedBy        int64
}

// PaymentReceivedEvent covers both invoice payments and order advances.
// Outstanding is the invoice balance before this payment (invoice kind only).
type PaymentReceivedEvent struct {
	PaymentID   int64
	Kind        PaymentKind
	InvoiceID   int64
	OrderID     int64
	CustomerID  int64
	Amount      decimal.Decimal
	Outstanding decimal.Decimal
	Method      PaymentMethod
	VATRate     decimal.Decimal
	ReceivedAt  time.Time
	ReceivedBy  int64
}

// ChequeClearedEvent is the independent second phase of cheque settlement:
// funds move from the holding account to the real bank account.
type ChequeClearedEvent struct {
	PaymentID int64
	Kind      PaymentKind
	Direction ChequeDirection
	Amount    decimal.Decimal
	ClearedAt time.Time
	ClearedBy int64
}

// SupplierBillEvent records an approved supplier bill.
type SupplierBillEvent struct {
	BillID     int64
	SupplierID int64
	Total      decimal.Decimal
	ApprovedAt time.Time
	ApprovedBy int64
}

// BillPaidEvent records a disbursement against a supplier bill.
type BillPaidEvent struct {
	PaymentID int64
	BillID    int64
	Amount    decimal.Decimal
	Method    PaymentMethod
	PaidAt    time.Time
	PaidBy    int64
}

// BankChargeEvent records a bank fee pulled from a bank transaction feed.
type BankChargeEvent struct {
	TxnID      int64
	Amount     decimal.Decimal
	OccurredAt time.Time
	Memo       string
}

// OpeningBalanceItem seeds one account balance against owner capital.
type OpeningBalanceItem struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// OpeningBalanceEvent loads migrated balances in one balanced entry.
type OpeningBalanceEvent struct {
	BatchID  int64
	AsOf     time.Time
	Items    []OpeningBalanceItem
	LoadedBy int64
}
