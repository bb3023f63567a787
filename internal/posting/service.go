package posting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/halftone-erp/halftone/internal/ledger"
	"github.com/halftone-erp/halftone/internal/ledger/roles"
)

// Event type tags. Together with source type and source id they form the
// idempotency key of each posting.
const (
	EventInvoiceIssued   = "invoice_issued"
	EventPaymentReceived = "payment_received"
	EventBillApproved    = "bill_approved"
	EventBillPaid        = "bill_paid"
	EventBankCharge      = "bank_charge"
	EventOpeningBalance  = "opening_balance"
)

// JournalPort is the slice of the engine the handlers need.
type JournalPort interface {
	CreateEntry(ctx context.Context, in ledger.EntryInput) (ledger.JournalEntry, error)
}

// RoleResolver maps semantic roles to concrete accounts.
type RoleResolver interface {
	Account(role roles.Role) (int64, error)
}

// Service computes balanced line sets per business event and posts them
// through the engine. Every handler is idempotent: re-running it for the
// same source row returns the already-posted entry.
type Service struct {
	journal  JournalPort
	resolver RoleResolver
	advances AdvanceStore
	logger   *slog.Logger
}

func NewService(journal JournalPort, resolver RoleResolver, advances AdvanceStore, logger *slog.Logger) *Service {
	return &Service{journal: journal, resolver: resolver, advances: advances, logger: logger}
}

// HandleInvoiceIssued posts a tax invoice, netting out revenue already
// recognized through prior advances. An AR line is emitted only for the
// part of the total not covered by advances; the VAT already recognized at
// advance time is not re-credited. An invoice fully covered by advances
// therefore posts just {debit customer_advances net; credit sales net}.
func (s *Service) HandleInvoiceIssued(ctx context.Context, evt InvoiceIssuedEvent) (ledger.JournalEntry, error) {
	advGross := decimal.Min(evt.AdvancesApplied, evt.Total)
	advNet, advVAT := SplitInclusive(advGross, evt.VATRate)
	arAmount := evt.Total.Sub(advGross)
	incrementalVAT := evt.VATAmount.Sub(advVAT)

	var lines []ledger.LineInput
	if arAmount.IsPositive() {
		lines = append(lines, s.debit(roles.RoleAR, arAmount))
	}
	if advNet.IsPositive() {
		lines = append(lines, s.debit(roles.RoleCustomerAdvances, advNet))
	}
	lines = append(lines, s.credit(roles.RoleSales, evt.Subtotal))
	if incrementalVAT.IsPositive() {
		lines = append(lines, s.credit(roles.RoleVATPayable, incrementalVAT))
	}
	if err := s.rolesOK(lines); err != nil {
		return ledger.JournalEntry{}, err
	}

	entry, err := s.journal.CreateEntry(ctx, ledger.EntryInput{
		EntryDate:   evt.IssuedAt,
		SourceType:  ledger.SourceSalesInvoice,
		SourceID:    &evt.InvoiceID,
		EventType:   EventInvoiceIssued,
		Description: fmt.Sprintf("Tax invoice #%d", evt.InvoiceID),
		Lines:       lines,
		CreatedBy:   evt.IssuedBy,
		AutoPost:    true,
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if advGross.IsPositive() && s.advances != nil {
		if err := s.advances.ApplyToInvoice(ctx, evt.CustomerID, evt.InvoiceID, advGross); err != nil {
			return ledger.JournalEntry{}, err
		}
	}
	return entry, nil
}

// HandlePaymentReceived posts a customer receipt. The payment method picks
// the debited asset account; cheques land in the uncleared holding account
// until a separate clearance event moves them to the bank.
//
// Invoice payments credit AR only up to the outstanding balance; any excess
// becomes a customer advance (three lines instead of two). Order payments
// are advances by definition and get the VAT-inclusive split.
func (s *Service) HandlePaymentReceived(ctx context.Context, evt PaymentReceivedEvent) (ledger.JournalEntry, error) {
	assetRole, err := incomingAssetRole(evt.Method)
	if err != nil {
		return ledger.JournalEntry{}, err
	}

	var (
		lines      []ledger.LineInput
		sourceType ledger.SourceType
		excess     decimal.Decimal
	)
	switch evt.Kind {
	case KindInvoicePayment:
		sourceType = ledger.SourceInvoicePayment
		arCredit := decimal.Min(evt.Amount, evt.Outstanding)
		excess = evt.Amount.Sub(arCredit)
		lines = append(lines, s.debit(assetRole, evt.Amount), s.credit(roles.RoleAR, arCredit))
		if excess.IsPositive() {
			lines = append(lines, s.credit(roles.RoleCustomerAdvances, excess))
		}
	case KindOrderPayment:
		sourceType = ledger.SourceOrderPayment
		net, vat := SplitInclusive(evt.Amount, evt.VATRate)
		lines = append(lines, s.debit(assetRole, evt.Amount), s.credit(roles.RoleCustomerAdvances, net))
		if vat.IsPositive() {
			lines = append(lines, s.credit(roles.RoleVATPayable, vat))
		}
	default:
		return ledger.JournalEntry{}, fmt.Errorf("posting: unknown payment kind %q", evt.Kind)
	}
	if err := s.rolesOK(lines); err != nil {
		return ledger.JournalEntry{}, err
	}

	entry, err := s.journal.CreateEntry(ctx, ledger.EntryInput{
		EntryDate:   evt.ReceivedAt,
		SourceType:  sourceType,
		SourceID:    &evt.PaymentID,
		EventType:   EventPaymentReceived,
		Description: paymentDescription(evt),
		Lines:       lines,
		CreatedBy:   evt.ReceivedBy,
		AutoPost:    true,
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}

	if s.advances != nil {
		switch {
		case evt.Kind == KindOrderPayment:
			err = s.advances.Create(ctx, CustomerAdvance{
				CustomerID:     evt.CustomerID,
				Amount:         evt.Amount,
				Balance:        evt.Amount,
				Status:         AdvanceAvailable,
				SourceType:     AdvanceFromPayment,
				PaymentID:      evt.PaymentID,
				JournalEntryID: entry.ID,
			})
		case excess.IsPositive():
			err = s.advances.Create(ctx, CustomerAdvance{
				CustomerID:     evt.CustomerID,
				Amount:         excess,
				Balance:        excess,
				Status:         AdvanceAvailable,
				SourceType:     AdvanceFromOverpayment,
				PaymentID:      evt.PaymentID,
				JournalEntryID: entry.ID,
			})
		}
		if err != nil {
			return ledger.JournalEntry{}, err
		}
	}
	return entry, nil
}

// HandleChequeCleared posts the settlement leg of a cheque: a second
// balanced, idempotent entry moving the amount from the holding account to
// the bank. Settlement lag is modeled as two postings, never by mutating
// the original.
func (s *Service) HandleChequeCleared(ctx context.Context, evt ChequeClearedEvent) (ledger.JournalEntry, error) {
	var lines []ledger.LineInput
	switch evt.Direction {
	case ChequeIncoming:
		lines = []ledger.LineInput{
			s.debit(roles.RoleBank, evt.Amount),
			s.credit(roles.RoleChequesReceived, evt.Amount),
		}
	case ChequeOutgoing:
		lines = []ledger.LineInput{
			s.debit(roles.RoleChequesPending, evt.Amount),
			s.credit(roles.RoleBank, evt.Amount),
		}
	default:
		return ledger.JournalEntry{}, fmt.Errorf("posting: unknown cheque direction %q", evt.Direction)
	}
	if err := s.rolesOK(lines); err != nil {
		return ledger.JournalEntry{}, err
	}

	sourceType := ledger.SourceInvoicePayment
	if evt.Kind == KindOrderPayment {
		sourceType = ledger.SourceOrderPayment
	}
	if evt.Direction == ChequeOutgoing {
		sourceType = ledger.SourceBillPayment
	}
	return s.journal.CreateEntry(ctx, ledger.EntryInput{
		EntryDate:   evt.ClearedAt,
		SourceType:  sourceType,
		SourceID:    &evt.PaymentID,
		EventType:   string(sourceType) + "_cheque_cleared",
		Description: fmt.Sprintf("Cheque cleared for payment #%d", evt.PaymentID),
		Lines:       lines,
		CreatedBy:   evt.ClearedBy,
		AutoPost:    true,
	})
}

// HandleSupplierBill posts an approved supplier bill: expense against AP.
func (s *Service) HandleSupplierBill(ctx context.Context, evt SupplierBillEvent) (ledger.JournalEntry, error) {
	lines := []ledger.LineInput{
		s.debit(roles.RoleExpense, evt.Total),
		s.credit(roles.RoleAP, evt.Total),
	}
	if err := s.rolesOK(lines); err != nil {
		return ledger.JournalEntry{}, err
	}
	return s.journal.CreateEntry(ctx, ledger.EntryInput{
		EntryDate:   evt.ApprovedAt,
		SourceType:  ledger.SourceSupplierBill,
		SourceID:    &evt.BillID,
		EventType:   EventBillApproved,
		Description: fmt.Sprintf("Supplier bill #%d", evt.BillID),
		Lines:       lines,
		CreatedBy:   evt.ApprovedBy,
		AutoPost:    true,
	})
}

// HandleBillPaid posts a disbursement against AP. Cheque payments credit
// the pending-cheques holding account instead of the bank.
func (s *Service) HandleBillPaid(ctx context.Context, evt BillPaidEvent) (ledger.JournalEntry, error) {
	creditRole, err := outgoingAssetRole(evt.Method)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	lines := []ledger.LineInput{
		s.debit(roles.RoleAP, evt.Amount),
		s.credit(creditRole, evt.Amount),
	}
	if err := s.rolesOK(lines); err != nil {
		return ledger.JournalEntry{}, err
	}
	return s.journal.CreateEntry(ctx, ledger.EntryInput{
		EntryDate:   evt.PaidAt,
		SourceType:  ledger.SourceBillPayment,
		SourceID:    &evt.PaymentID,
		EventType:   EventBillPaid,
		Description: fmt.Sprintf("Payment for bill #%d", evt.BillID),
		Lines:       lines,
		CreatedBy:   evt.PaidBy,
		AutoPost:    true,
	})
}

// HandleBankCharge posts a bank fee from the transaction feed.
func (s *Service) HandleBankCharge(ctx context.Context, evt BankChargeEvent) (ledger.JournalEntry, error) {
	lines := []ledger.LineInput{
		s.debit(roles.RoleExpense, evt.Amount),
		s.credit(roles.RoleBank, evt.Amount),
	}
	if err := s.rolesOK(lines); err != nil {
		return ledger.JournalEntry{}, err
	}
	description := evt.Memo
	if description == "" {
		description = fmt.Sprintf("Bank charge #%d", evt.TxnID)
	}
	return s.journal.CreateEntry(ctx, ledger.EntryInput{
		EntryDate:   evt.OccurredAt,
		SourceType:  ledger.SourceBankTransaction,
		SourceID:    &evt.TxnID,
		EventType:   EventBankCharge,
		Description: description,
		Lines:       lines,
		CreatedBy:   0,
		AutoPost:    true,
	})
}

// HandleOpeningBalance seeds migrated balances in one balanced entry, with
// owner capital absorbing the net.
func (s *Service) HandleOpeningBalance(ctx context.Context, evt OpeningBalanceEvent) (ledger.JournalEntry, error) {
	var lines []ledger.LineInput
	net := decimal.Zero
	for _, item := range evt.Items {
		lines = append(lines, ledger.LineInput{AccountID: item.AccountID, Debit: item.Debit, Credit: item.Credit})
		net = net.Add(item.Debit).Sub(item.Credit)
	}
	switch {
	case net.IsPositive():
		lines = append(lines, s.credit(roles.RoleOwnerCapital, net))
	case net.IsNegative():
		lines = append(lines, s.debit(roles.RoleOwnerCapital, net.Neg()))
	}
	if err := s.rolesOK(lines); err != nil {
		return ledger.JournalEntry{}, err
	}
	return s.journal.CreateEntry(ctx, ledger.EntryInput{
		EntryDate:   evt.AsOf,
		SourceType:  ledger.SourceOpeningBalance,
		SourceID:    &evt.BatchID,
		EventType:   EventOpeningBalance,
		Description: "Opening balances",
		Lines:       lines,
		CreatedBy:   evt.LoadedBy,
		AutoPost:    true,
	})
}

func incomingAssetRole(method PaymentMethod) (roles.Role, error) {
	switch method {
	case MethodCash:
		return roles.RoleCash, nil
	case MethodBank, MethodCard:
		return roles.RoleBank, nil
	case MethodCheque:
		return roles.RoleChequesReceived, nil
	}
	return "", fmt.Errorf("posting: unknown payment method %q", method)
}

func outgoingAssetRole(method PaymentMethod) (roles.Role, error) {
	switch method {
	case MethodCash:
		return roles.RoleCash, nil
	case MethodBank, MethodCard:
		return roles.RoleBank, nil
	case MethodCheque:
		return roles.RoleChequesPending, nil
	}
	return "", fmt.Errorf("posting: unknown payment method %q", method)
}

func paymentDescription(evt PaymentReceivedEvent) string {
	if evt.Kind == KindOrderPayment {
		return fmt.Sprintf("Advance payment #%d on order #%d", evt.PaymentID, evt.OrderID)
	}
	return fmt.Sprintf("Payment #%d on invoice #%d", evt.PaymentID, evt.InvoiceID)
}

// debit and credit build lines against role accounts. Resolution failures
// are deferred to rolesOK so handlers read linearly.
func (s *Service) debit(role roles.Role, amount decimal.Decimal) ledger.LineInput {
	id, _ := s.resolver.Account(role)
	return ledger.LineInput{AccountID: id, Debit: amount, Credit: decimal.Zero}
}

func (s *Service) credit(role roles.Role, amount decimal.Decimal) ledger.LineInput {
	id, _ := s.resolver.Account(role)
	return ledger.LineInput{AccountID: id, Credit: amount, Debit: decimal.Zero}
}

func (s *Service) rolesOK(lines []ledger.LineInput) error {
	for _, line := range lines {
		if line.AccountID == 0 {
			return ledger.ErrAccountNotConfigured
		}
	}
	return nil
}
