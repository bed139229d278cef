package billing

import (
	"fmt"
	"strings"
	"time"
)

// InvoiceStatus defines the invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// String returns the stored representation.
func (status InvoiceStatus) String() string {
	return string(status)
}

// ParseInvoiceStatus validates a stored invoice status.
func ParseInvoiceStatus(raw string) (InvoiceStatus, error) {
	switch InvoiceStatus(raw) {
	case InvoiceStatusPending, InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusCancelled:
		return InvoiceStatus(raw), nil
	}
	return "", fmt.Errorf("%w: unknown invoice status %q", ErrInvalidArgument, raw)
}

const (
	// DefaultTaxRatePercent is the flat tax applied when callers pass no rate.
	DefaultTaxRatePercent = 21.0

	invoiceDueDays      = 30
	invoiceNumberPrefix = "FAC"
)

// FormatInvoiceNumber renders the public invoice number for a day and its
// daily sequence, e.g. FAC-20260115-0007.
func FormatInvoiceNumber(issuedAt time.Time, sequence int) string {
	return fmt.Sprintf("%s-%s-%04d", invoiceNumberPrefix, issuedAt.UTC().Format("20060102"), sequence)
}

// Invoice is the billable record for a stay. AmountPaid and Status change
// only through RecordPayment and Cancel; Number is assigned exactly once at
// first persistence via AssignNumber.
type Invoice struct {
	ID              InvoiceID
	ReservationID   ReservationID
	ClientID        ClientID
	Number          string
	Subtotal        AmountCents
	TaxRatePercent  float64
	TaxAmount       AmountCents
	Total           AmountCents
	AmountPaid      AmountCents
	Status          InvoiceStatus
	IssuedAtUnixUTC int64
	DueAtUnixUTC    int64
	Notes           string
}

// NewInvoice builds a pending invoice for a reservation. Tax and total are
// derived here and never recomputed; a non-positive rate is rejected except
// for an explicit zero.
func NewInvoice(reservationID ReservationID, clientID ClientID, subtotal AmountCents, taxRatePercent float64, notes string, issuedAtUnixUTC int64) (Invoice, error) {
	if subtotal <= 0 {
		return Invoice{}, fmt.Errorf("%w: subtotal must be greater than zero", ErrInvalidArgument)
	}
	if taxRatePercent < 0 {
		return Invoice{}, fmt.Errorf("%w: tax rate must not be negative", ErrInvalidArgument)
	}
	taxAmount := TaxAmount(subtotal, taxRatePercent)
	issuedAt := time.Unix(issuedAtUnixUTC, 0).UTC()
	return Invoice{
		ReservationID:   reservationID,
		ClientID:        clientID,
		Subtotal:        subtotal,
		TaxRatePercent:  taxRatePercent,
		TaxAmount:       taxAmount,
		Total:           subtotal + taxAmount,
		AmountPaid:      0,
		Status:          InvoiceStatusPending,
		IssuedAtUnixUTC: issuedAtUnixUTC,
		DueAtUnixUTC:    issuedAt.AddDate(0, 0, invoiceDueDays).Unix(),
		Notes:           notes,
	}, nil
}

// OutstandingBalance returns what remains to be paid, never negative.
func (invoice *Invoice) OutstandingBalance() AmountCents {
	outstanding := invoice.Total - invoice.AmountPaid
	if outstanding < 0 {
		return 0
	}
	return outstanding
}

// CanReceivePayment reports whether a payment may still be applied.
func (invoice *Invoice) CanReceivePayment() bool {
	return invoice.Status != InvoiceStatusPaid && invoice.Status != InvoiceStatusCancelled
}

// RecordPayment is the only legal way to change AmountPaid. It rejects
// non-positive amounts, overpayment, and invoices past the payable states,
// then recomputes the derived status.
func (invoice *Invoice) RecordPayment(amount AmountCents) error {
	if !invoice.CanReceivePayment() {
		return fmt.Errorf("%w: invoice %s cannot receive payments", ErrInvalidState, invoice.Status)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: payment amount must be greater than zero", ErrInvalidArgument)
	}
	if amount > invoice.OutstandingBalance() {
		return fmt.Errorf("%w: payment exceeds outstanding balance", ErrInvalidArgument)
	}
	invoice.AmountPaid += amount
	invoice.recomputeStatus()
	return nil
}

// Cancel marks the invoice cancelled. Cancellation is terminal and is only
// legal while nothing has been paid.
func (invoice *Invoice) Cancel() error {
	if invoice.Status == InvoiceStatusCancelled {
		return fmt.Errorf("%w: invoice already cancelled", ErrInvalidState)
	}
	if invoice.AmountPaid > 0 {
		return fmt.Errorf("%w: invoice with payments cannot be cancelled", ErrInvalidState)
	}
	invoice.Status = InvoiceStatusCancelled
	return nil
}

// AssignNumber sets the public invoice number exactly once.
func (invoice *Invoice) AssignNumber(number string) error {
	if invoice.Number != "" {
		return fmt.Errorf("%w: invoice number already assigned", ErrInvalidState)
	}
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return fmt.Errorf("%w: empty invoice number", ErrInvalidArgument)
	}
	invoice.Number = trimmed
	return nil
}

// Overdue reports whether the invoice is unpaid past its due date.
func (invoice *Invoice) Overdue(nowUnixUTC int64) bool {
	if invoice.Status == InvoiceStatusPaid || invoice.Status == InvoiceStatusCancelled {
		return false
	}
	return nowUnixUTC > invoice.DueAtUnixUTC
}

func (invoice *Invoice) recomputeStatus() {
	switch {
	case invoice.AmountPaid >= invoice.Total:
		invoice.Status = InvoiceStatusPaid
	case invoice.AmountPaid > 0:
		invoice.Status = InvoiceStatusPartial
	default:
		invoice.Status = InvoiceStatusPending
	}
}
