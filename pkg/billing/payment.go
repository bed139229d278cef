package billing

import (
	"fmt"
	"strings"
)

// PaymentStatus defines the payment lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// String returns the stored representation.
func (status PaymentStatus) String() string {
	return string(status)
}

// ParsePaymentStatus validates a stored payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch PaymentStatus(raw) {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return PaymentStatus(raw), nil
	}
	return "", fmt.Errorf("%w: unknown payment status %q", ErrInvalidArgument, raw)
}

// PaymentMethod enumerates how a payment settles.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCreditCard   PaymentMethod = "credit_card"
	PaymentMethodDebitCard    PaymentMethod = "debit_card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodOther        PaymentMethod = "other"
)

// String returns the stored representation.
func (method PaymentMethod) String() string {
	return string(method)
}

// ParsePaymentMethod validates a stored payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(raw) {
	case PaymentMethodCash, PaymentMethodCreditCard, PaymentMethodDebitCard,
		PaymentMethodBankTransfer, PaymentMethodCheck, PaymentMethodOther:
		return PaymentMethod(raw), nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrInvalidArgument, raw)
}

// GatewayInfo carries the optional third-party reconciliation state embedded
// in a Payment. All fields are independent of the payment status machine.
type GatewayInfo struct {
	PreferenceID      string
	ExternalPaymentID string
	Status            string
	StatusDetail      string
	PaymentTypeID     string
	PaymentMethodID   string
	PayerEmail        string
	Metadata          MetadataJSON
}

// HasPreference reports whether a hosted checkout session was created.
func (info GatewayInfo) HasPreference() bool {
	return info.PreferenceID != ""
}

// Payment is one attempt to settle money against an invoice. Legal status
// transitions are pending->completed, pending->failed, completed->refunded;
// everything else is rejected. Applied flips once when the completed payment
// is posted to accounting and keeps the posting non-re-entrant.
type Payment struct {
	ID               PaymentID
	InvoiceID        InvoiceID
	ClientID         ClientID
	Amount           AmountCents
	Method           PaymentMethod
	Reference        string
	Notes            string
	Status           PaymentStatus
	Gateway          GatewayInfo
	Applied          bool
	CreatedAtUnixUTC int64
	UpdatedAtUnixUTC int64
}

// NewPayment builds a pending payment. Amount is fixed at creation.
func NewPayment(invoiceID InvoiceID, clientID ClientID, amount AmountCents, method PaymentMethod, reference string, notes string, createdAtUnixUTC int64) (Payment, error) {
	if amount <= 0 {
		return Payment{}, fmt.Errorf("%w: payment amount must be greater than zero", ErrInvalidArgument)
	}
	if _, err := ParsePaymentMethod(method.String()); err != nil {
		return Payment{}, err
	}
	return Payment{
		InvoiceID:        invoiceID,
		ClientID:         clientID,
		Amount:           amount,
		Method:           method,
		Reference:        strings.TrimSpace(reference),
		Notes:            notes,
		Status:           PaymentStatusPending,
		CreatedAtUnixUTC: createdAtUnixUTC,
		UpdatedAtUnixUTC: createdAtUnixUTC,
	}, nil
}

// MarkCompleted transitions pending->completed.
func (payment *Payment) MarkCompleted(nowUnixUTC int64) error {
	if payment.Status != PaymentStatusPending {
		return fmt.Errorf("%w: cannot complete a %s payment", ErrInvalidState, payment.Status)
	}
	payment.Status = PaymentStatusCompleted
	payment.UpdatedAtUnixUTC = nowUnixUTC
	return nil
}

// MarkFailed transitions pending->failed.
func (payment *Payment) MarkFailed(nowUnixUTC int64) error {
	if payment.Status != PaymentStatusPending {
		return fmt.Errorf("%w: cannot fail a %s payment", ErrInvalidState, payment.Status)
	}
	payment.Status = PaymentStatusFailed
	payment.UpdatedAtUnixUTC = nowUnixUTC
	return nil
}

// MarkRefunded transitions completed->refunded.
func (payment *Payment) MarkRefunded(nowUnixUTC int64) error {
	if payment.Status != PaymentStatusCompleted {
		return fmt.Errorf("%w: cannot refund a %s payment", ErrInvalidState, payment.Status)
	}
	payment.Status = PaymentStatusRefunded
	payment.UpdatedAtUnixUTC = nowUnixUTC
	return nil
}

// MergeGatewayInfo folds non-empty incoming fields into the reconciliation
// state and shallow-merges metadata. The payment status is never touched.
func (payment *Payment) MergeGatewayInfo(incoming GatewayInfo, nowUnixUTC int64) error {
	merged, err := payment.Gateway.Metadata.Merge(incoming.Metadata)
	if err != nil {
		return err
	}
	if incoming.PreferenceID != "" {
		payment.Gateway.PreferenceID = incoming.PreferenceID
	}
	if incoming.ExternalPaymentID != "" {
		payment.Gateway.ExternalPaymentID = incoming.ExternalPaymentID
	}
	if incoming.Status != "" {
		payment.Gateway.Status = incoming.Status
	}
	if incoming.StatusDetail != "" {
		payment.Gateway.StatusDetail = incoming.StatusDetail
	}
	if incoming.PaymentTypeID != "" {
		payment.Gateway.PaymentTypeID = incoming.PaymentTypeID
	}
	if incoming.PaymentMethodID != "" {
		payment.Gateway.PaymentMethodID = incoming.PaymentMethodID
	}
	if incoming.PayerEmail != "" {
		payment.Gateway.PayerEmail = incoming.PayerEmail
	}
	payment.Gateway.Metadata = merged
	payment.UpdatedAtUnixUTC = nowUnixUTC
	return nil
}

// CanBeApplied reports whether the payment may be posted to accounting.
func (payment *Payment) CanBeApplied() bool {
	return payment.Status == PaymentStatusCompleted && !payment.Applied
}

// MarkApplied records that accounting was posted for this payment.
func (payment *Payment) MarkApplied(nowUnixUTC int64) error {
	if payment.Status != PaymentStatusCompleted {
		return fmt.Errorf("%w: only completed payments post to accounting", ErrInvalidState)
	}
	if payment.Applied {
		return fmt.Errorf("%w: payment already applied", ErrInvalidState)
	}
	payment.Applied = true
	payment.UpdatedAtUnixUTC = nowUnixUTC
	return nil
}
