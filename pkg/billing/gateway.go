package billing

import (
	"context"
	"strings"
)

// Gateway statuses as reported by the payment provider. Anything outside
// this set is applied as a metadata-only update.
const (
	GatewayStatusApproved  = "approved"
	GatewayStatusRejected  = "rejected"
	GatewayStatusCancelled = "cancelled"
)

const merchantReferencePrefix = "INV-"

// BuildMerchantReference renders the external reference correlating a
// hosted checkout session back to a local invoice.
func BuildMerchantReference(invoiceID InvoiceID) string {
	return merchantReferencePrefix + invoiceID.String()
}

// ParseMerchantReference recovers the invoice id from an external
// reference. Any other format means "not ours" and reports false, never an
// error.
func ParseMerchantReference(raw string) (InvoiceID, bool) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, merchantReferencePrefix) {
		return InvoiceID{}, false
	}
	invoiceID, err := NewInvoiceID(strings.TrimPrefix(trimmed, merchantReferencePrefix))
	if err != nil {
		return InvoiceID{}, false
	}
	return invoiceID, true
}

// SessionRequest describes a hosted checkout session to create.
type SessionRequest struct {
	Title             string
	Amount            AmountCents
	MerchantReference string
	PayerEmail        string
	Metadata          MetadataJSON
}

// PaymentSession is a created hosted checkout session.
type PaymentSession struct {
	PreferenceID     string
	InitPoint        string
	SandboxInitPoint string
}

// GatewaySnapshot is the authoritative state of an external payment as
// reported by the provider.
type GatewaySnapshot struct {
	ExternalPaymentID string
	Status            string
	StatusDetail      string
	PaymentTypeID     string
	PaymentMethodID   string
	PayerEmail        string
	MerchantReference string
	Metadata          MetadataJSON
}

// Gateway is the payment-provider capability consumed by the service.
type Gateway interface {
	IsConfigured() bool
	CreatePaymentSession(ctx context.Context, request SessionRequest) (PaymentSession, error)
	FetchPayment(ctx context.Context, externalPaymentID string) (GatewaySnapshot, error)
}
