package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Client mirrors the clients table. OutstandingBalanceCents is the cached
// ledger projection.
type Client struct {
	ClientID                string    `gorm:"type:uuid;primaryKey"`
	Name                    string    `gorm:"not null"`
	Email                   string    `gorm:""`
	OutstandingBalanceCents int64     `gorm:"not null;default:0"`
	CreatedAt               time.Time `gorm:"not null"`
	UpdatedAt               time.Time `gorm:"not null"`
}

func (Client) TableName() string { return "clients" }

func (client *Client) BeforeCreate(tx *gorm.DB) error {
	if client.ClientID == "" {
		client.ClientID = uuid.NewString()
	}
	return nil
}

// Invoice mirrors the invoices table. The reservation unique index is what
// makes invoice generation idempotent under races; the number unique index
// backs the once-only FAC numbering.
type Invoice struct {
	InvoiceID       string    `gorm:"type:uuid;primaryKey"`
	ReservationID   string    `gorm:"not null;index:uniq_invoices_reservation,unique"`
	ClientID        string    `gorm:"type:uuid;not null;index"`
	Number          string    `gorm:"not null;index:uniq_invoices_number,unique"`
	SubtotalCents   int64     `gorm:"not null"`
	TaxRatePercent  float64   `gorm:"not null"`
	TaxAmountCents  int64     `gorm:"not null"`
	TotalCents      int64     `gorm:"not null"`
	AmountPaidCents int64     `gorm:"not null;default:0"`
	Status          string    `gorm:"not null"`
	IssuedAt        time.Time `gorm:"not null"`
	DueAt           time.Time `gorm:"not null"`
	Notes           string    `gorm:""`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

func (invoice *Invoice) BeforeCreate(tx *gorm.DB) error {
	if invoice.InvoiceID == "" {
		invoice.InvoiceID = uuid.NewString()
	}
	return nil
}

// Payment mirrors the payments table. The gateway reconciliation columns
// are nullable and live on the same row so the completed-transition
// idempotency gate stays centered on one record.
type Payment struct {
	PaymentID              string         `gorm:"type:uuid;primaryKey"`
	InvoiceID              string         `gorm:"type:uuid;not null;index:idx_payments_invoice_status,priority:1"`
	ClientID               string         `gorm:"type:uuid;not null;index"`
	AmountCents            int64          `gorm:"not null"`
	Method                 string         `gorm:"not null"`
	Reference              string         `gorm:""`
	Notes                  string         `gorm:""`
	Status                 string         `gorm:"not null;index:idx_payments_invoice_status,priority:2"`
	Applied                bool           `gorm:"not null;default:false"`
	GatewayPreferenceID    *string        `gorm:"index"`
	GatewayPaymentID       *string        `gorm:"index:uniq_payments_gateway_payment,unique"`
	GatewayStatus          string         `gorm:""`
	GatewayStatusDetail    string         `gorm:""`
	GatewayPaymentTypeID   string         `gorm:""`
	GatewayPaymentMethodID string         `gorm:""`
	GatewayPayerEmail      string         `gorm:""`
	GatewayMetadata        datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt              time.Time      `gorm:"not null"`
	UpdatedAt              time.Time      `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (payment *Payment) BeforeCreate(tx *gorm.DB) error {
	if payment.PaymentID == "" {
		payment.PaymentID = uuid.NewString()
	}
	return nil
}

// AccountMovement mirrors the append-only account_movements table. Seq is
// the append order; CreatedAt has one-second granularity, so any ordering
// on it must tie-break on Seq or two movements landing within the same
// second would pick an arbitrary ledger tail.
type AccountMovement struct {
	Seq          int64          `gorm:"primaryKey;autoIncrement"`
	MovementID   string         `gorm:"type:uuid;not null;index:uniq_movements_movement,unique"`
	ClientID     string         `gorm:"type:uuid;not null;index:idx_movements_client_created,priority:1"`
	Type         string         `gorm:"not null"`
	AmountCents  int64          `gorm:"not null"`
	BalanceCents int64          `gorm:"not null"`
	Status       string         `gorm:"not null"`
	Applied      bool           `gorm:"not null;default:false"`
	Reference    string         `gorm:""`
	Description  string         `gorm:""`
	Metadata     datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt    time.Time      `gorm:"not null;index:idx_movements_client_created,priority:2"`
}

func (AccountMovement) TableName() string { return "account_movements" }

func (movement *AccountMovement) BeforeCreate(tx *gorm.DB) error {
	if movement.MovementID == "" {
		movement.MovementID = uuid.NewString()
	}
	return nil
}

// InvoiceSequence backs the per-day invoice numbering.
type InvoiceSequence struct {
	Day        string `gorm:"primaryKey;size:8"`
	NextNumber int    `gorm:"not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }
