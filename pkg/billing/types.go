package billing

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// AmountCents is an integer currency amount in cents. Ledger movement
// amounts are signed; invoice and payment amounts are strictly positive.
type AmountCents int64

// Int64 returns the raw cents value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Negated returns the additive inverse.
func (amount AmountCents) Negated() AmountCents {
	return -amount
}

// NewPositiveAmount validates an amount and ensures it is strictly positive.
func NewPositiveAmount(raw int64) (AmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidArgument)
	}
	return AmountCents(raw), nil
}

// TaxAmount derives the tax in cents from a subtotal and a flat percent
// rate, rounding half away from zero to the nearest cent.
func TaxAmount(subtotal AmountCents, ratePercent float64) AmountCents {
	return AmountCents(math.Round(float64(subtotal) * ratePercent / 100))
}

// InvoiceID identifies an invoice.
type InvoiceID struct {
	value string
}

// ClientID identifies a hotel client.
type ClientID struct {
	value string
}

// PaymentID identifies a payment attempt.
type PaymentID struct {
	value string
}

// ReservationID identifies a stay reservation.
type ReservationID struct {
	value string
}

// MovementID identifies a ledger movement.
type MovementID struct {
	value string
}

// NewInvoiceID validates and normalizes an invoice id.
func NewInvoiceID(raw string) (InvoiceID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return InvoiceID{}, fmt.Errorf("%w: empty invoice id", ErrInvalidArgument)
	}
	return InvoiceID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id InvoiceID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id InvoiceID) IsZero() bool {
	return id.value == ""
}

// NewClientID validates and normalizes a client id.
func NewClientID(raw string) (ClientID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ClientID{}, fmt.Errorf("%w: empty client id", ErrInvalidArgument)
	}
	return ClientID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ClientID) String() string {
	return id.value
}

// NewPaymentID validates and normalizes a payment id.
func NewPaymentID(raw string) (PaymentID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PaymentID{}, fmt.Errorf("%w: empty payment id", ErrInvalidArgument)
	}
	return PaymentID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id PaymentID) String() string {
	return id.value
}

// NewReservationID validates and normalizes a reservation id.
func NewReservationID(raw string) (ReservationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReservationID{}, fmt.Errorf("%w: empty reservation id", ErrInvalidArgument)
	}
	return ReservationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// NewMovementID validates and normalizes a movement id.
func NewMovementID(raw string) (MovementID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MovementID{}, fmt.Errorf("%w: empty movement id", ErrInvalidArgument)
	}
	return MovementID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id MovementID) String() string {
	return id.value
}

// MetadataJSON stores arbitrary metadata as a JSON object.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	var object map[string]any
	if err := json.Unmarshal([]byte(normalized), &object); err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: metadata must be a json object", ErrInvalidArgument)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// Merge overlays incoming keys onto the receiver (shallow merge: incoming
// keys win, absent keys survive) and returns the combined metadata.
func (metadata MetadataJSON) Merge(incoming MetadataJSON) (MetadataJSON, error) {
	base := map[string]any{}
	if err := json.Unmarshal([]byte(metadata.String()), &base); err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: metadata must be a json object", ErrInvalidArgument)
	}
	overlay := map[string]any{}
	if err := json.Unmarshal([]byte(incoming.String()), &overlay); err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: metadata must be a json object", ErrInvalidArgument)
	}
	for key, value := range overlay {
		base[key] = value
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: metadata must be a json object", ErrInvalidArgument)
	}
	return MetadataJSON{value: string(merged)}, nil
}
