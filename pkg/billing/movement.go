package billing

import "fmt"

// MovementType enumerates ledger movement kinds.
type MovementType string

const (
	MovementCharge     MovementType = "charge"
	MovementPayment    MovementType = "payment"
	MovementAdjustment MovementType = "adjustment"
)

// String returns the stored representation.
func (movementType MovementType) String() string {
	return string(movementType)
}

// ParseMovementType validates a stored movement type.
func ParseMovementType(raw string) (MovementType, error) {
	switch MovementType(raw) {
	case MovementCharge, MovementPayment, MovementAdjustment:
		return MovementType(raw), nil
	}
	return "", fmt.Errorf("%w: unknown movement type %q", ErrInvalidArgument, raw)
}

// MovementStatus defines the movement lifecycle.
type MovementStatus string

const (
	MovementStatusPending   MovementStatus = "pending"
	MovementStatusCompleted MovementStatus = "completed"
	MovementStatusReversed  MovementStatus = "reversed"
)

// String returns the stored representation.
func (status MovementStatus) String() string {
	return string(status)
}

// ParseMovementStatus validates a stored movement status.
func ParseMovementStatus(raw string) (MovementStatus, error) {
	switch MovementStatus(raw) {
	case MovementStatusPending, MovementStatusCompleted, MovementStatusReversed:
		return MovementStatus(raw), nil
	}
	return "", fmt.Errorf("%w: unknown movement status %q", ErrInvalidArgument, raw)
}

// AccountMovement is a single immutable line in a client's ledger. Amount is
// signed (payments are stored negative); Balance is the running balance
// after this movement, snapshotted when the amount is posted and never
// recomputed. Applied marks rows whose amount has been posted to the cached
// client balance: charges and payments post at creation, adjustments post on
// confirmation, and a pending adjustment that is withdrawn or superseded
// never posts at all. Reverse only flips the status as an audit marker
// (Applied stays set), so a compensating correction must be issued as a new
// movement by the caller. Summing the signed amounts of the applied rows in
// append order reproduces the latest applied row's Balance.
type AccountMovement struct {
	ID               MovementID
	ClientID         ClientID
	Type             MovementType
	Amount           AmountCents
	Balance          AmountCents
	Status           MovementStatus
	Applied          bool
	Reference        string
	Description      string
	Metadata         MetadataJSON
	CreatedAtUnixUTC int64
}

// NewCharge records debt added to a client (completed immediately).
func NewCharge(clientID ClientID, amount AmountCents, balanceAfter AmountCents, reference string, description string, createdAtUnixUTC int64) (AccountMovement, error) {
	if amount <= 0 {
		return AccountMovement{}, fmt.Errorf("%w: charge amount must be greater than zero", ErrInvalidArgument)
	}
	return AccountMovement{
		ClientID:         clientID,
		Type:             MovementCharge,
		Amount:           amount,
		Balance:          balanceAfter,
		Status:           MovementStatusCompleted,
		Applied:          true,
		Reference:        reference,
		Description:      description,
		CreatedAtUnixUTC: createdAtUnixUTC,
	}, nil
}

// NewPaymentMovement records debt settled by a client; the signed amount is
// stored negative (completed immediately).
func NewPaymentMovement(clientID ClientID, amount AmountCents, balanceAfter AmountCents, reference string, description string, createdAtUnixUTC int64) (AccountMovement, error) {
	if amount <= 0 {
		return AccountMovement{}, fmt.Errorf("%w: payment amount must be greater than zero", ErrInvalidArgument)
	}
	return AccountMovement{
		ClientID:         clientID,
		Type:             MovementPayment,
		Amount:           amount.Negated(),
		Balance:          balanceAfter,
		Status:           MovementStatusCompleted,
		Applied:          true,
		Reference:        reference,
		Description:      description,
		CreatedAtUnixUTC: createdAtUnixUTC,
	}, nil
}

// NewAdjustment records a manual correction. Adjustments start pending with
// a provisional balance snapshot and take effect on the ledger and the
// cached client balance only once confirmed.
func NewAdjustment(clientID ClientID, amount AmountCents, balanceAfter AmountCents, reference string, description string, createdAtUnixUTC int64) (AccountMovement, error) {
	if amount == 0 {
		return AccountMovement{}, fmt.Errorf("%w: adjustment amount must not be zero", ErrInvalidArgument)
	}
	return AccountMovement{
		ClientID:         clientID,
		Type:             MovementAdjustment,
		Amount:           amount,
		Balance:          balanceAfter,
		Status:           MovementStatusPending,
		Reference:        reference,
		Description:      description,
		CreatedAtUnixUTC: createdAtUnixUTC,
	}, nil
}

// Confirm transitions a pending adjustment to completed and marks its
// amount as posted.
func (movement *AccountMovement) Confirm() error {
	if movement.Status != MovementStatusPending {
		return fmt.Errorf("%w: only pending movements can be confirmed", ErrInvalidState)
	}
	movement.Status = MovementStatusCompleted
	movement.Applied = true
	return nil
}

// Reverse flags the movement as reversed. The balance snapshot and the
// Applied flag stay as written; later movements are not rewritten.
func (movement *AccountMovement) Reverse() error {
	if movement.Status == MovementStatusReversed {
		return fmt.Errorf("%w: movement already reversed", ErrInvalidState)
	}
	movement.Status = MovementStatusReversed
	return nil
}
