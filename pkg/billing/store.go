package billing

import "context"

// Store is the persistence contract used by Service. Every multi-entity
// mutation runs inside WithTx; implementations must lock invoice, payment,
// and client rows for the duration of the transaction so concurrent
// check-outs, manual payments, and webhook replays serialize on the rows
// they touch.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	// InsertInvoice persists a new invoice, assigning its id and its
	// once-only daily-sequence invoice number.
	InsertInvoice(ctx context.Context, invoice Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, invoiceID InvoiceID) (Invoice, error)
	GetInvoiceByReservation(ctx context.Context, reservationID ReservationID) (Invoice, error)
	UpdateInvoice(ctx context.Context, invoice Invoice) error

	InsertPayment(ctx context.Context, payment Payment) (Payment, error)
	GetPayment(ctx context.Context, paymentID PaymentID) (Payment, error)
	FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (Payment, error)
	// FindPendingGatewayPayment returns the oldest pending payment on the
	// invoice that carries a gateway preference id.
	FindPendingGatewayPayment(ctx context.Context, invoiceID InvoiceID) (Payment, error)
	UpdatePayment(ctx context.Context, payment Payment) error

	AppendMovement(ctx context.Context, movement AccountMovement) (AccountMovement, error)
	GetMovement(ctx context.Context, movementID MovementID) (AccountMovement, error)
	UpdateMovement(ctx context.Context, movement AccountMovement) error
	// LastBalance returns the balance snapshot of the client's most recent
	// applied movement (reversed rows keep their place in the chain), or
	// zero when the ledger has no applied rows. Ties on the second-granular
	// creation time break on append order.
	LastBalance(ctx context.Context, clientID ClientID) (AmountCents, error)
	ListMovements(ctx context.Context, clientID ClientID, beforeUnixUTC int64, limit int) ([]AccountMovement, error)

	GetClient(ctx context.Context, clientID ClientID) (Client, error)
	UpdateClientBalance(ctx context.Context, client Client) error
}
