// Package pgstore implements billing.Store directly on pgx for PostgreSQL
// deployments. The schema matches the tables gormstore migrates; it is
// managed outside the process.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solhotel/billing/pkg/billing"
)

const (
	constraintInvoiceReservation = "uniq_invoices_reservation"
	pgUniqueViolationCode        = "23505"
	invoiceDayFormat             = "20060102"
	errorOperationStore          = "store"
	errorSubjectClient           = "client"
	errorSubjectInvoice          = "invoice"
	errorSubjectMovement         = "movement"
	errorSubjectPayment          = "payment"
	errorSubjectSequence         = "sequence"
	errorSubjectTransaction      = "transaction"
	errorCodeAppend              = "append"
	errorCodeBegin               = "begin"
	errorCodeCommit              = "commit"
	errorCodeDuplicate           = "duplicate"
	errorCodeGet                 = "get"
	errorCodeInsert              = "insert"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeLookup              = "lookup"
	errorCodeNext                = "next"
	errorCodeUpdate              = "update"

	sqlNextInvoiceSequence = `
		insert into invoice_sequences(day, next_number) values($1, 1)
		on conflict (day) do update set next_number = invoice_sequences.next_number + 1
		returning next_number
	`

	sqlInsertInvoice = `
		insert into invoices(
			invoice_id, reservation_id, client_id, number,
			subtotal_cents, tax_rate_percent, tax_amount_cents, total_cents, amount_paid_cents,
			status, issued_at, due_at, notes, created_at, updated_at
		)
		values(
			gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9,
			to_timestamp($10), to_timestamp($11), $12, now(), now()
		)
		returning invoice_id
	`

	sqlSelectInvoice = `
		select invoice_id, reservation_id, client_id, number,
			subtotal_cents, tax_rate_percent, tax_amount_cents, total_cents, amount_paid_cents,
			status, extract(epoch from issued_at)::bigint, extract(epoch from due_at)::bigint, notes
		from invoices
	`

	sqlGetInvoice              = sqlSelectInvoice + ` where invoice_id = $1 for update`
	sqlGetInvoiceByReservation = sqlSelectInvoice + ` where reservation_id = $1`

	sqlUpdateInvoice = `
		update invoices
		set amount_paid_cents = $2, status = $3, notes = $4, updated_at = now()
		where invoice_id = $1
	`

	sqlInsertPayment = `
		insert into payments(
			payment_id, invoice_id, client_id, amount_cents, method, reference, notes,
			status, applied, gateway_preference_id, gateway_payment_id,
			gateway_status, gateway_status_detail, gateway_payment_type_id,
			gateway_payment_method_id, gateway_payer_email, gateway_metadata,
			created_at, updated_at
		)
		values(
			gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			coalesce(nullif($16,''),'{}')::jsonb,
			to_timestamp($17), to_timestamp($18)
		)
		returning payment_id
	`

	sqlSelectPayment = `
		select payment_id, invoice_id, client_id, amount_cents, method, reference, notes,
			status, applied, gateway_preference_id, gateway_payment_id,
			gateway_status, gateway_status_detail, gateway_payment_type_id,
			gateway_payment_method_id, gateway_payer_email, gateway_metadata::text,
			extract(epoch from created_at)::bigint, extract(epoch from updated_at)::bigint
		from payments
	`

	sqlGetPayment              = sqlSelectPayment + ` where payment_id = $1 for update`
	sqlFindPaymentByExternalID = sqlSelectPayment + ` where gateway_payment_id = $1 for update`

	sqlFindPendingGatewayPayment = sqlSelectPayment + `
		where invoice_id = $1 and status = $2 and gateway_preference_id is not null
		order by created_at asc
		limit 1
		for update
	`

	sqlUpdatePayment = `
		update payments
		set status = $2, reference = $3, notes = $4, applied = $5,
			gateway_preference_id = $6, gateway_payment_id = $7,
			gateway_status = $8, gateway_status_detail = $9,
			gateway_payment_type_id = $10, gateway_payment_method_id = $11,
			gateway_payer_email = $12,
			gateway_metadata = coalesce(nullif($13,''),'{}')::jsonb,
			updated_at = to_timestamp($14)
		where payment_id = $1
	`

	sqlAppendMovement = `
		insert into account_movements(
			movement_id, client_id, type, amount_cents, balance_cents,
			status, applied, reference, description, metadata, created_at
		)
		values(
			gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8,
			coalesce(nullif($9,''),'{}')::jsonb,
			to_timestamp($10)
		)
		returning movement_id
	`

	sqlSelectMovement = `
		select movement_id, client_id, type, amount_cents, balance_cents,
			status, applied, reference, description, metadata::text,
			extract(epoch from created_at)::bigint
		from account_movements
	`

	sqlGetMovement = sqlSelectMovement + ` where movement_id = $1 for update`

	sqlUpdateMovementStatus = `
		update account_movements set status = $2 where movement_id = $1
	`

	sqlLastBalance = `
		select balance_cents from account_movements
		where client_id = $1 and applied
		order by created_at desc, seq desc
		limit 1
	`

	sqlListMovementsBefore = sqlSelectMovement + `
		where client_id = $1 and created_at < to_timestamp($2)
		order by created_at desc, seq desc
		limit $3
	`

	sqlGetClient = `
		select client_id, name, email, outstanding_balance_cents
		from clients
		where client_id = $1
		for update
	`

	sqlUpdateClientBalance = `
		update clients
		set outstanding_balance_cents = $2, updated_at = now()
		where client_id = $1
	`
)

// querier is the subset of pgx shared by a pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements billing.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	session
}

// TxStore implements billing.Store for an active transaction.
type TxStore struct {
	session
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, session: session{q: pool}}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore billing.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{session: session{q: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// WithTx on an open transaction reuses it.
func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore billing.Store) error) error {
	return fn(ctx, store)
}

type session struct {
	q querier
}

// InsertInvoice persists a new invoice. The FAC number is drawn from the
// per-day sequence first, so it is assigned exactly once; a duplicate
// reservation maps to billing.ErrDuplicateInvoice.
func (store session) InsertInvoice(ctx context.Context, invoice billing.Invoice) (billing.Invoice, error) {
	issuedAt := time.Unix(invoice.IssuedAtUnixUTC, 0).UTC()
	var sequence int
	if err := store.q.QueryRow(ctx, sqlNextInvoiceSequence, issuedAt.Format(invoiceDayFormat)).Scan(&sequence); err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectSequence, errorCodeNext, err)
	}
	if err := invoice.AssignNumber(billing.FormatInvoiceNumber(issuedAt, sequence)); err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}

	var invoiceIDValue string
	err := store.q.QueryRow(ctx, sqlInsertInvoice,
		invoice.ReservationID.String(),
		invoice.ClientID.String(),
		invoice.Number,
		invoice.Subtotal.Int64(),
		invoice.TaxRatePercent,
		invoice.TaxAmount.Int64(),
		invoice.Total.Int64(),
		invoice.AmountPaid.Int64(),
		invoice.Status.String(),
		invoice.IssuedAtUnixUTC,
		invoice.DueAtUnixUTC,
		invoice.Notes,
	).Scan(&invoiceIDValue)
	if isUniqueViolation(err, constraintInvoiceReservation) {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeDuplicate, billing.ErrDuplicateInvoice)
	}
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInsert, err)
	}
	invoiceID, err := billing.NewInvoiceID(invoiceIDValue)
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	invoice.ID = invoiceID
	return invoice, nil
}

// GetInvoice loads an invoice, locking the row for the transaction.
func (store session) GetInvoice(ctx context.Context, invoiceID billing.InvoiceID) (billing.Invoice, error) {
	record, err := scanInvoice(store.q.QueryRow(ctx, sqlGetInvoice, invoiceID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeGet, billing.ErrInvoiceNotFound)
	}
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeGet, err)
	}
	return mapInvoice(record)
}

// GetInvoiceByReservation loads the invoice generated for a reservation.
func (store session) GetInvoiceByReservation(ctx context.Context, reservationID billing.ReservationID) (billing.Invoice, error) {
	record, err := scanInvoice(store.q.QueryRow(ctx, sqlGetInvoiceByReservation, reservationID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeLookup, billing.ErrInvoiceNotFound)
	}
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeLookup, err)
	}
	return mapInvoice(record)
}

func (store session) UpdateInvoice(ctx context.Context, invoice billing.Invoice) error {
	tag, err := store.q.Exec(ctx, sqlUpdateInvoice,
		invoice.ID.String(),
		invoice.AmountPaid.Int64(),
		invoice.Status.String(),
		invoice.Notes,
	)
	if err != nil {
		return wrapStoreError(errorSubjectInvoice, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectInvoice, errorCodeUpdate, billing.ErrInvoiceNotFound)
	}
	return nil
}

func (store session) InsertPayment(ctx context.Context, payment billing.Payment) (billing.Payment, error) {
	var paymentIDValue string
	err := store.q.QueryRow(ctx, sqlInsertPayment,
		payment.InvoiceID.String(),
		payment.ClientID.String(),
		payment.Amount.Int64(),
		payment.Method.String(),
		payment.Reference,
		payment.Notes,
		payment.Status.String(),
		payment.Applied,
		nullableString(payment.Gateway.PreferenceID),
		nullableString(payment.Gateway.ExternalPaymentID),
		payment.Gateway.Status,
		payment.Gateway.StatusDetail,
		payment.Gateway.PaymentTypeID,
		payment.Gateway.PaymentMethodID,
		payment.Gateway.PayerEmail,
		payment.Gateway.Metadata.String(),
		payment.CreatedAtUnixUTC,
		payment.UpdatedAtUnixUTC,
	).Scan(&paymentIDValue)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInsert, err)
	}
	paymentID, err := billing.NewPaymentID(paymentIDValue)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	payment.ID = paymentID
	return payment, nil
}

func (store session) GetPayment(ctx context.Context, paymentID billing.PaymentID) (billing.Payment, error) {
	record, err := scanPayment(store.q.QueryRow(ctx, sqlGetPayment, paymentID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, billing.ErrPaymentNotFound)
	}
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	return mapPayment(record)
}

// FindPaymentByExternalID locates a payment by the gateway's payment id,
// locking the row so racing webhook deliveries serialize on it.
func (store session) FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (billing.Payment, error) {
	record, err := scanPayment(store.q.QueryRow(ctx, sqlFindPaymentByExternalID, externalPaymentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeLookup, billing.ErrPaymentNotFound)
	}
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeLookup, err)
	}
	return mapPayment(record)
}

// FindPendingGatewayPayment returns the oldest pending payment on the
// invoice that carries a preference id, locked for the transaction.
func (store session) FindPendingGatewayPayment(ctx context.Context, invoiceID billing.InvoiceID) (billing.Payment, error) {
	record, err := scanPayment(store.q.QueryRow(ctx, sqlFindPendingGatewayPayment, invoiceID.String(), billing.PaymentStatusPending.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeLookup, billing.ErrPaymentNotFound)
	}
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeLookup, err)
	}
	return mapPayment(record)
}

func (store session) UpdatePayment(ctx context.Context, payment billing.Payment) error {
	tag, err := store.q.Exec(ctx, sqlUpdatePayment,
		payment.ID.String(),
		payment.Status.String(),
		payment.Reference,
		payment.Notes,
		payment.Applied,
		nullableString(payment.Gateway.PreferenceID),
		nullableString(payment.Gateway.ExternalPaymentID),
		payment.Gateway.Status,
		payment.Gateway.StatusDetail,
		payment.Gateway.PaymentTypeID,
		payment.Gateway.PaymentMethodID,
		payment.Gateway.PayerEmail,
		payment.Gateway.Metadata.String(),
		payment.UpdatedAtUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdate, billing.ErrPaymentNotFound)
	}
	return nil
}

func (store session) AppendMovement(ctx context.Context, movement billing.AccountMovement) (billing.AccountMovement, error) {
	var movementIDValue string
	err := store.q.QueryRow(ctx, sqlAppendMovement,
		movement.ClientID.String(),
		movement.Type.String(),
		movement.Amount.Int64(),
		movement.Balance.Int64(),
		movement.Status.String(),
		movement.Applied,
		movement.Reference,
		movement.Description,
		movement.Metadata.String(),
		movement.CreatedAtUnixUTC,
	).Scan(&movementIDValue)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeAppend, err)
	}
	movementID, err := billing.NewMovementID(movementIDValue)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	movement.ID = movementID
	return movement, nil
}

func (store session) GetMovement(ctx context.Context, movementID billing.MovementID) (billing.AccountMovement, error) {
	record, err := scanMovement(store.q.QueryRow(ctx, sqlGetMovement, movementID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeGet, billing.ErrMovementNotFound)
	}
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeGet, err)
	}
	return mapMovement(record)
}

// UpdateMovement writes back a movement status flip (confirm or reverse).
// Amount and balance stay as written.
func (store session) UpdateMovement(ctx context.Context, movement billing.AccountMovement) error {
	tag, err := store.q.Exec(ctx, sqlUpdateMovementStatus, movement.ID.String(), movement.Status.String())
	if err != nil {
		return wrapStoreError(errorSubjectMovement, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectMovement, errorCodeUpdate, billing.ErrMovementNotFound)
	}
	return nil
}

// LastBalance returns the balance snapshot of the latest applied movement
// for a client, or zero when nothing has been posted yet. Reversed rows
// stay in the chain; only never-posted pending rows are skipped.
func (store session) LastBalance(ctx context.Context, clientID billing.ClientID) (billing.AmountCents, error) {
	var balance int64
	err := store.q.QueryRow(ctx, sqlLastBalance, clientID.String()).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectMovement, errorCodeLookup, err)
	}
	return billing.AmountCents(balance), nil
}

// ListMovements lists a client's ledger lines before a cutoff, newest first.
func (store session) ListMovements(ctx context.Context, clientID billing.ClientID, beforeUnixUTC int64, limit int) ([]billing.AccountMovement, error) {
	before := beforeUnixUTC
	if before == 0 {
		before = time.Now().UTC().Add(time.Second).Unix()
	}
	rows, err := store.q.Query(ctx, sqlListMovementsBefore, clientID.String(), before, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectMovement, errorCodeList, err)
	}
	defer rows.Close()

	movements := make([]billing.AccountMovement, 0, limit)
	for rows.Next() {
		record, err := scanMovement(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectMovement, errorCodeList, err)
		}
		movement, err := mapMovement(record)
		if err != nil {
			return nil, err
		}
		movements = append(movements, movement)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectMovement, errorCodeList, err)
	}
	return movements, nil
}

// GetClient loads a client, locking the row for the transaction.
func (store session) GetClient(ctx context.Context, clientID billing.ClientID) (billing.Client, error) {
	var (
		clientIDValue string
		name          string
		email         string
		balance       int64
	)
	err := store.q.QueryRow(ctx, sqlGetClient, clientID.String()).Scan(&clientIDValue, &name, &email, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.Client{}, wrapStoreError(errorSubjectClient, errorCodeGet, billing.ErrClientNotFound)
	}
	if err != nil {
		return billing.Client{}, wrapStoreError(errorSubjectClient, errorCodeGet, err)
	}
	parsedClientID, err := billing.NewClientID(clientIDValue)
	if err != nil {
		return billing.Client{}, wrapStoreError(errorSubjectClient, errorCodeInvalid, err)
	}
	return billing.Client{
		ID:                 parsedClientID,
		Name:               name,
		Email:              email,
		OutstandingBalance: billing.AmountCents(balance),
	}, nil
}

func (store session) UpdateClientBalance(ctx context.Context, client billing.Client) error {
	tag, err := store.q.Exec(ctx, sqlUpdateClientBalance, client.ID.String(), client.OutstandingBalance.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectClient, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectClient, errorCodeUpdate, billing.ErrClientNotFound)
	}
	return nil
}

type invoiceRecord struct {
	invoiceID       string
	reservationID   string
	clientID        string
	number          string
	subtotalCents   int64
	taxRatePercent  float64
	taxAmountCents  int64
	totalCents      int64
	amountPaidCents int64
	status          string
	issuedAtUnixUTC int64
	dueAtUnixUTC    int64
	notes           string
}

func scanInvoice(row pgx.Row) (invoiceRecord, error) {
	var record invoiceRecord
	err := row.Scan(
		&record.invoiceID,
		&record.reservationID,
		&record.clientID,
		&record.number,
		&record.subtotalCents,
		&record.taxRatePercent,
		&record.taxAmountCents,
		&record.totalCents,
		&record.amountPaidCents,
		&record.status,
		&record.issuedAtUnixUTC,
		&record.dueAtUnixUTC,
		&record.notes,
	)
	return record, err
}

func mapInvoice(record invoiceRecord) (billing.Invoice, error) {
	invoiceID, err := billing.NewInvoiceID(record.invoiceID)
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	reservationID, err := billing.NewReservationID(record.reservationID)
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	clientID, err := billing.NewClientID(record.clientID)
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	status, err := billing.ParseInvoiceStatus(record.status)
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	return billing.Invoice{
		ID:              invoiceID,
		ReservationID:   reservationID,
		ClientID:        clientID,
		Number:          record.number,
		Subtotal:        billing.AmountCents(record.subtotalCents),
		TaxRatePercent:  record.taxRatePercent,
		TaxAmount:       billing.AmountCents(record.taxAmountCents),
		Total:           billing.AmountCents(record.totalCents),
		AmountPaid:      billing.AmountCents(record.amountPaidCents),
		Status:          status,
		IssuedAtUnixUTC: record.issuedAtUnixUTC,
		DueAtUnixUTC:    record.dueAtUnixUTC,
		Notes:           record.notes,
	}, nil
}

type paymentRecord struct {
	paymentID              string
	invoiceID              string
	clientID               string
	amountCents            int64
	method                 string
	reference              string
	notes                  string
	status                 string
	applied                bool
	gatewayPreferenceID    *string
	gatewayPaymentID       *string
	gatewayStatus          string
	gatewayStatusDetail    string
	gatewayPaymentTypeID   string
	gatewayPaymentMethodID string
	gatewayPayerEmail      string
	gatewayMetadata        string
	createdAtUnixUTC       int64
	updatedAtUnixUTC       int64
}

func scanPayment(row pgx.Row) (paymentRecord, error) {
	var record paymentRecord
	err := row.Scan(
		&record.paymentID,
		&record.invoiceID,
		&record.clientID,
		&record.amountCents,
		&record.method,
		&record.reference,
		&record.notes,
		&record.status,
		&record.applied,
		&record.gatewayPreferenceID,
		&record.gatewayPaymentID,
		&record.gatewayStatus,
		&record.gatewayStatusDetail,
		&record.gatewayPaymentTypeID,
		&record.gatewayPaymentMethodID,
		&record.gatewayPayerEmail,
		&record.gatewayMetadata,
		&record.createdAtUnixUTC,
		&record.updatedAtUnixUTC,
	)
	return record, err
}

func mapPayment(record paymentRecord) (billing.Payment, error) {
	paymentID, err := billing.NewPaymentID(record.paymentID)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	invoiceID, err := billing.NewInvoiceID(record.invoiceID)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	clientID, err := billing.NewClientID(record.clientID)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	status, err := billing.ParsePaymentStatus(record.status)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	method, err := billing.ParsePaymentMethod(record.method)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	metadata, err := billing.NewMetadataJSON(record.gatewayMetadata)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return billing.Payment{
		ID:        paymentID,
		InvoiceID: invoiceID,
		ClientID:  clientID,
		Amount:    billing.AmountCents(record.amountCents),
		Method:    method,
		Reference: record.reference,
		Notes:     record.notes,
		Status:    status,
		Applied:   record.applied,
		Gateway: billing.GatewayInfo{
			PreferenceID:      stringOrEmpty(record.gatewayPreferenceID),
			ExternalPaymentID: stringOrEmpty(record.gatewayPaymentID),
			Status:            record.gatewayStatus,
			StatusDetail:      record.gatewayStatusDetail,
			PaymentTypeID:     record.gatewayPaymentTypeID,
			PaymentMethodID:   record.gatewayPaymentMethodID,
			PayerEmail:        record.gatewayPayerEmail,
			Metadata:          metadata,
		},
		CreatedAtUnixUTC: record.createdAtUnixUTC,
		UpdatedAtUnixUTC: record.updatedAtUnixUTC,
	}, nil
}

type movementRecord struct {
	movementID       string
	clientID         string
	movementType     string
	amountCents      int64
	balanceCents     int64
	status           string
	applied          bool
	reference        string
	description      string
	metadata         string
	createdAtUnixUTC int64
}

func scanMovement(row pgx.Row) (movementRecord, error) {
	var record movementRecord
	err := row.Scan(
		&record.movementID,
		&record.clientID,
		&record.movementType,
		&record.amountCents,
		&record.balanceCents,
		&record.status,
		&record.applied,
		&record.reference,
		&record.description,
		&record.metadata,
		&record.createdAtUnixUTC,
	)
	return record, err
}

func mapMovement(record movementRecord) (billing.AccountMovement, error) {
	movementID, err := billing.NewMovementID(record.movementID)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	clientID, err := billing.NewClientID(record.clientID)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	movementType, err := billing.ParseMovementType(record.movementType)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	status, err := billing.ParseMovementStatus(record.status)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	metadata, err := billing.NewMetadataJSON(record.metadata)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	return billing.AccountMovement{
		ID:               movementID,
		ClientID:         clientID,
		Type:             movementType,
		Amount:           billing.AmountCents(record.amountCents),
		Balance:          billing.AmountCents(record.balanceCents),
		Status:           status,
		Applied:          record.applied,
		Reference:        record.reference,
		Description:      record.description,
		Metadata:         metadata,
		CreatedAtUnixUTC: record.createdAtUnixUTC,
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return billing.WrapError(errorOperationStore, subject, code, err)
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}
