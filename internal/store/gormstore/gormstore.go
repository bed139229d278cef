package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/solhotel/billing/pkg/billing"
)

const (
	constraintInvoiceReservation = "uniq_invoices_reservation"
	defaultMetadataJSON          = "{}"
	invoiceDayFormat             = "20060102"
	pgUniqueViolationCode        = "23505"
	sqliteConstraintCode         = 19
	errorOperationStore          = "store"
	errorSubjectClient           = "client"
	errorSubjectInvoice          = "invoice"
	errorSubjectMovement         = "movement"
	errorSubjectPayment          = "payment"
	errorSubjectSequence         = "sequence"
	errorCodeAppend              = "append"
	errorCodeDuplicate           = "duplicate"
	errorCodeGet                 = "get"
	errorCodeInsert              = "insert"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeLookup              = "lookup"
	errorCodeNext                = "next"
	errorCodeUpdate              = "update"
)

// Store implements billing.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the billing tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Client{}, &Invoice{}, &Payment{}, &AccountMovement{}, &InvoiceSequence{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore billing.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// InsertInvoice persists a new invoice. The FAC number is drawn from the
// per-day sequence inside the same transaction, so it is assigned exactly
// once; a duplicate reservation maps to billing.ErrDuplicateInvoice.
func (store *Store) InsertInvoice(ctx context.Context, invoice billing.Invoice) (billing.Invoice, error) {
	issuedAt := time.Unix(invoice.IssuedAtUnixUTC, 0).UTC()
	sequence, err := store.nextInvoiceSequence(ctx, issuedAt)
	if err != nil {
		return billing.Invoice{}, err
	}
	if err := invoice.AssignNumber(billing.FormatInvoiceNumber(issuedAt, sequence)); err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	row := Invoice{
		ReservationID:   invoice.ReservationID.String(),
		ClientID:        invoice.ClientID.String(),
		Number:          invoice.Number,
		SubtotalCents:   invoice.Subtotal.Int64(),
		TaxRatePercent:  invoice.TaxRatePercent,
		TaxAmountCents:  invoice.TaxAmount.Int64(),
		TotalCents:      invoice.Total.Int64(),
		AmountPaidCents: invoice.AmountPaid.Int64(),
		Status:          invoice.Status.String(),
		IssuedAt:        issuedAt,
		DueAt:           time.Unix(invoice.DueAtUnixUTC, 0).UTC(),
		Notes:           invoice.Notes,
	}
	err = store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err, constraintInvoiceReservation) {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeDuplicate, billing.ErrDuplicateInvoice)
	}
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInsert, err)
	}
	return mapInvoice(row)
}

func (store *Store) nextInvoiceSequence(ctx context.Context, issuedAt time.Time) (int, error) {
	sequence := InvoiceSequence{Day: issuedAt.Format(invoiceDayFormat), NextNumber: 1}
	err := store.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "day"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"next_number": gorm.Expr("invoice_sequences.next_number + 1")}),
			},
			clause.Returning{},
		).
		Create(&sequence).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectSequence, errorCodeNext, err)
	}
	return sequence.NextNumber, nil
}

// GetInvoice loads an invoice, locking the row for the transaction.
func (store *Store) GetInvoice(ctx context.Context, invoiceID billing.InvoiceID) (billing.Invoice, error) {
	var row Invoice
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_id = ?", invoiceID.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeGet, billing.ErrInvoiceNotFound)
		}
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeGet, err)
	}
	return mapInvoice(row)
}

// GetInvoiceByReservation loads the invoice generated for a reservation.
func (store *Store) GetInvoiceByReservation(ctx context.Context, reservationID billing.ReservationID) (billing.Invoice, error) {
	var row Invoice
	err := store.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeLookup, billing.ErrInvoiceNotFound)
		}
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeLookup, err)
	}
	return mapInvoice(row)
}

// UpdateInvoice writes back invoice arithmetic and status.
func (store *Store) UpdateInvoice(ctx context.Context, invoice billing.Invoice) error {
	result := store.db.WithContext(ctx).
		Model(&Invoice{}).
		Where("invoice_id = ?", invoice.ID.String()).
		Updates(map[string]interface{}{
			"amount_paid_cents": invoice.AmountPaid.Int64(),
			"status":            invoice.Status.String(),
			"notes":             invoice.Notes,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectInvoice, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectInvoice, errorCodeUpdate, billing.ErrInvoiceNotFound)
	}
	return nil
}

// InsertPayment persists a new payment and returns it with its id.
func (store *Store) InsertPayment(ctx context.Context, payment billing.Payment) (billing.Payment, error) {
	row := paymentRow(payment)
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInsert, err)
	}
	return mapPayment(row)
}

// GetPayment loads a payment, locking the row for the transaction.
func (store *Store) GetPayment(ctx context.Context, paymentID billing.PaymentID) (billing.Payment, error) {
	var row Payment
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_id = ?", paymentID.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, billing.ErrPaymentNotFound)
		}
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	return mapPayment(row)
}

// FindPaymentByExternalID locates a payment by the gateway's payment id,
// locking the row so racing webhook deliveries serialize on it.
func (store *Store) FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (billing.Payment, error) {
	var row Payment
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway_payment_id = ?", externalPaymentID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeLookup, billing.ErrPaymentNotFound)
		}
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeLookup, err)
	}
	return mapPayment(row)
}

// FindPendingGatewayPayment returns the oldest pending payment on the
// invoice that carries a preference id, locked for the transaction.
func (store *Store) FindPendingGatewayPayment(ctx context.Context, invoiceID billing.InvoiceID) (billing.Payment, error) {
	var row Payment
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("invoice_id = ? AND status = ? AND gateway_preference_id IS NOT NULL", invoiceID.String(), billing.PaymentStatusPending.String()).
		Order("created_at ASC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeLookup, billing.ErrPaymentNotFound)
		}
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeLookup, err)
	}
	return mapPayment(row)
}

// UpdatePayment writes back payment status, reference, and gateway state.
func (store *Store) UpdatePayment(ctx context.Context, payment billing.Payment) error {
	row := paymentRow(payment)
	result := store.db.WithContext(ctx).
		Model(&Payment{}).
		Where("payment_id = ?", payment.ID.String()).
		Updates(map[string]interface{}{
			"status":                    row.Status,
			"reference":                 row.Reference,
			"notes":                     row.Notes,
			"applied":                   row.Applied,
			"gateway_preference_id":     row.GatewayPreferenceID,
			"gateway_payment_id":        row.GatewayPaymentID,
			"gateway_status":            row.GatewayStatus,
			"gateway_status_detail":     row.GatewayStatusDetail,
			"gateway_payment_type_id":   row.GatewayPaymentTypeID,
			"gateway_payment_method_id": row.GatewayPaymentMethodID,
			"gateway_payer_email":       row.GatewayPayerEmail,
			"gateway_metadata":          row.GatewayMetadata,
			"updated_at":                time.Unix(payment.UpdatedAtUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdate, billing.ErrPaymentNotFound)
	}
	return nil
}

// AppendMovement appends a ledger line. Movements are never updated in
// place except for status flips via UpdateMovement.
func (store *Store) AppendMovement(ctx context.Context, movement billing.AccountMovement) (billing.AccountMovement, error) {
	row := AccountMovement{
		ClientID:     movement.ClientID.String(),
		Type:         movement.Type.String(),
		AmountCents:  movement.Amount.Int64(),
		BalanceCents: movement.Balance.Int64(),
		Status:       movement.Status.String(),
		Applied:      movement.Applied,
		Reference:    movement.Reference,
		Description:  movement.Description,
		Metadata:     datatypesJSON(movement.Metadata.String()),
		CreatedAt:    time.Unix(movement.CreatedAtUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeAppend, err)
	}
	return mapMovement(row)
}

// GetMovement loads a movement, locking the row for the transaction.
func (store *Store) GetMovement(ctx context.Context, movementID billing.MovementID) (billing.AccountMovement, error) {
	var row AccountMovement
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("movement_id = ?", movementID.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeGet, billing.ErrMovementNotFound)
		}
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeGet, err)
	}
	return mapMovement(row)
}

// UpdateMovement writes back a movement status flip (confirm or reverse).
// Amount and balance stay as written.
func (store *Store) UpdateMovement(ctx context.Context, movement billing.AccountMovement) error {
	result := store.db.WithContext(ctx).
		Model(&AccountMovement{}).
		Where("movement_id = ?", movement.ID.String()).
		Update("status", movement.Status.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectMovement, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectMovement, errorCodeUpdate, billing.ErrMovementNotFound)
	}
	return nil
}

// LastBalance returns the balance snapshot of the latest applied movement
// for a client, or zero when nothing has been posted yet. Reversed rows
// stay in the chain; only never-posted pending rows are skipped.
func (store *Store) LastBalance(ctx context.Context, clientID billing.ClientID) (billing.AmountCents, error) {
	var row AccountMovement
	err := store.db.WithContext(ctx).
		Where("client_id = ? AND applied = ?", clientID.String(), true).
		Order("created_at DESC, seq DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectMovement, errorCodeLookup, err)
	}
	return billing.AmountCents(row.BalanceCents), nil
}

// ListMovements lists a client's ledger lines before a cutoff, newest first.
func (store *Store) ListMovements(ctx context.Context, clientID billing.ClientID, beforeUnixUTC int64, limit int) ([]billing.AccountMovement, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	var rows []AccountMovement
	err := store.db.WithContext(ctx).
		Where("client_id = ? AND created_at < ?", clientID.String(), before).
		Order("created_at DESC, seq DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectMovement, errorCodeList, err)
	}

	movements := make([]billing.AccountMovement, 0, len(rows))
	for _, row := range rows {
		movement, err := mapMovement(row)
		if err != nil {
			return nil, err
		}
		movements = append(movements, movement)
	}
	return movements, nil
}

// GetClient loads a client, locking the row for the transaction.
func (store *Store) GetClient(ctx context.Context, clientID billing.ClientID) (billing.Client, error) {
	var row Client
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("client_id = ?", clientID.String()).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.Client{}, wrapStoreError(errorSubjectClient, errorCodeGet, billing.ErrClientNotFound)
		}
		return billing.Client{}, wrapStoreError(errorSubjectClient, errorCodeGet, err)
	}
	return mapClient(row)
}

// UpdateClientBalance writes back the cached balance projection.
func (store *Store) UpdateClientBalance(ctx context.Context, client billing.Client) error {
	result := store.db.WithContext(ctx).
		Model(&Client{}).
		Where("client_id = ?", client.ID.String()).
		Update("outstanding_balance_cents", client.OutstandingBalance.Int64())
	if result.Error != nil {
		return wrapStoreError(errorSubjectClient, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectClient, errorCodeUpdate, billing.ErrClientNotFound)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return billing.WrapError(errorOperationStore, subject, code, err)
}

func mapInvoice(row Invoice) (billing.Invoice, error) {
	invoiceID, err := billing.NewInvoiceID(row.InvoiceID)
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	reservationID, err := billing.NewReservationID(row.ReservationID)
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	clientID, err := billing.NewClientID(row.ClientID)
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	status, err := billing.ParseInvoiceStatus(row.Status)
	if err != nil {
		return billing.Invoice{}, wrapStoreError(errorSubjectInvoice, errorCodeInvalid, err)
	}
	return billing.Invoice{
		ID:              invoiceID,
		ReservationID:   reservationID,
		ClientID:        clientID,
		Number:          row.Number,
		Subtotal:        billing.AmountCents(row.SubtotalCents),
		TaxRatePercent:  row.TaxRatePercent,
		TaxAmount:       billing.AmountCents(row.TaxAmountCents),
		Total:           billing.AmountCents(row.TotalCents),
		AmountPaid:      billing.AmountCents(row.AmountPaidCents),
		Status:          status,
		IssuedAtUnixUTC: row.IssuedAt.Unix(),
		DueAtUnixUTC:    row.DueAt.Unix(),
		Notes:           row.Notes,
	}, nil
}

func paymentRow(payment billing.Payment) Payment {
	return Payment{
		PaymentID:              payment.ID.String(),
		InvoiceID:              payment.InvoiceID.String(),
		ClientID:               payment.ClientID.String(),
		AmountCents:            payment.Amount.Int64(),
		Method:                 payment.Method.String(),
		Reference:              payment.Reference,
		Notes:                  payment.Notes,
		Status:                 payment.Status.String(),
		Applied:                payment.Applied,
		GatewayPreferenceID:    nullableString(payment.Gateway.PreferenceID),
		GatewayPaymentID:       nullableString(payment.Gateway.ExternalPaymentID),
		GatewayStatus:          payment.Gateway.Status,
		GatewayStatusDetail:    payment.Gateway.StatusDetail,
		GatewayPaymentTypeID:   payment.Gateway.PaymentTypeID,
		GatewayPaymentMethodID: payment.Gateway.PaymentMethodID,
		GatewayPayerEmail:      payment.Gateway.PayerEmail,
		GatewayMetadata:        datatypesJSON(payment.Gateway.Metadata.String()),
		CreatedAt:              time.Unix(payment.CreatedAtUnixUTC, 0).UTC(),
		UpdatedAt:              time.Unix(payment.UpdatedAtUnixUTC, 0).UTC(),
	}
}

func mapPayment(row Payment) (billing.Payment, error) {
	paymentID, err := billing.NewPaymentID(row.PaymentID)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	invoiceID, err := billing.NewInvoiceID(row.InvoiceID)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	clientID, err := billing.NewClientID(row.ClientID)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	status, err := billing.ParsePaymentStatus(row.Status)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	method, err := billing.ParsePaymentMethod(row.Method)
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	metadata, err := billing.NewMetadataJSON(string(row.GatewayMetadata))
	if err != nil {
		return billing.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return billing.Payment{
		ID:        paymentID,
		InvoiceID: invoiceID,
		ClientID:  clientID,
		Amount:    billing.AmountCents(row.AmountCents),
		Method:    method,
		Reference: row.Reference,
		Notes:     row.Notes,
		Status:    status,
		Applied:   row.Applied,
		Gateway: billing.GatewayInfo{
			PreferenceID:      stringOrEmpty(row.GatewayPreferenceID),
			ExternalPaymentID: stringOrEmpty(row.GatewayPaymentID),
			Status:            row.GatewayStatus,
			StatusDetail:      row.GatewayStatusDetail,
			PaymentTypeID:     row.GatewayPaymentTypeID,
			PaymentMethodID:   row.GatewayPaymentMethodID,
			PayerEmail:        row.GatewayPayerEmail,
			Metadata:          metadata,
		},
		CreatedAtUnixUTC: row.CreatedAt.Unix(),
		UpdatedAtUnixUTC: row.UpdatedAt.Unix(),
	}, nil
}

func mapMovement(row AccountMovement) (billing.AccountMovement, error) {
	movementID, err := billing.NewMovementID(row.MovementID)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	clientID, err := billing.NewClientID(row.ClientID)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	movementType, err := billing.ParseMovementType(row.Type)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	status, err := billing.ParseMovementStatus(row.Status)
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	metadata, err := billing.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return billing.AccountMovement{}, wrapStoreError(errorSubjectMovement, errorCodeInvalid, err)
	}
	return billing.AccountMovement{
		ID:               movementID,
		ClientID:         clientID,
		Type:             movementType,
		Amount:           billing.AmountCents(row.AmountCents),
		Balance:          billing.AmountCents(row.BalanceCents),
		Status:           status,
		Applied:          row.Applied,
		Reference:        row.Reference,
		Description:      row.Description,
		Metadata:         metadata,
		CreatedAtUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapClient(row Client) (billing.Client, error) {
	clientID, err := billing.NewClientID(row.ClientID)
	if err != nil {
		return billing.Client{}, wrapStoreError(errorSubjectClient, errorCodeInvalid, err)
	}
	return billing.Client{
		ID:                 clientID,
		Name:               row.Name,
		Email:              row.Email,
		OutstandingBalance: billing.AmountCents(row.OutstandingBalanceCents),
	}, nil
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

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
