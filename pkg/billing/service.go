package billing

import (
	"context"
	"errors"
	"fmt"
)

// Service contains the billing domain logic over a Store, with the front
// desk and the payment gateway as external collaborators.
type Service struct {
	store     Store
	frontDesk FrontDesk
	gateway   Gateway
	nowFn     func() int64
	logger    OperationLogger
}

// NewService wires a Service. The gateway may be nil; gateway-backed
// operations then fail with ErrGatewayUnconfigured.
func NewService(store Store, frontDesk FrontDesk, gateway Gateway, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if frontDesk == nil {
		return nil, fmt.Errorf("%w: front desk dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, frontDesk: frontDesk, gateway: gateway, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// GenerateInvoice creates the invoice for a completed stay. The operation is
// idempotent per reservation: a second request returns the existing invoice
// unchanged.
func (service *Service) GenerateInvoice(ctx context.Context, reservationID ReservationID) (Invoice, error) {
	reservation, err := service.frontDesk.FindReservation(ctx, reservationID)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationGenerateInvoice, ReservationID: reservationID, Error: err})
		return Invoice{}, err
	}

	var generated Invoice
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		existing, err := transactionStore.GetInvoiceByReservation(ctx, reservationID)
		if err == nil {
			generated = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		generated, err = service.createInvoice(ctx, transactionStore, reservation)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationGenerateInvoice,
		ReservationID: reservationID,
		InvoiceID:     generated.ID,
		ClientID:      reservation.ClientID,
		Amount:        generated.Total,
		Error:         operationError,
	})
	if operationError != nil {
		return Invoice{}, operationError
	}
	return generated, nil
}

// RegisterPaymentInput carries a manual (synchronous-settlement) payment.
type RegisterPaymentInput struct {
	InvoiceID InvoiceID
	ClientID  ClientID
	Amount    AmountCents
	Method    PaymentMethod
	Reference string
	Notes     string
}

// RegisterPayment settles money against an invoice in one transaction:
// payment row, invoice arithmetic, ledger movement, and the cached client
// balance commit together or not at all.
func (service *Service) RegisterPayment(ctx context.Context, input RegisterPaymentInput) (Payment, error) {
	var registered Payment
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		invoice, err := transactionStore.GetInvoice(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		client, err := transactionStore.GetClient(ctx, input.ClientID)
		if err != nil {
			return err
		}
		if !invoice.CanReceivePayment() {
			return fmt.Errorf("%w: invoice %s cannot receive payments", ErrInvalidState, invoice.Status)
		}
		if input.Amount > invoice.OutstandingBalance() {
			return fmt.Errorf("%w: payment exceeds outstanding balance", ErrInvalidArgument)
		}
		nowUnixUTC := service.nowFn()
		payment, err := NewPayment(input.InvoiceID, input.ClientID, input.Amount, input.Method, input.Reference, input.Notes, nowUnixUTC)
		if err != nil {
			return err
		}
		if err := payment.MarkCompleted(nowUnixUTC); err != nil {
			return err
		}
		payment, err = transactionStore.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		if err := invoice.RecordPayment(input.Amount); err != nil {
			return err
		}
		if err := service.postPaymentAccounting(ctx, transactionStore, &payment, &invoice, &client, nowUnixUTC); err != nil {
			return err
		}
		registered = payment
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRegisterPayment,
		InvoiceID: input.InvoiceID,
		PaymentID: registered.ID,
		ClientID:  input.ClientID,
		Amount:    input.Amount,
		Error:     operationError,
	})
	if operationError != nil {
		return Payment{}, operationError
	}
	return registered, nil
}

// CheckOut completes a stay at the front desk and posts the billing slice:
// when no invoice exists yet for the reservation, the invoice, its CHARGE
// movement, and the client debt are committed as one transaction.
func (service *Service) CheckOut(ctx context.Context, completion StayCompletion) (Invoice, error) {
	reservation, err := service.frontDesk.FindReservation(ctx, completion.ReservationID)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationCheckOut, ReservationID: completion.ReservationID, Error: err})
		return Invoice{}, err
	}
	if err := service.frontDesk.CompleteStay(ctx, completion); err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationCheckOut, ReservationID: completion.ReservationID, Error: err})
		return Invoice{}, err
	}

	var invoice Invoice
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		existing, err := transactionStore.GetInvoiceByReservation(ctx, completion.ReservationID)
		if err == nil {
			invoice = existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		invoice, err = service.createInvoice(ctx, transactionStore, reservation)
		if err != nil {
			return err
		}
		client, err := transactionStore.GetClient(ctx, reservation.ClientID)
		if err != nil {
			return err
		}
		currentBalance, err := transactionStore.LastBalance(ctx, reservation.ClientID)
		if err != nil {
			return err
		}
		charge, err := NewCharge(reservation.ClientID, invoice.Total, currentBalance+invoice.Total, invoice.ID.String(), descriptionStayCharge, service.nowFn())
		if err != nil {
			return err
		}
		if _, err := transactionStore.AppendMovement(ctx, charge); err != nil {
			return err
		}
		if err := client.AddDebt(invoice.Total); err != nil {
			return err
		}
		return transactionStore.UpdateClientBalance(ctx, client)
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationCheckOut,
		ReservationID: completion.ReservationID,
		InvoiceID:     invoice.ID,
		ClientID:      reservation.ClientID,
		Amount:        invoice.Total,
		Error:         operationError,
	})
	if operationError != nil {
		return Invoice{}, operationError
	}
	return invoice, nil
}

// createInvoice builds and persists the invoice for a reservation: subtotal
// is nights times the nightly rate, tax at the flat default rate. A losing
// racer on the reservation unique index reloads the winner's row.
func (service *Service) createInvoice(ctx context.Context, transactionStore Store, reservation Reservation) (Invoice, error) {
	subtotal := AmountCents(reservation.Nights()) * reservation.PricePerNightCents
	invoice, err := NewInvoice(reservation.ID, reservation.ClientID, subtotal, DefaultTaxRatePercent, "", service.nowFn())
	if err != nil {
		return Invoice{}, err
	}
	inserted, err := transactionStore.InsertInvoice(ctx, invoice)
	if errors.Is(err, ErrDuplicateInvoice) {
		return transactionStore.GetInvoiceByReservation(ctx, reservation.ID)
	}
	if err != nil {
		return Invoice{}, err
	}
	return inserted, nil
}

// postPaymentAccounting marks the completed payment applied and writes the
// ledger movement plus the cached balance in the caller's transaction. The
// Applied flip is the idempotency boundary: accounting posts exactly once
// per payment.
func (service *Service) postPaymentAccounting(ctx context.Context, transactionStore Store, payment *Payment, invoice *Invoice, client *Client, nowUnixUTC int64) error {
	if !payment.CanBeApplied() {
		return fmt.Errorf("%w: payment is not applicable to accounting", ErrInvalidState)
	}
	if err := payment.MarkApplied(nowUnixUTC); err != nil {
		return err
	}
	currentBalance, err := transactionStore.LastBalance(ctx, client.ID)
	if err != nil {
		return err
	}
	movement, err := NewPaymentMovement(client.ID, payment.Amount, currentBalance-payment.Amount, payment.ID.String(), descriptionPaymentLabel, nowUnixUTC)
	if err != nil {
		return err
	}
	if _, err := transactionStore.AppendMovement(ctx, movement); err != nil {
		return err
	}
	if err := client.ReduceDebt(payment.Amount); err != nil {
		return err
	}
	if err := transactionStore.UpdatePayment(ctx, *payment); err != nil {
		return err
	}
	if err := transactionStore.UpdateInvoice(ctx, *invoice); err != nil {
		return err
	}
	return transactionStore.UpdateClientBalance(ctx, *client)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
