package billing

import (
	"context"
	"fmt"
)

// RegisterAdjustment appends a pending manual correction to the client's
// ledger. The signed amount may be positive (more debt) or negative; the
// cached balance is untouched until the adjustment is confirmed.
func (service *Service) RegisterAdjustment(ctx context.Context, clientID ClientID, amount AmountCents, reference string, description string) (AccountMovement, error) {
	var registered AccountMovement
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetClient(ctx, clientID); err != nil {
			return err
		}
		currentBalance, err := transactionStore.LastBalance(ctx, clientID)
		if err != nil {
			return err
		}
		adjustment, err := NewAdjustment(clientID, amount, currentBalance+amount, reference, description, service.nowFn())
		if err != nil {
			return err
		}
		registered, err = transactionStore.AppendMovement(ctx, adjustment)
		return err
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRegisterAdjust,
		ClientID:  clientID,
		Amount:    amount,
		Error:     operationError,
	})
	if operationError != nil {
		return AccountMovement{}, operationError
	}
	return registered, nil
}

// ConfirmAdjustment applies a pending adjustment. The registration-time
// snapshot may be stale by now, so the pending row is superseded (reversed,
// never posted) and a fresh completed row is appended at the ledger tail
// with a snapshot rebased on the current running balance; the cached client
// balance moves in the same transaction.
func (service *Service) ConfirmAdjustment(ctx context.Context, movementID MovementID) (AccountMovement, error) {
	var confirmed AccountMovement
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		movement, err := transactionStore.GetMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if movement.Type != MovementAdjustment {
			return fmt.Errorf("%w: only adjustments require confirmation", ErrInvalidState)
		}
		applied := movement
		if err := applied.Confirm(); err != nil {
			return err
		}
		client, err := transactionStore.GetClient(ctx, movement.ClientID)
		if err != nil {
			return err
		}
		currentBalance, err := transactionStore.LastBalance(ctx, movement.ClientID)
		if err != nil {
			return err
		}
		applied.ID = MovementID{}
		applied.Balance = currentBalance + applied.Amount
		applied.CreatedAtUnixUTC = service.nowFn()
		if applied.Amount > 0 {
			err = client.AddDebt(applied.Amount)
		} else {
			err = client.ReduceDebt(applied.Amount.Negated())
		}
		if err != nil {
			return err
		}
		if err := movement.Reverse(); err != nil {
			return err
		}
		if err := transactionStore.UpdateMovement(ctx, movement); err != nil {
			return err
		}
		confirmed, err = transactionStore.AppendMovement(ctx, applied)
		if err != nil {
			return err
		}
		return transactionStore.UpdateClientBalance(ctx, client)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationConfirmAdjust,
		ClientID:  confirmed.ClientID,
		Amount:    confirmed.Amount,
		Error:     operationError,
	})
	if operationError != nil {
		return AccountMovement{}, operationError
	}
	return confirmed, nil
}

// ReverseMovement flags a movement as reversed. The ledger is append-only:
// balances are not recomputed, so any compensating correction must be
// registered as a new adjustment.
func (service *Service) ReverseMovement(ctx context.Context, movementID MovementID) (AccountMovement, error) {
	var reversed AccountMovement
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		movement, err := transactionStore.GetMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if err := movement.Reverse(); err != nil {
			return err
		}
		if err := transactionStore.UpdateMovement(ctx, movement); err != nil {
			return err
		}
		reversed = movement
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationReverseMovement,
		ClientID:  reversed.ClientID,
		Amount:    reversed.Amount,
		Error:     operationError,
	})
	if operationError != nil {
		return AccountMovement{}, operationError
	}
	return reversed, nil
}

// CancelInvoice cancels an unpaid invoice (terminal).
func (service *Service) CancelInvoice(ctx context.Context, invoiceID InvoiceID) (Invoice, error) {
	var cancelled Invoice
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		invoice, err := transactionStore.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := invoice.Cancel(); err != nil {
			return err
		}
		if err := transactionStore.UpdateInvoice(ctx, invoice); err != nil {
			return err
		}
		cancelled = invoice
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationCancelInvoice,
		InvoiceID: invoiceID,
		Error:     operationError,
	})
	if operationError != nil {
		return Invoice{}, operationError
	}
	return cancelled, nil
}

// InvoiceByID loads a single invoice.
func (service *Service) InvoiceByID(ctx context.Context, invoiceID InvoiceID) (Invoice, error) {
	return service.store.GetInvoice(ctx, invoiceID)
}

// PaymentByID loads a single payment.
func (service *Service) PaymentByID(ctx context.Context, paymentID PaymentID) (Payment, error) {
	return service.store.GetPayment(ctx, paymentID)
}

// ClientStatement lists a client's ledger movements before a cutoff time,
// newest first.
func (service *Service) ClientStatement(ctx context.Context, clientID ClientID, beforeUnixUTC int64, limit int) ([]AccountMovement, error) {
	return service.store.ListMovements(ctx, clientID, beforeUnixUTC, limit)
}

// ClientBalance returns the cached outstanding balance for a client.
func (service *Service) ClientBalance(ctx context.Context, clientID ClientID) (AmountCents, error) {
	client, err := service.store.GetClient(ctx, clientID)
	if err != nil {
		return 0, err
	}
	return client.OutstandingBalance, nil
}
