package billing

import (
	"context"
	"errors"
	"fmt"
)

// GatewayCheckout is the result of creating a hosted payment session.
type GatewayCheckout struct {
	Payment Payment
	Session PaymentSession
}

// CreateGatewayCheckout opens a hosted payment session for the invoice's
// outstanding balance and records the pending payment that carries the
// session's preference id. Webhook reconciliation later completes it.
func (service *Service) CreateGatewayCheckout(ctx context.Context, invoiceID InvoiceID, payerEmail string) (GatewayCheckout, error) {
	checkout, operationError := service.createGatewayCheckout(ctx, invoiceID, payerEmail)
	service.logOperation(ctx, OperationLog{
		Operation: operationGatewayCheckout,
		InvoiceID: invoiceID,
		PaymentID: checkout.Payment.ID,
		ClientID:  checkout.Payment.ClientID,
		Amount:    checkout.Payment.Amount,
		Error:     operationError,
	})
	return checkout, operationError
}

func (service *Service) createGatewayCheckout(ctx context.Context, invoiceID InvoiceID, payerEmail string) (GatewayCheckout, error) {
	if service.gateway == nil || !service.gateway.IsConfigured() {
		return GatewayCheckout{}, ErrGatewayUnconfigured
	}
	invoice, err := service.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return GatewayCheckout{}, err
	}
	if !invoice.CanReceivePayment() {
		return GatewayCheckout{}, fmt.Errorf("%w: invoice %s cannot receive payments", ErrInvalidState, invoice.Status)
	}
	outstanding := invoice.OutstandingBalance()
	if outstanding <= 0 {
		return GatewayCheckout{}, fmt.Errorf("%w: invoice has no outstanding balance", ErrInvalidState)
	}

	session, err := service.gateway.CreatePaymentSession(ctx, SessionRequest{
		Title:             fmt.Sprintf("Invoice %s", invoice.Number),
		Amount:            outstanding,
		MerchantReference: BuildMerchantReference(invoice.ID),
		PayerEmail:        payerEmail,
	})
	if err != nil {
		return GatewayCheckout{}, err
	}

	var payment Payment
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		nowUnixUTC := service.nowFn()
		pending, err := NewPayment(invoice.ID, invoice.ClientID, outstanding, PaymentMethodOther, session.PreferenceID, "hosted checkout", nowUnixUTC)
		if err != nil {
			return err
		}
		if err := pending.MergeGatewayInfo(GatewayInfo{PreferenceID: session.PreferenceID, PayerEmail: payerEmail}, nowUnixUTC); err != nil {
			return err
		}
		payment, err = transactionStore.InsertPayment(ctx, pending)
		return err
	})
	if operationError != nil {
		return GatewayCheckout{}, operationError
	}
	return GatewayCheckout{Payment: payment, Session: session}, nil
}

// ProcessGatewayWebhook re-fetches the authoritative payment state for a
// webhook notification and applies it. Retry/backoff on the fetch is the
// caller's concern.
func (service *Service) ProcessGatewayWebhook(ctx context.Context, externalPaymentID string) error {
	if service.gateway == nil || !service.gateway.IsConfigured() {
		return ErrGatewayUnconfigured
	}
	snapshot, err := service.gateway.FetchPayment(ctx, externalPaymentID)
	if err != nil {
		return err
	}
	return service.ApplyGatewaySnapshot(ctx, snapshot)
}

// ApplyGatewaySnapshot applies a trusted gateway payment snapshot
// idempotently. Replays and out-of-order deliveries are safe: gateway
// metadata merges unconditionally, but accounting posts only in the call
// that flips the payment from pending to completed, and that flip happens
// under the payment row lock inside one transaction with the invoice,
// ledger, and client-balance writes.
func (service *Service) ApplyGatewaySnapshot(ctx context.Context, snapshot GatewaySnapshot) error {
	applied := false
	noop := false
	var matched Payment
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		payment, found, err := service.locateCandidate(ctx, transactionStore, snapshot)
		if err != nil {
			return err
		}
		if !found {
			noop = true
			return nil
		}
		nowUnixUTC := service.nowFn()
		if err := payment.MergeGatewayInfo(GatewayInfo{
			ExternalPaymentID: snapshot.ExternalPaymentID,
			Status:            snapshot.Status,
			StatusDetail:      snapshot.StatusDetail,
			PaymentTypeID:     snapshot.PaymentTypeID,
			PaymentMethodID:   snapshot.PaymentMethodID,
			PayerEmail:        snapshot.PayerEmail,
			Metadata:          snapshot.Metadata,
		}, nowUnixUTC); err != nil {
			return err
		}

		switch {
		case snapshot.Status == GatewayStatusApproved && payment.Status == PaymentStatusPending:
			if err := payment.MarkCompleted(nowUnixUTC); err != nil {
				return err
			}
			applied = true
		case (snapshot.Status == GatewayStatusRejected || snapshot.Status == GatewayStatusCancelled) && payment.Status == PaymentStatusPending:
			if err := payment.MarkFailed(nowUnixUTC); err != nil {
				return err
			}
		}

		if !applied {
			matched = payment
			return transactionStore.UpdatePayment(ctx, payment)
		}

		invoice, err := transactionStore.GetInvoice(ctx, payment.InvoiceID)
		if err != nil {
			return err
		}
		client, err := transactionStore.GetClient(ctx, payment.ClientID)
		if err != nil {
			return err
		}
		if err := invoice.RecordPayment(payment.Amount); err != nil {
			return err
		}
		if err := service.postPaymentAccounting(ctx, transactionStore, &payment, &invoice, &client, nowUnixUTC); err != nil {
			return err
		}
		matched = payment
		return nil
	})
	logEntry := OperationLog{
		Operation:  operationApplySnapshot,
		PaymentID:  matched.ID,
		InvoiceID:  matched.InvoiceID,
		ClientID:   matched.ClientID,
		ExternalID: snapshot.ExternalPaymentID,
		Amount:     matched.Amount,
		Error:      operationError,
	}
	if noop && operationError == nil {
		logEntry.Status = operationStatusNoop
	}
	service.logOperation(ctx, logEntry)
	return operationError
}

// locateCandidate finds the payment a snapshot belongs to: first by the
// external payment id, then by the merchant reference's invoice and its
// oldest pending gateway payment. An unmatched or malformed snapshot is not
// ours and reports found=false.
func (service *Service) locateCandidate(ctx context.Context, transactionStore Store, snapshot GatewaySnapshot) (Payment, bool, error) {
	payment, err := transactionStore.FindPaymentByExternalID(ctx, snapshot.ExternalPaymentID)
	if err == nil {
		return payment, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Payment{}, false, err
	}
	invoiceID, ok := ParseMerchantReference(snapshot.MerchantReference)
	if !ok {
		return Payment{}, false, nil
	}
	payment, err = transactionStore.FindPendingGatewayPayment(ctx, invoiceID)
	if errors.Is(err, ErrNotFound) {
		return Payment{}, false, nil
	}
	if err != nil {
		return Payment{}, false, err
	}
	return payment, true, nil
}
