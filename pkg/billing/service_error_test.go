package billing

import (
	"context"
	"errors"
	"testing"
)

const errorMismatchMessage = "expected %v, got %v"

var errStoreFailure = errors.New("store error")

func TestRegisterPaymentReturnsStoreErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(store *stubStore)
	}{
		{
			name:      "invoice lookup error",
			configure: func(store *stubStore) { store.getInvoiceError = errStoreFailure },
		},
		{
			name:      "client lookup error",
			configure: func(store *stubStore) { store.getClientError = errStoreFailure },
		},
		{
			name:      "insert payment error",
			configure: func(store *stubStore) { store.insertPaymentError = errStoreFailure },
		},
		{
			name:      "append movement error",
			configure: func(store *stubStore) { store.appendMovementError = errStoreFailure },
		},
		{
			name:      "last balance error",
			configure: func(store *stubStore) { store.lastBalanceError = errStoreFailure },
		},
		{
			name:      "update payment error",
			configure: func(store *stubStore) { store.updatePaymentError = errStoreFailure },
		},
		{
			name:      "update invoice error",
			configure: func(store *stubStore) { store.updateInvoiceError = errStoreFailure },
		},
		{
			name:      "update client error",
			configure: func(store *stubStore) { store.updateClientError = errStoreFailure },
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			frontDesk := newStubFrontDesk(test, defaultReservation(test))
			service := mustNewService(test, store, frontDesk, nil)
			invoice := mustGenerateInvoice(test, service, "res-1")
			store.setClientBalance(test, invoice.ClientID, invoice.Total)
			testCase.configure(store)

			_, err := service.RegisterPayment(context.Background(), RegisterPaymentInput{
				InvoiceID: invoice.ID,
				ClientID:  invoice.ClientID,
				Amount:    mustPositiveAmount(test, 1000),
				Method:    PaymentMethodCash,
			})
			if !errors.Is(err, errStoreFailure) {
				test.Fatalf(errorMismatchMessage, errStoreFailure, err)
			}
		})
	}
}

func TestCheckOutReturnsStoreErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(store *stubStore)
	}{
		{
			name:      "insert invoice error",
			configure: func(store *stubStore) { store.insertInvoiceError = errStoreFailure },
		},
		{
			name:      "client lookup error",
			configure: func(store *stubStore) { store.getClientError = errStoreFailure },
		},
		{
			name:      "last balance error",
			configure: func(store *stubStore) { store.lastBalanceError = errStoreFailure },
		},
		{
			name:      "append movement error",
			configure: func(store *stubStore) { store.appendMovementError = errStoreFailure },
		},
		{
			name:      "update client error",
			configure: func(store *stubStore) { store.updateClientError = errStoreFailure },
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			frontDesk := newStubFrontDesk(test, defaultReservation(test))
			service := mustNewService(test, store, frontDesk, nil)
			testCase.configure(store)

			_, err := service.CheckOut(context.Background(), StayCompletion{ReservationID: mustReservationID(test, "res-1")})
			if !errors.Is(err, errStoreFailure) {
				test.Fatalf(errorMismatchMessage, errStoreFailure, err)
			}
		})
	}
}

func TestApplyGatewaySnapshotReturnsStoreErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(store *stubStore)
	}{
		{
			name:      "external id lookup error",
			configure: func(store *stubStore) { store.findPaymentError = errStoreFailure },
		},
		{
			name:      "pending payment lookup error",
			configure: func(store *stubStore) { store.findPendingError = errStoreFailure },
		},
		{
			name:      "invoice lookup error",
			configure: func(store *stubStore) { store.getInvoiceError = errStoreFailure },
		},
		{
			name:      "append movement error",
			configure: func(store *stubStore) { store.appendMovementError = errStoreFailure },
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store, _, service, _, checkout := setupGatewayCheckout(test)
			testCase.configure(store)

			err := service.ApplyGatewaySnapshot(context.Background(), approvedSnapshot(checkout, "mp-err"))
			if !errors.Is(err, errStoreFailure) {
				test.Fatalf(errorMismatchMessage, errStoreFailure, err)
			}
		})
	}
}

func TestGenerateInvoiceDuplicateRaceReloadsWinner(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	service := mustNewService(test, store, frontDesk, nil)

	winner := mustGenerateInvoice(test, service, "res-1")
	// The loser's lookup misses, its insert hits the unique index, and it
	// must come back with the winner's row.
	store.hideReservationLookups = 1

	invoice, err := service.GenerateInvoice(context.Background(), mustReservationID(test, "res-1"))
	if err != nil {
		test.Fatalf("generate invoice: %v", err)
	}
	if invoice.ID != winner.ID {
		test.Fatalf("expected the winner's invoice, got %s", invoice.ID.String())
	}
	if len(store.invoices) != 1 {
		test.Fatalf("expected one invoice, got %d", len(store.invoices))
	}
}
