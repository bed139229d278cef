package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

const fixedNowUnixUTC int64 = 1767282000 // 2026-01-01T15:40:00Z

func TestGenerateInvoiceCreatesInvoiceFromStay(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	service := mustNewService(test, store, frontDesk, nil)

	invoice, err := service.GenerateInvoice(context.Background(), mustReservationID(test, "res-1"))
	if err != nil {
		test.Fatalf("generate invoice: %v", err)
	}
	if invoice.Subtotal != 100000 {
		test.Fatalf("expected subtotal 100000 for two nights, got %d", invoice.Subtotal)
	}
	if invoice.TaxAmount != 21000 {
		test.Fatalf("expected tax 21000, got %d", invoice.TaxAmount)
	}
	if invoice.Total != 121000 {
		test.Fatalf("expected total 121000, got %d", invoice.Total)
	}
	if invoice.Status != InvoiceStatusPending {
		test.Fatalf("expected pending invoice, got %s", invoice.Status)
	}
	if invoice.Number == "" {
		test.Fatalf("expected an assigned invoice number")
	}
	if invoice.DueAtUnixUTC != time.Unix(fixedNowUnixUTC, 0).UTC().AddDate(0, 0, 30).Unix() {
		test.Fatalf("unexpected due date %d", invoice.DueAtUnixUTC)
	}
}

func TestGenerateInvoiceIsIdempotentPerReservation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	service := mustNewService(test, store, frontDesk, nil)
	reservationID := mustReservationID(test, "res-1")

	first, err := service.GenerateInvoice(context.Background(), reservationID)
	if err != nil {
		test.Fatalf("first generate: %v", err)
	}
	second, err := service.GenerateInvoice(context.Background(), reservationID)
	if err != nil {
		test.Fatalf("second generate: %v", err)
	}
	if first.ID != second.ID || first.Number != second.Number {
		test.Fatalf("expected the same invoice, got %+v and %+v", first, second)
	}
	if len(store.invoices) != 1 {
		test.Fatalf("expected a single stored invoice, got %d", len(store.invoices))
	}
}

func TestGenerateInvoiceUnknownReservation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	frontDesk.findError = ErrReservationNotFound
	service := mustNewService(test, store, frontDesk, nil)

	_, err := service.GenerateInvoice(context.Background(), mustReservationID(test, "missing"))
	if !errors.Is(err, ErrReservationNotFound) {
		test.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
}

func TestRegisterPaymentSettlesInvoiceAndLedger(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	service := mustNewService(test, store, frontDesk, nil)
	invoice := mustGenerateInvoice(test, service, "res-1")
	store.setClientBalance(test, invoice.ClientID, invoice.Total)

	payment, err := service.RegisterPayment(context.Background(), RegisterPaymentInput{
		InvoiceID: invoice.ID,
		ClientID:  invoice.ClientID,
		Amount:    mustPositiveAmount(test, 21000),
		Method:    PaymentMethodCash,
		Reference: "front-desk",
	})
	if err != nil {
		test.Fatalf("register payment: %v", err)
	}
	if payment.Status != PaymentStatusCompleted || !payment.Applied {
		test.Fatalf("expected a completed applied payment, got %+v", payment)
	}

	updated := store.mustInvoice(test, invoice.ID)
	if updated.AmountPaid != 21000 {
		test.Fatalf("expected amount paid 21000, got %d", updated.AmountPaid)
	}
	if updated.Status != InvoiceStatusPartial {
		test.Fatalf("expected partial invoice, got %s", updated.Status)
	}
	if len(store.movements) != 1 {
		test.Fatalf("expected one ledger movement, got %d", len(store.movements))
	}
	movement := store.movements[0]
	if movement.Type != MovementPayment {
		test.Fatalf("expected payment movement, got %s", movement.Type)
	}
	if movement.Amount != -21000 {
		test.Fatalf("expected signed amount -21000, got %d", movement.Amount)
	}
	client := store.mustClient(test, invoice.ClientID)
	if client.OutstandingBalance != invoice.Total-21000 {
		test.Fatalf("expected cached balance %d, got %d", invoice.Total-21000, client.OutstandingBalance)
	}
}

func TestRegisterPaymentFullAmountMarksInvoicePaid(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	service := mustNewService(test, store, frontDesk, nil)
	invoice := mustGenerateInvoice(test, service, "res-1")
	store.setClientBalance(test, invoice.ClientID, invoice.Total)

	_, err := service.RegisterPayment(context.Background(), RegisterPaymentInput{
		InvoiceID: invoice.ID,
		ClientID:  invoice.ClientID,
		Amount:    invoice.Total,
		Method:    PaymentMethodBankTransfer,
	})
	if err != nil {
		test.Fatalf("register payment: %v", err)
	}
	updated := store.mustInvoice(test, invoice.ID)
	if updated.Status != InvoiceStatusPaid {
		test.Fatalf("expected paid invoice, got %s", updated.Status)
	}
	if updated.OutstandingBalance() != 0 {
		test.Fatalf("expected zero outstanding, got %d", updated.OutstandingBalance())
	}
}

func TestRegisterPaymentRejectsOverpayment(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	service := mustNewService(test, store, frontDesk, nil)
	invoice := mustGenerateInvoice(test, service, "res-1")

	_, err := service.RegisterPayment(context.Background(), RegisterPaymentInput{
		InvoiceID: invoice.ID,
		ClientID:  invoice.ClientID,
		Amount:    invoice.Total + 1,
		Method:    PaymentMethodCash,
	})
	if !errors.Is(err, ErrInvalidArgument) {
		test.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if len(store.payments) != 0 || len(store.movements) != 0 {
		test.Fatalf("expected no writes after rejection")
	}
}

func TestRegisterPaymentRejectsClosedInvoice(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	service := mustNewService(test, store, frontDesk, nil)
	invoice := mustGenerateInvoice(test, service, "res-1")
	store.setClientBalance(test, invoice.ClientID, invoice.Total)

	if _, err := service.RegisterPayment(context.Background(), RegisterPaymentInput{
		InvoiceID: invoice.ID,
		ClientID:  invoice.ClientID,
		Amount:    invoice.Total,
		Method:    PaymentMethodCash,
	}); err != nil {
		test.Fatalf("register payment: %v", err)
	}

	_, err := service.RegisterPayment(context.Background(), RegisterPaymentInput{
		InvoiceID: invoice.ID,
		ClientID:  invoice.ClientID,
		Amount:    mustPositiveAmount(test, 100),
		Method:    PaymentMethodCash,
	})
	if !errors.Is(err, ErrInvalidState) {
		test.Fatalf("expected ErrInvalidState on a paid invoice, got %v", err)
	}
}

func TestCheckOutPostsChargeAndDebt(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	service := mustNewService(test, store, frontDesk, nil)

	invoice, err := service.CheckOut(context.Background(), StayCompletion{
		ReservationID: mustReservationID(test, "res-1"),
		UserID:        "reception-1",
		RoomCondition: "good",
	})
	if err != nil {
		test.Fatalf("check out: %v", err)
	}
	if len(frontDesk.completed) != 1 {
		test.Fatalf("expected the stay to be completed at the front desk")
	}
	if len(store.movements) != 1 {
		test.Fatalf("expected one charge movement, got %d", len(store.movements))
	}
	charge := store.movements[0]
	if charge.Type != MovementCharge || charge.Amount != invoice.Total {
		test.Fatalf("unexpected charge movement %+v", charge)
	}
	if charge.Balance != invoice.Total {
		test.Fatalf("expected balance snapshot %d, got %d", invoice.Total, charge.Balance)
	}
	if charge.Status != MovementStatusCompleted {
		test.Fatalf("expected completed charge, got %s", charge.Status)
	}
	client := store.mustClient(test, invoice.ClientID)
	if client.OutstandingBalance != invoice.Total {
		test.Fatalf("expected cached balance %d, got %d", invoice.Total, client.OutstandingBalance)
	}
}

func TestCheckOutWithExistingInvoiceDoesNotDoubleCharge(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	service := mustNewService(test, store, frontDesk, nil)
	reservationID := mustReservationID(test, "res-1")

	first, err := service.CheckOut(context.Background(), StayCompletion{ReservationID: reservationID})
	if err != nil {
		test.Fatalf("first check out: %v", err)
	}
	second, err := service.CheckOut(context.Background(), StayCompletion{ReservationID: reservationID})
	if err != nil {
		test.Fatalf("second check out: %v", err)
	}
	if first.ID != second.ID {
		test.Fatalf("expected the same invoice, got %s and %s", first.ID.String(), second.ID.String())
	}
	if len(store.movements) != 1 {
		test.Fatalf("expected a single charge movement, got %d", len(store.movements))
	}
	client := store.mustClient(test, first.ClientID)
	if client.OutstandingBalance != first.Total {
		test.Fatalf("expected balance %d after replay, got %d", first.Total, client.OutstandingBalance)
	}
}

func TestCheckOutFrontDeskFailureStopsBilling(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	frontDesk.completeError = errors.New("room state conflict")
	service := mustNewService(test, store, frontDesk, nil)

	_, err := service.CheckOut(context.Background(), StayCompletion{ReservationID: mustReservationID(test, "res-1")})
	if err == nil {
		test.Fatalf("expected error")
	}
	if len(store.invoices) != 0 || len(store.movements) != 0 {
		test.Fatalf("expected no billing writes when the stay completion fails")
	}
}

func TestInvoiceNumbersFollowDailySequence(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	service := mustNewService(test, store, frontDesk, nil)

	first := mustGenerateInvoice(test, service, "res-1")
	frontDesk.reservation.ID = mustReservationID(test, "res-2")
	second, err := service.GenerateInvoice(context.Background(), mustReservationID(test, "res-2"))
	if err != nil {
		test.Fatalf("second invoice: %v", err)
	}

	day := time.Unix(fixedNowUnixUTC, 0).UTC()
	if first.Number != FormatInvoiceNumber(day, 1) {
		test.Fatalf("unexpected first number %s", first.Number)
	}
	if second.Number != FormatInvoiceNumber(day, 2) {
		test.Fatalf("unexpected second number %s", second.Number)
	}
}

func TestNewServiceRequiresDependencies(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	frontDesk := newStubFrontDesk(test, defaultReservation(test))
	clock := func() int64 { return fixedNowUnixUTC }

	if _, err := NewService(nil, frontDesk, nil, clock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config for nil store, got %v", err)
	}
	if _, err := NewService(store, nil, nil, clock); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config for nil front desk, got %v", err)
	}
	if _, err := NewService(store, frontDesk, nil, nil); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid service config for nil clock, got %v", err)
	}
	if _, err := NewService(store, frontDesk, nil, clock); err != nil {
		test.Fatalf("gateway is optional: %v", err)
	}
}

type stubStore struct {
	invoices  map[string]Invoice
	payments  map[string]Payment
	movements []AccountMovement
	clients   map[string]Client

	paymentOrder  []string
	invoiceSeq    int
	nextInvoice   int
	nextPayment   int
	nextMovement  int
	seededBalance map[string]AmountCents

	// While positive, GetInvoiceByReservation reports not found and
	// decrements; simulates a concurrent insert landing between the
	// lookup and the unique-index violation.
	hideReservationLookups int

	getInvoiceError     error
	insertInvoiceError  error
	updateInvoiceError  error
	getClientError      error
	updateClientError   error
	insertPaymentError  error
	updatePaymentError  error
	findPaymentError    error
	findPendingError    error
	appendMovementError error
	getMovementError    error
	updateMovementError error
	lastBalanceError    error
	listMovementsError  error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	store := &stubStore{
		invoices:      make(map[string]Invoice),
		payments:      make(map[string]Payment),
		clients:       make(map[string]Client),
		seededBalance: make(map[string]AmountCents),
	}
	clientID := mustClientID(test, "client-1")
	store.clients[clientID.String()] = Client{ID: clientID, Name: "Ana Torres", Email: "ana@example.com"}
	return store
}

// setClientBalance seeds both the cached balance and the ledger tail, as if
// earlier movements had produced them.
func (store *stubStore) setClientBalance(test *testing.T, clientID ClientID, balance AmountCents) {
	test.Helper()
	client, ok := store.clients[clientID.String()]
	if !ok {
		test.Fatalf("client %s not registered", clientID.String())
	}
	client.OutstandingBalance = balance
	store.clients[clientID.String()] = client
	store.seededBalance[clientID.String()] = balance
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) InsertInvoice(ctx context.Context, invoice Invoice) (Invoice, error) {
	if store.insertInvoiceError != nil {
		return Invoice{}, store.insertInvoiceError
	}
	for _, existing := range store.invoices {
		if existing.ReservationID == invoice.ReservationID {
			return Invoice{}, ErrDuplicateInvoice
		}
	}
	store.nextInvoice++
	identifier, err := NewInvoiceID(fmt.Sprintf("inv-%d", store.nextInvoice))
	if err != nil {
		return Invoice{}, err
	}
	invoice.ID = identifier
	store.invoiceSeq++
	if err := invoice.AssignNumber(FormatInvoiceNumber(time.Unix(invoice.IssuedAtUnixUTC, 0).UTC(), store.invoiceSeq)); err != nil {
		return Invoice{}, err
	}
	store.invoices[identifier.String()] = invoice
	return invoice, nil
}

func (store *stubStore) GetInvoice(ctx context.Context, invoiceID InvoiceID) (Invoice, error) {
	if store.getInvoiceError != nil {
		return Invoice{}, store.getInvoiceError
	}
	invoice, ok := store.invoices[invoiceID.String()]
	if !ok {
		return Invoice{}, ErrInvoiceNotFound
	}
	return invoice, nil
}

func (store *stubStore) GetInvoiceByReservation(ctx context.Context, reservationID ReservationID) (Invoice, error) {
	if store.hideReservationLookups > 0 {
		store.hideReservationLookups--
		return Invoice{}, ErrInvoiceNotFound
	}
	for _, invoice := range store.invoices {
		if invoice.ReservationID == reservationID {
			return invoice, nil
		}
	}
	return Invoice{}, ErrInvoiceNotFound
}

func (store *stubStore) UpdateInvoice(ctx context.Context, invoice Invoice) error {
	if store.updateInvoiceError != nil {
		return store.updateInvoiceError
	}
	if _, ok := store.invoices[invoice.ID.String()]; !ok {
		return ErrInvoiceNotFound
	}
	store.invoices[invoice.ID.String()] = invoice
	return nil
}

func (store *stubStore) InsertPayment(ctx context.Context, payment Payment) (Payment, error) {
	if store.insertPaymentError != nil {
		return Payment{}, store.insertPaymentError
	}
	store.nextPayment++
	identifier, err := NewPaymentID(fmt.Sprintf("pay-%d", store.nextPayment))
	if err != nil {
		return Payment{}, err
	}
	payment.ID = identifier
	store.payments[identifier.String()] = payment
	store.paymentOrder = append(store.paymentOrder, identifier.String())
	return payment, nil
}

func (store *stubStore) GetPayment(ctx context.Context, paymentID PaymentID) (Payment, error) {
	payment, ok := store.payments[paymentID.String()]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return payment, nil
}

func (store *stubStore) FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (Payment, error) {
	if store.findPaymentError != nil {
		return Payment{}, store.findPaymentError
	}
	for _, key := range store.paymentOrder {
		payment := store.payments[key]
		if payment.Gateway.ExternalPaymentID != "" && payment.Gateway.ExternalPaymentID == externalPaymentID {
			return payment, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (store *stubStore) FindPendingGatewayPayment(ctx context.Context, invoiceID InvoiceID) (Payment, error) {
	if store.findPendingError != nil {
		return Payment{}, store.findPendingError
	}
	for _, key := range store.paymentOrder {
		payment := store.payments[key]
		if payment.InvoiceID == invoiceID && payment.Status == PaymentStatusPending && payment.Gateway.HasPreference() {
			return payment, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (store *stubStore) UpdatePayment(ctx context.Context, payment Payment) error {
	if store.updatePaymentError != nil {
		return store.updatePaymentError
	}
	if _, ok := store.payments[payment.ID.String()]; !ok {
		return ErrPaymentNotFound
	}
	store.payments[payment.ID.String()] = payment
	return nil
}

func (store *stubStore) AppendMovement(ctx context.Context, movement AccountMovement) (AccountMovement, error) {
	if store.appendMovementError != nil {
		return AccountMovement{}, store.appendMovementError
	}
	store.nextMovement++
	identifier, err := NewMovementID(fmt.Sprintf("mov-%d", store.nextMovement))
	if err != nil {
		return AccountMovement{}, err
	}
	movement.ID = identifier
	store.movements = append(store.movements, movement)
	return movement, nil
}

func (store *stubStore) GetMovement(ctx context.Context, movementID MovementID) (AccountMovement, error) {
	if store.getMovementError != nil {
		return AccountMovement{}, store.getMovementError
	}
	for _, movement := range store.movements {
		if movement.ID == movementID {
			return movement, nil
		}
	}
	return AccountMovement{}, ErrMovementNotFound
}

func (store *stubStore) UpdateMovement(ctx context.Context, movement AccountMovement) error {
	if store.updateMovementError != nil {
		return store.updateMovementError
	}
	for index := range store.movements {
		if store.movements[index].ID == movement.ID {
			store.movements[index] = movement
			return nil
		}
	}
	return ErrMovementNotFound
}

func (store *stubStore) LastBalance(ctx context.Context, clientID ClientID) (AmountCents, error) {
	if store.lastBalanceError != nil {
		return 0, store.lastBalanceError
	}
	for index := len(store.movements) - 1; index >= 0; index-- {
		movement := store.movements[index]
		if movement.ClientID == clientID && movement.Applied {
			return movement.Balance, nil
		}
	}
	return store.seededBalance[clientID.String()], nil
}

func (store *stubStore) ListMovements(ctx context.Context, clientID ClientID, beforeUnixUTC int64, limit int) ([]AccountMovement, error) {
	if store.listMovementsError != nil {
		return nil, store.listMovementsError
	}
	out := make([]AccountMovement, 0, limit)
	for index := len(store.movements) - 1; index >= 0; index-- {
		movement := store.movements[index]
		if movement.ClientID != clientID {
			continue
		}
		if beforeUnixUTC > 0 && movement.CreatedAtUnixUTC >= beforeUnixUTC {
			continue
		}
		out = append(out, movement)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (store *stubStore) GetClient(ctx context.Context, clientID ClientID) (Client, error) {
	if store.getClientError != nil {
		return Client{}, store.getClientError
	}
	client, ok := store.clients[clientID.String()]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	return client, nil
}

func (store *stubStore) UpdateClientBalance(ctx context.Context, client Client) error {
	if store.updateClientError != nil {
		return store.updateClientError
	}
	if _, ok := store.clients[client.ID.String()]; !ok {
		return ErrClientNotFound
	}
	store.clients[client.ID.String()] = client
	return nil
}

func (store *stubStore) mustInvoice(test *testing.T, invoiceID InvoiceID) Invoice {
	test.Helper()
	invoice, ok := store.invoices[invoiceID.String()]
	if !ok {
		test.Fatalf("invoice %s not found", invoiceID.String())
	}
	return invoice
}

func (store *stubStore) mustClient(test *testing.T, clientID ClientID) Client {
	test.Helper()
	client, ok := store.clients[clientID.String()]
	if !ok {
		test.Fatalf("client %s not found", clientID.String())
	}
	return client
}

type stubFrontDesk struct {
	reservation   Reservation
	findError     error
	completeError error
	completed     []StayCompletion
}

func newStubFrontDesk(test *testing.T, reservation Reservation) *stubFrontDesk {
	test.Helper()
	return &stubFrontDesk{reservation: reservation}
}

func (frontDesk *stubFrontDesk) FindReservation(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	if frontDesk.findError != nil {
		return Reservation{}, frontDesk.findError
	}
	if reservationID != frontDesk.reservation.ID {
		return Reservation{}, ErrReservationNotFound
	}
	return frontDesk.reservation, nil
}

func (frontDesk *stubFrontDesk) CompleteStay(ctx context.Context, completion StayCompletion) error {
	if frontDesk.completeError != nil {
		return frontDesk.completeError
	}
	frontDesk.completed = append(frontDesk.completed, completion)
	return nil
}

type stubGateway struct {
	configured  bool
	session     PaymentSession
	createError error
	snapshots   map[string]GatewaySnapshot
	fetchError  error
	requests    []SessionRequest
}

func newStubGateway(test *testing.T) *stubGateway {
	test.Helper()
	return &stubGateway{
		configured: true,
		session: PaymentSession{
			PreferenceID:     "pref-1",
			InitPoint:        "https://gateway.example/init",
			SandboxInitPoint: "https://gateway.example/sandbox",
		},
		snapshots: make(map[string]GatewaySnapshot),
	}
}

func (gateway *stubGateway) IsConfigured() bool {
	return gateway.configured
}

func (gateway *stubGateway) CreatePaymentSession(ctx context.Context, request SessionRequest) (PaymentSession, error) {
	if gateway.createError != nil {
		return PaymentSession{}, gateway.createError
	}
	gateway.requests = append(gateway.requests, request)
	return gateway.session, nil
}

func (gateway *stubGateway) FetchPayment(ctx context.Context, externalPaymentID string) (GatewaySnapshot, error) {
	if gateway.fetchError != nil {
		return GatewaySnapshot{}, gateway.fetchError
	}
	snapshot, ok := gateway.snapshots[externalPaymentID]
	if !ok {
		return GatewaySnapshot{}, fmt.Errorf("gateway: payment %s not found", externalPaymentID)
	}
	return snapshot, nil
}

func defaultReservation(test *testing.T) Reservation {
	test.Helper()
	checkIn := time.Date(2025, time.December, 30, 14, 0, 0, 0, time.UTC)
	return Reservation{
		ID:                 mustReservationID(test, "res-1"),
		ClientID:           mustClientID(test, "client-1"),
		RoomID:             "room-204",
		Code:               "RSV-1001",
		CheckIn:            checkIn,
		CheckOut:           checkIn.AddDate(0, 0, 2),
		PricePerNightCents: mustPositiveAmount(test, 50000),
	}
}

func mustNewService(test *testing.T, store Store, frontDesk FrontDesk, gateway Gateway, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, frontDesk, gateway, func() int64 { return fixedNowUnixUTC }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustGenerateInvoice(test *testing.T, service *Service, reservationID string) Invoice {
	test.Helper()
	invoice, err := service.GenerateInvoice(context.Background(), mustReservationID(test, reservationID))
	if err != nil {
		test.Fatalf("generate invoice: %v", err)
	}
	return invoice
}

func mustReservationID(test *testing.T, raw string) ReservationID {
	test.Helper()
	value, err := NewReservationID(raw)
	if err != nil {
		test.Fatalf("reservation id: %v", err)
	}
	return value
}

func mustClientID(test *testing.T, raw string) ClientID {
	test.Helper()
	value, err := NewClientID(raw)
	if err != nil {
		test.Fatalf("client id: %v", err)
	}
	return value
}

func mustInvoiceID(test *testing.T, raw string) InvoiceID {
	test.Helper()
	value, err := NewInvoiceID(raw)
	if err != nil {
		test.Fatalf("invoice id: %v", err)
	}
	return value
}

func mustMovementID(test *testing.T, raw string) MovementID {
	test.Helper()
	value, err := NewMovementID(raw)
	if err != nil {
		test.Fatalf("movement id: %v", err)
	}
	return value
}

func mustPositiveAmount(test *testing.T, raw int64) AmountCents {
	test.Helper()
	value, err := NewPositiveAmount(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return value
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	value, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return value
}
