package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/solhotel/billing/internal/store/gormstore"
	"github.com/solhotel/billing/pkg/billing"
)

const (
	testClientID      = "client-1"
	testReservationID = "res-1"
)

func TestCheckOutAndPaymentFlow(t *testing.T) {
	server, deps := startFacade(t)

	checkoutPayload := map[string]any{
		"reservation_id": testReservationID,
		"user_id":        "user-9",
		"room_condition": "clean",
	}
	var issued invoiceEnvelope
	execJSON(t, server, http.MethodPost, "/api/checkout", checkoutPayload, http.StatusOK, &issued)
	if issued.Invoice.TotalCents != 121000 {
		t.Fatalf("expected total 121000, got %d", issued.Invoice.TotalCents)
	}
	wantNumber := billing.FormatInvoiceNumber(time.Unix(issued.Invoice.IssuedAtUnixUTC, 0).UTC(), 1)
	if issued.Invoice.Number != wantNumber {
		t.Fatalf("expected invoice number %s, got %s", wantNumber, issued.Invoice.Number)
	}
	if issued.Invoice.Status != "pending" {
		t.Fatalf("expected pending invoice, got %s", issued.Invoice.Status)
	}
	if len(deps.frontDesk.completions) != 1 {
		t.Fatalf("expected one stay completion, got %d", len(deps.frontDesk.completions))
	}

	paymentPayload := map[string]any{
		"invoice_id":   issued.Invoice.InvoiceID,
		"client_id":    testClientID,
		"amount_cents": 21000,
		"method":       "cash",
	}
	var registered paymentEnvelope
	execJSON(t, server, http.MethodPost, "/api/payments", paymentPayload, http.StatusOK, &registered)
	if registered.Payment.Status != "completed" || !registered.Payment.Applied {
		t.Fatalf("expected applied completed payment, got %+v", registered.Payment)
	}

	var fetched invoiceEnvelope
	execJSON(t, server, http.MethodGet, "/api/invoices/"+issued.Invoice.InvoiceID, nil, http.StatusOK, &fetched)
	if fetched.Invoice.Status != "partial" || fetched.Invoice.AmountPaidCents != 21000 {
		t.Fatalf("expected partial invoice with 21000 paid, got %+v", fetched.Invoice)
	}

	var statement statementEnvelope
	execJSON(t, server, http.MethodGet, "/api/clients/"+testClientID+"/statement", nil, http.StatusOK, &statement)
	if statement.BalanceCents != 100000 {
		t.Fatalf("expected balance 100000, got %d", statement.BalanceCents)
	}
	if len(statement.Movements) != 2 {
		t.Fatalf("expected charge and payment movements, got %d", len(statement.Movements))
	}
	if statement.Movements[0].Type != "payment" || statement.Movements[1].Type != "charge" {
		t.Fatalf("expected newest-first movements, got %s then %s", statement.Movements[0].Type, statement.Movements[1].Type)
	}
}

func TestGatewaySessionAndWebhookSettlement(t *testing.T) {
	server, deps := startFacade(t)

	var issued invoiceEnvelope
	execJSON(t, server, http.MethodPost, "/api/checkout", map[string]any{"reservation_id": testReservationID, "user_id": "user-9"}, http.StatusOK, &issued)

	var session sessionEnvelope
	execJSON(t, server, http.MethodPost, "/api/invoices/"+issued.Invoice.InvoiceID+"/gateway-session", map[string]any{"payer_email": "guest@example.com"}, http.StatusOK, &session)
	if session.Session.PreferenceID != "pref-1" {
		t.Fatalf("expected preference pref-1, got %s", session.Session.PreferenceID)
	}
	if session.Payment.Status != "pending" || session.Payment.AmountCents != issued.Invoice.TotalCents {
		t.Fatalf("expected pending payment for the outstanding total, got %+v", session.Payment)
	}

	deps.gateway.snapshots["mp-77"] = billing.GatewaySnapshot{
		ExternalPaymentID: "mp-77",
		Status:            billing.GatewayStatusApproved,
		MerchantReference: billing.BuildMerchantReference(mustInvoiceID(t, issued.Invoice.InvoiceID)),
	}

	var acked statusEnvelope
	execJSON(t, server, http.MethodPost, "/webhooks/mercadopago?topic=payment&id=mp-77", nil, http.StatusOK, &acked)
	if acked.Status != "ok" {
		t.Fatalf("expected ok ack, got %s", acked.Status)
	}

	var settled invoiceEnvelope
	execJSON(t, server, http.MethodGet, "/api/invoices/"+issued.Invoice.InvoiceID, nil, http.StatusOK, &settled)
	if settled.Invoice.Status != "paid" {
		t.Fatalf("expected paid invoice after webhook, got %s", settled.Invoice.Status)
	}

	// A replayed notification must not settle twice.
	execJSON(t, server, http.MethodPost, "/webhooks/mercadopago?topic=payment&id=mp-77", nil, http.StatusOK, &acked)
	var statement statementEnvelope
	execJSON(t, server, http.MethodGet, "/api/clients/"+testClientID+"/statement", nil, http.StatusOK, &statement)
	if statement.BalanceCents != 0 {
		t.Fatalf("expected settled balance, got %d", statement.BalanceCents)
	}
}

func TestWebhookAcceptsJSONBodyNotification(t *testing.T) {
	server, deps := startFacade(t)

	var issued invoiceEnvelope
	execJSON(t, server, http.MethodPost, "/api/invoices/generate", map[string]any{"reservation_id": testReservationID}, http.StatusOK, &issued)
	var session sessionEnvelope
	execJSON(t, server, http.MethodPost, "/api/invoices/"+issued.Invoice.InvoiceID+"/gateway-session", nil, http.StatusOK, &session)

	deps.gateway.snapshots["mp-88"] = billing.GatewaySnapshot{
		ExternalPaymentID: "mp-88",
		Status:            billing.GatewayStatusApproved,
		MerchantReference: billing.BuildMerchantReference(mustInvoiceID(t, issued.Invoice.InvoiceID)),
	}

	body := map[string]any{"type": "payment", "data": map[string]any{"id": "mp-88"}}
	var acked statusEnvelope
	execJSON(t, server, http.MethodPost, "/webhooks/mercadopago", body, http.StatusOK, &acked)
	if acked.Status != "ok" {
		t.Fatalf("expected ok ack, got %s", acked.Status)
	}

	var settled invoiceEnvelope
	execJSON(t, server, http.MethodGet, "/api/invoices/"+issued.Invoice.InvoiceID, nil, http.StatusOK, &settled)
	if settled.Invoice.Status != "paid" {
		t.Fatalf("expected paid invoice, got %s", settled.Invoice.Status)
	}
}

func TestWebhookIgnoresNonPaymentTopics(t *testing.T) {
	server, _ := startFacade(t)

	var acked statusEnvelope
	execJSON(t, server, http.MethodPost, "/webhooks/mercadopago?topic=merchant_order&id=mo-1", nil, http.StatusOK, &acked)
	if acked.Status != "ignored" {
		t.Fatalf("expected ignored ack, got %s", acked.Status)
	}
}

func TestWebhookAcksUnknownPayments(t *testing.T) {
	server, _ := startFacade(t)

	var acked statusEnvelope
	execJSON(t, server, http.MethodPost, "/webhooks/mercadopago?topic=payment&id=mp-unknown", nil, http.StatusOK, &acked)
	if acked.Status != "ok" {
		t.Fatalf("expected ok ack even when reconciliation fails, got %s", acked.Status)
	}
}

func TestFacadeErrorMapping(t *testing.T) {
	server, deps := startFacade(t)

	var failure errorEnvelope
	execJSON(t, server, http.MethodPost, "/api/invoices/generate", map[string]any{"reservation_id": ""}, http.StatusBadRequest, &failure)
	if failure.Error.Code != "invalid_argument" {
		t.Fatalf("expected invalid_argument, got %s", failure.Error.Code)
	}

	execJSON(t, server, http.MethodPost, "/api/invoices/generate", map[string]any{"reservation_id": "res-missing"}, http.StatusNotFound, &failure)
	if failure.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %s", failure.Error.Code)
	}

	execJSON(t, server, http.MethodGet, "/api/clients/"+testClientID+"/statement?limit=zero", nil, http.StatusBadRequest, &failure)
	if failure.Error.Code != "invalid_argument" {
		t.Fatalf("expected invalid_argument on bad limit, got %s", failure.Error.Code)
	}

	var issued invoiceEnvelope
	execJSON(t, server, http.MethodPost, "/api/invoices/generate", map[string]any{"reservation_id": testReservationID}, http.StatusOK, &issued)
	deps.gateway.configured = false
	execJSON(t, server, http.MethodPost, "/api/invoices/"+issued.Invoice.InvoiceID+"/gateway-session", nil, http.StatusServiceUnavailable, &failure)
	if failure.Error.Code != "gateway_unconfigured" {
		t.Fatalf("expected gateway_unconfigured, got %s", failure.Error.Code)
	}
}

type facadeDeps struct {
	frontDesk *testFrontDesk
	gateway   *testGateway
}

func startFacade(t *testing.T) (*httptest.Server, *facadeDeps) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/billing.db"), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open failed: %v", err)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate failed: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	if err := db.Create(&gormstore.Client{
		ClientID:  testClientID,
		Name:      "Ada Quiroga",
		Email:     "ada@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}).Error; err != nil {
		t.Fatalf("client seed failed: %v", err)
	}

	frontDesk := &testFrontDesk{
		reservations: map[string]billing.Reservation{
			testReservationID: {
				ID:                 mustReservationID(t, testReservationID),
				ClientID:           mustClientID(t, testClientID),
				RoomID:             "room-21",
				Code:               "RES-21",
				CheckIn:            now.Add(-48 * time.Hour),
				CheckOut:           now,
				PricePerNightCents: 50000,
			},
		},
	}
	gateway := &testGateway{
		configured: true,
		session: billing.PaymentSession{
			PreferenceID:     "pref-1",
			InitPoint:        "https://gateway.example.com/pay/pref-1",
			SandboxInitPoint: "https://sandbox.gateway.example.com/pay/pref-1",
		},
		snapshots: map[string]billing.GatewaySnapshot{},
	}

	// A frozen clock stamps every movement with the same second, so the
	// statement ordering and running-balance checks below only hold when
	// the store breaks created_at ties on append order. It trails the wall
	// clock so listing cutoffs anchored at time.Now still include every row.
	frozenUnixUTC := now.Add(-time.Hour).Unix()
	clock := func() int64 {
		return frozenUnixUTC
	}
	service, err := billing.NewService(gormstore.New(db), frontDesk, gateway, clock)
	if err != nil {
		t.Fatalf("service init failed: %v", err)
	}

	cfg := Config{
		ListenAddr:     ":0",
		AllowedOrigins: []string{"http://localhost:8000"},
		RequestTimeout: 2 * time.Second,
	}
	handler := &httpHandler{
		logger:  zap.NewNop(),
		service: service,
		cfg:     cfg,
	}
	server := httptest.NewServer(setupRouter(cfg, handler))
	t.Cleanup(server.Close)
	return server, &facadeDeps{frontDesk: frontDesk, gateway: gateway}
}

func execJSON(t *testing.T, server *httptest.Server, method string, path string, payload map[string]any, wantStatus int, target any) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, server.URL+path, body)
	if err != nil {
		t.Fatalf("request init failed: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("unexpected status code for %s %s: got %d, want %d", method, path, resp.StatusCode, wantStatus)
	}
	if target == nil {
		return
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func mustReservationID(t *testing.T, raw string) billing.ReservationID {
	t.Helper()
	id, err := billing.NewReservationID(raw)
	if err != nil {
		t.Fatalf("reservation id: %v", err)
	}
	return id
}

func mustClientID(t *testing.T, raw string) billing.ClientID {
	t.Helper()
	id, err := billing.NewClientID(raw)
	if err != nil {
		t.Fatalf("client id: %v", err)
	}
	return id
}

func mustInvoiceID(t *testing.T, raw string) billing.InvoiceID {
	t.Helper()
	id, err := billing.NewInvoiceID(raw)
	if err != nil {
		t.Fatalf("invoice id: %v", err)
	}
	return id
}

type testFrontDesk struct {
	reservations map[string]billing.Reservation
	completions  []billing.StayCompletion
}

func (frontDesk *testFrontDesk) FindReservation(_ context.Context, reservationID billing.ReservationID) (billing.Reservation, error) {
	reservation, ok := frontDesk.reservations[reservationID.String()]
	if !ok {
		return billing.Reservation{}, billing.ErrReservationNotFound
	}
	return reservation, nil
}

func (frontDesk *testFrontDesk) CompleteStay(_ context.Context, completion billing.StayCompletion) error {
	frontDesk.completions = append(frontDesk.completions, completion)
	return nil
}

type testGateway struct {
	configured bool
	session    billing.PaymentSession
	snapshots  map[string]billing.GatewaySnapshot
}

func (gateway *testGateway) IsConfigured() bool { return gateway.configured }

func (gateway *testGateway) CreatePaymentSession(_ context.Context, _ billing.SessionRequest) (billing.PaymentSession, error) {
	return gateway.session, nil
}

func (gateway *testGateway) FetchPayment(_ context.Context, externalPaymentID string) (billing.GatewaySnapshot, error) {
	snapshot, ok := gateway.snapshots[externalPaymentID]
	if !ok {
		return billing.GatewaySnapshot{}, billing.ErrPaymentNotFound
	}
	return snapshot, nil
}

type invoiceEnvelope struct {
	Invoice invoicePayload `json:"invoice"`
}

type paymentEnvelope struct {
	Payment paymentPayload `json:"payment"`
}

type sessionEnvelope struct {
	Payment paymentPayload `json:"payment"`
	Session struct {
		PreferenceID     string `json:"preference_id"`
		InitPoint        string `json:"init_point"`
		SandboxInitPoint string `json:"sandbox_init_point"`
	} `json:"session"`
}

type statementEnvelope struct {
	BalanceCents int64             `json:"balance_cents"`
	Movements    []movementPayload `json:"movements"`
}

type statusEnvelope struct {
	Status string `json:"status"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
