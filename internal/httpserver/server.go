// Package httpserver exposes the billing service over HTTP for the back
// office and for gateway webhook notifications.
package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/solhotel/billing/pkg/billing"
)

// Run boots the HTTP facade and blocks until the context is cancelled or
// the listener fails.
func Run(ctx context.Context, cfg Config, service *billing.Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}

	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("billing facade listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.POST("/invoices/generate", handler.handleGenerateInvoice)
	api.POST("/payments", handler.handleRegisterPayment)
	api.POST("/checkout", handler.handleCheckOut)
	api.POST("/invoices/:id/gateway-session", handler.handleGatewaySession)
	api.GET("/invoices/:id", handler.handleGetInvoice)
	api.GET("/clients/:id/statement", handler.handleClientStatement)

	router.POST("/webhooks/mercadopago", handler.handleGatewayWebhook)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *billing.Service
	cfg     Config
}

type generateInvoiceRequest struct {
	ReservationID string `json:"reservation_id"`
}

func (handler *httpHandler) handleGenerateInvoice(ctx *gin.Context) {
	var request generateInvoiceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	reservationID, err := billing.NewReservationID(request.ReservationID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", err.Error()))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	invoice, err := handler.service.GenerateInvoice(requestCtx, reservationID)
	if err != nil {
		handler.respondError(ctx, "generate invoice failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"invoice": invoicePayloadFrom(invoice)})
}

type registerPaymentRequest struct {
	InvoiceID   string `json:"invoice_id"`
	ClientID    string `json:"client_id"`
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
	Reference   string `json:"reference"`
	Notes       string `json:"notes"`
}

func (handler *httpHandler) handleRegisterPayment(ctx *gin.Context) {
	var request registerPaymentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	input, err := paymentInputFrom(request)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", err.Error()))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	payment, err := handler.service.RegisterPayment(requestCtx, input)
	if err != nil {
		handler.respondError(ctx, "register payment failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"payment": paymentPayloadFrom(payment)})
}

func paymentInputFrom(request registerPaymentRequest) (billing.RegisterPaymentInput, error) {
	invoiceID, err := billing.NewInvoiceID(request.InvoiceID)
	if err != nil {
		return billing.RegisterPaymentInput{}, err
	}
	clientID, err := billing.NewClientID(request.ClientID)
	if err != nil {
		return billing.RegisterPaymentInput{}, err
	}
	amount, err := billing.NewPositiveAmount(request.AmountCents)
	if err != nil {
		return billing.RegisterPaymentInput{}, err
	}
	method, err := billing.ParsePaymentMethod(request.Method)
	if err != nil {
		return billing.RegisterPaymentInput{}, err
	}
	return billing.RegisterPaymentInput{
		InvoiceID: invoiceID,
		ClientID:  clientID,
		Amount:    amount,
		Method:    method,
		Reference: request.Reference,
		Notes:     request.Notes,
	}, nil
}

type checkOutRequest struct {
	ReservationID string `json:"reservation_id"`
	UserID        string `json:"user_id"`
	RoomCondition string `json:"room_condition"`
	Observations  string `json:"observations"`
}

func (handler *httpHandler) handleCheckOut(ctx *gin.Context) {
	var request checkOutRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	reservationID, err := billing.NewReservationID(request.ReservationID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", err.Error()))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	invoice, err := handler.service.CheckOut(requestCtx, billing.StayCompletion{
		ReservationID: reservationID,
		UserID:        request.UserID,
		RoomCondition: request.RoomCondition,
		Observations:  request.Observations,
	})
	if err != nil {
		handler.respondError(ctx, "check-out failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"invoice": invoicePayloadFrom(invoice)})
}

type gatewaySessionRequest struct {
	PayerEmail string `json:"payer_email"`
}

func (handler *httpHandler) handleGatewaySession(ctx *gin.Context) {
	invoiceID, err := billing.NewInvoiceID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", err.Error()))
		return
	}
	var request gatewaySessionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	checkout, err := handler.service.CreateGatewayCheckout(requestCtx, invoiceID, request.PayerEmail)
	if err != nil {
		handler.respondError(ctx, "gateway session failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"payment": paymentPayloadFrom(checkout.Payment),
		"session": gin.H{
			"preference_id":      checkout.Session.PreferenceID,
			"init_point":         checkout.Session.InitPoint,
			"sandbox_init_point": checkout.Session.SandboxInitPoint,
		},
	})
}

func (handler *httpHandler) handleGetInvoice(ctx *gin.Context) {
	invoiceID, err := billing.NewInvoiceID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", err.Error()))
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	invoice, err := handler.service.InvoiceByID(requestCtx, invoiceID)
	if err != nil {
		handler.respondError(ctx, "invoice fetch failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"invoice": invoicePayloadFrom(invoice)})
}

func (handler *httpHandler) handleClientStatement(ctx *gin.Context) {
	clientID, err := billing.NewClientID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", err.Error()))
		return
	}
	limit := defaultStatementRows
	if raw := ctx.Query("limit"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed <= 0 {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	var before int64
	if raw := ctx.Query("before_unix_utc"); raw != "" {
		parsed, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", "before_unix_utc must be an integer"))
			return
		}
		before = parsed
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	movements, err := handler.service.ClientStatement(requestCtx, clientID, before, limit)
	if err != nil {
		handler.respondError(ctx, "statement fetch failed", err)
		return
	}
	balance, err := handler.service.ClientBalance(requestCtx, clientID)
	if err != nil {
		handler.respondError(ctx, "balance fetch failed", err)
		return
	}

	payloads := make([]movementPayload, 0, len(movements))
	for _, movement := range movements {
		payloads = append(payloads, movementPayloadFrom(movement))
	}
	ctx.JSON(http.StatusOK, gin.H{
		"balance_cents": balance.Int64(),
		"movements":     payloads,
	})
}

type webhookBody struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// handleGatewayWebhook acknowledges every notification with 200. Failures
// are logged only: surfacing them would make the gateway retry forever
// against an error that a replayed notification cannot fix.
func (handler *httpHandler) handleGatewayWebhook(ctx *gin.Context) {
	topic, externalID := extractNotification(ctx)
	if !strings.HasPrefix(topic, "payment") || externalID == "" {
		ctx.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	if err := handler.service.ProcessGatewayWebhook(requestCtx, externalID); err != nil {
		handler.logger.Error("webhook processing failed",
			zap.String("external_payment_id", externalID),
			zap.Error(err))
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// extractNotification handles both notification shapes MercadoPago sends:
// query-string IPN (topic=payment&id=123) and the JSON webhook body
// (type=payment, data.id).
func extractNotification(ctx *gin.Context) (topic string, externalID string) {
	topic = ctx.Query("type")
	if topic == "" {
		topic = ctx.Query("topic")
	}
	externalID = ctx.Query("data.id")
	if externalID == "" {
		externalID = ctx.Query("id")
	}

	var body webhookBody
	if err := ctx.ShouldBindJSON(&body); err == nil {
		if topic == "" {
			topic = body.Type
		}
		if topic == "" {
			topic = body.Action
		}
		if externalID == "" {
			externalID = body.Data.ID
		}
	}
	return topic, externalID
}

func (handler *httpHandler) respondError(ctx *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, billing.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, billing.ErrInvalidArgument):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", err.Error()))
	case errors.Is(err, billing.ErrInvalidState):
		ctx.JSON(http.StatusConflict, errorResponse("invalid_state", err.Error()))
	case errors.Is(err, billing.ErrGatewayUnconfigured):
		ctx.JSON(http.StatusServiceUnavailable, errorResponse("gateway_unconfigured", err.Error()))
	default:
		handler.logger.Error(message, zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "request failed"))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

type invoicePayload struct {
	InvoiceID       string  `json:"invoice_id"`
	ReservationID   string  `json:"reservation_id"`
	ClientID        string  `json:"client_id"`
	Number          string  `json:"number"`
	SubtotalCents   int64   `json:"subtotal_cents"`
	TaxRatePercent  float64 `json:"tax_rate_percent"`
	TaxCents        int64   `json:"tax_cents"`
	TotalCents      int64   `json:"total_cents"`
	AmountPaidCents int64   `json:"amount_paid_cents"`
	Status          string  `json:"status"`
	IssuedAtUnixUTC int64   `json:"issued_at_unix_utc"`
	DueAtUnixUTC    int64   `json:"due_at_unix_utc"`
	Notes           string  `json:"notes,omitempty"`
}

func invoicePayloadFrom(invoice billing.Invoice) invoicePayload {
	return invoicePayload{
		InvoiceID:       invoice.ID.String(),
		ReservationID:   invoice.ReservationID.String(),
		ClientID:        invoice.ClientID.String(),
		Number:          invoice.Number,
		SubtotalCents:   invoice.Subtotal.Int64(),
		TaxRatePercent:  invoice.TaxRatePercent,
		TaxCents:        invoice.TaxAmount.Int64(),
		TotalCents:      invoice.Total.Int64(),
		AmountPaidCents: invoice.AmountPaid.Int64(),
		Status:          invoice.Status.String(),
		IssuedAtUnixUTC: invoice.IssuedAtUnixUTC,
		DueAtUnixUTC:    invoice.DueAtUnixUTC,
		Notes:           invoice.Notes,
	}
}

type paymentPayload struct {
	PaymentID         string `json:"payment_id"`
	InvoiceID         string `json:"invoice_id"`
	ClientID          string `json:"client_id"`
	AmountCents       int64  `json:"amount_cents"`
	Method            string `json:"method"`
	Reference         string `json:"reference,omitempty"`
	Status            string `json:"status"`
	Applied           bool   `json:"applied"`
	PreferenceID      string `json:"preference_id,omitempty"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
	CreatedAtUnixUTC  int64  `json:"created_at_unix_utc"`
}

func paymentPayloadFrom(payment billing.Payment) paymentPayload {
	return paymentPayload{
		PaymentID:         payment.ID.String(),
		InvoiceID:         payment.InvoiceID.String(),
		ClientID:          payment.ClientID.String(),
		AmountCents:       payment.Amount.Int64(),
		Method:            payment.Method.String(),
		Reference:         payment.Reference,
		Status:            payment.Status.String(),
		Applied:           payment.Applied,
		PreferenceID:      payment.Gateway.PreferenceID,
		ExternalPaymentID: payment.Gateway.ExternalPaymentID,
		CreatedAtUnixUTC:  payment.CreatedAtUnixUTC,
	}
}

type movementPayload struct {
	MovementID       string `json:"movement_id"`
	ClientID         string `json:"client_id"`
	Type             string `json:"type"`
	AmountCents      int64  `json:"amount_cents"`
	BalanceCents     int64  `json:"balance_cents"`
	Status           string `json:"status"`
	Reference        string `json:"reference,omitempty"`
	Description      string `json:"description,omitempty"`
	CreatedAtUnixUTC int64  `json:"created_at_unix_utc"`
}

func movementPayloadFrom(movement billing.AccountMovement) movementPayload {
	return movementPayload{
		MovementID:       movement.ID.String(),
		ClientID:         movement.ClientID.String(),
		Type:             movement.Type.String(),
		AmountCents:      movement.Amount.Int64(),
		BalanceCents:     movement.Balance.Int64(),
		Status:           movement.Status.String(),
		Reference:        movement.Reference,
		Description:      movement.Description,
		CreatedAtUnixUTC: movement.CreatedAtUnixUTC,
	}
}
