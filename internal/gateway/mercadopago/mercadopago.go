// Package mercadopago implements billing.Gateway against the MercadoPago
// checkout-preferences and payments REST API.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/solhotel/billing/pkg/billing"
)

const (
	defaultBaseURL = "https://api.mercadopago.com"
	defaultTimeout = 10 * time.Second

	preferencesPath = "/checkout/preferences"
	paymentsPath    = "/v1/payments/"

	defaultCurrencyID = "ARS"
)

// Config holds the adapter credentials and tuning.
type Config struct {
	AccessToken string
	BaseURL     string
	CurrencyID  string
	Timeout     time.Duration
}

// Client is the HTTP adapter. A client without an access token reports
// unconfigured and the service refuses gateway operations.
type Client struct {
	accessToken string
	baseURL     string
	currencyID  string
	httpClient  *http.Client
}

// New builds a Client from config, applying defaults.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	currencyID := cfg.CurrencyID
	if currencyID == "" {
		currencyID = defaultCurrencyID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		accessToken: strings.TrimSpace(cfg.AccessToken),
		baseURL:     baseURL,
		currencyID:  currencyID,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// IsConfigured reports whether credentials are present.
func (client *Client) IsConfigured() bool {
	return client.accessToken != ""
}

type preferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferencePayer struct {
	Email string `json:"email,omitempty"`
}

type preferenceRequest struct {
	Items             []preferenceItem `json:"items"`
	Payer             *preferencePayer `json:"payer,omitempty"`
	ExternalReference string           `json:"external_reference"`
	Metadata          json.RawMessage  `json:"metadata,omitempty"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type paymentResponse struct {
	ID                json.Number     `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	PaymentTypeID     string          `json:"payment_type_id"`
	PaymentMethodID   string          `json:"payment_method_id"`
	ExternalReference string          `json:"external_reference"`
	Metadata          json.RawMessage `json:"metadata"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
}

// CreatePaymentSession opens a hosted checkout preference for the requested
// amount and merchant reference.
func (client *Client) CreatePaymentSession(ctx context.Context, request billing.SessionRequest) (billing.PaymentSession, error) {
	if !client.IsConfigured() {
		return billing.PaymentSession{}, billing.ErrGatewayUnconfigured
	}
	payload := preferenceRequest{
		Items: []preferenceItem{{
			Title:      request.Title,
			Quantity:   1,
			UnitPrice:  float64(request.Amount.Int64()) / 100,
			CurrencyID: client.currencyID,
		}},
		ExternalReference: request.MerchantReference,
	}
	if request.PayerEmail != "" {
		payload.Payer = &preferencePayer{Email: request.PayerEmail}
	}
	if metadata := request.Metadata.String(); metadata != "{}" {
		payload.Metadata = json.RawMessage(metadata)
	}

	var response preferenceResponse
	if err := client.do(ctx, http.MethodPost, preferencesPath, payload, &response); err != nil {
		return billing.PaymentSession{}, err
	}
	return billing.PaymentSession{
		PreferenceID:     response.ID,
		InitPoint:        response.InitPoint,
		SandboxInitPoint: response.SandboxInitPoint,
	}, nil
}

// FetchPayment returns the authoritative state of an external payment.
func (client *Client) FetchPayment(ctx context.Context, externalPaymentID string) (billing.GatewaySnapshot, error) {
	if !client.IsConfigured() {
		return billing.GatewaySnapshot{}, billing.ErrGatewayUnconfigured
	}
	var response paymentResponse
	if err := client.do(ctx, http.MethodGet, paymentsPath+externalPaymentID, nil, &response); err != nil {
		return billing.GatewaySnapshot{}, err
	}
	metadata, err := billing.NewMetadataJSON(string(response.Metadata))
	if err != nil {
		// Non-object metadata from the gateway is dropped, not fatal.
		metadata, _ = billing.NewMetadataJSON("")
	}
	return billing.GatewaySnapshot{
		ExternalPaymentID: response.ID.String(),
		Status:            response.Status,
		StatusDetail:      response.StatusDetail,
		PaymentTypeID:     response.PaymentTypeID,
		PaymentMethodID:   response.PaymentMethodID,
		PayerEmail:        response.Payer.Email,
		MerchantReference: response.ExternalReference,
		Metadata:          metadata,
	}, nil
}

func (client *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("mercadopago: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("mercadopago: build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+client.accessToken)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("mercadopago: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return fmt.Errorf("mercadopago: %s %s: status %d: %s", method, path, response.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("mercadopago: decode response: %w", err)
	}
	return nil
}
