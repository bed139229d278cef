// Package frontdesk is the HTTP client for the reservations service.
// Billing never owns reservation or room state; it reads stays from here
// and instructs the front desk to complete them.
package frontdesk

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

const defaultTimeout = 5 * time.Second

// Config holds the client endpoint and tuning.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements billing.FrontDesk over the reservations REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client from config.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("front desk base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type reservationResponse struct {
	ID                 string `json:"id"`
	ClientID           string `json:"client_id"`
	RoomID             string `json:"room_id"`
	Code               string `json:"code"`
	CheckInUnixUTC     int64  `json:"check_in_unix_utc"`
	CheckOutUnixUTC    int64  `json:"check_out_unix_utc"`
	PricePerNightCents int64  `json:"price_per_night_cents"`
}

// FindReservation fetches the reservation snapshot billing invoices from.
func (client *Client) FindReservation(ctx context.Context, reservationID billing.ReservationID) (billing.Reservation, error) {
	endpoint := client.baseURL + "/api/reservations/" + reservationID.String()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return billing.Reservation{}, fmt.Errorf("frontdesk: build request: %w", err)
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return billing.Reservation{}, fmt.Errorf("frontdesk: fetch reservation: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return billing.Reservation{}, billing.ErrReservationNotFound
	}
	if response.StatusCode != http.StatusOK {
		return billing.Reservation{}, fmt.Errorf("frontdesk: fetch reservation: status %d", response.StatusCode)
	}

	var payload reservationResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return billing.Reservation{}, fmt.Errorf("frontdesk: decode reservation: %w", err)
	}
	return mapReservation(payload)
}

// CompleteStay marks the reservation's stay finished on the front desk
// side. Billing calls this before posting check-out accounting.
func (client *Client) CompleteStay(ctx context.Context, completion billing.StayCompletion) error {
	payload := map[string]string{
		"user_id":        completion.UserID,
		"room_condition": completion.RoomCondition,
		"observations":   completion.Observations,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("frontdesk: encode completion: %w", err)
	}
	endpoint := client.baseURL + "/api/reservations/" + completion.ReservationID.String() + "/complete"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("frontdesk: build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("frontdesk: complete stay: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return billing.ErrReservationNotFound
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return fmt.Errorf("frontdesk: complete stay: status %d: %s", response.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

func mapReservation(payload reservationResponse) (billing.Reservation, error) {
	reservationID, err := billing.NewReservationID(payload.ID)
	if err != nil {
		return billing.Reservation{}, fmt.Errorf("frontdesk: %w", err)
	}
	clientID, err := billing.NewClientID(payload.ClientID)
	if err != nil {
		return billing.Reservation{}, fmt.Errorf("frontdesk: %w", err)
	}
	price, err := billing.NewPositiveAmount(payload.PricePerNightCents)
	if err != nil {
		return billing.Reservation{}, fmt.Errorf("frontdesk: %w", err)
	}
	return billing.Reservation{
		ID:                 reservationID,
		ClientID:           clientID,
		RoomID:             payload.RoomID,
		Code:               payload.Code,
		CheckIn:            time.Unix(payload.CheckInUnixUTC, 0).UTC(),
		CheckOut:           time.Unix(payload.CheckOutUnixUTC, 0).UTC(),
		PricePerNightCents: price,
	}, nil
}
