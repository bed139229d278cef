package billing

import (
	"context"
	"time"
)

// Reservation is the stay snapshot the front desk supplies to invoicing.
type Reservation struct {
	ID                 ReservationID
	ClientID           ClientID
	RoomID             string
	Code               string
	CheckIn            time.Time
	CheckOut           time.Time
	PricePerNightCents AmountCents
}

// Nights returns the whole nights between check-in and check-out, never
// below one.
func (reservation Reservation) Nights() int64 {
	nights := int64(reservation.CheckOut.Sub(reservation.CheckIn).Hours() / 24)
	if nights < 1 {
		return 1
	}
	return nights
}

// StayCompletion carries the check-out details the front desk records.
type StayCompletion struct {
	ReservationID ReservationID
	UserID        string
	RoomCondition string
	Observations  string
}

// FrontDesk is the reservation/room collaborator. Billing reads stays from
// it and instructs it to complete them; availability and room state are its
// concern alone.
type FrontDesk interface {
	FindReservation(ctx context.Context, reservationID ReservationID) (Reservation, error)
	CompleteStay(ctx context.Context, completion StayCompletion) error
}
