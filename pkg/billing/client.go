package billing

import "fmt"

// Client carries the cached projection of a client's ledger. The balance is
// only ever changed through AddDebt/ReduceDebt, in the same transaction as
// the movement that justifies the change; it must always equal the balance
// snapshot on the client's latest completed movement.
type Client struct {
	ID                 ClientID
	Name               string
	Email              string
	OutstandingBalance AmountCents
}

// AddDebt increases the cached balance.
func (client *Client) AddDebt(amount AmountCents) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debt amount must be greater than zero", ErrInvalidArgument)
	}
	client.OutstandingBalance += amount
	return nil
}

// ReduceDebt decreases the cached balance. A balance below zero is an
// explicit client credit; it is not clamped.
func (client *Client) ReduceDebt(amount AmountCents) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debt amount must be greater than zero", ErrInvalidArgument)
	}
	client.OutstandingBalance -= amount
	return nil
}
