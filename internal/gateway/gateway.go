// Package gateway defines the payment gateway contract and its HTTP-backed
// implementation. The rest of the system depends only on the Adapter
// interface; tests substitute a stub.
package gateway

import "context"

// Adapter is the external payment gateway collaborator. CreateOrder reserves
// an amount to be paid and returns the gateway-side order id. VerifySignature
// checks that a payment confirmation genuinely originated from the gateway.
type Adapter interface {
	CreateOrder(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (string, error)
	VerifySignature(orderID, paymentID, signature string) bool
}
