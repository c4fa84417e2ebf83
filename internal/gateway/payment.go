// Package gateway defines the narrow outbound interfaces the engine calls but
// does not implement: payment rails and notification delivery. Both are
// fire-and-confirm; callers must tolerate duplicate confirmations.
package gateway

import (
	"context"
	"log"
	"time"
)

// PaymentHandle references a payment initiated on the external rails.
type PaymentHandle struct {
	Reference   string
	AmountKES   float64
	InitiatedAt time.Time
}

// PaymentGateway moves escrow funds. InitiateDeposit captures the buyer's
// earnest deposit; ReleaseFinal pays the seller out on completion.
type PaymentGateway interface {
	InitiateDeposit(ctx context.Context, contractID string, amountKES float64, payerRef string) (PaymentHandle, error)
	ReleaseFinal(ctx context.Context, contractID string, amountKES float64, payeeRef string) (PaymentHandle, error)
}

// LogPaymentGateway is a development stand-in that records intents to the log
// and always succeeds.
type LogPaymentGateway struct {
	Logger *log.Logger
}

func (g *LogPaymentGateway) logger() *log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.Default()
}

func (g *LogPaymentGateway) InitiateDeposit(_ context.Context, contractID string, amountKES float64, payerRef string) (PaymentHandle, error) {
	g.logger().Printf("payment deposit contract=%s amount=%.2f payer=%s", contractID, amountKES, payerRef)
	return PaymentHandle{
		Reference:   "dep-" + contractID,
		AmountKES:   amountKES,
		InitiatedAt: time.Now().UTC(),
	}, nil
}

func (g *LogPaymentGateway) ReleaseFinal(_ context.Context, contractID string, amountKES float64, payeeRef string) (PaymentHandle, error) {
	g.logger().Printf("payment release contract=%s amount=%.2f payee=%s", contractID, amountKES, payeeRef)
	return PaymentHandle{
		Reference:   "fin-" + contractID,
		AmountKES:   amountKES,
		InitiatedAt: time.Now().UTC(),
	}, nil
}
