package gateway

import (
	"context"
	"log"
)

// EventType identifies what happened to the notified party.
type EventType string

const (
	EventOfferReceived     EventType = "offer_received"
	EventOfferCountered    EventType = "offer_countered"
	EventOfferAccepted     EventType = "offer_accepted"
	EventOfferDeclined     EventType = "offer_declined"
	EventOfferExpired      EventType = "offer_expired"
	EventDepositRequested  EventType = "deposit_requested"
	EventDepositReceived   EventType = "deposit_received"
	EventDeliveryConfirmed EventType = "delivery_confirmed"
	EventContractCompleted EventType = "contract_completed"
	EventContractCancelled EventType = "contract_cancelled"
	EventDisputeOpened     EventType = "dispute_opened"
)

// Notifier delivers marketplace events to parties over external channels
// (SMS, push). Delivery is best-effort from the engine's perspective.
type Notifier interface {
	Notify(ctx context.Context, partyID string, event EventType, payload map[string]string) error
}

// LogNotifier writes notifications to the log; used when no delivery channel
// is configured.
type LogNotifier struct {
	Logger *log.Logger
}

func (n *LogNotifier) Notify(_ context.Context, partyID string, event EventType, payload map[string]string) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify party=%s event=%s payload=%v", partyID, event, payload)
	return nil
}
