package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"interview-service/internal/models"
	"interview-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSessionBooked publishes SessionBooked event
func (ep *EventPublisher) PublishSessionBooked(ctx context.Context, event *models.SessionBookedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishSessionStarted publishes SessionStarted event
func (ep *EventPublisher) PublishSessionStarted(ctx context.Context, event *models.SessionStartedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishSessionCompleted publishes SessionCompleted event
func (ep *EventPublisher) PublishSessionCompleted(ctx context.Context, event *models.SessionCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishSessionCancelled publishes SessionCancelled event
func (ep *EventPublisher) PublishSessionCancelled(ctx context.Context, event *models.SessionCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishSessionNoShow publishes SessionNoShow event
func (ep *EventPublisher) PublishSessionNoShow(ctx context.Context, event *models.SessionNoShowEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishRefundIssued publishes RefundIssued event
func (ep *EventPublisher) PublishRefundIssued(ctx context.Context, event *models.RefundIssuedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishPayoutCompleted publishes PayoutCompleted event
func (ep *EventPublisher) PublishPayoutCompleted(ctx context.Context, event *models.PayoutCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("payout-%s", event.PayoutID), event)
}

// PublishPayoutFailed publishes PayoutFailed event
func (ep *EventPublisher) PublishPayoutFailed(ctx context.Context, event *models.PayoutFailedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("payout-%s", event.PayoutID), event)
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session-%s", sessionID)
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	onPaymentConfirmed func(context.Context, *models.PaymentConfirmedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentConfirmed registers a handler for PaymentConfirmed events
func (eh *EventHandler) OnPaymentConfirmed(handler func(context.Context, *models.PaymentConfirmedEvent) error) {
	eh.onPaymentConfirmed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentConfirmed:
		if eh.onPaymentConfirmed != nil {
			var event models.PaymentConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentConfirmed event: %w", err)
			}
			return eh.onPaymentConfirmed(ctx, &event)
		}

	default:
		util.GetLogger().Debug("Unhandled event type",
			zap.String("event_type", baseEvent.EventType),
			zap.String("event_id", baseEvent.EventID))
	}

	return nil
}
