package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels or NATS.
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" mapstructure:"type"`

	// Channel settings
	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channel_buffer_size"`

	// NATS settings
	NATSUrl           string `json:"natsUrl" mapstructure:"nats_url"`
	NATSToken         string `json:"-" mapstructure:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"nats_reconnect_wait"` // seconds
}

// Standard topic names for the decision pipeline.
const (
	TopicEligibilityRequested  = "kestrel.eligibility.requested"
	TopicEligibilityDecided    = "kestrel.eligibility.decided"
	TopicCalculationCreated    = "kestrel.calculation.created"
	TopicCalculationApproved   = "kestrel.calculation.approved"
	TopicCalculationRejected   = "kestrel.calculation.rejected"
	TopicCalculationOverridden = "kestrel.calculation.overridden"
)

// EligibilityRequest is the payload carried on TopicEligibilityRequested.
// TenantID is only honored by global subscriptions.
type EligibilityRequest struct {
	RequestID     string         `json:"requestId,omitempty"`
	TenantID      string         `json:"tenantId,omitempty"`
	SubjectID     string         `json:"subjectId,omitempty"`
	Context       map[string]any `json:"context"`
	OverrideCodes []string       `json:"overrideCodes,omitempty"`
}

// CalculationTopic maps a history action to its bus topic.
func CalculationTopic(action EventAction) string {
	switch action {
	case EventApproved:
		return TopicCalculationApproved
	case EventRejected:
		return TopicCalculationRejected
	case EventOverridden:
		return TopicCalculationOverridden
	default:
		return TopicCalculationCreated
	}
}
