// Package events defines the closed event taxonomy (§4.B) shared by the
// Event Bus, the Ordering Buffer and every service that publishes or
// subscribes. An Event is a discriminated union over the enumerated
// Type values, modeled as a typed string plus a loosely-typed payload map
// rather than one Go struct per event — the spec itself describes the
// source's payloads as duck-typed (§9); this keeps the union open to
// producers that add their own types while still giving this core a
// closed set to switch on.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type enumerates the event taxonomy consumed by this core. Producers
// outside this core may emit additional types; subscribers here ignore
// unrecognized types at subscribe-time with a warning (§9, enforced in
// eventbus.Bus.Subscribe against KnownTypes).
type Type string

const (
	TypeUserRegistered           Type = "user_registered"
	TypeUserStateUpdated         Type = "user_state_updated"
	TypeUserInteraction          Type = "user_interaction"
	TypeUserDeleted              Type = "user_deleted"
	TypeSubscriptionCreated      Type = "subscription_created"
	TypeSubscriptionUpdated      Type = "subscription_updated"
	TypeSubscriptionUpgraded     Type = "subscription_upgraded"
	TypeDecisionMade             Type = "decision_made"
	TypeContentViewed            Type = "content_viewed"
	TypeReactionDetected         Type = "reaction_detected"
	TypeBesitosAwarded           Type = "besitos_awarded"
	TypeBesitosTransaction       Type = "besitos_transaction"
	TypeNarrativeHintUnlocked    Type = "narrative_hint_unlocked"
	TypeNarrativeFragmentAccess  Type = "narrative_fragment_accessed"
	TypeNarrativeProgressUpdated Type = "narrative_progress_updated"
	TypeNarrativeCheckpoint      Type = "narrative_checkpoint_reached"
	TypeVIPAccessGranted         Type = "vip_access_granted"
	TypeLucienMessageSent        Type = "lucien_message_sent"
	TypeLucienMessageFailed      Type = "lucien_message_failed"
	TypeEventProcessingFailed    Type = "event_processing_failed"
	TypeQueueOverflow            Type = "queue_overflow"
	TypeBufferOverflow           Type = "buffer_overflow"
)

// KnownTypes lists every Type this core recognizes at subscribe-time.
var KnownTypes = map[Type]struct{}{
	TypeUserRegistered: {}, TypeUserStateUpdated: {}, TypeUserInteraction: {},
	TypeUserDeleted: {}, TypeSubscriptionCreated: {}, TypeSubscriptionUpdated: {},
	TypeSubscriptionUpgraded: {}, TypeDecisionMade: {}, TypeContentViewed: {},
	TypeReactionDetected: {}, TypeBesitosAwarded: {}, TypeBesitosTransaction: {},
	TypeNarrativeHintUnlocked: {}, TypeNarrativeFragmentAccess: {},
	TypeNarrativeProgressUpdated: {}, TypeNarrativeCheckpoint: {},
	TypeVIPAccessGranted: {}, TypeLucienMessageSent: {}, TypeLucienMessageFailed: {},
	TypeEventProcessingFailed: {}, TypeQueueOverflow: {}, TypeBufferOverflow: {},
}

// Event is the bus payload (§3).
type Event struct {
	EventID   string         `json:"event_id"`
	EventType Type           `json:"event_type"`
	UserID    string         `json:"user_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Clock returns the producer timestamp for a new event. Tests substitute
// a fixed clock to make ordering scenarios deterministic.
type Clock func() time.Time

// New stamps a fresh Event with a unique id and the given clock's time.
func New(clock Clock, eventType Type, userID string, payload map[string]any) Event {
	if clock == nil {
		clock = time.Now
	}
	return Event{
		EventID:   uuid.New().String(),
		EventType: eventType,
		UserID:    userID,
		Timestamp: clock(),
		Payload:   payload,
	}
}
