// Package subscription implements the Subscription Service (§4.E): the
// plan/status state machine layered on the Relational Store's
// subscriptions table. No direct file in the retrieved pack implements
// this service; it follows spec.md §4.E's operations precisely, in the
// same service-wrapping-a-store shape as internal/user.
package subscription

import (
	"context"
	"time"

	"github.com/yabot/core/internal/events"
	"github.com/yabot/core/internal/store/relational"
)

// Publisher is the minimal event-emission dependency this package needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev events.Event) error
}

// Logger is the minimal logging dependency this package needs.
type Logger interface {
	Warn(msg string, keyvals ...interface{})
}

// Clock lets tests substitute a fixed time.
type Clock func() time.Time

// Service implements the subscription state machine.
type Service struct {
	Store  relational.Store
	Bus    Publisher
	Logger Logger
	Clock  Clock
}

// New constructs a Service.
func New(rel relational.Store, bus Publisher, logger Logger) *Service {
	return &Service{Store: rel, Bus: bus, Logger: logger, Clock: time.Now}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// CreateSubscription is idempotent on an existing active subscription;
// otherwise creates a new record starting now and ending after
// durationDays, emitting subscription_created.
func (s *Service) CreateSubscription(ctx context.Context, userID string, plan relational.SubscriptionPlan, durationDays int) (*relational.Subscription, error) {
	if durationDays <= 0 {
		durationDays = 30
	}

	existing, err := s.Store.GetSubscription(ctx, userID)
	if err != nil && err != relational.ErrNotFound {
		return nil, err
	}
	if existing != nil && existing.Status == relational.SubscriptionActive {
		return existing, nil
	}

	now := s.now()
	end := now.AddDate(0, 0, durationDays)
	sub := &relational.Subscription{
		UserID:    userID,
		PlanType:  plan,
		Status:    relational.SubscriptionActive,
		StartDate: now,
		EndDate:   &end,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeSubscriptionCreated, userID, map[string]any{"plan_type": string(plan)})
	return sub, nil
}

// CheckSubscriptionStatus reports whether userID currently has an active
// subscription, lazily transitioning an expired-but-still-marked-active
// record to expired and persisting that transition before returning.
func (s *Service) CheckSubscriptionStatus(ctx context.Context, userID string) (bool, error) {
	sub, err := s.Store.GetSubscription(ctx, userID)
	if err == relational.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if sub.Status == relational.SubscriptionActive && sub.EndDate != nil && !sub.EndDate.After(s.now()) {
		sub.Status = relational.SubscriptionExpired
		sub.UpdatedAt = s.now()
		if err := s.Store.UpsertSubscription(ctx, sub); err != nil {
			return false, err
		}
		return false, nil
	}

	return sub.Status == relational.SubscriptionActive, nil
}

// UpgradeSubscription sets a new plan and reactivates the subscription; if
// no record exists it delegates to CreateSubscription.
func (s *Service) UpgradeSubscription(ctx context.Context, userID string, newPlan relational.SubscriptionPlan) (*relational.Subscription, error) {
	sub, err := s.Store.GetSubscription(ctx, userID)
	if err == relational.ErrNotFound {
		return s.CreateSubscription(ctx, userID, newPlan, 30)
	}
	if err != nil {
		return nil, err
	}

	sub.PlanType = newPlan
	sub.Status = relational.SubscriptionActive
	sub.UpdatedAt = s.now()
	if err := s.Store.UpsertSubscription(ctx, sub); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeSubscriptionUpgraded, userID, map[string]any{"plan_type": string(newPlan)})
	return sub, nil
}

// CancelSubscription transitions the current record to cancelled.
func (s *Service) CancelSubscription(ctx context.Context, userID string) error {
	sub, err := s.Store.GetSubscription(ctx, userID)
	if err != nil {
		return err
	}

	sub.Status = relational.SubscriptionCancelled
	sub.UpdatedAt = s.now()
	if err := s.Store.UpsertSubscription(ctx, sub); err != nil {
		return err
	}

	s.publish(ctx, events.TypeSubscriptionUpdated, userID, map[string]any{"status": string(relational.SubscriptionCancelled)})
	return nil
}

func (s *Service) publish(ctx context.Context, t events.Type, userID string, payload map[string]any) {
	if s.Bus == nil {
		return
	}
	ev := events.New(func() time.Time { return s.now() }, t, userID, payload)
	if err := s.Bus.Publish(ctx, string(t), ev); err != nil && s.Logger != nil {
		s.Logger.Warn("subscription: failed to publish event", "event_type", t, "user_id", userID, "error", err)
	}
}
