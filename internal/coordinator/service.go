// Package coordinator implements the Coordinator (§4.G): the single point
// that routes inbound interactions through the Ordering Buffer, enforces
// VIP gating and currency atomicity across services, and dispatches
// per-action handlers. No direct file in the retrieved pack implements
// this orchestration role; it follows spec.md §4.G precisely, composing
// the User/Subscription/Narrative services and the Ordering Buffer built
// earlier in this core.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yabot/core/internal/apperr"
	"github.com/yabot/core/internal/events"
	"github.com/yabot/core/internal/ordering"
	"github.com/yabot/core/internal/store/document"
)

// TransactionType enumerates the besitos transaction kinds (§4.G).
type TransactionType string

const (
	TransactionReward   TransactionType = "reward"
	TransactionPurchase TransactionType = "purchase"
	TransactionPenalty  TransactionType = "penalty"
	TransactionBonus    TransactionType = "bonus"
)

// SubscriptionChecker is the subset of the Subscription Service the
// Coordinator needs for VIP gating.
type SubscriptionChecker interface {
	CheckSubscriptionStatus(ctx context.Context, userID string) (bool, error)
}

// PlanLookup reports a user's current subscription plan, used alongside
// SubscriptionChecker to compose "active && plan==vip" per spec.md §4.G.
type PlanLookup interface {
	CurrentPlan(ctx context.Context, userID string) (string, error)
}

// Publisher is the minimal event-emission dependency this package needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev events.Event) error
}

// Logger is the minimal logging dependency this package needs.
type Logger interface {
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// ActionHandler processes one dispatched interaction and returns a result
// map consumed by the chat layer.
type ActionHandler func(ctx context.Context, userID string, interactionCtx map[string]any) (map[string]any, error)

// Clock lets tests substitute a fixed time.
type Clock func() time.Time

// Coordinator implements the operations in spec.md §4.G.
type Coordinator struct {
	Buffer       *ordering.Buffer
	Document     document.Store
	Subscription SubscriptionChecker
	Plans        PlanLookup
	Bus          Publisher
	Logger       Logger
	Clock        Clock

	handlers map[string]ActionHandler

	balanceLocksMu sync.Mutex
	balanceLocks   map[string]*sync.Mutex
}

// New constructs a Coordinator. RegisterHandler must be called for each
// action this deployment supports before ProcessUserInteraction is used.
func New(buffer *ordering.Buffer, doc document.Store, sub SubscriptionChecker, plans PlanLookup, bus Publisher, logger Logger) *Coordinator {
	return &Coordinator{
		Buffer:       buffer,
		Document:     doc,
		Subscription: sub,
		Plans:        plans,
		Bus:          bus,
		Logger:       logger,
		Clock:        time.Now,
		handlers:     make(map[string]ActionHandler),
		balanceLocks: make(map[string]*sync.Mutex),
	}
}

// RegisterHandler wires an action name (start/narrative/subscription/
// reaction/...) to its dispatch function.
func (c *Coordinator) RegisterHandler(action string, handler ActionHandler) {
	c.handlers[action] = handler
}

func (c *Coordinator) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock()
}

// ProcessUserInteraction creates a user_interaction event, adds it to the
// user's Ordering Buffer slot, then immediately drains that user's buffer
// through the registered action handlers — guaranteeing that two
// near-simultaneous interactions from the same user are processed in
// timestamp order even though this method may be called concurrently from
// many goroutines.
func (c *Coordinator) ProcessUserInteraction(ctx context.Context, userID, action string, interactionCtx map[string]any) (map[string]any, error) {
	ev := events.New(func() time.Time { return c.now() }, events.TypeUserInteraction, userID, map[string]any{
		"action":  action,
		"context": interactionCtx,
	})
	if err := c.Buffer.Add(userID, ev); err != nil {
		if c.Logger != nil {
			c.Logger.Warn("coordinator: ordering buffer overflow on interaction", "user_id", userID, "error", err)
		}
	}

	var result map[string]any
	var handlerErr error

	processed, failed := c.Buffer.Drain(ctx, userID, func(ctx context.Context, drained events.Event) error {
		drainedAction, _ := drained.Payload["action"].(string)
		drainedCtx, _ := drained.Payload["context"].(map[string]any)

		handler, ok := c.handlers[drainedAction]
		if !ok {
			return fmt.Errorf("coordinator: no handler registered for action %q", drainedAction)
		}

		r, err := handler(ctx, userID, drainedCtx)
		if drained.EventID == ev.EventID {
			result, handlerErr = r, err
		}
		return err
	}, ordering.DefaultMaxBufferSize)

	for _, f := range failed {
		if c.Bus != nil {
			failEv := events.New(func() time.Time { return c.now() }, events.TypeEventProcessingFailed, userID, map[string]any{
				"failed_event_type": f.EventType,
				"failed_event_id":   f.EventID,
			})
			_ = c.Bus.Publish(ctx, string(events.TypeEventProcessingFailed), failEv)
		}
	}
	_ = processed

	if handlerErr != nil {
		return nil, handlerErr
	}
	return result, nil
}

// ValidateVIPAccess composes Subscription.CheckSubscriptionStatus with a
// plan_type == vip check (§4.G), satisfying narrative.VIPChecker.
func (c *Coordinator) ValidateVIPAccess(ctx context.Context, userID string) (bool, error) {
	return c.IsVIP(ctx, userID)
}

// IsVIP implements narrative.VIPChecker.
func (c *Coordinator) IsVIP(ctx context.Context, userID string) (bool, error) {
	active, err := c.Subscription.CheckSubscriptionStatus(ctx, userID)
	if err != nil || !active {
		return false, err
	}
	if c.Plans == nil {
		return false, nil
	}
	plan, err := c.Plans.CurrentPlan(ctx, userID)
	if err != nil {
		return false, err
	}
	return plan == "vip", nil
}

func (c *Coordinator) lockFor(userID string) *sync.Mutex {
	c.balanceLocksMu.Lock()
	defer c.balanceLocksMu.Unlock()
	l, ok := c.balanceLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		c.balanceLocks[userID] = l
	}
	return l
}

// ProcessBesitosTransaction performs an atomic currency mutation: read the
// current balance, validate balance+delta >= 0 for purchase/penalty
// (Invariant U2), write the new balance under a per-user lock. Emits
// besitos_transaction, and for positive deltas on a reward transaction
// also besitos_awarded.
func (c *Coordinator) ProcessBesitosTransaction(ctx context.Context, userID string, delta int, txType TransactionType, description string) error {
	lock := c.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := c.Document.FindOne(ctx, document.CollectionUsers, document.Doc{"user_id": userID})
	if err != nil {
		return apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}
	if doc == nil {
		return apperr.ErrNotFound
	}

	balance := 0
	if b, ok := doc["besitos_balance"].(int); ok {
		balance = b
	} else if b64, ok := doc["besitos_balance"].(int64); ok {
		balance = int(b64)
	}

	newBalance := balance + delta
	if newBalance < 0 && (txType == TransactionPurchase || txType == TransactionPenalty) {
		return apperr.ErrInsufficientFunds
	}

	update := document.Doc{"$set": document.Doc{"besitos_balance": newBalance, "updated_at": c.now()}}
	if err := c.Document.UpdateOne(ctx, document.CollectionUsers, document.Doc{"user_id": userID}, update); err != nil {
		return apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}

	if c.Bus != nil {
		ev := events.New(func() time.Time { return c.now() }, events.TypeBesitosTransaction, userID, map[string]any{
			"delta":       delta,
			"type":        string(txType),
			"description": description,
			"new_balance": newBalance,
		})
		if err := c.Bus.Publish(ctx, string(events.TypeBesitosTransaction), ev); err != nil && c.Logger != nil {
			c.Logger.Warn("coordinator: failed to publish besitos_transaction", "user_id", userID, "error", err)
		}

		if delta > 0 && txType == TransactionReward {
			awarded := events.New(func() time.Time { return c.now() }, events.TypeBesitosAwarded, userID, map[string]any{"amount": delta})
			if err := c.Bus.Publish(ctx, string(events.TypeBesitosAwarded), awarded); err != nil && c.Logger != nil {
				c.Logger.Warn("coordinator: failed to publish besitos_awarded", "user_id", userID, "error", err)
			}
		}
	}

	return nil
}

// reactionsAwardingBesitos are the reaction types that trigger an
// automatic +1 reward transaction, per spec.md §4.G.
var reactionsAwardingBesitos = map[string]bool{"like": true, "love": true, "besito": true}

// ProcessReaction publishes reaction_detected and, for reaction types that
// award besitos, immediately runs the +1 reward transaction.
func (c *Coordinator) ProcessReaction(ctx context.Context, userID, contentID, reactionType string) error {
	if c.Bus != nil {
		ev := events.New(func() time.Time { return c.now() }, events.TypeReactionDetected, userID, map[string]any{
			"content_id":    contentID,
			"reaction_type": reactionType,
		})
		if err := c.Bus.Publish(ctx, string(events.TypeReactionDetected), ev); err != nil && c.Logger != nil {
			c.Logger.Warn("coordinator: failed to publish reaction_detected", "user_id", userID, "error", err)
		}
	}

	if reactionsAwardingBesitos[reactionType] {
		return c.ProcessBesitosTransaction(ctx, userID, 1, TransactionReward, fmt.Sprintf("reaction:%s", reactionType))
	}
	return nil
}
