package hints

import (
	"context"
	"fmt"
	"time"

	"github.com/yabot/core/internal/events"
	"github.com/yabot/core/internal/store/document"
)

// Hint is the on-disk shape of a hint definition, stored in the items
// collection as type "hint" — grounded on
// original_source/src/modules/narrative/hint_system.py's Hint class and
// create_hint().
type Hint struct {
	HintID           string         `bson:"hint_id"`
	Content          string         `bson:"content"`
	FragmentID       string         `bson:"fragment_id"`
	UnlockConditions document.Doc   `bson:"unlock_conditions"`
	Metadata         map[string]any `bson:"metadata"`
}

// Subscriber is the subset of the Event Bus the hint system needs.
type Subscriber interface {
	Subscribe(ctx context.Context, topic, key string, handler func(ctx context.Context, ev events.Event) error) error
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

// Clock lets tests substitute a fixed time.
type Clock func() time.Time

// Service manages narrative hints: conditional unlocking triggered by
// reaction_detected events, storing unlocked hints as gamification items
// via Client, following hint_system.py's HintSystem precisely (§4.H).
type Service struct {
	Store  document.Store
	Client *Client
	Bus    Publisher
	Logger Logger
	Clock  Clock
}

// NewService constructs a Service. Call Start to subscribe to reaction_detected.
func NewService(store document.Store, client *Client, bus Publisher, logger Logger) *Service {
	return &Service{Store: store, Client: client, Bus: bus, Logger: logger, Clock: time.Now}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// Start subscribes the Service to reaction_detected on bus, matching
// hint_system.py's _register_event_handlers.
func (s *Service) Start(ctx context.Context, bus Subscriber) error {
	return bus.Subscribe(ctx, string(events.TypeReactionDetected), "hints.HandleReactionDetected", func(ctx context.Context, ev events.Event) error {
		return s.HandleReactionDetected(ctx, ev)
	})
}

// HandleReactionDetected checks whether the reaction should unlock any
// hints, following _handle_reaction_detected / _check_reaction_based_unlocks.
func (s *Service) HandleReactionDetected(ctx context.Context, ev events.Event) error {
	contentID, _ := ev.Payload["content_id"].(string)
	reactionType, _ := ev.Payload["reaction_type"].(string)
	if ev.UserID == "" || contentID == "" {
		if s.Logger != nil {
			s.Logger.Warn("hints: invalid reaction_detected event: missing user_id or content_id")
		}
		return nil
	}

	hints, err := s.Store.FindMany(ctx, document.CollectionItems, document.Doc{
		"type":                        "hint",
		"unlock_conditions.trigger":   "reaction",
		"unlock_conditions.content_id": contentID,
	})
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("hints: scan for reaction-based unlocks failed", "error", err)
		}
		return nil
	}

	for _, doc := range hints {
		hintID, _ := doc["hint_id"].(string)
		conditions, _ := doc["unlock_conditions"].(document.Doc)
		if required, ok := conditions["reaction_type"].(string); ok && required != "" && required != reactionType {
			continue
		}

		if err := s.UnlockHint(ctx, ev.UserID, hintID); err != nil && s.Logger != nil {
			s.Logger.Warn("hints: failed to unlock hint via reaction", "hint_id", hintID, "user_id", ev.UserID, "error", err)
		}
	}
	return nil
}

// UnlockHint unlocks hintID for userID: fetches the hint definition,
// posts it to the gamification API as a backpack item, and emits
// narrative_hint_unlocked. Matches hint_system.py's unlock_hint, minus
// the already-has-hint short-circuit (delegated to the gamification API,
// which is the single source of truth for a user's item collection).
func (s *Service) UnlockHint(ctx context.Context, userID, hintID string) error {
	doc, err := s.Store.FindOne(ctx, document.CollectionItems, document.Doc{"hint_id": hintID})
	if err != nil {
		return fmt.Errorf("hints: lookup hint %s: %w", hintID, err)
	}
	if doc == nil {
		return fmt.Errorf("hints: hint not found: %s", hintID)
	}

	content, _ := doc["content"].(string)
	fragmentID, _ := doc["fragment_id"].(string)
	metadata, _ := doc["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["hint_type"] = "narrative"
	metadata["unlock_source"] = "narrative_system"

	item := Item{
		UserID:      userID,
		ItemID:      "hint_" + hintID,
		Name:        "Pista: " + hintID,
		Description: content,
		Category:    "collectible",
		Rarity:      "common",
		Quantity:    1,
		Effects: Effects{
			Type:       "narrative_hint",
			HintID:     hintID,
			FragmentID: fragmentID,
		},
		Metadata: metadata,
	}

	if err := s.Client.UnlockItem(ctx, item); err != nil {
		return fmt.Errorf("hints: unlock item via gamification api: %w", err)
	}

	if s.Bus != nil {
		unlocked := events.New(func() time.Time { return s.now() }, events.TypeNarrativeHintUnlocked, userID, map[string]any{
			"hint_id":     hintID,
			"fragment_id": fragmentID,
		})
		if err := s.Bus.Publish(ctx, string(events.TypeNarrativeHintUnlocked), unlocked); err != nil && s.Logger != nil {
			s.Logger.Warn("hints: failed to publish narrative_hint_unlocked", "hint_id", hintID, "error", err)
		}
	}
	return nil
}

// CreateHint stores a new hint definition in the items collection,
// matching hint_system.py's create_hint.
func (s *Service) CreateHint(ctx context.Context, h Hint) error {
	return s.Store.InsertOne(ctx, document.CollectionItems, document.Doc{
		"hint_id":           h.HintID,
		"type":              "hint",
		"content":           h.Content,
		"fragment_id":       h.FragmentID,
		"unlock_conditions": h.UnlockConditions,
		"metadata":          h.Metadata,
		"created_at":        s.now(),
		"updated_at":        s.now(),
	})
}

// GetUserHints proxies to Client.UserItems filtered to narrative hints.
func (s *Service) GetUserHints(ctx context.Context, userID string) ([]Item, error) {
	return s.Client.UserItems(ctx, userID, "collectible", "narrative_hint")
}
