// Package narrative implements the Narrative Service (§4.F): fragment
// retrieval with VIP gating, per-user progress tracking with checkpoint
// unlock validation, and content-view history. Grounded on
// original_source/src/modules/narrative/fragment_manager.py's get_fragment/
// get_user_progress/update_progress and decision_engine.py's choice
// resolution, translated into the one-way VIPChecker seam described in
// spec.md §9 (Narrative no longer calls back into the Coordinator to check
// VIP; the Coordinator implements VIPChecker and is injected in).
package narrative

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/yabot/core/internal/apperr"
	"github.com/yabot/core/internal/events"
	"github.com/yabot/core/internal/platform/cache"
	"github.com/yabot/core/internal/store/document"
)

// FragmentCacheTTL bounds how long a fragment lookup is served from cache
// before the Document Store is consulted again. Fragments are authored
// content that changes rarely, so a short TTL favors freshness after an
// edit over maximum hit rate.
const FragmentCacheTTL = 30 * time.Second

// VIPChecker reports whether a user currently holds VIP access. The
// Coordinator implements this; Narrative only depends on the interface.
type VIPChecker interface {
	IsVIP(ctx context.Context, userID string) (bool, error)
}

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

// Service implements the Narrative Service operations.
type Service struct {
	Store  document.Store
	VIP    VIPChecker
	Bus    Publisher
	Logger Logger
	Clock  Clock

	fragmentCache *cache.TTLCache[string, Fragment]
}

// New constructs a Service. Fragment lookups are served through a small
// bounded cache (FragmentCacheTTL) to spare the Document Store repeat
// reads of the same authored content within a user session.
func New(store document.Store, vip VIPChecker, bus Publisher, logger Logger) *Service {
	fc, _ := cache.New[string, Fragment](512)
	return &Service{Store: store, VIP: vip, Bus: bus, Logger: logger, Clock: time.Now, fragmentCache: fc}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func decodeFragment(doc document.Doc) (Fragment, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return Fragment{}, fmt.Errorf("narrative: marshal fragment doc: %w", err)
	}
	var f Fragment
	if err := bson.Unmarshal(raw, &f); err != nil {
		return Fragment{}, fmt.Errorf("narrative: unmarshal fragment: %w", err)
	}
	return f, nil
}

func decodeProgress(doc document.Doc) (Progress, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return Progress{}, fmt.Errorf("narrative: marshal progress doc: %w", err)
	}
	var p Progress
	if err := bson.Unmarshal(raw, &p); err != nil {
		return Progress{}, fmt.Errorf("narrative: unmarshal progress: %w", err)
	}
	return p, nil
}

// fetchFragment serves a fragment lookup from the bounded cache when
// present and unexpired, otherwise reads through to the Document Store
// and populates the cache for FragmentCacheTTL.
func (s *Service) fetchFragment(ctx context.Context, fragmentID string) (Fragment, error) {
	if s.fragmentCache != nil {
		if f, ok := s.fragmentCache.Get(fragmentID); ok {
			return f, nil
		}
	}

	doc, err := s.Store.FindOne(ctx, document.CollectionNarrativeFragments, document.Doc{"fragment_id": fragmentID})
	if err != nil {
		return Fragment{}, apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}
	if doc == nil {
		return Fragment{}, apperr.ErrNotFound
	}

	fragment, err := decodeFragment(doc)
	if err != nil {
		return Fragment{}, err
	}

	if s.fragmentCache != nil {
		s.fragmentCache.Set(fragmentID, fragment, FragmentCacheTTL)
	}
	return fragment, nil
}

// GetFragment retrieves fragmentID from the Document Store. If the
// fragment requires VIP access, userID is required and must pass the
// injected VIPChecker, otherwise apperr.ErrVIPAccessRequired is returned.
// A successful lookup with a non-empty userID emits
// narrative_fragment_accessed.
func (s *Service) GetFragment(ctx context.Context, fragmentID, userID string) (*Fragment, error) {
	fragment, err := s.fetchFragment(ctx, fragmentID)
	if err != nil {
		return nil, err
	}

	if fragment.VIPRequired {
		if userID == "" {
			return nil, apperr.ErrVIPAccessRequired
		}
		isVIP, err := s.VIP.IsVIP(ctx, userID)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err)
		}
		if !isVIP {
			return nil, apperr.ErrVIPAccessRequired
		}
	}

	if userID != "" && s.Bus != nil {
		ev := events.New(s.clockFn(), events.TypeNarrativeFragmentAccess, userID, map[string]any{
			"fragment_id":  fragmentID,
			"vip_required": fragment.VIPRequired,
		})
		if err := s.Bus.Publish(ctx, string(events.TypeNarrativeFragmentAccess), ev); err != nil && s.Logger != nil {
			s.Logger.Warn("narrative: failed to publish narrative_fragment_accessed", "user_id", userID, "error", err)
		}
	}

	return &fragment, nil
}

// GetUserProgress returns the embedded progress for userID, or the zero-
// value default (current_fragment="start") if the user has none yet.
func (s *Service) GetUserProgress(ctx context.Context, userID string) (Progress, error) {
	doc, err := s.Store.FindOne(ctx, document.CollectionUsers, document.Doc{"user_id": userID})
	if err != nil {
		return Progress{}, apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}
	if doc == nil {
		return defaultProgress(), nil
	}

	cs, ok := doc["current_state"].(document.Doc)
	if !ok {
		return defaultProgress(), nil
	}
	npRaw, ok := cs["narrative_progress"]
	if !ok {
		return defaultProgress(), nil
	}
	npDoc, ok := npRaw.(document.Doc)
	if !ok {
		return defaultProgress(), nil
	}
	return decodeProgress(npDoc)
}

// UpdateProgress, when the target fragment is marked as a checkpoint,
// validates its unlock conditions (required_fragments not yet completed,
// required_choices not yet made both fail closed with
// progression_denied). It then records the completed fragment and
// choice, recomputes completion_percentage, persists the progress, and
// emits narrative_progress_updated — plus narrative_checkpoint_reached
// for a checkpoint target.
func (s *Service) UpdateProgress(ctx context.Context, userID, nextFragmentID, choiceID string) error {
	target, err := s.fetchFragment(ctx, nextFragmentID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// A target fragment not present in the store is treated as an
			// unmet condition: fail closed rather than silently progressing.
			return apperr.ErrProgressionDenied
		}
		return err
	}

	progress, err := s.GetUserProgress(ctx, userID)
	if err != nil {
		return err
	}

	if isCheckpoint(target.Metadata) {
		var meta struct {
			Unlock struct {
				RequiredFragments []string `bson:"required_fragments"`
				RequiredChoices   []string `bson:"required_choices"`
			} `bson:"unlock_conditions"`
		}
		raw, err := bson.Marshal(target.Metadata)
		if err == nil {
			err = bson.Unmarshal(raw, &meta)
		}
		if err != nil {
			return fmt.Errorf("narrative: decode unlock conditions: %w", err)
		}
		for _, reqID := range meta.Unlock.RequiredFragments {
			if reqID != "" && !contains(progress.CompletedFragments, reqID) {
				return apperr.ErrProgressionDenied
			}
		}
		for _, reqChoice := range meta.Unlock.RequiredChoices {
			if reqChoice != "" && !choiceWasMade(progress.ChoicesMade, reqChoice) {
				return apperr.ErrProgressionDenied
			}
		}
	}

	currentFragment := progress.CurrentFragment
	if currentFragment != "" && currentFragment != "start" && !contains(progress.CompletedFragments, currentFragment) {
		progress.CompletedFragments = append(progress.CompletedFragments, currentFragment)
	}
	if choiceID != "" && currentFragment != "" {
		if progress.ChoicesMade == nil {
			progress.ChoicesMade = map[string]any{}
		}
		progress.ChoicesMade[currentFragment] = choiceID
	}

	progress.CurrentFragment = nextFragmentID
	progress.CompletionPercentage = completionPercentage(progress.CompletedFragments)
	progress.Active = true

	update := document.Doc{"$set": document.Doc{
		"current_state.narrative_progress": document.Doc{
			"current_fragment":     progress.CurrentFragment,
			"completed_fragments":  progress.CompletedFragments,
			"choices_made":         progress.ChoicesMade,
			"completion_percentage": progress.CompletionPercentage,
			"active":               true,
		},
		"updated_at": s.now(),
	}}
	if err := s.Store.UpdateOne(ctx, document.CollectionUsers, document.Doc{"user_id": userID}, update); err != nil {
		return apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}

	if s.Bus != nil {
		ev := events.New(s.clockFn(), events.TypeNarrativeProgressUpdated, userID, map[string]any{
			"fragment_id":           nextFragmentID,
			"completion_percentage": progress.CompletionPercentage,
		})
		if err := s.Bus.Publish(ctx, string(events.TypeNarrativeProgressUpdated), ev); err != nil && s.Logger != nil {
			s.Logger.Warn("narrative: failed to publish narrative_progress_updated", "user_id", userID, "error", err)
		}

		if isCheckpoint(target.Metadata) {
			cp := events.New(s.clockFn(), events.TypeNarrativeCheckpoint, userID, map[string]any{
				"checkpoint_fragment_id": nextFragmentID,
				"completion_percentage":  progress.CompletionPercentage,
			})
			if err := s.Bus.Publish(ctx, string(events.TypeNarrativeCheckpoint), cp); err != nil && s.Logger != nil {
				s.Logger.Warn("narrative: failed to publish narrative_checkpoint_reached", "user_id", userID, "error", err)
			}
		}
	}

	return nil
}

// TrackContentView appends a view_history entry and emits content_viewed.
func (s *Service) TrackContentView(ctx context.Context, userID, contentID, contentType string) error {
	update := document.Doc{"$push": document.Doc{
		"view_history": document.Doc{
			"content_id":   contentID,
			"content_type": contentType,
			"viewed_at":    s.now(),
		},
	}}
	if err := s.Store.UpdateOne(ctx, document.CollectionUsers, document.Doc{"user_id": userID}, update); err != nil {
		return apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}

	if s.Bus != nil {
		ev := events.New(s.clockFn(), events.TypeContentViewed, userID, map[string]any{
			"content_id": contentID, "content_type": contentType,
		})
		if err := s.Bus.Publish(ctx, string(events.TypeContentViewed), ev); err != nil && s.Logger != nil {
			s.Logger.Warn("narrative: failed to publish content_viewed", "user_id", userID, "error", err)
		}
	}
	return nil
}

// ResolveChoice finds choiceID within fragment.Choices — the Go
// translation of decision_engine.py's _find_choice_in_fragment linear
// scan.
func ResolveChoice(fragment Fragment, choiceID string) (Choice, bool) {
	for _, c := range fragment.Choices {
		if c.ChoiceID == choiceID {
			return c, true
		}
	}
	return Choice{}, false
}

// ChoiceLeadingTo returns the canonical choice among fragment.Choices that
// targets nextFragmentID. A well-authored fragment has at most one; if
// authoring error produces more than one choice pointing at the same
// target, the lowest ChoiceID is the canonical one, so callers (e.g. a
// "what choice got me here" audit trail) get a deterministic answer
// instead of depending on storage order.
func ChoiceLeadingTo(fragment Fragment, nextFragmentID string) (Choice, bool) {
	var matches []Choice
	for _, c := range fragment.Choices {
		if c.NextFragmentID == nextFragmentID {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return Choice{}, false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ChoiceID < matches[j].ChoiceID })
	return matches[0], true
}

func (s *Service) clockFn() events.Clock {
	return func() time.Time { return s.now() }
}
