// Package user implements the User Service (§4.D): create/read/update/
// delete for the UserRecord that spans the Store Pair, including the
// read-time repair policy for Invariant U1 (a user_id present in one
// store must exist in both). No single file in the retrieved pack
// implements this service directly; it follows the Store Pair contract in
// spec.md precisely, with the teacher's pattern of one exported service
// type wrapping its store dependencies plus a Logger and an event
// publisher (modules/database/service.go's NewDatabaseService shape).
package user

import (
	"context"
	"fmt"
	"time"

	"github.com/yabot/core/internal/apperr"
	"github.com/yabot/core/internal/events"
	"github.com/yabot/core/internal/store"
	"github.com/yabot/core/internal/store/document"
	"github.com/yabot/core/internal/store/relational"
)

// Logger is the minimal logging dependency this package needs.
type Logger interface {
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// Publisher is the minimal event-emission dependency this package needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev events.Event) error
}

// PlatformUser is the inbound registration payload (§8 scenario 1).
type PlatformUser struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// NarrativeProgress is embedded in a UserContext's DS side (§3).
type NarrativeProgress struct {
	CurrentFragment string         `bson:"current_fragment" json:"current_fragment"`
	CompletedCount  int            `bson:"completed_count" json:"completed_count"`
	ChoicesMade     map[string]any `bson:"choices_made" json:"choices_made"`
}

// Preferences is embedded in a UserContext's DS side (§3).
type Preferences struct {
	Language      string `bson:"language" json:"language"`
	Notifications bool   `bson:"notifications" json:"notifications"`
	Theme         string `bson:"theme" json:"theme"`
}

// UserContext is the merged DS+RS view returned by GetContext, the Go
// shape of spec.md §4.D's "merged view of DS + RS".
type UserContext struct {
	UserID         string
	MenuContext    string
	Progress       NarrativeProgress
	Preferences    Preferences
	BesitosBalance int
	NarrativeLevel int
	CreatedAt      time.Time
	UpdatedAt      time.Time

	TelegramUserID int64
	Username       string
	FirstName      string
	LastName       string
	RegistrationDate time.Time
	LastLogin      time.Time
	IsActive       bool
}

// Clock lets tests substitute a fixed time.
type Clock func() time.Time

// Service implements the User Service operations.
type Service struct {
	Store     *store.Pair
	Bus       Publisher
	Logger    Logger
	Clock     Clock
}

// New constructs a Service.
func New(pair *store.Pair, bus Publisher, logger Logger) *Service {
	return &Service{Store: pair, Bus: bus, Logger: logger, Clock: time.Now}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

// Create registers a new user from a platform identity, writing both
// stores atomically and emitting user_registered. Returns
// apperr.ErrDuplicate if the telegram_user_id is already registered.
func (s *Service) Create(ctx context.Context, platform PlatformUser) (*UserContext, error) {
	userID := fmt.Sprintf("%d", platform.ID)

	if existing, err := s.Store.Relational.GetUserProfile(ctx, userID); err == nil && existing != nil {
		return nil, apperr.ErrDuplicate
	}

	now := s.now()
	doc := document.Doc{
		"user_id": userID,
		"current_state": document.Doc{
			"menu_context": "main_menu",
			"narrative_progress": document.Doc{
				"current_fragment": "start",
				"completed_count":  0,
				"choices_made":     document.Doc{},
			},
			"session_data": document.Doc{},
		},
		"preferences": document.Doc{
			"language":      platform.LanguageCode,
			"notifications": true,
			"theme":         "default",
		},
		"besitos_balance": 0,
		"narrative_level": 1,
		"view_history":    []any{},
		"created_at":      now,
		"updated_at":      now,
	}

	profile := &relational.UserProfile{
		UserID:           userID,
		TelegramUserID:   platform.ID,
		Username:         platform.Username,
		FirstName:        platform.FirstName,
		LastName:         platform.LastName,
		LanguageCode:     platform.LanguageCode,
		RegistrationDate: now,
		LastLogin:        now,
		IsActive:         true,
	}

	if err := s.Store.CreateUserAtomic(ctx, userID, doc, profile); err != nil {
		return nil, err
	}

	if s.Bus != nil {
		ev := events.New(func() time.Time { return now }, events.TypeUserRegistered, userID, map[string]any{
			"username": platform.Username,
		})
		if err := s.Bus.Publish(ctx, string(events.TypeUserRegistered), ev); err != nil && s.Logger != nil {
			s.Logger.Warn("user: failed to publish user_registered", "user_id", userID, "error", err)
		}
	}

	return &UserContext{
		UserID:           userID,
		MenuContext:      "main_menu",
		Progress:         NarrativeProgress{CurrentFragment: "start", ChoicesMade: map[string]any{}},
		Preferences:      Preferences{Language: platform.LanguageCode, Notifications: true, Theme: "default"},
		BesitosBalance:   0,
		NarrativeLevel:   1,
		CreatedAt:        now,
		UpdatedAt:        now,
		TelegramUserID:   platform.ID,
		Username:         platform.Username,
		FirstName:        platform.FirstName,
		LastName:         platform.LastName,
		RegistrationDate: now,
		LastLogin:        now,
		IsActive:         true,
	}, nil
}

// GetContext returns the merged DS+RS view for userID, repairing
// Invariant U1 if the two stores have diverged: a DS-only user gets a
// synthesized RS profile upserted; an RS-only user has its orphan row
// deleted. Repair never surfaces as an error — it is logged and applied
// transparently, per spec §7.
func (s *Service) GetContext(ctx context.Context, userID string) (*UserContext, error) {
	docRaw, err := s.Store.Document.FindOne(ctx, document.CollectionUsers, document.Doc{"user_id": userID})
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}

	profile, err := s.Store.Relational.GetUserProfile(ctx, userID)
	if err != nil && err != relational.ErrNotFound {
		return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}
	if err == relational.ErrNotFound {
		profile = nil
	}

	switch {
	case docRaw == nil && profile == nil:
		return nil, apperr.ErrNotFound

	case docRaw != nil && profile == nil:
		if s.Logger != nil {
			s.Logger.Warn("user: data_inconsistency, document exists without relational profile, repairing", "user_id", userID)
		}
		now := s.now()
		profile = &relational.UserProfile{
			UserID:           userID,
			RegistrationDate: now,
			LastLogin:        now,
			IsActive:         true,
		}
		if err := s.Store.Relational.UpsertUserProfile(ctx, profile); err != nil {
			return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err)
		}

	case docRaw == nil && profile != nil:
		if s.Logger != nil {
			s.Logger.Warn("user: data_inconsistency, relational profile exists without document, repairing", "user_id", userID)
		}
		if err := s.Store.Relational.DeleteUserProfile(ctx, userID); err != nil {
			return nil, apperr.Wrap(apperr.ErrStoreUnavailable, err)
		}
		return nil, apperr.ErrNotFound
	}

	return mergeContext(userID, docRaw, profile), nil
}

func mergeContext(userID string, doc document.Doc, profile *relational.UserProfile) *UserContext {
	uc := &UserContext{UserID: userID}
	if doc != nil {
		if cs, ok := doc["current_state"].(document.Doc); ok {
			if mc, ok := cs["menu_context"].(string); ok {
				uc.MenuContext = mc
			}
			if np, ok := cs["narrative_progress"].(document.Doc); ok {
				if cf, ok := np["current_fragment"].(string); ok {
					uc.Progress.CurrentFragment = cf
				}
			}
		}
		if p, ok := doc["preferences"].(document.Doc); ok {
			if lang, ok := p["language"].(string); ok {
				uc.Preferences.Language = lang
			}
		}
		if b, ok := doc["besitos_balance"].(int); ok {
			uc.BesitosBalance = b
		}
	}
	if profile != nil {
		uc.TelegramUserID = profile.TelegramUserID
		uc.Username = profile.Username
		uc.FirstName = profile.FirstName
		uc.LastName = profile.LastName
		uc.RegistrationDate = profile.RegistrationDate
		uc.LastLogin = profile.LastLogin
		uc.IsActive = profile.IsActive
	}
	return uc
}

// UpdateState applies a partial $set update to current_state and emits
// user_state_updated.
func (s *Service) UpdateState(ctx context.Context, userID string, newState document.Doc) error {
	existing, err := s.Store.Document.FindOne(ctx, document.CollectionUsers, document.Doc{"user_id": userID})
	if err != nil {
		return apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}
	if existing == nil {
		return apperr.ErrNotFound
	}

	update := document.Doc{"$set": document.Doc{"current_state": newState, "updated_at": s.now()}}
	if err := s.Store.Document.UpdateOne(ctx, document.CollectionUsers, document.Doc{"user_id": userID}, update); err != nil {
		return apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}

	if s.Bus != nil {
		ev := events.New(s.clockFn(), events.TypeUserStateUpdated, userID, map[string]any{"state": newState})
		if err := s.Bus.Publish(ctx, string(events.TypeUserStateUpdated), ev); err != nil && s.Logger != nil {
			s.Logger.Warn("user: failed to publish user_state_updated", "user_id", userID, "error", err)
		}
	}
	return nil
}

// UpdateProfile applies a partial patch to the RS profile row.
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch func(*relational.UserProfile)) error {
	profile, err := s.Store.Relational.GetUserProfile(ctx, userID)
	if err == relational.ErrNotFound {
		return apperr.ErrNotFound
	}
	if err != nil {
		return apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}

	patch(profile)
	if err := s.Store.Relational.UpsertUserProfile(ctx, profile); err != nil {
		return apperr.Wrap(apperr.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes userID from both stores and emits user_deleted. Per
// spec.md §4.D's "ok/partial" result, a failure on either store is
// reported but does not roll back a successful delete on the other —
// deletion is best-effort in both directions.
func (s *Service) Delete(ctx context.Context, userID string) error {
	docErr := s.Store.Document.DeleteOne(ctx, document.CollectionUsers, document.Doc{"user_id": userID})
	relErr := s.Store.Relational.DeleteUserProfile(ctx, userID)

	if docErr != nil || relErr != nil {
		if s.Logger != nil {
			s.Logger.Error("user: partial delete", "user_id", userID, "document_error", docErr, "relational_error", relErr)
		}
		return apperr.Wrap(apperr.ErrStoreUnavailable, fmt.Errorf("document_error=%v relational_error=%v", docErr, relErr))
	}

	if s.Bus != nil {
		ev := events.New(s.clockFn(), events.TypeUserDeleted, userID, nil)
		if err := s.Bus.Publish(ctx, string(events.TypeUserDeleted), ev); err != nil && s.Logger != nil {
			s.Logger.Warn("user: failed to publish user_deleted", "user_id", userID, "error", err)
		}
	}
	return nil
}

func (s *Service) clockFn() events.Clock {
	return func() time.Time { return s.now() }
}
