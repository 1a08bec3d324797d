// Package relational implements the Relational Store side of the Store
// Pair (§4.A): user profiles and subscriptions, the structured rows that
// benefit from schema and constraints. Grounded on the teacher's
// DatabaseService connection lifecycle (modules/database/service.go),
// adapted from raw database/sql to gorm.io/gorm + the sqlite driver since
// this core needs row-shaped models (UserProfile, Subscription) rather
// than hand-written SQL.
package relational

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// UserProfile is the RS side of a UserRecord (§3).
type UserProfile struct {
	UserID         string `gorm:"primaryKey;column:user_id"`
	TelegramUserID int64  `gorm:"uniqueIndex;column:telegram_user_id"`
	Username       string
	FirstName      string
	LastName       string
	LanguageCode   string
	RegistrationDate time.Time
	LastLogin      time.Time
	IsActive       bool
}

func (UserProfile) TableName() string { return "user_profiles" }

// SubscriptionPlan and SubscriptionStatus enumerate §3's check constraints.
type SubscriptionPlan string

const (
	PlanFree    SubscriptionPlan = "free"
	PlanPremium SubscriptionPlan = "premium"
	PlanVIP     SubscriptionPlan = "vip"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Subscription is the RS row backing the Subscription Service (§4.E).
type Subscription struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;column:user_id"`
	PlanType  SubscriptionPlan
	Status    SubscriptionStatus `gorm:"index"`
	StartDate time.Time
	EndDate   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Subscription) TableName() string { return "subscriptions" }

// ErrNotFound is returned by lookups that find no row.
var ErrNotFound = errors.New("relational: not found")

// Store is the narrow interface the rest of this core depends on instead
// of *gorm.DB directly.
type Store interface {
	GetUserProfile(ctx context.Context, userID string) (*UserProfile, error)
	UpsertUserProfile(ctx context.Context, p *UserProfile) error
	DeleteUserProfile(ctx context.Context, userID string) error

	GetSubscription(ctx context.Context, userID string) (*Subscription, error)
	UpsertSubscription(ctx context.Context, s *Subscription) error

	Ping(ctx context.Context) error
	Close() error
}

type gormStore struct {
	db *gorm.DB
}

// Open connects to the sqlite database at path, creating it if absent, and
// runs auto-migration for the two tables this core owns.
func Open(path string, maxOpenConns, maxIdleConns int) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("relational: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("relational: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)

	if err := db.AutoMigrate(&UserProfile{}, &Subscription{}); err != nil {
		return nil, fmt.Errorf("relational: automigrate: %w", err)
	}

	return &gormStore{db: db}, nil
}

func (s *gormStore) GetUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	var p UserProfile
	err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("relational: get user profile: %w", err)
	}
	return &p, nil
}

func (s *gormStore) UpsertUserProfile(ctx context.Context, p *UserProfile) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("relational: upsert user profile: %w", err)
	}
	return nil
}

func (s *gormStore) DeleteUserProfile(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Delete(&UserProfile{}, "user_id = ?", userID).Error; err != nil {
		return fmt.Errorf("relational: delete user profile: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	var sub Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("relational: get subscription: %w", err)
	}
	return &sub, nil
}

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("relational: upsert subscription: %w", err)
	}
	return nil
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("relational: underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("relational: ping: %w", err)
	}
	return nil
}

func (s *gormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("relational: underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("relational: close: %w", err)
	}
	return nil
}
