package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yabot/core/internal/apperr"
	"github.com/yabot/core/internal/events"
	"github.com/yabot/core/internal/store"
	"github.com/yabot/core/internal/store/document"
	"github.com/yabot/core/internal/store/relational"
)

type recordingPublisher struct {
	published []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, ev events.Event) error {
	p.published = append(p.published, ev)
	return nil
}

type testLogger struct{}

func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}

func newTestService() (*Service, *recordingPublisher) {
	pair := store.New(document.NewMemoryStore(), relational.NewMemoryStore())
	pub := &recordingPublisher{}
	svc := New(pair, pub, testLogger{})
	svc.Clock = func() time.Time { return time.Unix(1000, 0) }
	return svc, pub
}

func TestService_CreateWritesBothStoresAndEmitsRegistered(t *testing.T) {
	svc, pub := newTestService()

	uc, err := svc.Create(context.Background(), PlatformUser{ID: 42, Username: "ana", FirstName: "Ana", LanguageCode: "es"})
	require.NoError(t, err)
	assert.Equal(t, "42", uc.UserID)
	assert.Equal(t, 0, uc.BesitosBalance)
	assert.Equal(t, 1, uc.NarrativeLevel)
	assert.Equal(t, "main_menu", uc.MenuContext)

	require.Len(t, pub.published, 1)
	assert.Equal(t, events.TypeUserRegistered, pub.published[0].EventType)
}

func TestService_CreateRejectsDuplicateTelegramUser(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, PlatformUser{ID: 42})
	require.NoError(t, err)

	_, err = svc.Create(ctx, PlatformUser{ID: 42})
	assert.ErrorIs(t, err, apperr.ErrDuplicate)
}

func TestService_GetContextRepairsDocumentOnlyUser(t *testing.T) {
	pair := store.New(document.NewMemoryStore(), relational.NewMemoryStore())
	svc := New(pair, nil, testLogger{})

	require.NoError(t, pair.Document.InsertOne(context.Background(), document.CollectionUsers, document.Doc{
		"user_id": "7",
		"current_state": document.Doc{
			"menu_context": "main_menu",
		},
	}))

	uc, err := svc.GetContext(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "7", uc.UserID)

	profile, err := pair.Relational.GetUserProfile(context.Background(), "7")
	require.NoError(t, err)
	assert.True(t, profile.IsActive)
}

func TestService_GetContextRepairsRelationalOnlyUserByDeletingOrphan(t *testing.T) {
	pair := store.New(document.NewMemoryStore(), relational.NewMemoryStore())
	svc := New(pair, nil, testLogger{})

	require.NoError(t, pair.Relational.UpsertUserProfile(context.Background(), &relational.UserProfile{UserID: "8"}))

	_, err := svc.GetContext(context.Background(), "8")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = pair.Relational.GetUserProfile(context.Background(), "8")
	assert.ErrorIs(t, err, relational.ErrNotFound)
}

func TestService_DeleteRemovesFromBothStoresAndEmits(t *testing.T) {
	svc, pub := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, PlatformUser{ID: 5})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "5"))
	_, err = svc.GetContext(ctx, "5")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	found := false
	for _, ev := range pub.published {
		if ev.EventType == events.TypeUserDeleted {
			found = true
		}
	}
	assert.True(t, found)
}
