package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yabot/core/internal/apperr"
	"github.com/yabot/core/internal/events"
	"github.com/yabot/core/internal/ordering"
	"github.com/yabot/core/internal/store/document"
)

type recordingPublisher struct {
	published []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, ev events.Event) error {
	p.published = append(p.published, ev)
	return nil
}

func (p *recordingPublisher) has(t events.Type) bool {
	for _, ev := range p.published {
		if ev.EventType == t {
			return true
		}
	}
	return false
}

type fakeSubscriptionChecker struct{ active bool }

func (f fakeSubscriptionChecker) CheckSubscriptionStatus(_ context.Context, _ string) (bool, error) {
	return f.active, nil
}

type fakePlanLookup struct{ plan string }

func (f fakePlanLookup) CurrentPlan(_ context.Context, _ string) (string, error) { return f.plan, nil }

func newTestCoordinator(t *testing.T) (*Coordinator, *document.MemoryStore, *recordingPublisher) {
	t.Helper()
	store := document.NewMemoryStore()
	require.NoError(t, store.InsertOne(context.Background(), document.CollectionUsers, document.Doc{
		"user_id": "1", "besitos_balance": 0,
	}))
	pub := &recordingPublisher{}
	buf := ordering.New(10, nil)
	c := New(buf, store, fakeSubscriptionChecker{active: true}, fakePlanLookup{plan: "vip"}, pub, nil)
	c.Clock = func() time.Time { return time.Unix(3000, 0) }
	return c, store, pub
}

func TestCoordinator_ProcessBesitosTransactionRejectsOverdraft(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	err := c.ProcessBesitosTransaction(context.Background(), "1", -5, TransactionPurchase, "buy item")
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)
}

func TestCoordinator_ProcessBesitosTransactionRewardEmitsAwarded(t *testing.T) {
	c, store, pub := newTestCoordinator(t)
	require.NoError(t, c.ProcessBesitosTransaction(context.Background(), "1", 5, TransactionReward, "reaction"))

	doc, err := store.FindOne(context.Background(), document.CollectionUsers, document.Doc{"user_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, 5, doc["besitos_balance"])
	assert.True(t, pub.has(events.TypeBesitosTransaction))
	assert.True(t, pub.has(events.TypeBesitosAwarded))
}

func TestCoordinator_ValidateVIPAccessComposesSubscriptionAndPlan(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	isVIP, err := c.ValidateVIPAccess(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, isVIP)
}

func TestCoordinator_ProcessReactionAwardsBesitosForLove(t *testing.T) {
	c, store, pub := newTestCoordinator(t)
	require.NoError(t, c.ProcessReaction(context.Background(), "1", "post_7", "love"))

	doc, err := store.FindOne(context.Background(), document.CollectionUsers, document.Doc{"user_id": "1"})
	require.NoError(t, err)
	assert.Equal(t, 1, doc["besitos_balance"])
	assert.True(t, pub.has(events.TypeReactionDetected))
	assert.True(t, pub.has(events.TypeBesitosAwarded))
}

func TestCoordinator_ProcessUserInteractionDispatchesRegisteredHandler(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	var sawUserID string
	c.RegisterHandler("start", func(_ context.Context, userID string, _ map[string]any) (map[string]any, error) {
		sawUserID = userID
		return map[string]any{"ok": true}, nil
	})

	result, err := c.ProcessUserInteraction(context.Background(), "1", "start", map[string]any{"foo": "bar"})
	require.NoError(t, err)
	assert.Equal(t, "1", sawUserID)
	assert.Equal(t, true, result["ok"])
}
