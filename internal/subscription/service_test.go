package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yabot/core/internal/events"
	"github.com/yabot/core/internal/store/relational"
)

type recordingPublisher struct {
	published []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, ev events.Event) error {
	p.published = append(p.published, ev)
	return nil
}

func newTestService(now time.Time) (*Service, *recordingPublisher) {
	pub := &recordingPublisher{}
	svc := New(relational.NewMemoryStore(), pub, nil)
	svc.Clock = func() time.Time { return now }
	return svc, pub
}

func TestService_CreateSubscriptionIsIdempotentOnActive(t *testing.T) {
	svc, pub := newTestService(time.Unix(1000, 0))
	ctx := context.Background()

	sub1, err := svc.CreateSubscription(ctx, "1", relational.PlanPremium, 30)
	require.NoError(t, err)

	sub2, err := svc.CreateSubscription(ctx, "1", relational.PlanVIP, 30)
	require.NoError(t, err)

	assert.Equal(t, sub1.PlanType, sub2.PlanType, "existing active subscription should not be overwritten")
	assert.Len(t, pub.published, 1)
}

func TestService_CheckSubscriptionStatusExpiresStaleRecord(t *testing.T) {
	start := time.Unix(0, 0)
	svc, _ := newTestService(start)
	ctx := context.Background()

	_, err := svc.CreateSubscription(ctx, "2", relational.PlanFree, 1)
	require.NoError(t, err)

	svc.Clock = func() time.Time { return start.AddDate(0, 0, 2) }
	active, err := svc.CheckSubscriptionStatus(ctx, "2")
	require.NoError(t, err)
	assert.False(t, active)

	sub, err := svc.Store.GetSubscription(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, relational.SubscriptionExpired, sub.Status)
}

func TestService_UpgradeSubscriptionWithoutExistingRecordCreatesOne(t *testing.T) {
	svc, _ := newTestService(time.Unix(0, 0))
	ctx := context.Background()

	sub, err := svc.UpgradeSubscription(ctx, "3", relational.PlanVIP)
	require.NoError(t, err)
	assert.Equal(t, relational.PlanVIP, sub.PlanType)
	assert.Equal(t, relational.SubscriptionActive, sub.Status)
}

func TestService_CancelSubscription(t *testing.T) {
	svc, _ := newTestService(time.Unix(0, 0))
	ctx := context.Background()

	_, err := svc.CreateSubscription(ctx, "4", relational.PlanFree, 30)
	require.NoError(t, err)

	require.NoError(t, svc.CancelSubscription(ctx, "4"))
	sub, err := svc.Store.GetSubscription(ctx, "4")
	require.NoError(t, err)
	assert.Equal(t, relational.SubscriptionCancelled, sub.Status)
}
