package messenger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yabot/core/internal/events"
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

type fakeSender struct {
	fail bool
	sent []string
}

func (f *fakeSender) Send(_ context.Context, _ string, content string) error {
	if f.fail {
		return errors.New("simulated transport failure")
	}
	f.sent = append(f.sent, content)
	return nil
}

func newTestService() (*Service, *document.MemoryStore, *fakeSender, *recordingPublisher) {
	store := document.NewMemoryStore()
	sender := &fakeSender{}
	pub := &recordingPublisher{}
	svc := New(store, sender, pub, nil)
	svc.Clock = func() time.Time { return time.Unix(6000, 0) }
	return svc, store, sender, pub
}

func TestService_SendRendersAndDeliversDirectTemplate(t *testing.T) {
	svc, store, sender, pub := newTestService()

	err := svc.Send(context.Background(), "u1", "Hola $user_name!", map[string]any{"user_name": "Ana"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Hola Ana!", sender.sent[0])
	assert.True(t, pub.has(events.TypeLucienMessageSent))

	doc, err := store.FindOne(context.Background(), document.CollectionLucienMessages, document.Doc{"user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, string(StatusSent), doc["status"])
}

func TestService_SendResolvesTemplateIDFromStore(t *testing.T) {
	svc, store, sender, _ := newTestService()
	require.NoError(t, store.InsertOne(context.Background(), document.CollectionNarrativeTemplates, document.Doc{
		"template_id": "welcome", "content_template": "Bienvenido $user_name", "active": true,
	}))

	require.NoError(t, svc.Send(context.Background(), "u2", "welcome", map[string]any{"user_name": "Luis"}))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Bienvenido Luis", sender.sent[0])
}

func TestService_SendFailsWhenTemplateIDNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()
	err := svc.Send(context.Background(), "u3", "missing_template", nil)
	assert.Error(t, err)
}

func TestService_SendPublishesFailedEventOnTransportError(t *testing.T) {
	svc, store, sender, pub := newTestService()
	sender.fail = true

	err := svc.Send(context.Background(), "u4", "Hola $user_name!", map[string]any{"user_name": "Ana"})
	assert.Error(t, err)
	assert.True(t, pub.has(events.TypeLucienMessageFailed))

	doc, err2 := store.FindOne(context.Background(), document.CollectionLucienMessages, document.Doc{"user_id": "u4"})
	require.NoError(t, err2)
	assert.Equal(t, string(StatusFailed), doc["status"])
}

func TestService_ScheduleStoresPendingMessageWithScheduledTime(t *testing.T) {
	svc, store, sender, _ := newTestService()

	msg, err := svc.Schedule(context.Background(), "u5", "Hola $user_name!", time.Hour, map[string]any{"user_name": "Ana"})
	require.NoError(t, err)
	assert.Empty(t, sender.sent)

	doc, err := store.FindOne(context.Background(), document.CollectionLucienMessages, document.Doc{"message_id": msg.MessageID})
	require.NoError(t, err)
	assert.Equal(t, string(StatusPending), doc["status"])
	scheduledTime, ok := doc["scheduled_time"].(*time.Time)
	require.True(t, ok)
	assert.Equal(t, time.Unix(6000, 0).Add(time.Hour), *scheduledTime)
}
