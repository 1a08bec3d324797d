package messenger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yabot/core/internal/events"
	"github.com/yabot/core/internal/store/document"
)

func TestScanner_ProcessDueSendsOnlyMessagesPastScheduledTime(t *testing.T) {
	svc, store, sender, pub := newTestService()
	now := time.Unix(6000, 0)
	svc.Clock = func() time.Time { return now }

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.NoError(t, store.InsertOne(context.Background(), document.CollectionLucienMessages, document.Doc{
		"message_id": "due1", "user_id": "u1", "status": string(StatusPending),
		"scheduled_time": &past, "rendered_content": "hello",
	}))
	require.NoError(t, store.InsertOne(context.Background(), document.CollectionLucienMessages, document.Doc{
		"message_id": "notdue1", "user_id": "u2", "status": string(StatusPending),
		"scheduled_time": &future, "rendered_content": "later",
	}))

	scanner := NewScanner(svc, time.Minute)
	processed := scanner.ProcessDue(context.Background())

	assert.Equal(t, 1, processed)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "hello", sender.sent[0])
	assert.True(t, pub.has(events.TypeLucienMessageSent))

	doc, err := store.FindOne(context.Background(), document.CollectionLucienMessages, document.Doc{"message_id": "due1"})
	require.NoError(t, err)
	assert.Equal(t, string(StatusSent), doc["status"])

	doc2, err := store.FindOne(context.Background(), document.CollectionLucienMessages, document.Doc{"message_id": "notdue1"})
	require.NoError(t, err)
	assert.Equal(t, string(StatusPending), doc2["status"])
}

func TestScanner_ProcessDueBumpsRetryCountOnSendFailure(t *testing.T) {
	svc, store, sender, _ := newTestService()
	sender.fail = true
	now := time.Unix(6000, 0)
	svc.Clock = func() time.Time { return now }

	past := now.Add(-time.Minute)
	require.NoError(t, store.InsertOne(context.Background(), document.CollectionLucienMessages, document.Doc{
		"message_id": "due2", "user_id": "u3", "status": string(StatusPending),
		"scheduled_time": &past, "rendered_content": "hi", "retry_count": 0,
	}))

	scanner := NewScanner(svc, time.Minute)
	processed := scanner.ProcessDue(context.Background())
	assert.Equal(t, 0, processed)

	doc, err := store.FindOne(context.Background(), document.CollectionLucienMessages, document.Doc{"message_id": "due2"})
	require.NoError(t, err)
	assert.Equal(t, string(StatusFailed), doc["status"])
	assert.Equal(t, 1, doc["retry_count"])
}
