package messenger

import (
	"context"
	"time"

	"github.com/yabot/core/internal/store/document"
)

// Scanner periodically promotes due scheduled messages to sent, the one
// ticker-driven goroutine spec.md §9 maps onto the source's per-message
// timers (process_scheduled_messages).
type Scanner struct {
	Service  *Service
	Interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewScanner constructs a Scanner polling at interval (lucien_messenger.py
// relies on external periodic invocation; this core owns the ticker).
func NewScanner(service *Service, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scanner{Service: service, Interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start runs the scan loop until Stop is called.
func (s *Scanner) Start(ctx context.Context) {
	go s.loop(ctx)
}

// Stop halts the scan loop and waits for it to exit.
func (s *Scanner) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scanner) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ProcessDue(ctx)
		}
	}
}

// ProcessDue scans pending messages whose scheduled_time has arrived,
// renders (if not already rendered), sends, and updates status —
// following process_scheduled_messages / _get_due_messages.
func (s *Scanner) ProcessDue(ctx context.Context) int {
	svc := s.Service
	due, err := svc.Store.FindMany(ctx, document.CollectionLucienMessages, document.Doc{"status": string(StatusPending)})
	if err != nil {
		if svc.Logger != nil {
			svc.Logger.Error("messenger: scan for due messages failed", "error", err)
		}
		return 0
	}

	now := svc.now()
	processed := 0

	for _, doc := range due {
		scheduledTime, ok := doc["scheduled_time"].(*time.Time)
		if !ok || scheduledTime == nil || scheduledTime.After(now) {
			continue
		}

		messageID, _ := doc["message_id"].(string)
		userID, _ := doc["user_id"].(string)
		rendered, _ := doc["rendered_content"].(string)
		if rendered == "" {
			templateContent, _ := doc["template_content"].(string)
			contextData, _ := doc["context_data"].(map[string]any)
			rendered = svc.render(templateContent, contextData)
		}

		sendErr := svc.Sender.Send(ctx, userID, rendered)
		if sendErr != nil {
			s.bumpRetry(ctx, messageID, sendErr.Error())
			svc.publishFailed(ctx, userID, Message{MessageID: messageID}, sendErr.Error())
			continue
		}

		svc.updateStatus(ctx, messageID, StatusSent, "")
		svc.publishSent(ctx, userID, Message{MessageID: messageID})
		processed++
	}
	return processed
}

func (s *Scanner) bumpRetry(ctx context.Context, messageID, errorMessage string) {
	svc := s.Service
	doc, err := svc.Store.FindOne(ctx, document.CollectionLucienMessages, document.Doc{"message_id": messageID})
	if err != nil || doc == nil {
		return
	}
	retryCount := 0
	if v, ok := doc["retry_count"].(int); ok {
		retryCount = v
	}
	_ = svc.Store.UpdateOne(ctx, document.CollectionLucienMessages, document.Doc{"message_id": messageID}, document.Doc{
		"$set": document.Doc{
			"status":        string(StatusFailed),
			"retry_count":   retryCount + 1,
			"error_message": errorMessage,
			"updated_at":    svc.now(),
		},
	})
}
