// Package messenger implements the Lucien Messenger helper (§4.H):
// dynamic templated messaging with deferred delivery, grounded on
// original_source/src/modules/narrative/lucien_messenger.py's
// LucienMessenger.
package messenger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yabot/core/internal/events"
	"github.com/yabot/core/internal/store/document"
)

// ChatSender is the out-of-scope chat transport this service delivers
// rendered messages through — only the interface boundary is specified
// (lucien_messenger.py's _send_via_telegram is a simulated stand-in for
// the real Telegram Bot API call this core does not own).
type ChatSender interface {
	Send(ctx context.Context, userID, content string) error
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

// Service renders and delivers Lucien messages, persisting a Message
// record in the Document Store for every send or schedule.
type Service struct {
	Store  document.Store
	Sender ChatSender
	Bus    Publisher
	Logger Logger
	Clock  Clock
}

// New constructs a Service.
func New(store document.Store, sender ChatSender, bus Publisher, logger Logger) *Service {
	return &Service{Store: store, Sender: sender, Bus: bus, Logger: logger, Clock: time.Now}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *Service) resolveTemplate(ctx context.Context, template string) (string, error) {
	if !looksLikeTemplateID(template) {
		return template, nil
	}
	doc, err := s.Store.FindOne(ctx, document.CollectionNarrativeTemplates, document.Doc{"template_id": template})
	if err != nil {
		return "", fmt.Errorf("messenger: resolve template %s: %w", template, err)
	}
	if doc == nil {
		return "", fmt.Errorf("messenger: template not found: %s", template)
	}
	active, _ := doc["active"].(bool)
	if !active {
		return "", fmt.Errorf("messenger: template not active: %s", template)
	}
	content, _ := doc["content_template"].(string)
	return content, nil
}

func (s *Service) render(templateContent string, context map[string]any) string {
	full := map[string]string{
		"user_name": "querido",
		"bot_name":  "Lucien",
		"timestamp": s.now().Format("2006-01-02 15:04"),
	}
	if v, ok := context["user_name"].(string); ok && v != "" {
		full["user_name"] = v
	}
	for k, v := range context {
		if s, ok := v.(string); ok {
			full[k] = s
		}
	}
	return renderTemplate(templateContent, full)
}

func (s *Service) createMessageRecord(ctx context.Context, userID, templateID, templateContent, renderedContent string, contextData map[string]any, triggerEvent string, scheduledTime *time.Time, status Status) (Message, error) {
	now := s.now()
	msg := Message{
		MessageID:       "lucien_" + uuid.New().String(),
		UserID:          userID,
		TemplateID:      templateID,
		TemplateContent: templateContent,
		RenderedContent: renderedContent,
		ContextData:     contextData,
		TriggerEvent:    triggerEvent,
		ScheduledTime:   scheduledTime,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	doc := document.Doc{
		"message_id":       msg.MessageID,
		"user_id":          msg.UserID,
		"template_id":       msg.TemplateID,
		"template_content":  msg.TemplateContent,
		"rendered_content":  msg.RenderedContent,
		"context_data":      msg.ContextData,
		"trigger_event":     msg.TriggerEvent,
		"scheduled_time":    msg.ScheduledTime,
		"sent_time":         (*time.Time)(nil),
		"status":            string(msg.Status),
		"telegram_message_id": int64(0),
		"error_message":     "",
		"retry_count":       0,
		"created_at":        msg.CreatedAt,
		"updated_at":        msg.UpdatedAt,
	}
	if err := s.Store.InsertOne(ctx, document.CollectionLucienMessages, doc); err != nil {
		return Message{}, fmt.Errorf("messenger: create message record: %w", err)
	}
	return msg, nil
}

func (s *Service) updateStatus(ctx context.Context, messageID string, status Status, errorMessage string) {
	set := document.Doc{"status": string(status), "updated_at": s.now()}
	if status == StatusSent {
		set["sent_time"] = s.now()
	} else if status == StatusFailed && errorMessage != "" {
		set["error_message"] = errorMessage
	}
	if err := s.Store.UpdateOne(ctx, document.CollectionLucienMessages, document.Doc{"message_id": messageID}, document.Doc{"$set": set}); err != nil && s.Logger != nil {
		s.Logger.Error("messenger: failed to update message status", "message_id", messageID, "error", err)
	}
}

// Send resolves and renders template, sends it to userID via Sender, and
// persists the result, following lucien_messenger.py's send_message.
func (s *Service) Send(ctx context.Context, userID, template string, context map[string]any) error {
	content, err := s.resolveTemplate(ctx, template)
	if err != nil {
		return err
	}
	rendered := s.render(content, context)

	msg, err := s.createMessageRecord(ctx, userID, template, content, rendered, context, "manual_send", nil, StatusPending)
	if err != nil {
		return err
	}

	sendErr := s.Sender.Send(ctx, userID, rendered)
	if sendErr != nil {
		s.updateStatus(ctx, msg.MessageID, StatusFailed, sendErr.Error())
		s.publishFailed(ctx, userID, msg, sendErr.Error())
		return fmt.Errorf("messenger: send via chat transport: %w", sendErr)
	}

	s.updateStatus(ctx, msg.MessageID, StatusSent, "")
	s.publishSent(ctx, userID, msg)
	return nil
}

// Schedule persists a pending Message with scheduled_time set delay in
// the future, to be picked up by Scanner. Matches schedule_message.
func (s *Service) Schedule(ctx context.Context, userID, template string, delay time.Duration, context map[string]any) (Message, error) {
	content, err := s.resolveTemplate(ctx, template)
	if err != nil {
		return Message{}, err
	}
	scheduledTime := s.now().Add(delay)

	msg, err := s.createMessageRecord(ctx, userID, template, content, "", context, "scheduled_send", &scheduledTime, StatusPending)
	if err != nil {
		return Message{}, err
	}

	if s.Bus != nil {
		ev := events.New(func() time.Time { return s.now() }, events.TypeLucienMessageSent, userID, map[string]any{
			"message_id":     msg.MessageID,
			"scheduled_time": scheduledTime,
			"scheduled":      true,
		})
		if err := s.Bus.Publish(ctx, string(events.TypeLucienMessageSent), ev); err != nil && s.Logger != nil {
			s.Logger.Warn("messenger: failed to publish scheduled message event", "message_id", msg.MessageID, "error", err)
		}
	}
	return msg, nil
}

// CreateTemplate stores a reusable named message template, following
// create_template.
func (s *Service) CreateTemplate(ctx context.Context, t Template) error {
	return s.Store.InsertOne(ctx, document.CollectionNarrativeTemplates, document.Doc{
		"template_id":        t.TemplateID,
		"name":               t.Name,
		"category":           "lucien_message",
		"content_template":   t.ContentTemplate,
		"required_variables": t.RequiredVariables,
		"optional_variables": t.OptionalVariables,
		"default_values":     t.DefaultValues,
		"active":             true,
		"created_at":         s.now(),
		"updated_at":         s.now(),
	})
}

func (s *Service) publishSent(ctx context.Context, userID string, msg Message) {
	if s.Bus == nil {
		return
	}
	ev := events.New(func() time.Time { return s.now() }, events.TypeLucienMessageSent, userID, map[string]any{
		"message_id": msg.MessageID,
	})
	if err := s.Bus.Publish(ctx, string(events.TypeLucienMessageSent), ev); err != nil && s.Logger != nil {
		s.Logger.Warn("messenger: failed to publish lucien_message_sent", "message_id", msg.MessageID, "error", err)
	}
}

func (s *Service) publishFailed(ctx context.Context, userID string, msg Message, reason string) {
	if s.Bus == nil {
		return
	}
	ev := events.New(func() time.Time { return s.now() }, events.TypeLucienMessageFailed, userID, map[string]any{
		"message_id": msg.MessageID,
		"reason":     reason,
	})
	if err := s.Bus.Publish(ctx, string(events.TypeLucienMessageFailed), ev); err != nil && s.Logger != nil {
		s.Logger.Warn("messenger: failed to publish lucien_message_failed", "message_id", msg.MessageID, "error", err)
	}
}
