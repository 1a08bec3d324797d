package messenger

import "time"

// Status enumerates a Message's lifecycle, matching lucien_messenger.py's
// message_data["status"] values.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is the persisted record for one outbound Lucien message,
// grounded on lucien_messenger.py's _create_message_record.
type Message struct {
	MessageID          string         `bson:"message_id"`
	UserID             string         `bson:"user_id"`
	TemplateID         string         `bson:"template_id"`
	TemplateContent    string         `bson:"template_content"`
	RenderedContent    string         `bson:"rendered_content"`
	ContextData        map[string]any `bson:"context_data"`
	TriggerEvent       string         `bson:"trigger_event"`
	ScheduledTime      *time.Time     `bson:"scheduled_time"`
	SentTime           *time.Time     `bson:"sent_time"`
	Status             Status         `bson:"status"`
	TelegramMessageID  int64          `bson:"telegram_message_id"`
	ErrorMessage       string         `bson:"error_message"`
	RetryCount         int            `bson:"retry_count"`
	CreatedAt          time.Time      `bson:"created_at"`
	UpdatedAt          time.Time      `bson:"updated_at"`
}

// Template is a reusable named message body, stored in the
// narrative_templates collection (category lucien_message).
type Template struct {
	TemplateID         string         `bson:"template_id"`
	Name               string         `bson:"name"`
	ContentTemplate    string         `bson:"content_template"`
	RequiredVariables  []string       `bson:"required_variables"`
	OptionalVariables  []string       `bson:"optional_variables"`
	DefaultValues      map[string]any `bson:"default_values"`
	Active             bool           `bson:"active"`
}

// looksLikeTemplateID mirrors _resolve_template's heuristic: short
// strings containing none of $ { } are treated as an ID to resolve
// rather than literal content.
func looksLikeTemplateID(template string) bool {
	if len(template) >= 100 {
		return false
	}
	for _, r := range template {
		if r == '$' || r == '{' || r == '}' {
			return false
		}
	}
	return true
}
