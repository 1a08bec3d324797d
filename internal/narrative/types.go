package narrative

import "go.mongodb.org/mongo-driver/v2/bson"

// Choice is one decision option inside a Fragment.
type Choice struct {
	ChoiceID       string         `bson:"choice_id"`
	Text           string         `bson:"text"`
	NextFragmentID string         `bson:"next_fragment_id"`
	Conditions     map[string]any `bson:"conditions"`
}

// Fragment is the DS narrative_fragments document (§3), trimmed to the
// fields this core reasons about.
type Fragment struct {
	FragmentID  string         `bson:"fragment_id"`
	Title       string         `bson:"title"`
	Text        string         `bson:"text"`
	VIPRequired bool           `bson:"vip_required"`
	Choices     []Choice       `bson:"choices"`
	Metadata    map[string]any `bson:"metadata"`
}

// Progress is the embedded DS narrative_progress object.
type Progress struct {
	CurrentFragment      string         `bson:"current_fragment"`
	CompletedFragments   []string       `bson:"completed_fragments"`
	ChoicesMade          map[string]any `bson:"choices_made"`
	CompletionPercentage float64        `bson:"completion_percentage"`
	Active               bool           `bson:"active"`
}

// defaultProgress is returned for a user with no progress recorded yet,
// per spec.md §4.F ("returns defaults (current_fragment='start')").
func defaultProgress() Progress {
	return Progress{
		CurrentFragment:    "start",
		CompletedFragments: []string{},
		ChoicesMade:        map[string]any{},
	}
}

// isCheckpoint reports whether a fragment's metadata marks it as a
// progression checkpoint, per the reference's _is_checkpoint: either an
// explicit is_checkpoint flag or a "checkpoint" tag.
func isCheckpoint(meta map[string]any) bool {
	if meta == nil {
		return false
	}
	if v, ok := meta["is_checkpoint"].(bool); ok && v {
		return true
	}
	var tags []any
	switch v := meta["tags"].(type) {
	case []any:
		tags = v
	case bson.A:
		tags = v
	}
	if tags != nil {
		for _, t := range tags {
			if s, ok := t.(string); ok && s == "checkpoint" {
				return true
			}
		}
	}
	return false
}

// completionPercentage mirrors the reference's simple 10%-per-fragment
// formula, capped at 100.
func completionPercentage(completed []string) float64 {
	pct := float64(len(completed)) * 10.0
	if pct > 100.0 {
		pct = 100.0
	}
	return pct
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// choiceWasMade reports whether choiceID appears anywhere in a user's
// choices_made history, regardless of which fragment it was made at.
func choiceWasMade(choicesMade map[string]any, choiceID string) bool {
	for _, v := range choicesMade {
		if s, ok := v.(string); ok && s == choiceID {
			return true
		}
	}
	return false
}
