package domain

import (
	"fmt"
	"time"
)

// UserPreferences is the recipient profile fetched from the user service.
type UserPreferences struct {
	UserID     string `json:"user_id"`
	EmailOptIn bool   `json:"email_opt_in"`
	PushOptIn  bool   `json:"push_opt_in"`
	DailyLimit int    `json:"daily_limit"`
	Language   string `json:"language"`
}

// Allows reports whether the user has opted in to the given channel.
func (p UserPreferences) Allows(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailOptIn
	case ChannelPush:
		return p.PushOptIn
	default:
		return false
	}
}

type TemplateVersion struct {
	Version   int     `json:"version"`
	Subject   string  `json:"subject"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	Variables JSONMap `json:"variables"`
}

// Template is the message template fetched from the template service.
type Template struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Event    string            `json:"event"`
	Channel  []string          `json:"channel"`
	Language string            `json:"language"`
	IsActive bool              `json:"isActive"`
	Versions []TemplateVersion `json:"versions"`
}

// VersionFor selects the highest-numbered version usable for the channel.
// The template must be active and advertise the channel.
func (t Template) VersionFor(ch Channel) (TemplateVersion, error) {
	if !t.IsActive {
		return TemplateVersion{}, fmt.Errorf("%w: %s", ErrTemplateInactive, t.ID)
	}

	supported := false
	for _, c := range t.Channel {
		if c == string(ch) {
			supported = true
			break
		}
	}
	if !supported {
		return TemplateVersion{}, fmt.Errorf("%w: template %s, channel %s", ErrTemplateChannelMissing, t.ID, ch)
	}

	if len(t.Versions) == 0 {
		return TemplateVersion{}, fmt.Errorf("%w: template %s has no versions", ErrTemplateChannelMissing, t.ID)
	}

	best := t.Versions[0]
	for _, v := range t.Versions[1:] {
		if v.Version > best.Version {
			best = v
		}
	}
	return best, nil
}

// EnrichedPayload is the snapshot persisted on the notification once both
// remote fetches succeed.
func EnrichedPayload(prefs UserPreferences, tmpl Template, variables JSONMap) JSONMap {
	return JSONMap{
		"user_preferences": prefs,
		"template":         tmpl,
		"variables":        variables,
	}
}

// EnrichedMessage is the broker wire document. Its content is deterministic
// for a given notification so redeliveries stay idempotent downstream.
type EnrichedMessage struct {
	NotificationID  string          `json:"notification_id"`
	CorrelationID   string          `json:"correlation_id"`
	IdempotencyKey  string          `json:"idempotency_key"`
	UserID          string          `json:"user_id"`
	TemplateCode    string          `json:"template_code"`
	Channel         string          `json:"channel"`
	Priority        string          `json:"priority"`
	UserPreferences UserPreferences `json:"user_preferences"`
	Template        Template        `json:"template"`
	Variables       JSONMap         `json:"variables"`
	Metadata        JSONMap         `json:"metadata"`
	CreatedAt       time.Time       `json:"created_at"`
}

func NewEnrichedMessage(n *Notification, prefs UserPreferences, tmpl Template) EnrichedMessage {
	return EnrichedMessage{
		NotificationID:  n.ID.String(),
		CorrelationID:   n.CorrelationID,
		IdempotencyKey:  n.IdempotencyKey,
		UserID:          n.UserID,
		TemplateCode:    n.TemplateCode,
		Channel:         string(n.Channel),
		Priority:        string(n.Priority),
		UserPreferences: prefs,
		Template:        tmpl,
		Variables:       n.Variables,
		Metadata:        n.Metadata,
		CreatedAt:       n.CreatedAt,
	}
}
