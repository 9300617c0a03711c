package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Subscriber is one person on the mailing list: the audience pool for
// broadcasts and the target of automations.
type Subscriber struct {
	gorm.Model

	Email string `gorm:"not null;uniqueIndex" json:"email"`
	Name  string `json:"name"`

	// Where the address came from: storefront, coaching, blog, import, etc.
	Source string `gorm:"index" json:"source"`
	Tags   string `json:"tags"` // comma separated

	// No default tag: an opted-out import (Subscribed=false) must persist
	// as written, not fall back to a column default.
	Subscribed     bool       `gorm:"index" json:"subscribed"`
	LastEmailedAt  *time.Time `json:"last_emailed_at"`
	EmailsReceived int        `gorm:"default:0" json:"emails_received"`
}

// TagList splits the comma-separated tags, trimming blanks.
func (s *Subscriber) TagList() []string {
	return SplitTags(s.Tags)
}

// HasAnyTag reports whether the subscriber carries at least one of the given
// tags. An empty filter matches everyone.
func (s *Subscriber) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	own := s.TagList()
	for _, want := range tags {
		for _, have := range own {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// SplitTags parses a comma-separated tag string.
func SplitTags(tags string) []string {
	if strings.TrimSpace(tags) == "" {
		return nil
	}
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Suppression is a do-not-send record: unsubscribes, hard bounces and spam
// complaints. The mail provider enforces its own list; these rows keep the
// local audience queries honest.
type Suppression struct {
	gorm.Model
	Email  string `gorm:"not null;index" json:"email"`
	Reason string `gorm:"not null" json:"reason"` // unsubscribe, bounce, complaint
	Source string `json:"source"`                 // link, provider, manual
}
