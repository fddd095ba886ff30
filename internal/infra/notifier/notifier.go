// Package notifier delivers change notifications to chat webhooks.
// Slack and Discord are supported; the no-op notifier stands in when a
// channel is disabled.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"regwatch/internal/domain/entity"
)

// Notifier sends one change notification. Implementations rate limit and
// retry internally and return an error only when delivery finally failed.
type Notifier interface {
	NotifyChange(ctx context.Context, msg *Message) error
}

// Message is the channel-independent content of a change notification.
type Message struct {
	ChangeID     string
	SourceID     string
	URL          string
	Agency       string
	Jurisdiction string
	Kind         entity.ChangeKind
	SizeDelta    int64
	DetectedAt   time.Time

	// Zero while the change is unclassified.
	Category   entity.Category
	Impact     entity.Impact
	Confidence float64
	Reasoning  string
	Keywords   []string
}

// NewMessage combines a source and one of its change records.
func NewMessage(src *entity.Source, rec *entity.ChangeRecord) *Message {
	msg := &Message{
		ChangeID:     rec.ID,
		SourceID:     rec.SourceID,
		URL:          src.URL,
		Agency:       src.Agency,
		Jurisdiction: src.Jurisdiction,
		Kind:         rec.Kind,
		SizeDelta:    rec.SizeDelta,
		DetectedAt:   rec.DetectedAt,
	}
	if c := rec.Classification; c != nil {
		msg.Category = c.Category
		msg.Impact = c.Impact
		msg.Confidence = c.Confidence
		msg.Reasoning = c.Reasoning
		msg.Keywords = append([]string(nil), c.Keywords...)
	}
	return msg
}

// Title reads like "[HIGH] product_safety: CPSC (US)".
func (m *Message) Title() string {
	impact := "UNCLASSIFIED"
	if m.Impact != "" {
		impact = strings.ToUpper(string(m.Impact))
	}
	category := string(m.Category)
	if category == "" {
		category = string(m.Kind) + " content"
	}
	return fmt.Sprintf("[%s] %s: %s", impact, category, m.sourceLabel())
}

// Body is the reasoning followed by the keyword list.
func (m *Message) Body() string {
	var b strings.Builder
	if m.Reasoning != "" {
		b.WriteString(m.Reasoning)
	} else {
		fmt.Fprintf(&b, "%s change detected at %s", m.Kind, m.URL)
	}
	if len(m.Keywords) > 0 {
		b.WriteString("\nKeywords: ")
		b.WriteString(strings.Join(m.Keywords, ", "))
	}
	return b.String()
}

// Footer carries the change metadata shown in small print.
func (m *Message) Footer() string {
	parts := []string{string(m.Kind), fmt.Sprintf("%+d bytes", m.SizeDelta)}
	if m.Category != "" {
		parts = append(parts, fmt.Sprintf("confidence %.0f%%", m.Confidence*100))
	}
	parts = append(parts, "change "+m.ChangeID)
	return strings.Join(parts, " • ")
}

func (m *Message) sourceLabel() string {
	switch {
	case m.Agency != "" && m.Jurisdiction != "":
		return fmt.Sprintf("%s (%s)", m.Agency, m.Jurisdiction)
	case m.Agency != "":
		return m.Agency
	case m.Jurisdiction != "":
		return m.Jurisdiction
	default:
		return m.SourceID
	}
}
