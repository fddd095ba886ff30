package notifier

import (
	"strings"
	"testing"
	"time"

	"regwatch/internal/domain/entity"
)

var detectedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testSource() *entity.Source {
	return &entity.Source{
		ID:           "src-1",
		URL:          "https://agency.example/recalls",
		Jurisdiction: "EU",
		Agency:       "RAPEX",
	}
}

func testChange(classified bool) *entity.ChangeRecord {
	rec := &entity.ChangeRecord{
		ID:         "chg-1",
		SourceID:   "src-1",
		SnapshotID: "snap-1",
		Kind:       entity.ChangeChanged,
		DetectedAt: detectedAt,
		SizeDelta:  -42,
	}
	if classified {
		rec.Classification = &entity.Classification{
			Category:   entity.CategoryElectricalSafety,
			Impact:     entity.ImpactCritical,
			Confidence: 0.87,
			Reasoning:  "Recall of lithium battery chargers due to fire risk.",
			Keywords:   []string{"battery", "recall"},
		}
	}
	return rec
}

func TestNewMessage(t *testing.T) {
	t.Run("classified change", func(t *testing.T) {
		msg := NewMessage(testSource(), testChange(true))

		if got, want := msg.Title(), "[CRITICAL] electrical_safety: RAPEX (EU)"; got != want {
			t.Errorf("Title() = %q, want %q", got, want)
		}
		body := msg.Body()
		if !strings.HasPrefix(body, "Recall of lithium battery chargers") {
			t.Errorf("Body() should start with the reasoning, got %q", body)
		}
		if !strings.Contains(body, "Keywords: battery, recall") {
			t.Errorf("Body() should list keywords, got %q", body)
		}
		if got, want := msg.Footer(), "changed • -42 bytes • confidence 87% • change chg-1"; got != want {
			t.Errorf("Footer() = %q, want %q", got, want)
		}
	})

	t.Run("unclassified change", func(t *testing.T) {
		msg := NewMessage(testSource(), testChange(false))

		if got, want := msg.Title(), "[UNCLASSIFIED] changed content: RAPEX (EU)"; got != want {
			t.Errorf("Title() = %q, want %q", got, want)
		}
		if got, want := msg.Body(), "changed change detected at https://agency.example/recalls"; got != want {
			t.Errorf("Body() = %q, want %q", got, want)
		}
		if strings.Contains(msg.Footer(), "confidence") {
			t.Errorf("Footer() should omit confidence, got %q", msg.Footer())
		}
	})

	t.Run("keywords are copied", func(t *testing.T) {
		rec := testChange(true)
		msg := NewMessage(testSource(), rec)
		rec.Classification.Keywords[0] = "mutated"
		if msg.Keywords[0] != "battery" {
			t.Errorf("message keywords alias the record")
		}
	})

	t.Run("source label falls back to id", func(t *testing.T) {
		src := testSource()
		src.Agency, src.Jurisdiction = "", ""
		msg := NewMessage(src, testChange(true))
		if !strings.HasSuffix(msg.Title(), ": src-1") {
			t.Errorf("Title() = %q", msg.Title())
		}
	})
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "hello", max: 10, want: "hello"},
		{name: "exact", in: "hello", max: 5, want: "hello"},
		{name: "cut", in: "hello world", max: 8, want: "hello..."},
		{name: "multibyte", in: "規制変更のお知らせです", max: 6, want: "規制変..."},
		{name: "suffix longer than max", in: "hello", max: 2, want: "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in, tt.max, "..."); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}
