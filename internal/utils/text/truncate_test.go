package text_test

import (
	"testing"

	"regwatch/internal/utils/text"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		max     int
		want    string
		wantCut bool
	}{
		{name: "shorter", text: "recall", max: 10, want: "recall"},
		{name: "exact", text: "recall", max: 6, want: "recall"},
		{name: "ascii cut", text: "product recall", max: 7, want: "product", wantCut: true},
		{name: "multibyte not split", text: "Größenangabe", max: 3, want: "Grö", wantCut: true},
		{name: "bytes exceed but runes fit", text: "ÄÖÜ", max: 3, want: "ÄÖÜ"},
		{name: "emoji", text: "⚠️ alert", max: 1, want: "⚠", wantCut: true},
		{name: "zero disables", text: "anything", max: 0, want: "anything"},
		{name: "empty", text: "", max: 5, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cut := text.Truncate(tt.text, tt.max)
			if got != tt.want || cut != tt.wantCut {
				t.Errorf("Truncate(%q, %d) = (%q, %v), want (%q, %v)", tt.text, tt.max, got, cut, tt.want, tt.wantCut)
			}
			if text.CountRunes(got) > tt.max && tt.max > 0 {
				t.Errorf("result has %d runes, limit %d", text.CountRunes(got), tt.max)
			}
		})
	}
}
