package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"regwatch/internal/domain/entity"
)

const maxKeywords = 20

// wireClassification is the only answer shape accepted from a model.
// Pointers tell a missing field apart from a zero value.
type wireClassification struct {
	Category   *string  `json:"category"`
	Impact     *string  `json:"impact"`
	Confidence *float64 `json:"confidence"`
	Reasoning  *string  `json:"reasoning"`
	Keywords   []string `json:"keywords"`
}

// decodeClassification parses a model answer strictly: one JSON object,
// no unknown fields, every required field present and valid. A Markdown
// code fence around the object is tolerated.
func decodeClassification(raw string) (entity.Classification, error) {
	body := stripCodeFence(strings.TrimSpace(raw))
	if body == "" {
		return entity.Classification{}, ErrEmptyResponse
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	var w wireClassification
	if err := dec.Decode(&w); err != nil {
		return entity.Classification{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return entity.Classification{}, fmt.Errorf("%w: trailing data after JSON object", ErrSchemaMismatch)
	}

	switch {
	case w.Category == nil:
		return entity.Classification{}, fmt.Errorf("%w: category missing", ErrSchemaMismatch)
	case w.Impact == nil:
		return entity.Classification{}, fmt.Errorf("%w: impact missing", ErrSchemaMismatch)
	case w.Confidence == nil:
		return entity.Classification{}, fmt.Errorf("%w: confidence missing", ErrSchemaMismatch)
	case w.Reasoning == nil:
		return entity.Classification{}, fmt.Errorf("%w: reasoning missing", ErrSchemaMismatch)
	}

	category, err := entity.ParseCategory(strings.ToLower(strings.TrimSpace(*w.Category)))
	if err != nil {
		return entity.Classification{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	impact, err := entity.ParseImpact(strings.ToLower(strings.TrimSpace(*w.Impact)))
	if err != nil {
		return entity.Classification{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if *w.Confidence < 0 || *w.Confidence > 1 {
		return entity.Classification{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrSchemaMismatch, *w.Confidence)
	}

	return entity.Classification{
		Category:   category,
		Impact:     impact,
		Confidence: *w.Confidence,
		Reasoning:  strings.TrimSpace(*w.Reasoning),
		Keywords:   normalizeKeywords(w.Keywords),
	}, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// normalizeKeywords lowercases, dedupes and sorts keywords.
func normalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	return out
}
