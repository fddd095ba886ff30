package classifier

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"regwatch/internal/domain/entity"
	"regwatch/internal/usecase/monitor"
)

type keywordRule struct {
	category entity.Category
	terms    []string
}

// keywordRules are checked in order; on a tie in hit count the earlier rule
// wins. Terms match whole words; a trailing * also matches longer words.
var keywordRules = []keywordRule{
	{entity.CategoryMedicalDevice, []string{"medical device", "mdr", "ivdr", "510(k)", "fda clearance", "implant"}},
	{entity.CategoryFoodSafety, []string{"food contact", "food safety", "food additive", "allergen", "pathogen", "salmonella"}},
	{entity.CategoryToysChildren, []string{"toy", "toys", "children's product", "child care", "choking hazard", "pacifier"}},
	{entity.CategoryElectricalSafety, []string{"electrical", "low voltage", "shock hazard", "battery", "batteries", "charger", "iec 6*"}},
	{entity.CategoryChemicalSafety, []string{"reach regulation", "rohs", "chemical", "chemicals", "substance", "substances", "svhc", "lead content", "pfas", "phthalate"}},
	{entity.CategoryAutomotive, []string{"vehicle", "vehicles", "automotive", "motor vehicle", "tyre", "tire", "airbag"}},
	{entity.CategoryCosmetics, []string{"cosmetic", "cosmetics", "fragrance", "sunscreen"}},
	{entity.CategoryTextiles, []string{"textile", "flammability", "fabric", "apparel"}},
	{entity.CategoryCybersecurity, []string{"cybersecurity", "cyber resilience", "vulnerability", "connected device", "iot security"}},
	{entity.CategoryDataPrivacy, []string{"personal data", "privacy", "gdpr", "data protection"}},
	{entity.CategoryTelecommunications, []string{"radio equipment", "spectrum", "telecommunication", "fcc", "red directive"}},
	{entity.CategoryEnergyEfficiency, []string{"energy label", "ecodesign", "energy efficiency", "standby power"}},
	{entity.CategoryEnvironmental, []string{"environmental", "sustainability", "carbon", "emission", "deforestation"}},
	{entity.CategoryPackaging, []string{"packaging", "packaging waste", "recyclab*"}},
	{entity.CategoryConstruction, []string{"construction product", "building material", "cpr"}},
	{entity.CategoryMachinery, []string{"machinery", "industrial machine", "machine safety"}},
	{entity.CategoryLabeling, []string{"labeling", "labelling", "marking", "ce mark*", "warning label"}},
	{entity.CategoryImportExport, []string{"import", "imports", "importer*", "export", "exports", "exporter*", "customs", "tariff", "sanction"}},
	{entity.CategoryConsumerRights, []string{"consumer protection", "warranty", "unfair commercial", "consumer rights"}},
	{entity.CategoryProductSafety, []string{"product safety", "recall", "recalls", "hazard", "hazards", "injury", "injuries", "unsafe", "gpsr", "cpsc"}},
}

type impactRule struct {
	impact entity.Impact
	terms  []string
}

// impactRules run from most to least severe; the first hit decides.
var impactRules = []impactRule{
	{entity.ImpactCritical, []string{"recall", "recalls", "recalled", "ban", "bans", "banned", "prohibit*", "withdrawal", "immediate", "death", "serious risk"}},
	{entity.ImpactHigh, []string{"mandatory", "must comply", "deadline", "enforcement", "penalt*", "entry into force", "shall apply"}},
	{entity.ImpactMedium, []string{"amend*", "revision", "proposal", "draft", "consultation", "update"}},
	{entity.ImpactLow, []string{"guidance", "clarif*", "faq", "corrigendum"}},
}

// Keyword is a deterministic classifier that needs no external service. It
// is used when no provider key is configured.
type Keyword struct {
	now func() time.Time
}

func NewKeyword() *Keyword {
	return &Keyword{now: time.Now}
}

func (k *Keyword) Name() string { return string(ProviderKeyword) }

// Classify implements monitor.Classifier.
func (k *Keyword) Classify(_ context.Context, content string, _ monitor.SourceMetadata) entity.ClassificationResult {
	lower := strings.ToLower(content)
	if strings.TrimSpace(lower) == "" {
		return entity.ClassificationFailed(entity.FailurePermanent, CodeEmptyContent, "no content to classify")
	}

	best := -1
	var bestHits []string
	for i, rule := range keywordRules {
		hits := matchTerms(lower, rule.terms)
		if len(hits) > len(bestHits) {
			best, bestHits = i, hits
		}
	}

	if best < 0 {
		return entity.Classified(entity.Classification{
			Category:     entity.CategoryNotProductCompliance,
			Impact:       entity.ImpactInformational,
			Confidence:   0.3,
			Reasoning:    "no product compliance keywords found",
			Keywords:     []string{},
			ClassifiedAt: k.now().UTC(),
		})
	}

	impact := entity.ImpactInformational
	trigger := ""
	for _, rule := range impactRules {
		if hits := matchTerms(lower, rule.terms); len(hits) > 0 {
			impact, trigger = rule.impact, hits[0]
			break
		}
	}

	category := keywordRules[best].category
	reasoning := fmt.Sprintf("matched %d %s keywords", len(bestHits), category)
	if trigger != "" {
		reasoning += fmt.Sprintf("; %q suggests %s impact", trigger, impact)
	}

	return entity.Classified(entity.Classification{
		Category:     category,
		Impact:       impact,
		Confidence:   min(0.9, 0.4+0.1*float64(len(bestHits))),
		Reasoning:    reasoning,
		Keywords:     bestHits,
		ClassifiedAt: k.now().UTC(),
	})
}

// matchTerms returns the terms found in lower, without the * suffix, sorted.
func matchTerms(lower string, terms []string) []string {
	var hits []string
	for _, t := range terms {
		stem, prefix := strings.CutSuffix(t, "*")
		if containsWord(lower, stem, prefix) {
			hits = append(hits, stem)
		}
	}
	sort.Strings(hits)
	return hits
}

// containsWord finds term in s at a word start. Unless prefix is set the
// match must also end at a word boundary.
func containsWord(s, term string, prefix bool) bool {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if (start == 0 || !isWordRune(before)) && (prefix || end == len(s) || !isWordRune(after)) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
