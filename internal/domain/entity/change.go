package entity

import (
	"fmt"
	"time"
)

// ChangeKind is the Change Detector verdict for a fetch.
type ChangeKind string

const (
	ChangeNew       ChangeKind = "new"
	ChangeChanged   ChangeKind = "changed"
	ChangeUnchanged ChangeKind = "unchanged"
)

// Impact is the business impact assigned by classification.
type Impact string

const (
	ImpactCritical      Impact = "critical"
	ImpactHigh          Impact = "high"
	ImpactMedium        Impact = "medium"
	ImpactLow           Impact = "low"
	ImpactInformational Impact = "informational"
)

var impactRank = map[Impact]int{
	ImpactInformational: 1,
	ImpactLow:           2,
	ImpactMedium:        3,
	ImpactHigh:          4,
	ImpactCritical:      5,
}

// ParseImpact validates an impact string.
func ParseImpact(s string) (Impact, error) {
	im := Impact(s)
	if _, ok := impactRank[im]; !ok {
		return "", fmt.Errorf("%w: unknown impact %q", ErrInvalidInput, s)
	}
	return im, nil
}

// AtLeast reports whether i is as severe as min or more.
func (i Impact) AtLeast(min Impact) bool {
	return impactRank[i] >= impactRank[min]
}

// ImpactsAtLeast lists the impacts as severe as min or more, most severe first.
func ImpactsAtLeast(min Impact) []Impact {
	out := make([]Impact, 0, len(impactRank))
	for _, im := range []Impact{ImpactCritical, ImpactHigh, ImpactMedium, ImpactLow, ImpactInformational} {
		if im.AtLeast(min) {
			out = append(out, im)
		}
	}
	return out
}

// Category is a compliance area.
type Category string

const (
	CategoryProductSafety        Category = "product_safety"
	CategoryElectricalSafety     Category = "electrical_safety"
	CategoryChemicalSafety       Category = "chemical_safety"
	CategoryFoodSafety           Category = "food_safety"
	CategoryMedicalDevice        Category = "medical_device"
	CategoryAutomotive           Category = "automotive"
	CategoryToysChildren         Category = "toys_children"
	CategoryTextiles             Category = "textiles"
	CategoryCosmetics            Category = "cosmetics"
	CategoryEnvironmental        Category = "environmental"
	CategoryPackaging            Category = "packaging"
	CategoryCybersecurity        Category = "cybersecurity"
	CategoryDataPrivacy          Category = "data_privacy"
	CategoryTelecommunications   Category = "telecommunications"
	CategoryEnergyEfficiency     Category = "energy_efficiency"
	CategoryConstruction         Category = "construction"
	CategoryMachinery            Category = "machinery"
	CategoryConsumerRights       Category = "consumer_rights"
	CategoryLabeling             Category = "labeling"
	CategoryImportExport         Category = "import_export"
	CategoryNotProductCompliance Category = "not_product_compliance"
)

// Categories lists every accepted category.
var Categories = []Category{
	CategoryProductSafety, CategoryElectricalSafety, CategoryChemicalSafety, CategoryFoodSafety,
	CategoryMedicalDevice, CategoryAutomotive, CategoryToysChildren, CategoryTextiles,
	CategoryCosmetics, CategoryEnvironmental, CategoryPackaging, CategoryCybersecurity,
	CategoryDataPrivacy, CategoryTelecommunications, CategoryEnergyEfficiency, CategoryConstruction,
	CategoryMachinery, CategoryConsumerRights, CategoryLabeling, CategoryImportExport,
	CategoryNotProductCompliance,
}

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
}

// Classification is the judgement attached to a ChangeRecord.
type Classification struct {
	Category     Category
	Impact       Impact
	Confidence   float64
	Reasoning    string
	Keywords     []string
	ClassifiedAt time.Time
}

// ChangeRecord is an immutable record of a detected content transition.
// Classification is filled in later and stays nil while classification is
// pending or has failed.
type ChangeRecord struct {
	ID                  string
	SourceID            string
	SnapshotID          string
	PreviousFingerprint *Fingerprint
	NewFingerprint      Fingerprint
	Kind                ChangeKind
	DetectedAt          time.Time
	Size                int64
	SizeDelta           int64
	Classification      *Classification
}

// NewChangeRecord derives the record for a committed snapshot.
// previousSize is ignored for new sources.
func NewChangeRecord(id string, snap *ContentSnapshot, previousSize int64, detectedAt time.Time) *ChangeRecord {
	rec := &ChangeRecord{
		ID:             id,
		SourceID:       snap.SourceID,
		SnapshotID:     snap.ID,
		NewFingerprint: snap.Fingerprint,
		Kind:           snap.Kind(),
		DetectedAt:     detectedAt,
		Size:           snap.Size,
		SizeDelta:      snap.Size,
	}
	if snap.PreviousFingerprint != nil {
		prev := *snap.PreviousFingerprint
		rec.PreviousFingerprint = &prev
		rec.SizeDelta = snap.Size - previousSize
	}
	return rec
}

// IsClassified reports whether classification has been recorded.
func (r *ChangeRecord) IsClassified() bool {
	return r.Classification != nil
}
