// Package quality scores stored animals 0-100 across four weighted
// categories: completeness (40), standardization (30), rich content (20),
// visual appeal (10). The scorer is pure and read-only; it never touches the
// scrape hot path except to grade a finished session's items.
package quality

import (
	"strings"

	"github.com/rescueradar/rescueradar/internal/types"
)

// Category weights. They sum to 100.
const (
	WeightCompleteness    = 40.0
	WeightStandardization = 30.0
	WeightRichContent     = 20.0
	WeightVisualAppeal    = 10.0
)

// Description length tiers for the rich-content category.
const (
	descriptionFairLen = 80
	descriptionRichLen = 300
)

// Breakdown is one animal's score with its category parts.
type Breakdown struct {
	Completeness    float64 `json:"completeness"`
	Standardization float64 `json:"standardization"`
	RichContent     float64 `json:"rich_content"`
	VisualAppeal    float64 `json:"visual_appeal"`
	Total           float64 `json:"total"`
}

// Score grades one animal. imageCount is the number of verified gallery
// images beyond the primary; pass 0 when unknown.
func Score(a *types.Animal, imageCount int) Breakdown {
	b := Breakdown{
		Completeness:    completeness(a),
		Standardization: standardization(a),
		RichContent:     richContent(a),
		VisualAppeal:    visualAppeal(a, imageCount),
	}
	b.Total = b.Completeness + b.Standardization + b.RichContent + b.VisualAppeal
	return b
}

// completeness checks the optional source fields; the required ones passed
// validation long before scoring. Five fields, equal shares.
func completeness(a *types.Animal) float64 {
	fields := []bool{
		strings.TrimSpace(a.Breed) != "",
		strings.TrimSpace(a.AgeText) != "",
		a.Sex == types.SexMale || a.Sex == types.SexFemale,
		strings.TrimSpace(a.Size) != "" || a.StandardizedSize != "",
		propertyText(a, "description") != "",
	}
	present := 0
	for _, ok := range fields {
		if ok {
			present++
		}
	}
	return WeightCompleteness * float64(present) / float64(len(fields))
}

// standardization rewards resolved canonical fields, scaled by the
// standardizer's own confidence.
func standardization(a *types.Animal) float64 {
	parts := 0.0
	if a.StandardizedBreed != "" && a.StandardizedBreed != "Unknown" {
		parts += 0.4
	}
	if a.AgeCategory != "" && a.AgeCategory != types.AgeUnknown {
		parts += 0.3
	}
	if a.StandardizedSize != "" {
		parts += 0.3
	}
	// Confidence below 0.5 halves the category; the values are there but not
	// trustworthy.
	score := WeightStandardization * parts
	if a.StandardizationConfidence < 0.5 {
		score /= 2
	}
	return score
}

func richContent(a *types.Animal) float64 {
	desc := propertyText(a, "description")
	if enriched := propertyText(a, "enriched_description"); enriched != "" {
		desc = enriched
	}
	switch {
	case len(desc) >= descriptionRichLen:
		return WeightRichContent
	case len(desc) >= descriptionFairLen:
		return WeightRichContent * 0.6
	case desc != "":
		return WeightRichContent * 0.3
	default:
		return 0
	}
}

func visualAppeal(a *types.Animal, imageCount int) float64 {
	score := 0.0
	if strings.TrimSpace(a.PrimaryImageURL) != "" {
		score += WeightVisualAppeal * 0.6
	}
	switch {
	case imageCount >= 3:
		score += WeightVisualAppeal * 0.4
	case imageCount >= 1:
		score += WeightVisualAppeal * 0.2
	}
	return score
}

func propertyText(a *types.Animal, key string) string {
	if a.Properties == nil {
		return ""
	}
	if s, ok := a.Properties[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// Average scores a set of animals and returns the mean total, 0 for an empty
// set. The scrape log's data_quality_score.
func Average(animals []*types.Animal) float64 {
	if len(animals) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range animals {
		sum += Score(a, len(imageURLs(a))).Total
	}
	return sum / float64(len(animals))
}

// imageURLs pulls the gallery list out of the properties blob when the
// adapter stored one.
func imageURLs(a *types.Animal) []string {
	if a.Properties == nil {
		return nil
	}
	switch v := a.Properties["image_urls"].(type) {
	case []string:
		return v
	case []any:
		urls := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				urls = append(urls, s)
			}
		}
		return urls
	}
	return nil
}
