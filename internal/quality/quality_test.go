package quality

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescueradar/rescueradar/internal/types"
)

func fullAnimal() *types.Animal {
	return &types.Animal{
		Name:                      "Bella",
		Breed:                     "Golden Retriever Mix",
		AgeText:                   "2 years",
		Sex:                       types.SexFemale,
		Size:                      "medium",
		StandardizedBreed:         "Golden Retriever",
		BreedGroup:                "Sporting",
		StandardizedSize:          types.SizeMedium,
		AgeCategory:               types.AgeYoung,
		StandardizationConfidence: 1.0,
		PrimaryImageURL:           "https://cdn.example.org/bella.jpg",
		Properties: map[string]any{
			"description": strings.Repeat("A very sweet and playful dog. ", 12),
		},
	}
}

func TestScoreFullAnimal(t *testing.T) {
	b := Score(fullAnimal(), 3)
	assert.InDelta(t, WeightCompleteness, b.Completeness, 1e-9)
	assert.InDelta(t, WeightStandardization, b.Standardization, 1e-9)
	assert.InDelta(t, WeightRichContent, b.RichContent, 1e-9)
	assert.InDelta(t, WeightVisualAppeal, b.VisualAppeal, 1e-9)
	assert.InDelta(t, 100, b.Total, 1e-9)
}

func TestScoreBareAnimal(t *testing.T) {
	a := &types.Animal{
		Name:              "Rex",
		StandardizedBreed: "Unknown",
		AgeCategory:       types.AgeUnknown,
		Sex:               types.SexUnknown,
		PrimaryImageURL:   "https://cdn.example.org/rex.jpg",
	}
	b := Score(a, 0)
	assert.Equal(t, 0.0, b.Completeness)
	assert.Equal(t, 0.0, b.Standardization)
	assert.Equal(t, 0.0, b.RichContent)
	assert.InDelta(t, WeightVisualAppeal*0.6, b.VisualAppeal, 1e-9)
	assert.Less(t, b.Total, 10.0)
}

func TestStandardizationLowConfidenceHalved(t *testing.T) {
	a := fullAnimal()
	high := Score(a, 0).Standardization
	a.StandardizationConfidence = 0.2
	low := Score(a, 0).Standardization
	assert.InDelta(t, high/2, low, 1e-9)
}

func TestRichContentTiers(t *testing.T) {
	a := fullAnimal()

	a.Properties["description"] = ""
	assert.Equal(t, 0.0, Score(a, 0).RichContent)

	a.Properties["description"] = "Short note."
	assert.InDelta(t, WeightRichContent*0.3, Score(a, 0).RichContent, 1e-9)

	a.Properties["description"] = strings.Repeat("x", 100)
	assert.InDelta(t, WeightRichContent*0.6, Score(a, 0).RichContent, 1e-9)

	// An enriched description wins over the raw one.
	a.Properties["description"] = "Short."
	a.Properties["enriched_description"] = strings.Repeat("y", 400)
	assert.InDelta(t, WeightRichContent, Score(a, 0).RichContent, 1e-9)
}

func TestVisualAppealImageTiers(t *testing.T) {
	a := fullAnimal()
	assert.InDelta(t, WeightVisualAppeal*0.8, Score(a, 1).VisualAppeal, 1e-9)
	assert.InDelta(t, WeightVisualAppeal, Score(a, 3).VisualAppeal, 1e-9)

	a.PrimaryImageURL = ""
	assert.InDelta(t, WeightVisualAppeal*0.4, Score(a, 5).VisualAppeal, 1e-9)
}

func TestAverage(t *testing.T) {
	assert.Equal(t, 0.0, Average(nil))

	full := fullAnimal()
	full.Properties["image_urls"] = []string{"a.jpg", "b.jpg", "c.jpg"}
	got := Average([]*types.Animal{full, full})
	assert.InDelta(t, 100, got, 1e-9)
}

func TestReportWriters(t *testing.T) {
	report := &Report{
		GeneratedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		Orgs: []OrgReport{
			{
				ConfigID: "pets-in-turkey", Name: "Pets in Turkey",
				AnimalCount: 2, AverageScore: 87.5, Excellent: 1, Good: 1,
				CategoryAverages: Breakdown{Completeness: 36, Standardization: 27, RichContent: 16, VisualAppeal: 8.5, Total: 87.5},
			},
		},
	}

	var jsonBuf bytes.Buffer
	require.NoError(t, report.WriteJSON(&jsonBuf))
	assert.Contains(t, jsonBuf.String(), `"config_id": "pets-in-turkey"`)
	assert.Contains(t, jsonBuf.String(), `"average_score": 87.5`)

	var csvBuf bytes.Buffer
	require.NoError(t, report.WriteCSV(&csvBuf))
	lines := strings.Split(strings.TrimSpace(csvBuf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "config_id,name,animal_count"))
	assert.Contains(t, lines[1], "pets-in-turkey,Pets in Turkey,2,87.5,1,1,0,0")
}
