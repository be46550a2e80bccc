package quality

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/rescueradar/rescueradar/internal/store"
	"github.com/rescueradar/rescueradar/internal/types"
)

// OrgReport aggregates scores for one organization.
type OrgReport struct {
	ConfigID     string  `json:"config_id"`
	Name         string  `json:"name"`
	AnimalCount  int     `json:"animal_count"`
	AverageScore float64 `json:"average_score"`

	// Band counts: excellent >= 80, good >= 60, fair >= 40, poor < 40.
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Poor      int `json:"poor"`

	CategoryAverages Breakdown `json:"category_averages"`
}

// Report is one monitor run over the whole store.
type Report struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Orgs        []OrgReport `json:"organizations"`
}

// Monitor reads the store and produces per-organization reports.
type Monitor struct {
	store  *store.Store
	logger *slog.Logger
}

// NewMonitor creates a Monitor over the given store.
func NewMonitor(st *store.Store, logger *slog.Logger) *Monitor {
	return &Monitor{store: st, logger: logger.With("component", "quality")}
}

// Run scores every active organization, or just configID when non-empty.
func (m *Monitor) Run(ctx context.Context, configID string) (*Report, error) {
	var orgs []*types.Organization
	if configID != "" {
		org, err := m.store.Organizations.GetByConfigID(ctx, configID)
		if err != nil {
			return nil, err
		}
		orgs = []*types.Organization{org}
	} else {
		var err error
		orgs, err = m.store.Organizations.ListActive(ctx)
		if err != nil {
			return nil, err
		}
	}

	report := &Report{GeneratedAt: time.Now().UTC()}
	for _, org := range orgs {
		or, err := m.scoreOrg(ctx, org)
		if err != nil {
			return nil, err
		}
		report.Orgs = append(report.Orgs, or)
	}
	sort.Slice(report.Orgs, func(i, j int) bool {
		return report.Orgs[i].ConfigID < report.Orgs[j].ConfigID
	})
	return report, nil
}

func (m *Monitor) scoreOrg(ctx context.Context, org *types.Organization) (OrgReport, error) {
	or := OrgReport{ConfigID: org.ConfigID, Name: org.Name}

	animals, err := m.store.Animals.ListByOrganization(ctx, org.ID)
	if err != nil {
		return or, err
	}
	imageCounts, err := m.store.Images.VerifiedCounts(ctx, org.ID)
	if err != nil {
		return or, err
	}

	or.AnimalCount = len(animals)
	if len(animals) == 0 {
		return or, nil
	}

	var sum Breakdown
	for _, a := range animals {
		b := Score(a, imageCounts[a.ExternalID])
		sum.Completeness += b.Completeness
		sum.Standardization += b.Standardization
		sum.RichContent += b.RichContent
		sum.VisualAppeal += b.VisualAppeal
		sum.Total += b.Total

		switch {
		case b.Total >= 80:
			or.Excellent++
		case b.Total >= 60:
			or.Good++
		case b.Total >= 40:
			or.Fair++
		default:
			or.Poor++
		}
	}

	n := float64(len(animals))
	or.AverageScore = sum.Total / n
	or.CategoryAverages = Breakdown{
		Completeness:    sum.Completeness / n,
		Standardization: sum.Standardization / n,
		RichContent:     sum.RichContent / n,
		VisualAppeal:    sum.VisualAppeal / n,
		Total:           sum.Total / n,
	}

	m.logger.Info("organization scored",
		"org", org.ConfigID,
		"animals", or.AnimalCount,
		"average", or.AverageScore,
	)
	return or, nil
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteCSV renders the report as one row per organization.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"config_id", "name", "animal_count", "average_score",
		"excellent", "good", "fair", "poor",
		"avg_completeness", "avg_standardization", "avg_rich_content", "avg_visual_appeal",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, org := range r.Orgs {
		row := []string{
			org.ConfigID,
			org.Name,
			strconv.Itoa(org.AnimalCount),
			fmt.Sprintf("%.1f", org.AverageScore),
			strconv.Itoa(org.Excellent),
			strconv.Itoa(org.Good),
			strconv.Itoa(org.Fair),
			strconv.Itoa(org.Poor),
			fmt.Sprintf("%.1f", org.CategoryAverages.Completeness),
			fmt.Sprintf("%.1f", org.CategoryAverages.Standardization),
			fmt.Sprintf("%.1f", org.CategoryAverages.RichContent),
			fmt.Sprintf("%.1f", org.CategoryAverages.VisualAppeal),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
