// Package adoption re-checks the listing pages of long-missing animals. A dog
// that disappears from a scrape is usually adopted, but the scrape alone
// cannot tell adoption apart from a flaky page, so the detector revisits the
// stored adoption URL and reads the page itself.
package adoption

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rescueradar/rescueradar/internal/fetch"
	"github.com/rescueradar/rescueradar/internal/orgconfig"
	"github.com/rescueradar/rescueradar/internal/types"
)

// maxEvidenceBytes caps the stored evidence JSON. Over the cap the page
// excerpt is dropped and the record marked truncated.
const maxEvidenceBytes = 10_000

// excerptRunes bounds the page snippet kept around a marker match.
const excerptRunes = 300

// AnimalStore is the slice of the store the detector needs.
type AnimalStore interface {
	ListForAdoptionCheck(ctx context.Context, orgID int64, threshold int, interval time.Duration, limit int) ([]*types.Animal, error)
	UpdateAdoptionCheck(ctx context.Context, animalID int64, status types.Status, data []byte) error
}

// Fetcher fetches a listing page. *fetch.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Report summarizes one detector run over an organization.
type Report struct {
	OrgID    int64  `json:"-"`
	ConfigID string `json:"config_id"`
	Checked  int    `json:"checked"`
	Adopted  int    `json:"adopted"`
	Reserved int    `json:"reserved"`
	Unknown  int    `json:"unknown"`
	Errors   int    `json:"errors"`
}

// Detector runs adoption re-checks.
type Detector struct {
	animals AnimalStore
	fetcher Fetcher
	logger  *slog.Logger
}

func New(animals AnimalStore, fetcher Fetcher, logger *slog.Logger) *Detector {
	return &Detector{
		animals: animals,
		fetcher: fetcher,
		logger:  logger.With("component", "adoption"),
	}
}

// adoptedMarkers and reservedMarkers are matched against the lowercased page
// text. Phrases, not bare words, so navigation chrome does not trip them.
var adoptedMarkers = []string{
	"has been adopted",
	"found their forever home",
	"found her forever home",
	"found his forever home",
	"no longer available",
	"already adopted",
	"adopted!",
}

var reservedMarkers = []string{
	"adoption pending",
	"is reserved",
	"currently reserved",
	"on hold",
}

// Run re-checks the organization's stale animals per its adoption-check
// config. Every checked animal gets its adoption_checked_at updated, whatever
// the verdict, so the same dog is not re-fetched until the interval passes.
func (d *Detector) Run(ctx context.Context, orgID int64, cfg *orgconfig.Config) (*Report, error) {
	sc := cfg.Scraper
	interval := time.Duration(sc.AdoptionCheckConfig.CheckIntervalHours) * time.Hour

	candidates, err := d.animals.ListForAdoptionCheck(ctx, orgID,
		sc.AdoptionCheckThreshold, interval, sc.AdoptionCheckConfig.MaxChecksPerRun)
	if err != nil {
		return nil, err
	}

	report := &Report{OrgID: orgID, ConfigID: cfg.ConfigID}
	logger := d.logger.With("org", cfg.ConfigID)
	logger.Info("adoption check starting", "candidates", len(candidates))

	for _, animal := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		status, evidence := d.check(ctx, animal)
		report.Checked++
		switch status {
		case types.StatusAdopted:
			report.Adopted++
		case types.StatusReserved:
			report.Reserved++
		default:
			report.Unknown++
		}

		if err := d.animals.UpdateAdoptionCheck(ctx, animal.ID, status, evidence); err != nil {
			report.Errors++
			logger.Error("adoption check not recorded",
				"animal", animal.ExternalID, "error", err)
			continue
		}
		logger.Debug("adoption check recorded",
			"animal", animal.ExternalID, "status", status)
	}

	logger.Info("adoption check finished",
		"checked", report.Checked,
		"adopted", report.Adopted,
		"reserved", report.Reserved,
		"unknown", report.Unknown,
	)
	return report, nil
}

// evidence is the JSON blob stored alongside the verdict.
type evidence struct {
	CheckedURL    string `json:"checked_url"`
	StatusCode    int    `json:"status_code,omitempty"`
	MatchedMarker string `json:"matched_marker,omitempty"`
	Excerpt       string `json:"excerpt,omitempty"`
	Error         string `json:"error,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
}

// check fetches the animal's listing page and classifies it. A gone page is
// the strongest adoption signal these sites give.
func (d *Detector) check(ctx context.Context, animal *types.Animal) (types.Status, []byte) {
	ev := evidence{CheckedURL: animal.AdoptionURL}

	resp, err := d.fetcher.Get(ctx, animal.AdoptionURL)
	if err != nil {
		var fe *types.FetchError
		if errors.As(err, &fe) {
			ev.StatusCode = fe.StatusCode
			if fe.StatusCode == 404 || fe.StatusCode == 410 {
				return types.StatusAdopted, marshalEvidence(ev)
			}
		}
		ev.Error = err.Error()
		return types.StatusUnknown, marshalEvidence(ev)
	}

	ev.StatusCode = resp.StatusCode
	page := strings.ToLower(string(resp.Body))

	if marker, at := firstMarker(page, adoptedMarkers); marker != "" {
		ev.MatchedMarker = marker
		ev.Excerpt = excerpt(string(resp.Body), at)
		return types.StatusAdopted, marshalEvidence(ev)
	}
	if marker, at := firstMarker(page, reservedMarkers); marker != "" {
		ev.MatchedMarker = marker
		ev.Excerpt = excerpt(string(resp.Body), at)
		return types.StatusReserved, marshalEvidence(ev)
	}
	return types.StatusUnknown, marshalEvidence(ev)
}

func firstMarker(page string, markers []string) (string, int) {
	for _, m := range markers {
		if at := strings.Index(page, m); at >= 0 {
			return m, at
		}
	}
	return "", -1
}

// excerpt cuts a window around the match, on rune boundaries.
func excerpt(body string, at int) string {
	runes := []rune(body[:at])
	start := len(runes) - excerptRunes/2
	if start < 0 {
		start = 0
	}
	rest := []rune(body[at:])
	end := excerptRunes / 2
	if end > len(rest) {
		end = len(rest)
	}
	return strings.TrimSpace(string(runes[start:]) + string(rest[:end]))
}

// marshalEvidence enforces the size cap: past it, the excerpt goes first,
// then the error text, and the record is flagged truncated.
func marshalEvidence(ev evidence) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	if len(data) <= maxEvidenceBytes {
		return data
	}

	ev.Excerpt = ""
	ev.Truncated = true
	if data, err = json.Marshal(ev); err == nil && len(data) <= maxEvidenceBytes {
		return data
	}
	ev.Error = ""
	if data, err = json.Marshal(ev); err == nil {
		return data
	}
	return nil
}
