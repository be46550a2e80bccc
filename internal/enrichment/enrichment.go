// Package enrichment rewrites scraped dog descriptions into clean adoption
// copy with an LLM. Scraped descriptions arrive as whatever the source site
// had: half-translated German, ALL CAPS pleas, shipping details. The enriched
// text lives next to the raw one in the properties blob; the raw description
// is never overwritten.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rescueradar/rescueradar/internal/batch"
	"github.com/rescueradar/rescueradar/internal/config"
	"github.com/rescueradar/rescueradar/internal/types"
)

// maxDescriptionRunes bounds the prompt; anything longer is a scrape bug.
const maxDescriptionRunes = 4_000

const systemPrompt = `You rewrite dog rescue listing descriptions for an adoption site.
Rewrite the user's text into 2-4 warm, factual sentences in English.
Keep every concrete fact (age, breed, temperament, health, location). Never invent facts.
Reply with the rewritten description only, no preamble.`

// AnimalSource is the slice of the store the service needs.
type AnimalSource interface {
	ListForEnrichment(ctx context.Context, limit int) ([]*types.Animal, error)
	EnrichmentSQL(animalID int64, enriched string) (string, []any)
}

// Rewriter produces the enriched description for one animal.
type Rewriter interface {
	Rewrite(ctx context.Context, name, breed, description string) (string, error)
}

// BatchProcessor commits the enriched rows. *batch.Processor implements it.
type BatchProcessor interface {
	Process(ctx context.Context, items []batch.Item, render batch.RenderFunc, progress batch.ProgressFunc) (*batch.Result, error)
}

// Alerter receives the failure-rate alarm. *telemetry.Sink implements it.
type Alerter interface {
	AlertEnrichmentFailureRate(rate, threshold float64)
}

// Report summarizes one enrichment run.
type Report struct {
	Candidates  int     `json:"candidates"`
	Enriched    int     `json:"enriched"`
	Failed      int     `json:"failed"`
	Committed   int     `json:"committed"`
	FailureRate float64 `json:"failure_rate"`
}

// Service drives list -> rewrite -> batch-commit.
type Service struct {
	animals  AnimalSource
	rewriter Rewriter
	proc     BatchProcessor
	alerter  Alerter
	cfg      config.EnrichmentConfig
	logger   *slog.Logger
}

func New(animals AnimalSource, rewriter Rewriter, proc BatchProcessor, alerter Alerter, cfg config.EnrichmentConfig, logger *slog.Logger) *Service {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 25
	}
	return &Service{
		animals:  animals,
		rewriter: rewriter,
		proc:     proc,
		alerter:  alerter,
		cfg:      cfg,
		logger:   logger.With("component", "enrichment"),
	}
}

type enrichedRow struct {
	animalID int64
	text     string
}

// Run enriches up to limit animals. Rewrite failures skip the animal and
// count toward the failure rate; past the configured threshold the run still
// commits what succeeded but raises the telemetry alarm, because a spiking
// rate usually means a broken prompt or an exhausted API key, not bad dogs.
func (s *Service) Run(ctx context.Context, limit int) (*Report, error) {
	animals, err := s.animals.ListForEnrichment(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &Report{Candidates: len(animals)}
	s.logger.Info("enrichment starting", "candidates", len(animals), "model", s.cfg.Model)
	if len(animals) == 0 {
		return report, nil
	}

	var items []batch.Item
	for _, animal := range animals {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		description := propertyString(animal, "description")
		enriched, err := s.rewriter.Rewrite(ctx, animal.Name, animal.Breed, description)
		if err != nil {
			report.Failed++
			s.logger.Warn("rewrite failed", "animal", animal.ExternalID, "error", err)
			continue
		}
		report.Enriched++
		items = append(items, batch.Item{
			ID:      animal.ExternalID,
			Payload: enrichedRow{animalID: animal.ID, text: enriched},
		})
	}

	report.FailureRate = float64(report.Failed) / float64(report.Candidates)
	if s.alerter != nil && s.cfg.FailureRateThreshold > 0 && report.FailureRate > s.cfg.FailureRateThreshold {
		s.alerter.AlertEnrichmentFailureRate(report.FailureRate, s.cfg.FailureRateThreshold)
	}

	res, err := s.proc.Process(ctx, items, s.render, nil)
	if res != nil {
		report.Committed = res.TotalProcessed - len(res.Errors)
	}
	if err != nil {
		return report, err
	}

	s.logger.Info("enrichment finished",
		"enriched", report.Enriched,
		"failed", report.Failed,
		"committed", report.Committed,
		"failure_rate", report.FailureRate,
	)
	return report, nil
}

func (s *Service) render(item batch.Item) (string, []any, error) {
	row, ok := item.Payload.(enrichedRow)
	if !ok {
		return "", nil, fmt.Errorf("unexpected payload %T", item.Payload)
	}
	sql, args := s.animals.EnrichmentSQL(row.animalID, row.text)
	return sql, args, nil
}

func propertyString(a *types.Animal, key string) string {
	if a.Properties == nil {
		return ""
	}
	v, _ := a.Properties[key].(string)
	return v
}

// AnthropicRewriter calls the Messages API.
type AnthropicRewriter struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicRewriter builds the production Rewriter. The key comes from
// config, which in turn reads ANTHROPIC_API_KEY.
func NewAnthropicRewriter(cfg config.EnrichmentConfig) (*AnthropicRewriter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("enrichment: api key not set")
	}
	return &AnthropicRewriter{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  anthropic.Model(cfg.Model),
	}, nil
}

func (r *AnthropicRewriter) Rewrite(ctx context.Context, name, breed, description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", fmt.Errorf("empty description")
	}
	if runes := []rune(description); len(runes) > maxDescriptionRunes {
		description = string(runes[:maxDescriptionRunes])
	}

	prompt := fmt.Sprintf("Dog name: %s\nBreed: %s\nListing text:\n%s", name, breed, description)
	msg, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: 500,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages api: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	enriched := strings.TrimSpace(sb.String())
	if enriched == "" {
		return "", fmt.Errorf("empty completion")
	}
	return enriched, nil
}
