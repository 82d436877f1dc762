// Package enrich generates company descriptions from scraped website
// content. The Describer is the queue's job processor and also powers the
// one-shot CLI backfill.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/model"
	"github.com/sells-group/prospect-api/internal/registry"
	"github.com/sells-group/prospect-api/internal/resilience"
	"github.com/sells-group/prospect-api/internal/scrape"
	"github.com/sells-group/prospect-api/internal/store"
	"github.com/sells-group/prospect-api/pkg/anthropic"
)

const describeMaxTokens = 1024

var describeTemperature = 0.7

// Describer produces and persists company descriptions.
type Describer struct {
	store     store.Store
	scraper   scrape.Scraper
	completer anthropic.Client
	registry  *registry.Registry
	retry     resilience.RetryConfig
}

// NewDescriber wires a Describer. The scraper may be nil, in which case
// descriptions are generated from company metadata alone.
func NewDescriber(st store.Store, scraper scrape.Scraper, completer anthropic.Client, reg *registry.Registry) *Describer {
	return &Describer{
		store:     st,
		scraper:   scraper,
		completer: completer,
		registry:  reg,
		retry:     resilience.DefaultRetryConfig(),
	}
}

// Describe generates a description for the company, persists it, and
// returns the updated record.
func (d *Describer) Describe(ctx context.Context, companyID string) (*model.Company, error) {
	company, err := d.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: load company")
	}

	content, err := d.scrapeWebsite(ctx, company)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(d.registry.Prompt("describe"), company.Name, content)
	description, err := resilience.DoVal(ctx, d.retry, func(ctx context.Context) (string, error) {
		return d.completer.Complete(ctx, anthropic.CompletionRequest{
			System:      d.registry.Prompt("describe_system"),
			Prompt:      prompt,
			MaxTokens:   describeMaxTokens,
			Temperature: &describeTemperature,
		})
	})
	if err != nil {
		return nil, apperr.Provider(err, "enrich: generate description")
	}

	if err := d.store.UpdateDescription(ctx, company.ID, description); err != nil {
		return nil, eris.Wrap(err, "enrich: persist description")
	}
	company.Description = description
	return company, nil
}

// scrapeWebsite fetches bounded website text. A company without a website
// (or a Describer without a scraper) takes the metadata-only path with empty
// content; a scrape failure is fatal so the job ledger records it.
func (d *Describer) scrapeWebsite(ctx context.Context, company *model.Company) (string, error) {
	if d.scraper == nil || company.Website == "" {
		return "", nil
	}
	result, err := d.scraper.Scrape(ctx, company.Website)
	if err != nil {
		return "", eris.Wrapf(err, "enrich: scrape %s", company.Website)
	}
	return result.Text, nil
}

// Process implements the queue worker's job contract.
func (d *Describer) Process(ctx context.Context, job model.Job) (json.RawMessage, error) {
	if job.Type != model.JobTypeDescription {
		return nil, eris.Errorf("enrich: unsupported job type %q", job.Type)
	}
	company, err := d.Describe(ctx, job.CompanyID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(company)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: marshal result")
	}
	return payload, nil
}

// DescribeAll backfills descriptions for companies that lack one, paced by
// the limiter. It keeps going past individual failures and returns the
// number of companies described.
func (d *Describer) DescribeAll(ctx context.Context, batchSize int, limiter *rate.Limiter) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	described := 0
	for {
		companies, err := d.store.CompaniesWithoutDescription(ctx, batchSize)
		if err != nil {
			return described, eris.Wrap(err, "enrich: list backfill batch")
		}
		if len(companies) == 0 {
			return described, nil
		}
		batchDescribed := 0
		for _, company := range companies {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return described, eris.Wrap(err, "enrich: backfill interrupted")
				}
			}
			if _, err := d.Describe(ctx, company.ID); err != nil {
				zap.L().Warn("enrich: backfill describe failed",
					zap.String("company_id", company.ID),
					zap.Error(err),
				)
				continue
			}
			batchDescribed++
		}
		described += batchDescribed
		// Failed rows still lack a description and would be re-listed;
		// stop once a pass makes no progress or drains the table.
		if batchDescribed == 0 || len(companies) < batchSize {
			return described, nil
		}
	}
}
