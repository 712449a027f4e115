package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
	"sfextract/pkg/metrics"
	"sfextract/pkg/ratelimit"
	"sfextract/pkg/retry"
)

const opFetchPage = "fetch page"

// FetcherConfig locates the entity and describes the page shape
type FetcherConfig struct {
	APIBaseURL   string
	EntityName   string
	SelectFields string
	// ResultsPath and NextPagePath are gjson paths into a page body
	ResultsPath  string
	NextPagePath string
}

// Fetcher reads an entity page by page
type Fetcher struct {
	client  *Client
	cfg     FetcherConfig
	retrier *retry.Retrier
	limiter ratelimit.Limiter
	metrics *metrics.Collector
	logger  logger.Logger
}

// FetcherOption customizes a Fetcher
type FetcherOption func(*Fetcher)

// WithLimiter paces page requests
func WithLimiter(l ratelimit.Limiter) FetcherOption {
	return func(f *Fetcher) { f.limiter = l }
}

// WithMetrics counts fetched pages
func WithMetrics(m *metrics.Collector) FetcherOption {
	return func(f *Fetcher) { f.metrics = m }
}

// NewFetcher creates a fetcher; empty paths fall back to the default page shape
func NewFetcher(client *Client, cfg FetcherConfig, retrier *retry.Retrier, log logger.Logger, opts ...FetcherOption) *Fetcher {
	if cfg.ResultsPath == "" {
		cfg.ResultsPath = DefaultResultsPath
	}
	if cfg.NextPagePath == "" {
		cfg.NextPagePath = DefaultNextPagePath
	}
	if retrier == nil {
		retrier = retry.NewRetrier(retry.Policy{MaxAttempts: 1}, log)
	}
	f := &Fetcher{
		client:  client,
		cfg:     cfg,
		retrier: retrier,
		limiter: ratelimit.Unlimited{},
		logger:  logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch starts a page sequence at continuation, or at the entity's first
// page when continuation is empty. The sequence holds no durable state;
// resuming means calling Fetch again with a persisted continuation.
func (f *Fetcher) Fetch(token, continuation string) *Pages {
	return &Pages{
		fetcher: f,
		token:   token,
		next:    continuation,
		initial: continuation == "",
	}
}

// Pages is a finite, ordered, single-use sequence of chunks
type Pages struct {
	fetcher *Fetcher
	token   string
	next    string
	initial bool
	page    int
	done    bool
}

// Next returns the next non-empty chunk. ok is false once the source has
// no further pages. Empty pages are skipped while the continuation still
// advances. An error is fatal for the sequence.
func (p *Pages) Next(ctx context.Context) (Chunk, bool, error) {
	f := p.fetcher
	for !p.done {
		target := p.next
		if p.initial {
			var err error
			target, err = InitialURL(f.cfg.APIBaseURL, f.cfg.EntityName, f.cfg.SelectFields)
			if err != nil {
				p.done = true
				return Chunk{}, false, err
			}
		}

		p.page++
		f.logger.DebugWithFields("Fetching page", map[string]interface{}{
			"page":    p.page,
			"initial": p.initial,
		})

		pg, err := retry.DoWith(ctx, f.retrier, opFetchPage, func(ctx context.Context) (page, error) {
			return f.fetchPage(ctx, p.token, target)
		})
		if err != nil {
			p.done = true
			return Chunk{}, false, fmt.Errorf("page %d: %w", p.page, err)
		}

		records, next := pg.records, pg.next
		f.metrics.RecordPage()
		logger.LogPage(f.logger, p.page, len(records), next != "")

		p.initial = false
		p.next = next
		if next == "" {
			p.done = true
		}

		if len(records) == 0 {
			continue
		}
		return Chunk{Records: records, Next: next, Page: p.page}, true, nil
	}
	return Chunk{}, false, nil
}

// page is the parsed body of one response
type page struct {
	records []Record
	next    string
}

// fetchPage performs one attempt at one page
func (f *Fetcher) fetchPage(ctx context.Context, token, target string) (page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return page{}, err
	}

	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return page{}, errs.Wrap(errs.ErrorTypeClientError, opFetchPage, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	body, err := f.client.do(ctx, opFetchPage, req)
	if err != nil {
		return page{}, err
	}
	return f.parsePage(body)
}

// parsePage extracts the records and the next continuation. A body that is
// not JSON is treated like a truncated transfer and retried.
func (f *Fetcher) parsePage(body []byte) (page, error) {
	if !gjson.ValidBytes(body) {
		return page{}, errs.New(errs.ErrorTypeNetwork, opFetchPage, "response body is not valid JSON")
	}

	results := gjson.GetBytes(body, f.cfg.ResultsPath)
	if results.Exists() && !results.IsArray() && results.Type != gjson.Null {
		return page{}, errs.New(errs.ErrorTypeParsing, opFetchPage,
			fmt.Sprintf("%s is %s, not an array", f.cfg.ResultsPath, results.Type))
	}

	var records []Record
	results.ForEach(func(_, value gjson.Result) bool {
		records = append(records, Record(value.Raw))
		return true
	})

	next := gjson.GetBytes(body, f.cfg.NextPagePath)
	if next.Type != gjson.String {
		return page{records: records}, nil
	}
	return page{records: records, next: next.String()}, nil
}
