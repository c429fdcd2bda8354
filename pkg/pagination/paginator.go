package pagination

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yubol-bobo/Smart-AI-Conference/pkg/retry"
)

var pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "review_collector_pages_fetched_total",
	Help: "Total number of listing pages fetched",
})

// Cursor is an opaque continuation token.
type Cursor string

// StartCursor addresses the beginning of a listing.
const StartCursor Cursor = ""

// TotalUnknown marks a page whose listing size was not reported.
const TotalUnknown = -1

// Page is one page of a listing.
type Page struct {
	// Cursor is the cursor the page was fetched with.
	Cursor Cursor `json:"cursor"`

	// Next is the continuation cursor; empty when the listing is complete.
	Next Cursor `json:"next"`

	// Items are the raw listing entries.
	Items []json.RawMessage `json:"items"`

	// Total is the listing size reported by the server, or TotalUnknown.
	Total int `json:"total"`
}

// Last reports whether the page closes the listing.
func (p Page) Last() bool {
	return p.Next == "" || len(p.Items) == 0
}

// PageFetcher fetches a single page of a listing.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor Cursor) (Page, error)
}

// Paginator walks a listing page by page.
type Paginator struct {
	fetcher PageFetcher
	policy  *retry.Policy
	cursor  Cursor
	done    bool
	pages   int
	items   int
	logger  zerolog.Logger
}

// New creates a paginator that starts at start.
func New(fetcher PageFetcher, policy *retry.Policy, start Cursor) *Paginator {
	return &Paginator{
		fetcher: fetcher,
		policy:  policy,
		cursor:  start,
		logger:  log.With().Str("component", "paginator").Logger(),
	}
}

// Cursor returns the cursor the next call to Next will fetch.
func (p *Paginator) Cursor() Cursor {
	return p.cursor
}

// Done reports whether the listing has been exhausted.
func (p *Paginator) Done() bool {
	return p.done
}

// Next fetches the next page. It returns false once the server signalled
// the end of the listing. A fetch failure, including a non-retryable one,
// is returned as a retry.ErrFatal error; cancellation as retry.ErrCancelled.
func (p *Paginator) Next(ctx context.Context) (Page, bool, error) {
	if p.done {
		return Page{}, false, nil
	}

	cursor := p.cursor
	page, err := retry.Do(ctx, p.policy, "page", func(ctx context.Context) (Page, error) {
		return p.fetcher.FetchPage(ctx, cursor)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, false, fmt.Errorf("%w: page %q: %w", retry.ErrCancelled, cursor, ctxErr)
		}
		return Page{}, false, retry.Fatal(fmt.Sprintf("page %q", cursor), err)
	}

	pagesFetched.Inc()
	page.Cursor = cursor

	if len(page.Items) == 0 {
		p.done = true
		p.logger.Info().
			Int("pages", p.pages).
			Int("items", p.items).
			Msg("Listing complete (empty page)")
		return Page{}, false, nil
	}

	p.pages++
	p.items += len(page.Items)
	p.cursor = page.Next
	if page.Next == "" {
		p.done = true
	}

	p.logger.Debug().
		Str("cursor", string(cursor)).
		Str("next", string(page.Next)).
		Int("items", len(page.Items)).
		Int("total", page.Total).
		Msg("Page fetched")

	if p.done {
		p.logger.Info().
			Int("pages", p.pages).
			Int("items", p.items).
			Msg("Listing complete")
	}

	return page, true, nil
}

// Collect drains the listing, calling fn for every page in order.
func (p *Paginator) Collect(ctx context.Context, fn func(Page) error) error {
	for {
		page, ok, err := p.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
	}
}
