package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/leader001a/ro-market-crawler-sub000/internal/market"
	"github.com/leader001a/ro-market-crawler-sub000/internal/metrics"
	"github.com/leader001a/ro-market-crawler-sub000/logger"
	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
)

// Fetcher issues listing and detail requests. Implemented by market.Client.
type Fetcher interface {
	FetchListingPage(ctx context.Context, term string, serverID, page int) ([]market.DealItem, int, error)
	FetchItemDetail(ctx context.Context, serverID, mapID, uniqueID int) (*market.DetailInfo, error)
}

// SessionStore persists crawl sessions. Implemented by services/storage.
type SessionStore interface {
	SaveSession(session *Session) error
	LoadLatestSession(term, serverName string) (*Session, error)
}

// Progress is pushed to the caller after every phase change
type Progress struct {
	Phase          string `json:"phase"`
	CurrentPage    int    `json:"current_page"`
	TotalPages     int    `json:"total_pages"`
	ItemsCollected int    `json:"items_collected"`
	Done           bool   `json:"done"`
	Cancelled      bool   `json:"cancelled"`
	RateLimited    bool   `json:"rate_limited"`
	Error          string `json:"error,omitempty"`
}

// ProgressFunc receives progress updates. Consumers marshal to their own
// execution context; the driver never blocks on them.
type ProgressFunc func(Progress)

// ResumeOffer describes an incomplete prior session the caller may resume
type ResumeOffer struct {
	Session *Session
	Stale   bool
}

// DriverConfig holds the crawl pacing knobs
type DriverConfig struct {
	// ItemDetailDelay spaces consecutive detail requests within a page.
	// This spacing, not concurrency, is the anti-ban mechanism here.
	ItemDetailDelay time.Duration

	// PageDelay spaces consecutive page fetches
	PageDelay time.Duration

	// MaxPages is the open-ended safety ceiling before the real page
	// count is known
	MaxPages int

	// StaleAfter flags resume offers older than this bound
	StaleAfter time.Duration
}

// Options configures one crawl run
type Options struct {
	SearchTerm string
	ServerID   int
	ServerName string

	// Resume continues a prior incomplete session instead of starting fresh
	Resume *Session

	OnProgress ProgressFunc
}

// Driver drives a session forward: fetch page, enrich items with spaced
// detail requests, persist, wait, repeat. Single sequential loop; no
// internal concurrency, so request spacing stays deterministic.
type Driver struct {
	fetcher Fetcher
	store   SessionStore
	cfg     DriverConfig
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewDriver creates a crawl driver
func NewDriver(fetcher Fetcher, store SessionStore, cfg DriverConfig, m *metrics.Metrics) *Driver {
	return &Driver{
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
		metrics: m,
		log:     logger.ForCrawl(),
	}
}

// ResumeOffer loads the latest incomplete session for the server, if any.
// The staleness flag is advisory and surfaced to the user, not enforced.
func (d *Driver) ResumeOffer(term, serverName string) (*ResumeOffer, error) {
	session, err := d.store.LoadLatestSession(term, serverName)
	if err != nil {
		return nil, err
	}
	if session == nil || session.IsComplete {
		return nil, nil
	}
	return &ResumeOffer{
		Session: session,
		Stale:   session.StaleAfter(d.cfg.StaleAfter),
	}, nil
}

// Run executes the crawl until exhaustion, cancellation or rate limit.
// Whatever has been accumulated is persisted as a resumable session before
// any outcome is surfaced; partial progress is never silently discarded.
func (d *Driver) Run(ctx context.Context, opts Options) (*Session, error) {
	session := opts.Resume
	if session == nil {
		session = NewSession(opts.SearchTerm, opts.ServerID, opts.ServerName)
	}

	currentPage := session.NextPage()
	maxEndPage := d.cfg.MaxPages
	if session.TotalServerPages > 0 && session.TotalServerPages < maxEndPage {
		maxEndPage = session.TotalServerPages
	}

	d.log.Info().
		Str("term", opts.SearchTerm).
		Str("server", opts.ServerName).
		Int("start_page", currentPage).
		Bool("resumed", opts.Resume != nil).
		Msg("Starting crawl")

	for currentPage <= maxEndPage {
		if err := ctx.Err(); err != nil {
			return session, d.abort(session, opts, currentPage, maxEndPage, perrors.NewCancelled("crawl"))
		}

		d.report(opts, Progress{
			Phase:          fmt.Sprintf("fetching page %d", currentPage),
			CurrentPage:    currentPage,
			TotalPages:     maxEndPage,
			ItemsCollected: session.TotalItems,
		})

		items, totalCount, err := d.fetcher.FetchListingPage(ctx, opts.SearchTerm, opts.ServerID, currentPage)
		if err != nil {
			return session, d.abort(session, opts, currentPage, maxEndPage, err)
		}

		if session.TotalServerPages == 0 && totalCount > 0 {
			session.SetTotalCount(totalCount)
			if session.TotalServerPages < maxEndPage {
				maxEndPage = session.TotalServerPages
			}
			d.log.Info().
				Int("total_count", totalCount).
				Int("total_pages", session.TotalServerPages).
				Msg("Narrowed crawl ceiling to reported page count")
		}

		if err := d.enrichItems(ctx, items, opts, currentPage, maxEndPage, session); err != nil {
			return session, d.abort(session, opts, currentPage, maxEndPage, err)
		}

		// Tag items with their source page for duplicate traceability
		for i := range items {
			items[i].SourcePage = currentPage
		}

		session.Append(items, currentPage)
		if err := d.persist(session); err != nil {
			return session, d.abort(session, opts, currentPage, maxEndPage, err)
		}

		d.metrics.IncPageCrawled()
		d.metrics.AddItemsCollected(len(items))

		d.log.Debug().
			Int("page", currentPage).
			Int("items", len(items)).
			Int("collected", session.TotalItems).
			Msg("Page completed")

		currentPage++
		if currentPage <= maxEndPage {
			if err := sleepCtx(ctx, d.cfg.PageDelay); err != nil {
				return session, d.abort(session, opts, currentPage, maxEndPage, perrors.NewCancelled("crawl"))
			}
		}
	}

	session.IsComplete = true
	if err := d.persist(session); err != nil {
		return session, err
	}

	d.log.Info().
		Int("pages", session.LastCrawledPage).
		Int("items", session.TotalItems).
		Msg("Crawl completed")

	d.report(opts, Progress{
		Phase:          "completed",
		CurrentPage:    session.LastCrawledPage,
		TotalPages:     maxEndPage,
		ItemsCollected: session.TotalItems,
		Done:           true,
	})

	return session, nil
}

// enrichItems issues one detail request per enrichable item with a fixed
// delay before each subsequent request
func (d *Driver) enrichItems(ctx context.Context, items []market.DealItem, opts Options, page, maxEndPage int, session *Session) error {
	first := true
	for i := range items {
		if !items[i].HasDetailParams() {
			continue
		}
		if !first {
			if err := sleepCtx(ctx, d.cfg.ItemDetailDelay); err != nil {
				return perrors.NewCancelled("crawl")
			}
		}
		first = false

		d.report(opts, Progress{
			Phase:          fmt.Sprintf("enriching item %d/%d on page %d", i+1, len(items), page),
			CurrentPage:    page,
			TotalPages:     maxEndPage,
			ItemsCollected: session.TotalItems,
		})

		detail, err := d.fetcher.FetchItemDetail(ctx, items[i].ServerID, items[i].MapID, items[i].UniqueID)
		if err != nil {
			return err
		}
		if detail != nil {
			if detail.CardSlots != "" {
				items[i].CardSlots = detail.CardSlots
			}
			items[i].RandomOptions = detail.RandomOptions
		}
	}
	return nil
}

// abort persists accumulated progress as a resumable session before the
// outcome is surfaced
func (d *Driver) abort(session *Session, opts Options, page, maxEndPage int, cause error) error {
	session.IsComplete = false
	if err := d.persist(session); err != nil {
		d.log.Error().Err(err).Msg("Failed to persist partial session")
	}

	progress := Progress{
		Phase:          "aborted",
		CurrentPage:    page,
		TotalPages:     maxEndPage,
		ItemsCollected: session.TotalItems,
		Cancelled:      perrors.IsCancelled(cause),
		RateLimited:    perrors.IsRateLimit(cause),
		Error:          cause.Error(),
	}
	d.report(opts, progress)

	d.log.Warn().
		Err(cause).
		Int("last_crawled_page", session.LastCrawledPage).
		Int("items", session.TotalItems).
		Msg("Crawl aborted, partial session persisted")

	return cause
}

func (d *Driver) persist(session *Session) error {
	if err := d.store.SaveSession(session); err != nil {
		return perrors.NewStorage("crawl", "failed to save session", err)
	}
	return nil
}

func (d *Driver) report(opts Options, p Progress) {
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}

// sleepCtx sleeps for the given duration or until ctx is cancelled
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
