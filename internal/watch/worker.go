package watch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/leader001a/ro-market-crawler-sub000/helpers"
	"github.com/leader001a/ro-market-crawler-sub000/internal/aggregate"
	"github.com/leader001a/ro-market-crawler-sub000/internal/market"
	"github.com/leader001a/ro-market-crawler-sub000/internal/metrics"
	"github.com/leader001a/ro-market-crawler-sub000/logger"
	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
	"github.com/leader001a/ro-market-crawler-sub000/services/publisher"
)

// Fetcher issues the per-item listing query. Implemented by market.Client.
type Fetcher interface {
	FetchListingPage(ctx context.Context, term string, serverID, page int) ([]market.DealItem, int, error)
}

// WorkerConfig holds the per-item refresh timing knobs
type WorkerConfig struct {
	// ItemTimeout bounds one item's refresh independently of global
	// cancellation, so a hung request cannot strand the item
	ItemTimeout time.Duration

	// ProcessingHold keeps the processing state visible for a minimum
	// duration. UX floor only; zero disables it.
	ProcessingHold time.Duration

	// RefreshInterval is the countdown applied after a successful refresh
	RefreshInterval time.Duration
}

// Worker refreshes one claimed watch-list item at a time. It works purely
// on the claim snapshot; the live entry is only touched through the list's
// locked claim methods. Distinct exits: success reschedules after the
// refresh interval, timeout and ordinary errors reschedule immediately,
// cancellation does not reschedule.
type Worker struct {
	list    *List
	fetcher Fetcher
	agg     *aggregate.Aggregator
	pub     publisher.Publisher
	metrics *metrics.Metrics
	cfg     WorkerConfig
	log     *logger.Logger
	errlog  helpers.LoggerInterface
}

// NewWorker creates a refresh worker. pub may be nil; bargain alerts are
// skipped then.
func NewWorker(list *List, fetcher Fetcher, agg *aggregate.Aggregator, pub publisher.Publisher, cfg WorkerConfig, m *metrics.Metrics) *Worker {
	return &Worker{
		list:    list,
		fetcher: fetcher,
		agg:     agg,
		pub:     pub,
		metrics: m,
		cfg:     cfg,
		log:     logger.ForMonitor(),
	}
}

// SetErrorLog attaches a file-backed diagnostic log for refresh failures
func (w *Worker) SetErrorLog(errlog helpers.LoggerInterface) {
	w.errlog = errlog
}

// Refresh runs one full refresh cycle for a claimed item. Failures never
// propagate past here; they only update item state and the diagnostic log.
func (w *Worker) Refresh(ctx context.Context, c *Claim) {
	refreshCtx, cancel := context.WithTimeout(ctx, w.cfg.ItemTimeout)
	defer cancel()

	items, _, err := w.fetcher.FetchListingPage(refreshCtx, c.Name, c.ServerID, 1)
	if err != nil {
		w.handleFailure(ctx, refreshCtx, c, err)
		return
	}

	w.list.BeginProcessing(c)

	result := &Result{
		Items:     items,
		Groups:    w.agg.Build(items, c.WatchPrice),
		FetchedAt: time.Now(),
	}
	w.list.StoreResult(c, result)

	if result.HasBargain() {
		w.publishAlert(c, result)
	}

	if w.cfg.ProcessingHold > 0 {
		timer := time.NewTimer(w.cfg.ProcessingHold)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.metrics.IncRefresh("cancelled")
			w.list.Release(c, time.Time{})
			return
		case <-timer.C:
		}
	}

	w.metrics.IncRefresh("success")
	w.list.Release(c, time.Now().Add(w.cfg.RefreshInterval))

	w.log.Debug().
		Str("item", c.Name).
		Int("groups", len(result.Groups)).
		Int("listings", len(items)).
		Msg("Item refreshed")
}

// handleFailure sorts a refresh failure into its exit: cancellation
// abandons the item, everything else makes it immediately due again so a
// slow origin is retried rather than punished.
func (w *Worker) handleFailure(parent, refreshCtx context.Context, c *Claim, err error) {
	switch {
	case parent.Err() != nil || perrors.IsCancelled(err):
		w.metrics.IncRefresh("cancelled")
		w.list.Release(c, time.Time{})

	case refreshCtx.Err() == context.DeadlineExceeded || perrors.IsTimeout(err):
		w.metrics.IncRefresh("timeout")
		w.log.Warn().Str("item", c.Name).Msg("Item refresh timed out, retrying next scan")
		w.storeFailure(c, err)
		w.list.Release(c, time.Now())

	case perrors.IsRateLimit(err):
		w.metrics.IncRefresh("rate_limited")
		w.log.Warn().Str("item", c.Name).Msg("Item refresh hit rate limit")
		w.storeFailure(c, err)
		w.list.Release(c, time.Now())

	default:
		w.metrics.IncRefresh("error")
		w.log.Error().Err(err).Str("item", c.Name).Msg("Item refresh failed, retrying next scan")
		if w.errlog != nil {
			w.errlog.LogError("monitor:"+c.Key(), err)
		}
		w.storeFailure(c, err)
		w.list.Release(c, time.Now())
	}
}

// storeFailure keeps the previous listings, if any, and records the error
func (w *Worker) storeFailure(c *Claim, err error) {
	result := &Result{
		FetchedAt:    time.Now(),
		ErrorMessage: err.Error(),
	}
	if prev := w.list.ResultFor(c.Name, c.ServerID); prev != nil {
		result.Items = prev.Items
		result.Groups = prev.Groups
	}
	w.list.StoreResult(c, result)
}

type bargainAlert struct {
	ItemName   string            `json:"item_name"`
	ServerName string            `json:"server_name"`
	WatchPrice int64             `json:"watch_price"`
	Groups     []aggregate.Group `json:"groups"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

func (w *Worker) publishAlert(c *Claim, result *Result) {
	if w.pub == nil {
		return
	}

	var bargains []aggregate.Group
	for _, g := range result.Groups {
		if g.Status == aggregate.StatusBargain {
			bargains = append(bargains, g)
		}
	}

	payload, err := json.Marshal(bargainAlert{
		ItemName:   c.Name,
		ServerName: c.ServerName,
		WatchPrice: c.WatchPrice,
		Groups:     bargains,
		FetchedAt:  result.FetchedAt,
	})
	if err != nil {
		return
	}

	if err := w.pub.Publish(publisher.KindMonitorAlert, payload); err != nil {
		w.log.Warn().Err(err).Str("item", c.Name).Msg("Failed to publish bargain alert")
	}
}
