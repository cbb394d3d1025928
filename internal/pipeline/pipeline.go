// Package pipeline wires the stages into the runs the scheduler triggers:
// crawl, liveness sweep, alert dispatch and purge.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rsilvagit/go-rent/internal/dispatch"
	"github.com/rsilvagit/go-rent/internal/extract"
	"github.com/rsilvagit/go-rent/internal/filter"
	"github.com/rsilvagit/go-rent/internal/ingest"
	"github.com/rsilvagit/go-rent/internal/liveness"
	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/scraper"
	"github.com/rsilvagit/go-rent/internal/sites"
	"github.com/rsilvagit/go-rent/internal/store"
)

// ErrNoExtractor is returned by crawl runs on a runner built without an
// extraction service.
var ErrNoExtractor = errors.New("pipeline: crawl needs an extraction service")

// LedgerTTL is how long sent marks must live to cover the widest dispatch
// window: the lookback bound or the longest alert frequency.
func LedgerTTL(maxLookback time.Duration) time.Duration {
	return max(maxLookback, model.FrequencyWeekly.Interval())
}

// Ledger records which listings each alert has already been sent.
type Ledger interface {
	Unsent(ctx context.Context, alertID string, listingIDs []string) ([]string, error)
	MarkSent(ctx context.Context, alertID string, listingIDs []string) error
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Registry   *sites.Registry
	Crawler    *scraper.Crawler
	Extractor  *extract.Service
	Ingest     *ingest.Engine
	Listings   store.ListingStore
	Alerts     store.AlertStore
	Events     store.EventLog
	Sweeper    *liveness.Sweeper
	Matcher    *filter.Engine
	Dispatcher *dispatch.Dispatcher
	Ledger     Ledger
	Logger     *slog.Logger
}

// Options tune the runs.
type Options struct {
	// ListingDelay spaces listing page fetches within one source.
	ListingDelay time.Duration
	// RefreshExisting re-extracts listings that are already stored.
	RefreshExisting bool
	// DispatchWindow is how far back a first dispatch looks.
	DispatchWindow time.Duration
	// MaxLookback bounds every dispatch window.
	MaxLookback time.Duration
	PurgeBatch  int
}

// Runner executes pipeline runs. Runs are sequential and keep no state
// between invocations.
type Runner struct {
	d      Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewRunner(d Deps, opts Options) *Runner {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if opts.DispatchWindow <= 0 {
		opts.DispatchWindow = 24 * time.Hour
	}
	if opts.MaxLookback <= 0 {
		opts.MaxLookback = 72 * time.Hour
	}
	if opts.PurgeBatch <= 0 {
		opts.PurgeBatch = 500
	}
	return &Runner{d: d, opts: opts, logger: d.Logger, now: time.Now, newID: uuid.NewString}
}

// RunCrawl crawls every enabled source. A failing source is logged and
// skipped; a store failure aborts the run.
func (r *Runner) RunCrawl(ctx context.Context) (Summary, error) {
	sum := newSummary(StageCrawl, r.now())
	if r.d.Extractor == nil {
		return sum.finish(r.now()), ErrNoExtractor
	}

	for _, site := range r.d.Registry.Sites() {
		if err := ctx.Err(); err != nil {
			return sum.finish(r.now()), err
		}
		if err := r.crawlSource(ctx, site, sum); err != nil {
			return sum.finish(r.now()), err
		}
	}

	out := sum.finish(r.now())
	r.logger.Info("crawl run finished", "summary", out)
	return out, nil
}

func (r *Runner) crawlSource(ctx context.Context, site sites.Site, sum *Summary) error {
	log := r.logger.With("provider", site.Provider)

	page, err := r.d.Crawler.CrawlPage(ctx, site)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("source unavailable, skipping", "error", err)
		sum.fail("source_failed", err)
		return nil
	}
	sum.count("sources")

	verdict := r.d.Extractor.ValidateIndex(ctx, site, page.Body)
	if verdict.FailOpen {
		sum.count("index_fail_open")
	}
	if !verdict.Valid {
		log.Warn("search page is not a listing index, skipping", "reason", verdict.Reason)
		sum.count("index_rejected")
		return nil
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if r.opts.ListingDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(r.opts.ListingDelay), 1)
	}

	for _, listingURL := range page.ListingURLs {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Counted++

		// Aggregators link out; a listing hosted by another registered
		// marketplace belongs to that provider.
		owner := site
		if site.ForeignListings {
			if s, ok := r.d.Registry.Resolve(listingURL); ok {
				owner = s
			}
		}

		externalID := owner.ExternalID(listingURL)
		if !r.opts.RefreshExisting {
			known, err := r.d.Ingest.Known(ctx, owner.Provider, listingURL, externalID)
			if err != nil {
				return fmt.Errorf("pipeline: crawl %s: %w", site.Provider, err)
			}
			if known {
				sum.count("known")
				continue
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		body, err := r.d.Crawler.FetcherFor(owner).Fetch(ctx, listingURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("listing unavailable, skipping", "url", listingURL, "error", err)
			sum.fail("fetch_failed", err)
			continue
		}

		ex, err := r.d.Extractor.ExtractListing(ctx, listingURL, body)
		if err != nil {
			return err
		}
		if !ex.Valid {
			log.Info("listing refused by extraction", "url", listingURL, "reason", ex.Reason)
			sum.count("extract_rejected")
			continue
		}

		out, err := r.d.Ingest.Ingest(ctx, ingest.Candidate{
			Provider:   owner.Provider,
			SourceURL:  listingURL,
			ExternalID: externalID,
			Fields:     ex.Fields,
		})
		if err != nil {
			return fmt.Errorf("pipeline: crawl %s: %w", site.Provider, err)
		}
		sum.count(string(out.Action))
		if out.Action == ingest.Inserted || out.Action == ingest.Updated {
			sum.Changed++
		}
	}
	return nil
}

// RunLivenessSweep checks one batch of active listings.
func (r *Runner) RunLivenessSweep(ctx context.Context) (Summary, error) {
	sum := newSummary(StageLiveness, r.now())

	res, err := r.d.Sweeper.Sweep(ctx)
	sum.Counted = res.Checked
	sum.Changed = res.RetiredTotal()
	sum.Counts["alive"] = res.Alive
	sum.Counts["ambiguous"] = res.Ambiguous
	sum.Counts["scanned"] = res.Scanned
	for reason, n := range res.Retired {
		sum.Counts["retired_"+string(reason)] = n
	}

	out := sum.finish(r.now())
	if err != nil {
		return out, fmt.Errorf("pipeline: liveness: %w", err)
	}
	r.logger.Info("liveness run finished", "summary", out)
	return out, nil
}

// RunAlertDispatch matches every due alert against recent listings and
// sends one digest per alert with unsent matches. The ledger and
// lastDispatchedAt advance only after a successful send.
func (r *Runner) RunAlertDispatch(ctx context.Context) (Summary, error) {
	return r.dispatchAt(ctx, r.now())
}

// dispatchAt runs a dispatch as of tick. Due checks and lastDispatchedAt use
// tick rather than the wall clock, so a long crawl earlier in the same run
// does not shift the alert schedule.
func (r *Runner) dispatchAt(ctx context.Context, tick time.Time) (Summary, error) {
	sum := newSummary(StageDispatch, r.now())

	alerts, err := r.d.Alerts.ListActiveAlerts(ctx)
	if err != nil {
		return sum.finish(r.now()), fmt.Errorf("pipeline: dispatch: loading alerts: %w", err)
	}

	var batches []dispatch.Batch
	marks := make(map[string]time.Time)
	for _, a := range alerts {
		if err := ctx.Err(); err != nil {
			return sum.finish(r.now()), err
		}
		if !a.Due(tick) {
			sum.count("not_due")
			continue
		}
		sum.Counted++

		matches, err := r.d.Matcher.Candidates(ctx, a, r.windowStart(a, tick))
		if err != nil {
			return sum.finish(r.now()), fmt.Errorf("pipeline: dispatch: %w", err)
		}
		matches, err = r.unsent(ctx, a, matches)
		if err != nil {
			return sum.finish(r.now()), fmt.Errorf("pipeline: dispatch: %w", err)
		}

		if len(matches) == 0 {
			sum.count("no_matches")
			if err := r.d.Alerts.MarkDispatched(ctx, a.ID, tick); err != nil {
				return sum.finish(r.now()), fmt.Errorf("pipeline: dispatch: marking alert %s: %w", a.ID, err)
			}
			continue
		}

		mark := tick
		if limit := r.d.Matcher.Limit(); len(matches) > limit {
			// Matches are newest first, so the overflow is older than
			// everything sent now. The next window starts at the oldest
			// unsent match and the ledger drops what was sent.
			mark = matches[len(matches)-1].CreatedAt
			matches = matches[:limit]
			sum.count("capped")
		}
		marks[a.ID] = mark
		batches = append(batches, dispatch.Batch{Alert: a, Listings: matches})
	}

	res := r.d.Dispatcher.Dispatch(ctx, batches)
	sum.Counts["attempted"] = res.Attempted
	sum.Counts["sent"] = res.Sent
	sum.Counts["failed"] = res.Failed
	sum.Errors = append(sum.Errors, res.Errors...)

	for _, b := range res.Delivered {
		if err := r.d.Ledger.MarkSent(ctx, b.Alert.ID, listingIDs(b.Listings)); err != nil {
			return sum.finish(r.now()), fmt.Errorf("pipeline: dispatch: %w", err)
		}
		if err := r.d.Alerts.MarkDispatched(ctx, b.Alert.ID, marks[b.Alert.ID]); err != nil {
			return sum.finish(r.now()), fmt.Errorf("pipeline: dispatch: marking alert %s: %w", b.Alert.ID, err)
		}
		sum.Changed++
	}

	out := sum.finish(r.now())
	r.logger.Info("dispatch run finished", "summary", out)
	return out, nil
}

// windowStart is lastDispatchedAt, or DispatchWindow ago for an alert never
// dispatched. It never reaches further back than MaxLookback or the alert's
// own interval, whichever is longer.
func (r *Runner) windowStart(a model.Alert, now time.Time) time.Time {
	start := now.Add(-r.opts.DispatchWindow)
	if a.LastDispatchedAt != nil {
		start = *a.LastDispatchedAt
	}
	lookback := max(r.opts.MaxLookback, a.Frequency.Interval())
	if floor := now.Add(-lookback); start.Before(floor) {
		start = floor
	}
	return start
}

func (r *Runner) unsent(ctx context.Context, a model.Alert, matches []model.Listing) ([]model.Listing, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	ids, err := r.d.Ledger.Unsent(ctx, a.ID, listingIDs(matches))
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	var out []model.Listing
	for _, l := range matches {
		if keep[l.ID] {
			out = append(out, l)
		}
	}
	return out, nil
}

// RunPurge hard-deletes retired listings that fail the quality gate. It is
// the only path that removes listing records.
func (r *Runner) RunPurge(ctx context.Context) (Summary, error) {
	sum := newSummary(StagePurge, r.now())

	inactive, err := r.d.Listings.ListInactive(ctx, r.opts.PurgeBatch)
	if err != nil {
		return sum.finish(r.now()), fmt.Errorf("pipeline: purge: %w", err)
	}

	for _, l := range inactive {
		if err := ctx.Err(); err != nil {
			return sum.finish(r.now()), err
		}
		sum.Counted++

		rej, ok := ingest.Check(l)
		if ok {
			sum.count("kept")
			continue
		}
		if err := r.d.Listings.Delete(ctx, l.ID); err != nil {
			return sum.finish(r.now()), fmt.Errorf("pipeline: purge: deleting %s: %w", l.ID, err)
		}
		err := r.d.Events.RecordRetirement(ctx, model.RetirementEvent{
			ID:        r.newID(),
			ListingID: l.ID,
			Provider:  l.Provider,
			SourceURL: l.SourceURL,
			Reason:    model.RetireQuality,
			Detail:    rej.String(),
			Purged:    true,
			At:        r.now(),
		})
		if err != nil {
			return sum.finish(r.now()), fmt.Errorf("pipeline: purge: recording %s: %w", l.ID, err)
		}
		r.logger.Info("listing purged", "id", l.ID, "url", l.SourceURL, "reason", rej.String())
		sum.count("purged")
		sum.Changed++
	}

	out := sum.finish(r.now())
	r.logger.Info("purge run finished", "summary", out)
	return out, nil
}

// RunAll runs crawl, liveness and dispatch in order. It stops at the first
// run that fails. Dispatch is evaluated as of the start of RunAll.
func (r *Runner) RunAll(ctx context.Context) ([]Summary, error) {
	tick := r.now()
	dispatchRun := func(ctx context.Context) (Summary, error) { return r.dispatchAt(ctx, tick) }

	var out []Summary
	for _, run := range []func(context.Context) (Summary, error){
		r.RunCrawl, r.RunLivenessSweep, dispatchRun,
	} {
		s, err := run(ctx)
		out = append(out, s)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func listingIDs(ls []model.Listing) []string {
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.ID
	}
	return ids
}
