// Package liveness re-verifies stored listings against their source and
// retires the ones that are gone, stale or no longer pass the quality gate.
package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rsilvagit/go-rent/internal/ingest"
	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/store"
)

// Verdict is the interpretation of one probe.
type Verdict int

const (
	Ambiguous Verdict = iota
	Alive
	Gone
)

func (v Verdict) String() string {
	switch v {
	case Alive:
		return "alive"
	case Gone:
		return "gone"
	default:
		return "ambiguous"
	}
}

// Classify maps a probe result onto a verdict. Only an explicit 404 proves
// a listing is gone; every other failure may be transient or a block.
func Classify(status int, err error) Verdict {
	switch {
	case err != nil:
		return Ambiguous
	case status >= 200 && status < 300:
		return Alive
	case status == http.StatusNotFound:
		return Gone
	default:
		return Ambiguous
	}
}

// Prober checks whether a URL still answers.
type Prober interface {
	Probe(ctx context.Context, rawURL string) (int, error)
}

// Options configures a Sweeper.
type Options struct {
	BatchSize    int
	Delay        time.Duration
	ProbeTimeout time.Duration
	StaleAfter   time.Duration
	Logger       *slog.Logger
}

// SweepResult counts what one sweep did. Checked counts probed listings,
// Scanned the listings the quality pass looked at.
type SweepResult struct {
	Checked   int
	Scanned   int
	Alive     int
	Ambiguous int
	Retired   map[model.RetireReason]int
}

// RetiredTotal sums retirements over all reasons.
func (r SweepResult) RetiredTotal() int {
	n := 0
	for _, c := range r.Retired {
		n += c
	}
	return n
}

// Sweeper runs liveness sweeps over active listings.
type Sweeper struct {
	listings store.ListingStore
	events   store.EventLog
	prober   Prober
	limiter  *rate.Limiter
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

func NewSweeper(listings store.ListingStore, events store.EventLog, prober Prober, opts Options) *Sweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 90 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}

	return &Sweeper{
		listings: listings,
		events:   events,
		prober:   prober,
		limiter:  rate.NewLimiter(limit, 1),
		opts:     opts,
		logger:   opts.Logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Sweep retires every stale listing and every listing that no longer passes
// the quality gate, then probes one batch of active listings, least recently
// probed first. A store error aborts the sweep; probe failures never do.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	res := SweepResult{Retired: make(map[model.RetireReason]int)}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if err := s.retireStale(ctx, &res); err != nil {
		return res, err
	}
	if err := s.retireLowQuality(ctx, &res); err != nil {
		return res, err
	}

	batch, err := s.listings.ListActiveForCheck(ctx, s.opts.BatchSize)
	if err != nil {
		return res, fmt.Errorf("liveness: loading batch: %w", err)
	}

	for _, l := range batch {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		if err := s.probe(ctx, l, &res); err != nil {
			return res, err
		}
	}

	s.logger.Info("liveness sweep done",
		"checked", res.Checked, "scanned", res.Scanned, "alive", res.Alive,
		"ambiguous", res.Ambiguous, "retired", res.RetiredTotal())
	return res, nil
}

// retireStale retires active listings older than StaleAfter, independent of
// the probe order.
func (s *Sweeper) retireStale(ctx context.Context, res *SweepResult) error {
	now := s.now()
	cutoff := now.Add(-s.opts.StaleAfter)

	for {
		stale, err := s.listings.ListActiveCreatedBefore(ctx, cutoff, s.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("liveness: loading stale listings: %w", err)
		}
		for _, l := range stale {
			if err := ctx.Err(); err != nil {
				return err
			}
			detail := fmt.Sprintf("listed %d days ago", int(now.Sub(l.CreatedAt).Hours()/24))
			if err := s.retire(ctx, l, model.RetireStale, 0, detail, res); err != nil {
				return err
			}
		}
		if len(stale) < s.opts.BatchSize {
			return nil
		}
	}
}

// retireLowQuality pages through all active listings and retires the ones
// the quality gate rejects. It never touches the network.
func (s *Sweeper) retireLowQuality(ctx context.Context, res *SweepResult) error {
	after := ""
	for {
		page, err := s.listings.ListActiveAfter(ctx, after, s.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("liveness: scanning listings: %w", err)
		}
		for _, l := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			res.Scanned++
			if r, ok := ingest.Check(l); !ok {
				if err := s.retire(ctx, l, model.RetireQuality, 0, r.String(), res); err != nil {
					return err
				}
			}
		}
		if len(page) < s.opts.BatchSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func (s *Sweeper) probe(ctx context.Context, l model.Listing, res *SweepResult) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	status, probeErr := s.prober.Probe(probeCtx, l.SourceURL)
	cancel()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	now := s.now()
	switch Classify(status, probeErr) {
	case Alive:
		res.Alive++
		if err := s.listings.MarkChecked(ctx, l.ID, now, ""); err != nil {
			return fmt.Errorf("liveness: marking %s checked: %w", l.ID, err)
		}
	case Gone:
		return s.retire(ctx, l, model.RetireNotFound, status, statusText(status), res)
	default:
		res.Ambiguous++
		s.logger.Warn("liveness ambiguous, leaving listing unchanged",
			"id", l.ID, "url", l.SourceURL, "status", status, "error", probeErr)
		// Only the attempt is recorded, so the next batch moves on.
		if err := s.listings.MarkProbed(ctx, l.ID, now); err != nil {
			return fmt.Errorf("liveness: marking %s probed: %w", l.ID, err)
		}
	}
	return nil
}

func (s *Sweeper) retire(ctx context.Context, l model.Listing, reason model.RetireReason, status int, detail string, res *SweepResult) error {
	now := s.now()

	statusErr := ""
	if reason == model.RetireNotFound {
		statusErr = detail
	}
	if err := s.listings.Retire(ctx, l.ID, reason, now, statusErr); err != nil {
		return fmt.Errorf("liveness: retiring %s: %w", l.ID, err)
	}

	err := s.events.RecordRetirement(ctx, model.RetirementEvent{
		ID:         s.newID(),
		ListingID:  l.ID,
		Provider:   l.Provider,
		SourceURL:  l.SourceURL,
		Reason:     reason,
		HTTPStatus: status,
		Detail:     detail,
		At:         now,
	})
	if err != nil {
		return fmt.Errorf("liveness: recording retirement of %s: %w", l.ID, err)
	}

	res.Retired[reason]++
	s.logger.Info("listing retired", "id", l.ID, "url", l.SourceURL, "reason", reason, "detail", detail)
	return nil
}

func statusText(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}
