package pipeline

import (
	"log/slog"
	"time"
)

// Stage names a pipeline entry point.
type Stage string

const (
	StageCrawl    Stage = "crawl"
	StageLiveness Stage = "liveness"
	StageDispatch Stage = "dispatch"
	StagePurge    Stage = "purge"
)

// Summary reports one run. Counted is the number of items the stage looked
// at, Changed the number it persisted a change for. Counts breaks outcomes
// down by label; Errors holds the non-fatal failures the run skipped over.
type Summary struct {
	Stage    Stage
	Counted  int
	Changed  int
	Counts   map[string]int
	Errors   []error
	Started  time.Time
	Duration time.Duration
}

func newSummary(stage Stage, now time.Time) *Summary {
	return &Summary{Stage: stage, Counts: make(map[string]int), Started: now}
}

func (s *Summary) count(label string) {
	s.Counts[label]++
}

func (s *Summary) fail(label string, err error) {
	s.Counts[label]++
	s.Errors = append(s.Errors, err)
}

func (s *Summary) finish(now time.Time) Summary {
	s.Duration = now.Sub(s.Started)
	return *s
}

// LogValue renders the summary as a structured log group.
func (s Summary) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("stage", string(s.Stage)),
		slog.Int("counted", s.Counted),
		slog.Int("changed", s.Changed),
		slog.Int("errors", len(s.Errors)),
		slog.Duration("duration", s.Duration.Round(time.Millisecond)),
	}
	for k, v := range s.Counts {
		attrs = append(attrs, slog.Int(k, v))
	}
	return slog.GroupValue(attrs...)
}
