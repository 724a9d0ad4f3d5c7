package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/logger"
	"github.com/timmy/sprintreport/internal/metrics"
	"github.com/timmy/sprintreport/internal/source"
	"golang.org/x/sync/errgroup"
)

// defaultSprintLength is used for the meeting window when the sprint has no dates.
const defaultSprintLength = 14 * 24 * time.Hour

// AggregatorOptions tunes meeting collection.
type AggregatorOptions struct {
	Concurrency       int // parallel meeting enrichments
	WindowPaddingDays int
	OnlyRelevant      bool
	MaxMeetings       int // 0 keeps all
}

// Aggregator collects sprint metrics and meeting notes for one report.
type Aggregator struct {
	sprints  source.SprintSource
	meetings source.MeetingSource
	policy   RetryPolicy
	opts     AggregatorOptions
	now      func() time.Time
}

// NewAggregator creates an aggregator.
// Parameters:
//   - sprints: mandatory sprint data source.
//   - meetings: optional meeting source; nil marks meetings unavailable.
//   - policy: retry policy for upstream calls.
//   - opts: collection options.
//
// Returns:
//   - *Aggregator: aggregator ready for use.
func NewAggregator(sprints source.SprintSource, meetings source.MeetingSource, policy RetryPolicy, opts AggregatorOptions) *Aggregator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	return &Aggregator{
		sprints:  sprints,
		meetings: meetings,
		policy:   policy,
		opts:     opts,
		now:      time.Now,
	}
}

// Aggregate gathers everything the synthesizer needs.
// Metrics failures fail the aggregation. Meeting failures only degrade it.
// Parameters:
//   - ctx: context for cancellation.
//   - req: sprint reference and optional meeting window.
//   - progress: called at milestones; may be nil.
//
// Returns:
//   - *domain.AggregatedInput: collected input with provenance.
//   - error: classified upstream failure for sprint or metrics.
func (a *Aggregator) Aggregate(ctx context.Context, req domain.AggregateRequest, progress func(int)) (*domain.AggregatedInput, error) {
	if progress == nil {
		progress = func(int) {}
	}

	sprint, err := Retry(ctx, a.policy, "jira", "fetch_sprint", func(ctx context.Context) (*domain.SprintInfo, error) {
		return a.sprints.FetchSprint(ctx, req.SprintRef)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve sprint %s: %w", req.SprintRef, err)
	}
	if sprint.BoardID == 0 {
		sprint.BoardID = req.BoardRef
	}

	window := a.window(sprint, req.Window)
	progress(domain.ProgressSprintResolved)

	var (
		sprintMetrics *domain.SprintMetrics
		meetings      []domain.Meeting
		listErr       error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := Retry(gctx, a.policy, "jira", "fetch_metrics", func(ctx context.Context) (*domain.SprintMetrics, error) {
			return a.sprints.FetchSprintMetrics(ctx, req.SprintRef)
		})
		if err != nil {
			return fmt.Errorf("fetch sprint metrics: %w", err)
		}
		sprintMetrics = m
		return nil
	})
	if a.meetings != nil {
		// Listing failures degrade the report; only cancellation escapes.
		g.Go(func() error {
			listed, err := Retry(gctx, a.policy, "fathom", "list_meetings", func(ctx context.Context) ([]domain.Meeting, error) {
				return a.meetings.ListMeetings(ctx, window)
			})
			if err != nil {
				listErr = err
				return nil
			}
			meetings, err = a.enrich(gctx, a.selectMeetings(listed))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prov := domain.Provenance{CollectedAt: a.now().UTC()}
	switch {
	case a.meetings == nil:
		prov.MeetingsUnavailable = true
		prov.Note = "meeting source not configured"
	case listErr != nil:
		prov.MeetingsUnavailable = true
		prov.Note = "meeting list unavailable: " + listErr.Error()
		logger.CtxWarn(ctx, "Meeting list failed, continuing without meetings: %v", listErr)
	}

	prov.MeetingsTotal = len(meetings)
	for _, m := range meetings {
		if m.Degraded {
			prov.Degraded++
		} else {
			prov.Succeeded++
		}
	}
	if prov.Degraded > 0 {
		metrics.AddDegradedMeetings(prov.Degraded)
		prov.Note = fmt.Sprintf("%d of %d meetings have no notes", prov.Degraded, prov.MeetingsTotal)
	}

	logger.With(logger.Fields{
		logger.FieldCount: prov.MeetingsTotal,
	}).Info(ctx, "Aggregated sprint %s: %d issues, %d meetings (%d degraded)",
		sprint.Name, sprintMetrics.TotalIssues, prov.MeetingsTotal, prov.Degraded)
	progress(domain.ProgressDataCollected)

	return &domain.AggregatedInput{
		Sprint:     *sprint,
		Window:     window,
		Metrics:    *sprintMetrics,
		Meetings:   meetings,
		Provenance: prov,
	}, nil
}

// window returns the requested window, or the sprint dates padded on both sides.
func (a *Aggregator) window(sprint *domain.SprintInfo, requested *domain.TimeWindow) domain.TimeWindow {
	if requested != nil {
		return *requested
	}
	pad := time.Duration(a.opts.WindowPaddingDays) * 24 * time.Hour

	var w domain.TimeWindow
	switch {
	case sprint.StartDate != nil && sprint.EndDate != nil:
		w = domain.TimeWindow{Start: *sprint.StartDate, End: *sprint.EndDate}
	case sprint.StartDate != nil:
		w = domain.TimeWindow{Start: *sprint.StartDate, End: sprint.StartDate.Add(defaultSprintLength)}
	default:
		end := a.now().UTC()
		w = domain.TimeWindow{Start: end.Add(-defaultSprintLength), End: end}
	}
	w.Start = w.Start.Add(-pad)
	w.End = w.End.Add(pad)
	return w
}

// selectMeetings applies the relevance filter and the meeting cap.
func (a *Aggregator) selectMeetings(listed []domain.Meeting) []domain.Meeting {
	out := make([]domain.Meeting, 0, len(listed))
	for _, m := range listed {
		if a.opts.OnlyRelevant && m.Relevance != domain.RelevanceHigh {
			continue
		}
		out = append(out, m)
	}
	if a.opts.MaxMeetings > 0 && len(out) > a.opts.MaxMeetings {
		out = out[:a.opts.MaxMeetings]
	}
	return out
}

// enrich fetches notes for every meeting with bounded concurrency. A meeting
// whose notes stay unavailable after retries is marked degraded.
func (a *Aggregator) enrich(ctx context.Context, meetings []domain.Meeting) ([]domain.Meeting, error) {
	out := make([]domain.Meeting, len(meetings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)

	for i, m := range meetings {
		g.Go(func() error {
			enriched, err := Retry(gctx, a.policy, "fathom", "enrich_meeting", func(ctx context.Context) (domain.Meeting, error) {
				return a.meetings.EnrichMeeting(ctx, m)
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.With(logger.Fields{
					logger.FieldSource: "fathom",
				}).Warn(ctx, "Meeting %s (%s) degraded: %v", m.ID, m.Title, err)
				m.Degraded = true
				m.DegradedReason = err.Error()
				m.Summary, m.Transcript = "", ""
				out[i] = m
				return nil
			}
			enriched.Degraded = false
			enriched.DegradedReason = ""
			out[i] = enriched
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
