package source

import (
	"context"

	"github.com/timmy/sprintreport/internal/domain"
)

// SprintSource provides sprint details and the mandatory sprint metrics.
// Failures are returned as *domain.UpstreamError so callers can decide
// retry eligibility without looking at HTTP details.
type SprintSource interface {
	// FetchSprint returns name, dates and goal of a sprint.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - sprintRef: numeric sprint identifier.
	// Returns:
	//   - *domain.SprintInfo: sprint details.
	//   - error: classified upstream failure.
	FetchSprint(ctx context.Context, sprintRef string) (*domain.SprintInfo, error)

	// FetchSprintMetrics returns issue counts, story points and the issue list.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - sprintRef: numeric sprint identifier.
	// Returns:
	//   - *domain.SprintMetrics: computed metrics.
	//   - error: classified upstream failure.
	FetchSprintMetrics(ctx context.Context, sprintRef string) (*domain.SprintMetrics, error)
}

// MeetingSource lists recorded meetings and enriches them with notes.
type MeetingSource interface {
	// ListMeetings returns meetings recorded inside the window, without notes.
	ListMeetings(ctx context.Context, window domain.TimeWindow) ([]domain.Meeting, error)

	// EnrichMeeting fills in summary and transcript for one meeting.
	EnrichMeeting(ctx context.Context, meeting domain.Meeting) (domain.Meeting, error)
}
