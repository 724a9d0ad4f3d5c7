package orchestrator

import (
	"context"

	"github.com/timmy/sprintreport/internal/domain"
	"github.com/timmy/sprintreport/internal/logger"
	"github.com/timmy/sprintreport/internal/metrics"
)

// ObserveTransition logs a committed status change once and records it in
// metrics. Install it with jobstore.WithTransitionHook.
func ObserveTransition(prev, next *domain.Job) {
	var kind string
	if next.Error != nil {
		kind = string(next.Error.Kind)
	}
	metrics.ObserveTransition(string(next.Status), next.Status.IsTerminal(), kind)

	logger.ForJob(next.ID).With(logger.Fields{
		"from":               string(prev.Status),
		"to":                 string(next.Status),
		logger.FieldProgress: next.Progress,
	}).WithErrorKind(kind).Info(context.Background(), "Job %s: %s -> %s", next.ID, prev.Status, next.Status)
}
