package domain

// Progress milestones written at each stage boundary. Values only grow.
const (
	ProgressQueued           = 0
	ProgressAggregationStart = 10
	ProgressSprintResolved   = 25
	ProgressDataCollected    = 40
	ProgressSynthesisStart   = 50
	ProgressSynthesisDone    = 70
	ProgressRenderingStart   = 80
	ProgressAwaitingApproval = 90
	ProgressApproved         = 95
	ProgressCompleted        = 100
)
