package model

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transition is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// rank orders statuses along the pending < processing < terminal axis.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next keeps the status
// monotonic. Terminal states accept nothing.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Nail shapes
type NailShape string

const (
	ShapeAlmond   NailShape = "almond"
	ShapeSquare   NailShape = "square"
	ShapeOval     NailShape = "oval"
	ShapeCoffin   NailShape = "coffin"
	ShapeStiletto NailShape = "stiletto"
	ShapeRound    NailShape = "round"
)

var ValidShapes = []NailShape{
	ShapeAlmond, ShapeSquare, ShapeOval, ShapeCoffin, ShapeStiletto, ShapeRound,
}

// Nail lengths
type NailLength string

const (
	LengthShort  NailLength = "short"
	LengthMedium NailLength = "medium"
	LengthLong   NailLength = "long"
	LengthExtra  NailLength = "extra_long"
)

// Finishes
type Finish string

const (
	FinishGlossy  Finish = "glossy"
	FinishMatte   Finish = "matte"
	FinishChrome  Finish = "chrome"
	FinishShimmer Finish = "shimmer"
)

// Subscription tiers
type SubscriptionTier string

const (
	TierFree      SubscriptionTier = "free"
	TierPro       SubscriptionTier = "pro"
	TierUnlimited SubscriptionTier = "unlimited"
)

// Subscription status
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Reservation states
type ReservationState string

const (
	ReservationPending   ReservationState = "pending"
	ReservationCommitted ReservationState = "committed"
	ReservationRefunded  ReservationState = "refunded"
)
