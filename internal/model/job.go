package model

import "time"

// DesignSettings captures the structured parameters a client picks for a
// nail-art render. Stored verbatim on the job and echoed back on poll.
type DesignSettings struct {
	Shape     NailShape  `json:"shape" validate:"required,oneof=almond square oval coffin stiletto round"`
	Length    NailLength `json:"length" validate:"required,oneof=short medium long extra_long"`
	Finish    Finish     `json:"finish" validate:"required,oneof=glossy matte chrome shimmer"`
	BaseColor string     `json:"baseColor" validate:"required,max=40"`
	Theme     string     `json:"theme,omitempty" validate:"max=200"`
}

// GenerationJob tracks one asynchronous nail-art render through its
// lifecycle. Records are never deleted; terminal jobs stay around for
// history views.
type GenerationJob struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	Status        JobStatus      `json:"status"`
	OriginalImage string         `json:"originalImage"`
	Settings      DesignSettings `json:"settings"`
	Quantity      int            `json:"quantity"`
	ResultImages  []string       `json:"resultImages,omitempty"`
	// AutoSaved flips false->true exactly once when the first save request
	// wins the consumption race and the results are persisted as assets.
	AutoSaved   bool       `json:"autoSaved"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// DesignJobTaskPayload is the asynq task body for a generation job. The
// reservation rides along so the worker can settle credits from whichever
// process picks the task up.
type DesignJobTaskPayload struct {
	JobID       string      `json:"jobId"`
	Reservation Reservation `json:"reservation"`
}
