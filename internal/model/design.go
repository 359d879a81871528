package model

import "time"

// DesignGenerateRequest is the body for POST /api/designs/generate.
type DesignGenerateRequest struct {
	OriginalImage string         `json:"originalImage" validate:"required,max=2048"`
	Settings      DesignSettings `json:"settings" validate:"required"`
	Quantity      int            `json:"quantity" validate:"omitempty,min=1,max=4"`
}

// DesignGenerateResponse acknowledges a queued generation job.
type DesignGenerateResponse struct {
	JobID            string    `json:"jobId"`
	Status           JobStatus `json:"status"`
	CreditsRemaining *int      `json:"creditsRemaining,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ActiveJobSummary is the poll projection for jobs still in flight.
type ActiveJobSummary struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// CompletedJobSummary is the poll projection for completed, not yet
// auto-saved jobs that actually carry results.
type CompletedJobSummary struct {
	JobID          string         `json:"jobId"`
	Status         JobStatus      `json:"status"`
	ResultImages   []string       `json:"resultImages"`
	OriginalImage  string         `json:"originalImage"`
	DesignSettings DesignSettings `json:"designSettings"`
	CreatedAt      time.Time      `json:"createdAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// DesignPollResponse is the stable poll contract for the client loop.
type DesignPollResponse struct {
	ActiveJobs    []ActiveJobSummary    `json:"activeJobs"`
	CompletedJobs []CompletedJobSummary `json:"completedJobs"`
}

// DesignSaveResponse reports the outcome of a save (consume) request.
type DesignSaveResponse struct {
	JobID        string   `json:"jobId"`
	Saved        bool     `json:"saved"`
	AlreadySaved bool     `json:"alreadySaved"`
	AssetURLs    []string `json:"assetUrls,omitempty"`
}

// CreditBalanceResponse exposes the balance to the account screen.
type CreditBalanceResponse struct {
	Credits   int                `json:"credits"`
	Tier      SubscriptionTier   `json:"tier"`
	Status    SubscriptionStatus `json:"status"`
	Unlimited bool               `json:"unlimited"`
}

// CreditRechargeRequest is pushed by the payment webhook collaborator after
// a successful top-up.
type CreditRechargeRequest struct {
	UserID string `json:"userId" validate:"required"`
	Amount int    `json:"amount" validate:"required,min=1"`
}

// CreditRechargeResponse echoes the post-recharge balance.
type CreditRechargeResponse struct {
	UserID  string `json:"userId"`
	Credits int    `json:"credits"`
}
