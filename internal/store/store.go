// Package store defines persistence contracts for jobs, credit balances and
// site version history, with a Redis-backed implementation for production
// and an in-memory one for tests and local development.
package store

import (
	"context"
	"errors"

	"github.com/nailglow/api/internal/model"
)

var (
	ErrBalanceNotFound     = errors.New("balance not found")
	ErrReservationNotFound = errors.New("reservation not found")
)

// JobStore persists generation jobs. UpdateJob is the only mutation path
// after creation so every transition goes through a single atomic
// read-modify-write.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.GenerationJob) error
	GetJob(ctx context.Context, jobID string) (*model.GenerationJob, error)
	// UpdateJob applies mutate atomically with respect to concurrent
	// UpdateJob calls for the same job id. The mutated job is returned.
	UpdateJob(ctx context.Context, jobID string, mutate func(*model.GenerationJob) error) (*model.GenerationJob, error)
	ListJobsByUser(ctx context.Context, userID string) ([]*model.GenerationJob, error)
}

// CreditStore persists balances and reservations. DebitCredits and
// TransitionReservation are atomic; two concurrent debits can never
// overdraw a balance together.
type CreditStore interface {
	GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error)
	PutBalance(ctx context.Context, balance *model.CreditBalance) error
	// AddCredits upserts the balance and returns the new credit total.
	AddCredits(ctx context.Context, userID string, amount int) (int, error)
	// DebitCredits subtracts amount if the balance covers it, returning the
	// remaining credits, or model.ErrInsufficientCredits with no side
	// effects.
	DebitCredits(ctx context.Context, userID string, amount int) (int, error)
	CreateReservation(ctx context.Context, res *model.Reservation) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	// TransitionReservation compare-and-sets the reservation state. It
	// returns false when the stored state differs from from.
	TransitionReservation(ctx context.Context, id string, from, to model.ReservationState) (bool, error)
}

// SiteStore persists sites, their immutable version log and the per-site
// history pointer. Pointer writes are not self-serializing; the history
// service owns the single-writer-per-site discipline.
type SiteStore interface {
	CreateSite(ctx context.Context, site *model.Site) error
	GetSite(ctx context.Context, siteID string) (*model.Site, error)
	PutVersion(ctx context.Context, version *model.SiteVersion) error
	GetVersion(ctx context.Context, siteID, versionID string) (*model.SiteVersion, error)
	GetPointer(ctx context.Context, siteID string) (*model.HistoryPointer, error)
	PutPointer(ctx context.Context, siteID string, pointer *model.HistoryPointer) error
}
