package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nailglow/api/internal/model"
	"github.com/nailglow/api/internal/store"
)

// errNoop marks a transition that is absorbed as an idempotent no-op:
// duplicate completion callbacks and repeated status marks on a job that
// already reached the requested or a terminal state.
var errNoop = errors.New("transition is a no-op")

// errAlreadyConsumed marks a save attempt that lost the consumption race.
var errAlreadyConsumed = errors.New("job already consumed")

// JobService owns the generation-job ledger: a bounded, monotonic state
// machine per job plus the poll and exactly-once consumption queries.
type JobService struct {
	jobs store.JobStore
}

func NewJobService(jobs store.JobStore) *JobService {
	return &JobService{jobs: jobs}
}

// Submit creates a new pending job and returns immediately.
func (s *JobService) Submit(ctx context.Context, userID string, req *model.DesignGenerateRequest) (*model.GenerationJob, error) {
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	job := &model.GenerationJob{
		ID:            uuid.New().String(),
		UserID:        userID,
		Status:        model.JobStatusPending,
		OriginalImage: req.OriginalImage,
		Settings:      req.Settings,
		Quantity:      quantity,
		CreatedAt:     time.Now(),
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// MarkProcessing moves a pending job to processing. Duplicate or late calls
// are absorbed.
func (s *JobService) MarkProcessing(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	return s.transition(ctx, jobID, model.JobStatusProcessing, func(job *model.GenerationJob) {})
}

// MarkCompleted records the results and completes the job. The first
// completion wins; later calls (duplicate provider callbacks) change
// nothing.
func (s *JobService) MarkCompleted(ctx context.Context, jobID string, images []string) (*model.GenerationJob, error) {
	return s.transition(ctx, jobID, model.JobStatusCompleted, func(job *model.GenerationJob) {
		job.ResultImages = images
		now := time.Now()
		job.CompletedAt = &now
	})
}

// MarkFailed fails the job with a reason. Late duplicate completions after
// a failure leave the job failed with no results.
func (s *JobService) MarkFailed(ctx context.Context, jobID string, reason string) (*model.GenerationJob, error) {
	return s.transition(ctx, jobID, model.JobStatusFailed, func(job *model.GenerationJob) {
		job.Error = &reason
		now := time.Now()
		job.CompletedAt = &now
	})
}

func (s *JobService) transition(ctx context.Context, jobID string, to model.JobStatus, apply func(*model.GenerationJob)) (*model.GenerationJob, error) {
	job, err := s.jobs.UpdateJob(ctx, jobID, func(job *model.GenerationJob) error {
		if job.Status == to || job.Status.Terminal() {
			return errNoop
		}
		if !job.Status.CanTransitionTo(to) {
			return model.ErrInvalidTransition
		}
		job.Status = to
		apply(job)
		return nil
	})
	if errors.Is(err, errNoop) {
		return s.jobs.GetJob(ctx, jobID)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Get returns a job after checking ownership.
func (s *JobService) Get(ctx context.Context, userID, jobID string) (*model.GenerationJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, model.ErrNotOwner
	}
	return job, nil
}

// Poll returns the user's in-flight jobs plus completed jobs that still
// carry unconsumed results. Completed jobs without results, or already
// auto-saved ones, are fully consumed and excluded.
func (s *JobService) Poll(ctx context.Context, userID string) (*model.DesignPollResponse, error) {
	jobs, err := s.jobs.ListJobsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })

	resp := &model.DesignPollResponse{
		ActiveJobs:    []model.ActiveJobSummary{},
		CompletedJobs: []model.CompletedJobSummary{},
	}
	for _, job := range jobs {
		switch job.Status {
		case model.JobStatusPending, model.JobStatusProcessing:
			resp.ActiveJobs = append(resp.ActiveJobs, model.ActiveJobSummary{
				JobID:     job.ID,
				Status:    job.Status,
				CreatedAt: job.CreatedAt,
			})
		case model.JobStatusCompleted:
			if job.AutoSaved || len(job.ResultImages) == 0 {
				continue
			}
			resp.CompletedJobs = append(resp.CompletedJobs, model.CompletedJobSummary{
				JobID:          job.ID,
				Status:         job.Status,
				ResultImages:   job.ResultImages,
				OriginalImage:  job.OriginalImage,
				DesignSettings: job.Settings,
				CreatedAt:      job.CreatedAt,
				CompletedAt:    job.CompletedAt,
			})
		}
	}
	return resp, nil
}

// Consume flips the autoSaved flag with a compare-and-set and, for the
// winning caller only, runs the save side effect. Losers observe the job
// already consumed and do nothing. A job that is not completed, or
// completed without results, cannot be consumed.
func (s *JobService) Consume(ctx context.Context, userID, jobID string, save func(ctx context.Context, job *model.GenerationJob) ([]string, error)) (*model.DesignSaveResponse, error) {
	job, err := s.jobs.UpdateJob(ctx, jobID, func(job *model.GenerationJob) error {
		if job.UserID != userID {
			return model.ErrNotOwner
		}
		if job.Status != model.JobStatusCompleted || len(job.ResultImages) == 0 {
			return model.ErrInvalidTransition
		}
		if job.AutoSaved {
			return errAlreadyConsumed
		}
		job.AutoSaved = true
		return nil
	})
	if errors.Is(err, errAlreadyConsumed) {
		return &model.DesignSaveResponse{JobID: jobID, Saved: false, AlreadySaved: true}, nil
	}
	if err != nil {
		return nil, err
	}

	assetURLs, err := save(ctx, job)
	if err != nil {
		// The flag already flipped; the results stay in the ledger and the
		// caller is told the durable save did not land.
		return nil, err
	}
	return &model.DesignSaveResponse{JobID: jobID, Saved: true, AssetURLs: assetURLs}, nil
}
