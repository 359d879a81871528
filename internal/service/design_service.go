package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nailglow/api/internal/client"
	"github.com/nailglow/api/internal/model"
)

// TaskTypeDesignRender is the asynq task type for a queued render job.
const TaskTypeDesignRender = "design:render"

// QueueDesigns is the asynq queue render tasks are published to.
const QueueDesigns = "designs"

// TaskEnqueuer publishes background tasks. It wraps asynq.Client so the
// orchestration path can be tested without a live redis.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// DesignService orchestrates nail-art generation: it reserves credits,
// records the job and hands rendering to the background queue. If any step
// after the reservation fails, the reservation is refunded.
type DesignService struct {
	credits      *CreditService
	jobs         *JobService
	enqueuer     TaskEnqueuer
	storage      client.StorageClient
	costPerImage int
}

func NewDesignService(credits *CreditService, jobs *JobService, enqueuer TaskEnqueuer, storage client.StorageClient, costPerImage int) *DesignService {
	return &DesignService{
		credits:      credits,
		jobs:         jobs,
		enqueuer:     enqueuer,
		storage:      storage,
		costPerImage: costPerImage,
	}
}

// StartDesign runs the submission saga: authorize credits, create the
// pending job, enqueue the render task. Each compensation undoes the steps
// before it, so a failed enqueue leaves no charged credits and no live job.
func (s *DesignService) StartDesign(ctx context.Context, userID string, req *model.DesignGenerateRequest) (*model.DesignGenerateResponse, error) {
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	cost := s.costPerImage * quantity

	reservation, err := s.credits.Authorize(ctx, userID, cost)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Submit(ctx, userID, req)
	if err != nil {
		s.refund(ctx, reservation)
		return nil, err
	}

	payload, err := json.Marshal(model.DesignJobTaskPayload{
		JobID:       job.ID,
		Reservation: *reservation,
	})
	if err != nil {
		s.finalize(ctx, job.ID, reservation, "internal error")
		return nil, err
	}

	task := asynq.NewTask(TaskTypeDesignRender, payload)
	if _, err := s.enqueuer.Enqueue(task, asynq.Queue(QueueDesigns), asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)); err != nil {
		s.finalize(ctx, job.ID, reservation, "failed to queue generation")
		return nil, err
	}

	resp := &model.DesignGenerateResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}
	if balance, err := s.credits.GetBalance(ctx, userID); err == nil && balance.Metered() {
		resp.CreditsRemaining = &balance.Credits
	}
	return resp, nil
}

func (s *DesignService) refund(ctx context.Context, reservation *model.Reservation) {
	if err := s.credits.Refund(ctx, reservation); err != nil {
		log.Printf("Failed to refund reservation %s: %v", reservation.ID, err)
	}
}

func (s *DesignService) finalize(ctx context.Context, jobID string, reservation *model.Reservation, reason string) {
	if _, err := s.jobs.MarkFailed(ctx, jobID, reason); err != nil {
		log.Printf("Failed to fail job %s: %v", jobID, err)
	}
	s.refund(ctx, reservation)
}

// Poll returns the caller's active jobs and unconsumed completed results.
func (s *DesignService) Poll(ctx context.Context, userID string) (*model.DesignPollResponse, error) {
	return s.jobs.Poll(ctx, userID)
}

// GetJob returns one job for its owner.
func (s *DesignService) GetJob(ctx context.Context, userID, jobID string) (*model.GenerationJob, error) {
	return s.jobs.Get(ctx, userID, jobID)
}

// SaveDesign consumes a completed job exactly once and copies its result
// images into durable storage. Concurrent saves race on the consumption
// flag; only the winner uploads.
func (s *DesignService) SaveDesign(ctx context.Context, userID, jobID string) (*model.DesignSaveResponse, error) {
	return s.jobs.Consume(ctx, userID, jobID, func(ctx context.Context, job *model.GenerationJob) ([]string, error) {
		if s.storage == nil || !s.storage.IsConfigured() {
			// No bucket wired up; the provider URLs are kept as-is.
			return job.ResultImages, nil
		}
		urls := make([]string, 0, len(job.ResultImages))
		for i, src := range job.ResultImages {
			url, err := s.archiveImage(ctx, job, i, src)
			if err != nil {
				return nil, fmt.Errorf("failed to save image %d: %w", i, err)
			}
			urls = append(urls, url)
		}
		return urls, nil
	})
}

func (s *DesignService) archiveImage(ctx context.Context, job *model.GenerationJob, idx int, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	key := fmt.Sprintf("designs/%s/%s-%d%s", job.UserID, job.ID, idx, extensionFor(contentType))
	return s.storage.Upload(ctx, key, bytes.NewReader(data), contentType)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
