package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nailglow/api/internal/client"
	"github.com/nailglow/api/internal/model"
	"github.com/nailglow/api/internal/service"
	"github.com/nailglow/api/internal/websocket"
)

// DesignWorker processes queued nail-art render tasks. On success it
// completes the job and commits the credit reservation; on a final
// failure it fails the job and refunds. Transient provider errors are
// returned so the queue retries them, leaving the reservation pending.
type DesignWorker struct {
	jobService    *service.JobService
	creditService *service.CreditService
	artClient     client.ArtGenerator
	hub           *websocket.Hub

	pollInterval time.Duration
	renderWait   time.Duration
}

// NewDesignWorker creates a new design worker
func NewDesignWorker(jobService *service.JobService, creditService *service.CreditService, artClient client.ArtGenerator, hub *websocket.Hub, pollInterval, renderWait time.Duration) *DesignWorker {
	return &DesignWorker{
		jobService:    jobService,
		creditService: creditService,
		artClient:     artClient,
		hub:           hub,
		pollInterval:  pollInterval,
		renderWait:    renderWait,
	}
}

// ProcessTask handles one render task
func (w *DesignWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.DesignJobTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Starting design job: %s", payload.JobID)

	job, err := w.jobService.MarkProcessing(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return fmt.Errorf("job %s not found: %w", payload.JobID, asynq.SkipRetry)
		}
		return err
	}
	if job.Status.Terminal() {
		// A previous delivery already settled this job.
		return nil
	}

	images, err := w.render(ctx, job)
	if err != nil {
		return w.handleRenderError(ctx, t, &payload, err)
	}

	completed, err := w.jobService.MarkCompleted(ctx, payload.JobID, images)
	if err != nil {
		return err
	}
	if err := w.creditService.Commit(ctx, &payload.Reservation); err != nil {
		log.Printf("Failed to commit reservation %s: %v", payload.Reservation.ID, err)
	}

	w.hub.NotifyJobUpdate(completed.ID, completed.Status, completed.ResultImages, "")
	log.Printf("Design job %s completed with %d images", completed.ID, len(images))
	return nil
}

func (w *DesignWorker) render(ctx context.Context, job *model.GenerationJob) ([]string, error) {
	if w.artClient == nil || !w.artClient.IsConfigured() {
		return w.renderMock(ctx, job)
	}

	submit, err := w.artClient.SubmitRender(ctx, &client.RenderRequest{
		Prompt:     buildRenderPrompt(job),
		ImageURL:   job.OriginalImage,
		NumOutputs: job.Quantity,
		Settings:   job.Settings,
	})
	if err != nil {
		return nil, err
	}

	result, err := w.artClient.PollRenderStatus(ctx, submit.TaskID, w.pollInterval, w.renderWait)
	if err != nil {
		return nil, err
	}
	if len(result.Images) == 0 {
		return nil, fmt.Errorf("%w: provider returned no images", model.ErrGenerationFailed)
	}
	return result.Images, nil
}

// renderMock produces placeholder results so the flow works without an
// API key in development.
func (w *DesignWorker) renderMock(ctx context.Context, job *model.GenerationJob) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(2 * time.Second):
	}

	images := make([]string, job.Quantity)
	for i := range images {
		images[i] = fmt.Sprintf("https://cdn.nailglow.app/mock/%s-%d.png", job.ID, i)
	}
	return images, nil
}

// handleRenderError decides between retry and final settlement. Fatal
// provider rejections and exhausted retries fail the job and refund the
// reservation; anything else is left to the queue's retry schedule.
func (w *DesignWorker) handleRenderError(ctx context.Context, t *asynq.Task, payload *model.DesignJobTaskPayload, renderErr error) error {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	fatal := errors.Is(renderErr, model.ErrGenerationFailed)
	lastAttempt := retried >= maxRetry

	if !fatal && !lastAttempt {
		log.Printf("Design job %s attempt %d failed, retrying: %v", payload.JobID, retried+1, renderErr)
		return renderErr
	}

	w.finalizeFailure(ctx, payload, renderErr.Error())
	if fatal {
		return fmt.Errorf("%v: %w", renderErr, asynq.SkipRetry)
	}
	return renderErr
}

func (w *DesignWorker) finalizeFailure(ctx context.Context, payload *model.DesignJobTaskPayload, reason string) {
	job, err := w.jobService.MarkFailed(ctx, payload.JobID, reason)
	if err != nil {
		log.Printf("Failed to mark job %s as failed: %v", payload.JobID, err)
	}
	if err := w.creditService.Refund(ctx, &payload.Reservation); err != nil {
		log.Printf("Failed to refund reservation %s: %v", payload.Reservation.ID, err)
	}
	if job != nil {
		w.hub.NotifyJobUpdate(job.ID, job.Status, nil, reason)
	}
	log.Printf("Design job %s failed: %s", payload.JobID, reason)
}

func buildRenderPrompt(job *model.GenerationJob) string {
	s := job.Settings
	prompt := fmt.Sprintf("Professional nail art photo, %s %s nails, %s finish, base color %s",
		s.Length, s.Shape, s.Finish, s.BaseColor)
	if s.Theme != "" {
		prompt += fmt.Sprintf(", themed: %s", s.Theme)
	}
	return prompt
}
